package directory

import (
	"github.com/gofatfs/fatfs/clusterchain"
	fatErrors "github.com/gofatfs/fatfs/errors"
)

// maxClusterChainDirBytes is the 65536*32-byte ceiling on a cluster-chain
// directory's size: a 16-bit entry count times the 32-byte slot size.
const maxClusterChainDirBytes = 65536 * 32

// chainDevice is the narrow device contract a ClusterChainDirectory needs
// from its chain's reads/writes.
type chainDevice interface {
	clusterchain.Reader
	clusterchain.Writer
}

// ClusterChainDirectory is a growable directory backed by a cluster chain:
// every non-root FAT12/16/32 directory, and the FAT32 root.
type ClusterChainDirectory struct {
	chain       *clusterchain.ClusterChain
	device      chainDevice
	clusterSize int
	capacity    int
	isRoot      bool
}

// NewClusterChainDirectory builds the backend over an existing (possibly
// empty) chain. isRoot marks the FAT32 root directory, whose ".."-equivalent
// concept does not apply.
func NewClusterChainDirectory(chain *clusterchain.ClusterChain, device chainDevice, clusterSize int, isRoot bool) (*ClusterChainDirectory, error) {
	d := &ClusterChainDirectory{chain: chain, device: device, clusterSize: clusterSize, isRoot: isRoot}
	lengthOnDisk, err := chain.GetLengthOnDisk()
	if err != nil {
		return nil, err
	}
	d.capacity = int(lengthOnDisk) / SlotSize
	return d, nil
}

func (d *ClusterChainDirectory) ReadRaw() ([]byte, error) {
	lengthOnDisk, err := d.chain.GetLengthOnDisk()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, lengthOnDisk)
	if lengthOnDisk == 0 {
		return buf, nil
	}
	if err := d.chain.ReadData(d.device, 0, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *ClusterChainDirectory) WriteRaw(data []byte) error {
	lengthOnDisk, err := d.chain.GetLengthOnDisk()
	if err != nil {
		return err
	}

	if err := d.chain.WriteData(d.device, 0, data); err != nil {
		return err
	}

	// If the chain's on-disk length (rounded up to a whole cluster) exceeds
	// the logical slot data just written, zero-fill the remainder.
	if lengthOnDisk > int64(len(data)) {
		pad := make([]byte, lengthOnDisk-int64(len(data)))
		if err := d.chain.WriteData(d.device, int64(len(data)), pad); err != nil {
			return err
		}
	}
	return nil
}

// StorageCluster returns the chain's start cluster, or 0 for the FAT32 root.
func (d *ClusterChainDirectory) StorageCluster() int {
	if d.isRoot {
		return 0
	}
	return d.chain.StartCluster()
}

// ChangeSize resizes the backing chain to hold exactly n slots (Open
// Question #3: n <= 0 is forbidden outright rather than silently allocating
// a zero-size chain).
func (d *ClusterChainDirectory) ChangeSize(n int) error {
	if err := checkNonEmpty(n); err != nil {
		return err
	}

	bytes := int64(n) * SlotSize
	if bytes < int64(d.clusterSize) {
		bytes = int64(d.clusterSize)
	}
	if bytes > maxClusterChainDirBytes {
		return fatErrors.NewDirectoryFullError(d.capacity, n)
	}

	if err := d.chain.SetSize(bytes); err != nil {
		return err
	}
	d.capacity = int(bytes) / SlotSize
	return nil
}

func (d *ClusterChainDirectory) Capacity() int { return d.capacity }
