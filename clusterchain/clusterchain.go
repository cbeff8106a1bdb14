// Package clusterchain implements the variable-length byte extent that
// stores a file's or directory's data across clusters linked through a FAT.
package clusterchain

import (
	"github.com/gofatfs/fatfs/fat"
	fatErrors "github.com/gofatfs/fatfs/errors"
)

// ClusterChain is an ordered extent of FAT-linked clusters, identified by its
// start cluster (0 meaning empty). It knows how to translate a byte offset
// within the chain into a device offset and how to grow or shrink itself by
// driving the FAT allocator.
type ClusterChain struct {
	table          *fat.FAT
	startCluster   int
	clusterSize    int
	filesOffset    int64
}

// New wraps an existing chain (or an empty one, if startCluster is 0).
func New(table *fat.FAT, startCluster int, clusterSize int, filesOffset int64) *ClusterChain {
	return &ClusterChain{
		table:        table,
		startCluster: startCluster,
		clusterSize:  clusterSize,
		filesOffset:  filesOffset,
	}
}

// StartCluster returns the chain's first cluster, or 0 if empty.
func (c *ClusterChain) StartCluster() int { return c.startCluster }

// offsetFor computes the device byte offset of `intraOffset` bytes into
// `cluster`.
func (c *ClusterChain) offsetFor(cluster int, intraOffset int) int64 {
	return c.filesOffset + int64(cluster-2)*int64(c.clusterSize) + int64(intraOffset)
}

// GetLengthOnDisk returns the chain's total byte capacity: the number of
// clusters in the chain times the cluster size. Zero for an empty chain.
func (c *ClusterChain) GetLengthOnDisk() (int64, error) {
	if c.startCluster == 0 {
		return 0, nil
	}
	chain, err := c.table.GetChain(c.startCluster)
	if err != nil {
		return 0, err
	}
	return int64(len(chain)) * int64(c.clusterSize), nil
}

// chainLengthInClusters returns the current number of clusters in the chain.
func (c *ClusterChain) chainLengthInClusters() (int, error) {
	if c.startCluster == 0 {
		return 0, nil
	}
	chain, err := c.table.GetChain(c.startCluster)
	if err != nil {
		return 0, err
	}
	return len(chain), nil
}

// SetChainLength grows or shrinks the chain to exactly n clusters. From
// empty, it allocates a fresh n-cluster chain. From nonempty, it grows via
// AllocAppend or shrinks by truncating the tail and freeing what's cut off.
func (c *ClusterChain) SetChainLength(n int) error {
	if n < 0 {
		return fatErrors.ErrInvalidArgument.WithMessage("chain length cannot be negative")
	}

	if c.startCluster == 0 {
		if n == 0 {
			return nil
		}
		start, err := c.table.AllocNewChain(n)
		if err != nil {
			return err
		}
		c.startCluster = start
		return nil
	}

	chain, err := c.table.GetChain(c.startCluster)
	if err != nil {
		return err
	}
	current := len(chain)

	switch {
	case n == current:
		return nil
	case n == 0:
		if err := c.table.FreeChain(c.startCluster); err != nil {
			return err
		}
		c.startCluster = 0
		return nil
	case n > current:
		last := chain[len(chain)-1]
		for i := current; i < n; i++ {
			last, err = c.table.AllocAppend(last)
			if err != nil {
				return err
			}
		}
		return nil
	default: // n < current
		newTail := chain[n-1]
		for _, cl := range chain[n:] {
			if err := c.table.SetFree(cl); err != nil {
				return err
			}
		}
		return c.table.SetEof(newTail)
	}
}

// SetSize resizes the chain to fit `bytes` bytes, rounding up to a whole
// number of clusters.
func (c *ClusterChain) SetSize(bytes int64) error {
	n := 0
	if bytes > 0 {
		n = int((bytes + int64(c.clusterSize) - 1) / int64(c.clusterSize))
	}
	return c.SetChainLength(n)
}

// ReadData reads len(dst) bytes starting at `offset` bytes into the chain's
// logical extent, splitting across a partial head cluster, full clusters,
// and a partial tail cluster as needed.
func (c *ClusterChain) ReadData(device Reader, offset int64, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	if c.startCluster == 0 {
		return fatErrors.ErrEndOfData
	}

	chain, err := c.table.GetChain(c.startCluster)
	if err != nil {
		return err
	}

	return c.walk(chain, offset, int64(len(dst)), func(devOffset int64, bufStart, bufEnd int64) error {
		return device.ReadAt(devOffset, dst[bufStart:bufEnd])
	})
}

// WriteData writes src starting at `offset` bytes into the chain's logical
// extent, growing the chain automatically if the write extends past its
// current capacity.
func (c *ClusterChain) WriteData(device Writer, offset int64, src []byte) error {
	if len(src) == 0 {
		return nil
	}

	needed := offset + int64(len(src))
	lengthOnDisk, err := c.GetLengthOnDisk()
	if err != nil {
		return err
	}
	if needed > lengthOnDisk {
		if err := c.SetSize(needed); err != nil {
			return err
		}
	}

	chain, err := c.table.GetChain(c.startCluster)
	if err != nil {
		return err
	}

	return c.walk(chain, offset, int64(len(src)), func(devOffset int64, bufStart, bufEnd int64) error {
		return device.WriteAt(devOffset, src[bufStart:bufEnd])
	})
}

// walk drives `apply` once per contiguous run of bytes within a single
// cluster that the [offset, offset+length) extent touches, handling the
// partial head chunk, full clusters, and the partial tail chunk.
func (c *ClusterChain) walk(chain []int, offset, length int64, apply func(devOffset, bufStart, bufEnd int64) error) error {
	clusterSize := int64(c.clusterSize)
	startClusterIdx := int(offset / clusterSize)
	if startClusterIdx >= len(chain) {
		return fatErrors.ErrEndOfData
	}

	remaining := length
	bufPos := int64(0)
	intraOffset := offset % clusterSize

	for ci := startClusterIdx; remaining > 0; ci++ {
		if ci >= len(chain) {
			return fatErrors.ErrEndOfData
		}
		chunk := clusterSize - intraOffset
		if chunk > remaining {
			chunk = remaining
		}

		devOffset := c.offsetFor(chain[ci], int(intraOffset))
		if err := apply(devOffset, bufPos, bufPos+chunk); err != nil {
			return err
		}

		bufPos += chunk
		remaining -= chunk
		intraOffset = 0
	}
	return nil
}

// Reader is the read half of the block device contract a chain needs.
type Reader interface {
	ReadAt(offset int64, dst []byte) error
}

// Writer is the write half of the block device contract a chain needs.
type Writer interface {
	WriteAt(offset int64, src []byte) error
}
