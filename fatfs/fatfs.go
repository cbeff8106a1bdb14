// Package fatfs is the top-level filesystem façade: it ties the boot
// sector, FS-info sector, FAT, and root directory together, and owns the
// open/flush/close lifecycle.
package fatfs

import (
	"bytes"

	"github.com/dsoprea/go-logging"

	"github.com/gofatfs/fatfs/blockdev"
	"github.com/gofatfs/fatfs/bootsector"
	"github.com/gofatfs/fatfs/clusterchain"
	"github.com/gofatfs/fatfs/dirent"
	"github.com/gofatfs/fatfs/directory"
	fatErrors "github.com/gofatfs/fatfs/errors"
	"github.com/gofatfs/fatfs/fat"
	"github.com/gofatfs/fatfs/lfndir"
	"github.com/gofatfs/fatfs/sector"
)

var logger = log.NewLogger("fatfs")

// FSStat reports aggregate volume space information, the FAT-world
// equivalent of a statfs(2) call.
type FSStat struct {
	FatType       string
	TotalClusters uint32
	FreeClusters  uint32
	ClusterSize   uint32
	BytesPerSector uint32
}

// options holds the knobs an Open caller can set via Option values.
type options struct {
	readOnly              bool
	ignoreFatDifferences  bool
	entropy               dirent.EntropySource
}

// Option configures FileSystem construction.
type Option func(*options)

// ReadOnly mounts the filesystem read-only: every mutating façade method
// fails fast with ErrReadOnly before the device is ever touched.
func ReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

// IgnoreFatDifferences skips the byte-equality check between FAT copies on
// open, trading the early corruption signal for tolerance of a
// partially-written volume.
func IgnoreFatDifferences() Option {
	return func(o *options) { o.ignoreFatDifferences = true }
}

// WithEntropySource overrides the short-name generator's randomness source,
// for deterministic tests.
func WithEntropySource(entropy dirent.EntropySource) Option {
	return func(o *options) { o.entropy = entropy }
}

// FileSystem is an open FAT12/16/32 volume.
type FileSystem struct {
	device      blockdev.BlockDevice
	bootSec     *sector.Sector
	boot        *bootsector.BootSector
	fsInfoSec   *sector.Sector
	fsInfo      *bootsector.FSInfo
	table       *fat.FAT
	root        *lfndir.FatLfnDirectory
	gen         *dirent.Generator
	clusterSize int
	filesOffset int64
	fatOffset   int64
	fatSize     int64
	readOnly    bool

	// closed is shared by pointer with the root directory and every file
	// and subdirectory opened from it, so Close() here is visible to every
	// handle reachable from the root without walking the tree.
	closed *bool
}

// Open reads the boot sector, every FAT copy (cross-checking them for
// byte-equality unless IgnoreFatDifferences is set), the FS-info sector for
// FAT32 volumes, and constructs the root directory.
func Open(dev blockdev.BlockDevice, opts ...Option) (*FileSystem, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.entropy == nil {
		o.entropy = dirent.DefaultEntropySource
	}

	bootSec := sector.New(dev, 0, 512)
	if err := bootSec.Read(); err != nil {
		return nil, err
	}
	boot, err := bootsector.Parse(bootSec.Bytes())
	if err != nil {
		return nil, err
	}

	bytesPerSector := int64(boot.BytesPerSector())
	clusterSize := int(boot.BytesPerCluster())
	fatOffset := int64(boot.ReservedSectors()) * bytesPerSector
	fatSize := int64(boot.SectorsPerFAT) * bytesPerSector
	numEntries := int(boot.TotalClusters) + 2

	table0Data := make([]byte, fatSize)
	if err := dev.ReadAt(fatOffset, table0Data); err != nil {
		return nil, err
	}
	table0 := fat.New(boot.Type, table0Data, numEntries)

	if !o.ignoreFatDifferences {
		var others []*fat.FAT
		for i := uint32(1); i < boot.NumFATs(); i++ {
			copyData := make([]byte, fatSize)
			if err := dev.ReadAt(fatOffset+int64(i)*fatSize, copyData); err != nil {
				return nil, err
			}
			others = append(others, fat.New(boot.Type, copyData, numEntries))
		}
		if err := table0.CompareCopies(others); err != nil {
			return nil, err
		}
	} else {
		logger.Debugf(nil, "skipping FAT copy comparison, IgnoreFatDifferences set")
	}

	var fsInfoSec *sector.Sector
	var fsInfo *bootsector.FSInfo
	if boot.Type == bootsector.FAT32 {
		fsInfoSec = sector.New(dev, int64(boot.FSInfoSectorNumber())*bytesPerSector, 512)
		if err := fsInfoSec.Read(); err != nil {
			return nil, err
		}
		fsInfo, err = bootsector.ParseFSInfo(fsInfoSec.Bytes())
		if err != nil {
			return nil, err
		}
		if err := fsInfo.Verify(uint32(table0.GetFreeClusterCount())); err != nil {
			return nil, err
		}
	}

	filesOffset := int64(boot.FirstDataSector) * bytesPerSector

	var ad *directory.AbstractDirectory
	if boot.Type == bootsector.FAT32 {
		chain := clusterchain.New(table0, int(boot.RootCluster()), clusterSize, filesOffset)
		ccd, err := directory.NewClusterChainDirectory(chain, dev, clusterSize, true)
		if err != nil {
			return nil, err
		}
		ad = directory.NewAbstractDirectory(ccd)
	} else {
		rootOffset := fatOffset + int64(boot.NumFATs())*fatSize
		backend := directory.NewFat16RootDirectory(dev, rootOffset, int(boot.RootEntryCount()))
		ad = directory.NewAbstractDirectory(backend)
	}
	if err := ad.Read(); err != nil {
		return nil, err
	}

	closed := new(bool)
	gen := dirent.NewGenerator(o.entropy)
	root, err := lfndir.Open(ad, table0, dev, clusterSize, filesOffset, gen, 0, true, o.readOnly, closed)
	if err != nil {
		return nil, err
	}

	return &FileSystem{
		device:      dev,
		bootSec:     bootSec,
		boot:        boot,
		fsInfoSec:   fsInfoSec,
		fsInfo:      fsInfo,
		table:       table0,
		root:        root,
		gen:         gen,
		clusterSize: clusterSize,
		filesOffset: filesOffset,
		fatOffset:   fatOffset,
		fatSize:     fatSize,
		readOnly:    o.readOnly,
		closed:      closed,
	}, nil
}

// Root returns the volume's root directory façade.
func (fs *FileSystem) Root() (*lfndir.FatLfnDirectory, error) {
	if *fs.closed {
		return nil, fatErrors.ErrAlreadyClosed
	}
	return fs.root, nil
}

// Stat reports aggregate space information for the volume.
func (fs *FileSystem) Stat() (FSStat, error) {
	if *fs.closed {
		return FSStat{}, fatErrors.ErrAlreadyClosed
	}
	return FSStat{
		FatType:        fs.boot.Type.String(),
		TotalClusters:  fs.boot.TotalClusters,
		FreeClusters:   uint32(fs.table.GetFreeClusterCount()),
		ClusterSize:    uint32(fs.clusterSize),
		BytesPerSector: fs.boot.BytesPerSector(),
	}, nil
}

// Flush writes the boot sector through its Sector (only if its encoded form
// actually changed since it was last loaded or flushed), every FAT copy, the
// root directory recursively, and, for FAT32, the FS-info sector with its
// free-cluster count refreshed. The FS-info next-free hint is written back as
// it was loaded; it is not updated from the allocator.
func (fs *FileSystem) Flush() error {
	if *fs.closed {
		return fatErrors.ErrAlreadyClosed
	}
	if fs.readOnly {
		return fatErrors.ErrReadOnly
	}

	bootBytes, err := fs.boot.Bytes()
	if err != nil {
		return err
	}
	if !bytes.Equal(bootBytes, fs.bootSec.Bytes()) {
		fs.bootSec.SetBytes(0, bootBytes)
	}
	if fs.bootSec.Dirty() {
		logger.Debugf(nil, "flushing boot sector")
		if err := fs.bootSec.Write(); err != nil {
			return err
		}
	}

	logger.Debugf(nil, "flushing %d FAT copies", fs.boot.NumFATs())
	fatBytes := fs.table.Bytes()
	for i := uint32(0); i < fs.boot.NumFATs(); i++ {
		if err := fs.device.WriteAt(fs.fatOffset+int64(i)*fs.fatSize, fatBytes); err != nil {
			return err
		}
	}

	if err := fs.root.Flush(); err != nil {
		return err
	}

	if fs.fsInfo != nil {
		fs.fsInfo.SetFreeClusterCount(uint32(fs.table.GetFreeClusterCount()))
		fsInfoBytes, err := fs.fsInfo.Bytes()
		if err != nil {
			return err
		}
		fs.fsInfoSec.SetBytes(0, fsInfoBytes)
		logger.Debugf(nil, "flushing FS-info sector")
		if err := fs.fsInfoSec.Write(); err != nil {
			return err
		}
	}

	return fs.device.Flush()
}

// Close flushes (if writable) and marks the filesystem closed. Every
// subsequent call on this FileSystem or any object obtained from it fails
// with ErrAlreadyClosed.
func (fs *FileSystem) Close() error {
	if *fs.closed {
		return fatErrors.ErrAlreadyClosed
	}
	if !fs.readOnly {
		if err := fs.Flush(); err != nil {
			return err
		}
	}
	*fs.closed = true
	return fs.device.Close()
}

// Label returns the volume label, preferring the root directory's label
// entry over the boot sector's inline copy (the entry is what host OSes
// display and the two can drift apart).
func (fs *FileSystem) Label() (string, error) {
	if *fs.closed {
		return "", fatErrors.ErrAlreadyClosed
	}
	if label, ok := fs.root.VolumeLabel(); ok {
		return label, nil
	}
	return fs.boot.VolumeLabel(), nil
}

// SetLabel writes the volume label into both of its homes: the boot
// sector's inline field and the root directory's label entry. Durable on
// the next Flush.
func (fs *FileSystem) SetLabel(label string) error {
	if *fs.closed {
		return fatErrors.ErrAlreadyClosed
	}
	if fs.readOnly {
		return fatErrors.ErrReadOnly
	}
	fs.boot.SetVolumeLabel(label)
	return fs.root.SetVolumeLabel(label)
}

// IsReadOnly reports whether the filesystem was mounted read-only.
func (fs *FileSystem) IsReadOnly() bool { return fs.readOnly }

// IsClosed reports whether Close has already been called.
func (fs *FileSystem) IsClosed() bool { return *fs.closed }
