package directory

import (
	"github.com/gofatfs/fatfs/clusterchain"
	"github.com/gofatfs/fatfs/dirent"
	"github.com/gofatfs/fatfs/fat"
)

// CreateSub allocates a single-cluster chain for a brand-new subdirectory,
// writes its "." (pointing to itself) and ".." (pointing to
// parentStorageCluster, 0 if the parent is a root) entries, flushes the new
// directory, and returns the parent-side directory entry for it with its
// Cluster field filled in. Per the decided Open Question #2, the "."/".."
// timestamps are copied from childEntry -- the very entry the caller is
// about to insert into the parent directory for this subdirectory.
func CreateSub(
	table *fat.FAT,
	clusterSize int,
	filesOffset int64,
	device chainDevice,
	parentStorageCluster int,
	childEntry dirent.Entry,
) (*AbstractDirectory, dirent.Entry, error) {
	startCluster, err := table.AllocNewChain(1)
	if err != nil {
		return nil, dirent.Entry{}, err
	}

	chain := clusterchain.New(table, startCluster, clusterSize, filesOffset)
	ccd, err := NewClusterChainDirectory(chain, device, clusterSize, false)
	if err != nil {
		return nil, dirent.Entry{}, err
	}
	ad := NewAbstractDirectory(ccd)

	dot := dirent.Entry{
		ShortName:    dirent.Dot,
		Attributes:   dirent.AttrDirectory,
		Created:      childEntry.Created,
		LastAccessed: childEntry.LastAccessed,
		LastModified: childEntry.LastModified,
		Cluster:      uint32(startCluster),
	}
	dotDot := dirent.Entry{
		ShortName:    dirent.DotDot,
		Attributes:   dirent.AttrDirectory,
		Created:      childEntry.Created,
		LastAccessed: childEntry.LastAccessed,
		LastModified: childEntry.LastModified,
		Cluster:      uint32(parentStorageCluster),
	}

	dotBytes, err := dot.ToBytes()
	if err != nil {
		return nil, dirent.Entry{}, err
	}
	dotDotBytes, err := dotDot.ToBytes()
	if err != nil {
		return nil, dirent.Entry{}, err
	}

	if err := ad.AddSlots([][]byte{dotBytes, dotDotBytes}); err != nil {
		return nil, dirent.Entry{}, err
	}
	if err := ad.Flush(); err != nil {
		return nil, dirent.Entry{}, err
	}

	childEntry.Cluster = uint32(startCluster)
	return ad, childEntry, nil
}
