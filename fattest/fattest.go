// Package fattest builds fresh, in-memory FAT12/16/32 images for tests.
// Images are synthesized from geometry parameters through
// bootsector.Format/fat.Format rather than loaded from a fixture archive.
package fattest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gofatfs/fatfs/blockdev"
	"github.com/gofatfs/fatfs/bootsector"
	"github.com/gofatfs/fatfs/fat"
)

// Geometry bundles the knobs NewImage needs to lay out a fresh, empty
// FAT12/16/32 volume. TotalSectors/SectorsPerFAT are given explicitly
// (rather than derived) so callers can build both well-formed images and the
// edge-case geometries the flavor-discrimination algorithm cares about.
type Geometry struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16 // must be 0 for FAT32
	TotalSectors      uint32
	SectorsPerFAT     uint32
	Media             uint8
	VolumeLabel       string
}

// Small12 is a minimal FAT12 geometry: 100 data clusters, 512-byte sectors
// and clusters, a 16-entry root directory.
var Small12 = Geometry{
	BytesPerSector:    512,
	SectorsPerCluster: 1,
	ReservedSectors:   1,
	NumFATs:           2,
	RootEntryCount:    16,
	TotalSectors:      104,
	SectorsPerFAT:     1,
	Media:             0xF8,
	VolumeLabel:       "SMALL12",
}

// Small16 is a minimal FAT16 geometry: 5,000 data clusters, a conventional
// 512-entry root directory.
var Small16 = Geometry{
	BytesPerSector:    512,
	SectorsPerCluster: 1,
	ReservedSectors:   1,
	NumFATs:           2,
	RootEntryCount:    512,
	TotalSectors:      5073,
	SectorsPerFAT:     20,
	Media:             0xF8,
	VolumeLabel:       "SMALL16",
}

// Medium32 is the smallest FAT32 geometry the flavor-discrimination
// threshold allows: just over 65,524 data clusters, 512-byte
// clusters, the conventional 32-sector reserved region (boot sector +
// FS-info sector + boot-sector backup, padded).
var Medium32 = Geometry{
	BytesPerSector:    512,
	SectorsPerCluster: 1,
	ReservedSectors:   32,
	NumFATs:           2,
	TotalSectors:      66581,
	SectorsPerFAT:     512,
	Media:             0xF8,
	VolumeLabel:       "MEDIUM32",
}

// NewImage builds a freshly formatted, empty volume of geometry g and
// returns it as a ready-to-mount in-memory BlockDevice: boot sector, every
// FAT copy, the FS-info sector (FAT32) or the zeroed fixed root region
// (FAT12/16), and -- for FAT32 -- a single-cluster root directory chain,
// already allocated and terminated, zero-filled (an all-zero directory
// cluster is a valid empty directory: its first byte is the end-of-directory
// marker).
func NewImage(t *testing.T, g Geometry) *blockdev.MemoryDevice {
	t.Helper()

	boot, err := bootsector.Format(bootsector.FormatParams{
		BytesPerSector:    g.BytesPerSector,
		SectorsPerCluster: g.SectorsPerCluster,
		ReservedSectors:   g.ReservedSectors,
		NumFATs:           g.NumFATs,
		RootEntryCount:    g.RootEntryCount,
		TotalSectors:      g.TotalSectors,
		SectorsPerFAT:     g.SectorsPerFAT,
		Media:             g.Media,
		VolumeLabel:       g.VolumeLabel,
		RootCluster:       2,
		FSInfoSector:      1,
		BackupBootSector:  6,
	})
	require.NoError(t, err, "formatting boot sector")

	bytesPerSector := int64(g.BytesPerSector)
	totalBytes := int64(g.TotalSectors) * bytesPerSector
	data := make([]byte, totalBytes)
	dev := blockdev.NewMemoryDevice(data, uint32(g.BytesPerSector), false)

	bootBytes, err := boot.Bytes()
	require.NoError(t, err, "encoding boot sector")
	require.NoError(t, dev.WriteAt(0, bootBytes))

	numEntries := int(boot.TotalClusters) + 2
	fatSize := int64(g.SectorsPerFAT) * bytesPerSector
	table := fat.Format(boot.Type, make([]byte, fatSize), numEntries, g.Media)

	fatOffset := int64(g.ReservedSectors) * bytesPerSector
	rootOffset := fatOffset + int64(g.NumFATs)*fatSize

	if boot.Type == bootsector.FAT32 {
		require.NoError(t, table.SetEof(int(boot.RootCluster())), "allocating FAT32 root cluster")

		fsInfo := bootsector.NewFSInfo()
		fsInfo.SetFreeClusterCount(uint32(table.GetFreeClusterCount()))
		fsInfoBytes, err := fsInfo.Bytes()
		require.NoError(t, err, "encoding FS-info sector")
		require.NoError(t, dev.WriteAt(int64(boot.FSInfoSectorNumber())*bytesPerSector, fsInfoBytes))
	}

	for i := uint8(0); i < g.NumFATs; i++ {
		require.NoError(t, dev.WriteAt(fatOffset+int64(i)*fatSize, table.Bytes()))
	}

	if boot.Type != bootsector.FAT32 {
		rootBytes := int64(g.RootEntryCount) * 32
		require.NoError(t, dev.WriteAt(rootOffset, make([]byte, rootBytes)))
	}

	return dev
}
