package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gofatfs/fatfs/bootsector"
)

func TestPickSectorsPerClusterStaysWithinValidatedSet(t *testing.T) {
	valid := map[uint8]bool{1: true, 2: true, 4: true, 8: true, 16: true, 32: true, 64: true, 128: true}
	for _, size := range []uint64{1 << 20, 32 << 20, 256 << 20, 2 << 30, 16 << 30} {
		got := pickSectorsPerCluster(size)
		require.True(t, valid[got], "size %d produced invalid sectors-per-cluster %d", size, got)
	}
}

func TestPlanGeometryProducesConsistentFAT16(t *testing.T) {
	params, err := planGeometry(512, 1, 5073, "SMALL16")
	require.NoError(t, err)

	boot, err := bootsector.Format(params)
	require.NoError(t, err)
	require.Equal(t, bootsector.FAT16, boot.Type)
	require.Greater(t, boot.TotalClusters, uint32(0))
}

func TestPlanGeometryProducesConsistentFAT32(t *testing.T) {
	params, err := planGeometry(512, 8, 1<<20, "BIG32")
	require.NoError(t, err)

	boot, err := bootsector.Format(params)
	require.NoError(t, err)
	require.Equal(t, bootsector.FAT32, boot.Type)
	require.Zero(t, boot.RootDirSectors)
}
