package directory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gofatfs/fatfs/blockdev"
	"github.com/gofatfs/fatfs/bootsector"
	"github.com/gofatfs/fatfs/clusterchain"
	"github.com/gofatfs/fatfs/dirent"
	"github.com/gofatfs/fatfs/fat"
)

func makeSlot(name byte, attr uint8) []byte {
	s := make([]byte, SlotSize)
	s[0] = name
	s[11] = attr
	return s
}

func TestAbstractDirectoryAddReadFlushRoundTrip(t *testing.T) {
	dev := blockdev.NewMemoryDevice(make([]byte, 16*SlotSize), 512, false)
	backend := NewFat16RootDirectory(dev, 0, 16)
	d := NewAbstractDirectory(backend)

	require.NoError(t, d.AddSlots([][]byte{
		makeSlot('A', dirent.AttrArchive),
		makeSlot('B', dirent.AttrArchive),
	}))
	require.NoError(t, d.Flush())

	d2 := NewAbstractDirectory(backend)
	require.NoError(t, d2.Read())
	require.Len(t, d2.Slots(), 2)
	require.Equal(t, byte('A'), d2.Slots()[0][0])
	require.Equal(t, byte('B'), d2.Slots()[1][0])
}

func TestAbstractDirectorySkipsDeletedAndStopsAtTerminator(t *testing.T) {
	dev := blockdev.NewMemoryDevice(make([]byte, 4*SlotSize), 512, false)
	raw := make([]byte, 4*SlotSize)
	copy(raw[0*SlotSize:], makeSlot('A', dirent.AttrArchive))
	copy(raw[1*SlotSize:], makeSlot(dirent.DeletedMarker, dirent.AttrArchive))
	copy(raw[2*SlotSize:], makeSlot('C', dirent.AttrArchive))
	// slot 3 left zeroed: terminator
	require.NoError(t, dev.WriteAt(0, raw))

	backend := NewFat16RootDirectory(dev, 0, 4)
	d := NewAbstractDirectory(backend)
	require.NoError(t, d.Read())
	require.Len(t, d.Slots(), 2)
	require.Equal(t, byte('A'), d.Slots()[0][0])
	require.Equal(t, byte('C'), d.Slots()[1][0])
}

func TestAbstractDirectoryVolumeLabelSeparatedFromSlots(t *testing.T) {
	dev := blockdev.NewMemoryDevice(make([]byte, 4*SlotSize), 512, false)
	backend := NewFat16RootDirectory(dev, 0, 4)
	d := NewAbstractDirectory(backend)
	d.SetLabel(makeSlot('V', dirent.AttrVolumeLabel))
	require.NoError(t, d.AddSlot(makeSlot('A', dirent.AttrArchive)))
	require.NoError(t, d.Flush())

	d2 := NewAbstractDirectory(backend)
	require.NoError(t, d2.Read())
	require.Len(t, d2.Slots(), 1)
	require.NotNil(t, d2.Label())
	require.Equal(t, byte('V'), d2.Label()[0])
}

func TestAbstractDirectoryRemoveSlots(t *testing.T) {
	dev := blockdev.NewMemoryDevice(make([]byte, 8*SlotSize), 512, false)
	backend := NewFat16RootDirectory(dev, 0, 8)
	d := NewAbstractDirectory(backend)
	require.NoError(t, d.AddSlots([][]byte{
		makeSlot('A', dirent.AttrArchive),
		makeSlot('B', dirent.AttrArchive),
		makeSlot('C', dirent.AttrArchive),
	}))

	d.RemoveSlots([]int{1})
	require.Len(t, d.Slots(), 2)
	require.Equal(t, byte('A'), d.Slots()[0][0])
	require.Equal(t, byte('C'), d.Slots()[1][0])
}

func TestFat16RootDirectoryRejectsGrowthPastCapacity(t *testing.T) {
	dev := blockdev.NewMemoryDevice(make([]byte, 4*SlotSize), 512, false)
	backend := NewFat16RootDirectory(dev, 0, 4)
	d := NewAbstractDirectory(backend)

	// capacity 4 slots = room for 3 real entries + terminator.
	require.NoError(t, d.AddSlots([][]byte{
		makeSlot('A', dirent.AttrArchive),
		makeSlot('B', dirent.AttrArchive),
		makeSlot('C', dirent.AttrArchive),
	}))

	err := d.AddSlot(makeSlot('D', dirent.AttrArchive))
	require.Error(t, err)
}

func newChainDirectory(t *testing.T, numEntries int) (*ClusterChainDirectory, *fat.FAT, *blockdev.MemoryDevice) {
	t.Helper()
	table := fat.Format(bootsector.FAT16, make([]byte, numEntries*2), numEntries, 0xF8)
	const clusterSize = SlotSize * 2 // 2 slots per cluster
	dev := blockdev.NewMemoryDevice(make([]byte, numEntries*clusterSize), 512, false)
	chain := clusterchain.New(table, 0, clusterSize, 0)
	backend, err := NewClusterChainDirectory(chain, dev, clusterSize, false)
	require.NoError(t, err)
	return backend, table, dev
}

func TestClusterChainDirectoryGrowsOnFlush(t *testing.T) {
	backend, _, _ := newChainDirectory(t, 20)
	d := NewAbstractDirectory(backend)

	require.NoError(t, d.AddSlots([][]byte{
		makeSlot('A', dirent.AttrArchive),
		makeSlot('B', dirent.AttrArchive),
	}))
	require.NoError(t, d.Flush())
	require.NotZero(t, backend.StorageCluster())

	d2 := NewAbstractDirectory(backend)
	require.NoError(t, d2.Read())
	require.Len(t, d2.Slots(), 2)
}

func TestClusterChainDirectoryChangeSizeRejectsNonPositive(t *testing.T) {
	backend, _, _ := newChainDirectory(t, 20)
	require.Error(t, backend.ChangeSize(0))
	require.Error(t, backend.ChangeSize(-1))
}

func TestClusterChainDirectoryIsRootAlwaysReportsZeroCluster(t *testing.T) {
	table := fat.Format(bootsector.FAT16, make([]byte, 40), 20, 0xF8)
	const clusterSize = SlotSize * 2
	dev := blockdev.NewMemoryDevice(make([]byte, 20*clusterSize), 512, false)
	chain := clusterchain.New(table, 0, clusterSize, 0)
	root, err := NewClusterChainDirectory(chain, dev, clusterSize, true)
	require.NoError(t, err)

	require.NoError(t, root.ChangeSize(4))
	require.Equal(t, 0, root.StorageCluster())
}
