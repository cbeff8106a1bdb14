package lfndir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gofatfs/fatfs/blockdev"
	"github.com/gofatfs/fatfs/bootsector"
	"github.com/gofatfs/fatfs/directory"
	"github.com/gofatfs/fatfs/dirent"
	fatErrors "github.com/gofatfs/fatfs/errors"
	"github.com/gofatfs/fatfs/fat"
)

const (
	testClusterSize  = 512
	testNumEntries   = 64
	testRootCapacity = 32
)

func newTestRoot(t *testing.T) (*FatLfnDirectory, *fat.FAT, *blockdev.MemoryDevice) {
	t.Helper()
	table := fat.Format(bootsector.FAT16, make([]byte, testNumEntries*2), testNumEntries, 0xF8)

	clusterRegion := int64(testNumEntries) * testClusterSize
	rootRegion := int64(testRootCapacity) * 32
	dev := blockdev.NewMemoryDevice(make([]byte, clusterRegion+rootRegion), 512, false)

	backend := directory.NewFat16RootDirectory(dev, clusterRegion, testRootCapacity)
	storage := directory.NewAbstractDirectory(backend)
	require.NoError(t, storage.Read())

	gen := dirent.NewGenerator(dirent.DefaultEntropySource)
	root, err := Open(storage, table, dev, testClusterSize, 0, gen, 0, true, false, new(bool))
	require.NoError(t, err)
	return root, table, dev
}

func TestAddFileIndexesByLongAndShortName(t *testing.T) {
	root, _, _ := newTestRoot(t)

	f, err := root.AddFile("Hello World.txt")
	require.NoError(t, err)
	require.NotNil(t, f)

	entry, ok := root.GetEntry("Hello World.txt")
	require.True(t, ok)
	require.False(t, entry.IsDirectory())
	require.Contains(t, root.shortNameIndex, entry.ShortName)

	require.Equal(t, "Hello World.txt", root.Name("Hello World.txt"))
	require.Len(t, root.Entries(), 1)
}

func TestAddFileRejectsDuplicateName(t *testing.T) {
	root, _, _ := newTestRoot(t)
	_, err := root.AddFile("dup.txt")
	require.NoError(t, err)

	_, err = root.AddFile("DUP.TXT")
	require.Error(t, err, "names must be unique case-insensitively")
}

func TestAddFileRejectsEmptyOrOverlongName(t *testing.T) {
	root, _, _ := newTestRoot(t)
	_, err := root.AddFile("   ")
	require.Error(t, err)

	_, err = root.AddFile(string(make([]byte, 256)))
	require.Error(t, err)
}

func TestAddDirectoryCreatesAddressableSubdirectory(t *testing.T) {
	root, _, _ := newTestRoot(t)

	sub, err := root.AddDirectory("Sub Dir")
	require.NoError(t, err)
	require.NotZero(t, sub.StorageCluster())

	entry, ok := root.GetEntry("Sub Dir")
	require.True(t, ok)
	require.True(t, entry.IsDirectory())
	require.Equal(t, uint32(sub.StorageCluster()), entry.Cluster)

	// A freshly created subdirectory has no addressable children of its own
	// (its "." and ".." live outside the name indexes).
	require.Empty(t, sub.Entries())
}

// TestGetEntryFindsLegacyShortOnlyEntry exercises a directory slot with no
// LFN extension at all (as a pre-LFN driver would have written it): its
// display name falls back to the rendered 8.3 short name, and it must be
// addressable by that name.
func TestGetEntryFindsLegacyShortOnlyEntry(t *testing.T) {
	root, table, dev := newTestRoot(t)

	sn, err := dirent.NewShortName("LEGACY", "TXT")
	require.NoError(t, err)
	entry := dirent.Entry{ShortName: sn, Attributes: dirent.AttrArchive}
	raw, err := entry.ToBytes()
	require.NoError(t, err)

	require.NoError(t, root.storage.AddSlot(raw))

	gen := dirent.NewGenerator(dirent.DefaultEntropySource)
	reopened, err := Open(root.storage, table, dev, testClusterSize, 0, gen, 0, true, false, new(bool))
	require.NoError(t, err)

	got, ok := reopened.GetEntry("LEGACY.TXT")
	require.True(t, ok)
	require.Equal(t, sn, got.ShortName)
}

func TestRemoveFreesClusterAndDeindexes(t *testing.T) {
	root, table, _ := newTestRoot(t)
	sub, err := root.AddDirectory("Removable")
	require.NoError(t, err)
	clusterUsed := sub.StorageCluster()
	freeBefore := table.GetFreeClusterCount()

	require.NoError(t, root.Remove("Removable"))

	_, ok := root.GetEntry("Removable")
	require.False(t, ok)
	require.Empty(t, root.Entries())
	require.Greater(t, table.GetFreeClusterCount(), freeBefore)
	require.NotZero(t, clusterUsed)
}

func TestRemoveMissingNameIsNoop(t *testing.T) {
	root, _, _ := newTestRoot(t)
	require.NoError(t, root.Remove("does-not-exist"))
}

func TestMoveToRelocatesEntryBetweenDirectories(t *testing.T) {
	root, _, _ := newTestRoot(t)
	_, err := root.AddFile("movable.txt")
	require.NoError(t, err)

	sub, err := root.AddDirectory("dest")
	require.NoError(t, err)

	require.NoError(t, root.MoveTo("movable.txt", sub, "renamed.txt"))

	_, ok := root.GetEntry("movable.txt")
	require.False(t, ok)

	entry, ok := sub.GetEntry("renamed.txt")
	require.True(t, ok)
	require.False(t, entry.IsDirectory())
}

func TestMoveToMissingSourceFails(t *testing.T) {
	root, _, _ := newTestRoot(t)
	sub, err := root.AddDirectory("dest")
	require.NoError(t, err)

	err = root.MoveTo("nope.txt", sub, "new.txt")
	require.Error(t, err)
}

func TestFlushRoundTripsDirectoryContents(t *testing.T) {
	root, table, dev := newTestRoot(t)
	_, err := root.AddFile("a.txt")
	require.NoError(t, err)
	_, err = root.AddFile("b.txt")
	require.NoError(t, err)

	require.NoError(t, root.Flush())

	clusterRegion := int64(testNumEntries) * testClusterSize
	backend := directory.NewFat16RootDirectory(dev, clusterRegion, testRootCapacity)
	storage := directory.NewAbstractDirectory(backend)
	require.NoError(t, storage.Read())

	gen := dirent.NewGenerator(dirent.DefaultEntropySource)
	reopened, err := Open(storage, table, dev, testClusterSize, 0, gen, 0, true, false, new(bool))
	require.NoError(t, err)

	require.Len(t, reopened.Entries(), 2)
	_, ok := reopened.GetEntry("a.txt")
	require.True(t, ok)
	_, ok = reopened.GetEntry("b.txt")
	require.True(t, ok)
}

func TestListPairsDisplayNamesWithEntries(t *testing.T) {
	root, _, _ := newTestRoot(t)
	_, err := root.AddFile("Hello World.txt")
	require.NoError(t, err)
	_, err = root.AddDirectory("Sub Dir")
	require.NoError(t, err)

	listed := root.List()
	require.Len(t, listed, 2)

	names := map[string]dirent.Entry{}
	for _, ne := range listed {
		names[ne.Name] = ne.Entry
	}
	require.Contains(t, names, "Hello World.txt")
	require.Contains(t, names, "Sub Dir")
	subDir := names["Sub Dir"]
	helloFile := names["Hello World.txt"]
	require.True(t, subDir.IsDirectory())
	require.False(t, helloFile.IsDirectory())
}

func TestOpenDirectoryConstructsAndCachesSubdirectoryFromDisk(t *testing.T) {
	root, table, dev := newTestRoot(t)
	sub, err := root.AddDirectory("sub")
	require.NoError(t, err)
	_, err = sub.AddFile("nested.txt")
	require.NoError(t, err)
	require.NoError(t, root.Flush())

	clusterRegion := int64(testNumEntries) * testClusterSize
	backend := directory.NewFat16RootDirectory(dev, clusterRegion, testRootCapacity)
	storage := directory.NewAbstractDirectory(backend)
	require.NoError(t, storage.Read())

	gen := dirent.NewGenerator(dirent.DefaultEntropySource)
	reopened, err := Open(storage, table, dev, testClusterSize, 0, gen, 0, true, false, new(bool))
	require.NoError(t, err)

	opened, err := reopened.OpenDirectory("sub")
	require.NoError(t, err)
	_, ok := opened.GetEntry("nested.txt")
	require.True(t, ok)

	again, err := reopened.OpenDirectory("sub")
	require.NoError(t, err)
	require.Same(t, opened, again)
}

func TestOpenDirectoryRejectsFileAndMissingName(t *testing.T) {
	root, _, _ := newTestRoot(t)
	_, err := root.AddFile("plain.txt")
	require.NoError(t, err)

	_, err = root.OpenDirectory("plain.txt")
	require.Error(t, err)

	_, err = root.OpenDirectory("nope")
	require.Error(t, err)
}

func TestOpenFileRejectsDirectoryAndMissingName(t *testing.T) {
	root, _, _ := newTestRoot(t)
	_, err := root.AddDirectory("somedir")
	require.NoError(t, err)

	_, err = root.OpenFile("somedir")
	require.Error(t, err)

	_, err = root.OpenFile("nope")
	require.Error(t, err)
}

func TestReadOnlyDirectoryRejectsMutation(t *testing.T) {
	root, table, dev := newTestRoot(t)
	_, err := root.AddFile("x.txt")
	require.NoError(t, err)
	require.NoError(t, root.Flush())

	clusterRegion := int64(testNumEntries) * testClusterSize
	backend := directory.NewFat16RootDirectory(dev, clusterRegion, testRootCapacity)
	storage := directory.NewAbstractDirectory(backend)
	require.NoError(t, storage.Read())

	gen := dirent.NewGenerator(dirent.DefaultEntropySource)
	ro, err := Open(storage, table, dev, testClusterSize, 0, gen, 0, true, true, new(bool))
	require.NoError(t, err)

	_, err = ro.AddFile("y.txt")
	require.Error(t, err)
	require.Error(t, ro.Remove("x.txt"))
}

func TestHandleRejectsOperationsAfterFilesystemClosed(t *testing.T) {
	root, _, _ := newTestRoot(t)
	f, err := root.AddFile("a.txt")
	require.NoError(t, err)

	*root.closed = true

	require.ErrorIs(t, root.Flush(), fatErrors.ErrAlreadyClosed)
	_, err = root.AddFile("b.txt")
	require.ErrorIs(t, err, fatErrors.ErrAlreadyClosed)
	require.ErrorIs(t, f.Flush(), fatErrors.ErrAlreadyClosed)
}

func TestFileHandleRejectsOperationsAfterRemove(t *testing.T) {
	root, _, _ := newTestRoot(t)
	f, err := root.AddFile("removable.txt")
	require.NoError(t, err)

	require.NoError(t, root.Remove("removable.txt"))

	require.ErrorIs(t, f.Write(0, []byte("x")), fatErrors.ErrAlreadyInvalid)
}

func TestSubdirectoryHandleRejectsOperationsAfterRemove(t *testing.T) {
	root, _, _ := newTestRoot(t)
	sub, err := root.AddDirectory("removable")
	require.NoError(t, err)

	require.NoError(t, root.Remove("removable"))

	_, err = sub.AddFile("x.txt")
	require.ErrorIs(t, err, fatErrors.ErrAlreadyInvalid)
}

func TestHandleSurvivesMoveToAnotherDirectory(t *testing.T) {
	root, _, _ := newTestRoot(t)
	f, err := root.AddFile("movable.txt")
	require.NoError(t, err)

	dest, err := root.AddDirectory("dest")
	require.NoError(t, err)

	require.NoError(t, root.MoveTo("movable.txt", dest, "renamed.txt"))

	require.NoError(t, f.Write(0, []byte("still works")))
	got := make([]byte, len("still works"))
	require.NoError(t, f.Read(0, got))
	require.Equal(t, "still works", string(got))

	entry, ok := dest.GetEntry("renamed.txt")
	require.True(t, ok)
	require.Equal(t, entry.FileSize, uint32(len("still works")))
}
