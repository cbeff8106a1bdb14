package blockdev

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	fatErrors "github.com/gofatfs/fatfs/errors"
)

func newTestFileDevice(t *testing.T, size int, readOnly bool) *FileDevice {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))

	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	return NewFileDevice(f, 512, readOnly)
}

func TestFileDeviceReadWriteRoundTrip(t *testing.T) {
	dev := newTestFileDevice(t, 16, false)

	require.NoError(t, dev.WriteAt(4, []byte{1, 2, 3, 4}))
	got := make([]byte, 4)
	require.NoError(t, dev.ReadAt(4, got))
	require.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestFileDeviceRejectsReadPastSize(t *testing.T) {
	dev := newTestFileDevice(t, 16, false)
	require.Error(t, dev.ReadAt(0, make([]byte, 17)))
}

func TestFileDeviceAllowsWritesPastCurrentSize(t *testing.T) {
	dev := newTestFileDevice(t, 16, false)
	require.NoError(t, dev.WriteAt(16, []byte{1, 2, 3, 4}))

	size, err := dev.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(20), size)
}

func TestFileDeviceRejectsWritesWhenReadOnly(t *testing.T) {
	dev := newTestFileDevice(t, 16, true)
	err := dev.WriteAt(0, []byte{1, 2, 3, 4})
	require.ErrorIs(t, err, fatErrors.ErrReadOnly)
}

func TestFileDeviceCloseIsIdempotentAndBlocksFurtherUse(t *testing.T) {
	dev := newTestFileDevice(t, 16, false)
	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())
	require.True(t, dev.IsClosed())

	require.ErrorIs(t, dev.ReadAt(0, make([]byte, 1)), fatErrors.ErrAlreadyClosed)
}

func TestFileDeviceFlushSyncsToDisk(t *testing.T) {
	dev := newTestFileDevice(t, 16, false)
	require.NoError(t, dev.WriteAt(0, []byte{1, 2, 3, 4}))
	require.NoError(t, dev.Flush())
}
