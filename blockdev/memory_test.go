package blockdev

import (
	"testing"

	"github.com/stretchr/testify/require"

	fatErrors "github.com/gofatfs/fatfs/errors"
)

func TestMemoryDeviceReadWriteRoundTrip(t *testing.T) {
	dev := NewMemoryDevice(make([]byte, 16), 4, false)

	require.NoError(t, dev.WriteAt(4, []byte{1, 2, 3, 4}))
	got := make([]byte, 4)
	require.NoError(t, dev.ReadAt(4, got))
	require.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestMemoryDeviceRejectsOutOfBoundsAccess(t *testing.T) {
	dev := NewMemoryDevice(make([]byte, 16), 4, false)

	require.Error(t, dev.ReadAt(0, make([]byte, 17)))
	require.Error(t, dev.WriteAt(10, make([]byte, 10)))
	require.Error(t, dev.ReadAt(-1, make([]byte, 1)))
}

func TestMemoryDeviceRejectsWritesWhenReadOnly(t *testing.T) {
	dev := NewMemoryDevice(make([]byte, 4), 4, true)
	err := dev.WriteAt(0, []byte{1, 2, 3, 4})
	require.ErrorIs(t, err, fatErrors.ErrReadOnly)
}

func TestMemoryDeviceRejectsOperationsAfterClose(t *testing.T) {
	dev := NewMemoryDevice(make([]byte, 4), 4, false)
	require.False(t, dev.IsClosed())

	require.NoError(t, dev.Close())
	require.True(t, dev.IsClosed())

	require.ErrorIs(t, dev.ReadAt(0, make([]byte, 1)), fatErrors.ErrAlreadyClosed)
	require.ErrorIs(t, dev.WriteAt(0, []byte{1}), fatErrors.ErrAlreadyClosed)
	require.ErrorIs(t, dev.Flush(), fatErrors.ErrAlreadyClosed)
	_, err := dev.Size()
	require.ErrorIs(t, err, fatErrors.ErrAlreadyClosed)
}

func TestMemoryDeviceSizeAndSectorSize(t *testing.T) {
	dev := NewMemoryDevice(make([]byte, 512), 128, false)
	size, err := dev.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(512), size)
	require.Equal(t, uint32(128), dev.SectorSize())
}

func TestMemoryDeviceBytesExposesUnderlyingStorage(t *testing.T) {
	data := []byte{9, 9, 9}
	dev := NewMemoryDevice(data, 1, false)
	require.NoError(t, dev.WriteAt(0, []byte{1, 2, 3}))
	require.Equal(t, []byte{1, 2, 3}, dev.Bytes())
}

func TestMemoryDeviceZeroLengthAccessIsNoop(t *testing.T) {
	dev := NewMemoryDevice(make([]byte, 4), 4, false)
	require.NoError(t, dev.ReadAt(100, nil))
	require.NoError(t, dev.WriteAt(100, nil))
}
