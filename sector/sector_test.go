package sector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gofatfs/fatfs/blockdev"
)

func TestReadLoadsBufferAndClearsDirty(t *testing.T) {
	dev := blockdev.NewMemoryDevice([]byte{1, 2, 3, 4}, 4, false)
	s := New(dev, 0, 4)

	require.NoError(t, s.Read())
	require.Equal(t, []byte{1, 2, 3, 4}, s.Bytes())
	require.False(t, s.Dirty())
}

func TestWriteIsNoopWhenClean(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	dev := blockdev.NewMemoryDevice(data, 4, false)
	s := New(dev, 0, 4)
	require.NoError(t, s.Read())

	require.NoError(t, s.Write())
	require.Equal(t, []byte{1, 2, 3, 4}, dev.Bytes())
}

func TestSetBytesMarksDirtyAndWritePersists(t *testing.T) {
	data := make([]byte, 4)
	dev := blockdev.NewMemoryDevice(data, 4, false)
	s := New(dev, 0, 4)
	require.NoError(t, s.Read())

	s.SetBytes(0, []byte{9, 9, 9, 9})
	require.True(t, s.Dirty())

	require.NoError(t, s.Write())
	require.False(t, s.Dirty())
	require.Equal(t, []byte{9, 9, 9, 9}, dev.Bytes())
}

func TestGetSet16And32(t *testing.T) {
	dev := blockdev.NewMemoryDevice(make([]byte, 8), 8, false)
	s := New(dev, 0, 8)

	s.Set16(0, 0xBEEF)
	require.Equal(t, uint16(0xBEEF), s.Get16(0))

	s.Set32(4, 0xDEADBEEF)
	require.Equal(t, uint32(0xDEADBEEF), s.Get32(4))
	require.True(t, s.Dirty())
}

func TestOffsetIsPreserved(t *testing.T) {
	dev := blockdev.NewMemoryDevice(make([]byte, 16), 8, false)
	s := New(dev, 8, 4)
	require.Equal(t, int64(8), s.Offset())
}
