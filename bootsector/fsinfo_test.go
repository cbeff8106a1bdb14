package bootsector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFSInfoMarksHintsUnknown(t *testing.T) {
	fsi := NewFSInfo()
	require.Equal(t, uint32(UnknownFreeCount), fsi.FreeClusterCount())
	require.Equal(t, uint32(UnknownNextFree), fsi.NextFreeCluster())
}

func TestFSInfoRoundTrip(t *testing.T) {
	fsi := NewFSInfo()
	fsi.SetFreeClusterCount(12345)
	fsi.SetNextFreeCluster(67)

	raw, err := fsi.Bytes()
	require.NoError(t, err)
	require.Len(t, raw, 512)

	parsed, err := ParseFSInfo(raw)
	require.NoError(t, err)
	require.Equal(t, uint32(12345), parsed.FreeClusterCount())
	require.Equal(t, uint32(67), parsed.NextFreeCluster())
}

func TestParseFSInfoRejectsBadSignature(t *testing.T) {
	buf := make([]byte, 512)
	_, err := ParseFSInfo(buf)
	require.Error(t, err)
}

func TestParseFSInfoRejectsWrongLength(t *testing.T) {
	_, err := ParseFSInfo(make([]byte, 100))
	require.Error(t, err)
}

func TestVerifyAcceptsUnknownCount(t *testing.T) {
	fsi := NewFSInfo()
	require.NoError(t, fsi.Verify(999))
}

func TestVerifyDetectsMismatch(t *testing.T) {
	fsi := NewFSInfo()
	fsi.SetFreeClusterCount(100)
	require.NoError(t, fsi.Verify(100))
	require.Error(t, fsi.Verify(99))
}
