package dirent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeLFNRoundTrip(t *testing.T) {
	names := []string{
		"short.txt",
		"Hello World.txt",
		"a name with spaces and a very long extension-ish tail.abcdef",
		"café-日本語-ñ.txt",
	}

	for _, name := range names {
		sn, err := NewGenerator(DefaultEntropySource).Generate()
		require.NoError(t, err)
		checksum := sn.CheckSum()

		slots, err := EncodeLFN(name, checksum)
		require.NoError(t, err, name)
		require.NotEmpty(t, slots)

		for _, s := range slots {
			require.Equal(t, checksum, s.Checksum)
		}
		require.True(t, slots[0].Last, "first on-disk slot must carry the highest ordinal with the last-entry bit set")

		got, err := DecodeLFN(slots)
		require.NoError(t, err, name)
		require.Equal(t, name, got)
	}
}

func TestEncodeLFNOrdinalsAscendFromDiskOrder(t *testing.T) {
	name := strings.Repeat("x", 40) // needs 4 slots (ceil(40/13))
	slots, err := EncodeLFN(name, 0x42)
	require.NoError(t, err)
	require.Len(t, slots, 4)

	// On-disk order is highest ordinal first.
	require.Equal(t, uint8(4), slots[0].Ordinal)
	require.True(t, slots[0].Last)
	require.Equal(t, uint8(3), slots[1].Ordinal)
	require.Equal(t, uint8(2), slots[2].Ordinal)
	require.Equal(t, uint8(1), slots[3].Ordinal)
}

func TestLFNSlotBytesRoundTrip(t *testing.T) {
	slots, err := EncodeLFN("roundtrip.bin", 0x99)
	require.NoError(t, err)

	for _, s := range slots {
		raw := s.ToBytes()
		require.Len(t, raw, LFNEntrySize)
		require.Equal(t, uint8(LongNameAttr), raw[11])

		parsed := ParseLFNSlot(raw)
		require.Equal(t, s.Checksum, parsed.Checksum)
		require.Equal(t, s.Units, parsed.Units)
		require.Equal(t, s.Last, parsed.Last)
	}
}

func TestEncodeLFNRejectsOverlongName(t *testing.T) {
	_, err := EncodeLFN(strings.Repeat("x", 256), 0)
	require.Error(t, err)
}

// TestEncodeDecodeLFNExactMultipleOfThirteen exercises the case where the
// name fills every code-unit slot with no room for the 0x0000 terminator.
func TestEncodeDecodeLFNExactMultipleOfThirteen(t *testing.T) {
	name := strings.Repeat("y", 39) // 3 * 13
	slots, err := EncodeLFN(name, 0x11)
	require.NoError(t, err)
	require.Len(t, slots, 3)

	got, err := DecodeLFN(slots)
	require.NoError(t, err)
	require.Equal(t, name, got)
}
