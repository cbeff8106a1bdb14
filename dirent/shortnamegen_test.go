package dirent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// sequenceEntropy returns a fixed sequence of Intn results, wrapping around;
// lets tests drive the generator deterministically instead of through
// math/rand.
type sequenceEntropy struct {
	seq []int
	pos int
}

func (s *sequenceEntropy) Intn(n int) int {
	v := s.seq[s.pos%len(s.seq)] % n
	s.pos++
	return v
}

func TestGeneratorProducesSlashAndSuffix(t *testing.T) {
	gen := NewGenerator(&sequenceEntropy{seq: []int{3, 0, 1, 2, 3, 4, 5, 6, 7}})
	sn, err := gen.Generate()
	require.NoError(t, err)
	require.Equal(t, byte('/'), sn[3])
	require.Equal(t, byte('i'), sn[8])
	require.Equal(t, byte('f'), sn[9])
	require.Equal(t, byte('l'), sn[10])
}

func TestGeneratorNeverCollidesWithDeletedMarker(t *testing.T) {
	gen := NewGenerator(DefaultEntropySource)
	for i := 0; i < 1000; i++ {
		sn, err := gen.Generate()
		require.NoError(t, err)
		for _, b := range sn {
			require.NotEqual(t, byte(DeletedMarker), b)
		}
	}
}

func TestGenerateUniqueRetriesOnCollision(t *testing.T) {
	gen := NewGenerator(DefaultEntropySource)
	first, err := gen.Generate()
	require.NoError(t, err)

	taken := func(sn ShortName) bool { return sn == first }
	second, err := gen.GenerateUnique(taken)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}
