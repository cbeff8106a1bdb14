package dirent

import (
	"math/rand"

	fatErrors "github.com/gofatfs/fatfs/errors"
)

// invalidCharPool is the 35-byte pool of bytes that are each forbidden in a
// valid 8.3 name (control bytes and '"', '*', ':', '<', '>'), so no host OS
// would accept the generated buffer as a "real" 8.3 name -- guaranteeing the
// generated entry is reachable only through its LFN.
var invalidCharPool = []byte{
	0x01, 0x02, 0x03, 0x04, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D,
	0x0E, 0x0F, 0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19,
	0x1A, 0x1B, 0x1C, 0x1D, 0x1E, 0x1F, '"', '*', ':', '<', '>',
}

// EntropySource abstracts the randomness the short-name generator needs, so
// tests can supply a deterministic sequence instead of the real math/rand
// global source.
type EntropySource interface {
	Intn(n int) int
}

// defaultEntropySource adapts the package-level math/rand functions, used
// whenever no seeded determinism is needed.
type defaultEntropySource struct{}

func (defaultEntropySource) Intn(n int) int { return rand.Intn(n) }

// DefaultEntropySource is the EntropySource used when none is supplied.
var DefaultEntropySource EntropySource = defaultEntropySource{}

// Generator produces short names that are deliberately not valid 8.3 names:
// every name it returns must be looked up through its LFN plus the
// short-name fallback, never opened directly by a legacy consumer.
type Generator struct {
	entropy EntropySource
}

// NewGenerator builds a Generator using the given entropy source. Pass
// DefaultEntropySource for production use; tests should inject a
// deterministic one.
func NewGenerator(entropy EntropySource) *Generator {
	if entropy == nil {
		entropy = DefaultEntropySource
	}
	return &Generator{entropy: entropy}
}

// Generate produces an 11-byte buffer: a random slash position
// `p` in [0,7], positions 0..7 filled from the invalid-character pool except
// `p` which is forced to '/', and positions 8..10 set to "ifl". 0xE5 can
// never appear since it is not in the pool and '/' isn't 0xE5 either, but the
// check is kept explicit since it is a hard correctness requirement, not an
// incidental property of the current pool contents.
func (g *Generator) Generate() (ShortName, error) {
	var sn ShortName

	p := g.entropy.Intn(8)
	for i := 0; i < 8; i++ {
		var b byte
		if i == p {
			b = '/'
		} else {
			b = invalidCharPool[g.entropy.Intn(len(invalidCharPool))]
		}
		if b == 0xE5 {
			return ShortName{}, fatErrors.ErrInvalidArgument.WithMessage(
				"generated short name collided with the deleted-entry marker")
		}
		sn[i] = b
	}

	sn[8], sn[9], sn[10] = 'i', 'f', 'l'
	return sn, nil
}

// GenerateUnique repeatedly calls Generate, retrying on a collision against
// `taken`, until it produces a ShortName not already present. Collisions are
// rare by construction but still possible, so the retry loop is required.
func (g *Generator) GenerateUnique(taken func(ShortName) bool) (ShortName, error) {
	const maxAttempts = 1000
	for i := 0; i < maxAttempts; i++ {
		sn, err := g.Generate()
		if err != nil {
			continue
		}
		if !taken(sn) {
			return sn, nil
		}
	}
	return ShortName{}, fatErrors.ErrInvalidArgument.WithMessage(
		"could not generate a unique short name after many attempts")
}
