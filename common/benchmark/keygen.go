package benchmark

import (
	"math"
	mrand "math/rand"
	"sync/atomic"
)

// KeyDistribution defines how keys are accessed.
type KeyDistribution string

const (
	DistUniform    KeyDistribution = "uniform"    // all keys equally likely
	DistZipfian    KeyDistribution = "zipfian"    // 80/20 rule (realistic)
	DistSequential KeyDistribution = "sequential" // sequential access
	DistLatest     KeyDistribution = "latest"     // recent keys (time-series)
)

// KeyGenerator generates uint64 keys according to a distribution. Keys
// are the tree's native type, unlike a byte-keyed storage engine, so
// there is no padding/formatting step: the generated index value IS the
// key.
type KeyGenerator struct {
	numKeys      int
	distribution KeyDistribution
	rng          *mrand.Rand

	zipf *mrand.Zipf

	seqCounter atomic.Int64
}

func NewKeyGenerator(numKeys int, distribution KeyDistribution, seed int64) *KeyGenerator {
	rng := mrand.New(mrand.NewSource(seed))

	kg := &KeyGenerator{
		numKeys:      numKeys,
		distribution: distribution,
		rng:          rng,
	}

	if distribution == DistZipfian {
		kg.zipf = mrand.NewZipf(rng, 1.1, 1, uint64(numKeys))
	}

	return kg
}

func (kg *KeyGenerator) NextKey() uint64 {
	var keyNum int

	switch kg.distribution {
	case DistUniform:
		keyNum = kg.rng.Intn(kg.numKeys)

	case DistZipfian:
		keyNum = int(kg.zipf.Uint64())

	case DistSequential:
		keyNum = int(kg.seqCounter.Add(1) % int64(kg.numKeys))

	case DistLatest:
		rang := kg.numKeys / 10
		if rang < 100 {
			rang = 100
		}
		offset := int(math.Abs(kg.rng.NormFloat64()) * float64(rang))
		keyNum = kg.numKeys - 1 - offset
		if keyNum < 0 {
			keyNum = 0
		}

	default:
		keyNum = kg.rng.Intn(kg.numKeys)
	}

	return uint64(keyNum)
}

// GenerateSequential returns the n-th key in strict sequential order,
// used for preload so the tree fills left-to-right.
func (kg *KeyGenerator) GenerateSequential(n int) uint64 {
	return uint64(n)
}
