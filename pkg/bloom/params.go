package bloom

import (
	"fmt"
	"math"
)

const (
	ln2        = 0.6931471805599453
	ln2Squared = 0.4804530139182014
)

// Params describe how a scalable filter grows.
type Params struct {
	// InitialCapacity is the key count of the first generation.
	InitialCapacity uint64
	// Probability is the false positive bound of the whole filter.
	Probability float64
	// ScaleSize multiplies the capacity of each new generation.
	ScaleSize uint64
	// ProbabilityReduction tightens each new generation's probability.
	ProbabilityReduction float64
}

// DefaultParams mirror the server defaults.
func DefaultParams() Params {
	return Params{
		InitialCapacity:      100000,
		Probability:          1e-4,
		ScaleSize:            4,
		ProbabilityReduction: 0.9,
	}
}

func (p Params) Validate() error {
	switch {
	case p.InitialCapacity == 0:
		return fmt.Errorf("%w: capacity must be positive", ErrBadParams)
	case p.Probability <= 0 || p.Probability >= 1:
		return fmt.Errorf("%w: probability %v out of (0, 1)", ErrBadParams, p.Probability)
	case p.ScaleSize < 2:
		return fmt.Errorf("%w: scale size %d", ErrBadParams, p.ScaleSize)
	case p.ProbabilityReduction <= 0 || p.ProbabilityReduction >= 1:
		return fmt.Errorf("%w: probability reduction %v out of (0, 1)", ErrBadParams, p.ProbabilityReduction)
	}
	return nil
}

// generation returns the capacity and probability of generation idx.
func (p Params) generation(idx int) (uint64, float64) {
	capacity := p.InitialCapacity
	prob := (1 - p.ProbabilityReduction) * p.Probability
	for i := 0; i < idx; i++ {
		capacity *= p.ScaleSize
		prob *= p.ProbabilityReduction
	}
	return capacity, prob
}

// OptimalParams returns the bit count and hash count for a classic Bloom
// filter holding capacity keys at probability prob. bits is always a
// multiple of k.
func OptimalParams(capacity uint64, prob float64) (bits uint64, k uint32) {
	if capacity == 0 {
		capacity = 1
	}

	raw := math.Ceil(-float64(capacity) * math.Log(prob) / ln2Squared)
	k = uint32(math.Round(ln2 * raw / float64(capacity)))
	if k < 1 {
		k = 1
	}

	part := uint64(math.Ceil(raw / float64(k)))
	if part == 0 {
		part = 1
	}
	return part * uint64(k), k
}

// EstimateFalsePositiveRate is (1 - e^(-kn/m))^k.
func EstimateFalsePositiveRate(bits uint64, k uint32, count uint64) float64 {
	if bits == 0 || count == 0 {
		return 0
	}
	kf := float64(k)
	return math.Pow(1-math.Exp(-kf*float64(count)/float64(bits)), kf)
}
