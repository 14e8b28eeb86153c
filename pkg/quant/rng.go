package quant

import "math/rand/v2"

// seedMix decorrelates the two PCG state words derived from a single seed.
const seedMix = 0x9E3779B97F4A7C15

// NewRand returns a deterministic generator for the given seed.
// Every component owns its generator; nothing reads the global source.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^seedMix))
}

// DeriveSeed draws a child seed from a parent generator.
func DeriveSeed(r *rand.Rand) uint64 {
	return r.Uint64()
}

// Uniform draws from [lo, hi). Returns lo when hi <= lo.
func Uniform(r *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + r.Float64()*(hi-lo)
}

// Gauss draws from N(mean, sd).
func Gauss(r *rand.Rand, mean, sd float64) float64 {
	return mean + r.NormFloat64()*sd
}
