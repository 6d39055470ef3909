package tensor

import "math/rand"

// Randn creates a tensor with values drawn from N(0, 1).
//
// A nil rng falls back to the global math/rand source; pass a seeded
// generator for reproducible draws.
func Randn(shape Shape, rng *rand.Rand) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		if rng != nil {
			t.data[i] = rng.NormFloat64()
		} else {
			t.data[i] = rand.NormFloat64() //nolint:gosec // G404: weights and test inputs, not security-critical
		}
	}
	return t
}

// Uniform creates a tensor with values drawn from U(low, high).
// A nil rng falls back to the global math/rand source.
func Uniform(shape Shape, low, high float64, rng *rand.Rand) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		var u float64
		if rng != nil {
			u = rng.Float64()
		} else {
			u = rand.Float64() //nolint:gosec // G404: weights and test inputs, not security-critical
		}
		t.data[i] = low + (high-low)*u
	}
	return t
}
