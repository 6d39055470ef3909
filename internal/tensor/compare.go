package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// MaxAbsDiff returns max|a-b| over all elements.
// Returns an error if the shapes differ.
func MaxAbsDiff(a, b *Tensor) (float64, error) {
	if !a.Shape().Equal(b.Shape()) {
		return 0, fmt.Errorf("max abs diff: shape mismatch %v vs %v", a.Shape(), b.Shape())
	}
	return floats.Distance(a.Data(), b.Data(), math.Inf(1)), nil
}

// AllClose reports whether |a-b| <= atol + rtol*|b| holds elementwise.
func AllClose(a, b *Tensor, rtol, atol float64) bool {
	if !a.Shape().Equal(b.Shape()) {
		return false
	}
	ad, bd := a.Data(), b.Data()
	for i := range ad {
		if math.Abs(ad[i]-bd[i]) > atol+rtol*math.Abs(bd[i]) {
			return false
		}
	}
	return true
}

// Equal reports whether a and b have the same shape and bit-identical elements.
func Equal(a, b *Tensor) bool {
	if !a.Shape().Equal(b.Shape()) {
		return false
	}
	ad, bd := a.Data(), b.Data()
	for i := range ad {
		if math.Float64bits(ad[i]) != math.Float64bits(bd[i]) {
			return false
		}
	}
	return true
}
