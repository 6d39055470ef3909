// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand"

	"github.com/born-ml/scs/internal/tensor"
)

// Tensor is a strided float64 tensor.
type Tensor = tensor.Tensor

// Shape represents the dimensions of a tensor.
// Example: Shape{1, 5, 32, 32} is a batch of one 5-channel 32×32 image.
type Shape = tensor.Shape

// New creates a zero-filled tensor, returning an error for an invalid shape.
func New(shape Shape) (*Tensor, error) {
	return tensor.New(shape)
}

// Zeros creates a zero-filled tensor. Panics on an invalid shape.
func Zeros(dims ...int) *Tensor {
	return tensor.Zeros(dims...)
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float64) *Tensor {
	return tensor.Full(shape, value)
}

// FromSlice copies data into a new tensor of the given shape.
//
// Example:
//
//	x, err := tensor.FromSlice([]float64{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})
func FromSlice(data []float64, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}

// Randn draws a tensor from N(0, 1). A nil rng uses the global source.
func Randn(shape Shape, rng *rand.Rand) *Tensor {
	return tensor.Randn(shape, rng)
}

// Uniform draws a tensor from U(low, high). A nil rng uses the global source.
func Uniform(shape Shape, low, high float64, rng *rand.Rand) *Tensor {
	return tensor.Uniform(shape, low, high, rng)
}

// MaxAbsDiff returns max|a-b|, or an error if the shapes differ.
func MaxAbsDiff(a, b *Tensor) (float64, error) {
	return tensor.MaxAbsDiff(a, b)
}

// AllClose reports whether |a-b| <= atol + rtol*|b| holds elementwise.
func AllClose(a, b *Tensor, rtol, atol float64) bool {
	return tensor.AllClose(a, b, rtol, atol)
}

// Equal reports whether a and b have the same shape and bit-identical elements.
func Equal(a, b *Tensor) bool {
	return tensor.Equal(a, b)
}
