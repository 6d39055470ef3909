// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense float64 tensors consumed by the SCS
// operators.
//
// # Overview
//
// A Tensor is a strided view over a flat float64 buffer in row-major (NCHW)
// order. Reshape, Permute and AsStrided return views without copying;
// Contiguous and Clone materialize them.
//
// # Basic Usage
//
//	import (
//	    "math/rand"
//
//	    "github.com/born-ml/scs/tensor"
//	)
//
//	func main() {
//	    rng := rand.New(rand.NewSource(1))
//	    x := tensor.Randn(tensor.Shape{1, 5, 32, 32}, rng)
//	    y := x.Reshape(1, 5, -1)  // view, shares storage
//	    _ = y
//	}
//
// # Comparison
//
// MaxAbsDiff, AllClose and Equal compare tensors of the same shape and are
// what the engine equivalence checks are built on.
package tensor
