// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for the SCS operators.
//
// # Overview
//
// The backend implements the primitive set both SCS engines are written
// against:
//   - Broadcasting element-wise arithmetic and scalar ops
//   - Multi-axis sums and vector norms
//   - Zero padding, conv2d and avg_pool2d with a divisor override
//   - Two-operand einsum
//
// All computation is float64.
//
// # Thread Safety
//
// A Backend holds no mutable state and is safe for concurrent use. Large
// operations are split across goroutines according to its ParallelConfig.
package cpu
