// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/scs/internal/backend/cpu"
	"github.com/born-ml/scs/internal/parallel"
	"github.com/born-ml/scs/nn"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// ParallelConfig controls how the backend splits work across goroutines.
type ParallelConfig = parallel.Config

// Compile-time check that Backend implements nn.Backend.
var _ nn.Backend = (*Backend)(nil)

// New creates a new CPU backend using all available cores.
//
// Example:
//
//	import (
//	    "github.com/born-ml/scs/backend/cpu"
//	    "github.com/born-ml/scs/nn"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    layer, err := nn.NewSCS(nn.DefaultConfig(5, 5, 3), nn.PatchEngine{}, backend, nil)
//	}
func New() *Backend {
	return internalcpu.New()
}

// NewWithConfig creates a CPU backend with explicit parallelism settings.
func NewWithConfig(cfg ParallelConfig) *Backend {
	return internalcpu.NewWithConfig(cfg)
}

// DefaultParallelConfig returns one worker per CPU.
func DefaultParallelConfig() ParallelConfig {
	return parallel.DefaultConfig()
}

// SequentialConfig returns a config that never spawns goroutines.
func SequentialConfig() ParallelConfig {
	return parallel.Sequential()
}
