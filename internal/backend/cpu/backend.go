// Package cpu implements the pure Go CPU backend for the SCS operators.
//
// Operations follow PyTorch semantics for the subset the operators need:
// broadcasting element-wise arithmetic, multi-axis reductions, zero padding,
// conv2d, avg_pool2d with a divisor override and two-operand einsum.
//
// Shape errors in operands are programmer errors and panic with a message
// prefixed by the operation name; callers validate user input first.
package cpu

import (
	"github.com/born-ml/scs/internal/parallel"
)

// CPUBackend implements tensor operations on CPU.
//
// A CPUBackend holds no mutable state and may be shared by concurrent
// forward passes.
type CPUBackend struct {
	par parallel.Config
}

// New creates a new CPU backend using all available cores.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with explicit parallelism settings.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{par: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Parallel returns the parallelism settings.
func (cpu *CPUBackend) Parallel() parallel.Config {
	return cpu.par
}
