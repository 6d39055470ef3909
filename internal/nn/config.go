package nn

import (
	"fmt"
)

// DefaultEpsilon is the stabilising constant added inside norms and to the
// sharpened magnitude.
const DefaultEpsilon = 1e-12

// Config holds the construction parameters of an SCS layer.
//
// Output spatial size for input height H (and likewise width):
//
//	out = (H + 2*Padding - KernelSize) / Stride + 1
//
// The division must be exact; see OutputSize.
type Config struct {
	InChannels  int     // Channels of the input tensor
	OutChannels int     // Number of kernels
	KernelSize  int     // Square kernel side
	Stride      int     // Window step, > 0
	Padding     int     // Zero padding on every spatial side, >= 0
	Epsilon     float64 // Stabilising constant, > 0
}

// DefaultConfig returns a config with stride 1, no padding and the default
// epsilon.
func DefaultConfig(inChannels, outChannels, kernelSize int) Config {
	return Config{
		InChannels:  inChannels,
		OutChannels: outChannels,
		KernelSize:  kernelSize,
		Stride:      1,
		Padding:     0,
		Epsilon:     DefaultEpsilon,
	}
}

// Validate checks that every field is in range.
func (c Config) Validate() error {
	switch {
	case c.InChannels <= 0 || c.OutChannels <= 0:
		return fmt.Errorf("%w: channels must be positive, got in=%d out=%d",
			ErrInvalidConfig, c.InChannels, c.OutChannels)
	case c.KernelSize <= 0:
		return fmt.Errorf("%w: kernel size must be positive, got %d", ErrInvalidConfig, c.KernelSize)
	case c.Stride <= 0:
		return fmt.Errorf("%w: stride must be positive, got %d", ErrInvalidConfig, c.Stride)
	case c.Padding < 0:
		return fmt.Errorf("%w: padding must be non-negative, got %d", ErrInvalidConfig, c.Padding)
	case !(c.Epsilon > 0):
		return fmt.Errorf("%w: epsilon must be positive, got %g", ErrInvalidConfig, c.Epsilon)
	}
	return nil
}

// OutputSize returns the spatial output size for an input of height h and
// width w.
//
// Returns ErrInvalidShape when the padded input is smaller than the kernel
// or when the stride does not divide the span evenly.
func (c Config) OutputSize(h, w int) (outH, outW int, err error) {
	outH, err = c.outputDim(h)
	if err != nil {
		return 0, 0, fmt.Errorf("height: %w", err)
	}
	outW, err = c.outputDim(w)
	if err != nil {
		return 0, 0, fmt.Errorf("width: %w", err)
	}
	return outH, outW, nil
}

func (c Config) outputDim(size int) (int, error) {
	span := size + 2*c.Padding - c.KernelSize
	if span < 0 {
		return 0, fmt.Errorf("%w: padded size %d is smaller than kernel %d",
			ErrInvalidShape, size+2*c.Padding, c.KernelSize)
	}
	if span%c.Stride != 0 {
		return 0, fmt.Errorf("%w: (%d + 2*%d - %d) is not divisible by stride %d",
			ErrInvalidShape, size, c.Padding, c.KernelSize, c.Stride)
	}
	return span/c.Stride + 1, nil
}

// KernelFanIn returns I*K*K.
func (c Config) KernelFanIn() int {
	return c.InChannels * c.KernelSize * c.KernelSize
}

// KernelFanOut returns O*K*K.
func (c Config) KernelFanOut() int {
	return c.OutChannels * c.KernelSize * c.KernelSize
}
