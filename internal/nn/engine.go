package nn

import (
	"fmt"

	"github.com/born-ml/scs/internal/tensor"
)

// Backend is the numerical substrate the SCS engines run on.
//
// Element-wise binary operations broadcast with NumPy rules. Shape errors
// are programmer errors and panic; engines validate their inputs first.
// internal/backend/cpu.CPUBackend implements it.
type Backend interface {
	Name() string

	Add(a, b *tensor.Tensor) *tensor.Tensor
	Sub(a, b *tensor.Tensor) *tensor.Tensor
	Mul(a, b *tensor.Tensor) *tensor.Tensor
	Div(a, b *tensor.Tensor) *tensor.Tensor
	Pow(base, exponent *tensor.Tensor) *tensor.Tensor

	Square(x *tensor.Tensor) *tensor.Tensor
	Sqrt(x *tensor.Tensor) *tensor.Tensor
	Abs(x *tensor.Tensor) *tensor.Tensor
	Sign(x *tensor.Tensor) *tensor.Tensor
	AddScalar(x *tensor.Tensor, s float64) *tensor.Tensor
	MulScalar(x *tensor.Tensor, s float64) *tensor.Tensor
	DivScalar(x *tensor.Tensor, s float64) *tensor.Tensor
	ClampMin(x *tensor.Tensor, lo float64) *tensor.Tensor

	SumDims(x *tensor.Tensor, dims []int, keepDim bool) *tensor.Tensor
	VectorNorm(x *tensor.Tensor, dims []int, keepDim bool) *tensor.Tensor

	Pad2D(x *tensor.Tensor, padding int) *tensor.Tensor
	Einsum(subscripts string, a, b *tensor.Tensor) (*tensor.Tensor, error)
	Conv2D(input, kernel *tensor.Tensor, stride, padding int) *tensor.Tensor
	AvgPool2D(input *tensor.Tensor, kernelSize, stride, padding, divisorOverride int) *tensor.Tensor
}

// Engine is a strategy for computing the SCS forward pass.
//
// Engines are stateless; the same value may serve many layers. Every engine
// computes the same function of (config, parameters, input) up to
// floating-point tolerance.
type Engine interface {
	// Name identifies the engine in logs and reports.
	Name() string

	// Layout is the kernel layout the engine works in natively. Engines
	// accept either layout and view the kernel as needed.
	Layout() Layout

	// Forward maps x [N, I, H, W] to [N, O, Ho, Wo]. It returns
	// ErrInvalidConfig for an invalid cfg, ErrParameterMismatch when params
	// do not fit cfg and ErrInvalidShape for an unusable input.
	Forward(b Backend, cfg Config, params *ParameterSet, x *tensor.Tensor) (*tensor.Tensor, error)
}

// checkInput validates cfg, params and x and returns the output spatial size.
func checkInput(op string, cfg Config, params *ParameterSet, x *tensor.Tensor) (outH, outW int, err error) {
	if err := cfg.Validate(); err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	if params == nil {
		return 0, 0, fmt.Errorf("%s: %w: nil parameter set", op, ErrInvalidConfig)
	}
	if err := params.checkAgainst(cfg); err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	if x == nil {
		return 0, 0, fmt.Errorf("%s: %w: nil input", op, ErrInvalidShape)
	}
	shape := x.Shape()
	if len(shape) != 4 {
		return 0, 0, shapeErrorf(op, shape, "want 4D input [N, C, H, W]")
	}
	if shape[1] != cfg.InChannels {
		return 0, 0, shapeErrorf(op, shape, "want %d input channels", cfg.InChannels)
	}
	outH, outW, err = cfg.OutputSize(shape[2], shape[3])
	if err != nil {
		return 0, 0, &ShapeError{Op: op, Got: shape, Detail: err.Error()}
	}
	return outH, outW, nil
}

// sharpen returns sign(y) * (|y| + eps)^exponent with the exponent
// broadcast per output channel.
func sharpen(b Backend, params *ParameterSet, y *tensor.Tensor, eps float64) *tensor.Tensor {
	exponent := params.Exponent(b).Reshape(1, -1, 1, 1)
	magnitude := b.Pow(b.AddScalar(b.Abs(y), eps), exponent)
	return b.Mul(b.Sign(y), magnitude)
}
