package nn

import (
	"fmt"

	"github.com/born-ml/scs/internal/tensor"
)

// EpsilonPlacement selects where epsilon enters the input norm of ConvEngine.
type EpsilonPlacement int

const (
	// EpsilonInRoot computes sqrt(sumpool(x^2) + eps).
	EpsilonInRoot EpsilonPlacement = iota
	// EpsilonOnInput computes sqrt(sumpool((x + eps)^2)), floored at eps.
	// Padding is added after eps, so windows lying wholly in the padding
	// (padding >= kernel size) have a zero norm and output 0.
	EpsilonOnInput
)

// String returns the placement name.
func (p EpsilonPlacement) String() string {
	switch p {
	case EpsilonInRoot:
		return "in-root"
	case EpsilonOnInput:
		return "on-input"
	default:
		return fmt.Sprintf("EpsilonPlacement(%d)", int(p))
	}
}

// ConvEngine computes SCS with one convolution and one sum-pool instead of
// materialising patches.
//
// Steps, for x [N, I, H, W] and kernel w [O, I, K, K]:
//
//	w_normed  = w / ((||w||_{1,2,3} + eps) + q_sqr)
//	x_norm_sq = sum_I(sumpool(x^2, K, S, P))          // [N, 1, Ho, Wo]
//	y         = conv2d(x, w_normed, S, P) / (sqrt(x_norm_sq + eps) + q_sqr)
//	out       = sign(y) * (|y| + eps)^p_sqr
//
// Epsilon is added outside the kernel norm, so results differ from
// PatchEngine by a small floating-point amount.
type ConvEngine struct {
	Placement EpsilonPlacement
}

// Name implements Engine.
func (e ConvEngine) Name() string {
	if e.Placement == EpsilonOnInput {
		return "conv-annotated"
	}
	return "conv"
}

// Layout implements Engine.
func (ConvEngine) Layout() Layout { return ConvLayout }

// Forward implements Engine.
func (e ConvEngine) Forward(b Backend, cfg Config, params *ParameterSet, x *tensor.Tensor) (*tensor.Tensor, error) {
	if _, _, err := checkInput("scs.conv", cfg, params, x); err != nil {
		return nil, err
	}
	w, err := params.KernelAs(ConvLayout)
	if err != nil {
		return nil, err
	}

	eps := cfg.Epsilon
	k, s, p := cfg.KernelSize, cfg.Stride, cfg.Padding
	qSqr := params.Threshold(b)

	wNorm := b.VectorNorm(w, []int{1, 2, 3}, true)
	wNormed := b.Div(w, b.Add(b.AddScalar(wNorm, eps), qSqr))

	var xNorm *tensor.Tensor
	switch e.Placement {
	case EpsilonInRoot:
		xNormSq := b.SumDims(b.AvgPool2D(b.Square(x), k, s, p, 1), []int{1}, true)
		xNorm = b.Add(b.Sqrt(b.AddScalar(xNormSq, eps)), qSqr)
	case EpsilonOnInput:
		xNormSq := b.SumDims(b.AvgPool2D(b.Square(b.AddScalar(x, eps)), k, s, p, 1), []int{1}, true)
		// A window lying wholly in the padding has a zero norm here; with a
		// zero threshold the floor keeps its output at 0 instead of 0/0.
		xNorm = b.ClampMin(b.Add(b.Sqrt(xNormSq), qSqr), eps)
	default:
		return nil, fmt.Errorf("%w: unknown epsilon placement %v", ErrInvalidConfig, e.Placement)
	}

	y := b.Div(b.Conv2D(x, wNormed, s, p), xNorm)
	return sharpen(b, params, y, eps), nil
}
