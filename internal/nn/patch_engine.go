package nn

import (
	"fmt"

	"github.com/born-ml/scs/internal/tensor"
)

// PatchEngine computes SCS by extracting every sliding patch explicitly and
// contracting normalised patches against normalised kernels with an einsum.
//
// Steps, for x [N, I, H, W] and kernel w [O, I, K*K]:
//
//	xp      = pad(x, P)
//	patches = as_strided(xp, [N, I, Ho, Wo, K, K]) -> [N, I, Ho, Wo, K*K]
//	x_norm  = sqrt(sum_{I,K*K}(patches^2) + eps) + q_sqr
//	w_norm  = sqrt(sum_{I,K*K}(w^2) + eps) + q_sqr
//	y       = einsum("nchwl,vcl->nvhw", patches/x_norm, w/w_norm)
//	out     = sign(y) * (|y| + eps)^p_sqr
type PatchEngine struct{}

// Name implements Engine.
func (PatchEngine) Name() string { return "patch" }

// Layout implements Engine.
func (PatchEngine) Layout() Layout { return EinsumLayout }

// Forward implements Engine.
func (e PatchEngine) Forward(b Backend, cfg Config, params *ParameterSet, x *tensor.Tensor) (*tensor.Tensor, error) {
	outH, outW, err := checkInput("scs.patch", cfg, params, x)
	if err != nil {
		return nil, err
	}
	w, err := params.KernelAs(EinsumLayout)
	if err != nil {
		return nil, err
	}

	patches, err := unfold2D(b, x, cfg, outH, outW)
	if err != nil {
		return nil, err
	}

	eps := cfg.Epsilon
	qSqr := params.Threshold(b)

	xNorm := b.Add(b.Sqrt(b.AddScalar(b.SumDims(b.Square(patches), []int{1, 4}, true), eps)), qSqr)
	wNorm := b.Add(b.Sqrt(b.AddScalar(b.SumDims(b.Square(w), []int{1, 2}, true), eps)), qSqr)

	y, err := b.Einsum("nchwl,vcl->nvhw", b.Div(patches, xNorm), b.Div(w, wNorm))
	if err != nil {
		return nil, fmt.Errorf("scs.patch: %w", err)
	}
	return sharpen(b, params, y, eps), nil
}

// unfold2D pads x and returns its sliding windows as [N, C, Ho, Wo, K*K].
//
// The windows are first taken as a zero-copy strided view over the padded
// buffer; the final reshape packs them because the windows overlap.
func unfold2D(b Backend, x *tensor.Tensor, cfg Config, outH, outW int) (*tensor.Tensor, error) {
	xp := b.Pad2D(x, cfg.Padding)
	shape := xp.Shape()
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	k, s := cfg.KernelSize, cfg.Stride

	windows, err := xp.AsStrided(
		tensor.Shape{n, c, outH, outW, k, k},
		[]int{c * h * w, h * w, s * w, s, w, 1},
		xp.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("unfold2d: %w", err)
	}
	return windows.Reshape(n, c, outH, outW, -1), nil
}
