package nn

import (
	"fmt"
	"math"
	"strings"

	"github.com/born-ml/scs/internal/tensor"
)

// Layout is the storage layout of an SCS kernel.
//
// Both layouts hold the same numbers in the same row-major order; converting
// between them is a reshape.
type Layout int

const (
	// EinsumLayout stores the kernel flattened as [O, I, K*K].
	EinsumLayout Layout = iota
	// ConvLayout stores the kernel as [O, I, K, K].
	ConvLayout
)

// String returns the layout name used in bundle metadata.
func (l Layout) String() string {
	switch l {
	case EinsumLayout:
		return "einsum"
	case ConvLayout:
		return "conv"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// ParseLayout parses a layout name as returned by Layout.String.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(s) {
	case "einsum":
		return EinsumLayout, nil
	case "conv":
		return ConvLayout, nil
	default:
		return 0, fmt.Errorf("%w: unknown kernel layout %q", ErrInvalidConfig, s)
	}
}

// KernelShape returns the kernel shape for cfg in this layout.
func (l Layout) KernelShape(cfg Config) tensor.Shape {
	if l == ConvLayout {
		return tensor.Shape{cfg.OutChannels, cfg.InChannels, cfg.KernelSize, cfg.KernelSize}
	}
	return tensor.Shape{cfg.OutChannels, cfg.InChannels, cfg.KernelSize * cfg.KernelSize}
}

// ToConvLayout reshapes a flattened [O, I, K*K] kernel to [O, I, K, K].
//
// The result is a view when the kernel is contiguous. Returns ErrInvalidShape
// if the kernel is not 3D or K*K is not a perfect square.
func ToConvLayout(kernel *tensor.Tensor) (*tensor.Tensor, error) {
	shape := kernel.Shape()
	if len(shape) != 3 {
		return nil, shapeErrorf("to_conv_layout", shape, "want [O, I, K*K]")
	}
	k := int(math.Round(math.Sqrt(float64(shape[2]))))
	if k*k != shape[2] {
		return nil, shapeErrorf("to_conv_layout", shape, "last dimension %d is not a perfect square", shape[2])
	}
	return kernel.Reshape(shape[0], shape[1], k, k), nil
}

// ToEinsumLayout reshapes a [O, I, K, K] kernel to [O, I, K*K].
//
// The result is a view when the kernel is contiguous. Returns ErrInvalidShape
// if the kernel is not 4D with square spatial dimensions.
func ToEinsumLayout(kernel *tensor.Tensor) (*tensor.Tensor, error) {
	shape := kernel.Shape()
	if len(shape) != 4 {
		return nil, shapeErrorf("to_einsum_layout", shape, "want [O, I, K, K]")
	}
	if shape[2] != shape[3] {
		return nil, shapeErrorf("to_einsum_layout", shape, "kernel is not square")
	}
	return kernel.Reshape(shape[0], shape[1], shape[2]*shape[3]), nil
}

// toLayout converts kernel to target, passing it through when it is already
// there.
func toLayout(kernel *tensor.Tensor, target Layout) (*tensor.Tensor, error) {
	switch {
	case target == ConvLayout && kernel.Dim() == 4:
		return kernel, nil
	case target == EinsumLayout && kernel.Dim() == 3:
		return kernel, nil
	case target == ConvLayout:
		return ToConvLayout(kernel)
	default:
		return ToEinsumLayout(kernel)
	}
}

// AdaptStateDict reshapes the "kernel" entry of dict to the target layout in
// place. Every other entry is left untouched.
//
// This is the bridge that lets a bundle saved from an einsum-layout layer be
// loaded into a conv-layout layer and back:
//
//	dict := patchLayer.StateDict()
//	_ = nn.AdaptStateDict(dict, nn.ConvLayout)
//	_ = convLayer.LoadStateDict(dict)
func AdaptStateDict(dict map[string]*tensor.Tensor, target Layout) error {
	kernel, ok := dict[KernelName]
	if !ok {
		return fmt.Errorf("%w: state dict has no %q entry", ErrParameterMismatch, KernelName)
	}
	adapted, err := toLayout(kernel, target)
	if err != nil {
		return fmt.Errorf("adapt state dict to %s layout: %w", target, err)
	}
	dict[KernelName] = adapted
	return nil
}
