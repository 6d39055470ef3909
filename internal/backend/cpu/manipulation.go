package cpu

import (
	"fmt"

	"github.com/born-ml/scs/internal/parallel"
	"github.com/born-ml/scs/internal/tensor"
)

// Pad2D zero-pads the two spatial dimensions of a [N, C, H, W] tensor by
// padding on every side.
//
// The result is always a freshly allocated contiguous tensor with zero
// storage offset, so callers may build strided views over it directly.
func (cpu *CPUBackend) Pad2D(x *tensor.Tensor, padding int) *tensor.Tensor {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("pad2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if padding < 0 {
		panic(fmt.Sprintf("pad2d: invalid padding %d", padding))
	}

	N, C, H, W := shape[0], shape[1], shape[2], shape[3]
	HP, WP := H+2*padding, W+2*padding

	src := x.Data()
	out := tensor.Zeros(N, C, HP, WP)
	dst := out.Data()

	parallel.ForCost(N*C, HP*WP, cpu.par, func(plane int) {
		srcPlane := src[plane*H*W : (plane+1)*H*W]
		dstPlane := dst[plane*HP*WP : (plane+1)*HP*WP]
		for h := 0; h < H; h++ {
			rowStart := (h+padding)*WP + padding
			copy(dstPlane[rowStart:rowStart+W], srcPlane[h*W:(h+1)*W])
		}
	})
	return out
}
