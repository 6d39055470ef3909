package cpu

import (
	"fmt"

	"github.com/born-ml/scs/internal/parallel"
	"github.com/born-ml/scs/internal/tensor"
)

// AvgPool2D performs 2D average pooling with zero padding.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
//	out_height = (height + 2*padding - kernelSize) / stride + 1
//
// Padded positions count as zeros. Every window is divided by
// kernelSize*kernelSize, or by divisorOverride when it is positive;
// divisorOverride=1 turns the pool into a windowed sum.
//
// Example (2x2 sum pool, stride=2, divisorOverride=1):
//
//	Input: [[1,2,3,4],    Output: [[14,22],
//	        [5,6,7,8],             [46,54]]
//	        [9,10,11,12],
//	        [13,14,15,16]]
func (cpu *CPUBackend) AvgPool2D(input *tensor.Tensor, kernelSize, stride, padding, divisorOverride int) *tensor.Tensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("avgpool2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if kernelSize <= 0 {
		panic(fmt.Sprintf("avgpool2d: invalid kernel size %d", kernelSize))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("avgpool2d: invalid stride %d", stride))
	}
	if padding < 0 {
		panic(fmt.Sprintf("avgpool2d: invalid padding %d", padding))
	}

	N, C, H, W := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	if kernelSize > H+2*padding || kernelSize > W+2*padding {
		panic(fmt.Sprintf("avgpool2d: kernel size %d too large for padded input %dx%d",
			kernelSize, H+2*padding, W+2*padding))
	}

	HOut := (H+2*padding-kernelSize)/stride + 1
	WOut := (W+2*padding-kernelSize)/stride + 1

	divisor := float64(kernelSize * kernelSize)
	if divisorOverride > 0 {
		divisor = float64(divisorOverride)
	}

	inputData := input.Data()
	output := tensor.Zeros(N, C, HOut, WOut)
	outputData := output.Data()

	parallel.ForCost(N*C, HOut*WOut*kernelSize*kernelSize, cpu.par, func(plane int) {
		channelData := inputData[plane*H*W : (plane+1)*H*W]
		outPlane := outputData[plane*HOut*WOut : (plane+1)*HOut*WOut]

		for outH := 0; outH < HOut; outH++ {
			hStart := outH*stride - padding
			for outW := 0; outW < WOut; outW++ {
				wStart := outW*stride - padding

				sum := 0.0
				for kh := 0; kh < kernelSize; kh++ {
					h := hStart + kh
					if h < 0 || h >= H {
						continue
					}
					rowData := channelData[h*W : (h+1)*W]
					for kw := 0; kw < kernelSize; kw++ {
						w := wStart + kw
						if w >= 0 && w < W {
							sum += rowData[w]
						}
					}
				}
				outPlane[outH*WOut+outW] = sum / divisor
			}
		}
	})

	return output
}
