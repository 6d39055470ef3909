package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/scs/internal/parallel"
	"github.com/born-ml/scs/internal/tensor"
)

// Conv2D performs 2D convolution (cross-correlation, no bias) using im2col.
//
// Input shape: [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
//	out_h = (height + 2*padding - kernel_h) / stride + 1
//	out_w = (width + 2*padding - kernel_w) / stride + 1
//
// Algorithm:
//  1. Im2col: [N, C, H, W] -> [N * H_out * W_out, C * K_h * K_w]
//  2. The kernel is already [C_out, C * K_h * K_w] in row-major order
//  3. GEMM: kernel @ colᵀ -> [C_out, N * H_out * W_out]
//  4. Rearrange to [N, C_out, H_out, W_out]
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.Tensor, stride, padding int) *tensor.Tensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernelShape)))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid stride=%d padding=%d", stride, padding))
	}

	N, CIn, H, W := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	COut, CInK, KH, KW := kernelShape[0], kernelShape[1], kernelShape[2], kernelShape[3]

	if CIn != CInK {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", CIn, CInK))
	}

	HOut := (H+2*padding-KH)/stride + 1
	WOut := (W+2*padding-KW)/stride + 1
	if H+2*padding < KH || W+2*padding < KW {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", HOut, WOut))
	}

	colWidth := CIn * KH * KW
	colHeight := N * HOut * WOut
	colBuf := make([]float64, colHeight*colWidth)
	cpu.im2col(colBuf, input.Data(), N, CIn, H, W, KH, KW, HOut, WOut, stride, padding)

	kernelMat := mat.NewDense(COut, colWidth, kernel.Data())
	colMat := mat.NewDense(colHeight, colWidth, colBuf)

	var prod mat.Dense
	prod.Mul(kernelMat, colMat.T())
	raw := prod.RawMatrix()

	output := tensor.Zeros(N, COut, HOut, WOut)
	outputData := output.Data()
	plane := HOut * WOut

	// [C_out, N*H_out*W_out] -> [N, C_out, H_out, W_out]
	for c := 0; c < COut; c++ {
		row := raw.Data[c*raw.Stride : c*raw.Stride+colHeight]
		for n := 0; n < N; n++ {
			dstIdx := (n*COut + c) * plane
			copy(outputData[dstIdx:dstIdx+plane], row[n*plane:(n+1)*plane])
		}
	}

	return output
}

// im2col transforms the input into one row per output position.
// Out-of-bounds (padding) positions are zero.
func (cpu *CPUBackend) im2col(colBuf, inputData []float64, N, C, H, W, KH, KW, HOut, WOut, stride, padding int) {
	colWidth := C * KH * KW

	parallel.ForCost(N*HOut*WOut, colWidth, cpu.par, func(colIdx int) {
		n := colIdx / (HOut * WOut)
		outH := (colIdx / WOut) % HOut
		outW := colIdx % WOut

		hStart := outH*stride - padding
		wStart := outW*stride - padding
		bufIdx := colIdx * colWidth

		for c := 0; c < C; c++ {
			for kh := 0; kh < KH; kh++ {
				for kw := 0; kw < KW; kw++ {
					h := hStart + kh
					w := wStart + kw
					if h >= 0 && h < H && w >= 0 && w < W {
						colBuf[bufIdx] = inputData[((n*C+c)*H+h)*W+w]
					}
					bufIdx++
				}
			}
		}
	})
}
