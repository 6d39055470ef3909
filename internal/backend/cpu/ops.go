package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/scs/internal/parallel"
	"github.com/born-ml/scs/internal/tensor"
)

// binary applies f element-wise with NumPy-style broadcasting.
func (cpu *CPUBackend) binary(op string, a, b *tensor.Tensor, f func(x, y float64) float64) *tensor.Tensor {
	outShape, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}

	out := tensor.Zeros(outShape...)
	dst := out.Data()

	// Fast path: same shape, packed operands.
	if a.Shape().Equal(b.Shape()) {
		ad, bd := a.Data(), b.Data()
		parallel.Range(len(dst), cpu.par, func(start, end int) {
			for i := start; i < end; i++ {
				dst[i] = f(ad[i], bd[i])
			}
		})
		return out
	}

	aStrides := broadcastStrides(a, outShape)
	bStrides := broadcastStrides(b, outShape)
	outStrides := outShape.ComputeStrides()
	as, bs := a.Storage(), b.Storage()
	aOff, bOff := a.Offset(), b.Offset()

	parallel.Range(len(dst), cpu.par, func(start, end int) {
		for i := start; i < end; i++ {
			ai, bi := aOff, bOff
			rem := i
			for d, os := range outStrides {
				c := rem / os
				rem %= os
				ai += c * aStrides[d]
				bi += c * bStrides[d]
			}
			dst[i] = f(as[ai], bs[bi])
		}
	})
	return out
}

// Add performs element-wise addition with broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.Tensor) *tensor.Tensor {
	return cpu.binary("add", a, b, func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.Tensor) *tensor.Tensor {
	return cpu.binary("sub", a, b, func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.Tensor) *tensor.Tensor {
	return cpu.binary("mul", a, b, func(x, y float64) float64 { return x * y })
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.Tensor) *tensor.Tensor {
	return cpu.binary("div", a, b, func(x, y float64) float64 { return x / y })
}

// Pow raises a to the power e element-wise with broadcasting.
func (cpu *CPUBackend) Pow(a, e *tensor.Tensor) *tensor.Tensor {
	return cpu.binary("pow", a, e, math.Pow)
}
