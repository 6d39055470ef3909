package cpu

import (
	"math"

	"github.com/born-ml/scs/internal/parallel"
	"github.com/born-ml/scs/internal/tensor"
)

// unary applies f element-wise and returns a new contiguous tensor.
func (cpu *CPUBackend) unary(x *tensor.Tensor, f func(float64) float64) *tensor.Tensor {
	src := x.Data()
	out := tensor.Zeros(x.Shape()...)
	dst := out.Data()

	parallel.Range(len(dst), cpu.par, func(start, end int) {
		for i := start; i < end; i++ {
			dst[i] = f(src[i])
		}
	})
	return out
}

// Square computes x*x element-wise.
func (cpu *CPUBackend) Square(x *tensor.Tensor) *tensor.Tensor {
	return cpu.unary(x, func(v float64) float64 { return v * v })
}

// Sqrt computes the square root element-wise.
func (cpu *CPUBackend) Sqrt(x *tensor.Tensor) *tensor.Tensor {
	return cpu.unary(x, math.Sqrt)
}

// Abs computes the absolute value element-wise.
func (cpu *CPUBackend) Abs(x *tensor.Tensor) *tensor.Tensor {
	return cpu.unary(x, math.Abs)
}

// Sign returns -1, 0 or +1 element-wise. Zero maps to zero and NaN stays NaN.
func (cpu *CPUBackend) Sign(x *tensor.Tensor) *tensor.Tensor {
	return cpu.unary(x, sign)
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return v // 0, -0 or NaN
	}
}

// AddScalar computes x + s element-wise.
func (cpu *CPUBackend) AddScalar(x *tensor.Tensor, s float64) *tensor.Tensor {
	return cpu.unary(x, func(v float64) float64 { return v + s })
}

// MulScalar computes x * s element-wise.
func (cpu *CPUBackend) MulScalar(x *tensor.Tensor, s float64) *tensor.Tensor {
	return cpu.unary(x, func(v float64) float64 { return v * s })
}

// DivScalar computes x / s element-wise.
func (cpu *CPUBackend) DivScalar(x *tensor.Tensor, s float64) *tensor.Tensor {
	return cpu.unary(x, func(v float64) float64 { return v / s })
}

// ClampMin computes max(x, lo) element-wise. NaN stays NaN.
func (cpu *CPUBackend) ClampMin(x *tensor.Tensor, lo float64) *tensor.Tensor {
	return cpu.unary(x, func(v float64) float64 { return math.Max(v, lo) })
}
