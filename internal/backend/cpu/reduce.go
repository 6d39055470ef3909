package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/scs/internal/parallel"
	"github.com/born-ml/scs/internal/tensor"
)

// SumDims sums x over dims. With keepDim the reduced dimensions stay as size 1.
//
// Example:
//
//	x: [2, 3, 4]
//	SumDims(x, []int{1, 2}, true)  -> [2, 1, 1]
//	SumDims(x, []int{0}, false)    -> [3, 4]
func (cpu *CPUBackend) SumDims(x *tensor.Tensor, dims []int, keepDim bool) *tensor.Tensor {
	return cpu.reduce("sum", x, dims, keepDim, floats.Sum)
}

// VectorNorm computes the Euclidean norm of x over dims jointly.
func (cpu *CPUBackend) VectorNorm(x *tensor.Tensor, dims []int, keepDim bool) *tensor.Tensor {
	return cpu.reduce("vector_norm", x, dims, keepDim, func(v []float64) float64 {
		return floats.Norm(v, 2)
	})
}

// reduce permutes the reduced dims to the back, packs, and applies f to each
// contiguous group.
func (cpu *CPUBackend) reduce(op string, x *tensor.Tensor, dims []int, keepDim bool, f func([]float64) float64) *tensor.Tensor {
	shape := x.Shape()
	ndim := len(shape)

	reduced := make([]bool, ndim)
	for _, d := range dims {
		if d < 0 {
			d += ndim
		}
		if d < 0 || d >= ndim {
			panic(fmt.Sprintf("%s: dimension out of range for %dD tensor: %v", op, ndim, dims))
		}
		if reduced[d] {
			panic(fmt.Sprintf("%s: repeated dimension in %v", op, dims))
		}
		reduced[d] = true
	}

	perm := make([]int, 0, ndim)
	var outShape tensor.Shape
	groupSize := 1
	for d := 0; d < ndim; d++ {
		switch {
		case !reduced[d]:
			perm = append(perm, d)
			outShape = append(outShape, shape[d])
		case keepDim:
			outShape = append(outShape, 1)
		}
	}
	for d := 0; d < ndim; d++ {
		if reduced[d] {
			perm = append(perm, d)
			groupSize *= shape[d]
		}
	}

	src := x.Permute(perm...).Data()
	out := tensor.Zeros(outShape...)
	dst := out.Data()

	parallel.Range(len(dst), cpu.par, func(start, end int) {
		for g := start; g < end; g++ {
			dst[g] = f(src[g*groupSize : (g+1)*groupSize])
		}
	})
	return out
}
