package cpu

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/scs/internal/tensor"
)

// Einsum evaluates a two-operand Einstein summation with an explicit output,
// for example "nchwl,vcl->nvhw".
//
// Labels are single lowercase letters. A label shared by both operands and
// absent from the output is contracted; a label present in only one operand
// and absent from the output is summed out first. Labels shared by both
// operands and the output (batch labels) are not supported.
//
// The contraction is evaluated as a tensordot: both operands are permuted
// into [free, contracted] and [contracted, free] matrices and multiplied
// with one GEMM.
func (cpu *CPUBackend) Einsum(subscripts string, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	spec, err := parseEinsum(subscripts, a.Shape(), b.Shape())
	if err != nil {
		return nil, err
	}

	a, aLabels := cpu.sumOutLabels(a, spec.a, spec.out, spec.b)
	b, bLabels := cpu.sumOutLabels(b, spec.b, spec.out, aLabels)

	var freeA, freeB, contracted []rune
	for _, l := range aLabels {
		if strings.ContainsRune(spec.out, l) {
			freeA = append(freeA, l)
		} else {
			contracted = append(contracted, l)
		}
	}
	for _, l := range bLabels {
		if strings.ContainsRune(spec.out, l) {
			freeB = append(freeB, l)
		}
	}

	permA := labelPositions([]rune(aLabels), append(append([]rune(nil), freeA...), contracted...))
	permB := labelPositions([]rune(bLabels), append(append([]rune(nil), contracted...), freeB...))

	m := spec.volume(freeA)
	k := spec.volume(contracted)
	n := spec.volume(freeB)

	aMat := mat.NewDense(m, k, a.Permute(permA...).Data())
	bMat := mat.NewDense(k, n, b.Permute(permB...).Data())

	var prod mat.Dense
	prod.Mul(aMat, bMat)

	resLabels := append(append([]rune(nil), freeA...), freeB...)
	resShape := make(tensor.Shape, len(resLabels))
	for i, l := range resLabels {
		resShape[i] = spec.sizes[l]
	}

	res, err := tensor.FromSlice(denseData(&prod), resShape)
	if err != nil {
		return nil, fmt.Errorf("einsum %q: %w", subscripts, err)
	}

	outPerm := labelPositions(resLabels, []rune(spec.out))
	return res.Permute(outPerm...).Contiguous(), nil
}

// sumOutLabels sums x over the labels that appear neither in the output nor
// in the other operand, and returns the remaining labels.
func (cpu *CPUBackend) sumOutLabels(x *tensor.Tensor, labels, out, other string) (*tensor.Tensor, string) {
	var dims []int
	var kept []rune
	for i, l := range labels {
		if !strings.ContainsRune(out, l) && !strings.ContainsRune(other, l) {
			dims = append(dims, i)
			continue
		}
		kept = append(kept, l)
	}
	if len(dims) == 0 {
		return x, labels
	}
	return cpu.SumDims(x, dims, false), string(kept)
}

type einsumSpec struct {
	a, b, out string
	sizes     map[rune]int
}

func (s einsumSpec) volume(labels []rune) int {
	v := 1
	for _, l := range labels {
		v *= s.sizes[l]
	}
	return v
}

func parseEinsum(subscripts string, aShape, bShape tensor.Shape) (einsumSpec, error) {
	fail := func(format string, args ...any) (einsumSpec, error) {
		return einsumSpec{}, fmt.Errorf("einsum %q: %s", subscripts, fmt.Sprintf(format, args...))
	}

	lhs, out, ok := strings.Cut(strings.ReplaceAll(subscripts, " ", ""), "->")
	if !ok {
		return fail("explicit output required")
	}
	inputs := strings.Split(lhs, ",")
	if len(inputs) != 2 {
		return fail("expected 2 operands, got %d", len(inputs))
	}

	spec := einsumSpec{a: inputs[0], b: inputs[1], out: out, sizes: make(map[rune]int)}
	operands := []struct {
		labels string
		shape  tensor.Shape
	}{{spec.a, aShape}, {spec.b, bShape}}

	for i, op := range operands {
		if len([]rune(op.labels)) != len(op.shape) {
			return fail("operand %d has %d labels for %dD tensor", i, len(op.labels), len(op.shape))
		}
		seen := make(map[rune]bool)
		for j, l := range op.labels {
			if l < 'a' || l > 'z' {
				return fail("invalid label %q", l)
			}
			if seen[l] {
				return fail("repeated label %q in operand %d", l, i)
			}
			seen[l] = true
			if size, ok := spec.sizes[l]; ok && size != op.shape[j] {
				return fail("label %q has size %d and %d", l, size, op.shape[j])
			}
			spec.sizes[l] = op.shape[j]
		}
	}

	seen := make(map[rune]bool)
	for _, l := range out {
		if seen[l] {
			return fail("repeated output label %q", l)
		}
		seen[l] = true

		inA := strings.ContainsRune(spec.a, l)
		inB := strings.ContainsRune(spec.b, l)
		switch {
		case !inA && !inB:
			return fail("output label %q not in any operand", l)
		case inA && inB:
			return fail("batch label %q is not supported", l)
		}
	}

	return spec, nil
}

// labelPositions returns, for each wanted label, its index in labels.
func labelPositions(labels, wanted []rune) []int {
	pos := make([]int, len(wanted))
	for i, w := range wanted {
		for j, l := range labels {
			if l == w {
				pos[i] = j
				break
			}
		}
	}
	return pos
}

// denseData returns the elements of d in row-major order.
func denseData(d *mat.Dense) []float64 {
	raw := d.RawMatrix()
	if raw.Stride == raw.Cols {
		return raw.Data[:raw.Rows*raw.Cols]
	}
	out := make([]float64, 0, raw.Rows*raw.Cols)
	for r := 0; r < raw.Rows; r++ {
		out = append(out, raw.Data[r*raw.Stride:r*raw.Stride+raw.Cols]...)
	}
	return out
}
