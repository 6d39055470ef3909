package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// InferShape resolves a single -1 entry in dims so that the result holds
// numElements elements.
//
//	InferShape(60, 5, 4, -1) -> [5 4 3]
func InferShape(numElements int, dims ...int) (Shape, error) {
	out := make(Shape, len(dims))
	inferAt := -1
	known := 1
	for i, d := range dims {
		switch {
		case d == -1:
			if inferAt >= 0 {
				return nil, fmt.Errorf("only one dimension can be inferred, got %v", dims)
			}
			inferAt = i
		case d <= 0:
			return nil, fmt.Errorf("invalid dimension at index %d: %d", i, d)
		default:
			known *= d
		}
		out[i] = d
	}

	if inferAt >= 0 {
		if known == 0 || numElements%known != 0 {
			return nil, fmt.Errorf("cannot infer dimension: %d elements into %v", numElements, dims)
		}
		out[inferAt] = numElements / known
	}

	if out.NumElements() != numElements {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", out, out.NumElements(), numElements)
	}
	return out, nil
}

// BroadcastShapes implements NumPy-style broadcasting rules.
//
// Shapes are compared from the right; two dimensions are compatible when they
// are equal or one of them is 1. Missing dimensions are treated as 1.
//
//	(3, 1) + (3, 5) → (3, 5)
//	(1, 5, 1, 1) + (2, 5, 7, 7) → (2, 5, 7, 7)
//	(3, 4) + (3, 5) → error
func BroadcastShapes(a, b Shape) (Shape, error) {
	maxLen := max(len(a), len(b))
	result := make(Shape, maxLen)

	for i := 0; i < maxLen; i++ {
		aDim := 1
		if aIdx := len(a) - 1 - i; aIdx >= 0 {
			aDim = a[aIdx]
		}

		bDim := 1
		if bIdx := len(b) - 1 - i; bIdx >= 0 {
			bDim = b[bIdx]
		}

		switch {
		case aDim == bDim, bDim == 1:
			result[maxLen-1-i] = aDim
		case aDim == 1:
			result[maxLen-1-i] = bDim
		default:
			return nil, fmt.Errorf("shapes not compatible for broadcasting: %v vs %v (dimension %d: %d vs %d)",
				a, b, maxLen-1-i, aDim, bDim)
		}
	}

	return result, nil
}
