package tensor

import (
	"fmt"
	"strings"
)

// Tensor is a dense float64 tensor over a shared backing buffer.
//
// A tensor is described by its shape, per-dimension strides and an offset
// into the buffer. Views created with Reshape, Permute or AsStrided alias the
// same buffer, so writing through one view is visible through the others.
//
// Example:
//
//	x := tensor.Zeros(2, 3)
//	x.Set(1.5, 0, 2)
//	xt := x.Permute(1, 0) // [3, 2] view, no copy
type Tensor struct {
	data    []float64
	shape   Shape
	strides []int
	offset  int
}

// New creates a zero-filled tensor with the given shape.
func New(shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &Tensor{
		data:    make([]float64, shape.NumElements()),
		shape:   shape.Clone(),
		strides: shape.ComputeStrides(),
	}, nil
}

// Zeros creates a zero-filled tensor. Panics on an invalid shape.
func Zeros(dims ...int) *Tensor {
	t, err := New(Shape(dims))
	if err != nil {
		panic(err)
	}
	return t
}

// Full creates a tensor filled with value. Panics on an invalid shape.
func Full(shape Shape, value float64) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float64, shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t, err := New(shape)
	if err != nil {
		return nil, err
	}
	copy(t.data, data)
	return t, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Strides returns the tensor's memory strides, in elements.
func (t *Tensor) Strides() []int {
	return t.strides
}

// Offset returns the position of the first element in Storage.
func (t *Tensor) Offset() int {
	return t.offset
}

// Storage returns the backing buffer shared by all views of this tensor.
// Elements must be addressed through Offset and Strides.
func (t *Tensor) Storage() []float64 {
	return t.data
}

// Dim returns the number of dimensions.
func (t *Tensor) Dim() int {
	return len(t.shape)
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return t.shape.NumElements()
}

// IsContiguous reports whether the elements are laid out row-major without gaps.
func (t *Tensor) IsContiguous() bool {
	expected := 1
	for i := len(t.shape) - 1; i >= 0; i-- {
		if t.shape[i] == 1 {
			continue
		}
		if t.strides[i] != expected {
			return false
		}
		expected *= t.shape[i]
	}
	return true
}

// Contiguous returns t if it is already contiguous, otherwise a packed copy.
func (t *Tensor) Contiguous() *Tensor {
	if t.IsContiguous() {
		return t
	}
	return t.Clone()
}

// Data returns the elements in row-major order.
//
// For contiguous tensors the slice aliases the tensor memory; modifications
// through it are visible to every view. For strided views a packed copy is
// returned.
func (t *Tensor) Data() []float64 {
	if t.IsContiguous() {
		return t.data[t.offset : t.offset+t.NumElements()]
	}
	return t.Clone().data
}

// Walk calls fn for every element in row-major order with the element's
// logical index and its position in Storage.
func (t *Tensor) Walk(fn func(i, pos int)) {
	n := t.NumElements()
	if t.IsContiguous() {
		for i := 0; i < n; i++ {
			fn(i, t.offset+i)
		}
		return
	}

	ndim := len(t.shape)
	idx := make([]int, ndim)
	pos := t.offset
	for i := 0; i < n; i++ {
		fn(i, pos)
		// Odometer increment from the innermost dimension.
		for d := ndim - 1; d >= 0; d-- {
			idx[d]++
			pos += t.strides[d]
			if idx[d] < t.shape[d] {
				break
			}
			pos -= idx[d] * t.strides[d]
			idx[d] = 0
		}
	}
}

// position converts a multi-index into a Storage position.
func (t *Tensor) position(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.shape), len(indices)))
	}
	pos := t.offset
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.shape[i]))
		}
		pos += idx * t.strides[i]
	}
	return pos
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) At(indices ...int) float64 {
	return t.data[t.position(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) Set(value float64, indices ...int) {
	t.data[t.position(indices)] = value
}

// Reshape returns a tensor with the same elements and a new shape.
// One dimension may be -1 and is inferred.
//
// Contiguous tensors are reshaped as views; strided views are packed first.
// Panics if the element count does not match.
func (t *Tensor) Reshape(dims ...int) *Tensor {
	shape, err := InferShape(t.NumElements(), dims...)
	if err != nil {
		panic(fmt.Sprintf("reshape %v: %v", t.shape, err))
	}

	src := t.Contiguous()
	return &Tensor{
		data:    src.data,
		shape:   shape,
		strides: shape.ComputeStrides(),
		offset:  src.offset,
	}
}

// AsStrided returns a view over the backing buffer with explicit shape,
// strides and storage offset. Windows may overlap; no data is copied.
//
// Returns an error if any element of the view would fall outside the buffer.
func (t *Tensor) AsStrided(shape Shape, strides []int, offset int) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("as_strided: %w", err)
	}
	if len(strides) != len(shape) {
		return nil, fmt.Errorf("as_strided: %d strides for %d dimensions", len(strides), len(shape))
	}
	if offset < 0 {
		return nil, fmt.Errorf("as_strided: negative offset %d", offset)
	}

	last := offset
	for i, s := range strides {
		if s < 0 {
			return nil, fmt.Errorf("as_strided: negative stride %d at dimension %d", s, i)
		}
		last += (shape[i] - 1) * s
	}
	if last >= len(t.data) {
		return nil, fmt.Errorf("as_strided: view %v with strides %v reaches element %d of %d",
			shape, strides, last, len(t.data))
	}

	return &Tensor{
		data:    t.data,
		shape:   shape.Clone(),
		strides: append([]int(nil), strides...),
		offset:  offset,
	}, nil
}

// Permute returns a view with the dimensions reordered.
// Panics if axes is not a permutation of the tensor dimensions.
func (t *Tensor) Permute(axes ...int) *Tensor {
	if len(axes) != len(t.shape) {
		panic(fmt.Sprintf("permute: expected %d axes, got %d", len(t.shape), len(axes)))
	}
	seen := make([]bool, len(axes))
	shape := make(Shape, len(axes))
	strides := make([]int, len(axes))
	for i, a := range axes {
		if a < 0 || a >= len(axes) || seen[a] {
			panic(fmt.Sprintf("permute: invalid axes %v", axes))
		}
		seen[a] = true
		shape[i] = t.shape[a]
		strides[i] = t.strides[a]
	}
	return &Tensor{
		data:    t.data,
		shape:   shape,
		strides: strides,
		offset:  t.offset,
	}
}

// Clone creates a packed deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	out := Zeros(t.shape...)
	t.Walk(func(i, pos int) {
		out.data[i] = t.data[pos]
	})
	return out
}

// CopyFrom writes the elements of src into t's storage in row-major order,
// so every view sharing that storage observes them. The shapes must match.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if !t.shape.Equal(src.shape) {
		return fmt.Errorf("copy: shape mismatch %v vs %v", src.shape, t.shape)
	}
	values := src.Data()
	if &src.data[0] == &t.data[0] {
		// src may be a differently strided view of the same storage.
		values = src.Clone().data
	}
	t.Walk(func(i, pos int) {
		t.data[pos] = values[i]
	})
	return nil
}

// String returns a human-readable representation of the tensor.
func (t *Tensor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tensor[float64]%v", []int(t.shape))
	if !t.IsContiguous() {
		fmt.Fprintf(&sb, " strides=%v", t.strides)
	}
	return sb.String()
}
