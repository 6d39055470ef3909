package nn

import (
	"errors"
	"fmt"

	"github.com/born-ml/scs/internal/tensor"
)

// Common errors.
var (
	ErrInvalidShape      = errors.New("invalid shape")
	ErrParameterMismatch = errors.New("parameter mismatch")
	ErrInvalidConfig     = errors.New("invalid config")
)

// ShapeError describes a tensor whose shape an operation cannot accept.
// It matches ErrInvalidShape with errors.Is.
type ShapeError struct {
	Op     string       // Operation that rejected the tensor (e.g., "scs.forward")
	Got    tensor.Shape // Shape that was passed in
	Detail string       // What was expected
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %v: got shape %v, %s", e.Op, ErrInvalidShape, e.Got, e.Detail)
}

// Unwrap returns ErrInvalidShape.
func (e *ShapeError) Unwrap() error {
	return ErrInvalidShape
}

func shapeErrorf(op string, got tensor.Shape, format string, args ...any) error {
	return &ShapeError{Op: op, Got: got, Detail: fmt.Sprintf(format, args...)}
}
