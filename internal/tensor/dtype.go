// Package tensor provides the dense strided tensor used by the SCS operators.
package tensor

// DataType identifies an on-disk element encoding.
//
// Tensors always compute in float64; DataType only matters when a tensor is
// persisted or read back from a bundle written by another tool.
type DataType int

// Supported data types.
const (
	Float32 DataType = iota
	Float64
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}
