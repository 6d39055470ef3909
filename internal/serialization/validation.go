package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for security and resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxTensorCount   = 100_000           // Maximum number of tensors in a file
	MaxTensorNameLen = 4096              // Maximum tensor name length
	MaxMetadataSize  = 10 * 1024 * 1024  // 10MB - maximum metadata size
)

// ValidationLevel controls the strictness of validation.
type ValidationLevel int

const (
	// ValidationStrict performs all validation checks (default, recommended).
	ValidationStrict ValidationLevel = iota
	// ValidationNormal skips the offset overlap check.
	ValidationNormal
	// ValidationNone skips validation (dangerous! Use only with trusted input).
	ValidationNone
)

// ValidateTensorOffsets checks for overlapping tensor offsets and out-of-bounds access.
func ValidateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount),
		}
	}

	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Offset == sorted[j].Offset {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, t := range sorted {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d, size=%d (negative values not allowed)", t.Offset, t.Size),
			}
		}

		if t.Offset+t.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize),
			}
		}

		if i < len(sorted)-1 {
			next := sorted[i+1]
			if t.Offset+t.Size > next.Offset {
				return &ValidationError{
					Type:    "offset_overlap",
					Tensor:  t.Name,
					Tensor2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}

	return nil
}

// ValidateTensorName checks tensor names for path traversal and malicious patterns.
func ValidateTensorName(name string) error {
	if name == "" {
		return &ValidationError{Type: "invalid_name", Details: "empty tensor name"}
	}
	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Type:    "name_too_long",
			Tensor:  name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	}

	if strings.Contains(name, "..") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains '..' (path traversal attempt)",
		}
	}

	if strings.Contains(name, "/") || strings.Contains(name, "\\") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains path separator (/ or \\)",
		}
	}

	if strings.Contains(name, "\x00") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains null byte",
		}
	}

	return nil
}

// ValidateHeader performs header validation against a data section of
// dataSize bytes.
func ValidateHeader(h *SafeTensorsHeader, dataSize int64, level ValidationLevel) error {
	if level == ValidationNone {
		return nil
	}

	if len(h.Tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(h.Tensors), MaxTensorCount),
		}
	}

	metadataSize := 0
	for k, v := range h.Metadata {
		metadataSize += len(k) + len(v)
	}
	if metadataSize > MaxMetadataSize {
		return fmt.Errorf("%w: %d bytes", ErrMetadataTooLarge, metadataSize)
	}

	for name, info := range h.Tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		if err := validateTensorSize(name, info); err != nil {
			return err
		}
	}

	if level == ValidationStrict {
		return ValidateTensorOffsets(h.tensorMetas(), dataSize)
	}
	for _, m := range h.tensorMetas() {
		if m.Offset < 0 || m.Size < 0 || m.Offset+m.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  m.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", m.Offset, m.Size, dataSize),
			}
		}
	}
	return nil
}

// validateTensorSize checks that the byte range of a tensor matches its
// shape and dtype.
func validateTensorSize(name string, info SafeTensorInfo) error {
	dt, err := safeTensorsToDType(info.DType)
	if err != nil {
		return fmt.Errorf("tensor %q: %w", name, err)
	}
	elements := int64(1)
	for _, d := range info.Shape {
		if d < 0 {
			return &ValidationError{
				Type:    "size_mismatch",
				Tensor:  name,
				Details: fmt.Sprintf("negative dimension in shape %v", info.Shape),
			}
		}
		elements *= int64(d)
	}
	if want := elements * int64(dt.Size()); info.DataOffsets[1]-info.DataOffsets[0] != want {
		return &ValidationError{
			Type:   "size_mismatch",
			Tensor: name,
			Details: fmt.Sprintf("%s %v needs %d bytes, data_offsets span %d",
				info.DType, info.Shape, want, info.DataOffsets[1]-info.DataOffsets[0]),
		}
	}
	return nil
}
