package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/born-ml/scs/internal/tensor"
)

// MetadataKey is the reserved header entry holding string metadata.
const MetadataKey = "__metadata__"

// ChecksumKey is the metadata entry holding the hex SHA-256 of the data section.
const ChecksumKey = "payload_sha256"

// SafeTensorsDType is a SafeTensors element type name.
type SafeTensorsDType string

// Supported SafeTensors dtypes.
const (
	SafeTensorsF32 SafeTensorsDType = "F32"
	SafeTensorsF64 SafeTensorsDType = "F64"
)

// SafeTensorInfo describes a tensor in the SafeTensors header.
type SafeTensorInfo struct {
	DType       SafeTensorsDType `json:"dtype"`
	Shape       []int            `json:"shape"`
	DataOffsets [2]int64         `json:"data_offsets"` // [start, end)
}

// SafeTensorsHeader is the JSON header of a SafeTensors file.
type SafeTensorsHeader struct {
	Metadata map[string]string
	Tensors  map[string]SafeTensorInfo
}

// MarshalJSON flattens metadata and tensors into one JSON object.
func (h SafeTensorsHeader) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(h.Tensors)+1)
	if len(h.Metadata) > 0 {
		flat[MetadataKey] = h.Metadata
	}
	for name, info := range h.Tensors {
		flat[name] = info
	}
	return json.Marshal(flat)
}

// UnmarshalJSON splits the flat header object into metadata and tensors.
func (h *SafeTensorsHeader) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap[MetadataKey]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	h.Tensors = make(map[string]SafeTensorInfo, len(rawMap))
	for key, value := range rawMap {
		if key == MetadataKey {
			continue
		}
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}
	return nil
}

// TensorMeta is a flattened view of one header entry used by validation.
type TensorMeta struct {
	Name   string // Tensor name (e.g., "kernel")
	Offset int64  // Offset in the data section, in bytes
	Size   int64  // Size in bytes
}

// tensorMetas lists the header entries for offset validation.
func (h *SafeTensorsHeader) tensorMetas() []TensorMeta {
	metas := make([]TensorMeta, 0, len(h.Tensors))
	for name, info := range h.Tensors {
		metas = append(metas, TensorMeta{
			Name:   name,
			Offset: info.DataOffsets[0],
			Size:   info.DataOffsets[1] - info.DataOffsets[0],
		})
	}
	return metas
}

// dtypeToSafeTensors converts tensor.DataType to a SafeTensors dtype.
func dtypeToSafeTensors(dt tensor.DataType) (SafeTensorsDType, error) {
	switch dt {
	case tensor.Float32:
		return SafeTensorsF32, nil
	case tensor.Float64:
		return SafeTensorsF64, nil
	default:
		return "", fmt.Errorf("%w: %v", ErrUnsupportedDType, dt)
	}
}

// safeTensorsToDType converts a SafeTensors dtype to tensor.DataType.
func safeTensorsToDType(dt SafeTensorsDType) (tensor.DataType, error) {
	switch dt {
	case SafeTensorsF32:
		return tensor.Float32, nil
	case SafeTensorsF64:
		return tensor.Float64, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDType, dt)
	}
}
