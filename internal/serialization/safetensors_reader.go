package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/born-ml/scs/internal/tensor"
)

// Bundle is a decoded SafeTensors file.
type Bundle struct {
	Tensors  map[string]*tensor.Tensor // Tensors by name, converted to float64
	DTypes   map[string]tensor.DataType // On-disk element type of each tensor
	Metadata map[string]string          // Header metadata (may be empty)
}

// Names returns the tensor names in sorted order.
func (b *Bundle) Names() []string {
	names := make([]string, 0, len(b.Tensors))
	for name := range b.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReaderOptions configures decoding.
type ReaderOptions struct {
	Validation ValidationLevel // Default: ValidationStrict
}

// ReadSafeTensors reads a SafeTensors file with strict validation.
func ReadSafeTensors(path string) (*Bundle, error) {
	return ReadSafeTensorsWithOptions(path, ReaderOptions{})
}

// ReadSafeTensorsWithOptions reads a SafeTensors file.
func ReadSafeTensorsWithOptions(path string, opts ReaderOptions) (*Bundle, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for parameter loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close() // Read-only, close error carries no data loss
	}()

	bundle, err := ReadFrom(file, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bundle, nil
}

// ReadFrom decodes a SafeTensors stream.
//
// Offsets are validated against the data section before any tensor is
// decoded. When the metadata carries ChecksumKey, the data section is
// verified against it.
func ReadFrom(r io.Reader, opts ReaderOptions) (*Bundle, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var header SafeTensorsHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	// The data section is hashed while it is read.
	var data bytes.Buffer
	sum, err := ComputeChecksumReader(io.TeeReader(r, &data))
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	payload := data.Bytes()

	if err := ValidateHeader(&header, int64(len(payload)), opts.Validation); err != nil {
		return nil, fmt.Errorf("header validation failed: %w", err)
	}

	if stored, ok := header.Metadata[ChecksumKey]; ok {
		want, err := parseChecksum(stored)
		if err != nil {
			return nil, err
		}
		if err := ValidateChecksum(sum, want); err != nil {
			return nil, err
		}
	}

	bundle := &Bundle{
		Tensors:  make(map[string]*tensor.Tensor, len(header.Tensors)),
		DTypes:   make(map[string]tensor.DataType, len(header.Tensors)),
		Metadata: header.Metadata,
	}
	if bundle.Metadata == nil {
		bundle.Metadata = map[string]string{}
	}

	for name, info := range header.Tensors {
		t, dt, err := decodeTensor(info, payload)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", name, err)
		}
		bundle.Tensors[name] = t
		bundle.DTypes[name] = dt
	}
	return bundle, nil
}

// decodeTensor converts the bytes of one header entry to a float64 tensor.
func decodeTensor(info SafeTensorInfo, payload []byte) (*tensor.Tensor, tensor.DataType, error) {
	dt, err := safeTensorsToDType(info.DType)
	if err != nil {
		return nil, 0, err
	}
	start, end := info.DataOffsets[0], info.DataOffsets[1]
	if start < 0 || end < start || end > int64(len(payload)) {
		return nil, 0, fmt.Errorf("%w: [%d, %d) of %d bytes", ErrOutOfBounds, start, end, len(payload))
	}
	raw := payload[start:end]

	size := dt.Size()
	if len(raw)%size != 0 {
		return nil, 0, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrSizeMismatch, len(raw), size)
	}
	values := make([]float64, len(raw)/size)
	for i := range values {
		chunk := raw[i*size : (i+1)*size]
		switch dt {
		case tensor.Float32:
			values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(chunk)))
		case tensor.Float64:
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(chunk))
		}
	}

	t, err := tensor.FromSlice(values, tensor.Shape(info.Shape))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrSizeMismatch, err)
	}
	return t, dt, nil
}
