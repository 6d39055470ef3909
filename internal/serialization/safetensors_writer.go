package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/born-ml/scs/internal/tensor"
)

// SafeTensorsWriter writes state dicts in SafeTensors format.
type SafeTensorsWriter struct {
	w      io.Writer
	closer io.Closer
	closed bool
}

// NewSafeTensorsWriter creates a new SafeTensors file writer.
func NewSafeTensorsWriter(path string) (*SafeTensorsWriter, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for parameter saving
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &SafeTensorsWriter{w: file, closer: file}, nil
}

// WriteSafeTensors writes tensors to a SafeTensors file.
//
// Format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]
//
// Tensors are written in alphabetical order by name.
func WriteSafeTensors(path string, tensors map[string]*tensor.Tensor, metadata map[string]string) (err error) {
	writer, err := NewSafeTensorsWriter(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return writer.WriteStateDict(tensors, metadata)
}

// WriteTo writes tensors in SafeTensors format to w.
func WriteTo(w io.Writer, tensors map[string]*tensor.Tensor, metadata map[string]string) error {
	writer := &SafeTensorsWriter{w: w}
	return writer.WriteStateDict(tensors, metadata)
}

// WriteStateDict writes a state dictionary.
//
// Every tensor is stored as F64. The SHA-256 of the data section is added
// to the metadata under ChecksumKey.
func (w *SafeTensorsWriter) WriteStateDict(stateDict map[string]*tensor.Tensor, metadata map[string]string) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	if _, ok := stateDict[MetadataKey]; ok {
		return fmt.Errorf("%w: %q", ErrReservedTensorName, MetadataKey)
	}

	// SafeTensors requires sorted names.
	tensorNames := make([]string, 0, len(stateDict))
	for name := range stateDict {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		tensorNames = append(tensorNames, name)
	}
	sort.Strings(tensorNames)

	dtype, err := dtypeToSafeTensors(tensor.Float64)
	if err != nil {
		return err
	}

	header := SafeTensorsHeader{
		Metadata: make(map[string]string, len(metadata)+1),
		Tensors:  make(map[string]SafeTensorInfo, len(stateDict)),
	}
	for k, v := range metadata {
		header.Metadata[k] = v
	}

	var payload bytes.Buffer
	for _, name := range tensorNames {
		t := stateDict[name]
		start := int64(payload.Len())
		for _, v := range t.Data() {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			payload.Write(buf[:])
		}
		header.Tensors[name] = SafeTensorInfo{
			DType:       dtype,
			Shape:       append([]int(nil), t.Shape()...),
			DataOffsets: [2]int64{start, int64(payload.Len())},
		}
	}

	sum := ComputeChecksum(payload.Bytes())
	header.Metadata[ChecksumKey] = hex.EncodeToString(sum[:])

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, len(headerJSON))
	}

	if err := binary.Write(w.w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.w.Write(payload.Bytes()); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// Close closes the writer and the underlying file, if any.
func (w *SafeTensorsWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
