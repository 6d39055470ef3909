package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/born-ml/scs/internal/tensor"
)

func mustTensor(t *testing.T, data []float64, shape ...int) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromSlice(data, tensor.Shape(shape))
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}
	return x
}

// TestSafeTensorsRoundTrip tests round-trip: write → read → verify.
func TestSafeTensorsRoundTrip(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "roundtrip.safetensors")

	kernel := mustTensor(t, []float64{1, -2, 3.5, 1e-300, math.Pi, -0.0}, 1, 2, 3)
	sharpness := mustTensor(t, []float64{14.142135623730951}, 1)
	threshold := mustTensor(t, []float64{10}, 1)

	stateDict := map[string]*tensor.Tensor{
		"kernel":          kernel,
		"sharpness":       sharpness,
		"noise_threshold": threshold,
	}
	metadata := map[string]string{"layout": "einsum", "kernel_size": "3"}

	if err := WriteSafeTensors(testFile, stateDict, metadata); err != nil {
		t.Fatalf("WriteSafeTensors failed: %v", err)
	}

	bundle, err := ReadSafeTensors(testFile)
	if err != nil {
		t.Fatalf("ReadSafeTensors failed: %v", err)
	}

	if got := bundle.Names(); len(got) != 3 || got[0] != "kernel" || got[1] != "noise_threshold" || got[2] != "sharpness" {
		t.Errorf("Names() = %v", got)
	}
	for name, want := range stateDict {
		got := bundle.Tensors[name]
		if got == nil {
			t.Fatalf("tensor %q missing", name)
		}
		if !tensor.Equal(got, want) {
			t.Errorf("tensor %q not bit-identical after round trip: got %v want %v", name, got.Data(), want.Data())
		}
		if bundle.DTypes[name] != tensor.Float64 {
			t.Errorf("tensor %q dtype = %v, want float64", name, bundle.DTypes[name])
		}
	}

	if bundle.Metadata["layout"] != "einsum" || bundle.Metadata["kernel_size"] != "3" {
		t.Errorf("metadata not preserved: %v", bundle.Metadata)
	}
	if bundle.Metadata[ChecksumKey] == "" {
		t.Error("writer should record a payload checksum")
	}
}

// TestSafeTensorsStridedTensor verifies views are written in logical order.
func TestSafeTensorsStridedTensor(t *testing.T) {
	x := mustTensor(t, []float64{1, 2, 3, 4, 5, 6}, 2, 3).Permute(1, 0)

	var buf bytes.Buffer
	if err := WriteTo(&buf, map[string]*tensor.Tensor{"x": x}, nil); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	bundle, err := ReadFrom(&buf, ReaderOptions{})
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}

	got := bundle.Tensors["x"]
	want := []float64{1, 4, 2, 5, 3, 6}
	if !got.Shape().Equal(tensor.Shape{3, 2}) {
		t.Fatalf("shape = %v, want [3 2]", got.Shape())
	}
	for i, v := range got.Data() {
		if v != want[i] {
			t.Errorf("element %d = %v, want %v", i, v, want[i])
		}
	}
}

// rawSafeTensors builds a SafeTensors stream by hand.
func rawSafeTensors(t *testing.T, header map[string]any, payload []byte) []byte {
	t.Helper()
	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(headerJSON)))
	buf.Write(headerJSON)
	buf.Write(payload)
	return buf.Bytes()
}

// TestReadFloat32 verifies F32 tensors written by other tools are widened.
func TestReadFloat32(t *testing.T) {
	values := []float32{0.5, -1.25, 3}
	payload := make([]byte, 0, 12)
	for _, v := range values {
		payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(v))
	}
	data := rawSafeTensors(t, map[string]any{
		"__metadata__": map[string]string{"format": "pt"},
		"sharpness":    map[string]any{"dtype": "F32", "shape": []int{3}, "data_offsets": []int64{0, 12}},
	}, payload)

	bundle, err := ReadFrom(bytes.NewReader(data), ReaderOptions{})
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if bundle.DTypes["sharpness"] != tensor.Float32 {
		t.Errorf("dtype = %v, want float32", bundle.DTypes["sharpness"])
	}
	got := bundle.Tensors["sharpness"].Data()
	for i, v := range values {
		if got[i] != float64(v) {
			t.Errorf("element %d = %v, want %v", i, got[i], v)
		}
	}
	if bundle.Metadata["format"] != "pt" {
		t.Errorf("metadata = %v", bundle.Metadata)
	}
}

// TestReadChecksumMismatch detects a corrupted data section.
func TestReadChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	x := mustTensor(t, []float64{1, 2, 3}, 3)
	if err := WriteTo(&buf, map[string]*tensor.Tensor{"x": x}, nil); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}

	data := buf.Bytes()
	data[len(data)-1] ^= 0xff

	_, err := ReadFrom(bytes.NewReader(data), ReaderOptions{})
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Expected ErrChecksumMismatch, got: %v", err)
	}
}

// TestReadChecksumStreamed verifies the checksum over a reader that returns
// one byte per call, and that a failing stream is reported.
func TestReadChecksumStreamed(t *testing.T) {
	var buf bytes.Buffer
	x := mustTensor(t, []float64{1, 2, 3, 4}, 2, 2)
	if err := WriteTo(&buf, map[string]*tensor.Tensor{"x": x}, nil); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	data := buf.Bytes()

	bundle, err := ReadFrom(iotest.OneByteReader(bytes.NewReader(data)), ReaderOptions{})
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if !tensor.Equal(bundle.Tensors["x"], x) {
		t.Errorf("tensor mismatch: got %v", bundle.Tensors["x"].Data())
	}

	corrupted := append([]byte(nil), data...)
	corrupted[len(corrupted)-2] ^= 0x01
	if _, err := ReadFrom(iotest.OneByteReader(bytes.NewReader(corrupted)), ReaderOptions{}); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Expected ErrChecksumMismatch, got: %v", err)
	}

	// A read error inside the data section surfaces as an error.
	failing := io.MultiReader(bytes.NewReader(data[:len(data)-4]), iotest.ErrReader(io.ErrUnexpectedEOF))
	if _, err := ReadFrom(failing, ReaderOptions{}); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Expected io.ErrUnexpectedEOF, got: %v", err)
	}
}

// TestReadErrors covers malformed streams.
func TestReadErrors(t *testing.T) {
	f64 := func(n int, start int64) map[string]any {
		return map[string]any{"dtype": "F64", "shape": []int{n}, "data_offsets": []int64{start, start + int64(n)*8}}
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{
			name:    "out of bounds",
			data:    rawSafeTensors(t, map[string]any{"x": f64(4, 0)}, make([]byte, 16)),
			wantErr: ErrOutOfBounds,
		},
		{
			name:    "overlap",
			data:    rawSafeTensors(t, map[string]any{"a": f64(2, 0), "b": f64(2, 8)}, make([]byte, 24)),
			wantErr: ErrOffsetOverlap,
		},
		{
			name: "unsupported dtype",
			data: rawSafeTensors(t, map[string]any{
				"x": map[string]any{"dtype": "I64", "shape": []int{1}, "data_offsets": []int64{0, 8}},
			}, make([]byte, 8)),
			wantErr: ErrUnsupportedDType,
		},
		{
			name:    "bad name",
			data:    rawSafeTensors(t, map[string]any{"a/b": f64(1, 0)}, make([]byte, 8)),
			wantErr: ErrInvalidTensorName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrom(bytes.NewReader(tt.data), ReaderOptions{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ReadFrom() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestReadHeaderTooLarge rejects absurd header sizes before allocating.
func TestReadHeaderTooLarge(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(MaxHeaderSize+1))

	_, err := ReadFrom(&buf, ReaderOptions{})
	if !errors.Is(err, ErrHeaderTooLarge) {
		t.Errorf("Expected ErrHeaderTooLarge, got: %v", err)
	}
}

// TestReadTruncated reports short streams.
func TestReadTruncated(t *testing.T) {
	if _, err := ReadFrom(bytes.NewReader([]byte{1, 2}), ReaderOptions{}); err == nil {
		t.Error("Expected error for truncated header size")
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(64))
	buf.WriteString("{}")
	if _, err := ReadFrom(&buf, ReaderOptions{}); err == nil {
		t.Error("Expected error for truncated header")
	}
}

// TestWriteReservedName rejects the metadata key as a tensor name.
func TestWriteReservedName(t *testing.T) {
	var buf bytes.Buffer
	x := mustTensor(t, []float64{1}, 1)
	err := WriteTo(&buf, map[string]*tensor.Tensor{MetadataKey: x}, nil)
	if !errors.Is(err, ErrReservedTensorName) {
		t.Errorf("Expected ErrReservedTensorName, got: %v", err)
	}

	err = WriteTo(&buf, map[string]*tensor.Tensor{"../x": x}, nil)
	if !errors.Is(err, ErrInvalidTensorName) {
		t.Errorf("Expected ErrInvalidTensorName, got: %v", err)
	}
}

// TestWriterClosed verifies a closed writer refuses to write.
func TestWriterClosed(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "closed.safetensors")
	w, err := NewSafeTensorsWriter(testFile)
	if err != nil {
		t.Fatalf("NewSafeTensorsWriter failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got: %v", err)
	}
	if err := w.WriteStateDict(map[string]*tensor.Tensor{}, nil); err == nil {
		t.Error("Expected error writing to closed writer")
	}
}

// TestReadMissingFile wraps the open error.
func TestReadMissingFile(t *testing.T) {
	_, err := ReadSafeTensors(filepath.Join(t.TempDir(), "missing.safetensors"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got: %v", err)
	}
}
