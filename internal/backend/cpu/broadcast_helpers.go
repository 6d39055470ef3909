package cpu

import (
	"github.com/born-ml/scs/internal/tensor"
)

// broadcastStrides returns strides that map an outShape multi-index onto t's
// storage. Broadcast dimensions (size 1 or missing on the left) get stride 0.
func broadcastStrides(t *tensor.Tensor, outShape tensor.Shape) []int {
	inShape := t.Shape()
	inStrides := t.Strides()
	outDim := len(outShape)
	offset := outDim - len(inShape)

	strides := make([]int, outDim)
	for i := 0; i < outDim; i++ {
		inIdx := i - offset
		if inIdx < 0 || inShape[inIdx] == 1 {
			continue
		}
		strides[i] = inStrides[inIdx]
	}
	return strides
}
