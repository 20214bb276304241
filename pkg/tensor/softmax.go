package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// maskedOut is the score written at positions excluded by a mask before
// softmax. A large negative value rather than -Inf, so that a fully masked
// row degrades to a uniform distribution instead of NaN.
const maskedOut = -1e10

// Softmax applies softmax along the last dimension.
// Each row is shifted by its maximum before exponentiation for stability.
func Softmax(t *Tensor) *Tensor {
	if len(t.Shape) == 0 {
		return t.Clone()
	}

	rowSize := t.Shape[len(t.Shape)-1]
	numRows := len(t.Data) / rowSize

	result := NewTensor(t.Shape)

	for row := 0; row < numRows; row++ {
		src := t.Data[row*rowSize : (row+1)*rowSize]
		dst := result.Data[row*rowSize : (row+1)*rowSize]

		maxVal := floats.Max(src)
		for i, v := range src {
			dst[i] = math.Exp(v - maxVal)
		}
		sum := floats.Sum(dst)
		floats.Scale(1/sum, dst)
	}

	return result
}

// LogSoftmax applies log-softmax along the last dimension.
func LogSoftmax(t *Tensor) *Tensor {
	if len(t.Shape) == 0 {
		return t.Clone()
	}

	rowSize := t.Shape[len(t.Shape)-1]
	numRows := len(t.Data) / rowSize

	result := NewTensor(t.Shape)

	for row := 0; row < numRows; row++ {
		src := t.Data[row*rowSize : (row+1)*rowSize]
		dst := result.Data[row*rowSize : (row+1)*rowSize]

		maxVal := floats.Max(src)
		sum := 0.0
		for _, v := range src {
			sum += math.Exp(v - maxVal)
		}
		logSum := maxVal + math.Log(sum)
		for i, v := range src {
			dst[i] = v - logSum
		}
	}

	return result
}

// ApplyMask overwrites scores with a large negative constant wherever the
// mask is zero. The mask broadcasts against the scores: a (batch, 1, 1, kLen)
// padding mask or a (batch, 1, qLen, kLen) combined mask applies to
// (batch, heads, qLen, kLen) scores.
func ApplyMask(scores, mask *Tensor) (*Tensor, error) {
	if _, err := broadcastShapes(scores.Shape, mask.Shape); err != nil {
		return nil, fmt.Errorf("mask shape %v does not broadcast against scores %v: %w",
			mask.Shape, scores.Shape, err)
	}

	result := NewTensor(scores.Shape)

	indices := make([]int, len(scores.Shape))
	var iterate func(dim int)
	iterate = func(dim int) {
		if dim == len(scores.Shape) {
			idx := scores.FlatIndex(indices)
			if mask.Data[broadcastIndex(indices, scores.Shape, mask.Shape)] == 0 {
				result.Data[idx] = maskedOut
			} else {
				result.Data[idx] = scores.Data[idx]
			}
			return
		}
		for i := 0; i < scores.Shape[dim]; i++ {
			indices[dim] = i
			iterate(dim + 1)
		}
	}
	iterate(0)

	return result, nil
}

// ZeroMasked forces entries to exactly zero wherever the mask is zero.
// Applied to post-softmax weights so that masked positions carry no residue
// from the large-negative-score trick.
func ZeroMasked(weights, mask *Tensor) (*Tensor, error) {
	if _, err := broadcastShapes(weights.Shape, mask.Shape); err != nil {
		return nil, fmt.Errorf("mask shape %v does not broadcast against weights %v: %w",
			mask.Shape, weights.Shape, err)
	}

	result := weights.Clone()

	indices := make([]int, len(weights.Shape))
	var iterate func(dim int)
	iterate = func(dim int) {
		if dim == len(weights.Shape) {
			if mask.Data[broadcastIndex(indices, weights.Shape, mask.Shape)] == 0 {
				result.Data[result.FlatIndex(indices)] = 0
			}
			return
		}
		for i := 0; i < weights.Shape[dim]; i++ {
			indices[dim] = i
			iterate(dim + 1)
		}
	}
	iterate(0)

	return result, nil
}

// CausalMask creates a lower-triangular mask of shape (seqLen, seqLen):
// entry (i, j) is 1 iff j <= i. It depends only on the length, never on
// the token content.
func CausalMask(seqLen int) *Tensor {
	mask := NewTensor([]int{seqLen, seqLen})
	for i := 0; i < seqLen; i++ {
		for j := 0; j <= i; j++ {
			mask.Data[i*seqLen+j] = 1
		}
	}
	return mask
}

// Argmax returns the index of the maximum value along the last dimension.
//
// Input shape: (..., n)
// Output shape: (...) with the last dimension dropped, holding indices.
func Argmax(t *Tensor) *Tensor {
	if len(t.Shape) == 0 {
		panic("argmax requires at least 1 dimension")
	}

	rowSize := t.Shape[len(t.Shape)-1]
	numRows := len(t.Data) / rowSize

	result := NewTensor(t.Shape[:len(t.Shape)-1])

	for row := 0; row < numRows; row++ {
		src := t.Data[row*rowSize : (row+1)*rowSize]
		maxIdx := 0
		maxVal := math.Inf(-1)
		for i, v := range src {
			if v > maxVal {
				maxVal = v
				maxIdx = i
			}
		}
		result.Data[row] = float64(maxIdx)
	}

	return result
}
