package model

import (
	"fmt"
	"math"

	"seqtrans/pkg/tensor"
)

// LayerNorm implements layer normalization with learnable scale and shift.
//
// The input is normalized across the last dimension and transformed by a
// learned scale (gamma) and shift (beta):
//
//	x_norm = (x - mean) / sqrt(var + eps)
//	output = x_norm * scale + shift
type LayerNorm struct {
	Scale *tensor.Tensor // (dim,) - gamma parameter
	Shift *tensor.Tensor // (dim,) - beta parameter
	Eps   float64
}

// NewLayerNorm creates a LayerNorm with scale initialized to 1 and shift to 0.
func NewLayerNorm(dim int, eps float64) *LayerNorm {
	scale := tensor.NewTensor([]int{dim})
	for i := range scale.Data {
		scale.Data[i] = 1
	}

	return &LayerNorm{
		Scale: scale,
		Shift: tensor.NewTensor([]int{dim}),
		Eps:   eps,
	}
}

// Forward applies layer normalization.
//
// Input shape: (..., dim)
// Output shape: same as input
func (ln *LayerNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) == 0 {
		return nil, fmt.Errorf("cannot apply LayerNorm to 0D tensor")
	}

	lastDim := x.Shape[len(x.Shape)-1]
	if lastDim != len(ln.Scale.Data) {
		return nil, fmt.Errorf("input last dimension %d doesn't match LayerNorm dimension %d",
			lastDim, len(ln.Scale.Data))
	}

	numSlices := len(x.Data) / lastDim
	result := tensor.NewTensor(x.Shape)

	for sliceIdx := 0; sliceIdx < numSlices; sliceIdx++ {
		offset := sliceIdx * lastDim
		src := x.Data[offset : offset+lastDim]
		dst := result.Data[offset : offset+lastDim]

		mean := 0.0
		for _, v := range src {
			mean += v
		}
		mean /= float64(lastDim)

		variance := 0.0
		for _, v := range src {
			diff := v - mean
			variance += diff * diff
		}
		variance /= float64(lastDim)

		invStd := 1 / math.Sqrt(variance+ln.Eps)

		for i, v := range src {
			dst[i] = (v-mean)*invStd*ln.Scale.Data[i] + ln.Shift.Data[i]
		}
	}

	return result, nil
}

// Parameters returns the layer's parameter tensors.
func (ln *LayerNorm) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{ln.Scale, ln.Shift}
}
