package model

import (
	"fmt"

	"seqtrans/pkg/tensor"
)

// Linear is an affine projection y = x @ W + b applied to the last dimension.
type Linear struct {
	Weight *tensor.Tensor // (in_features, out_features)
	Bias   *tensor.Tensor // (out_features,) or nil
}

// NewLinear creates a linear layer with zeroed weight and bias.
// Weights are expected to be filled by the initializers in this package.
func NewLinear(inFeatures, outFeatures int, withBias bool) *Linear {
	l := &Linear{
		Weight: tensor.NewTensor([]int{inFeatures, outFeatures}),
	}
	if withBias {
		l.Bias = tensor.NewTensor([]int{outFeatures})
	}
	return l
}

// Forward applies the projection.
//
// Input shape: (..., in_features)
// Output shape: (..., out_features)
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	lastDim := x.Shape[len(x.Shape)-1]
	if lastDim != l.Weight.Shape[0] {
		return nil, fmt.Errorf("input dimension %d doesn't match weight input dimension %d",
			lastDim, l.Weight.Shape[0])
	}

	out, err := tensor.Matmul(x, l.Weight)
	if err != nil {
		return nil, fmt.Errorf("failed to apply linear projection: %w", err)
	}

	if l.Bias != nil {
		out, err = tensor.Add(out, l.Bias)
		if err != nil {
			return nil, fmt.Errorf("failed to add bias: %w", err)
		}
	}

	return out, nil
}

// Parameters returns the layer's parameter tensors.
func (l *Linear) Parameters() []*tensor.Tensor {
	if l.Bias == nil {
		return []*tensor.Tensor{l.Weight}
	}
	return []*tensor.Tensor{l.Weight, l.Bias}
}
