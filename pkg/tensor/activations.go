package tensor

import "math"

// ReLU applies the rectified linear unit element-wise.
//
// Used by the transformer feed-forward sub-block (expand, ReLU, contract).
func (t *Tensor) ReLU() *Tensor {
	result := NewTensor(t.Shape)
	for i, v := range t.Data {
		if v > 0 {
			result.Data[i] = v
		}
	}
	return result
}

// Tanh applies the hyperbolic tangent element-wise.
func (t *Tensor) Tanh() *Tensor {
	result := NewTensor(t.Shape)
	for i, v := range t.Data {
		result.Data[i] = math.Tanh(v)
	}
	return result
}

// Sigmoid applies the logistic function element-wise.
func (t *Tensor) Sigmoid() *Tensor {
	result := NewTensor(t.Shape)
	for i, v := range t.Data {
		result.Data[i] = 1 / (1 + math.Exp(-v))
	}
	return result
}
