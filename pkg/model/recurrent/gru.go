package recurrent

import (
	"fmt"

	"seqtrans/pkg/tensor"
)

const (
	gruGateUpdate = iota
	gruGateReset
	gruGateNew
	gruGateTotal
)

// GRUCell is a single-layer, single-direction gated recurrent unit advanced
// one time step at a time.
type GRUCell struct {
	InputSize  int
	HiddenSize int

	WeightIH [gruGateTotal]*tensor.Tensor // (input, hidden) per gate
	WeightHH [gruGateTotal]*tensor.Tensor // (hidden, hidden) per gate
	BiasIH   [gruGateTotal]*tensor.Tensor // (hidden,) per gate
	BiasHH   [gruGateTotal]*tensor.Tensor // (hidden,) per gate
}

// NewGRUCell creates a cell with zeroed weights.
func NewGRUCell(inputSize, hiddenSize int) *GRUCell {
	c := &GRUCell{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
	}
	for gate := 0; gate < gruGateTotal; gate++ {
		c.WeightIH[gate] = tensor.NewTensor([]int{inputSize, hiddenSize})
		c.WeightHH[gate] = tensor.NewTensor([]int{hiddenSize, hiddenSize})
		c.BiasIH[gate] = tensor.NewTensor([]int{hiddenSize})
		c.BiasHH[gate] = tensor.NewTensor([]int{hiddenSize})
	}
	return c
}

// Step advances the cell by one time step.
//
// Input shapes:
//   - x: (batch, input_size)
//   - h: (batch, hidden_size) previous state; nil means zeros
//
// Both return values hold the new hidden state: for a one-layer,
// one-direction cell the per-step output and the carried state are the same
// tensor by construction. Callers should treat them as one value;
// VerifyStepInvariant makes the equivalence checkable.
func (c *GRUCell) Step(x, h *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	if len(x.Shape) != 2 || x.Shape[1] != c.InputSize {
		return nil, nil, fmt.Errorf("expected input shape (batch, %d), got %v", c.InputSize, x.Shape)
	}

	batchSize := x.Shape[0]
	if h == nil {
		h = tensor.NewTensor([]int{batchSize, c.HiddenSize})
	}
	if len(h.Shape) != 2 || h.Shape[0] != batchSize || h.Shape[1] != c.HiddenSize {
		return nil, nil, fmt.Errorf("expected state shape (%d, %d), got %v", batchSize, c.HiddenSize, h.Shape)
	}

	zPre, err := c.affine(x, h, gruGateUpdate)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute update gate: %w", err)
	}
	z := zPre.Sigmoid()

	rPre, err := c.affine(x, h, gruGateReset)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute reset gate: %w", err)
	}
	r := rPre.Sigmoid()

	// Candidate state: tanh(x W_in + b_in + (r*h) W_hn + b_hn).
	rh, err := tensor.Mul(r, h)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to gate previous state: %w", err)
	}
	nPre, err := c.affine(x, rh, gruGateNew)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute candidate state: %w", err)
	}
	n := nPre.Tanh()

	// h' = (1-z)*n + z*h
	next := tensor.NewTensor([]int{batchSize, c.HiddenSize})
	for i := range next.Data {
		next.Data[i] = (1-z.Data[i])*n.Data[i] + z.Data[i]*h.Data[i]
	}

	return next, next, nil
}

// affine computes x W_ih + b_ih + h W_hh + b_hh for one gate.
func (c *GRUCell) affine(x, h *tensor.Tensor, gate int) (*tensor.Tensor, error) {
	inputPart, err := tensor.Matmul(x, c.WeightIH[gate])
	if err != nil {
		return nil, err
	}
	hiddenPart, err := tensor.Matmul(h, c.WeightHH[gate])
	if err != nil {
		return nil, err
	}
	sum, err := tensor.Add(inputPart, hiddenPart)
	if err != nil {
		return nil, err
	}
	sum, err = tensor.Add(sum, c.BiasIH[gate])
	if err != nil {
		return nil, err
	}
	return tensor.Add(sum, c.BiasHH[gate])
}

// Parameters returns the cell's parameter tensors.
func (c *GRUCell) Parameters() []*tensor.Tensor {
	params := make([]*tensor.Tensor, 0, gruGateTotal*4)
	for gate := 0; gate < gruGateTotal; gate++ {
		params = append(params, c.WeightIH[gate], c.WeightHH[gate], c.BiasIH[gate], c.BiasHH[gate])
	}
	return params
}

// VerifyStepInvariant checks the structural equivalence of a cell step's
// output and state. For a one-layer, one-direction cell the two must be
// identical; a difference signals an implementation bug, not a runtime
// condition to recover from.
func VerifyStepInvariant(output, state *tensor.Tensor) error {
	if output == nil || state == nil {
		return fmt.Errorf("cell step returned a nil tensor")
	}
	if !output.Equals(state, 0) {
		return fmt.Errorf("cell output diverges from returned state for a single-layer, single-direction cell")
	}
	return nil
}
