package attention

import (
	"fmt"
	"math"
	"math/rand"

	"seqtrans/pkg/model"
	"seqtrans/pkg/tensor"
)

// MultiHead implements multi-head scaled dot-product attention.
//
// Query, key, and value are projected to the hidden dimension, split into
// heads, scored as Q K^T / sqrt(d_k) per head, masked, normalized, and the
// weighted values are merged back through a final projection. The same
// module serves self-attention (q = k = v) and cross-attention (q from the
// decoder, k = v = encoder memory).
type MultiHead struct {
	NumHeads int
	HeadDim  int
	Hidden   int
	Dropout  float64

	WQuery *model.Linear // (hidden, hidden)
	WKey   *model.Linear // (hidden, hidden)
	WValue *model.Linear // (hidden, hidden)
	WOut   *model.Linear // (hidden, hidden)
}

// NewMultiHead creates a multi-head attention module.
// Panics if hidden is not divisible by numHeads; this is a configuration
// error, not a runtime condition.
func NewMultiHead(hidden, numHeads int, dropout float64) *MultiHead {
	if numHeads <= 0 || hidden%numHeads != 0 {
		panic(fmt.Sprintf("hidden size (%d) must be divisible by number of heads (%d)",
			hidden, numHeads))
	}

	return &MultiHead{
		NumHeads: numHeads,
		HeadDim:  hidden / numHeads,
		Hidden:   hidden,
		Dropout:  dropout,
		WQuery:   model.NewLinear(hidden, hidden, true),
		WKey:     model.NewLinear(hidden, hidden, true),
		WValue:   model.NewLinear(hidden, hidden, true),
		WOut:     model.NewLinear(hidden, hidden, true),
	}
}

// Forward computes multi-head attention.
//
// Input shapes:
//   - query: (batch, q_len, hidden)
//   - key, value: (batch, kv_len, hidden)
//   - mask: optional, broadcastable against (batch, heads, q_len, kv_len),
//     i.e. (batch, 1, 1, kv_len) or (batch, 1, q_len, q_len); nil means no
//     restriction
//   - training: enables dropout on the normalized weights
//   - rng: random stream for dropout; may be nil when dropout is inactive
//
// Output shapes:
//   - output: (batch, q_len, hidden)
//   - weights: (batch, heads, q_len, kv_len); exactly 0 wherever the mask is 0
func (m *MultiHead) Forward(query, key, value, mask *tensor.Tensor, training bool, rng *rand.Rand) (*tensor.Tensor, *tensor.Tensor, error) {
	for name, t := range map[string]*tensor.Tensor{"query": query, "key": key, "value": value} {
		if len(t.Shape) != 3 {
			return nil, nil, fmt.Errorf("expected 3D %s (batch, seq, hidden), got %dD with shape %v",
				name, len(t.Shape), t.Shape)
		}
		if t.Shape[2] != m.Hidden {
			return nil, nil, fmt.Errorf("%s dimension %d doesn't match hidden size %d",
				name, t.Shape[2], m.Hidden)
		}
	}

	batchSize, qLen := query.Shape[0], query.Shape[1]
	kvLen := key.Shape[1]
	if value.Shape[1] != kvLen {
		return nil, nil, fmt.Errorf("key length %d doesn't match value length %d", kvLen, value.Shape[1])
	}

	Q, err := m.WQuery.Forward(query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to project query: %w", err)
	}
	K, err := m.WKey.Forward(key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to project key: %w", err)
	}
	V, err := m.WValue.Forward(value)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to project value: %w", err)
	}

	// Split into heads: (batch, seq, hidden) -> (batch, heads, seq, head_dim).
	Q, err = Q.Reshape([]int{batchSize, qLen, m.NumHeads, m.HeadDim}).Transpose(1, 2)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to split query heads: %w", err)
	}
	K, err = K.Reshape([]int{batchSize, kvLen, m.NumHeads, m.HeadDim}).Transpose(1, 2)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to split key heads: %w", err)
	}
	V, err = V.Reshape([]int{batchSize, kvLen, m.NumHeads, m.HeadDim}).Transpose(1, 2)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to split value heads: %w", err)
	}

	// scores = Q K^T / sqrt(d_k): (batch, heads, q_len, kv_len)
	KT, err := K.Transpose(2, 3)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to transpose key: %w", err)
	}
	scores, err := tensor.Matmul(Q, KT)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute attention scores: %w", err)
	}
	scores = scores.Scale(1 / math.Sqrt(float64(m.HeadDim)))

	if mask != nil {
		scores, err = tensor.ApplyMask(scores, mask)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to apply mask: %w", err)
		}
	}

	weights := tensor.Softmax(scores)
	if mask != nil {
		weights, err = tensor.ZeroMasked(weights, mask)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to zero masked weights: %w", err)
		}
	}

	dropped := weights
	if m.Dropout > 0 && training {
		dropped = weights.Dropout(m.Dropout, training, rng)
	}

	// (batch, heads, q_len, kv_len) @ (batch, heads, kv_len, head_dim)
	attnOut, err := tensor.Matmul(dropped, V)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to apply attention to values: %w", err)
	}

	// Merge heads: (batch, heads, q_len, head_dim) -> (batch, q_len, hidden).
	attnOut, err = attnOut.Transpose(1, 2)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to merge heads: %w", err)
	}
	attnOut = attnOut.Reshape([]int{batchSize, qLen, m.Hidden})

	output, err := m.WOut.Forward(attnOut)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to apply output projection: %w", err)
	}

	return output, weights, nil
}

// Parameters returns the module's parameter tensors.
func (m *MultiHead) Parameters() []*tensor.Tensor {
	params := m.WQuery.Parameters()
	params = append(params, m.WKey.Parameters()...)
	params = append(params, m.WValue.Parameters()...)
	params = append(params, m.WOut.Parameters()...)
	return params
}
