// Package attention implements the two attention mechanisms used by the
// transduction cores:
//
//   - Additive: single-query alignment of a decoder state against an encoder
//     memory (used by the recurrent decoder).
//   - MultiHead: batched scaled dot-product attention over parallel heads
//     (used for transformer self-attention and cross-attention).
//
// Both honor the same masking contract: where a mask entry is zero the
// normalized weight is exactly zero; a nil mask means no restriction.
package attention

import (
	"fmt"

	"seqtrans/pkg/model"
	"seqtrans/pkg/tensor"
)

// Additive aligns a single decoder state against every memory position.
//
// For each position j the energy is v^T tanh(W [s; h_j]); a softmax over the
// positions turns the energies into alignment weights.
type Additive struct {
	Attn *model.Linear  // (dec_dim + mem_dim, attn_dim)
	V    *tensor.Tensor // (attn_dim,) - energy reduction vector
}

// NewAdditive creates an additive attention module.
//
// decDim is the width of the query state, memDim the width of one memory
// position, attnDim the projected energy dimension.
func NewAdditive(decDim, memDim, attnDim int) *Additive {
	return &Additive{
		Attn: model.NewLinear(decDim+memDim, attnDim, true),
		V:    tensor.NewTensor([]int{attnDim}),
	}
}

// Align computes alignment weights and the context vector.
//
// Input shapes:
//   - query: (batch, dec_dim) - previous decoder state
//   - memory: (batch, src_len, mem_dim) - encoder memory
//   - mask: optional, (batch, 1, 1, src_len) or (batch, src_len); nil means
//     every memory position is eligible (the base design assumes fully valid
//     source sequences)
//
// Output shapes:
//   - weights: (batch, src_len), non-negative, summing to 1 per example
//   - context: (batch, mem_dim) = weights · memory
func (a *Additive) Align(query, memory, mask *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	if len(query.Shape) != 2 {
		return nil, nil, fmt.Errorf("expected 2D query (batch, dec_dim), got %dD with shape %v",
			len(query.Shape), query.Shape)
	}
	if len(memory.Shape) != 3 {
		return nil, nil, fmt.Errorf("expected 3D memory (batch, src_len, mem_dim), got %dD with shape %v",
			len(memory.Shape), memory.Shape)
	}

	batchSize, decDim := query.Shape[0], query.Shape[1]
	srcLen, memDim := memory.Shape[1], memory.Shape[2]

	if memory.Shape[0] != batchSize {
		return nil, nil, fmt.Errorf("query batch %d doesn't match memory batch %d",
			batchSize, memory.Shape[0])
	}
	if decDim+memDim != a.Attn.Weight.Shape[0] {
		return nil, nil, fmt.Errorf("query dim %d + memory dim %d doesn't match projection input %d",
			decDim, memDim, a.Attn.Weight.Shape[0])
	}

	// Broadcast the state across src_len and pair it with each memory
	// position: (batch, src_len, dec_dim + mem_dim).
	paired := tensor.NewTensor([]int{batchSize, srcLen, decDim + memDim})
	for b := 0; b < batchSize; b++ {
		state := query.Data[b*decDim : (b+1)*decDim]
		for s := 0; s < srcLen; s++ {
			dst := paired.Data[(b*srcLen+s)*(decDim+memDim):]
			copy(dst[:decDim], state)
			copy(dst[decDim:decDim+memDim], memory.Data[(b*srcLen+s)*memDim:(b*srcLen+s+1)*memDim])
		}
	}

	projected, err := a.Attn.Forward(paired)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to project energies: %w", err)
	}
	energy := projected.Tanh()

	// Reduce the projected dimension to one scalar score per position.
	scores, err := tensor.Matmul(energy, a.V.Reshape([]int{len(a.V.Data), 1}))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reduce energies: %w", err)
	}
	scores = scores.Reshape([]int{batchSize, srcLen})

	if mask != nil {
		flat := mask
		if mask.Size() == batchSize*srcLen {
			flat = mask.Reshape([]int{batchSize, srcLen})
		}
		scores, err = tensor.ApplyMask(scores, flat)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to mask energies: %w", err)
		}
	}

	weights := tensor.Softmax(scores)
	if mask != nil {
		flat := mask
		if mask.Size() == batchSize*srcLen {
			flat = mask.Reshape([]int{batchSize, srcLen})
		}
		weights, err = tensor.ZeroMasked(weights, flat)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to zero masked weights: %w", err)
		}
	}

	// context = weights · memory: (batch, 1, src_len) @ (batch, src_len, mem_dim)
	context, err := tensor.Matmul(weights.Reshape([]int{batchSize, 1, srcLen}), memory)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute context: %w", err)
	}

	return weights, context.Reshape([]int{batchSize, memDim}), nil
}

// Parameters returns the module's parameter tensors.
func (a *Additive) Parameters() []*tensor.Tensor {
	return append(a.Attn.Parameters(), a.V)
}
