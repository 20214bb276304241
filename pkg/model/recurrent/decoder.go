package recurrent

import (
	"fmt"
	"math/rand"

	"seqtrans/pkg/model"
	"seqtrans/pkg/tensor"
)

// Decoder advances one time step at a time. Each step aligns the previous
// state against the encoder memory with the injected attention strategy,
// feeds the embedding and context through one GRU cell update, and projects
// embedding, context, and the new state to vocabulary logits.
type Decoder struct {
	Embed   *model.Embedder
	Attn    model.Attention
	Cell    *GRUCell
	OutProj *model.Linear // (dec_emb + mem_dim + dec_hidden, trg_vocab)

	memDim int

	Training bool
	Rng      *rand.Rand
}

// NewDecoder creates the decoder with zeroed weights, injecting the
// attention strategy.
func NewDecoder(cfg Config, attn model.Attention) *Decoder {
	memDim := 2 * cfg.EncHidden
	return &Decoder{
		Embed:   model.NewEmbedder(cfg.TrgVocabSize, cfg.DecEmbDim, 0, false, cfg.Dropout),
		Attn:    attn,
		Cell:    NewGRUCell(cfg.DecEmbDim+memDim, cfg.DecHidden),
		OutProj: model.NewLinear(cfg.DecEmbDim+memDim+cfg.DecHidden, cfg.TrgVocabSize, true),
		memDim:  memDim,
	}
}

// Step consumes one input token per example and the previous state.
//
// Input shapes:
//   - input: (batch, 1) ids
//   - state: (batch, dec_hidden) previous decoder state
//   - memory: (batch, src_len, 2*enc_hidden)
//   - mask: optional source mask forwarded to the attention strategy; nil
//     preserves the unmasked base behavior
//
// Output shapes:
//   - logits: (batch, trg_vocab)
//   - newState: (batch, dec_hidden)
//   - weights: (batch, src_len) alignment weights of this step
func (d *Decoder) Step(input, state, memory, mask *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor, error) {
	embedded, err := d.Embed.Forward(input, d.Training, d.Rng)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to embed input token: %w", err)
	}
	batchSize := input.Shape[0]
	embDim := embedded.Shape[2]
	emb := embedded.Reshape([]int{batchSize, embDim})

	weights, context, err := d.Attn.Align(state, memory, mask)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to align against memory: %w", err)
	}

	cellInput, err := tensor.Concatenate([]*tensor.Tensor{emb, context}, 1)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build cell input: %w", err)
	}

	output, newState, err := d.Cell.Step(cellInput, state)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("cell update failed: %w", err)
	}

	projIn, err := tensor.Concatenate([]*tensor.Tensor{emb, context, output}, 1)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build projection input: %w", err)
	}
	logits, err := d.OutProj.Forward(projIn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to project to vocabulary: %w", err)
	}

	return logits, newState, weights, nil
}

// Parameters returns all decoder parameter tensors.
func (d *Decoder) Parameters() []*tensor.Tensor {
	params := d.Embed.Parameters()
	if p, ok := d.Attn.(interface{ Parameters() []*tensor.Tensor }); ok {
		params = append(params, p.Parameters()...)
	}
	params = append(params, d.Cell.Parameters()...)
	params = append(params, d.OutProj.Parameters()...)
	return params
}
