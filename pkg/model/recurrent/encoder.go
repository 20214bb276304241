package recurrent

import (
	"fmt"
	"math/rand"

	"seqtrans/pkg/model"
	"seqtrans/pkg/tensor"
)

// Encoder embeds the source and runs one bidirectional GRU layer over the
// full sequence. The memory concatenates the forward and backward states at
// each position; the decoder's initial state fuses the two final states
// through a linear projection and tanh, so information seen by either
// direction reaches the decoder.
type Encoder struct {
	Embed    *model.Embedder
	Fwd      *GRUCell
	Bwd      *GRUCell
	InitProj *model.Linear // (2*enc_hidden, dec_hidden)

	Training bool
	Rng      *rand.Rand
}

// NewEncoder creates the encoder with zeroed weights.
func NewEncoder(cfg Config) *Encoder {
	return &Encoder{
		Embed:    model.NewEmbedder(cfg.SrcVocabSize, cfg.EncEmbDim, 0, false, cfg.Dropout),
		Fwd:      NewGRUCell(cfg.EncEmbDim, cfg.EncHidden),
		Bwd:      NewGRUCell(cfg.EncEmbDim, cfg.EncHidden),
		InitProj: model.NewLinear(2*cfg.EncHidden, cfg.DecHidden, true),
	}
}

// Encode runs the bidirectional pass.
//
// The mask argument satisfies the shared Encoder capability but is unused:
// the additive-attention path assumes fully valid source sequences (see the
// masking note on attention.Additive).
//
// Input shape: src (batch, src_len) ids
// Output shapes:
//   - memory: (batch, src_len, 2*enc_hidden)
//   - state: (batch, dec_hidden) initial decoder state
func (e *Encoder) Encode(src, _ *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	embedded, err := e.Embed.Forward(src, e.Training, e.Rng)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to embed source: %w", err)
	}

	batchSize, srcLen, embDim := embedded.Shape[0], embedded.Shape[1], embedded.Shape[2]
	encHid := e.Fwd.HiddenSize

	memory := tensor.NewTensor([]int{batchSize, srcLen, 2 * encHid})

	stepAt := func(t int) (*tensor.Tensor, error) {
		return embedded.SliceN([]int{0, t, 0}, []int{batchSize, t + 1, embDim})
	}

	var hFwd *tensor.Tensor
	for t := 0; t < srcLen; t++ {
		step, err := stepAt(t)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to slice step %d: %w", t, err)
		}
		_, hFwd, err = e.Fwd.Step(step.Reshape([]int{batchSize, embDim}), hFwd)
		if err != nil {
			return nil, nil, fmt.Errorf("forward pass failed at step %d: %w", t, err)
		}
		for b := 0; b < batchSize; b++ {
			copy(memory.Data[(b*srcLen+t)*2*encHid:], hFwd.Data[b*encHid:(b+1)*encHid])
		}
	}

	var hBwd *tensor.Tensor
	for t := srcLen - 1; t >= 0; t-- {
		step, err := stepAt(t)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to slice step %d: %w", t, err)
		}
		_, hBwd, err = e.Bwd.Step(step.Reshape([]int{batchSize, embDim}), hBwd)
		if err != nil {
			return nil, nil, fmt.Errorf("backward pass failed at step %d: %w", t, err)
		}
		for b := 0; b < batchSize; b++ {
			copy(memory.Data[(b*srcLen+t)*2*encHid+encHid:], hBwd.Data[b*encHid:(b+1)*encHid])
		}
	}

	// Fuse the two final states into the decoder's initial state.
	finals, err := tensor.Concatenate([]*tensor.Tensor{hFwd, hBwd}, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to concatenate final states: %w", err)
	}
	projected, err := e.InitProj.Forward(finals)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to project initial state: %w", err)
	}

	return memory, projected.Tanh(), nil
}

// Parameters returns all encoder parameter tensors.
func (e *Encoder) Parameters() []*tensor.Tensor {
	params := e.Embed.Parameters()
	params = append(params, e.Fwd.Parameters()...)
	params = append(params, e.Bwd.Parameters()...)
	params = append(params, e.InitProj.Parameters()...)
	return params
}
