package transformer

import (
	"fmt"
	"math/rand"

	"seqtrans/pkg/model"
	"seqtrans/pkg/model/attention"
	"seqtrans/pkg/tensor"
)

// EncoderLayer is one encoder block: self-attention then feed-forward, each
// followed by residual-add and normalization. The normalization runs after
// the residual add (post-norm).
type EncoderLayer struct {
	SelfAttn *attention.MultiHead
	FF       *FeedForward
	AttnNorm *model.LayerNorm
	FFNorm   *model.LayerNorm
	Dropout  float64
}

// NewEncoderLayer creates one encoder layer.
func NewEncoderLayer(cfg Config) *EncoderLayer {
	return &EncoderLayer{
		SelfAttn: attention.NewMultiHead(cfg.Hidden, cfg.NumHeads, cfg.Dropout),
		FF:       NewFeedForward(cfg.Hidden, cfg.FFHidden, cfg.Dropout),
		AttnNorm: model.NewLayerNorm(cfg.Hidden, 1e-6),
		FFNorm:   model.NewLayerNorm(cfg.Hidden, 1e-6),
		Dropout:  cfg.Dropout,
	}
}

// Forward applies the layer.
//
// Input shapes:
//   - x: (batch, src_len, hidden)
//   - srcMask: (batch, 1, 1, src_len)
//
// Output shape: (batch, src_len, hidden)
func (l *EncoderLayer) Forward(x, srcMask *tensor.Tensor, training bool, rng *rand.Rand) (*tensor.Tensor, error) {
	attnOut, _, err := l.SelfAttn.Forward(x, x, x, srcMask, training, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to compute self-attention: %w", err)
	}
	if l.Dropout > 0 {
		attnOut = attnOut.Dropout(l.Dropout, training, rng)
	}
	sum, err := tensor.Add(x, attnOut)
	if err != nil {
		return nil, fmt.Errorf("failed to add attention residual: %w", err)
	}
	x, err = l.AttnNorm.Forward(sum)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize after attention: %w", err)
	}

	ffOut, err := l.FF.Forward(x, training, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to compute feed-forward: %w", err)
	}
	if l.Dropout > 0 {
		ffOut = ffOut.Dropout(l.Dropout, training, rng)
	}
	sum, err = tensor.Add(x, ffOut)
	if err != nil {
		return nil, fmt.Errorf("failed to add feed-forward residual: %w", err)
	}
	out, err := l.FFNorm.Forward(sum)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize after feed-forward: %w", err)
	}

	return out, nil
}

// Encoder embeds the source and applies the layer stack. Layers share no
// weights.
type Encoder struct {
	Embed  *model.Embedder
	Layers []*EncoderLayer

	Training bool
	Rng      *rand.Rand
}

// NewEncoder creates the encoder stack with zeroed weights.
func NewEncoder(cfg Config) *Encoder {
	layers := make([]*EncoderLayer, cfg.NumLayers)
	for i := range layers {
		layers[i] = NewEncoderLayer(cfg)
	}
	return &Encoder{
		Embed:  model.NewEmbedder(cfg.SrcVocabSize, cfg.Hidden, cfg.MaxPositions, true, cfg.Dropout),
		Layers: layers,
	}
}

// Encode produces the memory for a source batch. The summary state is nil:
// the transformer carries no recurrent state.
//
// Input shapes:
//   - src: (batch, src_len) ids
//   - srcMask: (batch, 1, 1, src_len)
//
// Output shape: memory (batch, src_len, hidden)
func (e *Encoder) Encode(src, srcMask *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	x, err := e.Embed.Forward(src, e.Training, e.Rng)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to embed source: %w", err)
	}

	for i, layer := range e.Layers {
		x, err = layer.Forward(x, srcMask, e.Training, e.Rng)
		if err != nil {
			return nil, nil, fmt.Errorf("failed in encoder layer %d: %w", i, err)
		}
	}

	return x, nil, nil
}

// Parameters returns all encoder parameter tensors.
func (e *Encoder) Parameters() []*tensor.Tensor {
	params := e.Embed.Parameters()
	for _, l := range e.Layers {
		params = append(params, l.SelfAttn.Parameters()...)
		params = append(params, l.FF.Parameters()...)
		params = append(params, l.AttnNorm.Parameters()...)
		params = append(params, l.FFNorm.Parameters()...)
	}
	return params
}
