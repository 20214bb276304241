package transformer

import (
	"fmt"
	"math/rand"

	"seqtrans/pkg/model"
	"seqtrans/pkg/model/attention"
	"seqtrans/pkg/tensor"
)

// DecoderLayer is one decoder block: masked self-attention over the target
// so far, cross-attention with the encoder memory as key/value, then the
// feed-forward sub-block. Each stage is residual-add then post-norm.
type DecoderLayer struct {
	SelfAttn  *attention.MultiHead
	CrossAttn *attention.MultiHead
	FF        *FeedForward
	SelfNorm  *model.LayerNorm
	CrossNorm *model.LayerNorm
	FFNorm    *model.LayerNorm
	Dropout   float64
}

// NewDecoderLayer creates one decoder layer.
func NewDecoderLayer(cfg Config) *DecoderLayer {
	return &DecoderLayer{
		SelfAttn:  attention.NewMultiHead(cfg.Hidden, cfg.NumHeads, cfg.Dropout),
		CrossAttn: attention.NewMultiHead(cfg.Hidden, cfg.NumHeads, cfg.Dropout),
		FF:        NewFeedForward(cfg.Hidden, cfg.FFHidden, cfg.Dropout),
		SelfNorm:  model.NewLayerNorm(cfg.Hidden, 1e-6),
		CrossNorm: model.NewLayerNorm(cfg.Hidden, 1e-6),
		FFNorm:    model.NewLayerNorm(cfg.Hidden, 1e-6),
		Dropout:   cfg.Dropout,
	}
}

// Forward applies the layer.
//
// Input shapes:
//   - x: (batch, trg_len, hidden)
//   - memory: (batch, src_len, hidden)
//   - trgMask: (batch, 1, trg_len, trg_len) causal+padding mask
//   - srcMask: (batch, 1, 1, src_len)
//
// Output shapes: (batch, trg_len, hidden) and the cross-attention weights
// (batch, heads, trg_len, src_len).
func (l *DecoderLayer) Forward(x, memory, trgMask, srcMask *tensor.Tensor, training bool, rng *rand.Rand) (*tensor.Tensor, *tensor.Tensor, error) {
	selfOut, _, err := l.SelfAttn.Forward(x, x, x, trgMask, training, rng)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute masked self-attention: %w", err)
	}
	if l.Dropout > 0 {
		selfOut = selfOut.Dropout(l.Dropout, training, rng)
	}
	sum, err := tensor.Add(x, selfOut)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to add self-attention residual: %w", err)
	}
	x, err = l.SelfNorm.Forward(sum)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to normalize after self-attention: %w", err)
	}

	crossOut, crossWeights, err := l.CrossAttn.Forward(x, memory, memory, srcMask, training, rng)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute cross-attention: %w", err)
	}
	if l.Dropout > 0 {
		crossOut = crossOut.Dropout(l.Dropout, training, rng)
	}
	sum, err = tensor.Add(x, crossOut)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to add cross-attention residual: %w", err)
	}
	x, err = l.CrossNorm.Forward(sum)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to normalize after cross-attention: %w", err)
	}

	ffOut, err := l.FF.Forward(x, training, rng)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute feed-forward: %w", err)
	}
	if l.Dropout > 0 {
		ffOut = ffOut.Dropout(l.Dropout, training, rng)
	}
	sum, err = tensor.Add(x, ffOut)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to add feed-forward residual: %w", err)
	}
	out, err := l.FFNorm.Forward(sum)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to normalize after feed-forward: %w", err)
	}

	return out, crossWeights, nil
}

// Decoder embeds the target prefix, applies the layer stack, and projects to
// vocabulary logits. It also reports the last layer's cross-attention
// weights for inspection.
type Decoder struct {
	Embed   *model.Embedder
	Layers  []*DecoderLayer
	OutProj *model.Linear // (hidden, trg_vocab)

	Training bool
	Rng      *rand.Rand
}

// NewDecoder creates the decoder stack with zeroed weights.
func NewDecoder(cfg Config) *Decoder {
	layers := make([]*DecoderLayer, cfg.NumLayers)
	for i := range layers {
		layers[i] = NewDecoderLayer(cfg)
	}
	return &Decoder{
		Embed:   model.NewEmbedder(cfg.TrgVocabSize, cfg.Hidden, cfg.MaxPositions, true, cfg.Dropout),
		Layers:  layers,
		OutProj: model.NewLinear(cfg.Hidden, cfg.TrgVocabSize, true),
	}
}

// Forward decodes a (possibly partial) target sequence against the memory.
//
// Input shapes:
//   - trg: (batch, trg_len) ids
//   - memory: (batch, src_len, hidden)
//   - trgMask: (batch, 1, trg_len, trg_len)
//   - srcMask: (batch, 1, 1, src_len)
//
// Output shapes: logits (batch, trg_len, trg_vocab) and the last layer's
// cross-attention weights (batch, heads, trg_len, src_len).
func (d *Decoder) Forward(trg, memory, trgMask, srcMask *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	x, err := d.Embed.Forward(trg, d.Training, d.Rng)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to embed target: %w", err)
	}

	var crossWeights *tensor.Tensor
	for i, layer := range d.Layers {
		x, crossWeights, err = layer.Forward(x, memory, trgMask, srcMask, d.Training, d.Rng)
		if err != nil {
			return nil, nil, fmt.Errorf("failed in decoder layer %d: %w", i, err)
		}
	}

	logits, err := d.OutProj.Forward(x)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to project to vocabulary: %w", err)
	}

	return logits, crossWeights, nil
}

// Parameters returns all decoder parameter tensors.
func (d *Decoder) Parameters() []*tensor.Tensor {
	params := d.Embed.Parameters()
	for _, l := range d.Layers {
		params = append(params, l.SelfAttn.Parameters()...)
		params = append(params, l.CrossAttn.Parameters()...)
		params = append(params, l.FF.Parameters()...)
		params = append(params, l.SelfNorm.Parameters()...)
		params = append(params, l.CrossNorm.Parameters()...)
		params = append(params, l.FFNorm.Parameters()...)
	}
	params = append(params, d.OutProj.Parameters()...)
	return params
}
