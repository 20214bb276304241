package transformer

import (
	"fmt"
	"math/rand"

	"seqtrans/pkg/model"
	"seqtrans/pkg/tensor"
)

// Seq2Seq composes the transformer encoder and decoder into one
// sequence-to-sequence model.
//
// Training uses a single teacher-forced pass: the caller supplies the target
// shifted by one position (drop the last token for the decoder input, drop
// the first for the loss target) and the causal mask prevents future
// leakage, so the decoder never iterates at inference granularity. Inference
// decodes greedily one token at a time.
type Seq2Seq struct {
	Config  Config
	Encoder *Encoder
	Decoder *Decoder

	rng *rand.Rand
}

// New creates a transformer seq2seq model with weights initialized from the
// given random stream. Panics on an invalid configuration.
func New(cfg Config, rng *rand.Rand) *Seq2Seq {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid config: %v", err))
	}

	m := &Seq2Seq{
		Config:  cfg,
		Encoder: NewEncoder(cfg),
		Decoder: NewDecoder(cfg),
		rng:     rng,
	}
	m.Encoder.Rng = rng
	m.Decoder.Rng = rng
	m.initWeights(rng)
	m.SetTraining(true)
	return m
}

func (m *Seq2Seq) initWeights(rng *rand.Rand) {
	model.NormalInit(m.Encoder.Embed.TokTable, 0.02, rng)
	model.NormalInit(m.Encoder.Embed.PosTable, 0.02, rng)
	model.NormalInit(m.Decoder.Embed.TokTable, 0.02, rng)
	model.NormalInit(m.Decoder.Embed.PosTable, 0.02, rng)

	for _, l := range m.Encoder.Layers {
		for _, lin := range []*model.Linear{l.SelfAttn.WQuery, l.SelfAttn.WKey, l.SelfAttn.WValue, l.SelfAttn.WOut, l.FF.FC1, l.FF.FC2} {
			model.InitLinear(lin, rng)
		}
	}
	for _, l := range m.Decoder.Layers {
		for _, lin := range []*model.Linear{l.SelfAttn.WQuery, l.SelfAttn.WKey, l.SelfAttn.WValue, l.SelfAttn.WOut,
			l.CrossAttn.WQuery, l.CrossAttn.WKey, l.CrossAttn.WValue, l.CrossAttn.WOut, l.FF.FC1, l.FF.FC2} {
			model.InitLinear(lin, rng)
		}
	}
	model.InitLinear(m.Decoder.OutProj, rng)
}

// SetTraining toggles training mode (dropout) for the whole model.
func (m *Seq2Seq) SetTraining(training bool) {
	m.Encoder.Training = training
	m.Decoder.Training = training
}

// Forward runs the teacher-forced pass.
//
// Input shapes:
//   - src: (batch, src_len) ids
//   - trg: (batch, trg_len) ids, already shifted (without the final token)
//
// Output shapes: logits (batch, trg_len, trg_vocab) and the decoder's last
// layer cross-attention weights (batch, heads, trg_len, src_len).
func (m *Seq2Seq) Forward(src, trg *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	srcMask, err := model.SourceMask(src, m.Config.PadID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build source mask: %w", err)
	}
	trgMask, err := model.TargetMask(trg, m.Config.PadID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build target mask: %w", err)
	}

	memory, _, err := m.Encoder.Encode(src, srcMask)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode source: %w", err)
	}

	logits, attn, err := m.Decoder.Forward(trg, memory, trgMask, srcMask)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode target: %w", err)
	}

	return logits, attn, nil
}

// Generate decodes greedily from a source batch.
//
// Each example starts from sosID; at every step the masks are rebuilt for
// the grown prefix, one decoder pass runs, and the argmax token at the last
// position is appended. An example is done once it emits eosID; done
// examples are padded with the pad id until the whole batch finishes or the
// sequence reaches maxLen generated tokens.
//
// Input shape: src (batch, src_len)
// Output shape: (batch, <= maxLen+1) including the leading start token.
func (m *Seq2Seq) Generate(src *tensor.Tensor, sosID, eosID, maxLen int) (*tensor.Tensor, error) {
	if len(src.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D input (batch, src_len), got %dD with shape %v",
			len(src.Shape), src.Shape)
	}
	if maxLen <= 0 {
		maxLen = m.Config.MaxDecodeLen
	}

	batchSize := src.Shape[0]

	wasTraining := m.Encoder.Training
	m.SetTraining(false)
	defer m.SetTraining(wasTraining)

	srcMask, err := model.SourceMask(src, m.Config.PadID)
	if err != nil {
		return nil, fmt.Errorf("failed to build source mask: %w", err)
	}

	// Memory is computed once and shared read-only by every decoding step.
	memory, _, err := m.Encoder.Encode(src, srcMask)
	if err != nil {
		return nil, fmt.Errorf("failed to encode source: %w", err)
	}

	out := tensor.NewTensor([]int{batchSize, 1})
	for b := 0; b < batchSize; b++ {
		out.Set([]int{b, 0}, float64(sosID))
	}

	done := make([]bool, batchSize)

	for step := 0; step < maxLen; step++ {
		trgMask, err := model.TargetMask(out, m.Config.PadID)
		if err != nil {
			return nil, fmt.Errorf("failed to build target mask at step %d: %w", step, err)
		}

		logits, _, err := m.Decoder.Forward(out, memory, trgMask, srcMask)
		if err != nil {
			return nil, fmt.Errorf("decoder pass failed at step %d: %w", step, err)
		}

		curLen := out.Shape[1]
		next := tensor.NewTensor([]int{batchSize, 1})
		allDone := true
		for b := 0; b < batchSize; b++ {
			if done[b] {
				next.Set([]int{b, 0}, float64(m.Config.PadID))
				continue
			}

			row, err := logits.SliceN(
				[]int{b, curLen - 1, 0},
				[]int{b + 1, curLen, m.Config.TrgVocabSize},
			)
			if err != nil {
				return nil, fmt.Errorf("failed to slice logits at step %d: %w", step, err)
			}
			tok := int(tensor.Argmax(row).Data[0])
			next.Set([]int{b, 0}, float64(tok))
			if tok == eosID {
				done[b] = true
			} else {
				allDone = false
			}
		}

		out, err = tensor.Concatenate([]*tensor.Tensor{out, next}, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to append token at step %d: %w", step, err)
		}

		if allDone {
			break
		}
	}

	return out, nil
}

// Parameters returns every parameter tensor of the model.
func (m *Seq2Seq) Parameters() []*tensor.Tensor {
	return append(m.Encoder.Parameters(), m.Decoder.Parameters()...)
}
