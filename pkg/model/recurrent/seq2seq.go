package recurrent

import (
	"fmt"
	"math"
	"math/rand"

	"seqtrans/pkg/model"
	"seqtrans/pkg/model/attention"
	"seqtrans/pkg/tensor"
)

// Seq2Seq composes the bidirectional encoder and the attention decoder.
//
// Training is stepwise: at every step the decoder consumes either the gold
// previous token (with the teacher-forcing probability) or its own argmax
// prediction. Inference is the same loop with the gold path removed.
type Seq2Seq struct {
	Config  Config
	Encoder *Encoder
	Decoder *Decoder

	rng *rand.Rand
}

// New creates a recurrent seq2seq model with weights initialized from the
// given random stream. Panics on an invalid configuration.
func New(cfg Config, rng *rand.Rand) *Seq2Seq {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid config: %v", err))
	}

	attn := attention.NewAdditive(cfg.DecHidden, 2*cfg.EncHidden, cfg.AttnDim)

	m := &Seq2Seq{
		Config:  cfg,
		Encoder: NewEncoder(cfg),
		Decoder: NewDecoder(cfg, attn),
		rng:     rng,
	}
	m.Encoder.Rng = rng
	m.Decoder.Rng = rng
	m.initWeights(attn, rng)
	m.SetTraining(true)
	return m
}

func (m *Seq2Seq) initWeights(attn *attention.Additive, rng *rand.Rand) {
	model.NormalInit(m.Encoder.Embed.TokTable, 0.02, rng)
	model.NormalInit(m.Decoder.Embed.TokTable, 0.02, rng)

	for _, cell := range []*GRUCell{m.Encoder.Fwd, m.Encoder.Bwd, m.Decoder.Cell} {
		inScale := 1 / math.Sqrt(float64(cell.InputSize))
		hidScale := 1 / math.Sqrt(float64(cell.HiddenSize))
		for gate := range cell.WeightIH {
			model.NormalInit(cell.WeightIH[gate], inScale, rng)
			model.NormalInit(cell.WeightHH[gate], hidScale, rng)
		}
	}

	model.InitLinear(m.Encoder.InitProj, rng)
	model.InitLinear(attn.Attn, rng)
	model.NormalInit(attn.V, 0.1, rng)
	model.InitLinear(m.Decoder.OutProj, rng)
}

// SetTraining toggles training mode (dropout) for the whole model.
func (m *Seq2Seq) SetTraining(training bool) {
	m.Encoder.Training = training
	m.Decoder.Training = training
}

// Forward runs the stepwise training pass.
//
// The gold target starts with the start token; step t consumes either the
// gold token at t-1 (with probability teacherForcing) or the model's own
// previous argmax, and predicts the token at t. Logits at position 0 stay
// zero, matching the convention that nothing predicts the start token.
//
// Input shapes:
//   - src: (batch, src_len) ids
//   - trg: (batch, trg_len) full gold ids including the start token
//
// Output shape: (batch, trg_len, trg_vocab)
func (m *Seq2Seq) Forward(src, trg *tensor.Tensor, teacherForcing float64) (*tensor.Tensor, error) {
	if len(src.Shape) != 2 || len(trg.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D id tensors, got src %v trg %v", src.Shape, trg.Shape)
	}
	if teacherForcing < 0 || teacherForcing > 1 {
		return nil, fmt.Errorf("teacher forcing ratio must be in [0, 1], got %g", teacherForcing)
	}

	batchSize, trgLen := trg.Shape[0], trg.Shape[1]
	vocab := m.Config.TrgVocabSize

	memory, state, err := m.Encoder.Encode(src, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encode source: %w", err)
	}

	outputs := tensor.NewTensor([]int{batchSize, trgLen, vocab})

	input, err := trg.SliceN([]int{0, 0}, []int{batchSize, 1})
	if err != nil {
		return nil, fmt.Errorf("failed to slice start tokens: %w", err)
	}

	for t := 1; t < trgLen; t++ {
		logits, nextState, _, err := m.Decoder.Step(input, state, memory, nil)
		if err != nil {
			return nil, fmt.Errorf("decoder step %d failed: %w", t, err)
		}
		state = nextState

		for b := 0; b < batchSize; b++ {
			copy(outputs.Data[(b*trgLen+t)*vocab:(b*trgLen+t+1)*vocab], logits.Data[b*vocab:(b+1)*vocab])
		}

		useGold := teacherForcing > 0 && m.rng.Float64() < teacherForcing
		if useGold {
			input, err = trg.SliceN([]int{0, t}, []int{batchSize, t + 1})
			if err != nil {
				return nil, fmt.Errorf("failed to slice gold tokens at step %d: %w", t, err)
			}
		} else {
			input = tensor.Argmax(logits).Reshape([]int{batchSize, 1})
		}
	}

	return outputs, nil
}

// Generate decodes greedily from a source batch.
//
// Each example starts from sosID; finished examples are padded with the pad
// id until the whole batch emits eosID or maxLen tokens have been generated.
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

	memory, state, err := m.Encoder.Encode(src, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encode source: %w", err)
	}

	out := tensor.NewTensor([]int{batchSize, 1})
	input := tensor.NewTensor([]int{batchSize, 1})
	for b := 0; b < batchSize; b++ {
		out.Set([]int{b, 0}, float64(sosID))
		input.Set([]int{b, 0}, float64(sosID))
	}

	done := make([]bool, batchSize)

	for step := 0; step < maxLen; step++ {
		logits, nextState, _, err := m.Decoder.Step(input, state, memory, nil)
		if err != nil {
			return nil, fmt.Errorf("decoder step failed at %d: %w", step, err)
		}
		state = nextState

		next := tensor.NewTensor([]int{batchSize, 1})
		preds := tensor.Argmax(logits)
		allDone := true
		for b := 0; b < batchSize; b++ {
			if done[b] {
				next.Set([]int{b, 0}, float64(m.Config.PadID))
				continue
			}
			tok := int(preds.Data[b])
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
		input = next

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
