// Package recurrent implements the recurrent encoder-decoder: a
// bidirectional GRU encoder producing a per-position memory and a fused
// summary state, and a single-step GRU decoder that attends over the memory
// with additive attention. Training is stepwise with a teacher-forcing coin
// flip; inference is greedy and free-running.
package recurrent

import "fmt"

// Config holds the recurrent model hyperparameters.
type Config struct {
	// SrcVocabSize is the source vocabulary size.
	SrcVocabSize int

	// TrgVocabSize is the target vocabulary size.
	TrgVocabSize int

	// EncEmbDim is the source embedding width.
	EncEmbDim int

	// DecEmbDim is the target embedding width.
	DecEmbDim int

	// EncHidden is the per-direction encoder GRU width; the memory is twice
	// as wide (forward and backward states concatenated).
	EncHidden int

	// DecHidden is the decoder GRU width.
	DecHidden int

	// AttnDim is the projected energy dimension of the additive attention.
	AttnDim int

	// Dropout is the dropout probability on embeddings.
	Dropout float64

	// MaxDecodeLen bounds free-running generation (excluding the start token).
	MaxDecodeLen int

	// TeacherForcing is the probability of feeding the gold token instead of
	// the model's own prediction during the stepwise training pass.
	TeacherForcing float64

	// PadID is the reserved padding id in both vocabularies.
	PadID int
}

// DefaultConfig returns a small configuration in the shape of the reference
// setup.
func DefaultConfig(srcVocab, trgVocab int) Config {
	return Config{
		SrcVocabSize:   srcVocab,
		TrgVocabSize:   trgVocab,
		EncEmbDim:      256,
		DecEmbDim:      256,
		EncHidden:      512,
		DecHidden:      512,
		AttnDim:        64,
		Dropout:        0.5,
		MaxDecodeLen:   50,
		TeacherForcing: 0.5,
		PadID:          0,
	}
}

// Validate checks that the configuration is consistent.
func (c Config) Validate() error {
	if c.SrcVocabSize <= 0 || c.TrgVocabSize <= 0 {
		return fmt.Errorf("vocabulary sizes must be positive, got src=%d trg=%d",
			c.SrcVocabSize, c.TrgVocabSize)
	}
	if c.EncEmbDim <= 0 || c.DecEmbDim <= 0 {
		return fmt.Errorf("embedding sizes must be positive, got enc=%d dec=%d",
			c.EncEmbDim, c.DecEmbDim)
	}
	if c.EncHidden <= 0 || c.DecHidden <= 0 {
		return fmt.Errorf("hidden sizes must be positive, got enc=%d dec=%d",
			c.EncHidden, c.DecHidden)
	}
	if c.AttnDim <= 0 {
		return fmt.Errorf("attention dimension must be positive, got %d", c.AttnDim)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("dropout must be in [0, 1), got %g", c.Dropout)
	}
	if c.MaxDecodeLen <= 0 {
		return fmt.Errorf("max_decode_len must be positive, got %d", c.MaxDecodeLen)
	}
	if c.TeacherForcing < 0 || c.TeacherForcing > 1 {
		return fmt.Errorf("teacher forcing ratio must be in [0, 1], got %g", c.TeacherForcing)
	}
	if c.PadID < 0 || c.PadID >= c.SrcVocabSize || c.PadID >= c.TrgVocabSize {
		return fmt.Errorf("pad id %d out of vocabulary range", c.PadID)
	}
	return nil
}
