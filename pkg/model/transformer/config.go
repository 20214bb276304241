// Package transformer implements the stacked self-attention encoder-decoder:
// N post-norm layers of multi-head attention and feed-forward sub-blocks,
// with explicit source and target masks, a teacher-forced training pass, and
// greedy autoregressive decoding.
package transformer

import "fmt"

// Config holds the transformer hyperparameters.
type Config struct {
	// SrcVocabSize is the source vocabulary size.
	SrcVocabSize int

	// TrgVocabSize is the target vocabulary size.
	TrgVocabSize int

	// Hidden is the model width H; must be divisible by NumHeads.
	Hidden int

	// NumLayers is the number of encoder layers and of decoder layers.
	NumLayers int

	// NumHeads is the number of attention heads.
	NumHeads int

	// FFHidden is the inner width of the feed-forward sub-block.
	FFHidden int

	// Dropout is the dropout probability.
	Dropout float64

	// MaxPositions bounds the absolute position index.
	MaxPositions int

	// MaxDecodeLen bounds free-running generation (excluding the start token).
	MaxDecodeLen int

	// PadID is the reserved padding id in both vocabularies.
	PadID int
}

// DefaultConfig returns a small configuration in the shape of the reference
// setup: 3 layers, 8 heads, 256 wide.
func DefaultConfig(srcVocab, trgVocab int) Config {
	return Config{
		SrcVocabSize: srcVocab,
		TrgVocabSize: trgVocab,
		Hidden:       256,
		NumLayers:    3,
		NumHeads:     8,
		FFHidden:     512,
		Dropout:      0.1,
		MaxPositions: 1000,
		MaxDecodeLen: 50,
		PadID:        0,
	}
}

// Validate checks that the configuration is consistent.
func (c Config) Validate() error {
	if c.Hidden <= 0 || c.NumHeads <= 0 || c.Hidden%c.NumHeads != 0 {
		return fmt.Errorf("hidden size (%d) must be positive and divisible by num_heads (%d)",
			c.Hidden, c.NumHeads)
	}
	if c.SrcVocabSize <= 0 || c.TrgVocabSize <= 0 {
		return fmt.Errorf("vocabulary sizes must be positive, got src=%d trg=%d",
			c.SrcVocabSize, c.TrgVocabSize)
	}
	if c.NumLayers <= 0 {
		return fmt.Errorf("num_layers must be positive, got %d", c.NumLayers)
	}
	if c.FFHidden <= 0 {
		return fmt.Errorf("feed-forward width must be positive, got %d", c.FFHidden)
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("max_positions must be positive, got %d", c.MaxPositions)
	}
	if c.MaxDecodeLen <= 0 {
		return fmt.Errorf("max_decode_len must be positive, got %d", c.MaxDecodeLen)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("dropout must be in [0, 1), got %g", c.Dropout)
	}
	if c.PadID < 0 || c.PadID >= c.SrcVocabSize || c.PadID >= c.TrgVocabSize {
		return fmt.Errorf("pad id %d out of vocabulary range", c.PadID)
	}
	return nil
}
