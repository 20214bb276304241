package transformer

import (
	"fmt"
	"math/rand"

	"seqtrans/pkg/model"
	"seqtrans/pkg/tensor"
)

// FeedForward is the position-wise two-layer sub-block: expand to FFHidden,
// ReLU, dropout, contract back to Hidden.
type FeedForward struct {
	FC1     *model.Linear // (hidden, ff_hidden)
	FC2     *model.Linear // (ff_hidden, hidden)
	Dropout float64
}

// NewFeedForward creates the sub-block with zeroed weights.
func NewFeedForward(hidden, ffHidden int, dropout float64) *FeedForward {
	return &FeedForward{
		FC1:     model.NewLinear(hidden, ffHidden, true),
		FC2:     model.NewLinear(ffHidden, hidden, true),
		Dropout: dropout,
	}
}

// Forward applies the sub-block.
//
// Input shape: (batch, seq, hidden)
// Output shape: (batch, seq, hidden)
func (ff *FeedForward) Forward(x *tensor.Tensor, training bool, rng *rand.Rand) (*tensor.Tensor, error) {
	hidden, err := ff.FC1.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("failed to expand: %w", err)
	}

	activated := hidden.ReLU()
	if ff.Dropout > 0 {
		activated = activated.Dropout(ff.Dropout, training, rng)
	}

	out, err := ff.FC2.Forward(activated)
	if err != nil {
		return nil, fmt.Errorf("failed to contract: %w", err)
	}

	return out, nil
}

// Parameters returns the sub-block's parameter tensors.
func (ff *FeedForward) Parameters() []*tensor.Tensor {
	return append(ff.FC1.Parameters(), ff.FC2.Parameters()...)
}
