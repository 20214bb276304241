package model

import (
	"fmt"
	"math"
	"math/rand"

	"seqtrans/pkg/tensor"
)

// Embedder maps integer token ids to vectors and adds a learned
// position-dependent signal.
//
// The token embedding is optionally scaled by sqrt(dim) before the position
// embedding is added (the transformer core scales, the recurrent core does
// not). Position indices are bounded by the size of the position table;
// exceeding it is a configuration error surfaced at the offending forward
// pass.
type Embedder struct {
	TokTable *tensor.Tensor // (vocab_size, dim)
	PosTable *tensor.Tensor // (max_positions, dim) or nil for token-only lookup
	Scaled   bool           // scale token vectors by sqrt(dim)
	Dropout  float64
}

// NewEmbedder creates an embedder with zeroed tables.
// maxPositions == 0 disables the positional component.
func NewEmbedder(vocabSize, dim, maxPositions int, scaled bool, dropout float64) *Embedder {
	e := &Embedder{
		TokTable: tensor.NewTensor([]int{vocabSize, dim}),
		Scaled:   scaled,
		Dropout:  dropout,
	}
	if maxPositions > 0 {
		e.PosTable = tensor.NewTensor([]int{maxPositions, dim})
	}
	return e
}

// Forward embeds a batch of id sequences.
//
// Input shape: (batch, seq) of integer ids stored as float64
// Output shape: (batch, seq, dim)
//
// Returns an error if an id exceeds the vocabulary bound or the sequence is
// longer than the position table.
func (e *Embedder) Forward(ids *tensor.Tensor, training bool, rng *rand.Rand) (*tensor.Tensor, error) {
	if len(ids.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D input (batch, seq), got %dD with shape %v",
			len(ids.Shape), ids.Shape)
	}

	batchSize, seqLen := ids.Shape[0], ids.Shape[1]
	vocabSize, dim := e.TokTable.Shape[0], e.TokTable.Shape[1]

	if e.PosTable != nil && seqLen > e.PosTable.Shape[0] {
		return nil, fmt.Errorf("sequence length %d exceeds maximum supported position %d",
			seqLen, e.PosTable.Shape[0])
	}

	scale := 1.0
	if e.Scaled {
		scale = math.Sqrt(float64(dim))
	}

	out := tensor.NewTensor([]int{batchSize, seqLen, dim})

	for b := 0; b < batchSize; b++ {
		for s := 0; s < seqLen; s++ {
			tokenID := int(ids.Get([]int{b, s}))
			if tokenID < 0 || tokenID >= vocabSize {
				return nil, fmt.Errorf("invalid token id %d at position (%d, %d), vocab size is %d",
					tokenID, b, s, vocabSize)
			}

			dst := out.Data[(b*seqLen+s)*dim : (b*seqLen+s+1)*dim]
			tok := e.TokTable.Data[tokenID*dim : (tokenID+1)*dim]
			if e.PosTable != nil {
				pos := e.PosTable.Data[s*dim : (s+1)*dim]
				for d := 0; d < dim; d++ {
					dst[d] = tok[d]*scale + pos[d]
				}
			} else {
				for d := 0; d < dim; d++ {
					dst[d] = tok[d] * scale
				}
			}
		}
	}

	if e.Dropout > 0 {
		return out.Dropout(e.Dropout, training, rng), nil
	}
	return out, nil
}

// Parameters returns the embedder's parameter tensors.
func (e *Embedder) Parameters() []*tensor.Tensor {
	if e.PosTable == nil {
		return []*tensor.Tensor{e.TokTable}
	}
	return []*tensor.Tensor{e.TokTable, e.PosTable}
}
