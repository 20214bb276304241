// Package model provides the layers shared by both transduction cores:
// the token+position embedder, linear projections, layer normalization,
// the attention mask builder, and weight initialization.
//
// The two encoder-decoder variants live in the subpackages
// seqtrans/pkg/model/recurrent and seqtrans/pkg/model/transformer; the
// attention mechanisms they inject live in seqtrans/pkg/model/attention.
package model

import "seqtrans/pkg/tensor"

// Encoder is the capability both encoder variants implement: map source ids
// and a source mask to a per-position memory plus an optional summary state.
// The transformer encoder has no summary state and returns a nil state.
type Encoder interface {
	Encode(src, srcMask *tensor.Tensor) (memory, state *tensor.Tensor, err error)
}

// Attention aligns a query against a memory, producing normalized weights
// over the memory axis and the weighted context vector. A nil mask means no
// restriction. Implemented by attention.Additive; the multi-head variant has
// a wider contract (separate key/value projections) and is composed directly.
type Attention interface {
	Align(query, memory, mask *tensor.Tensor) (weights, context *tensor.Tensor, err error)
}
