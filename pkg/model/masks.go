package model

import (
	"fmt"

	"seqtrans/pkg/tensor"
)

// Mask construction for attention. Masks are 0/1 tensors shaped for direct
// broadcasting against (batch, heads, qLen, kLen) score tensors: a source
// mask is (batch, 1, 1, srcLen) and a target mask is
// (batch, 1, trgLen, trgLen). The attention contract downstream is
// mask-zero in, weight exactly zero out.

// SourceMask marks real (non-padding) source positions.
//
// Input shape: (batch, srcLen) of ids
// Output shape: (batch, 1, 1, srcLen), 1 where the id differs from padID.
func SourceMask(src *tensor.Tensor, padID int) (*tensor.Tensor, error) {
	if len(src.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D ids (batch, seq), got %dD with shape %v",
			len(src.Shape), src.Shape)
	}

	batchSize, srcLen := src.Shape[0], src.Shape[1]
	mask := tensor.NewTensor([]int{batchSize, 1, 1, srcLen})

	for b := 0; b < batchSize; b++ {
		for s := 0; s < srcLen; s++ {
			if int(src.Get([]int{b, s})) != padID {
				mask.Data[b*srcLen+s] = 1
			}
		}
	}

	return mask, nil
}

// TargetMask combines the padding mask of the target sequence with the
// causal (no-lookahead) constraint: entry (i, j) is 1 iff position j is
// non-padding AND j <= i.
//
// Input shape: (batch, trgLen) of ids
// Output shape: (batch, 1, trgLen, trgLen)
func TargetMask(trg *tensor.Tensor, padID int) (*tensor.Tensor, error) {
	if len(trg.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D ids (batch, seq), got %dD with shape %v",
			len(trg.Shape), trg.Shape)
	}

	batchSize, trgLen := trg.Shape[0], trg.Shape[1]
	causal := tensor.CausalMask(trgLen)
	mask := tensor.NewTensor([]int{batchSize, 1, trgLen, trgLen})

	for b := 0; b < batchSize; b++ {
		for i := 0; i < trgLen; i++ {
			for j := 0; j < trgLen; j++ {
				if causal.Data[i*trgLen+j] != 0 && int(trg.Get([]int{b, j})) != padID {
					mask.Data[(b*trgLen+i)*trgLen+j] = 1
				}
			}
		}
	}

	return mask, nil
}
