// Package train provides the collaborator surfaces the core consumes from an
// external training driver: the cross-entropy loss value, the warmup learning
// rate schedule, and the optimizer interface. Gradient computation and the
// update step itself stay with the driver.
package train

import (
	"fmt"

	"seqtrans/pkg/tensor"
)

// CrossEntropy computes the mean negative log-likelihood of the targets
// under the softmax of the logits, skipping positions whose target equals
// ignoreIndex (the padding id).
//
// Input shapes:
//   - logits: (batch, seq, vocab)
//   - targets: (batch, seq) ids
//
// Returns the mean loss over non-ignored positions.
func CrossEntropy(logits, targets *tensor.Tensor, ignoreIndex int) (float64, error) {
	if len(logits.Shape) != 3 {
		return 0, fmt.Errorf("expected 3D logits (batch, seq, vocab), got %dD with shape %v",
			len(logits.Shape), logits.Shape)
	}
	if len(targets.Shape) != 2 {
		return 0, fmt.Errorf("expected 2D targets (batch, seq), got %dD with shape %v",
			len(targets.Shape), targets.Shape)
	}

	batchSize, seqLen, vocab := logits.Shape[0], logits.Shape[1], logits.Shape[2]
	if targets.Shape[0] != batchSize || targets.Shape[1] != seqLen {
		return 0, fmt.Errorf("targets shape %v doesn't match logits shape %v", targets.Shape, logits.Shape)
	}

	logProbs := tensor.LogSoftmax(logits)

	sum := 0.0
	count := 0
	for b := 0; b < batchSize; b++ {
		for s := 0; s < seqLen; s++ {
			target := int(targets.Get([]int{b, s}))
			if target == ignoreIndex {
				continue
			}
			if target < 0 || target >= vocab {
				return 0, fmt.Errorf("target id %d at position (%d, %d) out of vocabulary range %d",
					target, b, s, vocab)
			}
			sum -= logProbs.Get([]int{b, s, target})
			count++
		}
	}

	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}
