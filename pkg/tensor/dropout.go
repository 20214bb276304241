package tensor

import "math/rand"

// Dropout randomly zeros out elements with probability p during training,
// scaling the survivors by 1/(1-p) (inverted dropout). During inference
// (training=false) the input is returned unchanged.
//
// The random stream is an explicit parameter so that forward passes stay
// deterministic under a seeded source; rng may be nil only when the dropout
// is a no-op (p == 0 or not training).
func (t *Tensor) Dropout(p float64, training bool, rng *rand.Rand) *Tensor {
	if !training || p == 0 {
		return t.Clone()
	}

	if p < 0 || p >= 1 {
		panic("dropout probability must be in [0, 1)")
	}
	if rng == nil {
		panic("dropout requires an explicit random source")
	}

	result := NewTensor(t.Shape)
	scale := 1 / (1 - p)

	for i := range t.Data {
		if rng.Float64() >= p {
			result.Data[i] = t.Data[i] * scale
		}
	}

	return result
}
