package model

import (
	"math"
	"math/rand"

	"seqtrans/pkg/tensor"
)

// Weight initializers. Every initializer takes an explicit random stream so
// that model construction is deterministic under a seeded source.

// NormalInit fills a tensor with values from N(0, std^2).
func NormalInit(t *tensor.Tensor, std float64, rng *rand.Rand) {
	for i := range t.Data {
		t.Data[i] = rng.NormFloat64() * std
	}
}

// XavierUniformInit fills a tensor with Xavier/Glorot uniform values:
// U[-limit, limit] with limit = sqrt(6 / (fan_in + fan_out)) over the last
// two dimensions. 1D tensors (biases) fall back to a small uniform range.
func XavierUniformInit(t *tensor.Tensor, rng *rand.Rand) {
	if len(t.Shape) < 2 {
		for i := range t.Data {
			t.Data[i] = rng.Float64()*0.2 - 0.1
		}
		return
	}

	fanIn := t.Shape[len(t.Shape)-2]
	fanOut := t.Shape[len(t.Shape)-1]
	limit := math.Sqrt(6 / float64(fanIn+fanOut))

	for i := range t.Data {
		t.Data[i] = rng.Float64()*2*limit - limit
	}
}

// InitLinear applies Xavier-uniform to the weight and zeroes the bias.
func InitLinear(l *Linear, rng *rand.Rand) {
	XavierUniformInit(l.Weight, rng)
	if l.Bias != nil {
		for i := range l.Bias.Data {
			l.Bias.Data[i] = 0
		}
	}
}
