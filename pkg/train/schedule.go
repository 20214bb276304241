package train

import "math"

// Optimizer is the interface the external training driver exposes to the
// core: apply the accumulated update, then clear the gradients. Forward
// passes never run concurrently with Step.
type Optimizer interface {
	Step()
	ZeroGrad()
}

// NoamSchedule is the warmup-then-decay learning rate schedule: the rate
// grows linearly for Warmup steps and decays with the inverse square root of
// the step count after.
type NoamSchedule struct {
	Scale  float64
	Warmup float64
}

// NewNoamSchedule creates a schedule. warmup must be positive.
func NewNoamSchedule(scale float64, warmup int) *NoamSchedule {
	if warmup <= 0 {
		panic("warmup must be positive")
	}
	return &NoamSchedule{Scale: scale, Warmup: float64(warmup)}
}

// Rate returns the learning rate for a global step count (1-based).
//
//	rate(step) = scale * min(step^-0.5, step * warmup^-1.5)
func (s *NoamSchedule) Rate(step int) float64 {
	if step < 1 {
		step = 1
	}
	t := float64(step)
	return s.Scale * math.Min(1/math.Sqrt(t), t*math.Pow(s.Warmup, -1.5))
}
