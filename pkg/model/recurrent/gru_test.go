package recurrent

import (
	"math"
	"math/rand"
	"testing"

	"seqtrans/pkg/model"
	"seqtrans/pkg/tensor"
)

func newTestCell(t *testing.T, inputSize, hiddenSize int, seed int64) *GRUCell {
	t.Helper()
	c := NewGRUCell(inputSize, hiddenSize)
	rng := rand.New(rand.NewSource(seed))
	inScale := 1 / math.Sqrt(float64(inputSize))
	hidScale := 1 / math.Sqrt(float64(hiddenSize))
	for gate := range c.WeightIH {
		model.NormalInit(c.WeightIH[gate], inScale, rng)
		model.NormalInit(c.WeightHH[gate], hidScale, rng)
	}
	return c
}

// TestGRUCell_Step checks shapes, the nil-state convention, and the
// output/state equivalence.
func TestGRUCell_Step(t *testing.T) {
	batch, inputSize, hiddenSize := 3, 4, 6
	c := newTestCell(t, inputSize, hiddenSize, 1)

	x := tensor.NewTensor([]int{batch, inputSize})
	rng := rand.New(rand.NewSource(2))
	for i := range x.Data {
		x.Data[i] = rng.NormFloat64()
	}

	output, state, err := c.Step(x, nil)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if output.Shape[0] != batch || output.Shape[1] != hiddenSize {
		t.Fatalf("output shape = %v, want [%d %d]", output.Shape, batch, hiddenSize)
	}
	if err := VerifyStepInvariant(output, state); err != nil {
		t.Errorf("step invariant violated: %v", err)
	}

	// A second step from the returned state must also hold the invariant.
	output, state, err = c.Step(x, state)
	if err != nil {
		t.Fatalf("second Step failed: %v", err)
	}
	if err := VerifyStepInvariant(output, state); err != nil {
		t.Errorf("step invariant violated on second step: %v", err)
	}
}

// TestGRUCell_ZeroWeights checks the gate arithmetic in the degenerate
// all-zero-weight case: z = 0.5 and n = 0, so the state halves each step.
func TestGRUCell_ZeroWeights(t *testing.T) {
	c := NewGRUCell(2, 3)

	h := tensor.NewTensorFromData([]float64{1, -2, 4}, []int{1, 3})
	x := tensor.NewTensor([]int{1, 2})

	next, _, err := c.Step(x, h)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	want := []float64{0.5, -1, 2}
	for i, w := range want {
		if got := next.Data[i]; math.Abs(got-w) > 1e-12 {
			t.Errorf("next[%d] = %v, want %v", i, got, w)
		}
	}
}

// TestGRUCell_StateBounded checks the state stays in (-1, 1) when started
// from zeros: every update interpolates between a tanh candidate and the
// previous state.
func TestGRUCell_StateBounded(t *testing.T) {
	c := newTestCell(t, 4, 5, 3)

	x := tensor.NewTensor([]int{2, 4})
	rng := rand.New(rand.NewSource(4))
	for i := range x.Data {
		x.Data[i] = rng.NormFloat64() * 3
	}

	var state *tensor.Tensor
	var err error
	for step := 0; step < 10; step++ {
		_, state, err = c.Step(x, state)
		if err != nil {
			t.Fatalf("Step %d failed: %v", step, err)
		}
	}
	for i, v := range state.Data {
		if v <= -1 || v >= 1 {
			t.Errorf("state[%d] = %v, want in (-1, 1)", i, v)
		}
	}
}

// TestGRUCell_ShapeErrors checks input validation.
func TestGRUCell_ShapeErrors(t *testing.T) {
	c := NewGRUCell(4, 6)

	t.Run("bad_input_size", func(t *testing.T) {
		x := tensor.NewTensor([]int{1, 5})
		if _, _, err := c.Step(x, nil); err == nil {
			t.Errorf("expected error for wrong input size")
		}
	})

	t.Run("bad_state_size", func(t *testing.T) {
		x := tensor.NewTensor([]int{1, 4})
		h := tensor.NewTensor([]int{1, 7})
		if _, _, err := c.Step(x, h); err == nil {
			t.Errorf("expected error for wrong state size")
		}
	})

	t.Run("batch_mismatch", func(t *testing.T) {
		x := tensor.NewTensor([]int{2, 4})
		h := tensor.NewTensor([]int{3, 6})
		if _, _, err := c.Step(x, h); err == nil {
			t.Errorf("expected error for mismatched batch")
		}
	})
}

// TestVerifyStepInvariant checks the violation cases directly.
func TestVerifyStepInvariant(t *testing.T) {
	a := tensor.NewTensorFromData([]float64{1, 2}, []int{1, 2})
	b := tensor.NewTensorFromData([]float64{1, 3}, []int{1, 2})

	if err := VerifyStepInvariant(a, a); err != nil {
		t.Errorf("unexpected error for identical tensors: %v", err)
	}
	if err := VerifyStepInvariant(a, b); err == nil {
		t.Errorf("expected error for diverging tensors")
	}
	if err := VerifyStepInvariant(nil, a); err == nil {
		t.Errorf("expected error for nil output")
	}
}
