package tensor

import (
	"math"
	"math/rand"
	"testing"
)

// TestDropout_Inference checks the pass-through outside training.
func TestDropout_Inference(t *testing.T) {
	x := NewTensorFromData([]float64{1, 2, 3, 4}, []int{2, 2})

	out := x.Dropout(0.5, false, nil)
	if !out.Equals(x, 0) {
		t.Errorf("inference dropout changed the input")
	}
	if &out.Data[0] == &x.Data[0] {
		t.Errorf("inference dropout must not alias the input data")
	}
}

// TestDropout_ZeroProbability checks p == 0 is a no-op even in training.
func TestDropout_ZeroProbability(t *testing.T) {
	x := NewTensorFromData([]float64{1, 2, 3}, []int{3})
	out := x.Dropout(0, true, nil)
	if !out.Equals(x, 0) {
		t.Errorf("zero-probability dropout changed the input")
	}
}

// TestDropout_Training checks survivors are scaled by 1/(1-p) and the drop
// fraction is plausible on a large input.
func TestDropout_Training(t *testing.T) {
	p := 0.3
	n := 10000
	x := NewTensor([]int{n})
	for i := range x.Data {
		x.Data[i] = 1
	}

	out := x.Dropout(p, true, rand.New(rand.NewSource(1)))

	scale := 1 / (1 - p)
	dropped := 0
	for i, v := range out.Data {
		switch {
		case v == 0:
			dropped++
		case math.Abs(v-scale) > 1e-12:
			t.Fatalf("survivor %d = %v, want %v", i, v, scale)
		}
	}

	rate := float64(dropped) / float64(n)
	if math.Abs(rate-p) > 0.03 {
		t.Errorf("drop rate = %v, want approximately %v", rate, p)
	}
}

// TestDropout_Deterministic checks the same seed yields the same mask.
func TestDropout_Deterministic(t *testing.T) {
	x := NewTensor([]int{100})
	for i := range x.Data {
		x.Data[i] = float64(i)
	}

	a := x.Dropout(0.5, true, rand.New(rand.NewSource(7)))
	b := x.Dropout(0.5, true, rand.New(rand.NewSource(7)))
	if !a.Equals(b, 0) {
		t.Errorf("identical seeds produced different dropout masks")
	}
}

// TestDropout_PanicsWithoutRng checks the explicit-source requirement.
func TestDropout_PanicsWithoutRng(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic for active dropout without a random source")
		}
	}()
	NewTensor([]int{4}).Dropout(0.5, true, nil)
}

// TestActivations checks the element-wise functions on known values.
func TestActivations(t *testing.T) {
	x := NewTensorFromData([]float64{-2, 0, 3}, []int{3})

	t.Run("relu", func(t *testing.T) {
		want := []float64{0, 0, 3}
		out := x.ReLU()
		for i, w := range want {
			if out.Data[i] != w {
				t.Errorf("ReLU[%d] = %v, want %v", i, out.Data[i], w)
			}
		}
	})

	t.Run("tanh", func(t *testing.T) {
		out := x.Tanh()
		for i, v := range x.Data {
			if math.Abs(out.Data[i]-math.Tanh(v)) > 1e-15 {
				t.Errorf("Tanh[%d] = %v, want %v", i, out.Data[i], math.Tanh(v))
			}
		}
	})

	t.Run("sigmoid", func(t *testing.T) {
		out := x.Sigmoid()
		if math.Abs(out.Data[1]-0.5) > 1e-15 {
			t.Errorf("Sigmoid(0) = %v, want 0.5", out.Data[1])
		}
		for i, v := range out.Data {
			if v <= 0 || v >= 1 {
				t.Errorf("Sigmoid[%d] = %v, want in (0, 1)", i, v)
			}
		}
	})
}
