package model

import (
	"math"
	"testing"

	"seqtrans/pkg/tensor"
)

// TestLayerNorm_Normalizes checks each slice has zero mean and unit variance
// under identity scale and shift.
func TestLayerNorm_Normalizes(t *testing.T) {
	dim := 4
	ln := NewLayerNorm(dim, 1e-5)

	x := tensor.NewTensorFromData([]float64{1, 2, 3, 4, 10, 20, 30, 40}, []int{2, dim})
	out, err := ln.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	for row := 0; row < 2; row++ {
		mean, variance := 0.0, 0.0
		for d := 0; d < dim; d++ {
			mean += out.Get([]int{row, d})
		}
		mean /= float64(dim)
		for d := 0; d < dim; d++ {
			diff := out.Get([]int{row, d}) - mean
			variance += diff * diff
		}
		variance /= float64(dim)

		if math.Abs(mean) > 1e-6 {
			t.Errorf("row %d mean = %v, want 0", row, mean)
		}
		if math.Abs(variance-1) > 1e-3 {
			t.Errorf("row %d variance = %v, want 1", row, variance)
		}
	}
}

// TestLayerNorm_ScaleShift checks the learned affine transform.
func TestLayerNorm_ScaleShift(t *testing.T) {
	ln := NewLayerNorm(2, 1e-5)
	ln.Scale.Data[0], ln.Scale.Data[1] = 2, 3
	ln.Shift.Data[0], ln.Shift.Data[1] = 5, -5

	x := tensor.NewTensorFromData([]float64{-1, 1}, []int{1, 2})
	out, err := ln.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	// Normalized input is roughly [-1, 1].
	if math.Abs(out.Get([]int{0, 0})-3) > 1e-2 {
		t.Errorf("out[0] = %v, want approx 3", out.Get([]int{0, 0}))
	}
	if math.Abs(out.Get([]int{0, 1})+2) > 1e-2 {
		t.Errorf("out[1] = %v, want approx -2", out.Get([]int{0, 1}))
	}
}

// TestLayerNorm_DimMismatch checks the dimension guard.
func TestLayerNorm_DimMismatch(t *testing.T) {
	ln := NewLayerNorm(4, 1e-5)
	x := tensor.NewTensor([]int{2, 3})
	if _, err := ln.Forward(x); err == nil {
		t.Errorf("expected error for mismatched last dimension")
	}
}

// TestLinear_Forward checks the affine projection on batched input.
func TestLinear_Forward(t *testing.T) {
	l := NewLinear(3, 2, true)
	copy(l.Weight.Data, []float64{1, 0, 0, 1, 1, 1})
	copy(l.Bias.Data, []float64{10, 20})

	x := tensor.NewTensorFromData([]float64{1, 2, 3}, []int{1, 3})
	out, err := l.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	want := tensor.NewTensorFromData([]float64{14, 25}, []int{1, 2})
	if !out.Equals(want, 1e-12) {
		t.Errorf("Forward = %v, want %v", out, want)
	}
}

// TestLinear_NoBias checks the bias-free variant and dimension validation.
func TestLinear_NoBias(t *testing.T) {
	l := NewLinear(2, 2, false)
	if l.Bias != nil {
		t.Fatalf("expected nil bias")
	}
	if got := len(l.Parameters()); got != 1 {
		t.Errorf("Parameters() returned %d tensors, want 1", got)
	}

	x := tensor.NewTensor([]int{1, 3})
	if _, err := l.Forward(x); err == nil {
		t.Errorf("expected error for mismatched input dimension")
	}
}
