package model

import (
	"math"
	"math/rand"
	"testing"

	"seqtrans/pkg/tensor"
)

// TestEmbedder_Forward checks token lookup, scaling, and position addition.
func TestEmbedder_Forward(t *testing.T) {
	vocab, dim := 5, 4
	e := NewEmbedder(vocab, dim, 8, true, 0)
	for i := range e.TokTable.Data {
		e.TokTable.Data[i] = float64(i) * 0.1
	}
	for i := range e.PosTable.Data {
		e.PosTable.Data[i] = float64(i) * 0.01
	}

	ids := tensor.NewTensorFromData([]float64{2, 0}, []int{1, 2})
	out, err := e.Forward(ids, false, nil)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	wantShape := []int{1, 2, dim}
	for i, want := range wantShape {
		if out.Shape[i] != want {
			t.Fatalf("output shape = %v, want %v", out.Shape, wantShape)
		}
	}

	scale := math.Sqrt(float64(dim))
	for d := 0; d < dim; d++ {
		want := e.TokTable.Get([]int{2, d})*scale + e.PosTable.Get([]int{0, d})
		if got := out.Get([]int{0, 0, d}); math.Abs(got-want) > 1e-12 {
			t.Errorf("out[0, 0, %d] = %v, want %v", d, got, want)
		}
		want = e.TokTable.Get([]int{0, d})*scale + e.PosTable.Get([]int{1, d})
		if got := out.Get([]int{0, 1, d}); math.Abs(got-want) > 1e-12 {
			t.Errorf("out[0, 1, %d] = %v, want %v", d, got, want)
		}
	}
}

// TestEmbedder_TokenOnly checks the unscaled, position-free configuration.
func TestEmbedder_TokenOnly(t *testing.T) {
	e := NewEmbedder(4, 3, 0, false, 0)
	for i := range e.TokTable.Data {
		e.TokTable.Data[i] = float64(i)
	}

	ids := tensor.NewTensorFromData([]float64{1}, []int{1, 1})
	out, err := e.Forward(ids, false, nil)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	for d := 0; d < 3; d++ {
		want := e.TokTable.Get([]int{1, d})
		if got := out.Get([]int{0, 0, d}); got != want {
			t.Errorf("out[0, 0, %d] = %v, want %v", d, got, want)
		}
	}
}

// TestEmbedder_Errors checks id and position bound validation.
func TestEmbedder_Errors(t *testing.T) {
	e := NewEmbedder(4, 3, 2, false, 0)

	t.Run("id_out_of_range", func(t *testing.T) {
		ids := tensor.NewTensorFromData([]float64{7}, []int{1, 1})
		if _, err := e.Forward(ids, false, nil); err == nil {
			t.Errorf("expected error for out-of-vocabulary id")
		}
	})

	t.Run("negative_id", func(t *testing.T) {
		ids := tensor.NewTensorFromData([]float64{-1}, []int{1, 1})
		if _, err := e.Forward(ids, false, nil); err == nil {
			t.Errorf("expected error for negative id")
		}
	})

	t.Run("sequence_too_long", func(t *testing.T) {
		ids := tensor.NewTensorFromData([]float64{1, 2, 3}, []int{1, 3})
		if _, err := e.Forward(ids, false, nil); err == nil {
			t.Errorf("expected error for sequence beyond position table")
		}
	})

	t.Run("bad_rank", func(t *testing.T) {
		ids := tensor.NewTensor([]int{3})
		if _, err := e.Forward(ids, false, nil); err == nil {
			t.Errorf("expected error for 1D input")
		}
	})
}

// TestEmbedder_DropoutInference checks dropout is a no-op outside training.
func TestEmbedder_DropoutInference(t *testing.T) {
	e := NewEmbedder(4, 3, 0, false, 0.5)
	for i := range e.TokTable.Data {
		e.TokTable.Data[i] = 1
	}

	ids := tensor.NewTensorFromData([]float64{1, 2}, []int{1, 2})
	out, err := e.Forward(ids, false, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	for i, v := range out.Data {
		if v != 1 {
			t.Errorf("out.Data[%d] = %v, want 1 (dropout must be inactive)", i, v)
		}
	}
}
