package attention

import (
	"math"
	"math/rand"
	"testing"

	"seqtrans/pkg/model"
	"seqtrans/pkg/tensor"
)

func newTestMultiHead(t *testing.T, hidden, heads int, seed int64) *MultiHead {
	t.Helper()
	m := NewMultiHead(hidden, heads, 0)
	rng := rand.New(rand.NewSource(seed))
	for _, l := range []*model.Linear{m.WQuery, m.WKey, m.WValue, m.WOut} {
		model.InitLinear(l, rng)
	}
	return m
}

func randomTensor(shape []int, seed int64) *tensor.Tensor {
	rng := rand.New(rand.NewSource(seed))
	out := tensor.NewTensor(shape)
	for i := range out.Data {
		out.Data[i] = rng.NormFloat64()
	}
	return out
}

// TestMultiHead_Shapes checks output and weight shapes for self-attention and
// cross-attention.
func TestMultiHead_Shapes(t *testing.T) {
	batch, hidden, heads := 2, 16, 4
	m := newTestMultiHead(t, hidden, heads, 1)

	t.Run("self", func(t *testing.T) {
		x := randomTensor([]int{batch, 5, hidden}, 2)
		out, weights, err := m.Forward(x, x, x, nil, false, nil)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		if out.Shape[0] != batch || out.Shape[1] != 5 || out.Shape[2] != hidden {
			t.Errorf("output shape = %v, want [%d 5 %d]", out.Shape, batch, hidden)
		}
		wantW := []int{batch, heads, 5, 5}
		for i, dim := range wantW {
			if weights.Shape[i] != dim {
				t.Fatalf("weights shape = %v, want %v", weights.Shape, wantW)
			}
		}
	})

	t.Run("cross", func(t *testing.T) {
		q := randomTensor([]int{batch, 3, hidden}, 3)
		kv := randomTensor([]int{batch, 7, hidden}, 4)
		out, weights, err := m.Forward(q, kv, kv, nil, false, nil)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		if out.Shape[1] != 3 {
			t.Errorf("output q_len = %d, want 3", out.Shape[1])
		}
		if weights.Shape[2] != 3 || weights.Shape[3] != 7 {
			t.Errorf("weights shape = %v, want (..., 3, 7)", weights.Shape)
		}
	})
}

// TestMultiHead_WeightsNormalized checks every head row is a distribution and
// masked key positions carry exactly zero weight.
func TestMultiHead_WeightsNormalized(t *testing.T) {
	batch, hidden, heads, qLen, kvLen := 1, 8, 2, 3, 4
	m := newTestMultiHead(t, hidden, heads, 5)

	q := randomTensor([]int{batch, qLen, hidden}, 6)
	kv := randomTensor([]int{batch, kvLen, hidden}, 7)

	mask := tensor.NewTensor([]int{batch, 1, 1, kvLen})
	mask.Data[0], mask.Data[1], mask.Data[2] = 1, 1, 1 // last key padded

	_, weights, err := m.Forward(q, kv, kv, mask, false, nil)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	for h := 0; h < heads; h++ {
		for i := 0; i < qLen; i++ {
			sum := 0.0
			for j := 0; j < kvLen; j++ {
				w := weights.Get([]int{0, h, i, j})
				if w < 0 {
					t.Errorf("weights[0, %d, %d, %d] = %v, want non-negative", h, i, j, w)
				}
				if j == kvLen-1 && w != 0 {
					t.Errorf("weights[0, %d, %d, %d] = %v, want exactly 0 at masked key", h, i, j, w)
				}
				sum += w
			}
			if math.Abs(sum-1) > 1e-6 {
				t.Errorf("head %d query %d weights sum to %v, want 1", h, i, sum)
			}
		}
	}
}

// TestMultiHead_SingleHeadMatchesPlain checks that with one head the module
// reduces to plain scaled dot-product attention computed by hand with the
// module's own projection weights.
func TestMultiHead_SingleHeadMatchesPlain(t *testing.T) {
	batch, hidden, seqLen := 1, 6, 4
	m := newTestMultiHead(t, hidden, 1, 8)

	x := randomTensor([]int{batch, seqLen, hidden}, 9)

	out, weights, err := m.Forward(x, x, x, nil, false, nil)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	Q, err := m.WQuery.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	K, err := m.WKey.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	V, err := m.WValue.Forward(x)
	if err != nil {
		t.Fatal(err)
	}

	KT, err := K.Transpose(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	scores, err := tensor.Matmul(Q, KT)
	if err != nil {
		t.Fatal(err)
	}
	plainWeights := tensor.Softmax(scores.Scale(1 / math.Sqrt(float64(hidden))))

	attnOut, err := tensor.Matmul(plainWeights, V)
	if err != nil {
		t.Fatal(err)
	}
	plainOut, err := m.WOut.Forward(attnOut)
	if err != nil {
		t.Fatal(err)
	}

	if !out.Equals(plainOut, 1e-10) {
		t.Errorf("single-head output diverges from plain scaled dot-product attention")
	}
	if !weights.Reshape([]int{batch, seqLen, seqLen}).Equals(plainWeights, 1e-10) {
		t.Errorf("single-head weights diverge from plain softmax(QK^T/sqrt(d))")
	}
}

// TestMultiHead_CausalMaskBlocksFuture checks no query attends to a later
// position under a causal target mask.
func TestMultiHead_CausalMaskBlocksFuture(t *testing.T) {
	batch, hidden, heads, seqLen := 1, 8, 2, 4
	m := newTestMultiHead(t, hidden, heads, 10)

	x := randomTensor([]int{batch, seqLen, hidden}, 11)
	mask := tensor.CausalMask(seqLen).Reshape([]int{1, 1, seqLen, seqLen})

	_, weights, err := m.Forward(x, x, x, mask, false, nil)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	for h := 0; h < heads; h++ {
		for i := 0; i < seqLen; i++ {
			for j := i + 1; j < seqLen; j++ {
				if w := weights.Get([]int{0, h, i, j}); w != 0 {
					t.Errorf("weights[0, %d, %d, %d] = %v, want 0 for future position", h, i, j, w)
				}
			}
		}
	}
}

// TestNewMultiHead_PanicsOnBadHeads checks the divisibility guard.
func TestNewMultiHead_PanicsOnBadHeads(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic for hidden not divisible by heads")
		}
	}()
	NewMultiHead(10, 3, 0)
}

// TestMultiHead_ShapeErrors checks input validation.
func TestMultiHead_ShapeErrors(t *testing.T) {
	m := newTestMultiHead(t, 8, 2, 12)

	t.Run("bad_rank", func(t *testing.T) {
		x := tensor.NewTensor([]int{2, 8})
		if _, _, err := m.Forward(x, x, x, nil, false, nil); err == nil {
			t.Errorf("expected error for 2D input")
		}
	})

	t.Run("wrong_hidden", func(t *testing.T) {
		x := tensor.NewTensor([]int{1, 3, 6})
		if _, _, err := m.Forward(x, x, x, nil, false, nil); err == nil {
			t.Errorf("expected error for mismatched hidden size")
		}
	})

	t.Run("kv_length_mismatch", func(t *testing.T) {
		q := tensor.NewTensor([]int{1, 3, 8})
		k := tensor.NewTensor([]int{1, 4, 8})
		v := tensor.NewTensor([]int{1, 5, 8})
		if _, _, err := m.Forward(q, k, v, nil, false, nil); err == nil {
			t.Errorf("expected error for key/value length mismatch")
		}
	})
}

// BenchmarkMultiHead benchmarks a typical decoding-sized forward pass.
func BenchmarkMultiHead(b *testing.B) {
	m := NewMultiHead(64, 8, 0)
	rng := rand.New(rand.NewSource(1))
	for _, l := range []*model.Linear{m.WQuery, m.WKey, m.WValue, m.WOut} {
		model.InitLinear(l, rng)
	}
	x := randomTensor([]int{2, 32, 64}, 2)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := m.Forward(x, x, x, nil, false, nil); err != nil {
			b.Fatal(err)
		}
	}
}
