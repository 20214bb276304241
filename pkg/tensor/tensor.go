// Package tensor provides the dense float64 tensor operations used by the
// sequence transduction models. Data is stored flat with precomputed strides;
// the matrix-multiply hot path is delegated to gonum's BLAS implementation.
package tensor

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// Tensor represents a multi-dimensional array of float64 values.
// It stores data in a flat slice with shape information for indexing.
type Tensor struct {
	Data    []float64 // Flattened data storage
	Shape   []int     // Dimensions (e.g., [batch, heads, seq, dim])
	Strides []int     // Precomputed strides for indexing
}

// NewTensor creates a new tensor with the given shape, initialized to zeros.
func NewTensor(shape []int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}

	return &Tensor{
		Data:    make([]float64, size),
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}
}

// FromSlice creates a tensor from existing data with the given shape.
// Returns an error if data size doesn't match the shape.
func FromSlice(data []float64, shape []int) (*Tensor, error) {
	expectedSize := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
		expectedSize *= dim
	}
	if len(data) != expectedSize {
		return nil, fmt.Errorf("data size %d does not match shape %v (expected %d elements)",
			len(data), shape, expectedSize)
	}

	dataCopy := make([]float64, len(data))
	copy(dataCopy, data)

	return &Tensor{
		Data:    dataCopy,
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}, nil
}

// NewTensorFromData creates a tensor from existing data with the given shape.
// It copies the data to ensure the tensor owns its memory. Panics on a size
// mismatch; use FromSlice when the caller wants an error instead.
func NewTensorFromData(data []float64, shape []int) *Tensor {
	t, err := FromSlice(data, shape)
	if err != nil {
		panic(err)
	}
	return t
}

// View returns a new tensor with a different shape but sharing the same
// underlying data. Returns an error if total size doesn't match.
func (t *Tensor) View(newShape []int) (*Tensor, error) {
	newSize := 1
	for _, dim := range newShape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, newShape)
		}
		newSize *= dim
	}

	if newSize != len(t.Data) {
		return nil, fmt.Errorf("cannot view tensor of size %d as shape %v (total size %d)",
			len(t.Data), newShape, newSize)
	}

	return &Tensor{
		Data:    t.Data,
		Shape:   copyShape(newShape),
		Strides: computeStrides(newShape),
	}, nil
}

// Reshape returns a view with a different shape (same underlying data).
func (t *Tensor) Reshape(newShape []int) *Tensor {
	result, err := t.View(newShape)
	if err != nil {
		panic(err)
	}
	return result
}

// Transpose exchanges two dimensions of the tensor, copying the data into the
// new layout.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	if dim1 < 0 || dim1 >= len(t.Shape) || dim2 < 0 || dim2 >= len(t.Shape) {
		return nil, fmt.Errorf("invalid transpose dimensions %d and %d for tensor with %d dimensions",
			dim1, dim2, len(t.Shape))
	}

	if dim1 == dim2 {
		return t.Clone(), nil
	}

	newShape := copyShape(t.Shape)
	newShape[dim1], newShape[dim2] = newShape[dim2], newShape[dim1]

	result := NewTensor(newShape)

	srcIndices := make([]int, len(t.Shape))
	dstIndices := make([]int, len(t.Shape))
	var transposeRec func(pos int)
	transposeRec = func(pos int) {
		if pos == len(t.Shape) {
			copy(dstIndices, srcIndices)
			dstIndices[dim1], dstIndices[dim2] = dstIndices[dim2], dstIndices[dim1]
			result.Data[result.FlatIndex(dstIndices)] = t.Data[t.FlatIndex(srcIndices)]
			return
		}
		for i := 0; i < t.Shape[pos]; i++ {
			srcIndices[pos] = i
			transposeRec(pos + 1)
		}
	}
	transposeRec(0)

	return result, nil
}

// Size returns the total number of elements in the tensor.
func (t *Tensor) Size() int {
	size := 1
	for _, dim := range t.Shape {
		size *= dim
	}
	return size
}

// NumDims returns the number of dimensions (rank) of the tensor.
func (t *Tensor) NumDims() int {
	return len(t.Shape)
}

// FlatIndex converts multi-dimensional indices to a flat index.
func (t *Tensor) FlatIndex(indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("indices length %d does not match shape dimensions %d",
			len(indices), len(t.Shape)))
	}

	idx := 0
	for i := 0; i < len(t.Shape); i++ {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d with size %d",
				indices[i], i, t.Shape[i]))
		}
		idx += indices[i] * t.Strides[i]
	}
	return idx
}

// Get retrieves a value at the specified indices.
func (t *Tensor) Get(indices []int) float64 {
	return t.Data[t.FlatIndex(indices)]
}

// Set sets a value at the specified indices.
func (t *Tensor) Set(indices []int, value float64) {
	t.Data[t.FlatIndex(indices)] = value
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	return NewTensorFromData(t.Data, t.Shape)
}

// Equals checks if two tensors have the same shape and approximately equal values.
func (t *Tensor) Equals(other *Tensor, tolerance float64) bool {
	if !t.ShapeEquals(other) {
		return false
	}
	for i := range t.Data {
		diff := t.Data[i] - other.Data[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			return false
		}
	}
	return true
}

// ShapeEquals checks if two tensors have the same shape.
func (t *Tensor) ShapeEquals(other *Tensor) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

// SliceN extracts a sub-tensor from the given ranges for all dimensions.
func (t *Tensor) SliceN(starts, ends []int) (*Tensor, error) {
	if len(starts) != len(t.Shape) || len(ends) != len(t.Shape) {
		return nil, fmt.Errorf("starts and ends must have same length as tensor dimensions (%d), got %d and %d",
			len(t.Shape), len(starts), len(ends))
	}

	newShape := make([]int, len(t.Shape))
	for i := 0; i < len(t.Shape); i++ {
		if starts[i] < 0 || starts[i] > t.Shape[i] {
			return nil, fmt.Errorf("invalid start index %d for dimension %d with size %d", starts[i], i, t.Shape[i])
		}
		if ends[i] < starts[i] || ends[i] > t.Shape[i] {
			return nil, fmt.Errorf("invalid end index %d for dimension %d (start=%d, size=%d)", ends[i], i, starts[i], t.Shape[i])
		}
		newShape[i] = ends[i] - starts[i]
	}

	result := NewTensor(newShape)

	srcIndices := make([]int, len(t.Shape))
	dstIndices := make([]int, len(t.Shape))

	var copyData func(dim int)
	copyData = func(dim int) {
		if dim == len(t.Shape) {
			result.Data[result.FlatIndex(dstIndices)] = t.Data[t.FlatIndex(srcIndices)]
			return
		}
		for i := 0; i < newShape[dim]; i++ {
			srcIndices[dim] = starts[dim] + i
			dstIndices[dim] = i
			copyData(dim + 1)
		}
	}

	copyData(0)
	return result, nil
}

// Matmul performs matrix multiplication on the last two dimensions.
// For tensors of shape (..., m, n) and (..., n, p), returns (..., m, p).
// Supports broadcasting: if one operand is 2D and the other has more
// dimensions, the 2D operand is broadcast across the batch. The per-matrix
// product runs on gonum's BLAS dgemm.
func Matmul(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) < 2 || len(b.Shape) < 2 {
		return nil, fmt.Errorf("matmul requires at least 2D tensors, got %dD and %dD",
			len(a.Shape), len(b.Shape))
	}

	kA := a.Shape[len(a.Shape)-1]
	kB := b.Shape[len(b.Shape)-2]
	if kA != kB {
		return nil, fmt.Errorf("incompatible shapes for matmul: %v and %v (inner dimensions %d and %d don't match)",
			a.Shape, b.Shape, kA, kB)
	}

	if len(a.Shape) == 2 && len(b.Shape) > 2 {
		return matmulBroadcastLeft(a, b)
	}
	if len(a.Shape) > 2 && len(b.Shape) == 2 {
		return matmulBroadcastRight(a, b)
	}

	return matmulBatched(a, b)
}

// gemm multiplies the m-by-n matrix at a by the n-by-p matrix at b, writing
// the result into the m-by-p matrix at c. Slices alias the tensors' flat data.
func gemm(a, b, c []float64, m, n, p int) {
	am := blas64.General{Rows: m, Cols: n, Stride: n, Data: a}
	bm := blas64.General{Rows: n, Cols: p, Stride: p, Data: b}
	cm := blas64.General{Rows: m, Cols: p, Stride: p, Data: c}
	blas64.Gemm(blas.NoTrans, blas.NoTrans, 1, am, bm, 0, cm)
}

// matmulBroadcastRight handles (batch..., m, n) @ (n, p) -> (batch..., m, p).
func matmulBroadcastRight(a, b *Tensor) (*Tensor, error) {
	m := a.Shape[len(a.Shape)-2]
	n := a.Shape[len(a.Shape)-1]
	p := b.Shape[1]

	batchDims := a.Shape[:len(a.Shape)-2]
	batchSize := 1
	for _, dim := range batchDims {
		batchSize *= dim
	}

	resultShape := append([]int{}, batchDims...)
	resultShape = append(resultShape, m, p)
	result := NewTensor(resultShape)

	for batch := 0; batch < batchSize; batch++ {
		gemm(a.Data[batch*m*n:(batch+1)*m*n], b.Data,
			result.Data[batch*m*p:(batch+1)*m*p], m, n, p)
	}

	return result, nil
}

// matmulBroadcastLeft handles (m, n) @ (batch..., n, p) -> (batch..., m, p).
func matmulBroadcastLeft(a, b *Tensor) (*Tensor, error) {
	m := a.Shape[0]
	n := a.Shape[1]
	p := b.Shape[len(b.Shape)-1]

	batchDims := b.Shape[:len(b.Shape)-2]
	batchSize := 1
	for _, dim := range batchDims {
		batchSize *= dim
	}

	resultShape := append([]int{}, batchDims...)
	resultShape = append(resultShape, m, p)
	result := NewTensor(resultShape)

	for batch := 0; batch < batchSize; batch++ {
		gemm(a.Data, b.Data[batch*n*p:(batch+1)*n*p],
			result.Data[batch*m*p:(batch+1)*m*p], m, n, p)
	}

	return result, nil
}

// matmulBatched handles batched matrix multiplication with matching batch dims.
func matmulBatched(a, b *Tensor) (*Tensor, error) {
	m := a.Shape[len(a.Shape)-2]
	n := a.Shape[len(a.Shape)-1]
	p := b.Shape[len(b.Shape)-1]

	batchDims := a.Shape[:len(a.Shape)-2]
	otherBatch := b.Shape[:len(b.Shape)-2]
	if len(batchDims) != len(otherBatch) {
		return nil, fmt.Errorf("incompatible batch dimensions for matmul: %v and %v", a.Shape, b.Shape)
	}
	batchSize := 1
	for i, dim := range batchDims {
		if otherBatch[i] != dim {
			return nil, fmt.Errorf("incompatible batch dimensions for matmul: %v and %v", a.Shape, b.Shape)
		}
		batchSize *= dim
	}

	resultShape := append([]int{}, batchDims...)
	resultShape = append(resultShape, m, p)
	result := NewTensor(resultShape)

	for batch := 0; batch < batchSize; batch++ {
		gemm(a.Data[batch*m*n:(batch+1)*m*n],
			b.Data[batch*n*p:(batch+1)*n*p],
			result.Data[batch*m*p:(batch+1)*m*p], m, n, p)
	}

	return result, nil
}

// Scale multiplies all elements by a scalar.
func (t *Tensor) Scale(s float64) *Tensor {
	result := NewTensor(t.Shape)
	for i := range t.Data {
		result.Data[i] = t.Data[i] * s
	}
	return result
}

// Add performs element-wise addition with broadcasting.
func Add(a, b *Tensor) (*Tensor, error) {
	return elementWiseOp(a, b, func(x, y float64) float64 { return x + y })
}

// Mul performs element-wise multiplication with broadcasting.
func Mul(a, b *Tensor) (*Tensor, error) {
	return elementWiseOp(a, b, func(x, y float64) float64 { return x * y })
}

// elementWiseOp performs an element-wise operation with broadcasting.
func elementWiseOp(a, b *Tensor, op func(float64, float64) float64) (*Tensor, error) {
	outShape, err := broadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, fmt.Errorf("cannot broadcast shapes %v and %v: %w", a.Shape, b.Shape, err)
	}

	result := NewTensor(outShape)

	indices := make([]int, len(outShape))
	var iterate func(dim int)
	iterate = func(dim int) {
		if dim == len(outShape) {
			aVal := a.Data[broadcastIndex(indices, outShape, a.Shape)]
			bVal := b.Data[broadcastIndex(indices, outShape, b.Shape)]
			result.Data[result.FlatIndex(indices)] = op(aVal, bVal)
			return
		}
		for i := 0; i < outShape[dim]; i++ {
			indices[dim] = i
			iterate(dim + 1)
		}
	}

	iterate(0)
	return result, nil
}

// broadcastShapes computes the broadcasted shape of two shapes.
func broadcastShapes(a, b []int) ([]int, error) {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}

	result := make([]int, maxLen)

	for i := 0; i < maxLen; i++ {
		dimA := 1
		if i < len(a) {
			dimA = a[len(a)-1-i]
		}
		dimB := 1
		if i < len(b) {
			dimB = b[len(b)-1-i]
		}

		if dimA != dimB && dimA != 1 && dimB != 1 {
			return nil, fmt.Errorf("incompatible dimensions %d and %d", dimA, dimB)
		}

		if dimA > dimB {
			result[maxLen-1-i] = dimA
		} else {
			result[maxLen-1-i] = dimB
		}
	}

	return result, nil
}

// broadcastIndex maps an output position to the flat index in a (possibly
// lower-rank or size-1-dimension) input tensor under broadcasting rules.
func broadcastIndex(outIndices []int, outShape, inShape []int) int {
	if len(inShape) == 0 {
		return 0
	}

	diff := len(outShape) - len(inShape)
	strides := computeStrides(inShape)

	idx := 0
	for i := 0; i < len(inShape); i++ {
		pos := outIndices[i+diff]
		if inShape[i] == 1 {
			pos = 0
		}
		idx += pos * strides[i]
	}
	return idx
}

// Concatenate concatenates tensors along a dimension.
func Concatenate(tensors []*Tensor, dim int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("cannot concatenate empty list of tensors")
	}

	if dim < 0 || dim >= len(tensors[0].Shape) {
		return nil, fmt.Errorf("invalid dimension %d for tensor with %d dimensions", dim, len(tensors[0].Shape))
	}

	outShape := copyShape(tensors[0].Shape)
	concatSize := tensors[0].Shape[dim]

	for i := 1; i < len(tensors); i++ {
		t := tensors[i]
		if len(t.Shape) != len(outShape) {
			return nil, fmt.Errorf("tensor %d has %d dimensions, expected %d", i, len(t.Shape), len(outShape))
		}
		for j := 0; j < len(outShape); j++ {
			if j == dim {
				concatSize += t.Shape[j]
			} else if t.Shape[j] != outShape[j] {
				return nil, fmt.Errorf("tensor %d has shape %v, incompatible with %v at dimension %d", i, t.Shape, outShape, j)
			}
		}
	}
	outShape[dim] = concatSize

	result := NewTensor(outShape)

	// Everything before dim forms the outer block; everything from dim on is
	// contiguous within each input, so each outer iteration copies one chunk
	// per input tensor.
	outerSize := 1
	for i := 0; i < dim; i++ {
		outerSize *= outShape[i]
	}
	innerSize := 1
	for i := dim + 1; i < len(outShape); i++ {
		innerSize *= outShape[i]
	}

	dstRow := concatSize * innerSize
	for outer := 0; outer < outerSize; outer++ {
		dstOffset := outer * dstRow
		for _, t := range tensors {
			chunk := t.Shape[dim] * innerSize
			copy(result.Data[dstOffset:dstOffset+chunk], t.Data[outer*chunk:(outer+1)*chunk])
			dstOffset += chunk
		}
	}

	return result, nil
}

// String returns a compact representation of shape and leading values.
func (t *Tensor) String() string {
	var sb strings.Builder
	sb.WriteString("Tensor")
	sb.WriteString(fmt.Sprintf("%v: [", t.Shape))
	for i := 0; i < len(t.Data) && i < 8; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%g", t.Data[i]))
	}
	if len(t.Data) > 8 {
		sb.WriteString(", ...")
	}
	sb.WriteString("]")
	return sb.String()
}

func computeStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

// copyShape creates a copy of a shape slice.
func copyShape(shape []int) []int {
	result := make([]int, len(shape))
	copy(result, shape)
	return result
}
