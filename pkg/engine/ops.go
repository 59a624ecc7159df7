package engine

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// MatMul multiplies a (..., K) by b (K, N), giving (..., N).
func MatMul(a, b *Tensor) (*Tensor, error) {
	if b.Rank() != 2 {
		return nil, fmt.Errorf("matmul: right operand must be rank 2, got %v", b.shape)
	}
	rows, k := a.rows()
	if a.Rank() == 0 || k != b.shape[0] {
		return nil, fmt.Errorf("matmul: shapes %v and %v are incompatible", a.shape, b.shape)
	}
	n := b.shape[1]

	outShape := append(slices.Clone(a.shape[:a.Rank()-1]), n)
	out := New(outShape...)
	if rows == 0 || k == 0 || n == 0 {
		return out, nil
	}

	var product mat.Dense
	product.Mul(dense(rows, k, a.data), dense(k, n, b.data))
	copyDense(out.data, &product)
	return out, nil
}

// BatchedMatMul multiplies a (B, M, K) by b (B, K, N), giving (B, M, N).
func BatchedMatMul(a, b *Tensor) (*Tensor, error) {
	if a.Rank() != 3 || b.Rank() != 3 || a.shape[0] != b.shape[0] || a.shape[2] != b.shape[1] {
		return nil, fmt.Errorf("batched matmul: shapes %v and %v are incompatible", a.shape, b.shape)
	}
	batch, m, k, n := a.shape[0], a.shape[1], a.shape[2], b.shape[2]
	out := New(batch, m, n)
	if m == 0 || k == 0 || n == 0 {
		return out, nil
	}

	for i := 0; i < batch; i++ {
		var product mat.Dense
		product.Mul(
			dense(m, k, a.data[i*m*k:(i+1)*m*k]),
			dense(k, n, b.data[i*k*n:(i+1)*k*n]),
		)
		copyDense(out.data[i*m*n:(i+1)*m*n], &product)
	}
	return out, nil
}

// Linear computes x @ w + bias, with w (in, out) and bias (out).
func Linear(x, w, bias *Tensor) (*Tensor, error) {
	y, err := MatMul(x, w)
	if err != nil {
		return nil, err
	}
	if bias == nil {
		return y, nil
	}
	_, n := y.rows()
	if bias.Size() != n {
		return nil, fmt.Errorf("linear: bias has %d values, output has %d features", bias.Size(), n)
	}
	for i := range y.data {
		y.data[i] += bias.data[i%n]
	}
	return y, nil
}

// Add returns a + b. b may have a leading dimension of 1, which is
// broadcast over a's leading dimension.
func Add(a, b *Tensor) (*Tensor, error) {
	if slices.Equal(a.shape, b.shape) {
		out := New(a.shape...)
		for i := range out.data {
			out.data[i] = a.data[i] + b.data[i]
		}
		return out, nil
	}
	if a.Rank() == b.Rank() && a.Rank() > 0 && b.shape[0] == 1 && slices.Equal(a.shape[1:], b.shape[1:]) {
		out := New(a.shape...)
		stride := b.Size()
		for i := range out.data {
			out.data[i] = a.data[i] + b.data[i%stride]
		}
		return out, nil
	}
	return nil, fmt.Errorf("add: shapes %v and %v are incompatible", a.shape, b.shape)
}

// Scale returns x * s.
func Scale(x *Tensor, s float32) *Tensor {
	out := New(x.shape...)
	for i, v := range x.data {
		out.data[i] = v * s
	}
	return out
}

// LayerNorm normalizes over the last axis.
func LayerNorm(x, gamma, beta *Tensor, epsilon float64) (*Tensor, error) {
	rows, n := x.rows()
	if gamma.Size() != n || beta.Size() != n {
		return nil, fmt.Errorf("layernorm: parameters have %d/%d values, input has %d features", gamma.Size(), beta.Size(), n)
	}
	out := New(x.shape...)
	for r := 0; r < rows; r++ {
		row := x.data[r*n : (r+1)*n]
		var mean, variance float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(n)
		for _, v := range row {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(n)
		inv := 1 / math.Sqrt(variance+epsilon)
		for i, v := range row {
			out.data[r*n+i] = float32((float64(v)-mean)*inv)*gamma.data[i] + beta.data[i]
		}
	}
	return out, nil
}

// GELU uses the tanh approximation.
func GELU(x *Tensor) *Tensor {
	out := New(x.shape...)
	c := math.Sqrt(2 / math.Pi)
	for i, v := range x.data {
		f := float64(v)
		out.data[i] = float32(0.5 * f * (1 + math.Tanh(c*(f+0.044715*f*f*f))))
	}
	return out
}

// Softmax normalizes over the last axis. Rows that are entirely -Inf
// produce zeros.
func Softmax(x *Tensor) *Tensor {
	rows, n := x.rows()
	out := New(x.shape...)
	for r := 0; r < rows; r++ {
		row := x.data[r*n : (r+1)*n]
		maxV := math.Inf(-1)
		for _, v := range row {
			maxV = math.Max(maxV, float64(v))
		}
		if math.IsInf(maxV, -1) {
			continue
		}
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v) - maxV)
			out.data[r*n+i] = float32(e)
			sum += e
		}
		for i := range row {
			out.data[r*n+i] = float32(float64(out.data[r*n+i]) / sum)
		}
	}
	return out
}

// CausalMask sets every (.., i, j) with j > i to -Inf. x must be (.., T, T).
func CausalMask(x *Tensor) (*Tensor, error) {
	if x.Rank() < 2 || x.shape[x.Rank()-1] != x.shape[x.Rank()-2] {
		return nil, fmt.Errorf("causal mask: expected (.., T, T), got %v", x.shape)
	}
	t := x.shape[x.Rank()-1]
	out := New(x.shape...)
	copy(out.data, x.data)
	negInf := float32(math.Inf(-1))
	for base := 0; base < len(out.data); base += t * t {
		for i := 0; i < t; i++ {
			for j := i + 1; j < t; j++ {
				out.data[base+i*t+j] = negInf
			}
		}
	}
	return out, nil
}

// Embed gathers rows of table (V, C) for ids (B, T), giving (B, T, C).
func Embed(table *Tensor, ids [][]int64) (*Tensor, error) {
	if table.Rank() != 2 {
		return nil, fmt.Errorf("embed: table must be rank 2, got %v", table.shape)
	}
	vocab, width := table.shape[0], table.shape[1]
	batch := len(ids)
	seq := 0
	if batch > 0 {
		seq = len(ids[0])
	}
	out := New(batch, seq, width)
	for b, row := range ids {
		if len(row) != seq {
			return nil, fmt.Errorf("embed: sequence %d has length %d, expected %d", b, len(row), seq)
		}
		for t, id := range row {
			if id < 0 || id >= int64(vocab) {
				return nil, fmt.Errorf("embed: id %d at [%d,%d] is outside [0, %d)", id, b, t, vocab)
			}
			dst := out.data[(b*seq+t)*width : (b*seq+t+1)*width]
			copy(dst, table.data[int(id)*width:(int(id)+1)*width])
		}
	}
	return out, nil
}

// SliceLast returns x[..., from:to].
func SliceLast(x *Tensor, from, to int) (*Tensor, error) {
	rows, n := x.rows()
	if from < 0 || to > n || from > to {
		return nil, fmt.Errorf("slice: [%d:%d] out of range for %v", from, to, x.shape)
	}
	outShape := slices.Clone(x.shape)
	outShape[len(outShape)-1] = to - from
	out := New(outShape...)
	w := to - from
	for r := 0; r < rows; r++ {
		copy(out.data[r*w:(r+1)*w], x.data[r*n+from:r*n+to])
	}
	return out, nil
}

// ConcatLast concatenates tensors along the last axis. All leading
// dimensions must match. leading is used when parts is empty.
func ConcatLast(leading []int, parts ...*Tensor) (*Tensor, error) {
	width := 0
	for _, p := range parts {
		if p.Rank() != len(leading)+1 || !slices.Equal(p.shape[:p.Rank()-1], leading) {
			return nil, fmt.Errorf("concat: part shape %v does not match leading dims %v", p.shape, leading)
		}
		width += p.shape[p.Rank()-1]
	}
	out := New(append(slices.Clone(leading), width)...)
	rows := numElements(leading)
	off := 0
	for _, p := range parts {
		_, w := p.rows()
		for r := 0; r < rows; r++ {
			copy(out.data[r*width+off:r*width+off+w], p.data[r*w:(r+1)*w])
		}
		off += w
	}
	return out, nil
}

// TransposeLast2 swaps the last two axes of a (B, M, N) tensor.
func TransposeLast2(x *Tensor) (*Tensor, error) {
	if x.Rank() != 3 {
		return nil, fmt.Errorf("transpose: expected rank 3, got %v", x.shape)
	}
	b, m, n := x.shape[0], x.shape[1], x.shape[2]
	out := New(b, n, m)
	for i := 0; i < b; i++ {
		for r := 0; r < m; r++ {
			for c := 0; c < n; c++ {
				out.data[i*m*n+c*m+r] = x.data[i*m*n+r*n+c]
			}
		}
	}
	return out, nil
}

func dense(r, c int, data []float32) *mat.Dense {
	values := make([]float64, len(data))
	for i, v := range data {
		values[i] = float64(v)
	}
	return mat.NewDense(r, c, values)
}

func copyDense(dst []float32, m *mat.Dense) {
	raw := m.RawMatrix()
	for r := 0; r < raw.Rows; r++ {
		for c := 0; c < raw.Cols; c++ {
			dst[r*raw.Cols+c] = float32(raw.Data[r*raw.Stride+c])
		}
	}
}
