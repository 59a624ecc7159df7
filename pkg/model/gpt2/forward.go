package gpt2

import "github.com/amanvirparhar/lmpeek/pkg/engine"

// forward threads the first error through a sequence of engine calls.
// Once err is set every method returns nil.
type forward struct {
	eps float64
	err error
}

func (f *forward) do(fn func() (*Tensor, error)) *Tensor {
	if f.err != nil {
		return nil
	}
	t, err := fn()
	if err != nil {
		f.err = err
		return nil
	}
	return t
}

func (f *forward) embed(table *Tensor, ids [][]int64) *Tensor {
	return f.do(func() (*Tensor, error) { return engine.Embed(table, ids) })
}

func (f *forward) add(a, b *Tensor) *Tensor {
	return f.do(func() (*Tensor, error) { return engine.Add(a, b) })
}

func (f *forward) layerNorm(x *Tensor, n norm) *Tensor {
	return f.do(func() (*Tensor, error) { return engine.LayerNorm(x, n.gamma, n.beta, f.eps) })
}

func (f *forward) linear(x *Tensor, l linear) *Tensor {
	return f.do(func() (*Tensor, error) { return engine.Linear(x, l.w, l.b) })
}

func (f *forward) matmul(a, b *Tensor) *Tensor {
	return f.do(func() (*Tensor, error) { return engine.MatMul(a, b) })
}

func (f *forward) bmm(a, b *Tensor) *Tensor {
	return f.do(func() (*Tensor, error) { return engine.BatchedMatMul(a, b) })
}

func (f *forward) transpose(x *Tensor) *Tensor {
	return f.do(func() (*Tensor, error) { return engine.TransposeLast2(x) })
}

func (f *forward) slice(x *Tensor, from, to int) *Tensor {
	return f.do(func() (*Tensor, error) { return engine.SliceLast(x, from, to) })
}

func (f *forward) concat(leading []int, parts ...*Tensor) *Tensor {
	return f.do(func() (*Tensor, error) { return engine.ConcatLast(leading, parts...) })
}

func (f *forward) causalMask(x *Tensor) *Tensor {
	return f.do(func() (*Tensor, error) { return engine.CausalMask(x) })
}

func (f *forward) scale(x *Tensor, s float32) *Tensor {
	return f.do(func() (*Tensor, error) { return engine.Scale(x, s), nil })
}

func (f *forward) softmax(x *Tensor) *Tensor {
	return f.do(func() (*Tensor, error) { return engine.Softmax(x), nil })
}

func (f *forward) gelu(x *Tensor) *Tensor {
	return f.do(func() (*Tensor, error) { return engine.GELU(x), nil })
}
