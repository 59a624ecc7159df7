package engine

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// Tensor is a dense, row-major float32 tensor.
type Tensor struct {
	shape []int
	data  []float32
}

// New allocates a zero tensor.
func New(shape ...int) *Tensor {
	return &Tensor{shape: slices.Clone(shape), data: make([]float32, numElements(shape))}
}

// FromData wraps data, which must have exactly the number of elements in shape.
func FromData(shape []int, data []float32) (*Tensor, error) {
	if n := numElements(shape); n != len(data) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, n, len(data))
	}
	return &Tensor{shape: slices.Clone(shape), data: data}, nil
}

// Fill returns a tensor with every element set to v.
func Fill(v float32, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

// RandomNormal returns a tensor drawn from N(0, std^2) using rng.
func RandomNormal(rng *rand.Rand, std float64, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.data {
		t.data[i] = float32(rng.NormFloat64() * std)
	}
	return t
}

func (t *Tensor) Shape() []int { return slices.Clone(t.shape) }

// Data returns the backing slice; callers must not modify it.
func (t *Tensor) Data() []float32 { return t.data }

func (t *Tensor) Rank() int { return len(t.shape) }
func (t *Tensor) Size() int { return len(t.data) }

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.shape)
}

// At returns the element at the given indices.
func (t *Tensor) At(indices ...int) float32 {
	return t.data[t.offset(indices)]
}

func (t *Tensor) offset(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("got %d indices for tensor of rank %d", len(indices), len(t.shape)))
	}
	off := 0
	for i, idx := range indices {
		off = off*t.shape[i] + idx
	}
	return off
}

// rows views t as (rows, last dim).
func (t *Tensor) rows() (int, int) {
	if len(t.shape) == 0 {
		return 1, 1
	}
	last := t.shape[len(t.shape)-1]
	if last == 0 {
		return numElements(t.shape[:len(t.shape)-1]), 0
	}
	return len(t.data) / last, last
}

// AllFinite reports whether no element is NaN or infinite.
func (t *Tensor) AllFinite() bool {
	for _, v := range t.data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
