package gpt2

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanvirparhar/lmpeek/pkg/config"
	"github.com/amanvirparhar/lmpeek/pkg/engine"
	"github.com/amanvirparhar/lmpeek/pkg/names"
	"github.com/amanvirparhar/lmpeek/pkg/schema"
	"github.com/amanvirparhar/lmpeek/pkg/trace"
)

func tinyModel(t *testing.T, mutate ...func(*config.Model)) *Model {
	t.Helper()
	cfg, ok := config.Preset("tiny")
	require.True(t, ok)
	for _, fn := range mutate {
		fn(&cfg)
	}
	m, err := New(cfg)
	require.NoError(t, err)
	return m
}

func TestForwardMatchesSchema(t *testing.T) {
	ctx := context.Background()
	for _, shape := range [][2]int{{0, 0}, {1, 1}, {2, 2}, {3, 4}} {
		m := tinyModel(t, func(c *config.Model) { c.Layers, c.Heads = shape[0], shape[1] })

		root, err := m.Forward(ctx, [][]int64{{1, 2, 3, 4}})
		require.NoError(t, err)

		s, err := schema.Build(shape[0], shape[1])
		require.NoError(t, err)
		values, err := trace.Flatten(root, s)
		require.NoError(t, err, "L=%d H=%d", shape[0], shape[1])
		assert.Len(t, values, len(names.Generate(s)))

		for i, v := range values {
			tensor, ok := v.(*engine.Tensor)
			require.True(t, ok, "slot %d holds %T", i, v)
			assert.Equal(t, 3, tensor.Rank(), "slot %s", s.Slot(i).Path)
			assert.True(t, tensor.AllFinite() || s.Slot(i).Role == schema.AttnMasked, "slot %s", s.Slot(i).Path)
		}
	}
}

func TestForwardShapes(t *testing.T) {
	m := tinyModel(t)
	root, err := m.Forward(context.Background(), [][]int64{{5, 6, 7}, {8, 9, 10}})
	require.NoError(t, err)

	shapeAt := func(keys ...string) []int {
		v, ok := trace.Lookup(root, keys)
		require.True(t, ok, "%v", keys)
		return v.(*engine.Tensor).Shape()
	}

	assert.Equal(t, []int{2, 3, 16}, shapeAt("embedding", "tok_emb"))
	assert.Equal(t, []int{1, 3, 16}, shapeAt("embedding", "pos_emb"))
	assert.Equal(t, []int{2, 3, 8}, shapeAt("block", "block_1", "attn", "head_1", "q"))
	assert.Equal(t, []int{2, 3, 3}, shapeAt("block", "block_0", "attn", "head_0", "attn_softmax"))
	assert.Equal(t, []int{2, 3, 64}, shapeAt("block", "block_0", "mlp", "linear_1_output"))
	assert.Equal(t, []int{2, 3, 16}, shapeAt("block", "block_1", "res_2"))
	assert.Equal(t, []int{2, 3, 64}, shapeAt("linear", "output"))
}

func TestForwardAttentionIsCausal(t *testing.T) {
	m := tinyModel(t)
	root, err := m.Forward(context.Background(), [][]int64{{1, 2, 3, 4, 5}})
	require.NoError(t, err)

	v, ok := trace.Lookup(root, []string{"block", "block_1", "attn", "head_0", "attn_softmax"})
	require.True(t, ok)
	p := v.(*engine.Tensor)
	for i := 0; i < 5; i++ {
		var sum float32
		for j := 0; j < 5; j++ {
			if j > i {
				assert.Equal(t, float32(0), p.At(0, i, j))
			}
			sum += p.At(0, i, j)
		}
		assert.InDelta(t, 1, sum, 1e-5)
	}
}

func TestForwardIsDeterministic(t *testing.T) {
	a, err := tinyModel(t).Forward(context.Background(), [][]int64{{1, 2}})
	require.NoError(t, err)
	b, err := tinyModel(t).Forward(context.Background(), [][]int64{{1, 2}})
	require.NoError(t, err)

	la, _ := trace.Lookup(a, []string{"linear", "output"})
	lb, _ := trace.Lookup(b, []string{"linear", "output"})
	assert.Equal(t, la.(*engine.Tensor).Data(), lb.(*engine.Tensor).Data())
}

func TestForwardRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	m := tinyModel(t)

	_, err := m.Forward(ctx, nil)
	assert.Error(t, err)
	_, err = m.Forward(ctx, [][]int64{{64}})
	assert.Error(t, err, "token outside vocab")
	_, err = m.Forward(ctx, [][]int64{make([]int64, 33)})
	assert.Error(t, err, "sequence longer than n_positions")
	_, err = m.Forward(ctx, [][]int64{{1, 2}, {3}})
	assert.Error(t, err, "ragged batch")
}

func TestForwardCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tinyModel(t).Forward(ctx, [][]int64{{1}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg, _ := config.Preset("tiny")
	cfg.Heads = 3
	_, err := New(cfg)
	assert.Error(t, err)
}
