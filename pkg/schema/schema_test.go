package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCounts(t *testing.T) {
	for _, layers := range []int{0, 1, 2, 6} {
		for _, heads := range []int{0, 1, 2, 12} {
			t.Run(fmt.Sprintf("L%d_H%d", layers, heads), func(t *testing.T) {
				s, err := Build(layers, heads)
				require.NoError(t, err)
				assert.Equal(t, 3+layers*(9+7*heads)+2, s.Count())
				assert.Equal(t, ExpectedCount(layers, heads), s.Count())
				assert.Equal(t, layers, s.Layers())
				assert.Equal(t, heads, s.Heads())
			})
		}
	}
}

func TestBuildRejectsNegative(t *testing.T) {
	for _, tc := range [][2]int{{-1, 0}, {0, -1}, {-3, -3}} {
		_, err := Build(tc[0], tc[1])
		var invalid *InvalidConfigurationError
		require.True(t, errors.As(err, &invalid), "expected InvalidConfigurationError for %v, got %v", tc, err)
		assert.Equal(t, tc[0], invalid.Layers)
		assert.Equal(t, tc[1], invalid.Heads)
	}
}

func TestBuildOrder(t *testing.T) {
	s, err := Build(1, 2)
	require.NoError(t, err)

	var got []string
	for _, slot := range s.Slots() {
		got = append(got, slot.Path.String())
	}

	want := []string{
		"embedding/tok_emb",
		"embedding/pos_emb",
		"embedding/input_emb",
		"block/block_0/ln_1/output",
		"block/block_0/attn/head_0/q",
		"block/block_0/attn/head_0/k",
		"block/block_0/attn/head_0/v",
		"block/block_0/attn/head_1/q",
		"block/block_0/attn/head_1/k",
		"block/block_0/attn/head_1/v",
		"block/block_0/attn/head_0/attn",
		"block/block_0/attn/head_0/attn_scaled",
		"block/block_0/attn/head_0/attn_masked",
		"block/block_0/attn/head_0/attn_softmax",
		"block/block_0/attn/head_1/attn",
		"block/block_0/attn/head_1/attn_scaled",
		"block/block_0/attn/head_1/attn_masked",
		"block/block_0/attn/head_1/attn_softmax",
		"block/block_0/attn/attn_output",
		"block/block_0/res_1",
		"block/block_0/ln_2/output",
		"block/block_0/mlp/linear_1_output",
		"block/block_0/mlp/gelu_output",
		"block/block_0/mlp/linear_2_output",
		"block/block_0/mlp/output",
		"block/block_0/res_2",
		"ln_f/output",
		"linear/output",
	}
	assert.Equal(t, want, got)
}

func TestAxisDeclarations(t *testing.T) {
	s, err := Build(2, 3)
	require.NoError(t, err)

	slots := s.Slots()
	for i, slot := range slots[:len(slots)-1] {
		assert.Equal(t, ThreeDynamic, slot.Axes, "slot %d (%s)", i, slot.Path)
	}
	last := slots[len(slots)-1]
	assert.Equal(t, LinearOutput, last.Role)
	assert.Equal(t, TwoDynamicPlusFeature, last.Axes)
}

func TestSlotIndices(t *testing.T) {
	s, err := Build(2, 2)
	require.NoError(t, err)

	for _, slot := range s.Slots() {
		if slot.Role.PerHead() {
			assert.GreaterOrEqual(t, slot.Head, 0, "%s", slot.Path)
			assert.GreaterOrEqual(t, slot.Layer, 0, "%s", slot.Path)
		} else {
			assert.Equal(t, -1, slot.Head, "%s", slot.Path)
		}
	}
}

func TestSlotsIsACopy(t *testing.T) {
	s, err := Build(1, 1)
	require.NoError(t, err)

	slots := s.Slots()
	slots[0].Role = LinearOutput
	slots[0].Path[0] = Segment{Kind: Field, Name: "changed"}

	assert.Equal(t, TokenEmbedding, s.Slot(0).Role)
	assert.Equal(t, "embedding/tok_emb", s.Slot(0).Path.String())
}
