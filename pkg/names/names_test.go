package names

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanvirparhar/lmpeek/pkg/schema"
	"github.com/amanvirparhar/lmpeek/pkg/trace"
)

func TestGenerateLength(t *testing.T) {
	for _, layers := range []int{0, 1, 2, 6} {
		for _, heads := range []int{0, 1, 2, 12} {
			s, err := schema.Build(layers, heads)
			require.NoError(t, err)

			got := Generate(s)
			assert.Len(t, got, s.Count(), "L=%d H=%d", layers, heads)
			assert.Len(t, got, 3+layers*(9+7*heads)+2, "L=%d H=%d", layers, heads)
			assert.NoError(t, Validate(got))
		}
	}
}

func TestGenerateTwoByTwo(t *testing.T) {
	s, err := schema.Build(2, 2)
	require.NoError(t, err)

	got := Generate(s)
	require.Len(t, got, 51)
	assert.Equal(t, []string{"tok_emb", "pos_emb", "input_emb"}, got[:3])
	assert.Equal(t, "block_0_ln_1_output", got[3])
	assert.Equal(t, "block_1_res_2", got[len(got)-3])
	assert.Equal(t, []string{"ln_f_output", "linear_output"}, got[len(got)-2:])
}

func TestGenerateEmptyModel(t *testing.T) {
	s, err := schema.Build(0, 0)
	require.NoError(t, err)

	got := Generate(s)
	assert.Equal(t, []string{"tok_emb", "pos_emb", "input_emb", "ln_f_output", "linear_output"}, got)
	for _, name := range got {
		assert.False(t, strings.HasPrefix(name, "block_"), name)
	}
}

// The exported names are consumed by name downstream and must not drift.
func TestGenerateLayerNames(t *testing.T) {
	s, err := schema.Build(1, 1)
	require.NoError(t, err)

	want := []string{
		"tok_emb", "pos_emb", "input_emb",
		"block_0_ln_1_output",
		"block_0_attn_head_0_q", "block_0_attn_head_0_k", "block_0_attn_head_0_v",
		"block_0_attn_head_0_attn", "block_0_attn_head_0_attn_scaled",
		"block_0_attn_head_0_attn_masked", "block_0_attn_head_0_attn_softmax",
		"block_0_attn_attn_output",
		"block_0_res_1",
		"block_0_ln_2_output",
		"block_0_mlp_linear_1_output", "block_0_mlp_gelu_output",
		"block_0_mlp_linear_2_output", "block_0_mlp_output",
		"block_0_res_2",
		"ln_f_output", "linear_output",
	}
	assert.Equal(t, want, Generate(s))
}

func TestNamesMatchFlattenedValues(t *testing.T) {
	for _, shape := range [][2]int{{1, 1}, {2, 2}, {6, 12}} {
		s, err := schema.Build(shape[0], shape[1])
		require.NoError(t, err)

		values, err := trace.Flatten(trace.Synthetic(s), s)
		require.NoError(t, err)
		generated := Generate(s)
		require.Len(t, generated, len(values))

		for i, v := range values {
			path := v.(string)
			encoded := strings.ReplaceAll(strings.TrimPrefix(strings.TrimPrefix(path, "embedding/"), "block/"), "/", "_")
			assert.Equal(t, encoded, generated[i], "position %d", i)
		}
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate([]string{"a", "b_1"}))
	assert.Error(t, Validate([]string{"a", "a"}))
	assert.Error(t, Validate([]string{"a/b"}))
	assert.Error(t, Validate([]string{"1a"}))
}

func TestRegroup(t *testing.T) {
	s, err := schema.Build(2, 3)
	require.NoError(t, err)

	generated := Generate(s)
	outputs := make(map[string]any, len(generated))
	for i, name := range generated {
		outputs[name] = fmt.Sprintf("value-%d", i)
	}

	root, err := Regroup(s, outputs)
	require.NoError(t, err)

	values, err := trace.Flatten(root, s)
	require.NoError(t, err)
	for i, v := range values {
		assert.Equal(t, fmt.Sprintf("value-%d", i), v)
	}

	delete(outputs, "block_1_attn_head_2_attn_masked")
	_, err = Regroup(s, outputs)
	var missing *trace.MissingValueError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "block/block_1/attn/head_2/attn_masked", missing.Path.String())
}
