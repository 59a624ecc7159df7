package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanvirparhar/lmpeek/pkg/schema"
)

func TestParseHuggingFaceJSON(t *testing.T) {
	doc := "{\n" +
		"  \"model_type\": \"gpt2\",\n" +
		"  \"n_layer\": 12,\n" +
		"  \"n_head\": 12,\n" +
		"  \"n_embd\": 768,\n" +
		"  \"vocab_size\": 50257,\n" +
		"  \"n_positions\": 1024,\n" +
		"  \"layer_norm_epsilon\": 1e-05\n" +
		"}\n"
	m, err := Parse([]byte(doc))
	require.NoError(t, err)

	want, ok := Preset("gpt2")
	require.True(t, ok)
	want.Name = ""
	assert.Equal(t, want, m)
	assert.NoError(t, m.Validate())
}

func TestParseNanoGPTYAML(t *testing.T) {
	m, err := Parse([]byte("n_layer: 2\nn_head: \"4\"\nn_embd: 32\nvocab_size: 100\nblock_size: 64\nseed: 7\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Layers)
	assert.Equal(t, 4, m.Heads)
	assert.Equal(t, 64, m.Positions)
	assert.Equal(t, uint64(7), m.Seed)
	assert.Equal(t, 1e-5, m.Epsilon)
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"n_layer": 1, "n_head": 1, "n_embd": 4, "vocab_size": 8, "n_ctx": 16}`), 0o644))

	m, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 16, m.Positions)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, _ := Preset("tiny")
	for name, mutate := range map[string]func(*Model){
		"negative layers":  func(m *Model) { m.Layers = -1 },
		"negative heads":   func(m *Model) { m.Heads = -2 },
		"indivisible":      func(m *Model) { m.Heads = 3 },
		"no vocab":         func(m *Model) { m.Vocab = 0 },
		"no positions":     func(m *Model) { m.Positions = 0 },
		"no embedding dim": func(m *Model) { m.Embedding = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			m := base
			mutate(&m)
			var invalid *schema.InvalidConfigurationError
			assert.True(t, errors.As(m.Validate(), &invalid))
		})
	}

	zeroHeads := base
	zeroHeads.Heads = 0
	assert.NoError(t, zeroHeads.Validate())
}

func TestPresets(t *testing.T) {
	assert.Equal(t, []string{"gpt2", "gpt2-large", "gpt2-medium", "gpt2-xl", "tiny"}, Presets())
	for _, name := range Presets() {
		m, ok := Preset(name)
		require.True(t, ok)
		assert.NoError(t, m.Validate(), name)
	}
	_, ok := Preset("llama")
	assert.False(t, ok)
}
