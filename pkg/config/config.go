// Package config reads the shape of the model being exported.
package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/amanvirparhar/lmpeek/pkg/schema"
)

// Model is the architecture configuration of a GPT-2 style model.
// Field tags follow the Hugging Face config.json names.
type Model struct {
	Name      string  `mapstructure:"name"`
	Layers    int     `mapstructure:"n_layer"`
	Heads     int     `mapstructure:"n_head"`
	Embedding int     `mapstructure:"n_embd"`
	Vocab     int     `mapstructure:"vocab_size"`
	Positions int     `mapstructure:"n_positions"`
	Epsilon   float64 `mapstructure:"layer_norm_epsilon"`
	Seed      uint64  `mapstructure:"seed"`
}

var presets = map[string]Model{
	"tiny":        {Name: "tiny", Layers: 2, Heads: 2, Embedding: 16, Vocab: 64, Positions: 32},
	"gpt2":        {Name: "gpt2", Layers: 12, Heads: 12, Embedding: 768, Vocab: 50257, Positions: 1024},
	"gpt2-medium": {Name: "gpt2-medium", Layers: 24, Heads: 16, Embedding: 1024, Vocab: 50257, Positions: 1024},
	"gpt2-large":  {Name: "gpt2-large", Layers: 36, Heads: 20, Embedding: 1280, Vocab: 50257, Positions: 1024},
	"gpt2-xl":     {Name: "gpt2-xl", Layers: 48, Heads: 25, Embedding: 1600, Vocab: 50257, Positions: 1024},
}

// Preset returns a built-in configuration by name.
func Preset(name string) (Model, bool) {
	m, ok := presets[name]
	if ok {
		m.setDefaults()
	}
	return m, ok
}

// Presets lists the built-in configuration names.
func Presets() []string {
	var names []string
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads a JSON or YAML model configuration file.
func Load(path string) (Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Model{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	m, err := Parse(b)
	if err != nil {
		return Model{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return m, nil
}

// Parse decodes a JSON or YAML document. nanoGPT style keys (block_size)
// are accepted as aliases.
func Parse(b []byte) (Model, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return Model{}, err
	}
	for alias, key := range map[string]string{"block_size": "n_positions", "n_ctx": "n_positions"} {
		if v, ok := raw[alias]; ok {
			if _, set := raw[key]; !set {
				raw[key] = v
			}
		}
	}

	var m Model
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &m,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Model{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Model{}, err
	}
	m.setDefaults()
	return m, nil
}

func (m *Model) setDefaults() {
	if m.Epsilon == 0 {
		m.Epsilon = 1e-5
	}
	if m.Seed == 0 {
		m.Seed = 1337
	}
}

// Validate rejects shapes the schema or the reference model cannot use.
func (m Model) Validate() error {
	invalid := func(reason string) error {
		return &schema.InvalidConfigurationError{Layers: m.Layers, Heads: m.Heads, Reason: reason}
	}
	switch {
	case m.Layers < 0 || m.Heads < 0:
		return invalid("n_layer and n_head must be >= 0")
	case m.Embedding <= 0:
		return invalid("n_embd must be > 0")
	case m.Heads > 0 && m.Embedding%m.Heads != 0:
		return invalid(fmt.Sprintf("n_embd %d is not divisible by n_head", m.Embedding))
	case m.Vocab <= 0:
		return invalid("vocab_size must be > 0")
	case m.Positions <= 0:
		return invalid("n_positions must be > 0")
	}
	return nil
}
