// Package gpt2 is a pure-Go GPT-2 forward pass that records every
// intermediate value into a trace. Weights are deterministic and seeded
// from the configuration; loading pretrained checkpoints is not supported.
package gpt2

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"k8s.io/klog/v2"

	"github.com/amanvirparhar/lmpeek/pkg/config"
	"github.com/amanvirparhar/lmpeek/pkg/engine"
	"github.com/amanvirparhar/lmpeek/pkg/export"
	"github.com/amanvirparhar/lmpeek/pkg/trace"
)

type Tensor = engine.Tensor

type norm struct {
	gamma, beta *Tensor
}

type linear struct {
	w, b *Tensor
}

type block struct {
	ln1, ln2 norm
	cAttn    linear
	cProj    linear
	fc       linear
	mlpProj  linear
}

type Model struct {
	cfg      config.Model
	headSize int

	wte    *Tensor
	wpe    *Tensor
	blocks []block
	lnF    norm
	// lmHead is wte transposed; the output projection is tied to the token embedding.
	lmHead *Tensor
}

var _ export.Model = (*Model)(nil)

// New initializes a model with seeded random weights.
func New(cfg config.Model) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := cfg.Embedding
	headSize := 0
	if cfg.Heads > 0 {
		headSize = c / cfg.Heads
	}
	attnWidth := cfg.Heads * headSize

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	const std = 0.02
	projStd := std
	if cfg.Layers > 0 {
		projStd = std / math.Sqrt(2*float64(cfg.Layers))
	}

	m := &Model{
		cfg:      cfg,
		headSize: headSize,
		wte:      engine.RandomNormal(rng, std, cfg.Vocab, c),
		wpe:      engine.RandomNormal(rng, std, cfg.Positions, c),
		lnF:      newNorm(c),
	}
	for i := 0; i < cfg.Layers; i++ {
		m.blocks = append(m.blocks, block{
			ln1:     newNorm(c),
			ln2:     newNorm(c),
			cAttn:   linear{w: engine.RandomNormal(rng, std, c, 3*attnWidth), b: engine.New(3 * attnWidth)},
			cProj:   linear{w: engine.RandomNormal(rng, projStd, attnWidth, c), b: engine.New(c)},
			fc:      linear{w: engine.RandomNormal(rng, std, c, 4*c), b: engine.New(4 * c)},
			mlpProj: linear{w: engine.RandomNormal(rng, projStd, 4*c, c), b: engine.New(c)},
		})
	}

	lmHead, err := engine.TransposeLast2(reshape(m.wte, 1, cfg.Vocab, c))
	if err != nil {
		return nil, err
	}
	m.lmHead = reshape(lmHead, c, cfg.Vocab)

	return m, nil
}

func (m *Model) Config() config.Model {
	return m.cfg
}

func newNorm(n int) norm {
	return norm{gamma: engine.Fill(1, n), beta: engine.New(n)}
}

func reshape(t *Tensor, shape ...int) *Tensor {
	out, err := engine.FromData(shape, t.Data())
	if err != nil {
		panic(err)
	}
	return out
}

// Evaluate runs one forward pass over tokens (batch, sequence).
func (m *Model) Evaluate(ctx context.Context, tokens [][]int64) (any, error) {
	return m.Forward(ctx, tokens)
}

// Forward runs one forward pass and returns the recorded trace.
func (m *Model) Forward(ctx context.Context, tokens [][]int64) (*trace.Node, error) {
	log := klog.FromContext(ctx)

	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, fmt.Errorf("input must have at least one sequence with at least one token")
	}
	seq := len(tokens[0])
	if seq > m.cfg.Positions {
		return nil, fmt.Errorf("sequence length %d exceeds n_positions %d", seq, m.cfg.Positions)
	}

	root := trace.NewNode()
	f := &forward{eps: m.cfg.Epsilon}

	embedding := root.Child("embedding")
	tokEmb := f.embed(m.wte, tokens)
	posIDs := make([]int64, seq)
	for i := range posIDs {
		posIDs[i] = int64(i)
	}
	posEmb := f.embed(m.wpe, [][]int64{posIDs})
	x := f.add(tokEmb, posEmb)
	embedding.Set("tok_emb", tokEmb)
	embedding.Set("pos_emb", posEmb)
	embedding.Set("input_emb", x)
	if f.err != nil {
		return nil, fmt.Errorf("embedding: %w", f.err)
	}

	blocks := root.Child("block")
	for i := range m.blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x = m.blocks[i].forward(f, blocks.Child(fmt.Sprintf("block_%d", i)), x, m.cfg.Heads, m.headSize)
		if f.err != nil {
			return nil, fmt.Errorf("block %d: %w", i, f.err)
		}
		log.V(4).Info("evaluated block", "block", i)
	}

	lnF := f.layerNorm(x, m.lnF)
	root.Child("ln_f").Set("output", lnF)
	logits := f.matmul(lnF, m.lmHead)
	root.Child("linear").Set("output", logits)
	if f.err != nil {
		return nil, fmt.Errorf("output head: %w", f.err)
	}

	return root, nil
}

func (b *block) forward(f *forward, node *trace.Node, x *Tensor, heads, headSize int) *Tensor {
	shape := x.Shape()
	leading := shape[:2]
	width := heads * headSize

	ln1 := f.layerNorm(x, b.ln1)
	node.Child("ln_1").Set("output", ln1)

	qkv := f.linear(ln1, b.cAttn)
	q := f.slice(qkv, 0, width)
	k := f.slice(qkv, width, 2*width)
	v := f.slice(qkv, 2*width, 3*width)

	attn := node.Child("attn")
	type headValues struct{ q, k, v *Tensor }
	perHead := make([]headValues, heads)
	for j := 0; j < heads; j++ {
		h := headValues{
			q: f.slice(q, j*headSize, (j+1)*headSize),
			k: f.slice(k, j*headSize, (j+1)*headSize),
			v: f.slice(v, j*headSize, (j+1)*headSize),
		}
		perHead[j] = h
		head := attn.Child(fmt.Sprintf("head_%d", j))
		head.Set("q", h.q)
		head.Set("k", h.k)
		head.Set("v", h.v)
	}

	outputs := make([]*Tensor, 0, heads)
	for j, h := range perHead {
		scores := f.bmm(h.q, f.transpose(h.k))
		scaled := f.scale(scores, float32(1/math.Sqrt(float64(headSize))))
		masked := f.causalMask(scaled)
		softmax := f.softmax(masked)

		head := attn.Child(fmt.Sprintf("head_%d", j))
		head.Set("attn", scores)
		head.Set("attn_scaled", scaled)
		head.Set("attn_masked", masked)
		head.Set("attn_softmax", softmax)

		outputs = append(outputs, f.bmm(softmax, h.v))
	}

	attnOutput := f.linear(f.concat(leading, outputs...), b.cProj)
	attn.Set("attn_output", attnOutput)
	res1 := f.add(x, attnOutput)
	node.Set("res_1", res1)

	ln2 := f.layerNorm(res1, b.ln2)
	node.Child("ln_2").Set("output", ln2)

	mlp := node.Child("mlp")
	h1 := f.linear(ln2, b.fc)
	gelu := f.gelu(h1)
	h2 := f.linear(gelu, b.mlpProj)
	mlp.Set("linear_1_output", h1)
	mlp.Set("gelu_output", gelu)
	mlp.Set("linear_2_output", h2)
	// Dropout is the identity at inference time.
	mlp.Set("output", h2)

	res2 := f.add(res1, h2)
	node.Set("res_2", res2)
	return res2
}
