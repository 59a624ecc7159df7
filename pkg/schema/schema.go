package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// SegmentKind says how a path segment is rendered.
type SegmentKind int

const (
	// Group segments exist in the trace but are left out of output names.
	Group SegmentKind = iota
	Field
	Layer
	Head
)

// Segment is one typed step of a slot path.
type Segment struct {
	Kind  SegmentKind
	Name  string
	Index int
}

// Key is the string used to look the segment up in a trace.
func (s Segment) Key() string {
	switch s.Kind {
	case Layer:
		return "block_" + strconv.Itoa(s.Index)
	case Head:
		return "head_" + strconv.Itoa(s.Index)
	default:
		return s.Name
	}
}

// Path locates a value inside a trace.
type Path []Segment

// Keys returns the lookup keys, outermost first.
func (p Path) Keys() []string {
	keys := make([]string, len(p))
	for i, seg := range p {
		keys[i] = seg.Key()
	}
	return keys
}

func (p Path) String() string {
	return strings.Join(p.Keys(), "/")
}

// Slot is one position of the flattened trace.
type Slot struct {
	Path Path
	Role Role
	Axes AxisSpec

	// Layer and Head are -1 when the slot is outside a layer or head.
	Layer int
	Head  int
}

// Schema is the ordered list of slots for a fixed (layers, heads) shape.
// It is immutable once built.
type Schema struct {
	layers int
	heads  int
	slots  []Slot
}

// InvalidConfigurationError is returned for shapes that cannot be built.
type InvalidConfigurationError struct {
	Layers int
	Heads  int
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "both must be >= 0"
	}
	return fmt.Sprintf("invalid configuration: layers=%d heads=%d (%s)", e.Layers, e.Heads, reason)
}

// ExpectedCount is the number of slots for the given shape.
func ExpectedCount(layers, heads int) int {
	return 3 + layers*(9+7*heads) + 2
}

func Build(layers, heads int) (*Schema, error) {
	if layers < 0 || heads < 0 {
		return nil, &InvalidConfigurationError{Layers: layers, Heads: heads}
	}

	b := &builder{slots: make([]Slot, 0, ExpectedCount(layers, heads))}

	embedding := Segment{Kind: Group, Name: "embedding"}
	b.add(Path{embedding, field("tok_emb")}, TokenEmbedding, -1, -1)
	b.add(Path{embedding, field("pos_emb")}, PositionEmbedding, -1, -1)
	b.add(Path{embedding, field("input_emb")}, InputEmbedding, -1, -1)

	for i := 0; i < layers; i++ {
		block := Path{{Kind: Group, Name: "block"}, {Kind: Layer, Index: i}}
		attn := block.with(field("attn"))

		b.add(block.with(field("ln_1"), field("output")), LN1Output, i, -1)

		for j := 0; j < heads; j++ {
			head := attn.with(Segment{Kind: Head, Index: j})
			for _, role := range []Role{Query, Key, Value} {
				b.add(head.with(field(role.String())), role, i, j)
			}
		}
		for j := 0; j < heads; j++ {
			head := attn.with(Segment{Kind: Head, Index: j})
			for _, role := range []Role{AttnRaw, AttnScaled, AttnMasked, AttnSoftmax} {
				b.add(head.with(field(role.String())), role, i, j)
			}
		}

		b.add(attn.with(field("attn_output")), AttnOutput, i, -1)
		b.add(block.with(field("res_1")), Residual1, i, -1)
		b.add(block.with(field("ln_2"), field("output")), LN2Output, i, -1)

		mlp := block.with(field("mlp"))
		for _, role := range []Role{MLPLinear1, MLPGELU, MLPLinear2, MLPOutput} {
			b.add(mlp.with(field(role.String())), role, i, -1)
		}

		b.add(block.with(field("res_2")), Residual2, i, -1)
	}

	b.add(Path{field("ln_f"), field("output")}, LNFOutput, -1, -1)
	b.add(Path{field("linear"), field("output")}, LinearOutput, -1, -1)

	// The final output is the only slot with its own axis declaration.
	b.slots[len(b.slots)-1].Axes = TwoDynamicPlusFeature

	return &Schema{layers: layers, heads: heads, slots: b.slots}, nil
}

func (s *Schema) Layers() int { return s.layers }
func (s *Schema) Heads() int  { return s.heads }
func (s *Schema) Count() int  { return len(s.slots) }

// Slots returns a copy of the slot list in traversal order.
func (s *Schema) Slots() []Slot {
	out := make([]Slot, len(s.slots))
	for i := range s.slots {
		out[i] = s.Slot(i)
	}
	return out
}

// Slot returns a copy of the slot at position i.
func (s *Schema) Slot(i int) Slot {
	slot := s.slots[i]
	slot.Path = slot.Path.with()
	return slot
}

type builder struct {
	slots []Slot
}

func (b *builder) add(path Path, role Role, layer, head int) {
	b.slots = append(b.slots, Slot{
		Path:  path,
		Role:  role,
		Axes:  ThreeDynamic,
		Layer: layer,
		Head:  head,
	})
}

func field(name string) Segment {
	return Segment{Kind: Field, Name: name}
}

// with returns a new path; the receiver is never aliased.
func (p Path) with(segments ...Segment) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	return append(out, segments...)
}
