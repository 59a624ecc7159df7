package export

import (
	"context"

	"github.com/amanvirparhar/lmpeek/pkg/schema"
)

// Sink serializes an ordered, named set of values into an artifact.
type Sink interface {
	// Write is called with len(names) == len(values) and one axes entry per name.
	// It must not leave a partial artifact behind when it fails.
	Write(ctx context.Context, input InputSpec, names []string, values []any, axes AxisTable) (Artifact, error)
}

// Model runs one forward evaluation and returns its nested trace.
type Model interface {
	Evaluate(ctx context.Context, tokens [][]int64) (any, error)
}

// InputSpec describes the graph input the artifact is traced with.
type InputSpec struct {
	Name   string
	Tokens [][]int64
	Axes   []schema.Axis
}

// DefaultInput returns the input spec for a batch of token sequences.
func DefaultInput(tokens [][]int64) InputSpec {
	return InputSpec{
		Name:   "input",
		Tokens: tokens,
		Axes:   []schema.Axis{{Index: 0, Name: "batch", Shared: true}, {Index: 1, Name: "sequence", Shared: true}},
	}
}

// AxisTable maps each output name to its axis declaration.
type AxisTable map[string]schema.AxisSpec

type Artifact struct {
	Path  string
	Bytes int64
}

type Result struct {
	Slots    int
	Artifact Artifact
}
