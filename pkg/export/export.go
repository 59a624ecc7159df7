// Package export hands a flattened trace and its names to a Sink.
package export

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/amanvirparhar/lmpeek/pkg/names"
	"github.com/amanvirparhar/lmpeek/pkg/schema"
	"github.com/amanvirparhar/lmpeek/pkg/trace"
)

// Export validates that values, names and schema line up and writes them
// to sink. Sink errors are returned as *SinkWriteError and never retried.
func Export(ctx context.Context, input InputSpec, s *schema.Schema, values []any, outputNames []string, sink Sink) (*Result, error) {
	log := klog.FromContext(ctx)

	if len(values) != s.Count() || len(outputNames) != s.Count() {
		return nil, &LengthMismatchError{Values: len(values), Names: len(outputNames), Slots: s.Count()}
	}

	axes := BuildAxisTable(s, outputNames)

	log.V(2).Info("writing artifact", "slots", s.Count(), "input", input.Name)
	artifact, err := sink.Write(ctx, input, outputNames, values, axes)
	if err != nil {
		return nil, &SinkWriteError{Err: err}
	}

	log.Info("exported trace", "path", artifact.Path, "slots", s.Count(), "bytes", artifact.Bytes)
	return &Result{Slots: s.Count(), Artifact: artifact}, nil
}

// BuildAxisTable pairs each name with the axis declaration of its slot.
// outputNames must have one entry per slot.
func BuildAxisTable(s *schema.Schema, outputNames []string) AxisTable {
	axes := make(AxisTable, len(outputNames))
	for i, name := range outputNames {
		axes[name] = s.Slot(i).Axes
	}
	return axes
}

// Options configures Run.
type Options struct {
	Layers int
	Heads  int
	Tokens [][]int64
	Model  Model
	Sink   Sink
}

// Run builds the schema, evaluates the model once, flattens the trace,
// generates names and exports. Any failure aborts the whole export.
func Run(ctx context.Context, opts Options) (*Result, error) {
	log := klog.FromContext(ctx)

	s, err := schema.Build(opts.Layers, opts.Heads)
	if err != nil {
		return nil, err
	}
	outputNames := names.Generate(s)
	if err := names.Validate(outputNames); err != nil {
		return nil, fmt.Errorf("generating names: %w", err)
	}
	log.Info("built traversal schema", "layers", opts.Layers, "heads", opts.Heads, "slots", s.Count())

	root, err := opts.Model.Evaluate(ctx, opts.Tokens)
	if err != nil {
		return nil, fmt.Errorf("evaluating model: %w", err)
	}

	values, err := trace.Flatten(root, s)
	if err != nil {
		return nil, fmt.Errorf("flattening trace: %w", err)
	}

	return Export(ctx, DefaultInput(opts.Tokens), s, values, outputNames, opts.Sink)
}
