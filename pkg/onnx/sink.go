// Package onnx writes flattened traces as ONNX models: every captured
// value becomes an initializer routed through an Identity node to a
// named graph output carrying its axis declaration.
package onnx

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/amanvirparhar/lmpeek/pkg/blobs"
	"github.com/amanvirparhar/lmpeek/pkg/export"
	"github.com/amanvirparhar/lmpeek/pkg/schema"
)

// Tensor is the value type the sink can serialize.
type Tensor interface {
	Shape() []int
	Data() []float32
}

// FileSink writes the model to Path atomically.
type FileSink struct {
	Path string

	// Float16 stores captured values as FLOAT16 instead of FLOAT.
	Float16 bool

	// Producer defaults to "lmpeek".
	Producer string

	// Metadata is copied into the model's metadata_props.
	Metadata map[string]string

	// Progress, if set, is called after each value is encoded.
	Progress func(done, total int)
}

var _ export.Sink = (*FileSink)(nil)

func (s *FileSink) Write(ctx context.Context, input export.InputSpec, names []string, values []any, axes export.AxisTable) (export.Artifact, error) {
	log := klog.FromContext(ctx)

	metadata := map[string]string{
		"export_id": uuid.NewString(),
		"slots":     strconv.Itoa(len(names)),
	}
	for k, v := range s.Metadata {
		metadata[k] = v
	}

	model, err := s.encode(ctx, input, names, values, axes, metadata)
	if err != nil {
		return export.Artifact{}, err
	}

	n, err := blobs.WriteFileAtomic(ctx, s.Path, func(w io.Writer) error {
		const chunk = 1 << 20
		for off := 0; off < len(model); off += chunk {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(off+chunk, len(model))
			if _, err := w.Write(model[off:end]); err != nil {
				return fmt.Errorf("writing model: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return export.Artifact{}, err
	}

	log.Info("wrote onnx model", "path", s.Path, "size", humanize.Bytes(uint64(n)), "export_id", metadata["export_id"])
	return export.Artifact{Path: s.Path, Bytes: n}, nil
}

// Encode serializes a ModelProto without writing it anywhere.
func Encode(input export.InputSpec, names []string, values []any, axes export.AxisTable, metadata map[string]string) ([]byte, error) {
	s := &FileSink{}
	return s.encode(context.Background(), input, names, values, axes, metadata)
}

func (s *FileSink) encode(ctx context.Context, input export.InputSpec, names []string, values []any, axes export.AxisTable, metadata map[string]string) ([]byte, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("%d names for %d values", len(names), len(values))
	}

	elemType := Float
	if s.Float16 {
		elemType = Float16
	}

	var graph []byte
	graph = appendString(graph, graphName, "trace")
	graph = appendMessage(graph, graphInput, encodeValueInfo(inputInfo(input)))

	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, ok := values[i].(Tensor)
		if !ok {
			return nil, fmt.Errorf("value %q is %T, not a tensor", name, values[i])
		}
		spec, ok := axes[name]
		if !ok {
			return nil, fmt.Errorf("no axis declaration for %q", name)
		}
		shape := t.Shape()

		captured := "captured/" + name
		graph = appendMessage(graph, graphInitializer, encodeInitializer(initializer{
			name:     captured,
			dims:     shape,
			dataType: elemType,
			raw:      rawData(t.Data(), elemType),
		}))
		graph = appendMessage(graph, graphNode, encodeNode(node{
			name:   "identity_" + name,
			opType: "Identity",
			inputs: []string{captured},
			output: name,
		}))
		graph = appendMessage(graph, graphOutput, encodeValueInfo(ValueInfo{
			Name:     name,
			ElemType: elemType,
			Dims:     outputDims(name, shape, spec),
		}))

		if s.Progress != nil {
			s.Progress(i+1, len(names))
		}
	}

	producer := s.Producer
	if producer == "" {
		producer = "lmpeek"
	}

	var model []byte
	model = appendVarint(model, modelIRVersion, IRVersion)
	model = appendString(model, modelProducerName, producer)
	model = appendString(model, modelProducerVersion, Version)
	model = appendString(model, modelDocString, "intermediate values of one traced forward evaluation")
	model = appendMessage(model, modelGraph, graph)

	var opset []byte
	opset = appendString(opset, opsetDomain, "")
	opset = appendVarint(opset, opsetVersion, OpsetVersion)
	model = appendMessage(model, modelOpsetImport, opset)

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		model = appendMessage(model, modelMetadataProps, encodeEntry(k, metadata[k]))
	}

	return model, nil
}

// Version is recorded as the producer version.
var Version = "dev"

func inputInfo(input export.InputSpec) ValueInfo {
	name := input.Name
	if name == "" {
		name = "input"
	}
	dims := []Dim{{Value: int64(len(input.Tokens))}, {}}
	if len(input.Tokens) > 0 {
		dims[1].Value = int64(len(input.Tokens[0]))
	}
	for _, axis := range input.Axes {
		if axis.Index < len(dims) {
			dims[axis.Index] = Dim{Param: axis.Name}
		}
	}
	return ValueInfo{Name: name, ElemType: Int64, Dims: dims}
}

// outputDims uses a symbolic name for every declared axis and the traced
// extent elsewhere. Unshared axes are qualified by the output name so that
// unrelated outputs are not declared equal.
func outputDims(name string, shape []int, spec schema.AxisSpec) []Dim {
	dims := make([]Dim, len(shape))
	for i, d := range shape {
		dims[i] = Dim{Value: int64(d)}
	}
	for _, axis := range spec.Dynamic() {
		if axis.Index >= len(dims) {
			continue
		}
		param := axis.Name
		if !axis.Shared {
			param = name + "_" + axis.Name
		}
		dims[axis.Index] = Dim{Param: param}
	}
	return dims
}
