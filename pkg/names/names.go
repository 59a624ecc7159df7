// Package names renders stable output names from a traversal schema
// without evaluating the model.
package names

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/amanvirparhar/lmpeek/pkg/schema"
	"github.com/amanvirparhar/lmpeek/pkg/trace"
)

const separator = "_"

// Of renders the name of a single slot, e.g. block_0_attn_head_1_q.
func Of(slot schema.Slot) string {
	parts := make([]string, 0, len(slot.Path))
	for _, seg := range slot.Path {
		if seg.Kind == schema.Group {
			continue
		}
		parts = append(parts, seg.Key())
	}
	return strings.Join(parts, separator)
}

// Generate returns one name per slot, in slot order.
func Generate(s *schema.Schema) []string {
	out := make([]string, s.Count())
	for i := range out {
		out[i] = Of(s.Slot(i))
	}
	return out
}

var safeName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that names are unique identifiers.
func Validate(names []string) error {
	seen := make(map[string]int, len(names))
	for i, name := range names {
		if !safeName.MatchString(name) {
			return fmt.Errorf("name %d (%q) is not a valid identifier", i, name)
		}
		if j, dup := seen[name]; dup {
			return fmt.Errorf("name %q is used at positions %d and %d", name, j, i)
		}
		seen[name] = i
	}
	return nil
}

// Regroup rebuilds the nested trace from flat named outputs, as read back
// from an exported artifact.
func Regroup(s *schema.Schema, outputs map[string]any) (*trace.Node, error) {
	root := trace.NewNode()
	for i := 0; i < s.Count(); i++ {
		slot := s.Slot(i)
		v, ok := outputs[Of(slot)]
		if !ok || v == nil {
			return nil, &trace.MissingValueError{Path: slot.Path}
		}
		trace.Insert(root, slot.Path, v)
	}
	return root, nil
}
