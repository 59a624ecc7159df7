package trace

import (
	"fmt"

	"github.com/amanvirparhar/lmpeek/pkg/schema"
)

// MissingValueError reports a schema slot that the trace does not contain.
type MissingValueError struct {
	Path schema.Path
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("missing trace value at %q", e.Path.String())
}

// Flatten projects root onto the slot order of s.
func Flatten(root any, s *schema.Schema) ([]any, error) {
	values := make([]any, 0, s.Count())
	for i := 0; i < s.Count(); i++ {
		slot := s.Slot(i)
		v, ok := Lookup(root, slot.Path.Keys())
		if !ok {
			return nil, &MissingValueError{Path: slot.Path}
		}
		values = append(values, v)
	}
	return values, nil
}

// Lookup resolves keys one level at a time. A nil leaf counts as absent.
func Lookup(root any, keys []string) (any, bool) {
	current := root
	for _, key := range keys {
		var next any
		var found bool
		switch m := current.(type) {
		case Mapping:
			next, found = m.Lookup(key)
		case map[string]any:
			next, found = m[key]
		default:
			return nil, false
		}
		if !found || next == nil {
			return nil, false
		}
		current = next
	}
	return current, true
}
