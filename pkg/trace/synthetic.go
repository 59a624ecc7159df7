package trace

import "github.com/amanvirparhar/lmpeek/pkg/schema"

// Synthetic builds a trace in which every slot holds its own path string.
func Synthetic(s *schema.Schema) *Node {
	root := NewNode()
	for i := 0; i < s.Count(); i++ {
		slot := s.Slot(i)
		Insert(root, slot.Path, slot.Path.String())
	}
	return root
}

// Insert stores value at path, creating intermediate nodes.
func Insert(root *Node, path schema.Path, value any) {
	keys := path.Keys()
	node := root
	for _, key := range keys[:len(keys)-1] {
		node = node.Child(key)
	}
	node.Set(keys[len(keys)-1], value)
}

// Remove deletes the leaf at path. Empty parents are kept.
func Remove(root *Node, path schema.Path) {
	keys := path.Keys()
	node := root
	for _, key := range keys[:len(keys)-1] {
		v, ok := node.Lookup(key)
		if !ok {
			return
		}
		child, ok := v.(*Node)
		if !ok {
			return
		}
		node = child
	}
	node.Delete(keys[len(keys)-1])
}
