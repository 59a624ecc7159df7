package trace

import (
	"fmt"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Mapping is a nested container that supports keyed lookup.
// Flatten also accepts plain map[string]any at any level.
type Mapping interface {
	Lookup(key string) (any, bool)
}

// Node is an insertion-ordered nested mapping of intermediate values.
// It is not safe for concurrent use.
type Node struct {
	entries *linkedhashmap.Map
}

var _ Mapping = (*Node)(nil)

func NewNode() *Node {
	return &Node{entries: linkedhashmap.New()}
}

// Set records a value under key, keeping the original position if key was
// already present.
func (n *Node) Set(key string, value any) {
	n.entries.Put(key, value)
}

// Child returns the child node at key, creating it if needed.
// It panics if key already holds a non-node value.
func (n *Node) Child(key string) *Node {
	if v, found := n.entries.Get(key); found {
		child, ok := v.(*Node)
		if !ok {
			panic(fmt.Sprintf("trace key %q holds %T, not a node", key, v))
		}
		return child
	}
	child := NewNode()
	n.entries.Put(key, child)
	return child
}

func (n *Node) Lookup(key string) (any, bool) {
	return n.entries.Get(key)
}

// Delete removes key; it is a no-op if key is absent.
func (n *Node) Delete(key string) {
	n.entries.Remove(key)
}

// Keys returns the keys in insertion order.
func (n *Node) Keys() []string {
	raw := n.entries.Keys()
	keys := make([]string, len(raw))
	for i, k := range raw {
		keys[i] = k.(string)
	}
	return keys
}

func (n *Node) Len() int {
	return n.entries.Size()
}

// Walk visits every leaf in insertion order, depth first.
func (n *Node) Walk(fn func(keys []string, value any)) {
	n.walk(nil, fn)
}

func (n *Node) walk(prefix []string, fn func(keys []string, value any)) {
	it := n.entries.Iterator()
	for it.Next() {
		keys := append(append([]string(nil), prefix...), it.Key().(string))
		if child, ok := it.Value().(*Node); ok {
			child.walk(keys, fn)
			continue
		}
		fn(keys, it.Value())
	}
}
