package tree

import (
	"fmt"
)

// Store owns the canonical tree: an ordered forest of root nodes. It answers
// structural queries (find, descendants) and performs the single structural
// mutation the engine needs, grafting lazily loaded children under a node.
//
// Lookup misses are normal, not errors: a key may reference a node that was
// replaced by a data reload, so Find returns nil and callers treat that as
// "nothing to do".
//
// The Store carries no locking of its own. The engine serializes every
// structural read and write behind its mutex; callers that may race with a
// lazy-load merge must use the engine's locked accessors instead of walking
// the store directly.
type Store struct {
	roots []*Node
	index map[string]*Node
}

// NewStore builds a Store from the given roots and validates key uniqueness
// across the whole forest. Duplicate keys are a data error the engine cannot
// recover from later (first-match lookups would silently shadow nodes), so
// they are rejected up front.
func NewStore(roots []*Node) (*Store, error) {
	s := &Store{
		roots: roots,
		index: make(map[string]*Node),
	}
	if err := s.reindex(); err != nil {
		return nil, err
	}
	return s, nil
}

// reindex rebuilds the key index by walking the forest in depth-first
// pre-order, failing on the first duplicate key.
func (s *Store) reindex() error {
	index := make(map[string]*Node, len(s.index))
	var walk func(n *Node) error
	walk = func(n *Node) error {
		if n == nil {
			return nil
		}
		if _, dup := index[n.Key]; dup {
			return fmt.Errorf("duplicate node key %q", n.Key)
		}
		index[n.Key] = n
		for _, child := range n.Children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range s.roots {
		if err := walk(root); err != nil {
			return err
		}
	}
	s.index = index
	return nil
}

// Roots returns the root nodes of the canonical tree. Callers must treat the
// result as read-only.
func (s *Store) Roots() []*Node {
	return s.roots
}

// Len returns the total number of nodes in the store.
func (s *Store) Len() int {
	return len(s.index)
}

// Find returns the node with the given key, or nil if no such node exists.
// Keys are unique, so the indexed lookup matches what a depth-first first-hit
// search over the forest would return.
func (s *Store) Find(key string) *Node {
	return s.index[key]
}

// DescendantKeys returns the keys of all descendants of n (not including n
// itself) in depth-first pre-order.
func (s *Store) DescendantKeys(n *Node) []string {
	if n == nil {
		return nil
	}
	var keys []string
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, child := range n.Children {
			if child == nil {
				continue
			}
			keys = append(keys, child.Key)
			walk(child)
		}
	}
	walk(n)
	return keys
}

// Walk visits every node in depth-first pre-order. Returning false from fn
// stops the walk.
func (s *Store) Walk(fn func(n *Node) bool) {
	var walk func(n *Node) bool
	walk = func(n *Node) bool {
		if n == nil {
			return true
		}
		if !fn(n) {
			return false
		}
		for _, child := range n.Children {
			if !walk(child) {
				return false
			}
		}
		return true
	}
	for _, root := range s.roots {
		if !walk(root) {
			return
		}
	}
}

// ReplaceSubtree grafts newChildren under the node with the given key,
// replacing its current children. All sibling nodes and the node's own
// fields other than Children are preserved. Unknown keys are a no-op.
//
// Returns an error only when the grafted children would break key
// uniqueness; in that case the tree is left unchanged.
func (s *Store) ReplaceSubtree(key string, newChildren []*Node) error {
	n := s.index[key]
	if n == nil {
		return nil
	}
	old := n.Children
	n.Children = newChildren
	if err := s.reindex(); err != nil {
		n.Children = old
		// Restore the index to match the rolled-back tree. The forest is
		// valid again, so this cannot fail.
		if rerr := s.reindex(); rerr != nil {
			return fmt.Errorf("restoring index after rejected graft: %w", rerr)
		}
		return err
	}
	return nil
}

// Resolve maps keys to SelectionValues through the store, preserving order.
// Keys that no longer resolve (node vanished after a reload or filter) are
// silently dropped.
func (s *Store) Resolve(keys []string) []SelectionValue {
	values := make([]SelectionValue, 0, len(keys))
	for _, key := range keys {
		if n := s.index[key]; n != nil {
			values = append(values, ValueOf(n))
		}
	}
	return values
}

// ResolveNodes maps keys to nodes, dropping keys that no longer resolve.
func (s *Store) ResolveNodes(keys []string) []*Node {
	nodes := make([]*Node, 0, len(keys))
	for _, key := range keys {
		if n := s.index[key]; n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes
}
