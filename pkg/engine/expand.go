package engine

import (
	"github.com/vanderheijden86/canopy/pkg/tree"
)

// ToggleExpand flips the expansion state of the node with the given key.
// Expanding a node that has no children yet, is not marked as a leaf, and
// has not been loaded before triggers a lazy child fetch; the node shows
// Loading=true while the fetch is in flight. Unknown keys are a no-op.
//
// Expansion is always a direct toggle. Disabled nodes can still be expanded;
// only selection and check mutations are gated on the disabled flag.
func (e *Engine) ToggleExpand(key string) {
	e.mu.Lock()
	n := e.store.Find(key)
	if n == nil {
		e.mu.Unlock()
		return
	}

	expanding := !e.expanded[key]
	if expanding {
		e.expanded[key] = true
		if n.Loadable() && !e.loaded[key] {
			e.startLoadLocked(n)
		}
	} else {
		delete(e.expanded, key)
	}

	keys := e.keysInTreeOrder(e.expanded)
	onExpand := e.onExpand
	e.mu.Unlock()

	if onExpand != nil {
		onExpand(keys, ExpandInfo{Expanded: expanding, Node: n})
	}
}

// SetExpanded sets the expansion state of a key directly, without
// triggering loads or notifications. Used when applying persisted
// expand/collapse state.
func (e *Engine) SetExpanded(key string, expanded bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store.Find(key) == nil {
		return
	}
	if expanded {
		e.expanded[key] = true
	} else {
		delete(e.expanded, key)
	}
}

// ExpandToDepth expands every node shallower than depth that has children.
// Used to apply a default-expansion policy before persisted explicit choices
// are restored. No loads are triggered and no notifications fire.
func (e *Engine) ExpandToDepth(depth int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var walk func(n *tree.Node, d int)
	walk = func(n *tree.Node, d int) {
		if d >= depth {
			return
		}
		if n.HasChildren() {
			e.expanded[n.Key] = true
		}
		for _, child := range n.Children {
			walk(child, d+1)
		}
	}
	for _, root := range e.store.Roots() {
		walk(root, 0)
	}
}

// ExpandOverrides returns the expansion state of every expandable node whose
// state differs from the depth-based default policy (nodes shallower than
// defaultDepth expanded, everything else collapsed). Definite leaves are
// skipped. The result is what persistence needs to record: explicit user
// choices only.
func (e *Engine) ExpandOverrides(defaultDepth int) map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	overrides := make(map[string]bool)
	var walk func(n *tree.Node, d int)
	walk = func(n *tree.Node, d int) {
		if n.HasChildren() || !n.IsLeaf {
			defaultExpanded := d < defaultDepth
			if actual := e.expanded[n.Key]; actual != defaultExpanded {
				overrides[n.Key] = actual
			}
		}
		for _, child := range n.Children {
			walk(child, d+1)
		}
	}
	for _, root := range e.store.Roots() {
		walk(root, 0)
	}
	return overrides
}

// ExpandTo expands every ancestor of the given key so the node is reachable
// in the visible tree. No loads are triggered; this only operates on nodes
// already present.
func (e *Engine) ExpandTo(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store.Find(key) == nil {
		return
	}
	path := e.pathTo(key)
	for _, ancestor := range path {
		e.expanded[ancestor.Key] = true
	}
}

// pathTo returns the ancestors of key from root downward, excluding the node
// itself. Empty when the key is a root or unknown.
func (e *Engine) pathTo(key string) []*tree.Node {
	var path []*tree.Node
	var walk func(n *tree.Node, trail []*tree.Node) bool
	walk = func(n *tree.Node, trail []*tree.Node) bool {
		if n.Key == key {
			path = append(path, trail...)
			return true
		}
		trail = append(trail, n)
		for _, child := range n.Children {
			if walk(child, trail) {
				return true
			}
		}
		return false
	}
	for _, root := range e.store.Roots() {
		if walk(root, nil) {
			break
		}
	}
	return path
}
