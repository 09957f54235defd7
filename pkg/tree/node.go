// Package tree holds the canonical node model for canopy and the Store that
// owns it. Every other package receives read-only views of the tree; only the
// Store mutates its shape (and only through ReplaceSubtree).
package tree

// Node is a single node in the hierarchical source-of-truth tree.
//
// Keys must be unique across the whole tree, including descendants; NewStore
// enforces this at construction. Title is opaque to the engine and only
// matters to matchers and renderers. Value carries an arbitrary caller
// payload.
type Node struct {
	Key      string  `json:"key" yaml:"key"`
	Title    string  `json:"title" yaml:"title"`
	Value    any     `json:"value,omitempty" yaml:"value,omitempty"`
	Children []*Node `json:"children,omitempty" yaml:"children,omitempty"`

	// Disabled nodes cannot be selected or checked, but can still be
	// expanded and viewed.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// IsLeaf marks a node as a definite leaf even when Children is empty.
	// Relevant with lazy loading: a node without children yet may still
	// have some to fetch unless IsLeaf is set.
	IsLeaf bool `json:"is_leaf,omitempty" yaml:"is_leaf,omitempty"`

	// Loading is true while an async child fetch for this node is in
	// flight. Transient; never serialized.
	Loading bool `json:"-" yaml:"-"`

	// Description is optional markdown shown in the widget's detail pane.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// HasChildren reports whether the node currently has any children attached.
func (n *Node) HasChildren() bool {
	return n != nil && len(n.Children) > 0
}

// Loadable reports whether the node is a candidate for lazy child loading:
// no children present yet and not explicitly marked as a leaf.
func (n *Node) Loadable() bool {
	return n != nil && len(n.Children) == 0 && !n.IsLeaf
}

// SelectionValue is the externally visible projection of a selected or
// checked node. It deliberately omits structural fields like Children so
// consumers are insulated from the tree's internals.
type SelectionValue struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Value any    `json:"value,omitempty"`
}

// ValueOf projects a node into its SelectionValue form.
func ValueOf(n *Node) SelectionValue {
	return SelectionValue{Key: n.Key, Title: n.Title, Value: n.Value}
}
