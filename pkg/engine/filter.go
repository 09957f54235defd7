package engine

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/vanderheijden86/canopy/pkg/tree"
)

// MatchSubstring is the default search predicate: case-insensitive substring
// match against the node title.
func MatchSubstring(query string, n *tree.Node) bool {
	return strings.Contains(strings.ToLower(n.Title), strings.ToLower(query))
}

// MatchFuzzy matches node titles with fuzzy subsequence scoring.
func MatchFuzzy(query string, n *tree.Node) bool {
	return len(fuzzy.Find(query, []string{n.Title})) > 0
}

// WithFuzzyMatch switches the search predicate to fuzzy matching.
func WithFuzzyMatch() Option {
	return func(e *Engine) { e.matcher = MatchFuzzy }
}

// Filter derives the visible forest for a search query. A node is retained
// when it matches directly or when any descendant matches. A retained node
// keeps only its matching children, except when it matched directly and no
// child did, in which case its original children survive untouched so the
// subtree's display state isn't discarded.
//
// The canonical forest is never mutated: retained nodes with narrowed
// children are shallow clones. An empty query returns the input as-is.
func Filter(roots []*tree.Node, query string, match MatchFunc) []*tree.Node {
	if query == "" {
		return roots
	}
	if match == nil {
		match = MatchSubstring
	}
	var filtered []*tree.Node
	for _, root := range roots {
		if kept := filterNode(root, query, match); kept != nil {
			filtered = append(filtered, kept)
		}
	}
	return filtered
}

func filterNode(n *tree.Node, query string, match MatchFunc) *tree.Node {
	if n == nil {
		return nil
	}
	var kept []*tree.Node
	for _, child := range n.Children {
		if f := filterNode(child, query, match); f != nil {
			kept = append(kept, f)
		}
	}
	if len(kept) > 0 {
		clone := *n
		clone.Children = kept
		return &clone
	}
	if match(query, n) {
		clone := *n
		return &clone
	}
	return nil
}

// VisibleRoots returns the forest as filtered by the current search query.
// The result is cached and recomputed only when the query or the tree data
// changed since the last call.
func (e *Engine) VisibleRoots() []*tree.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visibleRootsLocked()
}

func (e *Engine) visibleRootsLocked() []*tree.Node {
	if e.search == "" {
		return e.store.Roots()
	}
	if e.filterDirty {
		e.visible = Filter(e.store.Roots(), e.search, e.matcher)
		e.filterDirty = false
	}
	return e.visible
}

// Row is one line of the flattened visible tree, carrying the bookkeeping a
// renderer needs to draw branch prefixes without touching the tree itself.
type Row struct {
	Node  *tree.Node
	Depth int
	// Trail records, per ancestor level, whether that ancestor has more
	// siblings below it (draw a vertical line) or not (draw spaces).
	Trail []bool
	Last  bool // last child among its siblings

	// Structural state snapshotted at flatten time.
	Expanded    bool
	HasChildren bool
	Loadable    bool
}

// VisibleRows flattens the visible forest into renderable rows. While a
// search is active every retained node is emitted expanded, since the filter
// keeps ancestors around precisely so their matching descendants are
// reachable. The whole flatten runs under the engine lock, so rows are a
// consistent snapshot even while a lazy load is merging children.
func (e *Engine) VisibleRows() []Row {
	e.mu.Lock()
	defer e.mu.Unlock()

	searching := e.search != ""
	var rows []Row
	var walk func(n *tree.Node, depth int, trail []bool, last bool)
	walk = func(n *tree.Node, depth int, trail []bool, last bool) {
		if n == nil {
			return
		}
		rows = append(rows, Row{
			Node:        n,
			Depth:       depth,
			Trail:       append([]bool(nil), trail...),
			Last:        last,
			Expanded:    e.expanded[n.Key],
			HasChildren: n.HasChildren(),
			Loadable:    n.Loadable(),
		})
		if !n.HasChildren() {
			return
		}
		if !searching && !e.expanded[n.Key] {
			return
		}
		childTrail := append(trail, !last)
		for i, child := range n.Children {
			walk(child, depth+1, childTrail, i == len(n.Children)-1)
		}
	}
	roots := e.visibleRootsLocked()
	for i, root := range roots {
		walk(root, 0, nil, i == len(roots)-1)
	}
	return rows
}

// Matches reports whether the node matches the current search query. Used by
// renderers to highlight direct matches within the visible tree.
func (e *Engine) Matches(n *tree.Node) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.search == "" || n == nil {
		return false
	}
	return e.matcher(e.search, n)
}
