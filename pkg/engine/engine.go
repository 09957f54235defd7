// Package engine implements the hierarchical selection engine behind the
// canopy tree-select widget: single/multi selection, checkbox state with
// cascading propagation, expand/collapse tracking, search filtering, and
// lazy child loading.
//
// The engine is an explicit state object. UI layers call its mutation
// methods directly and subscribe to change notifications through the
// callback options; there is no implicit re-render wiring.
package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vanderheijden86/canopy/pkg/debug"
	"github.com/vanderheijden86/canopy/pkg/tree"
)

// Mode controls selection cardinality.
type Mode int

const (
	// ModeSingle keeps at most one selected key.
	ModeSingle Mode = iota
	// ModeMultiple allows any number of selected keys.
	ModeMultiple
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeMultiple:
		return "multiple"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// CheckStrategy controls which fully checked nodes are reported in the
// emitted value set.
type CheckStrategy int

const (
	// ShowParent emits only the highest fully checked nodes; checked nodes
	// under a fully checked ancestor are suppressed.
	ShowParent CheckStrategy = iota
	// ShowChild emits only fully checked leaves.
	ShowChild
	// ShowAll emits every fully checked node regardless of ancestry.
	ShowAll
)

// String returns the strategy name.
func (s CheckStrategy) String() string {
	switch s {
	case ShowParent:
		return "show-parent"
	case ShowChild:
		return "show-child"
	case ShowAll:
		return "show-all"
	default:
		return fmt.Sprintf("CheckStrategy(%d)", int(s))
	}
}

// LoadFunc fetches the children of a node on demand. It is called off the
// caller's goroutine; the engine merges the returned children into the store
// when it resolves.
type LoadFunc func(ctx context.Context, n *tree.Node) ([]*tree.Node, error)

// MatchFunc decides whether a node matches the current search query.
type MatchFunc func(query string, n *tree.Node) bool

// SelectInfo accompanies OnSelect notifications.
type SelectInfo struct {
	Selected      bool         // true for select, false for deselect
	Node          *tree.Node   // the node the action targeted
	PreviousKeys  []string     // selected keys before this action
	SelectedNodes []*tree.Node // resolved nodes for the new selected keys
}

// ExpandInfo accompanies OnExpand notifications.
type ExpandInfo struct {
	Expanded bool
	Node     *tree.Node
}

// LoadInfo accompanies OnLoad notifications after a successful child fetch.
type LoadInfo struct {
	Node     *tree.Node
	Children []*tree.Node
}

// Engine maintains the full selection state for one widget instance. All
// mutation methods are safe for concurrent use; in the normal event-loop
// model only load completions arrive from another goroutine.
type Engine struct {
	mu    sync.Mutex
	store *tree.Store

	mode      Mode
	checkable bool
	strategy  CheckStrategy
	disabled  bool

	selected    []string // insertion-ordered
	checked     map[string]bool
	halfChecked map[string]bool
	expanded    map[string]bool
	loaded      map[string]bool
	search      string

	matcher     MatchFunc
	visible     []*tree.Node
	filterDirty bool

	loader   LoadFunc
	loadCtx  context.Context
	flight   singleflight.Group
	inFlight map[string]bool

	onChange    func(values []tree.SelectionValue, nodes []*tree.Node)
	onSelect    func(selectedKeys []string, info SelectInfo)
	onExpand    func(expandedKeys []string, info ExpandInfo)
	onSearch    func(query string)
	onClear     func()
	onLoad      func(loadedKeys []string, info LoadInfo)
	onLoadError func(key string, err error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithMode sets the selection mode (default ModeSingle).
func WithMode(m Mode) Option {
	return func(e *Engine) { e.mode = m }
}

// WithCheckable enables checkbox state. When enabled, the emitted value set
// is derived from checked keys rather than selected keys.
func WithCheckable(strategy CheckStrategy) Option {
	return func(e *Engine) {
		e.checkable = true
		e.strategy = strategy
	}
}

// WithDisabled disables all selection and check mutations engine-wide.
// Expansion and search still work.
func WithDisabled(disabled bool) Option {
	return func(e *Engine) { e.disabled = disabled }
}

// WithLoader installs the lazy child loader.
func WithLoader(fn LoadFunc) Option {
	return func(e *Engine) { e.loader = fn }
}

// WithLoadContext sets the base context passed to loader calls triggered by
// expansion (default context.Background()).
func WithLoadContext(ctx context.Context) Option {
	return func(e *Engine) { e.loadCtx = ctx }
}

// WithMatcher overrides the search predicate (default: case-insensitive
// substring match on the node title).
func WithMatcher(fn MatchFunc) Option {
	return func(e *Engine) { e.matcher = fn }
}

// WithInitialSelected seeds the selected keys. In single mode only the first
// resolvable key is kept.
func WithInitialSelected(keys ...string) Option {
	return func(e *Engine) { e.selected = append(e.selected, keys...) }
}

// WithInitialChecked seeds the checked keys; each seeds a full downward
// cascade, as if checked through Check.
func WithInitialChecked(keys ...string) Option {
	return func(e *Engine) {
		for _, key := range keys {
			if n := e.store.Find(key); n != nil {
				e.markChecked(n, true)
			}
		}
	}
}

// WithInitialExpanded seeds the expanded keys. No loads are triggered for
// seeded keys; loading only happens on interactive expansion.
func WithInitialExpanded(keys ...string) Option {
	return func(e *Engine) {
		for _, key := range keys {
			e.expanded[key] = true
		}
	}
}

// WithExpandAll expands every node that currently has children.
func WithExpandAll() Option {
	return func(e *Engine) {
		e.store.Walk(func(n *tree.Node) bool {
			if n.HasChildren() {
				e.expanded[n.Key] = true
			}
			return true
		})
	}
}

// WithOnChange registers the value-change callback, invoked whenever the
// emitted value set may have changed (selection or check mutations).
func WithOnChange(fn func(values []tree.SelectionValue, nodes []*tree.Node)) Option {
	return func(e *Engine) { e.onChange = fn }
}

// WithOnSelect registers the selection callback.
func WithOnSelect(fn func(selectedKeys []string, info SelectInfo)) Option {
	return func(e *Engine) { e.onSelect = fn }
}

// WithOnExpand registers the expansion callback.
func WithOnExpand(fn func(expandedKeys []string, info ExpandInfo)) Option {
	return func(e *Engine) { e.onExpand = fn }
}

// WithOnSearch registers the search callback.
func WithOnSearch(fn func(query string)) Option {
	return func(e *Engine) { e.onSearch = fn }
}

// WithOnClear registers the clear callback.
func WithOnClear(fn func()) Option {
	return func(e *Engine) { e.onClear = fn }
}

// WithOnLoad registers the callback invoked after a successful lazy load.
func WithOnLoad(fn func(loadedKeys []string, info LoadInfo)) Option {
	return func(e *Engine) { e.onLoad = fn }
}

// WithOnLoadError registers the callback invoked when a lazy load fails.
func WithOnLoadError(fn func(key string, err error)) Option {
	return func(e *Engine) { e.onLoadError = fn }
}

// New creates an Engine over the given store. The store must not be mutated
// by the caller afterwards; data reloads go through ReplaceData.
func New(store *tree.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: nil store")
	}
	e := &Engine{
		store:       store,
		checked:     make(map[string]bool),
		halfChecked: make(map[string]bool),
		expanded:    make(map[string]bool),
		loaded:      make(map[string]bool),
		inFlight:    make(map[string]bool),
		loadCtx:     context.Background(),
		matcher:     MatchSubstring,
		filterDirty: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.mode != ModeSingle && e.mode != ModeMultiple {
		return nil, fmt.Errorf("engine: unknown mode %d", int(e.mode))
	}
	if e.strategy != ShowParent && e.strategy != ShowChild && e.strategy != ShowAll {
		return nil, fmt.Errorf("engine: unknown check strategy %d", int(e.strategy))
	}
	// Normalize seeded selection: drop unresolvable keys, enforce single
	// cardinality.
	e.selected = e.pruneSelected(e.selected)
	if e.mode == ModeSingle && len(e.selected) > 1 {
		e.selected = e.selected[:1]
	}
	e.recomputeChecked()
	return e, nil
}

// Configure applies options after construction. Useful for wiring callbacks
// that need a handle on something built after the engine (e.g. a running
// program loop).
func (e *Engine) Configure(opts ...Option) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, opt := range opts {
		opt(e)
	}
}

// Store returns the canonical tree store. The store is not separately
/// synchronized: while a lazy load may be in flight, concurrent structural
// reads must go through locked engine methods (VisibleRows, CheckedKeys and
// friends) rather than walking the store directly.
func (e *Engine) Store() *tree.Store {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store
}

// Mode returns the selection mode.
func (e *Engine) Mode() Mode { return e.mode }

// Checkable reports whether checkbox state is enabled.
func (e *Engine) Checkable() bool { return e.checkable }

// Strategy returns the check strategy.
func (e *Engine) Strategy() CheckStrategy { return e.strategy }

// SetDisabled toggles the engine-wide disabled flag.
func (e *Engine) SetDisabled(disabled bool) {
	e.mu.Lock()
	e.disabled = disabled
	e.mu.Unlock()
}

// Select toggles selection of the node with the given key. Disabled nodes,
// a disabled engine, and unknown keys are silent no-ops.
func (e *Engine) Select(key string, selected bool) {
	e.mu.Lock()
	n := e.store.Find(key)
	if n == nil || n.Disabled || e.disabled {
		e.mu.Unlock()
		return
	}

	prev := append([]string(nil), e.selected...)
	changed := false
	if selected {
		switch e.mode {
		case ModeSingle:
			if len(e.selected) != 1 || e.selected[0] != key {
				e.selected = []string{key}
				changed = true
			}
		case ModeMultiple:
			if !containsKey(e.selected, key) {
				e.selected = append(e.selected, key)
				changed = true
			}
		}
	} else {
		if containsKey(e.selected, key) {
			e.selected = removeKey(e.selected, key)
			changed = true
		}
	}
	if !changed {
		e.mu.Unlock()
		return
	}

	keys := append([]string(nil), e.selected...)
	nodes := e.store.ResolveNodes(keys)
	values, valueNodes := e.valueLocked()
	onSelect, onChange := e.onSelect, e.onChange
	e.mu.Unlock()

	if onSelect != nil {
		onSelect(keys, SelectInfo{
			Selected:      selected,
			Node:          n,
			PreviousKeys:  prev,
			SelectedNodes: nodes,
		})
	}
	if onChange != nil {
		onChange(values, valueNodes)
	}
}

// Check toggles the checkbox of the node with the given key, cascading to
// every descendant and re-deriving ancestor checked/half-checked state.
// Disabled nodes, a disabled engine, and unknown keys are silent no-ops.
func (e *Engine) Check(key string, checked bool) {
	e.mu.Lock()
	n := e.store.Find(key)
	if n == nil || n.Disabled || e.disabled || !e.checkable {
		e.mu.Unlock()
		return
	}

	e.markChecked(n, checked)
	e.recomputeChecked()

	values, valueNodes := e.valueLocked()
	onChange := e.onChange
	e.mu.Unlock()

	if onChange != nil {
		onChange(values, valueNodes)
	}
}

// markChecked applies the downward cascade for one check/uncheck action.
// The cascade flows through disabled descendants: a fully checked ancestor
// must never sit above an unchecked descendant.
func (e *Engine) markChecked(n *tree.Node, checked bool) {
	keys := append([]string{n.Key}, e.store.DescendantKeys(n)...)
	for _, key := range keys {
		if checked {
			e.checked[key] = true
		} else {
			delete(e.checked, key)
		}
		delete(e.halfChecked, key)
	}
}

// recomputeChecked re-derives checked and half-checked state for the whole
// tree from leaf membership. Interior nodes are fully checked when all
// direct children are, half-checked when some descendant is checked but not
// all children are fully checked. Keys that no longer resolve are dropped.
func (e *Engine) recomputeChecked() {
	checked := make(map[string]bool, len(e.checked))
	half := make(map[string]bool)

	var walk func(n *tree.Node) (full, any bool)
	walk = func(n *tree.Node) (bool, bool) {
		if !n.HasChildren() {
			// Childless nodes (true leaves and unloaded branches alike)
			// carry their own membership.
			c := e.checked[n.Key]
			if c {
				checked[n.Key] = true
			}
			return c, c
		}
		all, any := true, false
		for _, child := range n.Children {
			f, a := walk(child)
			all = all && f
			any = any || a
		}
		if all {
			checked[n.Key] = true
			return true, true
		}
		if any {
			half[n.Key] = true
		}
		return false, any
	}
	for _, root := range e.store.Roots() {
		walk(root)
	}

	e.checked = checked
	e.halfChecked = half
}

// ClearSelection resets selected, checked, and half-checked state. Expanded
// and loaded keys survive: clearing a selection neither collapses the tree
// nor forgets fetched subtrees.
func (e *Engine) ClearSelection() {
	e.mu.Lock()
	e.selected = nil
	e.checked = make(map[string]bool)
	e.halfChecked = make(map[string]bool)
	values, valueNodes := e.valueLocked()
	onClear, onChange := e.onClear, e.onChange
	e.mu.Unlock()

	if onClear != nil {
		onClear()
	}
	if onChange != nil {
		onChange(values, valueNodes)
	}
}

// SetSearch updates the search query and invalidates the visible-tree cache.
func (e *Engine) SetSearch(query string) {
	e.mu.Lock()
	if e.search == query {
		e.mu.Unlock()
		return
	}
	e.search = query
	e.filterDirty = true
	onSearch := e.onSearch
	e.mu.Unlock()

	if onSearch != nil {
		onSearch(query)
	}
}

// Search returns the current search query.
func (e *Engine) Search() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.search
}

// Value returns the emitted value set: checked values (per the check
// strategy) when checkable, selected values otherwise.
func (e *Engine) Value() []tree.SelectionValue {
	e.mu.Lock()
	defer e.mu.Unlock()
	values, _ := e.valueLocked()
	return values
}

// valueLocked computes the emitted values and their resolved nodes.
// Callers hold e.mu.
func (e *Engine) valueLocked() ([]tree.SelectionValue, []*tree.Node) {
	var keys []string
	if e.checkable {
		keys = e.emittedCheckedKeys()
	} else {
		keys = e.pruneSelected(e.selected)
	}
	return e.store.Resolve(keys), e.store.ResolveNodes(keys)
}

// emittedCheckedKeys applies the check strategy over the derived checked set,
// in depth-first pre-order.
func (e *Engine) emittedCheckedKeys() []string {
	var keys []string
	switch e.strategy {
	case ShowParent:
		// Emit a checked node and skip its subtree; everything below a
		// fully checked node is fully checked by the cascade invariant.
		var walk func(n *tree.Node)
		walk = func(n *tree.Node) {
			if e.checked[n.Key] {
				keys = append(keys, n.Key)
				return
			}
			for _, child := range n.Children {
				walk(child)
			}
		}
		for _, root := range e.store.Roots() {
			walk(root)
		}
	case ShowChild:
		e.store.Walk(func(n *tree.Node) bool {
			if e.checked[n.Key] && !n.HasChildren() {
				keys = append(keys, n.Key)
			}
			return true
		})
	case ShowAll:
		e.store.Walk(func(n *tree.Node) bool {
			if e.checked[n.Key] {
				keys = append(keys, n.Key)
			}
			return true
		})
	}
	return keys
}

// SelectedKeys returns the selected keys in selection order.
func (e *Engine) SelectedKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.selected...)
}

// CheckedKeys returns the fully checked keys in depth-first pre-order.
func (e *Engine) CheckedKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keysInTreeOrder(e.checked)
}

// HalfCheckedKeys returns the half-checked keys in depth-first pre-order.
func (e *Engine) HalfCheckedKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keysInTreeOrder(e.halfChecked)
}

// ExpandedKeys returns the expanded keys in depth-first pre-order.
func (e *Engine) ExpandedKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keysInTreeOrder(e.expanded)
}

// LoadedKeys returns the keys whose children have been lazily fetched, in
// depth-first pre-order.
func (e *Engine) LoadedKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keysInTreeOrder(e.loaded)
}

// IsChecked reports whether the node with the given key is fully checked.
func (e *Engine) IsChecked(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checked[key]
}

// IsHalfChecked reports whether the node with the given key is half-checked.
func (e *Engine) IsHalfChecked(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halfChecked[key]
}

// IsSelected reports whether the node with the given key is selected.
func (e *Engine) IsSelected(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return containsKey(e.selected, key)
}

// IsExpanded reports whether the node with the given key is expanded.
func (e *Engine) IsExpanded(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expanded[key]
}

// keysInTreeOrder filters the tree's pre-order key sequence by membership.
// Stale keys (not in the tree anymore) are dropped from the result.
func (e *Engine) keysInTreeOrder(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	e.store.Walk(func(n *tree.Node) bool {
		if set[n.Key] {
			keys = append(keys, n.Key)
		}
		return true
	})
	return keys
}

// ReplaceData swaps the canonical tree for a freshly loaded one, pruning
// state for keys that no longer resolve. Selection, check, expansion, and
// loaded state survive for keys still present.
func (e *Engine) ReplaceData(store *tree.Store) error {
	if store == nil {
		return fmt.Errorf("engine: nil store")
	}
	e.mu.Lock()
	e.store = store
	e.selected = e.pruneSelected(e.selected)
	e.recomputeChecked()
	e.filterDirty = true
	values, valueNodes := e.valueLocked()
	onChange := e.onChange
	e.mu.Unlock()

	debug.Log("engine: replaced tree data (%d nodes)", store.Len())
	if onChange != nil {
		onChange(values, valueNodes)
	}
	return nil
}

// pruneSelected drops selected keys that no longer resolve, preserving order.
func (e *Engine) pruneSelected(keys []string) []string {
	kept := keys[:0:0]
	for _, key := range keys {
		if e.store.Find(key) != nil {
			kept = append(kept, key)
		}
	}
	return kept
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func removeKey(keys []string, key string) []string {
	kept := keys[:0]
	for _, k := range keys {
		if k != key {
			kept = append(kept, k)
		}
	}
	return kept
}
