package engine

import (
	"context"

	"github.com/vanderheijden86/canopy/pkg/debug"
	"github.com/vanderheijden86/canopy/pkg/tree"
)

// startLoadLocked begins an async child fetch for n unless one is already in
// flight or no loader is installed. Callers hold e.mu.
func (e *Engine) startLoadLocked(n *tree.Node) {
	if e.loader == nil || e.inFlight[n.Key] {
		return
	}
	e.inFlight[n.Key] = true
	n.Loading = true
	go func() {
		_ = e.doLoad(e.loadCtx, n)
	}()
}

// LoadChildren fetches children for the node with the given key and blocks
// until the fetch resolves. If a fetch for the same key is already in
// flight, the call joins it instead of issuing a duplicate. Already-loaded
// and unknown keys return immediately.
func (e *Engine) LoadChildren(ctx context.Context, key string) error {
	e.mu.Lock()
	n := e.store.Find(key)
	if n == nil || e.loader == nil || e.loaded[key] {
		e.mu.Unlock()
		return nil
	}
	e.inFlight[key] = true
	n.Loading = true
	e.mu.Unlock()

	return e.doLoad(ctx, n)
}

// doLoad runs the loader for n, collapsed across concurrent callers by node
// key so the loader and the merge each run at most once per flight.
func (e *Engine) doLoad(ctx context.Context, n *tree.Node) error {
	_, err, _ := e.flight.Do(n.Key, func() (any, error) {
		children, err := e.loader(ctx, n)
		e.finishLoad(n, children, err)
		return nil, err
	})
	return err
}

// finishLoad applies the outcome of one load flight. On success the children
// are grafted into the store and the key is marked loaded; on failure the
// node is collapsed again so the next expand retries. Either way the loading
// flag is cleared; a node must never stay stuck loading.
//
// The graft runs under the engine lock: readers must see either the
// pre-merge or the post-merge tree, never a half-grafted one.
func (e *Engine) finishLoad(n *tree.Node, children []*tree.Node, err error) {
	e.mu.Lock()

	var prevEmitted []string
	if e.checkable {
		prevEmitted = e.emittedCheckedKeys()
	}
	if err == nil {
		err = e.store.ReplaceSubtree(n.Key, children)
	}
	delete(e.inFlight, n.Key)
	n.Loading = false

	if err != nil {
		delete(e.expanded, n.Key)
		onLoadError := e.onLoadError
		e.mu.Unlock()

		debug.Log("engine: load for %q failed: %v", n.Key, err)
		if onLoadError != nil {
			onLoadError(n.Key, err)
		}
		return
	}

	e.loaded[n.Key] = true
	if len(children) == 0 {
		// Loaded empty: the node is a definite leaf now, don't re-trigger
		// loads on future expands.
		n.IsLeaf = true
	}
	// New descendants under a fully checked node inherit the check, keeping
	// the cascade invariant intact across lazy loads.
	if e.checked[n.Key] {
		e.markChecked(n, true)
	}
	e.recomputeChecked()
	e.filterDirty = true

	// A merge can change the emitted value set even though no check action
	// ran: under ShowChild a checked parent stops being a leaf and its
	// loaded children are emitted instead.
	changed := e.checkable && !equalKeys(prevEmitted, e.emittedCheckedKeys())
	var values []tree.SelectionValue
	var valueNodes []*tree.Node
	if changed {
		values, valueNodes = e.valueLocked()
	}
	loadedKeys := e.keysInTreeOrder(e.loaded)
	onLoad, onChange := e.onLoad, e.onChange
	e.mu.Unlock()

	debug.Log("engine: loaded %d children under %q", len(children), n.Key)
	if onLoad != nil {
		onLoad(loadedKeys, LoadInfo{Node: n, Children: children})
	}
	if changed && onChange != nil {
		onChange(values, valueNodes)
	}
}

// IsLoading reports whether a child fetch for the given key is in flight.
func (e *Engine) IsLoading(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight[key]
}
