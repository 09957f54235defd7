package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vanderheijden86/canopy/pkg/engine"
	"github.com/vanderheijden86/canopy/pkg/tree"
)

func lazyForest() []*tree.Node {
	return []*tree.Node{
		{Key: "branch", Title: "Branch"},
		{Key: "leaf", Title: "Leaf", IsLeaf: true},
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestLoadChildrenMergesAndMarksLoaded(t *testing.T) {
	loader := func(_ context.Context, n *tree.Node) ([]*tree.Node, error) {
		return []*tree.Node{
			{Key: n.Key + "-1", Title: "One"},
			{Key: n.Key + "-2", Title: "Two"},
		}, nil
	}
	var gotInfo engine.LoadInfo
	e := mustEngine(t, lazyForest(),
		engine.WithLoader(loader),
		engine.WithOnLoad(func(_ []string, info engine.LoadInfo) { gotInfo = info }),
	)

	if err := e.LoadChildren(context.Background(), "branch"); err != nil {
		t.Fatalf("LoadChildren: %v", err)
	}

	if e.Store().Find("branch-1") == nil || e.Store().Find("branch-2") == nil {
		t.Fatal("children not grafted into the store")
	}
	if !sameKeys(e.LoadedKeys(), []string{"branch"}) {
		t.Errorf("loaded keys = %v", e.LoadedKeys())
	}
	if e.IsLoading("branch") {
		t.Error("loading flag must clear after the fetch resolves")
	}
	if gotInfo.Node == nil || gotInfo.Node.Key != "branch" || len(gotInfo.Children) != 2 {
		t.Errorf("load info wrong: %+v", gotInfo)
	}

	// Second call is a no-op: already loaded
	calls := 0
	e.Configure(engine.WithLoader(func(_ context.Context, _ *tree.Node) ([]*tree.Node, error) {
		calls++
		return nil, nil
	}))
	if err := e.LoadChildren(context.Background(), "branch"); err != nil {
		t.Fatalf("LoadChildren: %v", err)
	}
	if calls != 0 {
		t.Error("loaded key must not be fetched again")
	}
}

func TestExpandTriggersLoad(t *testing.T) {
	var calls atomic.Int32
	loader := func(_ context.Context, n *tree.Node) ([]*tree.Node, error) {
		calls.Add(1)
		return []*tree.Node{{Key: "branch-1", Title: "One"}}, nil
	}
	e := mustEngine(t, lazyForest(), engine.WithLoader(loader))

	e.ToggleExpand("branch")
	if !e.IsExpanded("branch") {
		t.Fatal("node must expand immediately, before the load resolves")
	}

	waitFor(t, func() bool { return len(e.LoadedKeys()) == 1 })
	if e.Store().Find("branch-1") == nil {
		t.Error("loaded child missing from the store")
	}
	if calls.Load() != 1 {
		t.Errorf("loader called %d times, want 1", calls.Load())
	}

	// Collapse and re-expand: no second fetch for a loaded key
	e.ToggleExpand("branch")
	e.ToggleExpand("branch")
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("re-expanding a loaded node must not refetch, got %d calls", calls.Load())
	}
}

func TestDoubleExpandLoadsOnce(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(_ context.Context, _ *tree.Node) ([]*tree.Node, error) {
		calls.Add(1)
		<-release
		return []*tree.Node{{Key: "branch-1", Title: "One"}}, nil
	}
	e := mustEngine(t, lazyForest(), engine.WithLoader(loader))

	e.ToggleExpand("branch")
	waitFor(t, func() bool { return e.IsLoading("branch") })

	// Collapse and expand again while the first fetch is still blocked
	e.ToggleExpand("branch")
	e.ToggleExpand("branch")

	close(release)
	waitFor(t, func() bool { return !e.IsLoading("branch") })

	if calls.Load() != 1 {
		t.Errorf("loader called %d times for one node, want 1", calls.Load())
	}
}

func TestSyncLoadJoinsInFlightFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(_ context.Context, _ *tree.Node) ([]*tree.Node, error) {
		calls.Add(1)
		<-release
		return []*tree.Node{{Key: "branch-1", Title: "One"}}, nil
	}
	e := mustEngine(t, lazyForest(), engine.WithLoader(loader))

	e.ToggleExpand("branch")
	waitFor(t, func() bool { return e.IsLoading("branch") })

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = e.LoadChildren(context.Background(), "branch")
	}()

	// Give the second caller time to join the flight before releasing it
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	waitFor(t, func() bool { return !e.IsLoading("branch") })

	if calls.Load() != 1 {
		t.Errorf("concurrent callers must share one fetch, got %d calls", calls.Load())
	}
	if e.Store().Find("branch-1") == nil {
		t.Error("child missing after joined fetch")
	}
}

func TestLoadFailureCollapsesAndAllowsRetry(t *testing.T) {
	var calls atomic.Int32
	var gotKey string
	var gotErr error
	loader := func(_ context.Context, _ *tree.Node) ([]*tree.Node, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("backend down")
		}
		return []*tree.Node{{Key: "branch-1", Title: "One"}}, nil
	}
	e := mustEngine(t, lazyForest(),
		engine.WithLoader(loader),
		engine.WithOnLoadError(func(key string, err error) {
			gotKey, gotErr = key, err
		}),
	)

	e.ToggleExpand("branch")
	waitFor(t, func() bool { return calls.Load() == 1 && !e.IsLoading("branch") })

	if e.IsExpanded("branch") {
		t.Error("failed load must collapse the node")
	}
	if len(e.LoadedKeys()) != 0 {
		t.Error("failed load must not mark the key loaded")
	}
	if gotKey != "branch" || gotErr == nil {
		t.Errorf("error callback got (%q, %v)", gotKey, gotErr)
	}

	// Expand again: the fetch retries and succeeds this time
	e.ToggleExpand("branch")
	waitFor(t, func() bool { return len(e.LoadedKeys()) == 1 })
	if e.Store().Find("branch-1") == nil {
		t.Error("retry did not graft children")
	}
}

func TestLoadEmptyMarksLeaf(t *testing.T) {
	var calls atomic.Int32
	loader := func(_ context.Context, _ *tree.Node) ([]*tree.Node, error) {
		calls.Add(1)
		return nil, nil
	}
	e := mustEngine(t, lazyForest(), engine.WithLoader(loader))

	e.ToggleExpand("branch")
	waitFor(t, func() bool { return len(e.LoadedKeys()) == 1 })

	n := e.Store().Find("branch")
	if !n.IsLeaf {
		t.Error("loaded-empty node must become a definite leaf")
	}

	// Further expands never refetch
	e.ToggleExpand("branch")
	e.ToggleExpand("branch")
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("leaf refetched: %d calls", calls.Load())
	}
}

func TestLoadUnderCheckedParentCascades(t *testing.T) {
	loader := func(_ context.Context, _ *tree.Node) ([]*tree.Node, error) {
		return []*tree.Node{
			{Key: "branch-1", Title: "One"},
			{Key: "branch-2", Title: "Two"},
		}, nil
	}
	e := mustEngine(t, lazyForest(),
		engine.WithCheckable(engine.ShowAll),
		engine.WithLoader(loader),
	)

	e.Check("branch", true)
	if !e.IsChecked("branch") {
		t.Fatal("childless branch should check directly")
	}

	if err := e.LoadChildren(context.Background(), "branch"); err != nil {
		t.Fatalf("LoadChildren: %v", err)
	}

	if !e.IsChecked("branch-1") || !e.IsChecked("branch-2") {
		t.Error("children loaded under a checked parent must inherit the check")
	}
	if !e.IsChecked("branch") {
		t.Error("parent must stay fully checked after the cascade")
	}
}

func TestLoadChildrenWithoutLoaderIsNoop(t *testing.T) {
	e := mustEngine(t, lazyForest())
	if err := e.LoadChildren(context.Background(), "branch"); err != nil {
		t.Errorf("no loader installed: expected nil error, got %v", err)
	}
	if err := e.LoadChildren(context.Background(), "ghost"); err != nil {
		t.Errorf("unknown key: expected nil error, got %v", err)
	}
}

func TestConcurrentReadsDuringLoad(t *testing.T) {
	loader := func(_ context.Context, n *tree.Node) ([]*tree.Node, error) {
		children := make([]*tree.Node, 0, 64)
		for i := 0; i < 64; i++ {
			children = append(children, &tree.Node{
				Key:   fmt.Sprintf("%s-%d", n.Key, i),
				Title: "child",
			})
		}
		return children, nil
	}
	e := mustEngine(t, lazyForest(),
		engine.WithCheckable(engine.ShowAll),
		engine.WithLoader(loader),
	)
	e.Check("branch", true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.LoadChildren(context.Background(), "branch")
	}()

	// Hammer the locked readers while the merge lands. They must observe
	// either the pre-merge or the post-merge tree, never a partial graft.
	for {
		rows := e.VisibleRows()
		if len(rows) == 0 {
			t.Fatal("visible rows vanished during load")
		}
		_ = e.CheckedKeys()
		_ = e.Value()
		select {
		case <-done:
			if got := len(e.Store().Find("branch").Children); got != 64 {
				t.Fatalf("expected 64 merged children, got %d", got)
			}
			return
		default:
		}
	}
}

func TestLoadUnderCheckedParentEmitsChange(t *testing.T) {
	loader := func(_ context.Context, _ *tree.Node) ([]*tree.Node, error) {
		return []*tree.Node{
			{Key: "branch-1", Title: "One"},
			{Key: "branch-2", Title: "Two"},
		}, nil
	}
	var lastValue []tree.SelectionValue
	changes := 0
	e := mustEngine(t, lazyForest(),
		engine.WithCheckable(engine.ShowChild),
		engine.WithLoader(loader),
		engine.WithOnChange(func(values []tree.SelectionValue, _ []*tree.Node) {
			lastValue = values
			changes++
		}),
	)

	e.Check("branch", true)
	if changes != 1 || len(lastValue) != 1 || lastValue[0].Key != "branch" {
		t.Fatalf("childless checked branch should be emitted, got %+v", lastValue)
	}

	if err := e.LoadChildren(context.Background(), "branch"); err != nil {
		t.Fatalf("LoadChildren: %v", err)
	}

	// The merge changed the emitted set: branch is interior now, its
	// leaves are emitted instead. Value consumers must hear about it.
	if changes != 2 {
		t.Fatalf("expected a change notification after the merge, got %d", changes)
	}
	if len(lastValue) != 2 || lastValue[0].Key != "branch-1" || lastValue[1].Key != "branch-2" {
		t.Errorf("post-merge value wrong: %+v", lastValue)
	}
}

func TestLoadWithoutValueImpactStaysQuiet(t *testing.T) {
	loader := func(_ context.Context, _ *tree.Node) ([]*tree.Node, error) {
		return []*tree.Node{{Key: "branch-1", Title: "One"}}, nil
	}
	changes := 0
	e := mustEngine(t, lazyForest(),
		engine.WithCheckable(engine.ShowChild),
		engine.WithLoader(loader),
		engine.WithOnChange(func(_ []tree.SelectionValue, _ []*tree.Node) {
			changes++
		}),
	)

	if err := e.LoadChildren(context.Background(), "branch"); err != nil {
		t.Fatalf("LoadChildren: %v", err)
	}
	if changes != 0 {
		t.Errorf("a merge under an unchecked parent must not notify, got %d changes", changes)
	}
}

func TestExpandLeafDoesNotLoad(t *testing.T) {
	var calls atomic.Int32
	loader := func(_ context.Context, _ *tree.Node) ([]*tree.Node, error) {
		calls.Add(1)
		return nil, nil
	}
	e := mustEngine(t, lazyForest(), engine.WithLoader(loader))

	e.ToggleExpand("leaf")
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 0 {
		t.Error("explicit leaves must never trigger loads")
	}
}
