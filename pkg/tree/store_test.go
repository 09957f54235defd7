package tree_test

import (
	"strings"
	"testing"

	"github.com/vanderheijden86/canopy/pkg/tree"
)

// sampleForest returns a small two-root forest used across store tests.
func sampleForest() []*tree.Node {
	return []*tree.Node{
		{Key: "1", Title: "A", Children: []*tree.Node{
			{Key: "1-1", Title: "A1"},
			{Key: "1-2", Title: "A2", Children: []*tree.Node{
				{Key: "1-2-1", Title: "A2a"},
			}},
		}},
		{Key: "2", Title: "B"},
	}
}

func TestNewStoreRejectsDuplicateKeys(t *testing.T) {
	_, err := tree.NewStore([]*tree.Node{
		{Key: "x", Title: "first"},
		{Key: "y", Title: "parent", Children: []*tree.Node{
			{Key: "x", Title: "dup"},
		}},
	})
	if err == nil {
		t.Fatal("expected duplicate key error")
	}
	if !strings.Contains(err.Error(), "x") {
		t.Errorf("error should name the duplicate key, got %v", err)
	}
}

func TestFind(t *testing.T) {
	s, err := tree.NewStore(sampleForest())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	n := s.Find("1-2-1")
	if n == nil {
		t.Fatal("expected to find nested node 1-2-1")
	}
	if n.Title != "A2a" {
		t.Errorf("expected title A2a, got %s", n.Title)
	}

	if s.Find("nope") != nil {
		t.Error("expected nil for unknown key")
	}
}

func TestDescendantKeysPreOrder(t *testing.T) {
	s, err := tree.NewStore(sampleForest())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	keys := s.DescendantKeys(s.Find("1"))
	want := []string{"1-1", "1-2", "1-2-1"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d: %v", len(want), len(keys), keys)
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("keys[%d] = %s, want %s", i, keys[i], k)
		}
	}

	if got := s.DescendantKeys(s.Find("2")); len(got) != 0 {
		t.Errorf("leaf should have no descendants, got %v", got)
	}
	if got := s.DescendantKeys(nil); got != nil {
		t.Errorf("nil node should yield nil, got %v", got)
	}
}

func TestReplaceSubtree(t *testing.T) {
	s, err := tree.NewStore(sampleForest())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	newKids := []*tree.Node{
		{Key: "1-2-x", Title: "fresh"},
	}
	if err := s.ReplaceSubtree("1-2", newKids); err != nil {
		t.Fatalf("ReplaceSubtree: %v", err)
	}

	// Old child gone, new child indexed
	if s.Find("1-2-1") != nil {
		t.Error("old child should be unindexed after graft")
	}
	if s.Find("1-2-x") == nil {
		t.Error("new child should be findable after graft")
	}

	// Siblings and the node's own fields survive
	n := s.Find("1-2")
	if n.Title != "A2" {
		t.Errorf("grafted node title changed: %s", n.Title)
	}
	if s.Find("1-1") == nil || s.Find("2") == nil {
		t.Error("siblings must survive a graft")
	}
}

func TestReplaceSubtreeUnknownKeyIsNoop(t *testing.T) {
	s, _ := tree.NewStore(sampleForest())
	before := s.Len()
	if err := s.ReplaceSubtree("ghost", []*tree.Node{{Key: "new"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != before {
		t.Errorf("tree changed on unknown-key graft: %d -> %d", before, s.Len())
	}
}

func TestReplaceSubtreeRejectsDuplicateGraft(t *testing.T) {
	s, _ := tree.NewStore(sampleForest())
	err := s.ReplaceSubtree("1-2", []*tree.Node{{Key: "2", Title: "collides with root"}})
	if err == nil {
		t.Fatal("expected duplicate key error from graft")
	}
	// Tree rolled back: original child still reachable
	if s.Find("1-2-1") == nil {
		t.Error("graft failure must leave the original subtree intact")
	}
}

func TestResolveDropsMissingKeys(t *testing.T) {
	s, _ := tree.NewStore(sampleForest())
	values := s.Resolve([]string{"1-1", "ghost", "2"})
	if len(values) != 2 {
		t.Fatalf("expected 2 resolved values, got %d", len(values))
	}
	if values[0].Key != "1-1" || values[1].Key != "2" {
		t.Errorf("resolution order broken: %+v", values)
	}
	if values[0].Title != "A1" {
		t.Errorf("expected title A1, got %s", values[0].Title)
	}
}

func TestWalkStopsEarly(t *testing.T) {
	s, _ := tree.NewStore(sampleForest())
	visited := 0
	s.Walk(func(n *tree.Node) bool {
		visited++
		return n.Key != "1-1"
	})
	if visited != 2 {
		t.Errorf("walk should stop after 1, 1-1; visited %d", visited)
	}
}

func TestLoadable(t *testing.T) {
	cases := []struct {
		name string
		node *tree.Node
		want bool
	}{
		{"no children, not leaf", &tree.Node{Key: "a"}, true},
		{"explicit leaf", &tree.Node{Key: "a", IsLeaf: true}, false},
		{"has children", &tree.Node{Key: "a", Children: []*tree.Node{{Key: "b"}}}, false},
	}
	for _, tc := range cases {
		if got := tc.node.Loadable(); got != tc.want {
			t.Errorf("%s: Loadable() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
