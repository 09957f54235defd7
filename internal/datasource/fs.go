package datasource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vanderheijden86/canopy/pkg/tree"
)

// FSSource exposes a directory tree as lazily loaded nodes: directories are
// branches whose children are fetched on first expansion, files are leaves.
// Node keys are paths relative to the root, so they stay stable across
// reloads.
type FSSource struct {
	root string
}

// NewFSSource creates a filesystem source rooted at dir.
func NewFSSource(dir string) (*FSSource, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("filesystem source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("filesystem source: %s is not a directory", dir)
	}
	return &FSSource{root: abs}, nil
}

// Roots returns the top-level entries of the source directory. Children of
// subdirectories are left unloaded for LoadChildren to fetch on demand.
func (s *FSSource) Roots() ([]*tree.Node, error) {
	return s.list("")
}

// LoadChildren is the engine LoadFunc for this source: it lists the
// directory behind the node's key.
func (s *FSSource) LoadChildren(ctx context.Context, n *tree.Node) ([]*tree.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.list(n.Key)
}

// list reads one directory level and converts entries to nodes, directories
// first, each group sorted by name.
func (s *FSSource) list(rel string) ([]*tree.Node, error) {
	dir := filepath.Join(s.root, filepath.FromSlash(rel))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	nodes := make([]*tree.Node, 0, len(entries))
	for _, entry := range entries {
		key := entry.Name()
		if rel != "" {
			key = rel + "/" + entry.Name()
		}
		nodes = append(nodes, &tree.Node{
			Key:    key,
			Title:  entry.Name(),
			IsLeaf: !entry.IsDir(),
		})
	}
	return nodes, nil
}
