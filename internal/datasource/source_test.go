package datasource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const validJSON = `[{"key": "a", "title": "A"}]`
const validYAML = "- key: b\n  title: B\n"

func TestDiscoverSources_OrdersByFreshness(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.json")
	newPath := filepath.Join(dir, "new.yaml")
	writeFile(t, oldPath, validJSON)
	writeFile(t, newPath, validYAML)

	// Push timestamps apart so ordering doesn't depend on fs resolution
	past := time.Now().Add(-1 * time.Hour)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatal(err)
	}

	sources, err := DiscoverSources(DiscoveryOptions{Dir: dir})
	if err != nil {
		t.Fatalf("DiscoverSources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].Path != newPath {
		t.Errorf("freshest source must come first, got %s", sources[0].Path)
	}
	if sources[0].Type != SourceTypeYAML || sources[1].Type != SourceTypeJSON {
		t.Errorf("types wrong: %s, %s", sources[0].Type, sources[1].Type)
	}
}

func TestDiscoverSources_SkipsUnknownExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tree.json"), validJSON)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignore me")
	if err := os.Mkdir(filepath.Join(dir, "sub.json"), 0o755); err != nil {
		t.Fatal(err)
	}

	sources, err := DiscoverSources(DiscoveryOptions{Dir: dir})
	if err != nil {
		t.Fatalf("DiscoverSources: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("expected 1 source, got %d: %v", len(sources), sources)
	}
}

func TestDiscoverSources_ValidationFiltersBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good.json"), validJSON)
	writeFile(t, filepath.Join(dir, "bad.json"), `[{"key": "a"}, {"key": "a"}]`)

	sources, err := DiscoverSources(DiscoveryOptions{
		Dir:                    dir,
		ValidateAfterDiscovery: true,
	})
	if err != nil {
		t.Fatalf("DiscoverSources: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("invalid source should be dropped, got %d sources", len(sources))
	}
	if sources[0].NodeCount != 1 {
		t.Errorf("node count not recorded: %d", sources[0].NodeCount)
	}

	// With IncludeInvalid the broken file shows up, flagged
	all, err := DiscoverSources(DiscoveryOptions{
		Dir:                    dir,
		ValidateAfterDiscovery: true,
		IncludeInvalid:         true,
	})
	if err != nil {
		t.Fatalf("DiscoverSources: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sources with IncludeInvalid, got %d", len(all))
	}
	invalid := 0
	for _, src := range all {
		if !src.Valid {
			invalid++
			if src.ValidationError == "" {
				t.Error("invalid source missing validation error")
			}
		}
	}
	if invalid != 1 {
		t.Errorf("expected 1 invalid source, got %d", invalid)
	}
}

func TestSelectBestSource(t *testing.T) {
	sources := []DataSource{
		{Path: "broken.json", Valid: false},
		{Path: "good.yaml", Valid: true},
	}
	best, err := SelectBestSource(sources)
	if err != nil {
		t.Fatalf("SelectBestSource: %v", err)
	}
	if best.Path != "good.yaml" {
		t.Errorf("expected first valid source, got %s", best.Path)
	}

	if _, err := SelectBestSource([]DataSource{{Valid: false}}); err == nil {
		t.Error("expected error when no source is valid")
	}
}

func TestLoadTreeFromDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tree.yaml"), validYAML)

	store, err := LoadTreeFromDir(dir)
	if err != nil {
		t.Fatalf("LoadTreeFromDir: %v", err)
	}
	if store.Find("b") == nil {
		t.Error("loaded tree missing expected node")
	}

	if _, err := LoadTreeFromDir(t.TempDir()); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestFSSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "docs", "guides"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "readme.md"), "x")
	writeFile(t, filepath.Join(dir, "docs", "intro.md"), "x")

	src, err := NewFSSource(dir)
	if err != nil {
		t.Fatalf("NewFSSource: %v", err)
	}

	roots, err := src.Roots()
	if err != nil {
		t.Fatalf("Roots: %v", err)
	}
	// Directories sort before files
	if len(roots) != 2 || roots[0].Key != "docs" || roots[1].Key != "readme.md" {
		t.Fatalf("roots wrong: %+v", roots)
	}
	if roots[0].IsLeaf || !roots[1].IsLeaf {
		t.Error("directory/file leaf flags wrong")
	}

	children, err := src.LoadChildren(context.Background(), roots[0])
	if err != nil {
		t.Fatalf("LoadChildren: %v", err)
	}
	if len(children) != 2 || children[0].Key != "docs/guides" || children[1].Key != "docs/intro.md" {
		t.Errorf("children keys wrong: %+v", children)
	}
}

func TestFSSource_CancelledContext(t *testing.T) {
	src, err := NewFSSource(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSSource: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.LoadChildren(ctx, nil); err == nil {
		t.Error("expected context error")
	}
}

func TestNewFSSource_RejectsFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	writeFile(t, path, "x")
	if _, err := NewFSSource(path); err == nil {
		t.Error("expected error for non-directory root")
	}
}
