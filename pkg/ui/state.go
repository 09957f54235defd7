package ui

import (
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/vanderheijden86/canopy/pkg/debug"
)

// TreeState is the persistent expand/collapse state of the widget, saved so
// user choices survive across sessions.
//
// File format (JSON):
//
//	{
//	  "version": 1,
//	  "expanded": {
//	    "build": true,    // explicitly expanded
//	    "vendor": false   // explicitly collapsed
//	  }
//	}
//
// Only explicit user changes are stored; nodes not in the map use the
// default-expand policy. A corrupted or missing file degrades to defaults.
type TreeState struct {
	Version  int             `json:"version"`  // Schema version (currently 1)
	Expanded map[string]bool `json:"expanded"` // Node key -> explicitly set state
}

// TreeStateVersion is the current schema version for tree persistence
const TreeStateVersion = 1

// treeStateFileName is the filename for persisted tree state
const treeStateFileName = "tree-state.json"

// TreeStatePath returns the path to the tree state file inside stateDir.
func TreeStatePath(stateDir string) string {
	return filepath.Join(stateDir, treeStateFileName)
}

// saveState persists the current expand/collapse state to disk. Only nodes
// whose state differs from the default-expand policy are recorded. Errors
// are logged but never interrupt the user.
func (m *Model) saveState() {
	if m.stateDir == "" {
		return // No persistence directory configured
	}
	state := &TreeState{
		Version:  TreeStateVersion,
		Expanded: m.eng.ExpandOverrides(m.expandDepth),
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		debug.Log("ui: failed to marshal tree state: %v", err)
		return
	}

	path := TreeStatePath(m.stateDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		debug.Log("ui: failed to create state directory: %v", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		debug.Log("ui: failed to write tree state: %v", err)
	}
}

// loadState restores expand/collapse state from disk. Missing or corrupted
// files are ignored silently; unknown keys are stale and skipped.
func (m *Model) loadState() {
	if m.stateDir == "" {
		return // No persistence directory configured
	}
	data, err := os.ReadFile(TreeStatePath(m.stateDir))
	if err != nil {
		// File doesn't exist = first run, use defaults
		return
	}

	var state TreeState
	if err := json.Unmarshal(data, &state); err != nil {
		debug.Log("ui: invalid tree state file, using defaults: %v", err)
		return
	}

	for key, expanded := range state.Expanded {
		m.eng.SetExpanded(key, expanded)
	}
}

// applyDefaultExpansion expands every node shallower than the configured
// expand depth. Runs before loadState so explicit choices win.
func (m *Model) applyDefaultExpansion() {
	m.eng.ExpandToDepth(m.expandDepth)
}
