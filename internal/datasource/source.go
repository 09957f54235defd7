// Package datasource discovers and loads tree-data sources for canopy. It
// selects the freshest valid source among JSON and YAML tree files, and
// provides a lazy filesystem source for on-demand child loading.
package datasource

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vanderheijden86/canopy/pkg/tree"
)

// SourceType identifies the type of data source
type SourceType string

const (
	// SourceTypeJSON is a JSON tree-data file
	SourceTypeJSON SourceType = "json"
	// SourceTypeYAML is a YAML tree-data file
	SourceTypeYAML SourceType = "yaml"
)

// Priority values for source types (higher = preferred when timestamps tie)
const (
	PriorityJSON = 100
	PriorityYAML = 80
)

// DataSource represents a potential source of tree data
type DataSource struct {
	// Type identifies the source type
	Type SourceType `json:"type"`
	// Path is the absolute path to the source file
	Path string `json:"path"`
	// Priority determines preference when timestamps are equal (higher = preferred)
	Priority int `json:"priority"`
	// ModTime is the last modification time of the source
	ModTime time.Time `json:"mod_time"`
	// Valid indicates whether the source parsed and passed key validation
	Valid bool `json:"valid"`
	// ValidationError describes why validation failed (if Valid is false)
	ValidationError string `json:"validation_error,omitempty"`
	// NodeCount is the number of nodes in the source (set during validation)
	NodeCount int `json:"node_count"`
	// Size is the file size in bytes
	Size int64 `json:"size"`
}

// String returns a human-readable description of the source
func (s DataSource) String() string {
	status := "valid"
	if !s.Valid {
		status = fmt.Sprintf("invalid: %s", s.ValidationError)
	}
	return fmt.Sprintf("%s (%s, priority=%d, mod=%s, nodes=%d, %s)",
		s.Path, s.Type, s.Priority, s.ModTime.Format(time.RFC3339), s.NodeCount, status)
}

// DiscoveryOptions configures source discovery behavior
type DiscoveryOptions struct {
	// Dir is the directory to scan for tree-data files
	Dir string
	// ValidateAfterDiscovery parses each discovered source to validate it
	ValidateAfterDiscovery bool
	// IncludeInvalid includes sources that failed validation in results
	IncludeInvalid bool
}

// DiscoverSources scans a directory for tree-data files (.json, .yaml, .yml)
// and returns them ordered by modification time, newest first, with priority
// as the tiebreaker.
func DiscoverSources(opts DiscoveryOptions) ([]DataSource, error) {
	entries, err := os.ReadDir(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", opts.Dir, err)
	}

	var sources []DataSource
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var typ SourceType
		var priority int
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json":
			typ, priority = SourceTypeJSON, PriorityJSON
		case ".yaml", ".yml":
			typ, priority = SourceTypeYAML, PriorityYAML
		default:
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		src := DataSource{
			Type:     typ,
			Path:     filepath.Join(opts.Dir, entry.Name()),
			Priority: priority,
			ModTime:  info.ModTime(),
			Size:     info.Size(),
			Valid:    true,
		}

		if opts.ValidateAfterDiscovery {
			store, err := tree.LoadFile(src.Path)
			if err != nil {
				src.Valid = false
				src.ValidationError = err.Error()
			} else {
				src.NodeCount = store.Len()
			}
		}

		if src.Valid || opts.IncludeInvalid {
			sources = append(sources, src)
		}
	}

	sort.Slice(sources, func(i, j int) bool {
		if !sources[i].ModTime.Equal(sources[j].ModTime) {
			return sources[i].ModTime.After(sources[j].ModTime)
		}
		return sources[i].Priority > sources[j].Priority
	})

	return sources, nil
}

// SelectBestSource returns the first valid source, preferring fresher files.
func SelectBestSource(sources []DataSource) (DataSource, error) {
	for _, src := range sources {
		if src.Valid {
			return src, nil
		}
	}
	return DataSource{}, fmt.Errorf("no valid sources")
}
