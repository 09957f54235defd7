package tree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// document is the on-disk shape of a tree-data file. Both a bare top-level
// array of nodes and a {"nodes": [...]} wrapper are accepted.
type document struct {
	Nodes []*Node `json:"nodes" yaml:"nodes"`
}

// DecodeJSON parses tree data from JSON. Accepts either a top-level array of
// nodes or an object with a "nodes" field.
func DecodeJSON(data []byte) ([]*Node, error) {
	trimmed := strings.TrimLeftFunc(string(data), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if strings.HasPrefix(trimmed, "[") {
		var nodes []*Node
		if err := json.Unmarshal(data, &nodes); err != nil {
			return nil, fmt.Errorf("parsing tree data: %w", err)
		}
		return nodes, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing tree data: %w", err)
	}
	return doc.Nodes, nil
}

// DecodeYAML parses tree data from YAML, accepting the same two shapes as
// DecodeJSON.
func DecodeYAML(data []byte) ([]*Node, error) {
	var nodes []*Node
	if err := yaml.Unmarshal(data, &nodes); err == nil {
		return nodes, nil
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing tree data: %w", err)
	}
	return doc.Nodes, nil
}

// EncodeJSON serializes a forest of nodes as indented JSON.
func EncodeJSON(nodes []*Node) ([]byte, error) {
	return json.MarshalIndent(nodes, "", "  ")
}

// LoadFile reads tree data from path, dispatching on the file extension
// (.json, .yaml, .yml) and validating key uniqueness via NewStore.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tree data: %w", err)
	}

	var nodes []*Node
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		nodes, err = DecodeYAML(data)
	case ".json":
		nodes, err = DecodeJSON(data)
	default:
		return nil, fmt.Errorf("unsupported tree data format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return NewStore(nodes)
}
