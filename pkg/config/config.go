// Package config handles loading and saving canopy configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/canopy/config.yaml
//   - State:   ~/.local/state/canopy/ (expand-state cache)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SelectConfig holds the selection behavior defaults for the widget.
type SelectConfig struct {
	Mode          string `yaml:"mode,omitempty"`           // single, multiple
	Checkable     bool   `yaml:"checkable,omitempty"`      // enable checkbox column
	CheckStrategy string `yaml:"check_strategy,omitempty"` // show-parent, show-child, show-all
	FuzzySearch   bool   `yaml:"fuzzy_search,omitempty"`   // fuzzy instead of substring search
}

// DataConfig controls where tree data comes from.
type DataConfig struct {
	Path  string `yaml:"path,omitempty"`  // default tree data file (json/yaml)
	Watch bool   `yaml:"watch,omitempty"` // reload when the data file changes
}

// UIConfig holds display preferences.
type UIConfig struct {
	ExpandDepth  int  `yaml:"expand_depth,omitempty"`  // auto-expand nodes shallower than this (default 1)
	ShowDetail   bool `yaml:"show_detail,omitempty"`   // open the detail pane by default
	PersistState bool `yaml:"persist_state,omitempty"` // save expand/collapse state across runs
}

// Config is the top-level configuration for canopy.
type Config struct {
	Select SelectConfig `yaml:"select,omitempty"`
	Data   DataConfig   `yaml:"data,omitempty"`
	UI     UIConfig     `yaml:"ui,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Select: SelectConfig{
			Mode:          "single",
			CheckStrategy: "show-parent",
		},
		Data: DataConfig{
			Watch: true,
		},
		UI: UIConfig{
			ExpandDepth:  1,
			PersistState: true,
		},
	}
}

// ConfigDir returns the XDG config directory for canopy.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "canopy")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "canopy")
}

// StateDir returns the XDG state directory for canopy.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "canopy")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "canopy")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path.
// Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Data.Path = expandHome(cfg.Data.Path)

	return cfg, nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
