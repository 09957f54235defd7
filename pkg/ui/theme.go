package ui

import (
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
)

// TermProfile holds the detected terminal color profile. Computed once at
// package init so every style helper can branch without re-detecting.
var TermProfile colorprofile.Profile

func init() {
	TermProfile = colorprofile.Detect(os.Stdout, os.Environ())
}

// ThemeFg returns the given hex color for ANSI256+ terminals and a safe
// ANSI white (color 7) for 16-color or lower terminals.
func ThemeFg(hex string) lipgloss.TerminalColor {
	if TermProfile < colorprofile.ANSI256 {
		return lipgloss.ANSIColor(7)
	}
	return lipgloss.Color(hex)
}

// Theme bundles the colors and styles used by the tree-select widget.
type Theme struct {
	Renderer *lipgloss.Renderer

	// Colors
	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Muted     lipgloss.AdaptiveColor

	// Node states
	Checked     lipgloss.AdaptiveColor
	HalfChecked lipgloss.AdaptiveColor
	Disabled    lipgloss.AdaptiveColor
	Match       lipgloss.AdaptiveColor

	// Styles
	Selected  lipgloss.Style
	MutedText lipgloss.Style
}

// DefaultTheme returns the standard canopy theme for the given renderer.
func DefaultTheme(r *lipgloss.Renderer) Theme {
	t := Theme{
		Renderer:    r,
		Primary:     lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#BD93F9"},
		Secondary:   lipgloss.AdaptiveColor{Light: "#1F7A6D", Dark: "#8BE9FD"},
		Muted:       lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#6272A4"},
		Checked:     lipgloss.AdaptiveColor{Light: "#1C7C2D", Dark: "#50FA7B"},
		HalfChecked: lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"},
		Disabled:    lipgloss.AdaptiveColor{Light: "#B5B5B5", Dark: "#44475A"},
		Match:       lipgloss.AdaptiveColor{Light: "#7A5600", Dark: "#F1FA8C"},
	}
	t.Selected = r.NewStyle().
		Background(lipgloss.AdaptiveColor{Light: "#E8E6FF", Dark: "#44475A"}).
		Bold(true)
	t.MutedText = r.NewStyle().Foreground(t.Muted)
	return t
}
