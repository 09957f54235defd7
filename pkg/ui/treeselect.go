// Package ui implements the canopy terminal tree-select widget: a bubbletea
// component over the selection engine with cursor navigation, expand and
// collapse, checkboxes, type-to-search filtering, a markdown detail pane,
// and clipboard yank of the current value.
package ui

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/vanderheijden86/canopy/pkg/engine"
	"github.com/vanderheijden86/canopy/pkg/tree"
)

// LoadCompletedMsg is sent to the program when a lazy child fetch finishes.
type LoadCompletedMsg struct {
	Key string
}

// LoadFailedMsg is sent to the program when a lazy child fetch fails.
type LoadFailedMsg struct {
	Key string
	Err error
}

// DataReloadedMsg is sent when the underlying tree data was replaced.
type DataReloadedMsg struct{}

// Model is the tree-select widget.
type Model struct {
	eng   *engine.Engine
	theme Theme

	width  int
	height int

	flatList       []engine.Row
	cursor         int
	viewportOffset int

	searchMode  bool
	searchInput textinput.Model

	showDetail   bool
	detailKey    string
	detailWidth  int
	detailCache  string
	statusMsg    string
	expandDepth  int
	stateDir     string
	persistState bool
}

// NewModel creates the widget over an engine. stateDir is where explicit
// expand/collapse choices are persisted; empty disables persistence.
func NewModel(eng *engine.Engine, theme Theme, stateDir string, expandDepth int) Model {
	input := textinput.New()
	input.Placeholder = "search"
	input.Prompt = "/ "
	input.CharLimit = 120

	m := Model{
		eng:          eng,
		theme:        theme,
		searchInput:  input,
		expandDepth:  expandDepth,
		stateDir:     stateDir,
		persistState: stateDir != "",
	}
	m.applyDefaultExpansion()
	m.loadState()
	m.rebuildFlatList()
	return m
}

// Engine returns the underlying selection engine.
func (m *Model) Engine() *engine.Engine {
	return m.eng
}

// SetSize updates the available dimensions for the widget.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.ensureCursorVisible()
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		m.refreshDetail()
		return m, nil

	case LoadCompletedMsg:
		m.statusMsg = ""
		m.rebuildFlatList()
		m.refreshDetail()
		return m, nil

	case LoadFailedMsg:
		m.statusMsg = fmt.Sprintf("load failed for %s: %v", msg.Key, msg.Err)
		m.rebuildFlatList()
		return m, nil

	case DataReloadedMsg:
		m.rebuildFlatList()
		m.refreshDetail()
		m.statusMsg = "data reloaded"
		return m, nil

	case tea.KeyMsg:
		if m.searchMode {
			return m.updateSearch(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

// updateSearch handles keys while the search input is focused.
func (m Model) updateSearch(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.searchMode = false
		m.searchInput.Blur()
		m.searchInput.SetValue("")
		m.eng.SetSearch("")
		m.rebuildFlatList()
		m.refreshDetail()
		return m, nil
	case "enter":
		m.searchMode = false
		m.searchInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	m.eng.SetSearch(m.searchInput.Value())
	m.rebuildFlatList()
	m.refreshDetail()
	return m, cmd
}

// updateKeys handles normal-mode navigation and mutation keys.
func (m Model) updateKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.moveCursor(-1)

	case "down", "j":
		m.moveCursor(1)

	case "pgup":
		m.moveCursor(-m.visibleCount())

	case "pgdown":
		m.moveCursor(m.visibleCount())

	case "home", "g":
		m.cursor = 0
		m.ensureCursorVisible()

	case "end", "G":
		m.cursor = len(m.flatList) - 1
		m.ensureCursorVisible()

	case "right", "l":
		if n := m.cursorNode(); n != nil && !m.eng.IsExpanded(n.Key) {
			m.toggleExpand(n)
		}

	case "left", "h":
		if n := m.cursorNode(); n != nil && m.eng.IsExpanded(n.Key) {
			m.toggleExpand(n)
		}

	case "tab":
		if n := m.cursorNode(); n != nil {
			m.toggleExpand(n)
		}

	case " ":
		if n := m.cursorNode(); n != nil {
			if m.eng.Checkable() {
				m.eng.Check(n.Key, !m.eng.IsChecked(n.Key))
			} else {
				m.eng.Select(n.Key, !m.eng.IsSelected(n.Key))
			}
		}

	case "enter":
		if n := m.cursorNode(); n != nil {
			if m.eng.Checkable() {
				m.eng.Check(n.Key, !m.eng.IsChecked(n.Key))
			} else {
				m.eng.Select(n.Key, true)
			}
		}

	case "a":
		// Select every visible selectable node (multiple mode only).
		if m.eng.Mode() == engine.ModeMultiple && !m.eng.Checkable() {
			for _, r := range m.flatList {
				m.eng.Select(r.Node.Key, true)
			}
		}

	case "c":
		m.eng.ClearSelection()
		m.statusMsg = "selection cleared"

	case "/":
		m.searchMode = true
		m.searchInput.Focus()
		return m, textinput.Blink

	case "y":
		m.yankValue()

	case "d":
		m.showDetail = !m.showDetail
	}
	m.refreshDetail()
	return m, nil
}

// toggleExpand flips expansion for a node and persists the explicit choice.
func (m *Model) toggleExpand(n *tree.Node) {
	m.eng.ToggleExpand(n.Key)
	if m.eng.IsLoading(n.Key) {
		m.statusMsg = fmt.Sprintf("loading %s…", n.Title)
	}
	m.rebuildFlatList()
	if m.persistState {
		m.saveState()
	}
}

// yankValue copies the emitted value keys to the system clipboard.
func (m *Model) yankValue() {
	values := m.eng.Value()
	if len(values) == 0 {
		m.statusMsg = "nothing selected"
		return
	}
	keys := make([]string, len(values))
	for i, v := range values {
		keys[i] = v.Key
	}
	if err := clipboard.WriteAll(strings.Join(keys, "\n")); err != nil {
		m.statusMsg = fmt.Sprintf("clipboard unavailable: %v", err)
		return
	}
	m.statusMsg = fmt.Sprintf("copied %d key(s)", len(keys))
}

// cursorNode returns the node under the cursor, or nil.
func (m *Model) cursorNode() *tree.Node {
	if m.cursor < 0 || m.cursor >= len(m.flatList) {
		return nil
	}
	return m.flatList[m.cursor].Node
}

func (m *Model) moveCursor(delta int) {
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.flatList) {
		m.cursor = len(m.flatList) - 1
	}
	m.ensureCursorVisible()
}

// rebuildFlatList refreshes the renderable row snapshot from the engine.
// The flatten itself happens inside the engine lock, so a lazy load merging
// children concurrently can never produce a half-grafted row list.
func (m *Model) rebuildFlatList() {
	prev := ""
	if n := m.cursorNode(); n != nil {
		prev = n.Key
	}

	m.flatList = m.eng.VisibleRows()

	// Keep the cursor on the same node when possible.
	m.cursor = 0
	if prev != "" {
		for i, r := range m.flatList {
			if r.Node.Key == prev {
				m.cursor = i
				break
			}
		}
	}
	m.ensureCursorVisible()
}

// visibleCount returns how many rows fit in the current height, leaving room
// for the header, status line, and search bar.
func (m *Model) visibleCount() int {
	reserved := 2 // header + status
	if m.searchMode || m.eng.Search() != "" {
		reserved++
	}
	count := m.height - reserved
	if count < 1 {
		count = 1
	}
	return count
}

func (m *Model) ensureCursorVisible() {
	count := m.visibleCount()
	if m.cursor < m.viewportOffset {
		m.viewportOffset = m.cursor
	}
	if m.cursor >= m.viewportOffset+count {
		m.viewportOffset = m.cursor - count + 1
	}
	if m.viewportOffset < 0 {
		m.viewportOffset = 0
	}
}

// View renders the widget: header, windowed rows, optional search bar,
// status line, and the detail pane when open.
func (m Model) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	var sb strings.Builder
	sb.WriteString(m.renderHeader(width))
	sb.WriteString("\n")

	if len(m.flatList) == 0 {
		sb.WriteString(m.theme.MutedText.Render("No nodes to display."))
		sb.WriteString("\n")
	} else {
		start := m.viewportOffset
		end := start + m.visibleCount()
		if end > len(m.flatList) {
			end = len(m.flatList)
		}
		for i := start; i < end; i++ {
			sb.WriteString(m.renderRow(m.flatList[i], i == m.cursor, width))
			sb.WriteString("\n")
		}
		if len(m.flatList) > m.visibleCount() {
			sb.WriteString(m.theme.MutedText.Render(
				fmt.Sprintf(" %d-%d of %d", start+1, end, len(m.flatList))))
			sb.WriteString("\n")
		}
	}

	if m.searchMode || m.eng.Search() != "" {
		sb.WriteString(m.searchInput.View())
		sb.WriteString("\n")
	}
	if m.statusMsg != "" {
		sb.WriteString(m.theme.MutedText.Render(m.statusMsg))
		sb.WriteString("\n")
	}
	if m.showDetail {
		sb.WriteString(m.renderDetail(width))
	}

	return sb.String()
}

// renderHeader renders the title row with mode and value count.
func (m Model) renderHeader(width int) string {
	r := m.theme.Renderer
	title := r.NewStyle().Foreground(m.theme.Primary).Bold(true).Render("canopy")

	mode := m.eng.Mode().String()
	if m.eng.Checkable() {
		mode = "checkable/" + m.eng.Strategy().String()
	}
	count := len(m.eng.Value())
	info := m.theme.MutedText.Render(fmt.Sprintf("  %s · %d selected", mode, count))

	line := title + info
	if pad := width - lipgloss.Width(line); pad > 0 {
		line += strings.Repeat(" ", pad)
	}
	return line
}

// renderRow renders one visible node line.
func (m Model) renderRow(rw engine.Row, cursor bool, width int) string {
	r := m.theme.Renderer
	n := rw.Node

	var left strings.Builder

	// Branch prefix
	prefix := m.buildPrefix(rw)
	left.WriteString(m.theme.MutedText.Render(prefix))

	// Expand indicator
	indicator := m.expandIndicator(rw)
	left.WriteString(r.NewStyle().Foreground(m.theme.Secondary).Render(indicator))
	left.WriteString(" ")

	// Checkbox or selection marker
	marker := m.marker(n)
	left.WriteString(marker)
	left.WriteString(" ")

	// Title
	used := lipgloss.Width(left.String())
	titleWidth := width - used - 1
	if titleWidth < 5 {
		titleWidth = 5
	}
	title := runewidth.Truncate(n.Title, titleWidth, "…")

	titleStyle := r.NewStyle()
	switch {
	case n.Disabled:
		titleStyle = titleStyle.Foreground(m.theme.Disabled).Faint(true)
	case m.eng.IsSelected(n.Key):
		titleStyle = titleStyle.Foreground(m.theme.Primary).Bold(true)
	case m.eng.Matches(n):
		titleStyle = titleStyle.Foreground(m.theme.Match).Bold(true)
	}
	left.WriteString(titleStyle.Render(title))

	line := left.String()
	if cursor {
		if pad := width - lipgloss.Width(line); pad > 0 {
			line += strings.Repeat(" ", pad)
		}
		line = m.theme.Selected.Render(line)
	}
	return line
}

// buildPrefix builds the indentation and branch characters for a row.
func (m Model) buildPrefix(rw engine.Row) string {
	if rw.Depth == 0 {
		return ""
	}
	var parts []string
	for _, hasMore := range rw.Trail[1:] {
		if hasMore {
			parts = append(parts, "│  ")
		} else {
			parts = append(parts, "   ")
		}
	}
	if rw.Last {
		parts = append(parts, "└─ ")
	} else {
		parts = append(parts, "├─ ")
	}
	return strings.Join(parts, "")
}

// expandIndicator returns the expand/collapse glyph for a row.
func (m Model) expandIndicator(rw engine.Row) string {
	switch {
	case m.eng.IsLoading(rw.Node.Key):
		return "⋯"
	case rw.HasChildren && rw.Expanded:
		return "▾"
	case rw.HasChildren || rw.Loadable:
		return "▸"
	default:
		return " "
	}
}

// marker returns the checkbox (checkable mode) or selection dot for a node.
func (m Model) marker(n *tree.Node) string {
	r := m.theme.Renderer
	if m.eng.Checkable() {
		switch {
		case n.Disabled:
			return m.theme.MutedText.Render("[-]")
		case m.eng.IsChecked(n.Key):
			return r.NewStyle().Foreground(m.theme.Checked).Render("[x]")
		case m.eng.IsHalfChecked(n.Key):
			return r.NewStyle().Foreground(m.theme.HalfChecked).Render("[~]")
		default:
			return "[ ]"
		}
	}
	if m.eng.IsSelected(n.Key) {
		return r.NewStyle().Foreground(m.theme.Primary).Render("●")
	}
	return m.theme.MutedText.Render("·")
}

// refreshDetail re-renders the markdown for the cursor node and caches the
// result on the model. Rendering happens here, in Update, rather than in
// View: View runs on a value receiver, so anything it computed would be
// thrown away each frame.
func (m *Model) refreshDetail() {
	if !m.showDetail {
		return
	}
	n := m.cursorNode()
	if n == nil || n.Description == "" {
		m.detailKey = ""
		m.detailCache = ""
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	if m.detailKey == n.Key && m.detailWidth == width && m.detailCache != "" {
		return
	}
	m.detailKey = n.Key
	m.detailWidth = width
	m.detailCache = renderMarkdown(n.Description, width)
}

// renderDetail returns the markdown description of the cursor node,
// preferring the cache refreshDetail filled.
func (m Model) renderDetail(width int) string {
	n := m.cursorNode()
	if n == nil {
		return ""
	}
	if n.Description == "" {
		return m.theme.MutedText.Render("(no description)") + "\n"
	}
	if m.detailKey == n.Key && m.detailWidth == width && m.detailCache != "" {
		return m.detailCache
	}
	return renderMarkdown(n.Description, width)
}

// renderMarkdown renders markdown for the detail pane, degrading to the raw
// source when the renderer is unavailable.
func renderMarkdown(src string, width int) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err != nil {
		return src + "\n"
	}
	out, err := renderer.Render(src)
	if err != nil {
		return src + "\n"
	}
	return out
}
