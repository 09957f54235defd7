// Command canopy is an interactive tree-select explorer. It loads a tree
// from a JSON/YAML data file (or browses a directory lazily), runs the
// selection engine behind a terminal widget, and prints the chosen value on
// exit.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/vanderheijden86/canopy/internal/datasource"
	"github.com/vanderheijden86/canopy/pkg/config"
	"github.com/vanderheijden86/canopy/pkg/debug"
	"github.com/vanderheijden86/canopy/pkg/engine"
	"github.com/vanderheijden86/canopy/pkg/tree"
	"github.com/vanderheijden86/canopy/pkg/ui"
	"github.com/vanderheijden86/canopy/pkg/watcher"
)

func main() {
	dataPath := flag.String("data", "", "Tree data file (.json/.yaml)")
	dataDir := flag.String("dir", "", "Directory with tree data files (freshest valid file wins)")
	browse := flag.String("browse", "", "Browse a filesystem directory with lazy loading")
	mode := flag.String("mode", "", "Selection mode: single or multiple")
	checkable := flag.Bool("checkable", false, "Enable checkbox selection")
	strategy := flag.String("strategy", "", "Check strategy: show-parent, show-child, show-all")
	fuzzyFlag := flag.Bool("fuzzy", false, "Use fuzzy search matching")
	noWatch := flag.Bool("no-watch", false, "Disable live reload of the data file")
	flag.Parse()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "canopy requires an interactive terminal")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	applyFlags(&cfg, *mode, *checkable, *strategy, *fuzzyFlag, *dataPath, *noWatch)

	store, loadFn, err := openSource(cfg, *dataDir, *browse)
	if err != nil {
		fmt.Fprintf(os.Stderr, "canopy: %v\n", err)
		os.Exit(1)
	}

	opts, err := engineOptions(cfg, loadFn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "canopy: %v\n", err)
		os.Exit(1)
	}
	eng, err := engine.New(store, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "canopy: %v\n", err)
		os.Exit(1)
	}

	stateDir := ""
	if cfg.UI.PersistState {
		stateDir = config.StateDir()
	}
	theme := ui.DefaultTheme(lipgloss.DefaultRenderer())
	widget := ui.NewModel(eng, theme, stateDir, cfg.UI.ExpandDepth)

	app := appModel{widget: widget}
	p := tea.NewProgram(app, tea.WithAltScreen())

	// Load completions land on the loader goroutine; forward them to the
	// program so the view refreshes.
	wireEngineEvents(eng, p)

	var fw *watcher.Watcher
	if cfg.Data.Watch && cfg.Data.Path != "" && *browse == "" {
		fw = startWatcher(cfg.Data.Path, eng, p)
		if fw != nil {
			defer fw.Stop()
		}
	}

	final, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "canopy: %v\n", err)
		os.Exit(1)
	}

	// Print the final value, one key per line, for shell consumption.
	if app, ok := final.(appModel); ok {
		for _, v := range app.widget.Engine().Value() {
			fmt.Println(v.Key)
		}
	}
}

// applyFlags overlays command-line flags on the loaded config.
func applyFlags(cfg *config.Config, mode string, checkable bool, strategy string, fuzzy bool, dataPath string, noWatch bool) {
	if mode != "" {
		cfg.Select.Mode = mode
	}
	if checkable {
		cfg.Select.Checkable = true
	}
	if strategy != "" {
		cfg.Select.CheckStrategy = strategy
	}
	if fuzzy {
		cfg.Select.FuzzySearch = true
	}
	if dataPath != "" {
		cfg.Data.Path = dataPath
	}
	if noWatch {
		cfg.Data.Watch = false
	}
}

// openSource resolves the tree store and (for browse mode) the lazy loader.
func openSource(cfg config.Config, dataDir, browse string) (*tree.Store, engine.LoadFunc, error) {
	switch {
	case browse != "":
		src, err := datasource.NewFSSource(browse)
		if err != nil {
			return nil, nil, err
		}
		roots, err := src.Roots()
		if err != nil {
			return nil, nil, err
		}
		store, err := tree.NewStore(roots)
		if err != nil {
			return nil, nil, err
		}
		return store, src.LoadChildren, nil

	case dataDir != "":
		store, err := datasource.LoadTreeFromDir(dataDir)
		return store, nil, err

	case cfg.Data.Path != "":
		store, err := datasource.LoadTree(cfg.Data.Path)
		return store, nil, err

	default:
		return nil, nil, fmt.Errorf("no data source: pass --data, --dir, or --browse")
	}
}

// engineOptions translates config into engine options.
func engineOptions(cfg config.Config, loadFn engine.LoadFunc) ([]engine.Option, error) {
	var opts []engine.Option

	switch cfg.Select.Mode {
	case "", "single":
		opts = append(opts, engine.WithMode(engine.ModeSingle))
	case "multiple":
		opts = append(opts, engine.WithMode(engine.ModeMultiple))
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Select.Mode)
	}

	if cfg.Select.Checkable {
		var strategy engine.CheckStrategy
		switch cfg.Select.CheckStrategy {
		case "", "show-parent":
			strategy = engine.ShowParent
		case "show-child":
			strategy = engine.ShowChild
		case "show-all":
			strategy = engine.ShowAll
		default:
			return nil, fmt.Errorf("unknown check strategy %q", cfg.Select.CheckStrategy)
		}
		opts = append(opts, engine.WithCheckable(strategy))
	}

	if cfg.Select.FuzzySearch {
		opts = append(opts, engine.WithFuzzyMatch())
	}
	if loadFn != nil {
		opts = append(opts, engine.WithLoader(loadFn))
	}
	return opts, nil
}

// wireEngineEvents forwards async engine notifications into the program.
func wireEngineEvents(eng *engine.Engine, p *tea.Program) {
	eng.Configure(
		engine.WithOnLoad(func(_ []string, info engine.LoadInfo) {
			p.Send(ui.LoadCompletedMsg{Key: info.Node.Key})
		}),
		engine.WithOnLoadError(func(key string, err error) {
			p.Send(ui.LoadFailedMsg{Key: key, Err: err})
		}),
	)
}

// startWatcher begins watching the data file and reloading on change.
func startWatcher(path string, eng *engine.Engine, p *tea.Program) *watcher.Watcher {
	fw, err := watcher.New(path, watcher.WithOnChange(func() {
		store, err := datasource.LoadTree(path)
		if err != nil {
			debug.Log("reload failed: %v", err)
			return
		}
		if err := eng.ReplaceData(store); err != nil {
			debug.Log("reload failed: %v", err)
			return
		}
		p.Send(ui.DataReloadedMsg{})
	}))
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: watch disabled: %v\n", err)
		return nil
	}
	if err := fw.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: watch disabled: %v\n", err)
		return nil
	}
	return fw
}

// appModel wraps the widget with program-level keys (quit).
type appModel struct {
	widget ui.Model
}

func (a appModel) Init() tea.Cmd {
	return a.widget.Init()
}

func (a appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		}
	}
	var cmd tea.Cmd
	a.widget, cmd = a.widget.Update(msg)
	return a, cmd
}

func (a appModel) View() string {
	return a.widget.View()
}
