package datasource

import (
	"fmt"

	"github.com/vanderheijden86/canopy/pkg/tree"
)

// LoadTree loads tree data from an explicit file path.
func LoadTree(path string) (*tree.Store, error) {
	return tree.LoadFile(path)
}

// LoadTreeFromDir discovers sources in dir, selects the freshest valid one,
// and loads it.
func LoadTreeFromDir(dir string) (*tree.Store, error) {
	sources, err := DiscoverSources(DiscoveryOptions{
		Dir:                    dir,
		ValidateAfterDiscovery: true,
	})
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no tree data found in %s", dir)
	}

	best, err := SelectBestSource(sources)
	if err != nil {
		return nil, err
	}

	return tree.LoadFile(best.Path)
}
