package align

// Registration state is fully capturable independent of pixel data:
// grid anchors, each tracker's opaque state blob, and the per-frame
// measurement cache. Restoring state is the only thing that
// invalidates cache entries.

import(
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"
)

type State struct {
	Trackers   [][]byte              `yaml:"trackers"`
	GridCoords [][2]int              `yaml:"grid_coords"`
	Cache      map[string]cacheEntry `yaml:"cache"`
}

func (g *Grid)State() (*State, error) {
	s := &State{
		GridCoords: append([][2]int{}, g.gridCoords...),
		Cache:      map[string]cacheEntry{},
	}
	for _, tracker := range g.trackers {
		blob, err := tracker.State()
		if err != nil {
			return nil, fmt.Errorf("tracker state: %v", err)
		}
		s.Trackers = append(s.Trackers, blob)
	}
	for k, v := range g.cache {
		s.Cache[k] = v
	}
	return s, nil
}

func (g *Grid)LoadState(s *State) error {
	if len(s.Trackers) != len(s.GridCoords) {
		return fmt.Errorf("state has %d trackers but %d grid coords", len(s.Trackers), len(s.GridCoords))
	}

	g.trackers = g.trackers[:0]
	g.gridCoords = append(g.gridCoords[:0], s.GridCoords...)
	for i, blob := range s.Trackers {
		tracker := g.factory()
		tracker.SetReference(s.GridCoords[i][0]/g.pattern.Dy, s.GridCoords[i][1]/g.pattern.Dx)
		if err := tracker.LoadState(blob); err != nil {
			return fmt.Errorf("tracker %d state: %v", i, err)
		}
		g.trackers = append(g.trackers, tracker)
	}

	g.cache = map[string]cacheEntry{}
	for k, v := range s.Cache {
		g.cache[k] = v
	}
	return nil
}

func (g *Grid)SaveStateFile(filename string) error {
	s, err := g.State()
	if err != nil {
		return err
	}
	contents, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("state marshal: %v", err)
	}
	return ioutil.WriteFile(filename, contents, 0644)
}

func (g *Grid)LoadStateFile(filename string) error {
	contents, err := ioutil.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("state read '%s': %v", filename, err)
	}
	s := &State{}
	if err := yaml.Unmarshal(contents, s); err != nil {
		return fmt.Errorf("state parse '%s': %v", filename, err)
	}
	return g.LoadState(s)
}
