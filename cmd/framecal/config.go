package main

import(
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"

	"framecal/pkg/align"
	"framecal/pkg/denoise"
	"framecal/pkg/frame"
)

/* Example config file ...

load:
  pattern: {dy: 2, dx: 2}
  margins: {top: 8, left: 16, bottom: 0, right: 0}

denoise:
  steps: 8
  maxsteps: 512
  mink: 0.01

align:
  grid_y: 3
  grid_x: 3
  track_roi: [0.1, 0.1, 0.1, 0.1]
  transform: similarity
  residual_limit: 2.0
  order: 3
  min_sim: 0.0

tracker:
  patch_size: 32
  distance: 16

workers: 8
*/

type TrackerOptions struct {
	PatchSize int `yaml:"patch_size"`
	Distance  int `yaml:"distance"`
}

type Configuration struct {
	Load    frame.LoadOptions `yaml:"load"`
	Denoise denoise.Config    `yaml:"denoise"`
	Align   align.Config      `yaml:"align"`
	Tracker TrackerOptions    `yaml:"tracker"`
	Workers int               `yaml:"workers"`
}

func newConfiguration() Configuration {
	return Configuration{
		Load:    frame.LoadOptions{Pattern: frame.Pattern{Dy: 2, Dx: 2}},
		Tracker: TrackerOptions{PatchSize: 32, Distance: 16},
	}
}

func loadConfiguration(filename string) (Configuration, error) {
	c := newConfiguration()

	if filename == "" {
		return c, nil
	}

	if contents, err := ioutil.ReadFile(filename); err != nil {
		return c, fmt.Errorf("read '%s': %v", filename, err)
	} else if err := yaml.Unmarshal(contents, &c); err != nil {
		return c, fmt.Errorf("parse '%s': %v", filename, err)
	}

	if c.Load.Pattern.Dy < 1 || c.Load.Pattern.Dx < 1 {
		return c, fmt.Errorf("config '%s': bad mosaic pattern %+v", filename, c.Load.Pattern)
	}
	if c.Tracker.PatchSize < 4 {
		return c, fmt.Errorf("config '%s': tracker patch %d too small", filename, c.Tracker.PatchSize)
	}

	return c, nil
}
