package align

// Grid registration: a fixed grid of point trackers spread over the
// sensor's valid area, one per cell, each watching its own reference
// patch. Per-frame detection fans the trackers out over the worker
// pool, fits a global transform from the offset field, and caches the
// raw measurements by frame identity so iterative pipeline passes
// don't re-track.

import(
	"fmt"
	"log"
	"math"

	"github.com/skypies/util/histogram"

	"framecal/pkg/frame"
	"framecal/pkg/pool"
	"framecal/pkg/track"
)

type Config struct {
	GridY            int        `yaml:"grid_y"`
	GridX            int        `yaml:"grid_x"`
	TrackROI         [4]float64 `yaml:"track_roi"` // top,left,bottom,right margins, normalized
	Transform        string     `yaml:"transform"` // "similarity" (default) or "affine"
	ResidualLimit    float64    `yaml:"residual_limit"`
	Order            int        `yaml:"order"` // warp interpolation: 0, 1 or 3
	MinSim           float64    `yaml:"min_sim"` // 0 disables post-alignment validation
	SimPrefilterSize int        `yaml:"sim_prefilter_size"`
}

func (c Config)withDefaults() Config {
	if c.GridY == 0 {
		c.GridY = 3
	}
	if c.GridX == 0 {
		c.GridX = 3
	}
	if c.ResidualLimit == 0 {
		c.ResidualLimit = 2.0
	}
	if c.Order == 0 {
		c.Order = 3
	}
	if c.SimPrefilterSize == 0 {
		c.SimPrefilterSize = 64
	}
	return c
}

// A Corrector is an optional pre-tracking cleanup collaborator
// (vignette / glow removal).
type Corrector interface {
	Correct(f *frame.Frame) error
}

// A Detection is the immutable result of detecting one frame.
type Detection struct {
	Transform        Transform
	LYScale, LXScale int
	Samples          []Sample // the samples that survived outlier rejection
}

type cacheEntry struct {
	Samples   [][4]float64 `yaml:"samples"`
	RawShape  [2]int       `yaml:"raw_shape"`
	PrevShape [2]int       `yaml:"prev_shape"`
}

type Grid struct {
	// Deglow, when set, pre-corrects frames before tracking.
	Deglow Corrector

	cfg     Config
	kind    Kind
	pattern frame.Pattern
	margins frame.Margins
	rawW    int
	rawH    int

	gridCoords [][2]int // (y,x) anchors, raw pixel space
	trackers   []track.Tracker
	factory    track.Factory
	pool       *pool.Pool

	cache   map[string]cacheEntry
	refLuma []float64 // tophat-filtered luma of the first accepted frame
}

// New lays a cfg.GridY x cfg.GridX grid of trackers over the valid
// region of frames shaped like `geom`, shrunk by the normalized
// TrackROI margins. Grid geometry that cannot seat at least 4
// trackers is a configuration error.
func New(geom *frame.Frame, cfg Config, factory track.Factory, p *pool.Pool) (*Grid, error) {
	cfg = cfg.withDefaults()

	kind, err := KindFromString(cfg.Transform)
	if err != nil {
		return nil, err
	}

	if cfg.GridY < 1 || cfg.GridX < 1 || cfg.GridY*cfg.GridX < 4 {
		return nil, fmt.Errorf("grid %dx%d leaves fewer than 4 tracked points", cfg.GridY, cfg.GridX)
	}
	for _, m := range cfg.TrackROI {
		if m < 0 || m >= 1 {
			return nil, fmt.Errorf("track ROI margin %v out of range [0,1)", cfg.TrackROI)
		}
	}
	if cfg.TrackROI[0]+cfg.TrackROI[2] >= 1 || cfg.TrackROI[1]+cfg.TrackROI[3] >= 1 {
		return nil, fmt.Errorf("track ROI margins %v leave no region", cfg.TrackROI)
	}

	validH, validW := geom.ValidHeight(), geom.ValidWidth()
	t := geom.Margins.Top + int(cfg.TrackROI[0]*float64(validH))
	l := geom.Margins.Left + int(cfg.TrackROI[1]*float64(validW))
	b := geom.Margins.Top + validH - int(cfg.TrackROI[2]*float64(validH))
	r := geom.Margins.Left + validW - int(cfg.TrackROI[3]*float64(validW))

	yspacing := (b - t) / cfg.GridY
	xspacing := (r - l) / cfg.GridX
	if yspacing < 1 || xspacing < 1 {
		return nil, fmt.Errorf("grid %dx%d too fine for %dx%d region", cfg.GridY, cfg.GridX, r-l, b-t)
	}

	g := &Grid{
		cfg:     cfg,
		kind:    kind,
		pattern: geom.Pattern,
		margins: geom.Margins,
		rawW:    geom.Raw.W,
		rawH:    geom.Raw.H,
		factory: factory,
		pool:    p,
		cache:   map[string]cacheEntry{},
	}

	for y := t + yspacing/2; y < b; y += yspacing {
		for x := l + xspacing/2; x < r; x += xspacing {
			tracker := factory()
			tracker.SetReference(y/g.pattern.Dy, x/g.pattern.Dx)
			g.gridCoords = append(g.gridCoords, [2]int{y, x})
			g.trackers = append(g.trackers, tracker)
		}
	}

	return g, nil
}

func (g *Grid)NumTrackers() int      { return len(g.trackers) }
func (g *Grid)GridCoords() [][2]int  { return g.gridCoords }

// Detect estimates the transform aligning `f` onto the tracker
// grid's reference. A nil Detection with a nil error is a rejection:
// the frame tracked too poorly to trust, and the caller decides
// whether to drop it.
func (g *Grid)Detect(f *frame.Frame) (*Detection, error) {
	cached, ok := g.cache[f.Name]

	if !ok {
		if g.Deglow != nil {
			if err := g.Deglow.Correct(f); err != nil {
				return nil, fmt.Errorf("deglow %s: %v", f.Name, err)
			}
		}

		luma := f.LumaImage()
		g.logLumaStats(f, luma)

		rows := make([][4]float64, len(g.trackers))
		g.pool.Map(len(g.trackers), func(i int) {
			gy := float64(g.gridCoords[i][0]) / float64(g.pattern.Dy)
			gx := float64(g.gridCoords[i][1]) / float64(g.pattern.Dx)

			dy, dx, err := g.trackers[i].Detect(luma)
			if err != nil {
				// An invalid measurement, weeded out before fitting
				rows[i] = [4]float64{gy, gx, math.NaN(), math.NaN()}
				return
			}
			rows[i] = [4]float64{gy, gx, gy + dy, gx + dx}
		})

		cached = cacheEntry{
			Samples:   rows,
			RawShape:  [2]int{f.Raw.H, f.Raw.W},
			PrevShape: [2]int{luma.H, luma.W},
		}
		g.cache[f.Name] = cached
	}

	lyscale := cached.RawShape[0] / cached.PrevShape[0]
	lxscale := cached.RawShape[1] / cached.PrevShape[1]

	// Rescale from luma-preview pixels into mosaic-pattern units, so
	// the fitted transform warps the strided sub-channels correctly
	yDiv := float64(g.pattern.Dy) / float64(lyscale)
	xDiv := float64(g.pattern.Dx) / float64(lxscale)
	samples := make([]Sample, 0, len(cached.Samples))
	for _, row := range cached.Samples {
		if math.IsNaN(row[2]) || math.IsNaN(row[3]) {
			continue
		}
		samples = append(samples, Sample{
			GY: row[0] / yDiv, GX: row[1] / xDiv,
			MY: row[2] / yDiv, MX: row[3] / xDiv,
		})
	}

	t, used, fitOK := FitRobust(g.kind, samples, g.cfg.ResidualLimit)
	if !fitOK {
		log.Printf("Rejecting frame %s due to poor tracking\n", f)
		return nil, nil
	}

	log.Printf("Using %d reference grid points: %s\n", len(used), t)
	return &Detection{Transform: t, LYScale: lyscale, LXScale: lxscale, Samples: used}, nil
}

// Correct composes Detect (unless a precomputed detection is given)
// and ApplyTransform. Nil result means the frame was rejected.
func (g *Grid)Correct(f *frame.Frame, det *Detection) (*Detection, error) {
	if det == nil {
		var err error
		det, err = g.Detect(f)
		if err != nil {
			return nil, err
		}
		if det == nil {
			return nil, nil
		}
	}

	ok, err := g.ApplyTransform(f, nil, det)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return det, nil
}

func (g *Grid)logLumaStats(f *frame.Frame, luma *frame.Luma) {
	hist := histogram.Histogram{NumBuckets: 256, ValMin: 0, ValMax: 196608}
	for i := 0; i < len(luma.Pix); i += 97 {
		hist.Add(histogram.ScalarVal(int(luma.Pix[i])))
	}
	log.Printf("%s luma histogram: %v\n", f, hist)
}
