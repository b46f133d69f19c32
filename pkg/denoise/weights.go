package denoise

// Adaptive refinement search for per-dark-frame subtraction weights.
//
// Each dark frame gets a rational weight interval that narrows by a
// factor of `steps` per round; a priority queue always refines the
// interval with the best entropy seen so far, so compute goes to the
// most promising dark first. A dark is finalized once its denominator
// hits the resolution ceiling, and the remaining intervals restart
// from scratch because fixing one weight shifts the entropy
// landscape for the rest.

import(
	"container/heap"
	"fmt"
	"log"

	"github.com/codahale/hdrhistogram"

	"framecal/pkg/frame"
	"framecal/pkg/pool"
)

type Config struct {
	Steps    int     `yaml:"steps"`    // branching factor per refinement round
	MaxSteps int     `yaml:"maxsteps"` // denominator ceiling
	MinK     float64 `yaml:"mink"`     // weights below this end the search
}

func (c Config)withDefaults() Config {
	if c.Steps == 0 {
		c.Steps = 8
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = 512
	}
	if c.MinK == 0 {
		c.MinK = 0.01
	}
	return c
}

// A Weight is a finalized (dark, numerator, denominator) triple, to
// be applied in emission order.
type Weight struct {
	Dark  *frame.Frame
	Num   int
	Denom int
}

// weightRange is the state of one dark's narrowing interval
// [base/denom, (base+steps)/denom), tagged with the best entropy
// observed inside it.
type weightRange struct {
	entropy     float64
	base, denom int
	dark        *frame.Frame
	darkIdx     int
}

type rangeHeap []weightRange

func (h rangeHeap)Len() int      { return len(h) }
func (h rangeHeap)Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h rangeHeap)Less(i, j int) bool {
	if h[i].entropy != h[j].entropy {
		return h[i].entropy < h[j].entropy
	}
	return h[i].darkIdx < h[j].darkIdx
}
func (h *rangeHeap)Push(x interface{}) { *h = append(*h, x.(weightRange)) }
func (h *rangeHeap)Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// refine advances one interval by a round: scale (base,denom) up by
// steps, score every candidate integer numerator (in parallel when a
// pool is supplied), and anchor the interval at the best one. Ties go
// to the smaller numerator so the search is deterministic.
func refine(light *frame.Frame, r weightRange, steps int, p *pool.Pool) weightRange {
	base := r.base * steps
	denom := r.denom * steps

	entropies := make([]float64, steps)
	p.Map(steps, func(i int) {
		entropies[i] = Entropy(light, r.dark, base+i, denom)
	})

	best := 0
	for i := 1; i < steps; i++ {
		if entropies[i] < entropies[best] {
			best = i
		}
	}

	return weightRange{
		entropy: entropies[best],
		base:    base + best,
		denom:   denom,
		dark:    r.dark,
		darkIdx: r.darkIdx,
	}
}

func initialRange(light *frame.Frame, dark *frame.Frame, darkIdx, steps int, p *pool.Pool) weightRange {
	return refine(light, weightRange{base: 0, denom: 1, dark: dark, darkIdx: darkIdx}, steps, p)
}

// FindWeights searches every dark frame for the subtraction weight
// minimizing residual entropy against `light`, most promising dark
// first. Emission order is application order. When a finalized weight
// drops below MinK the remaining darks aren't worth pursuing.
//
// Each dark is always scored against the original light frame, never
// against a partially-subtracted residual - weights are estimated
// independently, matching the reset semantics of the search.
func FindWeights(light *frame.Frame, darks []*frame.Frame, cfg Config, p *pool.Pool) ([]Weight, error) {
	cfg = cfg.withDefaults()

	// The pixel loops index darks by the light's length
	for _, dark := range darks {
		if dark.Raw.W != light.Raw.W || dark.Raw.H != light.Raw.H {
			return nil, fmt.Errorf("denoise %s: dark %s dims %dx%d don't match %dx%d",
				light, dark, dark.Raw.W, dark.Raw.H, light.Raw.W, light.Raw.H)
		}
	}

	ranges := rangeHeap{}
	for i, dark := range darks {
		ranges = append(ranges, initialRange(light, dark, i, cfg.Steps, p))
	}
	heap.Init(&ranges)

	weights := []Weight{}
	for ranges.Len() > 0 {
		best := heap.Pop(&ranges).(weightRange)

		refined := refine(light, best, cfg.Steps, p)

		if refined.denom >= cfg.MaxSteps {
			log.Printf("dark %s finalized at %d/%d (entropy %.4f)\n",
				refined.dark, refined.base, refined.denom, refined.entropy)
			weights = append(weights, Weight{Dark: refined.dark, Num: refined.base, Denom: refined.denom})

			if float64(refined.base)/float64(refined.denom) < cfg.MinK {
				// Close enough; whatever remains would contribute even less
				break
			}

			// Reset remaining ranges - the landscape moved
			remaining := make([]weightRange, ranges.Len())
			copy(remaining, ranges)
			ranges = ranges[:0]
			for _, r := range remaining {
				ranges = append(ranges, initialRange(light, r.dark, r.darkIdx, cfg.Steps, p))
			}
			heap.Init(&ranges)
		} else {
			heap.Push(&ranges, refined)
		}
	}

	return weights, nil
}

// Apply subtracts the weighed dark from the light frame in place.
// The weighed dark is clamped pixel-wise so the residual can never
// wrap below zero.
func Apply(light *frame.Frame, w Weight) error {
	if w.Dark.Raw.W != light.Raw.W || w.Dark.Raw.H != light.Raw.H {
		return fmt.Errorf("apply %s: dark %s dims %dx%d don't match %dx%d",
			light, w.Dark, w.Dark.Raw.W, w.Dark.Raw.H, light.Raw.W, light.Raw.H)
	}

	lp, dp := light.Raw.Pix, w.Dark.Raw.Pix
	for i := range lp {
		dw := uint32(uint64(dp[i]) * uint64(w.Num) / uint64(w.Denom))
		if dw > uint32(lp[i]) {
			dw = uint32(lp[i])
		}
		lp[i] -= uint16(dw)
	}
	light.Invalidate()
	return nil
}

// Denoise runs the full search for one light frame and applies every
// emitted weight, logging the residual distribution afterwards.
func Denoise(light *frame.Frame, darks []*frame.Frame, cfg Config, p *pool.Pool) ([]Weight, error) {
	log.Printf("Denoising %s\n", light)

	weights, err := FindWeights(light, darks, cfg, p)
	if err != nil {
		return nil, err
	}
	for _, w := range weights {
		log.Printf("Applying %s with weight %d/%d\n", w.Dark, w.Num, w.Denom)
		if err := Apply(light, w); err != nil {
			return nil, err
		}
	}

	hist := hdrhistogram.New(1, 65535, 3)
	for _, v := range light.Raw.Pix {
		if v > 0 {
			hist.RecordValue(int64(v))
		}
	}
	log.Printf("Finished denoising %s: residual p50=%d p99=%d max=%d\n",
		light, hist.ValueAtQuantile(50), hist.ValueAtQuantile(99), hist.Max())

	return weights, nil
}
