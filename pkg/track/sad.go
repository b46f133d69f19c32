package track

// A plain block-matching tracker: exhaustive sum-of-absolute-
// differences search around the anchor, with parabolic sub-pixel
// refinement of the winning offset. It stands in for fancier
// correlation trackers behind the same interface.

import(
	"fmt"
	"math"

	"gopkg.in/yaml.v2"

	"framecal/pkg/frame"
)

type SAD struct {
	PatchSize int // reference patch is PatchSize x PatchSize
	Distance  int // search +/- this many pixels in each axis

	y, x int
	ref  []uint32
}

type sadState struct {
	Y         int      `yaml:"y"`
	X         int      `yaml:"x"`
	PatchSize int      `yaml:"patch_size"`
	Distance  int      `yaml:"distance"`
	Ref       []uint32 `yaml:"ref,flow"`
}

// NewSAD is a track.Factory.
func NewSAD() Tracker {
	return &SAD{PatchSize: 32, Distance: 16}
}

// NewSADFactory makes a factory with non-default geometry.
func NewSADFactory(patchSize, distance int) Factory {
	return func() Tracker {
		return &SAD{PatchSize: patchSize, Distance: distance}
	}
}

func (s *SAD)SetReference(y, x int) {
	s.y, s.x = y, x
	s.ref = nil
}

func (s *SAD)Detect(luma *frame.Luma) (float64, float64, error) {
	if luma.W < s.PatchSize || luma.H < s.PatchSize {
		return 0, 0, fmt.Errorf("sad: luma %dx%d smaller than patch %d", luma.W, luma.H, s.PatchSize)
	}

	if s.ref == nil {
		s.ref = s.grabPatch(luma, s.y, s.x)
		return 0, 0, nil
	}

	n := 2*s.Distance + 1
	sads := make([]int64, n*n)
	bi, bj := s.Distance, s.Distance
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sads[i*n+j] = s.sadAt(luma, s.y+i-s.Distance, s.x+j-s.Distance)
			if sads[i*n+j] < sads[bi*n+bj] {
				bi, bj = i, j
			}
		}
	}

	dy := float64(bi-s.Distance) + subpixel(
		sadNeighbor(sads, n, bi-1, bj), sads[bi*n+bj], sadNeighbor(sads, n, bi+1, bj))
	dx := float64(bj-s.Distance) + subpixel(
		sadNeighbor(sads, n, bi, bj-1), sads[bi*n+bj], sadNeighbor(sads, n, bi, bj+1))

	return dy, dx, nil
}

func (s *SAD)State() ([]byte, error) {
	return yaml.Marshal(sadState{Y: s.y, X: s.x, PatchSize: s.PatchSize, Distance: s.Distance, Ref: s.ref})
}

func (s *SAD)LoadState(state []byte) error {
	var st sadState
	if err := yaml.Unmarshal(state, &st); err != nil {
		return fmt.Errorf("sad state: %v", err)
	}
	s.y, s.x = st.Y, st.X
	s.PatchSize, s.Distance = st.PatchSize, st.Distance
	s.ref = st.Ref
	return nil
}

// grabPatch copies the PatchSize square centered on (y,x), clamping
// reads at the luma edges.
func (s *SAD)grabPatch(luma *frame.Luma, y, x int) []uint32 {
	patch := make([]uint32, s.PatchSize*s.PatchSize)
	for i := 0; i < s.PatchSize; i++ {
		for j := 0; j < s.PatchSize; j++ {
			patch[i*s.PatchSize+j] = lumaClamped(luma, y-s.PatchSize/2+i, x-s.PatchSize/2+j)
		}
	}
	return patch
}

func (s *SAD)sadAt(luma *frame.Luma, y, x int) int64 {
	var sum int64
	for i := 0; i < s.PatchSize; i++ {
		for j := 0; j < s.PatchSize; j++ {
			v := int64(lumaClamped(luma, y-s.PatchSize/2+i, x-s.PatchSize/2+j))
			d := v - int64(s.ref[i*s.PatchSize+j])
			if d < 0 {
				d = -d
			}
			sum += d
		}
	}
	return sum
}

func lumaClamped(l *frame.Luma, y, x int) uint32 {
	if y < 0 {
		y = 0
	} else if y >= l.H {
		y = l.H - 1
	}
	if x < 0 {
		x = 0
	} else if x >= l.W {
		x = l.W - 1
	}
	return l.Pix[y*l.W+x]
}

func sadNeighbor(sads []int64, n, i, j int) int64 {
	if i < 0 || j < 0 || i >= n || j >= n {
		return math.MaxInt64
	}
	return sads[i*n+j]
}

// subpixel fits a parabola through (prev, best, next) and returns the
// fractional offset of its minimum, pinned to (-0.5, 0.5).
func subpixel(prev, best, next int64) float64 {
	if prev == math.MaxInt64 || next == math.MaxInt64 {
		return 0
	}
	denom := float64(prev - 2*best + next)
	if denom <= 0 {
		return 0
	}
	off := 0.5 * float64(prev-next) / denom
	if off > 0.5 {
		off = 0.5
	} else if off < -0.5 {
		off = -0.5
	}
	return off
}
