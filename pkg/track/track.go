package track

// The point-tracker capability used by grid registration. A tracker
// owns one reference patch anchored at a fixed luma-space coordinate
// and reports how far the content under it moved in a new frame. Any
// implementation satisfying this contract is pluggable; the
// registration core never assumes a particular algorithm.

import(
	"framecal/pkg/frame"
)

type Tracker interface {
	// SetReference anchors the tracker at (y,x), in luma-preview
	// pixel space.
	SetReference(y, x int)

	// Detect returns the (dy,dx) offset of the reference patch in the
	// given luma, in luma pixels. The first frame a tracker sees
	// seeds its reference patch and reports (0,0).
	Detect(luma *frame.Luma) (dy, dx float64, err error)

	// State and LoadState round-trip the tracker's internal state as
	// an opaque blob, independent of any frame data.
	State() ([]byte, error)
	LoadState(state []byte) error
}

// A Factory builds fresh trackers; grid registration instantiates
// one per grid cell.
type Factory func() Tracker
