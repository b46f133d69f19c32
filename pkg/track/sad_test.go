package track

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framecal/pkg/frame"
)

func randomLuma(w, h int, seed int64) *frame.Luma {
	rng := rand.New(rand.NewSource(seed))
	l := &frame.Luma{Pix: make([]uint32, w*h), W: w, H: h}
	for i := range l.Pix {
		l.Pix[i] = uint32(rng.Intn(65536))
	}
	return l
}

func shiftedLuma(src *frame.Luma, dy, dx int) *frame.Luma {
	l := &frame.Luma{Pix: make([]uint32, len(src.Pix)), W: src.W, H: src.H}
	for y := 0; y < l.H; y++ {
		for x := 0; x < l.W; x++ {
			sy, sx := y-dy, x-dx
			if sy < 0 {
				sy = 0
			}
			if sx < 0 {
				sx = 0
			}
			l.Pix[y*l.W+x] = src.Pix[sy*src.W+sx]
		}
	}
	return l
}

func TestSADDetect(t *testing.T) {
	t.Parallel()

	ref := randomLuma(128, 128, 3)

	s := NewSADFactory(24, 12)()
	s.SetReference(64, 64)

	// First detection seeds the reference patch
	dy, dx, err := s.Detect(ref)
	require.NoError(t, err)
	assert.Zero(t, dy)
	assert.Zero(t, dx)

	dy, dx, err = s.Detect(shiftedLuma(ref, 5, 3))
	require.NoError(t, err)
	assert.InDelta(t, 5.0, dy, 0.5)
	assert.InDelta(t, 3.0, dx, 0.5)

	// Unshifted content still scores as unmoved
	dy, dx, err = s.Detect(ref)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, dy, 0.5)
	assert.InDelta(t, 0.0, dx, 0.5)
}

func TestSADLumaTooSmall(t *testing.T) {
	t.Parallel()

	s := NewSAD()
	s.SetReference(4, 4)
	_, _, err := s.Detect(randomLuma(8, 8, 1))
	assert.Error(t, err)
}

func TestSADStateRoundTrip(t *testing.T) {
	t.Parallel()

	ref := randomLuma(128, 128, 5)

	s := NewSADFactory(24, 12)()
	s.SetReference(64, 64)
	_, _, err := s.Detect(ref) // seed
	require.NoError(t, err)

	blob, err := s.State()
	require.NoError(t, err)

	restored := NewSAD()
	require.NoError(t, restored.LoadState(blob))

	// The restored tracker measures against the saved patch, not a
	// fresh seed
	dy, dx, err := restored.Detect(shiftedLuma(ref, 2, 7))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, dy, 0.5)
	assert.InDelta(t, 7.0, dx, 0.5)
}
