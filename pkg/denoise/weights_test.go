package denoise

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framecal/pkg/frame"
	"framecal/pkg/pool"
)

func syntheticDark(name string, seed int64, w, h int) *frame.Frame {
	rng := rand.New(rand.NewSource(seed))
	p := frame.NewPlane(w, h)
	for i := range p.Pix {
		p.Pix[i] = uint16(rng.Intn(60000))
	}
	return frame.New(name, p, frame.Pattern{Dy: 1, Dx: 1}, frame.Margins{})
}

// lightFromDark builds light = dark/2 + noise, so the optimal
// subtraction weight is known to be 1/2.
func lightFromDark(dark *frame.Frame, seed int64) *frame.Frame {
	rng := rand.New(rand.NewSource(seed))
	p := frame.NewPlane(dark.Raw.W, dark.Raw.H)
	for i, d := range dark.Raw.Pix {
		p.Pix[i] = d/2 + uint16(rng.Intn(64))
	}
	return frame.New("light", p, dark.Pattern, dark.Margins)
}

func TestFindWeights_ConvergesToTrueWeight(t *testing.T) {
	t.Parallel()

	dark := syntheticDark("dark", 1, 64, 64)
	light := lightFromDark(dark, 2)

	weights, err := FindWeights(light, []*frame.Frame{dark}, Config{}, pool.New(4))
	require.NoError(t, err)
	require.Len(t, weights, 1)

	w := weights[0]
	assert.Equal(t, 512, w.Denom)
	assert.InDelta(t, 0.5, float64(w.Num)/float64(w.Denom), 1.0/512+1e-9,
		"weight should land within one refinement step of the true 0.5")
}

// Weights are estimated per dark against the original light frame,
// never against a partial residual: two copies of the same dark both
// come back with the full weight rather than the second one seeing an
// already-subtracted light. That matches the search's reset
// semantics; if weight estimation ever becomes compounding, this is
// the test that should change.
func TestFindWeights_IndependentPerDark(t *testing.T) {
	t.Parallel()

	dark1 := syntheticDark("dark1", 1, 64, 64)
	dark2 := syntheticDark("dark2", 1, 64, 64)
	light := lightFromDark(dark1, 2)

	weights, err := FindWeights(light, []*frame.Frame{dark1, dark2}, Config{}, nil)
	require.NoError(t, err)
	require.Len(t, weights, 2)

	for _, w := range weights {
		assert.InDelta(t, 0.5, float64(w.Num)/float64(w.Denom), 1.0/512+1e-9)
	}
}

func TestFindWeights_MinKStopsEarly(t *testing.T) {
	t.Parallel()

	// A light carrying nothing but faint noise: subtracting any
	// fraction of a bright dark only spreads the residual out, so the
	// best weight for every dark is 0. The first one finalizes under
	// the default mink and the search stops without ever touching
	// the second dark.
	rng := rand.New(rand.NewSource(10))
	p := frame.NewPlane(32, 32)
	for i := range p.Pix {
		p.Pix[i] = uint16(rng.Intn(64))
	}
	light := frame.New("light", p, frame.Pattern{Dy: 1, Dx: 1}, frame.Margins{})

	dark1 := syntheticDark("dark1", 20, 32, 32)
	dark2 := syntheticDark("dark2", 30, 32, 32)

	weights, err := FindWeights(light, []*frame.Frame{dark1, dark2}, Config{}, nil)
	require.NoError(t, err)

	require.Len(t, weights, 1)
	assert.Equal(t, dark1, weights[0].Dark)
	assert.Less(t, float64(weights[0].Num)/float64(weights[0].Denom), 0.01,
		"the finalized weight must actually be under mink to end the search")
}

func TestFindWeights_RejectsMismatchedDims(t *testing.T) {
	t.Parallel()

	light := syntheticDark("light", 1, 32, 32)
	small := syntheticDark("small", 2, 16, 16)

	_, err := FindWeights(light, []*frame.Frame{small}, Config{}, nil)
	assert.Error(t, err, "an undersized dark is an error, not a panic")

	assert.Error(t, Apply(light, Weight{Dark: small, Num: 1, Denom: 2}))
}

func TestApply_ClampsAtZero(t *testing.T) {
	t.Parallel()

	dark := syntheticDark("dark", 1, 16, 16)
	light := frame.New("light", frame.NewPlane(16, 16), dark.Pattern, dark.Margins)
	for i := range light.Raw.Pix {
		light.Raw.Pix[i] = 100 // far below most dark pixels
	}

	require.NoError(t, Apply(light, Weight{Dark: dark, Num: 1, Denom: 1}))

	for i, v := range light.Raw.Pix {
		expect := uint16(0)
		if dark.Raw.Pix[i] < 100 {
			expect = 100 - dark.Raw.Pix[i]
		}
		require.Equal(t, expect, v, "pixel %d must clamp, not wrap", i)
	}
}

func TestDenoise_AppliesWeightsInOrder(t *testing.T) {
	t.Parallel()

	dark := syntheticDark("dark", 1, 64, 64)
	light := lightFromDark(dark, 2)

	weights, err := Denoise(light, []*frame.Frame{dark}, Config{}, nil)
	require.NoError(t, err)
	require.Len(t, weights, 1)

	// light = dark/2 + noise, minus dark*~1/2: only noise remains
	for _, v := range light.Raw.Pix {
		assert.Less(t, int(v), 64+1)
	}
}

func TestEntropy_LowerAtTrueWeight(t *testing.T) {
	t.Parallel()

	dark := syntheticDark("dark", 1, 64, 64)
	light := lightFromDark(dark, 2)

	at := func(num, denom int) float64 { return Entropy(light, dark, num, denom) }
	best := at(4, 8)
	assert.Less(t, best, at(0, 8))
	assert.Less(t, best, at(3, 8))
	assert.Less(t, best, at(5, 8))
	assert.Less(t, best, at(7, 8))
}
