package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_AverageIsExact(t *testing.T) {
	t.Parallel()

	a := Accumulator{}
	for _, v := range []uint16{100, 200, 301} {
		val := v
		require.NoError(t, a.Add(testFrame("t", 2, 2, Pattern{1, 1}, func(y, x int) uint16 { return val })))
	}

	avg := a.Average()
	require.Len(t, avg, 4)
	assert.Equal(t, 601.0/3.0, avg[0])
	assert.Equal(t, 3, a.NumImages())
}

func TestAccumulator_Raw16NeverOverflows(t *testing.T) {
	t.Parallel()

	a := Accumulator{}
	for i := 0; i < 4; i++ {
		require.NoError(t, a.Add(testFrame("t", 2, 2, Pattern{1, 1}, func(y, x int) uint16 { return 60000 })))
	}

	// Sum is 240000; the minimal shift is 2, giving 60000
	out := a.Raw16()
	for _, v := range out.Pix {
		assert.Equal(t, uint16(60000), v)
	}
}

func TestAccumulator_NoShiftWhenUnderCeiling(t *testing.T) {
	t.Parallel()

	a := Accumulator{}
	require.NoError(t, a.Add(testFrame("t", 2, 2, Pattern{1, 1}, func(y, x int) uint16 { return 12345 })))
	assert.Equal(t, uint16(12345), a.Raw16().Pix[0])
}

func TestAccumulator_RejectsMismatchedDims(t *testing.T) {
	t.Parallel()

	a := Accumulator{}
	require.NoError(t, a.Add(testFrame("t", 2, 2, Pattern{1, 1}, func(y, x int) uint16 { return 1 })))
	assert.Error(t, a.Add(testFrame("t", 4, 4, Pattern{1, 1}, func(y, x int) uint16 { return 1 })))
}

func TestAverageImage_HDRValues(t *testing.T) {
	t.Parallel()

	a := Accumulator{}
	require.NoError(t, a.Add(testFrame("t", 2, 2, Pattern{1, 1}, func(y, x int) uint16 { return 65535 })))
	require.NoError(t, a.Add(testFrame("t", 2, 2, Pattern{1, 1}, func(y, x int) uint16 { return 0 })))

	ai := NewAverageImage(&a)
	assert.Equal(t, 4, ai.Size())
	rgb := ai.HDRAt(0, 0)
	r, _, _, _ := rgb.HDRRGBA()
	assert.InDelta(t, 0.5, r, 1e-9)
}
