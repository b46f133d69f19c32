package fmath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotateAboutFixedPoint(t *testing.T) {
	t.Parallel()

	m := RotateAbout(30, 40, 25)
	x, y := m.Apply(40, 25)
	assert.InDelta(t, 40.0, x, 1e-12)
	assert.InDelta(t, 25.0, y, 1e-12)
}

func TestComposeBackToFront(t *testing.T) {
	t.Parallel()

	// Rightmost operation applies first: rotate (1,0) a quarter turn
	// to (0,1), then translate
	m := Identity().Translate(10, 5).Rotate(90)
	x, y := m.Apply(1, 0)
	assert.InDelta(t, 10.0, x, 1e-12)
	assert.InDelta(t, 6.0, y, 1e-12)
}

func TestInvertRoundTrip(t *testing.T) {
	t.Parallel()

	m := RotateAbout(12, 3, 4).Translate(7, -2)
	inv, err := m.Invert()
	require.NoError(t, err)

	x, y := m.Apply(42, 17)
	bx, by := inv.Apply(x, y)
	assert.InDelta(t, 42.0, bx, 1e-9)
	assert.InDelta(t, 17.0, by, 1e-9)
}

func TestInvertSingular(t *testing.T) {
	t.Parallel()

	_, err := Aff3{}.Invert()
	assert.Error(t, err)
}
