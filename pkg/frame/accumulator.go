package frame

import(
	"fmt"
)

// An Accumulator keeps a running sum of aligned frames, widened to
// uint32 so a long stack can't overflow the sensor depth. Append
// only; combination policy beyond plain averaging lives elsewhere.
type Accumulator struct {
	accum     []uint32
	w, h      int
	numImages int
}

func (a *Accumulator)Add(f *Frame) error {
	if a.accum == nil {
		a.w, a.h = f.Raw.W, f.Raw.H
		a.accum = make([]uint32, a.w*a.h)
	} else if f.Raw.W != a.w || f.Raw.H != a.h {
		return fmt.Errorf("accumulate %s: dims %dx%d don't match stack %dx%d", f.Name, f.Raw.W, f.Raw.H, a.w, a.h)
	}

	for i, v := range f.Raw.Pix {
		a.accum[i] += uint32(v)
	}
	a.numImages++
	return nil
}

func (a *Accumulator)NumImages() int { return a.numImages }
func (a *Accumulator)Width() int     { return a.w }
func (a *Accumulator)Height() int    { return a.h }

// Average returns sum/count per pixel, exactly, as floats.
func (a *Accumulator)Average() []float64 {
	if a.accum == nil {
		return nil
	}
	avg := make([]float64, len(a.accum))
	for i, v := range a.accum {
		avg[i] = float64(v) / float64(a.numImages)
	}
	return avg
}

// Raw16 squeezes the sum back under the 16 bit ceiling, right
// shifting by the minimum power of two that fits.
func (a *Accumulator)Raw16() *Plane {
	if a.accum == nil {
		return nil
	}

	maxval := uint32(0)
	for _, v := range a.accum {
		if v > maxval {
			maxval = v
		}
	}

	shift := uint(0)
	for maxval > 65535 {
		shift++
		maxval /= 2
	}

	p := NewPlane(a.w, a.h)
	for i, v := range a.accum {
		p.Pix[i] = uint16(v >> shift)
	}
	return p
}
