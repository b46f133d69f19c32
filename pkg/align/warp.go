package align

// Applying a fitted transform to full-resolution mosaic data. Each
// mosaic sub-channel is warped independently on its own strided
// plane, so resampling never mixes values across color filters. The
// border margins get plausible interior data first, so the warp
// can't smear invalid pixels into the frame.

import(
	"fmt"
	"image"
	"log"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"framecal/pkg/frame"
)

// ApplyTransform warps the frame's raw buffer, and any extra
// component planes (nil entries are skipped), through the detected
// transform. When MinSim is configured the aligned result is also
// validated against the running reference luma; a false return means
// the frame failed that validation.
func (g *Grid)ApplyTransform(f *frame.Frame, extra []*frame.Plane, det *Detection) (bool, error) {
	inv, err := det.Transform.Aff3().Invert()
	if err != nil {
		return false, fmt.Errorf("apply transform: %v", err)
	}

	log.Printf("Transform for %s: %s\n", f, det.Transform)

	components := append([]*frame.Plane{f.Raw}, extra...)
	for _, comp := range components {
		if comp == nil {
			// Multi-component data sets might have missing entries
			continue
		}
		Demargin(comp, g.pattern, g.margins)
		warpPlane(comp, f64.Aff3(inv), g.pattern, g.cfg.Order)
	}
	f.Invalidate()

	if g.cfg.MinSim == 0 {
		return true, nil
	}

	alignedLuma := whiteTophat(f.LumaImage(), g.cfg.SimPrefilterSize)
	lw, lh := f.LumaImage().W, f.LumaImage().H

	if g.refLuma == nil {
		g.refLuma = alignedLuma
		return true, nil
	}

	// Exclude a margin proportional to translation amount, to
	// exclude margin artifacts
	ty, tx := det.Transform.Translation()
	scale := det.LYScale
	if det.LXScale > scale {
		scale = det.LXScale
	}
	margin := int(2*math.Max(math.Abs(ty), math.Abs(tx))) * scale
	if margin*2 >= lw || margin*2 >= lh {
		margin = 0
	}

	sim := nrmse(alignedLuma, g.refLuma, lw, lh, margin)
	log.Printf("Similarity after alignment: %.8f\n", sim)

	if sim < g.cfg.MinSim {
		log.Printf("Rejecting %s due to bad alignment similarity\n", f)
		return false, nil
	}
	return true, nil
}

// Demargin overwrites the invalid border margins with the nearest
// interior row/column of the same mosaic phase.
func Demargin(p *frame.Plane, pattern frame.Pattern, m frame.Margins) {
	dy, dx := pattern.Dy, pattern.Dx

	for y := 0; y < m.Top; y++ {
		src := y + ((m.Top-y+dy-1)/dy)*dy
		copy(p.Pix[y*p.W:(y+1)*p.W], p.Pix[src*p.W:(src+1)*p.W])
	}
	for y := p.H - m.Bottom; y < p.H; y++ {
		src := y - ((y-(p.H-m.Bottom)+dy)/dy)*dy
		copy(p.Pix[y*p.W:(y+1)*p.W], p.Pix[src*p.W:(src+1)*p.W])
	}
	for y := 0; y < p.H; y++ {
		for x := 0; x < m.Left; x++ {
			src := x + ((m.Left-x+dx-1)/dx)*dx
			p.Set(y, x, p.At(y, src))
		}
		for x := p.W - m.Right; x < p.W; x++ {
			src := x - ((x-(p.W-m.Right)+dx)/dx)*dx
			p.Set(y, x, p.At(y, src))
		}
	}
}

func kernelForOrder(order int) draw.Interpolator {
	switch order {
	case 0:
		return draw.NearestNeighbor
	case 1:
		return draw.BiLinear
	default:
		return draw.CatmullRom
	}
}

// warpPlane resamples every mosaic sub-channel of p through the
// inverse-mapped transform. Destination pixels that project outside
// the source keep their pre-warp values (edge extension).
func warpPlane(p *frame.Plane, inv f64.Aff3, pattern frame.Pattern, order int) {
	kernel := kernelForOrder(order)

	for yoffs := 0; yoffs < pattern.Dy; yoffs++ {
		for xoffs := 0; xoffs < pattern.Dx; xoffs++ {
			src := extractSub(p, yoffs, xoffs, pattern)

			dst := image.NewGray16(src.Bounds())
			copy(dst.Pix, src.Pix)

			kernel.Transform(dst, inv, src, src.Bounds(), draw.Src, nil)

			insertSub(p, dst, yoffs, xoffs, pattern)
		}
	}
}

func extractSub(p *frame.Plane, yoffs, xoffs int, pattern frame.Pattern) *image.Gray16 {
	w := (p.W - xoffs + pattern.Dx - 1) / pattern.Dx
	h := (p.H - yoffs + pattern.Dy - 1) / pattern.Dy
	img := image.NewGray16(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := p.At(y*pattern.Dy+yoffs, x*pattern.Dx+xoffs)
			i := img.PixOffset(x, y)
			img.Pix[i] = uint8(v >> 8)
			img.Pix[i+1] = uint8(v)
		}
	}
	return img
}

func insertSub(p *frame.Plane, img *image.Gray16, yoffs, xoffs int, pattern frame.Pattern) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			i := img.PixOffset(x, y)
			v := uint16(img.Pix[i])<<8 | uint16(img.Pix[i+1])
			p.Set(y*pattern.Dy+yoffs, x*pattern.Dx+xoffs, v)
		}
	}
}

// whiteTophat is luma minus its grayscale opening under a flat
// square structuring element: flattens broad glow, keeps stars.
func whiteTophat(l *frame.Luma, size int) []float64 {
	eroded := minFilter(l.Pix, l.W, l.H, size)
	opened := maxFilter(eroded, l.W, l.H, size)

	top := make([]float64, len(l.Pix))
	for i, v := range l.Pix {
		top[i] = float64(v) - float64(opened[i])
	}
	return top
}

func minFilter(pix []uint32, w, h, size int) []uint32 {
	return slideFilter(pix, w, h, size, func(a, b uint32) bool { return a < b })
}

func maxFilter(pix []uint32, w, h, size int) []uint32 {
	return slideFilter(pix, w, h, size, func(a, b uint32) bool { return a > b })
}

// slideFilter runs a separable sliding-extremum window, horizontal
// then vertical.
func slideFilter(pix []uint32, w, h, size int, better func(a, b uint32) bool) []uint32 {
	r := size / 2
	tmp := make([]uint32, len(pix))
	out := make([]uint32, len(pix))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			best := pix[y*w+x]
			for k := x - r; k <= x+r; k++ {
				if k < 0 || k >= w {
					continue
				}
				if better(pix[y*w+k], best) {
					best = pix[y*w+k]
				}
			}
			tmp[y*w+x] = best
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			best := tmp[y*w+x]
			for k := y - r; k <= y+r; k++ {
				if k < 0 || k >= h {
					continue
				}
				if better(tmp[k*w+x], best) {
					best = tmp[k*w+x]
				}
			}
			out[y*w+x] = best
		}
	}

	return out
}

// nrmse is the root-mean-square error between the two planes,
// normalized by the reference mean, computed inside the margin.
func nrmse(a, ref []float64, w, h, margin int) float64 {
	var sqSum, refSum float64
	var n int

	for y := margin; y < h-margin; y++ {
		for x := margin; x < w-margin; x++ {
			d := a[y*w+x] - ref[y*w+x]
			sqSum += d * d
			refSum += ref[y*w+x]
			n++
		}
	}
	if n == 0 || refSum == 0 {
		return 0
	}

	return math.Sqrt(sqSum/float64(n)) / (refSum / float64(n))
}
