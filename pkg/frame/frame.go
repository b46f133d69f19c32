package frame

// A Frame is one decoded raw sensor capture: the mosaiced pixel
// buffer plus the metadata the calibration and registration stages
// need (CFA pattern geometry, valid-data margins, exposure info).
//
// The raw buffer is mutated in place by denoising and alignment; the
// derived preview and luma are computed lazily and thrown away on
// mutation, so nothing downstream ever sees a stale preview.

import(
	"fmt"
	"image"
	"image/color"
)

// Pattern is the repeating CFA mosaic cell, e.g. 2x2 for Bayer
// sensors, 1x1 for mono.
type Pattern struct {
	Dy int `yaml:"dy"`
	Dx int `yaml:"dx"`
}

// Margins are the invalid borders around the sensor's active area.
type Margins struct {
	Top    int `yaml:"top"`
	Left   int `yaml:"left"`
	Bottom int `yaml:"bottom"`
	Right  int `yaml:"right"`
}

// A Plane is a 2D array of sensor-depth pixels, row major.
type Plane struct {
	Pix  []uint16
	W, H int
}

func NewPlane(w, h int) *Plane {
	return &Plane{Pix: make([]uint16, w*h), W: w, H: h}
}

func (p *Plane)At(y, x int) uint16     { return p.Pix[y*p.W+x] }
func (p *Plane)Set(y, x int, v uint16) { p.Pix[y*p.W+x] = v }

func (p *Plane)Clone() *Plane {
	q := NewPlane(p.W, p.H)
	copy(q.Pix, p.Pix)
	return q
}

// A Luma is a single-channel brightness plane - the channel sum of
// the post-processed preview, one value per pattern cell.
type Luma struct {
	Pix  []uint32
	W, H int
}

func (l *Luma)At(y, x int) uint32 { return l.Pix[y*l.W+x] }

type Exposure struct {
	ISO          int64
	ShutterNum   int64
	ShutterDenom int64
}

type Frame struct {
	Name     string
	Raw      *Plane
	Pattern  Pattern
	Margins  Margins
	Exposure Exposure

	preview *image.RGBA64
	luma    *Luma
}

func New(name string, raw *Plane, pattern Pattern, margins Margins) *Frame {
	return &Frame{Name: name, Raw: raw, Pattern: pattern, Margins: margins}
}

func (f *Frame)String() string { return f.Name }

// ValidHeight and ValidWidth are the dimensions of the active sensor
// area, inside the margins.
func (f *Frame)ValidHeight() int { return f.Raw.H - f.Margins.Top - f.Margins.Bottom }
func (f *Frame)ValidWidth() int  { return f.Raw.W - f.Margins.Left - f.Margins.Right }

// SetRaw copies new pixel data into the frame's raw buffer, keeping
// the frame identity, and invalidates the derived preview and luma.
func (f *Frame)SetRaw(p *Plane) error {
	if p.W != f.Raw.W || p.H != f.Raw.H {
		return fmt.Errorf("setraw %s: dims %dx%d don't match frame %dx%d", f.Name, p.W, p.H, f.Raw.W, f.Raw.H)
	}
	if p != f.Raw {
		copy(f.Raw.Pix, p.Pix)
	}
	f.Invalidate()
	return nil
}

// Invalidate must be called after mutating Raw.Pix directly.
func (f *Frame)Invalidate() {
	f.preview = nil
	f.luma = nil
}

// Preview returns the post-processed RGB rendering, one output pixel
// per pattern cell (superpixel development - no interpolation, so
// channels never bleed into each other).
func (f *Frame)Preview() *image.RGBA64 {
	if f.preview != nil {
		return f.preview
	}

	dy, dx := f.Pattern.Dy, f.Pattern.Dx
	w, h := f.Raw.W/dx, f.Raw.H/dy
	img := image.NewRGBA64(image.Rect(0, 0, w, h))

	for cy := 0; cy < h; cy++ {
		for cx := 0; cx < w; cx++ {
			first := f.Raw.At(cy*dy, cx*dx)
			last := f.Raw.At(cy*dy+dy-1, cx*dx+dx-1)

			// Everything between the corners is treated as green; for
			// a 2x2 Bayer cell that's the usual RGGB reading, and for
			// mono sensors first==last==mid.
			var mid, nMid uint32
			for yo := 0; yo < dy; yo++ {
				for xo := 0; xo < dx; xo++ {
					if (yo == 0 && xo == 0) || (yo == dy-1 && xo == dx-1) {
						continue
					}
					mid += uint32(f.Raw.At(cy*dy+yo, cx*dx+xo))
					nMid++
				}
			}
			if nMid == 0 {
				mid, nMid = uint32(first), 1
			}

			img.SetRGBA64(cx, cy, color.RGBA64{
				R: first,
				G: uint16(mid / nMid),
				B: last,
				A: 0xffff,
			})
		}
	}

	f.preview = img
	return img
}

// LumaImage returns the channel sum over each pattern cell, in
// preview-pixel space. Trackers and similarity checks run on this.
func (f *Frame)LumaImage() *Luma {
	if f.luma != nil {
		return f.luma
	}

	dy, dx := f.Pattern.Dy, f.Pattern.Dx
	w, h := f.Raw.W/dx, f.Raw.H/dy
	l := &Luma{Pix: make([]uint32, w*h), W: w, H: h}

	for cy := 0; cy < h; cy++ {
		for cx := 0; cx < w; cx++ {
			var sum uint32
			for yo := 0; yo < dy; yo++ {
				for xo := 0; xo < dx; xo++ {
					sum += uint32(f.Raw.At(cy*dy+yo, cx*dx+xo))
				}
			}
			l.Pix[cy*w+cx] = sum
		}
	}

	f.luma = l
	return l
}
