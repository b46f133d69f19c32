package frame

// A few helpers for getting stacked data back out as images

import(
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
)

func WritePNG(img image.Image, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return png.Encode(writer, img)
	}
}

// Gray16Image wraps a plane so the stdlib image codecs can see it.
func Gray16Image(p *Plane) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, p.W, p.H))
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			v := p.At(y, x)
			i := img.PixOffset(x, y)
			img.Pix[i] = uint8(v >> 8)
			img.Pix[i+1] = uint8(v)
		}
	}
	return img
}

// An AverageImage exposes an accumulator's floating point average as
// an image, so the stack can be handed to HDR tonemapping tools
// without quantizing back down to 16 bits first.
type AverageImage struct {
	avg  []float64
	w, h int
}

func NewAverageImage(a *Accumulator) *AverageImage {
	return &AverageImage{avg: a.Average(), w: a.Width(), h: a.Height()}
}

// Implement golang's image.Image interface
func (ai *AverageImage)ColorModel() color.Model { return hdrcolor.RGBModel }
func (ai *AverageImage)Bounds() image.Rectangle { return image.Rect(0, 0, ai.w, ai.h) }
func (ai *AverageImage)At(x, y int) color.Color { return ai.HDRAt(x, y) }

// Implement hdr.Image interface
func (ai *AverageImage)HDRAt(x, y int) hdrcolor.Color {
	v := ai.avg[y*ai.w+x] / 65535.0
	return hdrcolor.RGB{R: v, G: v, B: v}
}
func (ai *AverageImage)Size() int { return ai.w * ai.h }

func WriteHDR(img hdr.Image, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return rgbe.Encode(writer, img)
	}
}
