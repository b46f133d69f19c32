package align

// Diagnostic rendering of a detection: the luma preview with each
// surviving grid point marked in its own hue and its measured offset
// drawn (exaggerated) as a line. Handy when tuning grid geometry or
// deciding whether a rejection threshold is too tight.

import(
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"

	"framecal/pkg/frame"
)

const offsetExaggeration = 10.0

func RenderTracks(f *frame.Frame, det *Detection, filename string) error {
	luma := f.LumaImage()

	maxval := uint32(1)
	for _, v := range luma.Pix {
		if v > maxval {
			maxval = v
		}
	}

	img := image.NewGray(image.Rect(0, 0, luma.W, luma.H))
	for i, v := range luma.Pix {
		img.Pix[i] = uint8(v * 255 / maxval)
	}

	dc := gg.NewContextForImage(img)
	dc.SetLineWidth(2)

	// Samples are in pattern units; scale back out to luma pixels
	ymul := float64(f.Pattern.Dy) / float64(det.LYScale)
	xmul := float64(f.Pattern.Dx) / float64(det.LXScale)

	for i, s := range det.Samples {
		col := colorful.Hsv(float64(i)*360.0/float64(len(det.Samples)), 0.9, 0.9)
		dc.SetColor(color.NRGBA{uint8(col.R * 255), uint8(col.G * 255), uint8(col.B * 255), 255})

		gx, gy := s.GX*xmul, s.GY*ymul
		mx, my := s.MX*xmul, s.MY*ymul

		dc.DrawCircle(gx, gy, 8)
		dc.Stroke()
		dc.DrawLine(gx, gy, gx+(mx-gx)*offsetExaggeration, gy+(my-gy)*offsetExaggeration)
		dc.Stroke()
	}

	return dc.SavePNG(filename)
}
