package frame

import (
	"fmt"
	"image"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/tiff"
)

// LoadOptions describes the sensor geometry the TIFF container
// doesn't carry. A real raw developer would read this from the DNG;
// here the decode seam stays external and the caller supplies it.
type LoadOptions struct {
	Pattern Pattern `yaml:"pattern"`
	Margins Margins `yaml:"margins"`
}

// LoadFilesAndDirs loads every .tif under the given paths, recursing
// into directories, in the order encountered.
func LoadFilesAndDirs(opt LoadOptions, args ...string) ([]*Frame, error) {
	frames := []*Frame{}

	for _, arg := range args {
		item, err := os.Stat(arg)

		switch {

		case err != nil:
			return nil, fmt.Errorf("load %s: %v", arg, err)

		case item.IsDir():
			// Is a dir, recurse into contents
			contents, err := ioutil.ReadDir(arg)
			if err != nil {
				return nil, fmt.Errorf("readdir %s: %v", arg, err)
			}
			for _, content := range contents {
				sub, err := LoadFilesAndDirs(opt, filepath.Join(arg, content.Name()))
				if err != nil {
					return nil, fmt.Errorf("load %s: %v", arg, err)
				}
				frames = append(frames, sub...)
			}

		default: // is a file, load it
			if strings.ToLower(filepath.Ext(arg)) != ".tif" {
				continue
			}
			f, err := LoadTIFF(arg, opt)
			if err != nil {
				return nil, fmt.Errorf("loadfile %s: %v", arg, err)
			}
			frames = append(frames, f)
		}
	}

	return frames, nil
}

// LoadTIFF decodes a mosaiced sensor dump stored as TIFF. EXIF
// exposure metadata is kept when present, but plenty of calibration
// dumps don't carry any, so its absence is not an error.
func LoadTIFF(filename string, opt LoadOptions) (*Frame, error) {
	reader, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open+r img '%s': %v", filename, err)
	}
	defer reader.Close()

	img, err := tiff.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("tiff loading '%s': %v", filename, err)
	}

	// Identity is the path as given: the registration cache keys on it,
	// and basenames collide across directories
	f := New(filename, planeFromImage(img), opt.Pattern, opt.Margins)
	loadExif(filename, f)
	return f, nil
}

func planeFromImage(img image.Image) *Plane {
	bounds := img.Bounds()
	p := NewPlane(bounds.Dx(), bounds.Dy())

	switch src := img.(type) {

	case *image.Gray16:
		// The common case for mosaic dumps; pixel bytes are big-endian
		for y := 0; y < p.H; y++ {
			for x := 0; x < p.W; x++ {
				i := src.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
				p.Set(y, x, uint16(src.Pix[i])<<8|uint16(src.Pix[i+1]))
			}
		}

	default:
		// Whatever the container stored, fold it down to one channel
		for y := 0; y < p.H; y++ {
			for x := 0; x < p.W; x++ {
				r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				p.Set(y, x, uint16((r+g+b)/3))
			}
		}
	}

	return p
}

func loadExif(filename string, f *Frame) {
	reader, err := os.Open(filename)
	if err != nil {
		return
	}
	defer reader.Close()

	ex, err := exif.Decode(reader)
	if err != nil {
		log.Printf("no EXIF in %s (%v), continuing without exposure metadata\n", filename, err)
		return
	}

	if tag, err := ex.Get(exif.ISOSpeedRatings); err == nil {
		if val, err := tag.Int64(0); err == nil {
			f.Exposure.ISO = val
		}
	}

	if tag, err := ex.Get(exif.ExposureTime); err == nil {
		if num, denom, err := tag.Rat2(0); err == nil {
			f.Exposure.ShutterNum, f.Exposure.ShutterDenom = num, denom
		}
	}
}
