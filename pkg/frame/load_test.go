package frame

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
)

func writeTestTIFF(t *testing.T, dir, name string, w, h int) string {
	t.Helper()

	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint16(y*w + x)
			i := img.PixOffset(x, y)
			img.Pix[i] = uint8(v >> 8)
			img.Pix[i+1] = uint8(v)
		}
	}

	fn := filepath.Join(dir, name)
	writer, err := os.Create(fn)
	require.NoError(t, err)
	defer writer.Close()
	require.NoError(t, tiff.Encode(writer, img, nil))
	return fn
}

func TestLoadFilesAndDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestTIFF(t, dir, "a.tif", 8, 6)
	writeTestTIFF(t, dir, "b.tif", 8, 6)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0644))

	opt := LoadOptions{Pattern: Pattern{Dy: 2, Dx: 2}, Margins: Margins{Top: 2}}
	frames, err := LoadFilesAndDirs(opt, dir)
	require.NoError(t, err)
	require.Len(t, frames, 2, "only .tif files load")

	f := frames[0]
	assert.Equal(t, filepath.Join(dir, "a.tif"), f.Name)
	assert.Equal(t, 8, f.Raw.W)
	assert.Equal(t, 6, f.Raw.H)
	assert.Equal(t, Pattern{Dy: 2, Dx: 2}, f.Pattern)
	assert.Equal(t, 2, f.Margins.Top)

	// Pixel data survives the container round trip
	assert.Equal(t, uint16(0), f.Raw.At(0, 0))
	assert.Equal(t, uint16(8+3), f.Raw.At(1, 3))
}

func TestLoadKeepsDistinctIdentityAcrossDirs(t *testing.T) {
	t.Parallel()

	// Same basename in two session directories must load as two
	// distinct frame identities, or they'd share a registration
	// cache entry
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "a"), 0755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "b"), 0755))
	writeTestTIFF(t, filepath.Join(dir, "a"), "frame1.tif", 8, 6)
	writeTestTIFF(t, filepath.Join(dir, "b"), "frame1.tif", 8, 6)

	frames, err := LoadFilesAndDirs(LoadOptions{Pattern: Pattern{1, 1}}, dir)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.NotEqual(t, frames[0].Name, frames[1].Name)
}

func TestLoadMissingPath(t *testing.T) {
	t.Parallel()

	_, err := LoadFilesAndDirs(LoadOptions{Pattern: Pattern{1, 1}}, "/does/not/exist.tif")
	assert.Error(t, err)
}
