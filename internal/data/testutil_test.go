package data

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, width, height int, shade uint8) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), os.ModePerm))
	var img = image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: shade, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func writeGrayPNG(t *testing.T, path string, width, height int, shade uint8) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), os.ModePerm))
	var img = image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func writeLines(t *testing.T, path string, lines ...string) {
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
}

// newImageNetFixture builds a three-class ImageNet tree with 256x256 images.
func newImageNetFixture(t *testing.T) string {
	var root = t.TempDir()
	writeLines(t, filepath.Join(root, "synsets.txt"), "n03", "n01", "n02")
	writePNG(t, filepath.Join(root, "train", "n01", "n01_1.png"), 256, 256, 10)
	writePNG(t, filepath.Join(root, "train", "n01", "n01_2.png"), 256, 256, 20)
	writePNG(t, filepath.Join(root, "train", "n02", "n02_1.png"), 300, 256, 30)
	writePNG(t, filepath.Join(root, "train", "n03", "n03_1.png"), 256, 300, 40)
	writePNG(t, filepath.Join(root, "valid", "v_2.png"), 256, 256, 50)
	writePNG(t, filepath.Join(root, "valid", "v_1.png"), 256, 256, 60)
	writeLines(t, filepath.Join(root, "valid_labels.txt"), "0", "2")
	writePNG(t, filepath.Join(root, "test", "t_1.png"), 256, 256, 70)
	return root
}
