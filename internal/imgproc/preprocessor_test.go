package imgproc

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestImage(width, height int) *image.NRGBA {
	var img = image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / width),
				G: uint8(y * 255 / height),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img
}

func smallConfig() Config {
	return Config{
		Resize:    16,
		Crop:      12,
		RndResize: [2]int{16, 30},
		RndHFlip:  true,
		RndColour: true,
		Seed:      DefaultSeed,
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero crop", Config{Resize: 10, RndResize: [2]int{10, 20}}},
		{"resize below crop", Config{Resize: 8, Crop: 10, RndResize: [2]int{10, 20}}},
		{"random resize below crop", Config{Resize: 10, Crop: 10, RndResize: [2]int{8, 20}}},
		{"reversed range", Config{Resize: 10, Crop: 10, RndResize: [2]int{30, 20}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestRedrawOffsetBounds(t *testing.T) {
	p, err := New(smallConfig())
	require.NoError(t, err)
	var sizes = [][2]int{{20, 20}, {40, 20}, {20, 50}, {13, 97}}
	for _, wh := range sizes {
		for i := 0; i < 200; i++ {
			var pkg = p.Redraw(wh[1], wh[0])
			require.GreaterOrEqual(t, pkg.Offset[0], 0)
			require.GreaterOrEqual(t, pkg.Offset[1], 0)
			require.LessOrEqual(t, pkg.Offset[0]+12, pkg.Size[0])
			require.LessOrEqual(t, pkg.Offset[1]+12, pkg.Size[1])
			require.NoError(t, CheckCrop(pkg.Size, pkg.Offset, 12))
		}
	}
}

func TestScaledSize(t *testing.T) {
	require.Equal(t, [2]int{256, 384}, ScaledSize(200, 300, 256))
	require.Equal(t, [2]int{384, 256}, ScaledSize(300, 200, 256))
	require.Equal(t, [2]int{256, 256}, ScaledSize(100, 100, 256))
}

func TestProcessDeterministic(t *testing.T) {
	var img = newTestImage(40, 30)
	var pkg = RandomPackage{Offset: [2]int{3, 2}, Size: [2]int{21, 16}, HFlip: true}

	p1, err := New(smallConfig())
	require.NoError(t, err)
	p2, err := New(smallConfig())
	require.NoError(t, err)

	out1, _, err := p1.Process(img, true, &pkg)
	require.NoError(t, err)
	out2, _, err := p2.Process(img, true, &pkg)
	require.NoError(t, err)
	require.Equal(t, out1.Data, out2.Data)
	require.Equal(t, []int{12, 12, 3}, out1.Shape)

	var cfg = smallConfig()
	cfg.RndColour = false
	p3, err := New(cfg)
	require.NoError(t, err)
	out3, _, err := p3.Process(img, true, &pkg)
	require.NoError(t, err)
	out4, _, err := p3.Process(img, true, &pkg)
	require.NoError(t, err)
	require.Equal(t, out3.Data, out4.Data)
}

func TestProcessColourClipped(t *testing.T) {
	p, err := New(smallConfig())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		out, _, err := p.Process(newTestImage(32, 24), true, nil)
		require.NoError(t, err)
		var min, max = out.MinMax()
		require.GreaterOrEqual(t, min, float32(0))
		require.LessOrEqual(t, max, float32(1))
	}
}

func TestProcessInvalidPackage(t *testing.T) {
	p, err := New(smallConfig())
	require.NoError(t, err)
	var pkg = RandomPackage{Offset: [2]int{10, 0}, Size: [2]int{20, 16}}
	_, _, err = p.Process(newTestImage(20, 16), true, &pkg)
	require.ErrorIs(t, err, ErrInvalidCrop)
}

func TestProcessCentreCropAndFlip(t *testing.T) {
	var cfg = Config{Resize: 4, Crop: 2, RndResize: [2]int{4, 4}, RndHFlip: true, Seed: 1}
	p, err := New(cfg)
	require.NoError(t, err)

	var img = image.NewGray(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(60 * x)})
		}
	}

	centre, _, err := p.Process(img, false, nil)
	require.NoError(t, err)
	require.Equal(t, []int{2, 2, 1}, centre.Shape)
	require.InDelta(t, 60.0/255, centre.Data[0], 1e-3)
	require.InDelta(t, 120.0/255, centre.Data[1], 1e-3)

	var pkg = RandomPackage{Offset: [2]int{1, 1}, Size: [2]int{4, 4}, HFlip: true}
	flipped, _, err := p.Process(img, true, &pkg)
	require.NoError(t, err)
	require.InDelta(t, 120.0/255, flipped.Data[0], 1e-3)
	require.InDelta(t, 60.0/255, flipped.Data[1], 1e-3)
}

func TestProcessForcedChannels(t *testing.T) {
	var gray = image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range gray.Pix {
		gray.Pix[i] = 128
	}

	var cfg = smallConfig()
	cfg.Channels = 3
	p, err := New(cfg)
	require.NoError(t, err)
	x, _, err := p.Process(gray, false, nil)
	require.NoError(t, err)
	require.Equal(t, []int{12, 12, 3}, x.Shape)
	require.InDelta(t, 128.0/255, x.Data[0], 1e-2)
	require.InDelta(t, x.Data[0], x.Data[1], 1e-6)
	require.InDelta(t, x.Data[0], x.Data[2], 1e-6)

	cfg.Channels = 1
	p, err = New(cfg)
	require.NoError(t, err)
	x, _, err = p.Process(newTestImage(16, 16), true, nil)
	require.NoError(t, err)
	require.Equal(t, []int{12, 12, 1}, x.Shape)

	cfg.Channels = 2
	_, err = New(cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)
}
