// Package imgproc prepares decoded images for training: aspect-preserving
// resize, crop, horizontal flip and colour jitter.
package imgproc

import (
	"errors"
	"fmt"
	"image"
	"math/rand"
	"sync"

	"github.com/ChizhovVadim/tfplus/internal/ml"
	"golang.org/x/image/draw"
)

var (
	ErrInvalidCrop   = errors.New("invalid crop")
	ErrInvalidConfig = errors.New("invalid preprocessor config")
)

const DefaultSeed = 2

type Config struct {
	Resize    int
	Crop      int
	RndResize [2]int
	RndHFlip  bool
	RndColour bool
	Seed      int64
	// Channels forces the output depth to 1 or 3; 0 follows the decoded image.
	Channels int
}

// ImageNetConfig is the training setup of the ImageNet provider.
func ImageNetConfig() Config {
	return Config{
		Resize:    256,
		Crop:      224,
		RndResize: [2]int{256, 480},
		RndHFlip:  true,
		RndColour: true,
		Seed:      DefaultSeed,
		Channels:  3,
	}
}

// RandomPackage holds the random draws of one training example so the same
// geometry can be applied again.
type RandomPackage struct {
	// Offset of the crop window, x then y.
	Offset [2]int
	// Size of the resized image, width then height.
	Size  [2]int
	HFlip bool
}

type ImagePreprocessor struct {
	cfg Config
	mu  sync.Mutex
	rnd *rand.Rand
}

func New(cfg Config) (*ImagePreprocessor, error) {
	if cfg.Crop <= 0 {
		return nil, fmt.Errorf("%w: crop %v", ErrInvalidConfig, cfg.Crop)
	}
	if cfg.Resize < cfg.Crop {
		return nil, fmt.Errorf("%w: resize %v smaller than crop %v", ErrInvalidConfig, cfg.Resize, cfg.Crop)
	}
	if cfg.RndResize[0] > cfg.RndResize[1] {
		return nil, fmt.Errorf("%w: random resize range %v", ErrInvalidConfig, cfg.RndResize)
	}
	if cfg.Channels != 0 && cfg.Channels != 1 && cfg.Channels != 3 {
		return nil, fmt.Errorf("%w: channels %v", ErrInvalidConfig, cfg.Channels)
	}
	if cfg.RndResize[0] < cfg.Crop {
		return nil, fmt.Errorf("%w: random resize %v smaller than crop %v", ErrInvalidConfig, cfg.RndResize, cfg.Crop)
	}
	return &ImagePreprocessor{
		cfg: cfg,
		rnd: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (p *ImagePreprocessor) Config() Config { return p.cfg }

func (p *ImagePreprocessor) uniform(lo, hi float64) float64 {
	return lo + p.rnd.Float64()*(hi-lo)
}

// Redraw draws a new random package for an image of the given size.
// The flip is drawn with probability 0.5 and output stays in RGB order.
func (p *ImagePreprocessor) Redraw(height, width int) RandomPackage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var siz = int(p.uniform(float64(p.cfg.RndResize[0]), float64(p.cfg.RndResize[1])))
	var size = ScaledSize(width, height, siz)
	var result = RandomPackage{Size: size}
	result.Offset[0] = int(p.uniform(0, float64(size[0]-p.cfg.Crop)))
	result.Offset[1] = int(p.uniform(0, float64(size[1]-p.cfg.Crop)))
	result.HFlip = p.rnd.Float64() < 0.5
	return result
}

// ScaledSize returns (width, height) after scaling the short side to siz.
func ScaledSize(width, height, siz int) [2]int {
	if width < height {
		return [2]int{siz, int(float64(height) / float64(width) * float64(siz))}
	}
	return [2]int{int(float64(width) / float64(height) * float64(siz)), siz}
}

// Process returns a [crop, crop, channels] tensor with values in [0, 1].
// With rnd the geometry comes from pkg, drawn when pkg is nil, and colours
// are jittered; without rnd the image is centre-cropped after resizing its
// short side to Resize.
func (p *ImagePreprocessor) Process(img image.Image, rnd bool, pkg *RandomPackage) (*ml.Tensor, RandomPackage, error) {
	var bounds = img.Bounds()
	var width, height = bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, RandomPackage{}, fmt.Errorf("%w: empty image", ErrInvalidCrop)
	}
	if pkg == nil {
		var drawn = p.Redraw(height, width)
		pkg = &drawn
	}

	var crop = p.cfg.Crop
	var size, offset [2]int
	var hflip bool
	if rnd {
		size = pkg.Size
		offset = pkg.Offset
		hflip = pkg.HFlip && p.cfg.RndHFlip
	} else {
		size = ScaledSize(width, height, p.cfg.Resize)
		offset = [2]int{(size[0] - crop) / 2, (size[1] - crop) / 2}
	}
	if err := CheckCrop(size, offset, crop); err != nil {
		return nil, *pkg, err
	}

	var resized = image.NewRGBA64(image.Rect(0, 0, size[0], size[1]))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Src, nil)

	var channels = p.cfg.Channels
	if channels == 0 {
		channels = Channels(img)
	}
	var result = ml.NewTensor(crop, crop, channels)
	var i int
	for y := 0; y < crop; y++ {
		for x := 0; x < crop; x++ {
			var sx = offset[0] + x
			if hflip {
				sx = offset[0] + crop - 1 - x
			}
			var c = resized.RGBA64At(sx, offset[1]+y)
			var r, g, b = float32(c.R) / 0xffff, float32(c.G) / 0xffff, float32(c.B) / 0xffff
			if channels == 3 {
				result.Data[i], result.Data[i+1], result.Data[i+2] = r, g, b
			} else {
				result.Data[i] = 0.299*r + 0.587*g + 0.114*b
			}
			i += channels
		}
	}

	if rnd && p.cfg.RndColour && channels == 3 {
		p.jitter(result)
	}
	return result, *pkg, nil
}

// CheckCrop verifies that the crop window lies inside the resized image.
func CheckCrop(size, offset [2]int, crop int) error {
	if offset[0] < 0 || offset[1] < 0 ||
		size[0] < crop+offset[0] || size[1] < crop+offset[1] {
		return fmt.Errorf("%w: size %v, offset %v, crop %v", ErrInvalidCrop, size, offset, crop)
	}
	return nil
}

// Channels is 1 for grayscale images and 3 otherwise.
func Channels(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	}
	return 3
}

func (p *ImagePreprocessor) jitter(t *ml.Tensor) {
	p.mu.Lock()
	var brightness = p.uniform(-32.0/255.0, 32.0/255.0)
	var saturation = p.uniform(0.5, 1.5)
	var hue = p.uniform(-0.1, 0.1)
	var contrast = p.uniform(0.5, 1.5)
	p.mu.Unlock()

	AdjustBrightness(t, float32(brightness))
	AdjustSaturation(t, float32(saturation))
	AdjustHue(t, float32(hue))
	AdjustContrast(t, float32(contrast))
	Clip(t, 0, 1)
}
