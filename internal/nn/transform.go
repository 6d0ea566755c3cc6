package nn

import (
	"fmt"
	"math/rand"

	"github.com/ChizhovVadim/tfplus/internal/ml"
)

// ImageRandomTransform zero-pads a [B,H,W,C] batch, takes a random crop of
// the original size and optionally flips it horizontally.
type ImageRandomTransform struct {
	Padding  int
	RndHFlip bool
}

func (t *ImageRandomTransform) Apply(rnd *rand.Rand, x *ml.Tensor) (*ml.Tensor, error) {
	if x.Rank() != 4 {
		return nil, fmt.Errorf("random transform: want [B,H,W,C], got %v", x.Shape)
	}
	if t.Padding < 0 {
		return nil, fmt.Errorf("random transform: negative padding %v", t.Padding)
	}
	if t.Padding == 0 && !t.RndHFlip {
		return x.Clone(), nil
	}
	var batch, height, width, channels = x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	var result = ml.NewTensor(x.Shape...)
	for b := 0; b < batch; b++ {
		var offY = rnd.Intn(2*t.Padding+1) - t.Padding
		var offX = rnd.Intn(2*t.Padding+1) - t.Padding
		var flip = t.RndHFlip && rnd.Intn(2) == 1
		var src, dst = x.Item(b), result.Item(b)
		for y := 0; y < height; y++ {
			var sy = y + offY
			if sy < 0 || sy >= height {
				continue
			}
			for xx := 0; xx < width; xx++ {
				var sx = xx + offX
				if sx < 0 || sx >= width {
					continue
				}
				var dx = xx
				if flip {
					dx = width - 1 - xx
				}
				copy(dst.Data[(y*width+dx)*channels:(y*width+dx+1)*channels],
					src.Data[(sy*width+sx)*channels:(sy*width+sx+1)*channels])
			}
		}
	}
	return result, nil
}
