package imgproc

import (
	"math"

	"github.com/ChizhovVadim/tfplus/internal/ml"
)

// Colour adjustments operate in place on [H, W, 3] RGB tensors.

func AdjustBrightness(t *ml.Tensor, delta float32) {
	for i := range t.Data {
		t.Data[i] += delta
	}
}

func AdjustContrast(t *ml.Tensor, factor float32) {
	var channels = t.Dim(t.Rank() - 1)
	var pixels = t.Len() / channels
	var mean = make([]float32, channels)
	for i, x := range t.Data {
		mean[i%channels] += x
	}
	for c := range mean {
		mean[c] /= float32(pixels)
	}
	for i, x := range t.Data {
		var m = mean[i%channels]
		t.Data[i] = (x-m)*factor + m
	}
}

func AdjustSaturation(t *ml.Tensor, factor float32) {
	forEachHSV(t, func(h, s, v float32) (float32, float32, float32) {
		return h, ml.Clamp(s*factor, 0, 1), v
	})
}

// AdjustHue rotates hue by delta, a fraction of the colour wheel.
func AdjustHue(t *ml.Tensor, delta float32) {
	forEachHSV(t, func(h, s, v float32) (float32, float32, float32) {
		h += delta
		h -= float32(math.Floor(float64(h)))
		return h, s, v
	})
}

func Clip(t *ml.Tensor, lo, hi float32) {
	for i, x := range t.Data {
		t.Data[i] = ml.Clamp(x, lo, hi)
	}
}

func forEachHSV(t *ml.Tensor, f func(h, s, v float32) (float32, float32, float32)) {
	for i := 0; i+2 < len(t.Data); i += 3 {
		var h, s, v = RGBToHSV(t.Data[i], t.Data[i+1], t.Data[i+2])
		h, s, v = f(h, s, v)
		t.Data[i], t.Data[i+1], t.Data[i+2] = HSVToRGB(h, s, v)
	}
}

// RGBToHSV returns hue in [0, 1).
func RGBToHSV(r, g, b float32) (h, s, v float32) {
	var max = maxf(r, maxf(g, b))
	var min = minf(r, minf(g, b))
	var d = max - min
	v = max
	if max > 0 {
		s = d / max
	}
	if d == 0 {
		return 0, s, v
	}
	switch max {
	case r:
		h = (g - b) / d
	case g:
		h = 2 + (b-r)/d
	default:
		h = 4 + (r-g)/d
	}
	h /= 6
	if h < 0 {
		h += 1
	}
	return h, s, v
}

func HSVToRGB(h, s, v float32) (r, g, b float32) {
	var hh = h * 6
	var sector = float32(math.Floor(float64(hh)))
	var f = hh - sector
	var p = v * (1 - s)
	var q = v * (1 - s*f)
	var t = v * (1 - s*(1-f))
	switch int(sector) % 6 {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
