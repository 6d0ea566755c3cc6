package imgproc

import (
	"testing"

	"github.com/ChizhovVadim/tfplus/internal/ml"
	"github.com/stretchr/testify/require"
)

func TestHSVRoundTrip(t *testing.T) {
	var colours = [][3]float32{
		{0, 0, 0}, {1, 1, 1}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		{0.2, 0.4, 0.6}, {0.9, 0.1, 0.5}, {0.3, 0.3, 0.1},
	}
	for _, c := range colours {
		var h, s, v = RGBToHSV(c[0], c[1], c[2])
		require.GreaterOrEqual(t, h, float32(0))
		require.Less(t, h, float32(1))
		var r, g, b = HSVToRGB(h, s, v)
		require.InDelta(t, c[0], r, 1e-5)
		require.InDelta(t, c[1], g, 1e-5)
		require.InDelta(t, c[2], b, 1e-5)
	}
}

func TestAdjustContrast(t *testing.T) {
	var img = &ml.Tensor{Shape: []int{1, 2, 3}, Data: []float32{0.2, 0.4, 0.6, 0.4, 0.6, 0.8}}
	AdjustContrast(img, 2)
	require.InDeltaSlice(t, []float32{0.1, 0.3, 0.5, 0.5, 0.7, 0.9}, img.Data, 1e-6)
}

func TestAdjustSaturationToGray(t *testing.T) {
	var img = &ml.Tensor{Shape: []int{1, 1, 3}, Data: []float32{0.8, 0.2, 0.4}}
	AdjustSaturation(img, 0)
	require.InDeltaSlice(t, []float32{0.8, 0.8, 0.8}, img.Data, 1e-6)
}
