package data

import (
	"context"
	"fmt"

	"github.com/ChizhovVadim/tfplus/internal/ml"
)

// memoryDataset keeps uint8 HWC images in a single buffer.
type memoryDataset struct {
	height     int
	width      int
	channels   int
	numClasses int
	pixels     []byte
	labels     []int
}

func (d *memoryDataset) imageSize() int {
	return d.height * d.width * d.channels
}

func (d *memoryDataset) size() int {
	return len(d.labels)
}

// slice keeps examples [from, to).
func (d *memoryDataset) slice(from, to int) *memoryDataset {
	var n = d.imageSize()
	return &memoryDataset{
		height:     d.height,
		width:      d.width,
		channels:   d.channels,
		numClasses: d.numClasses,
		pixels:     d.pixels[from*n : to*n],
		labels:     d.labels[from:to],
	}
}

func (d *memoryDataset) batch(ctx context.Context, idx []int) (ml.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var n = d.imageSize()
	var x = ml.NewTensor(len(idx), d.height, d.width, d.channels)
	var labels = make([]int, len(idx))
	for k, i := range idx {
		if i < 0 || i >= d.size() {
			return nil, fmt.Errorf("index %v out of range [0, %v)", i, d.size())
		}
		var src = d.pixels[i*n : (i+1)*n]
		var dst = x.Data[k*n : (k+1)*n]
		for j, b := range src {
			dst[j] = float32(b) / 255
		}
		labels[k] = d.labels[i]
	}
	y, err := ml.OneHot(labels, d.numClasses)
	if err != nil {
		return nil, err
	}
	return ml.Batch{"x": x, "y_gt": y}, nil
}
