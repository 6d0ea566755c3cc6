package plot

import (
	"fmt"

	"github.com/ChizhovVadim/tfplus/internal/ml"
)

// VideoPlotter draws the first MaxNumFrame frames of every example of
// results["images"]: [B,T,H,W] or [B,T,H,W,3] with Axis 1, [B,H,W,T] with
// Axis 3.
type VideoPlotter struct {
	plotterBase
}

func NewVideoPlotter(cfg Config) (*VideoPlotter, error) {
	cfg = cfg.withDefaults()
	if cfg.Axis != 1 && cfg.Axis != 3 {
		return nil, fmt.Errorf("video %v: %w: %v", cfg.Name, ErrAxisNotSupported, cfg.Axis)
	}
	return &VideoPlotter{plotterBase{cfg: cfg}}, nil
}

func (p *VideoPlotter) Listen(results ml.Results) error {
	images, err := results.Tensor("images")
	if err != nil {
		return err
	}
	var axis = p.cfg.Axis
	switch {
	case axis == 1 && (images.Rank() == 4 || images.Rank() == 5):
	case axis == 3 && images.Rank() == 4:
	case axis != 1 && axis != 3:
		return fmt.Errorf("video %v: %w: %v", p.cfg.Name, ErrAxisNotSupported, axis)
	default:
		return fmt.Errorf("video %v: images shape %v does not match axis %v", p.cfg.Name, images.Shape, axis)
	}
	var numEx = images.Dim(0)
	var numItems = min(images.Dim(axis), p.cfg.MaxNumFrame)
	if numEx == 0 || numItems == 0 {
		return nil
	}
	rows, cols, calc := calcRowCol(numEx, numItems, p.cfg.MaxNumCol)
	var g = newGrid(rows, cols, p.cfg.CellSize)
	for i := 0; i < numEx; i++ {
		var example = images.Item(i)
		for j := 0; j < numItems; j++ {
			var frame *ml.Tensor
			if axis == 1 {
				frame = example.Item(j)
			} else {
				frame = lastAxisFrame(example, j)
			}
			tile, caption, err := tileImage(frame)
			if err != nil {
				return err
			}
			var row, col = calc(i, j)
			g.put(row, col, tile, caption)
		}
	}
	return p.save(g.img)
}

// lastAxisFrame copies x[:, :, j] out of a [H,W,T] tensor.
func lastAxisFrame(x *ml.Tensor, j int) *ml.Tensor {
	var height, width, frames = x.Shape[0], x.Shape[1], x.Shape[2]
	var frame = ml.NewTensor(height, width)
	for i := range frame.Data {
		frame.Data[i] = x.Data[i*frames+j]
	}
	return frame
}
