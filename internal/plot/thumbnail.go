package plot

import (
	"fmt"

	"github.com/ChizhovVadim/tfplus/internal/ml"
)

// ThumbnailPlotter draws results["images"], [B,H,W] or [B,H,W,C], as a grid
// of at most MaxNumCol columns.
type ThumbnailPlotter struct {
	plotterBase
}

func NewThumbnailPlotter(cfg Config) *ThumbnailPlotter {
	return &ThumbnailPlotter{plotterBase{cfg: cfg.withDefaults()}}
}

func (p *ThumbnailPlotter) Listen(results ml.Results) error {
	images, err := results.Tensor("images")
	if err != nil {
		return err
	}
	if images.Rank() != 3 && images.Rank() != 4 {
		return fmt.Errorf("thumbnail %v: images shape %v is not [B,H,W] or [B,H,W,C]", p.cfg.Name, images.Shape)
	}
	var numEx = images.Dim(0)
	if numEx == 0 {
		return nil
	}
	rows, cols, calc := calcRowCol(numEx, 1, p.cfg.MaxNumCol)
	var g = newGrid(rows, cols, p.cfg.CellSize)
	for i := 0; i < numEx; i++ {
		tile, caption, err := tileImage(images.Item(i))
		if err != nil {
			return err
		}
		var row, col = calc(i, 0)
		g.put(row, col, tile, caption)
	}
	return p.save(g.img)
}
