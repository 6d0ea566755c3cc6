package plot

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/ChizhovVadim/tfplus/internal/ml"
)

// ConfusionMatrixPlotter counts argmax(y_gt) against argmax(y_out) over the
// batches of a dispatch round and draws the row-normalized matrix on Stage.
type ConfusionMatrixPlotter struct {
	plotterBase
	mu     sync.Mutex
	counts [][]int
}

func NewConfusionMatrixPlotter(cfg Config) *ConfusionMatrixPlotter {
	return &ConfusionMatrixPlotter{plotterBase: plotterBase{cfg: cfg.withDefaults()}}
}

func (p *ConfusionMatrixPlotter) Listen(results ml.Results) error {
	yGT, err := results.Tensor("y_gt")
	if err != nil {
		return err
	}
	yOut, err := results.Tensor("y_out")
	if err != nil {
		return err
	}
	if yGT.Rank() != 2 || yOut.Rank() != 2 || yGT.Shape[0] != yOut.Shape[0] || yGT.Shape[1] != yOut.Shape[1] {
		return fmt.Errorf("confusion %v: shapes %v and %v differ", p.cfg.Name, yGT.Shape, yOut.Shape)
	}
	var numClasses = yGT.Shape[1]
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.counts) != numClasses {
		p.counts = make([][]int, numClasses)
		for i := range p.counts {
			p.counts[i] = make([]int, numClasses)
		}
	}
	for i := 0; i < yGT.Shape[0]; i++ {
		p.counts[ml.ArgMax32(yGT.Item(i).Data)][ml.ArgMax32(yOut.Item(i).Data)]++
	}
	return nil
}

// Counts returns a copy of the accumulated matrix, rows are ground truth.
func (p *ConfusionMatrixPlotter) Counts() [][]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result = make([][]int, len(p.counts))
	for i, row := range p.counts {
		result[i] = append([]int(nil), row...)
	}
	return result
}

func (p *ConfusionMatrixPlotter) Stage() error {
	p.mu.Lock()
	var counts = p.counts
	p.counts = nil
	p.mu.Unlock()
	if len(counts) == 0 {
		return nil
	}
	var n = len(counts)
	var heat = image.NewRGBA(image.Rect(0, 0, n, n))
	for i, row := range counts {
		var total int
		for _, c := range row {
			total += c
		}
		for j, c := range row {
			var v float64
			if total > 0 {
				v = float64(c) / float64(total)
			}
			var shade = uint8(255 * (1 - v))
			heat.Set(j, i, color.RGBA{R: shade, G: shade, B: 255, A: 255})
		}
	}
	var g = newGrid(1, 1, max(p.cfg.CellSize, 4*n))
	g.put(0, 0, heat, fmt.Sprintf("%v classes", n))
	return p.save(g.img)
}
