// Package plot renders result tensors into PNG files of a logs folder.
package plot

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/ChizhovVadim/tfplus/internal/factory"
	"github.com/ChizhovVadim/tfplus/internal/listener"
	"github.com/ChizhovVadim/tfplus/internal/ml"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var ErrAxisNotSupported = errors.New("axis not supported")

type Config struct {
	Name string
	// Filename defaults to the lower-cased name with a .png extension.
	Filename    string
	Logs        *listener.LogManager
	MaxNumCol   int
	MaxNumFrame int
	// Axis holds the frames of a video: 1 for [B,T,H,W(,3)], 3 for [B,H,W,T].
	Axis int
	// CellSize is the side of one rendered tile in pixels.
	CellSize int
}

func (c Config) withDefaults() Config {
	if c.Filename == "" {
		c.Filename = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c.Name)), " ", "_") + ".png"
	}
	if c.MaxNumCol <= 0 {
		c.MaxNumCol = 9
	}
	if c.MaxNumFrame <= 0 {
		c.MaxNumFrame = 9
	}
	if c.Axis == 0 {
		c.Axis = 1
	}
	if c.CellSize <= 0 {
		c.CellSize = 64
	}
	return c
}

var plotters = factory.New[Config, listener.Listener]("plotter")

func init() {
	plotters.MustRegister("thumbnail", func(cfg Config) (listener.Listener, error) {
		return NewThumbnailPlotter(cfg), nil
	})
	plotters.MustRegister("video", func(cfg Config) (listener.Listener, error) {
		return NewVideoPlotter(cfg)
	})
	plotters.MustRegister("confusion", func(cfg Config) (listener.Listener, error) {
		return NewConfusionMatrixPlotter(cfg), nil
	})
}

func Factory() *factory.Factory[Config, listener.Listener] {
	return plotters
}

func Create(kind string, cfg Config) (listener.Listener, error) {
	return plotters.Create(kind, cfg)
}

// plotterBase writes the PNG and registers it in the catalog.
type plotterBase struct {
	cfg Config
}

func (p *plotterBase) Filename() string { return p.cfg.Filename }

func (p *plotterBase) path() string {
	if p.cfg.Logs == nil {
		return p.cfg.Filename
	}
	return filepath.Join(p.cfg.Logs.Folder(), p.cfg.Filename)
}

func (p *plotterBase) save(img image.Image) error {
	var path = p.path()
	err := os.MkdirAll(filepath.Dir(path), os.ModePerm)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if p.cfg.Logs == nil {
		return nil
	}
	return p.cfg.Logs.Register(p.cfg.Filename, listener.TypeImage, p.cfg.Name)
}

const (
	captionHeight = 14
	cellMargin    = 2
)

// grid is a white canvas of captioned square tiles.
type grid struct {
	img  *image.RGBA
	cell int
}

func newGrid(rows, cols, cell int) *grid {
	var w = cols * (cell + cellMargin)
	var h = rows * (cell + captionHeight + cellMargin)
	var img = image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return &grid{img: img, cell: cell}
}

func (g *grid) put(row, col int, tile image.Image, caption string) {
	var x = col * (g.cell + cellMargin)
	var y = row * (g.cell + captionHeight + cellMargin)
	var dst = image.Rect(x, y+captionHeight, x+g.cell, y+captionHeight+g.cell)
	draw.NearestNeighbor.Scale(g.img, dst, tile, tile.Bounds(), draw.Src, nil)
	if caption != "" {
		var d = font.Drawer{
			Dst:  g.img,
			Src:  image.Black,
			Face: basicfont.Face7x13,
			Dot:  fixed.P(x, y+captionHeight-3),
		}
		d.DrawString(caption)
	}
}

// tileImage renders a [H,W], [H,W,1] or [H,W,3] tensor. Gray tiles are
// stretched to their own range, colour tiles are clipped to [0, 1].
func tileImage(t *ml.Tensor) (image.Image, string, error) {
	var height, width, channels = t.Dim(0), t.Dim(1), 1
	switch {
	case t.Rank() == 2:
	case t.Rank() == 3 && (t.Shape[2] == 1 || t.Shape[2] == 3):
		channels = t.Shape[2]
	default:
		return nil, "", fmt.Errorf("plot: image shape %v is not [H,W] or [H,W,C]", t.Shape)
	}
	var lo, hi = t.MinMax()
	var caption = fmt.Sprintf("[%.2g, %.2g]", lo, hi)
	if channels == 1 {
		var img = image.NewGray(image.Rect(0, 0, width, height))
		var scale float32
		if hi > lo {
			scale = 1 / (hi - lo)
		}
		for i, v := range t.Data {
			img.Pix[i] = uint8(255*(v-lo)*scale + 0.5)
		}
		return img, caption, nil
	}
	var img = image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < height*width; i++ {
		img.Set(i%width, i/width, color.RGBA{
			R: unit8(t.Data[3*i]),
			G: unit8(t.Data[3*i+1]),
			B: unit8(t.Data[3*i+2]),
			A: 255,
		})
	}
	return img, caption, nil
}

func unit8(v float32) uint8 {
	return uint8(255*ml.Clamp(v, 0, 1) + 0.5)
}

// calcRowCol lays out numEx examples of numItems tiles each with at most
// maxNumCol columns; it returns the grid size and the cell of item j of
// example i.
func calcRowCol(numEx, numItems, maxNumCol int) (int, int, func(i, j int) (int, int)) {
	if numItems == 1 {
		var cols = min(numEx, maxNumCol)
		var rows = (numEx + cols - 1) / cols
		return rows, cols, func(i, j int) (int, int) {
			return i / cols, i % cols
		}
	}
	var cols = min(numItems, maxNumCol)
	var rowsPerEx = (numItems + cols - 1) / cols
	return numEx * rowsPerEx, cols, func(i, j int) (int, int) {
		return i*rowsPerEx + j/cols, j % cols
	}
}
