package plot

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ChizhovVadim/tfplus/internal/listener"
	"github.com/ChizhovVadim/tfplus/internal/ml"
	"github.com/stretchr/testify/require"
)

func decodeSize(t *testing.T, path string) (int, int) {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func ramp(shape ...int) *ml.Tensor {
	var x = ml.NewTensor(shape...)
	for i := range x.Data {
		x.Data[i] = float32(i%7) / 7
	}
	return x
}

func TestThumbnailPlotter(t *testing.T) {
	var logs = listener.NewLogManager(t.TempDir())
	p, err := Create("thumbnail", Config{Name: "Input", Logs: logs, MaxNumCol: 3, CellSize: 8})
	require.NoError(t, err)

	require.NoError(t, p.Listen(ml.Results{"images": ramp(5, 4, 4, 3)}))
	w, h := decodeSize(t, filepath.Join(logs.Folder(), "input.png"))
	require.Equal(t, 3*(8+cellMargin), w)
	require.Equal(t, 2*(8+captionHeight+cellMargin), h)

	entries, err := logs.Entries()
	require.NoError(t, err)
	require.Equal(t, []listener.CatalogEntry{{Filename: "input.png", Type: listener.TypeImage, Name: "Input"}}, entries)

	require.NoError(t, p.Listen(ml.Results{"images": ramp(2, 4, 4)}))
	require.Error(t, p.Listen(ml.Results{"images": ramp(2, 4)}))
	require.Error(t, p.Listen(ml.Results{"images": ramp(2, 4, 4, 2)}))
	require.Error(t, p.Listen(ml.Results{}))
}

func TestVideoPlotterAxes(t *testing.T) {
	var logs = listener.NewLogManager(t.TempDir())
	p, err := NewVideoPlotter(Config{Name: "Video", Logs: logs, MaxNumFrame: 4, CellSize: 8})
	require.NoError(t, err)
	require.NoError(t, p.Listen(ml.Results{"images": ramp(2, 12, 3, 3)}))
	w, h := decodeSize(t, filepath.Join(logs.Folder(), "video.png"))
	require.Equal(t, 4*(8+cellMargin), w)
	require.Equal(t, 2*(8+captionHeight+cellMargin), h)
	require.NoError(t, p.Listen(ml.Results{"images": ramp(1, 2, 3, 3, 3)}))

	last, err := NewVideoPlotter(Config{Name: "Last", Logs: logs, Axis: 3, MaxNumFrame: 2, CellSize: 8})
	require.NoError(t, err)
	require.NoError(t, last.Listen(ml.Results{"images": ramp(3, 3, 3, 5)}))
	w, h = decodeSize(t, filepath.Join(logs.Folder(), "last.png"))
	require.Equal(t, 2*(8+cellMargin), w)
	require.Equal(t, 3*(8+captionHeight+cellMargin), h)

	_, err = NewVideoPlotter(Config{Axis: 2})
	require.ErrorIs(t, err, ErrAxisNotSupported)
	_, err = Create("video", Config{Axis: 4})
	require.ErrorIs(t, err, ErrAxisNotSupported)
}

func TestLastAxisFrame(t *testing.T) {
	var x = ml.NewTensor(1, 2, 3)
	copy(x.Data, []float32{1, 2, 3, 4, 5, 6})
	require.Equal(t, []float32{2, 5}, lastAxisFrame(x, 1).Data)
}

func TestCalcRowCol(t *testing.T) {
	rows, cols, calc := calcRowCol(3, 5, 2)
	require.Equal(t, 9, rows)
	require.Equal(t, 2, cols)
	row, col := calc(1, 4)
	require.Equal(t, 5, row)
	require.Equal(t, 0, col)
}

func TestConfusionMatrixPlotter(t *testing.T) {
	var logs = listener.NewLogManager(t.TempDir())
	var p = NewConfusionMatrixPlotter(Config{Name: "Confusion", Logs: logs})
	yGT, err := ml.OneHot([]int{0, 1, 1, 2}, 3)
	require.NoError(t, err)
	yOut, err := ml.OneHot([]int{0, 1, 2, 2}, 3)
	require.NoError(t, err)

	require.NoError(t, p.Listen(ml.Results{"y_gt": yGT, "y_out": yOut}))
	require.NoError(t, p.Listen(ml.Results{"y_gt": yGT, "y_out": yOut}))
	require.Equal(t, [][]int{{2, 0, 0}, {0, 2, 2}, {0, 0, 2}}, p.Counts())

	require.NoError(t, listener.Stage(p))
	require.FileExists(t, filepath.Join(logs.Folder(), "confusion.png"))
	require.Empty(t, p.Counts())

	bad, err := ml.OneHot([]int{0}, 2)
	require.NoError(t, err)
	require.Error(t, p.Listen(ml.Results{"y_gt": yGT, "y_out": bad}))
}
