package runner

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ChizhovVadim/tfplus/internal/factory"
	"github.com/ChizhovVadim/tfplus/internal/listener"
	"github.com/ChizhovVadim/tfplus/internal/ml"
	"github.com/ChizhovVadim/tfplus/internal/nn"
	"github.com/ChizhovVadim/tfplus/internal/options"
	"github.com/stretchr/testify/require"
)

// meanModel reports the mean of x as "loss" and counts train steps.
type meanModel struct {
	step int
	w    ml.Matrix
}

func (m *meanModel) Name() string   { return "mean" }
func (m *meanModel) Build() error   { m.w = ml.NewMatrix(1, 1); return nil }
func (m *meanModel) Folder() string { return "" }

func (m *meanModel) Run(ctx context.Context, outputs []string, batch ml.Batch, phaseTrain bool) (ml.Results, error) {
	var x = batch["x"]
	var sum float64
	for _, v := range x.Data {
		sum += float64(v)
	}
	var results = ml.Results{}
	for _, name := range outputs {
		switch name {
		case "loss":
			results["loss"] = sum / float64(x.Len())
		case "train_step":
			if phaseTrain {
				m.step++
				results["train_step"] = m.step
			}
		}
	}
	return results, nil
}

func (m *meanModel) SaveVarDict() map[string]*ml.Matrix {
	return map[string]*ml.Matrix{"w": &m.w}
}
func (m *meanModel) GlobalStep() int                  { return m.step }
func (m *meanModel) SetGlobalStep(step int)           { m.step = step }
func (m *meanModel) Options() (options.Values, error) { return options.Values{}, nil }

// sliceSource yields the given batches and then io.EOF.
type sliceSource struct {
	batches []ml.Batch
}

func (s *sliceSource) Next(ctx context.Context) (ml.Batch, error) {
	if len(s.batches) == 0 {
		return nil, io.EOF
	}
	var b = s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

func xBatch(values ...float32) ml.Batch {
	return ml.Batch{"x": &ml.Tensor{Shape: []int{len(values)}, Data: values}}
}

type recorder struct {
	results []ml.Results
}

func (r *recorder) Listen(results ml.Results) error {
	r.results = append(r.results, results)
	return nil
}

type outputs struct {
	csv   map[string]*listener.CSVOutput
	plots map[string]listener.Listener
}

func (o *outputs) CSVOutput(name string) (*listener.CSVOutput, bool) {
	var out, found = o.csv[name]
	return out, found
}

func (o *outputs) PlotOutput(name string) (listener.Listener, bool) {
	var p, found = o.plots[name]
	return p, found
}

func TestBuilderErrors(t *testing.T) {
	var env = Env{Model: &meanModel{}, Outputs: &outputs{}}
	_, err := New("basic").SetInterval(0).Build(env)
	require.Error(t, err)
	_, err = New("sometimes").Build(env)
	require.ErrorIs(t, err, factory.ErrNotRegistered)
	_, err = New("basic").AddCSVListener("Loss", "loss", "train").Build(env)
	require.Error(t, err)
	_, err = New("saver").Build(env)
	require.Error(t, err)
}

func TestBasicRunnerDispatch(t *testing.T) {
	var rec = &recorder{}
	var env = Env{Model: &meanModel{}, Outputs: &outputs{plots: map[string]listener.Listener{"Input": rec}}}
	r, err := New("basic").
		SetName("plotter").
		SetOutputs("loss").
		SetDataProvider(&sliceSource{batches: []ml.Batch{xBatch(1, 3)}}).
		AddPlotListener("Input", map[string]string{"x": "images"}).
		SetOffset(100).
		SetInterval(10).
		Build(env)
	require.NoError(t, err)
	require.Equal(t, "plotter", r.Name())
	require.Equal(t, 10, r.Interval())
	require.Equal(t, 100, r.Offset())

	require.NoError(t, r.Run(context.Background(), 110))
	require.Len(t, rec.results, 1)
	var got = rec.results[0]
	require.Equal(t, 110, got["step"])
	require.Equal(t, 2.0, got["loss"])
	require.Contains(t, got, "step_time")
	require.Contains(t, got, "images")
	require.NotContains(t, got, "x")

	err = r.Run(context.Background(), 120)
	require.ErrorIs(t, err, io.EOF)
}

func TestAverageRunnerWeightsByBatchSize(t *testing.T) {
	var folder = t.TempDir()
	var logs = listener.NewLogManager(folder)
	var out = &outputs{csv: map[string]*listener.CSVOutput{
		"Loss": listener.NewCSVOutput(logs, "Loss", []string{"train"}),
	}}
	var model = &meanModel{}
	var rec = &recorder{}
	out.plots = map[string]listener.Listener{"Debug": rec}

	r, err := New("average").
		SetName("train").
		SetOutputs("loss", "train_step").
		SetDataProvider(&sliceSource{batches: []ml.Batch{xBatch(1, 1), xBatch(4)}}).
		SetPhaseTrain(true).
		SetNumBatch(3).
		AddCSVListener("Loss", "loss", "train").
		AddPlotListener("Debug", nil).
		Build(Env{Model: model, Outputs: out})
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background(), 5))
	require.Equal(t, 2, model.GlobalStep())
	require.InDelta(t, 2.0, rec.results[0]["loss"].(float64), 1e-12)
	require.Equal(t, 2, rec.results[0]["train_step"])
	require.Equal(t, 5, rec.results[0]["step"])

	data, err := os.ReadFile(filepath.Join(folder, "loss.csv"))
	require.NoError(t, err)
	var lines = strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[1], "5,"))
	require.True(t, strings.HasSuffix(lines[1], ",2"))

	// Exhausted before the first batch.
	require.ErrorIs(t, r.Run(context.Background(), 6), io.EOF)
}

func TestSaverRunner(t *testing.T) {
	var folder = t.TempDir()
	var model = &meanModel{step: 42}
	require.NoError(t, model.Build())
	r, err := New("saver").SetInterval(100).Build(Env{Model: model, Saver: nn.NewSaver(model, folder, nil)})
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background(), 100))
	require.FileExists(t, filepath.Join(folder, "model.ckpt-42"))
}

// roundCounter counts y_gt rows per Listen and keeps the total of each round.
type roundCounter struct {
	examples int
	rounds   []int
}

func (c *roundCounter) Listen(results ml.Results) error {
	y, err := results.Tensor("y_gt")
	if err != nil {
		return err
	}
	c.examples += y.Dim(0)
	return nil
}

func (c *roundCounter) Stage() error {
	c.rounds = append(c.rounds, c.examples)
	c.examples = 0
	return nil
}

func labelledBatch(x0, x1 float32, c0, c1 int) ml.Batch {
	var y, _ = ml.OneHot([]int{c0, c1}, 3)
	return ml.Batch{
		"x":    &ml.Tensor{Shape: []int{2}, Data: []float32{x0, x1}},
		"y_gt": y,
	}
}

func TestAverageRunnerFeedsEveryBatchToAccumulators(t *testing.T) {
	var counter = &roundCounter{}
	var rec = &recorder{}
	var out = &outputs{plots: map[string]listener.Listener{"Confusion": counter, "Debug": rec}}
	r, err := New("average").
		SetName("valid").
		SetOutputs("loss").
		SetDataProvider(&sliceSource{batches: []ml.Batch{
			labelledBatch(1, 1, 0, 1),
			labelledBatch(2, 2, 1, 2),
			labelledBatch(3, 3, 2, 0),
		}}).
		SetNumBatch(3).
		AddPlotListener("Confusion", nil).
		AddPlotListener("Debug", nil).
		Build(Env{Model: &meanModel{}, Outputs: out})
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background(), 7))
	require.Equal(t, []int{6}, counter.rounds)
	require.Len(t, rec.results, 1)
	require.InDelta(t, 2.0, rec.results[0]["loss"].(float64), 1e-12)
	require.Equal(t, 7, rec.results[0]["step"])
}
