package nn

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChizhovVadim/tfplus/internal/ml"
	"github.com/ChizhovVadim/tfplus/internal/options"
	"github.com/stretchr/testify/require"
)

func toyOptions() options.Values {
	return options.Values{
		"inp_size":    []int{2, 2},
		"inp_depth":   1,
		"num_classes": 2,
		"layers":      []int{8},
		"padding":     0,
		"learn_rate":  0.1,
		"momentum":    0.5,
		"wd":          0.0,
	}
}

// toyBatch has class 0 lit on the top row and class 1 on the bottom row,
// so horizontal flips keep the labels.
func toyBatch() ml.Batch {
	var x = ml.NewTensor(4, 2, 2, 1)
	copy(x.Data, []float32{
		1, 1, 0, 0,
		0.8, 0.9, 0, 0.1,
		0, 0, 1, 1,
		0.1, 0, 0.9, 0.8,
	})
	var y, _ = ml.OneHot([]int{0, 0, 1, 1}, 2)
	return ml.Batch{"x": x, "y_gt": y}
}

func newToyModel(t *testing.T, seed int64, opt options.Values) *ClassifierModel {
	var m = NewClassifierModel(Config{Options: opt, Seed: seed, Concurrency: 2})
	require.NoError(t, m.Build())
	return m
}

func TestGenID(t *testing.T) {
	var id = genID("res_net_ex", time.Date(2016, 3, 7, 9, 5, 1, 0, time.UTC))
	require.Equal(t, "res_net_ex-20160307090501", id)
}

func TestLearnRateStaircase(t *testing.T) {
	var opt = toyOptions()
	opt["steps_per_lr_decay"] = 10
	opt["learn_rate_decay"] = 0.5
	var m = newToyModel(t, 1, opt)
	require.InDelta(t, 0.1, m.LearnRate(0), 1e-12)
	require.InDelta(t, 0.1, m.LearnRate(9), 1e-12)
	require.InDelta(t, 0.05, m.LearnRate(10), 1e-12)
	require.InDelta(t, 0.025, m.LearnRate(25), 1e-12)
}

func TestClassifierTrains(t *testing.T) {
	var m = newToyModel(t, 1, toyOptions())
	var ctx = context.Background()
	var batch = toyBatch()

	first, err := m.Run(ctx, []string{"loss"}, batch, false)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		_, err := m.Run(ctx, []string{"loss", "train_step"}, batch, true)
		require.NoError(t, err)
	}
	require.Equal(t, 200, m.GlobalStep())

	last, err := m.Run(ctx, []string{"loss", "acc", "step", "learn_rate", "y_out"}, batch, false)
	require.NoError(t, err)
	require.Less(t, last["loss"].(float64), first["loss"].(float64))
	require.Equal(t, 1.0, last["acc"])
	require.Equal(t, 200, last["step"])
	require.InDelta(t, 0.1, last["learn_rate"].(float64), 1e-12)
	yOut, err := last.Tensor("y_out")
	require.NoError(t, err)
	require.Equal(t, []int{4, 2}, yOut.Shape)
	require.InDelta(t, 1.0, yOut.Data[0]+yOut.Data[1], 1e-5)
}

func TestClassifierEvalDoesNotTrain(t *testing.T) {
	var m = newToyModel(t, 1, toyOptions())
	var before = m.SaveVarDict()["mlp/layer_1/w"].Data[0]
	results, err := m.Run(context.Background(), []string{"loss", "train_step"}, toyBatch(), false)
	require.NoError(t, err)
	require.NotContains(t, results, "train_step")
	require.Equal(t, 0, m.GlobalStep())
	require.Equal(t, before, m.SaveVarDict()["mlp/layer_1/w"].Data[0])
}

func TestClassifierErrors(t *testing.T) {
	var m = newToyModel(t, 1, toyOptions())
	var ctx = context.Background()
	_, err := m.Run(ctx, []string{"logits"}, toyBatch(), false)
	require.ErrorIs(t, err, ErrUnknownOutput)

	_, err = m.Run(ctx, []string{"loss"}, ml.Batch{"x": ml.NewTensor(1, 3, 3, 1)}, false)
	require.Error(t, err)

	_, err = m.Run(ctx, []string{"acc"}, ml.Batch{"x": ml.NewTensor(1, 2, 2, 1)}, false)
	require.Error(t, err)

	results, err := m.Run(ctx, []string{"y_out"}, ml.Batch{"x": ml.NewTensor(3, 2, 2, 1)}, false)
	require.NoError(t, err)
	require.Contains(t, results, "y_out")

	var unbuilt = NewClassifierModel(Config{Options: toyOptions()})
	_, err = unbuilt.Run(ctx, []string{"loss"}, toyBatch(), false)
	require.Error(t, err)
	var opt = toyOptions()
	opt["padding"] = -1
	require.Error(t, NewClassifierModel(Config{Options: opt}).Build())
}

func TestClassifierFromFactory(t *testing.T) {
	m, err := Create(ClassifierName, Config{Name: "res_net_ex", Options: toyOptions()})
	require.NoError(t, err)
	require.Equal(t, "res_net_ex", m.Name())
	require.NoError(t, m.Build())
	require.Len(t, m.SaveVarDict(), 4)

	var c = m.(*ClassifierModel)
	require.Equal(t, -1, c.GPU())
	c.SetGPU(0)
	require.Equal(t, 0, c.GPU())
}

func TestRandomTransform(t *testing.T) {
	var x = ml.NewTensor(1, 2, 3, 1)
	copy(x.Data, []float32{1, 2, 3, 4, 5, 6})
	var rnd = rand.New(rand.NewSource(1))

	var same = ImageRandomTransform{}
	y, err := same.Apply(rnd, x)
	require.NoError(t, err)
	require.Equal(t, x.Data, y.Data)
	y.Data[0] = 9
	require.Equal(t, float32(1), x.Data[0])

	_, err = (&ImageRandomTransform{Padding: -1}).Apply(rnd, x)
	require.Error(t, err)

	var seen = map[float32]bool{}
	var flip = ImageRandomTransform{RndHFlip: true}
	for i := 0; i < 20; i++ {
		y, err := flip.Apply(rnd, x)
		require.NoError(t, err)
		seen[y.Data[0]] = true
		if y.Data[0] == 3 {
			require.Equal(t, []float32{3, 2, 1, 6, 5, 4}, y.Data)
		}
	}
	require.True(t, seen[1] && seen[3])

	var pad = ImageRandomTransform{Padding: 1}
	for i := 0; i < 20; i++ {
		y, err := pad.Apply(rnd, x)
		require.NoError(t, err)
		for _, v := range y.Data {
			require.True(t, v >= 0 && v <= 6)
		}
	}

	_, err = same.Apply(rnd, ml.NewTensor(2, 2))
	require.Error(t, err)
}

func TestSaverRoundTrip(t *testing.T) {
	var folder = t.TempDir()
	var m = newToyModel(t, 1, toyOptions())
	for i := 0; i < 3; i++ {
		_, err := m.Run(context.Background(), []string{"train_step"}, toyBatch(), true)
		require.NoError(t, err)
	}
	var saver = NewSaver(m, folder, nil)
	path, err := saver.Save(m.GlobalStep())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(folder, "model.ckpt-3"), path)
	require.FileExists(t, filepath.Join(folder, options.OptionsFileName))

	var restored = newToyModel(t, 2, toyOptions())
	require.NoError(t, RestoreWeightsFrom(restored, folder))
	require.Equal(t, 3, restored.GlobalStep())
	var want, got = m.SaveVarDict(), restored.SaveVarDict()
	for name, v := range want {
		for i, x := range v.Data {
			require.Equal(t, float64(float32(x)), got[name].Data[i], name)
		}
	}
}

func TestSaverRejectsShapeMismatch(t *testing.T) {
	var folder = t.TempDir()
	var m = newToyModel(t, 1, toyOptions())
	_, err := NewSaver(m, folder, nil).Save(0)
	require.NoError(t, err)

	var opt = toyOptions()
	opt["layers"] = []int{4}
	var other = newToyModel(t, 1, opt)
	require.Error(t, RestoreWeightsFrom(other, folder))

	require.NoError(t, os.WriteFile(filepath.Join(folder, "model.ckpt-9"), []byte("XX\x01\x00"), 0644))
	require.Error(t, RestoreWeightsFrom(m, folder))
}

func TestRestoreRejectsOversizedLengths(t *testing.T) {
	var folder = t.TempDir()
	var header = []byte{'T', 'F', 1, 0, 1, 0, 0, 0}

	// Name length far beyond the file.
	var path = filepath.Join(folder, "name")
	require.NoError(t, os.WriteFile(path, append(header, 0xff, 0xff, 0xff, 0x7f), 0644))
	require.ErrorContains(t, Restore(path, map[string]*ml.Matrix{}), "exceeds file size")

	// 65535x65535 values with no data behind them.
	var shape = append(append([]byte(nil), header...), 1, 0, 0, 0, 'w')
	shape = append(shape, 2, 0, 0, 0, 0xff, 0xff, 0, 0, 0xff, 0xff, 0, 0)
	path = filepath.Join(folder, "shape")
	require.NoError(t, os.WriteFile(path, shape, 0644))
	require.ErrorContains(t, Restore(path, map[string]*ml.Matrix{}), "exceeds file size")
}

func TestSaverKeepsNewest(t *testing.T) {
	var folder = t.TempDir()
	var m = newToyModel(t, 1, toyOptions())
	var saver = NewSaver(m, folder, nil)
	saver.MaxToKeep = 2
	for step := 1; step <= 4; step++ {
		_, err := saver.Save(step * 10)
		require.NoError(t, err)
	}
	steps, err := checkpointSteps(folder)
	require.NoError(t, err)
	require.Equal(t, []int{30, 40}, steps)

	_, _, err = LatestCheckpoint(t.TempDir())
	require.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestRestoreOptionsFrom(t *testing.T) {
	var folder = t.TempDir()
	var opt = toyOptions()
	opt["learn_rate"] = 0.5
	var saved = NewClassifierModel(Config{Options: opt})
	saved.SetFolder(folder)
	require.NoError(t, saved.SaveOptions())

	var m = NewClassifierModel(Config{Options: toyOptions()})
	require.NoError(t, m.RestoreOptionsFrom(folder))
	value, err := m.GetOption("learn_rate")
	require.NoError(t, err)
	require.Equal(t, 0.5, value)
	require.NoError(t, m.RestoreOptionsFrom(""))
}
