package options

import (
	"testing"

	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/stretchr/testify/require"
)

func TestSaverRoundTrip(t *testing.T) {
	var r = newTestRegistry(t)
	var saver = NewSaver(r)
	var folder = t.TempDir()

	var values = Values{
		"gpu":                     1,
		"learn_rate":              0.25,
		"bottleneck":              true,
		"restore_model":           nil,
		"layers":                  []int{2, 2},
		"imagenet:dataset_folder": "/data",
	}
	require.NoError(t, saver.Save(folder, values))

	loaded, err := saver.Load(folder)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Int("gpu"))
	require.Equal(t, 0.25, loaded.Float("learn_rate"))
	require.True(t, loaded.Bool("bottleneck"))
	require.False(t, loaded.Has("restore_model"))
	require.Equal(t, []int{2, 2}, loaded.Ints("layers"))
	require.Equal(t, "/data", loaded.String("imagenet:dataset_folder"))
}

func TestSaverLoadFromBytes(t *testing.T) {
	var saver = NewSaver(newTestRegistry(t))
	loaded, err := saver.LoadFrom(rawbytes.Provider([]byte(testYaml)))
	require.NoError(t, err)
	require.Equal(t, 0.05, loaded.Float("learn_rate"))
	require.Equal(t, []int{1, 2, 3}, loaded.Ints("layers"))
	require.Equal(t, "extra", loaded["custom"])
}

func TestSaverLoadMissing(t *testing.T) {
	var saver = NewSaver(nil)
	_, err := saver.Load(t.TempDir())
	require.Error(t, err)
}

var testYaml = `
learn_rate: 0.05
layers:
    - 1
    - 2
    - 3
custom: extra
`
