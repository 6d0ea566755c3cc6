// Package data supplies batches of (image, label) pairs to the training loop.
package data

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/ChizhovVadim/tfplus/internal/factory"
	"github.com/ChizhovVadim/tfplus/internal/ml"
	"github.com/ChizhovVadim/tfplus/internal/options"
)

const (
	SplitTrain = "train"
	SplitValid = "valid"
	SplitTest  = "test"

	ModeTrain = "train"
	ModeValid = "valid"
	ModeTest  = "test"
)

type DataProvider interface {
	Size() (int, error)
	GetBatchIdx(ctx context.Context, idx []int) (ml.Batch, error)
}

// BatchSource yields consecutive batches; io.EOF ends a non-cycling source.
type BatchSource interface {
	Next(ctx context.Context) (ml.Batch, error)
}

type Config struct {
	Split string
	// Folder overrides the dataset folder option when not empty.
	Folder string
	Mode   string
	// Options binds registry values, defaults are used when nil.
	Options     options.Values
	Concurrency int
	Logger      *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Split == "" {
		c.Split = SplitTrain
	}
	if c.Mode == "" {
		c.Mode = c.Split
	}
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.NumCPU()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

var providers = factory.New[Config, DataProvider]("data provider")

func Factory() *factory.Factory[Config, DataProvider] {
	return providers
}

// Create builds a registered provider, e.g. Create("imagenet", Config{Split: "valid"}).
func Create(name string, cfg Config) (DataProvider, error) {
	return providers.Create(name, cfg)
}
