// Package nn holds the model base, the dense classifier and the checkpoint
// saver.
package nn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/ChizhovVadim/tfplus/internal/factory"
	"github.com/ChizhovVadim/tfplus/internal/ml"
	"github.com/ChizhovVadim/tfplus/internal/options"
)

var ErrUnknownOutput = errors.New("unknown output")

type Model interface {
	Name() string
	Build() error
	// Run evaluates outputs on a batch. Requesting "train_step" with
	// phaseTrain set performs one optimizer step.
	Run(ctx context.Context, outputs []string, batch ml.Batch, phaseTrain bool) (ml.Results, error)
	SaveVarDict() map[string]*ml.Matrix
	GlobalStep() int
	SetGlobalStep(step int)
	Folder() string
	Options() (options.Values, error)
}

type Config struct {
	Name    string
	Options options.Values
	Logger  *slog.Logger
	Seed    int64
	// Concurrency is the number of thread copies used by Run.
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.NumCPU()
	}
	return c
}

var models = factory.New[Config, Model]("model")

func Factory() *factory.Factory[Config, Model] {
	return models
}

func Create(name string, cfg Config) (Model, error) {
	return models.Create(name, cfg)
}

// GenID returns "<name>-<yyyymmddhhmmss>".
func GenID(name string) string {
	return genID(name, time.Now())
}

func genID(name string, t time.Time) string {
	return name + "-" + t.Format("20060102150405")
}

// ModelBase carries what every model shares: options, output folder,
// device, logger and global step.
type ModelBase struct {
	options.OptionBase
	name       string
	folder     string
	gpu        int
	logger     *slog.Logger
	globalStep int
}

func (m *ModelBase) InitBase(name string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	m.name = name
	m.gpu = -1
	m.logger = logger.With("model", name)
}

func (m *ModelBase) Name() string            { return m.name }
func (m *ModelBase) Folder() string          { return m.folder }
func (m *ModelBase) SetFolder(folder string) { m.folder = folder }
func (m *ModelBase) GPU() int                { return m.gpu }

// SetGPU records the requested device. Computation always runs on the CPU,
// a non-negative value is only logged.
func (m *ModelBase) SetGPU(gpu int) {
	m.gpu = gpu
	if gpu >= 0 {
		m.logger.Warn("gpu requested, running on cpu", "gpu", gpu)
	}
}

func (m *ModelBase) Logger() *slog.Logger { return m.logger }
func (m *ModelBase) GlobalStep() int      { return m.globalStep }
func (m *ModelBase) SetGlobalStep(step int) {
	m.globalStep = step
}

// RestoreOptionsFrom overrides options with the ones saved in folder. An
// empty folder is a no-op.
func (m *ModelBase) RestoreOptionsFrom(folder string) error {
	if folder == "" {
		return nil
	}
	var saved, err = options.NewSaver(nil).Load(folder)
	if err != nil {
		return fmt.Errorf("restore options of %v: %w", m.name, err)
	}
	current, err := m.Options()
	if err != nil {
		return err
	}
	var restored = current.Merge(nil)
	for _, key := range m.RegisteredOptions() {
		if value, found := saved[key]; found {
			restored[key] = value
		}
	}
	m.SetOptions(restored)
	m.logger.Info("restored options", "folder", folder)
	return nil
}

// SaveOptions writes the resolved options into the model folder.
func (m *ModelBase) SaveOptions() error {
	if m.folder == "" {
		return nil
	}
	var values, err = m.Options()
	if err != nil {
		return err
	}
	return options.NewSaver(nil).Save(m.folder, values)
}

// AddPrefixTo copies vars into dst under "<prefix>/<name>".
func AddPrefixTo(prefix string, vars, dst map[string]*ml.Matrix) {
	for name, v := range vars {
		dst[prefix+"/"+name] = v
	}
}

// RestoreWeightsFrom loads the latest checkpoint of folder into m and sets
// its global step. An empty folder is a no-op.
func RestoreWeightsFrom(m Model, folder string) error {
	if folder == "" {
		return nil
	}
	path, step, err := LatestCheckpoint(folder)
	if err != nil {
		return err
	}
	if err := Restore(path, m.SaveVarDict()); err != nil {
		return err
	}
	m.SetGlobalStep(step)
	return nil
}
