// Package experiment drives runners over a model and routes their results
// into the logs folder of a run.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ChizhovVadim/tfplus/internal/listener"
	"github.com/ChizhovVadim/tfplus/internal/logger"
	"github.com/ChizhovVadim/tfplus/internal/nn"
	"github.com/ChizhovVadim/tfplus/internal/plot"
	"github.com/ChizhovVadim/tfplus/internal/runner"
	"github.com/google/uuid"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// MetadataName is the description of a run written into its logs folder.
const MetadataName = "experiment.yaml"

type csvSpec struct {
	name   string
	labels []string
}

type plotSpec struct {
	name string
	kind string
	cfg  plot.Config
}

// Experiment collects a model, outputs and runners; Run executes them.
// Setter errors are kept and reported by Run.
type Experiment struct {
	name       string
	model      nn.Model
	logsFolder string
	localhost  string
	restore    string
	maxSteps   int
	logger     *slog.Logger
	csvSpecs   []csvSpec
	plotSpecs  []plotSpec
	builders   []*runner.Builder
	err        error

	logs        *listener.LogManager
	csvOutputs  map[string]*listener.CSVOutput
	plotOutputs map[string]listener.Listener
}

// Metadata is written to experiment.yaml at the start of Run.
type Metadata struct {
	ID        string   `koanf:"id"`
	RunID     string   `koanf:"run_id"`
	Name      string   `koanf:"name"`
	Model     string   `koanf:"model"`
	Folder    string   `koanf:"model_folder"`
	Runners   []string `koanf:"runners"`
	MaxSteps  int      `koanf:"max_steps"`
	StartStep int      `koanf:"start_step"`
	Started   string   `koanf:"started"`
}

func New(name string, log *slog.Logger) *Experiment {
	if log == nil {
		log = slog.Default()
	}
	return &Experiment{
		name:      name,
		localhost: "http://localhost",
		logger:    log.With("experiment", name),
	}
}

func (e *Experiment) fail(err error) *Experiment {
	if e.err == nil {
		e.err = err
	}
	return e
}

func (e *Experiment) SetModel(model nn.Model) *Experiment {
	e.model = model
	return e
}

func (e *Experiment) SetLogsFolder(folder string) *Experiment {
	e.logsFolder = folder
	return e
}

func (e *Experiment) SetLocalhost(localhost string) *Experiment {
	e.localhost = localhost
	return e
}

// RestoreLogs continues the logs of a previous run. An empty folder is a
// no-op.
func (e *Experiment) RestoreLogs(folder string) *Experiment {
	e.restore = folder
	return e
}

// SetMaxSteps stops Run after maxSteps loop iterations; 0 runs until the
// context is cancelled.
func (e *Experiment) SetMaxSteps(maxSteps int) *Experiment {
	e.maxSteps = maxSteps
	return e
}

func (e *Experiment) AddCSVOutput(name string, labels []string) *Experiment {
	if len(labels) == 0 {
		return e.fail(fmt.Errorf("csv output %v: no labels", name))
	}
	e.csvSpecs = append(e.csvSpecs, csvSpec{name: name, labels: labels})
	return e
}

// AddPlotOutput declares a plotter of kind ("thumbnail", "video",
// "confusion"). cfg.Name is set to name.
func (e *Experiment) AddPlotOutput(name, kind string, cfg plot.Config) *Experiment {
	cfg.Name = name
	e.plotSpecs = append(e.plotSpecs, plotSpec{name: name, kind: kind, cfg: cfg})
	return e
}

func (e *Experiment) AddRunner(b *runner.Builder) *Experiment {
	e.builders = append(e.builders, b)
	return e
}

// ID is the name of the logs folder.
func (e *Experiment) ID() string {
	return filepath.Base(e.logsFolder)
}

// DashboardURL points the dashboard at this run.
func (e *Experiment) DashboardURL() string {
	return fmt.Sprintf("%v/deep-dashboard?id=%v", e.localhost, e.ID())
}

func (e *Experiment) CSVOutput(name string) (*listener.CSVOutput, bool) {
	var out, found = e.csvOutputs[name]
	return out, found
}

func (e *Experiment) PlotOutput(name string) (listener.Listener, bool) {
	var p, found = e.plotOutputs[name]
	return p, found
}

// setup creates the outputs and runners.
func (e *Experiment) setup() ([]runner.Runner, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.model == nil {
		return nil, errors.New("experiment: no model")
	}
	if e.logsFolder == "" {
		return nil, errors.New("experiment: no logs folder")
	}
	err := os.MkdirAll(e.logsFolder, os.ModePerm)
	if err != nil {
		return nil, err
	}
	if e.restore != "" {
		if err := RestoreLogs(e.restore, e.logsFolder); err != nil {
			return nil, err
		}
	}
	e.logs = listener.NewLogManager(e.logsFolder)
	if _, err := os.Stat(filepath.Join(e.logsFolder, logger.RawLogName)); err == nil {
		if err := e.logs.Register(logger.RawLogName, listener.TypePlain, "Raw Logs"); err != nil {
			return nil, err
		}
	}

	e.csvOutputs = make(map[string]*listener.CSVOutput)
	for _, s := range e.csvSpecs {
		e.csvOutputs[s.name] = listener.NewCSVOutput(e.logs, s.name, s.labels)
	}
	e.plotOutputs = make(map[string]listener.Listener)
	for _, s := range e.plotSpecs {
		s.cfg.Logs = e.logs
		p, err := plot.Create(s.kind, s.cfg)
		if err != nil {
			return nil, fmt.Errorf("plot output %v: %w", s.name, err)
		}
		e.plotOutputs[s.name] = p
	}

	var env = runner.Env{
		Model:   e.model,
		Outputs: e,
		Logger:  e.logger,
	}
	if e.model.Folder() != "" {
		env.Saver = nn.NewSaver(e.model, e.model.Folder(), e.logger)
	}
	var runners []runner.Runner
	for _, b := range e.builders {
		r, err := b.Build(env)
		if err != nil {
			return nil, err
		}
		runners = append(runners, r)
	}
	if len(runners) == 0 {
		return nil, errors.New("experiment: no runners")
	}
	return runners, nil
}

func (e *Experiment) writeMetadata(runners []runner.Runner) error {
	var meta = Metadata{
		ID:        e.ID(),
		RunID:     uuid.NewString(),
		Name:      e.name,
		Model:     e.model.Name(),
		Folder:    e.model.Folder(),
		MaxSteps:  e.maxSteps,
		StartStep: e.model.GlobalStep(),
		Started:   time.Now().UTC().Format(time.RFC3339),
	}
	for _, r := range runners {
		meta.Runners = append(meta.Runners, r.Name())
	}
	var k = koanf.New(".")
	if err := k.Load(structs.Provider(meta, "koanf"), nil); err != nil {
		return err
	}
	out, err := k.Marshal(yaml.Parser())
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(e.logsFolder, MetadataName), out, 0644); err != nil {
		return err
	}
	e.logger.Info("run started", "id", meta.ID, "run_id", meta.RunID)
	return nil
}

// due reports whether r is scheduled at loop iteration iter.
func due(r runner.Runner, iter int) bool {
	return iter >= r.Offset() && (iter-r.Offset())%r.Interval() == 0
}

// Run schedules runners by loop iteration: at iteration i every runner with
// i >= offset and (i-offset) % interval == 0 runs, in order. Runners get the
// model's global step for reporting and checkpoint naming. A runner whose
// data is exhausted is dropped. Run stops after the max number of
// iterations, on cancellation or on the first runner error.
func (e *Experiment) Run(ctx context.Context) error {
	runners, err := e.setup()
	if err != nil {
		return err
	}
	if err := e.writeMetadata(runners); err != nil {
		return err
	}
	e.logger.Info("dashboard", "url", e.DashboardURL())

	var iter int
	for ; e.maxSteps <= 0 || iter < e.maxSteps; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var active = runners[:0]
		for _, r := range runners {
			if due(r, iter) {
				if err := r.Run(ctx, e.model.GlobalStep()); err != nil {
					if !errors.Is(err, io.EOF) {
						return err
					}
					e.logger.Info("runner finished", "runner", r.Name(), "iter", iter)
					continue
				}
			}
			active = append(active, r)
		}
		runners = active
		if len(runners) == 0 {
			e.logger.Info("all runners finished", "iter", iter, "step", e.model.GlobalStep())
			return nil
		}
	}
	e.logger.Info("max steps reached", "iter", iter, "step", e.model.GlobalStep())
	return nil
}
