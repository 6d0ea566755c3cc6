// Package runner implements the periodic jobs of an experiment: running the
// model on batches, averaging metrics and saving checkpoints.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ChizhovVadim/tfplus/internal/data"
	"github.com/ChizhovVadim/tfplus/internal/factory"
	"github.com/ChizhovVadim/tfplus/internal/listener"
	"github.com/ChizhovVadim/tfplus/internal/ml"
	"github.com/ChizhovVadim/tfplus/internal/nn"
)

type Runner interface {
	Name() string
	Interval() int
	Offset() int
	Run(ctx context.Context, step int) error
}

// Outputs resolves the named outputs an experiment declared.
type Outputs interface {
	CSVOutput(name string) (*listener.CSVOutput, bool)
	PlotOutput(name string) (listener.Listener, bool)
}

// Env is what an experiment provides to the runners it builds.
type Env struct {
	Model   nn.Model
	Saver   *nn.Saver
	Outputs Outputs
	Logger  *slog.Logger
}

type listenerKind int

const (
	csvListener listenerKind = iota
	cmdListener
	plotListener
)

type listenerSpec struct {
	kind    listenerKind
	name    string
	key     string
	label   string
	mapping map[string]string
}

// Spec is the configuration collected by a Builder.
type Spec struct {
	Name       string
	Outputs    []string
	Data       data.BatchSource
	PhaseTrain bool
	NumBatch   int
	Interval   int
	Offset     int
	listeners  []listenerSpec
}

type Params struct {
	Spec
	Env Env
}

var runners = factory.New[Params, Runner]("runner")

func Factory() *factory.Factory[Params, Runner] {
	return runners
}

// Builder collects a runner configuration, e.g.
//
//	runner.New("average").SetName("train").SetOutputs("loss", "train_step").
//		AddCSVListener("Loss", "loss", "train").SetInterval(1)
type Builder struct {
	kind string
	spec Spec
}

func New(kind string) *Builder {
	return &Builder{
		kind: kind,
		spec: Spec{Name: kind, NumBatch: 1, Interval: 1},
	}
}

func (b *Builder) Name() string { return b.spec.Name }

func (b *Builder) SetName(name string) *Builder {
	b.spec.Name = name
	return b
}

func (b *Builder) SetOutputs(outputs ...string) *Builder {
	b.spec.Outputs = outputs
	return b
}

func (b *Builder) SetDataProvider(source data.BatchSource) *Builder {
	b.spec.Data = source
	return b
}

func (b *Builder) SetPhaseTrain(phaseTrain bool) *Builder {
	b.spec.PhaseTrain = phaseTrain
	return b
}

func (b *Builder) SetNumBatch(numBatch int) *Builder {
	b.spec.NumBatch = numBatch
	return b
}

func (b *Builder) SetInterval(interval int) *Builder {
	b.spec.Interval = interval
	return b
}

func (b *Builder) SetOffset(offset int) *Builder {
	b.spec.Offset = offset
	return b
}

// AddCSVListener writes results[key] into the label column of the CSV
// output name.
func (b *Builder) AddCSVListener(name, key, label string) *Builder {
	b.spec.listeners = append(b.spec.listeners, listenerSpec{kind: csvListener, name: name, key: key, label: label})
	return b
}

func (b *Builder) AddCmdListener(name, key string) *Builder {
	b.spec.listeners = append(b.spec.listeners, listenerSpec{kind: cmdListener, name: name, key: key})
	return b
}

// AddPlotListener sends results renamed by mapping to the plot output name.
func (b *Builder) AddPlotListener(name string, mapping map[string]string) *Builder {
	b.spec.listeners = append(b.spec.listeners, listenerSpec{kind: plotListener, name: name, mapping: mapping})
	return b
}

// Build creates the runner registered under the builder kind.
func (b *Builder) Build(env Env) (Runner, error) {
	if b.spec.Interval <= 0 {
		return nil, fmt.Errorf("runner %v: interval must be positive", b.spec.Name)
	}
	if b.spec.Offset < 0 || b.spec.NumBatch <= 0 {
		return nil, fmt.Errorf("runner %v: bad offset %v or num_batch %v", b.spec.Name, b.spec.Offset, b.spec.NumBatch)
	}
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	return runners.Create(b.kind, Params{Spec: b.spec, Env: env})
}

// runnerBase holds the schedule and resolved listeners.
type runnerBase struct {
	spec      Spec
	env       Env
	logger    *slog.Logger
	listeners []listener.Listener
}

func newRunnerBase(p Params) (*runnerBase, error) {
	var r = &runnerBase{
		spec:   p.Spec,
		env:    p.Env,
		logger: p.Env.Logger.With("runner", p.Name),
	}
	for _, l := range p.listeners {
		switch l.kind {
		case csvListener:
			if p.Env.Outputs == nil {
				return nil, fmt.Errorf("runner %v: no outputs for csv %v", p.Name, l.name)
			}
			var out, found = p.Env.Outputs.CSVOutput(l.name)
			if !found {
				return nil, fmt.Errorf("runner %v: csv output %q is not declared", p.Name, l.name)
			}
			csv, err := listener.NewCSVListener(out, l.key, l.label)
			if err != nil {
				return nil, err
			}
			r.listeners = append(r.listeners, csv)
		case cmdListener:
			r.listeners = append(r.listeners, &listener.CmdListener{Name: l.name, Key: l.key, Logger: r.logger})
		case plotListener:
			if p.Env.Outputs == nil {
				return nil, fmt.Errorf("runner %v: no outputs for plot %v", p.Name, l.name)
			}
			var plot, found = p.Env.Outputs.PlotOutput(l.name)
			if !found {
				return nil, fmt.Errorf("runner %v: plot output %q is not declared", p.Name, l.name)
			}
			r.listeners = append(r.listeners, &listener.AdapterListener{Mapping: l.mapping, Listener: plot})
		}
	}
	return r, nil
}

func (r *runnerBase) Name() string  { return r.spec.Name }
func (r *runnerBase) Interval() int { return r.spec.Interval }
func (r *runnerBase) Offset() int   { return r.spec.Offset }

func (r *runnerBase) requireModel() error {
	if r.env.Model == nil {
		return fmt.Errorf("runner %v: no model", r.spec.Name)
	}
	if r.spec.Data == nil {
		return fmt.Errorf("runner %v: no data provider", r.spec.Name)
	}
	return nil
}

// listenBatch feeds one batch of a round to the accumulating listeners.
func (r *runnerBase) listenBatch(results ml.Results) error {
	for _, l := range r.listeners {
		if !listener.Accumulating(l) {
			continue
		}
		if err := l.Listen(results); err != nil {
			return fmt.Errorf("runner %v: %w", r.spec.Name, err)
		}
	}
	return nil
}

// closeRound sends the round summary to the other listeners and stages the
// accumulating ones.
func (r *runnerBase) closeRound(summary ml.Results) error {
	for _, l := range r.listeners {
		var err error
		if listener.Accumulating(l) {
			err = listener.Stage(l)
		} else {
			err = l.Listen(summary)
		}
		if err != nil {
			return fmt.Errorf("runner %v: %w", r.spec.Name, err)
		}
	}
	return nil
}

func (r *runnerBase) dispatch(results ml.Results) error {
	for _, l := range r.listeners {
		if err := l.Listen(results); err != nil {
			return fmt.Errorf("runner %v: %w", r.spec.Name, err)
		}
		if err := listener.Stage(l); err != nil {
			return fmt.Errorf("runner %v: %w", r.spec.Name, err)
		}
	}
	return nil
}
