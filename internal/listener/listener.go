// Package listener holds the sinks runners dispatch results to.
package listener

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ChizhovVadim/tfplus/internal/ml"
)

var ErrMissingResult = errors.New("missing result")

type Listener interface {
	Listen(results ml.Results) error
}

// Stager is implemented by listeners that accumulate results; Stage is
// called after every dispatch round.
type Stager interface {
	Stage() error
}

// Stage calls l.Stage when l implements Stager.
func Stage(l Listener) error {
	if s, ok := l.(Stager); ok {
		return s.Stage()
	}
	return nil
}

// Accumulating reports whether l collects results over several Listen
// calls until Stage. Adapters report on the listener they wrap.
func Accumulating(l Listener) bool {
	if a, ok := l.(*AdapterListener); ok {
		return Accumulating(a.Listener)
	}
	_, ok := l.(Stager)
	return ok
}

// AdapterListener renames result keys before forwarding, e.g.
// {"x_trans": "images"}. Keys without a mapping pass through.
type AdapterListener struct {
	Mapping  map[string]string
	Listener Listener
}

func (a *AdapterListener) Listen(results ml.Results) error {
	var renamed = make(ml.Results, len(results))
	for key, value := range results {
		if to, found := a.Mapping[key]; found {
			key = to
		}
		renamed[key] = value
	}
	return a.Listener.Listen(renamed)
}

func (a *AdapterListener) Stage() error {
	return Stage(a.Listener)
}

// CmdListener logs "<name>: <value>".
type CmdListener struct {
	Name   string
	Key    string
	Logger *slog.Logger
}

func (l *CmdListener) Listen(results ml.Results) error {
	var value, found = results[l.Key]
	if !found {
		return fmt.Errorf("%w %q for %v", ErrMissingResult, l.Key, l.Name)
	}
	var logger = l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var args []any
	if step, found := results["step"]; found && l.Key != "step" {
		args = append(args, "step", step)
	}
	logger.Info(fmt.Sprintf("%v: %v", l.Name, formatValue(value)), args...)
	return nil
}

func formatValue(value interface{}) string {
	switch x := value.(type) {
	case float64:
		return fmt.Sprintf("%.4f", x)
	case float32:
		return fmt.Sprintf("%.4f", x)
	case *ml.Tensor:
		return fmt.Sprintf("tensor%v", x.Shape)
	}
	return fmt.Sprint(value)
}
