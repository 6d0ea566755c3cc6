package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ChizhovVadim/tfplus/internal/ml"
)

func init() {
	runners.MustRegister("basic", func(p Params) (Runner, error) {
		return NewBasicRunner(p)
	})
}

// BasicRunner runs the model on one batch and dispatches the outputs with
// "step" and "step_time" in milliseconds. Batch inputs are passed along
// under their own names.
type BasicRunner struct {
	*runnerBase
}

func NewBasicRunner(p Params) (*BasicRunner, error) {
	var base, err = newRunnerBase(p)
	if err != nil {
		return nil, err
	}
	return &BasicRunner{base}, nil
}

func (r *BasicRunner) Run(ctx context.Context, step int) error {
	if err := r.requireModel(); err != nil {
		return err
	}
	results, _, err := r.runBatch(ctx)
	if err != nil {
		return err
	}
	results["step"] = step
	return r.dispatch(results)
}

// runBatch pulls one batch and runs the model on it. It returns the batch
// size for weighting.
func (r *runnerBase) runBatch(ctx context.Context) (ml.Results, int, error) {
	batch, err := r.spec.Data.Next(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("runner %v: %w", r.spec.Name, err)
	}
	var start = time.Now()
	results, err := r.env.Model.Run(ctx, r.spec.Outputs, batch, r.spec.PhaseTrain)
	if err != nil {
		return nil, 0, fmt.Errorf("runner %v: %w", r.spec.Name, err)
	}
	results["step_time"] = float64(time.Since(start).Microseconds()) / 1000
	for name, value := range batch {
		if _, found := results[name]; !found {
			results[name] = value
		}
	}
	var size = 1
	if x, found := batch["x"]; found && x.Rank() > 0 {
		size = x.Dim(0)
	}
	return results, size, nil
}
