package runner

import (
	"context"
	"fmt"
)

func init() {
	runners.MustRegister("saver", func(p Params) (Runner, error) {
		return NewSaverRunner(p)
	})
}

// SaverRunner writes a model checkpoint.
type SaverRunner struct {
	*runnerBase
}

func NewSaverRunner(p Params) (*SaverRunner, error) {
	if p.Env.Saver == nil {
		return nil, fmt.Errorf("runner %v: no saver, set the model folder", p.Name)
	}
	var base, err = newRunnerBase(p)
	if err != nil {
		return nil, err
	}
	return &SaverRunner{base}, nil
}

func (r *SaverRunner) Run(ctx context.Context, step int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var globalStep = step
	if r.env.Model != nil {
		globalStep = r.env.Model.GlobalStep()
	}
	_, err := r.env.Saver.Save(globalStep)
	return err
}
