package runner

import (
	"context"
	"errors"
	"io"

	"github.com/ChizhovVadim/tfplus/internal/ml"
)

func init() {
	runners.MustRegister("average", func(p Params) (Runner, error) {
		return NewAverageRunner(p)
	})
}

// AverageRunner runs NumBatch batches. Accumulating listeners see every
// batch and are staged once at the end of the round; the others get one
// summary where scalar outputs are averaged weighted by batch size and
// other outputs keep the last value.
type AverageRunner struct {
	*runnerBase
}

func NewAverageRunner(p Params) (*AverageRunner, error) {
	var base, err = newRunnerBase(p)
	if err != nil {
		return nil, err
	}
	return &AverageRunner{base}, nil
}

var notAveraged = map[string]bool{"step": true, "train_step": true}

func (r *AverageRunner) Run(ctx context.Context, step int) error {
	if err := r.requireModel(); err != nil {
		return err
	}
	var sums = make(map[string]float64)
	var total int
	var last ml.Results
	for i := 0; i < r.spec.NumBatch; i++ {
		results, size, err := r.runBatch(ctx)
		if err != nil {
			// A finite provider may run out before NumBatch.
			if errors.Is(err, io.EOF) && last != nil {
				break
			}
			return err
		}
		results["step"] = step
		if err := r.listenBatch(results); err != nil {
			return err
		}
		for key := range results {
			if notAveraged[key] {
				continue
			}
			if value, ok := results.Scalar(key); ok {
				sums[key] += value * float64(size)
			}
		}
		total += size
		last = results
	}

	var averaged = make(ml.Results, len(last))
	for key, value := range last {
		averaged[key] = value
	}
	for key, sum := range sums {
		averaged[key] = sum / float64(total)
	}
	averaged["step"] = step
	r.logger.Debug("averaged batches", "examples", total)
	return r.closeRound(averaged)
}
