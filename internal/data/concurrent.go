package data

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/ChizhovVadim/tfplus/internal/ml"
	"golang.org/x/sync/errgroup"
)

// ConcurrentProvider prefetches batches from a source into a bounded queue.
// The producer starts on the first Next.
type ConcurrentProvider struct {
	source BatchSource

	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
	queue  chan ml.Batch

	startOnce sync.Once
	waitOnce  sync.Once
	err       error
}

func NewConcurrentProvider(source BatchSource, maxQueueSize int) *ConcurrentProvider {
	if maxQueueSize <= 0 {
		maxQueueSize = 1
	}
	var ctx, cancel = context.WithCancel(context.Background())
	var g, gctx = errgroup.WithContext(ctx)
	return &ConcurrentProvider{
		source: source,
		ctx:    gctx,
		cancel: cancel,
		g:      g,
		queue:  make(chan ml.Batch, maxQueueSize),
	}
}

func (p *ConcurrentProvider) start() {
	p.startOnce.Do(func() {
		p.g.Go(func() error {
			defer close(p.queue)
			return p.produce(p.ctx)
		})
	})
}

func (p *ConcurrentProvider) produce(ctx context.Context) error {
	for {
		var batch, err = p.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p.queue <- batch:
		}
	}
}

func (p *ConcurrentProvider) wait() error {
	p.waitOnce.Do(func() {
		p.err = p.g.Wait()
	})
	return p.err
}

// Next returns the next prefetched batch. After the source is exhausted it
// returns io.EOF, or the error that stopped the producer.
func (p *ConcurrentProvider) Next(ctx context.Context) (ml.Batch, error) {
	p.start()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case batch, ok := <-p.queue:
		if ok {
			return batch, nil
		}
	}
	if err := p.wait(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// QueueLen is the number of prefetched batches waiting.
func (p *ConcurrentProvider) QueueLen() int {
	return len(p.queue)
}

// Close stops the producer. Next returns io.EOF afterwards.
func (p *ConcurrentProvider) Close() error {
	p.startOnce.Do(func() {
		close(p.queue)
	})
	p.cancel()
	var err = p.wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
