package data

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"

	"github.com/ChizhovVadim/tfplus/internal/ml"
)

var ErrEmptyDataset = errors.New("empty dataset")

// BatchIterator walks indices [0, size) in batches. A cycling iterator always
// returns full batches and wraps around, reshuffling on each pass.
type BatchIterator struct {
	size      int
	batchSize int
	cycle     bool
	shuffle   bool
	rnd       *rand.Rand
	perm      []int
	pos       int
}

func NewBatchIterator(size, batchSize int, cycle, shuffle bool, seed int64) (*BatchIterator, error) {
	if size <= 0 {
		return nil, ErrEmptyDataset
	}
	if batchSize <= 0 {
		return nil, errors.New("batch size must be positive")
	}
	var it = &BatchIterator{
		size:      size,
		batchSize: batchSize,
		cycle:     cycle,
		shuffle:   shuffle,
		rnd:       rand.New(rand.NewSource(seed)),
	}
	it.Reset()
	return it, nil
}

func (it *BatchIterator) Reset() {
	if it.perm == nil {
		it.perm = make([]int, it.size)
	}
	for i := range it.perm {
		it.perm[i] = i
	}
	if it.shuffle {
		it.rnd.Shuffle(len(it.perm), func(i, j int) {
			it.perm[i], it.perm[j] = it.perm[j], it.perm[i]
		})
	}
	it.pos = 0
}

func (it *BatchIterator) Next() ([]int, error) {
	if it.pos >= it.size {
		if !it.cycle {
			return nil, io.EOF
		}
		it.Reset()
	}
	var end = it.pos + it.batchSize
	if end <= it.size {
		var batch = append([]int(nil), it.perm[it.pos:end]...)
		it.pos = end
		return batch, nil
	}
	var batch = append([]int(nil), it.perm[it.pos:]...)
	if !it.cycle {
		it.pos = it.size
		return batch, nil
	}
	for len(batch) < it.batchSize {
		it.Reset()
		var need = min(it.batchSize-len(batch), it.size)
		batch = append(batch, it.perm[:need]...)
		it.pos = need
	}
	return batch, nil
}

// IterProvider turns a DataProvider into a BatchSource.
type IterProvider struct {
	provider  DataProvider
	batchSize int
	cycle     bool
	shuffle   bool
	seed      int64

	mu   sync.Mutex
	iter *BatchIterator
}

// SetIter configures batch iteration. The dataset is indexed on the first Next.
func SetIter(provider DataProvider, batchSize int, cycle, shuffle bool) *IterProvider {
	return &IterProvider{
		provider:  provider,
		batchSize: batchSize,
		cycle:     cycle,
		shuffle:   shuffle,
		seed:      1,
	}
}

func (p *IterProvider) WithSeed(seed int64) *IterProvider {
	p.seed = seed
	return p
}

func (p *IterProvider) nextIdx() ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.iter == nil {
		var size, err = p.provider.Size()
		if err != nil {
			return nil, err
		}
		p.iter, err = NewBatchIterator(size, p.batchSize, p.cycle, p.shuffle, p.seed)
		if err != nil {
			return nil, err
		}
	}
	return p.iter.Next()
}

func (p *IterProvider) Next(ctx context.Context) (ml.Batch, error) {
	var idx, err = p.nextIdx()
	if err != nil {
		return nil, err
	}
	return p.provider.GetBatchIdx(ctx, idx)
}
