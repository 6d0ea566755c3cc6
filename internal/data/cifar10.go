package data

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ChizhovVadim/tfplus/internal/ml"
	"github.com/ChizhovVadim/tfplus/internal/options"
)

const (
	CIFAR10FolderOption = "cifar10:dataset_folder"
	CIFAR10Classes      = 10
	cifarSide           = 32
	cifarRecordSize     = 1 + 3*cifarSide*cifarSide
	cifarValidSize      = 5000
)

func init() {
	options.Add(CIFAR10FolderOption, options.KindString, "data/cifar-10-batches-bin")
	providers.MustRegister("cifar10", func(cfg Config) (DataProvider, error) {
		return NewCIFAR10Provider(cfg)
	})
}

// CIFAR10Provider reads the binary CIFAR-10 release. The last 5000 training
// images form the valid split; test is test_batch.bin.
type CIFAR10Provider struct {
	options.OptionBase
	split  string
	folder string
	logger *slog.Logger

	mu      sync.Mutex
	dataset *memoryDataset
}

func NewCIFAR10Provider(cfg Config) (*CIFAR10Provider, error) {
	cfg = cfg.withDefaults()
	switch cfg.Split {
	case SplitTrain, SplitValid, SplitTest:
	default:
		return nil, fmt.Errorf("cifar10: unknown split %q", cfg.Split)
	}
	var p = &CIFAR10Provider{
		split:  cfg.Split,
		folder: cfg.Folder,
		logger: cfg.Logger.With("provider", "cifar10", "split", cfg.Split),
	}
	p.RegisterOption(CIFAR10FolderOption)
	if cfg.Options != nil {
		p.SetOptions(cfg.Options)
	}
	return p, nil
}

func (p *CIFAR10Provider) load() (*memoryDataset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dataset != nil {
		return p.dataset, nil
	}
	if p.folder == "" {
		var value, err = p.GetOption(CIFAR10FolderOption)
		if err != nil {
			return nil, err
		}
		p.folder, _ = value.(string)
	}

	var files []string
	if p.split == SplitTest {
		files = []string{"test_batch.bin"}
	} else {
		for i := 1; i <= 5; i++ {
			files = append(files, fmt.Sprintf("data_batch_%d.bin", i))
		}
	}
	var dataset = &memoryDataset{
		height:     cifarSide,
		width:      cifarSide,
		channels:   3,
		numClasses: CIFAR10Classes,
	}
	for _, name := range files {
		if err := readCIFARFile(filepath.Join(p.folder, name), dataset); err != nil {
			return nil, err
		}
	}
	if p.split != SplitTest {
		var split = max(0, dataset.size()-cifarValidSize)
		if p.split == SplitTrain {
			dataset = dataset.slice(0, split)
		} else {
			dataset = dataset.slice(split, dataset.size())
		}
	}
	p.dataset = dataset
	p.logger.Info("loaded dataset", "images", dataset.size())
	return dataset, nil
}

// readCIFARFile appends records of one batch file: a label byte followed by
// planar red, green and blue 32x32 planes.
func readCIFARFile(path string, dataset *memoryDataset) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var record = make([]byte, cifarRecordSize)
	const plane = cifarSide * cifarSide
	for {
		_, err := io.ReadFull(f, record)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("cifar10 %v: %w", path, err)
		}
		if int(record[0]) >= CIFAR10Classes {
			return fmt.Errorf("cifar10 %v: bad label %v", path, record[0])
		}
		dataset.labels = append(dataset.labels, int(record[0]))
		var pixels = record[1:]
		for i := 0; i < plane; i++ {
			dataset.pixels = append(dataset.pixels, pixels[i], pixels[plane+i], pixels[2*plane+i])
		}
	}
}

func (p *CIFAR10Provider) Labels() ([]int, error) {
	var d, err = p.load()
	if err != nil {
		return nil, err
	}
	return d.labels, nil
}

func (p *CIFAR10Provider) Size() (int, error) {
	var d, err = p.load()
	if err != nil {
		return 0, err
	}
	return d.size(), nil
}

func (p *CIFAR10Provider) GetBatchIdx(ctx context.Context, idx []int) (ml.Batch, error) {
	var d, err = p.load()
	if err != nil {
		return nil, err
	}
	return d.batch(ctx, idx)
}
