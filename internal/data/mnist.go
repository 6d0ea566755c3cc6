package data

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
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
	MNISTFolderOption = "mnist:dataset_folder"
	MNISTClasses      = 10
	mnistValidSize    = 10000

	idxImagesMagic = 0x00000803
	idxLabelsMagic = 0x00000801
)

func init() {
	options.Add(MNISTFolderOption, options.KindString, "data/mnist")
	providers.MustRegister("mnist", func(cfg Config) (DataProvider, error) {
		return NewMNISTProvider(cfg)
	})
}

// MNISTProvider reads idx files, gzipped or not. The last 10000 training
// images form the valid split; test is the t10k set.
type MNISTProvider struct {
	options.OptionBase
	split  string
	folder string
	logger *slog.Logger

	mu      sync.Mutex
	dataset *memoryDataset
}

func NewMNISTProvider(cfg Config) (*MNISTProvider, error) {
	cfg = cfg.withDefaults()
	switch cfg.Split {
	case SplitTrain, SplitValid, SplitTest:
	default:
		return nil, fmt.Errorf("mnist: unknown split %q", cfg.Split)
	}
	var p = &MNISTProvider{
		split:  cfg.Split,
		folder: cfg.Folder,
		logger: cfg.Logger.With("provider", "mnist", "split", cfg.Split),
	}
	p.RegisterOption(MNISTFolderOption)
	if cfg.Options != nil {
		p.SetOptions(cfg.Options)
	}
	return p, nil
}

func (p *MNISTProvider) load() (*memoryDataset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dataset != nil {
		return p.dataset, nil
	}
	if p.folder == "" {
		var value, err = p.GetOption(MNISTFolderOption)
		if err != nil {
			return nil, err
		}
		p.folder, _ = value.(string)
	}

	var prefix = "train"
	if p.split == SplitTest {
		prefix = "t10k"
	}
	images, height, width, err := readIdxImages(filepath.Join(p.folder, prefix+"-images-idx3-ubyte"))
	if err != nil {
		return nil, err
	}
	labels, err := readIdxLabels(filepath.Join(p.folder, prefix+"-labels-idx1-ubyte"))
	if err != nil {
		return nil, err
	}
	if len(images) != len(labels)*height*width {
		return nil, fmt.Errorf("mnist: %v images but %v labels", len(images)/(height*width), len(labels))
	}
	var dataset = &memoryDataset{
		height:     height,
		width:      width,
		channels:   1,
		numClasses: MNISTClasses,
		pixels:     images,
		labels:     labels,
	}
	if p.split != SplitTest {
		var split = max(0, dataset.size()-mnistValidSize)
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

// openIdx reads path, or path.gz when only the compressed file exists.
func openIdx(path string) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}
	compressed, err := os.ReadFile(path + ".gz")
	if err != nil {
		return nil, err
	}
	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("mnist %v: %w", path, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func readIdxImages(path string) ([]byte, int, int, error) {
	data, err := openIdx(path)
	if err != nil {
		return nil, 0, 0, err
	}
	if len(data) < 16 || binary.BigEndian.Uint32(data) != idxImagesMagic {
		return nil, 0, 0, fmt.Errorf("mnist %v: bad image file header", path)
	}
	var count = int(binary.BigEndian.Uint32(data[4:]))
	var height = int(binary.BigEndian.Uint32(data[8:]))
	var width = int(binary.BigEndian.Uint32(data[12:]))
	var pixels = data[16:]
	if len(pixels) != count*height*width {
		return nil, 0, 0, fmt.Errorf("mnist %v: truncated", path)
	}
	return pixels, height, width, nil
}

func readIdxLabels(path string) ([]int, error) {
	data, err := openIdx(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 8 || binary.BigEndian.Uint32(data) != idxLabelsMagic {
		return nil, fmt.Errorf("mnist %v: bad label file header", path)
	}
	var count = int(binary.BigEndian.Uint32(data[4:]))
	if len(data)-8 != count {
		return nil, fmt.Errorf("mnist %v: truncated", path)
	}
	var labels = make([]int, count)
	for i, b := range data[8:] {
		labels[i] = int(b)
	}
	return labels, nil
}

func (p *MNISTProvider) Labels() ([]int, error) {
	var d, err = p.load()
	if err != nil {
		return nil, err
	}
	return d.labels, nil
}

func (p *MNISTProvider) Size() (int, error) {
	var d, err = p.load()
	if err != nil {
		return 0, err
	}
	return d.size(), nil
}

func (p *MNISTProvider) GetBatchIdx(ctx context.Context, idx []int) (ml.Batch, error) {
	var d, err = p.load()
	if err != nil {
		return nil, err
	}
	return d.batch(ctx, idx)
}
