package data

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ChizhovVadim/tfplus/internal/imgproc"
	"github.com/ChizhovVadim/tfplus/internal/ml"
	"github.com/ChizhovVadim/tfplus/internal/options"
	"golang.org/x/sync/errgroup"
)

const ImageNetFolderOption = "imagenet:dataset_folder"

func init() {
	options.Add(ImageNetFolderOption, options.KindString, "data/imagenet")
	providers.MustRegister("imagenet", func(cfg Config) (DataProvider, error) {
		return NewImageNetProvider(cfg)
	})
}

// ImageNetProvider reads the ImageNet layout:
//
//	<folder>/train/<wnid>/<wnid>_<n>.JPEG
//	<folder>/valid/*.JPEG, <folder>/valid_labels.txt, <folder>/synsets.txt
//	<folder>/test/*.JPEG
type ImageNetProvider struct {
	options.OptionBase
	split       string
	mode        string
	concurrency int
	logger      *slog.Logger
	proc        *imgproc.ImagePreprocessor

	mu      sync.Mutex
	folder  string
	loaded  bool
	imgIDs  []string
	labels  []int
	synsets *SynsetIndex
}

func NewImageNetProvider(cfg Config) (*ImageNetProvider, error) {
	cfg = cfg.withDefaults()
	switch cfg.Split {
	case SplitTrain, SplitValid, SplitTest:
	default:
		return nil, fmt.Errorf("imagenet: unknown split %q", cfg.Split)
	}
	proc, err := imgproc.New(imgproc.ImageNetConfig())
	if err != nil {
		return nil, err
	}
	var p = &ImageNetProvider{
		split:       cfg.Split,
		mode:        cfg.Mode,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger.With("provider", "imagenet", "split", cfg.Split),
		proc:        proc,
		folder:      cfg.Folder,
	}
	p.RegisterOption(ImageNetFolderOption)
	if cfg.Options != nil {
		p.SetOptions(cfg.Options)
	}
	return p, nil
}

func (p *ImageNetProvider) Split() string { return p.split }

func (p *ImageNetProvider) Folder() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.folderLocked()
}

func (p *ImageNetProvider) folderLocked() (string, error) {
	if p.folder == "" {
		var value, err = p.GetOption(ImageNetFolderOption)
		if err != nil {
			return "", err
		}
		p.folder, _ = value.(string)
	}
	return p.folder, nil
}

// ImgIDs lists the image file names of the split; the listing is built once.
func (p *ImageNetProvider) ImgIDs() ([]string, error) {
	if err := p.load(); err != nil {
		return nil, err
	}
	return p.imgIDs, nil
}

// Labels returns class indices aligned with ImgIDs, nil for the test split.
func (p *ImageNetProvider) Labels() ([]int, error) {
	if err := p.load(); err != nil {
		return nil, err
	}
	return p.labels, nil
}

func (p *ImageNetProvider) Size() (int, error) {
	var ids, err = p.ImgIDs()
	return len(ids), err
}

func (p *ImageNetProvider) load() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return nil
	}
	folder, err := p.folderLocked()
	if err != nil {
		return err
	}
	var imageFolder = filepath.Join(folder, p.split)

	var ids []string
	var labels []int
	switch p.split {
	case SplitTrain:
		synsets, err := p.synsetsLocked(folder)
		if err != nil {
			return err
		}
		classDirs, err := listDir(imageFolder, true)
		if err != nil {
			return err
		}
		for _, wnid := range classDirs {
			label, err := synsets.GetIndex(wnid)
			if err != nil {
				return err
			}
			files, err := listDir(filepath.Join(imageFolder, wnid), false)
			if err != nil {
				return err
			}
			ids = append(ids, files...)
			for range files {
				labels = append(labels, label)
			}
		}
	case SplitValid:
		ids, err = listDir(imageFolder, false)
		if err != nil {
			return err
		}
		labels, err = p.validLabelsLocked(folder)
		if err != nil {
			return err
		}
		if len(labels) != len(ids) {
			return fmt.Errorf("imagenet: %v validation images but %v labels", len(ids), len(labels))
		}
	case SplitTest:
		ids, err = listDir(imageFolder, false)
		if err != nil {
			return err
		}
	}

	p.imgIDs = ids
	p.labels = labels
	p.loaded = true
	p.logger.Info("indexed dataset", "images", len(ids))
	return nil
}

func (p *ImageNetProvider) synsetsLocked(folder string) (*SynsetIndex, error) {
	if p.synsets != nil {
		return p.synsets, nil
	}
	var synsets, err = LoadSynsets(filepath.Join(folder, "synsets.txt"))
	if err != nil {
		return nil, fmt.Errorf("imagenet: %w", err)
	}
	p.synsets = synsets
	return synsets, nil
}

// validLabelsLocked maps valid_labels.txt, 0-based indices into synsets.txt,
// to class indices.
func (p *ImageNetProvider) validLabelsLocked(folder string) ([]int, error) {
	synsets, err := p.synsetsLocked(folder)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(folder, "valid_labels.txt"))
	if err != nil {
		return nil, fmt.Errorf("imagenet: %w", err)
	}
	defer file.Close()

	var labels []int
	var scanner = bufio.NewScanner(file)
	for scanner.Scan() {
		var line = strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var n, err = strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("imagenet: bad label %q: %w", line, err)
		}
		if n < 0 || n >= len(synsets.Synsets) {
			return nil, fmt.Errorf("imagenet: label %v out of range", n)
		}
		label, err := synsets.GetIndex(synsets.Synsets[n])
		if err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, scanner.Err()
}

func (p *ImageNetProvider) imagePath(folder, id string) string {
	if p.split == SplitTrain {
		var wnid = strings.SplitN(id, "_", 2)[0]
		return filepath.Join(folder, SplitTrain, wnid, id)
	}
	return filepath.Join(folder, p.split, id)
}

func (p *ImageNetProvider) GetBatchIdx(ctx context.Context, idx []int) (ml.Batch, error) {
	if err := p.load(); err != nil {
		return nil, err
	}
	folder, err := p.Folder()
	if err != nil {
		return nil, err
	}
	for _, i := range idx {
		if i < 0 || i >= len(p.imgIDs) {
			return nil, fmt.Errorf("imagenet: index %v out of range", i)
		}
	}
	var rnd = p.mode == ModeTrain
	var images = make([]*ml.Tensor, len(idx))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for k, i := range idx {
		var k, path = k, p.imagePath(folder, p.imgIDs[i])
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := imgproc.Load(path)
			if err != nil {
				return err
			}
			x, _, err := p.proc.Process(img, rnd, nil)
			if err != nil {
				return fmt.Errorf("%v: %w", path, err)
			}
			images[k] = x
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	x, err := ml.Stack(images)
	if err != nil {
		return nil, err
	}
	var batch = ml.Batch{"x": x}
	if p.labels != nil {
		var labels = make([]int, len(idx))
		for k, i := range idx {
			labels[k] = p.labels[i]
		}
		batch["y_gt"], err = ml.OneHot(labels, ImageNetClasses)
		if err != nil {
			return nil, err
		}
	}
	return batch, nil
}

// listDir returns sorted names of sub-directories (dirs) or files.
func listDir(path string, dirs bool) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, e := range entries {
		if e.IsDir() != dirs || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		result = append(result, e.Name())
	}
	sort.Strings(result)
	return result, nil
}
