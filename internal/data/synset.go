package data

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

const ImageNetClasses = 1000

// SynsetIndex maps WordNet ids (n01440764...) to class indices. Classes are
// numbered in sorted wnid order.
type SynsetIndex struct {
	// Synsets in file order, as referenced by valid_labels.txt.
	Synsets []string
	index   map[string]int
}

func LoadSynsets(path string) (*SynsetIndex, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var synsets []string
	var scanner = bufio.NewScanner(file)
	for scanner.Scan() {
		var line = strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// Lines may carry a description after the wnid.
		synsets = append(synsets, strings.Fields(line)[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewSynsetIndex(synsets)
}

func NewSynsetIndex(synsets []string) (*SynsetIndex, error) {
	var sorted = append([]string(nil), synsets...)
	sort.Strings(sorted)
	var index = make(map[string]int, len(sorted))
	for i, wnid := range sorted {
		if _, found := index[wnid]; found {
			return nil, fmt.Errorf("duplicate synset %v", wnid)
		}
		index[wnid] = i
	}
	return &SynsetIndex{
		Synsets: synsets,
		index:   index,
	}, nil
}

func (s *SynsetIndex) Len() int { return len(s.index) }

func (s *SynsetIndex) GetIndex(wnid string) (int, error) {
	var i, found = s.index[wnid]
	if !found {
		return 0, fmt.Errorf("unknown synset %v", wnid)
	}
	return i, nil
}
