package listener

import (
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// CatalogName is the index of files in a logs folder.
const CatalogName = "catalog"

// Catalog entry types.
const (
	TypeCSV   = "csv"
	TypeImage = "image"
	TypePlain = "plain"
)

type CatalogEntry struct {
	Filename string `json:"filename"`
	Type     string `json:"type"`
	Name     string `json:"name"`
}

// LogManager maintains the catalog of a logs folder.
type LogManager struct {
	folder string
	mu     sync.Mutex
}

func NewLogManager(folder string) *LogManager {
	return &LogManager{folder: folder}
}

func (m *LogManager) Folder() string { return m.folder }

// Register adds filename to the catalog unless it is already listed.
func (m *LogManager) Register(filename, typ, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, err := ReadCatalog(m.folder)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Filename == filename {
			return nil
		}
	}
	err = os.MkdirAll(m.folder, os.ModePerm)
	if err != nil {
		return err
	}
	var path = filepath.Join(m.folder, CatalogName)
	var fresh = len(entries) == 0
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	var w = csv.NewWriter(f)
	if fresh {
		if err := w.Write([]string{"filename", "type", "name"}); err != nil {
			return err
		}
	}
	if err := w.Write([]string{filename, typ, name}); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func (m *LogManager) Entries() ([]CatalogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ReadCatalog(m.folder)
}

// ReadCatalog parses <folder>/catalog. A missing catalog is empty.
func ReadCatalog(folder string) ([]CatalogEntry, error) {
	f, err := os.Open(filepath.Join(folder, CatalogName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r = csv.NewReader(f)
	r.FieldsPerRecord = 3
	var entries []CatalogEntry
	for first := true; ; first = false {
		record, err := r.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		if first && record[0] == "filename" {
			continue
		}
		entries = append(entries, CatalogEntry{Filename: record[0], Type: record[1], Name: record[2]})
	}
}
