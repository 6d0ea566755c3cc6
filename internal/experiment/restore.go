package experiment

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ChizhovVadim/tfplus/internal/listener"
)

// RestoreLogs copies the catalog of from and every file it lists into to.
// Files already present in to, like a fresh raw log, are kept.
func RestoreLogs(from, to string) error {
	entries, err := listener.ReadCatalog(from)
	if err != nil {
		return fmt.Errorf("restore logs: %w", err)
	}
	if entries == nil {
		return fmt.Errorf("restore logs: no catalog in %v", from)
	}
	err = os.MkdirAll(to, os.ModePerm)
	if err != nil {
		return err
	}
	var names = []string{listener.CatalogName}
	for _, e := range entries {
		names = append(names, e.Filename)
	}
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(to, name)); err == nil && name != listener.CatalogName {
			continue
		}
		if err := copyFile(filepath.Join(from, name), filepath.Join(to, name)); err != nil {
			return fmt.Errorf("restore logs: %w", err)
		}
	}
	return nil
}

func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(to)
	if err != nil {
		return err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Close()
}
