// Package local serves PDF reports from a directory on disk.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/italolelis/pdfviewer/internal/filestore"
	"github.com/italolelis/pdfviewer/internal/logctx"
)

// Store reads files from a single flat directory.
type Store struct {
	dir string
}

// New returns a store rooted at dir. The directory must exist.
func New(dir string) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat reports directory: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("reports path %s is not a directory", dir)
	}

	return &Store{dir: dir}, nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read reports directory: %w", err)
	}

	var names []string

	for _, e := range entries {
		if e.IsDir() || !filestore.IsPDF(e.Name()) {
			continue
		}

		names = append(names, e.Name())
	}

	logctx.LoggerFromContext(ctx).InfoContext(ctx, "listed pdf files", "count", len(names), "dir", s.dir)

	return filestore.SortNames(names), nil
}

func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := filestore.ValidateName(name); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, filestore.ErrNotFound)
		}

		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}

	return f, nil
}
