// Package filestore abstracts where the backend's PDF reports live.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

// ErrNotFound is returned when a named file does not exist.
var ErrNotFound = errors.New("file not found")

var safeName = regexp.MustCompile(`^[a-zA-Z0-9_\-][a-zA-Z0-9_\-. ]{0,253}\.pdf$`)

// Store lists and opens PDF files. Implementations are safe for concurrent use.
type Store interface {
	// List returns the names of the PDF files, sorted.
	List(ctx context.Context) ([]string, error)
	// Open streams the named file. The caller must close the reader.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// InvalidNameError reports a file name that is not a safe PDF name.
type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid file name %q", e.Name)
}

// ValidateName rejects anything that could escape the reports folder or is not a .pdf.
func ValidateName(name string) error {
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) || !safeName.MatchString(name) {
		return &InvalidNameError{Name: name}
	}

	return nil
}

// IsPDF reports whether name has a .pdf extension, ignoring case.
func IsPDF(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}

// SortNames sorts names in place and returns them, never nil.
func SortNames(names []string) []string {
	if names == nil {
		return []string{}
	}

	sort.Strings(names)

	return names
}
