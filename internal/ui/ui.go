// Package ui renders the viewer's presentational panels. Every function here is a pure
// function of its props: the panels hold no state of their own.
package ui

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"regexp"

	"github.com/dustin/go-humanize"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// skeletonCount is the number of placeholder rows shown while the list loads.
const skeletonCount = 6

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// FileListState is the rendering state of the file list panel.
type FileListState int

const (
	FileListLoading FileListState = iota
	FileListError
	FileListReady
)

func (s FileListState) String() string {
	switch s {
	case FileListLoading:
		return "loading"
	case FileListError:
		return "error"
	default:
		return "ready"
	}
}

// FileListProps drive the file list panel.
type FileListProps struct {
	Files    []string
	Loading  bool
	Error    string
	Selected string
}

// State picks the panel state. Loading wins over an error, an error wins over the list.
func (p FileListProps) State() FileListState {
	switch {
	case p.Loading:
		return FileListLoading
	case p.Error != "":
		return FileListError
	default:
		return FileListReady
	}
}

// FileEntry is one selectable row of the list.
type FileEntry struct {
	Name      string
	ElementID string
	Active    bool
}

// Entries returns one row per file, in the order given.
func (p FileListProps) Entries() []FileEntry {
	entries := make([]FileEntry, 0, len(p.Files))
	for _, name := range p.Files {
		entries = append(entries, FileEntry{
			Name:      name,
			ElementID: ElementID(name),
			Active:    name == p.Selected,
		})
	}

	return entries
}

// Count is the header label for the number of files.
func (p FileListProps) Count() string {
	if len(p.Files) == 1 {
		return "1 file"
	}

	return fmt.Sprintf("%d files", len(p.Files))
}

// Skeletons exists so the template can range over the placeholder rows.
func (p FileListProps) Skeletons() []struct{} {
	return make([]struct{}, skeletonCount)
}

// ElementID derives a DOM id for a file entry.
func ElementID(name string) string {
	return "file-" + nonAlphanumeric.ReplaceAllString(name, "-")
}

// ViewerState is the rendering state of the viewer panel.
type ViewerState int

const (
	ViewerLoading ViewerState = iota
	ViewerError
	ViewerDocument
	ViewerEmpty
)

func (s ViewerState) String() string {
	switch s {
	case ViewerLoading:
		return "loading"
	case ViewerError:
		return "error"
	case ViewerDocument:
		return "document"
	default:
		return "empty"
	}
}

// ViewerProps drive the viewer panel.
type ViewerProps struct {
	Filename    string
	DocumentURL string
	Size        int64
	Loading     bool
	Error       string
}

// State picks the panel state: loading, then error, then document, else empty.
func (p ViewerProps) State() ViewerState {
	switch {
	case p.Loading:
		return ViewerLoading
	case p.Error != "":
		return ViewerError
	case p.DocumentURL != "":
		return ViewerDocument
	default:
		return ViewerEmpty
	}
}

// SizeLabel is the human readable document size, empty when unknown.
func (p ViewerProps) SizeLabel() string {
	if p.Size <= 0 {
		return ""
	}

	return humanize.Bytes(uint64(p.Size))
}

// PageProps drive the full page.
type PageProps struct {
	Title  string
	Files  FileListProps
	Viewer ViewerProps
}

// RenderFileList writes the file list panel.
func RenderFileList(w io.Writer, props FileListProps) error {
	return render(w, "file_list", props)
}

// RenderViewer writes the viewer panel.
func RenderViewer(w io.Writer, props ViewerProps) error {
	return render(w, "viewer", props)
}

// RenderPage writes the whole document with both panels.
func RenderPage(w io.Writer, props PageProps) error {
	if props.Title == "" {
		props.Title = "PDF Viewer"
	}

	return render(w, "page", props)
}

func render(w io.Writer, name string, data any) error {
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	return nil
}
