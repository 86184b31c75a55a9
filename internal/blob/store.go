// Package blob keeps downloaded documents in memory behind short-lived handles.
//
// A handle is the Go counterpart of a browser object URL: it is created from a byte slice,
// served at /blob/{id} while it is live and must be released explicitly by its owner.
package blob

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/italolelis/pdfviewer/internal/logctx"
	"github.com/italolelis/pdfviewer/internal/telemetry"
)

// PathPrefix is where the store is mounted.
const PathPrefix = "/blob"

// Handle references content held by a Store.
type Handle struct {
	ID          string
	Name        string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

// URL is the address a browser uses to display the handle's content.
func (h *Handle) URL() string {
	return PathPrefix + "/" + h.ID
}

type entry struct {
	handle *Handle
	data   []byte
}

// Store holds the content of live handles. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	telemetry *telemetry.Telemetry
}

// NewStore creates an empty store. tel may be nil.
func NewStore(tel *telemetry.Telemetry) *Store {
	return &Store{
		entries:   make(map[string]*entry),
		telemetry: tel,
	}
}

// Create stores data and returns a new live handle for it.
func (s *Store) Create(ctx context.Context, name string, data []byte, contentType string) *Handle {
	if contentType == "" {
		contentType = "application/pdf"
	}

	h := &Handle{
		ID:          uuid.New().String(),
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.entries[h.ID] = &entry{handle: h, data: data}
	s.mu.Unlock()

	s.telemetry.DocumentOpened(h.Size)

	logctx.LoggerFromContext(ctx).DebugContext(ctx, "document handle created",
		"handle_id", h.ID, "name", name, "size", humanize.Bytes(uint64(h.Size)))

	return h
}

// Release frees the content behind id. It reports true only for the call that
// actually released a live handle.
func (s *Store) Release(ctx context.Context, id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if !ok {
		return false
	}

	s.telemetry.DocumentReleased()

	logctx.LoggerFromContext(ctx).DebugContext(ctx, "document handle released",
		"handle_id", id, "name", e.handle.Name)

	return true
}

// Open returns the handle and content for id while it is live.
func (s *Store) Open(id string) (*Handle, []byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, nil, false
	}

	return e.handle, e.data, true
}

// Len returns the number of live handles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Routes serves live handles at /{id}.
func (s *Store) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/{id}", s.HandleGet)

	return r
}

// HandleGet writes the content of a live handle inline.
func (s *Store) HandleGet(w http.ResponseWriter, r *http.Request) {
	h, data, ok := s.Open(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "document not found", http.StatusNotFound)

		return
	}

	w.Header().Set("Content-Type", h.ContentType)
	w.Header().Set("Content-Disposition", "inline; filename="+strconv.Quote(h.Name))
	w.Header().Set("Cache-Control", "no-store")

	// PDF viewers issue range requests; ServeContent answers them.
	http.ServeContent(w, r, h.Name, h.CreatedAt, bytes.NewReader(data))
}
