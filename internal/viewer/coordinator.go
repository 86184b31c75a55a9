// Package viewer holds the root coordinator of the viewer: the single owner of the file list,
// the current selection and the document handle bound to it.
package viewer

import (
	"context"
	"sync"

	"github.com/italolelis/pdfviewer/internal/api"
	"github.com/italolelis/pdfviewer/internal/blob"
	"github.com/italolelis/pdfviewer/internal/logctx"
	"github.com/italolelis/pdfviewer/internal/telemetry"
)

const (
	opListFiles    = "list_files"
	opDownloadFile = "download_file"
)

// Status is the lifecycle of one fetch.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// State is a snapshot of everything the panels display.
type State struct {
	Files       []string
	FilesStatus Status
	FilesError  string

	Selected       string
	Document       *blob.Handle
	DocumentStatus Status
	DocumentError  string
}

func (s State) clone() State {
	if s.Files != nil {
		s.Files = append([]string(nil), s.Files...)
	}

	return s
}

// FileSource fetches the list and the documents. *api.Client and *api.InstrumentedClient
// satisfy it.
type FileSource interface {
	ListFiles(ctx context.Context) ([]string, error)
	DownloadFile(ctx context.Context, name string) (*api.Blob, error)
}

// HandleStore turns downloaded bytes into displayable handles. *blob.Store satisfies it.
type HandleStore interface {
	Create(ctx context.Context, name string, data []byte, contentType string) *blob.Handle
	Release(ctx context.Context, id string) bool
}

type subscriber struct {
	id int
	fn func(State)
}

// Coordinator owns the viewer state. Every transition is published to the subscribers.
//
// Each fetch kind carries a generation number. A completion whose generation is no longer
// current is dropped, and a handle it produced is released on the spot, so a slow response
// for an earlier selection can never replace a later one.
type Coordinator struct {
	source    FileSource
	store     HandleStore
	telemetry *telemetry.Telemetry

	// notifyMu serialises transitions with their delivery so subscribers see them in order.
	notifyMu sync.Mutex

	mu          sync.Mutex
	state       State
	filesGen    uint64
	documentGen uint64
	closed      bool
	subscribers []subscriber
	nextSubID   int
}

// NewCoordinator creates a coordinator with nothing loaded. tel may be nil.
func NewCoordinator(source FileSource, store HandleStore, tel *telemetry.Telemetry) *Coordinator {
	return &Coordinator{
		source:    source,
		store:     store,
		telemetry: tel,
	}
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.clone()
}

// Subscribe registers fn to be called with a snapshot after every transition. Callbacks run
// synchronously on the goroutine that caused the transition and must not call back into the
// coordinator's fetch operations.
func (c *Coordinator) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSubID++
	id := c.nextSubID
	c.subscribers = append(c.subscribers, subscriber{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		for i, s := range c.subscribers {
			if s.id == id {
				c.subscribers = append(c.subscribers[:i:i], c.subscribers[i+1:]...)

				return
			}
		}
	}
}

// transition applies fn under the lock and then notifies subscribers. fn reports whether
// anything changed; nothing is published otherwise.
func (c *Coordinator) transition(fn func(s *State) bool) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed || !fn(&c.state) {
		c.mu.Unlock()

		return
	}

	snapshot := c.state.clone()
	subs := append([]subscriber(nil), c.subscribers...)
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(snapshot)
	}
}

// LoadFiles fetches the file list. It is used on start and to retry a failed list.
func (c *Coordinator) LoadFiles(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	var gen uint64

	c.transition(func(s *State) bool {
		c.filesGen++
		gen = c.filesGen
		s.FilesStatus = StatusLoading
		s.FilesError = ""

		return true
	})

	if gen == 0 {
		return
	}

	files, err := c.source.ListFiles(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load files", "err", err)
	} else {
		logger.DebugContext(ctx, "files loaded", "count", len(files))
	}

	applied := false

	c.transition(func(s *State) bool {
		if gen != c.filesGen {
			return false
		}

		applied = true

		if err != nil {
			s.FilesStatus = StatusFailed
			s.FilesError = api.Message(err)

			return true
		}

		s.Files = files
		s.FilesStatus = StatusSucceeded

		return true
	})

	if !applied {
		c.discarded(ctx, opListFiles)
	}
}

// Select makes name the current selection and loads its document. Selecting the name that
// is already selected does nothing.
func (c *Coordinator) Select(ctx context.Context, name string) {
	c.loadDocument(ctx, func(s State) (string, bool) {
		return name, name != s.Selected
	})
}

// RetryDocument issues the document fetch again for the current selection.
func (c *Coordinator) RetryDocument(ctx context.Context) {
	c.loadDocument(ctx, func(s State) (string, bool) {
		return s.Selected, s.Selected != ""
	})
}

func (c *Coordinator) loadDocument(ctx context.Context, target func(State) (string, bool)) {
	logger := logctx.LoggerFromContext(ctx)

	var (
		gen      uint64
		name     string
		previous *blob.Handle
	)

	c.transition(func(s *State) bool {
		var ok bool

		name, ok = target(*s)
		if !ok {
			return false
		}

		c.documentGen++
		gen = c.documentGen
		previous = s.Document

		s.Selected = name
		s.Document = nil
		s.DocumentError = ""
		s.DocumentStatus = StatusLoading

		return true
	})

	if gen == 0 {
		return
	}

	if previous != nil {
		c.store.Release(ctx, previous.ID)
	}

	logger = logger.With("name", name)

	b, err := c.source.DownloadFile(ctx, name)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load document", "err", err)
	}

	var handle *blob.Handle
	if err == nil {
		handle = c.store.Create(ctx, name, b.Data, b.ContentType)
	}

	applied := false

	c.transition(func(s *State) bool {
		if gen != c.documentGen {
			return false
		}

		applied = true

		if err != nil {
			s.DocumentStatus = StatusFailed
			s.DocumentError = api.Message(err)

			return true
		}

		s.Document = handle
		s.DocumentStatus = StatusSucceeded

		return true
	})

	if applied {
		if handle != nil {
			logger.InfoContext(ctx, "document loaded", "handle_id", handle.ID)
		}

		return
	}

	if handle != nil {
		c.store.Release(ctx, handle.ID)
	}

	c.discarded(ctx, opDownloadFile)
}

func (c *Coordinator) discarded(ctx context.Context, op string) {
	c.telemetry.RecordStaleDiscard(op)

	logctx.LoggerFromContext(ctx).DebugContext(ctx, "stale response discarded", "operation", op)
}

// Close tears the coordinator down. The bound document handle is released and any fetch
// still in flight is discarded when it completes. Close is idempotent.
func (c *Coordinator) Close(ctx context.Context) {
	c.notifyMu.Lock()
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		c.notifyMu.Unlock()

		return
	}

	c.closed = true
	c.filesGen++
	c.documentGen++
	c.subscribers = nil

	doc := c.state.Document
	c.state.Document = nil

	c.mu.Unlock()
	c.notifyMu.Unlock()

	if doc != nil {
		c.store.Release(ctx, doc.ID)
	}

	logctx.LoggerFromContext(ctx).InfoContext(ctx, "viewer closed")
}
