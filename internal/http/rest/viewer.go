package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/pdfviewer/internal/blob"
	"github.com/italolelis/pdfviewer/internal/logctx"
	"github.com/italolelis/pdfviewer/internal/ui"
	"github.com/italolelis/pdfviewer/internal/viewer"
)

// headerRequestedWith marks actions sent by the page script; they get 204 instead of a redirect.
const headerRequestedWith = "X-Requested-With"

// Panels is the message pushed over the websocket.
type Panels struct {
	Files  string `json:"files"`
	Viewer string `json:"viewer"`
}

// ViewerHandler serves the page, its panels and the actions that drive the coordinator.
type ViewerHandler struct {
	baseCtx context.Context
	coord   *viewer.Coordinator
	store   *blob.Store
	hub     *Hub

	// mu orders closed against inflight.Add so Close never waits while an operation starts.
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewViewerHandler wires the handler to the coordinator. Operations triggered by requests
// run on baseCtx so they outlive the request that started them. Every coordinator
// transition is rendered and broadcast through hub.
func NewViewerHandler(baseCtx context.Context, coord *viewer.Coordinator, store *blob.Store, hub *Hub) *ViewerHandler {
	h := &ViewerHandler{
		baseCtx: baseCtx,
		coord:   coord,
		store:   store,
		hub:     hub,
	}

	coord.Subscribe(h.publish)

	return h
}

// Routes mounts everything the browser talks to.
func (h *ViewerHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.HandlePage)
	r.Get("/panels/files", h.HandleFilesPanel)
	r.Get("/panels/viewer", h.HandleViewerPanel)
	r.Get("/ws", h.HandleWS)

	r.Post("/select", h.HandleSelect)
	r.Post("/files/retry", h.HandleRetryFiles)
	r.Post("/viewer/retry", h.HandleRetryDocument)

	r.Mount(blob.PathPrefix, h.store.Routes())

	return r
}

// Wait blocks until every operation started by a request has finished.
func (h *ViewerHandler) Wait() {
	h.inflight.Wait()
}

// Close refuses new actions and waits for the running ones. It is safe to call while
// requests are still being served.
func (h *ViewerHandler) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.inflight.Wait()
}

// HandlePage renders the whole page from the current state.
func (h *ViewerHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	state := h.coord.Snapshot()

	h.writeHTML(w, r, func(buf *bytes.Buffer) error {
		return ui.RenderPage(buf, ui.PageProps{
			Files:  fileListProps(state),
			Viewer: viewerProps(state),
		})
	})
}

// HandleFilesPanel renders the file list panel alone.
func (h *ViewerHandler) HandleFilesPanel(w http.ResponseWriter, r *http.Request) {
	state := h.coord.Snapshot()

	h.writeHTML(w, r, func(buf *bytes.Buffer) error {
		return ui.RenderFileList(buf, fileListProps(state))
	})
}

// HandleViewerPanel renders the viewer panel alone.
func (h *ViewerHandler) HandleViewerPanel(w http.ResponseWriter, r *http.Request) {
	state := h.coord.Snapshot()

	h.writeHTML(w, r, func(buf *bytes.Buffer) error {
		return ui.RenderViewer(buf, viewerProps(state))
	})
}

// HandleWS upgrades to a websocket that receives both panels after every state change.
func (h *ViewerHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.hub.Serve(w, r, func() ([]byte, error) {
		return renderPanels(h.coord.Snapshot())
	})
}

// HandleSelect selects the posted file name.
func (h *ViewerHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	name := r.PostFormValue("name")
	if name == "" {
		http.Error(w, "missing file name", http.StatusBadRequest)

		return
	}

	h.dispatch(w, r, func(ctx context.Context) {
		h.coord.Select(ctx, name)
	})
}

// HandleRetryFiles fetches the file list again.
func (h *ViewerHandler) HandleRetryFiles(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, h.coord.LoadFiles)
}

// HandleRetryDocument fetches the selected document again.
func (h *ViewerHandler) HandleRetryDocument(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, h.coord.RetryDocument)
}

// dispatch starts op in the background and answers right away. Progress reaches the
// browser through the websocket, or through the page it is redirected to.
func (h *ViewerHandler) dispatch(w http.ResponseWriter, r *http.Request, op func(ctx context.Context)) {
	ctx := logctx.WithLogger(h.baseCtx, logctx.LoggerFromContext(r.Context()))

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "viewer is shutting down", http.StatusServiceUnavailable)

		return
	}
	h.inflight.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.inflight.Done()

		op(ctx)
	}()

	if r.Header.Get(headerRequestedWith) != "" {
		w.WriteHeader(http.StatusNoContent)

		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *ViewerHandler) publish(state viewer.State) {
	msg, err := renderPanels(state)
	if err != nil {
		logctx.LoggerFromContext(h.baseCtx).Error("failed to render panels", "err", err)

		return
	}

	h.hub.Broadcast(msg)
}

func (h *ViewerHandler) writeHTML(w http.ResponseWriter, r *http.Request, render func(buf *bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to render html", "err", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func renderPanels(state viewer.State) ([]byte, error) {
	var files, view bytes.Buffer

	if err := ui.RenderFileList(&files, fileListProps(state)); err != nil {
		return nil, err
	}

	if err := ui.RenderViewer(&view, viewerProps(state)); err != nil {
		return nil, err
	}

	return json.Marshal(Panels{Files: files.String(), Viewer: view.String()})
}

// fileListProps treats a list that was never requested as loading; it is fetched on start.
func fileListProps(s viewer.State) ui.FileListProps {
	return ui.FileListProps{
		Files:    s.Files,
		Loading:  s.FilesStatus == viewer.StatusIdle || s.FilesStatus == viewer.StatusLoading,
		Error:    s.FilesError,
		Selected: s.Selected,
	}
}

func viewerProps(s viewer.State) ui.ViewerProps {
	props := ui.ViewerProps{
		Filename: s.Selected,
		Loading:  s.DocumentStatus == viewer.StatusLoading,
		Error:    s.DocumentError,
	}

	if s.Document != nil {
		props.DocumentURL = s.Document.URL()
		props.Size = s.Document.Size
	}

	return props
}
