// Package backend is the reference implementation of the file-serving API the viewer talks to.
package backend

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/italolelis/pdfviewer/internal/filestore"
	"github.com/italolelis/pdfviewer/internal/http/rest"
	"github.com/italolelis/pdfviewer/internal/logctx"
)

const (
	headerAPIKey = "X-API-Key"

	detailMissingKey   = "Missing authentication credentials. Provide X-API-Key header."
	detailInvalidKey   = "Invalid API key."
	detailInvalidName  = "Invalid filename. Only .pdf files with safe characters are allowed."
	detailFileNotFound = "File not found: %s"
)

// errorResponse is the body of every failed API call.
type errorResponse struct {
	Detail string `json:"detail"`
}

// FilesHandler serves the reports of a filestore.Store.
type FilesHandler struct {
	store       filestore.Store
	apiKey      string
	corsOrigins []string
}

// NewFilesHandler creates a handler that requires apiKey on every /api request.
func NewFilesHandler(store filestore.Store, apiKey string, corsOrigins []string) *FilesHandler {
	return &FilesHandler{
		store:       store,
		apiKey:      apiKey,
		corsOrigins: corsOrigins,
	}
}

func (h *FilesHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", headerAPIKey},
		MaxAge:         300,
	}))

	r.Get("/health", rest.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.apiKeyMiddleware)

		r.Get("/files", h.HandleList)
		r.Get("/files/{name}", h.HandleGet)
	})

	return r
}

// HandleList returns the sorted PDF names as a JSON array.
func (h *FilesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	names, err := h.store.List(ctx)
	if err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to list files", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "Failed to list files: " + err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, names)
}

// HandleGet streams one PDF inline.
func (h *FilesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	name := chi.URLParam(r, "name")

	if err := filestore.ValidateName(name); err != nil {
		logger.WarnContext(ctx, "rejected file name", "name", name)
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: detailInvalidName})

		return
	}

	rc, err := h.store.Open(ctx, name)
	if err != nil {
		var invalid *filestore.InvalidNameError

		switch {
		case errors.As(err, &invalid):
			writeJSON(w, http.StatusBadRequest, errorResponse{Detail: detailInvalidName})
		case errors.Is(err, filestore.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorResponse{Detail: fmt.Sprintf(detailFileNotFound, name)})
		default:
			logger.ErrorContext(ctx, "failed to open file", "name", name, "err", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "Failed to download file: " + err.Error()})
		}

		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, name))
	w.Header().Set("Cache-Control", "no-store")

	n, err := io.Copy(w, rc)
	if err != nil {
		// Headers are gone; all that is left is to log.
		logger.ErrorContext(ctx, "failed to stream file", "name", name, "written", n, "err", err)

		return
	}

	logger.InfoContext(ctx, "served file", "name", name, "bytes", n)
}

func (h *FilesHandler) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Preflight requests never carry credentials.
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)

			return
		}

		values, ok := r.Header[http.CanonicalHeaderKey(headerAPIKey)]
		if !ok || len(values) == 0 {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: detailMissingKey})

			return
		}

		if subtle.ConstantTimeCompare([]byte(values[0]), []byte(h.apiKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: detailInvalidKey})

			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
