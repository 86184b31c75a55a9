package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/pdfviewer/internal/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{http.StatusSwitchingProtocols, "1xx"},
		{http.StatusOK, "2xx"},
		{http.StatusNoContent, "2xx"},
		{http.StatusSeeOther, "3xx"},
		{http.StatusNotFound, "4xx"},
		{http.StatusUnauthorized, "4xx"},
		{http.StatusInternalServerError, "5xx"},
		{0, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, getStatusClass(tt.code))
		})
	}
}

func TestResponseWriter_CapturesStatusAndBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)

	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusTeapot, rw.status)
	assert.Equal(t, int64(5), rw.bytesWritten)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	assert.Same(t, rw, wrapResponseWriter(rw))
}

func TestResponseWriter_DefaultsToOK(t *testing.T) {
	rw := wrapResponseWriter(httptest.NewRecorder())

	_, err := rw.Write([]byte("x"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rw.status)
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	rw := wrapResponseWriter(httptest.NewRecorder())

	_, _, err := rw.Hijack()
	assert.Error(t, err)
}

func TestRequestID(t *testing.T) {
	var seen string

	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "upstream-id", seen)
	assert.Equal(t, "upstream-id", rec.Header().Get(RequestIDHeader))
}

func TestRequestID_ReplacesUnsafeUpstreamID(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"control characters", "abc\ninjected=1"},
		{"spaces", "two words"},
		{"too long", strings.Repeat("a", maxRequestIDLen+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string

			h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(RequestIDHeader, tt.id)

			h.ServeHTTP(httptest.NewRecorder(), req)

			assert.NotEqual(t, tt.id, seen)
			assert.Len(t, seen, 36)
		})
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestHTTPLogging_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer

			logger := logctx.New(&buf, nil)

			h := RequestID(HTTPLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})))

			req := httptest.NewRequest(http.MethodGet, "/panels/files", nil)
			req = req.WithContext(logctx.WithLogger(req.Context(), logger))

			h.ServeHTTP(httptest.NewRecorder(), req)

			var line map[string]any
			require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))

			assert.Equal(t, tt.level, line["level"])
			assert.Equal(t, "/panels/files", line["path"])
			assert.EqualValues(t, tt.status, line["status"])
			assert.NotEmpty(t, line["request_id"])
		})
	}
}

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: true, ServiceName: "pdfviewer-test"})
	require.NoError(t, err)

	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	r := chi.NewRouter()
	r.Use(NewHTTPMiddleware(tel).Middleware)
	r.Get("/blob/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/blob/abc", nil))

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "http_requests")
	assert.Contains(t, body, `path="/blob/{id}"`)
	assert.Contains(t, body, `status="4xx"`)
	assert.False(t, strings.Contains(body, `path="/blob/abc"`))
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		tel.RecordHTTPRequest("GET", "/", "2xx", 0)
		tel.IncrementHTTPInFlight()
		tel.DecrementHTTPInFlight()
		tel.RecordClientOperation("list_files", "success", 0)
		tel.DocumentOpened(10)
		tel.DocumentReleased()
		tel.RecordStaleDiscard("download_file")
		tel.IncrementConnections()
		tel.DecrementConnections()
	})

	called := false
	err := tel.InstrumentClientOperation(context.Background(), "list_files", func(context.Context) error {
		called = true

		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.NoError(t, tel.Shutdown(context.Background()))

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false, ServiceName: "x"})
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer())
	assert.NoError(t, tel.Shutdown(context.Background()))
}
