package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	client, err := New(ts.URL+"/api", "test-key", opts...)
	require.NoError(t, err)

	return client
}

func TestNew_InvalidBaseURL(t *testing.T) {
	tests := []string{"", "/api", "localhost:8000", "://bad"}

	for _, baseURL := range tests {
		t.Run(baseURL, func(t *testing.T) {
			_, err := New(baseURL, "key")
			require.Error(t, err)
		})
	}
}

func TestListFiles_PreservesOrderAndSendsKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/files", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get(HeaderAPIKey))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `["zeta.pdf","alpha.pdf","mid.pdf"]`)
	})

	files, err := client.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta.pdf", "alpha.pdf", "mid.pdf"}, files)
}

func TestListFiles_NullBodyIsEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `null`)
	})

	files, err := client.ListFiles(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)
}

func TestListFiles_InvalidJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>`)
	})

	_, err := client.ListFiles(context.Background())
	require.Error(t, err)

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Contains(t, serverErr.Error(), "Invalid response from server")
}

func TestDownloadFile_EscapesNameAndReturnsBlob(t *testing.T) {
	content := []byte("%PDF-1.7 fake document")

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files/Q1%20report%231.pdf", r.URL.EscapedPath())
		assert.Equal(t, "test-key", r.Header.Get(HeaderAPIKey))

		w.Header().Set("Content-Type", "application/pdf")
		w.Write(content)
	})

	blob, err := client.DownloadFile(context.Background(), "Q1 report#1.pdf")
	require.NoError(t, err)
	assert.Equal(t, content, blob.Data)
	assert.Equal(t, "application/pdf", blob.ContentType)
	assert.Equal(t, int64(len(content)), blob.Size())
}

func TestErrorNormalisation(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantMsg    string
		wantStatus int
	}{
		{
			name:    "unauthorized ignores detail",
			status:  http.StatusUnauthorized,
			body:    `{"detail":"Invalid API key."}`,
			wantMsg: MessageUnauthorized,
		},
		{
			name:    "unauthorized without body",
			status:  http.StatusUnauthorized,
			wantMsg: MessageUnauthorized,
		},
		{
			name:       "detail surfaced verbatim",
			status:     http.StatusNotFound,
			body:       `{"detail":"File not found: q3.pdf"}`,
			wantMsg:    "File not found: q3.pdf",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "no body falls back to status",
			status:     http.StatusInternalServerError,
			wantMsg:    "Request failed with status 500",
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "non json body falls back to status",
			status:     http.StatusBadGateway,
			body:       "<html>bad gateway</html>",
			wantMsg:    "Request failed with status 502",
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "non string detail falls back to status",
			status:     http.StatusUnprocessableEntity,
			body:       `{"detail":[{"loc":["path","filename"],"msg":"field required"}]}`,
			wantMsg:    "Request failed with status 422",
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "empty detail falls back to status",
			status:     http.StatusBadRequest,
			body:       `{"detail":""}`,
			wantMsg:    "Request failed with status 400",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, listErr := client.ListFiles(context.Background())
			_, blobErr := client.DownloadFile(context.Background(), "a.pdf")

			for _, err := range []error{listErr, blobErr} {
				require.Error(t, err)
				assert.Equal(t, tt.wantMsg, err.Error())
				assert.Equal(t, tt.wantMsg, Message(err))

				if tt.status == http.StatusUnauthorized {
					var unauthorized *UnauthorizedError
					assert.ErrorAs(t, err, &unauthorized)

					continue
				}

				var serverErr *ServerError
				require.ErrorAs(t, err, &serverErr)
				assert.Equal(t, tt.wantStatus, serverErr.StatusCode)
			}
		})
	}
}

func TestNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := ts.URL
	ts.Close()

	client, err := New(baseURL, "test-key")
	require.NoError(t, err)

	_, err = client.ListFiles(context.Background())
	require.Error(t, err)
	assert.Equal(t, MessageNetwork, err.Error())

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "/files", netErr.Path)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestBearerToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		assert.Equal(t, "test-key", r.Header.Get(HeaderAPIKey))
		fmt.Fprint(w, `[]`)
	}, WithBearerToken("token-123"))

	_, err := client.ListFiles(context.Background())
	require.NoError(t, err)
}

type countingTransport struct {
	calls atomic.Int32
	base  http.RoundTripper
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls.Add(1)

	return c.base.RoundTrip(req)
}

func TestWithTransport_SingleAttemptPerCall(t *testing.T) {
	rt := &countingTransport{base: http.DefaultTransport}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithTransport(rt))

	_, err := client.DownloadFile(context.Background(), "a.pdf")
	require.Error(t, err)
	assert.Equal(t, int32(1), rt.calls.Load())
}

func TestKeyTransport_DoesNotMutateRequest(t *testing.T) {
	var seen string

	rt := &keyTransport{key: "k", base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		seen = r.Header.Get(HeaderAPIKey)

		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/files", nil)
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)

	assert.Equal(t, "k", seen)
	assert.Empty(t, req.Header.Get(HeaderAPIKey))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestMessage_ForeignError(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "boom", Message(errors.New("boom")))
	assert.Equal(t, MessageNetwork, Message(fmt.Errorf("wrapped: %w", &NetworkError{Err: errors.New("dial")})))
}
