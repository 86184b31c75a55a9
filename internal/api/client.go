// Package api is the HTTP client for the PDF file backend.
//
// The backend exposes two endpoints under a base URL: GET /files lists the PDF names and
// GET /files/{name} returns one document. Every request carries the X-API-Key header and
// failures are normalised into UnauthorizedError, ServerError or NetworkError.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/pdfviewer/internal/logctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// DefaultTimeout bounds every request made by the client.
const DefaultTimeout = 30 * time.Second

const progressInterval = 1024 * 1024 // 1MB

// Blob is an opaque binary response body.
type Blob struct {
	Data        []byte
	ContentType string
}

// Size returns the number of bytes in the blob.
func (b *Blob) Size() int64 {
	return int64(len(b.Data))
}

// Client talks to the file backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type options struct {
	transport   http.RoundTripper
	bearerToken string
}

// Option configures a Client.
type Option func(*options)

// WithTransport replaces the base transport. The identification header is still added.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithBearerToken adds an Authorization: Bearer header on top of the API key.
func WithBearerToken(token string) Option {
	return func(o *options) {
		o.bearerToken = token
	}
}

// New creates a client for the backend at baseURL, identifying itself with apiKey.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", baseURL)
	}

	o := &options{transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(o)
	}

	var rt http.RoundTripper = &keyTransport{key: apiKey, base: otelhttp.NewTransport(o.transport)}

	if o.bearerToken != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: o.bearerToken}),
			Base:   rt,
		}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: rt,
		},
	}, nil
}

// ListFiles returns the PDF names in the order the backend returned them.
func (c *Client) ListFiles(ctx context.Context) ([]string, error) {
	var files []string
	if err := c.Get(ctx, "/files", &files); err != nil {
		return nil, err
	}

	if files == nil {
		files = []string{}
	}

	return files, nil
}

// DownloadFile fetches the content of a single file. The name is percent-encoded.
func (c *Client) DownloadFile(ctx context.Context, name string) (*Blob, error) {
	return c.GetBlob(ctx, "/files/"+url.PathEscape(name))
}

// Get issues a GET for path and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, path, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServerError{
			Path:       path,
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("Invalid response from server: %v", err),
		}
	}

	return nil
}

// GetBlob issues a GET for path and returns the raw body.
func (c *Client) GetBlob(ctx context.Context, path string) (*Blob, error) {
	logger := logctx.LoggerFromContext(ctx).With("path", path)

	resp, err := c.do(ctx, path, "*/*")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}

	pr := newProgressReader(resp.Body, resp.ContentLength, progressInterval, func(read, total int64) {
		logger.DebugContext(ctx, "download progress",
			"downloaded", humanize.Bytes(uint64(read)),
			"total", humanize.Bytes(uint64(max(total, 0))),
		)
	})

	if _, err := io.Copy(&buf, pr); err != nil {
		logger.WarnContext(ctx, "failed to read response body", "err", err)

		return nil, &NetworkError{Path: path, Err: err}
	}

	logger.DebugContext(ctx, "downloaded blob", "size", humanize.Bytes(uint64(buf.Len())))

	return &Blob{Data: buf.Bytes(), ContentType: resp.Header.Get("Content-Type")}, nil
}

// do sends the request and returns the response only when the status is 2xx.
func (c *Client) do(ctx context.Context, path, accept string) (*http.Response, error) {
	logger := logctx.LoggerFromContext(ctx).With("path", path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.WarnContext(ctx, "request failed", "err", err)

		return nil, &NetworkError{Path: path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()

		err := errorFromResponse(path, resp)
		logger.WarnContext(ctx, "backend returned an error", "status", resp.StatusCode, "err", err)

		return nil, err
	}

	return resp, nil
}
