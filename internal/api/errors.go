package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// User-facing messages for failures that carry no server detail.
const (
	MessageUnauthorized = "Unauthorised – check your API key or credentials."
	MessageNetwork      = "Network error – is the backend running?"
)

// maxErrorBody caps how much of an error response is read looking for a detail message.
const maxErrorBody = 64 * 1024

// UnauthorizedError is returned for HTTP 401 responses, whatever their body says.
type UnauthorizedError struct {
	Path   string // Request path that was rejected
	Detail string // Detail reported by the server, kept for logs only
}

func (e *UnauthorizedError) Error() string {
	return MessageUnauthorized
}

// ServerError represents any other non-2xx response from the backend.
type ServerError struct {
	Path       string // Request path that failed
	StatusCode int    // HTTP status code of the response
	Detail     string // The "detail" field of a JSON error body, if present
}

func (e *ServerError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}

	return fmt.Sprintf("Request failed with status %d", e.StatusCode)
}

// NetworkError represents a request that produced no response: connection refused,
// DNS failure, timeout or a body that could not be read.
type NetworkError struct {
	Path string // Request path that failed
	Err  error  // Underlying transport error
}

func (e *NetworkError) Error() string {
	return MessageNetwork
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Message returns the text to show a user for err. Errors that are not part of the
// client taxonomy fall back to err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}

	var (
		unauthorized *UnauthorizedError
		server       *ServerError
		network      *NetworkError
	)

	switch {
	case errors.As(err, &unauthorized):
		return unauthorized.Error()
	case errors.As(err, &server):
		return server.Error()
	case errors.As(err, &network):
		return network.Error()
	default:
		return err.Error()
	}
}

// errorFromResponse normalises a non-2xx response. It reads (part of) the body but does
// not close it.
func errorFromResponse(path string, resp *http.Response) error {
	detail := readDetail(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return &UnauthorizedError{Path: path, Detail: detail}
	}

	return &ServerError{Path: path, StatusCode: resp.StatusCode, Detail: detail}
}

// readDetail extracts a string "detail" field from a JSON error body.
func readDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}

	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err != nil {
		return ""
	}

	return strings.TrimSpace(detail)
}
