package api

import (
	"net/http"
)

// HeaderAPIKey is the identification header the backend expects on every request.
const HeaderAPIKey = "X-API-Key"

// keyTransport attaches the identification header to every outgoing request.
type keyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *keyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	clone := req.Clone(req.Context())
	clone.Header.Set(HeaderAPIKey, t.key)

	return t.base.RoundTrip(clone)
}
