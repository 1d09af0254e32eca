package client

import (
	"context"
	"net/http"
)

// HTTPClient is the shared interface for outbound HTTP requests.
// Implemented by ContextClient; used by the token manager and the
// registry client so tests can swap in httptest servers or fakes.
type HTTPClient interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

var _ HTTPClient = (*ContextClient)(nil)
