// Package client provides the bounded outbound HTTP client used for the
// OAuth and registry calls.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/MahdiBaghbani/gatekeeper/internal/platform/config"
)

var ErrResponseTooLarge = errors.New("response body too large")

// Client is an HTTP client with bounded timeouts and response sizes.
// Redirects are never followed; a 3xx is returned to the caller as-is.
type Client struct {
	cfg        *config.OutboundHTTPConfig
	httpClient *http.Client
}

// New creates a new bounded HTTP client.
// The client ignores proxy environment variables (HTTP_PROXY, HTTPS_PROXY, NO_PROXY).
func New(cfg *config.OutboundHTTPConfig) *Client {
	if cfg == nil {
		defaults := config.StrictConfig().OutboundHTTP
		cfg = &defaults
	}

	dialer := &net.Dialer{
		Timeout: time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond,
	}

	transport := &http.Transport{
		Proxy:       nil,
		DialContext: dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.TimeoutMS) * time.Millisecond,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Do performs an HTTP request.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// MaxResponseBytes is the configured body limit.
func (c *Client) MaxResponseBytes() int64 {
	return c.cfg.MaxResponseBytes
}

// ReadBody reads and closes resp.Body, failing with ErrResponseTooLarge
// past limit bytes. A limit <= 0 means 1 MiB.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	defer resp.Body.Close()
	if limit <= 0 {
		limit = 1 << 20
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

// ContextClient wraps Client to provide a context-first Do method.
// This adapts the Client to the HTTPClient interface.
type ContextClient struct {
	client *Client
}

// NewContextClient creates a ContextClient adapter.
func NewContextClient(c *Client) *ContextClient {
	return &ContextClient{client: c}
}

// Do performs an HTTP request, using the provided context.
func (c *ContextClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(ctx))
}
