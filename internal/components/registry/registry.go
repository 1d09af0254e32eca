// Package registry is the client for the external identity registry that
// holds each participant's eligibility record.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	httpclient "github.com/MahdiBaghbani/gatekeeper/internal/platform/http/client"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/logutil"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/metrics"
)

// TokenSource supplies the bearer credential. *token.Manager implements it.
type TokenSource interface {
	Token() string
	Refresh(ctx context.Context) error
}

// Client talks to the registry.
type Client struct {
	http         httpclient.HTTPClient
	baseURL      string
	tokens       TokenSource
	maxRefreshes int
	maxBody      int64
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithMaxResponseBytes bounds response bodies.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

// NewClient creates a registry client. maxRefreshes < 1 is treated as 1.
func NewClient(httpClient httpclient.HTTPClient, baseURL string, tokens TokenSource, maxRefreshes int, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Client {
	if maxRefreshes < 1 {
		maxRefreshes = 1
	}
	c := &Client{
		http:         httpClient,
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokens:       tokens,
		maxRefreshes: maxRefreshes,
		logger:       logutil.NoopIfNil(logger),
		metrics:      m,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Ping probes GET {base}/ and expects 200.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	body, _ := httpclient.ReadBody(resp, c.maxBody)

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("registry liveness probe failed",
			"base_url", c.baseURL,
			"status", resp.StatusCode,
			"body", string(body),
		)
		return fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}
	return nil
}

// FetchParticipant looks up the eligibility record for externalID.
// A 401 triggers a token refresh and a re-issue, at most maxRefreshes
// times per call.
func (c *Client) FetchParticipant(ctx context.Context, externalID string) (*Participant, error) {
	endpoint := c.baseURL + "/discord/user/" + url.PathEscape(externalID)
	logger := c.logger.With("external_id", externalID, "stage", "fetch")

	refreshes := 0
	for {
		start := time.Now()
		status, body, err := c.get(ctx, endpoint)
		c.metrics.ObserveRegistry(status, start)
		if err != nil {
			category := CategoryTransport
			if status != 0 {
				category = CategoryBadData
			}
			logger.Warn("registry lookup failed", "category", category, "error", err)
			return nil, &FetchError{Category: category, ExternalID: externalID, StatusCode: status, Cause: err}
		}

		switch status {
		case http.StatusOK:
			var p Participant
			if err := json.Unmarshal(body, &p); err != nil {
				return nil, &FetchError{Category: CategoryBadData, ExternalID: externalID, StatusCode: status, Cause: err}
			}
			return &p, nil

		case http.StatusUnauthorized:
			if refreshes >= c.maxRefreshes {
				logger.Error("registry still unauthorized after token refresh", "refreshes", refreshes)
				return nil, &FetchError{
					Category:   CategoryUnauthorized,
					ExternalID: externalID,
					StatusCode: status,
					Body:       string(body),
				}
			}
			refreshes++
			logger.Info("registry returned 401, refreshing token", "attempt", refreshes)
			if err := c.tokens.Refresh(ctx); err != nil {
				// The next iteration re-issues with whatever token we hold and
				// ends in CategoryUnauthorized if it is still rejected.
				logger.Warn("token refresh failed", "error", err)
			}

		default:
			logger.Warn("registry lookup failed", "status", status, "body", string(body))
			return nil, &FetchError{
				Category:   CategoryStatus,
				ExternalID: externalID,
				StatusCode: status,
				Body:       string(body),
			}
		}
	}
}

func (c *Client) get(ctx context.Context, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.tokens.Token())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return 0, nil, err
	}
	body, err := httpclient.ReadBody(resp, c.maxBody)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
