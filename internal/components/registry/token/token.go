// Package token manages the bearer credential used against the identity
// registry. The credential comes from an OAuth client-credentials
// exchange and is replaced wholesale on every successful exchange.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	httpclient "github.com/MahdiBaghbani/gatekeeper/internal/platform/http/client"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/logutil"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/metrics"
)

// ErrEmptyToken is returned when a 200 response carries no access_token.
var ErrEmptyToken = errors.New("token response has empty access_token")

// AuthError is a non-200 answer from the OAuth endpoint.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("oauth exchange failed with status %d: %s", e.StatusCode, e.Body)
}

// response is the subset of the OAuth token response we read.
type response struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

// Manager owns the registry credential.
type Manager struct {
	client   httpclient.HTTPClient
	settings Settings
	maxBody  int64
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu    sync.RWMutex
	token string

	group singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records exchange results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithMaxResponseBytes bounds the token response body.
func WithMaxResponseBytes(n int64) Option {
	return func(mgr *Manager) { mgr.maxBody = n }
}

// NewManager creates a Manager. Settings defaults are applied here.
func NewManager(client httpclient.HTTPClient, settings Settings, logger *slog.Logger, opts ...Option) *Manager {
	settings.ApplyDefaults()
	m := &Manager{
		client:   client,
		settings: settings,
		logger:   logutil.NoopIfNil(logger),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Token returns the current credential, empty before the first Acquire.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Acquire performs one client-credentials exchange and stores the result.
// It does not retry.
func (m *Manager) Acquire(ctx context.Context) error {
	tok, err := m.exchange(ctx)
	if err != nil {
		m.metrics.ObserveTokenExchange("error")
		return err
	}

	m.mu.Lock()
	m.token = tok
	m.mu.Unlock()

	m.metrics.ObserveTokenExchange("ok")
	m.logExpiry(tok)
	return nil
}

// Refresh is Acquire with concurrent callers sharing one exchange.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, shared := m.group.Do("refresh", func() (any, error) {
		return nil, m.Acquire(ctx)
	})
	if shared {
		m.logger.Debug("token refresh shared with concurrent caller")
	}
	return err
}

func (m *Manager) exchange(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("client_id", m.settings.ClientID)
	form.Set("client_secret", m.settings.ClientSecret)
	form.Set("audience", m.settings.Audience)
	form.Set("grant_type", m.settings.GrantType)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.settings.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(ctx, req)
	if err != nil {
		m.logger.Error("token exchange request failed", "endpoint", m.settings.Endpoint, "error", err)
		return "", fmt.Errorf("token exchange request failed: %w", err)
	}

	body, err := httpclient.ReadBody(resp, m.maxBody)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		authErr := &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
		m.logger.Error("token exchange rejected",
			"endpoint", m.settings.Endpoint,
			"status", resp.StatusCode,
			"body", authErr.Body,
		)
		return "", authErr
	}

	var tr response
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", ErrEmptyToken
	}
	return tr.AccessToken, nil
}

// logExpiry logs the exp claim when the token is a JWT. The signature is
// not checked and the value is never used for decisions.
func (m *Manager) logExpiry(tok string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		m.logger.Debug("acquired opaque registry token")
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		m.logger.Debug("acquired registry token without exp claim")
		return
	}
	m.logger.Info("acquired registry token",
		"expires_at", exp.Time.UTC().Format(time.RFC3339),
		"expires_in", exp.Time.Sub(m.now()).Round(time.Second).String(),
	)
}
