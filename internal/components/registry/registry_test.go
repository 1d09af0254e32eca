package registry_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MahdiBaghbani/gatekeeper/internal/components/registry"
	httpclient "github.com/MahdiBaghbani/gatekeeper/internal/platform/http/client"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/metrics"
)

// fakeTokens hands out "tok-<n>" where n is the number of refreshes so far.
type fakeTokens struct {
	refreshes  atomic.Int32
	refreshErr error
}

func (f *fakeTokens) Token() string {
	return "tok-" + string(rune('0'+f.refreshes.Load()))
}

func (f *fakeTokens) Refresh(context.Context) error {
	f.refreshes.Add(1)
	return f.refreshErr
}

func newClient(t *testing.T, handler http.HandlerFunc, tokens registry.TokenSource, maxRefreshes int) (*registry.Client, *metrics.Metrics) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	m := metrics.New()
	hc := httpclient.NewContextClient(httpclient.New(nil))
	return registry.NewClient(hc, server.URL, tokens, maxRefreshes, nil, m), m
}

func TestFetchParticipant_OK(t *testing.T) {
	tokens := &fakeTokens{}
	client, m := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/discord/user/42" {
			t.Errorf("path = %s, want /discord/user/42", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-0" {
			t.Errorf("Authorization = %q, want Bearer tok-0", got)
		}
		w.Write([]byte(`{"status":"CONFIRMED","first_name":"Alice","last_name":"Lin"}`))
	}, tokens, 1)

	p, err := client.FetchParticipant(context.Background(), "42")
	if err != nil {
		t.Fatalf("FetchParticipant failed: %v", err)
	}
	if p.Status != "CONFIRMED" || p.FirstName != "Alice" || p.LastName != "Lin" {
		t.Errorf("unexpected participant: %+v", p)
	}
	if tokens.refreshes.Load() != 0 {
		t.Errorf("refreshes = %d, want 0", tokens.refreshes.Load())
	}
	if got := testutil.ToFloat64(m.RegistryResponses.WithLabelValues("200")); got != 1 {
		t.Errorf("registry 200 count = %v, want 1", got)
	}
}

func TestFetchParticipant_RefreshOnceThenOK(t *testing.T) {
	tokens := &fakeTokens{}
	var calls atomic.Int32
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("retry used %q, want refreshed token", got)
		}
		w.Write([]byte(`{"status":"ACCEPTED","first_name":"Second","last_name":"Try"}`))
	}, tokens, 1)

	p, err := client.FetchParticipant(context.Background(), "42")
	if err != nil {
		t.Fatalf("FetchParticipant failed: %v", err)
	}
	if p.FirstName != "Second" {
		t.Errorf("expected second response's record, got %+v", p)
	}
	if tokens.refreshes.Load() != 1 {
		t.Errorf("refreshes = %d, want exactly 1", tokens.refreshes.Load())
	}
}

func TestFetchParticipant_PersistentUnauthorized(t *testing.T) {
	for _, maxRefreshes := range []int{1, 2, 3} {
		tokens := &fakeTokens{}
		var calls atomic.Int32
		client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}, tokens, maxRefreshes)

		_, err := client.FetchParticipant(context.Background(), "42")
		if registry.CategoryOf(err) != registry.CategoryUnauthorized {
			t.Fatalf("max=%d: expected CategoryUnauthorized, got %v", maxRefreshes, err)
		}
		if int(tokens.refreshes.Load()) != maxRefreshes {
			t.Errorf("max=%d: refreshes = %d", maxRefreshes, tokens.refreshes.Load())
		}
		if int(calls.Load()) != maxRefreshes+1 {
			t.Errorf("max=%d: requests = %d, want %d", maxRefreshes, calls.Load(), maxRefreshes+1)
		}
	}
}

func TestFetchParticipant_RefreshFailureStillBounded(t *testing.T) {
	tokens := &fakeTokens{refreshErr: errors.New("auth down")}
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, tokens, 1)

	_, err := client.FetchParticipant(context.Background(), "42")
	if registry.CategoryOf(err) != registry.CategoryUnauthorized {
		t.Errorf("expected CategoryUnauthorized, got %v", err)
	}
	if tokens.refreshes.Load() != 1 {
		t.Errorf("refreshes = %d, want 1", tokens.refreshes.Load())
	}
}

func TestFetchParticipant_OtherStatusNoRefresh(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusInternalServerError} {
		tokens := &fakeTokens{}
		client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			w.Write([]byte(`{"message":"nope"}`))
		}, tokens, 1)

		_, err := client.FetchParticipant(context.Background(), "42")
		var fe *registry.FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("status %d: expected *FetchError, got %v", code, err)
		}
		if fe.Category != registry.CategoryStatus || fe.StatusCode != code {
			t.Errorf("status %d: got category %s code %d", code, fe.Category, fe.StatusCode)
		}
		if !strings.Contains(fe.Error(), "nope") {
			t.Errorf("status %d: diagnostic missing body: %s", code, fe.Error())
		}
		if tokens.refreshes.Load() != 0 {
			t.Errorf("status %d: refreshes = %d, want 0", code, tokens.refreshes.Load())
		}
	}
}

func TestFetchParticipant_BadData(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":`))
	}, &fakeTokens{}, 1)

	_, err := client.FetchParticipant(context.Background(), "42")
	if registry.CategoryOf(err) != registry.CategoryBadData {
		t.Errorf("expected CategoryBadData, got %v", err)
	}
}

func TestFetchParticipant_Transport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := server.URL
	server.Close()

	hc := httpclient.NewContextClient(httpclient.New(nil))
	client := registry.NewClient(hc, base, &fakeTokens{}, 1, nil, nil)

	_, err := client.FetchParticipant(context.Background(), "42")
	if registry.CategoryOf(err) != registry.CategoryTransport {
		t.Errorf("expected CategoryTransport, got %v", err)
	}
}

func TestFetchParticipant_EscapesID(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawPath != "" && !strings.Contains(r.URL.RawPath, "%2F") {
			t.Errorf("id not escaped: %s", r.URL.RawPath)
		}
		w.Write([]byte(`{"status":"PENDING"}`))
	}, &fakeTokens{}, 1)

	if _, err := client.FetchParticipant(context.Background(), "a/b"); err != nil {
		t.Fatalf("FetchParticipant failed: %v", err)
	}
}

func TestPing(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"server error", http.StatusInternalServerError, true},
		{"not found", http.StatusNotFound, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/" {
					t.Errorf("probe path = %s, want /", r.URL.Path)
				}
				w.WriteHeader(tt.code)
			}, &fakeTokens{}, 1)

			err := client.Ping(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Ping error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, registry.ErrUnreachable) {
				t.Errorf("expected ErrUnreachable, got %v", err)
			}
		})
	}
}

func TestParticipant(t *testing.T) {
	tests := []struct {
		status   string
		eligible bool
	}{
		{"ACCEPTED", true},
		{"CONFIRMED", true},
		{"PENDING", false},
		{"REJECTED", false},
		{"accepted", false},
		{"", false},
	}
	for _, tt := range tests {
		p := registry.Participant{Status: tt.status}
		if p.Eligible() != tt.eligible {
			t.Errorf("Eligible(%q) = %v, want %v", tt.status, p.Eligible(), tt.eligible)
		}
	}

	p := registry.Participant{FirstName: "Alice ", LastName: "Lin"}
	if got := p.DisplayName(); got != "Alice  Lin" {
		t.Errorf("DisplayName = %q, want names joined verbatim", got)
	}
}

func TestCategoryOf(t *testing.T) {
	if registry.CategoryOf(nil) != "" {
		t.Error("CategoryOf(nil) should be empty")
	}
	if registry.CategoryOf(errors.New("x")) != "" {
		t.Error("CategoryOf(plain) should be empty")
	}
	wrapped := errors.Join(errors.New("outer"), &registry.FetchError{Category: registry.CategoryStatus})
	if registry.CategoryOf(wrapped) != registry.CategoryStatus {
		t.Error("CategoryOf should see through wrapping")
	}
}
