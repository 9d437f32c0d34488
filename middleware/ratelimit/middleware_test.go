package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"courier-gateway/middleware/ratelimit/application"
	"courier-gateway/middleware/ratelimit/domain"
	"courier-gateway/middleware/ratelimit/infra"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func newHandler(t *testing.T, opts Options) (http.Handler, *int) {
	t.Helper()
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	return Middleware(opts)(next), &calls
}

func do(h http.Handler, method, path, remote string, hdr map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, "http://example"+path, nil)
	r.RemoteAddr = remote
	for k, v := range hdr {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware_SixtyFirstRequestGetsJSON429(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	h, calls := newHandler(t, Options{
		Store:              infra.NewMemoryWindowStore(),
		Limits:             application.DefaultLimits(),
		TrustXForwardedFor: true,
		Now:                clock.Now,
	})

	for i := 0; i < 60; i++ {
		clock.now = clock.now.Add(150 * time.Millisecond)
		w := do(h, http.MethodGet, "/api/shipments/track", "172.16.0.1:40000", map[string]string{"X-Forwarded-For": "10.0.0.5"})
		if w.Code != http.StatusOK {
			t.Fatalf("expected request %d to pass, got %d", i+1, w.Code)
		}
	}

	w := do(h, http.MethodGet, "/api/shipments/track", "172.16.0.1:40000", map[string]string{"X-Forwarded-For": "10.0.0.5"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "3600" {
		t.Fatalf("expected Retry-After=3600, got %q", got)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected json content type, got %q", got)
	}
	want := `{"error":"Rate limit exceeded. Please try again later.","retryAfter":3600}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Fatalf("unexpected body:\n got %s\nwant %s", got, want)
	}
	if *calls != 60 {
		t.Fatalf("expected next handler to be called 60 times, got %d", *calls)
	}
}

func TestMiddleware_LoginPathHasOwnBudget(t *testing.T) {
	stats := infra.NewMemoryStatsStore()
	h, _ := newHandler(t, Options{
		Store:  infra.NewMemoryWindowStore(),
		Limits: application.DefaultLimits(),
		Stats:  stats,
	})

	for i := 0; i < 5; i++ {
		if w := do(h, http.MethodPost, "/api/auth/login", "10.0.0.9:1234", nil); w.Code != http.StatusOK {
			t.Fatalf("expected login attempt %d to pass, got %d", i+1, w.Code)
		}
	}
	w := do(h, http.MethodPost, "/api/auth/login", "10.0.0.9:1234", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 6th login to be rejected, got %d", w.Code)
	}
	var body rejectBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.RetryAfter != 3600 || body.Error != application.DefaultMessage {
		t.Fatalf("unexpected body %+v", body)
	}

	if w := do(h, http.MethodGet, "/api/quotes", "10.0.0.9:1234", nil); w.Code != http.StatusOK {
		t.Fatalf("expected regular route to keep working, got %d", w.Code)
	}

	if got := stats.DeniedByReason()[domain.ReasonLogin]; got != 1 {
		t.Fatalf("expected one login denial recorded, got %d", got)
	}
}

func TestMiddleware_DisabledPassesEverything(t *testing.T) {
	store := infra.NewMemoryWindowStore()
	limits := application.DefaultLimits()
	limits.Enabled = false
	h, calls := newHandler(t, Options{Store: store, Limits: limits})

	for i := 0; i < 200; i++ {
		if w := do(h, http.MethodPost, "/login", "10.0.0.1:1", nil); w.Code != http.StatusOK {
			t.Fatalf("expected pass-through, got %d", w.Code)
		}
	}
	if *calls != 200 {
		t.Fatalf("expected 200 calls, got %d", *calls)
	}
	if store.Len() != 0 {
		t.Fatalf("expected no bookkeeping when disabled, got %d keys", store.Len())
	}
}

func TestMiddleware_KeysAreIndependent(t *testing.T) {
	limits := application.Limits{Enabled: true, RequestsPerMinute: 1, RequestsPerHour: 10, LoginAttemptsPerHour: 1}
	h, _ := newHandler(t, Options{Store: infra.NewMemoryWindowStore(), Limits: limits, KeyHeader: "X-Api-Key"})

	if w := do(h, http.MethodGet, "/", "10.0.0.1:1", map[string]string{"X-Api-Key": "k1"}); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for k1, got %d", w.Code)
	}
	if w := do(h, http.MethodGet, "/", "10.0.0.1:1", map[string]string{"X-Api-Key": "k2"}); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for k2, got %d", w.Code)
	}
	if w := do(h, http.MethodGet, "/", "10.0.0.1:1", map[string]string{"X-Api-Key": "k1"}); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for k1, got %d", w.Code)
	}
}

func TestMiddleware_AddsRateLimitHeaders(t *testing.T) {
	h, _ := newHandler(t, Options{
		Store:               infra.NewMemoryWindowStore(),
		Limits:              application.DefaultLimits(),
		AddRateLimitHeaders: true,
	})

	w := do(h, http.MethodGet, "/", "10.0.0.1:1234", nil)
	if got := w.Header().Get("X-RateLimit-Key"); got != "10.0.0.1" {
		t.Fatalf("expected X-RateLimit-Key=10.0.0.1, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Limit-Minute"); got != "60" {
		t.Fatalf("expected minute limit header, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Limit-Hour"); got != "1000" {
		t.Fatalf("expected hour limit header, got %q", got)
	}
}

type brokenStore struct{}

func (brokenStore) Admit(context.Context, domain.Key, time.Time, []domain.WindowLimit) (domain.WindowResult, error) {
	return domain.WindowResult{}, errors.New("connection refused")
}

func (brokenStore) Count(context.Context, domain.Key, time.Time, time.Duration) (int, error) {
	return 0, errors.New("connection refused")
}

func TestMiddleware_StoreFailureLetsRequestThrough(t *testing.T) {
	h, calls := newHandler(t, Options{Store: brokenStore{}, Limits: application.DefaultLimits()})

	if w := do(h, http.MethodGet, "/", "10.0.0.1:1", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 on store failure, got %d", w.Code)
	}
	if *calls != 1 {
		t.Fatalf("expected next handler called")
	}
}

func TestLoginPathMatcher(t *testing.T) {
	m := LoginPathMatcher()
	if !m("/api/auth/login") || !m("/api/driver/LOGIN") {
		t.Fatalf("expected default matcher to match login paths")
	}
	if m("/api/shipments") {
		t.Fatalf("did not expect match")
	}

	custom := LoginPathMatcher(" /signin ", "", "/token")
	if !custom("/oauth/token") || !custom("/signin") || custom("/login") {
		t.Fatalf("unexpected custom matcher behaviour")
	}
}
