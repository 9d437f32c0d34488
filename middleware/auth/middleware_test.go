package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"courier-gateway/middleware/reqlog"

	"github.com/rs/zerolog"
)

func TestMiddleware_PutsIdentityInContext(t *testing.T) {
	audit := &auditRecorder{}
	a, tokens := newTestAuthenticator(t, aliceLookup(), audit, zerolog.Nop())
	token, _, _ := tokens.Issue("alice", nil)

	var got Identity
	var ok bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = IdentityFromContext(r.Context())
	})
	clientIP := func(*http.Request) string { return "10.0.0.5" }
	h := reqlog.RequestID(zerolog.Nop())(Middleware(a, clientIP)(inner))

	r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	r.Header.Set(reqlog.HeaderRequestID, "req-42")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if !ok || got.Username != "alice" {
		t.Fatalf("expected alice in context, got %+v ok=%v", got, ok)
	}
	events := audit.all()
	if len(events) != 1 || events[0].RequestID != "req-42" || events[0].ClientIP != "10.0.0.5" {
		t.Fatalf("unexpected audit events %+v", events)
	}
}

func TestMiddleware_AnonymousContinues(t *testing.T) {
	a, _ := newTestAuthenticator(t, aliceLookup(), nil, zerolog.Nop())

	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := IdentityFromContext(r.Context()); ok {
			t.Errorf("expected anonymous request")
		}
	})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer broken")
	Middleware(a, nil)(inner).ServeHTTP(httptest.NewRecorder(), r)

	if !called {
		t.Fatalf("anonymous request must reach the next handler")
	}
}

func TestRequireIdentity(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RequireIdentity(ok)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), "Authentication required") {
		t.Fatalf("expected 401, got %d %q", w.Code, w.Body.String())
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(WithIdentity(r.Context(), Identity{Username: "alice"}))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", w.Code)
	}
}

func TestRequireAuthority(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RequireAuthority("ADMIN")(ok)

	withID := func(id Identity) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		return r.WithContext(WithIdentity(context.Background(), id))
	}

	cases := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"anonymous", httptest.NewRequest(http.MethodGet, "/", nil), http.StatusUnauthorized},
		{"missing role", withID(Identity{Username: "alice", Authorities: []string{"USER"}}), http.StatusForbidden},
		{"has role", withID(Identity{Username: "root", Authorities: []string{"USER", "ADMIN"}}), http.StatusNoContent},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, tc.req)
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, w.Code)
		}
	}
}

func TestForwardIdentity_StripsSpoofedHeaders(t *testing.T) {
	var user, roles string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, roles = r.Header.Get(HeaderUser), r.Header.Get(HeaderRoles)
	})
	h := ForwardIdentity(inner)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderUser, "admin")
	r.Header.Set(HeaderRoles, "ADMIN")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if user != "" || roles != "" {
		t.Fatalf("spoofed headers reached upstream: user=%q roles=%q", user, roles)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderUser, "admin")
	r = r.WithContext(WithIdentity(r.Context(), Identity{Username: "alice", Authorities: []string{"USER", "BILLING"}}))
	h.ServeHTTP(httptest.NewRecorder(), r)
	if user != "alice" || roles != "USER,BILLING" {
		t.Fatalf("unexpected forwarded identity user=%q roles=%q", user, roles)
	}
}
