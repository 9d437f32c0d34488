package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"courier-gateway/middleware/reqlog"
)

const (
	HeaderUser  = "X-Authenticated-User"
	HeaderRoles = "X-Authenticated-Roles"
)

// Middleware roda o Authenticator e, se houver identidade, coloca no ctx.
// A requisição segue sempre; clientIP (opcional) só alimenta a auditoria.
func Middleware(a *Authenticator, clientIP func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ""
			if clientIP != nil {
				ip = clientIP(r)
			}
			ctx := WithAuditMeta(r.Context(), reqlog.RequestIDFromContext(r.Context()), ip)

			if id, ok := a.Authenticate(ctx, r.Header.Get("Authorization")); ok {
				ctx = WithIdentity(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}

// RequireIdentity responde 401 quando a requisição chegou anônima.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuthority responde 401 sem identidade e 403 sem o papel.
func RequireAuthority(authority string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !id.HasAuthority(authority) {
				writeError(w, http.StatusForbidden, "Insufficient privileges")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ForwardIdentity repassa a identidade ao upstream em headers.
// Headers com o mesmo nome vindos do cliente são sempre descartados.
func ForwardIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(HeaderUser)
		r.Header.Del(HeaderRoles)
		if id, ok := IdentityFromContext(r.Context()); ok {
			r.Header.Set(HeaderUser, id.Username)
			if len(id.Authorities) > 0 {
				r.Header.Set(HeaderRoles, strings.Join(id.Authorities, ","))
			}
		}
		next.ServeHTTP(w, r)
	})
}
