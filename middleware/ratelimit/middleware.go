package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"courier-gateway/internal/logging"
	"courier-gateway/middleware/ratelimit/application"
	"courier-gateway/middleware/ratelimit/domain"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type KeyFunc func(r *http.Request) string

// PathMatcher diz se a rota é de login (sujeita ao limite de tentativas).
type PathMatcher func(path string) bool

type Options struct {
	Store  domain.WindowStore
	Limits application.Limits
	Stats  domain.StatsStore
	Logger zerolog.Logger

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	LoginPath          PathMatcher

	RejectStatus        int
	RetryAfter          time.Duration
	Message             string
	AddRateLimitHeaders bool

	// Now permite fixar o relógio nos testes.
	Now func() time.Time
}

// rejectBody é o corpo JSON da resposta 429.
type rejectBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// LoginPathMatcher casa rotas que contêm algum dos fragmentos (ex.: "/login").
// Sem fragmentos usa "/login".
func LoginPathMatcher(fragments ...string) PathMatcher {
	cleaned := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			cleaned = append(cleaned, f)
		}
	}
	if len(cleaned) == 0 {
		cleaned = []string{"/login"}
	}
	return func(path string) bool {
		p := strings.ToLower(path)
		for _, f := range cleaned {
			if strings.Contains(p, f) {
				return true
			}
		}
		return false
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.LoginPath == nil {
		opts.LoginPath = LoginPathMatcher()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	svc := application.Service{
		Store:      opts.Store,
		Limits:     opts.Limits,
		RetryAfter: opts.RetryAfter,
		Message:    opts.Message,
	}

	// rejeições em rajada geram muito log: primeiras 10, depois 1 por segundo
	rejectLog := &rate.Sometimes{First: 10, Interval: time.Second}
	storeErrLog := &rate.Sometimes{First: 3, Interval: 10 * time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !opts.Limits.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := opts.KeyFn(r)
			login := opts.LoginPath(r.URL.Path)
			at := opts.Now()
			log := logging.FromContext(r.Context(), opts.Logger)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				w.Header().Set("X-RateLimit-Limit-Minute", formatInt(opts.Limits.RequestsPerMinute))
				w.Header().Set("X-RateLimit-Limit-Hour", formatInt(opts.Limits.RequestsPerHour))
			}

			dec, err := svc.Decide(r.Context(), domain.Request{Key: domain.Key(key), LoginPath: login, At: at})
			if err != nil {
				storeErrLog.Do(func() {
					log.Error().Err(err).Str("client", key).Msg("rate limit store failed, letting request through")
				})
			}

			if opts.Stats != nil {
				if err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     domain.Key(key),
					Allowed: dec.Allowed,
					Reason:  dec.Reason,
					Login:   login,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      at,
				}); err != nil {
					log.Debug().Err(err).Msg("rate limit stats record failed")
				}
			}

			if !dec.Allowed {
				rejectLog.Do(func() {
					log.Warn().
						Str("client", key).
						Str("reason", string(dec.Reason)).
						Str("path", r.URL.Path).
						Msg("rate limit exceeded")
				})
				retry := int(dec.RetryAfter / time.Second)
				w.Header().Set("Retry-After", formatInt(retry))
				writeJSON(w, opts.RejectStatus, rejectBody{Error: dec.Message, RetryAfter: retry})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
