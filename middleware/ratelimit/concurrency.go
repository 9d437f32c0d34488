package ratelimit

import (
	"net/http"
	"time"

	"courier-gateway/middleware/ratelimit/application"
	"courier-gateway/middleware/ratelimit/domain"
	"courier-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// Pool substitui o semáforo padrão (NewChanPool(Max)).
	Pool domain.SlotPool
}

type errorBody struct {
	Error string `json:"error"`
}

// ConcurrencyMiddleware limita requisições em voo. Max <= 0 desliga.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 && opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Pool == nil {
		opts.Pool = infra.NewChanPool(opts.Max)
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				writeJSON(w, opts.RejectStatus, errorBody{Error: "Server busy. Please try again later."})
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
