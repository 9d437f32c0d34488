package gateway

import (
	"encoding/json"
	"net/http"

	"courier-gateway/middleware/auth"
	"courier-gateway/middleware/ratelimit"
	"courier-gateway/middleware/ratelimit/infra"
	"courier-gateway/middleware/reqlog"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Pipeline são as peças já montadas que o roteador encadeia.
type Pipeline struct {
	Logger        zerolog.Logger
	RateLimit     ratelimit.Options
	Concurrency   ratelimit.ConcurrencyOptions
	Authenticator *auth.Authenticator
	ClientIP      ratelimit.KeyFunc
	Upstream      http.Handler

	Gatherer prometheus.Gatherer
	// MemoryStats, se presente, é exposto em /_gateway/stats para ADMIN.
	MemoryStats *infra.MemoryStatsStore
	Ready       func() error
}

// NewRouter monta o roteador. Toda requisição, inclusive /metrics, /healthz e
// as que terminam em 404/405, passa por request id, access log, recovery,
// rate limit e limite de concorrência. Autenticação e repasse de identidade
// valem só para as rotas da API.
func NewRouter(p Pipeline) http.Handler {
	r := mux.NewRouter()

	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status, body := http.StatusOK, map[string]string{"status": "ok"}
		if p.Ready != nil {
			if err := p.Ready(); err != nil {
				status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()}
			}
		}
		writeJSON(w, status, body)
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/").Subrouter()
	api.Use(
		auth.Middleware(p.Authenticator, p.ClientIP),
		auth.ForwardIdentity,
	)

	if p.MemoryStats != nil {
		api.Handle("/_gateway/stats", auth.RequireAuthority("ADMIN")(statsHandler(p.MemoryStats))).Methods(http.MethodGet)
	}
	api.PathPrefix("/").Handler(p.Upstream)

	// r.Use só roda quando alguma rota casa; o limite precisa valer antes disso.
	var h http.Handler = r
	h = ratelimit.ConcurrencyMiddleware(p.Concurrency)(h)
	h = ratelimit.Middleware(p.RateLimit)(h)
	h = reqlog.Recovery(p.Logger)(h)
	h = reqlog.AccessLog(p.Logger)(h)
	h = reqlog.RequestID(p.Logger)(h)
	return h
}

type statsResponse struct {
	Allowed  int64            `json:"allowed"`
	Denied   int64            `json:"denied"`
	ByReason map[string]int64 `json:"deniedByReason"`
	ByRoute  map[string]int64 `json:"deniedByRoute"`
}

func statsHandler(s *infra.MemoryStatsStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		total := s.Total()
		resp := statsResponse{
			Allowed:  total.Allowed,
			Denied:   total.Denied,
			ByReason: map[string]int64{},
			ByRoute:  map[string]int64{},
		}
		for reason, n := range s.DeniedByReason() {
			resp.ByReason[string(reason)] = n
		}
		for route, c := range s.ByRoute() {
			if c.Denied > 0 {
				resp.ByRoute[route] = c.Denied
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
