package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courier-gateway/internal/config"
	"courier-gateway/internal/logging"
	"courier-gateway/middleware/auth"
	authinfra "courier-gateway/middleware/auth/infra"
	"courier-gateway/middleware/ratelimit"
	"courier-gateway/middleware/ratelimit/application"
	"courier-gateway/middleware/ratelimit/infra"
	"courier-gateway/middleware/reqlog"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

func main() {
	// Exemplo: os mesmos middlewares direto numa API, sem proxy.
	logger := logging.New(logging.Config{Level: os.Getenv("LOG_LEVEL"), Format: "console"})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx, "", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	tokens, err := auth.NewTokenService(cfg.JWT.Secret, auth.WithTTL(cfg.JWT.TTL), auth.WithIssuer(cfg.JWT.Issuer))
	if err != nil {
		logger.Fatal().Err(err).Msg("token service")
	}

	dir := authinfra.NewMemoryDirectory()
	for _, u := range cfg.Identity.Users {
		dir.Put(auth.Identity{Username: u.Username, Authorities: u.Roles})
	}

	store := infra.NewMemoryWindowStore()
	store.StartJanitor(ctx)

	rl := cfg.App.RateLimit
	r := mux.NewRouter()
	r.Handle("/api/auth/login", loginHandler(tokens, dir, os.Getenv("DEMO_PASSWORD"), logger)).Methods(http.MethodPost)
	r.Handle("/api/track/{code}", auth.RequireIdentity(http.HandlerFunc(trackHandler))).Methods(http.MethodGet)

	// envolve o roteador inteiro: r.Use não roda em 404/405 e essas também contam
	var h http.Handler = r
	h = auth.Middleware(auth.NewAuthenticator(tokens, dir, authinfra.NewLogAuditSink(logger), logger), nil)(h)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Store: store,
		Limits: application.Limits{
			Enabled:              rl.Enabled,
			RequestsPerMinute:    rl.RequestsPerMinute,
			RequestsPerHour:      rl.RequestsPerHour,
			LoginAttemptsPerHour: rl.LoginAttemptsPerHour,
		},
		Logger:              logger,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
	})(h)
	h = reqlog.Recovery(logger)(h)
	h = reqlog.AccessLog(logger)(h)
	h = reqlog.RequestID(logger)(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("example server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// loginHandler é só para demonstração: uma senha única (DEMO_PASSWORD) vale
// para todos os usuários do diretório.
func loginHandler(tokens *auth.TokenService, dir auth.IdentityLookup, password string, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
			return
		}

		id, err := dir.LookupIdentity(r.Context(), req.Username)
		if err != nil || password == "" || subtle.ConstantTimeCompare([]byte(req.Password), []byte(password)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
			return
		}

		token, exp, err := tokens.Issue(id.Username, id.Authorities)
		if err != nil {
			logging.FromContext(r.Context(), logger).Error().Err(err).Msg("issue token")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp})
	})
}

func trackHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"code":        mux.Vars(r)["code"],
		"status":      "IN_TRANSIT",
		"requestedBy": id.Username,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
