package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courier-gateway/internal/config"
	"courier-gateway/internal/gateway"
	"courier-gateway/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "", "caminho do arquivo YAML (padrão: $CONFIG_FILE)")
	flag.Parse()

	boot := logging.New(logging.Config{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx, *configPath, boot)
	if err != nil {
		boot.Fatal().Err(err).Msg("config error")
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}).
		With().Str("service", "gateway").Logger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gw, err := gateway.New(ctx, cfg, logger, gateway.Options{Registry: reg})
	if err != nil {
		logger.Fatal().Err(err).Msg("gateway setup failed")
	}
	gw.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           gw.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown")
		}
		if err := gw.Close(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("gateway close")
		}
	}()

	rl := cfg.App.RateLimit
	logger.Info().
		Str("addr", cfg.Server.ListenAddr).
		Str("upstream", cfg.Server.UpstreamURL).
		Msg("gateway listening")
	logger.Info().
		Bool("enabled", rl.Enabled).
		Int("per_minute", rl.RequestsPerMinute).
		Int("per_hour", rl.RequestsPerHour).
		Int("login_per_hour", rl.LoginAttemptsPerHour).
		Str("store", rl.Store).
		Str("key_header", rl.KeyHeader).
		Bool("trust_xff", rl.TrustXForwardedFor).
		Strs("login_paths", rl.LoginPaths).
		Msg("rate limit")
	logger.Info().
		Str("directory", cfg.Identity.Directory).
		Strs("audit_sinks", cfg.Audit.Sinks).
		Strs("stats_sinks", cfg.Stats.Sinks).
		Int("concurrency_max", cfg.Concurrency.Max).
		Msg("pipeline")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
	// espera a fila de auditoria drenar
	<-closed
}
