// Package gateway monta o gateway de borda a partir da configuração:
// stores de janela, estatísticas, diretório de identidades, auditoria e o
// roteador com o pipeline de middlewares.
package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"courier-gateway/internal/config"
	"courier-gateway/middleware/auth"
	authinfra "courier-gateway/middleware/auth/infra"
	"courier-gateway/middleware/ratelimit"
	"courier-gateway/middleware/ratelimit/application"
	"courier-gateway/middleware/ratelimit/domain"
	"courier-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Gateway guarda o handler pronto e os recursos que precisam ser fechados.
type Gateway struct {
	Handler http.Handler
	Tokens  *auth.TokenService

	windows *infra.MemoryWindowStore
	rdb     *redis.Client
	db      *sql.DB
	audit   *authinfra.AsyncSink
	logger  zerolog.Logger
}

// Options permite injetar dependências já abertas (testes) e o upstream.
type Options struct {
	Registry *prometheus.Registry
	Redis    *redis.Client
	DB       *sql.DB
	// Upstream substitui o reverse proxy para server.upstream-url.
	Upstream http.Handler
}

func New(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts Options) (*Gateway, error) {
	g := &Gateway{logger: logger, rdb: opts.Redis, db: opts.DB}
	ok := false
	defer func() {
		if !ok {
			_ = g.Close(context.Background())
		}
	}()

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	upstream := opts.Upstream
	if upstream == nil {
		if cfg.Server.UpstreamURL == "" {
			return nil, errors.New("server.upstream-url is required")
		}
		proxy, err := NewProxy(cfg.Server.UpstreamURL, logger)
		if err != nil {
			return nil, err
		}
		upstream = proxy
	}

	if cfg.UsesRedis() && g.rdb == nil {
		rdb, err := openRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		g.rdb = rdb
	}
	if cfg.UsesPostgres() && g.db == nil {
		db, err := authinfra.OpenPostgres(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		g.db = db
	}

	windows := g.windowStore(cfg.App.RateLimit)
	stats, memStats, err := g.statsStore(cfg.Stats, reg)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenService(cfg.JWT.Secret, auth.WithTTL(cfg.JWT.TTL), auth.WithIssuer(cfg.JWT.Issuer))
	if err != nil {
		return nil, err
	}
	g.Tokens = tokens

	sink, err := g.auditSink(cfg.Audit, reg)
	if err != nil {
		return nil, err
	}
	authenticator := auth.NewAuthenticator(tokens, g.directory(cfg.Identity), sink, logger)

	rl := cfg.App.RateLimit
	clientIP := ratelimit.DefaultKeyFunc("", rl.TrustXForwardedFor)

	concurrency := ratelimit.ConcurrencyOptions{
		Max:            cfg.Concurrency.Max,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.Concurrency.AcquireTimeout,
	}
	if cfg.Concurrency.Max > 0 {
		pool := infra.NewChanPool(cfg.Concurrency.Max)
		concurrency.Pool = pool
		if err := registerInFlight(reg, pool); err != nil {
			return nil, err
		}
	}

	g.Handler = NewRouter(Pipeline{
		Logger: logger,
		RateLimit: ratelimit.Options{
			Store: windows,
			Limits: application.Limits{
				Enabled:              rl.Enabled,
				RequestsPerMinute:    rl.RequestsPerMinute,
				RequestsPerHour:      rl.RequestsPerHour,
				LoginAttemptsPerHour: rl.LoginAttemptsPerHour,
			},
			Stats:               stats,
			Logger:              logger,
			KeyHeader:           rl.KeyHeader,
			TrustXForwardedFor:  rl.TrustXForwardedFor,
			LoginPath:           ratelimit.LoginPathMatcher(rl.LoginPaths...),
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          rl.RetryAfter,
			AddRateLimitHeaders: rl.AddHeaders,
		},
		Concurrency:   concurrency,
		Authenticator: authenticator,
		ClientIP:      clientIP,
		Upstream:      upstream,
		Gatherer:      reg,
		MemoryStats:   memStats,
		Ready:         g.ready,
	})

	ok = true
	return g, nil
}

// Start liga as rotinas de fundo (janitor do store em memória).
func (g *Gateway) Start(ctx context.Context) {
	if g.windows != nil {
		g.windows.StartJanitor(ctx)
	}
}

// Close drena a fila de auditoria e fecha Redis/Postgres.
func (g *Gateway) Close(ctx context.Context) error {
	var errs []error
	if g.audit != nil {
		if err := g.audit.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain audit queue: %w", err))
		}
		g.audit = nil
	}
	if g.rdb != nil {
		if err := g.rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		g.rdb = nil
	}
	if g.db != nil {
		if err := g.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close postgres: %w", err))
		}
		g.db = nil
	}
	return errors.Join(errs...)
}

func (g *Gateway) ready() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if g.rdb != nil {
		if err := g.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if g.db != nil {
		if err := g.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (g *Gateway) windowStore(rl config.RateLimitConfig) domain.WindowStore {
	if rl.Store == "redis" {
		return infra.NewRedisWindowStore(g.rdb)
	}
	g.windows = infra.NewMemoryWindowStore(
		infra.WithMaxKeys(rl.MaxKeys),
		infra.WithIdleTTL(rl.IdleTTL),
	)
	return g.windows
}

func (g *Gateway) statsStore(cfg config.StatsConfig, reg prometheus.Registerer) (domain.StatsStore, *infra.MemoryStatsStore, error) {
	var (
		stores infra.MultiStats
		mem    *infra.MemoryStatsStore
	)
	for _, name := range cfg.Sinks {
		switch name {
		case "memory":
			mem = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.TrackKeys))
			stores = append(stores, mem)
		case "redis":
			stores = append(stores, infra.NewRedisStatsStore(g.rdb,
				infra.WithStatsPrefix(cfg.Prefix),
				infra.WithStatsTTL(cfg.TTL),
				infra.WithStatsBucket(cfg.Bucket),
				infra.WithStatsTrackKeys(cfg.TrackKeys),
			))
		case "prometheus":
			p, err := infra.NewPrometheusStatsStore(reg)
			if err != nil {
				return nil, nil, fmt.Errorf("register rate limit metrics: %w", err)
			}
			stores = append(stores, p)
		}
	}
	if len(stores) == 0 {
		return nil, nil, nil
	}
	return stores, mem, nil
}

func (g *Gateway) directory(cfg config.IdentityConfig) auth.IdentityLookup {
	if cfg.Directory == "postgres" {
		return authinfra.NewPostgresDirectory(g.db)
	}
	dir := authinfra.NewMemoryDirectory()
	for _, u := range cfg.Users {
		dir.Put(auth.Identity{Username: u.Username, Authorities: u.Roles})
	}
	return dir
}

func (g *Gateway) auditSink(cfg config.AuditConfig, reg prometheus.Registerer) (auth.AuditSink, error) {
	var sinks authinfra.MultiSink
	for _, name := range cfg.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, authinfra.NewLogAuditSink(g.logger))
		case "postgres":
			sinks = append(sinks, authinfra.NewPostgresAuditSink(g.db, g.logger))
		case "prometheus":
			p, err := authinfra.NewPrometheusAuditSink(reg)
			if err != nil {
				return nil, fmt.Errorf("register audit metrics: %w", err)
			}
			sinks = append(sinks, p)
		}
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	g.audit = authinfra.NewAsyncSink(sinks, cfg.Buffer, g.logger)
	return g.audit, nil
}

func registerInFlight(reg prometheus.Registerer, pool domain.SlotPool) error {
	inflight, ok := pool.(domain.InFlight)
	if !ok {
		return nil
	}
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gateway_inflight_requests",
		Help: "Requests currently holding a concurrency slot",
	}, func() float64 { return float64(inflight.InUse()) }))
}
