// Package config carrega a configuração do gateway: segredo da AWS, .env,
// arquivo YAML e variáveis de ambiente, nessa ordem de precedência crescente.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var ErrMissingSecret = errors.New("jwt.secret is required")

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	App         AppConfig         `yaml:"app"`
	JWT         JWTConfig         `yaml:"jwt"`
	Redis       RedisConfig       `yaml:"redis"`
	Database    DatabaseConfig    `yaml:"database"`
	Identity    IdentityConfig    `yaml:"identity"`
	Audit       AuditConfig       `yaml:"audit"`
	Stats       StatsConfig       `yaml:"stats"`
	Log         LogConfig         `yaml:"log"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listen-addr"`
	UpstreamURL     string        `yaml:"upstream-url"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout"`
}

type AppConfig struct {
	RateLimit RateLimitConfig `yaml:"rate-limit"`
}

// RateLimitConfig espelha app.rate-limit.*.
type RateLimitConfig struct {
	Enabled              bool          `yaml:"enabled"`
	RequestsPerMinute    int           `yaml:"requests-per-minute"`
	RequestsPerHour      int           `yaml:"requests-per-hour"`
	LoginAttemptsPerHour int           `yaml:"login-attempts-per-hour"`
	Store                string        `yaml:"store"` // memory | redis
	KeyHeader            string        `yaml:"key-header"`
	TrustXForwardedFor   bool          `yaml:"trust-x-forwarded-for"`
	LoginPaths           []string      `yaml:"login-paths"`
	AddHeaders           bool          `yaml:"add-headers"`
	RetryAfter           time.Duration `yaml:"retry-after"`
	MaxKeys              int           `yaml:"max-keys"`
	IdleTTL              time.Duration `yaml:"idle-ttl"`
}

type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
	Issuer string        `yaml:"issuer"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type IdentityConfig struct {
	Directory string     `yaml:"directory"` // memory | postgres
	Users     []UserSeed `yaml:"users"`
}

// UserSeed popula o diretório em memória.
type UserSeed struct {
	Username string   `yaml:"username"`
	Roles    []string `yaml:"roles"`
}

type AuditConfig struct {
	Sinks  []string `yaml:"sinks"` // log, postgres, prometheus
	Buffer int      `yaml:"buffer"`
}

type StatsConfig struct {
	Sinks     []string      `yaml:"sinks"` // memory, redis, prometheus
	Prefix    string        `yaml:"prefix"`
	TTL       time.Duration `yaml:"ttl"`
	Bucket    string        `yaml:"bucket"`
	TrackKeys bool          `yaml:"track-keys"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ConcurrencyConfig struct {
	Max            int           `yaml:"max"`
	AcquireTimeout time.Duration `yaml:"acquire-timeout"`
}

// Default devolve a configuração base, antes de arquivo e ambiente.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		App: AppConfig{RateLimit: RateLimitConfig{
			Enabled:              true,
			RequestsPerMinute:    60,
			RequestsPerHour:      1000,
			LoginAttemptsPerHour: 5,
			Store:                "memory",
			TrustXForwardedFor:   true,
			LoginPaths:           []string{"/login"},
			AddHeaders:           true,
			RetryAfter:           time.Hour,
			MaxKeys:              100_000,
			IdleTTL:              2 * time.Hour,
		}},
		JWT:      JWTConfig{TTL: 24 * time.Hour},
		Identity: IdentityConfig{Directory: "memory"},
		Audit:    AuditConfig{Sinks: []string{"log", "prometheus"}, Buffer: 1024},
		Stats: StatsConfig{
			Sinks:  []string{"prometheus"},
			Prefix: "ratelimit:stats",
			TTL:    24 * time.Hour,
			Bucket: "minute",
		},
		Log:         LogConfig{Level: "info", Format: "json"},
		Concurrency: ConcurrencyConfig{Max: 100},
	}
}

// Validate confere a configuração final. Sem segredo JWT o processo não sobe.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return ErrMissingSecret
	}
	if c.JWT.TTL <= 0 {
		return errors.New("jwt.ttl must be > 0")
	}

	rl := c.App.RateLimit
	if rl.Enabled {
		if rl.RequestsPerMinute <= 0 {
			return errors.New("app.rate-limit.requests-per-minute must be > 0")
		}
		if rl.RequestsPerHour <= 0 {
			return errors.New("app.rate-limit.requests-per-hour must be > 0")
		}
		if rl.LoginAttemptsPerHour <= 0 {
			return errors.New("app.rate-limit.login-attempts-per-hour must be > 0")
		}
		// menor que a maior janela faria o janitor esquecer clientes ativos
		if rl.IdleTTL > 0 && rl.IdleTTL < time.Hour {
			return errors.New("app.rate-limit.idle-ttl must be >= 1h")
		}
	}
	switch rl.Store {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("redis.addr is required when app.rate-limit.store=redis")
		}
	default:
		return fmt.Errorf("app.rate-limit.store: unknown value %q", rl.Store)
	}

	switch c.Identity.Directory {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Database.URL) == "" {
			return errors.New("database.url is required when identity.directory=postgres")
		}
	default:
		return fmt.Errorf("identity.directory: unknown value %q", c.Identity.Directory)
	}

	for _, s := range c.Audit.Sinks {
		switch s {
		case "log", "prometheus":
		case "postgres":
			if strings.TrimSpace(c.Database.URL) == "" {
				return errors.New("database.url is required for the postgres audit sink")
			}
		default:
			return fmt.Errorf("audit.sinks: unknown sink %q", s)
		}
	}
	for _, s := range c.Stats.Sinks {
		switch s {
		case "memory", "prometheus":
		case "redis":
			if strings.TrimSpace(c.Redis.Addr) == "" {
				return errors.New("redis.addr is required for the redis stats sink")
			}
		default:
			return fmt.Errorf("stats.sinks: unknown sink %q", s)
		}
	}

	if c.Concurrency.Max < 0 {
		return errors.New("concurrency.max must be >= 0")
	}
	if c.Server.UpstreamURL != "" {
		if _, err := url.Parse(c.Server.UpstreamURL); err != nil {
			return fmt.Errorf("server.upstream-url: %w", err)
		}
	}
	return nil
}

func (c Config) UsesPostgres() bool {
	if c.Identity.Directory == "postgres" {
		return true
	}
	return contains(c.Audit.Sinks, "postgres")
}

func (c Config) UsesRedis() bool {
	return c.App.RateLimit.Store == "redis" || contains(c.Stats.Sinks, "redis")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
