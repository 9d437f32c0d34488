package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Load monta a configuração: segredo da AWS (se configurado) e .env viram
// variáveis de ambiente; depois vem o YAML em path (ou CONFIG_FILE) e por
// último as variáveis de ambiente. O resultado já sai validado.
func Load(ctx context.Context, path string, logger zerolog.Logger) (Config, error) {
	if err := loadAWSSecretsIntoEnv(ctx, logger); err != nil {
		logger.Warn().Err(err).Msg("skipping AWS Secrets Manager load")
	}
	loadDotEnv(logger)

	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func loadDotEnv(logger zerolog.Logger) {
	envFile := os.Getenv("ENV_FILE_PATH")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug().Str("path", envFile).Msg(".env not found, using process environment")
			return
		}
		logger.Warn().Err(err).Str("path", envFile).Msg("could not load .env")
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.ListenAddr = getenvDefault("LISTEN_ADDR", cfg.Server.ListenAddr)
	cfg.Server.UpstreamURL = getenvDefault("UPSTREAM_URL", cfg.Server.UpstreamURL)
	cfg.Server.ShutdownTimeout = getenvDurationDefault("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	rl := &cfg.App.RateLimit
	rl.Enabled = getenvBoolDefault("APP_RATE_LIMIT_ENABLED", rl.Enabled)
	rl.RequestsPerMinute = getenvIntDefault("APP_RATE_LIMIT_REQUESTS_PER_MINUTE", rl.RequestsPerMinute)
	rl.RequestsPerHour = getenvIntDefault("APP_RATE_LIMIT_REQUESTS_PER_HOUR", rl.RequestsPerHour)
	rl.LoginAttemptsPerHour = getenvIntDefault("APP_RATE_LIMIT_LOGIN_ATTEMPTS_PER_HOUR", rl.LoginAttemptsPerHour)
	rl.Store = getenvDefault("RATE_STORE", rl.Store)
	rl.KeyHeader = getenvDefault("RATE_KEY_HEADER", rl.KeyHeader)
	rl.TrustXForwardedFor = getenvBoolDefault("TRUST_XFF", rl.TrustXForwardedFor)
	rl.LoginPaths = getenvListDefault("RATE_LOGIN_PATHS", rl.LoginPaths)
	rl.AddHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", rl.AddHeaders)
	rl.RetryAfter = getenvDurationDefault("RETRY_AFTER", rl.RetryAfter)
	rl.MaxKeys = getenvIntDefault("RATE_MAX_KEYS", rl.MaxKeys)
	rl.IdleTTL = getenvDurationDefault("RATE_IDLE_TTL", rl.IdleTTL)

	cfg.JWT.Secret = getenvDefault("JWT_SECRET", cfg.JWT.Secret)
	cfg.JWT.TTL = getenvDurationDefault("JWT_TTL", cfg.JWT.TTL)
	cfg.JWT.Issuer = getenvDefault("JWT_ISSUER", cfg.JWT.Issuer)

	cfg.Redis.Addr = getenvDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenvDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getenvIntDefault("REDIS_DB", cfg.Redis.DB)

	cfg.Database.URL = getenvDefault("DATABASE_URL", cfg.Database.URL)

	cfg.Identity.Directory = getenvDefault("IDENTITY_DIRECTORY", cfg.Identity.Directory)
	if v := os.Getenv("IDENTITY_USERS"); v != "" {
		cfg.Identity.Users = parseUsers(v)
	}

	cfg.Audit.Sinks = getenvListDefault("AUDIT_SINKS", cfg.Audit.Sinks)
	cfg.Audit.Buffer = getenvIntDefault("AUDIT_BUFFER", cfg.Audit.Buffer)

	cfg.Stats.Sinks = getenvListDefault("RATE_STATS_SINKS", cfg.Stats.Sinks)
	cfg.Stats.Prefix = getenvDefault("RATE_STATS_PREFIX", cfg.Stats.Prefix)
	cfg.Stats.TTL = getenvDurationDefault("RATE_STATS_TTL", cfg.Stats.TTL)
	cfg.Stats.Bucket = getenvDefault("RATE_STATS_BUCKET", cfg.Stats.Bucket)
	cfg.Stats.TrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", cfg.Stats.TrackKeys)

	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)

	cfg.Concurrency.Max = getenvIntDefault("CONCURRENCY_MAX", cfg.Concurrency.Max)
	cfg.Concurrency.AcquireTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", cfg.Concurrency.AcquireTimeout)
}

// parseUsers lê "alice=USER|ADMIN,bob=USER".
func parseUsers(v string) []UserSeed {
	var users []UserSeed
	for _, item := range strings.Split(v, ",") {
		name, roles, _ := strings.Cut(strings.TrimSpace(item), "=")
		if name == "" {
			continue
		}
		u := UserSeed{Username: name}
		for _, r := range strings.Split(roles, "|") {
			if r = strings.TrimSpace(r); r != "" {
				u.Roles = append(u.Roles, r)
			}
		}
		users = append(users, u)
	}
	return users
}
