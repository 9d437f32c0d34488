// Package logging monta o logger zerolog da aplicação e os helpers de logger
// por requisição (request_id, client_ip).
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level  string // debug, info, warn, error
	Format string // json (padrão) ou console
	Output string // stdout (padrão), stderr ou caminho de arquivo
}

// New cria o logger raiz. Se o arquivo de saída não abrir, cai para stdout.
func New(cfg Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	var openErr error
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			openErr = err
		} else {
			out = f
		}
	}

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	if openErr != nil {
		logger.Warn().Err(openErr).Str("output", cfg.Output).Msg("failed to open log file, using stdout")
	}
	return logger
}

// ParseLevel aceita os nomes usuais; desconhecido vira info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// FromContext devolve o logger da requisição; sem logger no ctx usa fallback.
func FromContext(ctx context.Context, fallback zerolog.Logger) *zerolog.Logger {
	if ctx != nil {
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			return l
		}
	}
	return &fallback
}
