package infra

import (
	"context"

	"courier-gateway/internal/logging"
	"courier-gateway/middleware/auth"

	"github.com/rs/zerolog"
)

// LogAuditSink escreve cada evento como uma linha estruturada.
type LogAuditSink struct {
	Logger zerolog.Logger
}

func NewLogAuditSink(logger zerolog.Logger) *LogAuditSink {
	return &LogAuditSink{Logger: logger.With().Str("component", "audit").Logger()}
}

func (s *LogAuditSink) Record(ctx context.Context, ev auth.AuditEvent) {
	log := logging.FromContext(ctx, s.Logger)
	e := log.Info()
	if ev.Status == auth.AuditStatusFailed {
		e = log.Warn()
	}
	e.Str("action", ev.Action).
		Str("entity_type", ev.EntityType).
		Str("entity_id", ev.EntityID).
		Str("status", ev.Status).
		Str("client_ip", ev.ClientIP).
		Str("audit_request_id", ev.RequestID).
		Time("at", ev.At).
		Msg(ev.Message)
}
