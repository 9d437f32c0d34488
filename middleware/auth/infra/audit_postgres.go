package infra

import (
	"context"
	"database/sql"
	"time"

	"courier-gateway/middleware/auth"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const insertAuditQuery = `INSERT INTO audit_logs (id, action, entity_type, entity_id, status, message, request_id, client_ip, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// PostgresAuditSink grava os eventos em audit_logs. Falha de escrita só
// vira log: auditoria nunca interrompe a requisição.
type PostgresAuditSink struct {
	db      *sql.DB
	logger  zerolog.Logger
	timeout time.Duration
}

func NewPostgresAuditSink(db *sql.DB, logger zerolog.Logger) *PostgresAuditSink {
	return &PostgresAuditSink{db: db, logger: logger, timeout: 2 * time.Second}
}

func (s *PostgresAuditSink) Record(ctx context.Context, ev auth.AuditEvent) {
	// o evento pode sobreviver à requisição (AsyncSink), então não herda o cancelamento
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, insertAuditQuery,
		uuid.NewString(), ev.Action, ev.EntityType, ev.EntityID, ev.Status,
		ev.Message, ev.RequestID, ev.ClientIP, at.UTC(),
	)
	if err != nil {
		s.logger.Error().Err(err).
			Str("action", ev.Action).
			Str("status", ev.Status).
			Str("entity_id", ev.EntityID).
			Msg("failed to persist audit event")
	}
}
