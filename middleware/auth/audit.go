package auth

import (
	"context"
	"time"
)

const (
	AuditActionAPIAccess = "API_ACCESS"
	AuditEntityAuth      = "AUTH"
	AuditStatusSuccess   = "SUCCESS"
	AuditStatusFailed    = "FAILED"
)

// AuditEvent é uma linha de auditoria (action, entityType, entityId, status, message).
type AuditEvent struct {
	Action     string
	EntityType string
	EntityID   string
	Status     string
	Message    string

	RequestID string
	ClientIP  string
	At        time.Time
}

// AuditSink recebe eventos de auditoria. É fire-and-forget: implementações
// tratam os próprios erros e não devem travar a requisição.
type AuditSink interface {
	Record(ctx context.Context, ev AuditEvent)
}

// AuditFunc adapta uma função para AuditSink.
type AuditFunc func(ctx context.Context, ev AuditEvent)

func (f AuditFunc) Record(ctx context.Context, ev AuditEvent) { f(ctx, ev) }

type auditMetaKey struct{}

type auditMeta struct {
	requestID string
	clientIP  string
}

// WithAuditMeta guarda request id e IP do cliente para os eventos desta requisição.
func WithAuditMeta(ctx context.Context, requestID, clientIP string) context.Context {
	return context.WithValue(ctx, auditMetaKey{}, auditMeta{requestID: requestID, clientIP: clientIP})
}

func auditMetaFrom(ctx context.Context) auditMeta {
	m, _ := ctx.Value(auditMetaKey{}).(auditMeta)
	return m
}
