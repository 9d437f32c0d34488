package auth

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"courier-gateway/internal/logging"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Authenticator resolve a identidade a partir do header Authorization.
type Authenticator struct {
	Tokens     *TokenService
	Identities IdentityLookup
	Audit      AuditSink
	Logger     zerolog.Logger
	Now        func() time.Time

	// tokens inválidos chegam em rajada (scanners); o warn é amostrado
	invalidLog rate.Sometimes
}

func NewAuthenticator(tokens *TokenService, identities IdentityLookup, audit AuditSink, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		Tokens:     tokens,
		Identities: identities,
		Audit:      audit,
		Logger:     logger,
		Now:        time.Now,
		invalidLog: rate.Sometimes{First: 10, Interval: time.Second},
	}
}

// Authenticate devolve a identidade do token ou ok=false (anônimo).
// Nunca devolve erro e nunca entra em panic: falhas ficam no log/auditoria.
//
// Se o ctx já tem identidade, ela é mantida e nenhum lookup é feito.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (id Identity, ok bool) {
	token, hasBearer := BearerToken(header)
	if !hasBearer {
		return Identity{}, false
	}
	log := logging.FromContext(ctx, a.Logger)

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic during authentication: %v", rec)
			log.Error().Err(err).Bytes("stack", debug.Stack()).Msg("authentication failed")
			a.audit(ctx, AuditStatusFailed, "", err.Error())
			id, ok = Identity{}, false
		}
	}()

	if a.Tokens == nil {
		return Identity{}, false
	}

	subject, claims, err := a.Tokens.Subject(token)
	if err != nil {
		a.invalidLog.Do(func() {
			log.Warn().Err(err).Msg("could not extract subject from bearer token")
		})
		return Identity{}, false
	}

	if existing, found := IdentityFromContext(ctx); found {
		return existing, true
	}

	if a.Identities == nil {
		return Identity{}, false
	}
	found, err := a.Identities.LookupIdentity(ctx, subject)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("identity lookup failed")
		a.audit(ctx, AuditStatusFailed, subject, err.Error())
		return Identity{}, false
	}

	if !a.Tokens.Valid(claims, found) {
		log.Debug().Str("subject", subject).Msg("bearer token rejected for identity")
		return Identity{}, false
	}

	a.audit(ctx, AuditStatusSuccess, found.Username, "JWT authentication successful")
	return found, true
}

func (a *Authenticator) audit(ctx context.Context, status, entityID, message string) {
	if a.Audit == nil {
		return
	}
	// sink com defeito não pode derrubar a requisição
	defer func() {
		if rec := recover(); rec != nil {
			logging.FromContext(ctx, a.Logger).Error().Interface("panic", rec).Msg("audit sink panicked")
		}
	}()
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	meta := auditMetaFrom(ctx)
	a.Audit.Record(ctx, AuditEvent{
		Action:     AuditActionAPIAccess,
		EntityType: AuditEntityAuth,
		EntityID:   entityID,
		Status:     status,
		Message:    message,
		RequestID:  meta.requestID,
		ClientIP:   meta.clientIP,
		At:         now(),
	})
}
