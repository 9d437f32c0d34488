package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"courier-gateway/middleware/ratelimit/domain"
)

const (
	DefaultRequestsPerMinute    = 60
	DefaultRequestsPerHour      = 1000
	DefaultLoginAttemptsPerHour = 5

	DefaultMessage    = "Rate limit exceeded. Please try again later."
	DefaultRetryAfter = time.Hour

	generalPrefix = "req:"
	loginPrefix   = "login:"
)

// Limits são os limites configuráveis (app.rate-limit.*).
type Limits struct {
	Enabled              bool
	RequestsPerMinute    int
	RequestsPerHour      int
	LoginAttemptsPerHour int
}

// DefaultLimits devolve os valores padrão: ligado, 60/min, 1000/h, 5 logins/h.
func DefaultLimits() Limits {
	return Limits{
		Enabled:              true,
		RequestsPerMinute:    DefaultRequestsPerMinute,
		RequestsPerHour:      DefaultRequestsPerHour,
		LoginAttemptsPerHour: DefaultLoginAttemptsPerHour,
	}
}

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// A mensagem e o RetryAfter são os mesmos seja qual for a janela estourada.
type Service struct {
	Store      domain.WindowStore
	Limits     Limits
	RetryAfter time.Duration
	Message    string
}

// Decide avalia e registra a requisição.
//
// Em caso de erro do store a decisão volta Allowed junto com o erro: falha de
// infraestrutura não bloqueia cliente, só limite estourado bloqueia.
func (s Service) Decide(ctx context.Context, req domain.Request) (domain.Decision, error) {
	if !s.Limits.Enabled || s.Store == nil {
		return domain.Decision{Allowed: true}, nil
	}
	if req.At.IsZero() {
		req.At = time.Now()
	}

	// falha só na janela de login não desliga as janelas gerais
	var loginErr error
	if req.LoginPath {
		res, err := s.Store.Admit(ctx, loginPrefix+req.Key, req.At, []domain.WindowLimit{
			{Window: time.Hour, Max: s.Limits.LoginAttemptsPerHour},
		})
		if err != nil {
			loginErr = fmt.Errorf("login window: %w", err)
		} else if !res.Allowed {
			return s.reject(domain.ReasonLogin), nil
		}
	}

	res, err := s.Store.Admit(ctx, generalPrefix+req.Key, req.At, s.GeneralWindows())
	if err != nil {
		return domain.Decision{Allowed: true}, errors.Join(loginErr, fmt.Errorf("general window: %w", err))
	}
	if !res.Allowed {
		reason := domain.ReasonMinute
		if res.Exceeded == 1 {
			reason = domain.ReasonHour
		}
		return s.reject(reason), loginErr
	}
	return domain.Decision{Allowed: true}, loginErr
}

// GeneralWindows devolve as janelas gerais na ordem minuto, hora.
func (s Service) GeneralWindows() []domain.WindowLimit {
	return []domain.WindowLimit{
		{Window: time.Minute, Max: s.Limits.RequestsPerMinute},
		{Window: time.Hour, Max: s.Limits.RequestsPerHour},
	}
}

// GeneralKey e LoginKey expõem o namespace usado no store (útil para inspeção).
func GeneralKey(k domain.Key) domain.Key { return generalPrefix + k }
func LoginKey(k domain.Key) domain.Key   { return loginPrefix + k }

func (s Service) reject(reason domain.Reason) domain.Decision {
	retry := s.RetryAfter
	if retry <= 0 {
		retry = DefaultRetryAfter
	}
	msg := s.Message
	if msg == "" {
		msg = DefaultMessage
	}
	return domain.Decision{Allowed: false, Reason: reason, Message: msg, RetryAfter: retry}
}
