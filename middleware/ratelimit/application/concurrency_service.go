package application

import (
	"context"
	"time"

	"courier-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService decide se uma requisição ganha vaga no gateway,
// esperando no máximo AcquireTimeout. Não sabe nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//   - sem Pool, tudo passa (release vazio);
//   - AcquireTimeout <= 0 espera até o ctx cancelar;
//   - AcquireTimeout > 0 desiste depois do timeout.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}
	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}
