package infra

import (
	"context"
	"sync"
	"sync/atomic"

	"courier-gateway/middleware/auth"

	"github.com/rs/zerolog"
)

// MultiSink repassa o evento para todos os sinks, na ordem.
type MultiSink []auth.AuditSink

func (m MultiSink) Record(ctx context.Context, ev auth.AuditEvent) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, ev)
		}
	}
}

type queuedEvent struct {
	ctx context.Context
	ev  auth.AuditEvent
}

// AsyncSink desacopla a requisição do sink real com uma fila e um worker.
// Com a fila cheia o evento é descartado e contado em Dropped.
type AsyncSink struct {
	next   auth.AuditSink
	logger zerolog.Logger
	queue  chan queuedEvent

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
}

func NewAsyncSink(next auth.AuditSink, buffer int, logger zerolog.Logger) *AsyncSink {
	if buffer <= 0 {
		buffer = 1024
	}
	s := &AsyncSink{
		next:   next,
		logger: logger,
		queue:  make(chan queuedEvent, buffer),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for q := range s.queue {
		s.deliver(q)
	}
}

func (s *AsyncSink) deliver(q queuedEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().Interface("panic", rec).Msg("audit sink panicked")
		}
	}()
	s.next.Record(q.ctx, q.ev)
}

func (s *AsyncSink) Record(ctx context.Context, ev auth.AuditEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), ev: ev}:
	default:
		if n := s.dropped.Add(1); n == 1 || n%1000 == 0 {
			s.logger.Warn().Int64("dropped", n).Msg("audit queue full, dropping events")
		}
	}
}

func (s *AsyncSink) Dropped() int64 { return s.dropped.Load() }

// Close para de aceitar eventos e espera a fila esvaziar ou ctx expirar.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
