package infra

import (
	"context"
	"sync"

	"courier-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed int64
	Denied  int64
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// OtherRoute agrupa as rotas que chegam depois de atingido o limite de rotas.
const OtherRoute = "other"

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento; não faz expiração. O número de rotas
// distintas é limitado (maxRoutes), já que o path vem do cliente.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byRoute  map[string]Counters
	byKey    map[string]Counters
	byReason map[domain.Reason]int64

	trackKeys bool
	maxRoutes int
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

// WithMaxRoutes limita as rotas distintas guardadas (padrão 1000, <= 0 desliga).
func WithMaxRoutes(n int) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.maxRoutes = n }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute:   make(map[string]Counters),
		byKey:     make(map[string]Counters),
		byReason:  make(map[domain.Reason]int64),
		maxRoutes: 1000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Allowed)

	c, known := s.byRoute[route]
	if !known && s.maxRoutes > 0 && len(s.byRoute) >= s.maxRoutes {
		route = OtherRoute
		c = s.byRoute[route]
	}
	c.add(ev.Allowed)
	s.byRoute[route] = c

	if !ev.Allowed {
		s.byReason[ev.Reason]++
	}

	if s.trackKeys {
		k := s.byKey[string(ev.Key)]
		k.add(ev.Allowed)
		s.byKey[string(ev.Key)] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}

// DeniedByReason conta rejeições por janela (minute/hour/login).
func (s *MemoryStatsStore) DeniedByReason() map[domain.Reason]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Reason]int64, len(s.byReason))
	for k, v := range s.byReason {
		out[k] = v
	}
	return out
}
