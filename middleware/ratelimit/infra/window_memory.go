package infra

import (
	"container/list"
	"context"
	"sync"
	"time"

	"courier-gateway/middleware/ratelimit/domain"
)

// MemoryWindowStore guarda, por chave, os timestamps das requisições aceitas.
//
// O mapa externo tem um mutex próprio; cada registro de cliente tem o seu,
// então clientes diferentes não disputam o mesmo lock. O número de registros é
// limitado por LRU (maxKeys) e registros ociosos são removidos pelo janitor.
//
// Não sobrevive a restart e não é compartilhado entre réplicas: para isso use
// RedisWindowStore.
type MemoryWindowStore struct {
	mu      sync.Mutex
	entries map[domain.Key]*list.Element
	lru     *list.List // frente = mais recente

	maxKeys      int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type windowEntry struct {
	key domain.Key

	mu       sync.Mutex
	hits     []time.Time
	lastSeen time.Time
	evicted  bool
}

var _ domain.WindowStore = (*MemoryWindowStore)(nil)

type MemoryWindowOption func(*MemoryWindowStore)

// WithMaxKeys limita quantos clientes ficam em memória (<= 0 desliga o limite).
func WithMaxKeys(n int) MemoryWindowOption {
	return func(s *MemoryWindowStore) { s.maxKeys = n }
}

// WithIdleTTL define após quanto tempo sem requisições um cliente é esquecido.
// Deve ser maior que a maior janela usada (1h), senão a contagem perde entradas.
func WithIdleTTL(d time.Duration) MemoryWindowOption {
	return func(s *MemoryWindowStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) MemoryWindowOption {
	return func(s *MemoryWindowStore) { s.cleanupEvery = d }
}

// WithClock troca o relógio usado pelo janitor (testes).
func WithClock(now func() time.Time) MemoryWindowOption {
	return func(s *MemoryWindowStore) { s.now = now }
}

func NewMemoryWindowStore(opts ...MemoryWindowOption) *MemoryWindowStore {
	s := &MemoryWindowStore{
		entries:      make(map[domain.Key]*list.Element),
		lru:          list.New(),
		maxKeys:      100_000,
		idleTTL:      2 * time.Hour,
		cleanupEvery: 5 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryWindowStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// Len devolve quantos clientes estão em memória.
func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Admit implementa domain.WindowStore.
func (s *MemoryWindowStore) Admit(_ context.Context, key domain.Key, at time.Time, limits []domain.WindowLimit) (domain.WindowResult, error) {
	for {
		ent := s.entry(key, at)

		ent.mu.Lock()
		if ent.evicted {
			// removido entre o lookup e o lock: tenta de novo com um registro novo
			ent.mu.Unlock()
			continue
		}
		res := ent.admit(at, limits)
		ent.mu.Unlock()
		return res, nil
	}
}

// Count implementa domain.WindowStore. Não cria registro para chaves novas.
func (s *MemoryWindowStore) Count(_ context.Context, key domain.Key, at time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	el, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return 0, nil
	}

	ent := el.Value.(*windowEntry)
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return countSince(ent.hits, at.Add(-window)), nil
}

func (s *MemoryWindowStore) entry(key domain.Key, at time.Time) *windowEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[key]; ok {
		s.lru.MoveToFront(el)
		ent := el.Value.(*windowEntry)
		if at.After(ent.lastSeen) {
			ent.lastSeen = at
		}
		return ent
	}

	ent := &windowEntry{key: key, lastSeen: at}
	s.entries[key] = s.lru.PushFront(ent)

	for s.maxKeys > 0 && len(s.entries) > s.maxKeys {
		s.evictLocked(s.lru.Back())
	}
	return ent
}

// evictLocked remove um registro; exige s.mu.
// A ordem de locks é sempre s.mu -> ent.mu, e Admit nunca segura ent.mu
// enquanto pede s.mu.
func (s *MemoryWindowStore) evictLocked(el *list.Element) {
	if el == nil {
		return
	}
	ent := el.Value.(*windowEntry)
	s.lru.Remove(el)
	delete(s.entries, ent.key)

	ent.mu.Lock()
	ent.evicted = true
	ent.hits = nil
	ent.mu.Unlock()
}

// Cleanup remove clientes sem requisições há mais de idleTTL.
func (s *MemoryWindowStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	// o LRU está ordenado por uso: basta andar de trás pra frente
	for el := s.lru.Back(); el != nil; {
		prev := el.Prev()
		ent := el.Value.(*windowEntry)
		if !ent.lastSeen.Before(cutoff) {
			break
		}
		s.evictLocked(el)
		el = prev
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryWindowStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// admit exige ent.mu.
func (e *windowEntry) admit(at time.Time, limits []domain.WindowLimit) domain.WindowResult {
	if max := domain.MaxWindow(limits); max > 0 {
		e.hits = purgeBefore(e.hits, at.Add(-max))
	}

	res := domain.WindowResult{Allowed: true, Exceeded: -1, Counts: make([]int, len(limits))}
	for i, l := range limits {
		res.Counts[i] = countSince(e.hits, at.Add(-l.Window))
		if l.Max > 0 && res.Counts[i] >= l.Max && res.Allowed {
			res.Allowed = false
			res.Exceeded = i
		}
	}
	if res.Allowed {
		e.hits = append(e.hits, at)
	}
	return res
}

// purgeBefore descarta (in place) entradas estritamente anteriores a cutoff.
// Não assume ordem: requisições concorrentes podem chegar com `at` fora de ordem.
func purgeBefore(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	// libera o array quando esvazia, pra não segurar memória de rajadas antigas
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func countSince(hits []time.Time, cutoff time.Time) int {
	n := 0
	for _, t := range hits {
		if !t.Before(cutoff) {
			n++
		}
	}
	return n
}
