package infra

import (
	"context"
	"strconv"

	"courier-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatsStore expõe as decisões como contador.
// Não usa a chave do cliente como label (cardinalidade).
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

// NewPrometheusStatsStore registra o contador em reg (use
// prometheus.DefaultRegisterer em produção e um registry novo em testes).
func NewPrometheusStatsStore(reg prometheus.Registerer) (*PrometheusStatsStore, error) {
	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_ratelimit_decisions_total",
			Help: "Rate limit decisions by outcome, rejecting window and login path",
		},
		[]string{"decision", "reason", "login"},
	)
	if err := reg.Register(decisions); err != nil {
		return nil, err
	}
	return &PrometheusStatsStore{decisions: decisions}, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	decision := "rejected"
	reason := string(ev.Reason)
	if ev.Allowed {
		decision = "allowed"
		reason = "none"
	}
	s.decisions.WithLabelValues(decision, reason, strconv.FormatBool(ev.Login)).Inc()
	return nil
}

// Decisions expõe o vetor para inspeção em testes.
func (s *PrometheusStatsStore) Decisions() *prometheus.CounterVec { return s.decisions }

// MultiStats repassa o evento para vários stores; devolve o primeiro erro.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
