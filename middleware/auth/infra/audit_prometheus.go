package infra

import (
	"context"

	"courier-gateway/middleware/auth"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusAuditSink conta eventos por action/status.
type PrometheusAuditSink struct {
	events *prometheus.CounterVec
}

func NewPrometheusAuditSink(reg prometheus.Registerer) (*PrometheusAuditSink, error) {
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_audit_events_total",
			Help: "Authentication audit events by action and status",
		},
		[]string{"action", "status"},
	)
	if err := reg.Register(events); err != nil {
		return nil, err
	}
	return &PrometheusAuditSink{events: events}, nil
}

func (s *PrometheusAuditSink) Record(_ context.Context, ev auth.AuditEvent) {
	s.events.WithLabelValues(ev.Action, ev.Status).Inc()
}

func (s *PrometheusAuditSink) Events() *prometheus.CounterVec { return s.events }
