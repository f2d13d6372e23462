package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "calbook"

var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Service implements MetricsService on a Prometheus registry and keeps an
// in-memory Aggregator for GetStats.
type Service struct {
	registry   *prometheus.Registry
	aggregator *Aggregator

	turns          *prometheus.CounterVec
	turnLatency    *prometheus.HistogramVec
	backendCalls   *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	retries        *prometheus.CounterVec
	conflicts      *prometheus.CounterVec
	oracleCalls    *prometheus.CounterVec
	oracleLatency  *prometheus.HistogramVec
}

var _ MetricsService = (*Service)(nil)

// NewService registers the booking metrics on reg. A nil reg gets a fresh
// registry.
func NewService(reg *prometheus.Registry) *Service {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Service{
		registry:   reg,
		aggregator: NewAggregator(),
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns handled, by action and outcome.",
		}, []string{"action", "outcome"}),
		turnLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn latency.",
			Buckets:   latencyBuckets,
		}, []string{"action"}),
		backendCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Calendar backend call attempts, by operation and outcome.",
		}, []string{"op", "outcome"}),
		backendLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Calendar backend call latency.",
			Buckets:   latencyBuckets,
		}, []string{"op"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_retries_total",
			Help:      "Backend calls retried after a transient failure.",
		}, []string{"op"}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Conflict check results, by kind.",
		}, []string{"kind"}),
		oracleCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_calls_total",
			Help:      "Intent oracle interpretations, by source and outcome.",
		}, []string{"source", "outcome"}),
		oracleLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_duration_seconds",
			Help:      "Intent oracle latency.",
			Buckets:   latencyBuckets,
		}, []string{"source"}),
	}
}

// Registry returns the underlying registry.
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

func (s *Service) RecordTurn(_ context.Context, action, outcome string, success bool, latency time.Duration) {
	s.turns.WithLabelValues(action, outcome).Inc()
	s.turnLatency.WithLabelValues(action).Observe(latency.Seconds())
	s.aggregator.RecordTurn(action, outcome, success, latency)
}

func (s *Service) RecordBackendCall(_ context.Context, op, outcome string, latency time.Duration) {
	s.backendCalls.WithLabelValues(op, outcome).Inc()
	s.backendLatency.WithLabelValues(op).Observe(latency.Seconds())
	s.aggregator.RecordBackendCall(op, latency, outcome == OutcomeOK)
}

func (s *Service) RecordRetry(_ context.Context, op string) {
	s.retries.WithLabelValues(op).Inc()
	s.aggregator.RecordRetry(op)
}

func (s *Service) RecordConflict(_ context.Context, kind string) {
	s.conflicts.WithLabelValues(kind).Inc()
	s.aggregator.RecordConflict(kind)
}

func (s *Service) RecordOracle(_ context.Context, source string, latency time.Duration, success bool) {
	outcome := OutcomeOK
	if !success {
		outcome = OutcomeTerminal
	}
	s.oracleCalls.WithLabelValues(source, outcome).Inc()
	s.oracleLatency.WithLabelValues(source).Observe(latency.Seconds())
}

func (s *Service) GetStats(_ context.Context, timeRange TimeRange) (*BookingStats, error) {
	return s.aggregator.GetStats(timeRange), nil
}
