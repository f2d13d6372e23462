// Package metrics records booking engine metrics: turns, backend calls,
// retries, conflicts and oracle calls.
package metrics

import (
	"context"
	"time"
)

// Outcome labels for backend and oracle calls.
const (
	OutcomeOK        = "ok"
	OutcomeTransient = "transient"
	OutcomeTerminal  = "terminal"
	OutcomeTimeout   = "timeout"
)

// MetricsService defines the metrics service interface.
// Labels must stay low-cardinality: never pass conversation or request ids.
type MetricsService interface {
	// RecordTurn records one handled turn. action is the intent kind (or
	// "unknown"); outcome is the result kind, or the error kind on failure.
	RecordTurn(ctx context.Context, action, outcome string, success bool, latency time.Duration)

	// RecordBackendCall records one calendar backend attempt.
	RecordBackendCall(ctx context.Context, op, outcome string, latency time.Duration)

	// RecordRetry records a retried backend call.
	RecordRetry(ctx context.Context, op string)

	// RecordConflict records a conflict check result.
	RecordConflict(ctx context.Context, kind string)

	// RecordOracle records an oracle interpretation.
	RecordOracle(ctx context.Context, source string, latency time.Duration, success bool)

	// GetStats retrieves aggregated statistics.
	GetStats(ctx context.Context, timeRange TimeRange) (*BookingStats, error)
}

// TimeRange represents a time range for querying metrics.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// BookingStats represents aggregated booking metrics.
type BookingStats struct {
	TurnCount    int64                  `json:"turn_count"`
	SuccessCount int64                  `json:"success_count"`
	LatencyP50   time.Duration          `json:"latency_p50"`
	LatencyP95   time.Duration          `json:"latency_p95"`
	ActionStats  map[string]*ActionStat `json:"action_stats"`
	ErrorsByKind map[string]int64       `json:"errors_by_kind"`
	BackendCalls map[string]*CallStat   `json:"backend_calls"`
	Retries      int64                  `json:"retries"`
	Conflicts    map[string]int64       `json:"conflicts"`
}

// ActionStat represents statistics for a single action kind.
type ActionStat struct {
	Count       int64         `json:"count"`
	SuccessRate float32       `json:"success_rate"`
	AvgLatency  time.Duration `json:"avg_latency"`
}

// CallStat represents statistics for one backend operation.
type CallStat struct {
	Count      int64         `json:"count"`
	Failures   int64         `json:"failures"`
	AvgLatency time.Duration `json:"avg_latency"`
}

func newBookingStats() *BookingStats {
	return &BookingStats{
		ActionStats:  make(map[string]*ActionStat),
		ErrorsByKind: make(map[string]int64),
		BackendCalls: make(map[string]*CallStat),
		Conflicts:    make(map[string]int64),
	}
}
