package metrics

import (
	"context"
	"sync"
	"time"
)

// MockMetricsService is a mock implementation of MetricsService for testing.
type MockMetricsService struct {
	mu           sync.RWMutex
	turns        []TurnRecord
	backendCalls []BackendCallRecord
	retries      map[string]int
	conflicts    map[string]int
	oracleCalls  map[string]int
}

// TurnRecord is one recorded turn.
type TurnRecord struct {
	Action  string
	Outcome string
	Success bool
	Latency time.Duration
}

// BackendCallRecord is one recorded backend attempt.
type BackendCallRecord struct {
	Op      string
	Outcome string
	Latency time.Duration
}

// NewMockMetricsService creates a new MockMetricsService.
func NewMockMetricsService() *MockMetricsService {
	return &MockMetricsService{
		retries:     make(map[string]int),
		conflicts:   make(map[string]int),
		oracleCalls: make(map[string]int),
	}
}

func (m *MockMetricsService) RecordTurn(_ context.Context, action, outcome string, success bool, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, TurnRecord{Action: action, Outcome: outcome, Success: success, Latency: latency})
}

func (m *MockMetricsService) RecordBackendCall(_ context.Context, op, outcome string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backendCalls = append(m.backendCalls, BackendCallRecord{Op: op, Outcome: outcome, Latency: latency})
}

func (m *MockMetricsService) RecordRetry(_ context.Context, op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[op]++
}

func (m *MockMetricsService) RecordConflict(_ context.Context, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts[kind]++
}

func (m *MockMetricsService) RecordOracle(_ context.Context, source string, _ time.Duration, _ bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.oracleCalls[source]++
}

// GetStats summarizes the recorded turns. timeRange is ignored.
func (m *MockMetricsService) GetStats(_ context.Context, _ TimeRange) (*BookingStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := newBookingStats()
	for _, t := range m.turns {
		stats.TurnCount++
		if t.Success {
			stats.SuccessCount++
		} else {
			stats.ErrorsByKind[t.Outcome]++
		}
	}
	for _, c := range m.backendCalls {
		stat, ok := stats.BackendCalls[c.Op]
		if !ok {
			stat = &CallStat{}
			stats.BackendCalls[c.Op] = stat
		}
		stat.Count++
		if c.Outcome != OutcomeOK {
			stat.Failures++
		}
	}
	for _, n := range m.retries {
		stats.Retries += int64(n)
	}
	for kind, n := range m.conflicts {
		stats.Conflicts[kind] = int64(n)
	}
	return stats, nil
}

// Turns returns a copy of the recorded turns.
func (m *MockMetricsService) Turns() []TurnRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]TurnRecord(nil), m.turns...)
}

// BackendCalls returns the recorded attempts for op.
func (m *MockMetricsService) BackendCalls(op string) []BackendCallRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []BackendCallRecord
	for _, c := range m.backendCalls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Retries returns how many times op was retried.
func (m *MockMetricsService) Retries(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.retries[op]
}

// Conflicts returns how many conflict checks reported kind.
func (m *MockMetricsService) Conflicts(kind string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conflicts[kind]
}

// OracleCalls returns how many interpretations source served.
func (m *MockMetricsService) OracleCalls(source string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.oracleCalls[source]
}

// Clear removes all recorded metrics (for testing).
func (m *MockMetricsService) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
	m.backendCalls = nil
	m.retries = make(map[string]int)
	m.conflicts = make(map[string]int)
	m.oracleCalls = make(map[string]int)
}

// Ensure MockMetricsService implements MetricsService
var _ MetricsService = (*MockMetricsService)(nil)
