package metrics

import (
	"sort"
	"sync"
	"time"
)

// DefaultRetention is how long hourly buckets are kept in memory.
const DefaultRetention = 24 * time.Hour

// Aggregator aggregates metrics in memory in hourly buckets.
type Aggregator struct {
	mu        sync.RWMutex
	now       func() time.Time
	retention time.Duration

	// Turn metrics: key = "hourBucket|action"
	turnMetrics map[string]*turnBucket

	// Backend metrics: key = "hourBucket|op"
	callMetrics map[string]*callBucket

	// Event counters: key = "hourBucket|name"
	retries   map[string]*counterBucket
	conflicts map[string]*counterBucket
}

type turnBucket struct {
	hourBucket   time.Time
	action       string
	count        int64
	successCount int64
	latencies    []int64 // in milliseconds
	errors       map[string]int64
}

type callBucket struct {
	hourBucket time.Time
	op         string
	count      int64
	failures   int64
	latencySum int64 // in milliseconds
}

type counterBucket struct {
	hourBucket time.Time
	name       string
	count      int64
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		now:         time.Now,
		retention:   DefaultRetention,
		turnMetrics: make(map[string]*turnBucket),
		callMetrics: make(map[string]*callBucket),
		retries:     make(map[string]*counterBucket),
		conflicts:   make(map[string]*counterBucket),
	}
}

// RecordTurn records a single handled turn.
func (a *Aggregator) RecordTurn(action, outcome string, success bool, latency time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	hourBucket := truncateToHour(a.now())
	key := makeKey(hourBucket, action)

	bucket, exists := a.turnMetrics[key]
	if !exists {
		bucket = &turnBucket{
			hourBucket: hourBucket,
			action:     action,
			latencies:  make([]int64, 0, 100),
			errors:     make(map[string]int64),
		}
		a.turnMetrics[key] = bucket
	}

	bucket.count++
	if success {
		bucket.successCount++
	} else {
		bucket.errors[outcome]++
	}
	bucket.latencies = append(bucket.latencies, latency.Milliseconds())
	a.pruneLocked(hourBucket)
}

// RecordBackendCall records a single backend call attempt.
func (a *Aggregator) RecordBackendCall(op string, latency time.Duration, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	hourBucket := truncateToHour(a.now())
	key := makeKey(hourBucket, op)

	bucket, exists := a.callMetrics[key]
	if !exists {
		bucket = &callBucket{hourBucket: hourBucket, op: op}
		a.callMetrics[key] = bucket
	}

	bucket.count++
	if !success {
		bucket.failures++
	}
	bucket.latencySum += latency.Milliseconds()
}

// RecordRetry records a retried backend call.
func (a *Aggregator) RecordRetry(op string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	incr(a.retries, truncateToHour(a.now()), op)
}

// RecordConflict records a conflict of the given kind.
func (a *Aggregator) RecordConflict(kind string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	incr(a.conflicts, truncateToHour(a.now()), kind)
}

func incr(m map[string]*counterBucket, hourBucket time.Time, name string) {
	key := makeKey(hourBucket, name)
	bucket, exists := m[key]
	if !exists {
		bucket = &counterBucket{hourBucket: hourBucket, name: name}
		m[key] = bucket
	}
	bucket.count++
}

// pruneLocked drops buckets that fell out of the retention window.
// Must be called with lock held.
func (a *Aggregator) pruneLocked(current time.Time) {
	cutoff := current.Add(-a.retention)
	for key, b := range a.turnMetrics {
		if b.hourBucket.Before(cutoff) {
			delete(a.turnMetrics, key)
		}
	}
	for key, b := range a.callMetrics {
		if b.hourBucket.Before(cutoff) {
			delete(a.callMetrics, key)
		}
	}
	for _, m := range []map[string]*counterBucket{a.retries, a.conflicts} {
		for key, b := range m {
			if b.hourBucket.Before(cutoff) {
				delete(m, key)
			}
		}
	}
}

// GetStats returns aggregated stats for buckets within timeRange. A zero
// bound is open.
func (a *Aggregator) GetStats(timeRange TimeRange) *BookingStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	in := func(hour time.Time) bool {
		if !timeRange.Start.IsZero() && hour.Add(time.Hour).Before(timeRange.Start) {
			return false
		}
		if !timeRange.End.IsZero() && hour.After(timeRange.End) {
			return false
		}
		return true
	}

	stats := newBookingStats()
	allLatencies := make([]int64, 0)
	actionLatency := make(map[string]int64)
	actionSuccess := make(map[string]int64)

	for _, bucket := range a.turnMetrics {
		if !in(bucket.hourBucket) {
			continue
		}
		stats.TurnCount += bucket.count
		stats.SuccessCount += bucket.successCount
		allLatencies = append(allLatencies, bucket.latencies...)
		for kind, n := range bucket.errors {
			stats.ErrorsByKind[kind] += n
		}

		stat, exists := stats.ActionStats[bucket.action]
		if !exists {
			stat = &ActionStat{}
			stats.ActionStats[bucket.action] = stat
		}
		stat.Count += bucket.count
		actionSuccess[bucket.action] += bucket.successCount
		actionLatency[bucket.action] += sumLatencies(bucket.latencies)
	}
	for action, stat := range stats.ActionStats {
		if stat.Count > 0 {
			stat.SuccessRate = float32(actionSuccess[action]) / float32(stat.Count)
			stat.AvgLatency = time.Duration(actionLatency[action]/stat.Count) * time.Millisecond
		}
	}

	latencySums := make(map[string]int64)
	for _, bucket := range a.callMetrics {
		if !in(bucket.hourBucket) {
			continue
		}
		stat, exists := stats.BackendCalls[bucket.op]
		if !exists {
			stat = &CallStat{}
			stats.BackendCalls[bucket.op] = stat
		}
		stat.Count += bucket.count
		stat.Failures += bucket.failures
		latencySums[bucket.op] += bucket.latencySum
	}
	for op, stat := range stats.BackendCalls {
		if stat.Count > 0 {
			stat.AvgLatency = time.Duration(latencySums[op]/stat.Count) * time.Millisecond
		}
	}

	for _, bucket := range a.retries {
		if in(bucket.hourBucket) {
			stats.Retries += bucket.count
		}
	}
	for _, bucket := range a.conflicts {
		if in(bucket.hourBucket) {
			stats.Conflicts[bucket.name] += bucket.count
		}
	}

	stats.LatencyP50 = time.Duration(percentile(allLatencies, 50)) * time.Millisecond
	stats.LatencyP95 = time.Duration(percentile(allLatencies, 95)) * time.Millisecond
	return stats
}

// Helper functions

func truncateToHour(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}

func makeKey(hourBucket time.Time, name string) string {
	return hourBucket.Format(time.RFC3339) + "|" + name
}

func sumLatencies(latencies []int64) int64 {
	var sum int64
	for _, l := range latencies {
		sum += l
	}
	return sum
}

func percentile(latencies []int64, p int) int64 {
	if len(latencies) == 0 {
		return 0
	}

	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}
