package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// countingEvictor records eviction calls.
type countingEvictor struct {
	calls     atomic.Int32
	olderThan atomic.Int64
}

func (c *countingEvictor) EvictIdle(olderThan time.Duration) int {
	c.calls.Add(1)
	c.olderThan.Store(int64(olderThan))
	return 2
}

func TestEvictionJob(t *testing.T) {
	t.Run("NewEvictionJob_DefaultConfig", func(t *testing.T) {
		job := NewEvictionJob(&countingEvictor{}, EvictionConfig{})

		if job.config.IdleTimeout != DefaultIdleTimeout {
			t.Errorf("expected default idle timeout %v, got %v", DefaultIdleTimeout, job.config.IdleTimeout)
		}
		if job.config.Schedule != DefaultEvictionSchedule {
			t.Errorf("expected default schedule %q, got %q", DefaultEvictionSchedule, job.config.Schedule)
		}
	})

	t.Run("RunOnce_EvictsWithIdleTimeout", func(t *testing.T) {
		evictor := &countingEvictor{}
		job := NewEvictionJob(evictor, EvictionConfig{IdleTimeout: time.Hour})

		if got := job.RunOnce(); got != 2 {
			t.Errorf("expected 2 evicted, got %d", got)
		}
		if time.Duration(evictor.olderThan.Load()) != time.Hour {
			t.Errorf("expected olderThan 1h, got %v", time.Duration(evictor.olderThan.Load()))
		}
	})

	t.Run("RunOnce_RealStore", func(t *testing.T) {
		clock := newClock()
		store := NewMemoryStore(WithClock(clock.Now))
		store.GetOrCreate("a")
		clock.Advance(2 * time.Hour)

		job := NewEvictionJob(store, EvictionConfig{IdleTimeout: time.Hour})
		if got := job.RunOnce(); got != 1 {
			t.Errorf("expected 1 evicted, got %d", got)
		}
	})

	t.Run("Start_InvalidSchedule", func(t *testing.T) {
		job := NewEvictionJob(&countingEvictor{}, EvictionConfig{Schedule: "not a cron spec"})
		if err := job.Start(context.Background()); err == nil {
			t.Error("expected error for invalid schedule")
		}
		if job.IsRunning() {
			t.Error("job should not be running")
		}
	})

	t.Run("Start_Stop", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		evictor := &countingEvictor{}
		job := NewEvictionJob(evictor, EvictionConfig{Schedule: "@every 1s"})
		if err := job.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if !job.IsRunning() {
			t.Error("expected job to be running")
		}
		// Starting twice is a no-op.
		if err := job.Start(context.Background()); err != nil {
			t.Fatalf("second Start failed: %v", err)
		}

		deadline := time.Now().Add(3 * time.Second)
		for evictor.calls.Load() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if evictor.calls.Load() == 0 {
			t.Error("expected at least one scheduled eviction")
		}

		job.Stop()
		if job.IsRunning() {
			t.Error("expected job to be stopped")
		}
		job.Stop()
	})

	t.Run("Start_StopsOnContextCancel", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		ctx, cancel := context.WithCancel(context.Background())
		job := NewEvictionJob(&countingEvictor{}, EvictionConfig{Schedule: "@every 1h"})
		if err := job.Start(ctx); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		cancel()
		job.Stop()
		if job.IsRunning() {
			t.Error("expected job to be stopped after cancel")
		}
	})
}
