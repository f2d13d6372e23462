package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultIdleTimeout is how long a session may stay untouched before eviction.
	DefaultIdleTimeout = 30 * time.Minute
	// DefaultEvictionSchedule is the cron spec of the eviction run.
	DefaultEvictionSchedule = "@every 5m"
)

// Evictor is the part of Store the eviction job drives.
type Evictor interface {
	EvictIdle(olderThan time.Duration) int
}

// EvictionConfig holds configuration for the eviction job.
type EvictionConfig struct {
	IdleTimeout time.Duration // Sessions idle longer than this are evicted (default: 30m)
	Schedule    string        // Cron spec or descriptor (default: "@every 5m")
}

// DefaultEvictionConfig returns the default eviction configuration.
func DefaultEvictionConfig() EvictionConfig {
	return EvictionConfig{
		IdleTimeout: DefaultIdleTimeout,
		Schedule:    DefaultEvictionSchedule,
	}
}

// EvictionJob periodically evicts idle sessions.
type EvictionJob struct {
	store  Evictor
	config EvictionConfig

	mu       sync.Mutex
	running  bool
	cron     *cron.Cron
	stopChan chan struct{}
	done     chan struct{}
}

// NewEvictionJob creates a new eviction job.
func NewEvictionJob(store Evictor, config EvictionConfig) *EvictionJob {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.Schedule == "" {
		config.Schedule = DefaultEvictionSchedule
	}
	return &EvictionJob{
		store:  store,
		config: config,
	}
}

// Start schedules the job. It is non-blocking; the job stops when ctx is
// done or Stop is called.
func (j *EvictionJob) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return nil // Already running
	}

	c := cron.New()
	if _, err := c.AddFunc(j.config.Schedule, func() { j.RunOnce() }); err != nil {
		return fmt.Errorf("invalid eviction schedule %q: %w", j.config.Schedule, err)
	}

	j.cron = c
	j.running = true
	j.stopChan = make(chan struct{})
	j.done = make(chan struct{})
	c.Start()
	go j.wait(ctx, c, j.stopChan, j.done)

	slog.Info("session eviction job started",
		"idle_timeout", j.config.IdleTimeout,
		"schedule", j.config.Schedule)
	return nil
}

func (j *EvictionJob) wait(ctx context.Context, c *cron.Cron, stop, done chan struct{}) {
	defer close(done)
	select {
	case <-ctx.Done():
	case <-stop:
	}
	// Wait for a running eviction to finish.
	<-c.Stop().Done()

	j.mu.Lock()
	if j.stopChan == stop {
		j.running = false
	}
	j.mu.Unlock()
}

// Stop stops the job and waits for it to exit.
func (j *EvictionJob) Stop() {
	j.mu.Lock()
	if !j.running {
		done := j.done
		j.mu.Unlock()
		if done != nil {
			<-done
		}
		return
	}
	close(j.stopChan)
	j.running = false
	done := j.done
	j.mu.Unlock()

	<-done
	slog.Info("session eviction job stopped")
}

// RunOnce evicts idle sessions immediately and returns how many went.
func (j *EvictionJob) RunOnce() int {
	evicted := j.store.EvictIdle(j.config.IdleTimeout)
	if evicted > 0 {
		slog.Info("session eviction completed", "evicted", evicted)
	}
	return evicted
}

// IsRunning returns whether the job is currently scheduled.
func (j *EvictionJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}
