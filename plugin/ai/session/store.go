package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// entry is one session plus the lock serializing its mutations.
type entry struct {
	// lock is a one-slot semaphore so acquisition can select on ctx.
	lock chan struct{}
	// refs counts holders and waiters of lock; guarded by memoryStore.mu.
	refs     int
	session  *Session
	lastUsed time.Time
}

// memoryStore implements Store in process memory.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry

	historyLimit int
	turnLimit    int
	clock        func() time.Time
}

// Option configures the memory store.
type Option func(*memoryStore)

// WithHistoryLimit bounds the history kept per session.
func WithHistoryLimit(n int) Option {
	return func(s *memoryStore) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithTurnLimit bounds the conversation turns kept per session.
func WithTurnLimit(n int) Option {
	return func(s *memoryStore) {
		if n > 0 {
			s.turnLimit = n
		}
	}
}

// WithClock overrides the time source used for idle tracking.
func WithClock(clock func() time.Time) Option {
	return func(s *memoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(opts ...Option) Store {
	s := &memoryStore{
		entries:      make(map[string]*entry),
		historyLimit: DefaultHistoryLimit,
		turnLimit:    DefaultTurnLimit,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// entryLocked returns the entry for id, creating it. Caller holds s.mu.
func (s *memoryStore) entryLocked(id string) *entry {
	e, ok := s.entries[id]
	if !ok {
		now := s.clock()
		e = &entry{
			lock:     make(chan struct{}, 1),
			session:  &Session{ID: id, CreatedAt: now, UpdatedAt: now},
			lastUsed: now,
		}
		s.entries[id] = e
	}
	return e
}

func (s *memoryStore) GetOrCreate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entryLocked(id).session.Clone()
}

func (s *memoryStore) Update(ctx context.Context, id string, fn func(*Session) error) error {
	s.mu.Lock()
	e := s.entryLocked(id)
	e.refs++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		e.refs--
		e.lastUsed = s.clock()
		s.mu.Unlock()
	}()

	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for session %s: %w", id, ctx.Err())
	}
	defer func() { <-e.lock }()

	// Only lock holders write e.session, and they do so under s.mu.
	s.mu.Lock()
	working := e.session.Clone()
	s.mu.Unlock()

	if err := fn(working); err != nil {
		return err
	}

	working.ID = id
	working.trim(s.historyLimit, s.turnLimit)
	s.mu.Lock()
	working.UpdatedAt = s.clock()
	e.session = working
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) EvictIdle(olderThan time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock().Add(-olderThan)
	evicted := 0
	for id, e := range s.entries {
		if e.refs > 0 || e.lastUsed.After(cutoff) {
			continue
		}
		delete(s.entries, id)
		evicted++
	}
	if evicted > 0 {
		slog.Debug("evicted idle sessions", "count", evicted, "remaining", len(s.entries))
	}
	return evicted
}
