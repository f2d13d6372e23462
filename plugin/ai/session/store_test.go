package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hrygo/calbook/plugin/ai/schedule"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func TestStore_GetOrCreate(t *testing.T) {
	s := NewMemoryStore()

	sess := s.GetOrCreate("conv-1")
	require.NotNil(t, sess)
	assert.Equal(t, "conv-1", sess.ID)
	assert.Nil(t, sess.PendingIntent)
	assert.Nil(t, sess.LastEventRef)

	// Snapshots are private copies.
	sess.SetLastEvent(&schedule.EventRef{ID: "evt-1"})
	assert.Nil(t, s.GetOrCreate("conv-1").LastEventRef)
}

func TestStore_UpdateCommitsOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.Update(ctx, "conv-1", func(sess *Session) error {
		sess.SetLastEvent(&schedule.EventRef{ID: "evt-1"})
		sess.SetPending(&schedule.Intent{Kind: schedule.KindEditEvent, Start: "4 PM"})
		return nil
	})
	require.NoError(t, err)

	got := s.GetOrCreate("conv-1")
	require.NotNil(t, got.LastEventRef)
	assert.Equal(t, "evt-1", got.LastEventRef.ID)
	require.NotNil(t, got.PendingIntent)
	assert.Equal(t, "4 PM", got.PendingIntent.Start)

	boom := errors.New("boom")
	err = s.Update(ctx, "conv-1", func(sess *Session) error {
		sess.SetLastEvent(&schedule.EventRef{ID: "evt-2"})
		sess.ClearPending()
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got = s.GetOrCreate("conv-1")
	assert.Equal(t, "evt-1", got.LastEventRef.ID)
	assert.NotNil(t, got.PendingIntent)
}

func TestStore_UpdateTrimsHistoryAndTurns(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(WithHistoryLimit(3), WithTurnLimit(2))

	for i := 0; i < 5; i++ {
		n := i
		require.NoError(t, s.Update(ctx, "conv-1", func(sess *Session) error {
			sess.Record(HistoryEntry{Action: schedule.KindListEvents, Outcome: schedule.ResultListed, At: time.Unix(int64(n), 0)})
			sess.AppendTurn(Turn{Utterance: "u", Reply: "r", At: time.Unix(int64(n), 0)})
			return nil
		}))
	}

	got := s.GetOrCreate("conv-1")
	require.Len(t, got.History, 3)
	assert.Equal(t, int64(2), got.History[0].At.Unix())
	assert.Equal(t, int64(4), got.History[2].At.Unix())
	require.Len(t, got.Turns, 2)
	assert.Equal(t, int64(3), got.Turns[0].At.Unix())
}

func TestStore_SameIDIsSerialized(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	s := NewMemoryStore(WithHistoryLimit(1000))

	var (
		active  int32
		overlap int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, "conv-1", func(sess *Session) error {
				if atomic.AddInt32(&active, 1) > 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				time.Sleep(time.Millisecond)
				sess.Record(HistoryEntry{Action: schedule.KindCreateEvent, Outcome: schedule.ResultCreated})
				atomic.AddInt32(&active, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&overlap), "mutators of the same session overlapped")
	assert.Len(t, s.GetOrCreate("conv-1").History, 50)
}

func TestStore_DifferentIDsRunInParallel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	s := NewMemoryStore()

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Update(ctx, "conv-a", func(*Session) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	// conv-b must not wait for conv-a.
	ctxB, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.Update(ctxB, "conv-b", func(*Session) error { return nil }))

	close(release)
	require.NoError(t, <-done)
}

func TestStore_LockWaitHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewMemoryStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Update(context.Background(), "conv-1", func(*Session) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := s.Update(ctx, "conv-1", func(*Session) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)

	close(release)
	require.NoError(t, <-done)
}

func TestStore_EvictIdle(t *testing.T) {
	clock := newClock()
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, "old", func(*Session) error { return nil }))
	clock.Advance(time.Hour)
	require.NoError(t, s.Update(ctx, "fresh", func(*Session) error { return nil }))

	assert.Equal(t, 1, s.EvictIdle(30*time.Minute))

	ms := s.(*memoryStore)
	ms.mu.Lock()
	_, hasOld := ms.entries["old"]
	_, hasFresh := ms.entries["fresh"]
	ms.mu.Unlock()
	assert.False(t, hasOld)
	assert.True(t, hasFresh)
}

func TestStore_EvictIdleSkipsLockedSessions(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clock := newClock()
	s := NewMemoryStore(WithClock(clock.Now))

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Update(context.Background(), "busy", func(sess *Session) error {
			close(entered)
			<-release
			sess.SetLastEvent(&schedule.EventRef{ID: "evt-9"})
			return nil
		})
	}()
	<-entered

	clock.Advance(24 * time.Hour)
	assert.Zero(t, s.EvictIdle(time.Minute))

	close(release)
	require.NoError(t, <-done)

	// The commit survived because the session was never evicted.
	got := s.GetOrCreate("busy")
	require.NotNil(t, got.LastEventRef)
	assert.Equal(t, "evt-9", got.LastEventRef.ID)
}

func TestSession_Clone(t *testing.T) {
	orig := &Session{
		ID:            "conv-1",
		LastEventRef:  &schedule.EventRef{ID: "evt-1"},
		PendingIntent: &schedule.Intent{Kind: schedule.KindCreateEvent, Guests: []string{"a@example.com"}},
		History:       []HistoryEntry{{Action: schedule.KindCreateEvent, Ref: &schedule.EventRef{ID: "evt-1"}}},
		Turns:         []Turn{{Utterance: "hi"}},
	}
	c := orig.Clone()
	c.LastEventRef.ID = "changed"
	c.PendingIntent.Guests[0] = "changed"
	c.History[0].Ref.ID = "changed"
	c.Turns[0].Utterance = "changed"

	assert.Equal(t, "evt-1", orig.LastEventRef.ID)
	assert.Equal(t, "a@example.com", orig.PendingIntent.Guests[0])
	assert.Equal(t, "evt-1", orig.History[0].Ref.ID)
	assert.Equal(t, "hi", orig.Turns[0].Utterance)
}

func TestSession_RecentTurns(t *testing.T) {
	sess := &Session{Turns: []Turn{{Utterance: "1"}, {Utterance: "2"}, {Utterance: "3"}}}
	recent := sess.RecentTurns(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "2", recent[0].Utterance)
	assert.Len(t, sess.RecentTurns(0), 3)
}
