package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/calbook/plugin/ai/cache"
	"github.com/hrygo/calbook/plugin/ai/schedule"
)

func TestCachingOracle(t *testing.T) {
	ctx := context.Background()
	memory := cache.NewMemoryCache(cache.MemoryConfig{Capacity: 16})
	defer memory.Close()

	intent := schedule.Intent{Kind: schedule.KindCreateEvent, Title: "Meeting", Start: "tomorrow 2 PM"}
	inner := NewMockOracle(nil).
		On("Book a meeting tomorrow at 2 PM", intent).
		OnError("gibberish", ErrUninterpretable)
	oracle := NewCachingOracle(inner, memory, time.Minute)
	assert.Equal(t, "mock", oracle.Name())

	t.Run("SecondCallHitsCache", func(t *testing.T) {
		first, err := oracle.Interpret(ctx, "Book a meeting tomorrow at 2 PM", testContext())
		require.NoError(t, err)
		second, err := oracle.Interpret(ctx, "book a meeting  tomorrow at 2 PM.", testContext())
		require.NoError(t, err)

		assert.Equal(t, intent, first)
		assert.Equal(t, first, second)
		assert.Len(t, inner.Calls(), 1)
	})

	t.Run("DifferentDayMisses", func(t *testing.T) {
		cc := testContext()
		cc.Now = cc.Now.AddDate(0, 0, 1)
		_, err := oracle.Interpret(ctx, "Book a meeting tomorrow at 2 PM", cc)
		require.NoError(t, err)
		assert.Len(t, inner.Calls(), 2)
	})

	t.Run("PendingStateMisses", func(t *testing.T) {
		cc := testContext()
		cc.Pending = &schedule.Intent{Kind: schedule.KindCreateEvent, Title: "Lunch"}
		_, err := oracle.Interpret(ctx, "Book a meeting tomorrow at 2 PM", cc)
		require.NoError(t, err)
		assert.Len(t, inner.Calls(), 3)
	})

	t.Run("FailuresAreNotCached", func(t *testing.T) {
		before := len(inner.Calls())
		for range 2 {
			_, err := oracle.Interpret(ctx, "gibberish", testContext())
			assert.True(t, errors.Is(err, ErrUninterpretable))
		}
		assert.Len(t, inner.Calls(), before+2)
	})
}
