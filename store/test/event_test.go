package test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/calbook/store"
)

func TestEventStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	event, err := ts.CreateEvent(ctx, &store.Event{
		UID:        "evt-1",
		Title:      "Planning",
		StartTs:    1705395600, // 2024-01-16 14:30 IST
		EndTs:      1705399200,
		Timezone:   "Asia/Kolkata",
		Guests:     []string{"a@example.com", "b@example.com"},
		RequestKey: "req-1",
	})
	require.NoError(t, err)
	assert.NotZero(t, event.ID)
	assert.NotZero(t, event.CreatedTs)

	uid := "evt-1"
	got, err := ts.GetEvent(ctx, &store.FindEvent{UID: &uid})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Planning", got.Title)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, got.Guests)

	key := "req-1"
	byKey, err := ts.GetEvent(ctx, &store.FindEvent{RequestKey: &key})
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, "evt-1", byKey.UID)

	title := "Roadmap"
	end := int64(1705402800)
	require.NoError(t, ts.UpdateEvent(ctx, &store.UpdateEvent{UID: "evt-1", Title: &title, EndTs: &end}))
	got, err = ts.GetEvent(ctx, &store.FindEvent{UID: &uid})
	require.NoError(t, err)
	assert.Equal(t, "Roadmap", got.Title)
	assert.Equal(t, end, got.EndTs)

	require.NoError(t, ts.DeleteEvent(ctx, &store.DeleteEvent{UID: "evt-1"}))
	got, err = ts.GetEvent(ctx, &store.FindEvent{UID: &uid})
	require.NoError(t, err)
	assert.Nil(t, got)

	err = ts.DeleteEvent(ctx, &store.DeleteEvent{UID: "evt-1"})
	assert.True(t, errors.Is(err, store.ErrNotFound))
	err = ts.UpdateEvent(ctx, &store.UpdateEvent{UID: "evt-1", Title: &title})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestEventStore_ListOverlapping(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	for _, e := range []*store.Event{
		{UID: "a", Title: "A", StartTs: 100, EndTs: 200},
		{UID: "b", Title: "B", StartTs: 200, EndTs: 300},
		{UID: "c", Title: "C", StartTs: 250, EndTs: 400},
		{UID: "d", Title: "D", StartTs: 500, EndTs: 600},
	} {
		_, err := ts.CreateEvent(ctx, e)
		require.NoError(t, err)
	}

	start, end := int64(200), int64(300)
	list, err := ts.ListEvents(ctx, &store.FindEvent{StartTs: &start, EndTs: &end})
	require.NoError(t, err)

	var uids []string
	for _, e := range list {
		uids = append(uids, e.UID)
	}
	// Half-open: "a" ends exactly at 200 and does not overlap.
	assert.Equal(t, []string{"b", "c"}, uids)

	limit := 1
	list, err = ts.ListEvents(ctx, &store.FindEvent{Limit: &limit})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].UID)
}

func TestEventStore_RequestKeyUnique(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	_, err := ts.CreateEvent(ctx, &store.Event{UID: "x", Title: "X", StartTs: 1, EndTs: 2, RequestKey: "same"})
	require.NoError(t, err)
	_, err = ts.CreateEvent(ctx, &store.Event{UID: "y", Title: "Y", StartTs: 1, EndTs: 2, RequestKey: "same"})
	assert.Error(t, err)

	// Empty keys are not deduplicated.
	_, err = ts.CreateEvent(ctx, &store.Event{UID: "z1", Title: "Z", StartTs: 1, EndTs: 2})
	require.NoError(t, err)
	_, err = ts.CreateEvent(ctx, &store.Event{UID: "z2", Title: "Z", StartTs: 1, EndTs: 2})
	require.NoError(t, err)
}

func TestSplitSQLViaMigrate(t *testing.T) {
	// Migrate twice: the second call sees an initialized database.
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	require.NoError(t, ts.Migrate(ctx))
}
