package store

import (
	"context"
	"time"
)

// Event is the object representing a calendar event in the local store.
type Event struct {
	ID        int32
	UID       string
	CreatedTs int64
	UpdatedTs int64

	Title       string
	Description string
	StartTs     int64
	EndTs       int64
	Timezone    string
	Guests      []string

	// RequestKey is the idempotency key of the create that produced the event.
	RequestKey string
}

// FindEvent is the find condition for event.
type FindEvent struct {
	ID         *int32
	UID        *string
	RequestKey *string

	// Time range filters: events overlapping [StartTs, EndTs).
	StartTs *int64
	EndTs   *int64

	// Pagination
	Limit  *int
	Offset *int
}

// UpdateEvent is the update request for event.
type UpdateEvent struct {
	UID         string
	UpdatedTs   *int64
	Title       *string
	Description *string
	StartTs     *int64
	EndTs       *int64
	Timezone    *string
	Guests      *[]string
}

// DeleteEvent is the delete request for event.
type DeleteEvent struct {
	UID string
}

// CreateEvent creates a new event.
func (s *Store) CreateEvent(ctx context.Context, create *Event) (*Event, error) {
	return s.driver.CreateEvent(ctx, create)
}

// ListEvents lists events with filter, ordered by start time.
func (s *Store) ListEvents(ctx context.Context, find *FindEvent) ([]*Event, error) {
	return s.driver.ListEvents(ctx, find)
}

// GetEvent gets an event matching find, or nil if there is none.
func (s *Store) GetEvent(ctx context.Context, find *FindEvent) (*Event, error) {
	limit := 1
	find.Limit = &limit
	list, err := s.driver.ListEvents(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdateEvent updates an event.
func (s *Store) UpdateEvent(ctx context.Context, update *UpdateEvent) error {
	return s.driver.UpdateEvent(ctx, update)
}

// DeleteEvent deletes an event.
func (s *Store) DeleteEvent(ctx context.Context, delete *DeleteEvent) error {
	return s.driver.DeleteEvent(ctx, delete)
}

// StartTime returns the event start in loc.
func (e *Event) StartTime(loc *time.Location) time.Time {
	return time.Unix(e.StartTs, 0).In(loc)
}

// EndTime returns the event end in loc.
func (e *Event) EndTime(loc *time.Location) time.Time {
	return time.Unix(e.EndTs, 0).In(loc)
}

// Overlaps checks if the event intersects the half-open range [startTs, endTs).
func (e *Event) Overlaps(startTs, endTs int64) bool {
	return e.StartTs < endTs && startTs < e.EndTs
}
