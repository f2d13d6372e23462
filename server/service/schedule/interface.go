package schedule

import (
	"context"
	"slices"

	aischedule "github.com/hrygo/calbook/plugin/ai/schedule"
)

// Calendar is the calendar backend the booking engine talks to.
// All windows and summaries are expressed in the service's display timezone.
type Calendar interface {
	// ListEvents returns events overlapping window, ordered by start time.
	ListEvents(ctx context.Context, window aischedule.TimeWindow) ([]aischedule.EventSummary, error)

	// GetEvent returns the event with the given id.
	// A missing event is reported as an error wrapping aischedule.ErrEventNotFound.
	GetEvent(ctx context.Context, id string) (*aischedule.EventSummary, error)

	// CreateEvent books a new event. A request carrying a RequestKey that was
	// already used returns the event booked by that earlier request.
	CreateEvent(ctx context.Context, create *CreateEventRequest) (*aischedule.EventSummary, error)

	// UpdateEvent changes only the fields set in update.
	UpdateEvent(ctx context.Context, id string, update *UpdateEventRequest) (*aischedule.EventSummary, error)

	// DeleteEvent removes the event with the given id.
	DeleteEvent(ctx context.Context, id string) error

	// GetFreeBusy reports whether window is free of events.
	GetFreeBusy(ctx context.Context, window aischedule.TimeWindow) (bool, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// CreateEventRequest represents a request to create an event.
type CreateEventRequest struct {
	Title       string
	Description string
	Window      aischedule.TimeWindow
	Guests      []string

	// RequestKey deduplicates retried creates.
	RequestKey string
}

// UpdateEventRequest represents a partial update. Nil fields are unchanged.
type UpdateEventRequest struct {
	Title       *string
	Description *string
	Window      *aischedule.TimeWindow
	// Guests replaces the whole guest list; an empty slice clears it.
	Guests *[]string
}

// IsEmpty reports whether the update changes nothing.
func (u *UpdateEventRequest) IsEmpty() bool {
	return u == nil || (u.Title == nil && u.Description == nil && u.Window == nil && u.Guests == nil)
}

// NewUpdateRequest builds the partial update that turns current into updated.
func NewUpdateRequest(current, updated aischedule.EventSummary) *UpdateEventRequest {
	req := &UpdateEventRequest{}
	if updated.Title != current.Title {
		req.Title = &updated.Title
	}
	if updated.Description != current.Description {
		req.Description = &updated.Description
	}
	if !updated.Window.Start.Equal(current.Window.Start) || !updated.Window.End.Equal(current.Window.End) {
		w := updated.Window
		req.Window = &w
	}
	if !slices.Equal(updated.Guests, current.Guests) {
		guests := slices.Clone(updated.Guests)
		if guests == nil {
			guests = []string{}
		}
		req.Guests = &guests
	}
	return req
}
