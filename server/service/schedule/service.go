// Package schedule provides the calendar backend used by the booking engine
// and the conflict checker that inspects candidate windows against it.
//
// Key features:
//   - Store-backed calendar on SQLite or PostgreSQL
//   - Idempotent creates keyed by request key (atomic via DB unique index)
//   - Timezone-aware conversion between stored timestamps and display windows
package schedule

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	aischedule "github.com/hrygo/calbook/plugin/ai/schedule"
	"github.com/hrygo/calbook/store"
)

const (
	// MaxListEvents caps the number of events shown to the user for one
	// listing. Backends return every event in a window; reference
	// resolution needs the full set.
	MaxListEvents = 50
)

type service struct {
	store Store
	loc   *time.Location
}

// Store is the interface for store operations needed by the calendar service.
type Store interface {
	CreateEvent(ctx context.Context, create *store.Event) (*store.Event, error)
	ListEvents(ctx context.Context, find *store.FindEvent) ([]*store.Event, error)
	GetEvent(ctx context.Context, find *store.FindEvent) (*store.Event, error)
	UpdateEvent(ctx context.Context, update *store.UpdateEvent) error
	DeleteEvent(ctx context.Context, delete *store.DeleteEvent) error
	Ping(ctx context.Context) error
}

// NewService creates a store-backed calendar that renders times in loc.
func NewService(store Store, loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &service{store: store, loc: loc}
}

func (s *service) ListEvents(ctx context.Context, window aischedule.TimeWindow) ([]aischedule.EventSummary, error) {
	startTs, endTs := window.Start.Unix(), window.End.Unix()
	list, err := s.store.ListEvents(ctx, &store.FindEvent{
		StartTs: &startTs,
		EndTs:   &endTs,
	})
	if err != nil {
		return nil, storeError("list", err)
	}

	events := make([]aischedule.EventSummary, 0, len(list))
	for _, e := range list {
		events = append(events, s.toSummary(e))
	}
	return events, nil
}

func (s *service) GetEvent(ctx context.Context, id string) (*aischedule.EventSummary, error) {
	event, err := s.store.GetEvent(ctx, &store.FindEvent{UID: &id})
	if err != nil {
		return nil, storeError("get", err)
	}
	if event == nil {
		return nil, storeError("get", fmt.Errorf("event %s: %w", id, store.ErrNotFound))
	}
	summary := s.toSummary(event)
	return &summary, nil
}

func (s *service) CreateEvent(ctx context.Context, create *CreateEventRequest) (*aischedule.EventSummary, error) {
	if create == nil {
		return nil, aischedule.NewMissingSlots(aischedule.FieldTitle, aischedule.FieldStart)
	}
	if !create.Window.Valid() {
		return nil, aischedule.NewMissingSlots(aischedule.FieldEnd)
	}

	if create.RequestKey != "" {
		existing, err := s.findByRequestKey(ctx, create.RequestKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			slog.Info("create deduplicated by request key",
				"request_key", create.RequestKey,
				"event_id", existing.ID,
			)
			return existing, nil
		}
	}

	event, err := s.store.CreateEvent(ctx, &store.Event{
		UID:         shortuuid.New(),
		Title:       strings.TrimSpace(create.Title),
		Description: create.Description,
		StartTs:     create.Window.Start.Unix(),
		EndTs:       create.Window.End.Unix(),
		Timezone:    s.loc.String(),
		Guests:      create.Guests,
		RequestKey:  create.RequestKey,
	})
	if err != nil {
		// A concurrent create with the same key lost the race on the unique index.
		if create.RequestKey != "" {
			if existing, ferr := s.findByRequestKey(ctx, create.RequestKey); ferr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, storeError("create", err)
	}

	summary := s.toSummary(event)
	return &summary, nil
}

func (s *service) findByRequestKey(ctx context.Context, key string) (*aischedule.EventSummary, error) {
	event, err := s.store.GetEvent(ctx, &store.FindEvent{RequestKey: &key})
	if err != nil {
		return nil, storeError("create", err)
	}
	if event == nil {
		return nil, nil
	}
	summary := s.toSummary(event)
	return &summary, nil
}

func (s *service) UpdateEvent(ctx context.Context, id string, update *UpdateEventRequest) (*aischedule.EventSummary, error) {
	current, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.IsEmpty() {
		return current, nil
	}

	now := time.Now().Unix()
	req := &store.UpdateEvent{
		UID:         id,
		UpdatedTs:   &now,
		Title:       update.Title,
		Description: update.Description,
		Guests:      update.Guests,
	}
	if w := update.Window; w != nil {
		if !w.Valid() {
			return nil, aischedule.NewMissingSlots(aischedule.FieldEnd)
		}
		startTs, endTs := w.Start.Unix(), w.End.Unix()
		req.StartTs = &startTs
		req.EndTs = &endTs
	}
	if err := s.store.UpdateEvent(ctx, req); err != nil {
		return nil, storeError("update", err)
	}
	return s.GetEvent(ctx, id)
}

func (s *service) DeleteEvent(ctx context.Context, id string) error {
	if err := s.store.DeleteEvent(ctx, &store.DeleteEvent{UID: id}); err != nil {
		return storeError("delete", err)
	}
	return nil
}

func (s *service) GetFreeBusy(ctx context.Context, window aischedule.TimeWindow) (bool, error) {
	startTs, endTs := window.Start.Unix(), window.End.Unix()
	limit := 1
	list, err := s.store.ListEvents(ctx, &store.FindEvent{
		StartTs: &startTs,
		EndTs:   &endTs,
		Limit:   &limit,
	})
	if err != nil {
		return false, storeError("freebusy", err)
	}
	return len(list) == 0, nil
}

func (s *service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

func (s *service) toSummary(e *store.Event) aischedule.EventSummary {
	window, _ := aischedule.NewTimeWindow(e.StartTime(s.loc), e.EndTime(s.loc), s.loc)
	return aischedule.EventSummary{
		ID:          e.UID,
		Title:       e.Title,
		Description: e.Description,
		Window:      window,
		Guests:      e.Guests,
	}
}

// storeError maps a storage failure to a backend error. Deadlines and lost
// connections are transient; everything else is terminal.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return aischedule.BackendStatusError(op, 404, err)
	case errors.Is(err, context.DeadlineExceeded):
		return &aischedule.BackendError{Op: op, Transient: true, Timeout: true, Err: err}
	case errors.Is(err, context.Canceled):
		return &aischedule.BackendError{Op: op, Err: err}
	case errors.Is(err, driver.ErrBadConn), isTransientStoreError(err):
		return &aischedule.BackendError{Op: op, Transient: true, Err: err}
	}
	return &aischedule.BackendError{Op: op, Err: err}
}

var transientStorePatterns = []string{
	"database is locked",
	"connection refused",
	"connection reset",
	"broken pipe",
	"too many connections",
}

func isTransientStoreError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range transientStorePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
