package schedule

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	aischedule "github.com/hrygo/calbook/plugin/ai/schedule"
)

// Calendar operation names used by MockCalendar.
const (
	OpList     = "list"
	OpGet      = "get"
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpFreeBusy = "freebusy"
	OpPing     = "ping"
)

// MockCalendar is an in-memory Calendar for testing. Failures and delays can
// be injected per operation, and every call is counted.
type MockCalendar struct {
	mu     sync.Mutex
	loc    *time.Location
	events map[string]aischedule.EventSummary
	keys   map[string]string
	nextID int

	errs   map[string][]error
	delays map[string]time.Duration
	calls  map[string]int
}

var _ Calendar = (*MockCalendar)(nil)

// NewMockCalendar creates a mock calendar seeded with events.
func NewMockCalendar(loc *time.Location, events ...aischedule.EventSummary) *MockCalendar {
	if loc == nil {
		loc = time.UTC
	}
	m := &MockCalendar{
		loc:    loc,
		events: make(map[string]aischedule.EventSummary),
		keys:   make(map[string]string),
		errs:   make(map[string][]error),
		delays: make(map[string]time.Duration),
		calls:  make(map[string]int),
	}
	for _, e := range events {
		m.events[e.ID] = e
	}
	return m
}

// FailNext queues errors returned by the next calls of op, one per call.
func (m *MockCalendar) FailNext(op string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[op] = append(m.errs[op], errs...)
}

// SetDelay makes every call of op wait d, or until the context is done.
func (m *MockCalendar) SetDelay(op string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[op] = d
}

// Calls returns how many times op was called.
func (m *MockCalendar) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Events returns all stored events ordered by start.
func (m *MockCalendar) Events() []aischedule.EventSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked(nil)
}

// enter counts the call and returns the injected failure, if any.
func (m *MockCalendar) enter(ctx context.Context, op string) error {
	m.mu.Lock()
	m.calls[op]++
	delay := m.delays[op]
	var err error
	if queued := m.errs[op]; len(queued) > 0 {
		err, m.errs[op] = queued[0], queued[1:]
	}
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return &aischedule.BackendError{Op: op, Transient: true, Timeout: true, Err: ctx.Err()}
		case <-timer.C:
		}
	}
	return err
}

func (m *MockCalendar) sortedLocked(filter func(aischedule.EventSummary) bool) []aischedule.EventSummary {
	out := make([]aischedule.EventSummary, 0, len(m.events))
	for _, e := range m.events {
		if filter == nil || filter(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Window.Start.Equal(out[j].Window.Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Window.Start.Before(out[j].Window.Start)
	})
	return out
}

func (m *MockCalendar) ListEvents(ctx context.Context, window aischedule.TimeWindow) ([]aischedule.EventSummary, error) {
	if err := m.enter(ctx, OpList); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked(func(e aischedule.EventSummary) bool { return e.Window.Overlaps(window) }), nil
}

func (m *MockCalendar) GetEvent(ctx context.Context, id string) (*aischedule.EventSummary, error) {
	if err := m.enter(ctx, OpGet); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, aischedule.BackendStatusError(OpGet, 404, fmt.Errorf("event %s", id))
	}
	return &e, nil
}

func (m *MockCalendar) CreateEvent(ctx context.Context, create *CreateEventRequest) (*aischedule.EventSummary, error) {
	if err := m.enter(ctx, OpCreate); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.keys[create.RequestKey]; ok && create.RequestKey != "" {
		e := m.events[id]
		return &e, nil
	}
	m.nextID++
	e := aischedule.EventSummary{
		ID:          fmt.Sprintf("mock-%d", m.nextID),
		Title:       create.Title,
		Description: create.Description,
		Window:      create.Window.In(m.loc),
		Guests:      create.Guests,
	}
	m.events[e.ID] = e
	if create.RequestKey != "" {
		m.keys[create.RequestKey] = e.ID
	}
	return &e, nil
}

func (m *MockCalendar) UpdateEvent(ctx context.Context, id string, update *UpdateEventRequest) (*aischedule.EventSummary, error) {
	if err := m.enter(ctx, OpUpdate); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, aischedule.BackendStatusError(OpUpdate, 404, fmt.Errorf("event %s", id))
	}
	if update != nil {
		if update.Title != nil {
			e.Title = *update.Title
		}
		if update.Description != nil {
			e.Description = *update.Description
		}
		if update.Window != nil {
			e.Window = update.Window.In(m.loc)
		}
		if update.Guests != nil {
			e.Guests = slices.Clone(*update.Guests)
		}
	}
	m.events[id] = e
	return &e, nil
}

func (m *MockCalendar) DeleteEvent(ctx context.Context, id string) error {
	if err := m.enter(ctx, OpDelete); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return aischedule.BackendStatusError(OpDelete, 404, fmt.Errorf("event %s", id))
	}
	delete(m.events, id)
	return nil
}

func (m *MockCalendar) GetFreeBusy(ctx context.Context, window aischedule.TimeWindow) (bool, error) {
	if err := m.enter(ctx, OpFreeBusy); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.Window.Overlaps(window) {
			return false, nil
		}
	}
	return true, nil
}

func (m *MockCalendar) Ping(ctx context.Context) error {
	return m.enter(ctx, OpPing)
}
