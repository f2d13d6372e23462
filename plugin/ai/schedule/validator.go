package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hrygo/calbook/plugin/ai/aitime"
)

// DefaultListHorizon is the window listed when a list intent names none.
const DefaultListHorizon = 7 * 24 * time.Hour

// Validator turns an Intent into a ResolvedAction, or reports exactly which
// slots are missing or invalid.
type Validator struct {
	times           aitime.TimeService
	defaultDuration time.Duration
	listHorizon     time.Duration
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithDefaultDuration sets the length given to a create with neither end nor
// duration. Zero disables the default, so the end is reported missing.
func WithDefaultDuration(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		v.defaultDuration = d
	}
}

// WithListHorizon sets the window listed when a list intent names none.
func WithListHorizon(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		if d > 0 {
			v.listHorizon = d
		}
	}
}

// NewValidator creates a validator backed by the given time service.
func NewValidator(times aitime.TimeService, opts ...ValidatorOption) *Validator {
	v := &Validator{
		times:           times,
		defaultDuration: aitime.DefaultDuration,
		listHorizon:     DefaultListHorizon,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks intent against the rules of its kind. target is the event an
// edit or delete resolved to and is ignored for other kinds.
func (v *Validator) Validate(ctx context.Context, intent Intent, now time.Time, target *EventSummary) (*ResolvedAction, error) {
	now = now.In(v.times.Location())
	var (
		action *ResolvedAction
		err    error
	)
	switch intent.Kind {
	case KindCreateEvent:
		action, err = v.validateCreate(ctx, intent, now)
	case KindEditEvent:
		action, err = v.validateEdit(ctx, intent, now, target)
	case KindDeleteEvent:
		action, err = v.validateDelete(intent, target)
	case KindListEvents:
		action, err = v.validateList(ctx, intent, now)
	case KindCheckAvailability:
		action, err = v.validateAvailability(ctx, intent, now)
	default:
		return nil, NewError(ErrorInterpretation, fmt.Sprintf("unknown intent kind %q", intent.Kind), nil)
	}
	if err != nil {
		return nil, err
	}
	if missing := action.MissingFields(); len(missing) > 0 {
		return nil, NewMissingSlots(missing...)
	}
	return action, nil
}

func (v *Validator) validateCreate(ctx context.Context, intent Intent, now time.Time) (*ResolvedAction, error) {
	var missing []string
	if !intent.Has(FieldTitle) {
		missing = append(missing, FieldTitle)
	}
	if !intent.Has(FieldStart) {
		missing = append(missing, FieldStart)
	}
	if !intent.Has(FieldEnd) && !intent.Has(FieldDuration) && v.defaultDuration <= 0 {
		missing = append(missing, FieldEnd)
	}
	if len(missing) > 0 {
		return nil, NewMissingSlots(missing...)
	}

	start, err := v.times.Normalize(ctx, intent.Start, now)
	if err != nil {
		return nil, timeError(FieldStart, err)
	}
	end, err := v.endOf(ctx, intent, now, start, v.defaultDuration)
	if err != nil {
		return nil, err
	}
	window, ok := NewTimeWindow(start, end, v.times.Location())
	if !ok {
		return nil, invalidEnd()
	}
	return &ResolvedAction{
		Kind:        KindCreateEvent,
		Title:       strings.TrimSpace(intent.Title),
		Description: strings.TrimSpace(intent.Description),
		Guests:      slices.Clone(intent.Guests),
		Window:      window,
	}, nil
}

// endOf resolves the end of a window starting at start from the intent's end or
// duration, falling back to fallback when neither is set.
func (v *Validator) endOf(ctx context.Context, intent Intent, now, start time.Time, fallback time.Duration) (time.Time, error) {
	switch {
	case intent.Has(FieldEnd):
		end, err := v.times.NormalizeOn(ctx, intent.End, now, start)
		if err != nil {
			return time.Time{}, timeError(FieldEnd, err)
		}
		return end, nil
	case intent.Has(FieldDuration):
		d, err := aitime.ParseDuration(intent.Duration)
		if err != nil {
			return time.Time{}, timeError(FieldDuration, err)
		}
		return start.Add(d), nil
	default:
		return start.Add(fallback), nil
	}
}

func (v *Validator) validateEdit(ctx context.Context, intent Intent, now time.Time, target *EventSummary) (*ResolvedAction, error) {
	var missing []string
	if target == nil || target.ID == "" {
		missing = append(missing, FieldTarget)
	}
	if !intent.HasChanges() {
		missing = append(missing, FieldChanges)
	}
	if len(missing) > 0 {
		return nil, NewMissingSlots(missing...)
	}

	changes := EventChanges{}
	if intent.Has(FieldTitle) {
		changes.Title = ptr(strings.TrimSpace(intent.Title))
	}
	if intent.Has(FieldDescription) {
		changes.Description = ptr(strings.TrimSpace(intent.Description))
	}
	if intent.Has(FieldGuests) {
		changes.Guests = ptr(slices.Clone(intent.Guests))
	}

	anchor := target.Window.Start
	if intent.Has(FieldStart) {
		start, err := v.moveStart(ctx, intent.Start, now, target.Window)
		if err != nil {
			return nil, err
		}
		changes.Start = &start
		anchor = start
	}
	if intent.Has(FieldEnd) {
		end, err := v.times.NormalizeOn(ctx, intent.End, now, anchor)
		if err != nil {
			return nil, timeError(FieldEnd, err)
		}
		changes.End = &end
	} else if intent.Has(FieldDuration) {
		d, err := aitime.ParseDuration(intent.Duration)
		if err != nil {
			return nil, timeError(FieldDuration, err)
		}
		changes.Duration = &d
	}

	updated, err := changes.Apply(*target)
	if err != nil {
		return nil, err
	}
	t := *target
	return &ResolvedAction{
		Kind:        KindEditEvent,
		Title:       updated.Title,
		Description: updated.Description,
		Guests:      slices.Clone(updated.Guests),
		Window:      updated.Window,
		Target:      &t,
		Changes:     &changes,
	}, nil
}

// moveStart resolves a new start for an existing event. A clock-only expression
// lands on the event's current day; a day-only expression keeps its time of day.
func (v *Validator) moveStart(ctx context.Context, expr string, now time.Time, current TimeWindow) (time.Time, error) {
	start, err := v.times.NormalizeOn(ctx, expr, now, current.Start)
	if err == nil {
		return start, nil
	}
	if !errors.Is(err, aitime.ErrAmbiguousTime) {
		return time.Time{}, timeError(FieldStart, err)
	}
	day, werr := v.times.NormalizeWindow(ctx, expr, now)
	if werr != nil || day.Duration() != 24*time.Hour {
		return time.Time{}, timeError(FieldStart, err)
	}
	cur := current.Start.In(v.times.Location())
	d := day.Start.In(v.times.Location())
	return time.Date(d.Year(), d.Month(), d.Day(), cur.Hour(), cur.Minute(), cur.Second(), 0, v.times.Location()), nil
}

func (v *Validator) validateDelete(intent Intent, target *EventSummary) (*ResolvedAction, error) {
	if target == nil || target.ID == "" {
		return nil, NewMissingSlots(FieldTarget)
	}
	t := *target
	return &ResolvedAction{
		Kind:   KindDeleteEvent,
		Title:  t.Title,
		Window: t.Window,
		Target: &t,
	}, nil
}

func (v *Validator) validateList(ctx context.Context, intent Intent, now time.Time) (*ResolvedAction, error) {
	window, err := v.windowOf(ctx, intent, now)
	if err != nil {
		return nil, err
	}
	if window == nil {
		w, _ := NewTimeWindow(now, now.Add(v.listHorizon), v.times.Location())
		window = &w
	}
	return &ResolvedAction{Kind: KindListEvents, Title: strings.TrimSpace(intent.Title), Window: *window}, nil
}

func (v *Validator) validateAvailability(ctx context.Context, intent Intent, now time.Time) (*ResolvedAction, error) {
	window, err := v.windowOf(ctx, intent, now)
	if err != nil {
		return nil, err
	}
	if window == nil {
		return nil, NewMissingSlots(FieldRange)
	}
	return &ResolvedAction{Kind: KindCheckAvailability, Window: *window}, nil
}

// windowOf reads the time window a list or availability intent names, either
// as a range expression or as start with optional end/duration. It returns
// nil when the intent names no window.
func (v *Validator) windowOf(ctx context.Context, intent Intent, now time.Time) (*TimeWindow, error) {
	switch {
	case intent.Has(FieldRange):
		r, err := v.times.NormalizeWindow(ctx, intent.Range, now)
		if err != nil {
			return nil, timeError(FieldRange, err)
		}
		w, ok := NewTimeWindow(r.Start, r.End, v.times.Location())
		if !ok {
			return nil, NewMissingSlots(FieldRange)
		}
		return &w, nil
	case intent.Has(FieldStart):
		if !intent.Has(FieldEnd) && !intent.Has(FieldDuration) {
			// "am I free on Friday" names a day, not an instant.
			r, err := v.times.NormalizeWindow(ctx, intent.Start, now)
			if err != nil {
				return nil, timeError(FieldStart, err)
			}
			w, ok := NewTimeWindow(r.Start, r.End, v.times.Location())
			if !ok {
				return nil, NewMissingSlots(FieldRange)
			}
			return &w, nil
		}
		start, err := v.times.Normalize(ctx, intent.Start, now)
		if err != nil {
			return nil, timeError(FieldStart, err)
		}
		end, err := v.endOf(ctx, intent, now, start, aitime.DefaultDuration)
		if err != nil {
			return nil, err
		}
		w, ok := NewTimeWindow(start, end, v.times.Location())
		if !ok {
			return nil, invalidEnd()
		}
		return &w, nil
	}
	return nil, nil
}

// timeError maps a normalizer failure on field to a domain error.
func timeError(field string, err error) error {
	kind := ErrorUnparseableTime
	if errors.Is(err, aitime.ErrAmbiguousTime) {
		kind = ErrorAmbiguousTime
	}
	e := NewError(kind, field, err)
	e.Fields = []string{field}
	return e
}

func invalidEnd() *Error {
	err := NewMissingSlots(FieldEnd)
	err.Message = "end must be after start"
	return err
}

func ptr[T any](v T) *T {
	return &v
}
