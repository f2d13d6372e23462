package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/hrygo/calbook/plugin/ai/aitime"
)

// DefaultLookupHorizon bounds a backend lookup for a reference with no date hint.
const DefaultLookupHorizon = 30 * 24 * time.Hour

// EventLookup is the read side of the calendar backend the resolver needs.
type EventLookup interface {
	ListEvents(ctx context.Context, window TimeWindow) ([]EventSummary, error)
	GetEvent(ctx context.Context, id string) (*EventSummary, error)
}

// State is the slice of session state the resolver reads.
type State struct {
	Pending      *Intent
	LastEventRef *EventRef
}

// Resolution is the outcome of resolving one intent.
type Resolution struct {
	// Action is set when the intent resolved fully.
	Action *ResolvedAction
	// Intent is the merged intent, with any resolved target pinned by id.
	Intent Intent
	// Pending is the intent to park in the session when resolution failed
	// with a clarifiable error; nil otherwise.
	Pending *Intent
}

// Resolver merges intents with session state and binds symbolic references.
type Resolver struct {
	validator *Validator
	times     aitime.TimeService
	lookup    EventLookup
	horizon   time.Duration
}

// NewResolver creates a resolver. lookup serves reference resolution.
func NewResolver(validator *Validator, times aitime.TimeService, lookup EventLookup) *Resolver {
	return &Resolver{
		validator: validator,
		times:     times,
		lookup:    lookup,
		horizon:   DefaultLookupHorizon,
	}
}

// Resolve merges next with state and produces a ResolvedAction. On failure the
// returned Resolution still carries the merged intent, and Pending is set when
// the failure asks the user for more information.
func (r *Resolver) Resolve(ctx context.Context, next Intent, state State, now time.Time) (*Resolution, error) {
	if !next.Kind.Valid() {
		return &Resolution{Intent: next}, NewError(ErrorInterpretation, fmt.Sprintf("unknown intent kind %q", next.Kind), nil)
	}

	merged := MergePending(state.Pending, next)
	res := &Resolution{Intent: merged}

	var target *EventSummary
	if merged.Kind == KindEditEvent || merged.Kind == KindDeleteEvent {
		if !merged.Has(FieldTarget) {
			return r.park(res, NewMissingSlots(FieldTarget))
		}
		event, err := r.resolveRef(ctx, *merged.Target, state.LastEventRef, now)
		if err != nil {
			return r.park(res, err)
		}
		target = event
		// Pin the binding so a follow-up turn does not have to look it up again.
		res.Intent.Target = &EventRef{ID: event.ID}
	}

	action, err := r.validator.Validate(ctx, res.Intent, now, target)
	if err != nil {
		return r.park(res, err)
	}
	res.Action = action
	return res, nil
}

// park records the intent as pending when err is a clarification.
func (r *Resolver) park(res *Resolution, err error) (*Resolution, error) {
	if KindOf(err).Clarifiable() {
		pending := res.Intent.Clone()
		res.Pending = &pending
	}
	return res, err
}

// resolveRef binds ref to exactly one event, or fails with AmbiguousReference
// or NoSuchEvent.
func (r *Resolver) resolveRef(ctx context.Context, ref EventRef, last *EventRef, now time.Time) (*EventSummary, error) {
	switch {
	case ref.ID != "":
		return r.getByID(ctx, ref.ID)
	case ref.Pronoun && ref.TitleHint == "" && ref.DateHint == "" && ref.TimeHint == "":
		if last == nil || last.ID == "" {
			return nil, NewError(ErrorAmbiguousReference, "no recent event to refer to", nil)
		}
		return r.getByID(ctx, last.ID)
	}

	window, err := r.lookupWindow(ctx, ref, now)
	if err != nil {
		return nil, err
	}
	events, err := r.lookup.ListEvents(ctx, window)
	if err != nil {
		return nil, BackendFailure("list", err)
	}

	var at *time.Time
	if ref.TimeHint != "" {
		t, err := r.atTime(ctx, ref, now, window)
		if err != nil {
			return nil, timeError(FieldTarget, err)
		}
		at = &t
	}

	candidates := filterCandidates(events, ref.TitleHint, at)
	// A pronoun with hints ("that meeting on Friday") prefers the recent event
	// when it is among the candidates.
	if ref.Pronoun && last != nil && last.ID != "" && len(candidates) > 1 {
		if i := slices.IndexFunc(candidates, func(e EventSummary) bool { return e.ID == last.ID }); i >= 0 {
			candidates = candidates[i : i+1]
		}
	}

	switch len(candidates) {
	case 0:
		return nil, NewError(ErrorNoSuchEvent, describeRef(ref), nil)
	case 1:
		event := candidates[0]
		return &event, nil
	default:
		slog.Debug("ambiguous event reference", "ref", describeRef(ref), "candidates", len(candidates))
		err := NewError(ErrorAmbiguousReference, describeRef(ref), nil)
		err.Candidates = candidates
		return nil, err
	}
}

func (r *Resolver) getByID(ctx context.Context, id string) (*EventSummary, error) {
	event, err := r.lookup.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return nil, NewError(ErrorNoSuchEvent, id, err)
		}
		return nil, BackendFailure("get", err)
	}
	return event, nil
}

// lookupWindow returns the span searched for a hinted reference: the day the
// date hint names, or the lookup horizon from now.
func (r *Resolver) lookupWindow(ctx context.Context, ref EventRef, now time.Time) (TimeWindow, error) {
	loc := r.times.Location()
	if ref.DateHint != "" {
		tr, err := r.times.NormalizeWindow(ctx, ref.DateHint, now)
		if err != nil {
			return TimeWindow{}, timeError(FieldTarget, err)
		}
		w, _ := NewTimeWindow(tr.Start, tr.End, loc)
		return w, nil
	}
	w, _ := NewTimeWindow(now, now.Add(r.horizon), loc)
	return w, nil
}

func (r *Resolver) atTime(ctx context.Context, ref EventRef, now time.Time, window TimeWindow) (time.Time, error) {
	if ref.DateHint != "" {
		return r.times.NormalizeOn(ctx, ref.TimeHint, now, window.Start)
	}
	return r.times.Normalize(ctx, ref.TimeHint, now)
}

// genericNouns name the kind of thing, not the event, and never narrow a match.
var genericNouns = map[string]bool{
	"meeting": true, "meetings": true, "event": true, "events": true,
	"appointment": true, "appointments": true, "call": true, "calls": true,
	"my": true, "the": true, "that": true, "this": true, "a": true, "an": true,
	"one": true, "booking": true, "slot": true,
}

// titleTokens returns the words of hint that identify an event.
func titleTokens(hint string) []string {
	var tokens []string
	for _, w := range strings.FieldsFunc(strings.ToLower(hint), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if !genericNouns[w] {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

func filterCandidates(events []EventSummary, titleHint string, at *time.Time) []EventSummary {
	tokens := titleTokens(titleHint)
	var out []EventSummary
	for _, e := range events {
		if at != nil && !e.Window.Start.Equal(*at) {
			continue
		}
		if len(tokens) > 0 {
			title := strings.ToLower(e.Title)
			if !allContained(title, tokens) {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// MatchesTitle reports whether title contains every identifying word of hint.
// A hint made only of generic nouns matches any title.
func MatchesTitle(hint, title string) bool {
	return allContained(strings.ToLower(title), titleTokens(hint))
}

// GenericTitle reports whether hint names no particular event ("my meeting").
func GenericTitle(hint string) bool {
	return len(titleTokens(hint)) == 0
}

func allContained(title string, tokens []string) bool {
	for _, t := range tokens {
		if !strings.Contains(title, t) {
			return false
		}
	}
	return true
}

func describeRef(ref EventRef) string {
	var parts []string
	if ref.TitleHint != "" {
		parts = append(parts, fmt.Sprintf("%q", ref.TitleHint))
	}
	if ref.DateHint != "" {
		parts = append(parts, "on "+ref.DateHint)
	}
	if ref.TimeHint != "" {
		parts = append(parts, "at "+ref.TimeHint)
	}
	if len(parts) == 0 {
		return "event"
	}
	return strings.Join(parts, " ")
}

// BackendFailure maps an error from a calendar call to the domain taxonomy.
// Timeouts become BackendTimeout, everything else BackendError.
func BackendFailure(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var be *BackendError
	if errors.As(err, &be) {
		kind := ErrorBackend
		if be.Timeout {
			kind = ErrorBackendTimeout
		}
		out := NewError(kind, op, err)
		out.Transient = be.Transient
		return out
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorBackendTimeout, op, err)
	}
	return NewError(ErrorBackend, op, err)
}
