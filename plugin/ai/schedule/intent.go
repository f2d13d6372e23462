// Package schedule holds the booking data model (intents, resolved actions,
// event references, results), the slot validator and the intent resolver.
package schedule

import (
	"slices"
	"strings"
	"time"
)

// Kind is the operation an intent asks for.
type Kind string

const (
	KindCreateEvent       Kind = "create_event"
	KindEditEvent         Kind = "edit_event"
	KindDeleteEvent       Kind = "delete_event"
	KindListEvents        Kind = "list_events"
	KindCheckAvailability Kind = "check_availability"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCreateEvent, KindEditEvent, KindDeleteEvent, KindListEvents, KindCheckAvailability:
		return true
	}
	return false
}

// Slot names reported by MissingSlots and used to flag oracle corrections.
const (
	FieldTitle       = "title"
	FieldStart       = "start"
	FieldEnd         = "end"
	FieldDuration    = "duration"
	FieldDescription = "description"
	FieldTarget      = "target"
	FieldRange       = "range"
	FieldGuests      = "guests"
	FieldChanges     = "changes"
)

// EventRef points at a calendar event, either by provider id or symbolically.
type EventRef struct {
	// ID is the calendar provider's event identifier.
	ID string `json:"id,omitempty"`
	// Pronoun marks references like "that meeting" or "it".
	Pronoun bool `json:"pronoun,omitempty"`
	// Hints narrow a backend lookup. DateHint and TimeHint hold raw expressions.
	TitleHint string `json:"title_hint,omitempty"`
	DateHint  string `json:"date_hint,omitempty"`
	TimeHint  string `json:"time_hint,omitempty"`
}

// IsZero reports whether the reference carries no information at all.
func (r EventRef) IsZero() bool {
	return r.ID == "" && !r.Pronoun && r.TitleHint == "" && r.DateHint == "" && r.TimeHint == ""
}

// IsSymbolic reports whether the reference must be resolved before use.
func (r EventRef) IsSymbolic() bool {
	return r.ID == ""
}

// merge fills fields of r that are empty from o. With overwrite set, fields
// present in o replace those in r.
func (r EventRef) merge(o EventRef, overwrite bool) EventRef {
	pick := func(cur, next string) string {
		if next != "" && (cur == "" || overwrite) {
			return next
		}
		return cur
	}
	r.ID = pick(r.ID, o.ID)
	r.TitleHint = pick(r.TitleHint, o.TitleHint)
	r.DateHint = pick(r.DateHint, o.DateHint)
	r.TimeHint = pick(r.TimeHint, o.TimeHint)
	if o.Pronoun && (overwrite || (!r.Pronoun && r.ID == "")) {
		r.Pronoun = true
	}
	return r
}

// Intent is what the oracle understood from one utterance. Time fields keep
// the user's raw expression; the validator normalizes them. An empty string
// means the slot was not supplied. Intents are treated as immutable: Merge
// returns a new value.
type Intent struct {
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title,omitempty"`
	Start       string    `json:"start,omitempty"`
	End         string    `json:"end,omitempty"`
	Duration    string    `json:"duration,omitempty"`
	Description string    `json:"description,omitempty"`
	Range       string    `json:"range,omitempty"`
	Guests      []string  `json:"guests,omitempty"`
	Target      *EventRef `json:"target,omitempty"`

	// Corrections lists slots the user explicitly corrected ("actually make
	// it 4"); those may overwrite values already filled during a merge.
	Corrections []string `json:"corrections,omitempty"`
}

// Clone returns a deep copy of the intent.
func (i Intent) Clone() Intent {
	out := i
	out.Guests = slices.Clone(i.Guests)
	out.Corrections = slices.Clone(i.Corrections)
	if i.Target != nil {
		t := *i.Target
		out.Target = &t
	}
	return out
}

// Has reports whether the named slot carries a value.
func (i Intent) Has(field string) bool {
	switch field {
	case FieldTitle:
		return strings.TrimSpace(i.Title) != ""
	case FieldStart:
		return strings.TrimSpace(i.Start) != ""
	case FieldEnd:
		return strings.TrimSpace(i.End) != ""
	case FieldDuration:
		return strings.TrimSpace(i.Duration) != ""
	case FieldDescription:
		return strings.TrimSpace(i.Description) != ""
	case FieldRange:
		return strings.TrimSpace(i.Range) != ""
	case FieldGuests:
		return len(i.Guests) > 0
	case FieldTarget:
		return i.Target != nil && !i.Target.IsZero()
	}
	return false
}

// HasChanges reports whether an edit intent names anything to change.
func (i Intent) HasChanges() bool {
	return i.Has(FieldTitle) || i.Has(FieldStart) || i.Has(FieldEnd) ||
		i.Has(FieldDuration) || i.Has(FieldDescription) || i.Has(FieldGuests)
}

func (i Intent) corrects(field string) bool {
	return slices.Contains(i.Corrections, field)
}

// Merge folds a follow-up intent of the same kind into i. Slots already
// filled in i are kept unless next marks them as corrections. Merging the same
// follow-up twice yields the same intent as merging it once.
func (i Intent) Merge(next Intent) Intent {
	out := i.Clone()
	take := func(field string) bool {
		return next.Has(field) && (!i.Has(field) || next.corrects(field))
	}
	if take(FieldTitle) {
		out.Title = next.Title
	}
	if take(FieldStart) {
		out.Start = next.Start
	}
	if take(FieldEnd) {
		out.End = next.End
	}
	if take(FieldDuration) {
		out.Duration = next.Duration
	}
	if take(FieldDescription) {
		out.Description = next.Description
	}
	if take(FieldRange) {
		out.Range = next.Range
	}
	if take(FieldGuests) {
		out.Guests = slices.Clone(next.Guests)
	}
	if next.Has(FieldTarget) {
		if out.Target == nil {
			t := *next.Target
			out.Target = &t
		} else {
			merged := out.Target.merge(*next.Target, next.corrects(FieldTarget))
			out.Target = &merged
		}
	}
	out.Corrections = nil
	return out
}

// MergePending applies the pending-intent rule: a follow-up of the same kind
// is merged into the pending intent, any other kind replaces it.
func MergePending(pending *Intent, next Intent) Intent {
	if pending == nil || pending.Kind != next.Kind {
		out := next.Clone()
		out.Corrections = nil
		return out
	}
	return pending.Merge(next)
}

// TimeWindow is a half-open interval [Start, End) in the display timezone.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeWindow normalizes start and end to loc and checks start < end.
func NewTimeWindow(start, end time.Time, loc *time.Location) (TimeWindow, bool) {
	if loc != nil {
		start, end = start.In(loc), end.In(loc)
	}
	return TimeWindow{Start: start, End: end}, start.Before(end)
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Valid reports whether Start is strictly before End.
func (w TimeWindow) Valid() bool {
	return !w.Start.IsZero() && w.Start.Before(w.End)
}

// Overlaps reports whether the two half-open windows intersect.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return w.Start.Before(o.End) && w.End.After(o.Start)
}

// Contains reports whether o lies entirely within w.
func (w TimeWindow) Contains(o TimeWindow) bool {
	return !o.Start.Before(w.Start) && !o.End.After(w.End)
}

// Timezone returns the name of the window's timezone.
func (w TimeWindow) Timezone() string {
	return w.Start.Location().String()
}

// In returns the window converted to loc.
func (w TimeWindow) In(loc *time.Location) TimeWindow {
	return TimeWindow{Start: w.Start.In(loc), End: w.End.In(loc)}
}

// EventSummary is the backend's view of one event.
type EventSummary struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Window      TimeWindow `json:"window"`
	Guests      []string   `json:"guests,omitempty"`
}

// Ref returns a concrete reference to the event.
func (e EventSummary) Ref() EventRef {
	return EventRef{ID: e.ID}
}
