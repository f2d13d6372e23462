package schedule

import (
	"slices"
	"time"
)

// EventChanges is the change set of an edit. Nil fields are left untouched.
type EventChanges struct {
	Title       *string        `json:"title,omitempty"`
	Description *string        `json:"description,omitempty"`
	Start       *time.Time     `json:"start,omitempty"`
	End         *time.Time     `json:"end,omitempty"`
	Duration    *time.Duration `json:"duration,omitempty"`
	// Guests replaces the guest list.
	Guests *[]string `json:"guests,omitempty"`
}

// IsEmpty reports whether the change set changes nothing.
func (c EventChanges) IsEmpty() bool {
	return c.Title == nil && c.Description == nil && c.Start == nil && c.End == nil && c.Duration == nil && c.Guests == nil
}

// Apply returns current with the changes applied. Moving only the start keeps
// the event's length, so the end shifts by the same delta.
func (c EventChanges) Apply(current EventSummary) (EventSummary, error) {
	out := current
	out.Guests = slices.Clone(current.Guests)
	if c.Title != nil {
		out.Title = *c.Title
	}
	if c.Description != nil {
		out.Description = *c.Description
	}
	if c.Guests != nil {
		out.Guests = slices.Clone(*c.Guests)
	}

	start, end := current.Window.Start, current.Window.End
	switch {
	case c.Start != nil && c.End != nil:
		start, end = *c.Start, *c.End
	case c.Start != nil && c.Duration != nil:
		start, end = *c.Start, c.Start.Add(*c.Duration)
	case c.Start != nil:
		end = c.Start.Add(current.Window.Duration())
		start = *c.Start
	case c.End != nil:
		end = *c.End
	case c.Duration != nil:
		end = start.Add(*c.Duration)
	}

	window, ok := NewTimeWindow(start, end, current.Window.Start.Location())
	if !ok {
		err := NewMissingSlots(FieldEnd)
		err.Message = "the event would end before it starts"
		return current, err
	}
	out.Window = window
	return out, nil
}

// ResolvedAction is a fully specified, validated instruction. Only a
// ResolvedAction may touch the calendar.
type ResolvedAction struct {
	Kind        Kind       `json:"kind"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Guests      []string   `json:"guests,omitempty"`
	Window      TimeWindow `json:"window"`

	// Target is the event an edit or delete acts on, as seen at resolution
	// time. The executor re-reads it by id before mutating.
	Target  *EventSummary `json:"target,omitempty"`
	Changes *EventChanges `json:"changes,omitempty"`
}

// MissingFields returns the required slots the action lacks for its kind.
func (a *ResolvedAction) MissingFields() []string {
	var missing []string
	switch a.Kind {
	case KindCreateEvent:
		if a.Title == "" {
			missing = append(missing, FieldTitle)
		}
		if a.Window.Start.IsZero() {
			missing = append(missing, FieldStart)
		}
		if !a.Window.Valid() {
			missing = append(missing, FieldEnd)
		}
	case KindEditEvent:
		if a.Target == nil || a.Target.ID == "" {
			missing = append(missing, FieldTarget)
		}
		if a.Changes == nil || a.Changes.IsEmpty() {
			missing = append(missing, FieldChanges)
		}
	case KindDeleteEvent:
		if a.Target == nil || a.Target.ID == "" {
			missing = append(missing, FieldTarget)
		}
	case KindListEvents, KindCheckAvailability:
		if !a.Window.Valid() {
			missing = append(missing, FieldRange)
		}
	default:
		missing = append(missing, "kind")
	}
	return missing
}

// TargetRef returns a concrete reference to the action's target, if any.
func (a *ResolvedAction) TargetRef() *EventRef {
	if a.Target == nil {
		return nil
	}
	ref := a.Target.Ref()
	return &ref
}

// ConflictKind classifies overlap severity.
type ConflictKind string

const (
	NoConflict     ConflictKind = "none"
	PartialOverlap ConflictKind = "partial_overlap"
	FullOverlap    ConflictKind = "full_overlap"
)

// ConflictResult is what the conflict checker found for a candidate window.
type ConflictResult struct {
	Kind ConflictKind `json:"kind"`
	// Events are the conflicting events; FullOverlap carries exactly one.
	Events []EventSummary `json:"events,omitempty"`
	// Alternatives are free slots of the same length, when any were found.
	Alternatives []TimeWindow `json:"alternatives,omitempty"`
}

// HasConflict reports whether anything overlaps.
func (c *ConflictResult) HasConflict() bool {
	return c != nil && c.Kind != NoConflict && c.Kind != ""
}

// Refs returns references to the conflicting events.
func (c *ConflictResult) Refs() []EventRef {
	if c == nil {
		return nil
	}
	refs := make([]EventRef, 0, len(c.Events))
	for _, e := range c.Events {
		refs = append(refs, e.Ref())
	}
	return refs
}
