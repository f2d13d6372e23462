package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ResultKind tags an ActionResult.
type ResultKind string

const (
	ResultCreated      ResultKind = "created"
	ResultUpdated      ResultKind = "updated"
	ResultDeleted      ResultKind = "deleted"
	ResultListed       ResultKind = "listed"
	ResultAvailability ResultKind = "availability"
	ResultFailed       ResultKind = "failed"
)

// ActionResult is the typed outcome of one turn. Message is a plain-language
// rendering for transports that show text.
type ActionResult struct {
	Kind    ResultKind      `json:"kind"`
	Ref     *EventRef       `json:"ref,omitempty"`
	Event   *EventSummary   `json:"event,omitempty"`
	Events  []EventSummary  `json:"events,omitempty"`
	Window  *TimeWindow     `json:"window,omitempty"`
	IsFree  bool            `json:"is_free,omitempty"`
	Warning *ConflictResult `json:"warning,omitempty"`

	ErrorKind          ErrorKind `json:"error_kind,omitempty"`
	MissingFields      []string  `json:"missing_fields,omitempty"`
	NeedsClarification bool      `json:"needs_clarification,omitempty"`

	// Retries counts backend retries performed during the turn.
	Retries int    `json:"retries"`
	Message string `json:"message"`
}

// Succeeded reports whether the result is not a failure.
func (r *ActionResult) Succeeded() bool {
	return r.Kind != ResultFailed
}

// Created builds a Created result, attaching the conflict warning if any.
func Created(event EventSummary, warning *ConflictResult) *ActionResult {
	ref := event.Ref()
	r := &ActionResult{Kind: ResultCreated, Ref: &ref, Event: &event}
	r.Message = fmt.Sprintf("Booked %q for %s.", event.Title, FormatWindow(event.Window))
	if warning.HasConflict() {
		r.Warning = warning
		r.Message += " " + conflictNote(warning)
	}
	return r
}

// Updated builds an Updated result.
func Updated(event EventSummary, warning *ConflictResult) *ActionResult {
	ref := event.Ref()
	r := &ActionResult{Kind: ResultUpdated, Ref: &ref, Event: &event}
	r.Message = fmt.Sprintf("Updated %q, now %s.", event.Title, FormatWindow(event.Window))
	if warning.HasConflict() {
		r.Warning = warning
		r.Message += " " + conflictNote(warning)
	}
	return r
}

// Deleted builds a Deleted result.
func Deleted(event EventSummary) *ActionResult {
	ref := event.Ref()
	return &ActionResult{
		Kind:    ResultDeleted,
		Ref:     &ref,
		Event:   &event,
		Message: fmt.Sprintf("Deleted %q (%s).", event.Title, FormatWindow(event.Window)),
	}
}

// Listed builds a Listed result.
func Listed(window TimeWindow, events []EventSummary) *ActionResult {
	r := &ActionResult{Kind: ResultListed, Window: &window, Events: events}
	if len(events) == 0 {
		r.Message = fmt.Sprintf("Nothing scheduled %s.", FormatWindow(window))
		return r
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d event(s) %s:", len(events), FormatWindow(window))
	for _, e := range events {
		fmt.Fprintf(&b, "\n- %s: %s", FormatWindow(e.Window), e.Title)
	}
	r.Message = b.String()
	return r
}

// Availability builds an Availability result.
func Availability(window TimeWindow, free bool, conflicts []EventSummary) *ActionResult {
	r := &ActionResult{Kind: ResultAvailability, Window: &window, IsFree: free, Events: conflicts}
	if free {
		r.Message = fmt.Sprintf("You are free %s.", FormatWindow(window))
		return r
	}
	titles := make([]string, 0, len(conflicts))
	for _, e := range conflicts {
		titles = append(titles, fmt.Sprintf("%q", e.Title))
	}
	r.Message = fmt.Sprintf("You are busy %s", FormatWindow(window))
	if len(titles) > 0 {
		r.Message += ": " + strings.Join(titles, ", ")
	}
	r.Message += "."
	return r
}

// Failed converts err into a failure result. Errors that are not *Error are
// reported as terminal backend errors.
func Failed(err error) *ActionResult {
	var e *Error
	if !errors.As(err, &e) {
		e = NewError(ErrorBackend, "", err)
	}
	r := &ActionResult{
		Kind:               ResultFailed,
		ErrorKind:          e.Kind,
		MissingFields:      e.Fields,
		NeedsClarification: e.Kind.Clarifiable(),
		Events:             e.Candidates,
	}
	r.Message = failureMessage(e)
	return r
}

func failureMessage(e *Error) string {
	switch e.Kind {
	case ErrorMissingSlots:
		return "I need a bit more information: " + strings.Join(e.Fields, ", ") + "."
	case ErrorAmbiguousReference:
		if len(e.Candidates) == 0 {
			return "Which event do you mean?"
		}
		parts := make([]string, 0, len(e.Candidates))
		for _, c := range e.Candidates {
			parts = append(parts, fmt.Sprintf("%q at %s", c.Title, FormatWindow(c.Window)))
		}
		return "Which one do you mean: " + strings.Join(parts, ", ") + "?"
	case ErrorNoSuchEvent:
		return "I couldn't find a matching event."
	case ErrorAmbiguousTime:
		return "Could you be more specific about the " + fieldList(e.Fields, "time") + "?"
	case ErrorUnparseableTime:
		return "I couldn't understand the " + fieldList(e.Fields, "time") + "."
	case ErrorBackendTimeout:
		return "The calendar took too long to respond. Please try again."
	case ErrorInterpretation:
		return "Sorry, I didn't understand that request."
	default:
		return "The calendar rejected the request. Please try again later."
	}
}

func fieldList(fields []string, fallback string) string {
	if len(fields) == 0 {
		return fallback
	}
	return strings.Join(fields, ", ")
}

func conflictNote(c *ConflictResult) string {
	titles := make([]string, 0, len(c.Events))
	for _, e := range c.Events {
		titles = append(titles, fmt.Sprintf("%q", e.Title))
	}
	note := "Heads up: it overlaps " + strings.Join(titles, ", ") + "."
	if len(c.Alternatives) > 0 {
		note += fmt.Sprintf(" %s is free if you'd rather move it.", FormatWindow(c.Alternatives[0]))
	}
	return note
}

// FormatWindow renders a window for messages, e.g. "Tue 16 Jan 14:00-15:00 IST".
func FormatWindow(w TimeWindow) string {
	if w.Start.IsZero() {
		return ""
	}
	start, end := w.Start, w.End.In(w.Start.Location())
	switch {
	case start.Equal(dayStart(start)) && end.Equal(start.AddDate(0, 0, 1)):
		return "on " + start.Format("Mon 02 Jan")
	case sameDay(start, end):
		return start.Format("Mon 02 Jan 15:04") + "-" + end.Format("15:04 MST")
	}
	return start.Format("Mon 02 Jan 15:04") + " to " + end.Format("Mon 02 Jan 15:04 MST")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
