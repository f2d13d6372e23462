// Package aitime normalizes natural-language time expressions into absolute
// instants in the display timezone.
package aitime

import (
	"context"
	"time"
)

// DefaultDuration is the length given to a window when only its start is known.
const DefaultDuration = time.Hour

// IST is the default display timezone (UTC+05:30, no daylight saving).
var IST = time.FixedZone("IST", 5*3600+30*60)

// TimeService defines the time normalization service interface.
// Every method resolves relative expressions against the supplied now and
// never reads the wall clock.
type TimeService interface {
	// Normalize resolves an expression to an instant.
	// Supports: "tomorrow at 2 PM", "next Monday 10:30", "in 2 hours", "2024-01-16T14:00:00+05:30"
	Normalize(ctx context.Context, input string, now time.Time) (time.Time, error)

	// NormalizeOn resolves an expression, placing clock-only input on anchor's day.
	NormalizeOn(ctx context.Context, input string, now, anchor time.Time) (time.Time, error)

	// NormalizeWindow resolves an expression to a time range.
	// Supports: "today", "Friday", "this week", "next 7 days", "tomorrow 2pm to 4pm"
	NormalizeWindow(ctx context.Context, input string, now time.Time) (TimeRange, error)

	// Format renders an instant so that Normalize parses it back unchanged.
	Format(t time.Time) string

	// Location returns the display timezone.
	Location() *time.Location
}

// TimeRange represents a half-open time range [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the length of the range.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}
