package aitime

import (
	"context"
	"log/slog"
	"time"
)

// Service implements TimeService with rule-based parsing.
type Service struct {
	parser *Parser
}

// NewService creates a new time service for the named timezone. Unknown or
// empty names fall back to IST.
func NewService(timezone string) *Service {
	return &Service{parser: NewParser(LoadLocation(timezone))}
}

// LoadLocation resolves a timezone name, falling back to IST.
func LoadLocation(name string) *time.Location {
	switch name {
	case "", "IST", "Asia/Kolkata", "Asia/Calcutta":
		return IST
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("unknown timezone, using IST", "timezone", name, "error", err)
		return IST
	}
	return loc
}

// Normalize standardizes time expressions.
func (s *Service) Normalize(_ context.Context, input string, now time.Time) (time.Time, error) {
	return s.parser.Normalize(input, now)
}

// NormalizeOn standardizes time expressions anchored to a calendar day.
func (s *Service) NormalizeOn(_ context.Context, input string, now, anchor time.Time) (time.Time, error) {
	return s.parser.NormalizeOn(input, now, anchor)
}

// NormalizeWindow parses range expressions.
func (s *Service) NormalizeWindow(_ context.Context, input string, now time.Time) (TimeRange, error) {
	return s.parser.NormalizeWindow(input, now)
}

// Format renders t as RFC 3339 in the display timezone, keeping any
// fractional seconds.
func (s *Service) Format(t time.Time) string {
	return t.In(s.parser.timezone).Format(time.RFC3339Nano)
}

// Location returns the display timezone.
func (s *Service) Location() *time.Location {
	return s.parser.timezone
}

// Ensure Service implements TimeService
var _ TimeService = (*Service)(nil)
