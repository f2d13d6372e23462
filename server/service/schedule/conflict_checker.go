package schedule

import (
	"sort"
	"time"

	aischedule "github.com/hrygo/calbook/plugin/ai/schedule"
)

const (
	// WorkdayStartHour and WorkdayEndHour bound the suggested alternative slots.
	WorkdayStartHour = 8
	WorkdayEndHour   = 20

	// MaxAlternatives is the maximum number of alternative slots suggested.
	MaxAlternatives = 3

	// AlternativeStep is the granularity at which free gaps are sampled.
	AlternativeStep = 30 * time.Minute
)

// ConflictChecker classifies how a candidate window collides with existing
// events and suggests nearby free slots. It reports only; it never blocks.
type ConflictChecker struct {
	loc *time.Location
}

// NewConflictChecker creates a checker working in loc.
func NewConflictChecker(loc *time.Location) *ConflictChecker {
	if loc == nil {
		loc = time.UTC
	}
	return &ConflictChecker{loc: loc}
}

// SearchWindow returns the span whose events Check needs: the candidate
// itself plus the working hours of the candidate's day.
func (c *ConflictChecker) SearchWindow(candidate aischedule.TimeWindow) aischedule.TimeWindow {
	dayStart, dayEnd := c.workday(candidate.Start)
	w := aischedule.TimeWindow{Start: dayStart, End: dayEnd}
	if candidate.Start.Before(w.Start) {
		w.Start = candidate.Start.In(c.loc)
	}
	if candidate.End.After(w.End) {
		w.End = candidate.End.In(c.loc)
	}
	return w
}

// Check classifies overlap between candidate and existing using half-open
// intervals. The event with excludeID (the one being edited) is ignored.
// Alternatives never start before now.
func (c *ConflictChecker) Check(candidate aischedule.TimeWindow, existing []aischedule.EventSummary, excludeID string, now time.Time) *aischedule.ConflictResult {
	var others, conflicts []aischedule.EventSummary
	for _, e := range existing {
		if excludeID != "" && e.ID == excludeID {
			continue
		}
		others = append(others, e)
		if e.Window.Overlaps(candidate) {
			conflicts = append(conflicts, e)
		}
	}

	if len(conflicts) == 0 {
		return &aischedule.ConflictResult{Kind: aischedule.NoConflict}
	}

	result := &aischedule.ConflictResult{Kind: aischedule.PartialOverlap, Events: conflicts}
	for _, e := range conflicts {
		if e.Window.Contains(candidate) {
			result.Kind = aischedule.FullOverlap
			result.Events = []aischedule.EventSummary{e}
			break
		}
	}
	// Containment is symmetric: a candidate swallowing the only conflicting
	// event is as severe as one swallowed by it.
	if len(conflicts) == 1 && candidate.Contains(conflicts[0].Window) {
		result.Kind = aischedule.FullOverlap
	}

	result.Alternatives = c.findAlternatives(candidate, others, now)
	return result
}

type timeRange struct {
	start time.Time
	end   time.Time
}

// findAlternatives scans the free gaps of the candidate's working day for
// slots of the same length, closest to the requested start first.
func (c *ConflictChecker) findAlternatives(candidate aischedule.TimeWindow, events []aischedule.EventSummary, now time.Time) []aischedule.TimeWindow {
	duration := candidate.Duration()
	dayStart, dayEnd := c.workday(candidate.Start)
	if duration <= 0 || duration > dayEnd.Sub(dayStart) {
		return nil
	}

	// Build busy time ranges
	busyRanges := make([]timeRange, 0, len(events))
	for _, e := range events {
		busyRanges = append(busyRanges, timeRange{start: e.Window.Start, end: e.Window.End})
	}
	sort.Slice(busyRanges, func(i, j int) bool {
		return busyRanges[i].start.Before(busyRanges[j].start)
	})

	// Collect free gaps between busy ranges
	var gaps []timeRange
	current := dayStart
	if n := now.In(c.loc); n.After(current) {
		current = n.Truncate(time.Minute)
	}
	for _, busy := range busyRanges {
		if !busy.end.After(current) {
			continue
		}
		if busy.start.After(current) {
			gaps = append(gaps, timeRange{start: current, end: minTime(busy.start, dayEnd)})
		}
		current = busy.end
		if !current.Before(dayEnd) {
			break
		}
	}
	if current.Before(dayEnd) {
		gaps = append(gaps, timeRange{start: current, end: dayEnd})
	}

	var slots []aischedule.TimeWindow
	for _, gap := range gaps {
		for start := gap.start; !start.Add(duration).After(gap.end); start = start.Add(AlternativeStep) {
			slots = append(slots, aischedule.TimeWindow{Start: start, End: start.Add(duration)})
		}
	}

	requested := candidate.Start
	sort.SliceStable(slots, func(i, j int) bool {
		di, dj := absDuration(slots[i].Start.Sub(requested)), absDuration(slots[j].Start.Sub(requested))
		if di != dj {
			return di < dj
		}
		return slots[i].Start.Before(slots[j].Start)
	})
	if len(slots) > MaxAlternatives {
		slots = slots[:MaxAlternatives]
	}
	return slots
}

func (c *ConflictChecker) workday(t time.Time) (time.Time, time.Time) {
	t = t.In(c.loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), WorkdayStartHour, 0, 0, 0, c.loc)
	end := time.Date(t.Year(), t.Month(), t.Day(), WorkdayEndHour, 0, 0, 0, c.loc)
	return start, end
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
