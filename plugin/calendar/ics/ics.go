// Package ics converts booked events to and from iCalendar (RFC 5545).
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/hrygo/calbook/plugin/ai/aitime"
	aischedule "github.com/hrygo/calbook/plugin/ai/schedule"
	calsvc "github.com/hrygo/calbook/server/service/schedule"
)

// ProductID is the PRODID of exported calendars.
const ProductID = "-//calbook//Booking Orchestration Engine//EN"

// ExportOptions tune Export.
type ExportOptions struct {
	// Name becomes X-WR-CALNAME.
	Name string
	// Location becomes X-WR-TIMEZONE.
	Location *time.Location
	// Stamp is the DTSTAMP of every event; zero means now.
	Stamp time.Time
}

// Export renders events as a VCALENDAR document.
func Export(events []aischedule.EventSummary, opts ExportOptions) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	if opts.Location != nil {
		cal.SetXWRTimezone(opts.Location.String())
	}
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	for _, e := range events {
		ev := cal.AddEvent(uid(e.ID))
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(e.Window.Start)
		ev.SetEndAt(e.Window.End)
		ev.SetSummary(e.Title)
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		for _, guest := range e.Guests {
			ev.AddAttendee(guest)
		}
	}
	return cal.Serialize()
}

func uid(id string) string {
	if strings.Contains(id, "@") {
		return id
	}
	return id + "@calbook"
}

// ParsedEvent is one VEVENT read from an iCalendar document.
type ParsedEvent struct {
	UID   string
	Event aischedule.EventSummary
}

// Parse reads the VEVENTs of an iCalendar document. Times are converted to
// loc. Events without an end last aitime.DefaultDuration; all-day events span
// their whole days in loc. Malformed events are skipped.
func Parse(r io.Reader, loc *time.Location) ([]ParsedEvent, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read ics: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = aitime.IST
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ics: %w", err)
	}

	events := make([]ParsedEvent, 0)
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve, loc)
		if err != nil {
			slog.Warn("skipping malformed vevent", "uid", ve.Id(), "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	id := ve.Id()
	if id == "" {
		return ParsedEvent{}, errors.New("missing UID")
	}

	start, end, err := eventTimes(ve, loc)
	if err != nil {
		return ParsedEvent{}, err
	}
	window, ok := aischedule.NewTimeWindow(start, end, loc)
	if !ok {
		return ParsedEvent{}, fmt.Errorf("event %s ends before it starts", id)
	}

	summary := aischedule.EventSummary{
		ID:     strings.TrimSuffix(id, "@calbook"),
		Title:  propertyValue(ve, ical.ComponentPropertySummary),
		Window: window,
	}
	if summary.Title == "" {
		summary.Title = "Untitled event"
	}
	summary.Description = propertyValue(ve, ical.ComponentPropertyDescription)
	for _, a := range ve.Attendees() {
		if email := a.Email(); email != "" {
			summary.Guests = append(summary.Guests, email)
		}
	}
	return ParsedEvent{UID: id, Event: summary}, nil
}

func eventTimes(ve *ical.VEvent, loc *time.Location) (time.Time, time.Time, error) {
	if day, ok := dateValue(ve, ical.ComponentPropertyDtStart, loc); ok {
		end, ok := dateValue(ve, ical.ComponentPropertyDtEnd, loc)
		if !ok || !end.After(day) {
			end = day.AddDate(0, 0, 1)
		}
		return day, end, nil
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid DTSTART: %w", err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		end = start.Add(aitime.DefaultDuration)
	}
	return start, end, nil
}

// dateValue reads a VALUE=DATE property as midnight in loc.
func dateValue(ve *ical.VEvent, prop ical.ComponentProperty, loc *time.Location) (time.Time, bool) {
	v := propertyValue(ve, prop)
	if len(v) != len(icalDate) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(icalDate, v, loc)
	return t, err == nil
}

const icalDate = "20060102"

func propertyValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	p := ve.GetProperty(prop)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

// CreateRequest turns a parsed event into a create request. The UID doubles
// as the request key, so importing the same file twice books each event once.
func (p ParsedEvent) CreateRequest() *calsvc.CreateEventRequest {
	return &calsvc.CreateEventRequest{
		Title:       p.Event.Title,
		Description: p.Event.Description,
		Window:      p.Event.Window,
		Guests:      p.Event.Guests,
		RequestKey:  "ics:" + p.UID,
	}
}
