package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/calbook/plugin/ai/schedule"
	"github.com/hrygo/calbook/plugin/calendar/ics"
	apierrors "github.com/hrygo/calbook/server/internal/errors"
	"github.com/hrygo/calbook/server/middleware"
)

const (
	// UpcomingLimit caps the open-ended upcoming listing.
	UpcomingLimit = 20
	// UpcomingHorizon is how far ahead the upcoming listing looks.
	UpcomingHorizon = 30 * 24 * time.Hour
)

// EventsResponse is the body of GET /api/v1/calendar/events.
type EventsResponse struct {
	Events  []schedule.EventSummary `json:"events"`
	Window  *schedule.TimeWindow    `json:"window,omitempty"`
	Message string                  `json:"message,omitempty"`
}

// CreateEventRequest is the body of POST /api/v1/calendar/events. Times are
// ISO 8601 or any expression the time normalizer understands.
type CreateEventRequest struct {
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Start       string   `json:"start"`
	StartTime   string   `json:"start_time"`
	End         string   `json:"end"`
	EndTime     string   `json:"end_time"`
	Duration    string   `json:"duration"`
	Description string   `json:"description"`
	Guests      []string `json:"guests"`
}

// EventResponse answers a booking.
type EventResponse struct {
	Event   *schedule.EventSummary   `json:"event"`
	Warning *schedule.ConflictResult `json:"warning,omitempty"`
	Message string                   `json:"message"`
}

// AvailabilityRequest is the body of POST /api/v1/calendar/availability.
type AvailabilityRequest struct {
	Start     string `json:"start"`
	StartTime string `json:"start_time"`
	End       string `json:"end"`
	EndTime   string `json:"end_time"`
	Range     string `json:"range"`
}

// AvailabilityResponse reports whether a window is free.
type AvailabilityResponse struct {
	IsFree    bool                    `json:"is_free"`
	Window    *schedule.TimeWindow    `json:"window"`
	Conflicts []schedule.EventSummary `json:"conflicts"`
	Message   string                  `json:"message"`
}

// ListEvents lists events in a window, or the next UpcomingLimit events
// from start (default now) when no end is given.
// GET /api/v1/calendar/events?start=...&end=...
func (s *APIV1Service) ListEvents(c echo.Context) error {
	result, limit, err := s.listWindow(c)
	if err != nil {
		return err
	}
	events := result.Events
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	if events == nil {
		events = []schedule.EventSummary{}
	}
	return c.JSON(http.StatusOK, EventsResponse{Events: events, Window: result.Window, Message: result.Message})
}

// ExportEvents renders the same selection as ListEvents as iCalendar.
// GET /api/v1/calendar/events.ics
func (s *APIV1Service) ExportEvents(c echo.Context) error {
	result, limit, err := s.listWindow(c)
	if err != nil {
		return err
	}
	events := result.Events
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	body := ics.Export(events, ics.ExportOptions{
		Name:     "calbook",
		Location: s.Times.Location(),
		Stamp:    s.clock(),
	})
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="calbook.ics"`)
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
}

// listWindow runs the list action the query parameters select and returns
// the truncation limit that applies to it.
func (s *APIV1Service) listWindow(c echo.Context) (*schedule.ActionResult, int, error) {
	ctx := c.Request().Context()
	now := s.clock()
	start := firstNonEmpty(c.QueryParam("start"), c.QueryParam("start_time"))
	end := firstNonEmpty(c.QueryParam("end"), c.QueryParam("end_time"))

	intent := schedule.Intent{Kind: schedule.KindListEvents, Title: c.QueryParam("title")}
	limit := 0
	switch {
	case start != "" && end != "":
		intent.Start, intent.End = start, end
	case end != "":
		return nil, 0, apierrors.InvalidArgument("end requires start")
	default:
		from := now
		if start != "" {
			t, err := s.Times.Normalize(ctx, start, now)
			if err != nil {
				return nil, 0, apierrors.InvalidArgument("invalid start: " + err.Error())
			}
			from = t
		}
		intent.Start = from.Format(time.RFC3339)
		intent.End = from.Add(UpcomingHorizon).Format(time.RFC3339)
		limit = UpcomingLimit
	}

	result := s.Turns.Execute(ctx, apiConversationID(c), intent, now)
	if !result.Succeeded() {
		return nil, 0, resultError(result)
	}
	return result, limit, nil
}

// CreateEvent books an event from structured fields. The request still goes
// through validation, conflict detection and the retry policy.
// POST /api/v1/calendar/events
func (s *APIV1Service) CreateEvent(c echo.Context) error {
	var req CreateEventRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.InvalidArgument("invalid request body")
	}
	intent := schedule.Intent{
		Kind:        schedule.KindCreateEvent,
		Title:       strings.TrimSpace(firstNonEmpty(req.Title, req.Summary)),
		Start:       firstNonEmpty(req.Start, req.StartTime),
		End:         firstNonEmpty(req.End, req.EndTime),
		Duration:    req.Duration,
		Description: req.Description,
		Guests:      req.Guests,
	}

	result := s.Turns.Execute(c.Request().Context(), apiConversationID(c), intent, s.clock())
	if !result.Succeeded() {
		return resultError(result)
	}
	return c.JSON(http.StatusCreated, EventResponse{Event: result.Event, Warning: result.Warning, Message: result.Message})
}

// CheckAvailability reports whether a window is free, with the events that
// occupy it. Accepts a JSON body (POST) or query parameters (GET).
// POST /api/v1/calendar/availability
func (s *APIV1Service) CheckAvailability(c echo.Context) error {
	var req AvailabilityRequest
	if c.Request().Method == http.MethodGet {
		req = AvailabilityRequest{
			Start: firstNonEmpty(c.QueryParam("start"), c.QueryParam("start_time")),
			End:   firstNonEmpty(c.QueryParam("end"), c.QueryParam("end_time")),
			Range: c.QueryParam("range"),
		}
	} else if err := c.Bind(&req); err != nil {
		return apierrors.InvalidArgument("invalid request body")
	}

	intent := schedule.Intent{
		Kind:  schedule.KindCheckAvailability,
		Start: firstNonEmpty(req.Start, req.StartTime),
		End:   firstNonEmpty(req.End, req.EndTime),
		Range: req.Range,
	}
	result := s.Turns.Execute(c.Request().Context(), apiConversationID(c), intent, s.clock())
	if !result.Succeeded() {
		return resultError(result)
	}

	conflicts := result.Events
	if conflicts == nil {
		conflicts = []schedule.EventSummary{}
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{
		IsFree:    result.IsFree,
		Window:    result.Window,
		Conflicts: conflicts,
		Message:   result.Message,
	})
}

// apiConversationID keeps structured requests out of chat conversations:
// each gets its own short-lived conversation unless the caller names one.
func apiConversationID(c echo.Context) string {
	if id := c.Request().Header.Get(middleware.HeaderConversationID); id != "" {
		return id
	}
	return "api-" + uuid.NewString()
}

// resultError converts a failed ActionResult into an API error.
func resultError(result *schedule.ActionResult) error {
	err := &apierrors.APIError{Code: apierrors.CodeForKind(result.ErrorKind), Message: result.Message}
	err.WithContext("error_kind", result.ErrorKind)
	if len(result.MissingFields) > 0 {
		err.WithContext("missing_fields", result.MissingFields)
	}
	if len(result.Events) > 0 {
		err.WithContext("candidates", result.Events)
	}
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
