// Package google implements the calendar backend on the Google Calendar v3
// API, authenticated with a service account.
package google

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/hrygo/calbook/plugin/ai/aitime"
	aischedule "github.com/hrygo/calbook/plugin/ai/schedule"
	calsvc "github.com/hrygo/calbook/server/service/schedule"
)

const (
	defaultTimeZone = "Asia/Kolkata"
	pageSize        = 250
	statusCancelled = "cancelled"
)

// Config configures the client.
type Config struct {
	// CalendarID selects the calendar; "primary" when empty.
	CalendarID string
	// BaseURL overrides the API endpoint.
	BaseURL string
	// TimeZone is the IANA name sent with writes and free/busy queries.
	TimeZone string
	// Location is the display timezone of returned windows.
	Location *time.Location
	// Subject is the user a domain-wide delegated service account acts as.
	Subject string
}

// Client is a Google Calendar backed calsvc.Calendar.
type Client struct {
	svc        *calendar.Service
	calendarID string
	timeZone   string
	loc        *time.Location
}

var _ calsvc.Calendar = (*Client)(nil)

// NewFromCredentialsFile reads a service account key and returns an
// authenticated client.
func NewFromCredentialsFile(ctx context.Context, path string, cfg Config) (*Client, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read google credentials: %w", err)
	}
	return NewFromCredentials(ctx, key, cfg)
}

// NewFromCredentials returns a client authenticated with the service account
// key in jsonKey.
func NewFromCredentials(ctx context.Context, jsonKey []byte, cfg Config) (*Client, error) {
	if cfg.Subject == "" {
		return NewWithOptions(ctx, cfg,
			option.WithCredentialsJSON(jsonKey),
			option.WithScopes(calendar.CalendarScope),
		)
	}
	// Impersonation needs the subject on the JWT itself.
	jwtConfig, err := google.JWTConfigFromJSON(jsonKey, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("invalid google credentials: %w", err)
	}
	jwtConfig.Subject = cfg.Subject
	return NewWithOptions(ctx, cfg, option.WithHTTPClient(jwtConfig.Client(ctx)))
}

// NewWithOptions returns a client built from cfg and the given API client
// options, which must carry authentication.
func NewWithOptions(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	c := &Client{
		svc:        svc,
		calendarID: cfg.CalendarID,
		timeZone:   cfg.TimeZone,
		loc:        cfg.Location,
	}
	if c.calendarID == "" {
		c.calendarID = "primary"
	}
	if c.timeZone == "" {
		c.timeZone = defaultTimeZone
	}
	if c.loc == nil {
		c.loc = aitime.LoadLocation(c.timeZone)
	}
	return c, nil
}

// ListEvents implements calsvc.Calendar. Every page of the window is read.
func (c *Client) ListEvents(ctx context.Context, window aischedule.TimeWindow) ([]aischedule.EventSummary, error) {
	call := c.svc.Events.List(c.calendarID).
		TimeMin(window.Start.Format(time.RFC3339)).
		TimeMax(window.End.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(pageSize).
		TimeZone(c.timeZone)

	var events []aischedule.EventSummary
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			if item.Status == statusCancelled {
				continue
			}
			summary, err := c.toSummary(item)
			if err != nil {
				slog.Warn("skipping google event with unreadable times", "event_id", item.Id, "error", err)
				continue
			}
			events = append(events, summary)
		}
		return nil
	})
	if err != nil {
		return nil, backendError(ctx, calsvc.OpList, err)
	}
	return events, nil
}

// GetEvent implements calsvc.Calendar.
func (c *Client) GetEvent(ctx context.Context, id string) (*aischedule.EventSummary, error) {
	item, err := c.svc.Events.Get(c.calendarID, id).Context(ctx).Do()
	if err != nil {
		return nil, backendError(ctx, calsvc.OpGet, err)
	}
	if item.Status == statusCancelled {
		return nil, aischedule.BackendStatusError(calsvc.OpGet, http.StatusGone, fmt.Errorf("event %s was cancelled", id))
	}
	return c.summaryOf(calsvc.OpGet, item)
}

// CreateEvent implements calsvc.Calendar. The request key becomes the event
// id, so a retried create that already succeeded conflicts and returns the
// existing event.
func (c *Client) CreateEvent(ctx context.Context, create *calsvc.CreateEventRequest) (*aischedule.EventSummary, error) {
	event := &calendar.Event{
		Id:          eventID(create.RequestKey),
		Summary:     create.Title,
		Description: create.Description,
		Start:       c.toDateTime(create.Window.Start),
		End:         c.toDateTime(create.Window.End),
		Attendees:   attendees(create.Guests),
	}

	item, err := c.svc.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if event.Id != "" && errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
			slog.Info("create replayed, returning existing event", "event_id", event.Id)
			return c.GetEvent(ctx, event.Id)
		}
		return nil, backendError(ctx, calsvc.OpCreate, err)
	}
	return c.summaryOf(calsvc.OpCreate, item)
}

// UpdateEvent implements calsvc.Calendar with a patch of the set fields.
func (c *Client) UpdateEvent(ctx context.Context, id string, update *calsvc.UpdateEventRequest) (*aischedule.EventSummary, error) {
	if update.IsEmpty() {
		return c.GetEvent(ctx, id)
	}

	patch := &calendar.Event{}
	if update.Title != nil {
		patch.Summary = *update.Title
		patch.ForceSendFields = append(patch.ForceSendFields, "Summary")
	}
	if update.Description != nil {
		patch.Description = *update.Description
		patch.ForceSendFields = append(patch.ForceSendFields, "Description")
	}
	if update.Window != nil {
		patch.Start = c.toDateTime(update.Window.Start)
		patch.End = c.toDateTime(update.Window.End)
	}
	if update.Guests != nil {
		patch.Attendees = attendees(*update.Guests)
		if patch.Attendees == nil {
			patch.Attendees = []*calendar.EventAttendee{}
		}
		patch.ForceSendFields = append(patch.ForceSendFields, "Attendees")
	}

	item, err := c.svc.Events.Patch(c.calendarID, id, patch).Context(ctx).Do()
	if err != nil {
		return nil, backendError(ctx, calsvc.OpUpdate, err)
	}
	return c.summaryOf(calsvc.OpUpdate, item)
}

// DeleteEvent implements calsvc.Calendar.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	if err := c.svc.Events.Delete(c.calendarID, id).Context(ctx).Do(); err != nil {
		return backendError(ctx, calsvc.OpDelete, err)
	}
	return nil
}

// GetFreeBusy implements calsvc.Calendar.
func (c *Client) GetFreeBusy(ctx context.Context, window aischedule.TimeWindow) (bool, error) {
	resp, err := c.svc.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin:  window.Start.Format(time.RFC3339),
		TimeMax:  window.End.Format(time.RFC3339),
		TimeZone: c.timeZone,
		Items:    []*calendar.FreeBusyRequestItem{{Id: c.calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return false, backendError(ctx, calsvc.OpFreeBusy, err)
	}

	cal, ok := resp.Calendars[c.calendarID]
	if !ok {
		return false, &aischedule.BackendError{Op: calsvc.OpFreeBusy, Err: fmt.Errorf("calendar %s missing from response", c.calendarID)}
	}
	if len(cal.Errors) > 0 {
		return false, &aischedule.BackendError{Op: calsvc.OpFreeBusy, Err: fmt.Errorf("calendar %s: %s", c.calendarID, cal.Errors[0].Reason)}
	}
	return len(cal.Busy) == 0, nil
}

// Ping implements calsvc.Calendar by reading the calendar's metadata.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.svc.Calendars.Get(c.calendarID).Context(ctx).Do(); err != nil {
		return backendError(ctx, calsvc.OpPing, err)
	}
	return nil
}

// backendError maps an API call failure to a BackendError.
func backendError(ctx context.Context, op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return statusError(op, apiErr)
	}
	return transportError(ctx, op, err)
}

func transportError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return &aischedule.BackendError{Op: op, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &aischedule.BackendError{Op: op, Transient: true, Timeout: true, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &aischedule.BackendError{Op: op, Transient: true, Timeout: true, Err: err}
	}
	// Connection-level failures are worth one more attempt.
	return &aischedule.BackendError{Op: op, Transient: true, Err: err}
}

func statusError(op string, apiErr *googleapi.Error) error {
	status := apiErr.Code
	// Quota errors arrive as 403 but clear up like a 429.
	if status == http.StatusForbidden {
		for _, item := range apiErr.Errors {
			if strings.HasSuffix(item.Reason, "RateLimitExceeded") {
				status = http.StatusTooManyRequests
			}
		}
	}
	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(apiErr.Code)
	}
	return aischedule.BackendStatusError(op, status, errors.New(msg))
}

func attendees(guests []string) []*calendar.EventAttendee {
	var out []*calendar.EventAttendee
	for _, guest := range guests {
		out = append(out, &calendar.EventAttendee{Email: guest})
	}
	return out
}

func (c *Client) toDateTime(t time.Time) *calendar.EventDateTime {
	return &calendar.EventDateTime{DateTime: t.In(c.loc).Format(time.RFC3339), TimeZone: c.timeZone}
}

// parseDateTime reads an event boundary; a date without a clock is all-day.
func (c *Client) parseDateTime(t *calendar.EventDateTime) (time.Time, bool, error) {
	if t == nil {
		return time.Time{}, false, errors.New("missing time")
	}
	if t.DateTime != "" {
		v, err := time.Parse(time.RFC3339, t.DateTime)
		return v.In(c.loc), false, err
	}
	v, err := time.ParseInLocation(time.DateOnly, t.Date, c.loc)
	return v, true, err
}

func (c *Client) summaryOf(op string, item *calendar.Event) (*aischedule.EventSummary, error) {
	summary, err := c.toSummary(item)
	if err != nil {
		return nil, &aischedule.BackendError{Op: op, Err: err}
	}
	return &summary, nil
}

func (c *Client) toSummary(item *calendar.Event) (aischedule.EventSummary, error) {
	start, allDay, err := c.parseDateTime(item.Start)
	if err != nil {
		return aischedule.EventSummary{}, fmt.Errorf("start: %w", err)
	}
	end, _, err := c.parseDateTime(item.End)
	if err != nil {
		if !allDay {
			return aischedule.EventSummary{}, fmt.Errorf("end: %w", err)
		}
		end = start.AddDate(0, 0, 1)
	}

	window, ok := aischedule.NewTimeWindow(start, end, c.loc)
	if !ok {
		return aischedule.EventSummary{}, fmt.Errorf("event %s has an empty window", item.Id)
	}
	summary := aischedule.EventSummary{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Window:      window,
	}
	for _, a := range item.Attendees {
		summary.Guests = append(summary.Guests, a.Email)
	}
	return summary, nil
}

// eventID derives a valid Calendar event id (base32hex, 5 to 1024 chars) from
// a request key. Hex digits are a subset of base32hex.
func eventID(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}
