package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/hrygo/calbook/plugin/ai/aitime"
	aischedule "github.com/hrygo/calbook/plugin/ai/schedule"
	calsvc "github.com/hrygo/calbook/server/service/schedule"
)

// fakeCalendar is an in-memory stand-in for the Calendar v3 API.
type fakeCalendar struct {
	t *testing.T

	mu       sync.Mutex
	events   map[string]*calendar.Event
	order    []string
	nextID   int
	failWith map[string]int // "METHOD path" -> status
	requests []string
	busy     []*calendar.TimePeriod
	pageSize int
}

func newFakeCalendar(t *testing.T) (*fakeCalendar, *Client) {
	f := &fakeCalendar{t: t, events: map[string]*calendar.Event{}, failWith: map[string]int{}}
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	return f, newTestClient(t, server)
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewWithOptions(context.Background(), Config{
		BaseURL:  server.URL,
		TimeZone: "Asia/Kolkata",
		Location: aitime.IST,
	}, option.WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return client
}

func (f *fakeCalendar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.Method + " " + r.URL.Path
	f.requests = append(f.requests, key)
	if status, ok := f.failWith[key]; ok {
		delete(f.failWith, key)
		writeError(w, status, "injected failure")
		return
	}

	const events = "/calendars/primary/events"
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/calendars/primary":
		writeJSON(w, &calendar.Calendar{Id: "primary"})

	case r.Method == http.MethodGet && r.URL.Path == events:
		query := r.URL.Query()
		assert.Equal(f.t, "true", query.Get("singleEvents"))
		assert.Equal(f.t, "Asia/Kolkata", query.Get("timeZone"))
		offset, _ := strconv.Atoi(query.Get("pageToken"))
		ids := f.order[offset:]
		next := ""
		if f.pageSize > 0 && len(ids) > f.pageSize {
			ids = ids[:f.pageSize]
			next = strconv.Itoa(offset + f.pageSize)
		}
		list := &calendar.Events{NextPageToken: next}
		for _, id := range ids {
			list.Items = append(list.Items, f.events[id])
		}
		writeJSON(w, list)

	case r.Method == http.MethodPost && r.URL.Path == events:
		var ev calendar.Event
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&ev))
		if ev.Id == "" {
			f.nextID++
			ev.Id = fmt.Sprintf("gen%d", f.nextID)
		}
		if _, exists := f.events[ev.Id]; exists {
			writeError(w, http.StatusConflict, "The requested identifier already exists.")
			return
		}
		ev.Status = "confirmed"
		f.events[ev.Id] = &ev
		f.order = append(f.order, ev.Id)
		writeJSON(w, &ev)

	case r.Method == http.MethodPost && r.URL.Path == "/freeBusy":
		var req calendar.FreeBusyRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(f.t, "Asia/Kolkata", req.TimeZone)
		writeJSON(w, &calendar.FreeBusyResponse{
			Calendars: map[string]calendar.FreeBusyCalendar{"primary": {Busy: f.busy}},
		})

	case strings.HasPrefix(r.URL.Path, events+"/"):
		id := strings.TrimPrefix(r.URL.Path, events+"/")
		ev, ok := f.events[id]
		if !ok {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, ev)
		case http.MethodPatch:
			var patch map[string]json.RawMessage
			require.NoError(f.t, json.NewDecoder(r.Body).Decode(&patch))
			fields := map[string]any{
				"summary":     &ev.Summary,
				"description": &ev.Description,
				"start":       &ev.Start,
				"end":         &ev.End,
				"attendees":   &ev.Attendees,
			}
			for name, dst := range fields {
				if v, ok := patch[name]; ok {
					require.NoError(f.t, json.Unmarshal(v, dst))
				}
			}
			writeJSON(w, ev)
		case http.MethodDelete:
			delete(f.events, id)
			for i, oid := range f.order {
				if oid == id {
					f.order = append(f.order[:i], f.order[i+1:]...)
					break
				}
			}
			w.WriteHeader(http.StatusNoContent)
		}

	default:
		writeError(w, http.StatusNotFound, "Not Found")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, status, msg)
}

func window(t *testing.T, startHour, endHour int) aischedule.TimeWindow {
	t.Helper()
	w, ok := aischedule.NewTimeWindow(
		time.Date(2024, 1, 16, startHour, 0, 0, 0, aitime.IST),
		time.Date(2024, 1, 16, endHour, 0, 0, 0, aitime.IST),
		aitime.IST,
	)
	require.True(t, ok)
	return w
}

func TestClient_CRUD(t *testing.T) {
	ctx := context.Background()
	_, client := newFakeCalendar(t)

	require.NoError(t, client.Ping(ctx))

	created, err := client.CreateEvent(ctx, &calsvc.CreateEventRequest{
		Title:      "Meeting",
		Window:     window(t, 14, 15),
		Guests:     []string{"amy@example.com"},
		RequestKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, eventID("key-1"), created.ID)
	assert.Equal(t, "Meeting", created.Title)
	assert.True(t, created.Window.Start.Equal(window(t, 14, 15).Start))
	assert.Equal(t, aitime.IST, created.Window.Start.Location())
	assert.Equal(t, []string{"amy@example.com"}, created.Guests)

	listed, err := client.ListEvents(ctx, window(t, 0, 23))
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	newTitle := "Design review"
	moved := window(t, 16, 17)
	updated, err := client.UpdateEvent(ctx, created.ID, &calsvc.UpdateEventRequest{Title: &newTitle, Window: &moved})
	require.NoError(t, err)
	assert.Equal(t, newTitle, updated.Title)
	assert.True(t, updated.Window.Start.Equal(moved.Start))

	guests := []string{"bob@example.com"}
	updated, err = client.UpdateEvent(ctx, created.ID, &calsvc.UpdateEventRequest{Guests: &guests})
	require.NoError(t, err)
	assert.Equal(t, guests, updated.Guests)
	assert.Equal(t, newTitle, updated.Title)

	cleared := []string{}
	updated, err = client.UpdateEvent(ctx, created.ID, &calsvc.UpdateEventRequest{Guests: &cleared})
	require.NoError(t, err)
	assert.Empty(t, updated.Guests)

	require.NoError(t, client.DeleteEvent(ctx, created.ID))
	_, err = client.GetEvent(ctx, created.ID)
	assert.ErrorIs(t, err, aischedule.ErrEventNotFound)
}

func TestClient_CreateReplayReturnsExisting(t *testing.T) {
	ctx := context.Background()
	fake, client := newFakeCalendar(t)

	req := &calsvc.CreateEventRequest{Title: "Meeting", Window: window(t, 14, 15), RequestKey: "turn-42"}
	first, err := client.CreateEvent(ctx, req)
	require.NoError(t, err)
	second, err := client.CreateEvent(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, fake.events, 1)
}

func TestClient_ListFollowsEveryPage(t *testing.T) {
	ctx := context.Background()
	fake, client := newFakeCalendar(t)
	fake.pageSize = 2

	for i := range 5 {
		start := time.Date(2024, 1, 16, 9+i, 0, 0, 0, aitime.IST)
		w, ok := aischedule.NewTimeWindow(start, start.Add(30*time.Minute), aitime.IST)
		require.True(t, ok)
		_, err := client.CreateEvent(ctx, &calsvc.CreateEventRequest{Title: fmt.Sprintf("Slot %d", i), Window: w})
		require.NoError(t, err)
	}
	fake.events["gen2"].Status = "cancelled"

	listed, err := client.ListEvents(ctx, window(t, 0, 23))
	require.NoError(t, err)
	require.Len(t, listed, 4)
	assert.Equal(t, "Slot 4", listed[3].Title)
}

func TestClient_StatusMapping(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		status    int
		transient bool
		timeout   bool
	}{
		{"ServerError", http.StatusServiceUnavailable, true, false},
		{"GatewayTimeout", http.StatusGatewayTimeout, true, true},
		{"RateLimited", http.StatusTooManyRequests, true, false},
		{"Forbidden", http.StatusForbidden, false, false},
		{"BadRequest", http.StatusBadRequest, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, client := newFakeCalendar(t)
			fake.failWith["GET /calendars/primary/events"] = tt.status

			_, err := client.ListEvents(ctx, window(t, 0, 23))
			var be *aischedule.BackendError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, "list", be.Op)
			assert.Equal(t, tt.status, be.Status)
			assert.Equal(t, tt.transient, be.Transient)
			assert.Equal(t, tt.timeout, be.Timeout)
		})
	}
}

func TestClient_QuotaForbiddenIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"Rate Limit Exceeded","errors":[{"reason":"userRateLimitExceeded"}]}}`))
	}))
	defer server.Close()
	client := newTestClient(t, server)

	_, err := client.CreateEvent(context.Background(), &calsvc.CreateEventRequest{Title: "Meeting", Window: window(t, 14, 15)})

	var be *aischedule.BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusTooManyRequests, be.Status)
	assert.True(t, be.Transient)
	assert.Contains(t, be.Error(), "Rate Limit Exceeded")
}

func TestStatusError_PlainForbiddenIsTerminal(t *testing.T) {
	err := statusError("update", &googleapi.Error{
		Code:    http.StatusForbidden,
		Message: "Forbidden",
		Errors:  []googleapi.ErrorItem{{Reason: "forbidden"}},
	})
	var be *aischedule.BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusForbidden, be.Status)
	assert.False(t, be.Transient)
}

func TestClient_FreeBusy(t *testing.T) {
	ctx := context.Background()
	fake, client := newFakeCalendar(t)

	free, err := client.GetFreeBusy(ctx, window(t, 9, 10))
	require.NoError(t, err)
	assert.True(t, free)

	fake.busy = []*calendar.TimePeriod{{Start: "2024-01-16T03:30:00Z", End: "2024-01-16T04:30:00Z"}}
	free, err = client.GetFreeBusy(ctx, window(t, 9, 10))
	require.NoError(t, err)
	assert.False(t, free)
}

func TestClient_DeadlineIsTransientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()
	client := newTestClient(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := client.Ping(ctx)

	var be *aischedule.BackendError
	require.True(t, errors.As(err, &be))
	assert.True(t, be.Transient)
	assert.True(t, be.Timeout)
}

func TestToSummary_AllDay(t *testing.T) {
	client := &Client{loc: aitime.IST}
	summary, err := client.toSummary(&calendar.Event{
		Id:      "offsite",
		Summary: "Offsite",
		Start:   &calendar.EventDateTime{Date: "2024-01-20"},
		End:     &calendar.EventDateTime{Date: "2024-01-21"},
	})
	require.NoError(t, err)
	assert.True(t, summary.Window.Start.Equal(time.Date(2024, 1, 20, 0, 0, 0, 0, aitime.IST)))
	assert.Equal(t, 24*time.Hour, summary.Window.Duration())
}

func TestEventID(t *testing.T) {
	assert.Empty(t, eventID(""))
	id := eventID("6f1c7a52-0b8e-4f5e-9d0a-3c2b1a0f9e8d")
	assert.Len(t, id, 32)
	assert.Equal(t, id, eventID("6f1c7a52-0b8e-4f5e-9d0a-3c2b1a0f9e8d"))
	for _, r := range id {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'v'), "rune %q outside base32hex", r)
	}
}
