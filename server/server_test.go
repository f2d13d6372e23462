package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hrygo/calbook/internal/profile"
	"github.com/hrygo/calbook/plugin/ai/aitime"
	"github.com/hrygo/calbook/plugin/ai/schedule"
	apiv1 "github.com/hrygo/calbook/server/router/api/v1"
	calsvc "github.com/hrygo/calbook/server/service/schedule"
	storetest "github.com/hrygo/calbook/store/test"
)

func testProfile() *profile.Profile {
	return &profile.Profile{
		Mode:             "dev",
		Addr:             "127.0.0.1",
		Backend:          "local",
		Timezone:         "Asia/Kolkata",
		RateLimit:        50,
		EvictionSchedule: "@every 1h",
		Version:          "test",
	}
}

func TestNewServer_LocalBackendRequiresStore(t *testing.T) {
	_, err := NewServer(context.Background(), testProfile(), nil)
	require.Error(t, err)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	calendar := calsvc.NewMockCalendar(aitime.IST)
	s, err := NewServer(ctx, testProfile(), nil, WithCalendar(calendar))
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, s.Serve(ctx, listener))

	client := &http.Client{Timeout: 5 * time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
	base := "http://" + listener.Addr().String()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = client.Get(base + "/healthz")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	var health apiv1.HealthResponse
	err = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, health.CalendarConnected)
	assert.Equal(t, "test", health.Version)

	resp, err = client.Get(base + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.Shutdown(ctx)
	client.CloseIdleConnections()
}

func TestServer_ChatAgainstLocalStore(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewTestingStore(ctx, t)
	s, err := NewServer(ctx, testProfile(), st)
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]string{
		"conversation_id": "server-test",
		"message":         "Book a team sync on 2099-03-02 at 10am for 30 minutes",
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "success", out.Status, rec.Body.String())

	start := time.Date(2099, 3, 2, 0, 0, 0, 0, aitime.IST)
	window, ok := schedule.NewTimeWindow(start, start.Add(24*time.Hour), aitime.IST)
	require.True(t, ok)
	events, err := s.Calendar().ListEvents(ctx, window)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 30*time.Minute, events[0].Window.Duration())
}
