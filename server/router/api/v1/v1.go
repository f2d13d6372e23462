package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/calbook/internal/profile"
	"github.com/hrygo/calbook/plugin/ai/aitime"
	"github.com/hrygo/calbook/plugin/ai/metrics"
	"github.com/hrygo/calbook/plugin/ai/schedule"
	"github.com/hrygo/calbook/server/middleware"
	calsvc "github.com/hrygo/calbook/server/service/schedule"
)

// TurnHandler runs conversation turns. *agent.Executor implements it.
type TurnHandler interface {
	HandleTurn(ctx context.Context, conversationID, utterance string, now time.Time) *schedule.ActionResult
	Execute(ctx context.Context, conversationID string, intent schedule.Intent, now time.Time) *schedule.ActionResult
}

// APIV1Service serves the booking HTTP API.
type APIV1Service struct {
	Profile  *profile.Profile
	Turns    TurnHandler
	Calendar calsvc.Calendar
	Times    aitime.TimeService
	Metrics  metrics.MetricsService

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// Limiter throttles requests per conversation when set. Set it before
	// RegisterRoutes for it to cover the calendar endpoints.
	Limiter *middleware.RateLimiter

	now func() time.Time
}

// NewAPIV1Service wires the API onto its collaborators.
func NewAPIV1Service(profile *profile.Profile, turns TurnHandler, calendar calsvc.Calendar, times aitime.TimeService, metricsService metrics.MetricsService) *APIV1Service {
	return &APIV1Service{
		Profile:  profile,
		Turns:    turns,
		Calendar: calendar,
		Times:    times,
		Metrics:  metricsService,
		now:      time.Now,
	}
}

// RegisterRoutes mounts the API on echoServer.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	echoServer.GET("/healthz", s.Healthz)
	if s.MetricsHandler != nil {
		echoServer.GET("/metrics", echo.WrapHandler(s.MetricsHandler))
	}

	api := echoServer.Group("/api/v1",
		echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
			AllowOriginFunc: func(_ string) (bool, error) {
				return true, nil
			},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"*"},
		}),
		middleware.Auth(s.secret()),
	)

	api.POST("/chat", s.Chat)
	api.GET("/system/metrics/overview", s.GetMetricsOverview)

	calendar := api.Group("/calendar")
	if s.Limiter != nil {
		calendar.Use(middleware.RateLimit(s.Limiter, middleware.ConversationKey))
	}
	calendar.GET("/events", s.ListEvents)
	calendar.POST("/events", s.CreateEvent)
	calendar.POST("/availability", s.CheckAvailability)
	calendar.GET("/availability", s.CheckAvailability)
	calendar.GET("/events.ics", s.ExportEvents)
}

func (s *APIV1Service) secret() string {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.JWTSecret
}

func (s *APIV1Service) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status            string `json:"status"`
	CalendarConnected bool   `json:"calendar_connected"`
	Backend           string `json:"backend,omitempty"`
	Version           string `json:"version,omitempty"`
}

// Healthz reports liveness and whether the calendar backend answers.
// GET /healthz
func (s *APIV1Service) Healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok"}
	if s.Profile != nil {
		resp.Backend = s.Profile.Backend
		resp.Version = s.Profile.Version
	}
	if s.Calendar != nil {
		if err := s.Calendar.Ping(ctx); err != nil {
			slog.Warn("calendar backend ping failed", "error", err)
		} else {
			resp.CalendarConnected = true
		}
	}
	return c.JSON(http.StatusOK, resp)
}
