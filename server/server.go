// Package server assembles the booking engine and serves it over HTTP.
package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hrygo/calbook/internal/profile"
	"github.com/hrygo/calbook/plugin/ai/agent"
	"github.com/hrygo/calbook/plugin/ai/aitime"
	"github.com/hrygo/calbook/plugin/ai/cache"
	"github.com/hrygo/calbook/plugin/ai/metrics"
	"github.com/hrygo/calbook/plugin/ai/session"
	"github.com/hrygo/calbook/plugin/ai/timeout"
	"github.com/hrygo/calbook/plugin/calendar/google"
	apierrors "github.com/hrygo/calbook/server/internal/errors"
	"github.com/hrygo/calbook/server/middleware"
	apiv1 "github.com/hrygo/calbook/server/router/api/v1"
	calsvc "github.com/hrygo/calbook/server/service/schedule"
	"github.com/hrygo/calbook/store"
)

const (
	// limiterIdle is how long an unused per-conversation bucket is kept.
	limiterIdle = 10 * time.Minute
	// l1CacheTTL bounds how stale the in-process tier of the oracle cache may be.
	l1CacheTTL = time.Minute
)

// Server owns every long-lived component of a running instance.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	executor   *agent.Executor
	calendar   calsvc.Calendar
	metrics    *metrics.Service
	eviction   *session.EvictionJob
	limiter    *middleware.RateLimiter
	closers    []io.Closer

	mu        sync.Mutex
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

type options struct {
	calendar calsvc.Calendar
	oracle   agent.Oracle
}

// Option customizes NewServer.
type Option func(*options)

// WithCalendar replaces the backend the profile selects.
func WithCalendar(c calsvc.Calendar) Option {
	return func(o *options) {
		o.calendar = c
	}
}

// WithOracle replaces the oracle the profile selects.
func WithOracle(oracle agent.Oracle) Option {
	return func(o *options) {
		o.oracle = oracle
	}
}

// NewServer wires the engine described by profile. st backs the local
// calendar and may be nil when another backend is used.
func NewServer(ctx context.Context, profile *profile.Profile, st *store.Store, opts ...Option) (*Server, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	s := &Server{
		Profile: profile,
		Store:   st,
	}
	times := aitime.NewService(profile.Timezone)

	calendar := o.calendar
	if calendar == nil {
		var err error
		calendar, err = newCalendar(ctx, profile, st, times.Location())
		if err != nil {
			return nil, err
		}
	}
	s.calendar = calendar

	oracle := o.oracle
	if oracle == nil {
		oracle = s.newOracle(ctx, profile)
	}

	s.metrics = metrics.NewService(prometheus.NewRegistry())
	sessions := session.NewMemoryStore(session.WithHistoryLimit(profile.HistoryLimit))
	s.executor = agent.NewExecutor(oracle, sessions, calendar, times,
		agent.WithCallTimeout(orDefault(profile.BackendTimeout, timeout.BackendCallTimeout)),
		agent.WithRetryBackoff(orDefault(profile.RetryBackoff, timeout.RetryBackoff)),
		agent.WithMetrics(s.metrics),
	)

	evictionConfig := session.DefaultEvictionConfig()
	if profile.SessionIdleTimeout > 0 {
		evictionConfig.IdleTimeout = profile.SessionIdleTimeout
	}
	if profile.EvictionSchedule != "" {
		evictionConfig.Schedule = profile.EvictionSchedule
	}
	s.eviction = session.NewEvictionJob(sessions, evictionConfig)
	s.limiter = middleware.NewRateLimiter(profile.RateLimit, 2*int(profile.RateLimit))

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.HTTPErrorHandler = apierrors.HTTPErrorHandler
	echoServer.Use(echomiddleware.Recover())
	echoServer.Use(middleware.RequestLogger(slog.Default()))
	s.echoServer = echoServer

	api := apiv1.NewAPIV1Service(profile, s.executor, calendar, times, s.metrics)
	api.MetricsHandler = s.metrics.Handler()
	api.Limiter = s.limiter
	api.RegisterRoutes(echoServer)

	return s, nil
}

func newCalendar(ctx context.Context, profile *profile.Profile, st *store.Store, loc *time.Location) (calsvc.Calendar, error) {
	if profile.UsesGoogle() {
		client, err := google.NewFromCredentialsFile(ctx, profile.GoogleCredentialsFile, google.Config{
			CalendarID: profile.GoogleCalendarID,
			TimeZone:   profile.Timezone,
			Location:   loc,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create google calendar client")
		}
		return client, nil
	}
	if st == nil {
		return nil, errors.New("local calendar backend requires a store")
	}
	return calsvc.NewService(st, loc), nil
}

// newOracle returns the rule oracle, or the LLM oracle behind a cache with
// the rule oracle as its fallback. Redis, when configured, becomes the
// second cache tier; an unreachable Redis only costs the shared tier.
func (s *Server) newOracle(ctx context.Context, profile *profile.Profile) agent.Oracle {
	rule := agent.NewRuleOracle()
	if !profile.UsesLLM() {
		return rule
	}

	llm := agent.NewLLMOracle(agent.LLMConfig{
		APIKey:  profile.OracleAPIKey,
		BaseURL: profile.OracleBaseURL,
		Model:   profile.OracleModel,
		Timeout: timeout.OracleTimeout,
	}, rule)

	memory := cache.NewMemoryCache(cache.DefaultMemoryConfig())
	s.closers = append(s.closers, memory)
	var c cache.Cache = memory
	if profile.RedisAddr != "" {
		redis, err := cache.NewRedisCache(ctx, cache.DefaultRedisConfig(profile.RedisAddr))
		if err != nil {
			slog.Warn("redis unavailable, oracle cache stays in-process", "addr", profile.RedisAddr, "error", err)
		} else {
			s.closers = append(s.closers, redis)
			c = cache.NewTieredCache(memory, redis, l1CacheTTL)
		}
	}
	return agent.NewCachingOracle(llm, c, agent.DefaultOracleCacheTTL)
}

// Executor returns the turn executor, for callers that drive turns directly.
func (s *Server) Executor() *agent.Executor {
	return s.executor
}

// Calendar returns the calendar backend in use.
func (s *Server) Calendar() calsvc.Calendar {
	return s.calendar
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start launches background jobs and the HTTP listener. It returns once the
// listener is bound; serving continues until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	address := net.JoinHostPort(s.Profile.Addr, strconv.Itoa(s.Profile.Port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	return s.Serve(ctx, listener)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.runCancel = cancel
	s.mu.Unlock()

	if err := s.eviction.Start(runCtx); err != nil {
		cancel()
		return errors.Wrap(err, "failed to start session eviction")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pruneLimiter(runCtx)
	}()

	s.echoServer.Listener = listener
	go func() {
		if err := s.echoServer.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()

	slog.Info("calbook started",
		"address", listener.Addr().String(),
		"backend", s.Profile.Backend,
		"version", s.Profile.Version,
	)
	return nil
}

func (s *Server) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Prune(limiterIdle); n > 0 {
				slog.Debug("pruned idle rate limiters", "count", n)
			}
		}
	}
}

// Shutdown stops the listener, waiting for in-flight turns, then releases
// background jobs and connections.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, timeout.HTTPShutdownTimeout)
	defer cancel()

	slog.Info("server shutting down")

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	s.mu.Lock()
	if s.runCancel != nil {
		s.runCancel()
	}
	s.mu.Unlock()
	s.eviction.Stop()
	s.wg.Wait()

	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close resource", "error", err)
		}
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}

	slog.Info("calbook stopped properly")
}

func orDefault(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
