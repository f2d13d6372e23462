package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/calbook/plugin/ai/aitime"
	"github.com/hrygo/calbook/plugin/ai/metrics"
	"github.com/hrygo/calbook/plugin/ai/schedule"
	"github.com/hrygo/calbook/plugin/ai/session"
	"github.com/hrygo/calbook/plugin/ai/timeout"
	calsvc "github.com/hrygo/calbook/server/service/schedule"
)

// errTurnPanicked aborts the session update after a recovered panic.
var errTurnPanicked = errors.New("turn panicked")

// Executor drives one conversation turn from utterance to ActionResult:
// interpretation, resolution, conflict check, backend call and session update,
// all under the conversation's session lock.
type Executor struct {
	oracle    Oracle
	sessions  session.Store
	calendar  calsvc.Calendar
	times     aitime.TimeService
	validator *schedule.Validator
	checker   *calsvc.ConflictChecker
	metrics   metrics.MetricsService
	newKey    func() string

	callTimeout   time.Duration
	retryBackoff  time.Duration
	lockTimeout   time.Duration
	oracleTimeout time.Duration
	contextTurns  int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithCallTimeout bounds each calendar backend attempt.
func WithCallTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithRetryBackoff sets the wait before retrying a transient failure.
func WithRetryBackoff(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d >= 0 {
			e.retryBackoff = d
		}
	}
}

// WithLockTimeout bounds the wait for a busy conversation.
func WithLockTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.lockTimeout = d
		}
	}
}

// WithOracleTimeout bounds each interpretation.
func WithOracleTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.oracleTimeout = d
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.MetricsService) ExecutorOption {
	return func(e *Executor) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithValidator replaces the default slot validator.
func WithValidator(v *schedule.Validator) ExecutorOption {
	return func(e *Executor) {
		if v != nil {
			e.validator = v
		}
	}
}

// WithContextTurns sets how many recent turns the oracle sees.
func WithContextTurns(n int) ExecutorOption {
	return func(e *Executor) {
		if n >= 0 {
			e.contextTurns = n
		}
	}
}

// WithIdempotencyKeys sets the generator of create request keys.
func WithIdempotencyKeys(gen func() string) ExecutorOption {
	return func(e *Executor) {
		if gen != nil {
			e.newKey = gen
		}
	}
}

// NewExecutor creates an executor.
func NewExecutor(oracle Oracle, sessions session.Store, calendar calsvc.Calendar, times aitime.TimeService, opts ...ExecutorOption) *Executor {
	e := &Executor{
		oracle:        oracle,
		sessions:      sessions,
		calendar:      calendar,
		times:         times,
		validator:     schedule.NewValidator(times),
		checker:       calsvc.NewConflictChecker(times.Location()),
		newKey:        uuid.NewString,
		callTimeout:   timeout.BackendCallTimeout,
		retryBackoff:  timeout.RetryBackoff,
		lockTimeout:   timeout.SessionLockTimeout,
		oracleTimeout: timeout.OracleTimeout,
		contextTurns:  session.DefaultTurnLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.NewService(nil)
	}
	return e
}

// interpretFunc produces the intent of a turn.
type interpretFunc func(ctx context.Context, cc ConversationContext) (schedule.Intent, error)

// HandleTurn interprets utterance in the context of the conversation and
// executes it. It always returns a result; failures are reported in it.
func (e *Executor) HandleTurn(ctx context.Context, conversationID, utterance string, now time.Time) *schedule.ActionResult {
	return e.run(ctx, conversationID, utterance, now, func(ctx context.Context, cc ConversationContext) (schedule.Intent, error) {
		return e.interpret(ctx, utterance, cc)
	})
}

// Execute runs an already structured intent in the conversation, skipping
// interpretation. The intent is still merged, resolved and validated.
func (e *Executor) Execute(ctx context.Context, conversationID string, intent schedule.Intent, now time.Time) *schedule.ActionResult {
	return e.run(ctx, conversationID, "", now, func(context.Context, ConversationContext) (schedule.Intent, error) {
		return intent.Clone(), nil
	})
}

func (e *Executor) run(ctx context.Context, conversationID, utterance string, now time.Time, interpret interpretFunc) (result *schedule.ActionResult) {
	logger := slog.With("conversation_id", conversationID, "request_id", uuid.NewString())
	start := time.Now()
	t := &turn{
		Executor: e,
		logger:   logger,
		now:      now.In(e.times.Location()),
		action:   "unknown",
		caller: &backendCaller{
			timeout: e.callTimeout,
			backoff: e.retryBackoff,
			metrics: e.metrics,
			logger:  logger,
		},
	}

	defer func() {
		outcome := string(result.Kind)
		if !result.Succeeded() {
			outcome = string(result.ErrorKind)
		}
		latency := time.Since(start)
		e.metrics.RecordTurn(ctx, t.action, outcome, result.Succeeded(), latency)
		logger.Info("turn handled",
			"action", t.action,
			"outcome", outcome,
			"retries", result.Retries,
			"latency_ms", latency.Milliseconds())
	}()

	lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()

	err := e.sessions.Update(lockCtx, conversationID, func(s *session.Session) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("recovered from panic during turn",
					"panic", r,
					"stack", string(debug.Stack()))
				result = schedule.Failed(schedule.NewError(schedule.ErrorBackend, "internal error", fmt.Errorf("panic: %v", r)))
				result.Retries = t.caller.Retries()
				err = errTurnPanicked
			}
		}()
		// The lock timeout bounds only the wait; the turn itself runs under ctx.
		result = t.handle(ctx, s, utterance, interpret)
		return nil
	})
	if err != nil && result == nil {
		kind := schedule.ErrorBackend
		if errors.Is(err, context.DeadlineExceeded) {
			kind = schedule.ErrorBackendTimeout
		}
		logger.Warn("conversation busy", "error", err)
		result = schedule.Failed(schedule.NewError(kind, "conversation busy", err))
	}
	return result
}

func (e *Executor) interpret(ctx context.Context, utterance string, cc ConversationContext) (schedule.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()

	start := time.Now()
	intent, err := e.oracle.Interpret(ctx, utterance, cc)
	e.metrics.RecordOracle(ctx, e.oracle.Name(), time.Since(start), err == nil)
	if err != nil {
		slog.Info("utterance not interpreted",
			"oracle", e.oracle.Name(),
			"input", truncateUtterance(utterance),
			"error", err)
		return intent, schedule.NewError(schedule.ErrorInterpretation, e.oracle.Name(), err)
	}
	return intent, nil
}

// turn holds the per-turn state of one HandleTurn call.
type turn struct {
	*Executor
	caller *backendCaller
	logger *slog.Logger
	now    time.Time
	action string
}

// handle runs the pipeline on the locked session copy s.
func (t *turn) handle(ctx context.Context, s *session.Session, utterance string, interpret interpretFunc) *schedule.ActionResult {
	cc := NewConversationContext(s, t.now, t.times.Location(), t.contextTurns)

	var result *schedule.ActionResult
	intent, err := interpret(ctx, cc)
	if err != nil {
		result = schedule.Failed(err)
	} else {
		t.action = string(intent.Kind)
		result = t.resolveAndExecute(ctx, s, intent)
		s.Record(session.HistoryEntry{
			Action:  intent.Kind,
			Ref:     result.Ref,
			Outcome: result.Kind,
			Error:   result.ErrorKind,
			At:      t.now,
		})
	}

	result.Retries = t.caller.Retries()
	if utterance != "" {
		s.AppendTurn(session.Turn{Utterance: utterance, Reply: result.Message, At: t.now})
	}
	return result
}

func (t *turn) resolveAndExecute(ctx context.Context, s *session.Session, intent schedule.Intent) *schedule.ActionResult {
	resolver := schedule.NewResolver(t.validator, t.times, &backendLookup{calendar: t.calendar, caller: t.caller})
	res, err := resolver.Resolve(ctx, intent, s.State(), t.now)
	if err != nil {
		if res != nil && res.Pending != nil {
			s.SetPending(res.Pending)
			t.logger.Debug("intent parked for clarification", "kind", res.Pending.Kind, "error", err)
		}
		return schedule.Failed(err)
	}

	result, err := t.execute(ctx, res.Action)
	if err != nil {
		t.logger.Warn("calendar action failed", "kind", res.Action.Kind, "error", err)
		return schedule.Failed(err)
	}

	s.ClearPending()
	switch result.Kind {
	case schedule.ResultCreated, schedule.ResultUpdated:
		s.SetLastEvent(result.Ref)
	case schedule.ResultDeleted:
		if s.LastEventRef != nil && result.Ref != nil && s.LastEventRef.ID == result.Ref.ID {
			s.SetLastEvent(nil)
		}
	case schedule.ResultListed:
		if len(result.Events) == 1 {
			ref := result.Events[0].Ref()
			s.SetLastEvent(&ref)
		} else if len(result.Events) > 1 {
			s.SetLastEvent(nil)
		}
	}
	return result
}

func (t *turn) execute(ctx context.Context, a *schedule.ResolvedAction) (*schedule.ActionResult, error) {
	switch a.Kind {
	case schedule.KindCreateEvent:
		return t.create(ctx, a)
	case schedule.KindEditEvent:
		return t.edit(ctx, a)
	case schedule.KindDeleteEvent:
		return t.delete(ctx, a)
	case schedule.KindListEvents:
		return t.list(ctx, a)
	case schedule.KindCheckAvailability:
		return t.availability(ctx, a)
	default:
		return nil, schedule.NewError(schedule.ErrorInterpretation, fmt.Sprintf("unknown action kind %q", a.Kind), nil)
	}
}

func (t *turn) create(ctx context.Context, a *schedule.ResolvedAction) (*schedule.ActionResult, error) {
	warning, err := t.checkConflicts(ctx, a.Window, "")
	if err != nil {
		return nil, err
	}

	req := &calsvc.CreateEventRequest{
		Title:       a.Title,
		Description: a.Description,
		Window:      a.Window,
		Guests:      a.Guests,
		// One key per turn, so a retried create returns the first booking.
		RequestKey: t.newKey(),
	}
	event, err := callBackend(ctx, t.caller, calsvc.OpCreate, func(ctx context.Context) (*schedule.EventSummary, error) {
		return t.calendar.CreateEvent(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info("event created", "event_id", event.ID, "start", event.Window.Start)
	return schedule.Created(*event, warning), nil
}

func (t *turn) edit(ctx context.Context, a *schedule.ResolvedAction) (*schedule.ActionResult, error) {
	current, err := t.fetch(ctx, a.Target.ID)
	if err != nil {
		return nil, err
	}
	changes := schedule.EventChanges{}
	if a.Changes != nil {
		changes = *a.Changes
	}
	updated, err := changes.Apply(*current)
	if err != nil {
		return nil, err
	}

	var warning *schedule.ConflictResult
	if !updated.Window.Start.Equal(current.Window.Start) || !updated.Window.End.Equal(current.Window.End) {
		warning, err = t.checkConflicts(ctx, updated.Window, current.ID)
		if err != nil {
			return nil, err
		}
	}

	req := calsvc.NewUpdateRequest(*current, updated)
	if req.IsEmpty() {
		return schedule.Updated(*current, nil), nil
	}
	event, err := callBackend(ctx, t.caller, calsvc.OpUpdate, func(ctx context.Context) (*schedule.EventSummary, error) {
		return t.calendar.UpdateEvent(ctx, current.ID, req)
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info("event updated", "event_id", event.ID, "start", event.Window.Start)
	return schedule.Updated(*event, warning), nil
}

func (t *turn) delete(ctx context.Context, a *schedule.ResolvedAction) (*schedule.ActionResult, error) {
	current, err := t.fetch(ctx, a.Target.ID)
	if err != nil {
		return nil, err
	}
	_, err = callBackend(ctx, t.caller, calsvc.OpDelete, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.calendar.DeleteEvent(ctx, current.ID)
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info("event deleted", "event_id", current.ID)
	return schedule.Deleted(*current), nil
}

func (t *turn) list(ctx context.Context, a *schedule.ResolvedAction) (*schedule.ActionResult, error) {
	events, err := callBackend(ctx, t.caller, calsvc.OpList, func(ctx context.Context) ([]schedule.EventSummary, error) {
		return t.calendar.ListEvents(ctx, a.Window)
	})
	if err != nil {
		return nil, err
	}
	if a.Title != "" {
		filtered := events[:0:0]
		for _, ev := range events {
			if schedule.MatchesTitle(a.Title, ev.Title) {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	if len(events) > calsvc.MaxListEvents {
		events = events[:calsvc.MaxListEvents]
	}
	return schedule.Listed(a.Window, events), nil
}

// availability asks the backend for free/busy and the overlapping events
// concurrently. The window is busy if either says so.
func (t *turn) availability(ctx context.Context, a *schedule.ResolvedAction) (*schedule.ActionResult, error) {
	var (
		free   bool
		events []schedule.EventSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		free, err = callBackend(gctx, t.caller, calsvc.OpFreeBusy, func(ctx context.Context) (bool, error) {
			return t.calendar.GetFreeBusy(ctx, a.Window)
		})
		return err
	})
	g.Go(func() error {
		var err error
		events, err = callBackend(gctx, t.caller, calsvc.OpList, func(ctx context.Context) ([]schedule.EventSummary, error) {
			return t.calendar.ListEvents(ctx, a.Window)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return schedule.Availability(a.Window, free && len(events) == 0, events), nil
}

// checkConflicts classifies how candidate collides with the calendar.
func (t *turn) checkConflicts(ctx context.Context, candidate schedule.TimeWindow, excludeID string) (*schedule.ConflictResult, error) {
	search := t.checker.SearchWindow(candidate)
	events, err := callBackend(ctx, t.caller, calsvc.OpList, func(ctx context.Context) ([]schedule.EventSummary, error) {
		return t.calendar.ListEvents(ctx, search)
	})
	if err != nil {
		return nil, err
	}
	result := t.checker.Check(candidate, events, excludeID, t.now)
	t.metrics.RecordConflict(ctx, string(result.Kind))
	if result.HasConflict() {
		t.logger.Info("conflict detected",
			"kind", result.Kind,
			"conflicts", len(result.Events),
			"alternatives", len(result.Alternatives))
	}
	return result, nil
}

// fetch re-reads an event right before it is mutated.
func (t *turn) fetch(ctx context.Context, id string) (*schedule.EventSummary, error) {
	event, err := callBackend(ctx, t.caller, calsvc.OpGet, func(ctx context.Context) (*schedule.EventSummary, error) {
		return t.calendar.GetEvent(ctx, id)
	})
	if err != nil {
		if errors.Is(err, schedule.ErrEventNotFound) {
			return nil, schedule.NewError(schedule.ErrorNoSuchEvent, id, err)
		}
		return nil, err
	}
	return event, nil
}

// backendLookup serves the resolver's reads through the turn's retry policy.
type backendLookup struct {
	calendar calsvc.Calendar
	caller   *backendCaller
}

func (l *backendLookup) ListEvents(ctx context.Context, window schedule.TimeWindow) ([]schedule.EventSummary, error) {
	return callBackend(ctx, l.caller, calsvc.OpList, func(ctx context.Context) ([]schedule.EventSummary, error) {
		return l.calendar.ListEvents(ctx, window)
	})
}

func (l *backendLookup) GetEvent(ctx context.Context, id string) (*schedule.EventSummary, error) {
	return callBackend(ctx, l.caller, calsvc.OpGet, func(ctx context.Context) (*schedule.EventSummary, error) {
		return l.calendar.GetEvent(ctx, id)
	})
}
