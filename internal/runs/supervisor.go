package runs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finsightai/finsight/internal/agent"
	"github.com/finsightai/finsight/internal/observability"
	"github.com/finsightai/finsight/pkg/models"
)

// ErrNoActiveRun is returned when a reattach or cancel targets a user with
// nothing in flight.
var ErrNoActiveRun = errors.New("no active run for user")

// CancelledMessage is the terminal error text published when a user stops
// their own run.
const CancelledMessage = "stopped by user"

// Worker executes one research run to completion. The agent engine satisfies
// this; tests substitute scripted workers.
type Worker interface {
	Execute(ctx context.Context, userMessage, conversationID string, emit func(models.RunEvent)) (*agent.Answer, error)
}

// Run is one in-flight research task. Its lifetime is detached from any
// client connection: observers come and go while the work continues.
type Run struct {
	ID             string
	UserID         string
	ConversationID string
	StartedAt      time.Time

	broadcaster *Broadcaster
	cancel      context.CancelFunc
	cancelOnce  sync.Once
	cancelled   bool
	finished    bool
	mu          sync.Mutex
}

// Subscribe attaches an observer to the run's event stream with full replay.
func (r *Run) Subscribe() (<-chan models.RunEvent, func()) {
	return r.broadcaster.Subscribe()
}

// Cancel stops the run. The terminal error event is published immediately,
// before the background work has observed the cancellation.
func (r *Run) Cancel() {
	r.cancelOnce.Do(func() {
		r.mu.Lock()
		r.cancelled = true
		r.mu.Unlock()
		r.broadcaster.Publish(models.ErrorEvent(CancelledMessage))
		r.cancel()
	})
}

func (r *Run) wasCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Terminal reports whether the run's event log already holds its terminal
// event. A terminal run may still have background work unwinding.
func (r *Run) Terminal() bool {
	_, ok := r.broadcaster.Terminal()
	return ok
}

// markFinished reports whether this caller is the first to finish the run.
func (r *Run) markFinished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return false
	}
	r.finished = true
	return true
}

// SupervisorConfig configures the run supervisor.
type SupervisorConfig struct {
	ObserverBuffer    int
	KeepAliveInterval time.Duration
	Logger            *slog.Logger
	Metrics           *observability.Metrics
}

// Supervisor enforces the one-run-per-user rule and owns run lifecycles.
// Runs execute on a background context so client disconnects never abort
// work in progress.
type Supervisor struct {
	worker Worker
	config SupervisorConfig

	mu     sync.Mutex
	active map[string]*Run
}

// NewSupervisor creates a supervisor driving runs through worker.
func NewSupervisor(worker Worker, config SupervisorConfig) *Supervisor {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Supervisor{
		worker: worker,
		config: config,
		active: make(map[string]*Run),
	}
}

// StartOrReattach begins a new run for the user, or reattaches to the
// existing one. When a run is already active the new message is dropped and
// the caller receives the live stream with a status note explaining why.
//
// The returned run's work continues even after ctx is cancelled; ctx only
// scopes request-time values such as tracing metadata.
func (s *Supervisor) StartOrReattach(ctx context.Context, userID, conversationID, message string) (*Run, bool, error) {
	s.mu.Lock()
	// A terminal run still unwinding in the background counts as absent.
	if existing, ok := s.active[userID]; ok && !existing.Terminal() {
		s.mu.Unlock()
		existing.broadcaster.Publish(models.StatusEvent(
			"a research run is already in progress; showing its live stream"))
		return existing, false, nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &Run{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		StartedAt:      time.Now(),
		broadcaster:    NewBroadcaster(s.config.ObserverBuffer, s.config.KeepAliveInterval),
		cancel:         cancel,
	}
	s.active[userID] = run
	s.mu.Unlock()

	if m := s.config.Metrics; m != nil {
		m.ActiveRuns.Inc()
	}

	go s.execute(runCtx, run, message)
	return run, true, nil
}

// Reattach returns the user's active run, or ErrNoActiveRun.
func (s *Supervisor) Reattach(userID string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.active[userID]
	if !ok {
		return nil, ErrNoActiveRun
	}
	return run, nil
}

// Cancel stops the user's active run, or returns ErrNoActiveRun. The run is
// removed from the active table immediately; the background work unwinds on
// its own time.
func (s *Supervisor) Cancel(userID string) error {
	s.mu.Lock()
	run, ok := s.active[userID]
	s.mu.Unlock()
	if !ok {
		return ErrNoActiveRun
	}
	run.Cancel()
	s.finish(run, "cancelled")
	return nil
}

// Active reports whether the user has a run in flight.
func (s *Supervisor) Active(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[userID]
	return ok
}

// Len returns the number of in-flight runs.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Supervisor) execute(ctx context.Context, run *Run, message string) {
	logger := s.config.Logger.With("run_id", run.ID, "user_id", run.UserID)
	logger.Info("run started", "conversation_id", run.ConversationID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("run panicked", "panic", r)
			run.broadcaster.Publish(models.ErrorEvent("internal error"))
			s.finish(run, "error")
		}
	}()

	run.broadcaster.Publish(models.StatusEvent("starting research"))

	answer, err := s.worker.Execute(ctx, message, run.ConversationID, run.broadcaster.Publish)

	switch {
	case run.wasCancelled():
		// The cancel path already published its terminal event.
		logger.Info("run cancelled")
		s.finish(run, "cancelled")
	case err != nil:
		logger.Error("run failed", "error", err)
		run.broadcaster.Publish(models.ErrorEvent(err.Error()))
		s.finish(run, "error")
	default:
		logger.Info("run completed", "duration", time.Since(run.StartedAt))
		run.broadcaster.Publish(models.DoneEvent(answer.Text, answer.Artifacts))
		s.finish(run, "done")
	}
}

// finish removes the run from the table and records its outcome exactly
// once. Cancel and the worker's eventual return can both reach it.
func (s *Supervisor) finish(run *Run, outcome string) {
	if !run.markFinished() {
		return
	}

	s.mu.Lock()
	if s.active[run.UserID] == run {
		delete(s.active, run.UserID)
	}
	s.mu.Unlock()

	if m := s.config.Metrics; m != nil {
		m.ActiveRuns.Dec()
		m.RunOutcomeCounter.WithLabelValues(outcome).Inc()
	}
}
