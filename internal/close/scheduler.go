package close

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/ledger"
)

const closingJob = "ledger_closing"

// Clock abstracts wall time and timers for the scheduler loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Provisioner keeps ledger rows ahead of the calendar.
type Provisioner interface {
	EnsureProvisioned(ctx context.Context, through time.Time) (ledger.ProvisionResult, error)
}

// Closer runs one closing cycle.
type Closer interface {
	RunClosing(ctx context.Context, today time.Time) (RunSummary, error)
}

// RunStatus describes the most recent closing cycle.
type RunStatus struct {
	ID      string      `json:"id,omitempty"`
	At      time.Time   `json:"at"`
	Today   time.Time   `json:"today"`
	Outcome string      `json:"outcome"`
	Error   string      `json:"error,omitempty"`
	Summary *RunSummary `json:"summary,omitempty"`
}

// Cycle outcomes reported in RunStatus.
const (
	CycleCompleted       = "completed"
	CycleFailed          = "failed"
	CycleSkippedRestart  = "skipped_restart_horizon"
	CycleSkippedLockHeld = "skipped_lock_held"
)

// Status is a read-only snapshot of the scheduler.
type Status struct {
	Running   bool       `json:"running"`
	StartedAt time.Time  `json:"started_at"`
	RestartAt time.Time  `json:"restart_at"`
	NextWake  time.Time  `json:"next_wake"`
	LastRun   *RunStatus `json:"last_run,omitempty"`
}

// SchedulerConfig tunes the closing loop.
type SchedulerConfig struct {
	Schedule Schedule
	// RunTimeout bounds a single closing cycle.
	RunTimeout time.Duration
}

// Scheduler is the long-lived closing loop. It provisions ledger rows on
// every wake and runs a closing cycle when the restart horizon allows.
type Scheduler struct {
	provisioner Provisioner
	closer      Closer
	config      SchedulerConfig
	clock       Clock
	locker      Locker
	logger      *slog.Logger
	metrics     *jobmetrics.Metrics

	mu     sync.RWMutex
	status Status
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler constructs a Scheduler.
func NewScheduler(provisioner Provisioner, closer Closer, config SchedulerConfig) *Scheduler {
	if config.RunTimeout <= 0 {
		config.RunTimeout = 30 * time.Minute
	}
	return &Scheduler{
		provisioner: provisioner,
		closer:      closer,
		config:      config,
		clock:       systemClock{},
		locker:      noLock{},
	}
}

// WithClock overrides the clock for deterministic tests.
func (s *Scheduler) WithClock(clock Clock) {
	if clock != nil {
		s.clock = clock
	}
}

// WithLocker sets the lock shared with other closing callers.
func (s *Scheduler) WithLocker(locker Locker) {
	if locker != nil {
		s.locker = locker
	}
}

// WithLogger sets the logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) {
	s.logger = logger
}

// WithMetrics attaches Prometheus counters.
func (s *Scheduler) WithMetrics(m *jobmetrics.Metrics) {
	s.metrics = m
}

// Start runs the loop in a goroutine until Stop or ctx cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run(ctx)
	}()
}

// Stop cancels the loop and waits for an in-flight cycle to commit, or for
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log().Info("closing scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log().Warn("closing scheduler stop timed out")
		return ctx.Err()
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	startedAt := s.clock.Now()
	schedule := s.config.Schedule
	s.mu.Lock()
	s.status.Running = true
	s.status.StartedAt = startedAt
	s.status.RestartAt = schedule.RestartAt(startedAt)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.status.Running = false
		s.mu.Unlock()
	}()

	s.log().Info("closing scheduler started",
		slog.Time("started_at", startedAt),
		slog.Time("restart_at", schedule.RestartAt(startedAt)))

	s.provision(ctx, startedAt)
	if schedule.StartupCatchUp(startedAt) {
		s.cycle(ctx, startedAt, startedAt)
	}

	now := startedAt
	for {
		wake := schedule.NextWake(now)
		s.mu.Lock()
		s.status.NextWake = wake
		s.mu.Unlock()
		s.log().Debug("closing wake scheduled", slog.Time("next_wake", wake))

		select {
		case <-ctx.Done():
			s.log().Info("closing scheduler stopping")
			return
		case <-s.clock.After(wake.Sub(s.clock.Now())):
		}

		now = s.clock.Now()
		s.provision(ctx, now)
		s.cycle(ctx, startedAt, now)
	}
}

// Status returns a snapshot of the loop state.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.status
	if s.status.LastRun != nil {
		last := *s.status.LastRun
		out.LastRun = &last
	}
	return out
}

func (s *Scheduler) provision(ctx context.Context, now time.Time) {
	through := s.config.Schedule.ProvisionThrough(now)
	res, err := s.provisioner.EnsureProvisioned(ctx, through)
	if err != nil {
		s.log().Error("ledger provisioning failed",
			slog.String("through", through.Format(time.DateOnly)),
			slog.Any("error", err))
		return
	}
	s.metrics.AddProvisionedDays(res.DaysCreated)
}

func (s *Scheduler) cycle(ctx context.Context, startedAt, now time.Time) {
	schedule := s.config.Schedule
	today := schedule.Today(now)
	if !schedule.CanClose(startedAt, now) {
		s.metrics.SkipCycle("restart_horizon")
		s.record(RunStatus{At: now, Today: today, Outcome: CycleSkippedRestart})
		s.log().Info("closing cycle deferred to next process",
			slog.Time("restart_at", schedule.RestartAt(startedAt)))
		return
	}

	// A cycle that has started finishes its commits even if shutdown begins.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.RunTimeout)
	defer cancel()

	var summary RunSummary
	tracker := s.metrics.Track(closingJob)
	err := s.locker.WithLock(runCtx, func(ctx context.Context) error {
		var err error
		summary, err = s.closer.RunClosing(ctx, today)
		return err
	})
	if errors.Is(err, ErrLockHeld) {
		s.metrics.SkipCycle("lock_held")
		s.record(RunStatus{At: now, Today: today, Outcome: CycleSkippedLockHeld})
		s.log().Info("closing cycle skipped, lock held elsewhere")
		return
	}
	_ = tracker.End(err)

	status := RunStatus{ID: summary.ID, At: now, Today: today, Outcome: CycleCompleted, Summary: &summary}
	if err != nil {
		status.Outcome = CycleFailed
		status.Error = err.Error()
		s.log().Error("closing cycle failed",
			slog.String("run_id", summary.ID),
			slog.String("today", today.Format(time.DateOnly)),
			slog.Any("error", err))
	} else {
		s.log().Info("closing cycle completed",
			slog.String("run_id", summary.ID),
			slog.String("today", today.Format(time.DateOnly)),
			slog.Int("days", len(summary.Days)),
			slog.Int("months", len(summary.Months)))
	}
	s.record(status)
}

func (s *Scheduler) record(status RunStatus) {
	s.mu.Lock()
	s.status.LastRun = &status
	s.mu.Unlock()
}

func (s *Scheduler) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger.With(slog.String("job", closingJob))
	}
	return slog.Default().With(slog.String("job", closingJob))
}
