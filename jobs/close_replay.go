package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/close"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/ledger"
)

// CloseReplayJob runs a closing cycle on demand. It shares the single-writer
// lock with the in-process scheduler.
type CloseReplayJob struct {
	Closer   close.Closer
	Locker   close.Locker
	Schedule close.Schedule
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewCloseReplayJob initialises the replay handler.
func NewCloseReplayJob(closer close.Closer, locker close.Locker, schedule close.Schedule, logger *slog.Logger, metrics *jobmetrics.Metrics) *CloseReplayJob {
	return &CloseReplayJob{
		Closer:   closer,
		Locker:   locker,
		Schedule: schedule,
		Logger:   logger,
		Metrics:  metrics,
		clock:    time.Now,
	}
}

// Handle replays RunClosing for the payload date. Dates after the current
// business day are rejected without retry.
func (j *CloseReplayJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Closer == nil || j.Locker == nil {
		return errors.New("ledger close replay: dependencies not configured")
	}
	var payload CloseReplayPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	today := j.Schedule.Today(j.now())
	if payload.Date != "" {
		parsed, perr := time.Parse(time.DateOnly, payload.Date)
		if perr != nil {
			j.log().Warn("invalid replay date", slog.String("date", payload.Date))
			return fmt.Errorf("parse date %q: %v: %w", payload.Date, perr, asynq.SkipRetry)
		}
		day := ledger.Day(parsed)
		if day.After(today) {
			j.log().Warn("replay date in the future", slog.String("date", payload.Date), slog.String("today", today.Format(time.DateOnly)))
			return fmt.Errorf("replay date %s is after %s: %w", payload.Date, today.Format(time.DateOnly), asynq.SkipRetry)
		}
		today = day
	}

	tracker := j.metrics().Track(TaskLedgerCloseReplay)
	defer func() { err = tracker.End(err) }()

	var summary close.RunSummary
	err = j.Locker.WithLock(ctx, func(ctx context.Context) error {
		var runErr error
		summary, runErr = j.Closer.RunClosing(ctx, today)
		return runErr
	})
	if errors.Is(err, close.ErrLockHeld) {
		j.metrics().SkipCycle("lock_held")
		j.log().Warn("closing lock held, replay will retry", slog.String("date", today.Format(time.DateOnly)))
		return err
	}
	if err != nil {
		j.log().Error("replay closing", slog.String("date", today.Format(time.DateOnly)), slog.Any("error", err))
		return err
	}
	j.log().Info("replayed closing",
		slog.String("run_id", summary.ID),
		slog.String("date", today.Format(time.DateOnly)),
		slog.Int("days", len(summary.Days)),
		slog.Int("months", len(summary.Months)))
	return nil
}

// WithClock overrides the internal clock for deterministic tests.
func (j *CloseReplayJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}

func (j *CloseReplayJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CloseReplayJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerCloseReplay))
	}
	return slog.Default().With(slog.String("job", TaskLedgerCloseReplay))
}

func (j *CloseReplayJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now()
}
