package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/close"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ProvisionJob extends the ledger ahead of the calendar.
type ProvisionJob struct {
	Provisioner close.Provisioner
	Schedule    close.Schedule
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	clock       func() time.Time
}

// NewProvisionJob initialises the provisioning handler.
func NewProvisionJob(provisioner close.Provisioner, schedule close.Schedule, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProvisionJob {
	return &ProvisionJob{
		Provisioner: provisioner,
		Schedule:    schedule,
		Logger:      logger,
		Metrics:     metrics,
		clock:       time.Now,
	}
}

// Handle provisions rows through today plus the requested lookahead.
func (j *ProvisionJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Provisioner == nil {
		return errors.New("ledger provision: dependencies not configured")
	}
	var payload ProvisionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.LookaheadDays < 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLedgerProvision)
	defer func() { err = tracker.End(err) }()

	through := j.Schedule.Today(j.now()).AddDate(0, 0, payload.LookaheadDays)
	res, err := j.Provisioner.EnsureProvisioned(ctx, through)
	if err != nil {
		j.log().Error("provision ledger", slog.Time("through", through), slog.Any("error", err))
		return err
	}
	j.metrics().AddProvisionedDays(res.DaysCreated)
	j.log().Info("provisioned ledger",
		slog.String("through", through.Format(time.DateOnly)),
		slog.Int("days_created", res.DaysCreated),
		slog.Int("months_linked", res.MonthsLinked))
	return nil
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ProvisionJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}

func (j *ProvisionJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ProvisionJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerProvision))
	}
	return slog.Default().With(slog.String("job", TaskLedgerProvision))
}

func (j *ProvisionJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now()
}
