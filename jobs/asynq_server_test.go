package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/close"
)

func TestNewWorkerRegistersCron(t *testing.T) {
	mr := miniredis.RunT(t)
	task, err := NewProvisionTask(3)
	require.NoError(t, err)

	w, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: mr.Addr()},
		Handlers:  []TaskHandler{{Type: TaskLedgerProvision, Handler: func(context.Context, *asynq.Task) error { return nil }}, {}},
		Cron:      []CronRegistration{{Spec: ProvisionCronSpec, Task: task}, {Spec: "", Task: task}},
	})
	require.NoError(t, err)
	require.NotNil(t, w.scheduler)

	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: mr.Addr()},
		Cron:      []CronRegistration{{Spec: "every tuesday", Task: task}},
	})
	require.ErrorContains(t, err, TaskLedgerProvision)
}

func TestNewWorkerWithoutCron(t *testing.T) {
	w, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: miniredis.RunT(t).Addr()}})
	require.NoError(t, err)
	require.Nil(t, w.scheduler)
}

func TestTaskErrorLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handle := taskErrorLogger(logger)
	task := asynq.NewTask(TaskLedgerCloseReplay, nil)

	handle(context.Background(), task, fmt.Errorf("replay: %w", close.ErrLockHeld))
	require.Contains(t, buf.String(), "level=WARN")
	require.Contains(t, buf.String(), "task deferred")

	buf.Reset()
	handle(context.Background(), task, errors.New("store down"))
	require.Contains(t, buf.String(), "level=ERROR")
	require.Contains(t, buf.String(), "task=ledger:close-replay")
}
