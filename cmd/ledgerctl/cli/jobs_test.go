package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/jobs"
)

type stubClient struct {
	tasks []*asynq.Task
	err   error
}

func (s *stubClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(s.tasks)), Queue: jobs.QueueDefault, Type: task.Type()}, nil
}

func (s *stubClient) Close() error { return nil }

type stubInspector struct {
	info      *asynq.QueueInfo
	err       error
	scheduled []*asynq.TaskInfo
}

func (s *stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func (s *stubInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, nil
}

func (s *stubInspector) Close() error { return nil }

func run(c *JobsCLI, args ...string) (int, string, string) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := c.Run(context.Background(), args, Options{Stdout: stdout, Stderr: stderr})
	return code, stdout.String(), stderr.String()
}

func TestProvisionCommandEnqueuesTask(t *testing.T) {
	client := &stubClient{}
	c := &JobsCLI{client: client, inspector: &stubInspector{}}

	code, stdout, stderr := run(c, "provision", "--days", "5")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "enqueued ledger:provision id=task-1")
	require.Len(t, client.tasks, 1)
	require.JSONEq(t, `{"lookahead_days":5}`, string(client.tasks[0].Payload()))
}

func TestReplayCommandParsesDate(t *testing.T) {
	client := &stubClient{}
	c := &JobsCLI{client: client, inspector: &stubInspector{}}

	code, _, stderr := run(c, "replay", "--date", "2024-03-04")
	require.Equal(t, 0, code, stderr)
	require.Equal(t, jobs.TaskLedgerCloseReplay, client.tasks[0].Type())
	require.JSONEq(t, `{"date":"2024-03-04"}`, string(client.tasks[0].Payload()))

	code, _, stderr = run(c, "replay", "--date", "04/03/2024")
	require.Equal(t, 2, code)
	require.Contains(t, stderr, "invalid date")
	require.Len(t, client.tasks, 1)
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	c := &JobsCLI{client: &stubClient{}}
	_, err := c.Trigger(context.Background(), "mail:send", TriggerOptions{})
	require.Error(t, err)
}

func TestTriggerSurfacesEnqueueFailure(t *testing.T) {
	c := &JobsCLI{client: &stubClient{err: asynq.ErrDuplicateTask}}

	code, _, stderr := run(c, "replay")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "ledger:close-replay")
}

func TestQueueCommandJSON(t *testing.T) {
	c := &JobsCLI{client: &stubClient{}, inspector: &stubInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 2, Retry: 1}}}

	code, stdout, stderr := run(c, "queue", "--json")
	require.Equal(t, 0, code, stderr)
	var stats QueueStats
	require.NoError(t, json.Unmarshal([]byte(stdout), &stats))
	require.Equal(t, 2, stats.Pending)
	require.Equal(t, 1, stats.Retry)
}

func TestQueueCommandMissingQueueIsEmpty(t *testing.T) {
	c := &JobsCLI{inspector: &stubInspector{err: fmt.Errorf("%w: queue=%q", asynq.ErrQueueNotFound, jobs.QueueDefault)}}

	code, stdout, _ := run(c, "queue")
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "pending=0")
}

func TestScheduledCommandListsTasks(t *testing.T) {
	next := time.Date(2024, 3, 10, 0, 30, 0, 0, time.UTC)
	c := &JobsCLI{inspector: &stubInspector{scheduled: []*asynq.TaskInfo{{ID: "a1", Type: jobs.TaskLedgerProvision, NextProcessAt: next}}}}

	code, stdout, _ := run(c, "scheduled")
	require.Equal(t, 0, code)
	require.Equal(t, "a1\tledger:provision\t2024-03-10T00:30:00Z\n", stdout)
}

func TestUnknownCommandPrintsUsage(t *testing.T) {
	c := &JobsCLI{}
	code, _, stderr := run(c, "purge")
	require.Equal(t, 2, code)
	require.Contains(t, stderr, "usage: ledgerctl")

	code, _, _ = run(c)
	require.Equal(t, 2, code)
}
