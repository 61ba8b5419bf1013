package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerProvision keeps ledger rows provisioned ahead of today.
	TaskLedgerProvision = "ledger:provision"
	// TaskLedgerCloseReplay replays one closing cycle for a given day.
	TaskLedgerCloseReplay = "ledger:close-replay"

	// ProvisionCronSpec is the cron safety net for provisioning. It fires
	// before the in-process scheduler's first wake-up.
	ProvisionCronSpec = "30 0 * * *"
)

// ProvisionPayload configures a provisioning run.
type ProvisionPayload struct {
	LookaheadDays int `json:"lookahead_days"`
}

// NewProvisionTask constructs an Asynq task for ledger provisioning.
func NewProvisionTask(lookaheadDays int) (*asynq.Task, error) {
	if lookaheadDays < 0 {
		return nil, fmt.Errorf("lookahead days must not be negative")
	}
	body, err := json.Marshal(ProvisionPayload{LookaheadDays: lookaheadDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerProvision, body, asynq.Queue(QueueDefault)), nil
}

// CloseReplayPayload names the day whose closing cycle is replayed. An empty
// date means today in the business timezone.
type CloseReplayPayload struct {
	Date string `json:"date,omitempty"`
}

// NewCloseReplayTask constructs an Asynq task replaying a closing cycle.
func NewCloseReplayTask(date time.Time) (*asynq.Task, error) {
	payload := CloseReplayPayload{}
	if !date.IsZero() {
		payload.Date = date.Format(time.DateOnly)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	// A replay is keyed by day so repeated triggers collapse while one is queued.
	return asynq.NewTask(TaskLedgerCloseReplay, body,
		asynq.Queue(QueueDefault),
		asynq.Unique(time.Hour),
	), nil
}
