package close

import (
	"errors"
	"time"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/records"
)

// Outcome describes what a close operation did to its target.
type Outcome string

const (
	// OutcomeClosed means the target moved forward in this call.
	OutcomeClosed Outcome = "CLOSED"
	// OutcomeAlreadyClosed means the target was already at or past the requested stage.
	OutcomeAlreadyClosed Outcome = "ALREADY_CLOSED"
	// OutcomeSkipped means there was no ledger row to close.
	OutcomeSkipped Outcome = "SKIPPED"
)

// DayResult reports a temporary close of one day.
type DayResult struct {
	Date        time.Time `json:"date"`
	Outcome     Outcome   `json:"outcome"`
	MonthClosed bool      `json:"month_closed"`
	Reason      string    `json:"reason,omitempty"`
}

// MonthResult reports an official close of one month and its cascade.
type MonthResult struct {
	Month         ledger.Month           `json:"month"`
	Outcome       Outcome                `json:"outcome"`
	DaysClosed    int64                  `json:"days_closed"`
	RecordsClosed map[records.Kind]int64 `json:"records_closed,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
}

// RunSummary captures one closing cycle.
type RunSummary struct {
	ID         string        `json:"id"`
	Today      time.Time     `json:"today"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Days       []DayResult   `json:"days"`
	Months     []MonthResult `json:"months"`
}

// Policy controls which periods a closing cycle targets.
type Policy struct {
	// OfficialCloseDay is the day of month from which the month two back
	// becomes eligible for official close.
	OfficialCloseDay int
	// CatchUpScan closes every open day up to yesterday and every eligible
	// month. When false only yesterday is closed and the official close runs
	// only on OfficialCloseDay itself.
	CatchUpScan bool
}

// DefaultPolicy returns the production policy.
func DefaultPolicy() Policy {
	return Policy{OfficialCloseDay: 4, CatchUpScan: true}
}

// ErrLockHeld indicates another instance is running a closing cycle.
var ErrLockHeld = errors.New("close: closing lock held by another instance")

// ErrLockLost indicates the closing lock expired before it was released.
var ErrLockLost = errors.New("close: closing lock lost before release")
