package close

import (
	"time"

	"github.com/odyssey-erp/backoffice/internal/ledger"
)

// Schedule holds the wall-clock rules of the closing loop.
type Schedule struct {
	Location *time.Location
	// WakeHour is the local hour of the daily closing wake.
	WakeHour int
	// CatchUpUntilHour bounds the startup window [WakeHour, CatchUpUntilHour)
	// in which a freshly started process closes immediately.
	CatchUpUntilHour int
	LookaheadDays    int
	// RestartAfter is how long after start the host recycles the process.
	RestartAfter time.Duration
	// RestartMargin is the headroom a cycle needs before the recycle.
	RestartMargin time.Duration
}

// DefaultSchedule returns the production schedule in loc.
func DefaultSchedule(loc *time.Location) Schedule {
	return Schedule{
		Location:         loc,
		WakeHour:         1,
		CatchUpUntilHour: 3,
		LookaheadDays:    3,
		RestartAfter:     29 * time.Hour,
		RestartMargin:    time.Hour,
	}
}

func (s Schedule) loc() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// Today returns the local civil date of now as a ledger date.
func (s Schedule) Today(now time.Time) time.Time {
	return ledger.Day(now.In(s.loc()))
}

// ProvisionThrough is the last date the ledger should cover at now.
func (s Schedule) ProvisionThrough(now time.Time) time.Time {
	return s.Today(now).AddDate(0, 0, s.LookaheadDays)
}

// NextWake returns the first WakeHour strictly after now.
func (s Schedule) NextWake(now time.Time) time.Time {
	local := now.In(s.loc())
	y, m, d := local.Date()
	wake := time.Date(y, m, d, s.WakeHour, 0, 0, 0, s.loc())
	if !wake.After(local) {
		wake = time.Date(y, m, d+1, s.WakeHour, 0, 0, 0, s.loc())
	}
	return wake
}

// StartupCatchUp reports whether a process started at now should close
// immediately instead of waiting for the next wake.
func (s Schedule) StartupCatchUp(now time.Time) bool {
	h := now.In(s.loc()).Hour()
	return h >= s.WakeHour && h < s.CatchUpUntilHour
}

// RestartAt is when the host is expected to recycle a process started at startedAt.
func (s Schedule) RestartAt(startedAt time.Time) time.Time {
	return startedAt.Add(s.RestartAfter)
}

// CanClose reports whether a cycle starting at now would finish at least
// RestartMargin before the expected recycle. A non-positive RestartAfter
// disables the check.
func (s Schedule) CanClose(startedAt, now time.Time) bool {
	if s.RestartAfter <= 0 {
		return true
	}
	return now.Add(s.RestartMargin).Before(s.RestartAt(startedAt))
}
