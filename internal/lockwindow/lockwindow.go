// Package lockwindow computes the per-record editable window. A transactional
// record stays editable for the month it was created in plus one full grace
// month; it locks at 00:00 on the first day of the month after that.
package lockwindow

import "time"

// GraceMonths is the number of calendar months added to the creation month
// to find the lock boundary.
const GraceMonths = 2

// LockedAt returns the instant the record created at createdAt becomes locked.
// The boundary is always day 1 of the target month, in createdAt's location.
func LockedAt(createdAt time.Time) time.Time {
	y, m, _ := createdAt.Date()
	// time.Date normalises month overflow into the following year.
	return time.Date(y, m+GraceMonths, 1, 0, 0, 0, 0, createdAt.Location())
}

// IsLocked reports whether a record created at createdAt is locked at now.
func IsLocked(createdAt, now time.Time) bool {
	return !now.Before(LockedAt(createdAt))
}

// Remaining returns how long the record stays editable after now, or zero
// once it is locked.
func Remaining(createdAt, now time.Time) time.Duration {
	d := LockedAt(createdAt).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
