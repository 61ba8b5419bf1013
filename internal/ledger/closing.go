package ledger

import (
	"fmt"
	"time"
)

// CloseState enumerates ledger period lifecycle stages. Transitions only move forward.
type CloseState string

const (
	StateOpen              CloseState = "OPEN"
	StateTemporarilyClosed CloseState = "TEMPORARILY_CLOSED"
	StateOfficiallyClosed  CloseState = "OFFICIALLY_CLOSED"
)

// Closing is the tagged closing state of a ledger row. Its fields are only
// reachable through transitions, so an official close always carries the
// temporary timestamp too.
type Closing struct {
	state         CloseState
	temporarilyAt time.Time
	officiallyAt  time.Time
}

// Open returns the initial state.
func Open() Closing { return Closing{state: StateOpen} }

// RestoreClosing rebuilds a Closing from persisted columns, rejecting
// combinations the transitions can never produce.
func RestoreClosing(state CloseState, temporarilyAt, officiallyAt *time.Time) (Closing, error) {
	switch state {
	case StateOpen:
		if temporarilyAt != nil || officiallyAt != nil {
			return Closing{}, fmt.Errorf("%w: open row carries closing timestamps", ErrInvariantViolation)
		}
		return Open(), nil
	case StateTemporarilyClosed:
		if temporarilyAt == nil || officiallyAt != nil {
			return Closing{}, fmt.Errorf("%w: temporarily closed row timestamps inconsistent", ErrInvariantViolation)
		}
		return Closing{state: state, temporarilyAt: *temporarilyAt}, nil
	case StateOfficiallyClosed:
		if temporarilyAt == nil || officiallyAt == nil {
			return Closing{}, fmt.Errorf("%w: officially closed row missing timestamps", ErrInvariantViolation)
		}
		return Closing{state: state, temporarilyAt: *temporarilyAt, officiallyAt: *officiallyAt}, nil
	default:
		return Closing{}, fmt.Errorf("%w: unknown close state %q", ErrInvariantViolation, state)
	}
}

// State returns the lifecycle stage; the zero Closing reads as open.
func (c Closing) State() CloseState {
	if c.state == "" {
		return StateOpen
	}
	return c.state
}

func (c Closing) IsOpen() bool              { return c.State() == StateOpen }
func (c Closing) IsOfficiallyClosed() bool  { return c.State() == StateOfficiallyClosed }
func (c Closing) IsTemporarilyClosed() bool { return c.State() == StateTemporarilyClosed }

// TemporarilyClosedAt is nil while open.
func (c Closing) TemporarilyClosedAt() *time.Time {
	if c.IsOpen() {
		return nil
	}
	t := c.temporarilyAt
	return &t
}

// OfficiallyClosedAt is nil until the official close.
func (c Closing) OfficiallyClosedAt() *time.Time {
	if !c.IsOfficiallyClosed() {
		return nil
	}
	t := c.officiallyAt
	return &t
}

// TemporarilyClose moves an open row forward. The second result is false
// when nothing changed.
func (c Closing) TemporarilyClose(at time.Time) (Closing, bool) {
	if !c.IsOpen() {
		return c, false
	}
	return Closing{state: StateTemporarilyClosed, temporarilyAt: at}, true
}

// OfficiallyClose moves the row to the terminal state, stamping the
// temporary close as well when the row was still open.
func (c Closing) OfficiallyClose(at time.Time) (Closing, bool) {
	switch c.State() {
	case StateOfficiallyClosed:
		return c, false
	case StateTemporarilyClosed:
		return Closing{state: StateOfficiallyClosed, temporarilyAt: c.temporarilyAt, officiallyAt: at}, true
	default:
		return Closing{state: StateOfficiallyClosed, temporarilyAt: at, officiallyAt: at}, true
	}
}
