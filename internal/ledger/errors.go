package ledger

import "errors"

var (
	// ErrLedgerRowUnavailable means provisioning failed or has not reached the
	// requested date; it implies the closing scheduler is stalled.
	ErrLedgerRowUnavailable = errors.New("ledger: ledger row unavailable")
	// ErrStoreUnavailable marks transient infrastructure failures.
	ErrStoreUnavailable = errors.New("ledger: store unavailable")
	// ErrInvariantViolation marks persisted state the closer can never produce.
	ErrInvariantViolation = errors.New("ledger: invariant violation")
	// ErrInvalidField indicates an unknown metric column or expense category.
	ErrInvalidField = errors.New("ledger: invalid field")
	// ErrPeriodOfficiallyClosed is returned when posting into an officially closed day.
	ErrPeriodOfficiallyClosed = errors.New("ledger: period officially closed")
)

// StoreError wraps a failed store round-trip. It matches both
// ErrStoreUnavailable and the underlying driver error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "ledger: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
