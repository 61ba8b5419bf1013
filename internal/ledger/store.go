package ledger

import (
	"context"
	"time"

	"github.com/odyssey-erp/backoffice/internal/records"
)

// Store is the transactional store the ledger core runs against. Finders
// return (nil, nil) when the row is absent.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	FindDaily(ctx context.Context, date time.Time) (*DailyRow, error)
	FindMonthly(ctx context.Context, month Month) (*MonthlyRow, error)
	ListDaily(ctx context.Context, month Month) ([]DailyRow, error)
	LatestProvisionedDate(ctx context.Context) (time.Time, bool, error)
	// ListOpenDates returns dates of open daily rows up to through, ascending.
	ListOpenDates(ctx context.Context, through time.Time) ([]time.Time, error)
	// ListMonthsNotOfficiallyClosed returns months up to through, ascending.
	ListMonthsNotOfficiallyClosed(ctx context.Context, through Month) ([]Month, error)
}

// TxStore is the unit of work handed to WithTx callbacks.
type TxStore interface {
	// LatestProvisionedDate sees rows inserted earlier in the same unit of work.
	LatestProvisionedDate(ctx context.Context) (time.Time, bool, error)
	// LockDaily and LockMonthly load a row and hold it until commit.
	LockDaily(ctx context.Context, date time.Time) (*DailyRow, error)
	LockMonthly(ctx context.Context, month Month) (*MonthlyRow, error)
	// InsertMonthly creates the month when absent and returns its id either way.
	InsertMonthly(ctx context.Context, month Month, createdAt time.Time) (int64, error)
	// InsertDaily creates the day when absent and reports whether it did.
	InsertDaily(ctx context.Context, date time.Time, monthlyID int64, createdAt time.Time) (bool, error)
	// AddDaily and AddMonthly apply field = field + value.
	AddDaily(ctx context.Context, id int64, field Field, value int64) error
	AddMonthly(ctx context.Context, id int64, field Field, value int64) error
	SetDailyClosing(ctx context.Context, id int64, closing Closing) error
	SetMonthlyClosing(ctx context.Context, id int64, closing Closing) error
	// OfficiallyCloseDays closes every not yet official day owned by the month.
	OfficiallyCloseDays(ctx context.Context, monthlyID int64, at time.Time) (int64, error)
	// MarkRecordsClosed sets isClosed on records of kind effective in [from, to).
	MarkRecordsClosed(ctx context.Context, kind records.Kind, from, to time.Time) (int64, error)
}
