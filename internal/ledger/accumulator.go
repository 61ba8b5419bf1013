package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Increment posts a signed delta into the day and month rows covering Date.
// A zero Date means today in the business timezone.
type Increment struct {
	Field Field `validate:"required,ledgerfield"`
	Value int64
	Date  time.Time
}

// Accumulator is the contract business operations use to post revenue,
// cost, expense and debt deltas. It is safe for concurrent use: every call
// is a single commit of two field = field + value updates.
type Accumulator struct {
	ledger   *Service
	validate *validator.Validate
}

// NewAccumulator constructs an Accumulator on top of the ledger service.
func NewAccumulator(ledger *Service) *Accumulator {
	v := validator.New()
	_ = v.RegisterValidation("ledgerfield", func(fl validator.FieldLevel) bool {
		return Field(fl.Field().String()).Valid()
	})
	return &Accumulator{ledger: ledger, validate: v}
}

// Apply posts in atomically to the daily row and its owning month.
func (a *Accumulator) Apply(ctx context.Context, in Increment) error {
	if a == nil || a.ledger == nil {
		return errors.New("ledger: accumulator not configured")
	}
	if err := a.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidField, in.Field)
	}
	date := Day(in.Date)
	if in.Date.IsZero() {
		date = a.ledger.Today()
	}
	return a.ledger.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		row, err := a.ledger.lockOrProvisionDaily(ctx, tx, date)
		if err != nil {
			return err
		}
		if row.Closing.IsOfficiallyClosed() {
			return fmt.Errorf("%w: %s", ErrPeriodOfficiallyClosed, date.Format(time.DateOnly))
		}
		if in.Value == 0 {
			return nil
		}
		if err := tx.AddDaily(ctx, row.ID, in.Field, in.Value); err != nil {
			return storeErr("add daily", err)
		}
		if err := tx.AddMonthly(ctx, row.MonthlyID, in.Field, in.Value); err != nil {
			return storeErr("add monthly", err)
		}
		return nil
	})
}

// Increment is shorthand for Apply.
func (a *Accumulator) Increment(ctx context.Context, field Field, value int64, date time.Time) error {
	return a.Apply(ctx, Increment{Field: field, Value: value, Date: date})
}

func (a *Accumulator) IncrementRetailRevenue(ctx context.Context, value int64, date time.Time) error {
	return a.Increment(ctx, FieldRetailRevenue, value, date)
}

func (a *Accumulator) IncrementTreatmentRevenue(ctx context.Context, value int64, date time.Time) error {
	return a.Increment(ctx, FieldTreatmentRevenue, value, date)
}

func (a *Accumulator) IncrementConsultantRevenue(ctx context.Context, value int64, date time.Time) error {
	return a.Increment(ctx, FieldConsultantRevenue, value, date)
}

func (a *Accumulator) IncrementShipmentCost(ctx context.Context, value int64, date time.Time) error {
	return a.Increment(ctx, FieldShipmentCost, value, date)
}

func (a *Accumulator) IncrementSupplyCost(ctx context.Context, value int64, date time.Time) error {
	return a.Increment(ctx, FieldSupplyCost, value, date)
}

// IncrementExpense posts into the column for category.
func (a *Accumulator) IncrementExpense(ctx context.Context, category ExpenseCategory, value int64, date time.Time) error {
	field, err := category.Field()
	if err != nil {
		return err
	}
	return a.Increment(ctx, field, value, date)
}

func (a *Accumulator) IncrementVATCollected(ctx context.Context, value int64, date time.Time) error {
	return a.Increment(ctx, FieldVATCollected, value, date)
}

func (a *Accumulator) IncrementDebtIncurred(ctx context.Context, value int64, date time.Time) error {
	return a.Increment(ctx, FieldDebtIncurred, value, date)
}

func (a *Accumulator) IncrementDebtPaid(ctx context.Context, value int64, date time.Time) error {
	return a.Increment(ctx, FieldDebtPaid, value, date)
}
