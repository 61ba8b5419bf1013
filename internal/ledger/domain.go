package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Day truncates t to its civil date, returned as midnight UTC so dates
// compare and key consistently regardless of the caller's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsLastDayOfMonth reports whether the civil date of t ends its month.
func IsLastDayOfMonth(t time.Time) bool {
	return Day(t).AddDate(0, 0, 1).Day() == 1
}

// Month identifies a calendar month.
type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// MonthOf returns the month containing the civil date of t.
func MonthOf(t time.Time) Month {
	y, m, _ := t.Date()
	return Month{Year: y, Month: m}
}

// ParseMonth parses the "2006-01" form.
func ParseMonth(raw string) (Month, error) {
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return Month{}, fmt.Errorf("ledger: invalid month %q", raw)
	}
	return MonthOf(t), nil
}

// AddMonths shifts the month by n, rolling years as needed.
func (m Month) AddMonths(n int) Month {
	return MonthOf(time.Date(m.Year, m.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC))
}

// Next returns the following month.
func (m Month) Next() Month { return m.AddMonths(1) }

// FirstDay returns 00:00 on day 1 of the month as a ledger date.
func (m Month) FirstDay() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// LastDay returns the final civil date of the month.
func (m Month) LastDay() time.Time {
	return m.Next().FirstDay().AddDate(0, 0, -1)
}

// Before reports whether m precedes o.
func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

// After reports whether m follows o.
func (m Month) After(o Month) bool { return o.Before(m) }

// Contains reports whether the civil date of t falls inside the month.
func (m Month) Contains(t time.Time) bool { return MonthOf(t) == m }

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Field names one accumulated metric column.
type Field string

const (
	FieldRetailRevenue     Field = "retail_revenue"
	FieldTreatmentRevenue  Field = "treatment_revenue"
	FieldConsultantRevenue Field = "consultant_revenue"
	FieldShipmentCost      Field = "shipment_cost"
	FieldSupplyCost        Field = "supply_cost"
	FieldExpenseUtilities  Field = "expense_utilities"
	FieldExpenseEquipment  Field = "expense_equipment"
	FieldExpenseOffice     Field = "expense_office"
	FieldExpenseStaff      Field = "expense_staff"
	FieldVATCollected      Field = "vat_collected"
	FieldDebtIncurred      Field = "debt_incurred"
	FieldDebtPaid          Field = "debt_paid"
)

// AllFields lists accumulated columns in storage order.
func AllFields() []Field {
	return []Field{
		FieldRetailRevenue,
		FieldTreatmentRevenue,
		FieldConsultantRevenue,
		FieldShipmentCost,
		FieldSupplyCost,
		FieldExpenseUtilities,
		FieldExpenseEquipment,
		FieldExpenseOffice,
		FieldExpenseStaff,
		FieldVATCollected,
		FieldDebtIncurred,
		FieldDebtPaid,
	}
}

// Valid reports whether f names a ledger column.
func (f Field) Valid() bool {
	for _, known := range AllFields() {
		if f == known {
			return true
		}
	}
	return false
}

// ExpenseCategory groups operating expenses.
type ExpenseCategory string

const (
	ExpenseUtilities ExpenseCategory = "utilities"
	ExpenseEquipment ExpenseCategory = "equipment"
	ExpenseOffice    ExpenseCategory = "office"
	ExpenseStaff     ExpenseCategory = "staff"
)

// Field maps the category to its ledger column.
func (c ExpenseCategory) Field() (Field, error) {
	switch c {
	case ExpenseUtilities:
		return FieldExpenseUtilities, nil
	case ExpenseEquipment:
		return FieldExpenseEquipment, nil
	case ExpenseOffice:
		return FieldExpenseOffice, nil
	case ExpenseStaff:
		return FieldExpenseStaff, nil
	default:
		return "", fmt.Errorf("%w: expense category %q", ErrInvalidField, c)
	}
}

// Metrics holds the stored per-category amounts in minor currency units.
type Metrics struct {
	RetailRevenue     int64 `json:"retail_revenue"`
	TreatmentRevenue  int64 `json:"treatment_revenue"`
	ConsultantRevenue int64 `json:"consultant_revenue"`
	ShipmentCost      int64 `json:"shipment_cost"`
	SupplyCost        int64 `json:"supply_cost"`
	ExpenseUtilities  int64 `json:"expense_utilities"`
	ExpenseEquipment  int64 `json:"expense_equipment"`
	ExpenseOffice     int64 `json:"expense_office"`
	ExpenseStaff      int64 `json:"expense_staff"`
	VATCollected      int64 `json:"vat_collected"`
	DebtIncurred      int64 `json:"debt_incurred"`
	DebtPaid          int64 `json:"debt_paid"`
}

func (m *Metrics) ref(f Field) *int64 {
	switch f {
	case FieldRetailRevenue:
		return &m.RetailRevenue
	case FieldTreatmentRevenue:
		return &m.TreatmentRevenue
	case FieldConsultantRevenue:
		return &m.ConsultantRevenue
	case FieldShipmentCost:
		return &m.ShipmentCost
	case FieldSupplyCost:
		return &m.SupplyCost
	case FieldExpenseUtilities:
		return &m.ExpenseUtilities
	case FieldExpenseEquipment:
		return &m.ExpenseEquipment
	case FieldExpenseOffice:
		return &m.ExpenseOffice
	case FieldExpenseStaff:
		return &m.ExpenseStaff
	case FieldVATCollected:
		return &m.VATCollected
	case FieldDebtIncurred:
		return &m.DebtIncurred
	case FieldDebtPaid:
		return &m.DebtPaid
	}
	return nil
}

// Get returns the value stored for f.
func (m Metrics) Get(f Field) int64 {
	if p := m.ref(f); p != nil {
		return *p
	}
	return 0
}

// Add adds v to the column named by f.
func (m *Metrics) Add(f Field, v int64) error {
	p := m.ref(f)
	if p == nil {
		return fmt.Errorf("%w: %q", ErrInvalidField, f)
	}
	*p += v
	return nil
}

// Cost is supply plus shipment cost.
func (m Metrics) Cost() int64 { return m.SupplyCost + m.ShipmentCost }

// Expenses sums every expense category.
func (m Metrics) Expenses() int64 {
	return m.ExpenseUtilities + m.ExpenseEquipment + m.ExpenseOffice + m.ExpenseStaff
}

// GrossRevenue sums every revenue category.
func (m Metrics) GrossRevenue() int64 {
	return m.RetailRevenue + m.TreatmentRevenue + m.ConsultantRevenue
}

func (m Metrics) NetProfit() int64       { return m.GrossRevenue() - m.Cost() - m.Expenses() }
func (m Metrics) GrossProfit() int64     { return m.GrossRevenue() - m.Cost() }
func (m Metrics) OperatingProfit() int64 { return m.GrossRevenue() - m.Expenses() }

// NetMargin is NetProfit / GrossRevenue rounded to four places, zero without revenue.
func (m Metrics) NetMargin() decimal.Decimal { return ratio(m.NetProfit(), m.GrossRevenue()) }

// GrossMargin is GrossProfit / GrossRevenue rounded to four places.
func (m Metrics) GrossMargin() decimal.Decimal { return ratio(m.GrossProfit(), m.GrossRevenue()) }

func ratio(num, den int64) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(num).DivRound(decimal.NewFromInt(den), 4)
}

// DailyRow aggregates one calendar day.
type DailyRow struct {
	ID        int64
	Date      time.Time
	MonthlyID int64
	Metrics   Metrics
	Closing   Closing
	CreatedAt time.Time
}

// MonthlyRow aggregates one calendar month; Days is only populated by detail loads.
type MonthlyRow struct {
	ID        int64
	Month     Month
	Metrics   Metrics
	Closing   Closing
	CreatedAt time.Time
	Days      []DailyRow
}
