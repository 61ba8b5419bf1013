package records

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/lockwindow"
)

// Kind names a transactional record family whose rows are frozen by the
// official close of the month containing their effective date.
type Kind string

const (
	KindSupply           Kind = "supply"
	KindOrder            Kind = "order"
	KindOrderPayment     Kind = "order_payment"
	KindTreatment        Kind = "treatment"
	KindTreatmentSession Kind = "treatment_session"
	KindTreatmentPayment Kind = "treatment_payment"
	KindExpense          Kind = "expense"
)

// ErrUnknownKind is returned for kinds outside the cascade set.
var ErrUnknownKind = errors.New("records: unknown record kind")

// ErrNotFound indicates the record does not exist.
var ErrNotFound = errors.New("records: record not found")

type table struct {
	name            string
	effectiveColumn string
}

// tables is the only source of identifiers interpolated into SQL.
var tables = map[Kind]table{
	KindSupply:           {name: "supplies", effectiveColumn: "supplied_on"},
	KindOrder:            {name: "orders", effectiveColumn: "ordered_on"},
	KindOrderPayment:     {name: "order_payments", effectiveColumn: "paid_on"},
	KindTreatment:        {name: "treatments", effectiveColumn: "started_on"},
	KindTreatmentSession: {name: "treatment_sessions", effectiveColumn: "session_on"},
	KindTreatmentPayment: {name: "treatment_payments", effectiveColumn: "paid_on"},
	KindExpense:          {name: "expenses", effectiveColumn: "incurred_on"},
}

// TableFor returns the table and effective-date column backing kind.
func TableFor(kind Kind) (string, string, error) {
	t, ok := tables[kind]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return t.name, t.effectiveColumn, nil
}

// AllKinds returns every kind in cascade order.
func AllKinds() []Kind {
	return []Kind{
		KindSupply,
		KindOrder,
		KindOrderPayment,
		KindTreatment,
		KindTreatmentSession,
		KindTreatmentPayment,
		KindExpense,
	}
}

// ParseKind validates a kind received from an outer layer.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := tables[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
	return k, nil
}

// Valid reports whether k is part of the cascade set.
func (k Kind) Valid() bool {
	_, ok := tables[k]
	return ok
}

// Record is the slice of a transactional row this package reads and writes.
type Record struct {
	Kind          Kind
	ID            int64
	CreatedAt     time.Time
	EffectiveDate time.Time
	IsClosed      bool
}

// IsLocked reports whether the record's own editable window has elapsed.
func (r Record) IsLocked(now time.Time) bool {
	return lockwindow.IsLocked(r.CreatedAt, now)
}

// Editability is the advisory view consumed by authorization checks.
type Editability struct {
	Kind          Kind      `json:"kind"`
	ID            int64     `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	EffectiveDate time.Time `json:"effective_date"`
	IsClosed      bool      `json:"is_closed"`
	IsLocked      bool      `json:"is_locked"`
	LockedAt      time.Time `json:"locked_at"`
	Editable      bool      `json:"editable"`
}

// Editability evaluates both freeze mechanisms at now.
func (r Record) Editability(now time.Time) Editability {
	locked := r.IsLocked(now)
	return Editability{
		Kind:          r.Kind,
		ID:            r.ID,
		CreatedAt:     r.CreatedAt,
		EffectiveDate: r.EffectiveDate,
		IsClosed:      r.IsClosed,
		IsLocked:      locked,
		LockedAt:      lockwindow.LockedAt(r.CreatedAt),
		Editable:      !locked && !r.IsClosed,
	}
}
