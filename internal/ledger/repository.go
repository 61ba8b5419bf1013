package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/records"
)

// Repository persists ledger rows in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

var metricColumns = func() string {
	cols := make([]string, 0, len(AllFields()))
	for _, f := range AllFields() {
		cols = append(cols, string(f))
	}
	return strings.Join(cols, ", ")
}()

var (
	dailyColumns   = "id, date, monthly_id, " + metricColumns + ", close_state, temporarily_closed_at, officially_closed_at, created_at"
	monthlyColumns = "id, year, month, " + metricColumns + ", close_state, temporarily_closed_at, officially_closed_at, created_at"
)

// WithTx executes fn inside a read-committed transaction. Read committed lets
// an increment see a day row that a concurrent provisioner committed after
// this transaction started; row locks provide the rest.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if r == nil || r.pool == nil {
		return errors.New("ledger: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, db.LedgerTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *Repository) FindDaily(ctx context.Context, date time.Time) (*DailyRow, error) {
	return scanDaily(r.pool.QueryRow(ctx, `SELECT `+dailyColumns+` FROM ledger_daily WHERE date=$1`, Day(date)))
}

func (r *Repository) FindMonthly(ctx context.Context, month Month) (*MonthlyRow, error) {
	return scanMonthly(r.pool.QueryRow(ctx, `SELECT `+monthlyColumns+` FROM ledger_monthly WHERE year=$1 AND month=$2`, month.Year, int(month.Month)))
}

func (r *Repository) ListDaily(ctx context.Context, month Month) ([]DailyRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+dailyColumns+` FROM ledger_daily WHERE date >= $1 AND date < $2 ORDER BY date`, month.FirstDay(), month.Next().FirstDay())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	days := []DailyRow{}
	for rows.Next() {
		d, err := scanDaily(rows)
		if err != nil {
			return nil, err
		}
		days = append(days, *d)
	}
	return days, rows.Err()
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) LatestProvisionedDate(ctx context.Context) (time.Time, bool, error) {
	return latestProvisioned(ctx, r.pool)
}

func latestProvisioned(ctx context.Context, q rowQuerier) (time.Time, bool, error) {
	var latest *time.Time
	if err := q.QueryRow(ctx, `SELECT MAX(date) FROM ledger_daily`).Scan(&latest); err != nil {
		return time.Time{}, false, err
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return Day(*latest), true, nil
}

func (r *Repository) ListOpenDates(ctx context.Context, through time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `SELECT date FROM ledger_daily WHERE close_state=$1 AND date <= $2 ORDER BY date`, string(StateOpen), Day(through))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	dates := []time.Time{}
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, Day(d))
	}
	return dates, rows.Err()
}

func (r *Repository) ListMonthsNotOfficiallyClosed(ctx context.Context, through Month) ([]Month, error) {
	rows, err := r.pool.Query(ctx, `SELECT year, month FROM ledger_monthly
WHERE close_state <> $1 AND (year, month) <= ($2, $3)
ORDER BY year, month`, string(StateOfficiallyClosed), through.Year, int(through.Month))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	months := []Month{}
	for rows.Next() {
		var year, month int
		if err := rows.Scan(&year, &month); err != nil {
			return nil, err
		}
		months = append(months, Month{Year: year, Month: time.Month(month)})
	}
	return months, rows.Err()
}

func (t *txRepository) LatestProvisionedDate(ctx context.Context) (time.Time, bool, error) {
	return latestProvisioned(ctx, t.tx)
}

func (t *txRepository) LockDaily(ctx context.Context, date time.Time) (*DailyRow, error) {
	return scanDaily(t.tx.QueryRow(ctx, `SELECT `+dailyColumns+` FROM ledger_daily WHERE date=$1 FOR UPDATE`, Day(date)))
}

func (t *txRepository) LockMonthly(ctx context.Context, month Month) (*MonthlyRow, error) {
	return scanMonthly(t.tx.QueryRow(ctx, `SELECT `+monthlyColumns+` FROM ledger_monthly WHERE year=$1 AND month=$2 FOR UPDATE`, month.Year, int(month.Month)))
}

func (t *txRepository) InsertMonthly(ctx context.Context, month Month, createdAt time.Time) (int64, error) {
	if _, err := t.tx.Exec(ctx, `INSERT INTO ledger_monthly (year, month, created_at) VALUES ($1,$2,$3)
ON CONFLICT (year, month) DO NOTHING`, month.Year, int(month.Month), createdAt); err != nil {
		return 0, err
	}
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM ledger_monthly WHERE year=$1 AND month=$2`, month.Year, int(month.Month)).Scan(&id)
	return id, err
}

func (t *txRepository) InsertDaily(ctx context.Context, date time.Time, monthlyID int64, createdAt time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `INSERT INTO ledger_daily (date, monthly_id, created_at) VALUES ($1,$2,$3)
ON CONFLICT (date) DO NOTHING`, Day(date), monthlyID, createdAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepository) AddDaily(ctx context.Context, id int64, field Field, value int64) error {
	return addField(ctx, t.tx, "ledger_daily", id, field, value)
}

func (t *txRepository) AddMonthly(ctx context.Context, id int64, field Field, value int64) error {
	return addField(ctx, t.tx, "ledger_monthly", id, field, value)
}

func addField(ctx context.Context, tx pgx.Tx, table string, id int64, field Field, value int64) error {
	if !field.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	col := string(field)
	tag, err := tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET %s = %s + $2 WHERE id=$1`, table, col, col), id, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s row %d", ErrLedgerRowUnavailable, table, id)
	}
	return nil
}

func (t *txRepository) SetDailyClosing(ctx context.Context, id int64, closing Closing) error {
	_, err := t.tx.Exec(ctx, `UPDATE ledger_daily SET close_state=$2, temporarily_closed_at=$3, officially_closed_at=$4 WHERE id=$1`,
		id, string(closing.State()), closing.TemporarilyClosedAt(), closing.OfficiallyClosedAt())
	return err
}

func (t *txRepository) SetMonthlyClosing(ctx context.Context, id int64, closing Closing) error {
	_, err := t.tx.Exec(ctx, `UPDATE ledger_monthly SET close_state=$2, temporarily_closed_at=$3, officially_closed_at=$4 WHERE id=$1`,
		id, string(closing.State()), closing.TemporarilyClosedAt(), closing.OfficiallyClosedAt())
	return err
}

func (t *txRepository) OfficiallyCloseDays(ctx context.Context, monthlyID int64, at time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE ledger_daily
SET close_state=$2, temporarily_closed_at=COALESCE(temporarily_closed_at, $3), officially_closed_at=$3
WHERE monthly_id=$1 AND close_state <> $2`, monthlyID, string(StateOfficiallyClosed), at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) MarkRecordsClosed(ctx context.Context, kind records.Kind, from, to time.Time) (int64, error) {
	return records.MarkClosed(ctx, t.tx, kind, from, to)
}

type scanner interface {
	Scan(dest ...any) error
}

func metricDest(m *Metrics) []any {
	dest := make([]any, 0, len(AllFields()))
	for _, f := range AllFields() {
		dest = append(dest, m.ref(f))
	}
	return dest
}

func scanDaily(row scanner) (*DailyRow, error) {
	var (
		d           DailyRow
		state       string
		temporarily *time.Time
		officially  *time.Time
	)
	dest := append([]any{&d.ID, &d.Date, &d.MonthlyID}, metricDest(&d.Metrics)...)
	dest = append(dest, &state, &temporarily, &officially, &d.CreatedAt)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	closing, err := RestoreClosing(CloseState(state), temporarily, officially)
	if err != nil {
		return nil, fmt.Errorf("daily %d: %w", d.ID, err)
	}
	d.Date = Day(d.Date)
	d.Closing = closing
	return &d, nil
}

func scanMonthly(row scanner) (*MonthlyRow, error) {
	var (
		m           MonthlyRow
		month       int
		state       string
		temporarily *time.Time
		officially  *time.Time
	)
	dest := append([]any{&m.ID, &m.Month.Year, &month}, metricDest(&m.Metrics)...)
	dest = append(dest, &state, &temporarily, &officially, &m.CreatedAt)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	closing, err := RestoreClosing(CloseState(state), temporarily, officially)
	if err != nil {
		return nil, fmt.Errorf("monthly %d: %w", m.ID, err)
	}
	m.Month.Month = time.Month(month)
	m.Closing = closing
	return &m, nil
}
