// Package ledgertest provides an in-memory ledger.Store with the same
// semantics as the PostgreSQL repository: create-if-absent inserts,
// additive updates, set-based record closing and all-or-nothing commits.
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/records"
)

type state struct {
	daily     map[time.Time]*ledger.DailyRow
	monthly   map[ledger.Month]*ledger.MonthlyRow
	records   map[records.Kind]map[int64]*records.Record
	nextID    int64
	recordSeq int64
}

func (s *state) clone() *state {
	out := &state{
		daily:     make(map[time.Time]*ledger.DailyRow, len(s.daily)),
		monthly:   make(map[ledger.Month]*ledger.MonthlyRow, len(s.monthly)),
		records:   make(map[records.Kind]map[int64]*records.Record, len(s.records)),
		nextID:    s.nextID,
		recordSeq: s.recordSeq,
	}
	for k, v := range s.daily {
		row := *v
		out.daily[k] = &row
	}
	for k, v := range s.monthly {
		row := *v
		row.Days = nil
		out.monthly[k] = &row
	}
	for kind, recs := range s.records {
		m := make(map[int64]*records.Record, len(recs))
		for id, r := range recs {
			rec := *r
			m[id] = &rec
		}
		out.records[kind] = m
	}
	return out
}

// Store is a goroutine-safe in-memory ledger.Store. Transactions run one
// at a time against a private copy that replaces the state on commit.
type Store struct {
	mu    sync.Mutex
	state *state
	fail  map[string]error

	// Commits counts successful WithTx calls.
	Commits int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		state: &state{
			daily:   map[time.Time]*ledger.DailyRow{},
			monthly: map[ledger.Month]*ledger.MonthlyRow{},
			records: map[records.Kind]map[int64]*records.Record{},
		},
		fail: map[string]error{},
	}
}

// FailOn makes the named operation return err until cleared with a nil err.
// Operation names match the method names, e.g. "InsertDaily" or "WithTx".
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

func (s *Store) failure(op string) error {
	return s.fail[op]
}

// WithTx runs fn against a copy of the state and commits it when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("WithTx"); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &tx{store: s, st: work}); err != nil {
		return err
	}
	if err := s.failure("Commit"); err != nil {
		return err
	}
	s.state = work
	s.Commits++
	return nil
}

func (s *Store) FindDaily(ctx context.Context, date time.Time) (*ledger.DailyRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("FindDaily"); err != nil {
		return nil, err
	}
	row, ok := s.state.daily[ledger.Day(date)]
	if !ok {
		return nil, nil
	}
	out := *row
	return &out, nil
}

func (s *Store) FindMonthly(ctx context.Context, month ledger.Month) (*ledger.MonthlyRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("FindMonthly"); err != nil {
		return nil, err
	}
	row, ok := s.state.monthly[month]
	if !ok {
		return nil, nil
	}
	out := *row
	return &out, nil
}

func (s *Store) ListDaily(ctx context.Context, month ledger.Month) ([]ledger.DailyRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	days := []ledger.DailyRow{}
	for date, row := range s.state.daily {
		if month.Contains(date) {
			days = append(days, *row)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days, nil
}

func (s *Store) LatestProvisionedDate(ctx context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("LatestProvisionedDate"); err != nil {
		return time.Time{}, false, err
	}
	latest, ok := s.state.latestDaily()
	return latest, ok, nil
}

func (s *state) latestDaily() (time.Time, bool) {
	var latest time.Time
	for date := range s.daily {
		if date.After(latest) {
			latest = date
		}
	}
	return latest, !latest.IsZero()
}

func (s *Store) ListOpenDates(ctx context.Context, through time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListOpenDates"); err != nil {
		return nil, err
	}
	dates := []time.Time{}
	for date, row := range s.state.daily {
		if row.Closing.IsOpen() && !date.After(ledger.Day(through)) {
			dates = append(dates, date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (s *Store) ListMonthsNotOfficiallyClosed(ctx context.Context, through ledger.Month) ([]ledger.Month, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListMonthsNotOfficiallyClosed"); err != nil {
		return nil, err
	}
	months := []ledger.Month{}
	for month, row := range s.state.monthly {
		if !row.Closing.IsOfficiallyClosed() && !month.After(through) {
			months = append(months, month)
		}
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	return months, nil
}

// AddRecord inserts a transactional record and returns its id.
func (s *Store) AddRecord(kind records.Kind, createdAt, effective time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.recordSeq++
	id := s.state.recordSeq
	if s.state.records[kind] == nil {
		s.state.records[kind] = map[int64]*records.Record{}
	}
	s.state.records[kind][id] = &records.Record{Kind: kind, ID: id, CreatedAt: createdAt, EffectiveDate: effective}
	return id
}

// Find implements records.Finder.
func (s *Store) Find(ctx context.Context, kind records.Kind, id int64) (records.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.state.records[kind][id]
	if !ok {
		return records.Record{}, records.ErrNotFound
	}
	return *rec, nil
}

// DailyCount returns the number of provisioned days.
func (s *Store) DailyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.daily)
}

// MonthlyCount returns the number of provisioned months.
func (s *Store) MonthlyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.monthly)
}

type tx struct {
	store *Store
	st    *state
}

func (t *tx) LatestProvisionedDate(ctx context.Context) (time.Time, bool, error) {
	if err := t.store.failure("LatestProvisionedDate"); err != nil {
		return time.Time{}, false, err
	}
	latest, ok := t.st.latestDaily()
	return latest, ok, nil
}

func (t *tx) LockDaily(ctx context.Context, date time.Time) (*ledger.DailyRow, error) {
	if err := t.store.failure("LockDaily"); err != nil {
		return nil, err
	}
	row, ok := t.st.daily[ledger.Day(date)]
	if !ok {
		return nil, nil
	}
	out := *row
	return &out, nil
}

func (t *tx) LockMonthly(ctx context.Context, month ledger.Month) (*ledger.MonthlyRow, error) {
	if err := t.store.failure("LockMonthly"); err != nil {
		return nil, err
	}
	row, ok := t.st.monthly[month]
	if !ok {
		return nil, nil
	}
	out := *row
	return &out, nil
}

func (t *tx) InsertMonthly(ctx context.Context, month ledger.Month, createdAt time.Time) (int64, error) {
	if err := t.store.failure("InsertMonthly"); err != nil {
		return 0, err
	}
	if row, ok := t.st.monthly[month]; ok {
		return row.ID, nil
	}
	t.st.nextID++
	t.st.monthly[month] = &ledger.MonthlyRow{ID: t.st.nextID, Month: month, Closing: ledger.Open(), CreatedAt: createdAt}
	return t.st.nextID, nil
}

func (t *tx) InsertDaily(ctx context.Context, date time.Time, monthlyID int64, createdAt time.Time) (bool, error) {
	if err := t.store.failure("InsertDaily"); err != nil {
		return false, err
	}
	d := ledger.Day(date)
	if _, ok := t.st.daily[d]; ok {
		return false, nil
	}
	t.st.nextID++
	t.st.daily[d] = &ledger.DailyRow{ID: t.st.nextID, Date: d, MonthlyID: monthlyID, Closing: ledger.Open(), CreatedAt: createdAt}
	return true, nil
}

func (t *tx) dailyByID(id int64) *ledger.DailyRow {
	for _, row := range t.st.daily {
		if row.ID == id {
			return row
		}
	}
	return nil
}

func (t *tx) monthlyByID(id int64) *ledger.MonthlyRow {
	for _, row := range t.st.monthly {
		if row.ID == id {
			return row
		}
	}
	return nil
}

func (t *tx) AddDaily(ctx context.Context, id int64, field ledger.Field, value int64) error {
	if err := t.store.failure("AddDaily"); err != nil {
		return err
	}
	row := t.dailyByID(id)
	if row == nil {
		return ledger.ErrLedgerRowUnavailable
	}
	return row.Metrics.Add(field, value)
}

func (t *tx) AddMonthly(ctx context.Context, id int64, field ledger.Field, value int64) error {
	if err := t.store.failure("AddMonthly"); err != nil {
		return err
	}
	row := t.monthlyByID(id)
	if row == nil {
		return ledger.ErrLedgerRowUnavailable
	}
	return row.Metrics.Add(field, value)
}

func (t *tx) SetDailyClosing(ctx context.Context, id int64, closing ledger.Closing) error {
	if err := t.store.failure("SetDailyClosing"); err != nil {
		return err
	}
	if row := t.dailyByID(id); row != nil {
		row.Closing = closing
	}
	return nil
}

func (t *tx) SetMonthlyClosing(ctx context.Context, id int64, closing ledger.Closing) error {
	if err := t.store.failure("SetMonthlyClosing"); err != nil {
		return err
	}
	if row := t.monthlyByID(id); row != nil {
		row.Closing = closing
	}
	return nil
}

func (t *tx) OfficiallyCloseDays(ctx context.Context, monthlyID int64, at time.Time) (int64, error) {
	if err := t.store.failure("OfficiallyCloseDays"); err != nil {
		return 0, err
	}
	var n int64
	for _, row := range t.st.daily {
		if row.MonthlyID != monthlyID {
			continue
		}
		if closing, changed := row.Closing.OfficiallyClose(at); changed {
			row.Closing = closing
			n++
		}
	}
	return n, nil
}

func (t *tx) MarkRecordsClosed(ctx context.Context, kind records.Kind, from, to time.Time) (int64, error) {
	if err := t.store.failure("MarkRecordsClosed"); err != nil {
		return 0, err
	}
	if !kind.Valid() {
		return 0, records.ErrUnknownKind
	}
	var n int64
	for _, rec := range t.st.records[kind] {
		if rec.IsClosed || rec.EffectiveDate.Before(from) || !rec.EffectiveDate.Before(to) {
			continue
		}
		rec.IsClosed = true
		n++
	}
	return n, nil
}
