package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// ProvisionResult reports how many rows a provisioning pass created.
type ProvisionResult struct {
	From         time.Time
	Through      time.Time
	DaysCreated  int
	MonthsLinked int
}

// Service provisions ledger rows and serves read accessors.
type Service struct {
	store  Store
	now    func() time.Time
	loc    *time.Location
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs a Service instance.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
		loc:   time.Local,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithLocation sets the business timezone used to derive "today".
func (s *Service) WithLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

// WithLogger sets the logger.
func (s *Service) WithLogger(logger *slog.Logger) {
	s.logger = logger
}

// Today returns the current civil date in the business timezone.
func (s *Service) Today() time.Time {
	return Day(s.now().In(s.loc))
}

// Store exposes the underlying store to collaborators sharing the unit of work.
func (s *Service) Store() Store {
	return s.store
}

// EnsureProvisioned creates every missing daily row after the latest
// provisioned date through throughDate, plus any missing owning month.
// On an empty ledger it starts at the first day of the month containing the
// earlier of today and throughDate. Calls are coalesced per target date.
func (s *Service) EnsureProvisioned(ctx context.Context, throughDate time.Time) (ProvisionResult, error) {
	through := Day(throughDate)
	// Coalesced callers share one run, so no single caller's cancellation may
	// abort it; a cancelled caller stops waiting instead.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(through.Format(time.DateOnly), func() (interface{}, error) {
		return s.ensureProvisioned(shared, through)
	})
	select {
	case <-ctx.Done():
		return ProvisionResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return ProvisionResult{}, res.Err
		}
		return res.Val.(ProvisionResult), nil
	}
}

func (s *Service) ensureProvisioned(ctx context.Context, through time.Time) (ProvisionResult, error) {
	latest, ok, err := s.store.LatestProvisionedDate(ctx)
	if err != nil {
		return ProvisionResult{}, fmt.Errorf("%w: %w", ErrLedgerRowUnavailable, storeErr("latest provisioned date", err))
	}
	from := s.provisionStart(latest, ok, through)
	result := ProvisionResult{From: from, Through: through}
	if from.After(through) {
		return result, nil
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		days, months, err := s.provisionRange(ctx, tx, from, through)
		result.DaysCreated = days
		result.MonthsLinked = months
		return err
	})
	if err != nil {
		return ProvisionResult{}, fmt.Errorf("%w: %w", ErrLedgerRowUnavailable, storeErr("provision", err))
	}
	if result.DaysCreated > 0 {
		s.log().Info("provisioned ledger rows",
			slog.String("from", from.Format(time.DateOnly)),
			slog.String("through", through.Format(time.DateOnly)),
			slog.Int("days", result.DaysCreated),
			slog.Int("months", result.MonthsLinked))
	}
	return result, nil
}

// provisionStart is the first day to create so that the provisioned days stay
// contiguous: the day after latest, or the first day of the month containing
// the earlier of today and through on an empty ledger.
func (s *Service) provisionStart(latest time.Time, ok bool, through time.Time) time.Time {
	if ok {
		return Day(latest).AddDate(0, 0, 1)
	}
	anchor := through
	if today := s.Today(); today.Before(anchor) {
		anchor = today
	}
	return MonthOf(anchor).FirstDay()
}

// provisionRange creates rows for [from, through] inside tx. Existing rows are
// never modified, so concurrent callers converge on the same end state.
func (s *Service) provisionRange(ctx context.Context, tx TxStore, from, through time.Time) (int, int, error) {
	createdAt := s.now()
	monthIDs := make(map[Month]int64)
	days := 0
	for d := Day(from); !d.After(through); d = d.AddDate(0, 0, 1) {
		month := MonthOf(d)
		id, ok := monthIDs[month]
		if !ok {
			var err error
			id, err = tx.InsertMonthly(ctx, month, createdAt)
			if err != nil {
				return days, len(monthIDs), err
			}
			monthIDs[month] = id
		}
		created, err := tx.InsertDaily(ctx, d, id, createdAt)
		if err != nil {
			return days, len(monthIDs), err
		}
		if created {
			days++
		}
	}
	return days, len(monthIDs), nil
}

// FindDaily returns the row for date or nil when it was never provisioned.
func (s *Service) FindDaily(ctx context.Context, date time.Time) (*DailyRow, error) {
	row, err := s.store.FindDaily(ctx, Day(date))
	if err != nil {
		return nil, storeErr("find daily", err)
	}
	return row, nil
}

// FindMonthly returns the month row or nil when it was never provisioned.
func (s *Service) FindMonthly(ctx context.Context, month Month) (*MonthlyRow, error) {
	row, err := s.store.FindMonthly(ctx, month)
	if err != nil {
		return nil, storeErr("find monthly", err)
	}
	return row, nil
}

// MonthDetail returns the month row with its provisioned days.
func (s *Service) MonthDetail(ctx context.Context, month Month) (*MonthlyRow, error) {
	row, err := s.FindMonthly(ctx, month)
	if err != nil || row == nil {
		return row, err
	}
	days, err := s.store.ListDaily(ctx, month)
	if err != nil {
		return nil, storeErr("list daily", err)
	}
	row.Days = days
	return row, nil
}

// lockOrProvisionDaily returns the locked row for date, provisioning it inside
// tx when the scheduler has not reached it yet.
func (s *Service) lockOrProvisionDaily(ctx context.Context, tx TxStore, date time.Time) (*DailyRow, error) {
	row, err := tx.LockDaily(ctx, date)
	if err != nil {
		return nil, storeErr("lock daily", err)
	}
	if row != nil {
		return row, nil
	}
	latest, ok, err := tx.LatestProvisionedDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerRowUnavailable, storeErr("latest provisioned date", err))
	}
	from := s.provisionStart(latest, ok, date)
	if from.After(date) {
		// A hole behind the provisioned range; fill just that day.
		from = date
	}
	if _, _, err := s.provisionRange(ctx, tx, from, date); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerRowUnavailable, storeErr("provision day", err))
	}
	row, err = tx.LockDaily(ctx, date)
	if err != nil {
		return nil, storeErr("lock daily", err)
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s", ErrLedgerRowUnavailable, date.Format(time.DateOnly))
	}
	s.log().Warn("ledger rows provisioned on demand",
		slog.String("from", from.Format(time.DateOnly)),
		slog.String("through", date.Format(time.DateOnly)))
	return row, nil
}

func (s *Service) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// IsUnavailable reports whether err should be surfaced as a transient failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrLedgerRowUnavailable)
}
