package close

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/records"
)

// Service moves ledger periods through Open, TemporarilyClosed and
// OfficiallyClosed, cascading official closes to transactional records.
// It is meant to have a single caller at a time; see Locker.
type Service struct {
	store   ledger.Store
	now     func() time.Time
	loc     *time.Location
	policy  Policy
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewService constructs a Service instance.
func NewService(store ledger.Store) *Service {
	return &Service{
		store:  store,
		now:    time.Now,
		policy: DefaultPolicy(),
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithLocation sets the business timezone that defines the current day.
func (s *Service) WithLocation(loc *time.Location) {
	s.loc = loc
}

// today is the current civil date in the business timezone.
func (s *Service) today() time.Time {
	now := s.now()
	if s.loc != nil {
		now = now.In(s.loc)
	}
	return ledger.Day(now)
}

// WithPolicy replaces the closing policy.
func (s *Service) WithPolicy(p Policy) {
	if p.OfficialCloseDay <= 0 {
		p.OfficialCloseDay = DefaultPolicy().OfficialCloseDay
	}
	s.policy = p
}

// WithLogger sets the logger.
func (s *Service) WithLogger(logger *slog.Logger) {
	s.logger = logger
}

// WithMetrics attaches Prometheus counters.
func (s *Service) WithMetrics(m *jobmetrics.Metrics) {
	s.metrics = m
}

// Policy returns the active policy.
func (s *Service) Policy() Policy {
	return s.policy
}

// TemporaryClose closes the daily row for date, and its month when date is
// the month's last day. Missing rows are skipped and officially closed rows
// are left alone.
func (s *Service) TemporaryClose(ctx context.Context, date time.Time) (DayResult, error) {
	day := ledger.Day(date)
	res := DayResult{Date: day}
	at := s.now()
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
		row, err := tx.LockDaily(ctx, day)
		if err != nil {
			return storeError("lock daily", err)
		}
		if row == nil {
			res.Outcome = OutcomeSkipped
			res.Reason = "no ledger row"
			return nil
		}
		closing, changed := row.Closing.TemporarilyClose(at)
		if !changed {
			res.Outcome = OutcomeAlreadyClosed
		} else {
			if err := tx.SetDailyClosing(ctx, row.ID, closing); err != nil {
				return storeError("set daily closing", err)
			}
			res.Outcome = OutcomeClosed
		}
		if !ledger.IsLastDayOfMonth(day) {
			return nil
		}
		month, err := tx.LockMonthly(ctx, ledger.MonthOf(day))
		if err != nil {
			return storeError("lock monthly", err)
		}
		if month == nil {
			return nil
		}
		monthClosing, changed := month.Closing.TemporarilyClose(at)
		if !changed {
			return nil
		}
		if err := tx.SetMonthlyClosing(ctx, month.ID, monthClosing); err != nil {
			return storeError("set monthly closing", err)
		}
		res.MonthClosed = true
		return nil
	})
	if err != nil {
		return DayResult{Date: day}, fmt.Errorf("close: temporary close %s: %w", day.Format(time.DateOnly), err)
	}

	switch res.Outcome {
	case OutcomeSkipped:
		s.log().Warn("temporary close skipped", slog.String("date", day.Format(time.DateOnly)), slog.String("reason", res.Reason))
	case OutcomeClosed:
		s.metrics.AddClosedPeriods("daily", "temporary", 1)
		s.log().Info("day temporarily closed", slog.String("date", day.Format(time.DateOnly)))
	}
	if res.MonthClosed {
		s.metrics.AddClosedPeriods("monthly", "temporary", 1)
		s.log().Info("month temporarily closed", slog.String("month", ledger.MonthOf(day).String()))
	}
	return res, nil
}

// TemporaryCloseThrough temporarily closes every open day up to and
// including through, oldest first. It stops at the first failure and
// returns the days handled so far.
func (s *Service) TemporaryCloseThrough(ctx context.Context, through time.Time) ([]DayResult, error) {
	dates, err := s.store.ListOpenDates(ctx, ledger.Day(through))
	if err != nil {
		return nil, fmt.Errorf("close: list open dates: %w", storeError("list open dates", err))
	}
	results := make([]DayResult, 0, len(dates))
	for _, d := range dates {
		res, err := s.TemporaryClose(ctx, d)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// OfficialClose closes the month, every day it owns, and flags every
// transactional record effective within the month as closed. It is a no-op
// for a missing or already officially closed month, and it is skipped while
// the month or any of its days is still open.
func (s *Service) OfficialClose(ctx context.Context, month ledger.Month) (MonthResult, error) {
	res := MonthResult{Month: month}
	current, err := s.store.FindMonthly(ctx, month)
	if err != nil {
		return res, fmt.Errorf("close: official close %s: %w", month, storeError("find monthly", err))
	}
	if current == nil {
		res.Outcome = OutcomeSkipped
		res.Reason = "no ledger row"
		s.log().Warn("official close skipped", slog.String("month", month.String()), slog.String("reason", res.Reason))
		return res, nil
	}
	if current.Closing.IsOfficiallyClosed() {
		res.Outcome = OutcomeAlreadyClosed
		return res, nil
	}
	reason, err := s.officialCloseBlocker(ctx, current)
	if err != nil {
		return res, fmt.Errorf("close: official close %s: %w", month, err)
	}
	if reason != "" {
		res.Outcome = OutcomeSkipped
		res.Reason = reason
		s.log().Warn("official close skipped", slog.String("month", month.String()), slog.String("reason", reason))
		return res, nil
	}

	at := s.now()
	from, to := month.FirstDay(), month.Next().FirstDay()
	counts := make(map[records.Kind]int64, len(records.AllKinds()))
	var days int64
	// Days are updated before the month row is locked, matching the
	// day-then-month order increments take their row locks in.
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
		n, err := tx.OfficiallyCloseDays(ctx, current.ID, at)
		if err != nil {
			return storeError("officially close days", err)
		}
		days = n
		row, err := tx.LockMonthly(ctx, month)
		if err != nil {
			return storeError("lock monthly", err)
		}
		if row == nil {
			return fmt.Errorf("%w: month %s disappeared", ledger.ErrInvariantViolation, month)
		}
		closing, changed := row.Closing.OfficiallyClose(at)
		if changed {
			if err := tx.SetMonthlyClosing(ctx, row.ID, closing); err != nil {
				return storeError("set monthly closing", err)
			}
		}
		for _, kind := range records.AllKinds() {
			n, err := tx.MarkRecordsClosed(ctx, kind, from, to)
			if err != nil {
				return storeError("mark "+string(kind)+" closed", err)
			}
			counts[kind] = n
		}
		return nil
	})
	if err != nil {
		return MonthResult{Month: month}, fmt.Errorf("close: official close %s: %w", month, err)
	}

	res.Outcome = OutcomeClosed
	res.DaysClosed = days
	res.RecordsClosed = counts
	s.metrics.AddClosedPeriods("monthly", "official", 1)
	s.metrics.AddClosedPeriods("daily", "official", days)
	attrs := []any{slog.String("month", month.String()), slog.Int64("days", days)}
	for kind, n := range counts {
		s.metrics.AddClosedRecords(string(kind), n)
		attrs = append(attrs, slog.Int64(string(kind), n))
	}
	s.log().Info("month officially closed", attrs...)
	return res, nil
}

// officialCloseBlocker names why month may not be officially closed yet, or
// returns "" when every day of it went through the temporary stage.
func (s *Service) officialCloseBlocker(ctx context.Context, month *ledger.MonthlyRow) (string, error) {
	if month.Closing.IsOpen() {
		return "month not temporarily closed", nil
	}
	open, err := s.store.ListOpenDates(ctx, month.Month.LastDay())
	if err != nil {
		return "", storeError("list open dates", err)
	}
	first := month.Month.FirstDay()
	for _, d := range open {
		if !d.Before(first) {
			return "open days remain", nil
		}
	}
	return "", nil
}

// EligibleOfficialClose lists months that may be officially closed on today,
// oldest first. From OfficialCloseDay onwards the month two back is eligible;
// before it, only months three or more back.
func (s *Service) EligibleOfficialClose(ctx context.Context, today time.Time) ([]ledger.Month, error) {
	months, err := s.store.ListMonthsNotOfficiallyClosed(ctx, s.officialCutoff(today))
	if err != nil {
		return nil, fmt.Errorf("close: eligible months: %w", storeError("list months", err))
	}
	return months, nil
}

func (s *Service) officialCutoff(today time.Time) ledger.Month {
	back := -3
	if today.Day() >= s.policy.OfficialCloseDay {
		back = -2
	}
	return ledger.MonthOf(today).AddMonths(back)
}

// RunClosing performs one closing cycle for today: yesterday and any earlier
// open day are temporarily closed, then eligible months are officially
// closed. A today later than the current date is capped to it. Official
// closes are skipped when the temporary pass failed; failures are joined in
// the returned error.
func (s *Service) RunClosing(ctx context.Context, today time.Time) (RunSummary, error) {
	day := ledger.Day(today)
	if current := s.today(); day.After(current) {
		s.log().Warn("closing date in the future, capped to today",
			slog.String("requested", day.Format(time.DateOnly)),
			slog.String("today", current.Format(time.DateOnly)))
		day = current
	}
	yesterday := day.AddDate(0, 0, -1)
	summary := RunSummary{ID: uuid.NewString(), Today: day, StartedAt: s.now()}
	var errs []error

	var tempErr error
	if s.policy.CatchUpScan {
		summary.Days, tempErr = s.TemporaryCloseThrough(ctx, yesterday)
	} else {
		var res DayResult
		if res, tempErr = s.TemporaryClose(ctx, yesterday); tempErr == nil {
			summary.Days = append(summary.Days, res)
		}
	}
	if tempErr != nil {
		errs = append(errs, tempErr)
		s.log().Warn("official closes deferred after temporary close failure", slog.String("today", day.Format(time.DateOnly)))
		summary.FinishedAt = s.now()
		return summary, errors.Join(errs...)
	}

	var months []ledger.Month
	if s.policy.CatchUpScan {
		eligible, err := s.EligibleOfficialClose(ctx, day)
		if err != nil {
			errs = append(errs, err)
		}
		months = eligible
	} else if day.Day() == s.policy.OfficialCloseDay {
		months = []ledger.Month{ledger.MonthOf(day).AddMonths(-2)}
	}
	for _, m := range months {
		res, err := s.OfficialClose(ctx, m)
		if err != nil {
			errs = append(errs, err)
			break
		}
		summary.Months = append(summary.Months, res)
	}

	summary.FinishedAt = s.now()
	return summary, errors.Join(errs...)
}

func (s *Service) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func storeError(op string, err error) error {
	var se *ledger.StoreError
	if errors.As(err, &se) || errors.Is(err, ledger.ErrInvariantViolation) {
		return err
	}
	return &ledger.StoreError{Op: op, Err: err}
}
