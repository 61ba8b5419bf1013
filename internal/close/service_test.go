package close

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/ledger/ledgertest"
	"github.com/odyssey-erp/backoffice/internal/records"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	store  *ledgertest.Store
	ledger *ledger.Service
	closer *Service
	now    time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	f := &fixture{store: ledgertest.New(), now: now}
	f.ledger = ledger.NewService(f.store)
	f.ledger.WithLocation(time.UTC)
	f.ledger.WithNow(func() time.Time { return f.now })
	f.closer = NewService(f.store)
	f.closer.WithNow(func() time.Time { return f.now })
	return f
}

func (f *fixture) provision(t *testing.T, from, through time.Time) {
	t.Helper()
	acc := ledger.NewAccumulator(f.ledger)
	// Posting a zero delta provisions the first day; the rest follows.
	require.NoError(t, acc.IncrementRetailRevenue(context.Background(), 0, from))
	_, err := f.ledger.EnsureProvisioned(context.Background(), through)
	require.NoError(t, err)
}

// settle temporarily closes every open day through d, as the daily runs
// before an official close would have.
func (f *fixture) settle(t *testing.T, through time.Time) {
	t.Helper()
	_, err := f.closer.TemporaryCloseThrough(context.Background(), through)
	require.NoError(t, err)
}

func (f *fixture) daily(t *testing.T, d time.Time) *ledger.DailyRow {
	t.Helper()
	row, err := f.store.FindDaily(context.Background(), d)
	require.NoError(t, err)
	require.NotNil(t, row)
	return row
}

func (f *fixture) monthly(t *testing.T, y int, m time.Month) *ledger.MonthlyRow {
	t.Helper()
	row, err := f.store.FindMonthly(context.Background(), ledger.Month{Year: y, Month: m})
	require.NoError(t, err)
	require.NotNil(t, row)
	return row
}

func TestTemporaryCloseMonthEndClosesMonth(t *testing.T) {
	f := newFixture(t, time.Date(2024, 2, 1, 1, 0, 0, 0, time.UTC))
	f.provision(t, day(2024, 1, 1), day(2024, 2, 1))

	res, err := f.closer.TemporaryClose(context.Background(), day(2024, 1, 31))
	require.NoError(t, err)
	require.Equal(t, OutcomeClosed, res.Outcome)
	require.True(t, res.MonthClosed)

	require.True(t, f.daily(t, day(2024, 1, 31)).Closing.IsTemporarilyClosed())
	month := f.monthly(t, 2024, time.January)
	require.True(t, month.Closing.IsTemporarilyClosed())
	require.Equal(t, f.now, *month.Closing.TemporarilyClosedAt())
}

func TestTemporaryCloseMidMonthLeavesMonthOpen(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 16, 1, 0, 0, 0, time.UTC))
	f.provision(t, day(2024, 1, 1), day(2024, 1, 16))

	res, err := f.closer.TemporaryClose(context.Background(), day(2024, 1, 15))
	require.NoError(t, err)
	require.Equal(t, OutcomeClosed, res.Outcome)
	require.False(t, res.MonthClosed)

	require.True(t, f.daily(t, day(2024, 1, 15)).Closing.IsTemporarilyClosed())
	require.True(t, f.daily(t, day(2024, 1, 14)).Closing.IsOpen())
	require.True(t, f.monthly(t, 2024, time.January).Closing.IsOpen())
}

func TestTemporaryCloseIsIdempotent(t *testing.T) {
	f := newFixture(t, time.Date(2024, 2, 1, 1, 0, 0, 0, time.UTC))
	f.provision(t, day(2024, 1, 1), day(2024, 2, 1))
	ctx := context.Background()

	_, err := f.closer.TemporaryClose(ctx, day(2024, 1, 31))
	require.NoError(t, err)
	first := f.daily(t, day(2024, 1, 31))

	f.now = f.now.Add(24 * time.Hour)
	res, err := f.closer.TemporaryClose(ctx, day(2024, 1, 31))
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyClosed, res.Outcome)
	require.False(t, res.MonthClosed)
	require.Equal(t, first.Closing, f.daily(t, day(2024, 1, 31)).Closing)
}

func TestTemporaryCloseMissingRowIsSkipped(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 16, 1, 0, 0, 0, time.UTC))

	res, err := f.closer.TemporaryClose(context.Background(), day(2023, 6, 1))
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, res.Outcome)
	require.Zero(t, f.store.DailyCount())
}

func TestTemporaryCloseSurfacesStoreFailure(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 16, 1, 0, 0, 0, time.UTC))
	f.provision(t, day(2024, 1, 1), day(2024, 1, 16))
	f.store.FailOn("SetDailyClosing", errors.New("connection refused"))

	_, err := f.closer.TemporaryClose(context.Background(), day(2024, 1, 15))
	require.ErrorIs(t, err, ledger.ErrStoreUnavailable)
	require.True(t, f.daily(t, day(2024, 1, 15)).Closing.IsOpen())
}

func TestOfficialCloseCascadesWithinMonthOnly(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC))
	f.provision(t, day(2024, 1, 1), day(2024, 3, 4))
	inJan := f.store.AddRecord(records.KindSupply, day(2024, 1, 15), day(2024, 1, 15))
	janLast := f.store.AddRecord(records.KindExpense, day(2024, 1, 31), day(2024, 1, 31))
	inFeb := f.store.AddRecord(records.KindSupply, day(2024, 2, 1), day(2024, 2, 1))
	inDec := f.store.AddRecord(records.KindOrderPayment, day(2023, 12, 31), day(2023, 12, 31))
	f.settle(t, day(2024, 1, 31))

	res, err := f.closer.OfficialClose(context.Background(), ledger.Month{Year: 2024, Month: time.January})
	require.NoError(t, err)
	require.Equal(t, OutcomeClosed, res.Outcome)
	require.Equal(t, int64(31), res.DaysClosed)
	require.Equal(t, int64(1), res.RecordsClosed[records.KindSupply])
	require.Equal(t, int64(1), res.RecordsClosed[records.KindExpense])
	require.Len(t, res.RecordsClosed, len(records.AllKinds()))

	ctx := context.Background()
	rec, err := f.store.Find(ctx, records.KindSupply, inJan)
	require.NoError(t, err)
	require.True(t, rec.IsClosed)
	rec, err = f.store.Find(ctx, records.KindExpense, janLast)
	require.NoError(t, err)
	require.True(t, rec.IsClosed)
	rec, err = f.store.Find(ctx, records.KindSupply, inFeb)
	require.NoError(t, err)
	require.False(t, rec.IsClosed)
	rec, err = f.store.Find(ctx, records.KindOrderPayment, inDec)
	require.NoError(t, err)
	require.False(t, rec.IsClosed)

	month := f.monthly(t, 2024, time.January)
	require.True(t, month.Closing.IsOfficiallyClosed())
	for d := 1; d <= 31; d++ {
		row := f.daily(t, day(2024, 1, d))
		require.True(t, row.Closing.IsOfficiallyClosed())
		require.NotNil(t, row.Closing.TemporarilyClosedAt())
	}
	require.True(t, f.daily(t, day(2024, 2, 1)).Closing.IsOpen())
	require.True(t, f.monthly(t, 2024, time.February).Closing.IsOpen())
}

func TestOfficialCloseKeepsEarlierTemporaryTimestamp(t *testing.T) {
	f := newFixture(t, time.Date(2024, 2, 1, 1, 0, 0, 0, time.UTC))
	f.provision(t, day(2024, 1, 1), day(2024, 2, 1))
	ctx := context.Background()

	tempAt := f.now
	f.settle(t, day(2024, 1, 31))

	f.now = time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC)
	res, err := f.closer.OfficialClose(ctx, ledger.Month{Year: 2024, Month: time.January})
	require.NoError(t, err)
	require.Equal(t, OutcomeClosed, res.Outcome)

	row := f.daily(t, day(2024, 1, 31))
	require.Equal(t, tempAt, *row.Closing.TemporarilyClosedAt())
	require.Equal(t, f.now, *row.Closing.OfficiallyClosedAt())
	month := f.monthly(t, 2024, time.January)
	require.Equal(t, tempAt, *month.Closing.TemporarilyClosedAt())
}

func TestOfficialCloseIsIdempotent(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC))
	f.provision(t, day(2024, 1, 1), day(2024, 3, 4))
	f.store.AddRecord(records.KindTreatment, day(2024, 1, 10), day(2024, 1, 10))
	f.settle(t, day(2024, 1, 31))
	ctx := context.Background()
	jan := ledger.Month{Year: 2024, Month: time.January}

	_, err := f.closer.OfficialClose(ctx, jan)
	require.NoError(t, err)
	before := f.monthly(t, 2024, time.January)
	commits := f.store.Commits

	f.now = f.now.Add(time.Hour)
	res, err := f.closer.OfficialClose(ctx, jan)
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyClosed, res.Outcome)
	require.Equal(t, commits, f.store.Commits)
	require.Equal(t, before.Closing, f.monthly(t, 2024, time.January).Closing)
}

func TestOfficialCloseMissingMonthIsSkipped(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC))
	res, err := f.closer.OfficialClose(context.Background(), ledger.Month{Year: 2020, Month: time.May})
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, res.Outcome)
}

func TestOfficialCloseRollsBackWhenCascadeFails(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC))
	f.provision(t, day(2024, 1, 1), day(2024, 3, 4))
	id := f.store.AddRecord(records.KindSupply, day(2024, 1, 15), day(2024, 1, 15))
	f.settle(t, day(2024, 1, 31))
	f.store.FailOn("MarkRecordsClosed", errors.New("statement timeout"))

	_, err := f.closer.OfficialClose(context.Background(), ledger.Month{Year: 2024, Month: time.January})
	require.ErrorIs(t, err, ledger.ErrStoreUnavailable)

	require.True(t, f.monthly(t, 2024, time.January).Closing.IsTemporarilyClosed())
	require.True(t, f.daily(t, day(2024, 1, 15)).Closing.IsTemporarilyClosed())
	rec, err := f.store.Find(context.Background(), records.KindSupply, id)
	require.NoError(t, err)
	require.False(t, rec.IsClosed)
}

func TestEligibleOfficialCloseCutoff(t *testing.T) {
	f := newFixture(t, time.Date(2024, 5, 3, 1, 0, 0, 0, time.UTC))
	f.provision(t, day(2024, 1, 1), day(2024, 5, 3))
	ctx := context.Background()

	months, err := f.closer.EligibleOfficialClose(ctx, day(2024, 5, 3))
	require.NoError(t, err)
	require.Equal(t, []ledger.Month{{Year: 2024, Month: time.January}, {Year: 2024, Month: time.February}}, months)

	months, err = f.closer.EligibleOfficialClose(ctx, day(2024, 5, 4))
	require.NoError(t, err)
	require.Equal(t, []ledger.Month{
		{Year: 2024, Month: time.January},
		{Year: 2024, Month: time.February},
		{Year: 2024, Month: time.March},
	}, months)
}

func TestRunClosingCatchesUpMissedDaysAndMonths(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC))
	f.provision(t, day(2024, 1, 1), day(2024, 3, 13))
	f.store.AddRecord(records.KindTreatmentSession, day(2024, 1, 20), day(2024, 1, 20))

	summary, err := f.closer.RunClosing(context.Background(), day(2024, 3, 10))
	require.NoError(t, err)
	require.NotEmpty(t, summary.ID)
	require.Len(t, summary.Days, 69)
	require.Len(t, summary.Months, 1)
	require.Equal(t, ledger.Month{Year: 2024, Month: time.January}, summary.Months[0].Month)
	require.Equal(t, int64(1), summary.Months[0].RecordsClosed[records.KindTreatmentSession])

	require.True(t, f.monthly(t, 2024, time.January).Closing.IsOfficiallyClosed())
	require.True(t, f.monthly(t, 2024, time.February).Closing.IsTemporarilyClosed())
	require.True(t, f.daily(t, day(2024, 3, 9)).Closing.IsTemporarilyClosed())
	require.True(t, f.daily(t, day(2024, 3, 10)).Closing.IsOpen())
	require.True(t, f.monthly(t, 2024, time.March).Closing.IsOpen())

	again, err := f.closer.RunClosing(context.Background(), day(2024, 3, 10))
	require.NoError(t, err)
	require.Empty(t, again.Days)
	require.Empty(t, again.Months)
}

func TestRunClosingLegacyPolicy(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 3, 1, 0, 0, 0, time.UTC))
	f.closer.WithPolicy(Policy{OfficialCloseDay: 4, CatchUpScan: false})
	f.provision(t, day(2024, 1, 1), day(2024, 3, 5))
	f.settle(t, day(2024, 1, 31))
	ctx := context.Background()

	summary, err := f.closer.RunClosing(ctx, day(2024, 3, 3))
	require.NoError(t, err)
	require.Len(t, summary.Days, 1)
	require.Equal(t, day(2024, 3, 2), summary.Days[0].Date)
	require.Empty(t, summary.Months)
	require.True(t, f.daily(t, day(2024, 3, 1)).Closing.IsOpen())

	f.now = time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC)
	summary, err = f.closer.RunClosing(ctx, day(2024, 3, 4))
	require.NoError(t, err)
	require.Len(t, summary.Months, 1)
	require.Equal(t, ledger.Month{Year: 2024, Month: time.January}, summary.Months[0].Month)
	require.Equal(t, OutcomeClosed, summary.Months[0].Outcome)
	require.True(t, f.monthly(t, 2024, time.January).Closing.IsOfficiallyClosed())
}

func TestRunClosingDefersOfficialCloseAfterTemporaryFailure(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC))
	f.provision(t, day(2024, 1, 1), day(2024, 3, 10))
	f.store.FailOn("SetDailyClosing", errors.New("connection reset"))

	summary, err := f.closer.RunClosing(context.Background(), day(2024, 3, 10))
	require.Error(t, err)
	require.ErrorIs(t, err, ledger.ErrStoreUnavailable)
	require.Empty(t, summary.Days)
	require.Empty(t, summary.Months)
	require.True(t, f.monthly(t, 2024, time.January).Closing.IsOpen())
	require.True(t, f.daily(t, day(2024, 1, 1)).Closing.IsOpen())
}

func TestRunClosingLegacyPolicyDefersOfficialCloseAfterTemporaryFailure(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC))
	f.closer.WithPolicy(Policy{OfficialCloseDay: 4, CatchUpScan: false})
	f.provision(t, day(2024, 1, 1), day(2024, 3, 4))
	f.settle(t, day(2024, 1, 31))
	f.store.FailOn("SetDailyClosing", errors.New("connection reset"))

	summary, err := f.closer.RunClosing(context.Background(), day(2024, 3, 4))
	require.ErrorIs(t, err, ledger.ErrStoreUnavailable)
	require.Empty(t, summary.Months)
	require.True(t, f.monthly(t, 2024, time.January).Closing.IsTemporarilyClosed())
}

func TestOfficialCloseSkipsOpenMonth(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC))
	f.provision(t, day(2024, 1, 1), day(2024, 3, 4))
	id := f.store.AddRecord(records.KindSupply, day(2024, 1, 15), day(2024, 1, 15))
	commits := f.store.Commits

	res, err := f.closer.OfficialClose(context.Background(), ledger.Month{Year: 2024, Month: time.January})
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, res.Outcome)
	require.Equal(t, "month not temporarily closed", res.Reason)
	require.Equal(t, commits, f.store.Commits)
	require.True(t, f.monthly(t, 2024, time.January).Closing.IsOpen())
	require.True(t, f.daily(t, day(2024, 1, 15)).Closing.IsOpen())
	rec, err := f.store.Find(context.Background(), records.KindSupply, id)
	require.NoError(t, err)
	require.False(t, rec.IsClosed)
}

func TestOfficialCloseSkipsMonthWithOpenDays(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC))
	f.provision(t, day(2024, 1, 1), day(2024, 3, 4))
	ctx := context.Background()

	// Closing the last day alone flips the month while earlier days stay open.
	_, err := f.closer.TemporaryClose(ctx, day(2024, 1, 31))
	require.NoError(t, err)
	require.True(t, f.monthly(t, 2024, time.January).Closing.IsTemporarilyClosed())

	res, err := f.closer.OfficialClose(ctx, ledger.Month{Year: 2024, Month: time.January})
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, res.Outcome)
	require.Equal(t, "open days remain", res.Reason)
	require.True(t, f.monthly(t, 2024, time.January).Closing.IsTemporarilyClosed())
	require.True(t, f.daily(t, day(2024, 1, 10)).Closing.IsOpen())

	f.settle(t, day(2024, 1, 31))
	res, err = f.closer.OfficialClose(ctx, ledger.Month{Year: 2024, Month: time.January})
	require.NoError(t, err)
	require.Equal(t, OutcomeClosed, res.Outcome)
}

func TestRunClosingCapsFutureDateToToday(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC))
	f.provision(t, day(2024, 1, 1), day(2024, 3, 20))

	summary, err := f.closer.RunClosing(context.Background(), day(2024, 6, 10))
	require.NoError(t, err)
	require.Equal(t, day(2024, 3, 10), summary.Today)
	require.Len(t, summary.Months, 1)
	require.Equal(t, ledger.Month{Year: 2024, Month: time.January}, summary.Months[0].Month)

	require.True(t, f.monthly(t, 2024, time.February).Closing.IsTemporarilyClosed())
	require.False(t, f.monthly(t, 2024, time.February).Closing.IsOfficiallyClosed())
	require.True(t, f.monthly(t, 2024, time.March).Closing.IsOpen())
	require.True(t, f.daily(t, day(2024, 3, 10)).Closing.IsOpen())
	require.True(t, f.daily(t, day(2024, 3, 12)).Closing.IsOpen())
}

func TestRunClosingUsesBusinessTimezoneForToday(t *testing.T) {
	// 2024-03-10 20:00 UTC is already 2024-03-11 in Jakarta.
	f := newFixture(t, time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC))
	f.closer.WithLocation(time.FixedZone("WIB", 7*60*60))
	f.provision(t, day(2024, 3, 1), day(2024, 3, 12))

	summary, err := f.closer.RunClosing(context.Background(), day(2024, 3, 11))
	require.NoError(t, err)
	require.Equal(t, day(2024, 3, 11), summary.Today)
	require.True(t, f.daily(t, day(2024, 3, 10)).Closing.IsTemporarilyClosed())
	require.True(t, f.daily(t, day(2024, 3, 11)).Closing.IsOpen())
}
