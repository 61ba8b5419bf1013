package records_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/ledger/ledgertest"
	"github.com/odyssey-erp/backoffice/internal/records"
)

func TestEditabilityFollowsLockWindow(t *testing.T) {
	store := ledgertest.New()
	created := time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)
	id := store.AddRecord(records.KindOrder, created, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))

	svc := records.NewService(store)
	svc.WithNow(func() time.Time { return time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC) })
	view, err := svc.Editability(context.Background(), records.KindOrder, id)
	require.NoError(t, err)
	require.False(t, view.IsLocked)
	require.True(t, view.Editable)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), view.LockedAt)

	svc.WithNow(func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) })
	view, err = svc.Editability(context.Background(), records.KindOrder, id)
	require.NoError(t, err)
	require.True(t, view.IsLocked)
	require.False(t, view.Editable)
}

func TestEditabilityErrors(t *testing.T) {
	svc := records.NewService(ledgertest.New())

	_, err := svc.Editability(context.Background(), records.Kind("invoice"), 1)
	require.ErrorIs(t, err, records.ErrUnknownKind)

	_, err = svc.Editability(context.Background(), records.KindExpense, 42)
	require.ErrorIs(t, err, records.ErrNotFound)
}

func TestParseKind(t *testing.T) {
	k, err := records.ParseKind(" Treatment_Payment ")
	require.NoError(t, err)
	require.Equal(t, records.KindTreatmentPayment, k)

	_, err = records.ParseKind("invoice")
	require.ErrorIs(t, err, records.ErrUnknownKind)
	require.Len(t, records.AllKinds(), 7)
}

func TestTableForCoversEveryKind(t *testing.T) {
	seen := map[string]bool{}
	for _, kind := range records.AllKinds() {
		table, column, err := records.TableFor(kind)
		require.NoError(t, err)
		require.NotEmpty(t, column)
		require.False(t, seen[table], "table %s mapped twice", table)
		seen[table] = true
	}
	require.Len(t, seen, 7)

	_, _, err := records.TableFor(records.Kind("invoice"))
	require.ErrorIs(t, err, records.ErrUnknownKind)
}
