package ledgerhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/ledger/ledgertest"
)

func newTestServer(t *testing.T) (http.Handler, *ledger.Service, *ledgertest.Store) {
	t.Helper()
	store := ledgertest.New()
	svc := ledger.NewService(store)
	svc.WithLocation(time.UTC)
	svc.WithNow(func() time.Time { return time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC) })

	r := chi.NewRouter()
	r.Route("/ledger", NewHandler(nil, svc).MountRoutes)
	return r, svc, store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestShowDailyIncludesTotals(t *testing.T) {
	h, svc, _ := newTestServer(t)
	acc := ledger.NewAccumulator(svc)
	ctx := context.Background()
	jan2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, acc.IncrementRetailRevenue(ctx, 1000, jan2))
	require.NoError(t, acc.IncrementSupplyCost(ctx, 400, jan2))

	rr := get(t, h, "/ledger/daily/2024-01-02")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Date    string         `json:"date"`
		Metrics ledger.Metrics `json:"metrics"`
		Totals  struct {
			GrossProfit int64  `json:"gross_profit"`
			GrossMargin string `json:"gross_margin"`
		} `json:"totals"`
		Closing struct {
			State string `json:"state"`
		} `json:"closing"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "2024-01-02", body.Date)
	require.Equal(t, int64(1000), body.Metrics.RetailRevenue)
	require.Equal(t, int64(600), body.Totals.GrossProfit)
	require.Equal(t, "0.6", body.Totals.GrossMargin)
	require.Equal(t, string(ledger.StateOpen), body.Closing.State)
}

func TestShowDailyValidation(t *testing.T) {
	h, _, _ := newTestServer(t)

	require.Equal(t, http.StatusBadRequest, get(t, h, "/ledger/daily/02-01-2024").Code)
	require.Equal(t, http.StatusNotFound, get(t, h, "/ledger/daily/2023-07-01").Code)
}

func TestShowDailyStoreFailure(t *testing.T) {
	h, _, store := newTestServer(t)
	store.FailOn("FindDaily", errors.New("too many connections"))

	rr := get(t, h, "/ledger/daily/2024-01-02")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestShowMonthlyListsDays(t *testing.T) {
	h, svc, _ := newTestServer(t)
	_, err := svc.EnsureProvisioned(context.Background(), time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	rr := get(t, h, "/ledger/monthly/2024/1")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Month string `json:"month"`
		Days  []struct {
			Date string `json:"date"`
		} `json:"days"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "2024-01", body.Month)
	require.Len(t, body.Days, 3)
	require.Equal(t, "2024-01-01", body.Days[0].Date)
}

func TestShowMonthlyValidation(t *testing.T) {
	h, _, _ := newTestServer(t)

	require.Equal(t, http.StatusBadRequest, get(t, h, "/ledger/monthly/2024/13").Code)
	require.Equal(t, http.StatusBadRequest, get(t, h, "/ledger/monthly/abc/1").Code)
	require.Equal(t, http.StatusNotFound, get(t, h, "/ledger/monthly/2024/6").Code)
}
