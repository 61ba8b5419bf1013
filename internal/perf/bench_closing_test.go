package perf

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/odyssey-erp/backoffice/internal/close"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/ledger/ledgertest"
	"github.com/odyssey-erp/backoffice/internal/records"
	_ "github.com/odyssey-erp/backoffice/testing"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// seedHistory provisions 2023-01-01 through 2024-03-13 and one order per day.
func seedHistory(tb testing.TB) *ledgertest.Store {
	tb.Helper()
	store := ledgertest.New()
	svc := ledger.NewService(store)
	svc.WithLocation(time.UTC)
	svc.WithNow(func() time.Time { return date(2023, 1, 1) })
	if _, err := svc.EnsureProvisioned(context.Background(), date(2024, 3, 13)); err != nil {
		tb.Fatalf("provision: %v", err)
	}
	for d := date(2023, 1, 1); !d.After(date(2024, 3, 13)); d = d.AddDate(0, 0, 1) {
		store.AddRecord(records.KindOrder, d, d)
	}
	return store
}

func TestClosingCatchUpOverLongOutage(t *testing.T) {
	store := seedHistory(t)
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	closer := close.NewService(store)
	closer.WithMetrics(metrics)
	closer.WithNow(func() time.Time { return time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC) })

	tracker := metrics.Track("ledger_closing")
	summary, err := closer.RunClosing(context.Background(), date(2024, 3, 10))
	if err := tracker.End(err); err != nil {
		t.Fatalf("run closing: %v", err)
	}
	if len(summary.Days) != 434 {
		t.Fatalf("expected 434 days handled, got %d", len(summary.Days))
	}
	if len(summary.Months) != 13 {
		t.Fatalf("expected 13 months officially closed, got %d", len(summary.Months))
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	checks := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"backoffice_ledger_periods_closed_total", map[string]string{"scope": "daily", "stage": "temporary"}, 434},
		{"backoffice_ledger_periods_closed_total", map[string]string{"scope": "monthly", "stage": "temporary"}, 14},
		{"backoffice_ledger_periods_closed_total", map[string]string{"scope": "monthly", "stage": "official"}, 13},
		{"backoffice_ledger_periods_closed_total", map[string]string{"scope": "daily", "stage": "official"}, 396},
		{"backoffice_records_closed_total", map[string]string{"kind": string(records.KindOrder)}, 396},
		{"backoffice_jobs_total", map[string]string{"job": "ledger_closing", "status": "success"}, 1},
	}
	for _, c := range checks {
		if got := metricValue(t, families, c.name, c.labels); got != c.want {
			t.Fatalf("%s%v = %v, want %v", c.name, c.labels, got, c.want)
		}
	}

	// A whole catch-up in memory should be far below the cycle timeout.
	if mean := histogramMean(t, families, "backoffice_job_duration_seconds", map[string]string{"job": "ledger_closing"}); mean > 5.0 {
		t.Fatalf("closing catch-up above budget: %f", mean)
	}
}

func BenchmarkRunClosingCatchUp(b *testing.B) {
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		store := seedHistory(b)
		closer := close.NewService(store)
		b.StartTimer()
		if _, err := closer.RunClosing(context.Background(), date(2024, 3, 10)); err != nil {
			b.Fatal(err)
		}
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
