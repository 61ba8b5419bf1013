package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs and closing cycles.
type Metrics struct {
	runs           *prometheus.CounterVec
	failures       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	closedPeriods  *prometheus.CounterVec
	closedRecords  *prometheus.CounterVec
	skippedCycles  *prometheus.CounterVec
	provisionedDay prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddClosedPeriods counts ledger rows moved forward. Scope is "daily" or
// "monthly", stage is "temporary" or "official".
func (m *Metrics) AddClosedPeriods(scope, stage string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.closedPeriods.WithLabelValues(scope, stage).Add(float64(count))
}

// AddClosedRecords counts transactional records flagged by an official close.
func (m *Metrics) AddClosedRecords(kind string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.closedRecords.WithLabelValues(kind).Add(float64(count))
}

// SkipCycle records a closing cycle that did not run.
func (m *Metrics) SkipCycle(reason string) {
	if m == nil {
		return
	}
	m.skippedCycles.WithLabelValues(reason).Inc()
}

// AddProvisionedDays counts daily ledger rows created ahead of time.
func (m *Metrics) AddProvisionedDays(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.provisionedDay.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	closedPeriods := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_ledger_periods_closed_total",
		Help: "Ledger rows closed grouped by scope and stage.",
	}, []string{"scope", "stage"})
	closedRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_records_closed_total",
		Help: "Transactional records flagged closed by official closes.",
	}, []string{"kind"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_closing_cycles_skipped_total",
		Help: "Closing cycles skipped grouped by reason.",
	}, []string{"reason"})
	provisioned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backoffice_ledger_days_provisioned_total",
		Help: "Daily ledger rows created by provisioning.",
	})
	registerer.MustRegister(runs, failures, duration, closedPeriods, closedRecords, skipped, provisioned)
	return &Metrics{
		runs:           runs,
		failures:       failures,
		duration:       duration,
		closedPeriods:  closedPeriods,
		closedRecords:  closedRecords,
		skippedCycles:  skipped,
		provisionedDay: provisioned,
	}
}
