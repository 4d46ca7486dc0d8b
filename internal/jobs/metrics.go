package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// jobBuckets spread from a quick alert scan to a full catalogue replay.
var jobBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Metrics holds the collectors shared by every background job.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	running     *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
	mismatches  prometheus.Counter
	checked     prometheus.Counter

	now func() time.Time
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job collectors on registerer. A nil registerer
// falls back to the process-wide default, registered once.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockledger",
			Name:      "jobs_total",
			Help:      "Job runs by job name and outcome.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockledger",
			Name:      "jobs_failures_total",
			Help:      "Failed job runs by job name.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stockledger",
			Name:      "job_duration_seconds",
			Help:      "Wall time of a single job run.",
			Buckets:   jobBuckets,
		}, []string{"job"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stockledger",
			Name:      "jobs_in_flight",
			Help:      "Job runs currently executing.",
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stockledger",
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per job.",
		}, []string{"job"}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stockledger",
			Name:      "ledger_mismatches_total",
			Help:      "Products whose stored stock differs from the ledger replay.",
		}),
		checked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stockledger",
			Name:      "ledger_products_checked_total",
			Help:      "Products verified against the ledger by the integrity job.",
		}),
		now: time.Now,
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.running, m.lastSuccess, m.mismatches, m.checked)
	return m
}

// Tracker measures one job run. Obtain it with Track and close it with End.
type Tracker struct {
	m     *Metrics
	job   string
	start time.Time
}

// Track marks job as running. Safe on a nil receiver.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil || job == "" {
		return &Tracker{job: job}
	}
	m.running.WithLabelValues(job).Inc()
	return &Tracker{m: m, job: job, start: m.now()}
}

// End records the outcome of the run and hands err back to the caller.
func (t *Tracker) End(err error) error {
	if t == nil || t.m == nil {
		return err
	}
	m := t.m
	finished := m.now()
	m.running.WithLabelValues(t.job).Dec()
	m.duration.WithLabelValues(t.job).Observe(finished.Sub(t.start).Seconds())
	if err != nil {
		m.runs.WithLabelValues(t.job, statusFailure).Inc()
		m.failures.WithLabelValues(t.job).Inc()
		return err
	}
	m.runs.WithLabelValues(t.job, statusSuccess).Inc()
	m.lastSuccess.WithLabelValues(t.job).Set(float64(finished.Unix()))
	return nil
}

// AddMismatches counts products whose stored stock disagrees with the ledger.
func (m *Metrics) AddMismatches(count int) {
	if m != nil && count > 0 {
		m.mismatches.Add(float64(count))
	}
}

// AddChecked counts products verified by the integrity job.
func (m *Metrics) AddChecked(count int) {
	if m != nil && count > 0 {
		m.checked.Add(float64(count))
	}
}
