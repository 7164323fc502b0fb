package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
)

// CronMetrics tracks sweep jobs run by the cron worker.
type CronMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	lockSkips   prometheus.Counter
}

func NewCronMetrics(reg prometheus.Registerer) *CronMetrics {
	if reg == nil {
		return &CronMetrics{}
	}
	m := &CronMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Cron job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_duration_seconds",
			Help:    "Wall time of cron job runs.",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		lockSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cron_cycle_lock_skips_total",
			Help: "Cycles skipped because another worker held the lease.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess, m.lockSkips)
	return m
}

// ObserveRun records one job run. A nil err counts as a success.
func (m *CronMetrics) ObserveRun(job string, started time.Time, err error) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(time.Since(started).Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, outcomeFailed).Inc()
		return
	}
	m.runs.WithLabelValues(job, outcomeSucceeded).Inc()
	m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
}

func (m *CronMetrics) IncLockSkipped() {
	if m == nil || m.lockSkips == nil {
		return
	}
	m.lockSkips.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
