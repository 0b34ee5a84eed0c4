// Package metrics registers prometheus instrumentation for the scheduler
// and the points ledger.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type SchedulerMetrics struct {
	jobRuns      *prometheus.CounterVec
	jobErrors    *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	itemsHandled *prometheus.CounterVec
}

type LedgerMetrics struct {
	appends    *prometheus.CounterVec
	duplicates prometheus.Counter
}

var (
	schedulerOnce sync.Once
	schedulerInst *SchedulerMetrics

	ledgerOnce sync.Once
	ledgerInst *LedgerMetrics
)

func Scheduler() *SchedulerMetrics {
	schedulerOnce.Do(func() {
		schedulerInst = &SchedulerMetrics{
			jobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "perkway_scheduler_job_runs_total",
				Help: "Scheduler job executions.",
			}, []string{"job"}),
			jobErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "perkway_scheduler_job_errors_total",
				Help: "Scheduler job executions that returned an error.",
			}, []string{"job"}),
			jobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "perkway_scheduler_job_duration_seconds",
				Help:    "Scheduler job wall time.",
				Buckets: prometheus.DefBuckets,
			}, []string{"job"}),
			itemsHandled: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "perkway_scheduler_items_processed_total",
				Help: "Items handled per scheduler job.",
			}, []string{"job", "outcome"}),
		}
	})
	return schedulerInst
}

func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerInst = &LedgerMetrics{
			appends: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "perkway_ledger_appends_total",
				Help: "Ledger transactions appended, by type.",
			}, []string{"type"}),
			duplicates: promauto.NewCounter(prometheus.CounterOpts{
				Name: "perkway_ledger_duplicate_appends_total",
				Help: "Appends skipped by the dedupe key.",
			}),
		}
	})
	return ledgerInst
}

func (m *SchedulerMetrics) IncJobRun(job string)   { m.jobRuns.WithLabelValues(job).Inc() }
func (m *SchedulerMetrics) IncJobError(job string) { m.jobErrors.WithLabelValues(job).Inc() }

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SchedulerMetrics) AddItems(job, outcome string, n int) {
	if n <= 0 {
		return
	}
	m.itemsHandled.WithLabelValues(job, outcome).Add(float64(n))
}

func (m *LedgerMetrics) IncAppend(txnType string) { m.appends.WithLabelValues(txnType).Inc() }
func (m *LedgerMetrics) IncDuplicate()            { m.duplicates.Inc() }
