package scheduler

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeRecorded     = "recorded"
	outcomeNotFound     = "target_not_found"
	outcomeHistoryError = "history_error"
	outcomePersistError = "persist_error"
	outcomeAbandoned    = "abandoned"

	advisoryGenerated = "generated"
	advisoryFallback  = "fallback"
	advisoryReused    = "reused"
)

var (
	ticksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uptimeadvisor_ticks_total",
		Help: "checks run by the scheduler, by outcome",
	}, []string{"outcome"})

	tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "uptimeadvisor_tick_duration_seconds",
		Help:    "duration of a full check (probe, advisory, persist)",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	})

	advisoryCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uptimeadvisor_advisory_calls_total",
		Help: "advisory decisions per check, by result",
	}, []string{"result"})

	activeJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "uptimeadvisor_active_jobs",
		Help: "targets with a live monitoring job",
	})
)

func init() {
	prometheus.MustRegister(ticksTotal, tickDuration, advisoryCalls, activeJobs)
}
