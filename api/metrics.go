package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/burn-engine/evm"
)

// Metrics are the service's Prometheus collectors. Each instance owns its
// registry, so several servers (or tests) can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	datasetRevision prometheus.Gauge
	outputRows      *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "burn_runs_total",
			Help: "Pipeline runs by outcome and trigger.",
		}, []string{"status", "trigger"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "burn_run_duration_seconds",
			Help:    "Wall time of pipeline runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		datasetRevision: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "burn_dataset_revision",
			Help: "Revision of the stored input dataset.",
		}),
		outputRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "burn_output_rows",
			Help: "Row count per fact table of the latest completed run.",
		}, []string{"table"}),
	}
	m.Registry.MustRegister(
		m.runs, m.runDuration, m.datasetRevision, m.outputRows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveRun records a finished run. trigger is "api", "scheduler" or
// "scenario".
func (m *Metrics) ObserveRun(run *evm.Run, trigger string) {
	if m == nil || run == nil {
		return
	}
	m.runs.WithLabelValues(string(run.Status), trigger).Inc()
	m.runDuration.Observe(run.CompletedAt.Sub(run.StartedAt).Seconds())
	if run.Status == evm.RunCompleted {
		m.outputRows.WithLabelValues("sov_line_week_snapshot").Set(float64(run.WeeklyRows))
		m.outputRows.WithLabelValues("sov_line_closeout").Set(float64(run.CloseoutRows))
		m.outputRows.WithLabelValues("project_week_snapshot").Set(float64(run.ProjectWeekRows))
	}
}

// SetDatasetRevision records a newly stored dataset.
func (m *Metrics) SetDatasetRevision(rev int64) {
	if m == nil {
		return
	}
	m.datasetRevision.Set(float64(rev))
}
