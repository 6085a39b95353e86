package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// daily-metrics pipeline.
type Metrics struct {
	DatesProcessed prometheus.Counter
	DatesFailed    prometheus.Counter
	StageRetries   prometheus.Counter
	RunActive      prometheus.Gauge

	RecordsExtracted *prometheus.CounterVec   // labels: feed={production,iot,weather}
	AnomaliesFlagged *prometheus.CounterVec   // labels: feed={production,iot,weather}, reason
	StageDuration    *prometheus.HistogramVec // labels: stage={extracting,classifying,aggregating,writing}

	WarehouseUpserts  prometheus.Counter
	AnomaliesAppended prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.DatesProcessed,
		m.DatesFailed,
		m.StageRetries,
		m.RunActive,
		m.RecordsExtracted,
		m.AnomaliesFlagged,
		m.StageDuration,
		m.WarehouseUpserts,
		m.AnomaliesAppended,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DatesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mine_etl",
			Name:      "dates_processed_total",
			Help:      "Dates whose aggregate row and anomalies were durably written.",
		}),
		DatesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mine_etl",
			Name:      "dates_failed_total",
			Help:      "Dates that exhausted retries or hit a non-retryable error.",
		}),
		StageRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mine_etl",
			Name:      "stage_retries_total",
			Help:      "Stage attempts beyond the first, across all dates.",
		}),
		RunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mine_etl",
			Name:      "run_active",
			Help:      "1 while a date-range run is in flight, 0 otherwise.",
		}),
		RecordsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mine_etl",
			Name:      "records_extracted_total",
			Help:      "Raw records read from each source feed.",
		}, []string{"feed"}),
		AnomaliesFlagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mine_etl",
			Name:      "anomalies_flagged_total",
			Help:      "Records classified anomalous, by feed and reason.",
		}, []string{"feed", "reason"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mine_etl",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage per date.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		WarehouseUpserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mine_etl",
			Name:      "warehouse_upserts_total",
			Help:      "Daily aggregate rows upserted into the warehouse.",
		}),
		AnomaliesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mine_etl",
			Name:      "anomalies_appended_total",
			Help:      "Anomaly rows appended to the warehouse logs.",
		}),
	}
}
