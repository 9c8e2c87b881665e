// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Backtest metrics
	RunsTotal           *prometheus.CounterVec
	RunDuration         prometheus.Histogram
	StrategiesEvaluated prometheus.Counter
	StrategiesAffined   prometheus.Counter
	RunProgress         prometheus.Gauge
	RunInProgress       prometheus.Gauge

	// Queue metrics
	QueueDepth        *prometheus.GaugeVec
	QueueBusy         *prometheus.GaugeVec
	JobsProcessed     *prometheus.CounterVec
	JobDuration       *prometheus.HistogramVec
	JobsRejectedTotal *prometheus.CounterVec

	// Market data metrics
	DownloadBatches   *prometheus.CounterVec
	CandlesDownloaded prometheus.Counter
	ExchangeLatency   *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun      prometheus.Gauge
	LastSuccessfulDownload prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered
// on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a new Metrics instance registered on reg.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "candle_pattern_lab"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Backtest metrics
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by status",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "run_duration_seconds",
			Help:      "Backtest run duration in seconds",
			Buckets:   []float64{0.1, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		StrategiesEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "strategies_evaluated_total",
			Help:      "Total number of strategy descriptors evaluated",
		}),
		StrategiesAffined: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "strategies_affined_total",
			Help:      "Total number of strategy results kept by the run filter",
		}),
		RunProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "run_progress_ratio",
			Help:      "Overall progress of the current backtest run, 0..1",
		}),
		RunInProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_in_progress",
			Help:      "Number of backtest runs currently executing",
		}),

		// Queue metrics
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of jobs waiting in the queue",
		}, []string{"queue"}),
		QueueBusy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "busy",
			Help:      "1 while the queue is draining",
		}, []string{"queue"}),
		JobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of jobs processed by status",
		}, []string{"queue", "status"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "job_duration_seconds",
			Help:      "Job handling duration in seconds",
			Buckets:   []float64{0.1, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"queue"}),
		JobsRejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_rejected_total",
			Help:      "Total number of jobs rejected by reason",
		}, []string{"queue", "reason"}),

		// Market data metrics
		DownloadBatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "download_batches_total",
			Help:      "Total number of kline batches requested by status",
		}, []string{"status"}),
		CandlesDownloaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "candles_downloaded_total",
			Help:      "Total number of candles received from the exchange",
		}),
		ExchangeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "exchange_call_latency_seconds",
			Help:      "Exchange API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful backtest run",
		}),
		LastSuccessfulDownload: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_download_timestamp",
			Help:      "Unix timestamp of last successful kline download",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRun records a finished backtest run.
func RecordRun(status string, durationSeconds float64, evaluated, affined int, finishedAt int64) {
	DefaultMetrics.RunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.RunDuration.Observe(durationSeconds)
	DefaultMetrics.StrategiesEvaluated.Add(float64(evaluated))
	DefaultMetrics.StrategiesAffined.Add(float64(affined))
	if status == "success" {
		DefaultMetrics.LastSuccessfulRun.Set(float64(finishedAt))
	}
}

// SetRunProgress updates the current run progress gauge.
func SetRunProgress(ratio float64) {
	DefaultMetrics.RunProgress.Set(ratio)
}

// RunStarted marks a run as executing. Pair every call with RunFinished.
func RunStarted() {
	DefaultMetrics.RunInProgress.Inc()
}

// RunFinished marks a run started with RunStarted as done.
func RunFinished() {
	DefaultMetrics.RunInProgress.Dec()
}

// UpdateQueue updates the queue depth and busy gauges.
func UpdateQueue(queue string, depth int, busy bool) {
	DefaultMetrics.QueueDepth.WithLabelValues(queue).Set(float64(depth))
	DefaultMetrics.QueueBusy.WithLabelValues(queue).Set(boolToFloat(busy))
}

// RecordJob records a processed job.
func RecordJob(queue, status string, durationSeconds float64) {
	DefaultMetrics.JobsProcessed.WithLabelValues(queue, status).Inc()
	DefaultMetrics.JobDuration.WithLabelValues(queue).Observe(durationSeconds)
}

// RecordJobRejected records a job refused at submission.
func RecordJobRejected(queue, reason string) {
	DefaultMetrics.JobsRejectedTotal.WithLabelValues(queue, reason).Inc()
}

// RecordDownloadBatch records one kline batch request.
func RecordDownloadBatch(status string, candles int) {
	DefaultMetrics.DownloadBatches.WithLabelValues(status).Inc()
	DefaultMetrics.CandlesDownloaded.Add(float64(candles))
}

// RecordDownloadSuccess marks a completed download.
func RecordDownloadSuccess(finishedAt int64) {
	DefaultMetrics.LastSuccessfulDownload.Set(float64(finishedAt))
}

// RecordExchangeLatency records exchange API call latency.
func RecordExchangeLatency(method string, seconds float64) {
	DefaultMetrics.ExchangeLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
