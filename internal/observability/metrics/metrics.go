package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	metricPrefix = "proofing_"

	ResultSuccess = "success"
	ResultError   = "error"

	IngestResultClassified = "classified"
	IngestResultEmpty      = "empty"
	IngestResultIgnored    = "ignored"
	IngestResultDropped    = "dropped"

	CommandResultSent   = "sent"
	CommandResultFailed = "failed"
)

var (
	registerOnce sync.Once

	ingestMessages *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec
	ingestSamples  *prometheus.CounterVec
	queueDepth     prometheus.Gauge
	droppedTotal   prometheus.Counter

	storeErrors *prometheus.CounterVec

	alertEventsTotal *prometheus.CounterVec
	sinkErrors       *prometheus.CounterVec

	commandResults *prometheus.CounterVec

	pollCycleLatency *prometheus.HistogramVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger zerolog.Logger) {
	registerOnce.Do(func() {
		ingestMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_messages_total",
				Help: "Total inbound messages by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Message processing latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		ingestSamples = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_samples_total",
				Help: "Total extracted samples by metric",
			},
			[]string{"metric"},
		)
		queueDepth = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "ingest_queue_depth",
				Help: "Messages waiting for the ingest worker",
			},
		)
		droppedTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_dropped_total",
				Help: "Messages dropped because the ingest queue was full",
			},
		)

		storeErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_errors_total",
				Help: "Total store failures by operation",
			},
			[]string{"op"},
		)

		alertEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_events_total",
				Help: "Total alert emissions by kind",
			},
			[]string{"kind"},
		)
		sinkErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_sink_errors_total",
				Help: "Total alert sink failures by sink",
			},
			[]string{"sink"},
		)

		commandResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_results_total",
				Help: "Total dispatched commands by result",
			},
			[]string{"result"},
		)

		pollCycleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "poll_cycle_latency_seconds",
				Help:    "Polling cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total export operations by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			ingestMessages,
			ingestLatency,
			ingestSamples,
			queueDepth,
			droppedTotal,
			storeErrors,
			alertEventsTotal,
			sinkErrors,
			commandResults,
			pollCycleLatency,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records message processing duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = IngestResultClassified
	}
	if ingestMessages != nil {
		ingestMessages.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestResult counts a message that was not processed by the worker.
func IncIngestResult(result string) {
	if result == "" {
		result = "unknown"
	}
	if ingestMessages != nil {
		ingestMessages.WithLabelValues(result).Inc()
	}
}

// IncSample counts one extracted sample.
func IncSample(metric string) {
	if metric == "" {
		metric = "unknown"
	}
	if ingestSamples != nil {
		ingestSamples.WithLabelValues(metric).Inc()
	}
}

// SetQueueDepth records the current ingest queue length.
func SetQueueDepth(depth int) {
	if queueDepth != nil {
		queueDepth.Set(float64(depth))
	}
}

// IncDropped counts a message dropped on a full queue.
func IncDropped() {
	if droppedTotal != nil {
		droppedTotal.Inc()
	}
	IncIngestResult(IngestResultDropped)
}

// IncStoreError counts a failed store operation.
func IncStoreError(op string) {
	if op == "" {
		op = "unknown"
	}
	if storeErrors != nil {
		storeErrors.WithLabelValues(op).Inc()
	}
}

// IncAlertEvent counts one alert emission.
func IncAlertEvent(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if alertEventsTotal != nil {
		alertEventsTotal.WithLabelValues(kind).Inc()
	}
}

// IncSinkError counts a failed alert sink delivery.
func IncSinkError(sink string) {
	if sink == "" {
		sink = "unknown"
	}
	if sinkErrors != nil {
		sinkErrors.WithLabelValues(sink).Inc()
	}
}

// IncCommandResult increments command result counter.
func IncCommandResult(result string) {
	if result == "" {
		result = "unknown"
	}
	if commandResults != nil {
		commandResults.WithLabelValues(result).Inc()
	}
}

// ObservePollCycle records polling cycle latency and result.
func ObservePollCycle(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if pollCycleLatency != nil {
		pollCycleLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}
