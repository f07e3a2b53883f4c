package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	documentAgent = "document_agent"

	documentsProcessedTotal = "documents_processed_total"
	safetyFlagsTotal        = "safety_flags_total"
	alertDeliveriesTotal    = "alert_deliveries_total"
	tickDurationSeconds     = "tick_duration_seconds"
	queueDepth              = "queue_depth"

	// Labels
	resultLabel   = "result"
	severityLabel = "severity"
	statusLabel   = "status"
	outcomeLabel  = "outcome"
)

var documentsProcessedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: documentAgent,
		Name:      documentsProcessedTotal,
		Help:      "number of documents processed, partitioned by terminal result",
	},
	[]string{resultLabel},
)

var safetyFlagsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: documentAgent,
		Name:      safetyFlagsTotal,
		Help:      "number of safety flags raised, partitioned by severity",
	},
	[]string{severityLabel},
)

var alertDeliveriesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: documentAgent,
		Name:      alertDeliveriesTotal,
		Help:      "number of webhook alert deliveries, partitioned by outcome",
	},
	[]string{outcomeLabel},
)

var tickDurationMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Subsystem: documentAgent,
		Name:      tickDurationSeconds,
		Help:      "time spent on a single processing tick",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
	},
)

var queueDepthMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: documentAgent,
		Name:      queueDepth,
		Help:      "number of documents in each queue status",
	},
	[]string{statusLabel},
)

func IncreaseDocumentsProcessedMetric(result string) {
	documentsProcessedTotalMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func IncreaseSafetyFlagsMetric(severity string) {
	safetyFlagsTotalMetric.With(prometheus.Labels{severityLabel: severity}).Inc()
}

func IncreaseAlertDeliveriesMetric(outcome string) {
	alertDeliveriesTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func ObserveTickDurationMetric(d time.Duration) {
	tickDurationMetric.Observe(d.Seconds())
}

func UpdateQueueDepthMetric(status string, count int) {
	queueDepthMetric.With(prometheus.Labels{statusLabel: status}).Set(float64(count))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(documentsProcessedTotalMetric)
	prometheus.MustRegister(safetyFlagsTotalMetric)
	prometheus.MustRegister(alertDeliveriesTotalMetric)
	prometheus.MustRegister(tickDurationMetric)
	prometheus.MustRegister(queueDepthMetric)
}
