package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsTotal    *prometheus.CounterVec
	anomaliesTotal *prometheus.CounterVec
	clustersTotal  *prometheus.CounterVec
	alertsTotal    *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		eventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowsentry_events_total",
				Help: "Total number of market events ingested",
			},
			[]string{"kind", "ticker"},
		),
		anomaliesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowsentry_anomalies_total",
				Help: "Total number of anomaly findings emitted by classifiers",
			},
			[]string{"type", "ticker"},
		),
		clustersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowsentry_clusters_total",
				Help: "Total number of cluster events formed",
			},
			[]string{"conviction"},
		),
		alertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowsentry_alerts_total",
				Help: "Total number of alerts delivered per sink",
			},
			[]string{"sink"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowsentry_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowsentry_last_price",
				Help: "Last recorded price for a ticker",
			},
			[]string{"ticker"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowsentry_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordEvent records one ingested market event.
func (r *Recorder) RecordEvent(kind, ticker string) {
	r.eventsTotal.WithLabelValues(kind, ticker).Inc()
}

// RecordAnomaly records one classifier finding.
func (r *Recorder) RecordAnomaly(anomalyType, ticker string) {
	r.anomaliesTotal.WithLabelValues(anomalyType, ticker).Inc()
}

// RecordCluster records one formed cluster event.
func (r *Recorder) RecordCluster(conviction string) {
	r.clustersTotal.WithLabelValues(conviction).Inc()
}

// RecordAlert records one delivered alert.
func (r *Recorder) RecordAlert(sink string) {
	r.alertsTotal.WithLabelValues(sink).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a ticker.
func (r *Recorder) RecordLastPrice(ticker string, price float64) {
	r.lastPrice.WithLabelValues(ticker).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
