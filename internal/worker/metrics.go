package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "courier"

// Metrics — Prometheus-метрики воркера.
type Metrics struct {
	// messages_total{verdict} — ack, requeue, reject, abandon
	Messages *prometheus.CounterVec

	// tasks_total{kind,status} — записанные outcomes
	Tasks *prometheus.CounterVec

	// delivery_attempts_total{result}
	DeliveryAttempts *prometheus.CounterVec

	DeliveryLatency prometheus.Histogram
	QueueLatency    prometheus.Histogram
	Duplicates      prometheus.Counter
	DecodeErrors    prometheus.Counter
	InFlight        prometheus.Gauge
	Connected       prometheus.Gauge
	Reconnects      prometheus.Counter

	// outcomes{status} — всего outcomes в хранилище, обновляет StatsReporter
	Outcomes *prometheus.GaugeVec
}

// NewMetrics регистрирует метрики в reg.
// nil — отдельный registry (для тестов и нескольких воркеров в процессе).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_total",
			Help:      "Broker messages by final verdict.",
		}, []string{"verdict"}),
		Tasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tasks_total",
			Help:      "Recorded task outcomes by kind and status.",
		}, []string{"kind", "status"}),
		DeliveryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "delivery_attempts_total",
			Help:      "Delivery client calls by result.",
		}, []string{"result"}),
		DeliveryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "delivery_duration_seconds",
			Help:      "Latency of a single delivery call.",
			Buckets:   prometheus.DefBuckets,
		}),
		QueueLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "queue_latency_seconds",
			Help:      "Time between enqueue and receive.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		Duplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "duplicates_total",
			Help:      "Redelivered tasks skipped because an outcome already exists.",
		}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decode_errors_total",
			Help:      "Messages dead-lettered because they could not be decoded.",
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "in_flight",
			Help:      "Tasks currently being processed.",
		}),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "broker_connected",
			Help:      "1 when a broker session is open.",
		}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broker_reconnects_total",
			Help:      "Broker sessions lost and re-established.",
		}),
		Outcomes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "outcomes",
			Help:      "Task outcomes stored, by status.",
		}, []string{"status"}),
	}
}
