package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PipelineMetrics struct {
	registry *prometheus.Registry

	documentTotal      *prometheus.CounterVec
	documentDuration   *prometheus.HistogramVec
	documentInFlight   prometheus.Gauge
	batchTotal         *prometheus.CounterVec
	rejectionTotal     *prometheus.CounterVec
	movedTotal         *prometheus.CounterVec
	oracleCallDuration *prometheus.HistogramVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	documentTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "questmine",
			Subsystem: "pipeline",
			Name:      "document_process_total",
			Help:      "Total processed documents by status.",
		},
		[]string{"service", "status"},
	)
	documentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "questmine",
			Subsystem: "pipeline",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	documentInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "questmine",
			Subsystem: "pipeline",
			Name:      "document_process_in_flight",
			Help:      "Number of in-flight document extractions.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	batchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "questmine",
			Subsystem: "pipeline",
			Name:      "batch_total",
			Help:      "Total finished batches by status.",
		},
		[]string{"service", "status"},
	)
	rejectionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "questmine",
			Subsystem: "pipeline",
			Name:      "validation_rejections_total",
			Help:      "Total validation rejections by rule.",
		},
		[]string{"service", "rule"},
	)
	movedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "questmine",
			Subsystem: "pipeline",
			Name:      "validation_moved_total",
			Help:      "Total markless exam questions reclassified as understanding.",
		},
		[]string{"service"},
	)
	oracleCallDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "questmine",
			Subsystem: "pipeline",
			Name:      "oracle_call_duration_seconds",
			Help:      "Oracle completion latency in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(documentTotal, documentDuration, documentInFlight, batchTotal, rejectionTotal, movedTotal, oracleCallDuration)

	return &PipelineMetrics{
		registry:           registry,
		documentTotal:      documentTotal,
		documentDuration:   documentDuration,
		documentInFlight:   documentInFlight,
		batchTotal:         batchTotal,
		rejectionTotal:     rejectionTotal,
		movedTotal:         movedTotal,
		oracleCallDuration: oracleCallDuration,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartDocument() {
	m.documentInFlight.Inc()
}

func (m *PipelineMetrics) FinishDocument(service string, duration time.Duration, err error) {
	m.documentInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.documentTotal.WithLabelValues(service, status).Inc()
	m.documentDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *PipelineMetrics) FinishBatch(service string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.batchTotal.WithLabelValues(service, status).Inc()
}

func (m *PipelineMetrics) RecordRejections(service, rule string, count int) {
	if count <= 0 {
		return
	}
	m.rejectionTotal.WithLabelValues(service, rule).Add(float64(count))
}

func (m *PipelineMetrics) RecordMoved(service string, count int) {
	if count <= 0 {
		return
	}
	m.movedTotal.WithLabelValues(service).Add(float64(count))
}

func (m *PipelineMetrics) ObserveOracleCall(service string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.oracleCallDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}
