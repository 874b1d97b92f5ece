// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry is the registry served by the HTTP layer.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		RecognitionsTotal,
		RecognitionDuration,
		InferenceDuration,
		CacheLookupsTotal,
	)
}

// RecognitionsTotal counts recognized items by outcome status.
var RecognitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cardscan_recognitions_total",
		Help: "Recognized business-card images by outcome status.",
	},
	[]string{"status"},
)

// RecognitionDuration measures one item end to end, loading included.
var RecognitionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "cardscan_recognition_duration_seconds",
		Help:    "End-to-end recognition time per image.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	},
	[]string{"status"},
)

// InferenceDuration measures the model call alone.
var InferenceDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "cardscan_inference_duration_seconds",
		Help:    "Model call latency.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	},
	[]string{"model"},
)

// CacheLookupsTotal counts result-cache lookups by result (hit | miss | error).
var CacheLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cardscan_cache_lookups_total",
		Help: "Result cache lookups.",
	},
	[]string{"result"},
)
