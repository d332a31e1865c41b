package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts gateway HTTP requests by method, path, and status code.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aigw_requests_total",
		Help: "Total HTTP requests processed.",
	}, []string{"method", "path", "status"})

	// BackendRequestsTotal counts AI backend calls by endpoint and classified outcome.
	BackendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aigw_backend_requests_total",
		Help: "AI backend requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	// BackendDuration tracks AI backend latency per endpoint.
	BackendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aigw_backend_duration_seconds",
		Help:    "Time spent waiting on the AI backend.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"endpoint"})

	// ModelLoadsTotal counts completed model loads by outcome (ok, error).
	ModelLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aigw_model_loads_total",
		Help: "Model loads by outcome.",
	}, []string{"outcome"})

	// ModelsLoaded is the number of models resident in the registry.
	ModelsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aigw_models_loaded",
		Help: "Models currently resident in the registry.",
	})

	// InferenceDuration tracks local inference latency per model.
	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aigw_inference_duration_seconds",
		Help:    "Time spent running local inference.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"model"})

	// InputChars tracks the distribution of text input lengths per flow.
	InputChars = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aigw_input_chars",
		Help:    "Number of characters in text flow input.",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"flow"})
)
