// Package observability holds the Prometheus metrics of the document supervisor.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the document supervisor.
type Metrics struct {
	// Invocations counts invocations by outcome ("success", "input_error", "failure").
	Invocations *prometheus.CounterVec

	// StageDuration observes the duration of each executed pipeline stage in seconds.
	StageDuration *prometheus.HistogramVec

	// StagesSkipped counts stages skipped because their output was already present.
	StagesSkipped *prometheus.CounterVec

	// OCRPolls counts status polls of asynchronous OCR jobs.
	OCRPolls prometheus.Counter

	// ParseFailures counts model outputs that could not be recovered as JSON, by stage.
	ParseFailures *prometheus.CounterVec

	// CategoryFallbacks counts classifications outside the taxonomy mapped to OTHER.
	CategoryFallbacks prometheus.Counter
}

// NewMetrics creates and registers the metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docsupervisor",
			Name:      "invocations_total",
			Help:      "Document supervisor invocations by outcome.",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docsupervisor",
			Name:      "stage_duration_seconds",
			Help:      "Duration of executed pipeline stages.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900},
		}, []string{"stage"}),
		StagesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docsupervisor",
			Name:      "stages_skipped_total",
			Help:      "Pipeline stages skipped because their output was already present.",
		}, []string{"stage"}),
		OCRPolls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docsupervisor",
			Name:      "ocr_polls_total",
			Help:      "Status polls of asynchronous OCR jobs.",
		}),
		ParseFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docsupervisor",
			Name:      "parse_failures_total",
			Help:      "Model outputs that could not be recovered as JSON.",
		}, []string{"stage"}),
		CategoryFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docsupervisor",
			Name:      "category_fallbacks_total",
			Help:      "Classifications outside the taxonomy mapped to OTHER.",
		}),
	}
}

// Default is registered with the default Prometheus registry.
var Default = NewMetrics(prometheus.DefaultRegisterer)
