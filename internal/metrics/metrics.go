// Package metrics holds the process-wide Prometheus collectors. They are
// observability only: pipeline code writes to them and never reads them back,
// so no invocation's behaviour depends on another's.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionAttempts counts API calls by classification
	// (success, retryable, non_retryable).
	SubmissionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderpay_submission_attempts_total",
			Help: "Total number of payment API attempts",
		},
		[]string{"classification"},
	)

	// SubmissionLatency tracks the duration of a single API attempt.
	SubmissionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orderpay_submission_latency_seconds",
			Help:    "Payment API attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"classification"},
	)

	// Outcomes counts terminal pipeline outcomes by kind.
	Outcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderpay_outcomes_total",
			Help: "Total number of terminal pipeline outcomes",
		},
		[]string{"kind"},
	)

	// ExtractionFields counts per-field extraction hits and misses.
	ExtractionFields = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderpay_extraction_fields_total",
			Help: "Extraction results per field",
		},
		[]string{"field", "result"},
	)

	// ValidationFailures counts validation errors by reason.
	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderpay_validation_failures_total",
			Help: "Total number of validation errors by reason",
		},
		[]string{"reason"},
	)

	// Rejections counts emails dropped before the pipeline ran.
	Rejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderpay_rejections_total",
			Help: "Inbound emails rejected before extraction",
		},
		[]string{"reason"},
	)

	// EventsPublished counts status and DLQ publishes by topic and result.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderpay_events_published_total",
			Help: "Status and DLQ events published to Kafka",
		},
		[]string{"topic", "result"},
	)
)
