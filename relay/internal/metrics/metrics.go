package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Relay request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_requests_total",
			Help: "Total number of relay requests by class and outcome",
		},
		[]string{"class", "outcome"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hookrelay_request_duration_seconds",
			Help:    "Duration of relay requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"class"},
	)

	// Outbound webhook metrics
	RemoteStatusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_remote_status_total",
			Help: "Webhook responses by HTTP status code",
		},
		[]string{"class", "code"},
	)

	ForwardDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hookrelay_forward_duration_seconds",
			Help:    "Duration of the outbound webhook call in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"class"},
	)

	TransportErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_transport_errors_total",
			Help: "Outbound webhook calls that got no HTTP response",
		},
		[]string{"class"},
	)

	UploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_upload_bytes_total",
			Help: "Decoded file bytes forwarded to webhooks",
		},
		[]string{"class"},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_rate_limit_hits_total",
			Help: "Total number of rate limited requests",
		},
		[]string{"class"},
	)

	// Side channel failures (stats, events, audit)
	RecorderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_recorder_errors_total",
			Help: "Failures recording a delivery to a side channel",
		},
		[]string{"recorder"},
	)
)

// Outcome labels for RequestsTotal.
const (
	OutcomeSuccess     = "success"
	OutcomeRemoteError = "remote_error"
	OutcomeTransport   = "transport_error"
	OutcomeInvalid     = "invalid_request"
	OutcomeInternal    = "internal_error"
	OutcomeRateLimited = "rate_limited"
	OutcomeNotAllowed  = "method_not_allowed"
)
