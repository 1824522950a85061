package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest metrics
	IngestRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_ingest_requests_total",
			Help: "Total ingest requests by response status",
		},
		[]string{"status"},
	)

	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_ingest_records_total",
			Help: "Accepted payloads by classification outcome",
		},
		[]string{"class"},
	)

	NormalizationFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_ingest_normalization_fallbacks_total",
			Help: "Payloads carried through unmodified after a normalization fault",
		},
	)

	StorageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bridge_storage_write_duration_seconds",
			Help:    "Duration of canonical store writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StorageErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_storage_errors_total",
			Help: "Total canonical store write failures",
		},
	)

	RawLogErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_rawlog_errors_total",
			Help: "Best-effort raw log appends that failed",
		},
	)

	// Forwarder metrics
	ForwardOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_forward_outcomes_total",
			Help: "Forwarding outcomes: delivered, skipped_no_token, terminal, exhausted",
		},
		[]string{"outcome"},
	)

	ForwardAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_forward_attempts_total",
			Help: "Individual delivery attempts against the downstream platform",
		},
	)

	ForwardDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bridge_forward_duration_seconds",
			Help:    "End-to-end duration of one record's forwarding in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Reconciliation metrics
	ReconDevices = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_recon_devices_total",
			Help: "Devices classified per reconciliation run by state",
		},
		[]string{"state"},
	)

	ReconRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bridge_recon_run_duration_seconds",
			Help:    "Duration of a full reconciliation run in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)
)
