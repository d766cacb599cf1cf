// Package metrics defines the Prometheus collectors of the respond service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Detection metrics
	DetectionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "respond_detection_runs_total",
			Help: "Total number of detection runs by outcome",
		},
		[]string{"status"},
	)

	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "respond_detection_duration_seconds",
			Help:    "Duration of detection runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AlertsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "respond_alerts_created_total",
			Help: "Total number of alerts created by detection runs",
		},
	)

	// Ingestion metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "respond_events_ingested_total",
			Help: "Total number of events stored, by origin",
		},
		[]string{"origin"},
	)

	// Evidence and reporting metrics
	EvidenceWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "respond_evidence_writes_total",
			Help: "Total number of packet persists by result",
		},
		[]string{"result"},
	)

	ReportsRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "respond_reports_rendered_total",
			Help: "Total number of reports rendered by format",
		},
		[]string{"format"},
	)

	PacketBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "respond_packet_build_duration_seconds",
			Help:    "Duration of incident packet assembly in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Broker metrics
	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "respond_publish_errors_total",
			Help: "Total number of domain events that failed to publish",
		},
		[]string{"subject"},
	)
)

// Label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"

	OriginAPI        = "api"
	OriginImport     = "import"
	OriginCloudTrail = "cloudtrail"

	EvidenceRecorded  = "recorded"
	EvidenceUnchanged = "unchanged"
)
