// Package server provides HTTP server setup for the respond service.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/common/middleware"
	"github.com/secureops/workbench/respond/internal/handlers"
)

// Options configures the middleware around the API routes.
type Options struct {
	// APIKey is required in X-API-Key on every route except health and
	// metrics. Empty disables the check.
	APIKey      string
	CORSOrigins []string
	Logger      *logging.Logger
}

// openPaths are served without an API key.
var openPaths = []string{"/healthz", "/readyz", "/metrics"}

// NewRouter constructs a ServeMux with respond API routes registered.
func NewRouter(h *handlers.Handler, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.HandleFunc("GET /readyz", h.ReadyCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Rules
	mux.HandleFunc("POST /api/v1/rules", h.CreateRule)
	mux.HandleFunc("GET /api/v1/rules", h.ListRules)
	mux.HandleFunc("DELETE /api/v1/rules/{id}", h.DeleteRule)

	// Events, imports and connectors
	mux.HandleFunc("POST /api/v1/events", h.IngestEvent)
	mux.HandleFunc("GET /api/v1/events", h.ListEvents)
	mux.HandleFunc("POST /api/v1/imports/jsonl", h.ImportJSONL)
	mux.HandleFunc("GET /api/v1/imports", h.ListImports)
	mux.HandleFunc("DELETE /api/v1/imports/{id}", h.DeleteImport)
	mux.HandleFunc("POST /api/v1/connectors/aws/cloudtrail/sync", h.SyncCloudTrail)

	// Detections and alerts
	mux.HandleFunc("POST /api/v1/detections/run", h.RunDetections)
	mux.HandleFunc("GET /api/v1/alerts", h.ListAlerts)
	mux.HandleFunc("GET /api/v1/alerts/{id}", h.GetAlert)
	mux.HandleFunc("DELETE /api/v1/alerts/{id}", h.DeleteAlert)

	// Incidents
	mux.HandleFunc("POST /api/v1/incidents", h.CreateIncident)
	mux.HandleFunc("GET /api/v1/incidents", h.ListIncidents)
	mux.HandleFunc("GET /api/v1/incidents/{id}", h.GetIncident)
	mux.HandleFunc("DELETE /api/v1/incidents/{id}", h.DeleteIncident)
	mux.HandleFunc("POST /api/v1/incidents/{id}/alerts", h.LinkAlert)
	mux.HandleFunc("GET /api/v1/incidents/{id}/alerts", h.ListIncidentAlerts)
	mux.HandleFunc("POST /api/v1/incidents/{id}/actions", h.AddAction)
	mux.HandleFunc("GET /api/v1/incidents/{id}/actions", h.ListActions)
	mux.HandleFunc("POST /api/v1/incidents/{id}/close", h.CloseIncident)

	// Packets, evidence and reports
	mux.HandleFunc("GET /api/v1/incidents/{id}/packet", h.GetPacket)
	mux.HandleFunc("GET /api/v1/incidents/{id}/evidence", h.ListEvidence)
	mux.HandleFunc("GET /api/v1/incidents/{id}/evidence/{evidence_id}/content", h.GetEvidenceContent)
	mux.HandleFunc("GET /api/v1/incidents/{id}/report/{format}", h.ExportReport)

	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.AccessLog(opts.Logger.Logger),
		middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", middleware.APIKeyHeader, middleware.RequestIDHeader},
		}),
		middleware.APIKey(opts.APIKey, handlers.UnauthorizedHandler, openPaths...),
	)
}
