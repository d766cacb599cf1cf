// Package handlers provides HTTP request handlers for the respond service.
package handlers

import (
	"errors"
	"net/http"

	"github.com/secureops/workbench/common/httputil"
	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/common/messaging"
	"github.com/secureops/workbench/respond/internal/evidence"
	"github.com/secureops/workbench/respond/internal/lock"
	"github.com/secureops/workbench/respond/internal/models"
	"github.com/secureops/workbench/respond/internal/repository"
	"github.com/secureops/workbench/respond/internal/service"
)

// DefaultMaxUploadBytes caps JSONL uploads when the caller does not configure a limit.
const DefaultMaxUploadBytes = 64 << 20

// Handler provides HTTP handlers for the respond service
type Handler struct {
	svc            *service.Service
	logger         *logging.Logger
	broker         messaging.Client
	maxUploadBytes int64
}

// NewHandler creates a new Handler instance
func NewHandler(svc *service.Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		svc:            svc,
		logger:         logger.With(logging.Component("http")),
		maxUploadBytes: DefaultMaxUploadBytes,
	}
}

// WithMaxUploadBytes sets the import upload limit.
func (h *Handler) WithMaxUploadBytes(n int64) *Handler {
	if n > 0 {
		h.maxUploadBytes = n
	}
	return h
}

// WithBroker reports the broker connection on /readyz.
func (h *Handler) WithBroker(client messaging.Client) *Handler {
	h.broker = client
	return h
}

// =============================================================================
// Helper Methods
// =============================================================================

// writeError maps service errors onto JSON:API error documents. Anything
// unrecognised is logged and reported as a 500 without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		httputil.WriteValidationError(w, err.Error())
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, evidence.ErrBlobNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, repository.ErrRuleInUse), errors.Is(err, lock.ErrLockHeld):
		httputil.WriteConflictError(w, err.Error())
	case errors.Is(err, service.ErrConnectorDisabled):
		httputil.WriteError(w, http.StatusServiceUnavailable, "unavailable", "Service Unavailable", err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			logging.Method(r.Method), logging.Path(r.URL.Path), logging.Error(err))
		httputil.WriteInternalError(w)
	}
}

// UnauthorizedHandler answers requests rejected by the API key middleware.
func UnauthorizedHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteUnauthorizedError(w, "missing or invalid API key")
}

// =============================================================================
// Health Check Handlers
// =============================================================================

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, models.HealthResponse{
		Status:  "ok",
		Service: "respond",
	})
}

// ReadyCheck handles GET /readyz. It fails when the store is unreachable;
// a disconnected broker is reported but does not fail readiness.
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{Status: "ready", Service: "respond"}
	if h.broker != nil {
		status := messaging.CheckClientHealth(h.broker)
		resp.Messaging = &status
	}

	if err := h.svc.Ping(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "readiness check failed", logging.Error(err))
		resp.Status = "unavailable"
		httputil.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
