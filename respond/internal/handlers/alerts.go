package handlers

import (
	"net/http"

	"github.com/secureops/workbench/common/httputil"
	"github.com/secureops/workbench/respond/internal/models"
	"github.com/secureops/workbench/respond/internal/service"
)

const resourceAlert = "alert"

func alertID(a *models.Alert) string { return a.ID }

// RunDetections handles POST /api/v1/detections/run
func (h *Handler) RunDetections(w http.ResponseWriter, r *http.Request) {
	limit := httputil.ParseIntParam(r.URL.Query().Get("limit"), 0)
	resp, err := h.svc.RunDetections(r.Context(), min(limit, service.MaxListLimit))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// ListAlerts handles GET /api/v1/alerts
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.svc.ListAlerts(r.Context(), httputil.ParseLimit(r, service.DefaultAlertLimit, service.MaxListLimit))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCollection(w, http.StatusOK, httputil.Collect(resourceAlert, alerts, alertID))
}

// GetAlert handles GET /api/v1/alerts/{id}
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.svc.GetAlert(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteResource(w, http.StatusOK, resourceAlert, alert.ID, alert)
}

// DeleteAlert handles DELETE /api/v1/alerts/{id}
func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteAlert(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
