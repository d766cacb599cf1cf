package handlers

import (
	"net/http"

	"github.com/secureops/workbench/common/httputil"
	"github.com/secureops/workbench/respond/internal/models"
	"github.com/secureops/workbench/respond/internal/service"
)

const (
	resourceIncident = "incident"
	resourceAction   = "action"
)

func incidentID(i *models.Incident) string      { return i.ID }
func actionID(a *models.IncidentAction) string { return a.ID }

// createdIncident is the create response: the incident plus the alert ids
// that resolved and were linked.
type createdIncident struct {
	*models.Incident
	LinkedAlertIDs []string `json:"linked_alert_ids"`
}

// CreateIncident handles POST /api/v1/incidents
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req models.CreateIncidentRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	inc, linked, err := h.svc.CreateIncident(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if linked == nil {
		linked = []string{}
	}
	httputil.WriteResource(w, http.StatusCreated, resourceIncident, inc.ID, createdIncident{Incident: inc, LinkedAlertIDs: linked})
}

// ListIncidents handles GET /api/v1/incidents
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.svc.ListIncidents(r.Context(), httputil.ParseLimit(r, service.DefaultIncidentLimit, service.MaxListLimit))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCollection(w, http.StatusOK, httputil.Collect(resourceIncident, incidents, incidentID))
}

// GetIncident handles GET /api/v1/incidents/{id}
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.svc.GetIncident(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteResource(w, http.StatusOK, resourceIncident, inc.ID, inc)
}

// DeleteIncident handles DELETE /api/v1/incidents/{id}
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteIncident(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LinkAlert handles POST /api/v1/incidents/{id}/alerts
func (h *Handler) LinkAlert(w http.ResponseWriter, r *http.Request) {
	var req models.LinkAlertRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	result, err := h.svc.LinkAlert(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.LinkAlertResponse{Status: result})
}

// ListIncidentAlerts handles GET /api/v1/incidents/{id}/alerts
func (h *Handler) ListIncidentAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.svc.ListIncidentAlerts(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCollection(w, http.StatusOK, httputil.Collect(resourceAlert, alerts, alertID))
}

// AddAction handles POST /api/v1/incidents/{id}/actions
func (h *Handler) AddAction(w http.ResponseWriter, r *http.Request) {
	var req models.CreateActionRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	action, err := h.svc.AddAction(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteResource(w, http.StatusCreated, resourceAction, action.ID, action)
}

// ListActions handles GET /api/v1/incidents/{id}/actions
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.svc.ListActions(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCollection(w, http.StatusOK, httputil.Collect(resourceAction, actions, actionID))
}

// CloseIncident handles POST /api/v1/incidents/{id}/close
func (h *Handler) CloseIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.svc.CloseIncident(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteResource(w, http.StatusOK, resourceIncident, inc.ID, inc)
}
