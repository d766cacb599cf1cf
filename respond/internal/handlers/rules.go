package handlers

import (
	"net/http"

	"github.com/secureops/workbench/common/httputil"
	"github.com/secureops/workbench/respond/internal/models"
)

const resourceRule = "rule"

func ruleID(r *models.Rule) string { return r.ID }

// CreateRule handles POST /api/v1/rules
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRuleRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	rule, err := h.svc.CreateRule(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteResource(w, http.StatusCreated, resourceRule, rule.ID, rule)
}

// ListRules handles GET /api/v1/rules
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.ListRules(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCollection(w, http.StatusOK, httputil.Collect(resourceRule, rules, ruleID))
}

// DeleteRule handles DELETE /api/v1/rules/{id}
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRule(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
