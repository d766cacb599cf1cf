package handlers

import (
	"net/http"

	"github.com/secureops/workbench/common/httputil"
	"github.com/secureops/workbench/respond/internal/models"
	"github.com/secureops/workbench/respond/internal/report"
)

const resourceEvidence = "evidence"

func evidenceID(f *models.EvidenceFile) string { return f.ID }

// GetPacket handles GET /api/v1/incidents/{id}/packet. The packet is built
// fresh and not recorded as evidence.
func (h *Handler) GetPacket(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.BuildPacket(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// ListEvidence handles GET /api/v1/incidents/{id}/evidence
func (h *Handler) ListEvidence(w http.ResponseWriter, r *http.Request) {
	files, err := h.svc.ListEvidence(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCollection(w, http.StatusOK, httputil.Collect(resourceEvidence, files, evidenceID))
}

// GetEvidenceContent handles GET /api/v1/incidents/{id}/evidence/{evidence_id}/content
func (h *Handler) GetEvidenceContent(w http.ResponseWriter, r *http.Request) {
	file, data, err := h.svc.EvidenceContent(r.Context(), r.PathValue("id"), r.PathValue("evidence_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteBlob(w, file.ContentType, file.Filename, data)
}

// ExportReport handles GET /api/v1/incidents/{id}/report/{format}
// where format is markdown, md or pdf.
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.PathValue("format"))
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	doc, err := h.svc.ExportReport(r.Context(), r.PathValue("id"), format)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteBlob(w, doc.ContentType, doc.Filename, doc.Body)
}
