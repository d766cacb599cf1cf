package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/secureops/workbench/common/httputil"
	"github.com/secureops/workbench/respond/internal/models"
	"github.com/secureops/workbench/respond/internal/service"
)

const (
	resourceEvent  = "event"
	resourceImport = "import"
)

func eventID(e *models.Event) string      { return e.ID }
func importID(j *models.ImportJob) string { return j.ID }

// IngestEvent handles POST /api/v1/events
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var req models.IngestEventRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	ev, err := h.svc.IngestEvent(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteResource(w, http.StatusCreated, resourceEvent, ev.ID, ev)
}

// ListEvents handles GET /api/v1/events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListEvents(r.Context(), httputil.ParseLimit(r, service.DefaultEventLimit, service.MaxListLimit))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCollection(w, http.StatusOK, httputil.Collect(resourceEvent, events, eventID))
}

// ImportJSONL handles POST /api/v1/imports/jsonl
//
// The body is either a multipart form with a "file" part or a raw JSONL
// stream. source, host and user come from the query string; a raw upload
// may name itself with ?filename=.
func (h *Handler) ImportJSONL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := models.ImportRequest{
		Filename: q.Get("filename"),
		Source:   q.Get("source"),
		Host:     q.Get("host"),
		User:     q.Get("user"),
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	data, filename, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Payload Too Large",
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		httputil.WriteValidationError(w, err.Error())
		return
	}
	if filename != "" {
		req.Filename = filename
	}

	job, err := h.svc.ImportJSONL(r.Context(), &req, data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteResource(w, http.StatusCreated, resourceImport, job.ID, job)
}

func readUpload(r *http.Request) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		data, err := io.ReadAll(r.Body)
		return data, "", err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("multipart upload requires a file part: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, header.Filename, nil
}

// ListImports handles GET /api/v1/imports
func (h *Handler) ListImports(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.ListImports(r.Context(), httputil.ParseLimit(r, service.DefaultImportLimit, service.MaxListLimit))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCollection(w, http.StatusOK, httputil.Collect(resourceImport, jobs, importID))
}

// DeleteImport handles DELETE /api/v1/imports/{id}
func (h *Handler) DeleteImport(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteImport(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SyncCloudTrail handles POST /api/v1/connectors/aws/cloudtrail/sync?minutes=&region=
func (h *Handler) SyncCloudTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := models.CloudTrailSyncRequest{Region: q.Get("region")}
	if m := q.Get("minutes"); m != "" {
		req.Minutes = httputil.ParseIntParam(m, -1)
	}

	resp, err := h.svc.SyncCloudTrail(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
