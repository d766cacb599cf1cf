// Package httputil holds the response writers and request helpers shared by
// the workbench HTTP handlers.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ContentTypeJSONAPI is the media type for JSON:API documents.
const ContentTypeJSONAPI = "application/vnd.api+json"

// WriteJSON writes a plain JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	write(w, status, "application/json", data)
}

// WriteJSONAPI writes a JSON:API document with the given status code.
func WriteJSONAPI(w http.ResponseWriter, status int, data any) {
	write(w, status, ContentTypeJSONAPI, data)
}

func write(w http.ResponseWriter, status int, contentType string, data any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		slog.Error("failed to encode response", slog.String("content_type", contentType), slog.String("error", err.Error()))
	}
}

// WriteBlob writes a downloadable document. An empty filename omits the
// Content-Disposition header.
func WriteBlob(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	if filename != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		slog.Error("failed to write response body", slog.String("error", err.Error()))
	}
}
