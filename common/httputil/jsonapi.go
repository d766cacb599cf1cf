package httputil

import (
	"net/http"
	"strconv"
)

// Resource is a single JSON:API resource object.
type Resource struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes any    `json:"attributes"`
}

// ErrorObject is a single JSON:API error.
type ErrorObject struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// WriteResource writes {"data": resource}.
func WriteResource(w http.ResponseWriter, status int, resourceType, id string, attributes any) {
	WriteJSONAPI(w, status, map[string]any{
		"data": Resource{Type: resourceType, ID: id, Attributes: attributes},
	})
}

// WriteCollection writes {"data": [...], "meta": {"count": n}}. A nil slice
// is written as an empty array.
func WriteCollection(w http.ResponseWriter, status int, resources []Resource) {
	if resources == nil {
		resources = []Resource{}
	}
	WriteJSONAPI(w, status, map[string]any{
		"data": resources,
		"meta": map[string]any{"count": len(resources)},
	})
}

// Collect maps items onto resources of a single type.
func Collect[T any](resourceType string, items []T, id func(T) string) []Resource {
	out := make([]Resource, 0, len(items))
	for _, item := range items {
		out = append(out, Resource{Type: resourceType, ID: id(item), Attributes: item})
	}
	return out
}

// WriteError writes a JSON:API error document with a single error.
func WriteError(w http.ResponseWriter, status int, code, title, detail string) {
	WriteJSONAPI(w, status, map[string]any{
		"errors": []ErrorObject{{
			Status: strconv.Itoa(status),
			Code:   code,
			Title:  title,
			Detail: detail,
		}},
	})
}

func WriteValidationError(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "validation_failed", "Validation Failed", detail)
}

func WriteNotFoundError(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "not_found", "Resource Not Found", detail)
}

func WriteConflictError(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusConflict, "conflict", "Conflict", detail)
}

func WriteUnauthorizedError(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", detail)
}

// WriteInternalError hides detail from the caller; log the cause first.
func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "internal_error", "Internal Server Error", "an internal error occurred")
}
