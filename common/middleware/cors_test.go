package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	cfg := CORSConfig{
		AllowedOrigins: []string{"https://console.example.com", "*.corp.example"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "X-API-Key"},
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := CORS(cfg)(next)

	tests := []struct {
		name        string
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantAllowed bool
	}{
		{name: "exact origin", method: http.MethodGet, origin: "https://console.example.com", wantStatus: http.StatusTeapot, wantAllowed: true},
		{name: "wildcard subdomain", method: http.MethodGet, origin: "https://soc.corp.example", wantStatus: http.StatusTeapot, wantAllowed: true},
		{name: "unknown origin", method: http.MethodGet, origin: "https://evil.test", wantStatus: http.StatusTeapot},
		{name: "no origin", method: http.MethodGet, wantStatus: http.StatusTeapot},
		{name: "preflight", method: http.MethodOptions, origin: "https://console.example.com", preflight: true, wantStatus: http.StatusNoContent, wantAllowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/incidents", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantAllowed {
				assert.Equal(t, tt.origin, rr.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "GET, POST", rr.Header().Get("Access-Control-Allow-Methods"))
				assert.Equal(t, "300", rr.Header().Get("Access-Control-Max-Age"))
			} else {
				assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestCORS_NoOriginsConfigured(t *testing.T) {
	handler := CORS(CORSConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://console.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
