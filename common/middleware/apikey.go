package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyHeader is the header clients present their key in.
const APIKeyHeader = "X-API-Key"

// APIKey rejects requests whose X-API-Key does not match key. Paths listed
// in open (exact match) are served without a key. An empty key disables the
// check entirely, which is only meant for local development.
func APIKey(key string, unauthorized http.HandlerFunc, open ...string) func(http.Handler) http.Handler {
	expected := []byte(key)
	public := make(map[string]struct{}, len(open))
	for _, p := range open {
		public[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := public[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			provided := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
				unauthorized(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
