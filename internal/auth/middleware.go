package auth

import (
	"crypto/subtle"
	"net/http"
)

const (
	apiKeyHeader     = "X-Api-Key"
	apiKeyQueryParam = "api-key"
)

// RequireKey returns middleware that enforces an access key on the host API.
// With an empty key all requests pass through (open mode). Otherwise the key
// must be given in the X-Api-Key header or the api-key query parameter.
func RequireKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := r.Header.Get(apiKeyHeader)
			if given == "" {
				given = r.URL.Query().Get(apiKeyQueryParam)
			}
			if given != "" && subtle.ConstantTimeCompare([]byte(given), []byte(key)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"UNAUTHORIZED","message":"missing or invalid api key"}`))
		})
	}
}
