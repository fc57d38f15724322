// Package authmw guards the orchestrator's inbound webhook routes with a
// shared bearer token. The API proper stays open; only verdict-carrying
// webhooks (approval decisions) sit behind this.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerToken returns middleware admitting only requests whose
// Authorization header carries the expected bearer token. The comparison is
// constant-time.
func BearerToken(expected string) func(http.Handler) http.Handler {
	want := []byte(expected)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				deny(w, "missing bearer token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				deny(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// deny writes the same JSON error shape the API handlers use.
func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
