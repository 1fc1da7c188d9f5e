package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth guards a route with a static API key. The key may arrive as a Bearer
// token, an X-API-Key header or an api_key query parameter; the last form
// exists for browser WebSocket clients, which cannot set headers. An empty
// apiKey turns the check off.
func Auth(apiKey string) func(http.Handler) http.Handler {
	if apiKey == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	want := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := credential(r)
			switch {
			case got == "":
				deny(w, http.StatusUnauthorized, "missing api key")
			case subtle.ConstantTimeCompare([]byte(got), want) != 1:
				deny(w, http.StatusUnauthorized, "invalid api key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func credential(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	for _, v := range []string{r.Header.Get("X-API-Key"), r.URL.Query().Get("api_key")} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// deny writes a JSON error body. msg must not need escaping.
func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
