// Package handler holds the HTTP handlers of the read-only API.
package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
)

// Bounds for the ?limit= query parameter.
const (
	defaultLimit = 50
	maxLimit     = 500
)

type apiError struct {
	Error string `json:"error"`
}

// writeJSON encodes v before touching the response so an encoding failure
// can still become a clean 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		status = http.StatusInternalServerError
		buf.Reset()
		_ = json.NewEncoder(&buf).Encode(apiError{Error: "internal server error"})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

// parseLimit reads ?limit=. Missing or invalid values fall back to the
// default; large ones are clamped.
func parseLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultLimit
	}
	return min(n, maxLimit)
}
