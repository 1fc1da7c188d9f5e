package handler

import (
	"net/http"
	"time"
)

// HealthHandler answers liveness probes. It never touches the engine or any
// backend, so a stalled exchange cannot fail the probe.
type HealthHandler struct {
	started time.Time
	now     func() time.Time
}

// NewHealthHandler creates a HealthHandler reporting uptime since started.
func NewHealthHandler(started time.Time) *HealthHandler {
	return &HealthHandler{started: started, now: time.Now}
}

type healthBody struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
	UptimeSec int64     `json:"uptime_seconds"`
}

// HealthCheck serves GET /api/health.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	up := h.now().Sub(h.started)
	writeJSON(w, http.StatusOK, healthBody{
		Status:    "ok",
		StartedAt: h.started.UTC(),
		Uptime:    up.Truncate(time.Second).String(),
		UptimeSec: int64(up / time.Second),
	})
}
