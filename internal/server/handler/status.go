package handler

import (
	"net/http"

	"github.com/alanyoungcy/cyclebot/internal/engine"
)

// EngineStatus is the read side of the engine. *engine.Engine satisfies it.
type EngineStatus interface {
	Phase() engine.Phase
	State() engine.RunState
}

// StatusHandler serves the run mode, strategy and engine state.
type StatusHandler struct {
	mode      string
	strategy  string
	exchanges []string
	engine    EngineStatus
}

// NewStatusHandler creates a StatusHandler. eng is nil when this process
// only serves data produced elsewhere.
func NewStatusHandler(mode, strategy string, exchanges []string, eng EngineStatus) *StatusHandler {
	return &StatusHandler{mode: mode, strategy: strategy, exchanges: exchanges, engine: eng}
}

// GetStatus responds with the mode, strategy and, when an engine runs in
// this process, its phase and run state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":      h.mode,
		"strategy":  h.strategy,
		"exchanges": h.exchanges,
	}
	if h.engine != nil {
		body["phase"] = h.engine.Phase()
		body["state"] = h.engine.State()
	}
	writeJSON(w, http.StatusOK, body)
}
