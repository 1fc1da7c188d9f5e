package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// LatestSource yields the most recent in-process iteration. *engine.Engine
// satisfies it.
type LatestSource interface {
	Last() (domain.IterationResult, bool)
}

// IterationHandler serves iteration results, preferring the live engine and
// falling back to the store.
type IterationHandler struct {
	live   LatestSource
	store  domain.IterationStore
	logger *slog.Logger
}

// NewIterationHandler creates an IterationHandler. Either source may be nil.
func NewIterationHandler(live LatestSource, store domain.IterationStore, logger *slog.Logger) *IterationHandler {
	return &IterationHandler{
		live:   live,
		store:  store,
		logger: logger.With(slog.String("handler", "iterations")),
	}
}

// Latest returns the most recent iteration result.
// GET /api/iterations/latest
func (h *IterationHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if h.live != nil {
		if res, ok := h.live.Last(); ok {
			writeJSON(w, http.StatusOK, res)
			return
		}
	}
	if h.store == nil {
		writeError(w, http.StatusNotFound, "no iteration yet")
		return
	}

	res, err := h.store.LatestIteration(r.Context())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "no iteration yet")
	case err != nil:
		h.logger.ErrorContext(r.Context(), "latest iteration failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load iteration")
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// RecentOpportunities lists stored opportunities, newest first. Without a
// store it returns the ranked list of the last in-process iteration.
// GET /api/opportunities/recent?limit=N
func (h *IterationHandler) RecentOpportunities(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)

	if h.store == nil {
		opps := []domain.Opportunity{}
		if h.live != nil {
			if res, ok := h.live.Last(); ok {
				opps = res.Ranked[:min(limit, len(res.Ranked))]
			}
		}
		writeJSON(w, http.StatusOK, opps)
		return
	}

	opps, err := h.store.ListRecentOpportunities(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "recent opportunities failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, opps)
}
