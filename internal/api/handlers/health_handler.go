package handlers

import (
	"net/http"

	"github.com/infinitune/roomserver/internal/room"
	"github.com/infinitune/roomserver/internal/utils"
)

// HealthHandler serves liveness checks.
type HealthHandler struct {
	roster *room.Roster
	logger *utils.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(roster *room.Roster, logger *utils.Logger) *HealthHandler {
	return &HealthHandler{
		roster: roster,
		logger: logger.Named("health_handler"),
	}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	rooms, _, _ := h.roster.Counts()
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rooms":  rooms,
	})
}
