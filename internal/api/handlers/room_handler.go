// Package handlers contains HTTP handlers for the control-plane API.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/infinitune/roomserver/internal/edge"
	"github.com/infinitune/roomserver/internal/room"
	"github.com/infinitune/roomserver/internal/utils"
)

// RoomHandler serves the room control-plane routes.
type RoomHandler struct {
	roster    *room.Roster
	directory edge.Directory
	logger    *utils.Logger
}

// NewRoomHandler creates a new room handler.
func NewRoomHandler(roster *room.Roster, directory edge.Directory, logger *utils.Logger) *RoomHandler {
	return &RoomHandler{
		roster:    roster,
		directory: directory,
		logger:    logger.Named("room_handler"),
	}
}

// createRoomRequest is the POST /rooms body.
type createRoomRequest struct {
	ID          string `json:"id" validate:"omitempty,max=100"`
	Name        string `json:"name" validate:"required,max=100"`
	PlaylistKey string `json:"playlistKey" validate:"required,max=200"`
}

// ListRooms handles GET /rooms.
func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Data:    h.roster.ListRooms(),
	})
}

// CreateRoom handles POST /rooms. Creation is idempotent on the room id.
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.RespondWithValidationError(w, err)
		return
	}

	if req.ID != "" {
		if existing := h.roster.GetRoom(req.ID); existing != nil {
			utils.RespondWithJSON(w, http.StatusOK, utils.APIResponse{Success: true, Data: existing.Info()})
			return
		}
	}

	created := h.roster.CreateRoom(req.ID, req.Name, req.PlaylistKey)
	if err := h.directory.SyncRoom(r.Context(), req.PlaylistKey, created); err != nil {
		h.roster.RemoveRoom(created.ID)
		utils.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("unknown playlist key %q", req.PlaylistKey))
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, utils.APIResponse{Success: true, Data: created.Info()})
}

// DeleteRoom handles DELETE /rooms/{id}.
func (h *RoomHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.roster.RemoveRoom(id) {
		utils.RespondWithError(w, http.StatusNotFound, "Room not found")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.APIResponse{Success: true})
}

// nowPlayingResponse is shaped for status-bar integrations.
type nowPlayingResponse struct {
	Text     string `json:"text"`
	Tooltip  string `json:"tooltip"`
	Class    string `json:"class"`
	Song     any    `json:"song"`
	Playback any    `json:"playback"`
	Room     any    `json:"room"`
}

// NowPlaying handles GET /now-playing?room=<id>.
func (h *RoomHandler) NowPlaying(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "room query parameter is required")
		return
	}
	target := h.roster.GetRoom(roomID)
	if target == nil {
		utils.RespondWithError(w, http.StatusNotFound, "Room not found")
		return
	}

	playback, song := target.Snapshot()

	resp := nowPlayingResponse{
		Class:    "stopped",
		Playback: playback,
		Room:     target.Info(),
	}
	if song != nil {
		resp.Song = song
		resp.Text = song.Title
		if song.Artist != "" {
			resp.Text = fmt.Sprintf("%s - %s", song.Artist, song.Title)
		}
		resp.Tooltip = fmt.Sprintf("%s (%s)", resp.Text, target.Name)
		if playback.IsPlaying {
			resp.Class = "playing"
		} else {
			resp.Class = "paused"
		}
	}

	utils.RespondWithJSON(w, http.StatusOK, resp)
}
