package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitune/roomserver/internal/bridge"
	"github.com/infinitune/roomserver/internal/models"
	"github.com/infinitune/roomserver/internal/protocol"
	"github.com/infinitune/roomserver/internal/room"
	"github.com/infinitune/roomserver/internal/utils"
)

type fakeDirectory struct {
	songs map[string][]models.Song // by playlist key
	syncs int
}

func (f *fakeDirectory) SyncRoom(_ context.Context, playlistKey string, sink bridge.QueueSink) error {
	f.syncs++
	songs, ok := f.songs[playlistKey]
	if !ok {
		return fmt.Errorf("playlist %s not found", playlistKey)
	}
	sink.SetPlaylistID("pl-" + playlistKey)
	sink.UpdateQueue(songs, 1)
	return nil
}

func (f *fakeDirectory) PlaylistKeyByID(_ context.Context, playlistID string) (string, error) {
	return "", fmt.Errorf("playlist %s not found", playlistID)
}

type noopStorage struct{}

func (noopStorage) MarkSongPlayed(string)                {}
func (noopStorage) SaveSongRating(string, models.Rating) {}

type noopSender struct{}

func (noopSender) Send(any) bool { return true }
func (noopSender) Close()        {}

func newTestRouter(dir *fakeDirectory) (*chi.Mux, *room.Roster) {
	roster := room.NewRoster(noopStorage{}, room.Options{}, utils.NewNopLogger())
	h := NewRoomHandler(roster, dir, utils.NewNopLogger())

	r := chi.NewRouter()
	r.Get("/rooms", h.ListRooms)
	r.Post("/rooms", h.CreateRoom)
	r.Delete("/rooms/{id}", h.DeleteRoom)
	r.Get("/now-playing", h.NowPlaying)
	return r, roster
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestCreateRoom(t *testing.T) {
	dir := &fakeDirectory{songs: map[string][]models.Song{"key-1": {}}}
	router, roster := newTestRouter(dir)

	rec, body := doJSON(t, router, "POST", "/rooms", `{"id":"living","name":"Living Room","playlistKey":"key-1"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "living", data["id"])
	assert.Equal(t, "Living Room", data["name"])
	require.NotNil(t, roster.GetRoom("living"))
	assert.Equal(t, 1, dir.syncs)
}

func TestCreateRoomIdempotentOnID(t *testing.T) {
	dir := &fakeDirectory{songs: map[string][]models.Song{"key-1": {}}}
	router, _ := newTestRouter(dir)

	rec, _ := doJSON(t, router, "POST", "/rooms", `{"id":"living","name":"Living Room","playlistKey":"key-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := doJSON(t, router, "POST", "/rooms", `{"id":"living","name":"Renamed","playlistKey":"key-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Living Room", data["name"], "the existing room wins")
	assert.Equal(t, 1, dir.syncs, "an existing room is not re-primed")
}

func TestCreateRoomUnknownPlaylistKeyRollsBack(t *testing.T) {
	dir := &fakeDirectory{songs: map[string][]models.Song{}}
	router, roster := newTestRouter(dir)

	rec, _ := doJSON(t, router, "POST", "/rooms", `{"id":"living","name":"Living Room","playlistKey":"ghost"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, roster.GetRoom("living"))
}

func TestCreateRoomValidation(t *testing.T) {
	router, _ := newTestRouter(&fakeDirectory{})

	rec, _ := doJSON(t, router, "POST", "/rooms", `{"name":"No Key"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, router, "POST", "/rooms", `{nope`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRooms(t *testing.T) {
	dir := &fakeDirectory{songs: map[string][]models.Song{"key-1": {}}}
	router, _ := newTestRouter(dir)

	_, _ = doJSON(t, router, "POST", "/rooms", `{"id":"a","name":"A","playlistKey":"key-1"}`)
	_, _ = doJSON(t, router, "POST", "/rooms", `{"id":"b","name":"B","playlistKey":"key-1"}`)

	rec, body := doJSON(t, router, "GET", "/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"].([]any), 2)
}

func TestDeleteRoom(t *testing.T) {
	dir := &fakeDirectory{songs: map[string][]models.Song{"key-1": {}}}
	router, roster := newTestRouter(dir)
	_, _ = doJSON(t, router, "POST", "/rooms", `{"id":"living","name":"A","playlistKey":"key-1"}`)

	rec, _ := doJSON(t, router, "DELETE", "/rooms/living", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, roster.GetRoom("living"))

	rec, _ = doJSON(t, router, "DELETE", "/rooms/living", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNowPlayingStopped(t *testing.T) {
	dir := &fakeDirectory{songs: map[string][]models.Song{"key-1": {}}}
	router, _ := newTestRouter(dir)
	_, _ = doJSON(t, router, "POST", "/rooms", `{"id":"living","name":"A","playlistKey":"key-1"}`)

	rec, body := doJSON(t, router, "GET", "/now-playing?room=living", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stopped", body["class"])
	assert.Empty(t, body["text"])
}

func TestNowPlayingCurrentSong(t *testing.T) {
	dir := &fakeDirectory{songs: map[string][]models.Song{"key-1": {
		{ID: "s1", Status: models.StatusReady, Title: "Neon Nights", Artist: "The Coils", Duration: 180},
	}}}
	router, roster := newTestRouter(dir)
	_, _ = doJSON(t, router, "POST", "/rooms", `{"id":"living","name":"Living Room","playlistKey":"key-1"}`)

	target := roster.GetRoom("living")
	target.Join("dev-1", "Speaker", models.RolePlayer, noopSender{})
	target.HandleCommand("dev-1", "selectSong", &protocol.CommandPayload{SongID: "s1"}, "")

	rec, body := doJSON(t, router, "GET", "/now-playing?room=living", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "playing", body["class"])
	assert.Equal(t, "The Coils - Neon Nights", body["text"])
	assert.Equal(t, "The Coils - Neon Nights (Living Room)", body["tooltip"])
}

func TestNowPlayingErrors(t *testing.T) {
	router, _ := newTestRouter(&fakeDirectory{})

	rec, _ := doJSON(t, router, "GET", "/now-playing", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, router, "GET", "/now-playing?room=ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	roster := room.NewRoster(noopStorage{}, room.Options{}, utils.NewNopLogger())
	h := NewHealthHandler(roster, utils.NewNopLogger())

	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestOpenAPIDocument(t *testing.T) {
	h := NewOpenAPIHandler()

	rec := httptest.NewRecorder()
	h.Document(rec, httptest.NewRequest("GET", "/openapi.json", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
}
