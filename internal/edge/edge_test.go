package edge

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitune/roomserver/internal/bridge"
	"github.com/infinitune/roomserver/internal/models"
	"github.com/infinitune/roomserver/internal/protocol"
	"github.com/infinitune/roomserver/internal/room"
	"github.com/infinitune/roomserver/internal/utils"
)

type fakeDirectory struct {
	keysByID map[string]string
	songs    map[string][]models.Song // by playlist key
	epochs   map[string]int
	syncs    int
}

func (f *fakeDirectory) SyncRoom(_ context.Context, playlistKey string, sink bridge.QueueSink) error {
	f.syncs++
	songs, ok := f.songs[playlistKey]
	if !ok {
		return fmt.Errorf("playlist %s not found", playlistKey)
	}
	sink.SetPlaylistID("pl-" + playlistKey)
	sink.UpdateQueue(songs, f.epochs[playlistKey])
	return nil
}

func (f *fakeDirectory) PlaylistKeyByID(_ context.Context, playlistID string) (string, error) {
	key, ok := f.keysByID[playlistID]
	if !ok {
		return "", fmt.Errorf("playlist %s not found", playlistID)
	}
	return key, nil
}

type noopStorage struct{}

func (noopStorage) MarkSongPlayed(string)                {}
func (noopStorage) SaveSongRating(string, models.Rating) {}

func newTestEdge(t *testing.T, dir *fakeDirectory) (*Edge, *room.Roster) {
	t.Helper()
	roster := room.NewRoster(noopStorage{}, room.Options{}, utils.NewNopLogger())
	e := New(roster, dir, Options{OutboundQueueMax: 64}, nil, utils.NewNopLogger())
	return e, roster
}

func newTestClient(e *Edge) *Client {
	return &Client{
		edge:   e,
		send:   make(chan []byte, e.queueMax),
		logger: utils.NewNopLogger(),
		done:   make(chan struct{}),
	}
}

// drain decodes every queued outbound frame into loose maps.
func drain(t *testing.T, c *Client) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for {
		select {
		case data := <-c.send:
			var frame map[string]any
			require.NoError(t, json.Unmarshal(data, &frame))
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func frameTypes(frames []map[string]any) []string {
	types := make([]string, 0, len(frames))
	for _, f := range frames {
		types = append(types, f["type"].(string))
	}
	return types
}

func join(deviceID string, extra map[string]any) []byte {
	msg := map[string]any{
		"type":       "join",
		"deviceId":   deviceID,
		"deviceName": "Device " + deviceID,
		"role":       "player",
	}
	for k, v := range extra {
		msg[k] = v
	}
	data, _ := json.Marshal(msg)
	return data
}

func TestJoinAutoCreatesRoom(t *testing.T) {
	dir := &fakeDirectory{
		songs:  map[string][]models.Song{"key-1": {{ID: "A", Status: models.StatusReady}}},
		epochs: map[string]int{"key-1": 2},
	}
	e, roster := newTestEdge(t, dir)
	c := newTestClient(e)

	c.handleMessage(join("dev-1", map[string]any{"roomId": "living", "playlistKey": "key-1", "roomName": "Living Room"}))

	frames := drain(t, c)
	require.Equal(t, []string{"joinAck", "state", "queue"}, frameTypes(frames))
	assert.Equal(t, "living", frames[0]["roomId"])
	assert.Equal(t, "pl-key-1", frames[0]["playlistId"])
	assert.Equal(t, float64(protocol.Version), frames[0]["protocolVersion"])

	r := roster.GetRoom("living")
	require.NotNil(t, r)
	assert.Equal(t, "Living Room", r.Name)
	assert.Equal(t, 1, dir.syncs, "new room is primed exactly once")
}

func TestJoinExistingRoomSkipsSync(t *testing.T) {
	dir := &fakeDirectory{
		songs:  map[string][]models.Song{"key-1": {}},
		epochs: map[string]int{"key-1": 1},
	}
	e, _ := newTestEdge(t, dir)

	first := newTestClient(e)
	first.handleMessage(join("dev-1", map[string]any{"roomId": "living", "playlistKey": "key-1"}))
	second := newTestClient(e)
	second.handleMessage(join("dev-2", map[string]any{"roomId": "living"}))

	assert.Equal(t, 1, dir.syncs)
	frames := drain(t, second)
	require.Equal(t, []string{"joinAck", "state", "queue"}, frameTypes(frames))
	devices := frames[1]["devices"].([]any)
	assert.Len(t, devices, 2)
}

func TestJoinByPlaylistID(t *testing.T) {
	dir := &fakeDirectory{
		keysByID: map[string]string{"pl-9": "key-9"},
		songs:    map[string][]models.Song{"key-9": {}},
		epochs:   map[string]int{"key-9": 1},
	}
	e, roster := newTestEdge(t, dir)
	c := newTestClient(e)

	c.handleMessage(join("dev-1", map[string]any{"playlistId": "pl-9"}))

	frames := drain(t, c)
	require.NotEmpty(t, frames)
	assert.Equal(t, "joinAck", frames[0]["type"])
	assert.NotNil(t, roster.GetByPlaylistKey("key-9"))
}

func TestJoinWithoutRoomOrPlaylistErrors(t *testing.T) {
	e, _ := newTestEdge(t, &fakeDirectory{})
	c := newTestClient(e)

	c.handleMessage(join("dev-1", map[string]any{"playlistKey": "key-1"}))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0]["type"])
}

func TestJoinUnknownRoomKeepsSocketOpen(t *testing.T) {
	e, _ := newTestEdge(t, &fakeDirectory{})
	c := newTestClient(e)

	c.handleMessage(join("dev-1", map[string]any{"roomId": "ghost"}))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0]["type"])
	assert.False(t, c.closed)
}

func TestJoinUnknownPlaylistKeyRollsBackRoom(t *testing.T) {
	e, roster := newTestEdge(t, &fakeDirectory{songs: map[string][]models.Song{}})
	c := newTestClient(e)

	c.handleMessage(join("dev-1", map[string]any{"roomId": "living", "playlistKey": "ghost"}))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0]["type"])
	assert.Nil(t, roster.GetRoom("living"), "a room that failed to prime is not left behind")
}

func TestJoinUnsupportedProtocolVersionCloses(t *testing.T) {
	e, _ := newTestEdge(t, &fakeDirectory{})
	c := newTestClient(e)

	c.handleMessage(join("dev-1", map[string]any{"roomId": "x", "protocolVersion": 99}))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0]["type"])
	assert.Contains(t, frames[0]["message"], "protocol version 99 not supported")
	assert.True(t, c.closed)
}

func TestJoinInvalidRoleRejected(t *testing.T) {
	e, _ := newTestEdge(t, &fakeDirectory{})
	c := newTestClient(e)

	c.handleMessage(join("dev-1", map[string]any{"roomId": "x", "role": "overlord"}))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0]["type"])
}

func TestInvalidJSONAnswersError(t *testing.T) {
	e, _ := newTestEdge(t, &fakeDirectory{})
	c := newTestClient(e)

	c.handleMessage([]byte("{nope"))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0]["type"])
	assert.False(t, c.closed, "malformed messages never close the socket")
}

func TestCommandBeforeJoinErrors(t *testing.T) {
	e, _ := newTestEdge(t, &fakeDirectory{})
	c := newTestClient(e)

	c.handleMessage([]byte(`{"type":"command","action":"play"}`))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0]["type"])
}

func TestUnknownMessageTypeErrors(t *testing.T) {
	e, _ := newTestEdge(t, &fakeDirectory{})
	c := newTestClient(e)

	c.handleMessage([]byte(`{"type":"teleport"}`))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Contains(t, frames[0]["message"], "teleport")
}

func TestPingBeforeJoinAnswersPong(t *testing.T) {
	e, _ := newTestEdge(t, &fakeDirectory{})
	c := newTestClient(e)

	c.handleMessage([]byte(`{"type":"ping","clientTime":123456}`))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "pong", frames[0]["type"])
	assert.Equal(t, float64(123456), frames[0]["clientTime"])
	assert.NotZero(t, frames[0]["serverTime"])
}

func TestPingWithZeroClientTimeIsValid(t *testing.T) {
	e, _ := newTestEdge(t, &fakeDirectory{})
	c := newTestClient(e)

	c.handleMessage([]byte(`{"type":"ping","clientTime":0}`))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "pong", frames[0]["type"])
	assert.Equal(t, float64(0), frames[0]["clientTime"])
}

func TestCommandRoutesIntoRoom(t *testing.T) {
	dir := &fakeDirectory{
		songs:  map[string][]models.Song{"key-1": {}},
		epochs: map[string]int{"key-1": 1},
	}
	e, _ := newTestEdge(t, dir)
	c := newTestClient(e)
	c.handleMessage(join("dev-1", map[string]any{"roomId": "living", "playlistKey": "key-1"}))
	drain(t, c)

	c.handleMessage([]byte(`{"type":"command","action":"play"}`))

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "execute", frames[0]["type"])
	assert.Equal(t, "play", frames[0]["action"])
	assert.Equal(t, "room", frames[0]["scope"])
}

func TestRejoinWithNewDeviceIDDropsOldBinding(t *testing.T) {
	dir := &fakeDirectory{
		songs:  map[string][]models.Song{"key-1": {}},
		epochs: map[string]int{"key-1": 1},
	}
	e, _ := newTestEdge(t, dir)
	c := newTestClient(e)
	c.handleMessage(join("dev-1", map[string]any{"roomId": "living", "playlistKey": "key-1"}))
	c.handleMessage(join("dev-2", map[string]any{"roomId": "living"}))
	drain(t, c)

	assert.Equal(t, "dev-2", c.deviceID)

	c.handleMessage([]byte(`{"type":"command","action":"play"}`))

	frames := drain(t, c)
	require.Len(t, frames, 1, "one socket gets each broadcast exactly once")
	assert.Equal(t, "execute", frames[0]["type"])
}

func TestLeaveRoomUnbinds(t *testing.T) {
	dir := &fakeDirectory{
		songs:  map[string][]models.Song{"key-1": {}},
		epochs: map[string]int{"key-1": 1},
	}
	e, roster := newTestEdge(t, dir)
	c := newTestClient(e)
	c.handleMessage(join("dev-1", map[string]any{"roomId": "living", "playlistKey": "key-1"}))
	drain(t, c)

	c.handleMessage([]byte(`{"type":"leaveRoom"}`))

	assert.Nil(t, c.room)
	info := roster.GetRoom("living").Info()
	assert.Zero(t, info.DeviceCount)

	c.handleMessage([]byte(`{"type":"command","action":"play"}`))
	frames := drain(t, c)
	require.NotEmpty(t, frames)
	assert.Equal(t, "error", frames[len(frames)-1]["type"])
}
