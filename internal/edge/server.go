package edge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/infinitune/roomserver/internal/bridge"
	"github.com/infinitune/roomserver/internal/metrics"
	"github.com/infinitune/roomserver/internal/protocol"
	"github.com/infinitune/roomserver/internal/room"
	"github.com/infinitune/roomserver/internal/utils"
)

// Directory resolves playlists and primes newly created rooms with their
// queue snapshot.
type Directory interface {
	SyncRoom(ctx context.Context, playlistKey string, sink bridge.QueueSink) error
	PlaylistKeyByID(ctx context.Context, playlistID string) (string, error)
}

// Options configures the edge.
type Options struct {
	// OutboundQueueMax is the per-socket outbound queue size.
	OutboundQueueMax int

	// AllowedOrigins restricts WebSocket origins. Empty allows all.
	AllowedOrigins []string
}

// Edge accepts WebSocket connections and routes them into rooms.
type Edge struct {
	roster    *room.Roster
	directory Directory
	upgrader  websocket.Upgrader
	queueMax  int
	metrics   *metrics.Metrics
	logger    *utils.Logger
}

// New creates the edge. metrics may be nil.
func New(roster *room.Roster, directory Directory, opts Options, m *metrics.Metrics, logger *utils.Logger) *Edge {
	if opts.OutboundQueueMax <= 0 {
		opts.OutboundQueueMax = 256
	}
	e := &Edge{
		roster:    roster,
		directory: directory,
		queueMax:  opts.OutboundQueueMax,
		metrics:   m,
		logger:    logger.Named("edge"),
	}
	e.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(opts.AllowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || lo.Contains(opts.AllowedOrigins, origin)
		},
	}
	return e
}

// HandleWebSocket upgrades the connection and starts the client pumps.
func (e *Edge) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Warn("WebSocket upgrade failed", "err", err.Error())
		return
	}
	e.metrics.ConnectionOpened()

	client := newClient(e, conn)
	go client.writePump()
	go client.readPump()
}

// resolveRoom locates the join target, auto-creating a room when the playlist
// is known but no room exists yet. Protocol errors stay on the edge; rooms
// only ever see valid bindings.
func (e *Edge) resolveRoom(ctx context.Context, msg protocol.JoinMessage) (*room.Room, error) {
	if msg.RoomID != "" {
		if r := e.roster.GetRoom(msg.RoomID); r != nil {
			return r, nil
		}
	}

	key := msg.PlaylistKey
	if key == "" && msg.PlaylistID != "" {
		resolved, err := e.directory.PlaylistKeyByID(ctx, msg.PlaylistID)
		if err != nil {
			return nil, fmt.Errorf("unknown playlist %q", msg.PlaylistID)
		}
		key = resolved
	}
	if key == "" {
		return nil, fmt.Errorf("unknown room %q", msg.RoomID)
	}

	if r := e.roster.GetByPlaylistKey(key); r != nil {
		return r, nil
	}

	name := msg.RoomName
	if name == "" {
		name = key
	}
	r := e.roster.CreateRoom(msg.RoomID, name, key)
	if err := e.directory.SyncRoom(ctx, key, r); err != nil {
		e.roster.RemoveRoom(r.ID)
		return nil, fmt.Errorf("unknown playlist key %q", key)
	}
	return r, nil
}
