// Package bridge connects rooms to the outside world: it consumes
// invalidation events, refetches queue state from storage and pushes it into
// the owning rooms, and carries the rooms' write-backs to storage.
package bridge

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/infinitune/roomserver/internal/models"
	"github.com/infinitune/roomserver/internal/room"
	"github.com/infinitune/roomserver/internal/utils"
)

// Store is the storage surface the bridge consumes.
type Store interface {
	GetPlaylistByKey(ctx context.Context, key string) (*models.Playlist, error)
	GetPlaylist(ctx context.Context, id string) (*models.Playlist, error)
	GetSongQueue(ctx context.Context, playlistID string) ([]models.Song, error)
	UpdateSongStatus(ctx context.Context, songID string, status models.SongStatus) error
	UpdateSongRating(ctx context.Context, songID string, rating models.Rating) error
}

// QueueSink is the narrow push surface a room exposes to the bridge.
type QueueSink interface {
	UpdateQueue(songs []models.Song, epoch int)
	SetPlaylistID(id string)
}

// SinkIndex locates the sinks interested in a playlist key.
type SinkIndex interface {
	SinksByPlaylistKey(key string) []QueueSink
	ActivePlaylistKeys() []string
}

// Bridge resolves playlist key to id, fans queue refreshes out to rooms and
// writes terminal song state back. Both caches are write-through and never
// invalidated: a playlist's key and id are immutable.
type Bridge struct {
	store   Store
	sinks   SinkIndex
	logger  *utils.Logger
	timeout time.Duration

	mu      sync.RWMutex
	keyToID map[string]string
	idToKey map[string]string
}

// New creates a bridge. timeout bounds each storage call.
func New(store Store, sinks SinkIndex, timeout time.Duration, logger *utils.Logger) *Bridge {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bridge{
		store:   store,
		sinks:   sinks,
		logger:  logger.Named("bridge"),
		timeout: timeout,
		keyToID: make(map[string]string),
		idToKey: make(map[string]string),
	}
}

// BindSinks attaches the sink index. The roster needs the bridge as its
// storage writer before the bridge can index the roster's rooms, so the
// index arrives in a second wiring step. Must be called before the event
// consumer starts.
func (b *Bridge) BindSinks(sinks SinkIndex) {
	b.sinks = sinks
}

// HandleBusEvent routes one invalidation event. Only the routing key is
// interpreted; bodies are opaque.
func (b *Bridge) HandleBusEvent(ctx context.Context, routingKey string, _ []byte) {
	if b.sinks == nil {
		return
	}
	switch {
	case strings.HasPrefix(routingKey, "songs."):
		playlistID := strings.TrimPrefix(routingKey, "songs.")
		b.refreshByID(ctx, playlistID)
	case routingKey == "playlists":
		// A playlist row changed (possibly its promptEpoch); refresh every
		// active key since the event does not say which row.
		for _, key := range b.sinks.ActivePlaylistKeys() {
			if err := b.refreshByKey(ctx, key); err != nil {
				b.logger.Warn("playlist refresh failed", "playlistKey", key, "err", err)
			}
		}
	default:
		// settings and anything newer than us.
	}
}

// SyncRoom primes a single room on its first join: resolves the playlist key,
// records the binding in both caches and pushes the initial queue snapshot.
func (b *Bridge) SyncRoom(ctx context.Context, playlistKey string, sink QueueSink) error {
	id, ok := b.lookupID(playlistKey)
	if !ok {
		cctx, cancel := context.WithTimeout(ctx, b.timeout)
		pl, err := b.store.GetPlaylistByKey(cctx, playlistKey)
		cancel()
		if err != nil {
			return err
		}
		if pl == nil {
			return utils.NotFoundError("playlist "+playlistKey+" not found", nil)
		}
		id = pl.ID
		b.remember(playlistKey, id)

		sink.SetPlaylistID(id)
		return b.pushQueue(ctx, pl, []QueueSink{sink})
	}

	sink.SetPlaylistID(id)
	pl, err := b.fetchPlaylist(ctx, id)
	if err != nil {
		return err
	}
	return b.pushQueue(ctx, pl, []QueueSink{sink})
}

// MarkSongPlayed writes the played status back asynchronously. Errors are
// logged and swallowed; the next queue refresh reconciles.
func (b *Bridge) MarkSongPlayed(songID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		if err := b.store.UpdateSongStatus(ctx, songID, models.StatusPlayed); err != nil {
			b.logger.Warn("played write-back failed", "songId", songID, "err", err)
		}
	}()
}

// SaveSongRating persists a rating asynchronously, same failure contract as
// MarkSongPlayed.
func (b *Bridge) SaveSongRating(songID string, rating models.Rating) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		if err := b.store.UpdateSongRating(ctx, songID, rating); err != nil {
			b.logger.Warn("rating write-back failed", "songId", songID, "err", err)
		}
	}()
}

// PlaylistKeyByID resolves a playlist id to its key, through the cache.
func (b *Bridge) PlaylistKeyByID(ctx context.Context, playlistID string) (string, error) {
	if key, ok := b.lookupKey(playlistID); ok {
		return key, nil
	}
	pl, err := b.fetchPlaylist(ctx, playlistID)
	if err != nil {
		return "", err
	}
	b.remember(pl.Key, pl.ID)
	return pl.Key, nil
}

// refreshByID handles a songs.<playlistId> event.
func (b *Bridge) refreshByID(ctx context.Context, playlistID string) {
	key, ok := b.lookupKey(playlistID)
	if !ok {
		pl, err := b.fetchPlaylist(ctx, playlistID)
		if err != nil {
			b.logger.Warn("playlist lookup failed", "playlistId", playlistID, "err", err)
			return
		}
		key = pl.Key
		b.remember(key, playlistID)
	}

	sinks := b.sinks.SinksByPlaylistKey(key)
	if len(sinks) == 0 {
		return
	}
	pl, err := b.fetchPlaylist(ctx, playlistID)
	if err != nil {
		b.logger.Warn("queue refresh failed", "playlistId", playlistID, "err", err)
		return
	}
	if err := b.pushQueue(ctx, pl, sinks); err != nil {
		b.logger.Warn("queue refresh failed", "playlistId", playlistID, "err", err)
	}
}

func (b *Bridge) refreshByKey(ctx context.Context, key string) error {
	sinks := b.sinks.SinksByPlaylistKey(key)
	if len(sinks) == 0 {
		return nil
	}

	id, ok := b.lookupID(key)
	if !ok {
		cctx, cancel := context.WithTimeout(ctx, b.timeout)
		pl, err := b.store.GetPlaylistByKey(cctx, key)
		cancel()
		if err != nil {
			return err
		}
		if pl == nil {
			return utils.NotFoundError("playlist "+key+" not found", nil)
		}
		id = pl.ID
		b.remember(key, id)
		return b.pushQueue(ctx, pl, sinks)
	}

	pl, err := b.fetchPlaylist(ctx, id)
	if err != nil {
		return err
	}
	return b.pushQueue(ctx, pl, sinks)
}

// pushQueue fetches the song queue once and fans it out.
func (b *Bridge) pushQueue(ctx context.Context, pl *models.Playlist, sinks []QueueSink) error {
	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	songs, err := b.store.GetSongQueue(cctx, pl.ID)
	cancel()
	if err != nil {
		return err
	}
	for _, sink := range sinks {
		sink.UpdateQueue(songs, pl.PromptEpoch)
	}
	return nil
}

func (b *Bridge) fetchPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	pl, err := b.store.GetPlaylist(cctx, id)
	if err != nil {
		return nil, err
	}
	if pl == nil {
		return nil, utils.NotFoundError("playlist "+id+" not found", nil)
	}
	return pl, nil
}

func (b *Bridge) lookupID(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.keyToID[key]
	return id, ok
}

func (b *Bridge) lookupKey(id string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	key, ok := b.idToKey[id]
	return key, ok
}

func (b *Bridge) remember(key, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keyToID[key] = id
	b.idToKey[id] = key
}

// RosterIndex adapts the room roster to the bridge's sink index.
func RosterIndex(ro *room.Roster) SinkIndex {
	return rosterIndex{ro}
}

type rosterIndex struct {
	roster *room.Roster
}

func (ri rosterIndex) SinksByPlaylistKey(key string) []QueueSink {
	rooms := ri.roster.RoomsByPlaylistKey(key)
	sinks := make([]QueueSink, 0, len(rooms))
	for _, r := range rooms {
		sinks = append(sinks, r)
	}
	return sinks
}

func (ri rosterIndex) ActivePlaylistKeys() []string {
	return ri.roster.ActivePlaylistKeys()
}
