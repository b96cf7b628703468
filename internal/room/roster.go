package room

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/infinitune/roomserver/internal/models"
	"github.com/infinitune/roomserver/internal/utils"
)

// Roster is the registry of active rooms, indexed by room id and by playlist
// key. It owns room lifecycle: idempotent creation, lookup and grace-interval
// garbage collection.
type Roster struct {
	mu    sync.RWMutex
	byID  map[string]*Room
	byKey map[string]map[string]*Room

	storage StorageWriter
	opts    Options
	logger  *utils.Logger
	now     func() time.Time
}

// NewRoster creates an empty roster.
func NewRoster(storage StorageWriter, opts Options, logger *utils.Logger) *Roster {
	return &Roster{
		byID:    make(map[string]*Room),
		byKey:   make(map[string]map[string]*Room),
		storage: storage,
		opts:    opts,
		logger:  logger.Named("roster"),
		now:     time.Now,
	}
}

// CreateRoom creates a room, or returns the existing one when the id is
// already in use. An empty id gets a generated one. Creation is idempotent so
// concurrent creates against the same id converge on one room.
func (ro *Roster) CreateRoom(id, name, playlistKey string) *Room {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	if id != "" {
		if r, ok := ro.byID[id]; ok {
			return r
		}
	} else {
		id = uuid.NewString()
	}

	r := New(id, name, playlistKey, ro.storage, ro.opts, ro.logger)
	ro.byID[r.ID] = r
	if ro.byKey[playlistKey] == nil {
		ro.byKey[playlistKey] = make(map[string]*Room)
	}
	ro.byKey[playlistKey][r.ID] = r

	ro.logger.Info("room created", "roomId", r.ID, "playlistKey", playlistKey)
	return r
}

// GetRoom returns the room with the given id, or nil.
func (ro *Roster) GetRoom(id string) *Room {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	return ro.byID[id]
}

// GetByPlaylistKey returns any active room bound to the key, or nil.
func (ro *Roster) GetByPlaylistKey(key string) *Room {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	for _, r := range ro.byKey[key] {
		return r
	}
	return nil
}

// RoomsByPlaylistKey returns every active room bound to the key.
func (ro *Roster) RoomsByPlaylistKey(key string) []*Room {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	rooms := make([]*Room, 0, len(ro.byKey[key]))
	for _, r := range ro.byKey[key] {
		rooms = append(rooms, r)
	}
	return rooms
}

// ActivePlaylistKeys returns the playlist keys with at least one active room.
func (ro *Roster) ActivePlaylistKeys() []string {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	keys := make([]string, 0, len(ro.byKey))
	for k, rooms := range ro.byKey {
		if len(rooms) > 0 {
			keys = append(keys, k)
		}
	}
	return keys
}

// ListRooms returns a snapshot of every active room.
func (ro *Roster) ListRooms() []models.RoomInfo {
	ro.mu.RLock()
	rooms := make([]*Room, 0, len(ro.byID))
	for _, r := range ro.byID {
		rooms = append(rooms, r)
	}
	ro.mu.RUnlock()

	infos := make([]models.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		infos = append(infos, r.Info())
	}
	return infos
}

// RemoveRoom drops a room immediately, closing every bound socket.
func (ro *Roster) RemoveRoom(id string) bool {
	ro.mu.Lock()
	r, ok := ro.byID[id]
	if ok {
		delete(ro.byID, id)
		delete(ro.byKey[r.PlaylistKey], id)
		if len(ro.byKey[r.PlaylistKey]) == 0 {
			delete(ro.byKey, r.PlaylistKey)
		}
	}
	ro.mu.Unlock()

	if !ok {
		return false
	}
	r.CloseAll()
	ro.logger.Info("room removed", "roomId", id)
	return true
}

// Run garbage-collects on the grace interval until the context is cancelled:
// stale devices are pruned from their rooms, and rooms that have been empty
// past the grace interval are dropped.
func (ro *Roster) Run(ctx context.Context) {
	interval := ro.opts.GraceInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ro.collect()
		}
	}
}

func (ro *Roster) collect() {
	cutoff := ro.now().Add(-ro.opts.GraceInterval)

	ro.mu.Lock()
	var expired []*Room
	for id, r := range ro.byID {
		r.PruneDevices(cutoff)
		if r.EmptySince(cutoff) {
			delete(ro.byID, id)
			delete(ro.byKey[r.PlaylistKey], id)
			if len(ro.byKey[r.PlaylistKey]) == 0 {
				delete(ro.byKey, r.PlaylistKey)
			}
			expired = append(expired, r)
		}
	}
	ro.mu.Unlock()

	for _, r := range expired {
		ro.logger.Info("room expired", "roomId", r.ID, "playlistKey", r.PlaylistKey)
	}
}

// Counts returns totals across all rooms for metrics scraping.
func (ro *Roster) Counts() (rooms, devices, sockets int) {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	rooms = len(ro.byID)
	for _, r := range ro.byID {
		d, s := r.counts()
		devices += d
		sockets += s
	}
	return rooms, devices, sockets
}
