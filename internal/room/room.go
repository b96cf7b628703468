// Package room implements the per-playlist coordination context: the
// authoritative playback state, the device roster, the queue snapshot, and
// command interpretation.
package room

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/infinitune/roomserver/internal/models"
	"github.com/infinitune/roomserver/internal/protocol"
	"github.com/infinitune/roomserver/internal/selector"
	"github.com/infinitune/roomserver/internal/utils"
)

// Sender is the outbound half of a socket binding. Send must not block: it
// returns false when the peer's bounded queue is full, which the room treats
// as a socket close.
type Sender interface {
	Send(frame any) bool
	Close()
}

// StorageWriter is the narrow write-back surface the room needs from the sync
// bridge. Implementations must not block the caller; failures are logged and
// reconciled by the next queue refresh.
type StorageWriter interface {
	MarkSongPlayed(songID string)
	SaveSongRating(songID string, rating models.Rating)
}

// Options configures a room.
type Options struct {
	// GraceInterval is how long a device (and an empty room) persists after
	// its last socket closes.
	GraceInterval time.Duration
	// JoinLatencyBudget is the floor added to startAt on transitions.
	JoinLatencyBudget time.Duration
	// PingWindow is the number of recent ping samples kept per device for the
	// adaptive latency budget.
	PingWindow int
	// OnTransition, when set, is called after each next-song transition.
	// Used for metrics.
	OnTransition func()
}

// Room owns all state for one active playlist: playback, devices, sockets and
// the queue snapshot. Every mutation happens under the room's single lock;
// network I/O never does.
type Room struct {
	ID          string
	Name        string
	PlaylistKey string
	CreatedAt   time.Time

	mu            sync.Mutex
	playlistID    string
	playback      models.Playback
	devices       map[string]*models.Device
	senders       map[string]Sender
	queue         []models.Song
	playlistEpoch int
	lastPlayed    string // last song id written back as played
	emptySince    time.Time
	latency       map[string]*latencyWindow

	storage StorageWriter
	opts    Options
	logger  *utils.Logger
	now     func() time.Time
}

// New creates a room bound to a playlist key.
func New(id, name, playlistKey string, storage StorageWriter, opts Options, logger *utils.Logger) *Room {
	if opts.PingWindow <= 0 {
		opts.PingWindow = 5
	}
	now := time.Now()
	return &Room{
		ID:          id,
		Name:        name,
		PlaylistKey: playlistKey,
		CreatedAt:   now,
		playback:    models.NewPlayback(),
		devices:     make(map[string]*models.Device),
		senders:     make(map[string]Sender),
		latency:     make(map[string]*latencyWindow),
		emptySince:  now,
		storage:     storage,
		opts:        opts,
		logger:      logger.Named("room").With("roomId", id),
		now:         time.Now,
	}
}

// Join registers or updates the device and attaches its socket. The joining
// socket receives joinAck, then the current state and queue frames. Rejoining
// with a known deviceId replaces the socket binding without dropping the
// device or its override fields.
func (r *Room) Join(deviceID, name string, role models.DeviceRole, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[deviceID]
	if ok {
		dev.Name = name
		dev.Role = role
	} else {
		dev = &models.Device{
			ID:   deviceID,
			Name: name,
			Role: role,
			Mode: models.ModeDefault,
		}
		r.devices[deviceID] = dev
	}
	dev.LastSeen = r.now()

	if old, ok := r.senders[deviceID]; ok && old != sender {
		old.Close()
	}
	r.senders[deviceID] = sender
	r.emptySince = time.Time{}

	r.sendToLocked(deviceID, protocol.JoinAckFrame{
		Type:            protocol.FrameJoinAck,
		RoomID:          r.ID,
		PlaylistID:      r.playlistID,
		DeviceID:        deviceID,
		ProtocolVersion: protocol.Version,
	})
	// The roster changed for everyone; the joiner additionally needs the
	// queue snapshot.
	r.broadcastLocked(r.stateFrameLocked())
	r.sendToLocked(deviceID, r.queueFrameLocked())

	r.logger.Info("device joined", "deviceId", deviceID, "role", string(role))
}

// Leave detaches the device's socket. The device itself is retained for the
// grace interval so brief reconnects do not perturb the roster.
func (r *Room) Leave(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.senders, deviceID)
	if dev, ok := r.devices[deviceID]; ok {
		dev.LastSeen = r.now()
	}
	if len(r.senders) == 0 {
		r.emptySince = r.now()
	}
	r.logger.Debug("device left", "deviceId", deviceID)
}

// RemoveDevice drops a device entirely (explicit leaveRoom). The socket stays
// open; the client may join another room on the same connection.
func (r *Room) RemoveDevice(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.senders, deviceID)
	if _, ok := r.devices[deviceID]; !ok {
		return
	}
	delete(r.devices, deviceID)
	delete(r.latency, deviceID)
	if len(r.senders) == 0 {
		r.emptySince = r.now()
	}
	r.broadcastLocked(r.stateFrameLocked())
}

// HandleCommand interprets a command from a connected device and emits the
// resulting fan-out frames.
func (r *Room) HandleCommand(fromDeviceID, action string, payload *protocol.CommandPayload, targetDeviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked(fromDeviceID)

	switch action {
	case protocol.ActionPlay, protocol.ActionPause, protocol.ActionStop:
		// State is not mutated here; the authoritative player echoes the
		// outcome back via sync.
		r.broadcastPlayersLocked(executeRoom(action, nil))

	case protocol.ActionToggle:
		next := protocol.ActionPlay
		if r.playback.IsPlaying {
			next = protocol.ActionPause
		}
		r.broadcastPlayersLocked(executeRoom(next, nil))

	case protocol.ActionSkip:
		r.advanceLocked()

	case protocol.ActionSeek:
		if payload == nil || payload.Time == nil {
			r.errorToLocked(fromDeviceID, "seek requires payload.time")
			return
		}
		t := clampRange(*payload.Time, 0, r.playback.Duration)
		r.broadcastPlayersLocked(executeRoom(protocol.ActionSeek, &protocol.CommandPayload{Time: &t}))

	case protocol.ActionSetVolume:
		if payload == nil || payload.Volume == nil {
			r.errorToLocked(fromDeviceID, "setVolume requires payload.volume")
			return
		}
		vol := models.Clamp01(*payload.Volume)
		if targetDeviceID != "" {
			dev, ok := r.devices[targetDeviceID]
			if !ok {
				r.errorToLocked(fromDeviceID, fmt.Sprintf("unknown target device %q", targetDeviceID))
				return
			}
			dev.VolumeOverride = &vol
			r.sendToLocked(targetDeviceID, executeDevice(protocol.ActionSetVolume, &protocol.CommandPayload{Volume: &vol}))
			return
		}
		// Room scope supersedes every per-device override.
		r.playback.Volume = vol
		for _, dev := range r.devices {
			dev.VolumeOverride = nil
		}
		r.broadcastPlayersLocked(executeRoom(protocol.ActionSetVolume, &protocol.CommandPayload{Volume: &vol}))
		r.broadcastLocked(r.stateFrameLocked())

	case protocol.ActionToggleMute:
		r.playback.IsMuted = !r.playback.IsMuted
		r.broadcastPlayersLocked(executeRoom(protocol.ActionToggleMute, nil))
		r.broadcastLocked(r.stateFrameLocked())

	case protocol.ActionRate:
		if payload == nil || payload.SongID == "" || (payload.Rating != models.RatingUp && payload.Rating != models.RatingDown) {
			r.errorToLocked(fromDeviceID, "rate requires payload.songId and payload.rating of up|down")
			return
		}
		idx := r.songIndexLocked(payload.SongID)
		if idx < 0 {
			r.errorToLocked(fromDeviceID, fmt.Sprintf("unknown song %q", payload.SongID))
			return
		}
		r.queue[idx].Rating = payload.Rating
		r.storage.SaveSongRating(payload.SongID, payload.Rating)
		r.broadcastLocked(r.queueFrameLocked())

	case protocol.ActionSelectSong:
		if payload == nil || payload.SongID == "" {
			r.errorToLocked(fromDeviceID, "selectSong requires payload.songId")
			return
		}
		idx := r.songIndexLocked(payload.SongID)
		if idx < 0 {
			r.errorToLocked(fromDeviceID, fmt.Sprintf("unknown song %q", payload.SongID))
			return
		}
		s := r.queue[idx]
		if s.Status != models.StatusReady && s.Status != models.StatusPlayed {
			r.errorToLocked(fromDeviceID, fmt.Sprintf("song %q is not playable (status %s)", s.ID, s.Status))
			return
		}
		r.transitionToLocked(&s)

	case protocol.ActionResetToDefault:
		target := targetDeviceID
		if target == "" {
			target = fromDeviceID
		}
		dev, ok := r.devices[target]
		if !ok {
			r.errorToLocked(fromDeviceID, fmt.Sprintf("unknown target device %q", target))
			return
		}
		dev.VolumeOverride = nil
		vol := r.playback.Volume
		r.sendToLocked(target, executeRoom(protocol.ActionSetVolume, &protocol.CommandPayload{Volume: &vol}))

	case protocol.ActionSyncAll:
		// Re-align every player with the room state. Overrides are left in
		// place; the room-scope frames supersede them on the player side.
		vol := r.playback.Volume
		r.broadcastPlayersLocked(executeRoom(protocol.ActionSetVolume, &protocol.CommandPayload{Volume: &vol}))
		playState := protocol.ActionPause
		if r.playback.IsPlaying {
			playState = protocol.ActionPlay
		}
		r.broadcastPlayersLocked(executeRoom(playState, nil))

	default:
		r.errorToLocked(fromDeviceID, fmt.Sprintf("unknown action %q", action))
	}
}

// HandleSync accepts a player's ground-truth report. Only the authoritative
// player mutates playback; reports from anyone else update liveness only.
func (r *Room) HandleSync(deviceID string, currentSongID *string, isPlaying bool, currentTime, duration float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked(deviceID)

	if deviceID != r.authoritativePlayerLocked() {
		return
	}

	next := r.playback
	next.CurrentSongID = currentSongID
	next.IsPlaying = isPlaying
	next.Duration = duration
	next.CurrentTime = clampRange(currentTime, 0, duration)
	if next.CurrentSongID == nil {
		next.ClearSong()
	}

	if playbackEqual(next, r.playback) {
		return
	}
	r.playback = next
	r.broadcastLocked(r.stateFrameLocked())
}

// HandleSongEnded advances to the next track. Only the authoritative player's
// end-of-stream report is honored.
func (r *Room) HandleSongEnded(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked(deviceID)
	if deviceID != r.authoritativePlayerLocked() {
		return
	}
	r.advanceLocked()
}

// HandlePing answers a time-sync probe and records the sample for the
// adaptive join-latency budget.
func (r *Room) HandlePing(deviceID string, clientTime int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked(deviceID)
	serverTime := r.now().UnixMilli()

	w, ok := r.latency[deviceID]
	if !ok {
		w = newLatencyWindow(r.opts.PingWindow)
		r.latency[deviceID] = w
	}
	w.observe(serverTime - clientTime)

	r.sendToLocked(deviceID, protocol.PongFrame{
		Type:       protocol.FramePong,
		ClientTime: clientTime,
		ServerTime: serverTime,
	})
}

// SetRole changes the role of a device and broadcasts the new roster.
func (r *Room) SetRole(deviceID string, role models.DeviceRole) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[deviceID]
	if !ok {
		return
	}
	dev.Role = role
	dev.LastSeen = r.now()
	r.broadcastLocked(r.stateFrameLocked())
}

// RenameDevice changes a device's display name and broadcasts the new roster.
func (r *Room) RenameDevice(fromDeviceID, targetDeviceID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.touchLocked(fromDeviceID)
	dev, ok := r.devices[targetDeviceID]
	if !ok {
		r.errorToLocked(fromDeviceID, fmt.Sprintf("unknown target device %q", targetDeviceID))
		return
	}
	dev.Name = name
	r.broadcastLocked(r.stateFrameLocked())
}

// UpdateQueue replaces the queue snapshot. Called by the sync bridge whenever
// the playlist's songs or epoch change. If the current song disappeared or
// became unplayable, the room advances.
//
// The snapshot is copied: the bridge hands the same slice to every room bound
// to the playlist key, and each room mutates its own copy under its own lock.
func (r *Room) UpdateQueue(songs []models.Song, epoch int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.queue = slices.Clone(songs)
	r.playlistEpoch = epoch
	r.broadcastLocked(r.queueFrameLocked())

	if r.playback.CurrentSongID == nil {
		return
	}
	idx := r.songIndexLocked(*r.playback.CurrentSongID)
	if idx < 0 {
		r.advanceLocked()
		return
	}
	s := r.queue[idx]
	if s.Status != models.StatusReady && s.Status != models.StatusPlayed {
		r.advanceLocked()
	}
}

// SetPlaylistID records the playlist's internal id once the bridge resolves it.
func (r *Room) SetPlaylistID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playlistID = id
}

// advanceLocked runs the transition protocol from the current cursor.
func (r *Room) advanceLocked() {
	var currentID string
	var currentOrder *float64
	if r.playback.CurrentSongID != nil {
		currentID = *r.playback.CurrentSongID
		if idx := r.songIndexLocked(currentID); idx >= 0 {
			order := r.queue[idx].OrderIndex
			currentOrder = &order
		}
	}

	candidate := selector.PickNext(r.queue, currentID, r.playlistEpoch, currentOrder, false)
	if candidate == nil {
		if r.playback.CurrentSongID == nil && !r.playback.IsPlaying {
			// Nothing playing, nothing playable: no observable change.
			return
		}
		r.playback.ClearSong()
		r.broadcastLocked(r.stateFrameLocked())
		return
	}

	r.transitionToLocked(candidate)
}

// transitionToLocked moves playback onto the given track: marks the outgoing
// song played (once), schedules the synchronized start, and preloads the
// track after it.
func (r *Room) transitionToLocked(candidate *models.Song) {
	queueChanged := false
	if cur := r.playback.CurrentSongID; cur != nil && *cur != candidate.ID {
		queueChanged = r.markPlayedLocked(*cur)
	}

	r.playback.SetSong(candidate.ID, candidate.Duration)
	r.playback.IsPlaying = true

	startAt := r.now().Add(r.latencyBudgetLocked()).UnixMilli()
	r.broadcastPlayersLocked(protocol.NextSongFrame{
		Type:     protocol.FrameNextSong,
		SongID:   candidate.ID,
		AudioURL: candidate.AudioURL,
		StartAt:  &startAt,
	})
	r.broadcastLocked(r.stateFrameLocked())
	if queueChanged {
		r.broadcastLocked(r.queueFrameLocked())
	}

	next := selector.PickNext(r.queue, candidate.ID, r.playlistEpoch, &candidate.OrderIndex, false)
	if next != nil && next.Status == models.StatusReady {
		r.broadcastPlayersLocked(protocol.PreloadFrame{
			Type:     protocol.FramePreload,
			SongID:   next.ID,
			AudioURL: next.AudioURL,
		})
	}

	if r.opts.OnTransition != nil {
		r.opts.OnTransition()
	}
	r.logger.Info("transitioned", "songId", candidate.ID, "startAt", startAt)
}

// markPlayedLocked writes the played status back through the bridge, at most
// once per transition for a given song id. Reports whether the queue snapshot
// changed.
func (r *Room) markPlayedLocked(songID string) bool {
	if r.lastPlayed == songID {
		return false
	}
	changed := false
	idx := r.songIndexLocked(songID)
	if idx >= 0 {
		if r.queue[idx].Status == models.StatusPlayed {
			return false
		}
		r.queue[idx].Status = models.StatusPlayed
		changed = true
	}
	r.lastPlayed = songID
	r.storage.MarkSongPlayed(songID)
	return changed
}

// latencyBudgetLocked returns the configured floor raised by the worst jitter
// bound observed across live devices, capped at one second.
func (r *Room) latencyBudgetLocked() time.Duration {
	budget := r.opts.JoinLatencyBudget
	for deviceID := range r.senders {
		if w, ok := r.latency[deviceID]; ok {
			if est := w.jitterBound(); budget < r.opts.JoinLatencyBudget+est {
				budget = r.opts.JoinLatencyBudget + est
			}
		}
	}
	if budget > time.Second {
		budget = time.Second
	}
	return budget
}

// authoritativePlayerLocked returns the device id whose sync reports mutate
// playback: the lexicographically smallest connected player, or "" when no
// player is connected.
func (r *Room) authoritativePlayerLocked() string {
	best := ""
	for id := range r.senders {
		dev, ok := r.devices[id]
		if !ok || dev.Role != models.RolePlayer {
			continue
		}
		if best == "" || id < best {
			best = id
		}
	}
	return best
}

// AuthoritativePlayer exposes the designation for tests and diagnostics.
func (r *Room) AuthoritativePlayer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authoritativePlayerLocked()
}

// Snapshot returns the current playback tuple and the playing song record,
// for the REST surface.
func (r *Room) Snapshot() (models.Playback, *models.Song) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var current *models.Song
	if r.playback.CurrentSongID != nil {
		if idx := r.songIndexLocked(*r.playback.CurrentSongID); idx >= 0 {
			s := r.queue[idx]
			current = &s
		}
	}
	return r.playback, current
}

// Info returns the compact REST representation of the room.
func (r *Room) Info() models.RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.RoomInfo{
		ID:          r.ID,
		Name:        r.Name,
		PlaylistKey: r.PlaylistKey,
		DeviceCount: len(r.devices),
		SocketCount: len(r.senders),
		CreatedAt:   r.CreatedAt,
	}
}

// PruneDevices drops devices with no socket whose LastSeen is older than the
// cutoff. Broadcasts the new roster if anything changed.
func (r *Room) PruneDevices(cutoff time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for id, dev := range r.devices {
		if _, connected := r.senders[id]; connected {
			continue
		}
		if dev.LastSeen.Before(cutoff) {
			delete(r.devices, id)
			delete(r.latency, id)
			changed = true
		}
	}
	if changed {
		r.broadcastLocked(r.stateFrameLocked())
	}
}

// EmptySince reports whether the room has had no sockets continuously since
// before the cutoff.
func (r *Room) EmptySince(cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.senders) == 0 && !r.emptySince.IsZero() && r.emptySince.Before(cutoff)
}

// CloseAll detaches and closes every bound socket.
func (r *Room) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.senders {
		delete(r.senders, id)
		s.Close()
	}
	r.emptySince = r.now()
}

func (r *Room) counts() (devices, sockets int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices), len(r.senders)
}

func (r *Room) songIndexLocked(songID string) int {
	for i := range r.queue {
		if r.queue[i].ID == songID {
			return i
		}
	}
	return -1
}

func (r *Room) touchLocked(deviceID string) {
	if dev, ok := r.devices[deviceID]; ok {
		dev.LastSeen = r.now()
	}
}

func (r *Room) stateFrameLocked() protocol.StateFrame {
	devices := make([]models.Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, *d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })

	var current *models.Song
	if r.playback.CurrentSongID != nil {
		if idx := r.songIndexLocked(*r.playback.CurrentSongID); idx >= 0 {
			s := r.queue[idx]
			current = &s
		}
	}

	return protocol.StateFrame{
		Type:            protocol.FrameState,
		Playback:        r.playback,
		CurrentSong:     current,
		Devices:         devices,
		ProtocolVersion: protocol.Version,
	}
}

func (r *Room) queueFrameLocked() protocol.QueueFrame {
	songs := r.queue
	if songs == nil {
		songs = []models.Song{}
	}
	return protocol.QueueFrame{
		Type:   protocol.FrameQueue,
		Songs:  songs,
		NextUp: selector.FindGeneratingInterrupt(r.queue),
	}
}

// sendToLocked delivers a frame to one device's socket. A full outbound queue
// evicts the socket.
func (r *Room) sendToLocked(deviceID string, frame any) {
	s, ok := r.senders[deviceID]
	if !ok {
		return
	}
	if !s.Send(frame) {
		r.evictLocked(deviceID)
	}
}

// broadcastLocked fans a frame out to every bound socket.
func (r *Room) broadcastLocked(frame any) {
	var evict []string
	for id, s := range r.senders {
		if !s.Send(frame) {
			evict = append(evict, id)
		}
	}
	for _, id := range evict {
		r.evictLocked(id)
	}
}

// broadcastPlayersLocked fans a frame out to every connected player socket.
func (r *Room) broadcastPlayersLocked(frame any) {
	var evict []string
	for id, s := range r.senders {
		dev, ok := r.devices[id]
		if !ok || dev.Role != models.RolePlayer {
			continue
		}
		if !s.Send(frame) {
			evict = append(evict, id)
		}
	}
	for _, id := range evict {
		r.evictLocked(id)
	}
}

func (r *Room) errorToLocked(deviceID, message string) {
	r.sendToLocked(deviceID, protocol.NewError(message))
}

// evictLocked treats an overflowing socket as closed.
func (r *Room) evictLocked(deviceID string) {
	s, ok := r.senders[deviceID]
	if !ok {
		return
	}
	delete(r.senders, deviceID)
	s.Close()
	if dev, ok := r.devices[deviceID]; ok {
		dev.LastSeen = r.now()
	}
	if len(r.senders) == 0 {
		r.emptySince = r.now()
	}
	r.logger.Warn("socket evicted, outbound queue overflow", "deviceId", deviceID)
}

func executeRoom(action string, payload *protocol.CommandPayload) protocol.ExecuteFrame {
	return protocol.ExecuteFrame{Type: protocol.FrameExecute, Action: action, Payload: payload, Scope: protocol.ScopeRoom}
}

func executeDevice(action string, payload *protocol.CommandPayload) protocol.ExecuteFrame {
	return protocol.ExecuteFrame{Type: protocol.FrameExecute, Action: action, Payload: payload, Scope: protocol.ScopeDevice}
}

// playbackEqual compares two playback tuples by value, dereferencing the
// song id pointers.
func playbackEqual(a, b models.Playback) bool {
	if (a.CurrentSongID == nil) != (b.CurrentSongID == nil) {
		return false
	}
	if a.CurrentSongID != nil && *a.CurrentSongID != *b.CurrentSongID {
		return false
	}
	return a.IsPlaying == b.IsPlaying &&
		a.CurrentTime == b.CurrentTime &&
		a.Duration == b.Duration &&
		a.Volume == b.Volume &&
		a.IsMuted == b.IsMuted
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if hi >= lo && v > hi {
		return hi
	}
	return v
}
