// Package protocol defines the WebSocket wire protocol: one UTF-8 JSON object
// per message, tagged by a "type" field, in both directions.
package protocol

import (
	"github.com/infinitune/roomserver/internal/models"
)

// Version is the server's native protocol version.
const Version = 1

// Client-to-server message types.
const (
	MsgJoin         = "join"
	MsgCommand      = "command"
	MsgSync         = "sync"
	MsgSetRole      = "setRole"
	MsgSongEnded    = "songEnded"
	MsgRenameDevice = "renameDevice"
	MsgPing         = "ping"
	MsgLeaveRoom    = "leaveRoom"
)

// Server-to-client frame types.
const (
	FrameJoinAck  = "joinAck"
	FrameState    = "state"
	FrameQueue    = "queue"
	FrameExecute  = "execute"
	FrameNextSong = "nextSong"
	FramePreload  = "preload"
	FramePong     = "pong"
	FrameError    = "error"
)

// Command actions.
const (
	ActionPlay           = "play"
	ActionPause          = "pause"
	ActionStop           = "stop"
	ActionToggle         = "toggle"
	ActionSkip           = "skip"
	ActionSeek           = "seek"
	ActionSetVolume      = "setVolume"
	ActionToggleMute     = "toggleMute"
	ActionRate           = "rate"
	ActionSelectSong     = "selectSong"
	ActionResetToDefault = "resetToDefault"
	ActionSyncAll        = "syncAll"
)

// Command scopes.
const (
	ScopeRoom   = "room"
	ScopeDevice = "device"
)

// Envelope carries only the type tag, enough to route a raw message.
type Envelope struct {
	Type string `json:"type" validate:"required"`
}

// JoinMessage binds a socket to a room as a device. At least one of RoomID or
// PlaylistID must be present. If the room does not exist and PlaylistKey is
// provided, the edge auto-creates it.
type JoinMessage struct {
	Type            string `json:"type"`
	RoomID          string `json:"roomId,omitempty"`
	PlaylistID      string `json:"playlistId,omitempty"`
	DeviceID        string `json:"deviceId" validate:"required"`
	DeviceName      string `json:"deviceName" validate:"required"`
	Role            string `json:"role" validate:"required,oneof=player controller"`
	PlaylistKey     string `json:"playlistKey,omitempty"`
	RoomName        string `json:"roomName,omitempty"`
	ProtocolVersion int    `json:"protocolVersion,omitempty" validate:"min=0"`
}

// CommandPayload carries the per-action command arguments. Which fields are
// meaningful depends on the action.
type CommandPayload struct {
	// Time is the seek target in seconds.
	Time *float64 `json:"time,omitempty"`
	// Volume is a volume level in [0,1].
	Volume *float64 `json:"volume,omitempty"`
	// SongID targets a song for rate/selectSong.
	SongID string `json:"songId,omitempty"`
	// Rating is up or down.
	Rating models.Rating `json:"rating,omitempty"`
}

// CommandMessage is a room- or device-scoped command.
type CommandMessage struct {
	Type           string          `json:"type"`
	Action         string          `json:"action" validate:"required"`
	Payload        *CommandPayload `json:"payload,omitempty"`
	TargetDeviceID string          `json:"targetDeviceId,omitempty"`
}

// SyncMessage is a player's ground-truth playback report.
type SyncMessage struct {
	Type          string  `json:"type"`
	CurrentSongID *string `json:"currentSongId"`
	IsPlaying     bool    `json:"isPlaying"`
	CurrentTime   float64 `json:"currentTime" validate:"min=0"`
	Duration      float64 `json:"duration" validate:"min=0"`
}

// SetRoleMessage changes the role of the sending device.
type SetRoleMessage struct {
	Type string `json:"type"`
	Role string `json:"role" validate:"required,oneof=player controller"`
}

// SongEndedMessage signals end-of-stream from the authoritative player.
type SongEndedMessage struct {
	Type string `json:"type"`
}

// RenameDeviceMessage changes a device's display name.
type RenameDeviceMessage struct {
	Type           string `json:"type"`
	TargetDeviceID string `json:"targetDeviceId" validate:"required"`
	Name           string `json:"name" validate:"required,max=100"`
}

// PingMessage is a time-sync probe. ClientTime is milliseconds on the
// client's wall clock; zero is a legal value.
type PingMessage struct {
	Type       string `json:"type"`
	ClientTime int64  `json:"clientTime" validate:"min=0"`
}

// JoinAckFrame acknowledges a join.
type JoinAckFrame struct {
	Type            string `json:"type"`
	RoomID          string `json:"roomId"`
	PlaylistID      string `json:"playlistId,omitempty"`
	DeviceID        string `json:"deviceId"`
	ProtocolVersion int    `json:"protocolVersion"`
}

// StateFrame is the full room state snapshot.
type StateFrame struct {
	Type            string          `json:"type"`
	Playback        models.Playback `json:"playback"`
	CurrentSong     *models.Song    `json:"currentSong"`
	Devices         []models.Device `json:"devices"`
	ProtocolVersion int             `json:"protocolVersion,omitempty"`
}

// QueueFrame is the full queue snapshot. NextUp carries the oldest in-flight
// interrupt for the "next up" banner, when one exists.
type QueueFrame struct {
	Type   string        `json:"type"`
	Songs  []models.Song `json:"songs"`
	NextUp *models.Song  `json:"nextUp,omitempty"`
}

// ExecuteFrame is a player-directed imperative.
type ExecuteFrame struct {
	Type    string          `json:"type"`
	Action  string          `json:"action"`
	Payload *CommandPayload `json:"payload,omitempty"`
	Scope   string          `json:"scope"`
}

// NextSongFrame instructs players to begin the given track, at StartAt
// (milliseconds since the Unix epoch, server clock) when present.
type NextSongFrame struct {
	Type     string `json:"type"`
	SongID   string `json:"songId"`
	AudioURL string `json:"audioUrl"`
	StartAt  *int64 `json:"startAt,omitempty"`
}

// PreloadFrame instructs players to buffer a track without playing it.
type PreloadFrame struct {
	Type     string `json:"type"`
	SongID   string `json:"songId"`
	AudioURL string `json:"audioUrl"`
}

// PongFrame is the ping reply. Times are milliseconds.
type PongFrame struct {
	Type       string `json:"type"`
	ClientTime int64  `json:"clientTime"`
	ServerTime int64  `json:"serverTime"`
}

// ErrorFrame reports a non-fatal error scoped to the originating message.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError builds an error frame.
func NewError(message string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Message: message}
}

// FrameType returns the type tag of a server frame, or "" for foreign values.
func FrameType(frame any) string {
	switch f := frame.(type) {
	case JoinAckFrame:
		return f.Type
	case StateFrame:
		return f.Type
	case QueueFrame:
		return f.Type
	case ExecuteFrame:
		return f.Type
	case NextSongFrame:
		return f.Type
	case PreloadFrame:
		return f.Type
	case PongFrame:
		return f.Type
	case ErrorFrame:
		return f.Type
	}
	return ""
}
