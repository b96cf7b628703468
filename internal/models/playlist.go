// Package models contains the data structures used throughout the application.
package models

import (
	"time"
)

// Playlist is the storage-layer record for a content playlist. The coordinator
// only reads it; the generation pipeline owns its mutation.
type Playlist struct {
	// ID is the internal playlist identifier.
	ID string `json:"id" bson:"_id"`

	// Key is the opaque token identifying the playlist in URLs.
	// A playlist's key never changes.
	Key string `json:"key" bson:"key"`

	// Name is the display name of the playlist.
	Name string `json:"name" bson:"name"`

	// PromptEpoch is incremented when the playlist's steering prompt changes.
	PromptEpoch int `json:"promptEpoch" bson:"promptEpoch"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// RoomInfo is the compact room record served by the control-plane REST surface.
type RoomInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PlaylistKey string    `json:"playlistKey"`
	DeviceCount int       `json:"deviceCount"`
	SocketCount int       `json:"socketCount"`
	CreatedAt   time.Time `json:"createdAt"`
}
