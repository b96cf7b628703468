// Package models contains the data structures used throughout the application.
package models

import (
	"time"
)

// DeviceRole distinguishes audio players from remote controllers.
type DeviceRole string

// Device roles.
const (
	RolePlayer     DeviceRole = "player"
	RoleController DeviceRole = "controller"
)

// Valid reports whether the role is one of the known roles.
func (r DeviceRole) Valid() bool {
	return r == RolePlayer || r == RoleController
}

// DeviceMode selects between room-steered and individually-steered playback.
type DeviceMode string

// Device modes.
const (
	ModeDefault    DeviceMode = "default"
	ModeIndividual DeviceMode = "individual"
)

// Device represents one physical or logical endpoint in a room.
// Its identity is chosen by the client and preserved across reconnects.
type Device struct {
	// ID is the stable client-chosen identifier.
	ID string `json:"id" bson:"_id"`

	// Name is the display name of the device.
	Name string `json:"name" bson:"name"`

	// Role is player or controller.
	Role DeviceRole `json:"role" bson:"role"`

	// Mode is default or individual.
	Mode DeviceMode `json:"mode" bson:"mode"`

	// VolumeOverride takes precedence over the room volume until syncAll or a
	// room-scope setVolume supersedes it. Nil means no override.
	VolumeOverride *float64 `json:"volumeOverride" bson:"volumeOverride,omitempty"`

	// LastSeen is updated on every message from the device. A device whose
	// socket is gone is retained until LastSeen ages past the grace interval.
	LastSeen time.Time `json:"lastSeen" bson:"lastSeen"`
}

// StoredDevice is a device registration row used by the control-plane REST
// surface for x-device-token admission. The token is stored hashed.
type StoredDevice struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	TokenHash string    `json:"-" bson:"tokenHash"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
