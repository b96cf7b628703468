// Package models contains the data structures used throughout the application.
package models

import (
	"time"
)

// SongStatus represents the lifecycle state of a song in the generation pipeline.
type SongStatus string

// Song statuses.
const (
	StatusPending            SongStatus = "pending"
	StatusGeneratingMetadata SongStatus = "generating_metadata"
	StatusMetadataReady      SongStatus = "metadata_ready"
	StatusSubmittingToAce    SongStatus = "submitting_to_ace"
	StatusGeneratingAudio    SongStatus = "generating_audio"
	StatusSaving             SongStatus = "saving"
	StatusReady              SongStatus = "ready"
	StatusPlayed             SongStatus = "played"
	StatusRetryPending       SongStatus = "retry_pending"
	StatusError              SongStatus = "error"
)

// IsGenerating reports whether the status belongs to the in-flight generation subset.
func (s SongStatus) IsGenerating() bool {
	switch s {
	case StatusPending, StatusGeneratingMetadata, StatusMetadataReady,
		StatusSubmittingToAce, StatusGeneratingAudio, StatusSaving:
		return true
	}
	return false
}

// Rating is a listener's thumbs-up/down verdict on a song.
type Rating string

// Ratings.
const (
	RatingUp   Rating = "up"
	RatingDown Rating = "down"
)

// Song represents one track in a playlist queue.
type Song struct {
	// ID is the stable identifier of the song.
	ID string `json:"id" bson:"_id"`

	// PlaylistID is the internal id of the owning playlist.
	PlaylistID string `json:"playlistId" bson:"playlistId"`

	// CreatedAt is monotonic within a playlist and breaks interrupt ties (FIFO).
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`

	// OrderIndex orders the queue. Floating-point so midpoint reordering works.
	OrderIndex float64 `json:"orderIndex" bson:"orderIndex"`

	// Status is the song's position in the generation pipeline.
	Status SongStatus `json:"status" bson:"status"`

	// IsInterrupt marks a song inserted by explicit user request that jumps
	// the normal order.
	IsInterrupt bool `json:"isInterrupt" bson:"isInterrupt"`

	// PromptEpoch is the playlist steering-prompt epoch this song was
	// generated under.
	PromptEpoch int `json:"promptEpoch" bson:"promptEpoch"`

	// Denormalized metadata. All optional until generation completes.
	Title    string  `json:"title,omitempty" bson:"title,omitempty"`
	Artist   string  `json:"artist,omitempty" bson:"artist,omitempty"`
	CoverURL string  `json:"coverUrl,omitempty" bson:"coverUrl,omitempty"`
	AudioURL string  `json:"audioUrl,omitempty" bson:"audioUrl,omitempty"`
	BPM      int     `json:"bpm,omitempty" bson:"bpm,omitempty"`
	Key      string  `json:"key,omitempty" bson:"key,omitempty"`
	Duration float64 `json:"duration,omitempty" bson:"duration,omitempty"`
	Lyrics   string  `json:"lyrics,omitempty" bson:"lyrics,omitempty"`
	Rating   Rating  `json:"rating,omitempty" bson:"rating,omitempty"`
}

// IsPlayable reports whether the song can be handed to a player.
// Played songs are only playable in manual mode.
func (s *Song) IsPlayable(manualMode bool) bool {
	if s.Status == StatusReady {
		return true
	}
	return manualMode && s.Status == StatusPlayed
}
