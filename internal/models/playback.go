// Package models contains the data structures used throughout the application.
package models

// Playback is the authoritative per-room playback tuple.
//
// Invariants: 0 <= CurrentTime <= Duration, and a nil CurrentSongID implies
// CurrentTime == 0 and Duration == 0.
type Playback struct {
	// CurrentSongID is the id of the playing track, or nil when idle.
	CurrentSongID *string `json:"currentSongId"`

	// IsPlaying indicates whether playback is active.
	IsPlaying bool `json:"isPlaying"`

	// CurrentTime is the playback position in seconds.
	CurrentTime float64 `json:"currentTime"`

	// Duration is the declared audio duration of the current track in seconds.
	Duration float64 `json:"duration"`

	// Volume is the room volume in [0,1].
	Volume float64 `json:"volume"`

	// IsMuted indicates whether the room is muted.
	IsMuted bool `json:"isMuted"`
}

// NewPlayback returns the idle playback state.
func NewPlayback() Playback {
	return Playback{Volume: 1.0}
}

// ClearSong resets the tuple to its idle form.
func (p *Playback) ClearSong() {
	p.CurrentSongID = nil
	p.IsPlaying = false
	p.CurrentTime = 0
	p.Duration = 0
}

// SetSong moves playback onto a new track, resetting position.
func (p *Playback) SetSong(songID string, duration float64) {
	p.CurrentSongID = &songID
	p.CurrentTime = 0
	p.Duration = duration
}

// Clamp01 clamps v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
