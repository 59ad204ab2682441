// Package playback provides the playback engine (one active audio session)
// and the queue controller layered on top of it.
package playback

import "github.com/mkaschke/offtrack/internal/domain/track"

// State represents the engine state.
type State int

const (
	StateIdle    State = iota // No sound loaded
	StateLoading              // Audio session being prepared
	StatePlaying              // Track is playing
	StatePaused               // Track is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// StatusSnapshot is the engine status pushed to observers on every
// transition and position refresh.
type StatusSnapshot struct {
	State        State
	IsPlaying    bool
	IsLoaded     bool
	CurrentTrack *track.Track
	PositionMs   int64
	DurationMs   int64
}

// RepeatMode represents the queue repeat policy.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "unknown"
	}
}
