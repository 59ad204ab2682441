// Package playlist provides the Playlist domain entity.
package playlist

import (
	"time"

	"github.com/mkaschke/offtrack/internal/domain/track"
)

// DefaultCoverRef is used when a playlist is created without a cover.
const DefaultCoverRef = "covers/playlist-placeholder.png"

// Playlist represents a named, ordered collection of downloaded tracks.
// The playlist registry owns the canonical copy; consumers only ever see
// clones, so every mutation goes through the registry API.
type Playlist struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	CoverRef    string        `json:"cover_ref"`
	Songs       []track.Track `json:"songs"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Contains reports whether the playlist already holds the given track ID.
func (p *Playlist) Contains(trackID string) bool {
	for _, t := range p.Songs {
		if t.ID == trackID {
			return true
		}
	}
	return false
}

// TrackIDs returns all track IDs in playlist order.
func (p *Playlist) TrackIDs() []string {
	ids := make([]string, len(p.Songs))
	for i, t := range p.Songs {
		ids[i] = t.ID
	}
	return ids
}

// TotalDuration returns the total duration of all tracks.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range p.Songs {
		total += t.Duration()
	}
	return total
}

// Clone returns a deep copy safe to hand to consumers.
func (p *Playlist) Clone() *Playlist {
	cp := *p
	cp.Songs = make([]track.Track, len(p.Songs))
	copy(cp.Songs, p.Songs)
	return &cp
}
