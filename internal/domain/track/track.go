// Package track provides the Track domain entity.
package track

import "time"

// Track represents a track that has been downloaded for offline playback.
// A track is immutable once created; the download registry is the only
// component allowed to create or destroy one.
type Track struct {
	ID           string    `json:"id"`            // Catalog track ID
	Name         string    `json:"name"`          // Display name
	Artist       string    `json:"artist"`        // Artist names, joined
	Album        string    `json:"album"`         // Album name
	CoverRef     string    `json:"cover_ref"`     // Cover image (URL or local path)
	LocalRef     string    `json:"local_ref"`     // Audio content (local path)
	DownloadedAt time.Time `json:"downloaded_at"` // Download completion time
	DurationMs   int64     `json:"duration_ms,omitempty"`
	SizeBytes    int64     `json:"size_bytes,omitempty"`
}

// Duration returns the track duration, or zero if unknown.
func (t *Track) Duration() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}
