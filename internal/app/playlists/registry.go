// Package playlists provides the playlist registry: CRUD and ordering over
// named collections of downloaded tracks.
package playlists

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/mkaschke/offtrack/internal/app/observe"
	"github.com/mkaschke/offtrack/internal/domain/playlist"
	"github.com/mkaschke/offtrack/internal/domain/track"
	"github.com/mkaschke/offtrack/internal/infra/store"
)

// StoreKey is the persistent store key for the registry snapshot.
const StoreKey = "playlists"

// Update describes a partial playlist update. Nil fields are left alone.
type Update struct {
	Name        *string
	Description *string
	CoverRef    *string
}

// Registry owns the canonical playlist set. Consumers receive clones; every
// mutation goes through this API so persistence and notification stay
// authoritative.
type Registry struct {
	mu        sync.RWMutex
	playlists map[string]*playlist.Playlist

	store     store.Store
	observers *observe.Registry[struct{}]
	now       func() time.Time
}

// NewRegistry creates a registry and loads the persisted snapshot.
func NewRegistry(s store.Store) (*Registry, error) {
	if s == nil {
		return nil, errors.New("playlists require a store")
	}

	r := &Registry{
		playlists: make(map[string]*playlist.Playlist),
		store:     s,
		observers: observe.NewRegistry[struct{}](),
		now:       time.Now,
	}

	var snapshot []playlist.Playlist
	found, err := s.Load(StoreKey, &snapshot)
	if err != nil {
		zlog.Warn().Err(err).Msg("playlists: failed to load snapshot, starting empty")
	} else if found {
		for i := range snapshot {
			p := snapshot[i]
			r.playlists[p.ID] = &p
		}
		zlog.Info().Int("playlists", len(snapshot)).Msg("playlists: snapshot loaded")
	}

	return r, nil
}

// AddListener registers a change listener and returns its ID.
func (r *Registry) AddListener(fn func()) string {
	return r.observers.Add(func(struct{}) { fn() })
}

// RemoveListener unregisters a change listener.
func (r *Registry) RemoveListener(id string) {
	r.observers.Remove(id)
}

// Create creates an empty playlist and returns a clone of it.
func (r *Registry) Create(name, description, coverRef string) *playlist.Playlist {
	now := r.now()
	if coverRef == "" {
		coverRef = playlist.DefaultCoverRef
	}

	p := &playlist.Playlist{
		ID:          newID(now),
		Name:        name,
		Description: description,
		CoverRef:    coverRef,
		Songs:       []track.Track{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.mu.Lock()
	r.playlists[p.ID] = p
	r.persistLocked()
	r.mu.Unlock()

	r.observers.Notify(struct{}{})
	return p.Clone()
}

// UpdatePlaylist merges the given fields into the playlist.
func (r *Registry) UpdatePlaylist(id string, upd Update) bool {
	r.mu.Lock()
	p, ok := r.playlists[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	if upd.CoverRef != nil {
		p.CoverRef = *upd.CoverRef
	}
	p.UpdatedAt = r.now()
	r.persistLocked()
	r.mu.Unlock()

	r.observers.Notify(struct{}{})
	return true
}

// Delete removes the playlist. Returns false if it does not exist.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	if _, ok := r.playlists[id]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.playlists, id)
	r.persistLocked()
	r.mu.Unlock()

	r.observers.Notify(struct{}{})
	return true
}

// ClearAll removes every playlist and clears the persisted snapshot.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	r.playlists = make(map[string]*playlist.Playlist)
	if err := r.store.Remove(StoreKey); err != nil {
		zlog.Warn().Err(err).Msg("playlists: failed to clear snapshot")
	}
	r.mu.Unlock()

	r.observers.Notify(struct{}{})
}

// AddSong appends the track to the playlist. Returns false when the
// playlist is unknown or already contains the track ID.
func (r *Registry) AddSong(playlistID string, t track.Track) bool {
	r.mu.Lock()
	p, ok := r.playlists[playlistID]
	if !ok || p.Contains(t.ID) {
		r.mu.Unlock()
		return false
	}
	p.Songs = append(p.Songs, t)
	p.UpdatedAt = r.now()
	r.persistLocked()
	r.mu.Unlock()

	r.observers.Notify(struct{}{})
	return true
}

// RemoveSong removes the track from the playlist. Returns false when the
// playlist is unknown or does not contain the track ID.
func (r *Registry) RemoveSong(playlistID, trackID string) bool {
	r.mu.Lock()
	p, ok := r.playlists[playlistID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	idx := -1
	for i, t := range p.Songs {
		if t.ID == trackID {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return false
	}
	p.Songs = append(p.Songs[:idx], p.Songs[idx+1:]...)
	p.UpdatedAt = r.now()
	r.persistLocked()
	r.mu.Unlock()

	r.observers.Notify(struct{}{})
	return true
}

// Reorder replaces the playlist's full song sequence with the given order.
// The caller supplies the complete desired order; the registry computes no
// diffs. Sequences with duplicate track IDs are rejected.
func (r *Registry) Reorder(playlistID string, songs []track.Track) bool {
	seen := make(map[string]struct{}, len(songs))
	for _, t := range songs {
		if _, dup := seen[t.ID]; dup {
			return false
		}
		seen[t.ID] = struct{}{}
	}

	r.mu.Lock()
	p, ok := r.playlists[playlistID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	p.Songs = make([]track.Track, len(songs))
	copy(p.Songs, songs)
	p.UpdatedAt = r.now()
	r.persistLocked()
	r.mu.Unlock()

	r.observers.Notify(struct{}{})
	return true
}

// GetPlaylist returns a clone of the playlist.
func (r *Registry) GetPlaylist(id string) (*playlist.Playlist, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.playlists[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// GetAllPlaylists returns clones of all playlists, most recently updated
// first.
func (r *Registry) GetAllPlaylists() []*playlist.Playlist {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*playlist.Playlist, 0, len(r.playlists))
	for _, p := range r.playlists {
		result = append(result, p.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// GetPlaylistsContainingSong returns clones of all playlists holding the
// track ID.
func (r *Registry) GetPlaylistsContainingSong(trackID string) []*playlist.Playlist {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*playlist.Playlist
	for _, p := range r.playlists {
		if p.Contains(trackID) {
			result = append(result, p.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// persistLocked writes the snapshot. Storage failures are logged, never
// propagated.
func (r *Registry) persistLocked() {
	snapshot := make([]playlist.Playlist, 0, len(r.playlists))
	for _, p := range r.playlists {
		snapshot = append(snapshot, *p.Clone())
	}
	sort.Slice(snapshot, func(i, j int) bool {
		if !snapshot[i].CreatedAt.Equal(snapshot[j].CreatedAt) {
			return snapshot[i].CreatedAt.Before(snapshot[j].CreatedAt)
		}
		return snapshot[i].ID < snapshot[j].ID
	})

	if err := r.store.Save(StoreKey, snapshot); err != nil {
		zlog.Error().Err(err).Msg("playlists: failed to persist snapshot")
	}
}

// newID builds a time-plus-random composite ID.
func newID(now time.Time) string {
	return fmt.Sprintf("pl_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}
