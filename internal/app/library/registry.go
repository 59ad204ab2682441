// Package library provides the download registry: the single source of
// truth for which tracks are available offline.
package library

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/mkaschke/offtrack/internal/app/observe"
	"github.com/mkaschke/offtrack/internal/domain/track"
	"github.com/mkaschke/offtrack/internal/infra/catalog"
	"github.com/mkaschke/offtrack/internal/infra/metrics"
	"github.com/mkaschke/offtrack/internal/infra/store"
)

// StoreKey is the persistent store key for the registry snapshot.
const StoreKey = "downloaded_songs"

// Status classifies the outcome of a download request.
type Status int

const (
	StatusCompleted         Status = iota // Track downloaded and registered
	StatusAlreadyDownloaded               // Track was already offline
	StatusBusy                            // Another download is in flight
	StatusNotAvailable                    // Catalog does not have the track yet
	StatusFailed                          // Network or storage failure
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusAlreadyDownloaded:
		return "already_downloaded"
	case StatusBusy:
		return "busy"
	case StatusNotAvailable:
		return "not_available"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DownloadResult is the structured outcome of Download. Failures are
// reported here, never as panics or raw errors to the caller.
type DownloadResult struct {
	Status  Status
	Message string       // Human-readable failure detail, empty on success
	Track   *track.Track // Set when Status is StatusCompleted
}

// Fetcher fetches a remote payload to a local file.
type Fetcher interface {
	FetchToLocal(ctx context.Context, remoteRef, destPath string) (int64, error)
}

// AddRequester forwards "please add this track" signals to the remote
// intake. Calls are fire-and-forget from the registry's point of view.
type AddRequester interface {
	RequestAdd(trackID string)
}

// Config configures a Registry.
type Config struct {
	Store        store.Store
	Resolver     catalog.Resolver
	Fetcher      Fetcher
	AddRequester AddRequester // Optional
	Metrics      *metrics.Metrics
	Dir          string        // Root directory for downloaded payloads
	Timeout      time.Duration // Per-download network budget
}

// Registry owns the set of offline tracks. All mutation goes through its
// API; observers are notified after the persisted snapshot reflects the
// in-memory state.
type Registry struct {
	mu       sync.RWMutex
	songs    map[string]track.Track
	inFlight string // Track ID currently downloading, empty when none

	cfg       Config
	observers *observe.Registry[struct{}]
}

// NewRegistry creates a registry and loads the persisted snapshot.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Store == nil {
		return nil, errors.New("library requires a store")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("library requires a resolver")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("library requires a fetcher")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	r := &Registry{
		songs:     make(map[string]track.Track),
		cfg:       cfg,
		observers: observe.NewRegistry[struct{}](),
	}

	var snapshot []track.Track
	found, err := cfg.Store.Load(StoreKey, &snapshot)
	if err != nil {
		zlog.Warn().Err(err).Msg("library: failed to load snapshot, starting empty")
	} else if found {
		for _, t := range snapshot {
			r.songs[t.ID] = t
		}
		zlog.Info().Int("tracks", len(snapshot)).Msg("library: snapshot loaded")
	}
	cfg.Metrics.SetTracksOffline(len(r.songs))

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

// IsDownloaded reports whether the track is available offline.
func (r *Registry) IsDownloaded(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.songs[id]
	return ok
}

// IsDownloading reports whether the track is currently in flight.
func (r *Registry) IsDownloading(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inFlight == id
}

// Get returns the registered track by ID.
func (r *Registry) Get(id string) (track.Track, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.songs[id]
	return t, ok
}

// ListAll returns all offline tracks, newest download first.
func (r *Registry) ListAll() []track.Track {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]track.Track, 0, len(r.songs))
	for _, t := range r.songs {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].DownloadedAt.Equal(result[j].DownloadedAt) {
			return result[i].DownloadedAt.After(result[j].DownloadedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Download resolves and fetches the track with the given catalog ID.
// At most one download runs at a time; a request arriving while another is
// in flight is rejected immediately with StatusBusy. The in-flight marker
// is cleared on every exit path.
func (r *Registry) Download(ctx context.Context, id string) DownloadResult {
	r.mu.Lock()
	if _, ok := r.songs[id]; ok {
		r.mu.Unlock()
		return DownloadResult{Status: StatusAlreadyDownloaded}
	}
	if r.inFlight != "" {
		r.mu.Unlock()
		r.cfg.Metrics.DownloadBusy()
		return DownloadResult{Status: StatusBusy, Message: "another download is in progress"}
	}
	r.inFlight = id
	r.mu.Unlock()

	r.cfg.Metrics.DownloadStarted()
	r.observers.Notify(struct{}{})

	result := r.execute(ctx, id)

	switch result.Status {
	case StatusCompleted:
		r.cfg.Metrics.DownloadCompleted()
	case StatusNotAvailable:
		// Expected outcome, routed to intake; not a failure.
	default:
		r.cfg.Metrics.DownloadFailed()
	}
	r.observers.Notify(struct{}{})
	return result
}

// execute runs the download with the in-flight marker held. It must clear
// the marker before returning, on every path.
func (r *Registry) execute(ctx context.Context, id string) DownloadResult {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	resolved, err := r.cfg.Resolver.Resolve(ctx, id)
	if errors.Is(err, catalog.ErrTrackNotFound) {
		zlog.Info().Str("track_id", id).Msg("library: track not in catalog, requesting add")
		if r.cfg.AddRequester != nil {
			r.cfg.AddRequester.RequestAdd(id)
		}
		r.clearInFlight()
		return DownloadResult{Status: StatusNotAvailable, Message: "track is not available yet"}
	}
	if err != nil {
		zlog.Warn().Err(err).Str("track_id", id).Msg("library: resolution failed")
		r.clearInFlight()
		return DownloadResult{Status: StatusFailed, Message: "could not reach the catalog"}
	}

	audioPath := filepath.Join(r.cfg.Dir, id+".mp3")
	size, err := r.cfg.Fetcher.FetchToLocal(ctx, resolved.DownloadRef, audioPath)
	if err != nil {
		zlog.Warn().Err(err).Str("track_id", id).Msg("library: audio fetch failed")
		r.clearInFlight()
		return DownloadResult{Status: StatusFailed, Message: "audio download failed"}
	}

	coverPath := filepath.Join(r.cfg.Dir, "covers", id+".jpg")
	if _, err := r.cfg.Fetcher.FetchToLocal(ctx, resolved.CoverRef, coverPath); err != nil {
		zlog.Warn().Err(err).Str("track_id", id).Msg("library: cover fetch failed")
		if rmErr := os.Remove(audioPath); rmErr != nil {
			zlog.Warn().Err(rmErr).Str("path", audioPath).Msg("library: cleanup failed")
		}
		r.clearInFlight()
		return DownloadResult{Status: StatusFailed, Message: "cover download failed"}
	}

	t := track.Track{
		ID:           id,
		Name:         resolved.Title,
		Artist:       resolved.Artist,
		Album:        resolved.Album,
		CoverRef:     coverPath,
		LocalRef:     audioPath,
		DownloadedAt: time.Now(),
		DurationMs:   resolved.DurationMs,
		SizeBytes:    size,
	}

	// Insert, persist, then clear the marker, in that order: an observer
	// reacting to the final notification must find the persisted snapshot
	// already containing the track.
	r.mu.Lock()
	r.songs[id] = t
	r.persistLocked()
	r.inFlight = ""
	count := len(r.songs)
	r.mu.Unlock()

	r.cfg.Metrics.SetTracksOffline(count)
	return DownloadResult{Status: StatusCompleted, Track: &t}
}

// Delete removes the track from the registry and its backing files.
// File removal is best-effort; the registry entry removal is authoritative.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	t, ok := r.songs[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.removeFiles(t)
	delete(r.songs, id)
	r.persistLocked()
	count := len(r.songs)
	r.mu.Unlock()

	r.cfg.Metrics.SetTracksOffline(count)
	r.observers.Notify(struct{}{})
	return true
}

// ClearAll removes every track and clears the persisted snapshot.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	for _, t := range r.songs {
		r.removeFiles(t)
	}
	r.songs = make(map[string]track.Track)
	if err := r.cfg.Store.Remove(StoreKey); err != nil {
		zlog.Warn().Err(err).Msg("library: failed to clear snapshot")
	}
	r.mu.Unlock()

	r.cfg.Metrics.SetTracksOffline(0)
	r.observers.Notify(struct{}{})
}

func (r *Registry) clearInFlight() {
	r.mu.Lock()
	r.inFlight = ""
	r.mu.Unlock()
}

// persistLocked writes the snapshot. Storage failures are logged, never
// propagated: a stale snapshot is a lesser harm than a stuck registry.
func (r *Registry) persistLocked() {
	snapshot := make([]track.Track, 0, len(r.songs))
	for _, t := range r.songs {
		snapshot = append(snapshot, t)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })

	if err := r.cfg.Store.Save(StoreKey, snapshot); err != nil {
		zlog.Error().Err(err).Msg("library: failed to persist snapshot")
	}
}

// removeFiles deletes the locally stored payloads for a track.
func (r *Registry) removeFiles(t track.Track) {
	for _, ref := range []string{t.LocalRef, t.CoverRef} {
		if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
			continue
		}
		if err := os.Remove(ref); err != nil && !os.IsNotExist(err) {
			zlog.Warn().Err(err).Str("path", ref).Msg("library: file removal failed")
		}
	}
}
