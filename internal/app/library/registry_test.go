package library

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkaschke/offtrack/internal/domain/track"
	"github.com/mkaschke/offtrack/internal/infra/catalog"
	"github.com/mkaschke/offtrack/internal/infra/store"
)

// fakeResolver answers from a fixed map and can be slowed down to keep a
// download in flight.
type fakeResolver struct {
	tracks map[string]catalog.ResolvedTrack
	delay  time.Duration
	err    error
}

func (f *fakeResolver) Resolve(ctx context.Context, trackID string) (*catalog.ResolvedTrack, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tracks[trackID]
	if !ok {
		return nil, catalog.ErrTrackNotFound
	}
	return &t, nil
}

func (f *fakeResolver) Search(ctx context.Context, query string) ([]catalog.ResolvedTrack, error) {
	return nil, nil
}

// fakeFetcher writes a small payload to destPath, or fails on matching refs.
type fakeFetcher struct {
	mu      sync.Mutex
	failRef string
	calls   []string
}

func (f *fakeFetcher) FetchToLocal(ctx context.Context, remoteRef, destPath string) (int64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, remoteRef)
	f.mu.Unlock()

	if f.failRef != "" && remoteRef == f.failRef {
		return 0, assert.AnError
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return 0, err
	}
	data := []byte("payload")
	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

type fakeAddRequester struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeAddRequester) RequestAdd(trackID string) {
	f.mu.Lock()
	f.ids = append(f.ids, trackID)
	f.mu.Unlock()
}

func resolvedFixture(id string) catalog.ResolvedTrack {
	return catalog.ResolvedTrack{
		ID:          id,
		Title:       "Title " + id,
		Artist:      "Artist",
		Album:       "Album",
		CoverRef:    "https://cdn.example/covers/" + id + ".jpg",
		DownloadRef: "https://cdn.example/audio/" + id + ".mp3",
		DurationMs:  180000,
	}
}

func newTestRegistry(t *testing.T, cfg Config) *Registry {
	t.Helper()
	if cfg.Store == nil {
		cfg.Store = store.NewMemoryStore()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = &fakeResolver{tracks: map[string]catalog.ResolvedTrack{}}
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = &fakeFetcher{}
	}
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	r, err := NewRegistry(cfg)
	require.NoError(t, err)
	return r
}

func TestRegistry_Download(t *testing.T) {
	r := newTestRegistry(t, Config{
		Resolver: &fakeResolver{tracks: map[string]catalog.ResolvedTrack{
			"t1": resolvedFixture("t1"),
		}},
	})

	res := r.Download(context.Background(), "t1")
	assert.Equal(t, StatusCompleted, res.Status)
	require.NotNil(t, res.Track)
	assert.Equal(t, "Title t1", res.Track.Name)
	assert.FileExists(t, res.Track.LocalRef)
	assert.FileExists(t, res.Track.CoverRef)

	assert.True(t, r.IsDownloaded("t1"))
	assert.False(t, r.IsDownloading("t1"))
}

func TestRegistry_Download_AlreadyDownloaded(t *testing.T) {
	r := newTestRegistry(t, Config{
		Resolver: &fakeResolver{tracks: map[string]catalog.ResolvedTrack{
			"t1": resolvedFixture("t1"),
		}},
	})

	assert.Equal(t, StatusCompleted, r.Download(context.Background(), "t1").Status)

	res := r.Download(context.Background(), "t1")
	assert.Equal(t, StatusAlreadyDownloaded, res.Status)
	assert.Len(t, r.ListAll(), 1)
}

func TestRegistry_Download_BusyRejectsSecond(t *testing.T) {
	r := newTestRegistry(t, Config{
		Resolver: &fakeResolver{
			tracks: map[string]catalog.ResolvedTrack{"slow": resolvedFixture("slow")},
			delay:  200 * time.Millisecond,
		},
	})

	firstDone := make(chan DownloadResult, 1)
	go func() {
		firstDone <- r.Download(context.Background(), "slow")
	}()

	// Wait until the first download holds the in-flight marker.
	require.Eventually(t, func() bool {
		return r.IsDownloading("slow")
	}, time.Second, 5*time.Millisecond)

	res := r.Download(context.Background(), "other")
	assert.Equal(t, StatusBusy, res.Status)

	first := <-firstDone
	assert.Equal(t, StatusCompleted, first.Status)

	// Marker released: a new download is accepted again.
	assert.False(t, r.IsDownloading("slow"))
}

func TestRegistry_Download_NotAvailableRequestsAdd(t *testing.T) {
	requester := &fakeAddRequester{}
	r := newTestRegistry(t, Config{
		Resolver:     &fakeResolver{tracks: map[string]catalog.ResolvedTrack{}},
		AddRequester: requester,
	})

	res := r.Download(context.Background(), "missing")
	assert.Equal(t, StatusNotAvailable, res.Status)
	assert.False(t, r.IsDownloaded("missing"))
	assert.False(t, r.IsDownloading("missing"))

	requester.mu.Lock()
	defer requester.mu.Unlock()
	assert.Equal(t, []string{"missing"}, requester.ids)
}

func TestRegistry_Download_FailureClearsInFlight(t *testing.T) {
	tests := []struct {
		name     string
		resolver *fakeResolver
		fetcher  *fakeFetcher
	}{
		{
			name:     "resolution error",
			resolver: &fakeResolver{err: assert.AnError},
			fetcher:  &fakeFetcher{},
		},
		{
			name: "audio fetch error",
			resolver: &fakeResolver{tracks: map[string]catalog.ResolvedTrack{
				"t1": resolvedFixture("t1"),
			}},
			fetcher: &fakeFetcher{failRef: "https://cdn.example/audio/t1.mp3"},
		},
		{
			name: "cover fetch error",
			resolver: &fakeResolver{tracks: map[string]catalog.ResolvedTrack{
				"t1": resolvedFixture("t1"),
			}},
			fetcher: &fakeFetcher{failRef: "https://cdn.example/covers/t1.jpg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			r := newTestRegistry(t, Config{
				Resolver: tt.resolver,
				Fetcher:  tt.fetcher,
				Dir:      dir,
			})

			res := r.Download(context.Background(), "t1")
			assert.Equal(t, StatusFailed, res.Status)
			assert.NotEmpty(t, res.Message)
			assert.False(t, r.IsDownloaded("t1"))
			assert.False(t, r.IsDownloading("t1"))

			// Half-downloaded payloads must not survive the failure.
			assert.NoFileExists(t, filepath.Join(dir, "t1.mp3"))
		})
	}
}

func TestRegistry_PersistAndReload(t *testing.T) {
	st := store.NewMemoryStore()
	dir := t.TempDir()
	resolver := &fakeResolver{tracks: map[string]catalog.ResolvedTrack{
		"t1": resolvedFixture("t1"),
		"t2": resolvedFixture("t2"),
	}}

	r := newTestRegistry(t, Config{Store: st, Resolver: resolver, Dir: dir})
	require.Equal(t, StatusCompleted, r.Download(context.Background(), "t1").Status)
	require.Equal(t, StatusCompleted, r.Download(context.Background(), "t2").Status)

	// Snapshot lives under the fixed key.
	var snapshot []track.Track
	found, err := st.Load(StoreKey, &snapshot)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, snapshot, 2)

	// A fresh registry over the same store restores both tracks.
	r2 := newTestRegistry(t, Config{Store: st, Resolver: resolver, Dir: dir})
	assert.True(t, r2.IsDownloaded("t1"))
	assert.True(t, r2.IsDownloaded("t2"))
}

func TestRegistry_ListAll_NewestFirst(t *testing.T) {
	st := store.NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seed := []track.Track{
		{ID: "old", Name: "Old", DownloadedAt: base},
		{ID: "new", Name: "New", DownloadedAt: base.Add(time.Hour)},
		{ID: "mid", Name: "Mid", DownloadedAt: base.Add(30 * time.Minute)},
	}
	require.NoError(t, st.Save(StoreKey, seed))

	r := newTestRegistry(t, Config{Store: st})

	got := r.ListAll()
	require.Len(t, got, 3)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "mid", got[1].ID)
	assert.Equal(t, "old", got[2].ID)
}

func TestRegistry_Delete(t *testing.T) {
	st := store.NewMemoryStore()
	r := newTestRegistry(t, Config{
		Store: st,
		Resolver: &fakeResolver{tracks: map[string]catalog.ResolvedTrack{
			"t1": resolvedFixture("t1"),
		}},
	})

	res := r.Download(context.Background(), "t1")
	require.Equal(t, StatusCompleted, res.Status)
	localRef := res.Track.LocalRef

	assert.True(t, r.Delete("t1"))
	assert.False(t, r.IsDownloaded("t1"))
	assert.NoFileExists(t, localRef)

	// Deleting an unknown track reports false.
	assert.False(t, r.Delete("t1"))

	var snapshot []track.Track
	found, err := st.Load(StoreKey, &snapshot)
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, snapshot)
}

func TestRegistry_ClearAll(t *testing.T) {
	st := store.NewMemoryStore()
	r := newTestRegistry(t, Config{
		Store: st,
		Resolver: &fakeResolver{tracks: map[string]catalog.ResolvedTrack{
			"t1": resolvedFixture("t1"),
			"t2": resolvedFixture("t2"),
		}},
	})
	require.Equal(t, StatusCompleted, r.Download(context.Background(), "t1").Status)
	require.Equal(t, StatusCompleted, r.Download(context.Background(), "t2").Status)

	r.ClearAll()
	assert.Empty(t, r.ListAll())

	exists, err := st.Exists(StoreKey)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRegistry_ObserversNotified(t *testing.T) {
	r := newTestRegistry(t, Config{
		Resolver: &fakeResolver{tracks: map[string]catalog.ResolvedTrack{
			"t1": resolvedFixture("t1"),
		}},
	})

	var mu sync.Mutex
	calls := 0
	id := r.AddListener(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	r.Download(context.Background(), "t1")
	mu.Lock()
	// Once when the download starts, once when it settles.
	assert.Equal(t, 2, calls)
	mu.Unlock()

	r.RemoveListener(id)
	r.Delete("t1")
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}
