package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkaschke/offtrack/internal/infra/store"
)

func TestCache_SetGet(t *testing.T) {
	c := New()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", []byte("v"), time.Minute)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	// Overwrite wins unconditionally.
	c.Set("k", []byte("v2"), time.Minute)
	got, _ = c.Get("k")
	assert.Equal(t, []byte("v2"), got)
}

func TestCache_Expiry(t *testing.T) {
	c := New()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.Set("k", []byte("v"), 5*time.Minute)

	clock = clock.Add(4 * time.Minute)
	_, ok := c.Get("k")
	assert.True(t, ok)

	// At exactly the expiry instant the entry is gone.
	clock = clock.Add(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)

	// Expired entries are evicted lazily on read.
	assert.Equal(t, 0, c.Len())
}

func TestCache_Cleanup(t *testing.T) {
	c := New()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.Set("short", []byte("a"), time.Minute)
	c.Set("long", []byte("b"), time.Hour)

	clock = clock.Add(30 * time.Minute)
	assert.Equal(t, 1, c.Cleanup())
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("long")
	assert.True(t, ok)
}

func TestCache_RemoveAndClear(t *testing.T) {
	c := New()
	c.Set("a", []byte("1"), time.Minute)
	c.Set("b", []byte("2"), time.Minute)

	c.Remove("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestCache_MirrorSurvivesRestart(t *testing.T) {
	st := store.NewMemoryStore()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c := New(WithMirror(st))
	c.now = func() time.Time { return clock }
	c.Set("k", []byte("v"), time.Hour)

	// A fresh cache over the same store finds the mirrored entry.
	c2 := New(WithMirror(st))
	c2.now = func() time.Time { return clock }
	got, ok := c2.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	// An expired mirror entry is not resurrected.
	c3 := New(WithMirror(st))
	c3.now = func() time.Time { return clock.Add(2 * time.Hour) }
	_, ok = c3.Get("k")
	assert.False(t, ok)
}

func TestCache_ClearSweepsForeignMirrors(t *testing.T) {
	st := store.NewMemoryStore()

	c := New(WithMirror(st))
	c.Set("k", []byte("v"), time.Hour)

	// A fresh cache has never read "k" into memory, yet Clear must still
	// remove the mirror so the entry cannot be resurrected afterwards.
	c2 := New(WithMirror(st))
	c2.Clear()

	c3 := New(WithMirror(st))
	_, ok := c3.Get("k")
	assert.False(t, ok)

	found, err := st.Exists(mirrorIndexKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_MirrorRemove(t *testing.T) {
	st := store.NewMemoryStore()
	c := New(WithMirror(st))
	c.Set("k", []byte("v"), time.Hour)
	c.Remove("k")

	c2 := New(WithMirror(st))
	_, ok := c2.Get("k")
	assert.False(t, ok)
}
