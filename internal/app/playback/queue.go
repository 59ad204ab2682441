package playback

import (
	"context"
	"math/rand"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/mkaschke/offtrack/internal/app/observe"
	"github.com/mkaschke/offtrack/internal/domain/playlist"
	"github.com/mkaschke/offtrack/internal/domain/track"
)

// QueueSnapshot is the queue state handed to observers and readers.
type QueueSnapshot struct {
	Songs    []track.Track
	Index    int
	Shuffled bool
	Repeat   RepeatMode
}

// Controller sequences tracks through the engine. The engine has no notion
// of "next": all queue, shuffle, and repeat logic lives here.
type Controller struct {
	mu       sync.Mutex
	songs    []track.Track
	original []track.Track // Pre-shuffle order, nil when not shuffled
	index    int
	shuffled bool
	repeat   RepeatMode

	engine           *Engine
	restartThreshold time.Duration
	rng              *rand.Rand
	observers        *observe.Registry[struct{}]
}

// NewController creates a controller over the engine and registers its
// end-of-track reaction.
func NewController(engine *Engine, restartThreshold time.Duration) *Controller {
	if restartThreshold <= 0 {
		restartThreshold = 3 * time.Second
	}
	c := &Controller{
		engine:           engine,
		restartThreshold: restartThreshold,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
		observers:        observe.NewRegistry[struct{}](),
	}
	engine.SetEndHandler(c.onTrackEnd)
	return c
}

// AddListener registers a queue change listener and returns its ID.
func (c *Controller) AddListener(fn func()) string {
	return c.observers.Add(func(struct{}) { fn() })
}

// RemoveListener unregisters a queue change listener.
func (c *Controller) RemoveListener(id string) {
	c.observers.Remove(id)
}

// Snapshot returns a copy of the current queue state.
func (c *Controller) Snapshot() QueueSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	songs := make([]track.Track, len(c.songs))
	copy(songs, c.songs)
	return QueueSnapshot{
		Songs:    songs,
		Index:    c.index,
		Shuffled: c.shuffled,
		Repeat:   c.repeat,
	}
}

// PlayPlaylist replaces the queue with the playlist's songs and plays the
// one at startIndex.
func (c *Controller) PlayPlaylist(ctx context.Context, p *playlist.Playlist, startIndex int) bool {
	if p == nil || len(p.Songs) == 0 || startIndex < 0 || startIndex >= len(p.Songs) {
		return false
	}

	c.mu.Lock()
	c.songs = make([]track.Track, len(p.Songs))
	copy(c.songs, p.Songs)
	c.original = nil
	c.shuffled = false
	c.index = startIndex
	t := c.songs[c.index]
	c.mu.Unlock()

	c.observers.Notify(struct{}{})
	return c.engine.PlaySong(ctx, t)
}

// PlaySingle replaces the queue with a single track and plays it.
func (c *Controller) PlaySingle(ctx context.Context, t track.Track) bool {
	c.mu.Lock()
	c.songs = []track.Track{t}
	c.original = nil
	c.shuffled = false
	c.index = 0
	c.mu.Unlock()

	c.observers.Notify(struct{}{})
	return c.engine.PlaySong(ctx, t)
}

// PlayNext advances to the next track. At the end of the queue it wraps
// only when repeat is "all"; otherwise it returns false without moving.
func (c *Controller) PlayNext(ctx context.Context) bool {
	c.mu.Lock()
	if len(c.songs) == 0 {
		c.mu.Unlock()
		return false
	}
	next := c.index + 1
	if next >= len(c.songs) {
		if c.repeat != RepeatAll {
			c.mu.Unlock()
			return false
		}
		next = 0
	}
	c.index = next
	t := c.songs[c.index]
	c.mu.Unlock()

	c.observers.Notify(struct{}{})
	return c.engine.PlaySong(ctx, t)
}

// PlayPrevious retreats to the previous track, wrapping only when repeat is
// "all". More than restartThreshold into the current track it restarts the
// track instead.
func (c *Controller) PlayPrevious(ctx context.Context) bool {
	if c.engine.PositionMs() > c.restartThreshold.Milliseconds() {
		c.engine.SeekTo(0)
		return true
	}

	c.mu.Lock()
	if len(c.songs) == 0 {
		c.mu.Unlock()
		return false
	}
	prev := c.index - 1
	if prev < 0 {
		if c.repeat != RepeatAll {
			c.mu.Unlock()
			return false
		}
		prev = len(c.songs) - 1
	}
	c.index = prev
	t := c.songs[c.index]
	c.mu.Unlock()

	c.observers.Notify(struct{}{})
	return c.engine.PlaySong(ctx, t)
}

// ToggleShuffle shuffles the queue with a uniform permutation, keeping the
// currently playing track current. Toggling off restores the pre-shuffle
// order and relocates the current track by ID.
func (c *Controller) ToggleShuffle() {
	c.mu.Lock()
	if len(c.songs) == 0 {
		c.shuffled = !c.shuffled
		c.original = nil
		c.mu.Unlock()
		c.observers.Notify(struct{}{})
		return
	}

	currentID := c.songs[c.index].ID

	if !c.shuffled {
		c.original = make([]track.Track, len(c.songs))
		copy(c.original, c.songs)

		// Fisher-Yates
		for i := len(c.songs) - 1; i > 0; i-- {
			j := c.rng.Intn(i + 1)
			c.songs[i], c.songs[j] = c.songs[j], c.songs[i]
		}
		c.shuffled = true
	} else {
		c.songs = c.original
		c.original = nil
		c.shuffled = false
	}

	// Relocate by ID: shuffling moved positions around.
	c.index = indexOf(c.songs, currentID)
	if c.index < 0 {
		c.index = 0
	}
	c.mu.Unlock()

	c.observers.Notify(struct{}{})
}

// SetRepeatMode sets the repeat policy.
func (c *Controller) SetRepeatMode(m RepeatMode) {
	c.mu.Lock()
	c.repeat = m
	c.mu.Unlock()
	c.observers.Notify(struct{}{})
}

// ToggleRepeat cycles off, all, one, off.
func (c *Controller) ToggleRepeat() RepeatMode {
	c.mu.Lock()
	switch c.repeat {
	case RepeatOff:
		c.repeat = RepeatAll
	case RepeatAll:
		c.repeat = RepeatOne
	default:
		c.repeat = RepeatOff
	}
	m := c.repeat
	c.mu.Unlock()

	c.observers.Notify(struct{}{})
	return m
}

// Stop clears the queue and stops the engine.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.songs = nil
	c.original = nil
	c.shuffled = false
	c.index = 0
	c.mu.Unlock()

	c.engine.Stop()
	c.observers.Notify(struct{}{})
}

// onTrackEnd reacts to natural end of track: repeat "one" replays the
// current index, otherwise advance; at the end of the queue with repeat
// "off" the engine is stopped so the system rests in idle.
func (c *Controller) onTrackEnd() {
	ctx := context.Background()

	c.mu.Lock()
	if len(c.songs) == 0 {
		c.mu.Unlock()
		return
	}
	if c.repeat == RepeatOne {
		t := c.songs[c.index]
		c.mu.Unlock()
		if !c.engine.PlaySong(ctx, t) {
			zlog.Warn().Str("track_id", t.ID).Msg("queue: replay failed")
		}
		return
	}
	c.mu.Unlock()

	if !c.PlayNext(ctx) {
		c.engine.Stop()
	}
}

func indexOf(songs []track.Track, id string) int {
	for i, t := range songs {
		if t.ID == id {
			return i
		}
	}
	return -1
}
