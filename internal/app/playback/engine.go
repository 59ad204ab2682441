package playback

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/mkaschke/offtrack/internal/app/observe"
	"github.com/mkaschke/offtrack/internal/domain/track"
)

// DeviceStatus is a point-in-time report from the audio device.
type DeviceStatus struct {
	PositionMs int64
	DurationMs int64
	Finished   bool // Natural end of the loaded source reached
}

// Device is the underlying audio primitive. Implementations own their own
// synchronization; the engine never calls Device with its lock held across
// blocking operations.
type Device interface {
	// Load prepares the given local source, replacing any loaded one.
	Load(ctx context.Context, source string) error
	Play() error
	Pause() error
	Resume() error
	// Seek moves the playhead to the given position.
	Seek(ms int64) error
	// Status reports position, duration, and completion.
	Status() (DeviceStatus, error)
	// Release tears down the loaded source. Safe to call when idle.
	Release() error
}

// Engine owns the single active audio session. While playing it polls the
// device on a short interval to refresh position and detect natural
// completion; polling stops on pause and stop.
type Engine struct {
	mu         sync.Mutex
	device     Device
	state      State
	current    *track.Track
	positionMs int64
	durationMs int64

	pollInterval time.Duration
	pollCancel   context.CancelFunc

	observers  *observe.Registry[StatusSnapshot]
	onTrackEnd func()
}

// NewEngine creates an idle engine over the given device.
func NewEngine(device Device, pollInterval time.Duration) *Engine {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &Engine{
		device:       device,
		state:        StateIdle,
		pollInterval: pollInterval,
		observers:    observe.NewRegistry[StatusSnapshot](),
	}
}

// SetEndHandler registers the natural end-of-track handler. The queue
// controller registers exactly once, before playback starts.
func (e *Engine) SetEndHandler(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrackEnd = fn
}

// AddListener registers a status listener and returns its ID.
func (e *Engine) AddListener(fn func(StatusSnapshot)) string {
	return e.observers.Add(fn)
}

// RemoveListener unregisters a status listener.
func (e *Engine) RemoveListener(id string) {
	e.observers.Remove(id)
}

// Status returns the current status snapshot.
func (e *Engine) Status() StatusSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// PlaySong tears down any existing session and starts the given track.
// A load failure leaves the engine idle and returns false.
func (e *Engine) PlaySong(ctx context.Context, t track.Track) bool {
	e.mu.Lock()
	e.teardownLocked()
	e.state = StateLoading
	e.current = &t
	e.positionMs = 0
	e.durationMs = t.DurationMs
	e.mu.Unlock()
	e.notify()

	if err := e.device.Load(ctx, t.LocalRef); err != nil {
		zlog.Warn().Err(err).Str("track_id", t.ID).Msg("playback: load failed")
		e.mu.Lock()
		e.state = StateIdle
		e.current = nil
		e.positionMs = 0
		e.mu.Unlock()
		e.notify()
		return false
	}

	if err := e.device.Play(); err != nil {
		zlog.Warn().Err(err).Str("track_id", t.ID).Msg("playback: start failed")
		_ = e.device.Release()
		e.mu.Lock()
		e.state = StateIdle
		e.current = nil
		e.positionMs = 0
		e.mu.Unlock()
		e.notify()
		return false
	}

	e.mu.Lock()
	e.state = StatePlaying
	e.startPollingLocked()
	e.mu.Unlock()
	e.notify()
	return true
}

// Pause pauses playback. No-op unless playing.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.state != StatePlaying {
		e.mu.Unlock()
		return
	}
	if err := e.device.Pause(); err != nil {
		zlog.Warn().Err(err).Msg("playback: pause failed")
	}
	e.stopPollingLocked()
	e.state = StatePaused
	e.mu.Unlock()
	e.notify()
}

// Resume resumes paused playback. No-op unless paused.
func (e *Engine) Resume() {
	e.mu.Lock()
	if e.state != StatePaused {
		e.mu.Unlock()
		return
	}
	if err := e.device.Resume(); err != nil {
		zlog.Warn().Err(err).Msg("playback: resume failed")
	}
	e.state = StatePlaying
	e.startPollingLocked()
	e.mu.Unlock()
	e.notify()
}

// SeekTo moves the playhead. The engine stays in its current state.
func (e *Engine) SeekTo(ms int64) {
	e.mu.Lock()
	if e.state != StatePlaying && e.state != StatePaused {
		e.mu.Unlock()
		return
	}
	if err := e.device.Seek(ms); err != nil {
		zlog.Warn().Err(err).Int64("position_ms", ms).Msg("playback: seek failed")
		e.mu.Unlock()
		return
	}
	e.positionMs = ms
	e.mu.Unlock()
	e.notify()
}

// Stop tears down the session from any state and returns to idle.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.teardownLocked()
	e.mu.Unlock()
	e.notify()
}

// Close releases the engine. Equivalent to Stop.
func (e *Engine) Close() {
	e.Stop()
}

// PositionMs returns the last observed playhead position.
func (e *Engine) PositionMs() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionMs
}

// teardownLocked stops polling, releases the device, and resets to idle.
func (e *Engine) teardownLocked() {
	e.stopPollingLocked()
	if e.state != StateIdle {
		if err := e.device.Release(); err != nil {
			zlog.Warn().Err(err).Msg("playback: release failed")
		}
	}
	e.state = StateIdle
	e.current = nil
	e.positionMs = 0
	e.durationMs = 0
}

func (e *Engine) startPollingLocked() {
	e.stopPollingLocked()
	ctx, cancel := context.WithCancel(context.Background())
	e.pollCancel = cancel
	go e.pollLoop(ctx)
}

func (e *Engine) stopPollingLocked() {
	if e.pollCancel != nil {
		e.pollCancel()
		e.pollCancel = nil
	}
}

// pollLoop refreshes position/duration from the device and detects natural
// completion. It exits when its context is cancelled or the track ends.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := e.device.Status()
			if err != nil {
				zlog.Warn().Err(err).Msg("playback: device error, stopping")
				e.Stop()
				return
			}

			e.mu.Lock()
			if e.state != StatePlaying {
				e.mu.Unlock()
				return
			}
			if st.Finished {
				e.stopPollingLocked()
				if err := e.device.Release(); err != nil {
					zlog.Warn().Err(err).Msg("playback: release failed")
				}
				e.state = StateIdle
				e.current = nil
				e.positionMs = 0
				e.durationMs = 0
				fn := e.onTrackEnd
				e.mu.Unlock()

				e.notify()
				if fn != nil {
					fn()
				}
				return
			}
			e.positionMs = st.PositionMs
			if st.DurationMs > 0 {
				e.durationMs = st.DurationMs
			}
			e.mu.Unlock()
			e.notify()
		}
	}
}

func (e *Engine) snapshotLocked() StatusSnapshot {
	return StatusSnapshot{
		State:        e.state,
		IsPlaying:    e.state == StatePlaying,
		IsLoaded:     e.state == StatePlaying || e.state == StatePaused,
		CurrentTrack: e.current,
		PositionMs:   e.positionMs,
		DurationMs:   e.durationMs,
	}
}

func (e *Engine) notify() {
	e.mu.Lock()
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.observers.Notify(snap)
}
