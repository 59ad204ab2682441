// Package audio provides the speaker-backed playback device.
package audio

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"

	"github.com/mkaschke/offtrack/internal/app/playback"
)

// BeepDevice plays local MP3 files through the system speaker.
// It implements playback.Device.
type BeepDevice struct {
	mu       sync.Mutex
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	loaded   bool

	// Set from the speaker goroutine; must not touch d.mu.
	finished atomic.Bool
}

// NewBeepDevice creates an idle device. Load prepares the first source.
func NewBeepDevice() *BeepDevice {
	return &BeepDevice{}
}

// Load opens the source file and initializes the speaker for its format.
func (d *BeepDevice) Load(ctx context.Context, source string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "load canceled")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.releaseLocked()

	f, err := os.Open(source)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", source)
	}

	// The decoder owns the file handle; closing the streamer closes it.
	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to decode %s", source)
	}

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		streamer.Close()
		return errors.Wrap(err, "failed to initialize speaker")
	}

	d.streamer = streamer
	d.format = format
	d.finished.Store(false)
	d.loaded = true
	d.ctrl = &beep.Ctrl{
		Streamer: beep.Seq(streamer, beep.Callback(func() {
			d.finished.Store(true)
		})),
		Paused: true,
	}
	return nil
}

// Play starts playback of the loaded source from its current position.
func (d *BeepDevice) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		return errors.New("no source loaded")
	}

	speaker.Lock()
	d.ctrl.Paused = false
	speaker.Unlock()
	speaker.Play(d.ctrl)
	return nil
}

// Pause halts playback, keeping the playhead.
func (d *BeepDevice) Pause() error {
	return d.setPaused(true)
}

// Resume continues a paused source.
func (d *BeepDevice) Resume() error {
	return d.setPaused(false)
}

func (d *BeepDevice) setPaused(paused bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		return errors.New("no source loaded")
	}

	speaker.Lock()
	d.ctrl.Paused = paused
	speaker.Unlock()
	return nil
}

// Seek moves the playhead to the given position.
func (d *BeepDevice) Seek(ms int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		return errors.New("no source loaded")
	}

	sample := d.format.SampleRate.N(time.Duration(ms) * time.Millisecond)
	if sample < 0 {
		sample = 0
	}
	if sample >= d.streamer.Len() {
		sample = d.streamer.Len() - 1
	}

	speaker.Lock()
	err := d.streamer.Seek(sample)
	speaker.Unlock()
	return errors.Wrap(err, "seek failed")
}

// Status reports the current playhead, duration, and completion.
func (d *BeepDevice) Status() (playback.DeviceStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		return playback.DeviceStatus{}, errors.New("no source loaded")
	}

	if d.finished.Load() {
		return playback.DeviceStatus{
			PositionMs: d.sampleToMs(d.streamer.Len()),
			DurationMs: d.sampleToMs(d.streamer.Len()),
			Finished:   true,
		}, nil
	}

	speaker.Lock()
	pos := d.streamer.Position()
	speaker.Unlock()

	return playback.DeviceStatus{
		PositionMs: d.sampleToMs(pos),
		DurationMs: d.sampleToMs(d.streamer.Len()),
	}, nil
}

// Release tears down the loaded source.
func (d *BeepDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.releaseLocked()
	return nil
}

func (d *BeepDevice) releaseLocked() {
	if !d.loaded {
		return
	}
	speaker.Clear()
	if d.streamer != nil {
		d.streamer.Close()
	}
	d.streamer = nil
	d.ctrl = nil
	d.loaded = false
	d.finished.Store(false)
}

func (d *BeepDevice) sampleToMs(n int) int64 {
	return d.format.SampleRate.D(n).Milliseconds()
}
