// Package opl is an OPL2/OPL3 FM synthesis emulator driven by IMF music
// streams and ADL sound-effect streams, glued to a realtime audio backend.
package opl

import (
	"sync"

	intaudio "github.com/opltools/opl-go/internal/audio"
	"github.com/opltools/opl-go/internal/chip"
	"github.com/opltools/opl-go/internal/sequencer"
)

// Device is the public, concurrency-safe control surface for the emulator:
// one FM chip, its IMF/ADL sequencers, and the realtime audio backend that
// pulls samples from them.
type Device struct {
	mu sync.Mutex

	initialized bool

	chip  *chip.Chip
	pump  *sequencer.Pump
	audio *intaudio.Player

	onAdlFinished func()
}

// New returns an uninitialized handle. Call Init before any other method.
func New() *Device {
	return &Device{}
}

// Init builds the chip's tables at mixerRate and opens the audio backend.
// A zero argument takes the default: mixerRate 44100, imfClockRate 560,
// adlClockRate 140.
func (d *Device) Init(mixerRate, imfClockRate, adlClockRate int) error {
	if mixerRate <= 0 {
		mixerRate = 44100
	}
	if imfClockRate <= 0 {
		imfClockRate = 560
	}
	if adlClockRate <= 0 {
		adlClockRate = 140
	}

	// A second Init replaces the whole engine; stop the old backend first so
	// it no longer pulls samples from this device.
	d.mu.Lock()
	old := d.audio
	d.audio = nil
	d.initialized = false
	d.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	c := chip.New(mixerRate)
	c.Setup()
	p := sequencer.NewPump(c, mixerRate, imfClockRate, adlClockRate)

	player, err := intaudio.NewPlayer(mixerRate, d)
	if err != nil {
		return ErrDeviceFailed
	}

	d.mu.Lock()
	d.chip = c
	d.pump = p
	d.audio = player
	d.initialized = true
	d.mu.Unlock()

	// Started outside the mutex: the backend pulls samples through Generate,
	// which takes the same lock.
	player.Play()
	return nil
}

// PlayIMF validates and loads a new register-write stream, soft-resetting
// the chip and restarting playback from the beginning.
func (d *Device) PlayIMF(data []byte) error {
	if len(data) == 0 || len(data)%4 != 0 {
		return ErrStreamTruncated
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.pump.PlayIMF(data)
	return nil
}

// StopIMF halts further IMF event processing. Already-released envelopes
// keep decaying naturally since sample generation continues regardless.
func (d *Device) StopIMF() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.pump.StopIMF()
	return nil
}

// PlayADL parses and arms a one-shot sound effect on OPL channel 0.
func (d *Device) PlayADL(data []byte) error {
	sound, err := sequencer.ParseAdlSound(data)
	if err != nil {
		return ErrAdlMalformed
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.pump.PlayADL(sound)
	return nil
}

// StopADL clears any armed or playing ADL sound and releases its note.
func (d *Device) StopADL() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.pump.StopADL()
	return nil
}

// WriteReg writes a single OPL register directly, bypassing both
// sequencers. Useful for tests and simple tone-probing tools.
func (d *Device) WriteReg(reg uint32, val byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	d.chip.WriteReg(reg, val)
	return nil
}

// IsIMFPlaying reports whether the IMF sequencer is actively processing
// events.
func (d *Device) IsIMFPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return false
	}
	return d.pump.IsIMFPlaying()
}

// IsADLPlaying reports whether an ADL sound is currently armed or playing.
func (d *Device) IsADLPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return false
	}
	return d.pump.IsADLPlaying()
}

// OnAdlFinished registers a callback invoked exactly once, from the audio
// callback, each time an ADL sound's note stream runs dry. Pass nil to
// clear it.
func (d *Device) OnAdlFinished(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onAdlFinished = fn
}

// Pause suspends the audio backend without discarding sequencer state. The
// backend call happens outside the mutex: its callback goroutine takes the
// same lock inside Generate.
func (d *Device) Pause() error {
	d.mu.Lock()
	audio := d.audio
	d.mu.Unlock()
	if audio == nil {
		return ErrNotInitialized
	}
	audio.Pause()
	return nil
}

// Resume resumes a previously paused device.
func (d *Device) Resume() error {
	d.mu.Lock()
	audio := d.audio
	d.mu.Unlock()
	if audio == nil {
		return ErrNotInitialized
	}
	audio.Play()
	return nil
}

// Close stops playback and releases the audio backend. The Device is left
// uninitialized; Init must be called again before reuse.
func (d *Device) Close() error {
	d.mu.Lock()
	if !d.initialized {
		d.mu.Unlock()
		return nil
	}
	audio := d.audio
	d.audio = nil
	d.pump = nil
	d.chip = nil
	d.initialized = false
	d.mu.Unlock()

	if err := audio.Stop(); err != nil {
		return ErrDeviceFailed
	}
	return nil
}

// Generate implements intaudio.Sink. It is called from the audio backend's
// callback goroutine and holds the same mutex the control surface takes, so
// a PlayIMF/PlayADL/WriteReg issued from another goroutine is never
// interleaved with sample generation mid-buffer. The ADL completion callback
// runs after the lock is dropped, so it may call back into the Device.
func (d *Device) Generate(out []int16) {
	d.mu.Lock()
	pump := d.pump
	onFinished := d.onAdlFinished
	if pump == nil {
		d.mu.Unlock()
		for i := range out {
			out[i] = 0
		}
		return
	}
	adlFinished := false
	pump.Generate(out, func() { adlFinished = true })
	d.mu.Unlock()

	if adlFinished && onFinished != nil {
		onFinished()
	}
}
