package opl

import (
	"errors"
	"testing"
)

// All Device tests in this file share one mixer rate: the audio backend's
// process-wide context is created once at the first requested rate, and a
// later Init at a different rate would fail.
const testMixerRate = 44100

func TestDeviceMethodsRequireInit(t *testing.T) {
	d := New()
	if err := d.PlayIMF([]byte{0x20, 0x01, 0x00, 0x00}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("PlayIMF before Init = %v, want ErrNotInitialized", err)
	}
	if err := d.StopIMF(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("StopIMF before Init = %v, want ErrNotInitialized", err)
	}
	if err := d.PlayADL(make([]byte, 23)); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("PlayADL before Init = %v, want ErrNotInitialized", err)
	}
	if err := d.StopADL(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("StopADL before Init = %v, want ErrNotInitialized", err)
	}
	if err := d.WriteReg(0x20, 0x01); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("WriteReg before Init = %v, want ErrNotInitialized", err)
	}
	if err := d.Pause(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Pause before Init = %v, want ErrNotInitialized", err)
	}
	if err := d.Resume(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Resume before Init = %v, want ErrNotInitialized", err)
	}
	if d.IsIMFPlaying() {
		t.Fatalf("IsIMFPlaying before Init should be false")
	}
	if d.IsADLPlaying() {
		t.Fatalf("IsADLPlaying before Init should be false")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close on an uninitialized device should be a no-op, got %v", err)
	}
}

func TestDevicePlayIMFRejectsMalformedStreams(t *testing.T) {
	d := New()
	if err := d.Init(testMixerRate, 560, 140); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	if err := d.PlayIMF(nil); !errors.Is(err, ErrStreamTruncated) {
		t.Fatalf("PlayIMF(nil) = %v, want ErrStreamTruncated", err)
	}
	if err := d.PlayIMF([]byte{}); !errors.Is(err, ErrStreamTruncated) {
		t.Fatalf("PlayIMF(empty) = %v, want ErrStreamTruncated", err)
	}
	if err := d.PlayIMF([]byte{0x20, 0x01, 0x00}); !errors.Is(err, ErrStreamTruncated) {
		t.Fatalf("PlayIMF(3 bytes) = %v, want ErrStreamTruncated", err)
	}
	if err := d.PlayIMF([]byte{0x20, 0x01, 0x00, 0x00}); err != nil {
		t.Fatalf("PlayIMF(valid 4-byte record) = %v, want nil", err)
	}
	if !d.IsIMFPlaying() {
		t.Fatalf("expected IsIMFPlaying after a valid PlayIMF")
	}
	if err := d.StopIMF(); err != nil {
		t.Fatalf("StopIMF: %v", err)
	}
	if d.IsIMFPlaying() {
		t.Fatalf("expected IsIMFPlaying to be false after StopIMF")
	}
}

func TestDevicePlayADLRejectsMalformedBlob(t *testing.T) {
	d := New()
	if err := d.Init(testMixerRate, 560, 140); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	if err := d.PlayADL([]byte{0x00, 0x01}); !errors.Is(err, ErrAdlMalformed) {
		t.Fatalf("PlayADL(too short) = %v, want ErrAdlMalformed", err)
	}
}

func TestDeviceWriteRegSucceedsAndGenerateIsSilentBeforePlayIMF(t *testing.T) {
	d := New()
	if err := d.Init(testMixerRate, 560, 140); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	for _, w := range []struct {
		reg uint32
		val byte
	}{
		{0x20, 0x01}, {0x40, 0x10}, {0x60, 0xf0}, {0x80, 0x77},
		{0xa0, 0x98}, {0xb0, 0x31},
	} {
		if err := d.WriteReg(w.reg, w.val); err != nil {
			t.Fatalf("WriteReg(%#x, %#x): %v", w.reg, w.val, err)
		}
	}

	// Generate drives the pump directly: before any PlayIMF call it reports
	// silence rather than panicking.
	out := make([]int16, 256)
	d.Generate(out)
	for _, s := range out {
		if s != 0 {
			t.Fatalf("expected silence before PlayIMF, got non-zero sample")
		}
	}
}

func TestDevicePauseResume(t *testing.T) {
	d := New()
	if err := d.Init(testMixerRate, 560, 140); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	if err := d.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := d.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
}

func TestDeviceControlSurfaceConcurrentWithGenerate(t *testing.T) {
	d := New()
	if err := d.Init(testMixerRate, 560, 140); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	// Hammer the control surface from another goroutine while draining the
	// callback path; under -race this catches any generation that escapes the
	// device mutex.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		stream := []byte{0x20, 0x01, 0x00, 0x00, 0xb0, 0x31, 0x01, 0x00}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if err := d.PlayIMF(stream); err != nil {
				t.Errorf("PlayIMF: %v", err)
				return
			}
			d.WriteReg(0x40, byte(i&0x3f))
			if i%3 == 0 {
				d.StopIMF()
			}
		}
	}()

	out := make([]int16, 1024)
	for i := 0; i < 200; i++ {
		d.Generate(out)
	}
	close(stop)
	<-done
}

func TestDeviceOnAdlFinishedFiresFromGenerate(t *testing.T) {
	d := New()
	if err := d.Init(testMixerRate, 560, 140); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	if err := d.PlayIMF([]byte{0x20, 0x01, 0x00, 0x00}); err != nil {
		t.Fatalf("PlayIMF: %v", err)
	}

	blob := make([]byte, 0, 23+2+1)
	blob = append(blob, 2, 0, 0, 0) // one data byte plus a trailing key-off byte
	blob = append(blob, 0, 0)       // priority
	blob = append(blob, make([]byte, 13)...)
	blob = append(blob, 0, 0, 0) // padding
	blob = append(blob, 4)       // block
	blob = append(blob, 0x60, 0x00)
	blob = append(blob, 0) // terminator

	if err := d.PlayADL(blob); err != nil {
		t.Fatalf("PlayADL: %v", err)
	}

	finished := make(chan struct{}, 1)
	d.OnAdlFinished(func() {
		select {
		case finished <- struct{}{}:
		default:
		}
	})

	out := make([]int16, 4096)
	for i := 0; i < 64 && len(finished) == 0; i++ {
		d.Generate(out)
	}
	if len(finished) == 0 {
		t.Fatalf("expected OnAdlFinished to fire while draining Generate")
	}
	if d.IsADLPlaying() {
		t.Fatalf("ADL should no longer be playing once it has finished")
	}
}
