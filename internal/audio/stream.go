// Package audio adapts the FM engine's int16 PCM pump to a host-playable
// audio stream, for a []int16-producing sink instead of a []float32 one.
package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// Sink produces interleaved stereo int16 PCM on demand, the same contract
// the audio pump's Generate method fulfills.
type Sink interface {
	Generate(out []int16)
}

// StreamReader adapts a Sink to io.Reader by pulling int16 frames and
// serializing them little-endian, the width ebiten's audio.Context expects.
type StreamReader struct {
	mu   sync.Mutex
	sink Sink
	buf  []int16
}

func NewStreamReader(sink Sink) *StreamReader {
	return &StreamReader{sink: sink}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 4 // 2 channels * 2 bytes
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]int16, need)
	}
	r.buf = r.buf[:need]
	r.sink.Generate(r.buf)
	for i := 0; i < need; i++ {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(r.buf[i]))
	}
	return frames * 4, nil
}

func (r *StreamReader) Close() error { return nil }

// Player wraps an ebiten audio.Player bound to a Sink-backed StreamReader.
type Player struct {
	player *ebitaudio.Player
	reader *StreamReader
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioContextErr  error
	audioSampleRate  int
)

// sharedAudioContext lazily constructs the single process-wide audio context
// at the first requested sample rate; later calls at a different rate fail,
// since ebiten permits only one audio.Context per process.
func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioContextErr != nil {
		return nil, audioContextErr
	}
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

// NewPlayer opens a realtime player over sink at sampleRate, using the
// process-wide shared ebiten audio context.
func NewPlayer(sampleRate int, sink Sink) (*Player, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(sink)
	pl, err := ctx.NewPlayer(reader)
	if err != nil {
		return nil, err
	}
	return &Player{player: pl, reader: reader}, nil
}

func (p *Player) Play()           { p.player.Play() }
func (p *Player) Pause()          { p.player.Pause() }
func (p *Player) IsPlaying() bool { return p.player.IsPlaying() }

// Position returns the current playback position (what the listener
// actually hears, lagging the generator by the host's buffer latency).
func (p *Player) Position() time.Duration {
	return p.player.Position()
}

func (p *Player) Stop() error {
	p.player.Pause()
	if err := p.player.Close(); err != nil {
		return err
	}
	return p.reader.Close()
}
