package opl

import (
	"encoding/binary"

	"github.com/opltools/opl-go/internal/chip"
	"github.com/opltools/opl-go/internal/sequencer"
)

// RenderIMF renders frames stereo samples of an IMF register-write stream
// at mixerRate, entirely offline: no audio backend, no Device, no mutex.
// data must already have passed a length%4==0 check; a malformed tail
// shorter than a full record stops dispatching rather than reading past the
// buffer, same as the realtime path.
func RenderIMF(data []byte, mixerRate int, frames int) []int16 {
	c := chip.New(mixerRate)
	c.Setup()
	p := sequencer.NewPump(c, mixerRate, 560, 140)
	p.PlayIMF(data)

	out := make([]int16, frames*2)
	p.Generate(out, nil)
	return out
}

// RenderADL renders frames stereo samples of a single ADL sound effect at
// mixerRate. The result always holds frames stereo samples: once the note
// stream runs dry the note is released and its envelope decays for the rest
// of the buffer, matching the realtime pump's behavior.
func RenderADL(sound *sequencer.AdlSound, mixerRate int, frames int) []int16 {
	c := chip.New(mixerRate)
	c.Setup()
	p := sequencer.NewPump(c, mixerRate, 560, 140)
	p.PlayIMF(nil)
	p.PlayADL(sound)

	out := make([]int16, frames*2)
	p.Generate(out, nil)
	return out
}

// EncodeWAV wraps samples (interleaved int16 PCM) in a canonical 44-byte
// RIFF/WAVE header for channels at sampleRate.
func EncodeWAV(samples []int16, sampleRate, channels int) []byte {
	dataSize := len(samples) * 2
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2
	chunkSize := 36 + dataSize

	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 16)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[44+i*2:], uint16(s))
	}
	return out
}
