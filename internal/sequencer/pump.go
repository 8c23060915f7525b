package sequencer

import "github.com/opltools/opl-go/internal/chip"

// Pump glues the IMF and ADL sequencers to the FM chip and hands stereo
// int16 PCM to a host sink. It is the only piece of the engine that runs on
// the realtime audio callback: it never allocates once constructed.
type Pump struct {
	chip *chip.Chip

	imf *Imf
	adl *Adl

	mixBuf []int32 // stereo-interleaved, len == samplesPerMusicTick*2

	samplesPerMusicTick int
	numReady            int

	started bool
}

// NewPump constructs a pump for the given chip, deriving the music-tick and
// ADL-tick sample ratios from mixerRate/imfClockRate/adlClockRate
// (samplesPerMusicTick = mixerRate/imfClockRate, adlSamplesPerTick =
// imfClockRate/adlClockRate).
func NewPump(c *chip.Chip, mixerRate, imfClockRate, adlClockRate int) *Pump {
	if imfClockRate <= 0 {
		imfClockRate = 560
	}
	if adlClockRate <= 0 {
		adlClockRate = 140
	}
	samplesPerMusicTick := mixerRate / imfClockRate
	if samplesPerMusicTick <= 0 {
		samplesPerMusicTick = 1
	}
	adlSamplesPerTick := imfClockRate / adlClockRate
	if adlSamplesPerTick <= 0 {
		adlSamplesPerTick = 1
	}
	return &Pump{
		chip:                c,
		adl:                 NewAdl(adlSamplesPerTick),
		mixBuf:              make([]int32, samplesPerMusicTick*2),
		samplesPerMusicTick: samplesPerMusicTick,
	}
}

// PlayIMF loads a new register-write stream, soft-resets the chip, and
// arms the pump to start generating from it on the next Generate call.
func (p *Pump) PlayIMF(data []byte) {
	p.chip.Setup()
	p.imf = NewImf(data)
	p.numReady = 0
	p.started = true
}

// StopIMF disables further IMF event processing; already-released envelopes
// keep decaying because the pump keeps generating samples regardless.
func (p *Pump) StopIMF() {
	if p.imf != nil {
		p.imf.Stop()
	}
}

// PlayADL arms the one-shot ADL sound effect.
func (p *Pump) PlayADL(sound *AdlSound) {
	p.adl.Play(p.chip, sound)
}

// StopADL clears the ADL state and releases its note.
func (p *Pump) StopADL() {
	p.adl.Stop(p.chip)
}

// IsIMFPlaying reports whether the IMF sequencer is actively processing
// events (false after StopIMF or before any PlayIMF call).
func (p *Pump) IsIMFPlaying() bool { return p.imf.Active() }

// IsADLPlaying reports whether an ADL sound is currently armed or playing.
func (p *Pump) IsADLPlaying() bool { return p.adl.Active() }

// AdlFinishedFunc is invoked exactly once, on the pump tick where the ADL
// note stream runs dry.
type AdlFinishedFunc func()

// Generate fills out (interleaved stereo int16) by draining ready OPL
// samples and, each time the music tick's samples run out, advancing the
// ADL and IMF sequencers by one tick before generating
// samplesPerMusicTick more. onAdlFinished, if non-nil, is invoked exactly
// once per completed ADL sound.
func (p *Pump) Generate(out []int16, onAdlFinished AdlFinishedFunc) {
	if !p.started {
		for i := range out {
			out[i] = 0
		}
		return
	}
	needed := len(out) / 2
	pos := 0
	for needed > 0 {
		if p.numReady > 0 {
			n := p.numReady
			if n > needed {
				n = needed
			}
			p.chip.GenerateBlock2(n, p.mixBuf[:n*2])
			for i := 0; i < n*2; i++ {
				out[pos*2+i] = int16(p.mixBuf[i] << 2)
			}
			pos += n
			p.numReady -= n
			needed -= n
		}
		if p.numReady == 0 {
			if finished := p.adl.Tick(p.chip); finished && onAdlFinished != nil {
				onAdlFinished()
			}
			p.imf.Tick(p.chip)
			p.numReady = p.samplesPerMusicTick
		}
	}
}
