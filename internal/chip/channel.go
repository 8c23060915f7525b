package chip

// synthMode tags which modulation algorithm a Channel's Generate method
// dispatches to, covering the hardware's combinations of 2-op/4-op, FM/AM
// routing, and percussion.
type synthMode int

const (
	sm2AM synthMode = iota
	sm2FM
	sm3AM
	sm3FM
	sm3FMFM
	sm3AMFM
	sm3FMAM
	sm3AMAM
	sm2Percussion
	sm3Percussion
)

const (
	fourOpSilent  uint8 = 0x80 // the silent second half of a 4-op pair
	percussionBit uint8 = 0x40 // channels 6-8, claimed by rhythm mode
)

// Channel owns two FM operators plus their shared feedback, pan, and
// modulation routing. The register decode permutes 4-op pairs onto adjacent
// array slots, so a pair is always (c, c.next); the percussion group is
// channel 6 plus its two successors.
type Channel struct {
	tables *Tables

	Op0, Op1 *Operator

	next, prev *Channel

	mode synthMode

	freqBlock   uint32 // raw A0/B0 shadow: block<<10 | freq
	chanData    uint32 // freqBlock | kslBase<<16 | keyCode<<24, as handed to operators
	lastKslBase uint8
	lastKeyCode uint32
	old         [2]int32
	feedback    uint

	regB0, regC0 uint8

	fourMask   uint8 // bits 0-5 group id, bit 6 percussion, bit 7 silent half
	fourActive bool  // this channel's group bit is set in register 0x104
	rhythm     bool  // register 0xBD rhythm bit (channels 6-8 only)

	maskLeft, maskRight int32

	opl3Active bool
	notesel    bool
}

// NewChannel constructs a channel with two freshly allocated operators bound
// to the shared table set.
func NewChannel(t *Tables) *Channel {
	return &Channel{
		tables:    t,
		Op0:       NewOperator(t),
		Op1:       NewOperator(t),
		feedback:  31,
		maskLeft:  -1,
		maskRight: -1,
		mode:      sm2FM,
	}
}

// activeFourOp returns this channel's fourMask while its 4-op group is
// enabled (OPL3 mode on and the 0x104 bit set), else 0.
func (c *Channel) activeFourOp() uint8 {
	if !c.opl3Active || !c.fourActive {
		return 0
	}
	return c.fourMask
}

// WriteA0 updates the frequency low byte. Writes to the silent half of an
// enabled 4-op pair are ignored; writes to the driving half propagate to it.
func (c *Channel) WriteA0(v uint8) {
	fourOp := c.activeFourOp()
	if fourOp > 0x80 {
		return
	}
	if (c.freqBlock^uint32(v))&0xff == 0 {
		return
	}
	c.setChanData((c.freqBlock&^0xff)|uint32(v), fourOp)
}

// WriteB0 updates block/frequency-high and the key-on bit. Keying an enabled
// 4-op pair keys all four operators.
func (c *Channel) WriteB0(v uint8) {
	fourOp := c.activeFourOp()
	if fourOp > 0x80 {
		return
	}
	if change := (c.freqBlock ^ (uint32(v) << 8)) & 0x1f00; change != 0 {
		c.setChanData(c.freqBlock^change, fourOp)
	}
	if (v^c.regB0)&0x20 == 0 {
		c.regB0 = v
		return
	}
	c.regB0 = v
	if v&0x20 != 0 {
		c.Op0.KeyOn(keyOn1)
		c.Op1.KeyOn(keyOn1)
		if fourOp&0x3f != 0 {
			c.next.Op0.KeyOn(keyOn1)
			c.next.Op1.KeyOn(keyOn1)
		}
	} else {
		c.Op0.KeyOff(keyOn1)
		c.Op1.KeyOff(keyOn1)
		if fourOp&0x3f != 0 {
			c.next.Op0.KeyOff(keyOn1)
			c.next.Op1.KeyOff(keyOn1)
		}
	}
}

// WriteC0 updates feedback/connection, pan masks, and the synth handler.
func (c *Channel) WriteC0(v uint8) {
	if v^c.regC0 == 0 {
		return
	}
	c.regC0 = v
	fb := (v >> 1) & 7
	if fb == 0 {
		c.feedback = 31
	} else {
		c.feedback = uint(9 - fb)
	}
	c.updateSynth()
}

// SetFourActive installs whether this channel's 4-op group bit is currently
// enabled in register 0x104, re-selecting the synth handler on change.
func (c *Channel) SetFourActive(on bool) {
	if c.fourActive == on {
		return
	}
	c.fourActive = on
	c.updateSynth()
}

// SetOpl3Active toggles OPL3 mode, which changes stereo masking and the set
// of available synth-mode combinations.
func (c *Channel) SetOpl3Active(on bool) {
	if c.opl3Active == on {
		return
	}
	c.opl3Active = on
	c.updateSynth()
}

// SetRhythm installs the rhythm-mode flag on a percussion channel and
// re-selects the synth handler either way: entering rhythm mode installs the
// percussion handler, leaving it restores the regular one.
func (c *Channel) SetRhythm(on bool) {
	if c.rhythm == on {
		return
	}
	c.rhythm = on
	c.updateSynth()
}

// SetNotesel tells the channel which frequency bit the key code derives
// from: bit 0x100 when notesel is enabled (register 0x08 bit 6 set), else
// bit 0x200.
func (c *Channel) SetNotesel(on bool) {
	if c.notesel == on {
		return
	}
	c.notesel = on
	c.applyChanData(c.freqBlock)
}

// keyCodeBits derives the 4-bit rate-scaling key code from a raw
// frequency/block word: the 3 block bits plus one note-select bit.
func (c *Channel) keyCodeBits(freqBlock uint32) uint32 {
	block := (freqBlock & 0x1c00) >> 9
	var note uint32
	if c.notesel {
		note = (freqBlock & 0x100) >> 8
	} else {
		note = (freqBlock & 0x200) >> 9
	}
	return block | note
}

// setChanData installs a new raw frequency/block word on this channel and,
// when it drives an enabled 4-op pair, mirrors it onto the silent half.
func (c *Channel) setChanData(freqBlock uint32, fourOp uint8) {
	c.applyChanData(freqBlock)
	if fourOp&0x3f != 0 {
		c.next.applyChanData(freqBlock)
	}
}

// applyChanData packs freqBlock with its derived KSL base and key code and
// hands the result to both operators, flagging which derived inputs changed.
func (c *Channel) applyChanData(freqBlock uint32) {
	kslBase := c.tables.Ksl[(freqBlock>>10)&7][(freqBlock>>6)&0xf]
	keyCode := c.keyCodeBits(freqBlock)
	full := (freqBlock & 0xffff) | uint32(kslBase)<<16 | keyCode<<24

	kslChanged := kslBase != c.lastKslBase
	keyCodeChanged := keyCode != c.lastKeyCode

	c.freqBlock = freqBlock
	c.chanData = full
	c.lastKslBase = kslBase
	c.lastKeyCode = keyCode

	c.Op0.SetChanData(full, kslChanged, keyCodeChanged)
	c.Op1.SetChanData(full, kslChanged, keyCodeChanged)
}

// updateSynth re-selects the synth handler from the connection bit, the 4-op
// pairing state, and rhythm mode. For an enabled 4-op pair the mode lives on
// the pair's first channel and combines both channels' connection bits.
func (c *Channel) updateSynth() {
	if c.opl3Active {
		c.maskLeft = 0
		c.maskRight = 0
		if c.regC0&0x10 != 0 {
			c.maskLeft = -1
		}
		if c.regC0&0x20 != 0 {
			c.maskRight = -1
		}
		if fourOp := c.activeFourOp(); fourOp&0x3f != 0 {
			first, second := c, c.next
			if fourOp&fourOpSilent != 0 {
				first, second = c.prev, c
			}
			switch (first.regC0 & 1) | (second.regC0&1)<<1 {
			case 0:
				first.mode = sm3FMFM
			case 1:
				first.mode = sm3AMFM
			case 2:
				first.mode = sm3FMAM
			case 3:
				first.mode = sm3AMAM
			}
		} else if c.fourMask&percussionBit != 0 && c.rhythm {
			// Rhythm mode owns channels 6-8; only channel 6's handler is ever
			// dispatched (it advances the generate loop by all three slots).
			c.mode = sm3Percussion
		} else if c.regC0&1 != 0 {
			c.mode = sm3AM
		} else {
			c.mode = sm3FM
		}
	} else {
		c.maskLeft = -1
		c.maskRight = -1
		if c.fourMask&percussionBit != 0 && c.rhythm {
			c.mode = sm2Percussion
		} else if c.regC0&1 != 0 {
			c.mode = sm2AM
		} else {
			c.mode = sm2FM
		}
	}
}

// Silent reports whether both operators are fully off, letting tests probe
// for a channel that has finished releasing.
func (c *Channel) Silent() bool {
	return c.Op0.state == envOff && c.Op1.state == envOff
}

// Generate runs this channel's synth handler for samples frames,
// accumulating into mix (stereo interleaved pairs), and returns how many
// channel slots the caller advances by: 1 for 2-op, 2 for a 4-op pair, 3
// for the percussion group.
func (c *Channel) Generate(chp *Chip, mix []int32, samples int) int {
	switch c.mode {
	case sm2AM, sm3AM:
		if c.Op0.Silent() && c.Op1.Silent() {
			c.old[0], c.old[1] = 0, 0
			return 1
		}
	case sm2FM, sm3FM:
		if c.Op1.Silent() {
			c.old[0], c.old[1] = 0, 0
			return 1
		}
	case sm3FMFM:
		if c.next.Op1.Silent() {
			c.old[0], c.old[1] = 0, 0
			return 2
		}
	case sm3AMFM:
		if c.Op0.Silent() && c.next.Op1.Silent() {
			c.old[0], c.old[1] = 0, 0
			return 2
		}
	case sm3FMAM:
		if c.Op1.Silent() && c.next.Op1.Silent() {
			c.old[0], c.old[1] = 0, 0
			return 2
		}
	case sm3AMAM:
		if c.Op0.Silent() && c.next.Op0.Silent() && c.next.Op1.Silent() {
			c.old[0], c.old[1] = 0, 0
			return 2
		}
	}

	c.Op0.Prepare(chp.tremoloValue, chp.vibratoSign, chp.vibratoShift)
	c.Op1.Prepare(chp.tremoloValue, chp.vibratoSign, chp.vibratoShift)
	switch c.mode {
	case sm3FMFM, sm3AMFM, sm3FMAM, sm3AMAM:
		c.next.Op0.Prepare(chp.tremoloValue, chp.vibratoSign, chp.vibratoShift)
		c.next.Op1.Prepare(chp.tremoloValue, chp.vibratoSign, chp.vibratoShift)
	case sm2Percussion, sm3Percussion:
		c.next.Op0.Prepare(chp.tremoloValue, chp.vibratoSign, chp.vibratoShift)
		c.next.Op1.Prepare(chp.tremoloValue, chp.vibratoSign, chp.vibratoShift)
		c.next.next.Op0.Prepare(chp.tremoloValue, chp.vibratoSign, chp.vibratoShift)
		c.next.next.Op1.Prepare(chp.tremoloValue, chp.vibratoSign, chp.vibratoShift)
	}

	for i := 0; i < samples; i++ {
		if c.mode == sm2Percussion || c.mode == sm3Percussion {
			c.generatePercussion(chp, mix[i*2:])
			continue
		}

		// Unsigned shift so feedback 31 clears every bit.
		mod := int32(uint32(c.old[0]+c.old[1]) >> c.feedback)
		c.old[0] = c.old[1]
		c.old[1] = c.Op0.GetSample(mod)
		out0 := c.old[0]

		var sample int32
		switch c.mode {
		case sm2AM, sm3AM:
			sample = out0 + c.Op1.GetSample(0)
		case sm2FM, sm3FM:
			sample = c.Op1.GetSample(out0)
		case sm3FMFM:
			stage := c.Op1.GetSample(out0)
			stage = c.next.Op0.GetSample(stage)
			sample = c.next.Op1.GetSample(stage)
		case sm3AMFM:
			sample = out0
			stage := c.Op1.GetSample(0)
			stage = c.next.Op0.GetSample(stage)
			sample += c.next.Op1.GetSample(stage)
		case sm3FMAM:
			sample = c.Op1.GetSample(out0)
			stage := c.next.Op0.GetSample(0)
			sample += c.next.Op1.GetSample(stage)
		case sm3AMAM:
			sample = out0
			stage := c.Op1.GetSample(0)
			sample += c.next.Op0.GetSample(stage)
			sample += c.next.Op1.GetSample(0)
		}
		mix[i*2] += sample & c.maskLeft
		mix[i*2+1] += sample & c.maskRight
	}

	switch c.mode {
	case sm3FMFM, sm3AMFM, sm3FMAM, sm3AMAM:
		return 2
	case sm2Percussion, sm3Percussion:
		return 3
	}
	return 1
}

// generatePercussion mixes one sample of the five rhythm voices sharing
// channels 6-8: bass drum as a normal 2-op pair on this channel, hi-hat and
// snare on the next channel's operators, tom-tom and top cymbal on the one
// after. Hi-hat, snare, and cymbal derive their phase from a shared noise
// bit and phase bits sampled off the hi-hat and cymbal phase generators.
func (c *Channel) generatePercussion(chp *Chip, out []int32) {
	mod := int32(uint32(c.old[0]+c.old[1]) >> c.feedback)
	c.old[0] = c.old[1]
	c.old[1] = c.Op0.GetSample(mod)
	// In AM mode the bass drum carrier runs unmodulated.
	if c.regC0&1 != 0 {
		mod = 0
	} else {
		mod = c.old[0]
	}
	sample := c.Op1.GetSample(mod)

	hh, sd := c.next.Op0, c.next.Op1
	tom, cym := c.next.next.Op0, c.next.next.Op1

	noiseBit := chp.forwardNoise() & 0x1
	hhPhase := hh.forwardWave()
	cymPhase := cym.forwardWave()
	phaseBit := uint32(0)
	if ((hhPhase&0x88)^((hhPhase<<5)&0x80))|((cymPhase^(cymPhase<<2))&0x20) != 0 {
		phaseBit = 0x02
	}

	if vol := hh.forwardVolume(); vol < EnvLimit {
		index := (phaseBit << 8) | (0x34 << (phaseBit ^ (noiseBit << 1)))
		sample += hh.getWave(index, vol)
	}
	if vol := sd.forwardVolume(); vol < EnvLimit {
		index := (0x100 + (hhPhase & 0x100)) ^ (noiseBit << 8)
		sample += sd.getWave(index, vol)
	}
	sample += tom.GetSample(0)
	if vol := cym.forwardVolume(); vol < EnvLimit {
		index := (1 + phaseBit) << 8
		sample += cym.getWave(index, vol)
	}

	sample <<= 1
	out[0] += sample
	out[1] += sample
}
