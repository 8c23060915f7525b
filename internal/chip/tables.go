// Package chip implements the OPL2/OPL3 FM synthesis core: operators,
// channels, and the register-addressed chip that drives them.
package chip

import "math"

const (
	OplRateNum = 14318180
	OplRateDen = 288

	NumChannels = 18

	WaveBits = 10
	WaveSh   = 22
	EnvBits  = 9
	EnvMin   = 0
	EnvMax   = 511
	EnvLimit = 1024
	EnvExtra = 0

	RateSh = 24
	MulSh  = 16

	TremoloTableSize = 52

	LfoSh  = WaveSh - 10
	LfoMax = 256 << LfoSh
)

// oplRate is the chip's native sample rate; every table is scaled by
// oplRate/mixerRate so the engine runs at the host rate instead.
func oplRate() float64 {
	return float64(OplRateNum) / float64(OplRateDen)
}

var kslCreate = [16]uint8{64, 32, 24, 19, 16, 12, 11, 10, 8, 6, 5, 4, 3, 2, 1, 0}

var freqCreate = [16]uint32{1, 2, 4, 6, 8, 10, 12, 14, 16, 18, 20, 20, 24, 24, 30, 30}

var envIncrease = [13]uint32{4, 5, 6, 7, 8, 10, 12, 14, 16, 20, 24, 28, 32}

// waveBase, waveMask, waveStart describe where each of the eight waveforms
// lives inside the shared 4096-entry wave table and how its phase index
// wraps and begins.
var waveBase = [8]uint16{0, 512, 512, 2048, 2560, 3072, 256, 1024}
var waveMask = [8]uint32{1023, 1023, 511, 511, 1023, 1023, 512, 1023}
var waveStart = [8]uint32{512, 0, 0, 0, 0, 512, 512, 256}

// Tables holds every value the engine precomputes once, at the mixer rate
// chosen for the lifetime of a Chip. None of it is mutated after New.
type Tables struct {
	MixerRate int

	Wave [4096]int16

	// Mul is widened past the hardware's 384-entry table: with EnvExtra=0,
	// an operator's volume can approach EnvLimit (1024) before the silence
	// gate trips, so the table must cover that full range or the lookup goes
	// out of bounds. The extra entries continue the same attenuation curve
	// and are never more audible than entry 383 would have been.
	Mul [EnvLimit]uint16

	Ksl [8][16]uint8

	Tremolo [TremoloTableSize]uint8

	FreqMul [16]uint32

	LinearRates [76]uint32
	AttackRates [76]uint32

	ChanOffset [32]int // -1 == not mapped
	OpOffset   [64]opOffsetEntry
}

type opOffsetEntry struct {
	Chan int // -1 == not mapped
	Slot int // 0 (modulator) or 1 (carrier)
}

// NewTables builds the full precomputed table set for the given host mixer
// sample rate, following the fixed-point derivations of the emulated
// hardware scaled by OPL_RATE/mixerRate.
func NewTables(mixerRate int) *Tables {
	t := &Tables{MixerRate: mixerRate}
	scale := oplRate() / float64(mixerRate)

	t.buildWaveTable()
	t.buildMulTable()
	t.buildKslTable()
	t.buildTremoloTable()
	t.buildFreqMul(scale)
	t.buildLinearRates(scale)
	t.buildAttackRates(scale)
	t.buildChanOffset()
	t.buildOpOffset()

	return t
}

func (t *Tables) buildWaveTable() {
	// Sine base: positive half at 0x200, negated copy at 0x000.
	for i := 0; i < 512; i++ {
		v := int16(math.Round(math.Sin((float64(i)+0.5)*math.Pi/512) * 4084))
		t.Wave[0x200+i] = v
		t.Wave[i] = -v
	}

	// Exponential decay burst at 0x700, mirrored negatively below it.
	for i := 0; i < 256; i++ {
		v := int16(0.5 + math.Pow(2, -1+(255-float64(i)*8)/256)*4085)
		t.Wave[0x700+i] = v
		t.Wave[0x6ff-i] = -v
	}

	// Near-silence gaps, plus replicated and double-speed sine sections for
	// the derived waveforms selected through waveBase/waveMask/waveStart.
	for i := 0; i < 256; i++ {
		t.Wave[0x400+i] = t.Wave[0]
		t.Wave[0x500+i] = t.Wave[0]
		t.Wave[0x900+i] = t.Wave[0]
		t.Wave[0xc00+i] = t.Wave[0]
		t.Wave[0xd00+i] = t.Wave[0]
		t.Wave[0x800+i] = t.Wave[0x200+i]
		t.Wave[0xa00+i] = t.Wave[0x200+i*2]
		t.Wave[0xb00+i] = t.Wave[i*2]
		t.Wave[0xe00+i] = t.Wave[0x200+i*2]
		t.Wave[0xf00+i] = t.Wave[0x200+i*2]
	}
}

func (t *Tables) buildMulTable() {
	for i := 0; i < EnvLimit; i++ {
		v := 0.5 + math.Pow(2, -1+(255-float64(i*8))/256)*(1<<MulSh)
		t.Mul[i] = uint16(v)
	}
}

func (t *Tables) buildKslTable() {
	for oct := 0; oct < 8; oct++ {
		for i := 0; i < 16; i++ {
			base := oct*8 - int(kslCreate[i])
			if base < 0 {
				base = 0
			}
			t.Ksl[oct][i] = uint8(base * 4)
		}
	}
}

// buildTremoloTable fills a single triangle ramping 0..25 and back to 0,
// mirrored about the table's midpoint, each value scaled by EnvExtra.
func (t *Tables) buildTremoloTable() {
	for i := 0; i < TremoloTableSize/2; i++ {
		v := uint8(i << EnvExtra)
		t.Tremolo[i] = v
		t.Tremolo[TremoloTableSize-1-i] = v
	}
}

func (t *Tables) buildFreqMul(scale float64) {
	freqScale := uint32(0.5 + scale*math.Pow(2, WaveSh-11))
	for i := 0; i < 16; i++ {
		t.FreqMul[i] = freqScale * freqCreate[i]
	}
}

// envelopeSelect maps a 0..75 register rate to an index into envIncrease and
// a right-shift amount, following the hardware's piecewise rate curve.
func envelopeSelect(r int) (idx, shift int) {
	switch {
	case r < 52:
		return r & 3, 12 - (r >> 2)
	case r < 60:
		return r - 48, 0
	default:
		return 12, 0
	}
}

func (t *Tables) buildLinearRates(scale float64) {
	for r := 0; r < 76; r++ {
		idx, shift := envelopeSelect(r)
		shiftAmt := RateSh + EnvExtra - shift - 3
		t.LinearRates[r] = uint32(scale * float64(envIncrease[idx]<<uint(shiftAmt)))
	}
}

// attackSamplesTable gives, for each of the 13 envelope_select indices, the
// number of chip samples a genuine attack curve takes to fully charge;
// buildAttackRates fits a rate-index increment to reproduce it, since attack
// moves nonlinearly unlike decay/release.
var attackSamplesTable = [13]uint32{69, 55, 46, 40, 35, 29, 23, 20, 19, 15, 11, 10, 9}

// buildAttackRates fits, per rate index, the fixed-point per-sample
// rate-index increment whose simulated attack curve best matches the
// reference sample count, refining an initial linear-rate-style guess over
// 16 proportional-correction passes.
func (t *Tables) buildAttackRates(scale float64) {
	for r := 0; r < 62; r++ {
		idx, shift := envelopeSelect(r)
		original := int32(float64(attackSamplesTable[idx]<<uint(shift)) / scale)
		guessAdd := uint32(scale * float64(envIncrease[idx]<<uint(RateSh-shift-3)))
		bestAdd := guessAdd
		bestDiff := uint32(1 << 30)

		for pass := 0; pass < 16; pass++ {
			samples := simulateAttackSamples(guessAdd, original*2)
			diff := original - samples
			lDiff := uint32(diff)
			if diff < 0 {
				lDiff = uint32(-diff)
			}
			if lDiff < bestDiff {
				bestDiff = lDiff
				bestAdd = guessAdd
				if bestDiff == 0 {
					break
				}
			}
			correct := float64(original-diff) / float64(original)
			guessAdd = uint32(float64(guessAdd) * correct)
			if diff < 0 {
				guessAdd++
			}
		}
		t.AttackRates[r] = bestAdd
	}
	for r := 62; r < 76; r++ {
		t.AttackRates[r] = 8 << RateSh
	}
}

// simulateAttackSamples counts how many samples an attack envelope starting
// at ENV_MAX and stepped by `add` per sample (using the hardware's
// vol += (~vol * units) >> 3 rule) takes to reach zero, capped at limit.
func simulateAttackSamples(add uint32, limit int32) int32 {
	volume := int32(EnvMax)
	var count uint32
	var samples int32
	for volume > 0 && samples < limit {
		count += add
		change := int32(count >> RateSh)
		count &= (1 << RateSh) - 1
		if change != 0 {
			volume += (^volume * change) >> 3
		}
		samples++
	}
	return samples
}

// buildChanOffset maps a register's low 5 bits (0..0x1F, with the OPL3
// second bank folded into the same 0..17 index space) to a channel index,
// permuting the first six so 4-op pairs land on adjacent indices.
func (t *Tables) buildChanOffset() {
	for i := range t.ChanOffset {
		t.ChanOffset[i] = -1
	}
	for i := 0; i < 9; i++ {
		var ch int
		if i < 6 {
			ch = (i%3)*2 + i/3
		} else {
			ch = i
		}
		t.ChanOffset[i] = ch
		t.ChanOffset[i+16] = ch + 9
	}
}

// buildOpOffset maps a register's low bits to (channel, slot). Each group of
// 8 offsets covers three channels: the first three are their modulators, the
// next three their carriers; offsets 6,7 and every fourth group are unused.
// Channel numbers go through the same permutation as buildChanOffset so both
// decode tables land on the same array slots.
func (t *Tables) buildOpOffset() {
	for i := range t.OpOffset {
		t.OpOffset[i] = opOffsetEntry{Chan: -1}
	}
	for i := 0; i < 32; i++ {
		if i%8 >= 6 {
			continue
		}
		if (i/8)%4 == 3 {
			continue
		}
		ch := (i/8)*3 + (i%8)%3
		if ch < 6 {
			ch = (ch%3)*2 + ch/3
		}
		slot := (i % 8) / 3
		t.OpOffset[i] = opOffsetEntry{Chan: ch, Slot: slot}
		t.OpOffset[i+32] = opOffsetEntry{Chan: ch + 9, Slot: slot}
	}
}

// WaveBase, WaveMask, WaveStart expose the per-waveform phase constants used
// by Operator.WriteRegE0 to select and index the shared wave table.
func WaveBase(wf int) uint16  { return waveBase[wf&7] }
func WaveMask(wf int) uint32  { return waveMask[wf&7] }
func WaveStart(wf int) uint32 { return waveStart[wf&7] }
