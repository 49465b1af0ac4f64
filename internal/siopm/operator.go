package siopm

import (
	"fmt"
	"math/rand"

	"github.com/cbegin/siopm-go/internal/pipe"
)

// EGState is the envelope generator state.
type EGState int

const (
	EGAttack EGState = iota
	EGDecay
	EGSustain
	EGRelease
	EGOff
)

func (s EGState) String() string {
	switch s {
	case EGAttack:
		return "attack"
	case EGDecay:
		return "decay"
	case EGSustain:
		return "sustain"
	case EGRelease:
		return "release"
	default:
		return "off"
	}
}

// Key-on phase sentinels.
const (
	KeyOnPhaseRandom = -1
	KeyOnPhaseKeep   = -2
)

// OperatorParam is the transferable parameter set of one operator.
type OperatorParam struct {
	PGType        int            `yaml:"ws"`
	PTType        PitchTableType `yaml:"pt"`
	AR            int            `yaml:"ar"`
	DR            int            `yaml:"dr"`
	SR            int            `yaml:"sr"`
	RR            int            `yaml:"rr"`
	SL            int            `yaml:"sl"`
	TL            int            `yaml:"tl"`
	KSR           int            `yaml:"ksr"`
	KSL           int            `yaml:"ksl"`
	FineMul       int            `yaml:"fmul"`
	DT1           int            `yaml:"dt1"`
	Detune        int            `yaml:"detune"`
	AMS           int            `yaml:"ams"`
	Phase         int            `yaml:"phase"`
	FixedPitch    int            `yaml:"fixed"`
	SSGEC         int            `yaml:"ssgec"`
	ModLevel      int            `yaml:"mod"`
	Mute          bool           `yaml:"mute"`
	EnvelopeReset bool           `yaml:"erst"`
}

// Initialize restores the chip defaults.
func (p *OperatorParam) Initialize() {
	*p = OperatorParam{
		PGType:   PGSine,
		PTType:   PTOPM,
		AR:       63,
		RR:       28,
		KSR:      1,
		FineMul:  128,
		ModLevel: 5,
	}
}

// SetMultiple sets FineMul from an OPM multiple (0 means one half).
func (p *OperatorParam) SetMultiple(m int) {
	if m == 0 {
		p.FineMul = 64
	} else {
		p.FineMul = (m & 15) << 7
	}
}

// Operator is one FM operator: a pulse generator plus an envelope generator.
type Operator struct {
	chip  *Module
	table *Table

	pgType     int
	ptType     PitchTableType
	ar         int
	dr         int
	sr         int
	rr         int
	sl         int
	tl         int
	ksr        int
	ksl        int
	fmul       int
	dt1        int
	detune     int
	ams        int
	keyOnPhase int
	fixedPitch int
	ssgec      int
	modLevel   int
	mute       bool
	erst       bool

	egState           EGState
	egLevel           int
	egCounter         int
	egTimer           int
	egTimerStep       int
	egIncTable        *[8]int
	egLevelTable      []int
	egStateShiftLevel int
	egSustainLevel    int
	egTotalLevel      int
	egTLOffset        int
	egKeyScaleRate    int
	egKeyScaleLevel   int
	egOut             int
	ssgState          int

	phase       int
	phaseStep   int
	pitchIndex  int
	pmOffset    int
	kc          int
	wave        []int
	waveBits    int
	pitchTable  []int
	pcmChannels int
	pcmStart    int
	pcmEnd      int
	pcmLoop     int

	fmShift  int
	inShift  int
	inPipe   *pipe.Element[int]
	basePipe *pipe.Element[int]
	outPipe  *pipe.Element[int]
	feedPipe *pipe.Element[int]
	isFinal  bool
}

func newOperator(chip *Module) *Operator {
	o := &Operator{chip: chip, table: chip.Table}
	o.Initialize()
	return o
}

// Initialize resets every parameter to the chip defaults and restarts the
// generators.
func (o *Operator) Initialize() {
	var p OperatorParam
	p.Initialize()
	o.kc = -1
	o.pitchIndex = 3840
	o.pmOffset = 0
	o.egTLOffset = 0
	o.SetParam(&p)
	o.SetPipes(o.chip.zeroPipe(), o.chip.sinkPipe(), o.chip.zeroPipe(), true)
	o.Reset()
}

// Reset restarts the envelope and phase without touching parameters.
func (o *Operator) Reset() {
	o.shiftEGState(EGOff)
	o.updateEGOutput()
	o.egTimer = EnvTimerInitial
	o.egCounter = 0
	o.ssgState = 0
	o.phase = 0
}

// SetParam applies a parameter set.
func (o *Operator) SetParam(p *OperatorParam) {
	if err := o.SetPulseGeneratorType(p.PGType); err != nil {
		_ = o.SetPulseGeneratorType(PGSine)
	}
	// PTOPM keeps the wave's own pitch table.
	if p.PTType != PTOPM {
		o.SetPitchTableType(p.PTType)
	}
	o.ar = p.AR & 63
	o.dr = p.DR & 63
	o.sr = p.SR & 63
	o.rr = p.RR & 63
	o.ksr = p.KSR & 3
	o.ksl = p.KSL & 3
	o.fmul = p.FineMul
	o.dt1 = p.DT1 & 7
	o.detune = p.Detune
	o.keyOnPhase = p.Phase
	o.mute = p.Mute
	o.erst = p.EnvelopeReset
	o.SetAmplitudeModulationShift(p.AMS)
	o.SetSustainLevel(p.SL)
	o.SetSSGEnvelopeControl(p.SSGEC)
	o.SetModulationLevel(p.ModLevel)
	if p.FixedPitch > 0 {
		o.fixedPitch = p.FixedPitch << HalfToneBits
	} else {
		o.fixedPitch = 0
	}
	o.tl = clampInt(p.TL, 0, 127)
	o.kc = -1
	o.updatePitch()
	o.updateTotalLevel()
}

// Param copies the operator parameters into p.
func (o *Operator) Param(p *OperatorParam) {
	p.PGType = o.pgType
	p.PTType = o.ptType
	p.AR = o.ar
	p.DR = o.dr
	p.SR = o.sr
	p.RR = o.rr
	p.SL = o.sl
	p.TL = o.tl
	p.KSR = o.ksr
	p.KSL = o.ksl
	p.FineMul = o.fmul
	p.DT1 = o.dt1
	p.Detune = o.detune
	p.Phase = o.keyOnPhase
	p.FixedPitch = o.fixedPitch >> HalfToneBits
	p.SSGEC = o.ssgec
	p.ModLevel = o.modLevel
	p.Mute = o.mute
	p.EnvelopeReset = o.erst
	p.AMS = 0
	for a := 1; a < 4; a++ {
		if o.ams == 3-a {
			p.AMS = a
		}
	}
}

// SetAttackRate sets the attack rate; the value is masked to 6 bits.
func (o *Operator) SetAttackRate(r int) {
	o.ar = r & 63
	if o.egState == EGAttack {
		o.setEGRate(o.ar, true)
	}
}

// SetDecayRate sets the first decay rate.
func (o *Operator) SetDecayRate(r int) {
	o.dr = r & 63
	if o.egState == EGDecay {
		o.setEGRate(o.dr, false)
	}
}

// SetSustainRate sets the second decay rate.
func (o *Operator) SetSustainRate(r int) {
	o.sr = r & 63
	if o.egState == EGSustain {
		o.setEGRate(o.sr, false)
	}
}

// SetReleaseRate sets the release rate.
func (o *Operator) SetReleaseRate(r int) {
	o.rr = r & 63
	if o.egState == EGRelease {
		o.setEGRate(o.rr, false)
	}
}

// SetSustainLevel sets the sustain level (15 means the envelope bottom).
func (o *Operator) SetSustainLevel(sl int) {
	o.sl = sl & 15
	if o.sl == 15 {
		o.egSustainLevel = EnvBottom
	} else {
		o.egSustainLevel = o.sl << 5
	}
}

// SetTotalLevel sets the attenuation in 0.75 dB steps.
func (o *Operator) SetTotalLevel(tl int) {
	o.tl = clampInt(tl, 0, 127)
	o.updateTotalLevel()
}

// SetTotalLevelOffset adds an attenuation in envelope units, used for
// velocity and expression.
func (o *Operator) SetTotalLevelOffset(offset int) {
	o.egTLOffset = offset
	o.updateTotalLevel()
}

// SetKeyScalingRate sets how strongly pitch shortens the envelope.
func (o *Operator) SetKeyScalingRate(ksr int) {
	o.ksr = ksr & 3
	o.updateKeyScale()
}

// SetKeyScalingLevel sets how strongly pitch attenuates the output.
func (o *Operator) SetKeyScalingLevel(ksl int) {
	o.ksl = ksl & 3
	o.updateKeyScale()
}

// SetMultiple sets the OPM frequency multiple (0 means one half).
func (o *Operator) SetMultiple(m int) {
	if m == 0 {
		o.fmul = 64
	} else {
		o.fmul = (m & 15) << 7
	}
	o.updatePitch()
}

// SetFineMultiple sets the frequency multiple in 1/128 steps.
func (o *Operator) SetFineMultiple(fmul int) {
	o.fmul = fmul
	o.updatePitch()
}

// SetDT1 sets the OPM detune-1 value (bit 2 is the sign).
func (o *Operator) SetDT1(dt1 int) {
	o.dt1 = dt1 & 7
	o.updatePitch()
}

// SetDT2 sets the OPM coarse detune.
func (o *Operator) SetDT2(dt2 int) {
	o.detune = o.table.DT2Table[dt2&3]
	o.updatePitch()
}

// SetDetune sets the pitch offset in 1/64 semitones.
func (o *Operator) SetDetune(d int) {
	o.detune = d
	o.updatePitch()
}

// SetAmplitudeModulationShift sets the LFO amplitude sensitivity (0-3).
func (o *Operator) SetAmplitudeModulationShift(ams int) {
	if ams <= 0 {
		o.ams = 19
	} else {
		o.ams = 3 - (ams & 3)
	}
}

// SetKeyOnPhase sets the phase restored on note on: 0-255, or one of the
// KeyOnPhaseRandom and KeyOnPhaseKeep sentinels.
func (o *Operator) SetKeyOnPhase(p int) {
	if p > 255 {
		p = 255
	}
	if p < KeyOnPhaseKeep {
		p = KeyOnPhaseKeep
	}
	o.keyOnPhase = p
}

// SetFixedPitch pins the operator to a pitch index; zero releases it.
func (o *Operator) SetFixedPitch(pitchIndex int) {
	o.fixedPitch = pitchIndex
	o.updatePitch()
}

// SetMute silences the operator without touching its envelope.
func (o *Operator) SetMute(mute bool) {
	o.mute = mute
	o.updateTotalLevel()
}

// SetSSGEnvelopeControl enables an SSG envelope shape (8-17); zero turns it
// off and values above 17 select shape 9.
func (o *Operator) SetSSGEnvelopeControl(ssgec int) {
	switch {
	case ssgec < 8:
		o.ssgec = 0
	case ssgec > 17:
		o.ssgec = 9
	default:
		o.ssgec = ssgec
	}
}

// SetEnvelopeReset makes note on restart the envelope from the bottom.
func (o *Operator) SetEnvelopeReset(reset bool) { o.erst = reset }

// SetModulationLevel sets the depth of the phase modulation input (0-7).
func (o *Operator) SetModulationLevel(level int) {
	o.modLevel = clampInt(level, 0, 7)
	o.fmShift = o.modLevel + 10
	o.inShift = o.fmShift
}

// SetPulseGeneratorType selects the wave table and its default pitch table.
func (o *Operator) SetPulseGeneratorType(pg int) error {
	if pg >= PGPCM && pg < PGMax {
		d := o.chip.pcmData(pg - PGPCM)
		if d == nil {
			return fmt.Errorf("%w: %d", ErrWaveIndex, pg)
		}
		o.SetPCMData(d)
		if o.pcmChannels == 0 {
			return fmt.Errorf("%w: pcm %d is empty", ErrWaveData, pg-PGPCM)
		}
		o.pgType = pg
		return nil
	}
	w := o.chip.waveTable(pg)
	if w == nil {
		return fmt.Errorf("%w: %d", ErrWaveIndex, pg)
	}
	o.pgType = pg
	o.wave = w.Wavelet
	o.waveBits = w.FixedBits
	o.pcmChannels = 0
	o.SetPitchTableType(w.DefaultPTType)
	return nil
}

// SetWaveTable plays w directly, outside the numbered wave slots.
func (o *Operator) SetWaveTable(w *WaveTable) {
	if w == nil || len(w.Wavelet) == 0 {
		_ = o.SetPulseGeneratorType(PGSine)
		return
	}
	o.pgType = PGCustom
	o.wave = w.Wavelet
	o.waveBits = w.FixedBits
	o.pcmChannels = 0
	o.SetPitchTableType(w.DefaultPTType)
}

// SetPitchTableType selects the pitch-to-phase-step table.
func (o *Operator) SetPitchTableType(pt PitchTableType) {
	if pt < 0 || pt >= PTMax {
		pt = PTOPM
	}
	o.ptType = pt
	o.pitchTable = o.table.PitchTables[pt]
	o.updatePitch()
}

// SetPCMData makes the operator play d. A nil d restores the sine wave.
func (o *Operator) SetPCMData(d *PCMData) {
	if d == nil || len(d.Wavelet) == 0 {
		_ = o.SetPulseGeneratorType(PGSine)
		return
	}
	channels := d.Channels
	if channels != 2 {
		channels = 1
	}
	if len(d.Wavelet) < channels {
		_ = o.SetPulseGeneratorType(PGSine)
		return
	}
	o.pgType = PGPCM
	o.wave = d.Wavelet
	o.waveBits = PCMFixedBits
	o.pcmChannels = channels
	end := clampInt(d.EndPoint, 1, len(d.Wavelet)/channels)
	o.pcmStart = clampInt(d.StartPoint, 0, end-1) << PCMFixedBits
	o.pcmEnd = end << PCMFixedBits
	if d.LoopPoint < 0 || d.LoopPoint >= end {
		o.pcmLoop = -1
	} else {
		o.pcmLoop = d.LoopPoint << PCMFixedBits
	}
	o.SetPitchTableType(PTPCM)
}

// SetPitchIndex sets the pitch in 1/64 semitones (note 69 is A4).
func (o *Operator) SetPitchIndex(p int) {
	o.pitchIndex = p
	o.updatePitch()
}

// PitchIndex returns the pitch in 1/64 semitones.
func (o *Operator) PitchIndex() int { return o.pitchIndex }

func (o *Operator) setPitchModulation(pm int) {
	if pm != o.pmOffset {
		o.pmOffset = pm
		o.updatePitch()
	}
}

// SetPipes wires the modulation input, the output and the additive base.
// A nil out or base keeps the current pipe.
func (o *Operator) SetPipes(in, out, base *pipe.Element[int], final bool) {
	o.inPipe = in
	if out != nil {
		o.outPipe = out
	}
	if base != nil {
		o.basePipe = base
	}
	o.isFinal = final
	o.feedPipe = o.chip.sinkPipe()
}

// tickPCM advances a PCM phase, looping at the end point or stopping the
// envelope when there is no loop.
func (o *Operator) tickPCM() {
	o.phase += o.phaseStep
	if o.phase < o.pcmEnd {
		return
	}
	if o.pcmLoop < 0 {
		o.phase = o.pcmEnd - 1
		if o.egState != EGOff {
			o.shiftEGState(EGOff)
			o.updateEGOutput()
		}
		return
	}
	o.phase -= o.pcmEnd - o.pcmLoop
	if o.phase >= o.pcmEnd {
		o.phase = o.pcmLoop
	}
}

// keyOnPhaseValue is the phase a hard sync restarts from.
func (o *Operator) keyOnPhaseValue() int {
	if o.keyOnPhase >= 0 {
		return o.keyOnPhase << (PhaseBits - 8)
	}
	return 0
}

// NoteOn restarts the phase and enters the attack state.
func (o *Operator) NoteOn() {
	switch {
	case o.pcmChannels > 0:
		o.phase = o.pcmStart
	case o.keyOnPhase >= 0:
		o.phase = o.keyOnPhase << (PhaseBits - 8)
	case o.keyOnPhase == KeyOnPhaseRandom:
		o.phase = int(rand.Int31()) & PhaseFilter
	}
	if o.erst {
		o.egLevel = EnvBottom
	}
	o.ssgState = -1
	o.shiftEGState(EGAttack)
	o.updateEGOutput()
}

// NoteOff enters the release state.
func (o *Operator) NoteOff() {
	o.shiftEGState(EGRelease)
	o.updateEGOutput()
}

// EGState returns the current envelope state.
func (o *Operator) EGState() EGState { return o.egState }

// EGLevel returns the envelope attenuation in [0, EnvBottom].
func (o *Operator) EGLevel() int { return o.egLevel }

// EGOutput returns the attenuation added to the wave log index.
func (o *Operator) EGOutput() int { return o.egOut }

// Phase returns the phase accumulator.
func (o *Operator) Phase() int { return o.phase }

// PhaseStep returns the per-sample phase increment.
func (o *Operator) PhaseStep() int { return o.phaseStep }

// TickPulseGenerator advances the phase by one sample.
func (o *Operator) TickPulseGenerator(extra int) {
	o.phase += o.phaseStep + extra
}

// TickEG advances the envelope by one sample.
func (o *Operator) TickEG(timerInitial int) {
	o.tickEG(timerInitial)
}

func (o *Operator) tickEG(timerInitial int) bool {
	o.egTimer -= o.egTimerStep
	if o.egTimer >= 0 {
		return false
	}
	if o.egState == EGAttack {
		if s := o.egIncTable[o.egCounter]; s != egNoShift {
			o.egLevel -= 1 + o.egLevel>>s
			if o.egLevel <= 0 {
				o.egLevel = 0
				o.shiftEGState(o.nextEGState())
			}
		}
	} else {
		o.egLevel += o.egIncTable[o.egCounter]
		if o.egLevel >= o.egStateShiftLevel {
			if o.egLevel > EnvBottom {
				o.egLevel = EnvBottom
			}
			o.shiftEGState(o.nextEGState())
		}
	}
	o.updateEGOutput()
	o.egCounter = (o.egCounter + 1) & 7
	o.egTimer += timerInitial
	return true
}

func (o *Operator) nextEGState() EGState {
	switch o.egState {
	case EGAttack:
		return EGDecay
	case EGDecay:
		return EGSustain
	case EGSustain:
		if o.ssgec != 0 {
			return EGAttack
		}
		return EGOff
	default:
		return EGOff
	}
}

func (o *Operator) shiftEGState(state EGState) {
	switch state {
	case EGAttack:
		if o.ssgec != 0 {
			if o.ssgState < 2 {
				o.ssgState++
			} else {
				o.ssgState = 1
			}
			o.egLevelTable = o.table.EGLevelTables[o.table.EGSSGTableIndex[o.ssgec-8][o.ssgState]]
		} else {
			o.egLevelTable = o.table.EGLevelTables[0]
		}
		if o.ar+o.egKeyScaleRate < 62 {
			o.egState = EGAttack
			o.egStateShiftLevel = 0
			o.setEGRate(o.ar, true)
			return
		}
		o.egLevel = 0
		fallthrough
	case EGDecay:
		if o.egSustainLevel != 0 {
			o.egState = EGDecay
			if o.ssgec != 0 {
				o.egStateShiftLevel = o.egSustainLevel >> 2
			} else {
				o.egStateShiftLevel = o.egSustainLevel
			}
			o.setEGRate(o.dr, false)
			return
		}
		fallthrough
	case EGSustain:
		o.egState = EGSustain
		if o.ssgec != 0 {
			o.egStateShiftLevel = EnvBottomSSGEC
		} else {
			o.egStateShiftLevel = EnvBottom
		}
		o.setEGRate(o.sr, false)
	case EGRelease:
		if o.egLevelTable != nil && &o.egLevelTable[0] != &o.table.EGLevelTables[0][0] {
			o.egLevel = o.egLevelTable[o.egLevel]
			o.egLevelTable = o.table.EGLevelTables[0]
		}
		if o.egLevel < EnvBottom {
			o.egState = EGRelease
			o.egStateShiftLevel = EnvBottom
			o.setEGRate(o.rr, false)
			return
		}
		fallthrough
	case EGOff:
		o.egState = EGOff
		o.egLevel = EnvBottom
		o.egStateShiftLevel = EnvBottom + 1
		o.egTimerStep = 0
		o.egIncTable = &o.table.EGIncrementTables[egRowInfinite]
		o.egLevelTable = o.table.EGLevelTables[0]
	}
}

func (o *Operator) setEGRate(rate int, attack bool) {
	if rate == 0 {
		o.egTimerStep = 0
		if attack {
			o.egIncTable = &o.table.EGIncrementTablesAttack[egRowInfinite]
		} else {
			o.egIncTable = &o.table.EGIncrementTables[egRowInfinite]
		}
		return
	}
	i := rate + o.egKeyScaleRate
	o.egTimerStep = o.table.EGTimerSteps[i]
	sel := o.table.EGTableSelector[i]
	if attack {
		o.egIncTable = &o.table.EGIncrementTablesAttack[sel]
	} else {
		o.egIncTable = &o.table.EGIncrementTables[sel]
	}
}

func (o *Operator) refreshEGRate() {
	switch o.egState {
	case EGAttack:
		o.setEGRate(o.ar, true)
	case EGDecay:
		o.setEGRate(o.dr, false)
	case EGSustain:
		o.setEGRate(o.sr, false)
	case EGRelease:
		o.setEGRate(o.rr, false)
	}
}

func (o *Operator) updateKeyScale() {
	kc := o.kc
	if kc < 0 {
		kc = 0
	}
	o.egKeyScaleRate = kc >> (5 - o.ksr)
	o.egKeyScaleLevel = kc * o.table.KeyScaleLevelMul[o.ksl]
	o.refreshEGRate()
	o.updateTotalLevel()
}

func (o *Operator) updateTotalLevel() {
	tl := o.tl<<EnvLShift + o.egKeyScaleLevel + o.egTLOffset
	if o.mute {
		tl += EnvBottom
	}
	o.egTotalLevel = clampInt(tl, 0, EnvBottom)
	o.updateEGOutput()
}

func (o *Operator) updateEGOutput() {
	if o.egLevelTable == nil {
		o.egLevelTable = o.table.EGLevelTables[0]
	}
	o.egOut = (o.egLevelTable[o.egLevel] + o.egTotalLevel) << 3
}

func (o *Operator) updatePitch() {
	if o.pitchTable == nil {
		return
	}
	n := o.pitchIndex + o.detune + o.pmOffset
	if o.fixedPitch > 0 {
		n = o.fixedPitch + o.detune
	}
	n = clampInt(n, 0, PitchTableFilter)
	if kc := o.table.NoteToKC[n>>HalfToneBits]; kc != o.kc {
		o.kc = kc
		o.updateKeyScale()
	}
	o.phaseStep = ((o.pitchTable[n] + o.table.DT1Table[o.dt1][o.kc]) * o.fmul) >> 7
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
