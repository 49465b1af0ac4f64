package siopm

import (
	"math"

	"github.com/cbegin/siopm-go/internal/lfo"
	"github.com/cbegin/siopm-go/internal/pipe"
)

// ChannelType selects the channel implementation a manager allocates.
type ChannelType int

const (
	TypeFM ChannelType = iota
	TypePCM
	TypeSampler
	TypeKS
	channelTypeMax
)

func (t ChannelType) String() string {
	switch t {
	case TypeFM:
		return "fm"
	case TypePCM:
		return "pcm"
	case TypeSampler:
		return "sampler"
	case TypeKS:
		return "ks"
	default:
		return "unknown"
	}
}

// Input modes.
const (
	InputZero = iota
	InputPipe
	InputFeedback
)

// Output modes.
const (
	OutputStandard = iota
	OutputOverwrite
	OutputAdd
)

// Channel is one voice of the chip.
type Channel interface {
	Type() ChannelType

	Initialize(prev Channel, bufferIndex int)
	Reset()

	SetChannelParam(p *ChannelParam, withVolume bool)
	ChannelParam(p *ChannelParam)
	SetWaveData(d WaveData) error
	SetRegister(addr, data int)
	SetAlgorithm(opCount, alg int)
	SetFeedback(fb, connection int)
	Operator(i int) *Operator
	OperatorCount() int

	SetPitch(p int)
	Pitch() int
	SetVolume(slot int, v float64)
	Volume(slot int) float64
	SetPan(pan int)
	Pan() int
	SetMute(mute bool)
	IsMute() bool
	SetExpression(expression, velocity int)

	SetFilterType(t int)
	SetSVFilter(cutoff, resonance, ar, dr1, dr2, rr, dc1, dc2, sc, rc int)
	SetLFOWave(wave int)
	SetLFOCycleTime(ms float64)
	SetLFOFrequency(lfrq int)
	SetAmplitudeModulation(depth int)
	SetPitchModulation(depth int)

	SetInput(level, pipeIndex int)
	SetRingModulation(level, pipeIndex int)
	SetOutput(mode, pipeIndex int)

	NoteOn()
	NoteOff()
	Buffer(length int)
	BufferNoProcess(length int)

	IsIdling() bool
	IsNoteOn() bool
	IsFree() bool

	base() *channelBase
}

// Filter envelope states.
const (
	filterAttack = iota
	filterDecay1
	filterDecay2
	filterSustain
	filterRelease
	filterOff
)

type channelLink struct {
	prev, next *channelLink
	ch         Channel
}

// channelBase carries routing, mixing, filtering and LFO state shared by
// every channel type. Variants set process and idle.
type channelBase struct {
	chip  *Module
	table *Table
	kind  ChannelType
	link  channelLink

	process    func(length int)
	idle       func() bool
	lfoChanged func()

	isFree      bool
	isNoteOn    bool
	bufferIndex int

	pitch      int
	mute       bool
	volumes    [StreamSendSize]float64
	effectSend bool
	pan        int
	expression int
	velocity   int

	inputMode   int
	inputLevel  int
	inputIndex  int
	ringLevel   float64
	ringIndex   int
	outputMode  int
	outputIndex int
	stereo      bool

	inRing, ringRing, outRing, outRingR, baseRing *pipe.List[int]
	inPipe, ringPipe, outPipe, outPipeR, basePipe *pipe.Element[int]

	filterOn      bool
	filterType    int
	cutoff        int
	resonance     int
	filterRates   [6]int
	filterTargets [6]int
	filterState   int
	filterResidue int
	cutoffNow     int
	svf           [2][2]float64

	lfo     *lfo.Generator
	lfoOn   bool
	lfoFreq int
	amd     int
	pmd     int
	amOut   int
	pmOut   int
}

func (c *channelBase) init(chip *Module, kind ChannelType, self Channel) {
	c.chip = chip
	c.table = chip.Table
	c.kind = kind
	c.link.ch = self
	c.lfo = lfo.New()
	c.isFree = true
	c.idle = func() bool { return false }
	c.process = func(int) {}
}

func (c *channelBase) base() *channelBase { return c }

// Type returns the channel type.
func (c *channelBase) Type() ChannelType { return c.kind }

func (c *channelBase) initializeBase(prev Channel, bufferIndex int) {
	if prev != nil {
		p := prev.base()
		c.volumes = p.volumes
		c.effectSend = p.effectSend
		c.pan = p.pan
		c.mute = p.mute
		c.inputMode, c.inputLevel, c.inputIndex = p.inputMode, p.inputLevel, p.inputIndex
		if c.inputMode == InputFeedback {
			c.inputMode = InputZero
		}
		c.ringLevel, c.ringIndex = p.ringLevel, p.ringIndex
		c.outputMode, c.outputIndex = p.outputMode, p.outputIndex
	} else {
		c.volumes = [StreamSendSize]float64{0.5}
		c.effectSend = false
		c.pan = 64
		c.mute = false
		c.inputMode, c.inputLevel, c.inputIndex = InputZero, 0, 0
		c.ringLevel, c.ringIndex = 0, 0
		c.outputMode, c.outputIndex = OutputStandard, 0
	}
	c.expression, c.velocity = 128, 128
	c.pitch = 3840
	c.isNoteOn = false
	c.stereo = false
	c.bufferIndex = bufferIndex

	c.filterType = FilterLowPass
	c.SetSVFilter(128, 0, 0, 0, 0, 0, 128, 128, 128, 128)
	c.svf = [2][2]float64{}

	c.lfo.SetWave(lfo.WaveTriangle)
	c.lfo.Reset()
	c.lfoFreq = 0
	c.lfo.SetCycleTime(0, c.table.SampleRate)
	c.amd, c.pmd = 0, 0
	c.updateLFO()

	c.connectPipes()
}

func (c *channelBase) resetBase() {
	c.isNoteOn = false
	c.svf = [2][2]float64{}
	c.cutoffNow = c.cutoff
	c.filterState = filterOff
	c.filterResidue = 0
	c.lfo.Reset()
}

// connectPipes resolves the input, ring and output selections into rings
// and places the cursors at the current buffer index.
func (c *channelBase) connectPipes() {
	chip := c.chip
	switch c.inputMode {
	case InputPipe:
		c.inRing = chip.PipeBuffer(c.inputIndex)
	default:
		c.inRing = chip.zeroRing
	}
	if c.ringLevel > 0 {
		c.ringRing = chip.PipeBuffer(c.ringIndex)
	} else {
		c.ringRing = nil
	}
	switch c.outputMode {
	case OutputOverwrite:
		c.outRing = chip.PipeBuffer(c.outputIndex)
		c.baseRing = chip.zeroRing
	case OutputAdd:
		c.outRing = chip.PipeBuffer(c.outputIndex)
		c.baseRing = c.outRing
	default:
		c.outRing = chip.outputRing
		c.baseRing = chip.zeroRing
	}
	c.outRingR = chip.outputRingR
	c.placeCursors()
}

func (c *channelBase) placeCursors() {
	c.inPipe = c.inRing.Index(c.bufferIndex)
	c.outPipe = c.outRing.Index(c.bufferIndex)
	c.outPipeR = c.outRingR.Index(c.bufferIndex)
	c.basePipe = c.baseRing.Index(c.bufferIndex)
	c.ringPipe = nil
	if c.ringRing != nil {
		c.ringPipe = c.ringRing.Index(c.bufferIndex)
	}
}

// resetBufferStatus rewinds the cursors for a new block.
func (c *channelBase) resetBufferStatus() {
	c.bufferIndex = 0
	c.placeCursors()
}

func (c *channelBase) advance(length int) {
	c.bufferIndex += length
	c.inPipe = c.inPipe.Advance(length)
	c.outPipe = c.outPipe.Advance(length)
	c.outPipeR = c.outPipeR.Advance(length)
	c.basePipe = c.basePipe.Advance(length)
	if c.ringPipe != nil {
		c.ringPipe = c.ringPipe.Advance(length)
	}
}

// SetChannelParam applies the channel-level part of p. Variants extend it.
func (c *channelBase) SetChannelParam(p *ChannelParam, withVolume bool) {
	c.setBaseParam(p, withVolume)
}

func (c *channelBase) setBaseParam(p *ChannelParam, withVolume bool) {
	c.filterType = p.FilterType
	c.SetSVFilter(p.Cutoff, p.Resonance, p.FilterAR, p.FilterDR1, p.FilterDR2, p.FilterRR,
		p.FilterDC1, p.FilterDC2, p.FilterSC, p.FilterRC)
	c.lfo.SetWave(p.LFOWave)
	c.SetLFOFrequency(p.LFOFrequency)
	c.SetAmplitudeModulation(p.AMD)
	c.SetPitchModulation(p.PMD)
	if withVolume && len(p.Volumes) > 0 {
		for i := range c.volumes {
			c.volumes[i] = 0
			if i < len(p.Volumes) {
				c.volumes[i] = p.Volumes[i]
			}
		}
		c.updateEffectSend()
	}
	if withVolume {
		c.SetPan(p.Pan)
	}
}

// ChannelParam copies the channel-level settings into p.
func (c *channelBase) ChannelParam(p *ChannelParam) {
	c.baseParam(p)
}

func (c *channelBase) baseParam(p *ChannelParam) {
	p.FilterType = c.filterType
	p.Cutoff = c.cutoff
	p.Resonance = c.resonance
	p.FilterAR = c.filterRates[filterAttack]
	p.FilterDR1 = c.filterRates[filterDecay1]
	p.FilterDR2 = c.filterRates[filterDecay2]
	p.FilterRR = c.filterRates[filterRelease]
	p.FilterDC1 = c.filterTargets[filterAttack]
	p.FilterDC2 = c.filterTargets[filterDecay1]
	p.FilterSC = c.filterTargets[filterDecay2]
	p.FilterRC = c.filterTargets[filterRelease]
	p.LFOWave = c.lfo.Wave()
	p.LFOFrequency = c.lfoFreq
	p.AMD = c.amd
	p.PMD = c.pmd
	p.Pan = c.pan
	p.Volumes = append(p.Volumes[:0], c.volumes[:]...)
}

// SetWaveData is unsupported by default.
func (c *channelBase) SetWaveData(WaveData) error { return ErrWaveData }

// SetRegister ignores register writes by default.
func (c *channelBase) SetRegister(addr, data int) {}

// SetAlgorithm is a no-op for channels without operators.
func (c *channelBase) SetAlgorithm(opCount, alg int) {}

// SetFeedback is a no-op for channels without operators.
func (c *channelBase) SetFeedback(fb, connection int) {}

// Operator returns nil for channels without operators.
func (c *channelBase) Operator(i int) *Operator { return nil }

// OperatorCount returns zero for channels without operators.
func (c *channelBase) OperatorCount() int { return 0 }

// SetPitch sets the pitch in 1/64 semitones.
func (c *channelBase) SetPitch(p int) { c.pitch = p }

// Pitch returns the pitch in 1/64 semitones.
func (c *channelBase) Pitch() int { return c.pitch }

// SetVolume sets the send level of a stream slot in [0, 1].
func (c *channelBase) SetVolume(slot int, v float64) {
	if slot < 0 || slot >= StreamSendSize {
		return
	}
	c.volumes[slot] = math.Max(0, math.Min(1, v))
	c.updateEffectSend()
}

func (c *channelBase) updateEffectSend() {
	c.effectSend = false
	for _, v := range c.volumes[1:] {
		if v > 0 {
			c.effectSend = true
			return
		}
	}
}

// Volume returns the send level of a stream slot.
func (c *channelBase) Volume(slot int) float64 {
	if slot < 0 || slot >= StreamSendSize {
		return 0
	}
	return c.volumes[slot]
}

// SetPan sets the pan position (0 left, 64 center, 128 right).
func (c *channelBase) SetPan(pan int) { c.pan = clampInt(pan, 0, 128) }

// Pan returns the pan position.
func (c *channelBase) Pan() int { return c.pan }

// SetMute stops the channel from writing to the streams.
func (c *channelBase) SetMute(mute bool) { c.mute = mute }

// IsMute reports whether the channel is muted.
func (c *channelBase) IsMute() bool { return c.mute }

// SetExpression sets the expression and velocity (0-128).
func (c *channelBase) SetExpression(expression, velocity int) {
	c.expression = clampInt(expression, 0, 128)
	c.velocity = clampInt(velocity, 0, 128)
}

func (c *channelBase) gain() float64 {
	return float64(c.expression*c.velocity) / (128 * 128)
}

// SetFilterType selects low-pass, band-pass or high-pass. An unknown type
// is ignored.
func (c *channelBase) SetFilterType(t int) {
	if t < FilterLowPass || t > FilterHighPass {
		return
	}
	c.filterType = t
}

// SetSVFilter configures the filter and its envelope. Cutoffs are 0-128
// where 128 is fully open, resonance is 0-9 and rates are 0-63 with 0
// holding the current cutoff.
func (c *channelBase) SetSVFilter(cutoff, resonance, ar, dr1, dr2, rr, dc1, dc2, sc, rc int) {
	c.cutoff = clampInt(cutoff, 0, 128)
	c.resonance = clampInt(resonance, 0, 9)
	c.filterRates = [6]int{ar & 63, dr1 & 63, dr2 & 63, 0, rr & 63, 0}
	dc1, dc2, sc, rc = clampInt(dc1, 0, 128), clampInt(dc2, 0, 128), clampInt(sc, 0, 128), clampInt(rc, 0, 128)
	c.filterTargets = [6]int{dc1, dc2, sc, sc, rc, rc}
	c.filterOn = c.resonance > 0 || c.cutoff < 128 || dc1 < 128 || dc2 < 128 || sc < 128 || rc < 128
	if c.filterOn && !c.isNoteOn {
		c.cutoffNow = c.cutoff
	}
}

// FilterCutoff returns the current filter envelope cutoff.
func (c *channelBase) FilterCutoff() int { return c.cutoffNow }

func (c *channelBase) startFilterEG() {
	c.cutoffNow = c.cutoff
	c.shiftFilterState(filterAttack)
}

func (c *channelBase) shiftFilterState(s int) {
	for {
		c.filterState = s
		if s == filterSustain || s == filterOff {
			c.filterResidue = 0
			return
		}
		rate := c.filterRates[s]
		if c.cutoffNow != c.filterTargets[s] {
			if rate == 0 {
				c.filterResidue = 0
			} else {
				c.filterResidue = c.table.FilterEGSteps[rate]
			}
			return
		}
		s++
	}
}

func (c *channelBase) stepFilterEG() {
	target := c.filterTargets[c.filterState]
	if c.cutoffNow < target {
		c.cutoffNow++
	} else if c.cutoffNow > target {
		c.cutoffNow--
	}
	if c.cutoffNow == target {
		c.shiftFilterState(c.filterState + 1)
		return
	}
	c.filterResidue = c.table.FilterEGSteps[c.filterRates[c.filterState]]
}

// applyFilter runs the state-variable filter over the output pipes,
// splitting the block wherever the filter envelope steps.
func (c *channelBase) applyFilter(length int) {
	left, right := c.outPipe, c.outPipeR
	res := c.table.FilterResonance[c.resonance]
	for length > 0 {
		n := length
		if c.filterResidue > 0 && c.filterResidue < n {
			n = c.filterResidue
		}
		cut := c.table.FilterCutoffTable[c.cutoffNow]
		left = c.svFilter(left, n, cut, res, &c.svf[0])
		if c.stereo {
			right = c.svFilter(right, n, cut, res, &c.svf[1])
		}
		length -= n
		if c.filterResidue > 0 {
			c.filterResidue -= n
			if c.filterResidue == 0 {
				c.stepFilterEG()
			}
		}
	}
}

func (c *channelBase) svFilter(p *pipe.Element[int], length int, cut, res float64, v *[2]float64) *pipe.Element[int] {
	v0, v1 := v[0], v[1]
	for i := 0; i < length; i++ {
		v2 := float64(p.Value) - v0 - v1*res
		v1 += v2 * cut
		v0 += v1 * cut
		switch c.filterType {
		case FilterBandPass:
			p.Value = int(v1)
		case FilterHighPass:
			p.Value = int(v2)
		default:
			p.Value = int(v0)
		}
		p = p.Next()
	}
	v[0], v[1] = v0, v1
	return p
}

// SetLFOWave selects the LFO waveform.
func (c *channelBase) SetLFOWave(wave int) { c.lfo.SetWave(wave) }

// SetLFOCycleTime sets the LFO period in milliseconds.
func (c *channelBase) SetLFOCycleTime(ms float64) {
	c.lfo.SetCycleTime(ms, c.table.SampleRate)
}

// SetLFOFrequency sets the LFO rate from an OPM LFRQ value (0-255).
func (c *channelBase) SetLFOFrequency(lfrq int) {
	lfrq = clampInt(lfrq, 0, 255)
	c.lfoFreq = lfrq
	hz := 52.9 * math.Pow(2, float64(lfrq-255)/16)
	c.SetLFOCycleTime(1000 / hz)
}

// SetAmplitudeModulation sets the LFO amplitude depth (0-127).
func (c *channelBase) SetAmplitudeModulation(depth int) {
	c.amd = clampInt(depth, 0, 127)
	c.updateLFO()
}

// SetPitchModulation sets the LFO pitch depth (-127 to 127).
func (c *channelBase) SetPitchModulation(depth int) {
	c.pmd = clampInt(depth, -127, 127)
	c.updateLFO()
}

func (c *channelBase) updateLFO() {
	on := c.amd != 0 || c.pmd != 0
	if !on {
		c.amOut, c.pmOut = 0, 0
	}
	if on != c.lfoOn {
		c.lfoOn = on
		if c.lfoChanged != nil {
			c.lfoChanged()
		}
	}
}

// lfoStep refreshes the modulation outputs from the LFO value.
func (c *channelBase) lfoStep() {
	t := c.lfo.Value()
	c.amOut = ((t * c.amd) >> 7) << 3
	c.pmOut = (((t << 1) - 255) * c.pmd) >> 8
}

// validPipe reports whether i names one of the chip's shared pipes.
func validPipe(i int) bool { return i >= 0 && i < PipeSize }

// SetInput routes chip pipe pipeIndex into the first operator. Level 0
// disconnects it. An unknown pipe leaves the routing unchanged.
func (c *channelBase) SetInput(level, pipeIndex int) {
	if !validPipe(pipeIndex) {
		return
	}
	level &= 7
	c.inputIndex = pipeIndex
	if level > 0 {
		c.inputMode = InputPipe
		c.inputLevel = level
	} else if c.inputMode == InputPipe {
		c.inputMode = InputZero
		c.inputLevel = 0
	}
	c.connectPipes()
}

// SetRingModulation multiplies the output by chip pipe pipeIndex. Level
// 0-8, 0 disconnects. An unknown pipe leaves the routing unchanged.
func (c *channelBase) SetRingModulation(level, pipeIndex int) {
	if !validPipe(pipeIndex) {
		return
	}
	c.ringIndex = pipeIndex
	c.ringLevel = float64(clampInt(level, 0, 8)) / 8 * c.table.I2N
	c.connectPipes()
}

// SetOutput selects the output mode and chip pipe. An unknown mode or
// pipe leaves the routing unchanged.
func (c *channelBase) SetOutput(mode, pipeIndex int) {
	if mode < OutputStandard || mode > OutputAdd || !validPipe(pipeIndex) {
		return
	}
	c.outputMode = mode
	c.outputIndex = pipeIndex
	c.connectPipes()
}

// NoteOn starts the filter envelope.
func (c *channelBase) NoteOn() {
	c.isNoteOn = true
	if c.filterOn {
		c.startFilterEG()
	}
}

// NoteOff releases the filter envelope.
func (c *channelBase) NoteOff() {
	c.isNoteOn = false
	if c.filterOn {
		c.shiftFilterState(filterRelease)
	}
}

// Buffer synthesizes length samples at the current buffer index.
func (c *channelBase) Buffer(length int) {
	if length <= 0 {
		return
	}
	if c.idle() {
		c.BufferNoProcess(length)
		return
	}
	c.process(length)
	if c.ringPipe != nil {
		c.applyRingModulation(length)
	}
	if c.filterOn {
		c.applyFilter(length)
	}
	if c.outputMode == OutputStandard && !c.mute {
		c.writeStreams(length)
	}
	c.advance(length)
}

// BufferNoProcess moves the cursors without synthesizing.
func (c *channelBase) BufferNoProcess(length int) {
	if length <= 0 {
		return
	}
	if c.outputMode == OutputOverwrite {
		p := c.outPipe
		for i := 0; i < length; i++ {
			p.Value = 0
			p = p.Next()
		}
	}
	c.advance(length)
}

func (c *channelBase) applyRingModulation(length int) {
	out, ring := c.outPipe, c.ringPipe
	for i := 0; i < length; i++ {
		out.Value = int(float64(out.Value) * float64(ring.Value) * c.ringLevel)
		out, ring = out.Next(), ring.Next()
	}
}

func (c *channelBase) writeStreams(length int) {
	t := c.table
	left := t.I2N * t.PanTable[128-c.pan]
	right := t.I2N * t.PanTable[c.pan]
	if c.chip.outputChannels == 1 {
		left, right = t.I2N, t.I2N
	}
	write := func(s *Stream, vol float64) {
		if s == nil || vol <= 0 {
			return
		}
		if c.stereo {
			s.WriteStereo(c.outPipe, c.outPipeR, c.bufferIndex, length, vol*left, vol*right)
		} else {
			s.Write(c.outPipe, c.bufferIndex, length, vol*left, vol*right)
		}
	}
	if !c.effectSend {
		write(c.chip.StreamSlot(0), c.volumes[0])
		return
	}
	for i, vol := range c.volumes {
		write(c.chip.StreamSlot(i), vol)
	}
}

// IsIdling reports whether the channel is silent and skips synthesis.
func (c *channelBase) IsIdling() bool { return c.idle() }

// IsNoteOn reports whether a note is held.
func (c *channelBase) IsNoteOn() bool { return c.isNoteOn }

// IsFree reports whether the channel sits unused in its manager.
func (c *channelBase) IsFree() bool { return c.isFree }
