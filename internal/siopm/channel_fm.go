package siopm

import (
	"fmt"

	"github.com/cbegin/siopm-go/internal/pipe"
)

// Special two-operator processing modes of the FM channel.
const (
	ModeNormal = iota
	ModeAnalogLike
	ModeRing
	ModeSync
)

// ChannelFM is a 1-4 operator FM voice.
type ChannelFM struct {
	channelBase

	ops          [4]*Operator
	opCount      int
	algorithm    int
	mode         int
	wiring       algorithm
	feedback     int
	feedbackConn int
	active       int

	pipe0Ring    *pipe.List[int]
	pipe1Ring    *pipe.List[int]
	feedbackRing *pipe.List[int]

	kernel  func(length int)
	install func(process func(length int))

	reg opmRegisters
}

func newChannelFM(chip *Module) *ChannelFM {
	c := &ChannelFM{}
	c.setupFM(chip, TypeFM, c)
	return c
}

func (c *ChannelFM) setupFM(chip *Module, kind ChannelType, self Channel) {
	c.init(chip, kind, self)
	for i := range c.ops {
		c.ops[i] = newOperator(chip)
	}
	c.pipe0Ring = pipe.NewRing(chip.pool, 1, 0)
	c.pipe1Ring = pipe.NewRing(chip.pool, 1, 0)
	c.feedbackRing = pipe.NewRing(chip.pool, 1, 0)
	c.idle = c.fmIdle
	c.install = func(p func(int)) { c.process = p }
	c.lfoChanged = c.updateProcess
	c.opCount = 1
	c.wiring = algorithms1[0]
	c.updateProcess()
}

// Initialize resets every parameter, copying routing from prev if set.
func (c *ChannelFM) Initialize(prev Channel, bufferIndex int) {
	c.initializeBase(prev, bufferIndex)
	for _, o := range c.ops {
		o.Initialize()
	}
	c.mode = ModeNormal
	c.feedback, c.feedbackConn = 0, 0
	c.active = 0
	c.reg = opmRegisters{}
	c.SetAlgorithm(1, 0)
	c.Reset()
}

// Reset silences the channel and clears its private pipes.
func (c *ChannelFM) Reset() {
	c.resetBase()
	for _, o := range c.ops {
		o.Reset()
	}
	c.pipe0Ring.Fill(0)
	c.pipe1Ring.Fill(0)
	c.feedbackRing.Fill(0)
}

// SetChannelParam applies a voice.
func (c *ChannelFM) SetChannelParam(p *ChannelParam, withVolume bool) {
	if p.OpCount == 0 {
		return
	}
	c.SetAlgorithm(p.OpCount, p.Algorithm)
	c.SetFeedback(p.Feedback, p.FeedbackConnection)
	c.setBaseParam(p, withVolume)
	for i := 0; i < c.opCount && i < len(p.Operators); i++ {
		c.ops[i].SetParam(&p.Operators[i])
		c.ops[i].SetPitchIndex(c.pitch)
	}
	c.dropPCM()
	c.updateVolumeOffset()
}

// ChannelParam copies the current voice into p.
func (c *ChannelFM) ChannelParam(p *ChannelParam) {
	c.baseParam(p)
	p.OpCount = c.opCount
	p.Algorithm = c.algorithm
	p.Feedback = c.feedback
	p.FeedbackConnection = c.feedbackConn
	p.Operators = p.Operators[:0]
	for i := 0; i < c.opCount; i++ {
		var op OperatorParam
		c.ops[i].Param(&op)
		p.Operators = append(p.Operators, op)
	}
}

// SetWaveData plays a wave table on the first operator, or PCM data as a
// one-operator voice.
func (c *ChannelFM) SetWaveData(d WaveData) error {
	switch w := d.(type) {
	case *WaveTable:
		c.ops[0].SetWaveTable(w)
	case *PCMData:
		c.SetAlgorithm(1, 0)
		c.ops[0].SetPCMData(w)
	default:
		return ErrWaveData
	}
	c.updateProcess()
	return nil
}

// SetAlgorithm selects the operator count and connection. An unknown
// operator count or algorithm leaves the voice unchanged.
func (c *ChannelFM) SetAlgorithm(opCount, alg int) {
	table := algorithmTable(opCount)
	if table == nil || alg < 0 || alg >= len(table) {
		return
	}
	c.opCount = opCount
	c.algorithm = alg
	if opCount != 2 {
		c.mode = ModeNormal
	}
	c.updateWiring()
}

// SetMode selects a special two-operator mode; the operator count is
// forced to 2 for anything but ModeNormal. An unknown mode is ignored.
func (c *ChannelFM) SetMode(mode int) {
	if mode < ModeNormal || mode > ModeSync {
		return
	}
	c.mode = mode
	if mode != ModeNormal {
		c.opCount = 2
	}
	c.updateWiring()
}

// Mode returns the special processing mode.
func (c *ChannelFM) Mode() int { return c.mode }

// Algorithm returns the current algorithm number.
func (c *ChannelFM) Algorithm() int { return c.algorithm }

func (c *ChannelFM) updateWiring() {
	if c.mode != ModeNormal {
		c.wiring = algorithmSpecial
	} else {
		c.wiring = algorithmTable(c.opCount)[c.algorithm]
	}
	for i, o := range c.ops {
		o.isFinal = i < len(c.wiring) && c.wiring[i].final
	}
	c.dropPCM()
	c.updateVolumeOffset()
	c.updateProcess()
}

// dropPCM switches operators holding PCM data back to sine once the voice
// has more than one operator. PCM data only plays on one-operator voices.
func (c *ChannelFM) dropPCM() {
	if c.opCount < 2 {
		return
	}
	for _, o := range c.ops[:c.opCount] {
		if o.pcmChannels > 0 {
			_ = o.SetPulseGeneratorType(PGSine)
		}
	}
}

// SetOperatorWave selects the waveform of the active operators. PCM waves
// need a one-operator voice and return ErrWaveData otherwise.
func (c *ChannelFM) SetOperatorWave(pg int) error {
	if pg >= PGPCM && c.opCount > 1 {
		return fmt.Errorf("%w: pcm wave %d on a %d-operator voice", ErrWaveData, pg, c.opCount)
	}
	for _, o := range c.ActiveOperators() {
		if err := o.SetPulseGeneratorType(pg); err != nil {
			return err
		}
	}
	return nil
}

// SetFeedback sets the feedback level (0-7) and the operator whose output
// is fed back into the first operator.
func (c *ChannelFM) SetFeedback(fb, connection int) {
	c.feedback = fb & 7
	if connection < 0 || connection > 3 {
		connection = 0
	}
	c.feedbackConn = connection
	switch {
	case c.feedback > 0:
		if c.inputMode != InputPipe {
			c.inputMode = InputFeedback
		}
	case c.inputMode == InputFeedback:
		c.inputMode = InputZero
	}
	c.connectPipes()
}

// SetInput routes a chip pipe into the first operator, overriding feedback.
func (c *ChannelFM) SetInput(level, pipeIndex int) {
	c.channelBase.SetInput(level, pipeIndex)
	if c.inputMode == InputZero && c.feedback > 0 {
		c.inputMode = InputFeedback
	}
}

// Operator returns operator i or nil.
func (c *ChannelFM) Operator(i int) *Operator {
	if i < 0 || i >= c.opCount {
		return nil
	}
	return c.ops[i]
}

// OperatorCount returns the number of active operators.
func (c *ChannelFM) OperatorCount() int { return c.opCount }

// SetActiveOperator selects the operator that operator-level MML
// commands address; -1 addresses all of them.
func (c *ChannelFM) SetActiveOperator(i int) {
	if i >= c.opCount {
		i = c.opCount - 1
	}
	c.active = i
}

// ActiveOperators returns the operators addressed by operator commands.
func (c *ChannelFM) ActiveOperators() []*Operator {
	if c.active < 0 {
		return c.ops[:c.opCount]
	}
	return c.ops[c.active : c.active+1]
}

// SetPitch sets the pitch of every operator.
func (c *ChannelFM) SetPitch(p int) {
	c.pitch = p
	for _, o := range c.ops {
		o.SetPitchIndex(p)
	}
}

// SetExpression attenuates the carriers.
func (c *ChannelFM) SetExpression(expression, velocity int) {
	c.channelBase.SetExpression(expression, velocity)
	c.updateVolumeOffset()
}

func (c *ChannelFM) updateVolumeOffset() {
	offset := c.table.VolumeToTL[(c.expression*c.velocity)>>7]
	for _, o := range c.ops {
		if o.isFinal {
			o.SetTotalLevelOffset(offset)
		} else {
			o.SetTotalLevelOffset(0)
		}
	}
}

// NoteOn keys every operator on.
func (c *ChannelFM) NoteOn() {
	for _, o := range c.ops[:c.opCount] {
		o.NoteOn()
	}
	c.channelBase.NoteOn()
}

// NoteOff releases every operator.
func (c *ChannelFM) NoteOff() {
	for _, o := range c.ops[:c.opCount] {
		o.NoteOff()
	}
	c.channelBase.NoteOff()
}

func (c *ChannelFM) fmIdle() bool {
	for _, o := range c.ops[:c.opCount] {
		if o.isFinal && o.egState != EGOff {
			return false
		}
	}
	return true
}

// updateProcess picks the kernel for the current mode and wraps it with
// the LFO stepper when modulation is on.
func (c *ChannelFM) updateProcess() {
	switch {
	case c.mode == ModeAnalogLike:
		c.kernel = c.procAnalogLike
	case c.mode == ModeRing:
		c.kernel = c.procRing
	case c.mode == ModeSync:
		c.kernel = c.procSync
	default:
		c.kernel = c.procNormal
	}
	if c.lfoOn {
		c.install(c.wired(c.withLFO(c.kernel)))
		return
	}
	for _, o := range c.ops {
		o.setPitchModulation(0)
	}
	c.install(c.wired(c.kernel))
}

// wired resolves the pipe wiring before running kernel.
func (c *ChannelFM) wired(kernel func(int)) func(int) {
	return func(length int) {
		c.wirePipes()
		kernel(length)
	}
}

func (c *ChannelFM) withLFO(kernel func(int)) func(int) {
	return func(length int) {
		for length > 0 {
			n := c.lfo.SamplesToNextStep(length)
			c.lfoStep()
			for _, o := range c.ops[:c.opCount] {
				o.setPitchModulation(c.pmOut)
			}
			kernel(n)
			c.lfo.Advance(n)
			length -= n
		}
	}
}

// wirePipes points every operator at the cursors its connection names.
// Operator cursors advance while a kernel runs, so the channel cursors
// are the source of truth between calls.
func (c *ChannelFM) wirePipes() {
	chip := c.chip
	resolve := func(id pipeID) *pipe.Element[int] {
		switch id {
		case pipeSink:
			return chip.sinkPipe()
		case pipeIn:
			if c.inputMode == InputFeedback {
				return c.feedbackRing.Front()
			}
			return c.inPipe
		case pipe0:
			return c.pipe0Ring.Front()
		case pipe1:
			return c.pipe1Ring.Front()
		case pipeOut:
			return c.outPipe
		case pipeBase:
			return c.basePipe
		}
		return chip.zeroPipe()
	}
	for i, o := range c.ops[:c.opCount] {
		w := c.wiring[i]
		o.inPipe = resolve(w.in)
		o.outPipe = resolve(w.out)
		o.basePipe = resolve(w.base)
		o.feedPipe = chip.sinkPipe()
		o.inShift = o.fmShift
	}
	switch c.inputMode {
	case InputFeedback:
		c.ops[0].inShift = c.feedback + 6
		if c.feedbackConn < c.opCount {
			c.ops[c.feedbackConn].feedPipe = c.feedbackRing.Front()
		}
	case InputPipe:
		c.ops[0].inShift = c.inputLevel + 10
	}
}

// procNormal plays PCM on a one-operator voice and FM otherwise.
func (c *ChannelFM) procNormal(length int) {
	if c.opCount == 1 && c.ops[0].pcmChannels > 0 {
		c.procPCM(length)
		return
	}
	c.procFM(length)
}

// procFM is the generic kernel for 1-4 wired operators.
func (c *ChannelFM) procFM(length int) {
	lt := c.table.LogTable
	ops := c.ops[:c.opCount]
	am := c.amOut
	for i := 0; i < length; i++ {
		for _, o := range ops {
			o.tickEG(EnvTimerInitial)
			o.phase = (o.phase + o.phaseStep) & PhaseFilter
			t := ((o.phase + (o.inPipe.Value << o.inShift)) & PhaseFilter) >> o.waveBits
			out := lt[o.wave[t]+o.egOut+(am>>o.ams)]
			o.feedPipe.Value = out
			o.outPipe.Value = out + o.basePipe.Value
			o.inPipe = o.inPipe.Next()
			o.outPipe = o.outPipe.Next()
			o.basePipe = o.basePipe.Next()
			o.feedPipe = o.feedPipe.Next()
		}
	}
}

// procAnalogLike sums two oscillators under the first operator's envelope.
func (c *ChannelFM) procAnalogLike(length int) {
	lt := c.table.LogTable
	o0, o1 := c.ops[0], c.ops[1]
	for i := 0; i < length; i++ {
		o0.tickEG(EnvTimerInitial)
		am := c.amOut >> o0.ams
		eg0 := o0.egOut + am
		eg1 := (o0.egLevelTable[o0.egLevel]+o1.egTotalLevel)<<3 + am
		o0.phase = (o0.phase + o0.phaseStep) & PhaseFilter
		o1.phase = (o1.phase + o1.phaseStep) & PhaseFilter
		t0 := ((o0.phase + (o0.inPipe.Value << o0.inShift)) & PhaseFilter) >> o0.waveBits
		t1 := o1.phase >> o1.waveBits
		out := lt[o0.wave[t0]+eg0] + lt[o1.wave[t1]+eg1]
		o0.feedPipe.Value = out
		o0.outPipe.Value = out + o0.basePipe.Value
		o0.inPipe = o0.inPipe.Next()
		o0.outPipe = o0.outPipe.Next()
		o0.basePipe = o0.basePipe.Next()
		o0.feedPipe = o0.feedPipe.Next()
	}
}

// procRing multiplies two oscillators by adding their log indices.
func (c *ChannelFM) procRing(length int) {
	lt := c.table.LogTable
	o0, o1 := c.ops[0], c.ops[1]
	for i := 0; i < length; i++ {
		o0.tickEG(EnvTimerInitial)
		o0.phase = (o0.phase + o0.phaseStep) & PhaseFilter
		o1.phase = (o1.phase + o1.phaseStep) & PhaseFilter
		t0 := ((o0.phase + (o0.inPipe.Value << o0.inShift)) & PhaseFilter) >> o0.waveBits
		t1 := o1.phase >> o1.waveBits
		idx := o0.wave[t0] + o1.wave[t1] + o0.egOut + (c.amOut >> o0.ams)
		if idx > LogTableBottom {
			idx = LogTableBottom
		}
		out := lt[idx]
		o0.feedPipe.Value = out
		o0.outPipe.Value = out + o0.basePipe.Value
		o0.inPipe = o0.inPipe.Next()
		o0.outPipe = o0.outPipe.Next()
		o0.basePipe = o0.basePipe.Next()
		o0.feedPipe = o0.feedPipe.Next()
	}
}

// procSync plays the second operator, restarting its phase whenever the
// first operator's phase wraps.
func (c *ChannelFM) procSync(length int) {
	lt := c.table.LogTable
	o0, o1 := c.ops[0], c.ops[1]
	for i := 0; i < length; i++ {
		o0.tickEG(EnvTimerInitial)
		o0.phase += o0.phaseStep
		if o0.phase&PhaseMax != 0 {
			o0.phase &= PhaseFilter
			o1.phase = o1.keyOnPhaseValue()
		} else {
			o1.phase = (o1.phase + o1.phaseStep) & PhaseFilter
		}
		t := ((o1.phase + (o0.inPipe.Value << o0.inShift)) & PhaseFilter) >> o1.waveBits
		out := lt[o1.wave[t]+o0.egOut+(c.amOut>>o0.ams)]
		o0.feedPipe.Value = out
		o0.outPipe.Value = out + o0.basePipe.Value
		o0.inPipe = o0.inPipe.Next()
		o0.outPipe = o0.outPipe.Next()
		o0.basePipe = o0.basePipe.Next()
		o0.feedPipe = o0.feedPipe.Next()
	}
}

// procPCM plays PCM data on the only operator. Stereo data is read from
// the left channel.
func (c *ChannelFM) procPCM(length int) {
	lt := c.table.LogTable
	o := c.ops[0]
	ch := o.pcmChannels
	for i := 0; i < length; i++ {
		o.tickEG(EnvTimerInitial)
		t := (o.phase >> PCMFixedBits) * ch
		out := lt[o.wave[t]+o.egOut+(c.amOut>>o.ams)]
		o.tickPCM()
		o.feedPipe.Value = out
		o.outPipe.Value = out + o.basePipe.Value
		o.outPipe = o.outPipe.Next()
		o.basePipe = o.basePipe.Next()
		o.feedPipe = o.feedPipe.Next()
	}
}
