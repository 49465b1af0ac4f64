package siopm

// ChannelPCM plays mono or stereo PCM data through one operator, so it
// keeps the operator envelope, pitch and filter.
type ChannelPCM struct {
	channelBase

	op   *Operator
	data *PCMData
}

func newChannelPCM(chip *Module) *ChannelPCM {
	c := &ChannelPCM{}
	c.init(chip, TypePCM, c)
	c.op = newOperator(chip)
	c.process = c.procPCM
	c.idle = func() bool { return c.data == nil || c.op.egState == EGOff }
	c.lfoChanged = func() {
		if c.lfoOn {
			c.process = c.procPCMLFO
			return
		}
		c.op.setPitchModulation(0)
		c.process = c.procPCM
	}
	return c
}

// Initialize resets every parameter, copying routing from prev if set.
func (c *ChannelPCM) Initialize(prev Channel, bufferIndex int) {
	c.initializeBase(prev, bufferIndex)
	c.op.Initialize()
	c.data = nil
	c.Reset()
}

// Reset silences the channel.
func (c *ChannelPCM) Reset() {
	c.resetBase()
	c.op.Reset()
}

// SetChannelParam applies the envelope of the first operator and the
// channel settings. The wave of a voice is ignored.
func (c *ChannelPCM) SetChannelParam(p *ChannelParam, withVolume bool) {
	c.setBaseParam(p, withVolume)
	if len(p.Operators) > 0 {
		op := p.Operators[0]
		op.PGType = PGSine
		c.op.SetParam(&op)
		if c.data != nil {
			c.op.SetPCMData(c.data)
		}
		c.op.SetPitchIndex(c.pitch)
	}
}

// ChannelParam copies the current settings into p.
func (c *ChannelPCM) ChannelParam(p *ChannelParam) {
	c.baseParam(p)
	p.OpCount = 1
	p.Operators = p.Operators[:0]
	var op OperatorParam
	c.op.Param(&op)
	p.Operators = append(p.Operators, op)
}

// SetWaveData loads PCM data.
func (c *ChannelPCM) SetWaveData(d WaveData) error {
	pcm, ok := d.(*PCMData)
	if !ok || pcm == nil || len(pcm.Wavelet) == 0 {
		return ErrWaveData
	}
	c.data = pcm
	c.op.SetPCMData(pcm)
	c.op.SetPitchIndex(c.pitch)
	c.stereo = pcm.Channels == 2
	return nil
}

// Operator returns the playback operator for i == 0.
func (c *ChannelPCM) Operator(i int) *Operator {
	if i != 0 {
		return nil
	}
	return c.op
}

// OperatorCount returns 1.
func (c *ChannelPCM) OperatorCount() int { return 1 }

// SetPitch sets the playback pitch; note 60 plays at the recorded rate.
func (c *ChannelPCM) SetPitch(p int) {
	c.pitch = p
	c.op.SetPitchIndex(p)
}

// SetExpression attenuates the operator.
func (c *ChannelPCM) SetExpression(expression, velocity int) {
	c.channelBase.SetExpression(expression, velocity)
	c.op.SetTotalLevelOffset(c.table.VolumeToTL[(c.expression*c.velocity)>>7])
}

// NoteOn restarts playback from the start point.
func (c *ChannelPCM) NoteOn() {
	c.op.NoteOn()
	c.channelBase.NoteOn()
}

// NoteOff releases the envelope.
func (c *ChannelPCM) NoteOff() {
	c.op.NoteOff()
	c.channelBase.NoteOff()
}

func (c *ChannelPCM) procPCM(length int) {
	o := c.op
	o.outPipe, o.basePipe, o.feedPipe = c.outPipe, c.basePipe, c.outPipeR
	c.render(length)
}

func (c *ChannelPCM) procPCMLFO(length int) {
	o := c.op
	o.outPipe, o.basePipe, o.feedPipe = c.outPipe, c.basePipe, c.outPipeR
	for length > 0 {
		n := c.lfo.SamplesToNextStep(length)
		c.lfoStep()
		o.setPitchModulation(c.pmOut)
		c.render(n)
		c.lfo.Advance(n)
		length -= n
	}
}

// render writes n samples at the operator cursors. The right channel of
// stereo data goes through the feed cursor.
func (c *ChannelPCM) render(n int) {
	lt := c.table.LogTable
	o := c.op
	ch := o.pcmChannels
	am := c.amOut >> o.ams
	stereoOut := c.outputMode == OutputStandard
	for i := 0; i < n; i++ {
		o.tickEG(EnvTimerInitial)
		t := (o.phase >> PCMFixedBits) * ch
		l := lt[o.wave[t]+o.egOut+am]
		if ch == 2 {
			r := lt[o.wave[t+1]+o.egOut+am]
			if stereoOut {
				o.feedPipe.Value = r
			} else {
				l = (l + r) >> 1
			}
		}
		o.tickPCM()
		o.outPipe.Value = l + o.basePipe.Value
		o.outPipe = o.outPipe.Next()
		o.basePipe = o.basePipe.Next()
		o.feedPipe = o.feedPipe.Next()
	}
}
