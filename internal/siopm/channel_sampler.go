package siopm

// ChannelSampler plays unpitched samples chosen by note number from a
// sampler bank, for drum kits and one-shot effects.
type ChannelSampler struct {
	channelBase

	bank     int
	notes    *SamplerTable
	sample   *SamplerData
	position int
}

func newChannelSampler(chip *Module) *ChannelSampler {
	c := &ChannelSampler{}
	c.init(chip, TypeSampler, c)
	c.process = c.procSampler
	c.idle = func() bool { return c.sample == nil }
	return c
}

// Initialize resets every parameter, copying routing from prev if set.
func (c *ChannelSampler) Initialize(prev Channel, bufferIndex int) {
	c.initializeBase(prev, bufferIndex)
	c.SetBank(0)
	c.Reset()
}

// Reset stops playback.
func (c *ChannelSampler) Reset() {
	c.resetBase()
	c.sample = nil
	c.position = 0
}

// SetBank selects one of the module sampler banks.
func (c *ChannelSampler) SetBank(bank int) error {
	t, err := c.chip.SamplerTable(bank)
	if err != nil {
		return err
	}
	c.bank = bank
	c.notes = t
	return nil
}

// Bank returns the selected bank.
func (c *ChannelSampler) Bank() int { return c.bank }

// SetWaveData replaces the note table with a private one.
func (c *ChannelSampler) SetWaveData(d WaveData) error {
	t, ok := d.(*SamplerTable)
	if !ok || t == nil {
		return ErrWaveData
	}
	c.notes = t
	return nil
}

// NoteOn starts the sample mapped to the current note. Samples with an
// empty or out-of-bounds play range stay silent.
func (c *ChannelSampler) NoteOn() {
	c.sample = c.notes.Get(c.pitch >> HalfToneBits)
	if c.sample != nil && !c.sample.playable() {
		c.sample = nil
	}
	if c.sample != nil {
		c.position = c.sample.StartPoint
		c.stereo = c.sample.Channels == 2 && c.outputMode == OutputStandard
	}
	c.channelBase.NoteOn()
}

// NoteOff stops the sample unless it ignores note off.
func (c *ChannelSampler) NoteOff() {
	if c.sample != nil && !c.sample.IgnoreNoteOff {
		c.sample = nil
	}
	c.channelBase.NoteOff()
}

func (c *ChannelSampler) procSampler(length int) {
	out, outR, base := c.outPipe, c.outPipeR, c.basePipe
	gain := c.gain() * (1 << LogVolumeBits)
	for i := 0; i < length; i++ {
		var l, r int
		if s := c.sample; s != nil {
			if s.Channels == 2 {
				l = int(s.Samples[c.position*2] * gain)
				r = int(s.Samples[c.position*2+1] * gain)
				if !c.stereo {
					l = (l + r) >> 1
				}
			} else {
				l = int(s.Samples[c.position] * gain)
				r = l
			}
			c.position++
			if c.position >= s.EndPoint {
				if s.LoopPoint >= s.StartPoint && s.LoopPoint < s.EndPoint {
					c.position = s.LoopPoint
				} else {
					c.sample = nil
				}
			}
		}
		out.Value = l + base.Value
		outR.Value = r
		out, outR, base = out.Next(), outR.Next(), base.Next()
	}
}
