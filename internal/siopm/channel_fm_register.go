package siopm

// opmRegisters keeps the OPM register values that combine with others.
type opmRegisters struct {
	channel int
	amd     int
	pmd     int
	pms     int
	ams     int
	amsEn   [4]bool
	kc      int
	kf      int
}

// opmNoteSemitones maps an OPM key code note field to semitones above the
// previous C. Unused codes repeat their neighbour.
var opmNoteSemitones = [16]int{1, 2, 3, 3, 4, 5, 6, 6, 7, 8, 9, 9, 10, 11, 12, 12}

// SetRegisterChannel selects which of the eight OPM channels this channel
// answers to. Writes to other channels are ignored.
func (c *ChannelFM) SetRegisterChannel(ch int) { c.reg.channel = ch & 7 }

// SetRegister applies a YM2151 register write.
func (c *ChannelFM) SetRegister(addr, data int) {
	addr &= 0xff
	data &= 0xff
	r := &c.reg
	switch {
	case addr == 0x08:
		if data&7 != r.channel {
			return
		}
		if data&0x78 != 0 {
			c.NoteOn()
		} else {
			c.NoteOff()
		}
	case addr == 0x0f:
		o := c.ops[3]
		if data&0x80 != 0 {
			_ = o.SetPulseGeneratorType(PGNoisePulse)
			o.SetPitchTableType(PTOPMNoise)
			o.SetFixedPitch((data&31 + 32) << HalfToneBits)
		} else {
			_ = o.SetPulseGeneratorType(PGSine)
			o.SetFixedPitch(0)
		}
	case addr == 0x18:
		c.SetLFOFrequency(data)
	case addr == 0x19:
		if data&0x80 != 0 {
			r.pmd = data & 0x7f
		} else {
			r.amd = data & 0x7f
		}
		c.applyRegisterLFO()
	case addr == 0x1b:
		c.SetLFOWave(data & 3)
	case addr < 0x20:
	case addr&7 != r.channel:
	case addr < 0x28:
		switch data >> 6 {
		case 0:
			c.SetMute(true)
		case 1:
			c.SetMute(false)
			c.SetPan(0)
		case 2:
			c.SetMute(false)
			c.SetPan(128)
		default:
			c.SetMute(false)
			c.SetPan(64)
		}
		if c.opCount != 4 || c.algorithm != data&7 {
			c.SetAlgorithm(4, data&7)
		}
		c.SetFeedback((data>>3)&7, 0)
	case addr < 0x30:
		r.kc = data & 0x7f
		c.applyRegisterPitch()
	case addr < 0x38:
		r.kf = data >> 2
		c.applyRegisterPitch()
	case addr < 0x40:
		r.pms = (data >> 4) & 7
		r.ams = data & 3
		c.applyRegisterLFO()
	default:
		c.setOperatorRegister(addr, data)
	}
}

func (c *ChannelFM) setOperatorRegister(addr, data int) {
	slot := (addr >> 3) & 3
	o := c.ops[opmSlotOrder[slot]]
	r := &c.reg
	switch addr & 0xe0 {
	case 0x40:
		o.SetDT1((data >> 4) & 7)
		o.SetMultiple(data & 15)
	case 0x60:
		o.SetTotalLevel(data & 0x7f)
	case 0x80:
		o.SetKeyScalingRate(data >> 6)
		o.SetAttackRate((data & 31) << 1)
	case 0xa0:
		r.amsEn[slot] = data&0x80 != 0
		o.SetDecayRate((data & 31) << 1)
		c.applyRegisterLFO()
	case 0xc0:
		o.SetDT2(data >> 6)
		o.SetSustainRate((data & 31) << 1)
	case 0xe0:
		o.SetSustainLevel(data >> 4)
		o.SetReleaseRate((data&15)<<2 + 2)
	}
}

func (c *ChannelFM) applyRegisterPitch() {
	r := &c.reg
	note := ((r.kc>>4)+1)*12 + opmNoteSemitones[r.kc&15]
	c.SetPitch(note<<HalfToneBits | r.kf)
}

func (c *ChannelFM) applyRegisterLFO() {
	r := &c.reg
	for slot, en := range r.amsEn {
		if en {
			c.ops[opmSlotOrder[slot]].SetAmplitudeModulationShift(r.ams)
		} else {
			c.ops[opmSlotOrder[slot]].SetAmplitudeModulationShift(0)
		}
	}
	if r.ams > 0 {
		c.SetAmplitudeModulation(r.amd)
	} else {
		c.SetAmplitudeModulation(0)
	}
	c.SetPitchModulation(r.pmd * r.pms / 7)
}
