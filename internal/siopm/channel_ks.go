package siopm

import (
	"math"

	"github.com/viterin/vek"
)

// Delay line constants of the plucked string.
const (
	KSDecay        = 0.995
	KSDecayLPF     = 0.5
	KSMuteDecay    = 0.9
	KSMuteDecayLPF = 0.25

	ksNoteOnDamp = 0.3
)

// ChannelKS is a Karplus-Strong string: an FM voice excites a delay line
// tuned to the note, and the delay line output is what the channel plays.
type ChannelKS struct {
	ChannelFM

	delay    [KSBufferSize]float64
	writePos int
	output   float64
	peak     float64

	decay, decayLPF         float64
	muteDecay, muteDecayLPF float64
	curDecay, curLPF        float64
}

func newChannelKS(chip *Module) *ChannelKS {
	c := &ChannelKS{}
	c.setupFM(chip, TypeKS, c)
	c.install = func(p func(int)) {
		c.process = func(length int) {
			p(length)
			c.ksDelay(length)
		}
	}
	c.idle = func() bool { return c.fmIdle() && c.peak < 1 }
	c.updateProcess()
	return c
}

// Initialize resets the exciter to a short pink noise burst and clears the
// delay line.
func (c *ChannelKS) Initialize(prev Channel, bufferIndex int) {
	c.ChannelFM.Initialize(prev, bufferIndex)
	o := c.ops[0]
	_ = o.SetPulseGeneratorType(PGNoisePink)
	o.SetAttackRate(63)
	o.SetDecayRate(48)
	o.SetSustainLevel(15)
	c.decay, c.decayLPF = KSDecay, KSDecayLPF
	c.muteDecay, c.muteDecayLPF = KSMuteDecay, KSMuteDecayLPF
	c.curDecay, c.curLPF = c.decay, c.decayLPF
	c.clearDelay()
}

// Reset silences the exciter and the string.
func (c *ChannelKS) Reset() {
	c.ChannelFM.Reset()
	c.clearDelay()
}

func (c *ChannelKS) clearDelay() {
	vek.Zeros_Into(c.delay[:], KSBufferSize)
	c.writePos = 0
	c.output = 0
	c.peak = 0
}

// SetDecay sets the feedback gain and the low-pass amount of the string
// while a note is held and after it is released. Gains are clamped to
// [0, 1).
func (c *ChannelKS) SetDecay(decay, lpf, muteDecay, muteLPF float64) {
	clamp := func(v float64) float64 { return math.Max(0, math.Min(0.9999, v)) }
	c.decay, c.decayLPF = clamp(decay), clamp(lpf)
	c.muteDecay, c.muteDecayLPF = clamp(muteDecay), clamp(muteLPF)
	if c.isNoteOn {
		c.curDecay, c.curLPF = c.decay, c.decayLPF
	} else {
		c.curDecay, c.curLPF = c.muteDecay, c.muteDecayLPF
	}
}

// NoteOn damps what is left in the string and plucks it again.
func (c *ChannelKS) NoteOn() {
	vek.MulNumber_Inplace(c.delay[:], ksNoteOnDamp)
	c.output *= ksNoteOnDamp
	c.curDecay, c.curLPF = c.decay, c.decayLPF
	c.ChannelFM.NoteOn()
}

// NoteOff switches the string to the mute constants.
func (c *ChannelKS) NoteOff() {
	c.curDecay, c.curLPF = c.muteDecay, c.muteDecayLPF
	c.ChannelFM.NoteOff()
}

// wavelength returns the delay in samples for the current pitch.
func (c *ChannelKS) wavelength() float64 {
	hz := noteFrequency(c.pitch + c.pmOut)
	w := float64(c.table.SampleRate) / hz
	return math.Max(2, math.Min(KSBufferSize-1, w))
}

// ksDelay runs the exciter output in the out pipe through the string.
func (c *ChannelKS) ksDelay(length int) {
	out, base := c.outPipe, c.basePipe
	w := c.wavelength()
	peak := 0.0
	for i := 0; i < length; i++ {
		excitation := float64(out.Value - base.Value)
		rp := float64(c.writePos) - w
		if rp < 0 {
			rp += KSBufferSize
		}
		i0 := int(rp)
		i1 := i0 + 1
		if i1 == KSBufferSize {
			i1 = 0
		}
		frac := rp - float64(i0)
		delayed := c.delay[i0]*(1-frac) + c.delay[i1]*frac
		c.output = c.output*c.curDecay + (delayed-c.output)*c.curLPF + excitation
		c.delay[c.writePos] = c.output
		c.writePos++
		if c.writePos == KSBufferSize {
			c.writePos = 0
		}
		peak = math.Max(peak, math.Abs(c.output))
		out.Value = int(c.output) + base.Value
		out, base = out.Next(), base.Next()
	}
	c.peak = peak
}
