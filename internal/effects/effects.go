// Package effects holds the stereo effects applied to the chip's stream
// slots. Effects work in place on interleaved float64 blocks.
package effects

import "github.com/viterin/vek"

// Effector processes an interleaved stereo block in place.
type Effector interface {
	Process(buf []float64)
	Reset()
}

// Chain applies a sequence of effects in order.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Process(buf []float64) {
	for _, e := range c.effects {
		e.Process(buf)
	}
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

func (c *Chain) Add(e Effector) {
	c.effects = append(c.effects, e)
}

// Len returns the number of effects in the chain.
func (c *Chain) Len() int { return len(c.effects) }

// Gain scales a block by a constant factor.
type Gain struct {
	Level float64
}

func (g *Gain) Process(buf []float64) {
	if g.Level != 1 {
		vek.MulNumber_Inplace(buf, g.Level)
	}
}

func (g *Gain) Reset() {}

// frames runs fn over every stereo frame of buf.
func frames(buf []float64, fn func(l, r float64) (float64, float64)) {
	for i := 0; i+1 < len(buf); i += 2 {
		buf[i], buf[i+1] = fn(buf[i], buf[i+1])
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
