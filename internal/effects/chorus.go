package effects

import "math"

// Chorus is a delay swept by a sine; short delays with feedback give a
// flanger.
type Chorus struct {
	left, right line
	center      float64 // frames
	depth       float64 // frames
	rate        float64 // radians per frame
	phase       float64
	feedback    float64
	wet         float64
}

// NewChorus creates a chorus around delayMs swept by depthMs at rateHz.
// feedback and wet are in [0, 1].
func NewChorus(sampleRate int, delayMs, feedback, depthMs, rateHz, wet float64) *Chorus {
	base := math.Max(delayMs*float64(sampleRate)/1000, 0)
	depth := math.Max(depthMs*float64(sampleRate)/1000, 0)
	n := int(base+2*depth) + 3
	return &Chorus{
		left:     newLine(n),
		right:    newLine(n),
		center:   base + depth + 1,
		depth:    depth,
		rate:     2 * math.Pi * rateHz / float64(sampleRate),
		feedback: clamp(feedback, 0, 0.9),
		wet:      clamp(wet, 0, 1),
	}
}

func (c *Chorus) Process(buf []float64) { frames(buf, c.frame) }

func (c *Chorus) frame(l, r float64) (float64, float64) {
	d := c.center + math.Sin(c.phase)*c.depth
	c.phase = math.Mod(c.phase+c.rate, 2*math.Pi)
	dl, dr := c.left.tapFrac(d), c.right.tapFrac(d)
	c.left.push(l + dl*c.feedback)
	c.right.push(r + dr*c.feedback)
	return mix(l, dl, c.wet), mix(r, dr, c.wet)
}

func (c *Chorus) Reset() {
	c.left.reset()
	c.right.reset()
	c.phase = 0
}
