package effects

// Delay is a stereo echo whose feedback can cross between channels.
type Delay struct {
	left, right line
	feedback    float64
	cross       float64
	wet         float64
}

// NewDelay creates a delay of delayMs. feedback, cross and wet are in
// [0, 1]; feedback is capped below 1.
func NewDelay(sampleRate int, delayMs, feedback, cross, wet float64) *Delay {
	n := int(delayMs * float64(sampleRate) / 1000)
	return &Delay{
		left:     newLine(n),
		right:    newLine(n),
		feedback: clamp(feedback, 0, 0.95),
		cross:    clamp(cross, 0, 1),
		wet:      clamp(wet, 0, 1),
	}
}

func (d *Delay) Process(buf []float64) { frames(buf, d.frame) }

func (d *Delay) frame(l, r float64) (float64, float64) {
	n := d.left.len()
	dl, dr := d.left.tap(n), d.right.tap(n)
	d.left.push(l + mix(dl, dr, d.cross)*d.feedback)
	d.right.push(r + mix(dr, dl, d.cross)*d.feedback)
	return mix(l, dl, d.wet), mix(r, dr, d.wet)
}

func (d *Delay) Reset() {
	d.left.reset()
	d.right.reset()
}
