package effects

import "math"

// Distortion implements waveshaping distortion with pre/post gain and LPF.
type Distortion struct {
	preGain  float64
	postGain float64
	lpfAlpha float64
	lpfL     float64
	lpfR     float64
}

// NewDistortion creates a distortion effect.
// preGain: input gain (higher = more distortion)
// postGain: output gain
// lpfCutoff: lowpass filter cutoff in Hz (0 = no filter)
func NewDistortion(sampleRate int, preGain, postGain, lpfCutoff float64) *Distortion {
	d := &Distortion{
		preGain:  preGain,
		postGain: postGain,
	}
	if lpfCutoff > 0 && lpfCutoff < float64(sampleRate)/2 {
		d.lpfAlpha = onePoleAlpha(sampleRate, lpfCutoff)
	}
	return d
}

func (d *Distortion) Process(buf []float64) { frames(buf, d.frame) }

func (d *Distortion) frame(l, r float64) (float64, float64) {
	// Soft clipping via tanh waveshaping
	l = math.Tanh(l*d.preGain) * d.postGain
	r = math.Tanh(r*d.preGain) * d.postGain
	if d.lpfAlpha > 0 {
		d.lpfL += d.lpfAlpha * (l - d.lpfL)
		d.lpfR += d.lpfAlpha * (r - d.lpfR)
		l = d.lpfL
		r = d.lpfR
	}
	return l, r
}

func (d *Distortion) Reset() {
	d.lpfL = 0
	d.lpfR = 0
}

// onePoleAlpha returns the smoothing factor of a one-pole lowpass at freq.
func onePoleAlpha(sampleRate int, freq float64) float64 {
	rc := 1.0 / (2.0 * math.Pi * freq)
	dt := 1.0 / float64(sampleRate)
	return dt / (rc + dt)
}
