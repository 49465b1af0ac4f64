package effects

// Reverb implements a Schroeder-style reverb with four comb filters and
// two allpass filters over the mono sum.
type Reverb struct {
	combs   [4]feedbackLine
	allpass [2]feedbackLine
	wet     float64
}

type feedbackLine struct {
	line
	fb float64
}

// NewReverb creates a reverb effect.
// roomSize: 0..1 controls delay lengths
// feedback: 0..1 controls decay time
// wet: wet/dry mix 0..1
func NewReverb(sampleRate int, roomSize, feedback, wet float64) *Reverb {
	base := max(int(float64(sampleRate)*roomSize*0.05), 10)
	fb := clamp(feedback, 0, 0.95)
	r := &Reverb{wet: clamp(wet, 0, 1)}
	// prime-ish ratios keep the comb resonances apart
	combLens := [4]int{base, base * 1117 / 1000, base * 1271 / 1000, base * 1437 / 1000}
	for i := range r.combs {
		r.combs[i] = feedbackLine{line: newLine(combLens[i]), fb: fb}
	}
	apLens := [2]int{base * 347 / 1000, base * 213 / 1000}
	for i := range r.allpass {
		r.allpass[i] = feedbackLine{line: newLine(apLens[i]), fb: 0.5}
	}
	return r
}

func (r *Reverb) Process(buf []float64) { frames(buf, r.frame) }

func (r *Reverb) frame(left, right float64) (float64, float64) {
	mono := (left + right) * 0.5
	var out float64
	for i := range r.combs {
		out += r.combs[i].comb(mono)
	}
	out *= 0.25
	for i := range r.allpass {
		out = r.allpass[i].allpass(out)
	}
	return mix(left, out, r.wet), mix(right, out, r.wet)
}

func (r *Reverb) Reset() {
	for i := range r.combs {
		r.combs[i].reset()
	}
	for i := range r.allpass {
		r.allpass[i].reset()
	}
}

func (f *feedbackLine) comb(in float64) float64 {
	out := f.tap(f.len())
	f.push(in + out*f.fb)
	return out
}

func (f *feedbackLine) allpass(in float64) float64 {
	delayed := f.tap(f.len())
	f.push(in + delayed*f.fb)
	return delayed - in
}
