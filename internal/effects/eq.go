package effects

// EQ3Band implements a simple 3-band equalizer.
type EQ3Band struct {
	lowGain  float64
	midGain  float64
	highGain float64
	lpAlpha  float64
	hpAlpha  float64
	lpL, lpR float64 // lowpass state
	hpL, hpR float64 // highpass state
}

// NewEQ3Band creates a 3-band EQ.
// lowGain, midGain, highGain: gain for each band (1.0 = unity)
// lowFreq: crossover frequency between low and mid bands
// highFreq: crossover frequency between mid and high bands
func NewEQ3Band(sampleRate int, lowGain, midGain, highGain, lowFreq, highFreq float64) *EQ3Band {
	return &EQ3Band{
		lowGain:  lowGain,
		midGain:  midGain,
		highGain: highGain,
		lpAlpha:  onePoleAlpha(sampleRate, lowFreq),
		hpAlpha:  onePoleAlpha(sampleRate, highFreq),
	}
}

func (eq *EQ3Band) Process(buf []float64) { frames(buf, eq.frame) }

func (eq *EQ3Band) frame(l, r float64) (float64, float64) {
	eq.lpL += eq.lpAlpha * (l - eq.lpL)
	eq.lpR += eq.lpAlpha * (r - eq.lpR)
	lowL, lowR := eq.lpL, eq.lpR

	eq.hpL += eq.hpAlpha * (l - eq.hpL)
	eq.hpR += eq.hpAlpha * (r - eq.hpR)
	highL := l - eq.hpL
	highR := r - eq.hpR

	midL := l - lowL - highL
	midR := r - lowR - highR

	return lowL*eq.lowGain + midL*eq.midGain + highL*eq.highGain,
		lowR*eq.lowGain + midR*eq.midGain + highR*eq.highGain
}

func (eq *EQ3Band) Reset() {
	eq.lpL, eq.lpR = 0, 0
	eq.hpL, eq.hpR = 0, 0
}
