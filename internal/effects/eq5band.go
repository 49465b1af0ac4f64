package effects

import (
	"math"
	"sync/atomic"
)

// EQ5Band implements a 5-band equalizer with runtime-adjustable gains.
// Bands are split at 200Hz, 800Hz, 2.5kHz, and 8kHz. Gains are stored as
// float64 bit patterns so a UI goroutine can change them while the audio
// goroutine renders.
type EQ5Band struct {
	gains  [5]atomic.Uint64
	alphas [4]float64
	lpL    [4]float64
	lpR    [4]float64
}

var defaultCrossovers = [4]float64{200, 800, 2500, 8000}

// NewEQ5Band creates a 5-band EQ with all gains at unity.
func NewEQ5Band(sampleRate int) *EQ5Band {
	eq := &EQ5Band{}
	for i, freq := range defaultCrossovers {
		eq.alphas[i] = onePoleAlpha(sampleRate, freq)
	}
	for i := range eq.gains {
		eq.gains[i].Store(math.Float64bits(1.0))
	}
	return eq
}

// SetGain sets the gain for band (0-4). 1.0 = unity, 0.0 = silence, 2.0 = +6dB.
func (eq *EQ5Band) SetGain(band int, gain float64) {
	if band >= 0 && band < len(eq.gains) {
		eq.gains[band].Store(math.Float64bits(gain))
	}
}

// Gain returns the current gain for band (0-4).
func (eq *EQ5Band) Gain(band int) float64 {
	if band >= 0 && band < len(eq.gains) {
		return math.Float64frombits(eq.gains[band].Load())
	}
	return 1.0
}

func (eq *EQ5Band) Process(buf []float64) {
	var g [5]float64
	for i := range g {
		g[i] = eq.Gain(i)
	}
	for i := 0; i+1 < len(buf); i += 2 {
		remL, remR := buf[i], buf[i+1]
		var outL, outR float64
		// four cascaded crossovers peel off the bands from the bottom
		for b := 0; b < 4; b++ {
			eq.lpL[b] += eq.alphas[b] * (remL - eq.lpL[b])
			eq.lpR[b] += eq.alphas[b] * (remR - eq.lpR[b])
			outL += eq.lpL[b] * g[b]
			outR += eq.lpR[b] * g[b]
			remL -= eq.lpL[b]
			remR -= eq.lpR[b]
		}
		buf[i] = outL + remL*g[4]
		buf[i+1] = outR + remR*g[4]
	}
}

func (eq *EQ5Band) Reset() {
	eq.lpL = [4]float64{}
	eq.lpR = [4]float64{}
}
