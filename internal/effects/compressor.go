package effects

import "math"

// Compressor implements basic dynamic range compression with one envelope
// follower per side.
type Compressor struct {
	threshold float64
	ratio     float64
	attack    float64 // coefficient
	release   float64 // coefficient
	makeup    float64
	envL      float64
	envR      float64
}

// NewCompressor creates a compressor effect.
// thresholdDB: threshold in dB (e.g., -20)
// ratio: compression ratio (e.g., 4 for 4:1)
// attackMs: attack time in ms
// releaseMs: release time in ms
// makeupDB: makeup gain in dB
func NewCompressor(sampleRate int, thresholdDB, ratio, attackMs, releaseMs, makeupDB float64) *Compressor {
	sr := float64(sampleRate)
	return &Compressor{
		threshold: dbToGain(thresholdDB),
		ratio:     math.Max(ratio, 1),
		attack:    1.0 - math.Exp(-1.0/(attackMs*sr/1000.0)),
		release:   1.0 - math.Exp(-1.0/(releaseMs*sr/1000.0)),
		makeup:    dbToGain(makeupDB),
	}
}

func (c *Compressor) Process(buf []float64) { frames(buf, c.frame) }

func (c *Compressor) frame(l, r float64) (float64, float64) {
	c.envL = c.follow(c.envL, math.Abs(l))
	c.envR = c.follow(c.envR, math.Abs(r))
	return l * c.gain(c.envL) * c.makeup, r * c.gain(c.envR) * c.makeup
}

func (c *Compressor) follow(env, in float64) float64 {
	if in > env {
		return env + c.attack*(in-env)
	}
	return env + c.release*(in-env)
}

func (c *Compressor) gain(env float64) float64 {
	if env <= c.threshold || c.threshold <= 0 {
		return 1.0
	}
	return math.Pow(env/c.threshold, 1.0/c.ratio-1)
}

func (c *Compressor) Reset() {
	c.envL = 0
	c.envR = 0
}

func dbToGain(db float64) float64 { return math.Pow(10, db/20) }
