package lfo

import "math/rand"

// Waveform constants matching the MML @lfo wave numbers.
const (
	WaveSaw      = 0
	WaveSquare   = 1
	WaveTriangle = 2
	WaveRandom   = 3
)

const (
	// TableSize is the number of steps in one LFO cycle.
	TableSize = 256
	// FixedBits is the width of the step timer fraction.
	FixedBits = 20
	// TimerInitial is the timer value restored after every step.
	TimerInitial = 1 << FixedBits
)

var tables = buildTables()

func buildTables() [4][TableSize]int {
	var t [4][TableSize]int
	rng := rand.New(rand.NewSource(0x1f0))
	for i := 0; i < TableSize; i++ {
		t[WaveSaw][i] = 255 - i
		if i < 128 {
			t[WaveSquare][i] = 255
		}
		switch {
		case i < 64:
			t[WaveTriangle][i] = 128 + i*2
		case i < 192:
			t[WaveTriangle][i] = 383 - i*2
		default:
			t[WaveTriangle][i] = i*2 - 384
		}
		t[WaveRandom][i] = rng.Intn(256)
	}
	return t
}

// Table returns the 256-step table for a waveform, or nil if it is unknown.
func Table(wave int) []int {
	if wave < 0 || wave >= len(tables) {
		return nil
	}
	return tables[wave][:]
}

// Generator is a per-channel fixed-point LFO. Its output is an unsigned
// step value in [0, 255] that only changes when the step timer underflows,
// so callers can process whole runs of samples between steps.
type Generator struct {
	wave  int
	table []int
	phase int
	timer int
	step  int
}

// New returns a triangle generator that never steps until a rate is set.
func New() *Generator {
	g := &Generator{}
	g.SetWave(WaveTriangle)
	g.Reset()
	return g
}

// SetWave selects the waveform. Unknown values fall back to triangle.
func (g *Generator) SetWave(wave int) {
	if Table(wave) == nil {
		wave = WaveTriangle
	}
	g.wave = wave
	g.table = Table(wave)
}

// Wave returns the selected waveform.
func (g *Generator) Wave() int { return g.wave }

// SetCycleTime sets the length of one full cycle in milliseconds. Zero or
// negative values stop the generator.
func (g *Generator) SetCycleTime(ms float64, sampleRate int) {
	if ms <= 0 || sampleRate <= 0 {
		g.step = 0
		return
	}
	samplesPerStep := ms * float64(sampleRate) / 1000 / TableSize
	if samplesPerStep < 1 {
		samplesPerStep = 1
	}
	g.step = int(TimerInitial / samplesPerStep)
}

// SetFrequency sets the rate in cycles per second.
func (g *Generator) SetFrequency(hz float64, sampleRate int) {
	if hz <= 0 {
		g.step = 0
		return
	}
	g.SetCycleTime(1000/hz, sampleRate)
}

// Step returns the timer decrement per sample.
func (g *Generator) Step() int { return g.step }

// Reset rewinds the cycle.
func (g *Generator) Reset() {
	g.phase = 0
	g.timer = TimerInitial
}

// Active reports whether the generator advances at all.
func (g *Generator) Active() bool { return g.step > 0 }

// Value returns the current step value in [0, 255].
func (g *Generator) Value() int { return g.table[g.phase] }

// SamplesToNextStep returns how many samples can be processed before the
// output changes; the change lands on the last of them. A stopped generator
// reports max.
func (g *Generator) SamplesToNextStep(max int) int {
	if g.step <= 0 {
		return max
	}
	n := (g.timer + g.step - 1) / g.step
	if n > max {
		return max
	}
	return n
}

// Advance consumes n samples. The phase steps whenever the timer runs out.
func (g *Generator) Advance(n int) {
	if g.step <= 0 {
		return
	}
	g.timer -= n * g.step
	for g.timer <= 0 {
		g.phase = (g.phase + 1) & (TableSize - 1)
		g.timer += TimerInitial
	}
}
