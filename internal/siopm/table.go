package siopm

import (
	"math"
	"math/rand"
	"sync"
)

// Bit widths of the fixed-point domains used by the chip.
const (
	EnvBits            = 10
	EnvTimerBits       = 24
	SamplingTableBits  = 10
	HalfToneBits       = 6
	NoteBits           = 7
	NoiseTableBits     = 15
	LogTableResolution = 256
	LogVolumeBits      = 13
	LogTableMaxBits    = 16
	FixedBits          = 16
	PCMBits            = 20
	LFOFixedBits       = 20
	ClockRatioBits     = 10
)

// Derived sizes and limits.
const (
	PhaseBits          = SamplingTableBits + FixedBits
	PhaseMax           = 1 << PhaseBits
	PhaseFilter        = PhaseMax - 1
	SamplingTableSize  = 1 << SamplingTableBits
	NoiseTableSize     = 1 << NoiseTableBits
	NoteTableSize      = 1 << NoteBits
	HalfToneResolution = 1 << HalfToneBits
	PitchTableSize     = 1 << (HalfToneBits + NoteBits)
	PitchTableFilter   = PitchTableSize - 1
	LogTableSize       = LogTableMaxBits * LogTableResolution * 2
	LogTableBottom     = LogVolumeBits * LogTableResolution * 2
	PCMFixedBits       = FixedBits

	EnvLShift       = EnvBits - 7
	EnvBottom       = (LogVolumeBits * LogTableResolution) >> 2
	EnvTop          = EnvBottom - (1 << EnvBits)
	EnvBottomSSGEC  = 1 << (EnvBits - 3)
	EnvTimerInitial = (2047 * 3) << ClockRatioBits
	LFOTimerInitial = 1 << LFOFixedBits
	KSBufferSize    = 5400

	// OPMClock is the reference chip clock used for envelope timing.
	OPMClock = 3580000
	psgClock = 1789772.5
)

// PitchTableType selects the pitch-to-phase-step lookup of an operator.
type PitchTableType int

const (
	PTOPM PitchTableType = iota
	PTPCM
	PTPSG
	PTOPMNoise
	PTPSGNoise
	PTAPUNoise
	PTGBNoise
	PTMax
)

// Pulse generator (wave table) numbers.
const (
	PGSine         = 0
	PGSawUp        = 1
	PGSawDown      = 2
	PGTriangleFC   = 3
	PGTriangle     = 4
	PGSquare       = 5
	PGNoise        = 6
	PGNoisePulse   = 7
	PGNoiseShort   = 8
	PGNoiseHipass  = 9
	PGNoisePink    = 10
	PGNoiseGBShort = 11
	PGOffset       = 12
	PGHalfSine     = 13
	PGAbsSine      = 14
	PGQuarterSine  = 15
	PGAltSine      = 16
	PGCamelSine    = 17
	PGPulse        = 64
	PGPulseSpike   = 80
	PGRamp         = 128
	PGCustom       = 256
	PGPCM          = 384
	PGMax          = 512

	builtinWaveCount = PGCustom
	customWaveCount  = PGPCM - PGCustom
	pcmWaveCount     = PGMax - PGPCM
)

// WaveTable is one waveform stored as log-table indices.
type WaveTable struct {
	Wavelet       []int
	FixedBits     int
	DefaultPTType PitchTableType
}

func (*WaveTable) waveData() {}

// NewWaveTable converts samples in [-1, 1] into a wave table. The length
// must be a power of two no longer than the sampling table.
func NewWaveTable(samples []float64, pt PitchTableType) *WaveTable {
	n := 1
	bits := 0
	for n < len(samples) && bits < NoiseTableBits {
		n <<= 1
		bits++
	}
	w := make([]int, n)
	for i := range w {
		w[i] = LogIndex(samples[i*len(samples)/n])
	}
	return &WaveTable{Wavelet: w, FixedBits: PhaseBits - bits, DefaultPTType: pt}
}

// Table holds every lookup the chip needs for one sample rate.
type Table struct {
	SampleRate int
	ClockRatio int

	LogTable []int

	PitchTables [PTMax][]int
	waves       [builtinWaveCount]*WaveTable

	EGIncrementTables       [19][8]int
	EGIncrementTablesAttack [19][8]int
	EGTimerSteps            [128]int
	EGTableSelector         [128]int
	EGLevelTables           [7][]int
	EGSSGTableIndex         [10][3]int

	NoteToKC          [NoteTableSize]int
	DT1Table          [8][NoteTableSize]int
	DT2Table          [4]int
	KeyScaleLevelMul  [4]int
	VolumeToTL        [129]int
	PanTable          [129]float64
	FilterCutoffTable [129]float64
	FilterResonance   [10]float64
	FilterEGSteps     [64]int

	// I2N converts a log-table output to a float sample.
	I2N float64
}

var (
	tableMu    sync.Mutex
	tableCache = map[int]*Table{}
)

// TableFor returns the shared table for sampleRate, building it on first use.
func TableFor(sampleRate int) *Table {
	tableMu.Lock()
	defer tableMu.Unlock()
	if t, ok := tableCache[sampleRate]; ok {
		return t
	}
	t := NewTable(sampleRate)
	tableCache[sampleRate] = t
	return t
}

// NewTable builds a table for sampleRate. Rates below 22050 are raised to
// 22050 so an envelope timer never underflows twice in one sample.
func NewTable(sampleRate int) *Table {
	if sampleRate < 22050 {
		sampleRate = 22050
	}
	t := &Table{
		SampleRate: sampleRate,
		ClockRatio: ((OPMClock / 64) << ClockRatioBits) / sampleRate,
		I2N:        1.0 / float64(int(1)<<LogVolumeBits),
	}
	t.buildLogTable()
	t.buildEGTables()
	t.buildPitchTables()
	t.buildWaveTables()
	t.buildKeyTables()
	t.buildMixTables()
	t.buildFilterTables()
	return t
}

// LogIndex returns the log-table index whose value best represents n in
// [-1, 1]. Zero maps to LogTableBottom.
func LogIndex(n float64) int {
	if n == 0 || math.IsNaN(n) {
		return LogTableBottom
	}
	sign := 0
	if n < 0 {
		sign = 1
		n = -n
	}
	i := int(math.Floor(-math.Log2(n)*LogTableResolution+0.5)) << 1
	if i < 0 {
		i = 0
	}
	if i >= LogTableBottom {
		return LogTableBottom
	}
	return i + sign
}

func (t *Table) buildLogTable() {
	t.LogTable = make([]int, LogTableSize*3)
	for j := 0; j < LogTableBottom/2; j++ {
		v := int(math.Floor(math.Pow(2, LogVolumeBits-float64(j)/LogTableResolution) + 0.5))
		t.LogTable[j<<1] = v
		t.LogTable[j<<1+1] = -v
	}
}

// egIncrements is the 19-row increment table of the YM2151 envelope
// generator; rows 17 and 18 are the fastest attack and the infinite rate.
var egIncrements = [19][8]int{
	{0, 1, 0, 1, 0, 1, 0, 1},
	{0, 1, 0, 1, 1, 1, 0, 1},
	{0, 1, 1, 1, 0, 1, 1, 1},
	{0, 1, 1, 1, 1, 1, 1, 1},
	{1, 1, 1, 1, 1, 1, 1, 1},
	{1, 1, 1, 2, 1, 1, 1, 2},
	{1, 2, 1, 2, 1, 2, 1, 2},
	{1, 2, 2, 2, 1, 2, 2, 2},
	{2, 2, 2, 2, 2, 2, 2, 2},
	{2, 2, 2, 4, 2, 2, 2, 4},
	{2, 4, 2, 4, 2, 4, 2, 4},
	{2, 4, 4, 4, 2, 4, 4, 4},
	{4, 4, 4, 4, 4, 4, 4, 4},
	{4, 4, 4, 8, 4, 4, 4, 8},
	{4, 8, 4, 8, 4, 8, 4, 8},
	{4, 8, 8, 8, 4, 8, 8, 8},
	{8, 8, 8, 8, 8, 8, 8, 8},
	{16, 16, 16, 16, 16, 16, 16, 16},
	{0, 0, 0, 0, 0, 0, 0, 0},
}

const (
	egRowInfinite = 18
	egNoShift     = -1
)

func (t *Table) buildEGTables() {
	t.EGIncrementTables = egIncrements
	for r, row := range egIncrements {
		for c, inc := range row {
			switch inc {
			case 0:
				t.EGIncrementTablesAttack[r][c] = egNoShift
			case 1:
				t.EGIncrementTablesAttack[r][c] = 4
			case 2:
				t.EGIncrementTablesAttack[r][c] = 3
			case 4:
				t.EGIncrementTablesAttack[r][c] = 2
			case 8:
				t.EGIncrementTablesAttack[r][c] = 1
			default:
				t.EGIncrementTablesAttack[r][c] = 0
			}
		}
	}

	for i := range t.EGTimerSteps {
		switch {
		case i < 48:
			t.EGTimerSteps[i] = (1 << (i >> 2)) * t.ClockRatio
			t.EGTableSelector[i] = i & 3
		case i < 60:
			t.EGTimerSteps[i] = (1 << 11) * t.ClockRatio
			t.EGTableSelector[i] = i - 44
		case i < 96:
			t.EGTimerSteps[i] = (1 << 11) * t.ClockRatio
			t.EGTableSelector[i] = 16
		default:
			t.EGTimerSteps[i] = 0
			t.EGTableSelector[i] = egRowInfinite
		}
	}

	size := 1 << EnvBits
	for n := range t.EGLevelTables {
		t.EGLevelTables[n] = make([]int, size)
	}
	for i := 0; i < size; i++ {
		t.EGLevelTables[0][i] = clampEnv(i)
		t.EGLevelTables[1][i] = clampEnv(i << 2)
		t.EGLevelTables[2][i] = clampEnv(512 - (i << 2))
		t.EGLevelTables[3][i] = clampEnv(512 + (i << 2))
		t.EGLevelTables[4][i] = clampEnv(1024 - (i << 2))
		t.EGLevelTables[5][i] = 0
		t.EGLevelTables[6][i] = EnvBottom
	}
	t.EGSSGTableIndex = [10][3]int{
		{1, 1, 1}, {1, 6, 6}, {1, 2, 1}, {1, 5, 5}, {2, 2, 2},
		{2, 5, 5}, {2, 1, 2}, {2, 6, 6}, {3, 3, 3}, {4, 4, 4},
	}
}

func clampEnv(v int) int {
	if v < 0 {
		return 0
	}
	if v > EnvBottom {
		return EnvBottom
	}
	return v
}

// noteFrequency returns the equal-tempered frequency of a pitch index
// (64 steps per semitone, note 69 = 440 Hz).
func noteFrequency(pitchIndex int) float64 {
	return 440 * math.Pow(2, (float64(pitchIndex)/HalfToneResolution-69)/12)
}

var (
	apuNoisePeriods = [16]int{4, 8, 16, 32, 64, 96, 128, 160, 202, 254, 380, 508, 762, 1016, 2034, 4068}
	gbNoiseDivisors = [8]float64{0.5, 1, 2, 3, 4, 5, 6, 7}
)

func (t *Table) buildPitchTables() {
	rate := float64(t.SampleRate)
	toneStep := func(freq float64) int {
		return int(freq * PhaseMax / rate)
	}
	noiseStep := func(freq float64) int {
		return int(freq * (1 << (PhaseBits - NoiseTableBits)) / rate)
	}
	for pt := range t.PitchTables {
		t.PitchTables[pt] = make([]int, PitchTableSize)
	}
	for i := 0; i < PitchTableSize; i++ {
		note := i >> HalfToneBits
		freq := noteFrequency(i)
		t.PitchTables[PTOPM][i] = toneStep(freq)

		ratio := math.Pow(2, (float64(i)/HalfToneResolution-60)/12)
		t.PitchTables[PTPCM][i] = int(ratio * (1 << PCMFixedBits))

		tp := math.Floor(psgClock/16/freq + 0.5)
		if tp < 1 {
			tp = 1
		}
		if tp > 4095 {
			tp = 4095
		}
		t.PitchTables[PTPSG][i] = toneStep(psgClock / 16 / tp)

		nf := note & 31
		t.PitchTables[PTOPMNoise][i] = noiseStep(float64(OPMClock) / 64 / float64(32-nf))
		t.PitchTables[PTPSGNoise][i] = noiseStep(psgClock / 16 / float64(32-nf))
		t.PitchTables[PTAPUNoise][i] = noiseStep(1789773 / float64(apuNoisePeriods[15-note&15]))
		k := 63 - note&63
		t.PitchTables[PTGBNoise][i] = noiseStep(524288 / gbNoiseDivisors[k&7] / float64(int(1)<<(k>>3+1)))
	}
}

func (t *Table) buildWaveTables() {
	rng := rand.New(rand.NewSource(0x5109))
	sampling := func(fn func(x float64) float64) *WaveTable {
		s := make([]float64, SamplingTableSize)
		for i := range s {
			s[i] = fn((float64(i) + 0.5) / SamplingTableSize)
		}
		return NewWaveTable(s, PTOPM)
	}
	sine := func(x float64) float64 { return math.Sin(2 * math.Pi * x) }

	t.waves[PGSine] = sampling(sine)
	t.waves[PGSawUp] = sampling(func(x float64) float64 { return 2*x - 1 })
	t.waves[PGSawDown] = sampling(func(x float64) float64 { return 1 - 2*x })
	t.waves[PGTriangle] = sampling(func(x float64) float64 {
		if x < 0.5 {
			return 4*x - 1
		}
		return 3 - 4*x
	})
	t.waves[PGSquare] = NewWaveTable([]float64{1, -1}, PTOPM)
	t.waves[PGOffset] = NewWaveTable([]float64{1}, PTOPM)
	t.waves[PGHalfSine] = sampling(func(x float64) float64 { return math.Max(sine(x), 0) })
	t.waves[PGAbsSine] = sampling(func(x float64) float64 { return math.Abs(sine(x)) })
	t.waves[PGQuarterSine] = sampling(func(x float64) float64 {
		if math.Mod(x, 0.5) < 0.25 {
			return math.Abs(sine(x))
		}
		return 0
	})
	t.waves[PGAltSine] = sampling(func(x float64) float64 {
		if x < 0.5 {
			return sine(2 * x)
		}
		return 0
	})
	t.waves[PGCamelSine] = sampling(func(x float64) float64 {
		if x < 0.5 {
			return math.Abs(sine(2 * x))
		}
		return 0
	})

	fc := make([]float64, 32)
	for i := range fc {
		step := i
		if i >= 16 {
			step = 31 - i
		}
		fc[i] = float64(step)/7.5 - 1
	}
	t.waves[PGTriangleFC] = NewWaveTable(fc, PTPSG)

	for d := 0; d < 16; d++ {
		pulse := make([]float64, 16)
		spike := make([]float64, 16)
		for i := range pulse {
			if i < d {
				pulse[i], spike[i] = 1, 1
			} else {
				pulse[i] = -1
			}
		}
		if d == 0 {
			for i := range pulse {
				pulse[i] = 0
			}
		}
		t.waves[PGPulse+d] = NewWaveTable(pulse, PTPSG)
		t.waves[PGPulseSpike+d] = NewWaveTable(spike, PTPSG)
	}

	for r := 0; r < 64; r++ {
		peak := (float64(r) + 0.5) / 64
		t.waves[PGRamp+r] = sampling(func(x float64) float64 {
			if x < peak {
				return 2*x/peak - 1
			}
			return 1 - 2*(x-peak)/(1-peak)
		})
	}

	t.buildNoiseTables(rng)
}

func (t *Table) buildNoiseTables(rng *rand.Rand) {
	white := make([]float64, NoiseTableSize)
	pulse := make([]float64, NoiseTableSize)
	short := make([]float64, NoiseTableSize)
	hipass := make([]float64, NoiseTableSize)
	pink := make([]float64, NoiseTableSize)
	gbShort := make([]float64, NoiseTableSize)

	var b0, b1, b2 float64
	prev := 0.0
	lfsrShort := uint16(1)
	lfsrGB := uint8(0x7f)
	for i := 0; i < NoiseTableSize; i++ {
		w := rng.Float64()*2 - 1
		white[i] = w
		if rng.Intn(2) == 0 {
			pulse[i] = 1
		} else {
			pulse[i] = -1
		}
		hipass[i] = (w - prev) * 0.5
		prev = w

		b0 = 0.99765*b0 + w*0.0990460
		b1 = 0.96300*b1 + w*0.2965164
		b2 = 0.57000*b2 + w*1.0526913
		pink[i] = math.Max(-1, math.Min(1, (b0+b1+b2+w*0.1848)*0.25))

		bit := (lfsrShort ^ (lfsrShort >> 6)) & 1
		lfsrShort = lfsrShort>>1 | bit<<14
		short[i] = float64(lfsrShort&1)*2 - 1

		gbBit := (lfsrGB ^ (lfsrGB >> 1)) & 1
		lfsrGB = lfsrGB>>1 | gbBit<<6
		gbShort[i] = float64(lfsrGB&1)*2 - 1
	}
	t.waves[PGNoise] = NewWaveTable(white, PTOPMNoise)
	t.waves[PGNoisePulse] = NewWaveTable(pulse, PTOPMNoise)
	t.waves[PGNoiseShort] = NewWaveTable(short, PTAPUNoise)
	t.waves[PGNoiseHipass] = NewWaveTable(hipass, PTOPMNoise)
	t.waves[PGNoisePink] = NewWaveTable(pink, PTOPMNoise)
	t.waves[PGNoiseGBShort] = NewWaveTable(gbShort, PTGBNoise)
}

// Wave returns the built-in wave table for pg, or nil when pg is not a
// built-in slot.
func (t *Table) Wave(pg int) *WaveTable {
	if pg < 0 || pg >= builtinWaveCount {
		return nil
	}
	return t.waves[pg]
}

// noteCodes maps a semitone within the octave (C = 0) to the OPM key code
// note field, where C belongs to the previous octave.
var noteCodes = [12]int{14, 0, 1, 2, 4, 5, 6, 8, 9, 10, 12, 13}

// detuneSteps holds the YM2151/YM2612 detune-1 deltas indexed by
// [keyCode>>2][dt1&3], in 20-bit chip phase units.
var detuneSteps = [32][4]int{
	{0, 0, 1, 2}, {0, 0, 1, 2}, {0, 0, 1, 2}, {0, 0, 1, 2},
	{0, 1, 2, 2}, {0, 1, 2, 3}, {0, 1, 2, 3}, {0, 1, 2, 3},
	{0, 1, 2, 4}, {0, 1, 3, 4}, {0, 1, 3, 4}, {0, 1, 3, 5},
	{0, 2, 4, 5}, {0, 2, 4, 6}, {0, 2, 4, 6}, {0, 2, 5, 7},
	{0, 2, 5, 8}, {0, 3, 6, 8}, {0, 3, 6, 9}, {0, 3, 7, 10},
	{0, 4, 8, 11}, {0, 4, 8, 12}, {0, 4, 9, 13}, {0, 5, 10, 14},
	{0, 5, 11, 16}, {0, 6, 12, 17}, {0, 6, 13, 19}, {0, 7, 14, 20},
	{0, 8, 16, 22}, {0, 8, 16, 22}, {0, 8, 16, 22}, {0, 8, 16, 22},
}

func (t *Table) buildKeyTables() {
	for n := 0; n < NoteTableSize; n++ {
		oct := n/12 - 1
		if n%12 == 0 {
			oct--
		}
		if oct < 0 {
			oct = 0
		}
		if oct > 7 {
			oct = 7
		}
		t.NoteToKC[n] = oct<<4 | noteCodes[n%12]
	}
	chipRate := float64(OPMClock) / 64
	scale := float64(int(1)<<(PhaseBits-20)) * chipRate / float64(t.SampleRate)
	for kc := 0; kc < NoteTableSize; kc++ {
		for dt := 0; dt < 4; dt++ {
			v := int(float64(detuneSteps[kc>>2][dt])*scale + 0.5)
			t.DT1Table[dt][kc] = v
			t.DT1Table[dt+4][kc] = -v
		}
	}
	// 0, 600, 781 and 950 cents in pitch-index units
	t.DT2Table = [4]int{0, 384, 500, 608}
	t.KeyScaleLevelMul = [4]int{0, 1, 2, 4}
}

func (t *Table) buildMixTables() {
	t.VolumeToTL[0] = EnvBottom
	for v := 1; v <= 128; v++ {
		t.VolumeToTL[v] = clampEnv(int(math.Floor(-math.Log2(float64(v)/128)*64 + 0.5)))
	}
	for i := range t.PanTable {
		t.PanTable[i] = math.Sin(float64(i) * math.Pi / 256)
	}
}

func (t *Table) buildFilterTables() {
	rate := float64(t.SampleRate)
	for i := range t.FilterCutoffTable {
		fc := 20 * math.Pow(2, float64(i)*10/128)
		c := 2 * math.Sin(math.Pi*math.Min(fc, rate/2)/rate)
		if c > 1 || i == 128 {
			c = 1
		}
		t.FilterCutoffTable[i] = c
	}
	for i := range t.FilterResonance {
		t.FilterResonance[i] = 2 - float64(i)*0.2
	}
	for r := 1; r < len(t.FilterEGSteps); r++ {
		s := int(rate * math.Pow(2, float64(63-r)/4) / 4096)
		if s < 1 {
			s = 1
		}
		t.FilterEGSteps[r] = s
	}
}
