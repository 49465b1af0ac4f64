package siopm

// WaveData is anything a channel can play: a *WaveTable, a *PCMData or a
// *SamplerTable.
type WaveData interface {
	waveData()
}

// PCMData is sample data stored as log-table indices, interleaved when
// stereo. Points are in frames; a negative LoopPoint plays once.
type PCMData struct {
	Wavelet    []int
	Channels   int
	StartPoint int
	EndPoint   int
	LoopPoint  int
}

func (*PCMData) waveData() {}

// NewPCMData converts samples in [-1, 1] into PCM data. Stereo input is
// interleaved left, right.
func NewPCMData(samples []float64, channels int, loopPoint int) *PCMData {
	if channels != 2 {
		channels = 1
	}
	frames := len(samples) / channels
	if frames > 1<<PCMBits {
		frames = 1 << PCMBits
	}
	w := make([]int, frames*channels)
	for i := range w {
		w[i] = LogIndex(samples[i])
	}
	if loopPoint >= frames {
		loopPoint = -1
	}
	return &PCMData{
		Wavelet:   w,
		Channels:  channels,
		EndPoint:  frames,
		LoopPoint: loopPoint,
	}
}

// Frames returns the number of sample frames.
func (d *PCMData) Frames() int {
	if d.Channels == 2 {
		return len(d.Wavelet) / 2
	}
	return len(d.Wavelet)
}

// SamplerData is one sample played without pitch change.
type SamplerData struct {
	Samples       []float64
	Channels      int
	StartPoint    int
	EndPoint      int
	LoopPoint     int
	IgnoreNoteOff bool
}

// NewSamplerData wraps samples in [-1, 1]; a negative loopPoint plays once.
func NewSamplerData(samples []float64, channels int, loopPoint int, ignoreNoteOff bool) *SamplerData {
	if channels != 2 {
		channels = 1
	}
	frames := len(samples) / channels
	if loopPoint >= frames {
		loopPoint = -1
	}
	return &SamplerData{
		Samples:       samples,
		Channels:      channels,
		EndPoint:      frames,
		LoopPoint:     loopPoint,
		IgnoreNoteOff: ignoreNoteOff,
	}
}

// playable reports whether the play range fits the samples. A loop point
// outside the range is treated as one-shot by the channel.
func (d *SamplerData) playable() bool {
	frames := len(d.Samples)
	if d.Channels == 2 {
		frames /= 2
	}
	return d.StartPoint >= 0 && d.StartPoint < d.EndPoint && d.EndPoint <= frames
}

// SamplerTable maps note numbers to samples.
type SamplerTable struct {
	Samples [NoteTableSize]*SamplerData
}

func (*SamplerTable) waveData() {}

// Set assigns d to note. Out-of-range notes are ignored.
func (t *SamplerTable) Set(note int, d *SamplerData) {
	if note >= 0 && note < NoteTableSize {
		t.Samples[note] = d
	}
}

// Get returns the sample for note, or nil.
func (t *SamplerTable) Get(note int) *SamplerData {
	if note < 0 || note >= NoteTableSize {
		return nil
	}
	return t.Samples[note]
}
