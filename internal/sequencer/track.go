package sequencer

import (
	"github.com/cbegin/siopm-go/internal/mml"
	"github.com/cbegin/siopm-go/internal/siopm"
)

type tie int

const (
	tieNone tie = iota
	tieSlur
	tieWeak
)

// Table envelopes, stepped once per frame while a note sounds.
const (
	envAmp = iota
	envPitch
	envNote
	envFilter
	envelopeCount
)

// envelope walks a table one entry every frames steps and holds the last
// entry.
type envelope struct {
	table  []int
	frames int
	pos    int
	count  int
}

func (e *envelope) active() bool { return len(e.table) > 0 }

func (e *envelope) value() int {
	if len(e.table) == 0 {
		return 0
	}
	return e.table[e.pos]
}

func (e *envelope) restart() {
	e.pos = 0
	e.count = e.frames
}

func (e *envelope) step() bool {
	if e.pos >= len(e.table)-1 {
		return false
	}
	e.count--
	if e.count > 0 {
		return false
	}
	e.count = e.frames
	e.pos++
	return true
}

// filter arguments of "@f": cutoff, resonance, ar, dr1, dr2, rr, dc1, dc2,
// sc, rc.
var defaultFilter = [10]int{128, 0, 0, 0, 0, 0, 128, 128, 128, 128}

// Track binds one executor to one chip channel and turns its note events
// into key-on and key-off calls at sample offsets inside the block.
type Track struct {
	id     int
	d      *Driver
	exec   *mml.Executor
	ch     siopm.Channel
	offset int

	volume     int
	fineVolume int
	expression int
	pan        int
	detune     int
	quantRatio int
	quantCount int
	keyOnDelay int

	note     int
	pending  int
	legato   bool
	tie      tie
	keyOnIn  int
	keyOffIn int

	filter   [10]int
	envs     [envelopeCount]envelope
	frameLen int
	frameIn  int
}

func (t *Track) bind(x *mml.Executor) {
	s := t.d.seq.Parser().Settings()
	if t.ch.IsNoteOn() {
		t.ch.NoteOff()
	}
	t.exec = x
	t.volume = s.DefaultVolume
	t.fineVolume = s.DefaultFineVolume
	t.expression = 128
	t.pan = 64
	t.detune = 0
	t.quantRatio = s.QuantRatio()
	t.quantCount = 0
	t.keyOnDelay = 0
	t.note = -1
	t.legato = false
	t.tie = tieNone
	t.keyOnIn, t.keyOffIn = -1, -1
	t.filter = defaultFilter
	t.envs = [envelopeCount]envelope{}
	t.frameLen = max(1, t.d.cfg.sampleRate/t.d.fps)
	t.frameIn = t.frameLen
	t.ch.SetPan(t.pan)
	t.updateVolume()
}

// ID returns the track index in the score.
func (t *Track) ID() int { return t.id }

// Channel returns the chip channel the track plays on. It changes when
// the track switches module type.
func (t *Track) Channel() siopm.Channel { return t.ch }

// Executor returns the executor running the track.
func (t *Track) Executor() *mml.Executor { return t.exec }

// Note returns the sounding note, or -1.
func (t *Track) Note() int { return t.note }

func (t *Track) buffer(n int) {
	for n > 0 {
		step := n
		if t.keyOnIn >= 0 {
			step = min(step, t.keyOnIn)
		}
		if t.keyOffIn >= 0 {
			step = min(step, t.keyOffIn)
		}
		envs := t.envelopesOn()
		if envs {
			step = min(step, t.frameIn)
		}
		if step > 0 {
			t.ch.Buffer(step)
			t.offset += step
			n -= step
			if t.keyOnIn > 0 {
				t.keyOnIn -= step
			}
			if t.keyOffIn > 0 {
				t.keyOffIn -= step
			}
			if envs {
				t.frameIn -= step
			}
		}
		if t.keyOnIn == 0 {
			t.keyOnIn = -1
			t.keyOn()
		}
		if t.keyOffIn == 0 {
			t.keyOffIn = -1
			t.keyOff()
		}
		if t.frameIn <= 0 {
			t.frameIn = t.frameLen
			t.stepEnvelopes()
		}
	}
}

// scheduleNote plans the key-on and key-off of a note lasting ticks, with
// next telling whether the following note is slurred to it.
func (t *Track) scheduleNote(note, ticks int, next tie) {
	t.keyOnIn = -1
	if t.keyOffIn >= 0 {
		t.keyOffIn = -1
		t.keyOff()
	}
	prev := t.tie
	t.tie = tieNone
	delay := min(t.keyOnDelay, ticks)
	gate := ticks
	if next == tieNone {
		gate = ticks*t.quantRatio/mml.QuantRatioScale - t.quantCount
	}
	if gate <= delay {
		t.keyOff()
		return
	}
	spt := t.d.seq.SamplesPerTick()
	t.pending = note
	t.legato = prev == tieSlur && t.note >= 0
	t.keyOnIn = int(float64(delay) * spt)
	if next == tieNone {
		t.keyOffIn = max(int(float64(gate)*spt), t.keyOnIn+1)
	}
	t.tie = next
}

// rescale stretches the pending key-on and key-off after a tempo change.
func (t *Track) rescale(r float64) {
	if t.keyOnIn > 0 {
		t.keyOnIn = int(float64(t.keyOnIn) * r)
	}
	if t.keyOffIn > 0 {
		t.keyOffIn = max(int(float64(t.keyOffIn)*r), t.keyOnIn+1, 1)
	}
}

// releaseTie keys off a note held by a slur into a rest.
func (t *Track) releaseTie() {
	t.keyOnIn = -1
	if t.tie != tieNone || t.keyOffIn >= 0 {
		t.tie = tieNone
		t.keyOffIn = -1
		t.keyOff()
	}
}

func (t *Track) keyOn() {
	old := t.note
	t.note = t.pending
	if t.legato {
		t.applyPitch()
		return
	}
	if old >= 0 {
		t.d.dispatch(DispatchEvent{Kind: DispatchNoteOff, Track: t.id, Note: old, BufferOffset: t.offset})
	}
	for i := range t.envs {
		t.envs[i].restart()
	}
	t.frameIn = t.frameLen
	t.applyPitch()
	t.applyEnvelopes()
	t.ch.NoteOn()
	t.d.dispatch(DispatchEvent{Kind: DispatchNoteOn, Track: t.id, Note: t.note, BufferOffset: t.offset})
}

func (t *Track) keyOff() {
	if t.note < 0 {
		return
	}
	t.ch.NoteOff()
	t.d.dispatch(DispatchEvent{Kind: DispatchNoteOff, Track: t.id, Note: t.note, BufferOffset: t.offset})
	t.note = -1
}

func (t *Track) applyPitch() {
	if t.note < 0 {
		return
	}
	p := (t.note+t.envs[envNote].value())<<siopm.HalfToneBits + t.detune + t.envs[envPitch].value()
	t.ch.SetPitch(max(p, 0))
}

func (t *Track) updateVolume() {
	s := t.d.seq.Parser().Settings()
	vel := t.volume * 128 / max(s.MaxVolume, 1) * t.fineVolume / max(s.MaxFineVolume, 1)
	expr := t.expression
	if e := &t.envs[envAmp]; e.active() {
		expr = expr * clampInt(e.value(), 0, 128) / 128
	}
	t.ch.SetExpression(clampInt(expr, 0, 128), clampInt(vel, 0, 128))
}

func (t *Track) updateFilter() {
	f := t.filter
	f[0] += t.envs[envFilter].value()
	t.ch.SetSVFilter(f[0], f[1], f[2], f[3], f[4], f[5], f[6], f[7], f[8], f[9])
}

func (t *Track) envelopesOn() bool {
	for i := range t.envs {
		if t.envs[i].active() {
			return true
		}
	}
	return false
}

func (t *Track) setEnvelope(kind int, table []int, frames int) {
	e := &t.envs[kind]
	e.table = table
	e.frames = max(frames, 1)
	e.restart()
	t.applyEnvelope(kind)
}

func (t *Track) stepEnvelopes() {
	for i := range t.envs {
		if t.envs[i].step() {
			t.applyEnvelope(i)
		}
	}
}

func (t *Track) applyEnvelopes() {
	for i := range t.envs {
		if t.envs[i].active() {
			t.applyEnvelope(i)
		}
	}
}

func (t *Track) applyEnvelope(kind int) {
	switch kind {
	case envAmp:
		t.updateVolume()
	case envPitch, envNote:
		t.applyPitch()
	case envFilter:
		t.updateFilter()
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
