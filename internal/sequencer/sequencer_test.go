package sequencer

import (
	"errors"
	"math"
	"testing"

	"github.com/cbegin/siopm-go/internal/siopm"
)

const testBlock = 1024

type recorder struct {
	block  int
	events []DispatchEvent
	at     []int
}

func (r *recorder) Dispatch(e DispatchEvent) {
	r.events = append(r.events, e)
	r.at = append(r.at, r.block*testBlock+e.BufferOffset)
}

func (r *recorder) count(k DispatchKind) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// positions returns the absolute sample positions of events of kind k.
func (r *recorder) positions(k DispatchKind) []int {
	var out []int
	for i, e := range r.events {
		if e.Kind == k {
			out = append(out, r.at[i])
		}
	}
	return out
}

func newTestDriver(t *testing.T, text string, opts ...Option) (*Driver, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{WithBufferLength(testBlock), WithDispatcher(rec)}, opts...)
	d, err := New(opts...)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	if err := d.PlayMML(text); err != nil {
		t.Fatalf("play %q: %v", text, err)
	}
	return d, rec
}

// render processes blocks until the driver finishes and returns the summed
// absolute output.
func render(t *testing.T, d *Driver, rec *recorder) float64 {
	t.Helper()
	var energy float64
	for rec.block = 0; !d.IsFinished(); rec.block++ {
		if rec.block > 5000 {
			t.Fatalf("driver did not finish")
		}
		for _, s := range d.Process().Buffer {
			energy += math.Abs(s)
		}
	}
	return energy
}

func TestDriverProducesAudio(t *testing.T) {
	d, rec := newTestDriver(t, "t120 o5 l8 cdefgab>c")
	if energy := render(t, d, rec); energy == 0 {
		t.Fatalf("expected non-zero audio energy")
	}
	if rec.count(DispatchNoteOn) != 8 || rec.count(DispatchNoteOff) != 8 {
		t.Fatalf("expected 8 note-ons and note-offs, got %d/%d", rec.count(DispatchNoteOn), rec.count(DispatchNoteOff))
	}
	if rec.count(DispatchFinish) != 1 {
		t.Fatalf("expected one finish event, got %d", rec.count(DispatchFinish))
	}
}

func TestDriverRepeatNoteOns(t *testing.T) {
	d, rec := newTestDriver(t, "[c4c4c4]3")
	render(t, d, rec)
	if n := rec.count(DispatchNoteOn); n != 9 {
		t.Fatalf("expected 9 note-ons, got %d", n)
	}
}

func TestDriverGateOffsets(t *testing.T) {
	cases := []struct {
		text string
		on   []int
		off  []int
	}{
		// A quarter note at 120 bpm is 22050 samples.
		{"t120 q8 c4", []int{0}, []int{22050}},
		{"t120 q4 c4", []int{0}, []int{11025}},
		{"t120 q8 @q24 c4", []int{0}, []int{11025}},
		{"t120 q8 @q0,24 c4", []int{11025}, []int{22050}},
		{"t120 q8 @q48 c4", nil, nil},
		{"t120 q8 @q0,48 c4", nil, nil},
	}
	for _, tc := range cases {
		d, rec := newTestDriver(t, tc.text)
		render(t, d, rec)
		on, off := rec.positions(DispatchNoteOn), rec.positions(DispatchNoteOff)
		if !sameInts(on, tc.on) || !sameInts(off, tc.off) {
			t.Fatalf("%q: expected on %v off %v, got on %v off %v", tc.text, tc.on, tc.off, on, off)
		}
	}
}

func TestDriverSlur(t *testing.T) {
	cases := []struct {
		text    string
		ons     int
		offs    int
		offLast int
	}{
		{"t120 q8 l4 c&d&e", 1, 1, 66150},
		{"t120 q8 l4 c&&d", 2, 2, 44100},
		{"t120 q8 l4 c&r", 1, 1, 22050},
	}
	for _, tc := range cases {
		d, rec := newTestDriver(t, tc.text)
		render(t, d, rec)
		offs := rec.positions(DispatchNoteOff)
		if rec.count(DispatchNoteOn) != tc.ons || len(offs) != tc.offs {
			t.Fatalf("%q: expected %d/%d note-ons/offs, got %d/%d", tc.text, tc.ons, tc.offs, rec.count(DispatchNoteOn), len(offs))
		}
		if offs[len(offs)-1] != tc.offLast {
			t.Fatalf("%q: expected the last note-off at %d, got %d", tc.text, tc.offLast, offs[len(offs)-1])
		}
	}
}

func TestDriverTempoAndBeats(t *testing.T) {
	d, rec := newTestDriver(t, "t120 l1 c; r2 t240 r2")
	render(t, d, rec)
	var tempos []int
	for _, e := range rec.events {
		if e.Kind == DispatchTempo {
			tempos = append(tempos, e.Value)
		}
	}
	if !sameInts(tempos, []int{12000, 24000}) {
		t.Fatalf("expected tempos 12000,24000, got %v", tempos)
	}
	if at := rec.positions(DispatchTempo); at[1] != 44100 {
		t.Fatalf("expected the tempo change at sample 44100, got %d", at[1])
	}
	beats := rec.positions(DispatchBeat)
	if len(beats) < 4 || beats[0] != 0 || beats[1] != 22050 {
		t.Fatalf("expected beats every 22050 samples, got %v", beats)
	}
}

func TestDriverLoop(t *testing.T) {
	d, rec := newTestDriver(t, "t240 l8 c", WithLoop(true))
	for rec.block = 0; rec.block < 200; rec.block++ {
		d.Process()
	}
	if d.IsFinished() || rec.count(DispatchFinish) != 0 {
		t.Fatalf("a looping driver must not finish")
	}
	if rec.count(DispatchLoop) < 2 || rec.count(DispatchNoteOn) < 3 {
		t.Fatalf("expected repeated loops, got %d loops and %d note-ons", rec.count(DispatchLoop), rec.count(DispatchNoteOn))
	}
}

func TestDriverLoopRestartsOnTheBoundary(t *testing.T) {
	// One quarter note at t120 lasts 22050 samples, which is not a whole
	// number of blocks.
	d, rec := newTestDriver(t, "t120 l4 c", WithLoop(true))
	for rec.block = 0; rec.block < 70; rec.block++ {
		d.Process()
	}
	if got := rec.positions(DispatchNoteOn)[:3]; !sameInts(got, []int{0, 22050, 44100}) {
		t.Fatalf("expected note-ons at 0,22050,44100, got %v", got)
	}
	if got := rec.positions(DispatchLoop)[:2]; !sameInts(got, []int{22050, 44100}) {
		t.Fatalf("expected loops at 22050,44100, got %v", got)
	}
}

func TestDriverModuleSwitch(t *testing.T) {
	cases := []struct {
		text string
		want siopm.ChannelType
	}{
		{"c", siopm.TypeFM},
		{"%1 c", siopm.TypePCM},
		{"%2 c", siopm.TypeSampler},
		{"%3 c", siopm.TypeKS},
		{"%9 c", siopm.TypeFM},
	}
	for _, tc := range cases {
		d, _ := newTestDriver(t, tc.text)
		d.Process()
		if got := d.Tracks()[0].Channel().Type(); got != tc.want {
			t.Fatalf("%q: expected channel type %v, got %v", tc.text, tc.want, got)
		}
	}
}

func TestDriverVoicePreset(t *testing.T) {
	d, _ := newTestDriver(t, "@4 c")
	d.Process()
	p := siopm.NewChannelParam()
	d.Tracks()[0].Channel().ChannelParam(p)
	if p.OpCount != 4 || p.Algorithm != 2 || p.Feedback != 5 {
		t.Fatalf("expected the brass voice, got ops=%d al=%d fb=%d", p.OpCount, p.Algorithm, p.Feedback)
	}
}

func TestDriverTrigger(t *testing.T) {
	d, rec := newTestDriver(t, "c %t5 c")
	render(t, d, rec)
	for _, e := range rec.events {
		if e.Kind == DispatchTrigger {
			if e.Value != 5 || e.Track != 0 {
				t.Fatalf("unexpected trigger %+v", e)
			}
			return
		}
	}
	t.Fatalf("expected a trigger event")
}

func TestDriverNoteTableEnvelope(t *testing.T) {
	d, _ := newTestDriver(t, "#TABLE1{0 12}; o5 l1 nt1,1 c")
	d.Process()
	if got := d.Tracks()[0].Channel().Pitch(); got != 72<<siopm.HalfToneBits {
		t.Fatalf("expected the envelope to raise the pitch to note 72, got %d", got)
	}
}

func TestDriverDetune(t *testing.T) {
	d, _ := newTestDriver(t, "o5 k32 c")
	d.Process()
	if got := d.Tracks()[0].Channel().Pitch(); got != 60<<siopm.HalfToneBits+32 {
		t.Fatalf("expected detuned pitch, got %d", got)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	for _, opt := range []Option{WithSampleRate(48000), WithBufferLength(0), WithBitRate(12)} {
		if _, err := New(opt); !errors.Is(err, ErrConfig) {
			t.Fatalf("expected ErrConfig, got %v", err)
		}
	}
}

func TestDriverPlayNil(t *testing.T) {
	d, err := New()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := d.Play(nil); !errors.Is(err, ErrNoScore) {
		t.Fatalf("expected ErrNoScore, got %v", err)
	}
	if !d.IsFinished() {
		t.Fatalf("an idle driver is finished")
	}
}

func TestDriverStop(t *testing.T) {
	d, _ := newTestDriver(t, "l1 cdefg")
	d.Process()
	d.Stop()
	if !d.IsFinished() || len(d.Tracks()) != 0 || d.Score() != nil {
		t.Fatalf("expected a stopped driver")
	}
	d.Process()
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
