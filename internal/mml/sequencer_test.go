package mml

import (
	"math"
	"strings"
	"testing"
)

type runResult struct {
	notes    []int
	consumed int
	blocks   int
}

func newTestSequencer(t *testing.T, text string) (*Sequencer, *runResult) {
	t.Helper()
	s := NewSequencer(44100, DefaultParserSettings())
	score, err := s.Compile(text)
	if err != nil {
		t.Fatalf("compile %q: %v", text, err)
	}
	r := &runResult{}
	s.SetEventHandler(EventNote, func(e *Event) *Event {
		r.notes = append(r.notes, e.Data)
		return s.PublishProcessing(e)
	})
	s.SetProcessHandler(func(x *Executor, n int) { r.consumed += n })
	s.Prepare(score)
	return s, r
}

func runToEnd(t *testing.T, s *Sequencer, r *runResult, block int) {
	t.Helper()
	for !s.Process(block) {
		r.blocks++
		if r.blocks > 1_000_000 {
			t.Fatalf("sequencer did not finish")
		}
	}
}

func TestSequencerRepeatCounts(t *testing.T) {
	cases := []struct {
		text  string
		notes int
	}{
		{"[c4c4c4]3", 9},
		{"[[c4]2c4]3", 9},
		{"[c|d]3", 5},
		{"o4 l8 [cdef|gab]2", 11},
		{"[c]1", 1},
	}
	for _, tc := range cases {
		s, r := newTestSequencer(t, tc.text)
		runToEnd(t, s, r, 512)
		if len(r.notes) != tc.notes {
			t.Fatalf("%q: expected %d notes, got %d (%v)", tc.text, tc.notes, len(r.notes), r.notes)
		}
	}
}

func TestSequencerRepeatBreakOrder(t *testing.T) {
	s, r := newTestSequencer(t, "o5 [c|d]3 e")
	runToEnd(t, s, r, 512)
	if want := []int{60, 62, 60, 62, 60, 64}; !sameInts(r.notes, want) {
		t.Fatalf("expected %v, got %v", want, r.notes)
	}
}

func TestSequencerScaleTiming(t *testing.T) {
	s, r := newTestSequencer(t, "t120 l4 cdefgab>c")
	if got := s.SamplesPerTick(); math.Abs(got-45.9375) > 1e-4 {
		t.Fatalf("expected 45.9375 samples per tick, got %f", got)
	}
	runToEnd(t, s, r, 1024)
	if len(r.notes) != 8 {
		t.Fatalf("expected 8 notes, got %d", len(r.notes))
	}
	x := s.Executors()[0]
	if x.Tick() != 3840 {
		t.Fatalf("expected 3840 ticks, got %d", x.Tick())
	}
	if r.consumed != 176400 {
		t.Fatalf("expected 176400 samples, got %d", r.consumed)
	}
}

func TestSequencerSevenNotes(t *testing.T) {
	s, r := newTestSequencer(t, "t120 l4 cdefgab")
	runToEnd(t, s, r, 1024)
	if len(r.notes) != 7 || s.Executors()[0].Tick() != 3360 {
		t.Fatalf("expected 7 notes over 3360 ticks, got %d over %d", len(r.notes), s.Executors()[0].Tick())
	}
}

func TestSequencerNoDrift(t *testing.T) {
	text := "t97 l64 " + strings.Repeat("c", 500)
	s, r := newTestSequencer(t, text)
	runToEnd(t, s, r, 100)
	ticks := s.Executors()[0].Tick()
	want := float64(ticks) * s.SamplesPerTick()
	if math.Abs(float64(r.consumed)-want) > 1 {
		t.Fatalf("expected about %.2f samples, got %d", want, r.consumed)
	}
}

func TestSequencerBlockSizeIndependent(t *testing.T) {
	text := "t133 l16 [cdefg8.a32b]4 r8 c2"
	var totals []int
	for _, block := range []int{1, 64, 333, 4096} {
		s, r := newTestSequencer(t, text)
		runToEnd(t, s, r, block)
		totals = append(totals, r.consumed)
	}
	for _, n := range totals[1:] {
		if n != totals[0] {
			t.Fatalf("sample totals differ across block sizes: %v", totals)
		}
	}
}

func TestSequencerTempoChangeFromAnotherTrack(t *testing.T) {
	s, r := newTestSequencer(t, "t120 l1 c; r2 t240 r2")
	if n := len(s.Executors()); n != 1 {
		t.Fatalf("expected the rest-only track to be pruned, got %d executors", n)
	}
	var tempos []float64
	s.SetTempoHandler(func(bpm float64) { tempos = append(tempos, bpm) })
	runToEnd(t, s, r, 256)
	if len(tempos) != 2 || tempos[0] != 120 || tempos[1] != 240 {
		t.Fatalf("expected tempo changes 120,240, got %v", tempos)
	}
	// 960 ticks at 120 bpm then 960 ticks at 240 bpm.
	if math.Abs(float64(r.consumed)-66150) > 1 {
		t.Fatalf("expected about 66150 samples, got %d", r.consumed)
	}
}

func TestSequencerGlobalExtraction(t *testing.T) {
	s, _ := newTestSequencer(t, "[t100 c4]3")
	var ids []EventID
	var waits []int
	s.GlobalExecutor().Sequence().Each(func(e *Event) {
		ids = append(ids, e.ID)
		if e.ID == EventGlobalWait {
			waits = append(waits, e.Length)
		}
	})
	want := []EventID{EventTempo, EventGlobalWait, EventTempo, EventGlobalWait, EventTempo}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
	if !sameInts(waits, []int{480, 480}) {
		t.Fatalf("expected waits of 480 ticks, got %v", waits)
	}
	if n := len(eventsOf(s.Executors()[0].Sequence(), EventTempo)); n != 0 {
		t.Fatalf("expected tempo events removed from the track, got %d", n)
	}
}

func TestSequencerPrepareTwiceKeepsGlobals(t *testing.T) {
	s := NewSequencer(44100, DefaultParserSettings())
	score, err := s.Compile("t60 c4")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var tempos []float64
	s.SetTempoHandler(func(bpm float64) { tempos = append(tempos, bpm) })
	for i := 0; i < 2; i++ {
		s.Prepare(score)
		for !s.Process(512) {
		}
	}
	if len(tempos) != 2 || tempos[0] != 60 || tempos[1] != 60 {
		t.Fatalf("expected tempo 60 on both runs, got %v", tempos)
	}
}

func TestSequencerLoopAll(t *testing.T) {
	s, r := newTestSequencer(t, "c4 $ d4 e4")
	for i := 0; i < 400; i++ {
		if s.Process(512) {
			t.Fatalf("looping sequence finished")
		}
	}
	x := s.Executors()[0]
	if x.LoopCount() < 2 {
		t.Fatalf("expected several loops, got %d", x.LoopCount())
	}
	if r.notes[0] != 60 || r.notes[1] != 62 || r.notes[3] != 62 {
		t.Fatalf("expected c then repeating d e, got %v", r.notes[:4])
	}
}

func TestSequencerEmptyLoopEnds(t *testing.T) {
	s, r := newTestSequencer(t, "c4 $ v10")
	runToEnd(t, s, r, 512)
	if len(r.notes) != 1 {
		t.Fatalf("expected a single note, got %v", r.notes)
	}
}

func TestSequencerUserEvent(t *testing.T) {
	s := NewSequencer(44100, DefaultParserSettings())
	var got [][]int
	var args []int
	if _, err := s.SetUserDefinedEvent("@al", false, func(e *Event) *Event {
		var next *Event
		args, next = e.Args(args)
		got = append(got, append([]int(nil), args...))
		return next
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	score, err := s.Compile("@al4,2 c @al1")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	s.Prepare(score)
	for !s.Process(1024) {
	}
	if len(got) != 2 || !sameInts(got[0], []int{4, 2}) || !sameInts(got[1], []int{1}) {
		t.Fatalf("expected [[4 2] [1]], got %v", got)
	}
}

func TestSequencerGlobalUserEvent(t *testing.T) {
	s := NewSequencer(44100, DefaultParserSettings())
	var seen []*Executor
	id, err := s.SetUserDefinedEvent("x", true, func(e *Event) *Event {
		seen = append(seen, s.Current())
		_, next := e.Args(nil)
		return next
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	score, err := s.Compile("c4 x3,1 c4; r4 x2")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	s.Prepare(score)
	if n := len(eventsOf(s.GlobalExecutor().Sequence(), id)); n != 2 {
		t.Fatalf("expected 2 global events, got %d", n)
	}
	for !s.Process(1024) {
	}
	if len(seen) != 2 || seen[0] != s.GlobalExecutor() || seen[1] != s.GlobalExecutor() {
		t.Fatalf("expected both events on the global executor, got %d", len(seen))
	}
}

func TestSequencerStop(t *testing.T) {
	s, r := newTestSequencer(t, "l1 cdefg")
	s.Process(100)
	s.Stop()
	if !s.IsFinished() || s.Score() != nil {
		t.Fatalf("expected a stopped sequencer to be finished")
	}
	before := r.consumed
	s.Process(1000)
	if r.consumed != before {
		t.Fatalf("expected no processing after stop")
	}
}

func TestExecutorRescale(t *testing.T) {
	x := newExecutor(nil)
	x.residue = 1000
	x.rescale(2<<FixedBits, 1<<FixedBits)
	if x.residue != 500 || x.decimal != 0 {
		t.Fatalf("expected 500 samples, got %d + %d", x.residue, x.decimal)
	}
}
