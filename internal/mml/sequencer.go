package mml

import (
	"math"
	"slices"

	"github.com/cbegin/siopm-go/internal/pipe"
)

// FixedBits is the fractional width of tick to sample conversion.
const (
	FixedBits = 16
	fixedMask = 1<<FixedBits - 1
)

// EventHandler runs one event for the current executor and returns the
// event to continue from.
type EventHandler func(e *Event) *Event

// Sequencer drives executors over a compiled score: one per sounding
// sequence plus a global one carrying tempo and table events.
type Sequencer struct {
	parser     *Parser
	sampleRate int
	resolution int
	defaultBPM float64

	bpm       float64
	tickFixed int64

	handlers  [EventIDMax]EventHandler
	global    [EventIDMax]bool
	onProcess func(x *Executor, length int)
	onTempo   func(bpm float64)

	current *Executor
	budget  int

	score      *Score
	globalSeqs *SequenceGroup
	globalExe  *Executor
	executors  []*Executor
	spare      []*Executor
	repeatPool *pipe.Pool[int]
}

// NewSequencer returns a sequencer rendering at sampleRate with its own
// parser.
func NewSequencer(sampleRate int, settings ParserSettings) *Sequencer {
	s := &Sequencer{
		parser:     NewParser(settings, nil),
		sampleRate: sampleRate,
		resolution: settings.Resolution,
		defaultBPM: settings.DefaultBPM,
		repeatPool: pipe.NewPool[int](),
	}
	s.globalSeqs = NewSequenceGroup(s.parser.Pool())
	s.globalExe = newExecutor(s.repeatPool)
	s.handlers[EventProcess] = s.onProcessEvent
	s.handlers[EventRest] = s.PublishProcessing
	s.handlers[EventNote] = s.PublishProcessing
	s.handlers[EventGlobalWait] = s.PublishProcessing
	s.handlers[EventRepeatBegin] = s.onRepeatBegin
	s.handlers[EventRepeatBreak] = s.onRepeatBreak
	s.handlers[EventRepeatEnd] = s.onRepeatEnd
	s.handlers[EventRepeatAll] = s.onRepeatAll
	s.handlers[EventSequenceTail] = s.onSequenceTail
	s.handlers[EventTempo] = s.onTempoEvent
	s.global[EventTempo] = true
	s.global[EventTable] = true
	s.SetBPM(settings.DefaultBPM)
	return s
}

// Parser returns the parser owned by the sequencer.
func (s *Sequencer) Parser() *Parser { return s.parser }

// SampleRate returns the output sample rate.
func (s *Sequencer) SampleRate() int { return s.sampleRate }

// Resolution returns the ticks of a whole note.
func (s *Sequencer) Resolution() int { return s.resolution }

// SetUserDefinedEvent registers a command for the parser. Global events
// are moved to the global sequence when a score is prepared.
func (s *Sequencer) SetUserDefinedEvent(name string, global bool, h EventHandler) (EventID, error) {
	id, err := s.parser.SetUserDefinedEvent(name)
	if err != nil {
		return 0, err
	}
	s.global[id] = global
	s.handlers[id] = h
	return id, nil
}

// SetEventHandler replaces the handler of an event id.
func (s *Sequencer) SetEventHandler(id EventID, h EventHandler) {
	if id >= 0 && id < EventIDMax {
		s.handlers[id] = h
	}
}

// EventHandler returns the handler of an event id.
func (s *Sequencer) EventHandler(id EventID) EventHandler {
	if id < 0 || id >= EventIDMax {
		return nil
	}
	return s.handlers[id]
}

// SetProcessHandler sets the callback that renders length samples for
// the executor being processed.
func (s *Sequencer) SetProcessHandler(fn func(x *Executor, length int)) { s.onProcess = fn }

// SetTempoHandler sets the callback run after each tempo change.
func (s *Sequencer) SetTempoHandler(fn func(bpm float64)) { s.onTempo = fn }

// Compile parses text with the sequencer's parser.
func (s *Sequencer) Compile(text string) (*Score, error) { return s.parser.Compile(text) }

// BPM returns the current tempo.
func (s *Sequencer) BPM() float64 { return s.bpm }

// SamplesPerTick returns the current tick length in samples.
func (s *Sequencer) SamplesPerTick() float64 {
	return float64(s.tickFixed) / (1 << FixedBits)
}

// SetBPM changes the tempo and rescales the samples every executor still
// owes to its current event.
func (s *Sequencer) SetBPM(bpm float64) {
	if bpm <= 0 {
		return
	}
	old := s.tickFixed
	s.bpm = bpm
	spt := float64(s.sampleRate) * 60 / (bpm * float64(s.resolution/4))
	s.tickFixed = int64(math.Round(spt * (1 << FixedBits)))
	if old == 0 || old == s.tickFixed {
		return
	}
	s.globalExe.rescale(old, s.tickFixed)
	for _, x := range s.executors {
		x.rescale(old, s.tickFixed)
	}
}

// Current returns the executor being processed.
func (s *Sequencer) Current() *Executor { return s.current }

// Remaining returns the samples left in the current ProcessExecutor call.
func (s *Sequencer) Remaining() int { return s.budget }

// Score returns the prepared score.
func (s *Sequencer) Score() *Score { return s.score }

// Executors returns the executors of the sounding sequences, in score
// order.
func (s *Sequencer) Executors() []*Executor { return s.executors }

// GlobalExecutor returns the executor of the global sequence.
func (s *Sequencer) GlobalExecutor() *Executor { return s.globalExe }

// Prepare moves the global events of score into the global sequence,
// drops sequences without notes and sets up one executor per remaining
// sequence. The score stays owned by the caller.
func (s *Sequencer) Prepare(score *Score) {
	s.Stop()
	s.score = score
	s.SetBPM(s.defaultBPM)
	if score == nil {
		return
	}
	if !score.extracted {
		score.globals = s.extractGlobal(score)
		score.extracted = true
	}
	gseq := s.globalSeqs.NewSequence()
	tick := 0
	for _, g := range score.globals {
		if g.tick > tick {
			gseq.Append(EventGlobalWait, 0, g.tick-tick)
			tick = g.tick
		}
		gseq.Append(g.id, g.args[0], 0)
		for _, a := range g.args[1:] {
			gseq.Append(EventParameter, a, 0)
		}
	}
	s.globalExe.Initialize(gseq)
	for seq := score.Sequences.Front(); seq != nil; seq = seq.Next() {
		if !hasNotes(seq) {
			continue
		}
		x := s.executor()
		x.Initialize(seq)
		s.executors = append(s.executors, x)
	}
}

// Stop detaches every executor and drops the global sequence.
func (s *Sequencer) Stop() {
	for _, x := range s.executors {
		x.Initialize(nil)
		s.spare = append(s.spare, x)
	}
	s.executors = s.executors[:0]
	s.globalExe.Initialize(nil)
	s.globalSeqs.Clear()
	s.score = nil
	s.current = nil
}

func (s *Sequencer) executor() *Executor {
	if n := len(s.spare); n > 0 {
		x := s.spare[n-1]
		s.spare = s.spare[:n-1]
		return x
	}
	return newExecutor(s.repeatPool)
}

type globalEvent struct {
	tick  int
	event *Event
}

type globalRecord struct {
	tick int
	id   EventID
	args []int
}

// extractGlobal copies the global events of every sequence into tick
// order and leaves zero length global-wait placeholders in their place.
func (s *Sequencer) extractGlobal(score *Score) []globalRecord {
	var found []globalEvent
	for seq := score.Sequences.Front(); seq != nil; seq = seq.Next() {
		found = s.collectGlobal(seq, found)
	}
	slices.SortStableFunc(found, func(a, b globalEvent) int { return a.tick - b.tick })
	records := make([]globalRecord, len(found))
	for i, g := range found {
		args, _ := g.event.Args(nil)
		records[i] = globalRecord{tick: g.tick, id: g.event.ID, args: args}
	}
	for _, g := range found {
		for e := g.event; ; e = e.next {
			e.ID = EventGlobalWait
			e.Length = 0
			if e.next == nil || e.next.ID != EventParameter {
				break
			}
		}
	}
	return records
}

// collectGlobal walks seq once, following repeats but not the "$" loop,
// and records every global event with its tick.
func (s *Sequencer) collectGlobal(seq *Sequence, found []globalEvent) []globalEvent {
	var counters []int
	tick := 0
	for e := seq.First(); e != nil && e.ID != EventSequenceTail; {
		switch e.ID {
		case EventRepeatBegin:
			counters = append(counters, e.Data)
		case EventRepeatBreak:
			if n := len(counters); n > 0 && counters[n-1] == 1 {
				counters = counters[:n-1]
				e = e.jump.next
				continue
			}
		case EventRepeatEnd:
			if n := len(counters); n > 0 {
				counters[n-1]--
				if counters[n-1] > 0 {
					e = e.jump.next
					continue
				}
				counters = counters[:n-1]
			}
		default:
			if s.global[e.ID] {
				found = append(found, globalEvent{tick: tick, event: e})
			}
		}
		tick += e.Length
		e = e.next
	}
	return found
}

func hasNotes(seq *Sequence) bool {
	for e := seq.First(); e != seq.Tail(); e = e.next {
		if e.ID == EventNote {
			return true
		}
	}
	return false
}

// IsFinished reports whether every executor ran past its tail.
func (s *Sequencer) IsFinished() bool {
	for _, x := range s.executors {
		if !x.IsFinished() {
			return false
		}
	}
	return true
}

// Process runs length samples: the global sequence advances to its next
// event, then every executor follows for the same span.
func (s *Sequencer) Process(length int) bool {
	for length > 0 {
		n := s.StepGlobal(length)
		for _, x := range s.executors {
			s.ProcessExecutor(x, n)
		}
		length -= n
	}
	return s.IsFinished()
}

// StepGlobal dispatches the global events due now and returns how many
// samples, at most limit, pass before the next one.
func (s *Sequencer) StepGlobal(limit int) int {
	x := s.globalExe
	s.current = x
	s.budget = 0
	for x.pointer != nil && (x.pointer != &x.process || x.residue == 0) {
		x.pointer = s.dispatch(x.pointer)
	}
	if x.pointer == nil {
		return limit
	}
	n := min(x.residue, limit)
	s.ProcessExecutor(x, n)
	return n
}

// ProcessExecutor dispatches events of x until budget samples have been
// processed or the sequence ends. It returns the samples consumed and
// whether the executor is finished.
func (s *Sequencer) ProcessExecutor(x *Executor, budget int) (int, bool) {
	s.current = x
	s.budget = budget
	for s.budget > 0 && x.pointer != nil {
		x.pointer = s.dispatch(x.pointer)
	}
	return budget - s.budget, x.pointer == nil
}

func (s *Sequencer) dispatch(e *Event) *Event {
	if h := s.handlers[e.ID]; h != nil {
		return h(e)
	}
	return e.next
}

// PublishProcessing converts the length of a timed event into samples
// for the current executor and returns the process marker that holds the
// chain until they are rendered.
func (s *Sequencer) PublishProcessing(e *Event) *Event {
	x := s.current
	if e.Length <= 0 {
		return e.next
	}
	x.tick += e.Length
	fixed := int64(e.Length)*s.tickFixed + x.decimal
	x.decimal = fixed & fixedMask
	samples := int(fixed >> FixedBits)
	if samples == 0 {
		return e.next
	}
	x.timed = true
	x.residue = samples
	x.process.Length = e.Length
	x.process.next = e.next
	return &x.process
}

func (s *Sequencer) onProcessEvent(e *Event) *Event {
	x := s.current
	n := min(x.residue, s.budget)
	if n > 0 && s.onProcess != nil && x != s.globalExe {
		s.onProcess(x, n)
	}
	x.residue -= n
	s.budget -= n
	if x.residue > 0 {
		return e
	}
	return e.next
}

func (s *Sequencer) onRepeatBegin(e *Event) *Event {
	s.current.repeats.Prepend(e.Data)
	return e.next
}

func (s *Sequencer) onRepeatBreak(e *Event) *Event {
	top := s.current.repeats.Front()
	if top != nil && top.Value == 1 {
		s.current.repeats.PopFront()
		return e.jump.next
	}
	return e.next
}

func (s *Sequencer) onRepeatEnd(e *Event) *Event {
	top := s.current.repeats.Front()
	if top == nil {
		return e.next
	}
	top.Value--
	if top.Value > 0 {
		return e.jump.next
	}
	s.current.repeats.PopFront()
	return e.next
}

func (s *Sequencer) onRepeatAll(e *Event) *Event {
	s.current.timed = false
	return e.next
}

// onSequenceTail loops back to "$" when the loop played something, and
// otherwise ends the executor.
func (s *Sequencer) onSequenceTail(e *Event) *Event {
	x := s.current
	if e.jump == nil || !x.timed {
		return nil
	}
	x.loops++
	x.timed = false
	return e.jump.next
}

func (s *Sequencer) onTempoEvent(e *Event) *Event {
	s.SetBPM(float64(e.Data) / TempoScale)
	if s.onTempo != nil {
		s.onTempo(s.bpm)
	}
	return e.next
}
