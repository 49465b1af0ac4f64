package mml

import "github.com/cbegin/siopm-go/internal/pipe"

// Executor walks one sequence. While a timed event is playing, the pointer
// rests on the executor's process marker and Residue counts the samples
// left before the chain may advance.
type Executor struct {
	seq     *Sequence
	pointer *Event
	process Event
	repeats *pipe.List[int]

	residue int
	decimal int64
	loops   int
	timed   bool
	tick    int
}

func newExecutor(pool *pipe.Pool[int]) *Executor {
	x := &Executor{repeats: pipe.New(pool)}
	x.process.ID = EventProcess
	return x
}

// Initialize points the executor at the start of seq; nil stops it.
func (x *Executor) Initialize(seq *Sequence) {
	x.seq = seq
	x.pointer = nil
	if seq != nil {
		x.pointer = seq.Head()
	}
	x.process.next = nil
	x.process.Length = 0
	x.repeats.Clear()
	x.residue = 0
	x.decimal = 0
	x.loops = 0
	x.timed = false
	x.tick = 0
}

// Sequence returns the sequence being executed.
func (x *Executor) Sequence() *Sequence { return x.seq }

// Pointer returns the next event to dispatch; the process marker while a
// timed event is playing, nil once finished.
func (x *Executor) Pointer() *Event { return x.pointer }

// Residue returns the samples left for the current timed event.
func (x *Executor) Residue() int { return x.residue }

// Tick returns the ticks of timed events started so far.
func (x *Executor) Tick() int { return x.tick }

// LoopCount returns how many times the sequence went back to its "$".
func (x *Executor) LoopCount() int { return x.loops }

// IsFinished reports whether the executor ran past its tail.
func (x *Executor) IsFinished() bool { return x.pointer == nil }

// Stop detaches the executor from its sequence.
func (x *Executor) Stop() {
	x.pointer = nil
	x.residue = 0
}

// rescale converts the pending samples after a tempo change.
func (x *Executor) rescale(oldFixed, newFixed int64) {
	total := int64(x.residue)<<FixedBits + x.decimal
	total = total * newFixed / oldFixed
	x.residue = int(total >> FixedBits)
	x.decimal = total & fixedMask
}
