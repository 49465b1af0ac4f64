package sequencer

// DispatchKind identifies driver notifications.
type DispatchKind int

const (
	DispatchNoteOn DispatchKind = iota
	DispatchNoteOff
	DispatchBeat
	DispatchTempo
	DispatchTrigger
	DispatchLoop
	DispatchFinish
)

func (k DispatchKind) String() string {
	switch k {
	case DispatchNoteOn:
		return "note-on"
	case DispatchNoteOff:
		return "note-off"
	case DispatchBeat:
		return "beat"
	case DispatchTempo:
		return "tempo"
	case DispatchTrigger:
		return "trigger"
	case DispatchLoop:
		return "loop"
	case DispatchFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// DispatchEvent is one notification. Track is -1 for score-wide events.
// BufferOffset is the sample position inside the block being rendered.
// Value carries the beat count, the tempo in bpm*100 or the trigger id.
type DispatchEvent struct {
	Kind         DispatchKind
	Track        int
	Note         int
	BufferOffset int
	Value        int
}

// Dispatcher receives driver notifications. It is called from inside the
// render loop and must not call back into the driver.
type Dispatcher interface {
	Dispatch(e DispatchEvent)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(e DispatchEvent)

// Dispatch calls f(e).
func (f DispatcherFunc) Dispatch(e DispatchEvent) { f(e) }
