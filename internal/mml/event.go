package mml

import "strconv"

// EventID identifies the command an Event carries.
type EventID int

const (
	EventNop EventID = iota
	EventProcess
	EventRest
	EventNote
	EventKeyOnDelay
	EventQuantRatio
	EventQuantCount
	EventVolume
	EventVolumeShift
	EventFineVolume
	EventSlur
	EventSlurWeak
	EventRepeatBegin
	EventRepeatBreak
	EventRepeatEnd
	EventRepeatAll
	EventParameter
	EventSequenceHead
	EventSequenceTail
	EventTable
	EventGlobalWait
	EventTempo
	eventBuiltinMax

	// EventUserDefined is the first id handed out to user-defined events.
	EventUserDefined EventID = 64
	// EventIDMax bounds every event id, user-defined ones included.
	EventIDMax EventID = 128
)

var eventNames = [...]string{
	EventNop:          "nop",
	EventProcess:      "process",
	EventRest:         "rest",
	EventNote:         "note",
	EventKeyOnDelay:   "key-on-delay",
	EventQuantRatio:   "quant-ratio",
	EventQuantCount:   "quant-count",
	EventVolume:       "volume",
	EventVolumeShift:  "volume-shift",
	EventFineVolume:   "fine-volume",
	EventSlur:         "slur",
	EventSlurWeak:     "slur-weak",
	EventRepeatBegin:  "repeat-begin",
	EventRepeatBreak:  "repeat-break",
	EventRepeatEnd:    "repeat-end",
	EventRepeatAll:    "repeat-all",
	EventParameter:    "parameter",
	EventSequenceHead: "sequence-head",
	EventSequenceTail: "sequence-tail",
	EventTable:        "table",
	EventGlobalWait:   "global-wait",
	EventTempo:        "tempo",
}

func (id EventID) String() string {
	if id >= 0 && int(id) < len(eventNames) && eventNames[id] != "" {
		return eventNames[id]
	}
	if id >= EventUserDefined && id < EventIDMax {
		return "user" + strconv.Itoa(int(id-EventUserDefined))
	}
	return "event" + strconv.Itoa(int(id))
}

// ArgUnset marks a command argument that was left out of the text.
const ArgUnset = -1 << 31

// TempoScale is the fixed-point scale of EventTempo data (bpm*TempoScale).
const TempoScale = 100

// QuantRatioScale is the full-gate value of EventQuantRatio data.
const QuantRatioScale = 256

// Event is one node of a compiled event chain. Length is in ticks and is
// non-zero only for timed events. Next is owned by the chain; Jump is a
// back reference used by repeats and sequence bookkeeping.
type Event struct {
	ID     EventID
	Data   int
	Length int

	next *Event
	jump *Event
}

// Next returns the following event, or nil past the sequence tail.
func (e *Event) Next() *Event { return e.next }

// Jump returns the repeat or loop target of the event.
func (e *Event) Jump() *Event { return e.jump }

// Args collects the data of e and of the parameter events following it
// into dst and returns the event after the last parameter.
func (e *Event) Args(dst []int) ([]int, *Event) {
	dst = append(dst[:0], e.Data)
	n := e.next
	for n != nil && n.ID == EventParameter {
		dst = append(dst, n.Data)
		n = n.next
	}
	return dst, n
}

// Arg returns args[i], or def when it is missing or unset.
func Arg(args []int, i, def int) int {
	if i >= len(args) || args[i] == ArgUnset {
		return def
	}
	return args[i]
}

// EventPool recycles events released by sequences.
type EventPool struct {
	free *Event
	size int
}

// NewEventPool returns an empty pool.
func NewEventPool() *EventPool { return &EventPool{} }

// Get returns a cleared event.
func (p *EventPool) Get(id EventID, data, length int) *Event {
	e := p.free
	if e == nil {
		return &Event{ID: id, Data: data, Length: length}
	}
	p.free = e.next
	p.size--
	*e = Event{ID: id, Data: data, Length: length}
	return e
}

// Put releases the chain from first to last, both included.
func (p *EventPool) Put(first, last *Event) {
	if first == nil {
		return
	}
	n := 1
	for e := first; e != last; e = e.next {
		e.jump = nil
		n++
	}
	last.jump = nil
	last.next = p.free
	p.free = first
	p.size += n
}

// Len returns the number of pooled events.
func (p *EventPool) Len() int { return p.size }
