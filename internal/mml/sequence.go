package mml

// Sequence is the event chain of one track, bounded by a head and a tail
// event. The head jumps to the last event before the tail so appends are
// constant time; the tail jumps to the loop point set by "$", if any.
type Sequence struct {
	head Event
	tail Event

	prev, next *Sequence
	group      *SequenceGroup
}

func (s *Sequence) init(g *SequenceGroup) {
	s.group = g
	s.head = Event{ID: EventSequenceHead}
	s.tail = Event{ID: EventSequenceTail}
	s.head.next = &s.tail
	s.head.jump = &s.head
}

// Head returns the head event.
func (s *Sequence) Head() *Event { return &s.head }

// Tail returns the tail event.
func (s *Sequence) Tail() *Event { return &s.tail }

// First returns the first event after the head; the tail when empty.
func (s *Sequence) First() *Event { return s.head.next }

// Last returns the last event before the tail; the head when empty.
func (s *Sequence) Last() *Event { return s.head.jump }

// IsEmpty reports whether the sequence has no events.
func (s *Sequence) IsEmpty() bool { return s.head.next == &s.tail }

// Next returns the following sequence of the group, or nil.
func (s *Sequence) Next() *Sequence {
	if s.next == nil || s.next == &s.group.term {
		return nil
	}
	return s.next
}

// Append adds an event before the tail.
func (s *Sequence) Append(id EventID, data, length int) *Event {
	e := s.group.pool.Get(id, data, length)
	s.AppendEvent(e)
	return e
}

// AppendEvent links e before the tail.
func (s *Sequence) AppendEvent(e *Event) {
	last := s.head.jump
	last.next = e
	e.next = &s.tail
	s.head.jump = e
}

// SetLoop makes the tail jump back to e when the sequence ends.
func (s *Sequence) SetLoop(e *Event) { s.tail.jump = e }

// Loop returns the loop point, or nil.
func (s *Sequence) Loop() *Event { return s.tail.jump }

// Len returns the number of events between head and tail.
func (s *Sequence) Len() int {
	n := 0
	for e := s.head.next; e != &s.tail; e = e.next {
		n++
	}
	return n
}

// Each calls fn for every event between head and tail in chain order.
func (s *Sequence) Each(fn func(e *Event)) {
	for e := s.head.next; e != &s.tail; e = e.next {
		fn(e)
	}
}

// Clear returns every event to the pool.
func (s *Sequence) Clear() {
	if !s.IsEmpty() {
		s.group.pool.Put(s.head.next, s.head.jump)
	}
	s.head.next = &s.tail
	s.head.jump = &s.head
	s.tail.jump = nil
}

// SequenceGroup holds the sequences of one score in a ring closed by a
// sentinel. Removed sequences are kept for reuse.
type SequenceGroup struct {
	term   Sequence
	free   []*Sequence
	pool   *EventPool
	length int
}

// NewSequenceGroup returns an empty group drawing events from pool.
func NewSequenceGroup(pool *EventPool) *SequenceGroup {
	if pool == nil {
		pool = NewEventPool()
	}
	g := &SequenceGroup{pool: pool}
	g.term.group = g
	g.term.prev = &g.term
	g.term.next = &g.term
	return g
}

// Pool returns the event pool of the group.
func (g *SequenceGroup) Pool() *EventPool { return g.pool }

// Len returns the number of sequences.
func (g *SequenceGroup) Len() int { return g.length }

// Front returns the first sequence, or nil.
func (g *SequenceGroup) Front() *Sequence {
	if g.term.next == &g.term {
		return nil
	}
	return g.term.next
}

// Index returns sequence i, or nil.
func (g *SequenceGroup) Index(i int) *Sequence {
	s := g.Front()
	for ; s != nil && i > 0; i-- {
		s = s.Next()
	}
	return s
}

// NewSequence appends an empty sequence.
func (g *SequenceGroup) NewSequence() *Sequence {
	var s *Sequence
	if n := len(g.free); n > 0 {
		s = g.free[n-1]
		g.free = g.free[:n-1]
	} else {
		s = &Sequence{}
	}
	s.init(g)
	last := g.term.prev
	s.prev, s.next = last, &g.term
	last.next = s
	g.term.prev = s
	g.length++
	return s
}

// Remove unlinks s and releases its events.
func (g *SequenceGroup) Remove(s *Sequence) {
	if s.group != g || s.next == nil {
		return
	}
	s.Clear()
	s.prev.next = s.next
	s.next.prev = s.prev
	s.prev, s.next = nil, nil
	g.free = append(g.free, s)
	g.length--
}

// Clear removes every sequence.
func (g *SequenceGroup) Clear() {
	for s := g.Front(); s != nil; s = g.Front() {
		g.Remove(s)
	}
}
