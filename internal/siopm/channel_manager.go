package siopm

// ChannelManager pools the channels of one type in a ring anchored at a
// terminator. Free channels are kept at the head so allocation can reuse
// them without searching.
type ChannelManager struct {
	chip   *Module
	kind   ChannelType
	term   channelLink
	length int
}

func newChannelManager(chip *Module, kind ChannelType) *ChannelManager {
	m := &ChannelManager{chip: chip, kind: kind}
	m.term.prev = &m.term
	m.term.next = &m.term
	return m
}

// Type returns the channel type this manager allocates.
func (m *ChannelManager) Type() ChannelType { return m.kind }

// Len returns the number of channels ever allocated, free or not.
func (m *ChannelManager) Len() int { return m.length }

func (m *ChannelManager) newChannel() Channel {
	switch m.kind {
	case TypeFM:
		return newChannelFM(m.chip)
	case TypePCM:
		return newChannelPCM(m.chip)
	case TypeSampler:
		return newChannelSampler(m.chip)
	case TypeKS:
		return newChannelKS(m.chip)
	}
	panic(ErrChannelType)
}

// Create returns a channel initialized from prev, reusing the head of the
// ring when it is free.
func (m *ChannelManager) Create(prev Channel, bufferIndex int) Channel {
	var ch Channel
	if head := m.term.next; head != &m.term && head.ch.IsFree() {
		ch = head.ch
		unlink(head)
	} else {
		ch = m.newChannel()
		m.length++
	}
	b := ch.base()
	b.isFree = false
	linkBefore(&b.link, &m.term)
	ch.Initialize(prev, bufferIndex)
	return ch
}

// Delete marks ch free and moves it to the head of the ring.
func (m *ChannelManager) Delete(ch Channel) {
	b := ch.base()
	if b.isFree {
		return
	}
	b.isFree = true
	unlink(&b.link)
	linkBefore(&b.link, m.term.next)
}

// Each calls fn for every channel in use.
func (m *ChannelManager) Each(fn func(Channel)) {
	for l := m.term.next; l != &m.term; {
		next := l.next
		if !l.ch.IsFree() {
			fn(l.ch)
		}
		l = next
	}
}

// InitializeAll reinitializes every channel in use.
func (m *ChannelManager) InitializeAll() {
	m.Each(func(ch Channel) { ch.Initialize(nil, 0) })
}

// ResetAll resets every channel in use.
func (m *ChannelManager) ResetAll() {
	m.Each(func(ch Channel) { ch.Reset() })
}

func (m *ChannelManager) resetBufferStatus() {
	m.Each(func(ch Channel) { ch.base().resetBufferStatus() })
}

func unlink(l *channelLink) {
	if l.prev == nil {
		return
	}
	l.prev.next = l.next
	l.next.prev = l.prev
	l.prev, l.next = nil, nil
}

func linkBefore(l, at *channelLink) {
	l.prev = at.prev
	l.next = at
	at.prev.next = l
	at.prev = l
}
