// Package pipe provides the singly-linked lists and rings used as streaming
// sample buffers between operators, channels and the sound chip.
//
// Lists are not safe for concurrent use.
package pipe

// Element is one node of a List. The next pointer is owned by the list.
type Element[T any] struct {
	Value T
	next  *Element[T]
}

// Next returns the following element, or nil at the end of a linear list.
func (e *Element[T]) Next() *Element[T] { return e.next }

// Advance moves n steps forward. On a linear list it stops at the last
// element instead of running off the end.
func (e *Element[T]) Advance(n int) *Element[T] {
	for ; n > 0 && e.next != nil; n-- {
		e = e.next
	}
	return e
}

// Pool recycles elements released by lists of the same type.
type Pool[T any] struct {
	free *Element[T]
	size int
}

// NewPool returns an empty element pool.
func NewPool[T any]() *Pool[T] { return &Pool[T]{} }

func (p *Pool[T]) get(v T) *Element[T] {
	if p == nil || p.free == nil {
		return &Element[T]{Value: v}
	}
	e := p.free
	p.free = e.next
	p.size--
	e.next = nil
	e.Value = v
	return e
}

func (p *Pool[T]) put(e *Element[T]) {
	if p == nil {
		return
	}
	var zero T
	e.Value = zero
	e.next = p.free
	p.free = e
	p.size++
}

// Len returns the number of pooled elements ready for reuse.
func (p *Pool[T]) Len() int {
	if p == nil {
		return 0
	}
	return p.size
}

// List is a singly-linked list that can be closed into a ring.
type List[T any] struct {
	first  *Element[T]
	last   *Element[T]
	length int
	ring   bool
	pool   *Pool[T]
}

// New returns an empty list drawing its elements from pool. A nil pool
// allocates fresh elements.
func New[T any](pool *Pool[T]) *List[T] {
	return &List[T]{pool: pool}
}

// NewList returns a linear list of size elements set to v.
func NewList[T any](pool *Pool[T], size int, v T) *List[T] {
	l := New(pool)
	for i := 0; i < size; i++ {
		l.Append(v)
	}
	return l
}

// NewRing returns a ring of size elements set to v. size must be at least 1.
func NewRing[T any](pool *Pool[T], size int, v T) *List[T] {
	if size < 1 {
		size = 1
	}
	l := NewList(pool, size, v)
	l.Loop(nil)
	return l
}

// Front returns the first element, or nil if the list is empty.
func (l *List[T]) Front() *Element[T] { return l.first }

// Back returns the last element, or nil if the list is empty.
func (l *List[T]) Back() *Element[T] { return l.last }

// Len returns the number of elements.
func (l *List[T]) Len() int { return l.length }

// IsRing reports whether the last element links back into the list.
func (l *List[T]) IsRing() bool { return l.ring }

// Append adds v at the end and returns its element.
func (l *List[T]) Append(v T) *Element[T] {
	e := l.pool.get(v)
	if l.last == nil {
		l.first = e
	} else {
		e.next = l.last.next
		l.last.next = e
	}
	l.last = e
	l.length++
	return e
}

// Prepend adds v at the front and returns its element. A ring that looped
// to the old front now loops to the new one; other loop points stay.
func (l *List[T]) Prepend(v T) *Element[T] {
	e := l.pool.get(v)
	e.next = l.first
	if l.last == nil {
		l.last = e
	} else if l.ring && l.last.next == l.first {
		l.last.next = e
	}
	l.first = e
	l.length++
	return e
}

// PopFront removes the first element and returns its value. A ring that
// looped to the removed element loops to the new front.
func (l *List[T]) PopFront() (T, bool) {
	var zero T
	e := l.first
	if e == nil {
		return zero, false
	}
	v := e.Value
	if e == l.last {
		l.first, l.last = nil, nil
		l.ring = false
	} else {
		l.first = e.next
		if l.ring && l.last.next == e {
			l.last.next = l.first
		}
	}
	l.length--
	l.pool.put(e)
	return v, true
}

// Loop closes the list into a ring, linking the last element to at.
// A nil at loops back to the first element.
func (l *List[T]) Loop(at *Element[T]) {
	if l.last == nil {
		return
	}
	if at == nil {
		at = l.first
	}
	l.last.next = at
	l.ring = true
}

// Unloop turns a ring back into a linear list.
func (l *List[T]) Unloop() {
	if l.last != nil {
		l.last.next = nil
	}
	l.ring = false
}

// Index returns the element i steps from the front. On a ring the index
// wraps; on a linear list it returns nil past the end.
func (l *List[T]) Index(i int) *Element[T] {
	if l.length == 0 || i < 0 {
		return nil
	}
	if l.ring {
		i %= l.length
	} else if i >= l.length {
		return nil
	}
	e := l.first
	for ; i > 0; i-- {
		e = e.next
	}
	return e
}

// Fill sets every element to v.
func (l *List[T]) Fill(v T) {
	e := l.first
	for i := 0; i < l.length; i++ {
		e.Value = v
		e = e.next
	}
}

// Each calls fn with every value from front to back.
func (l *List[T]) Each(fn func(v T)) {
	e := l.first
	for i := 0; i < l.length; i++ {
		fn(e.Value)
		e = e.next
	}
}

// Clear releases every element to the pool.
func (l *List[T]) Clear() {
	e := l.first
	for i := 0; i < l.length; i++ {
		next := e.next
		e.next = nil
		l.pool.put(e)
		e = next
	}
	l.first, l.last = nil, nil
	l.length = 0
	l.ring = false
}

// Reset resizes the list to size elements set to v, keeping ring state.
func (l *List[T]) Reset(size int, v T) {
	ring := l.ring
	l.Clear()
	for i := 0; i < size; i++ {
		l.Append(v)
	}
	if ring && size > 0 {
		l.Loop(nil)
	}
}
