package effects

// line is a circular mono delay buffer. Reads address samples written
// before the head; tap(1) is the newest one.
type line struct {
	buf []float64
	pos int
}

func newLine(frames int) line {
	return line{buf: make([]float64, max(frames, 1))}
}

// tap returns the sample written d frames ago, 1 <= d <= len.
func (l *line) tap(d int) float64 {
	i := l.pos - d
	if i < 0 {
		i += len(l.buf)
	}
	return l.buf[i]
}

// tapFrac reads d frames back with linear interpolation, 1 <= d < len.
func (l *line) tapFrac(d float64) float64 {
	i := int(d)
	frac := d - float64(i)
	return l.tap(i)*(1-frac) + l.tap(i+1)*frac
}

// push writes v at the head and advances it.
func (l *line) push(v float64) {
	l.buf[l.pos] = v
	l.pos++
	if l.pos == len(l.buf) {
		l.pos = 0
	}
}

func (l *line) len() int { return len(l.buf) }

func (l *line) reset() {
	clear(l.buf)
	l.pos = 0
}

// mix crossfades dry into wet by amount in [0, 1].
func mix(dry, wet, amount float64) float64 {
	return dry*(1-amount) + wet*amount
}
