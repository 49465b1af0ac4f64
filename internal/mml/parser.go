package mml

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Score is a compiled MML text: one sequence per ";" separated part plus
// the tables and "#" definitions it declared.
type Score struct {
	Resolution  int
	Title       string
	Sequences   *SequenceGroup
	Tables      map[int][]int
	Definitions map[string]string

	extracted bool
	globals   []globalRecord
}

// Free returns every event of the score to its pool.
func (s *Score) Free() {
	if s != nil && s.Sequences != nil {
		s.Sequences.Clear()
	}
}

type tokenKind int

const (
	tokSpace tokenKind = iota
	tokSequence
	tokNote
	tokNoteNumber
	tokRest
	tokLength
	tokTie
	tokSlurWeak
	tokSlur
	tokQuantCount
	tokFineVolume
	tokQuant
	tokOctave
	tokOctaveShift
	tokOctaveJump
	tokTransposeRel
	tokTranspose
	tokVolume
	tokVolumeShift
	tokTempo
	tokRepeatBegin
	tokRepeatEnd
	tokRepeatBreak
	tokRepeatAll
	tokTable
	tokUser
)

// builtinPatterns are tried in order; the first alternative that matches
// wins, so longer commands precede their prefixes.
var builtinPatterns = [...]string{
	tokSpace:        `\s+`,
	tokSequence:     `;`,
	tokNote:         `[a-g][#+\-]*\d*\.*`,
	tokNoteNumber:   `n\d+(?:,\d*\.*)?`,
	tokRest:         `r\d*\.*`,
	tokLength:       `l\d*\.*`,
	tokTie:          `\^\d*\.*`,
	tokSlurWeak:     `&&`,
	tokSlur:         `&`,
	tokQuantCount:   `@q\d*(?:\s*,\s*\d*)?`,
	tokFineVolume:   `@v\d*`,
	tokQuant:        `q\d*`,
	tokOctave:       `o\d*`,
	tokOctaveShift:  `[<>]\d*`,
	tokOctaveJump:   `«|»`,
	tokTransposeRel: `_kt[+\-]?\d*`,
	tokTranspose:    `kt[+\-]?\d*`,
	tokVolume:       `v\d*`,
	tokVolumeShift:  `[()]\d*`,
	tokTempo:        `t\d*(?:\.\d+)?`,
	tokRepeatBegin:  `\[`,
	tokRepeatEnd:    `\]\d*`,
	tokRepeatBreak:  `\|`,
	tokRepeatAll:    `\$`,
	tokTable:        `\{[^}]*\}`,
}

const argPattern = `(?:[+\-]?\d+)?(?:\s*,\s*(?:[+\-]?\d+)?)*`

// reservedPrefixes cannot start a user-defined event name.
var reservedPrefixes = []string{"a", "b", "c", "d", "e", "f", "g", "l", "o", "q", "r", "t", "v", "@q", "@v", "kt", "_kt"}

type userEvent struct {
	name string
	id   EventID
}

type repeatFrame struct {
	pos   int
	begin *Event
	brk   *Event
}

type parseState struct {
	length    int
	octave    int
	noteShift int
}

// Parser compiles MML text into event sequences. A parser belongs to one
// sequencer and compiles one score at a time.
type Parser struct {
	settings ParserSettings
	pool     *EventPool
	users    []userEvent
	re       *regexp.Regexp
	busy     bool

	text      string
	pos       int
	defs      map[string]string
	group     *SequenceGroup
	seq       *Sequence
	tables    map[int][]int
	st        parseState
	repeats   []repeatFrame
	quantMax  int
	tempo     tempoMode
	keySig    [7]int
	revVolume bool
}

// NewParser returns a parser allocating events from pool. A nil pool gets
// a private one.
func NewParser(settings ParserSettings, pool *EventPool) *Parser {
	if pool == nil {
		pool = NewEventPool()
	}
	return &Parser{settings: settings, pool: pool}
}

// Settings returns the parser settings.
func (p *Parser) Settings() ParserSettings { return p.settings }

// Pool returns the event pool.
func (p *Parser) Pool() *EventPool { return p.pool }

// SetUserDefinedEvent registers a command name and returns its event id.
// Registering a name twice returns the first id.
func (p *Parser) SetUserDefinedEvent(name string) (EventID, error) {
	key := strings.ToLower(name)
	if id, ok := p.UserDefinedEvent(key); ok {
		return id, nil
	}
	if key == "" {
		return 0, fmt.Errorf("%w: empty name", ErrEventName)
	}
	for _, r := range key {
		if !(r >= 'a' && r <= 'z') && r != '@' && r != '%' && r != '_' {
			return 0, fmt.Errorf("%w: %q", ErrEventName, name)
		}
	}
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return 0, fmt.Errorf("%w: %q collides with a built-in command", ErrEventName, name)
		}
	}
	id := EventUserDefined + EventID(len(p.users))
	if id >= EventIDMax {
		return 0, fmt.Errorf("%w: too many user-defined events", ErrEventName)
	}
	p.users = append(p.users, userEvent{name: key, id: id})
	p.re = nil
	return id, nil
}

// UserDefinedEvent returns the id registered for name.
func (p *Parser) UserDefinedEvent(name string) (EventID, bool) {
	key := strings.ToLower(name)
	for _, u := range p.users {
		if u.name == key {
			return u.id, true
		}
	}
	return 0, false
}

func (p *Parser) pattern() *regexp.Regexp {
	if p.re != nil {
		return p.re
	}
	var b strings.Builder
	b.WriteString(`(?i)^(?:`)
	for i, pat := range builtinPatterns {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString("(" + pat + ")")
	}
	if len(p.users) > 0 {
		sort.SliceStable(p.users, func(i, j int) bool { return len(p.users[i].name) > len(p.users[j].name) })
		names := make([]string, len(p.users))
		for i, u := range p.users {
			names[i] = regexp.QuoteMeta(u.name)
		}
		b.WriteString(`|((?:` + strings.Join(names, "|") + `)` + argPattern + `)`)
	}
	b.WriteString(`)`)
	p.re = regexp.MustCompile(b.String())
	return p.re
}

// Prepare preprocesses text and readies the parser for Parse. It fails
// with ErrParserBusy while another compile is in progress.
func (p *Parser) Prepare(text string) error {
	if p.busy {
		return ErrParserBusy
	}
	pre, err := preprocessInput(text)
	if err != nil {
		return err
	}
	keySig, err := parseKeySignature(pre.definitions["SIGN"])
	if err != nil {
		return &ParseError{Line: 1, Msg: err.Error(), Err: ErrOutOfRange}
	}
	tables, err := parseTables(pre.definitions)
	if err != nil {
		return &ParseError{Line: 1, Msg: err.Error()}
	}
	p.busy = true
	p.text = pre.text
	p.pos = 0
	p.defs = pre.definitions
	p.tables = tables
	p.keySig = keySig
	p.quantMax = parseQuantMax(pre.definitions, p.settings.MaxQuantRatio)
	p.tempo = parseTMODE(pre.definitions)
	rev, ok := pre.definitions["REV"]
	p.revVolume = ok && (rev == "" || strings.Contains(rev, "volume"))
	p.group = NewSequenceGroup(p.pool)
	p.repeats = p.repeats[:0]
	p.beginSequence()
	p.pattern()
	return nil
}

// Parse compiles the prepared text. With a positive interval it returns
// (nil, nil) once that much wall time has passed; call it again to
// resume. On error the partial output is discarded.
func (p *Parser) Parse(interval time.Duration) (*Score, error) {
	if !p.busy {
		return nil, ErrNotPrepared
	}
	start := time.Now()
	for n := 1; p.pos < len(p.text); n++ {
		if interval > 0 && n%64 == 0 && time.Since(start) > interval {
			return nil, nil
		}
		if err := p.step(); err != nil {
			p.Abort()
			return nil, err
		}
	}
	if err := p.endSequence(); err != nil {
		p.Abort()
		return nil, err
	}
	for s := p.group.Front(); s != nil; {
		next := s.Next()
		if s.IsEmpty() {
			p.group.Remove(s)
		}
		s = next
	}
	score := &Score{
		Resolution:  p.settings.Resolution,
		Title:       p.defs["TITLE"],
		Sequences:   p.group,
		Tables:      p.tables,
		Definitions: p.defs,
	}
	p.release()
	return score, nil
}

// Progress returns the parsed fraction of the prepared text.
func (p *Parser) Progress() float64 {
	if len(p.text) == 0 {
		return 1
	}
	return float64(p.pos) / float64(len(p.text))
}

// Compile prepares and parses text in one call.
func (p *Parser) Compile(text string) (*Score, error) {
	if err := p.Prepare(text); err != nil {
		return nil, err
	}
	return p.Parse(0)
}

// Abort drops a compile in progress and releases its events.
func (p *Parser) Abort() {
	if p.group != nil {
		p.group.Clear()
	}
	p.release()
}

func (p *Parser) release() {
	p.busy = false
	p.text = ""
	p.group = nil
	p.seq = nil
	p.tables = nil
	p.defs = nil
}

func (p *Parser) errorf(at int, err error, format string, args ...any) error {
	return &ParseError{Pos: at, Line: lineAt(p.text, at), Msg: fmt.Sprintf(format, args...), Err: err}
}

func (p *Parser) beginSequence() {
	p.seq = p.group.NewSequence()
	p.st = parseState{
		length: p.settings.Resolution / p.settings.DefaultLValue,
		octave: p.settings.DefaultOctave,
	}
}

func (p *Parser) endSequence() error {
	if n := len(p.repeats); n > 0 {
		return p.errorf(p.repeats[n-1].pos, nil, "unclosed '['")
	}
	return nil
}

func (p *Parser) step() error {
	rest := p.text[p.pos:]
	loc := p.pattern().FindStringSubmatchIndex(rest)
	if loc == nil || loc[1] == 0 {
		end := min(len(rest), 8)
		return p.errorf(p.pos, nil, "unknown command %q", rest[:end])
	}
	kind := tokenKind(-1)
	for g := 1; g*2 < len(loc); g++ {
		if loc[g*2] >= 0 {
			kind = tokenKind(g - 1)
			break
		}
	}
	at := p.pos
	tok := rest[:loc[1]]
	p.pos += loc[1]
	return p.token(kind, tok, at)
}

func (p *Parser) token(kind tokenKind, tok string, at int) error {
	s := p.settings
	switch kind {
	case tokSpace:
	case tokSequence:
		if err := p.endSequence(); err != nil {
			return err
		}
		p.beginSequence()
	case tokNote:
		letter := lower(tok[0])
		i, shift := 1, 0
		for i < len(tok) && (tok[i] == '#' || tok[i] == '+' || tok[i] == '-') {
			if tok[i] == '-' {
				shift--
			} else {
				shift++
			}
			i++
		}
		if i == 1 {
			shift = p.keySig[signIndex[letter]]
		}
		length, err := p.length(tok[i:], at)
		if err != nil {
			return err
		}
		return p.note(p.st.octave*12+noteOffsets[letter]+shift+p.st.noteShift, length, at)
	case tokNoteNumber:
		n, next := parseNumber(tok, 1)
		length := p.st.length
		if next < len(tok) && tok[next] == ',' {
			var err error
			if length, err = p.length(tok[next+1:], at); err != nil {
				return err
			}
		}
		return p.note(n+p.st.noteShift, length, at)
	case tokRest:
		length, err := p.length(tok[1:], at)
		if err != nil {
			return err
		}
		p.seq.Append(EventRest, 0, length)
	case tokLength:
		length, err := p.length(tok[1:], at)
		if err != nil {
			return err
		}
		p.st.length = length
	case tokTie:
		last := p.seq.Last()
		if last.ID != EventNote && last.ID != EventRest {
			return p.errorf(at, nil, "tie without a preceding note")
		}
		length, err := p.length(tok[1:], at)
		if err != nil {
			return err
		}
		last.Length += length
	case tokSlurWeak:
		p.seq.Append(EventSlurWeak, 0, 0)
	case tokSlur:
		p.seq.Append(EventSlur, 0, 0)
	case tokQuantCount:
		n, next := parseNumber(tok, 2)
		n = max(n, 0)
		if n > s.MaxQuantCount {
			return p.errorf(at, ErrOutOfRange, "@q%d outside [0, %d]", n, s.MaxQuantCount)
		}
		p.seq.Append(EventQuantCount, n*s.Resolution/192, 0)
		if c := strings.IndexByte(tok[next:], ','); c >= 0 {
			delay, _ := parseNumber(strings.TrimSpace(tok[next+c+1:]), 0)
			if delay > s.MaxQuantCount {
				return p.errorf(at, ErrOutOfRange, "key-on delay %d outside [0, %d]", delay, s.MaxQuantCount)
			}
			p.seq.Append(EventKeyOnDelay, max(delay, 0)*s.Resolution/192, 0)
		}
	case tokFineVolume:
		v, err := p.ranged(tok, 2, s.DefaultFineVolume, 0, s.MaxFineVolume, at)
		if err != nil {
			return err
		}
		p.seq.Append(EventFineVolume, v, 0)
	case tokQuant:
		v, err := p.ranged(tok, 1, s.DefaultQuantRatio, 0, p.quantMax, at)
		if err != nil {
			return err
		}
		p.seq.Append(EventQuantRatio, v*QuantRatioScale/p.quantMax, 0)
	case tokOctave:
		v, err := p.ranged(tok, 1, s.DefaultOctave, s.MinOctave, s.MaxOctave, at)
		if err != nil {
			return err
		}
		p.st.octave = v
	case tokOctaveShift:
		n, _ := parseNumber(tok, 1)
		if n < 0 {
			n = 1
		}
		if tok[0] == '>' {
			n = -n
		}
		p.st.octave = clampInt(p.st.octave+n*s.OctavePolarize, s.MinOctave, s.MaxOctave)
	case tokOctaveJump:
		n := 2
		if tok == "»" {
			n = -2
		}
		p.st.octave = clampInt(p.st.octave+n*s.OctavePolarize, s.MinOctave, s.MaxOctave)
	case tokTransposeRel:
		if v, _ := parseSignedNumber(tok, 3); v != ArgUnset {
			p.st.noteShift += v
		}
	case tokTranspose:
		v, _ := parseSignedNumber(tok, 2)
		if v == ArgUnset {
			v = 0
		}
		p.st.noteShift = v
	case tokVolume:
		v, err := p.ranged(tok, 1, s.DefaultVolume, 0, s.MaxVolume, at)
		if err != nil {
			return err
		}
		p.seq.Append(EventVolume, v, 0)
	case tokVolumeShift:
		n, _ := parseNumber(tok, 1)
		if n < 0 {
			n = 1
		}
		if (tok[0] == ')') != p.revVolume {
			n = -n
		}
		p.seq.Append(EventVolumeShift, n*s.VolumePolarize, 0)
	case tokTempo:
		bpm := s.DefaultBPM
		if len(tok) > 1 {
			raw, err := strconv.ParseFloat(tok[1:], 64)
			if err != nil {
				return p.errorf(at, err, "bad tempo %q", tok)
			}
			bpm = p.tempo.bpm(raw)
		}
		if bpm <= 0 || math.IsInf(bpm, 0) {
			return p.errorf(at, ErrOutOfRange, "tempo %q out of range", tok)
		}
		p.seq.Append(EventTempo, int(math.Round(bpm*TempoScale)), 0)
	case tokRepeatBegin:
		e := p.seq.Append(EventRepeatBegin, 2, 0)
		p.repeats = append(p.repeats, repeatFrame{pos: at, begin: e})
	case tokRepeatBreak:
		n := len(p.repeats)
		if n == 0 {
			return p.errorf(at, nil, "'|' without '['")
		}
		if p.repeats[n-1].brk != nil {
			return p.errorf(at, nil, "second '|' in one repeat")
		}
		p.repeats[n-1].brk = p.seq.Append(EventRepeatBreak, 0, 0)
	case tokRepeatEnd:
		n := len(p.repeats)
		if n == 0 {
			return p.errorf(at, nil, "']' without '['")
		}
		count, err := p.ranged(tok, 1, 2, 1, MaxRepeatCount, at)
		if err != nil {
			return err
		}
		f := p.repeats[n-1]
		p.repeats = p.repeats[:n-1]
		end := p.seq.Append(EventRepeatEnd, 0, 0)
		f.begin.Data = count
		f.begin.jump = end
		end.jump = f.begin
		if f.brk != nil {
			f.brk.jump = end
		}
	case tokRepeatAll:
		if len(p.repeats) > 0 {
			return p.errorf(at, nil, "'$' inside a repeat")
		}
		p.seq.SetLoop(p.seq.Append(EventRepeatAll, 0, 0))
	case tokTable:
		values, err := parseTableLiteral(tok[1 : len(tok)-1])
		if err != nil {
			return p.errorf(at, err, "%v", err)
		}
		idx := 0
		for p.tables[idx] != nil {
			idx++
		}
		p.tables[idx] = values
		p.seq.Append(EventTable, idx, 0)
	case tokUser:
		return p.user(tok, at)
	default:
		return p.errorf(at, nil, "unknown command %q", tok)
	}
	return nil
}

func (p *Parser) note(n, length, at int) error {
	if n < 0 || n > 127 {
		return p.errorf(at, ErrOutOfRange, "note %d outside [0, 127]", n)
	}
	p.seq.Append(EventNote, n, length)
	return nil
}

// length reads "<n><dots>" and returns ticks; no number means the
// current default length.
func (p *Parser) length(s string, at int) (int, error) {
	n, i := parseNumber(s, 0)
	base := p.st.length
	if n >= 0 {
		if n == 0 || n > p.settings.Resolution {
			return 0, p.errorf(at, ErrOutOfRange, "length %d outside [1, %d]", n, p.settings.Resolution)
		}
		base = p.settings.Resolution / n
	}
	dur, term := base, base
	for ; i < len(s) && s[i] == '.'; i++ {
		term >>= 1
		dur += term
	}
	return dur, nil
}

// ranged reads the number after the command prefix, returning def when it
// is absent and an ErrOutOfRange parse error outside [lo, hi].
func (p *Parser) ranged(tok string, prefix, def, lo, hi, at int) (int, error) {
	v, _ := parseNumber(tok, prefix)
	if v < 0 {
		return def, nil
	}
	if v < lo || v > hi {
		return 0, p.errorf(at, ErrOutOfRange, "%s outside [%d, %d]", tok, lo, hi)
	}
	return v, nil
}

func (p *Parser) user(tok string, at int) error {
	low := strings.ToLower(tok)
	for _, u := range p.users {
		if !strings.HasPrefix(low, u.name) {
			continue
		}
		args, err := parseArgs(tok[len(u.name):])
		if err != nil {
			return p.errorf(at, err, "bad arguments in %q", tok)
		}
		first := ArgUnset
		if len(args) > 0 {
			first = args[0]
		}
		p.seq.Append(u.id, first, 0)
		for _, a := range args[min(1, len(args)):] {
			p.seq.Append(EventParameter, a, 0)
		}
		return nil
	}
	return p.errorf(at, nil, "unknown command %q", tok)
}

var errArgs = errors.New("malformed argument list")

// parseArgs splits "1,,-3" into [1 ArgUnset -3].
func parseArgs(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	args := make([]int, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			args[i] = ArgUnset
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, errArgs
		}
		args[i] = v
	}
	return args, nil
}
