package mml

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type preprocessedInput struct {
	text        string
	definitions map[string]string
}

type preprocessorState struct {
	macros       map[string]string
	definitions  map[string]string
	macroDynamic bool
	revOctave    bool
	revVolume    bool
}

// preprocessInput strips comments, applies "#" directives and expands
// macros. Directives are only accepted at the head of a sequence.
func preprocessInput(src string) (preprocessedInput, error) {
	noComments := stripComments(src)
	state := preprocessorState{
		macros:      make(map[string]string),
		definitions: make(map[string]string),
	}
	text, err := preprocessStream(noComments, &state)
	if err != nil {
		return preprocessedInput{}, err
	}
	return preprocessedInput{text: text, definitions: state.definitions}, nil
}

// stripComments blanks out comments, keeping line breaks so positions
// still map to source lines.
func stripComments(src string) string {
	out := []byte(src)
	for i := 0; i < len(out); i++ {
		switch {
		case i+1 < len(out) && out[i] == '/' && out[i+1] == '*':
			for ; i < len(out); i++ {
				if i+1 < len(out) && out[i] == '*' && out[i+1] == '/' {
					out[i], out[i+1] = ' ', ' '
					i++
					break
				}
				if out[i] != '\n' {
					out[i] = ' '
				}
			}
		case i+1 < len(out) && out[i] == '/' && out[i+1] == '/':
			for ; i < len(out) && out[i] != '\n'; i++ {
				out[i] = ' '
			}
		}
	}
	return string(out)
}

func lineAt(src string, pos int) int {
	if pos > len(src) {
		pos = len(src)
	}
	return strings.Count(src[:pos], "\n") + 1
}

func preprocessStream(src string, st *preprocessorState) (string, error) {
	var out strings.Builder
	out.Grow(len(src))
	dirty := false
	for i := 0; i < len(src); {
		if src[i] == '#' {
			if dirty {
				return "", &ParseError{Pos: out.Len(), Line: lineAt(src, i), Msg: "system command outside sequence head"}
			}
			advance, stopAll := parseDirective(src, i, st)
			if stopAll {
				break
			}
			i = advance
			continue
		}
		if isMacroName(src[i]) {
			name := string(src[i])
			if _, ok := st.macros[name]; ok {
				shift, next := parseOptionalSignedParen(src, i+1)
				out.WriteString(expandMacroByName(name, shift, st, 0))
				dirty = true
				i = next
				continue
			}
		}
		ch := src[i]
		switch {
		case ch == ';':
			dirty = false
		case !isSpace(ch):
			dirty = true
		}
		if st.revOctave && (ch == '<' || ch == '>') {
			ch ^= '<' ^ '>'
		}
		out.WriteByte(ch)
		i++
	}
	return out.String(), nil
}

func parseDirective(src string, at int, st *preprocessorState) (int, bool) {
	end := at + 1
	for end < len(src) && src[end] != ';' {
		end++
	}
	stmtEnd := end
	if end < len(src) {
		stmtEnd = end + 1
	}
	body := strings.TrimSpace(src[at+1 : end])
	if body == "" {
		return stmtEnd, false
	}
	upperBody := strings.ToUpper(body)
	if upperBody == "END" {
		st.definitions["END"] = "1"
		return len(src), true
	}
	if strings.HasPrefix(upperBody, "MACRO{") {
		mode := strings.ToLower(strings.TrimSpace(parseBraceValue(body[len("MACRO"):])))
		switch mode {
		case "dynamic":
			st.macroDynamic = true
		case "static":
			st.macroDynamic = false
		}
		st.definitions["MACRO_MODE"] = mode
		return stmtEnd, false
	}
	if strings.HasPrefix(upperBody, "REV") {
		opts := strings.ToLower(strings.TrimSpace(parseBraceValue(body[len("REV"):])))
		if opts == "" || strings.Contains(opts, "octave") {
			st.revOctave = true
		}
		if opts == "" || strings.Contains(opts, "volume") {
			st.revVolume = true
		}
		st.definitions["REV"] = opts
		return stmtEnd, false
	}
	if key, val, ok := parseKnownDirective(body); ok {
		st.definitions[key] = val
		return stmtEnd, false
	}
	applyMacroDefinition(body, st)
	return stmtEnd, false
}

func parseKnownDirective(body string) (string, string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(body))
	switch {
	case strings.HasPrefix(upper, "TITLE{"):
		return "TITLE", parseBraceValue(body[len("TITLE"):]), true
	case strings.HasPrefix(upper, "SIGN{"):
		return "SIGN", parseBraceValue(body[len("SIGN"):]), true
	case strings.HasPrefix(upper, "TMODE{"):
		return "TMODE", parseBraceValue(body[len("TMODE"):]), true
	case strings.HasPrefix(upper, "FPS"):
		return "FPS", strings.TrimSpace(body[len("FPS"):]), true
	case strings.HasPrefix(upper, "QUANT"):
		return "QUANT", strings.TrimSpace(body[len("QUANT"):]), true
	case strings.HasPrefix(upper, "TABLE"):
		return extractDirectiveName(upper), body, true
	case strings.HasPrefix(upper, "EFFECT"):
		name := extractDirectiveName(upper)
		return name, parseBraceValue(body[len(name):]), true
	default:
		return "", "", false
	}
}

func extractDirectiveName(s string) string {
	end := 0
	for end < len(s) {
		ch := s[end]
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '@' || ch == '_' {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return "DIRECTIVE"
	}
	return s[:end]
}

func parseBraceValue(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '{' {
		return ""
	}
	end := strings.IndexByte(s, '}')
	if end <= 0 {
		return ""
	}
	return s[1:end]
}

func applyMacroDefinition(stmt string, st *preprocessorState) bool {
	opIdx := strings.Index(stmt, "+=")
	opLen := 2
	appendMode := true
	if opIdx < 0 {
		opIdx = strings.IndexByte(stmt, '=')
		opLen = 1
		appendMode = false
	}
	if opIdx <= 0 {
		return false
	}
	targets := parseMacroTargets(strings.TrimSpace(stmt[:opIdx]))
	if len(targets) == 0 {
		return false
	}
	value := strings.TrimSpace(stmt[opIdx+opLen:])
	if !st.macroDynamic {
		value = expandMacroText(value, st, 0)
	}
	for _, target := range targets {
		if appendMode {
			st.macros[target] += value
		} else {
			st.macros[target] = value
		}
	}
	return true
}

func parseMacroTargets(spec string) []string {
	noSpace := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			return -1
		}
		return r
	}, spec)
	out := make([]string, 0, len(noSpace))
	seen := make(map[string]struct{}, len(noSpace))
	add := func(key string) {
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	for i := 0; i < len(noSpace); {
		if i+2 < len(noSpace) && isMacroName(noSpace[i]) && noSpace[i+1] == '-' && isMacroName(noSpace[i+2]) {
			from, to := int(noSpace[i]), int(noSpace[i+2])
			step := 1
			if from > to {
				step = -1
			}
			for c := from; ; c += step {
				add(string(byte(c)))
				if c == to {
					break
				}
			}
			i += 3
			continue
		}
		if isMacroName(noSpace[i]) {
			add(string(noSpace[i]))
		}
		i++
	}
	return out
}

const maxMacroDepth = 32

func expandMacroByName(name string, shift int, st *preprocessorState, depth int) string {
	if depth > maxMacroDepth {
		return ""
	}
	body, ok := st.macros[name]
	if !ok {
		return name
	}
	if st.macroDynamic {
		body = expandMacroText(body, st, depth+1)
	}
	if shift != 0 {
		body = fmt.Sprintf("_kt%+d %s _kt%+d ", shift, body, -shift)
	}
	if st.revOctave {
		body = strings.NewReplacer("<", ">", ">", "<").Replace(body)
	}
	return body
}

func expandMacroText(src string, st *preprocessorState, depth int) string {
	if depth > maxMacroDepth {
		return src
	}
	var out strings.Builder
	out.Grow(len(src))
	for i := 0; i < len(src); i++ {
		ch := src[i]
		if isMacroName(ch) {
			if _, ok := st.macros[string(ch)]; ok {
				shift, next := parseOptionalSignedParen(src, i+1)
				out.WriteString(expandMacroByName(string(ch), shift, st, depth+1))
				i = next - 1
				continue
			}
		}
		out.WriteByte(ch)
	}
	return out.String()
}

func parseOptionalSignedParen(src string, at int) (int, int) {
	if at >= len(src) || src[at] != '(' {
		return 0, at
	}
	v, next := parseSignedNumber(src, at+1)
	if next == at+1 || next >= len(src) || src[next] != ')' || v == ArgUnset {
		return 0, at
	}
	return v, next + 1
}

var noteOffsets = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

// keySignatures maps the standard key names to the accidentals they imply,
// in c d e f g a b order.
var keySignatures = map[string][7]int{
	"c": {}, "am": {},
	"g": {0, 0, 0, 1, 0, 0, 0}, "em": {0, 0, 0, 1, 0, 0, 0},
	"d": {1, 0, 0, 1, 0, 0, 0}, "bm": {1, 0, 0, 1, 0, 0, 0},
	"a": {1, 0, 0, 1, 1, 0, 0}, "f#m": {1, 0, 0, 1, 1, 0, 0},
	"e": {1, 1, 0, 1, 1, 0, 0}, "c#m": {1, 1, 0, 1, 1, 0, 0},
	"b": {1, 1, 0, 1, 1, 1, 0}, "g#m": {1, 1, 0, 1, 1, 1, 0},
	"f#": {1, 1, 1, 1, 1, 1, 0}, "d#m": {1, 1, 1, 1, 1, 1, 0},
	"c#": {1, 1, 1, 1, 1, 1, 1}, "a#m": {1, 1, 1, 1, 1, 1, 1},
	"f": {0, 0, 0, 0, 0, 0, -1}, "dm": {0, 0, 0, 0, 0, 0, -1},
	"bb": {0, 0, -1, 0, 0, 0, -1}, "gm": {0, 0, -1, 0, 0, 0, -1},
	"eb": {0, 0, -1, 0, 0, -1, -1}, "cm": {0, 0, -1, 0, 0, -1, -1},
	"ab": {0, -1, -1, 0, 0, -1, -1}, "fm": {0, -1, -1, 0, 0, -1, -1},
	"db": {0, -1, -1, 0, -1, -1, -1}, "bbm": {0, -1, -1, 0, -1, -1, -1},
	"gb": {-1, -1, -1, 0, -1, -1, -1}, "ebm": {-1, -1, -1, 0, -1, -1, -1},
	"cb": {-1, -1, -1, -1, -1, -1, -1}, "abm": {-1, -1, -1, -1, -1, -1, -1},
}

var signIndex = map[byte]int{'c': 0, 'd': 1, 'e': 2, 'f': 3, 'g': 4, 'a': 5, 'b': 6}

// parseKeySignature accepts a standard key name ("G", "Ebm", "f+") or a
// comma separated list of accidentals ("f+,c+,").
func parseKeySignature(raw string) ([7]int, error) {
	var out [7]int
	raw = strings.ToLower(strings.ReplaceAll(raw, " ", ""))
	if raw == "" {
		return out, nil
	}
	if !strings.Contains(raw, ",") {
		key := strings.NewReplacer("+", "#", "-", "b").Replace(raw)
		sig, ok := keySignatures[key]
		if !ok {
			return out, fmt.Errorf("unknown key signature %q", raw)
		}
		return sig, nil
	}
	for _, tok := range strings.Split(raw, ",") {
		if tok == "" {
			continue
		}
		n, ok := signIndex[tok[0]]
		if !ok {
			return out, fmt.Errorf("unknown key signature %q", raw)
		}
		switch tok[len(tok)-1] {
		case '+', '#':
			out[n] = 1
		case '-':
			out[n] = -1
		default:
			out[n] = 0
		}
	}
	return out, nil
}

func parseQuantMax(defs map[string]string, def int) int {
	raw, ok := defs["QUANT"]
	if !ok {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

type tempoMode struct {
	mode string
	unit int
	fps  int
}

func parseTMODE(defs map[string]string) tempoMode {
	tm := tempoMode{unit: 100, fps: 60}
	if v, err := strconv.Atoi(strings.TrimSpace(defs["FPS"])); err == nil && v > 0 {
		tm.fps = v
	}
	raw := strings.ToLower(strings.TrimSpace(defs["TMODE"]))
	switch {
	case strings.HasPrefix(raw, "unit="):
		if v, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(raw, "unit="))); err == nil && v > 0 {
			tm.mode, tm.unit = "unit", v
		}
	case strings.HasPrefix(raw, "fps="):
		if v, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(raw, "fps="))); err == nil && v > 0 {
			tm.mode, tm.fps = "fps", v
		}
	}
	return tm
}

// bpm converts a "t" argument according to the tempo mode.
func (tm tempoMode) bpm(raw float64) float64 {
	switch tm.mode {
	case "unit":
		return raw / float64(tm.unit)
	case "fps":
		if raw <= 0 {
			return 0
		}
		return float64(tm.fps) * 60 / raw
	default:
		return raw
	}
}

// parseTables collects the "#TABLEn{...}" definitions.
func parseTables(defs map[string]string) (map[int][]int, error) {
	tables := make(map[int][]int)
	keys := make([]string, 0, len(defs))
	for k := range defs {
		if strings.HasPrefix(k, "TABLE") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		n, err := strconv.Atoi(k[len("TABLE"):])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad table name %q", k)
		}
		body := defs[k]
		values, err := parseTableLiteral(parseBraceValue(body[len(k):]))
		if err != nil {
			return nil, err
		}
		tables[n] = values
	}
	return tables, nil
}

// parseTableLiteral reads comma or space separated integers; "(a,b)n"
// expands to n values ramping from a towards b.
func parseTableLiteral(s string) ([]int, error) {
	var out []int
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case isSpace(ch) || ch == ',':
			i++
		case ch == '(':
			from, next := parseSignedNumber(s, i+1)
			if from == ArgUnset || next >= len(s) || s[next] != ',' {
				return nil, fmt.Errorf("bad table ramp at %d", i)
			}
			to, next := parseSignedNumber(s, next+1)
			if to == ArgUnset || next >= len(s) || s[next] != ')' {
				return nil, fmt.Errorf("bad table ramp at %d", i)
			}
			steps, next := parseNumber(s, next+1)
			if steps <= 0 {
				steps = 1
			}
			for k := 0; k < steps; k++ {
				out = append(out, from+(to-from)*k/steps)
			}
			i = next
		default:
			v, next := parseSignedNumber(s, i)
			if v == ArgUnset {
				return nil, fmt.Errorf("bad table value %q", s[i:])
			}
			out = append(out, v)
			i = next
		}
	}
	return out, nil
}

// parseNumber reads an unsigned decimal at s[at:]; -1 when absent.
func parseNumber(s string, at int) (int, int) {
	i := at
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == at {
		return -1, at
	}
	n, err := strconv.Atoi(s[at:i])
	if err != nil {
		return -1, at
	}
	return n, i
}

// parseSignedNumber reads an optionally signed decimal; ArgUnset when
// absent.
func parseSignedNumber(s string, at int) (int, int) {
	i, sign := at, 1
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		if s[i] == '-' {
			sign = -1
		}
		i++
	}
	v, next := parseNumber(s, i)
	if v < 0 {
		return ArgUnset, at
	}
	return sign * v, next
}

func isMacroName(b byte) bool { return b >= 'A' && b <= 'Z' }

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 32
	}
	return b
}

func isSpace(b byte) bool { return b == ' ' || b == '\n' || b == '\r' || b == '\t' }
func isNote(b byte) bool  { _, ok := noteOffsets[b]; return ok }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
