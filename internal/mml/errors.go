package mml

import (
	"errors"
	"fmt"
)

var (
	// ErrParserBusy reports a parser that is already compiling a score.
	ErrParserBusy = errors.New("mml: parser is busy")
	// ErrOutOfRange reports a command argument outside its documented range.
	ErrOutOfRange = errors.New("mml: argument out of range")
	// ErrNotPrepared reports Parse without a preceding Prepare.
	ErrNotPrepared = errors.New("mml: parser not prepared")
	// ErrEventName reports a user-defined event name that cannot be used.
	ErrEventName = errors.New("mml: invalid event name")
)

// ParseError is a structural or range error found while compiling. Pos is
// the byte offset into the preprocessed text and Line is 1-based.
type ParseError struct {
	Pos  int
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mml: line %d (offset %d): %s", e.Line, e.Pos, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }
