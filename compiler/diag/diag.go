// Package diag holds the structured diagnostics produced by compilation.
//
// Every failure the compiler can attribute to the source or to a target
// limit is an *Error with a stable ID, so callers can render it as plain
// text or JSON without parsing messages.
package diag

import (
	"fmt"
	"strings"
)

type (
	// ID names a failure class. IDs are stable and part of the tool output.
	ID string

	// Position is a 1-based source location. Column counting skips UTF-8
	// continuation bytes, so multibyte comment text does not shift it.
	Position struct {
		Line int `json:"line"`
		Col  int `json:"column"`
	}

	Error struct {
		ID   ID        `json:"errorId"`
		Pos  *Position `json:"position,omitempty"`
		Char string    `json:"instruction,omitempty"`
		Msg  string    `json:"message"`
	}

	// Errors aggregates independent diagnostics from one compilation,
	// such as every unmatched opener left at end of file.
	Errors []*Error
)

const (
	UnmatchedOpen  = ID("UNMATCHED_OPEN")
	UnmatchedClose = ID("UNMATCHED_CLOSE")
	JumpTooLong    = ID("JUMP_TOO_LONG")
	NestedTooDeep  = ID("NESTED_TOO_DEEP")
	CodeTooLarge   = ID("CODE_TOO_LARGE")
	TapeTooLarge   = ID("TAPE_TOO_LARGE")
	UnknownArch    = ID("UNKNOWN_ARCH")
	BadExtension   = ID("BAD_EXTENSION")
)

func New(id ID, format string, args ...any) *Error {
	return &Error{
		ID:  id,
		Msg: fmt.Sprintf(format, args...),
	}
}

func (e *Error) At(p Position) *Error {
	e.Pos = &p

	return e
}

func (e *Error) WithChar(c byte) *Error {
	e.Char = string(c)

	return e
}

func (e *Error) Error() string {
	if e.Pos == nil {
		return fmt.Sprintf("%v: %v", e.ID, e.Msg)
	}

	return fmt.Sprintf("%v: %v (line %d column %d)", e.ID, e.Msg, e.Pos.Line, e.Pos.Col)
}

func (es Errors) Error() string {
	var b strings.Builder

	for i, e := range es {
		if i != 0 {
			b.WriteString("; ")
		}

		b.WriteString(e.Error())
	}

	return b.String()
}

// Err returns es as an error, flattening the empty and one-element cases.
func (es Errors) Err() error {
	switch len(es) {
	case 0:
		return nil
	case 1:
		return es[0]
	default:
		return es
	}
}
