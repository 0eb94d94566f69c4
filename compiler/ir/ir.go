// Package ir is the optimizer's intermediate representation: an ordered
// list of tagged, source-located operations. One struct per tag; cell
// deltas are a wrapping byte, pointer deltas are a signed 64-bit count.
package ir

import (
	"tlog.app/go/tlog/tlwire"

	"github.com/eliminmax/eambfc-sub000/compiler/diag"
)

type (
	// Op is one of the structs below. The code generator type-switches
	// over it and panics on anything else.
	Op any

	// Span is the source range an op was built from. Line and Col are
	// 1-based; Col skips UTF-8 continuation bytes.
	Span struct {
		Off, End  int
		Line, Col int
	}

	Set struct {
		Span
		V byte
	}

	Add struct {
		Span
		N byte
	}

	Sub struct {
		Span
		N byte
	}

	Right struct {
		Span
		N int64
	}

	Left struct {
		Span
		N int64
	}

	Open struct {
		Span
	}

	Close struct {
		Span
	}

	Read struct {
		Span
	}

	Write struct {
		Span
	}
)

func (s Span) Pos() diag.Position {
	return diag.Position{Line: s.Line, Col: s.Col}
}

func (s Span) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 2)

	b = e.AppendKeyInt(b, "line", s.Line)
	b = e.AppendKeyInt(b, "col", s.Col)

	return b
}
