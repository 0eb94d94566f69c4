// Package front turns raw Brainfuck source into the optimizer's IR.
//
// The pipeline is total over each previous stage: filter the source down
// to the eight instruction bytes, check bracket balance, build merged IR
// records, eliminate loops that open on a statically-zero cell, fuse the
// [-] idiom into set-cell records, trim trailing dead code and resolve
// signed counts into unsigned-magnitude tags.
package front

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/eliminmax/eambfc-sub000/compiler/diag"
	"github.com/eliminmax/eambfc-sub000/compiler/ir"
)

type (
	// Tok is one instruction byte with its source span. The direct
	// (unoptimized) code generator walks these without building IR.
	Tok struct {
		C byte
		ir.Span
	}
)

// Tokens filters text down to the eight instruction bytes, attaching
// 1-based line/column positions. Column counting skips UTF-8
// continuation bytes so multibyte comment text does not shift it.
func Tokens(text []byte) []Tok {
	var toks []Tok

	line, col := 1, 1

	for i, c := range text {
		switch c {
		case '+', '-', '<', '>', '[', ']', ',', '.':
			toks = append(toks, Tok{
				C: c,
				Span: ir.Span{
					Off:  i,
					End:  i + 1,
					Line: line,
					Col:  col,
				},
			})
		}

		if c == '\n' {
			line++
			col = 1
		} else if c&0xc0 != 0x80 {
			col++
		}
	}

	return toks
}

// Build runs the whole front end and returns optimized IR.
func Build(ctx context.Context, text []byte) (ops []ir.Op, err error) {
	tr := tlog.SpanFromContext(ctx)

	toks := Tokens(text)

	err = check(toks)
	if err != nil {
		return nil, err
	}

	ops = build(toks)
	tr.V("optimize").Printw("ir built", "toks", len(toks), "ops", len(ops))

	ops = deadLoops(ops)
	ops = fuseSet(ops)
	ops = trimTail(ops)
	ops = signs(ops)

	tr.V("optimize").Printw("ir optimized", "ops", len(ops))

	if tr.If("dump_ir") {
		for i, op := range ops {
			tr.Printw("ir op", "i", i, "type", tlog.FormatNext("%T"), op, "span", op)
		}
	}

	return ops, nil
}

// check verifies that every [ has a matching, properly nested ].
// It fails at the first offending position.
func check(toks []Tok) error {
	var open []Tok

	for _, t := range toks {
		switch t.C {
		case '[':
			open = append(open, t)
		case ']':
			if len(open) == 0 {
				return diag.New(diag.UnmatchedClose, "unmatched ']'").At(t.Pos()).WithChar(']')
			}

			open = open[:len(open)-1]
		}
	}

	if len(open) != 0 {
		return diag.New(diag.UnmatchedOpen, "unmatched '['").At(open[0].Pos()).WithChar('[')
	}

	return nil
}

// build scans left to right merging consecutive cell-modify and
// pointer-move operators. Cell counts wrap mod 256; a record that
// cancels to zero is dropped, re-exposing the record before it.
func build(toks []Tok) []ir.Op {
	var ops []ir.Op

	for _, t := range toks {
		switch t.C {
		case '+':
			ops = addCell(ops, 1, t.Span)
		case '-':
			ops = addCell(ops, 255, t.Span)
		case '>':
			ops = move(ops, 1, t.Span)
		case '<':
			ops = move(ops, -1, t.Span)
		case '[':
			ops = append(ops, ir.Open{Span: t.Span})
		case ']':
			ops = append(ops, ir.Close{Span: t.Span})
		case ',':
			ops = append(ops, ir.Read{Span: t.Span})
		case '.':
			ops = append(ops, ir.Write{Span: t.Span})
		}
	}

	return ops
}

func addCell(ops []ir.Op, d byte, sp ir.Span) []ir.Op {
	if l := len(ops) - 1; l >= 0 {
		if last, ok := ops[l].(ir.Add); ok {
			n := last.N + d
			if n == 0 {
				return ops[:l]
			}

			last.N = n
			last.End = sp.End

			ops[l] = last

			return ops
		}
	}

	return append(ops, ir.Add{Span: sp, N: d})
}

func move(ops []ir.Op, d int64, sp ir.Span) []ir.Op {
	if l := len(ops) - 1; l >= 0 {
		if last, ok := ops[l].(ir.Right); ok {
			n := last.N + d
			if n == 0 {
				return ops[:l]
			}

			last.N = n
			last.End = sp.End

			ops[l] = last

			return ops
		}
	}

	return append(ops, ir.Right{Span: sp, N: d})
}
