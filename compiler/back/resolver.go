package back

import (
	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/eliminmax/eambfc-sub000/compiler/arch"
	"github.com/eliminmax/eambfc-sub000/compiler/diag"
)

type (
	// resolver backpatches loop branches. Opening a loop reserves the
	// backend's fixed-size placeholder and remembers where; closing
	// one pops the match, rewrites the placeholder with the forward
	// branch and appends the backward one. State belongs to a single
	// compilation and is never shared.
	resolver struct {
		stack []jump
		max   int
	}

	jump struct {
		off int
		pos diag.Position
	}
)

// DefaultMaxNesting bounds the jump stack; a source needs one byte of
// nesting per entry, so real programs sit far below it.
const DefaultMaxNesting = 1 << 16

func (r *resolver) open(be arch.Backend, b []byte, pos diag.Position) ([]byte, error) {
	if len(r.stack) >= r.max {
		return b, diag.New(diag.NestedTooDeep, "loops nested deeper than %d", r.max).At(pos)
	}

	r.stack = append(r.stack, jump{off: len(b), pos: pos})

	tlog.V("jumps").Printw("loop open", "off", len(b), "depth", len(r.stack), "from", loc.Caller(1))

	return be.PadLoopOpen(b), nil
}

func (r *resolver) close(be arch.Backend, b []byte, ptr arch.Reg, pos diag.Position) ([]byte, error) {
	l := len(r.stack) - 1
	if l < 0 {
		return b, diag.New(diag.UnmatchedClose, "unmatched ']'").At(pos).WithChar(']')
	}

	j := r.stack[l]
	r.stack = r.stack[:l]

	dist := int64(len(b) - j.off)

	tlog.V("jumps").Printw("loop close", "open", j.off, "dist", dist, "depth", l)

	err := be.JumpOpen(b, ptr, j.off, dist)
	if err != nil {
		return b, at(err, j.pos)
	}

	b, err = be.JumpClose(b, ptr, -dist)
	if err != nil {
		return b, at(err, pos)
	}

	return b, nil
}

// leftover reports every opener still unmatched at end of file,
// individually, not just the first.
func (r *resolver) leftover() diag.Errors {
	var errs diag.Errors

	for _, j := range r.stack {
		errs = append(errs, diag.New(diag.UnmatchedOpen, "unmatched '['").At(j.pos).WithChar('['))
	}

	return errs
}

// at attributes a backend diagnostic to a source position; backends
// only know buffer offsets.
func at(err error, pos diag.Position) error {
	var e *diag.Error

	if errors.As(err, &e) && e.Pos == nil {
		e.Pos = &pos
	}

	return err
}
