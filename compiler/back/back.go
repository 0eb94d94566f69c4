// Package back drives machine-code generation: it walks either the
// optimizer's IR or the raw instruction stream, invoking one backend's
// primitives, and resolves loop branches as it goes.
package back

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/eliminmax/eambfc-sub000/compiler/arch"
	"github.com/eliminmax/eambfc-sub000/compiler/diag"
	"github.com/eliminmax/eambfc-sub000/compiler/front"
	"github.com/eliminmax/eambfc-sub000/compiler/ir"
)

type (
	Compiler struct {
		// MaxNesting overrides DefaultMaxNesting when non-zero.
		MaxNesting int
	}

	gen struct {
		be  arch.Backend
		ptr arch.Reg
		res resolver

		b     []byte
		errs  diag.Errors
		fatal error
	}
)

// maxOpBytes bounds a single op's emission across all backends; the
// buffer is pre-grown by this much so backends can append freely.
const maxOpBytes = 64

func New() *Compiler {
	return &Compiler{}
}

// Compile generates code for optimized IR. The prologue loads the tape
// address into the tape pointer; the epilogue performs exit(0).
func (c *Compiler) Compile(ctx context.Context, be arch.Backend, tapeAddr int64, ops []ir.Op) (_ []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: compile ir", "arch", be.Name(), "ops", len(ops))
	defer tr.Finish("err", &err)

	g := c.newGen(be, tapeAddr)

	for _, op := range ops {
		g.b = grow(g.b, maxOpBytes)

		switch op := op.(type) {
		case ir.Add:
			if op.N == 1 {
				g.b = be.IncByte(g.b, g.ptr)
			} else {
				g.b = be.AddByte(g.b, g.ptr, op.N)
			}
		case ir.Sub:
			if op.N == 1 {
				g.b = be.DecByte(g.b, g.ptr)
			} else {
				g.b = be.SubByte(g.b, g.ptr, op.N)
			}
		case ir.Right:
			if op.N == 1 {
				g.b = be.IncReg(g.b, g.ptr)
			} else {
				var e error

				g.b, e = be.AddReg(g.b, g.ptr, op.N)
				g.fail(e, op.Pos())
			}
		case ir.Left:
			if op.N == 1 {
				g.b = be.DecReg(g.b, g.ptr)
			} else {
				var e error

				g.b, e = be.SubReg(g.b, g.ptr, op.N)
				g.fail(e, op.Pos())
			}
		case ir.Set:
			if op.V == 0 {
				g.b = be.ZeroByte(g.b, g.ptr)
			} else {
				g.b = be.SetByte(g.b, g.ptr, op.V)
			}
		case ir.Read:
			g.read()
		case ir.Write:
			g.write()
		case ir.Open:
			g.open(op.Pos())
		case ir.Close:
			g.close(op.Pos())
		default:
			panic(op)
		}

		if g.fatal != nil {
			return nil, g.fatal
		}
	}

	return g.finish()
}

// CompileDirect generates code one instruction byte at a time, without
// IR. Scanning continues past an unmatched closer so every diagnosable
// issue in the file is reported.
func (c *Compiler) CompileDirect(ctx context.Context, be arch.Backend, tapeAddr int64, toks []front.Tok) (_ []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: compile direct", "arch", be.Name(), "toks", len(toks))
	defer tr.Finish("err", &err)

	g := c.newGen(be, tapeAddr)

	for _, t := range toks {
		g.b = grow(g.b, maxOpBytes)

		switch t.C {
		case '+':
			g.b = be.IncByte(g.b, g.ptr)
		case '-':
			g.b = be.DecByte(g.b, g.ptr)
		case '>':
			g.b = be.IncReg(g.b, g.ptr)
		case '<':
			g.b = be.DecReg(g.b, g.ptr)
		case ',':
			g.read()
		case '.':
			g.write()
		case '[':
			g.open(t.Pos())
		case ']':
			g.close(t.Pos())
		default:
			panic(t.C)
		}

		if g.fatal != nil {
			return nil, g.fatal
		}
	}

	return g.finish()
}

func (c *Compiler) newGen(be arch.Backend, tapeAddr int64) *gen {
	max := c.MaxNesting
	if max == 0 {
		max = DefaultMaxNesting
	}

	g := &gen{
		be:  be,
		ptr: be.Regs().TapePtr,
		res: resolver{max: max},
		b:   make([]byte, 0, 4096),
	}

	var err error

	g.b, err = be.SetReg(g.b, g.ptr, tapeAddr)
	g.fail(err, diag.Position{Line: 1, Col: 1})

	return g
}

func (g *gen) finish() ([]byte, error) {
	g.b = grow(g.b, maxOpBytes)
	g.exit()

	g.errs = append(g.errs, g.res.leftover()...)

	if err := g.errs.Err(); err != nil {
		return nil, err
	}

	if g.fatal != nil {
		return nil, g.fatal
	}

	return g.b, nil
}

func (g *gen) open(pos diag.Position) {
	var err error

	g.b, err = g.res.open(g.be, g.b, pos)
	g.fail(err, pos)
}

func (g *gen) close(pos diag.Position) {
	b, err := g.res.close(g.be, g.b, g.ptr, pos)
	g.b = b

	var e *diag.Error
	if errors.As(err, &e) && e.ID == diag.UnmatchedClose {
		// keep scanning: later errors are still worth reporting
		g.errs = append(g.errs, e)
		return
	}

	g.fail(err, pos)
}

func (g *gen) read() {
	g.rw(g.be.Syscalls().Read, 0)
}

func (g *gen) write() {
	g.rw(g.be.Syscalls().Write, 1)
}

// rw emits read(fd, ptr, 1) or write(fd, ptr, 1).
func (g *gen) rw(sc, fd int64) {
	regs := g.be.Regs()

	var err error

	g.b, err = g.be.SetReg(g.b, regs.SCNum, sc)
	g.failNoPos(err)

	g.b, err = g.be.SetReg(g.b, regs.Arg1, fd)
	g.failNoPos(err)

	g.b = g.be.RegCopy(g.b, regs.Arg2, g.ptr)

	g.b, err = g.be.SetReg(g.b, regs.Arg3, 1)
	g.failNoPos(err)

	g.b = g.be.Syscall(g.b)
}

func (g *gen) exit() {
	regs := g.be.Regs()

	var err error

	g.b, err = g.be.SetReg(g.b, regs.SCNum, g.be.Syscalls().Exit)
	g.failNoPos(err)

	g.b, err = g.be.SetReg(g.b, regs.Arg1, 0)
	g.failNoPos(err)

	g.b = g.be.Syscall(g.b)
}

func (g *gen) fail(err error, pos diag.Position) {
	if err == nil || g.fatal != nil {
		return
	}

	g.fatal = at(err, pos)
}

func (g *gen) failNoPos(err error) {
	if err == nil || g.fatal != nil {
		return
	}

	g.fatal = err
}

// grow reserves room for n more bytes, doubling in page-aligned steps
// so large programs reallocate a bounded number of times.
func grow(b []byte, n int) []byte {
	need := len(b) + n
	if need <= cap(b) {
		return b
	}

	sz := cap(b) * 2
	if sz < need {
		sz = need
	}

	sz = (sz + 0xfff) &^ 0xfff

	nb := make([]byte, len(b), sz)
	copy(nb, b)

	return nb
}
