package back

import (
	"bytes"
	"context"
	"testing"

	"tlog.app/go/errors"

	"github.com/eliminmax/eambfc-sub000/compiler/arch"
	"github.com/eliminmax/eambfc-sub000/compiler/diag"
	"github.com/eliminmax/eambfc-sub000/compiler/front"
	"github.com/eliminmax/eambfc-sub000/compiler/ir"
)

const tapeAddr = 0x10000

func TestBackpatch(t *testing.T) {
	ctx := context.Background()

	be, err := arch.Get("amd64")
	if err != nil {
		t.Fatalf("arch: %v", err)
	}

	c := New()

	code, err := c.CompileDirect(ctx, be, tapeAddr, front.Tokens([]byte("[+]")))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	// prologue: mov ebx, 0x10000
	if !bytes.Equal(code[:5], []byte{0xbb, 0x00, 0x00, 0x01, 0x00}) {
		t.Errorf("prologue: % x", code[:5])
	}

	// the placeholder at 5 must be patched into jz +11: over the
	// inc (2 bytes) and the closing jump block (9 bytes)
	fwd := []byte{0x80, 0x3b, 0x00, 0x0f, 0x84, 0x0b, 0x00, 0x00, 0x00}
	if !bytes.Equal(code[5:14], fwd) {
		t.Errorf("open jump: % x", code[5:14])
	}

	if !bytes.Equal(code[14:16], []byte{0xfe, 0x03}) {
		t.Errorf("body: % x", code[14:16])
	}

	back := []byte{0x80, 0x3b, 0x00, 0x0f, 0x85, 0xf5, 0xff, 0xff, 0xff}
	if !bytes.Equal(code[16:25], back) {
		t.Errorf("close jump: % x", code[16:25])
	}

	// epilogue: mov eax, 60; xor edi, edi; syscall
	tail := []byte{0xb8, 0x3c, 0x00, 0x00, 0x00, 0x31, 0xff, 0x0f, 0x05}
	if !bytes.Equal(code[25:], tail) {
		t.Errorf("epilogue: % x", code[25:])
	}
}

func TestOptimizedAndDirectAgree(t *testing.T) {
	ctx := context.Background()

	text := []byte("+++[->+<]>.")

	for _, be := range arch.All() {
		ops, err := front.Build(ctx, text)
		if err != nil {
			t.Fatalf("%v: build: %v", be.Name(), err)
		}

		c := New()

		opt, err := c.Compile(ctx, be, tapeAddr, ops)
		if err != nil {
			t.Fatalf("%v: compile ir: %v", be.Name(), err)
		}

		direct, err := c.CompileDirect(ctx, be, tapeAddr, front.Tokens(text))
		if err != nil {
			t.Fatalf("%v: compile direct: %v", be.Name(), err)
		}

		if len(opt) == 0 || len(direct) == 0 {
			t.Errorf("%v: empty code", be.Name())
		}

		if len(opt) > len(direct) {
			t.Errorf("%v: optimized code larger: %d > %d", be.Name(), len(opt), len(direct))
		}
	}
}

func TestUnmatchedClosersAllReported(t *testing.T) {
	ctx := context.Background()

	be, err := arch.Get("amd64")
	if err != nil {
		t.Fatalf("arch: %v", err)
	}

	c := New()

	_, err = c.CompileDirect(ctx, be, tapeAddr, front.Tokens([]byte("]+]")))
	if err == nil {
		t.Fatalf("expected error")
	}

	var errs diag.Errors
	if !errors.As(err, &errs) {
		t.Fatalf("error: %v", err)
	}

	if len(errs) != 2 {
		t.Fatalf("errors: %v", errs)
	}

	for i, e := range errs {
		if e.ID != diag.UnmatchedClose {
			t.Errorf("error %d: %+v", i, e)
		}
	}

	if errs[0].Pos.Col != 1 || errs[1].Pos.Col != 3 {
		t.Errorf("positions: %+v %+v", errs[0].Pos, errs[1].Pos)
	}
}

func TestLeftoverOpenersAllReported(t *testing.T) {
	ctx := context.Background()

	be, err := arch.Get("amd64")
	if err != nil {
		t.Fatalf("arch: %v", err)
	}

	c := New()

	_, err = c.CompileDirect(ctx, be, tapeAddr, front.Tokens([]byte("[+[")))
	if err == nil {
		t.Fatalf("expected error")
	}

	var errs diag.Errors
	if !errors.As(err, &errs) {
		t.Fatalf("error: %v", err)
	}

	if len(errs) != 2 {
		t.Fatalf("errors: %v", errs)
	}

	if errs[0].Pos.Col != 1 || errs[1].Pos.Col != 3 {
		t.Errorf("positions: %+v %+v", errs[0].Pos, errs[1].Pos)
	}
}

func TestNestedTooDeep(t *testing.T) {
	ctx := context.Background()

	be, err := arch.Get("amd64")
	if err != nil {
		t.Fatalf("arch: %v", err)
	}

	c := &Compiler{MaxNesting: 1}

	_, err = c.CompileDirect(ctx, be, tapeAddr, front.Tokens([]byte("[[]]")))

	var e *diag.Error
	if !errors.As(err, &e) || e.ID != diag.NestedTooDeep {
		t.Fatalf("error: %v", err)
	}

	if e.Pos == nil || e.Pos.Col != 2 {
		t.Errorf("pos: %+v", e.Pos)
	}
}

func TestCompileOps(t *testing.T) {
	ctx := context.Background()

	ops := []ir.Op{
		ir.Set{V: 65},
		ir.Right{N: 30},
		ir.Left{N: 30},
		ir.Write{},
	}

	for _, be := range arch.All() {
		c := New()

		code, err := c.Compile(ctx, be, tapeAddr, ops)
		if err != nil {
			t.Errorf("%v: %v", be.Name(), err)
		}

		if len(code) == 0 {
			t.Errorf("%v: no code", be.Name())
		}
	}
}

func TestGrow(t *testing.T) {
	b := grow(nil, 10)
	if cap(b)%0x1000 != 0 || cap(b) < 10 {
		t.Errorf("cap: %d", cap(b))
	}

	b = append(b, make([]byte, 100)...)
	g := grow(b, 10)

	if len(g) != 100 || cap(g) < 110 {
		t.Errorf("len %d cap %d", len(g), cap(g))
	}
}
