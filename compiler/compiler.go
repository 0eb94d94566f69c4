package compiler

import (
	"context"
	"os"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/eliminmax/eambfc-sub000/compiler/arch"
	"github.com/eliminmax/eambfc-sub000/compiler/back"
	"github.com/eliminmax/eambfc-sub000/compiler/diag"
	"github.com/eliminmax/eambfc-sub000/compiler/elf"
	"github.com/eliminmax/eambfc-sub000/compiler/front"
)

type (
	Config struct {
		Arch       string
		Optimize   bool
		TapeBlocks uint64

		Extension string // source files must carry it; default .bf
		Suffix    string // appended to the stripped source name

		KeepFailed bool
	}
)

// CompileFile compiles one source file into an executable next to it.
func CompileFile(ctx context.Context, cfg Config, name string) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile file", "name", name, "arch", cfg.Arch, "optimize", cfg.Optimize)
	defer tr.Finish("err", &err)

	out, err := OutName(cfg, name)
	if err != nil {
		return err
	}

	text, err := os.ReadFile(name)
	if err != nil {
		return errors.Wrap(err, "read file")
	}

	tr.Printw("read file", "size", len(text), "out", out)

	obj, err := Compile(ctx, cfg, name, text)
	if err != nil {
		return err
	}

	err = os.WriteFile(out, obj, 0o755)
	if err != nil {
		if !cfg.KeepFailed {
			_ = os.Remove(out)
		}

		return errors.Wrap(err, "write executable")
	}

	return nil
}

// Compile turns source text into a complete ELF image.
func Compile(ctx context.Context, cfg Config, name string, text []byte) (obj []byte, err error) {
	be, err := arch.Get(cfg.Arch)
	if err != nil {
		return nil, err
	}

	blocks := cfg.TapeBlocks
	if blocks == 0 {
		blocks = 8
	}

	// the tape address is fixed, so tape sizing can be validated
	// before any code exists
	l, err := elf.Plan(be.Target(), blocks, 0)
	if err != nil {
		return nil, err
	}

	c := back.New()

	var code []byte

	if cfg.Optimize {
		ops, err := front.Build(ctx, text)
		if err != nil {
			return nil, err
		}

		code, err = c.Compile(ctx, be, int64(l.TapeAddr), ops)
		if err != nil {
			return nil, err
		}
	} else {
		code, err = c.CompileDirect(ctx, be, int64(l.TapeAddr), front.Tokens(text))
		if err != nil {
			return nil, err
		}
	}

	l, err = elf.Plan(be.Target(), blocks, len(code))
	if err != nil {
		return nil, err
	}

	tlog.SpanFromContext(ctx).Printw("code generated", "code", len(code), "entry", tlog.FormatNext("%#x"), l.Entry)

	return elf.Assemble(be.Target(), l, code), nil
}

// OutName derives the executable name: the source extension is
// stripped and the configured suffix appended.
func OutName(cfg Config, name string) (string, error) {
	ext := cfg.Extension
	if ext == "" {
		ext = ".bf"
	}

	base := strings.TrimSuffix(name, ext)
	if base == name || base == "" {
		return "", diag.New(diag.BadExtension, "source file %q does not end in %q", name, ext)
	}

	return base + cfg.Suffix, nil
}
