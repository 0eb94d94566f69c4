package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/xyproto/env/v2"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/eliminmax/eambfc-sub000/compiler"
	"github.com/eliminmax/eambfc-sub000/compiler/diag"
)

func main() {
	cli.RunAndExit(app(), os.Args, os.Environ())
}

func app() *cli.Command {
	return &cli.Command{
		Name:        "eambfc",
		Description: "eambfc compiles brainfuck source files into native ELF executables",
		Action:      compileAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("arch,a", env.Str("EAMBFC_ARCH", "amd64"), "target architecture"),
			cli.NewFlag("optimize,O", env.Bool("EAMBFC_OPTIMIZE"), "run the peephole optimizer"),
			cli.NewFlag("tape-blocks,t", env.Int("EAMBFC_TAPE_BLOCKS", 8), "tape size in 4 KiB blocks"),
			cli.NewFlag("extension,e", ".bf", "required source file extension"),
			cli.NewFlag("suffix,s", "", "output file suffix"),
			cli.NewFlag("json,j", false, "render diagnostics as json"),
			cli.NewFlag("keep-failed,k", false, "keep output of failed compiles"),
			cli.NewFlag("continue,c", false, "keep going after a failed file"),

			cli.FlagfileFlag,
			cli.HelpFlag,
		},
	}
}

func compileAct(c *cli.Command) (err error) {
	if len(c.Args) == 0 {
		return errors.New("no source files")
	}

	cfg := compiler.Config{
		Arch:       c.String("arch"),
		Optimize:   c.Bool("optimize"),
		TapeBlocks: uint64(c.Int("tape-blocks")),
		Extension:  c.String("extension"),
		Suffix:     c.String("suffix"),
		KeepFailed: c.Bool("keep-failed"),
	}

	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	failed := 0

	for _, a := range c.Args {
		err := compiler.CompileFile(ctx, cfg, a)
		if err == nil {
			continue
		}

		failed++
		render(os.Stderr, c, a, err)

		if !c.Bool("continue") {
			return errors.Wrap(err, "compile %v", a)
		}
	}

	if failed != 0 {
		return errors.New("%d of %d files failed", failed, len(c.Args))
	}

	return nil
}

// render prints each diagnostic on its own line, as text or json.
func render(w io.Writer, c *cli.Command, name string, err error) {
	var errs diag.Errors

	var e *diag.Error
	switch {
	case errors.As(err, &errs):
	case errors.As(err, &e):
		errs = diag.Errors{e}
	}

	if !c.Bool("json") {
		if len(errs) == 0 {
			fmt.Fprintf(w, "%s: %v\n", name, err)
			return
		}

		for _, e := range errs {
			fmt.Fprintf(w, "%s: %v\n", name, e)
		}

		return
	}

	enc := json.NewEncoder(w)

	if len(errs) == 0 {
		_ = enc.Encode(struct {
			File    string `json:"file"`
			Message string `json:"message"`
		}{File: name, Message: err.Error()})

		return
	}

	for _, e := range errs {
		_ = enc.Encode(struct {
			File string `json:"file"`
			*diag.Error
		}{File: name, Error: e})
	}
}
