package compiler

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"tlog.app/go/errors"

	"github.com/eliminmax/eambfc-sub000/compiler/diag"
)

func TestOutName(t *testing.T) {
	for _, tc := range []struct {
		cfg  Config
		name string
		want string
	}{
		{name: "hello.bf", want: "hello"},
		{name: "dir/hello.bf", want: "dir/hello"},
		{cfg: Config{Suffix: ".elf"}, name: "hello.bf", want: "hello.elf"},
		{cfg: Config{Extension: ".b"}, name: "hello.b", want: "hello"},
	} {
		out, err := OutName(tc.cfg, tc.name)
		if err != nil {
			t.Errorf("%v: %v", tc.name, err)
			continue
		}

		if out != tc.want {
			t.Errorf("%v: got %v  want %v", tc.name, out, tc.want)
		}
	}
}

func TestOutNameRejects(t *testing.T) {
	for _, name := range []string{"hello.b", "hello", ".bf"} {
		_, err := OutName(Config{}, name)

		var e *diag.Error
		if !errors.As(err, &e) || e.ID != diag.BadExtension {
			t.Errorf("%v: %v", name, err)
		}
	}
}

func TestCompileAllArches(t *testing.T) {
	ctx := context.Background()

	for _, a := range []string{"amd64", "i386", "arm64", "riscv64", "s390x"} {
		for _, opt := range []bool{false, true} {
			obj, err := Compile(ctx, Config{Arch: a, Optimize: opt}, "t.bf", []byte("+[->+<]>."))
			if err != nil {
				t.Errorf("%v optimize=%v: %v", a, opt, err)
				continue
			}

			if !bytes.HasPrefix(obj, []byte{0x7f, 'E', 'L', 'F'}) {
				t.Errorf("%v: not an elf image", a)
			}

			if len(obj) <= 256 {
				t.Errorf("%v: no code after headers: %d bytes", a, len(obj))
			}
		}
	}
}

func TestCompileUnknownArch(t *testing.T) {
	ctx := context.Background()

	_, err := Compile(ctx, Config{Arch: "vax"}, "t.bf", nil)

	var e *diag.Error
	if !errors.As(err, &e) || e.ID != diag.UnknownArch {
		t.Errorf("error: %v", err)
	}
}

func TestCompileReportsSource(t *testing.T) {
	ctx := context.Background()

	// direct path: both closers and the leftover opener
	_, err := Compile(ctx, Config{Arch: "amd64"}, "t.bf", []byte("]]["))

	var errs diag.Errors
	if !errors.As(err, &errs) || len(errs) != 3 {
		t.Fatalf("error: %v", err)
	}

	// optimized path stops at the first
	_, err = Compile(ctx, Config{Arch: "amd64", Optimize: true}, "t.bf", []byte("]]["))

	var e *diag.Error
	if !errors.As(err, &e) || e.ID != diag.UnmatchedClose {
		t.Errorf("error: %v", err)
	}
}

// compileTo writes src to a file, compiles it and returns the
// executable's path.
func compileTo(t *testing.T, cfg Config, src string) string {
	t.Helper()

	dir := t.TempDir()
	name := filepath.Join(dir, "prog.bf")

	err := os.WriteFile(name, []byte(src), 0o644)
	if err != nil {
		t.Fatalf("write source: %v", err)
	}

	ctx := context.Background()

	err = CompileFile(ctx, cfg, name)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	return filepath.Join(dir, "prog")
}

func native(t *testing.T) {
	t.Helper()

	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skip("needs native linux/amd64 execution")
	}
}

func TestRunArith(t *testing.T) {
	native(t)

	// 5 * 13 = 65 = 'A'
	bin := compileTo(t, Config{Arch: "amd64"}, "+++++[->+++++++++++++<]>.")

	out, err := exec.Command(bin).Output()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if string(out) != "A" {
		t.Errorf("output: %q", out)
	}
}

func TestRunEcho(t *testing.T) {
	native(t)

	bin := compileTo(t, Config{Arch: "amd64"}, ",.")

	cmd := exec.Command(bin)
	cmd.Stdin = strings.NewReader("A")

	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if string(out) != "A" {
		t.Errorf("output: %q", out)
	}
}

func TestRunEchoLoop(t *testing.T) {
	native(t)

	// reading past EOF leaves the cell untouched, so the input must end
	// in a zero byte for the loop to exit
	bin := compileTo(t, Config{Arch: "amd64"}, ",[.,]")

	cmd := exec.Command(bin)
	cmd.Stdin = strings.NewReader("hi\x00")

	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if string(out) != "hi" {
		t.Errorf("output: %q", out)
	}
}

func TestRunOptimizedAgrees(t *testing.T) {
	native(t)

	src := "++[->+++[->++++++++++<]<]>>+++++." // 2*3*10 + 5 = 65

	var outs []string

	for _, opt := range []bool{false, true} {
		bin := compileTo(t, Config{Arch: "amd64", Optimize: opt}, src)

		out, err := exec.Command(bin).Output()
		if err != nil {
			t.Fatalf("optimize=%v: run: %v", opt, err)
		}

		outs = append(outs, string(out))
	}

	if outs[0] != outs[1] {
		t.Errorf("direct %q  optimized %q", outs[0], outs[1])
	}

	if outs[0] != "A" {
		t.Errorf("output: %q", outs[0])
	}
}

func TestRunCellWrap(t *testing.T) {
	native(t)

	// 256 pluses wrap to zero; the loop must not run
	src := strings.Repeat("+", 256) + "[.]" + strings.Repeat("+", 65) + "."

	bin := compileTo(t, Config{Arch: "amd64", Optimize: true}, src)

	out, err := exec.Command(bin).Output()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if string(out) != "A" {
		t.Errorf("output: %q", out)
	}
}

func TestCompileFileRejectsExtension(t *testing.T) {
	ctx := context.Background()

	err := CompileFile(ctx, Config{Arch: "amd64"}, "prog.txt")

	var e *diag.Error
	if !errors.As(err, &e) || e.ID != diag.BadExtension {
		t.Errorf("error: %v", err)
	}
}
