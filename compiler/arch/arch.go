// Package arch holds the per-architecture machine-code backends.
//
// A Backend is an immutable table of code-emission primitives plus the
// numeric constants the rest of the compiler needs: syscall numbers,
// register roles and ELF identity. Backends carry no state and are safe
// to share across any number of concurrent compiles; all mutable state
// lives in the code buffer threaded through the emit calls.
package arch

import (
	"encoding/binary"
	"fmt"

	"github.com/eliminmax/eambfc-sub000/compiler/diag"
)

type (
	// Reg is an architecture register number.
	Reg uint8

	// Syscalls are the Linux syscall numbers for this architecture.
	Syscalls struct {
		Read, Write, Exit int64
	}

	// Regs assigns the five logical register roles.
	Regs struct {
		SCNum   Reg // syscall number
		Arg1    Reg
		Arg2    Reg
		Arg3    Reg
		TapePtr Reg
	}

	// ByteOrder is an endianness that can both put and append.
	ByteOrder interface {
		binary.ByteOrder
		binary.AppendByteOrder
	}

	// Target is the ELF-facing identity of a backend.
	Target struct {
		Machine  uint16
		Flags    uint32
		Order    ByteOrder
		WordSize int // address width in bytes: 8 or 4
	}

	// Backend emits machine code for one architecture. All primitives
	// append to b and return it, except JumpOpen which overwrites the
	// placeholder reserved earlier by PadLoopOpen.
	Backend interface {
		Name() string
		Syscalls() Syscalls
		Regs() Regs
		Target() Target

		// SetReg loads v using the shortest available encoding; zero
		// uses the architecture's canonical zeroing idiom. On targets
		// narrower than 64 bits the value is truncated and a
		// CODE_TOO_LARGE diagnostic returned alongside the bytes.
		SetReg(b []byte, r Reg, v int64) ([]byte, error)
		RegCopy(b []byte, dst, src Reg) []byte
		Syscall(b []byte) []byte

		IncReg(b []byte, r Reg) []byte
		DecReg(b []byte, r Reg) []byte
		AddReg(b []byte, r Reg, n int64) ([]byte, error)
		SubReg(b []byte, r Reg, n int64) ([]byte, error)

		IncByte(b []byte, r Reg) []byte
		DecByte(b []byte, r Reg) []byte
		AddByte(b []byte, r Reg, n byte) []byte
		SubByte(b []byte, r Reg, n byte) []byte
		ZeroByte(b []byte, r Reg) []byte
		SetByte(b []byte, r Reg, v byte) []byte

		// PadLoopOpen appends the fixed-size placeholder (a trap plus
		// no-ops) later replaced by JumpOpen. PadSize is its length.
		PadLoopOpen(b []byte) []byte
		PadSize() int

		// JumpOpen overwrites the placeholder at index with a branch
		// taken when the byte at r is zero, spanning dist bytes
		// forward. JumpClose appends the matching branch taken when
		// the byte is non-zero; dist is negative there.
		JumpOpen(b []byte, r Reg, index int, dist int64) error
		JumpClose(b []byte, r Reg, dist int64) ([]byte, error)
	}
)

var backends = []Backend{
	amd64{},
	i386{},
	arm64{},
	riscv64{},
	s390x{},
}

var aliases = map[string]string{
	"amd64":   "amd64",
	"x86_64":  "amd64",
	"x86-64":  "amd64",
	"x64":     "amd64",
	"i386":    "i386",
	"i486":    "i386",
	"i686":    "i386",
	"x86":     "i386",
	"arm64":   "arm64",
	"aarch64": "arm64",
	"riscv64": "riscv64",
	"rv64":    "riscv64",
	"s390x":   "s390x",
	"s390":    "s390x",
	"z":       "s390x",
}

// Get resolves a backend by name or alias.
func Get(name string) (Backend, error) {
	cn, ok := aliases[name]
	if !ok {
		return nil, diag.New(diag.UnknownArch, "unknown architecture %q", name)
	}

	for _, be := range backends {
		if be.Name() == cn {
			return be, nil
		}
	}

	panic(cn)
}

// All lists the registered backends.
func All() []Backend {
	return backends
}

// patch replaces the placeholder at index in place. The placeholder and
// the final instruction block being the same size is a hard contract:
// the buffer is never shifted.
func patch(b []byte, index int, blk []byte, pad int) {
	if len(blk) != pad {
		panic(fmt.Sprintf("jump block %d bytes, placeholder %d", len(blk), pad))
	}

	copy(b[index:index+pad], blk)
}

func fitsInt8(v int64) bool  { return v >= -0x80 && v < 0x80 }
func fitsInt16(v int64) bool { return v >= -0x8000 && v < 0x8000 }
func fitsInt32(v int64) bool { return v >= -0x80000000 && v < 0x80000000 }

func fitsUint32(v int64) bool { return uint64(v) <= 0xffffffff }
