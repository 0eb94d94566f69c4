package arch

import (
	"encoding/binary"

	"github.com/eliminmax/eambfc-sub000/compiler/diag"
)

// amd64 is the x86_64 backend. The tape pointer lives in rbx, which the
// Linux syscall ABI leaves untouched; rcx is scratch.
//
// SetReg ladder: xor r32,r32 (2 bytes) for zero, mov r32,imm32 (5) for
// values fitting 32 unsigned bits, mov r64,imm32 sign-extended (7), and
// movabs (10) for the rest.
type amd64 struct{}

const (
	rax = Reg(0)
	rcx = Reg(1)
	rdx = Reg(2)
	rbx = Reg(3)
	rsi = Reg(6)
	rdi = Reg(7)
)

func (amd64) Name() string { return "amd64" }

func (amd64) Syscalls() Syscalls {
	return Syscalls{Read: 0, Write: 1, Exit: 60}
}

func (amd64) Regs() Regs {
	return Regs{SCNum: rax, Arg1: rdi, Arg2: rsi, Arg3: rdx, TapePtr: rbx}
}

func (amd64) Target() Target {
	return Target{Machine: 0x3e, Flags: 0, Order: binary.LittleEndian, WordSize: 8}
}

func (amd64) SetReg(b []byte, r Reg, v int64) ([]byte, error) {
	switch {
	case v == 0:
		b = append(b, 0x31, 0xc0|byte(r)<<3|byte(r)) // xor r32, r32
	case fitsUint32(v):
		b = append(b, 0xb8+byte(r)) // mov r32, imm32
		b = binary.LittleEndian.AppendUint32(b, uint32(v))
	case fitsInt32(v):
		b = append(b, 0x48, 0xc7, 0xc0|byte(r)) // mov r64, simm32
		b = binary.LittleEndian.AppendUint32(b, uint32(v))
	default:
		b = append(b, 0x48, 0xb8+byte(r)) // movabs
		b = binary.LittleEndian.AppendUint64(b, uint64(v))
	}

	return b, nil
}

func (amd64) RegCopy(b []byte, dst, src Reg) []byte {
	return append(b, 0x48, 0x89, 0xc0|byte(src)<<3|byte(dst))
}

func (amd64) Syscall(b []byte) []byte {
	return append(b, 0x0f, 0x05)
}

func (amd64) IncReg(b []byte, r Reg) []byte {
	return append(b, 0x48, 0xff, 0xc0|byte(r))
}

func (amd64) DecReg(b []byte, r Reg) []byte {
	return append(b, 0x48, 0xff, 0xc8|byte(r))
}

func (x amd64) AddReg(b []byte, r Reg, n int64) ([]byte, error) {
	switch {
	case n == 0:
	case fitsInt8(n):
		b = append(b, 0x48, 0x83, 0xc0|byte(r), byte(n))
	case fitsInt32(n):
		b = append(b, 0x48, 0x81, 0xc0|byte(r))
		b = binary.LittleEndian.AppendUint32(b, uint32(n))
	default:
		b, _ = x.SetReg(b, rcx, n)
		b = append(b, 0x48, 0x01, 0xc8|byte(r)) // add r, rcx
	}

	return b, nil
}

func (x amd64) SubReg(b []byte, r Reg, n int64) ([]byte, error) {
	switch {
	case n == 0:
	case fitsInt8(n):
		b = append(b, 0x48, 0x83, 0xe8|byte(r), byte(n))
	case fitsInt32(n):
		b = append(b, 0x48, 0x81, 0xe8|byte(r))
		b = binary.LittleEndian.AppendUint32(b, uint32(n))
	default:
		b, _ = x.SetReg(b, rcx, n)
		b = append(b, 0x48, 0x29, 0xc8|byte(r)) // sub r, rcx
	}

	return b, nil
}

func (amd64) IncByte(b []byte, r Reg) []byte {
	return append(b, 0xfe, byte(r)) // inc byte [r]
}

func (amd64) DecByte(b []byte, r Reg) []byte {
	return append(b, 0xfe, 0x08|byte(r))
}

func (amd64) AddByte(b []byte, r Reg, n byte) []byte {
	return append(b, 0x80, byte(r), n)
}

func (amd64) SubByte(b []byte, r Reg, n byte) []byte {
	return append(b, 0x80, 0x28|byte(r), n)
}

func (x amd64) ZeroByte(b []byte, r Reg) []byte {
	return x.SetByte(b, r, 0)
}

func (amd64) SetByte(b []byte, r Reg, v byte) []byte {
	return append(b, 0xc6, byte(r), v) // mov byte [r], imm8
}

func (amd64) PadSize() int { return 9 }

func (amd64) PadLoopOpen(b []byte) []byte {
	// ud2 plus nops, same size as the cmp+jcc pair
	return append(b, 0x0f, 0x0b, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90)
}

func (x amd64) JumpOpen(b []byte, r Reg, index int, dist int64) error {
	blk, err := x.jump(nil, r, 0x84, dist) // jz
	if err != nil {
		return err
	}

	patch(b, index, blk, x.PadSize())

	return nil
}

func (x amd64) JumpClose(b []byte, r Reg, dist int64) ([]byte, error) {
	return x.jump(b, r, 0x85, dist) // jnz
}

func (amd64) jump(b []byte, r Reg, cc byte, dist int64) ([]byte, error) {
	if !fitsInt32(dist) {
		return b, diag.New(diag.JumpTooLong, "jump distance %d exceeds ±2^31", dist)
	}

	b = append(b, 0x80, 0x38|byte(r), 0x00) // cmp byte [r], 0
	b = append(b, 0x0f, cc)
	b = binary.LittleEndian.AppendUint32(b, uint32(dist))

	return b, nil
}
