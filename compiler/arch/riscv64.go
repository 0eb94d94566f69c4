package arch

import (
	"encoding/binary"
	"math/bits"

	"github.com/eliminmax/eambfc-sub000/compiler/diag"
)

// riscv64 keeps the tape pointer in s0 and scratches through t1.
//
// RISC-V has no direct 64-bit load, so SetReg decomposes the value: a
// 12-bit value is one addi off x0 (the canonical zero idiom falls out of
// this as addi rd, x0, 0), a 32-bit value is lui plus addiw, and anything
// wider strips the low 12 bits, shifts the rest right by its trailing
// zeros and loads that recursively. Maximizing the shift keeps the head
// as short as possible, preferring a single short load over a lui pair.
type riscv64 struct{}

const (
	rvZero = Reg(0)
	rvT1   = Reg(6)
	rvS0   = Reg(8)
	rvA0   = Reg(10)
	rvA1   = Reg(11)
	rvA2   = Reg(12)
	rvA7   = Reg(17)
)

func (riscv64) Name() string { return "riscv64" }

func (riscv64) Syscalls() Syscalls {
	return Syscalls{Read: 63, Write: 64, Exit: 93}
}

func (riscv64) Regs() Regs {
	return Regs{SCNum: rvA7, Arg1: rvA0, Arg2: rvA1, Arg3: rvA2, TapePtr: rvS0}
}

func (riscv64) Target() Target {
	return Target{Machine: 0xf3, Flags: 0, Order: binary.LittleEndian, WordSize: 8}
}

func rv(b []byte, instr uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, instr)
}

func rvI(op, f3 uint32, rd, rs1 Reg, imm int64) uint32 {
	return op | uint32(rd)<<7 | f3<<12 | uint32(rs1)<<15 | uint32(imm&0xfff)<<20
}

func fitsInt12(v int64) bool { return v >= -0x800 && v < 0x800 }

func (x riscv64) SetReg(b []byte, r Reg, v int64) ([]byte, error) {
	return x.load(b, r, v), nil
}

func (x riscv64) load(b []byte, r Reg, v int64) []byte {
	if fitsInt12(v) {
		return rv(b, rvI(0x13, 0, r, rvZero, v)) // addi r, x0, v
	}

	if fitsInt32(v) {
		hi := (v + 0x800) >> 12
		lo := v - hi<<12

		// lui sign-extends bit 31 on rv64, so values near the top of
		// the positive 32-bit range need the sign-extending addiw to
		// fold the register back to the requested value
		b = rv(b, 0x37|uint32(r)<<7|uint32(hi&0xfffff)<<12) // lui
		if lo != 0 {
			b = rv(b, rvI(0x1b, 0, r, r, lo)) // addiw
		}

		return b
	}

	lo := v << 52 >> 52
	rest := v - lo
	sh := bits.TrailingZeros64(uint64(rest))

	b = x.load(b, r, rest>>sh)
	b = rv(b, rvI(0x13, 1, r, r, int64(sh))) // slli

	if lo != 0 {
		b = rv(b, rvI(0x13, 0, r, r, lo))
	}

	return b
}

func (riscv64) RegCopy(b []byte, dst, src Reg) []byte {
	return rv(b, rvI(0x13, 0, dst, src, 0)) // addi dst, src, 0
}

func (riscv64) Syscall(b []byte) []byte {
	return rv(b, 0x00000073) // ecall
}

func (riscv64) IncReg(b []byte, r Reg) []byte {
	return rv(b, rvI(0x13, 0, r, r, 1))
}

func (riscv64) DecReg(b []byte, r Reg) []byte {
	return rv(b, rvI(0x13, 0, r, r, -1))
}

func (x riscv64) AddReg(b []byte, r Reg, n int64) ([]byte, error) {
	if fitsInt12(n) {
		return rv(b, rvI(0x13, 0, r, r, n)), nil
	}

	b = x.load(b, rvT1, n)
	b = rv(b, 0x33|uint32(r)<<7|uint32(r)<<15|uint32(rvT1)<<20) // add r, r, t1

	return b, nil
}

func (x riscv64) SubReg(b []byte, r Reg, n int64) ([]byte, error) {
	if fitsInt12(-n) {
		return rv(b, rvI(0x13, 0, r, r, -n)), nil
	}

	b = x.load(b, rvT1, n)
	b = rv(b, 0x40000033|uint32(r)<<7|uint32(r)<<15|uint32(rvT1)<<20) // sub r, r, t1

	return b, nil
}

func (x riscv64) IncByte(b []byte, r Reg) []byte {
	return x.AddByte(b, r, 1)
}

func (x riscv64) DecByte(b []byte, r Reg) []byte {
	return x.SubByte(b, r, 1)
}

func (riscv64) AddByte(b []byte, r Reg, n byte) []byte {
	b = rv(b, rvI(0x03, 4, rvT1, r, 0)) // lbu t1, 0(r)
	b = rv(b, rvI(0x13, 0, rvT1, rvT1, int64(n)))
	b = rv(b, rvS(r, rvT1, 0)) // sb t1, 0(r)

	return b
}

func (riscv64) SubByte(b []byte, r Reg, n byte) []byte {
	b = rv(b, rvI(0x03, 4, rvT1, r, 0))
	b = rv(b, rvI(0x13, 0, rvT1, rvT1, -int64(n)))
	b = rv(b, rvS(r, rvT1, 0))

	return b
}

func (riscv64) ZeroByte(b []byte, r Reg) []byte {
	return rv(b, rvS(r, rvZero, 0)) // sb x0, 0(r)
}

func (riscv64) SetByte(b []byte, r Reg, v byte) []byte {
	b = rv(b, rvI(0x13, 0, rvT1, rvZero, int64(v)))
	b = rv(b, rvS(r, rvT1, 0))

	return b
}

// rvS encodes an S-type byte store with a 12-bit displacement.
func rvS(base, src Reg, imm int64) uint32 {
	return 0x23 | uint32(imm&0x1f)<<7 | uint32(base)<<15 | uint32(src)<<20 | uint32(imm>>5&0x7f)<<25
}

func (riscv64) PadSize() int { return 12 }

func (riscv64) PadLoopOpen(b []byte) []byte {
	b = rv(b, 0x00100073) // ebreak
	b = rv(b, 0x00000013) // nop
	b = rv(b, 0x00000013)

	return b
}

func (x riscv64) JumpOpen(b []byte, r Reg, index int, dist int64) error {
	blk, err := x.jump(nil, r, 1, dist) // skip jal when byte non-zero
	if err != nil {
		return err
	}

	patch(b, index, blk, x.PadSize())

	return nil
}

func (x riscv64) JumpClose(b []byte, r Reg, dist int64) ([]byte, error) {
	return x.jump(b, r, 0, dist) // skip jal when byte zero
}

// jump emits lbu t1, 0(r), a two-word branch over the jump when the
// inverse condition holds, then jal x0 covering dist. Conditional
// branches only reach ±4 KiB, so the real jump rides on jal's ±1 MiB.
func (riscv64) jump(b []byte, r Reg, skipF3 uint32, dist int64) ([]byte, error) {
	off := dist + 4 // jal sits one word before the block end

	if off < -(1<<20) || off >= 1<<20 {
		return b, diag.New(diag.JumpTooLong, "jump distance %d exceeds ±1 MiB", dist)
	}

	b = rv(b, rvI(0x03, 4, rvT1, r, 0))
	b = rv(b, 0x63|skipF3<<12|uint32(rvT1)<<15|4<<8) // b<cond> t1, x0, +8
	b = rv(b, rvJ(off))

	return b, nil
}

func rvJ(off int64) uint32 {
	o := uint32(off)

	return 0x6f |
		(o>>12&0xff)<<12 |
		(o>>11&1)<<20 |
		(o>>1&0x3ff)<<21 |
		(o>>20&1)<<31
}
