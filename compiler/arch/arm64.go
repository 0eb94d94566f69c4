package arch

import (
	"encoding/binary"

	"github.com/eliminmax/eambfc-sub000/compiler/diag"
)

// arm64 keeps the tape pointer in callee-saved x19 and scratches through
// w17 for byte loads.
//
// SetReg emits one MOVZ/MOVN plus one MOVK per remaining halfword,
// choosing whichever of the two bases covers more halfwords: 4 bytes per
// halfword that differs from the base pattern, minimum 4.
type arm64 struct{}

const (
	x0  = Reg(0)
	x1  = Reg(1)
	x2  = Reg(2)
	x8  = Reg(8)
	x17 = Reg(17)
	x19 = Reg(19)

	xzr = Reg(31)
)

func (arm64) Name() string { return "arm64" }

func (arm64) Syscalls() Syscalls {
	return Syscalls{Read: 63, Write: 64, Exit: 93}
}

func (arm64) Regs() Regs {
	return Regs{SCNum: x8, Arg1: x0, Arg2: x1, Arg3: x2, TapePtr: x19}
}

func (arm64) Target() Target {
	return Target{Machine: 0xb7, Flags: 0, Order: binary.LittleEndian, WordSize: 8}
}

func a64(b []byte, instr uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, instr)
}

func (arm64) SetReg(b []byte, r Reg, v int64) ([]byte, error) {
	if v == 0 {
		return a64(b, 0xd2800000|uint32(r)), nil // movz r, #0
	}

	var hw [4]uint16
	zero, full := 0, 0

	for i := range hw {
		hw[i] = uint16(uint64(v) >> (16 * i))

		switch hw[i] {
		case 0:
			zero++
		case 0xffff:
			full++
		}
	}

	first := true

	if full > zero {
		// movn base: start from all-ones
		for i, h := range hw {
			if h == 0xffff {
				continue
			}

			if first {
				b = a64(b, 0x92800000|uint32(i)<<21|uint32(^h)<<5|uint32(r))
				first = false

				continue
			}

			b = a64(b, 0xf2800000|uint32(i)<<21|uint32(h)<<5|uint32(r))
		}

		if first { // v == -1
			b = a64(b, 0x92800000|uint32(r)) // movn r, #0
		}

		return b, nil
	}

	for i, h := range hw {
		if h == 0 {
			continue
		}

		if first {
			b = a64(b, 0xd2800000|uint32(i)<<21|uint32(h)<<5|uint32(r))
			first = false

			continue
		}

		b = a64(b, 0xf2800000|uint32(i)<<21|uint32(h)<<5|uint32(r))
	}

	return b, nil
}

func (arm64) RegCopy(b []byte, dst, src Reg) []byte {
	return a64(b, 0xaa0003e0|uint32(src)<<16|uint32(dst)) // orr dst, xzr, src
}

func (arm64) Syscall(b []byte) []byte {
	return a64(b, 0xd4000001) // svc #0
}

func (arm64) IncReg(b []byte, r Reg) []byte {
	return a64(b, 0x91000000|1<<10|uint32(r)<<5|uint32(r))
}

func (arm64) DecReg(b []byte, r Reg) []byte {
	return a64(b, 0xd1000000|1<<10|uint32(r)<<5|uint32(r))
}

func (x arm64) AddReg(b []byte, r Reg, n int64) ([]byte, error) {
	return x.addSub(b, r, n, 0x91000000, 0x8b000000)
}

func (x arm64) SubReg(b []byte, r Reg, n int64) ([]byte, error) {
	return x.addSub(b, r, n, 0xd1000000, 0xcb000000)
}

func (x arm64) addSub(b []byte, r Reg, n int64, imm, reg uint32) ([]byte, error) {
	switch {
	case n == 0:
	case n > 0 && n < 1<<12:
		b = a64(b, imm|uint32(n)<<10|uint32(r)<<5|uint32(r))
	case n > 0 && n < 1<<24 && n&0xfff == 0:
		b = a64(b, imm|1<<22|uint32(n>>12)<<10|uint32(r)<<5|uint32(r))
	case n > 0 && n < 1<<24:
		b = a64(b, imm|1<<22|uint32(n>>12)<<10|uint32(r)<<5|uint32(r))
		b = a64(b, imm|uint32(n&0xfff)<<10|uint32(r)<<5|uint32(r))
	default:
		b, _ = x.SetReg(b, x17, n)
		b = a64(b, reg|uint32(x17)<<16|uint32(r)<<5|uint32(r))
	}

	return b, nil
}

func (arm64) IncByte(b []byte, r Reg) []byte {
	b = a64(b, 0x39400000|uint32(r)<<5|uint32(x17)) // ldrb w17, [r]
	b = a64(b, 0x11000000|1<<10|uint32(x17)<<5|uint32(x17))
	b = a64(b, 0x39000000|uint32(r)<<5|uint32(x17)) // strb w17, [r]

	return b
}

func (arm64) DecByte(b []byte, r Reg) []byte {
	b = a64(b, 0x39400000|uint32(r)<<5|uint32(x17))
	b = a64(b, 0x51000000|1<<10|uint32(x17)<<5|uint32(x17))
	b = a64(b, 0x39000000|uint32(r)<<5|uint32(x17))

	return b
}

func (arm64) AddByte(b []byte, r Reg, n byte) []byte {
	b = a64(b, 0x39400000|uint32(r)<<5|uint32(x17))
	b = a64(b, 0x11000000|uint32(n)<<10|uint32(x17)<<5|uint32(x17))
	b = a64(b, 0x39000000|uint32(r)<<5|uint32(x17))

	return b
}

func (arm64) SubByte(b []byte, r Reg, n byte) []byte {
	b = a64(b, 0x39400000|uint32(r)<<5|uint32(x17))
	b = a64(b, 0x51000000|uint32(n)<<10|uint32(x17)<<5|uint32(x17))
	b = a64(b, 0x39000000|uint32(r)<<5|uint32(x17))

	return b
}

func (arm64) ZeroByte(b []byte, r Reg) []byte {
	return a64(b, 0x39000000|uint32(r)<<5|uint32(xzr)) // strb wzr, [r]
}

func (x arm64) SetByte(b []byte, r Reg, v byte) []byte {
	b = a64(b, 0xd2800000|uint32(v)<<5|uint32(x17)) // movz x17, #v
	b = a64(b, 0x39000000|uint32(r)<<5|uint32(x17))

	return b
}

func (arm64) PadSize() int { return 8 }

func (arm64) PadLoopOpen(b []byte) []byte {
	b = a64(b, 0xd4200000) // brk #0
	b = a64(b, 0xd503201f) // nop

	return b
}

func (x arm64) JumpOpen(b []byte, r Reg, index int, dist int64) error {
	blk, err := x.jump(nil, r, 0x34000000, dist) // cbz
	if err != nil {
		return err
	}

	patch(b, index, blk, x.PadSize())

	return nil
}

func (x arm64) JumpClose(b []byte, r Reg, dist int64) ([]byte, error) {
	return x.jump(b, r, 0x35000000, dist) // cbnz
}

// jump emits ldrb w17, [r] followed by a compare-and-branch covering
// dist. The branch offset counts from the branch instruction itself,
// one word into the block.
func (arm64) jump(b []byte, r Reg, op uint32, dist int64) ([]byte, error) {
	off := dist + 4

	if off < -(1<<20) || off >= 1<<20 {
		return b, diag.New(diag.JumpTooLong, "jump distance %d exceeds ±1 MiB", dist)
	}

	b = a64(b, 0x39400000|uint32(r)<<5|uint32(x17))
	b = a64(b, op|(uint32(off>>2)&0x7ffff)<<5|uint32(x17))

	return b, nil
}
