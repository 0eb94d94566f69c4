package arch

import (
	"encoding/binary"

	"github.com/eliminmax/eambfc-sub000/compiler/diag"
)

// i386 targets 32-bit x86 Linux via int 0x80. The tape pointer lives in
// esi, clear of the three syscall argument registers. Output is
// ELFCLASS32 (word size 4); 64-bit immediates that do not fit a 32-bit
// register are truncated and reported as CODE_TOO_LARGE.
//
// SetReg ladder: xor r32,r32 (2 bytes) for zero, mov r32,imm32 (5)
// otherwise.
type i386 struct{}

const (
	eax = Reg(0)
	ecx = Reg(1)
	edx = Reg(2)
	ebx = Reg(3)
	esi = Reg(6)
)

func (i386) Name() string { return "i386" }

func (i386) Syscalls() Syscalls {
	return Syscalls{Read: 3, Write: 4, Exit: 1}
}

func (i386) Regs() Regs {
	return Regs{SCNum: eax, Arg1: ebx, Arg2: ecx, Arg3: edx, TapePtr: esi}
}

func (i386) Target() Target {
	return Target{Machine: 0x03, Flags: 0, Order: binary.LittleEndian, WordSize: 4}
}

func (i386) SetReg(b []byte, r Reg, v int64) ([]byte, error) {
	if v == 0 {
		return append(b, 0x31, 0xc0|byte(r)<<3|byte(r)), nil
	}

	var err error
	if !fitsInt32(v) && !fitsUint32(v) {
		err = diag.New(diag.CodeTooLarge, "immediate %#x truncated to 32 bits", uint64(v))
	}

	b = append(b, 0xb8+byte(r))
	b = binary.LittleEndian.AppendUint32(b, uint32(v))

	return b, err
}

func (i386) RegCopy(b []byte, dst, src Reg) []byte {
	return append(b, 0x89, 0xc0|byte(src)<<3|byte(dst))
}

func (i386) Syscall(b []byte) []byte {
	return append(b, 0xcd, 0x80) // int 0x80
}

func (i386) IncReg(b []byte, r Reg) []byte {
	return append(b, 0x40+byte(r))
}

func (i386) DecReg(b []byte, r Reg) []byte {
	return append(b, 0x48+byte(r))
}

func (i386) AddReg(b []byte, r Reg, n int64) ([]byte, error) {
	return addSub32(b, 0xc0, r, n)
}

func (i386) SubReg(b []byte, r Reg, n int64) ([]byte, error) {
	return addSub32(b, 0xe8, r, n)
}

func addSub32(b []byte, mod byte, r Reg, n int64) ([]byte, error) {
	switch {
	case n == 0:
		return b, nil
	case fitsInt8(n):
		return append(b, 0x83, mod|byte(r), byte(n)), nil
	}

	var err error
	if !fitsInt32(n) {
		err = diag.New(diag.CodeTooLarge, "displacement %d truncated to 32 bits", n)
	}

	b = append(b, 0x81, mod|byte(r))
	b = binary.LittleEndian.AppendUint32(b, uint32(n))

	return b, err
}

func (i386) IncByte(b []byte, r Reg) []byte {
	return append(b, 0xfe, byte(r))
}

func (i386) DecByte(b []byte, r Reg) []byte {
	return append(b, 0xfe, 0x08|byte(r))
}

func (i386) AddByte(b []byte, r Reg, n byte) []byte {
	return append(b, 0x80, byte(r), n)
}

func (i386) SubByte(b []byte, r Reg, n byte) []byte {
	return append(b, 0x80, 0x28|byte(r), n)
}

func (x i386) ZeroByte(b []byte, r Reg) []byte {
	return x.SetByte(b, r, 0)
}

func (i386) SetByte(b []byte, r Reg, v byte) []byte {
	return append(b, 0xc6, byte(r), v)
}

func (i386) PadSize() int { return 9 }

func (i386) PadLoopOpen(b []byte) []byte {
	return append(b, 0x0f, 0x0b, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90)
}

func (x i386) JumpOpen(b []byte, r Reg, index int, dist int64) error {
	blk, err := x.jump(nil, r, 0x84, dist)
	if err != nil {
		return err
	}

	patch(b, index, blk, x.PadSize())

	return nil
}

func (x i386) JumpClose(b []byte, r Reg, dist int64) ([]byte, error) {
	return x.jump(b, r, 0x85, dist)
}

func (i386) jump(b []byte, r Reg, cc byte, dist int64) ([]byte, error) {
	if !fitsInt32(dist) {
		return b, diag.New(diag.JumpTooLong, "jump distance %d exceeds ±2^31", dist)
	}

	b = append(b, 0x80, 0x38|byte(r), 0x00)
	b = append(b, 0x0f, cc)
	b = binary.LittleEndian.AppendUint32(b, uint32(dist))

	return b, nil
}
