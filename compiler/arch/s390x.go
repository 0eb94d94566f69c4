package arch

import (
	"encoding/binary"

	"github.com/eliminmax/eambfc-sub000/compiler/diag"
)

// s390x is the big-endian z/Architecture backend. The kernel takes the
// syscall number in r1 (svc 0 form); the tape pointer lives in r8 and
// byte traffic goes through r5.
//
// SetReg ladder: xgr (4 bytes) for zero, lghi (4) for 16-bit signed,
// lgfi (6) for 32-bit signed, llilf (6) for 32-bit unsigned, and
// llilf+iihf (12) for full 64-bit values.
type s390x struct{}

const (
	zR1 = Reg(1)
	zR2 = Reg(2)
	zR3 = Reg(3)
	zR4 = Reg(4)
	zR5 = Reg(5)
	zR8 = Reg(8)
)

func (s390x) Name() string { return "s390x" }

func (s390x) Syscalls() Syscalls {
	return Syscalls{Read: 3, Write: 4, Exit: 1}
}

func (s390x) Regs() Regs {
	return Regs{SCNum: zR1, Arg1: zR2, Arg2: zR3, Arg3: zR4, TapePtr: zR8}
}

func (s390x) Target() Target {
	return Target{Machine: 0x16, Flags: 0, Order: binary.BigEndian, WordSize: 8}
}

func (s390x) SetReg(b []byte, r Reg, v int64) ([]byte, error) {
	switch {
	case v == 0:
		b = append(b, 0xb9, 0x82, 0x00, byte(r)<<4|byte(r)) // xgr r, r
	case fitsInt16(v):
		b = append(b, 0xa7, byte(r)<<4|0x9) // lghi
		b = binary.BigEndian.AppendUint16(b, uint16(v))
	case fitsInt32(v):
		b = append(b, 0xc0, byte(r)<<4|0x1) // lgfi
		b = binary.BigEndian.AppendUint32(b, uint32(v))
	default:
		b = append(b, 0xc0, byte(r)<<4|0xf) // llilf
		b = binary.BigEndian.AppendUint32(b, uint32(v))

		if hi := uint32(uint64(v) >> 32); hi != 0 {
			b = append(b, 0xc0, byte(r)<<4|0x8) // iihf
			b = binary.BigEndian.AppendUint32(b, hi)
		}
	}

	return b, nil
}

func (s390x) RegCopy(b []byte, dst, src Reg) []byte {
	return append(b, 0xb9, 0x04, 0x00, byte(dst)<<4|byte(src)) // lgr
}

func (s390x) Syscall(b []byte) []byte {
	return append(b, 0x0a, 0x00) // svc 0
}

func (x s390x) IncReg(b []byte, r Reg) []byte {
	b, _ = x.AddReg(b, r, 1)
	return b
}

func (x s390x) DecReg(b []byte, r Reg) []byte {
	b, _ = x.AddReg(b, r, -1)
	return b
}

func (x s390x) AddReg(b []byte, r Reg, n int64) ([]byte, error) {
	switch {
	case n == 0:
	case fitsInt16(n):
		b = append(b, 0xa7, byte(r)<<4|0xb) // aghi
		b = binary.BigEndian.AppendUint16(b, uint16(n))
	case fitsInt32(n):
		b = append(b, 0xc2, byte(r)<<4|0x8) // agfi
		b = binary.BigEndian.AppendUint32(b, uint32(n))
	default:
		b, _ = x.SetReg(b, zR5, n)
		b = append(b, 0xb9, 0x08, 0x00, byte(r)<<4|byte(zR5)) // agr
	}

	return b, nil
}

func (x s390x) SubReg(b []byte, r Reg, n int64) ([]byte, error) {
	if fitsInt16(-n) || fitsInt32(-n) {
		return x.AddReg(b, r, -n)
	}

	b, _ = x.SetReg(b, zR5, n)
	b = append(b, 0xb9, 0x09, 0x00, byte(r)<<4|byte(zR5)) // sgr

	return b, nil
}

func (x s390x) IncByte(b []byte, r Reg) []byte {
	return x.AddByte(b, r, 1)
}

func (x s390x) DecByte(b []byte, r Reg) []byte {
	return x.SubByte(b, r, 1)
}

func (x s390x) AddByte(b []byte, r Reg, n byte) []byte {
	return x.addByte(b, r, int16(n))
}

func (x s390x) SubByte(b []byte, r Reg, n byte) []byte {
	return x.addByte(b, r, -int16(n))
}

// addByte routes the cell byte through r5; the store truncates, so the
// mod-256 wrap is free.
func (s390x) addByte(b []byte, r Reg, n int16) []byte {
	b = append(b, 0xe3, byte(zR5)<<4, byte(r)<<4, 0x00, 0x00, 0x90) // llgc r5, 0(r)
	b = append(b, 0xa7, byte(zR5)<<4|0xb)                           // aghi r5, n
	b = binary.BigEndian.AppendUint16(b, uint16(n))
	b = append(b, 0x42, byte(zR5)<<4, byte(r)<<4, 0x00) // stc r5, 0(r)

	return b
}

func (x s390x) ZeroByte(b []byte, r Reg) []byte {
	return x.SetByte(b, r, 0)
}

func (s390x) SetByte(b []byte, r Reg, v byte) []byte {
	return append(b, 0x92, v, byte(r)<<4, 0x00) // mvi 0(r), v
}

func (s390x) PadSize() int { return 10 }

func (s390x) PadLoopOpen(b []byte) []byte {
	// 0x0000 raises an operation exception; bcr 0,0 is the nop
	return append(b, 0x00, 0x00, 0x07, 0x00, 0x07, 0x00, 0x07, 0x00, 0x07, 0x00)
}

func (x s390x) JumpOpen(b []byte, r Reg, index int, dist int64) error {
	blk, err := x.jump(nil, r, 0x8, dist) // branch on equal
	if err != nil {
		return err
	}

	patch(b, index, blk, x.PadSize())

	return nil
}

func (x s390x) JumpClose(b []byte, r Reg, dist int64) ([]byte, error) {
	return x.jump(b, r, 0x6, dist) // branch on not equal
}

// jump emits cli 0(r), 0 then brcl. The brcl offset counts halfwords
// from the brcl itself, four bytes into the block.
func (s390x) jump(b []byte, r Reg, mask byte, dist int64) ([]byte, error) {
	rel := (dist + 6) / 2

	if !fitsInt32(rel) {
		return b, diag.New(diag.JumpTooLong, "jump distance %d exceeds ±4 GiB", dist)
	}

	b = append(b, 0x95, 0x00, byte(r)<<4, 0x00) // cli 0(r), 0
	b = append(b, 0xc0, mask<<4|0x4)            // brcl mask, rel
	b = binary.BigEndian.AppendUint32(b, uint32(rel))

	return b, nil
}
