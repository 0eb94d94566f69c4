// Package elf assembles the final executable: a fixed 256-byte header
// region (file header, two program headers, zero padding) immediately
// followed by the generated code.
//
// Segment 0 is the tape: read-write, not file-backed, at a fixed
// virtual address. Segment 1 is the code: read-execute, backed by the
// whole file, at a base rounded up past the tape's end. Every
// multi-byte field is serialized explicitly in the target's byte order.
package elf

import (
	"encoding/binary"

	"github.com/eliminmax/eambfc-sub000/compiler/arch"
	"github.com/eliminmax/eambfc-sub000/compiler/diag"
)

type (
	Layout struct {
		TapeAddr uint64
		TapeSize uint64
		LoadAddr uint64
		Entry    uint64
	}
)

const (
	// HeaderSize is the fixed header region; code starts right after.
	HeaderSize = 256

	// BlockSize is the tape sizing granularity.
	BlockSize = 4096

	tapeAddr = 0x10000
	pageSize = 0x1000
)

// ceiling is the highest virtual address the image may reach.
func ceiling(t arch.Target) uint64 {
	if t.WordSize == 4 {
		return 1 << 31
	}

	return 1 << 46
}

// MaxTapeBlocks leaves the upper half of the addressable range for the
// code segment.
func MaxTapeBlocks(t arch.Target) uint64 {
	return (ceiling(t)/2 - tapeAddr) / BlockSize
}

// Plan computes the image layout for a tape of tapeBlocks 4 KiB blocks
// and codeLen bytes of generated code.
func Plan(t arch.Target, tapeBlocks uint64, codeLen int) (Layout, error) {
	if tapeBlocks < 1 || tapeBlocks > MaxTapeBlocks(t) {
		return Layout{}, diag.New(diag.TapeTooLarge, "tape size %d blocks out of range 1..%d", tapeBlocks, MaxTapeBlocks(t))
	}

	l := Layout{
		TapeAddr: tapeAddr,
		TapeSize: tapeBlocks * BlockSize,
	}

	// round the tape's end up to the next 64 KiB so the segments
	// cannot overlap
	l.LoadAddr = (l.TapeAddr + l.TapeSize + 0xffff) &^ 0xffff
	l.Entry = l.LoadAddr + HeaderSize

	if l.Entry+uint64(codeLen) > ceiling(t) {
		return Layout{}, diag.New(diag.CodeTooLarge, "code segment end %#x beyond %#x", l.Entry+uint64(codeLen), ceiling(t))
	}

	return l, nil
}

// Assemble serializes the headers and appends the code.
func Assemble(t arch.Target, l Layout, code []byte) []byte {
	b := make([]byte, 0, HeaderSize+len(code))

	class := byte(2)
	if t.WordSize == 4 {
		class = 1
	}

	data := byte(1)
	if t.Order == arch.ByteOrder(binary.BigEndian) {
		data = 2
	}

	b = append(b, 0x7f, 'E', 'L', 'F', class, data, 1, 0, 0)
	b = append(b, make([]byte, 7)...)

	if class == 2 {
		b = ehdr64(b, t, l, len(code))
	} else {
		b = ehdr32(b, t, l, len(code))
	}

	b = append(b, make([]byte, HeaderSize-len(b))...)
	b = append(b, code...)

	return b
}

func ehdr64(b []byte, t arch.Target, l Layout, codeLen int) []byte {
	o := t.Order
	filesz := uint64(HeaderSize + codeLen)

	b = o.AppendUint16(b, 2) // ET_EXEC
	b = o.AppendUint16(b, t.Machine)
	b = o.AppendUint32(b, 1)
	b = o.AppendUint64(b, l.Entry)
	b = o.AppendUint64(b, 64) // phoff
	b = o.AppendUint64(b, 0)  // no sections
	b = o.AppendUint32(b, t.Flags)
	b = o.AppendUint16(b, 64)
	b = o.AppendUint16(b, 56)
	b = o.AppendUint16(b, 2)
	b = o.AppendUint16(b, 0)
	b = o.AppendUint16(b, 0)
	b = o.AppendUint16(b, 0)

	// tape: RW, not file-backed
	b = o.AppendUint32(b, 1)
	b = o.AppendUint32(b, 6)
	b = o.AppendUint64(b, 0)
	b = o.AppendUint64(b, l.TapeAddr)
	b = o.AppendUint64(b, l.TapeAddr)
	b = o.AppendUint64(b, 0)
	b = o.AppendUint64(b, l.TapeSize)
	b = o.AppendUint64(b, pageSize)

	// code: RX, the whole file
	b = o.AppendUint32(b, 1)
	b = o.AppendUint32(b, 5)
	b = o.AppendUint64(b, 0)
	b = o.AppendUint64(b, l.LoadAddr)
	b = o.AppendUint64(b, l.LoadAddr)
	b = o.AppendUint64(b, filesz)
	b = o.AppendUint64(b, filesz)
	b = o.AppendUint64(b, pageSize)

	return b
}

func ehdr32(b []byte, t arch.Target, l Layout, codeLen int) []byte {
	o := t.Order
	filesz := uint32(HeaderSize + codeLen)

	b = o.AppendUint16(b, 2)
	b = o.AppendUint16(b, t.Machine)
	b = o.AppendUint32(b, 1)
	b = o.AppendUint32(b, uint32(l.Entry))
	b = o.AppendUint32(b, 52) // phoff
	b = o.AppendUint32(b, 0)
	b = o.AppendUint32(b, t.Flags)
	b = o.AppendUint16(b, 52)
	b = o.AppendUint16(b, 32)
	b = o.AppendUint16(b, 2)
	b = o.AppendUint16(b, 0)
	b = o.AppendUint16(b, 0)
	b = o.AppendUint16(b, 0)

	b = o.AppendUint32(b, 1)
	b = o.AppendUint32(b, 0)
	b = o.AppendUint32(b, uint32(l.TapeAddr))
	b = o.AppendUint32(b, uint32(l.TapeAddr))
	b = o.AppendUint32(b, 0)
	b = o.AppendUint32(b, uint32(l.TapeSize))
	b = o.AppendUint32(b, 6)
	b = o.AppendUint32(b, pageSize)

	b = o.AppendUint32(b, 1)
	b = o.AppendUint32(b, 0)
	b = o.AppendUint32(b, uint32(l.LoadAddr))
	b = o.AppendUint32(b, uint32(l.LoadAddr))
	b = o.AppendUint32(b, filesz)
	b = o.AppendUint32(b, filesz)
	b = o.AppendUint32(b, 5)
	b = o.AppendUint32(b, pageSize)

	return b
}
