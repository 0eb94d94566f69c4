package arch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmd64SetReg(t *testing.T) {
	var x amd64

	b, err := x.SetReg(nil, rbx, 0x10000)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xbb, 0x00, 0x00, 0x01, 0x00}, b, "mov ebx, imm32")

	b, err = x.SetReg(nil, rax, -1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x48, 0xc7, 0xc0, 0xff, 0xff, 0xff, 0xff}, b, "mov rax, simm32")

	b, err = x.SetReg(nil, rdi, 0x1_2345_6789)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x48, 0xbf, 0x89, 0x67, 0x45, 0x23, 0x01, 0x00, 0x00, 0x00}, b, "movabs rdi")
}

func TestAmd64Bytes(t *testing.T) {
	var x amd64

	assert.Equal(t, []byte{0xfe, 0x03}, x.IncByte(nil, rbx), "inc byte [rbx]")
	assert.Equal(t, []byte{0xfe, 0x0b}, x.DecByte(nil, rbx), "dec byte [rbx]")
	assert.Equal(t, []byte{0x80, 0x03, 0x05}, x.AddByte(nil, rbx, 5), "add byte [rbx], 5")
	assert.Equal(t, []byte{0x80, 0x2b, 0x05}, x.SubByte(nil, rbx, 5), "sub byte [rbx], 5")
	assert.Equal(t, []byte{0xc6, 0x03, 0x07}, x.SetByte(nil, rbx, 7), "mov byte [rbx], 7")
	assert.Equal(t, []byte{0xc6, 0x03, 0x00}, x.ZeroByte(nil, rbx), "mov byte [rbx], 0")
}

func TestAmd64Moves(t *testing.T) {
	var x amd64

	assert.Equal(t, []byte{0x48, 0x89, 0xde}, x.RegCopy(nil, rsi, rbx), "mov rsi, rbx")
	assert.Equal(t, []byte{0x48, 0xff, 0xc3}, x.IncReg(nil, rbx), "inc rbx")
	assert.Equal(t, []byte{0x48, 0xff, 0xcb}, x.DecReg(nil, rbx), "dec rbx")
	assert.Equal(t, []byte{0x0f, 0x05}, x.Syscall(nil), "syscall")

	b, err := x.AddReg(nil, rbx, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x48, 0x83, 0xc3, 0x64}, b, "add rbx, 100")

	b, err = x.SubReg(nil, rbx, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x48, 0x81, 0xeb, 0x00, 0x10, 0x00, 0x00}, b, "sub rbx, 0x1000")
}

func TestAmd64Jump(t *testing.T) {
	var x amd64

	b, err := x.JumpClose(nil, rbx, -11)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x80, 0x3b, 0x00, // cmp byte [rbx], 0
		0x0f, 0x85, 0xf5, 0xff, 0xff, 0xff, // jnz -11
	}, b)

	b = x.PadLoopOpen(nil)

	err = x.JumpOpen(b, rbx, 0, 11)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x80, 0x3b, 0x00,
		0x0f, 0x84, 0x0b, 0x00, 0x00, 0x00, // jz +11
	}, b)
}
