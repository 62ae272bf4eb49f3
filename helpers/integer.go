// Package helpers provides the run-time helpers called from translated code.
package helpers

import (
	"hash/crc32"
	"math/bits"

	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/ir"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func init() {
	register(ir.HelperUDiv, ir.Ret64, func(_ *emu.Context, a Args) uint64 {
		return UDiv(a[0], a[1], uint(a[2]))
	}, nil)
	register(ir.HelperSDiv, ir.Ret64, func(_ *emu.Context, a Args) uint64 {
		return SDiv(a[0], a[1], uint(a[2]))
	}, nil)
	register(ir.HelperUMulHigh, ir.Ret64, func(_ *emu.Context, a Args) uint64 {
		hi, _ := bits.Mul64(a[0], a[1])
		return hi
	}, nil)
	register(ir.HelperSMulHigh, ir.Ret64, func(_ *emu.Context, a Args) uint64 {
		return SMulHigh(int64(a[0]), int64(a[1]))
	}, nil)
	register(ir.HelperClz, ir.Ret64, func(_ *emu.Context, a Args) uint64 {
		return Clz(a[0], uint(a[1]))
	}, nil)
	register(ir.HelperCls, ir.Ret64, func(_ *emu.Context, a Args) uint64 {
		return Cls(a[0], uint(a[1]))
	}, nil)
	register(ir.HelperRbit, ir.Ret64, func(_ *emu.Context, a Args) uint64 {
		return bits.Reverse64(a[0]) >> (64 - a[1])
	}, nil)
	register(ir.HelperRev16, ir.Ret64, func(_ *emu.Context, a Args) uint64 {
		return RevWithin(a[0], uint(a[1]), 16)
	}, nil)
	register(ir.HelperRev32, ir.Ret64, func(_ *emu.Context, a Args) uint64 {
		return RevWithin(a[0], 64, 32)
	}, nil)
	register(ir.HelperRev, ir.Ret64, func(_ *emu.Context, a Args) uint64 {
		return RevWithin(a[0], uint(a[1]), uint(a[1]))
	}, nil)
	register(ir.HelperBitfield, ir.Ret64, bitfield, checkOf(decodeBitfield))
	register(ir.HelperCRC32, ir.Ret32, func(_ *emu.Context, a Args) uint64 {
		return uint64(CRC32(crc32.IEEETable, uint32(a[0]), a[1], int(a[2])))
	}, nil)
	register(ir.HelperCRC32C, ir.Ret32, func(_ *emu.Context, a Args) uint64 {
		return uint64(CRC32(castagnoli, uint32(a[0]), a[1], int(a[2])))
	}, nil)
}

// UDiv is UDIV at width bits. Division by zero yields zero.
func UDiv(a, b uint64, width uint) uint64 {
	a &= emu.Ones(width)
	b &= emu.Ones(width)
	if b == 0 {
		return 0
	}
	return a / b
}

// SDiv is SDIV at width bits. Division by zero yields zero and the
// overflowing minimum / -1 yields the minimum.
func SDiv(a, b uint64, width uint) uint64 {
	x := emu.SignExtendLane(a, width)
	y := emu.SignExtendLane(b, width)
	if y == 0 {
		return 0
	}
	if y == -1 {
		return uint64(-x) & emu.Ones(width)
	}
	return uint64(x/y) & emu.Ones(width)
}

// SMulHigh returns the high 64 bits of the signed 128-bit product.
func SMulHigh(a, b int64) uint64 {
	hi, _ := bits.Mul64(uint64(a), uint64(b))
	if a < 0 {
		hi -= uint64(b)
	}
	if b < 0 {
		hi -= uint64(a)
	}
	return hi
}

// Clz counts leading zeros of the low width bits of v.
func Clz(v uint64, width uint) uint64 {
	v &= emu.Ones(width)
	return uint64(bits.LeadingZeros64(v) - int(64-width))
}

// Cls counts the leading bits that equal the sign bit, excluding the sign
// bit itself.
func Cls(v uint64, width uint) uint64 {
	v &= emu.Ones(width)
	x := (v ^ v>>1) & emu.Ones(width-1)
	return Clz(x, width) - 1
}

// RevWithin reverses the byte order inside each container-bit chunk of the
// low width bits of v.
func RevWithin(v uint64, width, container uint) uint64 {
	var out uint64
	bytes := container / 8
	for c := uint(0); c < width; c += container {
		chunk := v >> c & emu.Ones(container)
		var r uint64
		for i := uint(0); i < bytes; i++ {
			r = r<<8 | chunk>>(8*i)&0xFF
		}
		out |= r << c
	}
	return out
}

// CRC32 folds the low size bytes of data into acc, least significant byte
// first, using the reflected polynomial of table.
func CRC32(table *crc32.Table, acc uint32, data uint64, size int) uint32 {
	var buf [8]byte
	for i := 0; i < size; i++ {
		buf[i] = byte(data >> (8 * i))
	}
	// crc32.Update pre- and post-inverts; the instruction does neither.
	return ^crc32.Update(^acc, table, buf[:size])
}

type bitfieldOp struct {
	mode       emu.BitfieldMode
	is64       bool
	immr, imms uint8
}

func decodeBitfield(word uint32) (bitfieldOp, error) {
	opc := insts.Field(word, 30, 29)
	sf := insts.Bit(word, 31)
	n := insts.Bit(word, 22)

	op := bitfieldOp{
		mode: emu.BitfieldMode(opc),
		is64: sf == 1,
		immr: uint8(insts.Field(word, 21, 16)),
		imms: uint8(insts.Field(word, 15, 10)),
	}
	if opc == 0b11 || sf != n {
		return op, reserved("bitfield opc=%d sf=%d N=%d", opc, sf, n)
	}
	if !op.is64 && (op.immr > 31 || op.imms > 31) {
		return op, reserved("32-bit bitfield immr=%d imms=%d", op.immr, op.imms)
	}
	return op, nil
}

// bitfield executes SBFM/BFM/UBFM on (word, Xn, Xd).
func bitfield(_ *emu.Context, a Args) uint64 {
	op := must(decodeBitfield(a.Word()))
	r, _ := emu.BitfieldMove(op.mode, op.is64, a[1], a[2], op.immr, op.imms)
	return r
}
