// Package helpers provides the run-time helpers called from translated code.
package helpers

import (
	"math/bits"

	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/ir"
	"github.com/sarchlab/a64dbt/softfloat"
)

func init() {
	register(ir.HelperSIMDCopy, ir.RetNone, simdHelper(decodeCopy), checkOf(decodeCopy))
	register(ir.HelperSIMDScalarCopy, ir.RetNone, simdHelper(decodeScalarCopy), checkOf(decodeScalarCopy))
	register(ir.HelperSIMDModImm, ir.RetNone, simdHelper(decodeModImm), checkOf(decodeModImm))
	register(ir.HelperSIMDPermute, ir.RetNone, simdHelper(decodePermute), checkOf(decodePermute))
	register(ir.HelperSIMDExtract, ir.RetNone, simdHelper(decodeExtract), checkOf(decodeExtract))
	register(ir.HelperSIMDTableLookup, ir.RetNone, simdHelper(decodeTableLookup), checkOf(decodeTableLookup))
}

// elementOf decodes imm5 into an element size in bytes and an index. The
// lowest set bit of imm5 selects the size.
func elementOf(imm5 uint32) (esize, index int, err error) {
	if imm5&0xF == 0 {
		return 0, 0, reserved("copy imm5=%05b", imm5)
	}
	size := bits.TrailingZeros32(imm5)
	return 1 << size, int(imm5 >> (size + 1)), nil
}

func decodeCopy(word uint32) (simdOp, error) {
	q := insts.Q(word)
	op := insts.Bit(word, 29)
	imm4 := insts.Field(word, 14, 11)
	esize, index, err := elementOf(insts.Field(word, 20, 16))
	if err != nil {
		return nil, err
	}

	if op == 1 {
		if !q {
			return nil, reserved("INS (element) with Q=0")
		}
		src := int(imm4) >> lanesShift(esize)
		return func(ctx *emu.Context, word uint32) { // INS (element)
			v := ctx.Regs.Lane(insts.Rn(word), esize, src)
			ctx.Regs.SetLane(insts.Rd(word), esize, index, v)
		}, nil
	}

	switch imm4 {
	case 0b0000, 0b0001: // DUP (element), DUP (general)
		if esize == 8 && !q {
			return nil, reserved("DUP to 1D")
		}
		arr := emu.Arrangement{ESize: esize, Count: 8 / esize}
		if q {
			arr.Count *= 2
		}
		fromGPR := imm4 == 0b0001
		return func(ctx *emu.Context, word uint32) {
			var v uint64
			if fromGPR {
				v = ctx.Regs.ReadReg(insts.Rn(word)) & emu.Ones(uint(esize)*8)
			} else {
				v = ctx.Regs.Lane(insts.Rn(word), esize, index)
			}
			lanes := make([]uint64, arr.Count)
			for i := range lanes {
				lanes[i] = v
			}
			ctx.Regs.WriteLanes(insts.Rd(word), arr, lanes)
		}, nil
	case 0b0011: // INS (general)
		if !q {
			return nil, reserved("INS (general) with Q=0")
		}
		return func(ctx *emu.Context, word uint32) {
			ctx.Regs.SetLane(insts.Rd(word), esize, index, ctx.Regs.ReadReg(insts.Rn(word)))
		}, nil
	case 0b0101, 0b0111: // SMOV, UMOV
		signed := imm4 == 0b0101
		dst := 4
		if q {
			dst = 8
		}
		switch {
		case signed && esize >= dst, !signed && q && esize != 8, !signed && !q && esize == 8:
			return nil, reserved("SMOV/UMOV esize=%d Q=%v", esize, q)
		}
		return func(ctx *emu.Context, word uint32) {
			v := ctx.Regs.Lane(insts.Rn(word), esize, index)
			if signed {
				v = uint64(emu.SignExtendLane(v, uint(esize)*8)) & emu.Ones(uint(dst)*8)
			}
			ctx.Regs.WriteReg(insts.Rd(word), v)
		}, nil
	default:
		return nil, reserved("copy imm4=%04b", imm4)
	}
}

func lanesShift(esize int) int {
	return bits.TrailingZeros(uint(esize))
}

// decodeScalarCopy handles DUP (element, scalar), also written MOV Vd, Vn.T[i].
func decodeScalarCopy(word uint32) (simdOp, error) {
	if insts.Bit(word, 29) != 0 || insts.Field(word, 14, 11) != 0 {
		return nil, reserved("scalar copy op=%d imm4=%04b", insts.Bit(word, 29), insts.Field(word, 14, 11))
	}
	esize, index, err := elementOf(insts.Field(word, 20, 16))
	if err != nil {
		return nil, err
	}
	return func(ctx *emu.Context, word uint32) {
		ctx.Regs.SetScalar(insts.Rd(word), esize, ctx.Regs.Lane(insts.Rn(word), esize, index))
	}, nil
}

// ExpandSIMDImm expands the modified-immediate fields into a 64-bit
// pattern.
func ExpandSIMDImm(op, cmode uint32, imm8 uint8) uint64 {
	imm := uint64(imm8)
	switch cmode >> 1 {
	case 0b000, 0b001, 0b010, 0b011:
		return emu.Replicate(imm<<(8*(cmode>>1)), 32, 64)
	case 0b100, 0b101:
		return emu.Replicate(imm<<(8*(cmode>>1&1)), 16, 64)
	case 0b110:
		if cmode&1 == 0 {
			return emu.Replicate(imm<<8|0xFF, 32, 64)
		}
		return emu.Replicate(imm<<16|0xFFFF, 32, 64)
	}

	switch {
	case cmode == 0b1110 && op == 0:
		return emu.Replicate(imm, 8, 64)
	case cmode == 0b1110:
		var r uint64
		for i := uint(0); i < 8; i++ {
			if imm>>i&1 == 1 {
				r |= 0xFF << (8 * i)
			}
		}
		return r
	case op == 0:
		return emu.Replicate(ExpandFPImm(softfloat.Single, imm8), 32, 64)
	default:
		return ExpandFPImm(softfloat.Double, imm8)
	}
}

func decodeModImm(word uint32) (simdOp, error) {
	q := insts.Q(word)
	op := insts.Bit(word, 29)
	cmode := insts.Field(word, 15, 12)
	o2 := insts.Bit(word, 11)

	switch {
	case o2 == 1 && cmode == 0b1111 && op == 0:
		return nil, unsupported("FMOV (vector, half-precision)")
	case o2 == 1:
		return nil, reserved("modified immediate o2=1")
	case cmode == 0b1111 && op == 1 && !q:
		return nil, reserved("FMOV (vector, double) with Q=0")
	}

	imm8 := uint8(insts.Field(word, 18, 16)<<5 | insts.Field(word, 9, 5))
	imm := ExpandSIMDImm(op, cmode, imm8)

	// cmode 0xx1 and 10x1 are ORR (op=0) and BIC (op=1); the rest move.
	logical := cmode < 0b1100 && cmode&1 == 1
	invert := op == 1 && cmode < 0b1110

	return func(ctx *emu.Context, word uint32) {
		rd := insts.Rd(word)
		v := imm
		lo, hi := ctx.Regs.Q(rd)
		switch {
		case logical && op == 0:
			lo, hi = lo|v, hi|v
		case logical:
			lo, hi = lo&^v, hi&^v
		default:
			if invert {
				v = ^v
			}
			lo, hi = v, v
		}
		if !q {
			hi = 0
		}
		ctx.Regs.SetQ(rd, lo, hi)
	}, nil
}

func decodePermute(word uint32) (simdOp, error) {
	arr, err := vectorShape(word)
	if err != nil {
		return nil, err
	}
	opcode := insts.Field(word, 14, 12)
	part := int(opcode >> 2)
	half := arr.Count / 2

	var pick func(n, m []uint64, i int) uint64
	switch opcode & 3 {
	case 0b01: // UZP1, UZP2
		pick = func(n, m []uint64, i int) uint64 {
			j := 2*i + part
			if j < arr.Count {
				return n[j]
			}
			return m[j-arr.Count]
		}
	case 0b10: // TRN1, TRN2
		pick = func(n, m []uint64, i int) uint64 {
			if i%2 == 0 {
				return n[i+part]
			}
			return m[i-1+part]
		}
	case 0b11: // ZIP1, ZIP2
		pick = func(n, m []uint64, i int) uint64 {
			if i%2 == 0 {
				return n[part*half+i/2]
			}
			return m[part*half+i/2]
		}
	default:
		return nil, reserved("permute opcode=%03b", opcode)
	}

	return func(ctx *emu.Context, word uint32) {
		n := ctx.Regs.ReadLanes(insts.Rn(word), arr)
		m := ctx.Regs.ReadLanes(insts.Rm(word), arr)
		out := make([]uint64, arr.Count)
		for i := range out {
			out[i] = pick(n, m, i)
		}
		ctx.Regs.WriteLanes(insts.Rd(word), arr, out)
	}, nil
}

// decodeExtract handles EXT: bytes imm4 onward of Vm:Vn.
func decodeExtract(word uint32) (simdOp, error) {
	q := insts.Q(word)
	pos := int(insts.Field(word, 14, 11))
	switch {
	case insts.Field(word, 23, 22) != 0:
		return nil, reserved("EXT op2=%d", insts.Field(word, 23, 22))
	case !q && pos >= 8:
		return nil, reserved("EXT (8B) index %d", pos)
	}
	n := 8
	if q {
		n = 16
	}

	return func(ctx *emu.Context, word uint32) {
		lo, hi := ctx.Regs.Vec(insts.Rn(word)), ctx.Regs.Vec(insts.Rm(word))
		cat := append(lo[:n:n], hi[:n]...)
		var out [16]byte
		copy(out[:n], cat[pos:pos+n])
		ctx.Regs.SetVec(insts.Rd(word), out)
	}, nil
}

// decodeTableLookup handles TBL and TBX over one to four consecutive table
// registers.
func decodeTableLookup(word uint32) (simdOp, error) {
	if insts.Field(word, 23, 22) != 0 {
		return nil, reserved("TBL/TBX op2=%d", insts.Field(word, 23, 22))
	}
	regs := int(insts.Field(word, 14, 13)) + 1
	extend := insts.Bit(word, 12) == 1
	n := 8
	if insts.Q(word) {
		n = 16
	}

	return func(ctx *emu.Context, word uint32) {
		rd, rn := insts.Rd(word), insts.Rn(word)
		table := make([]byte, 0, 16*regs)
		for i := 0; i < regs; i++ {
			v := ctx.Regs.Vec((rn + uint8(i)) % 32)
			table = append(table, v[:]...)
		}
		idx := ctx.Regs.Vec(insts.Rm(word))
		old := ctx.Regs.Vec(rd)

		var out [16]byte
		for i := 0; i < n; i++ {
			switch {
			case int(idx[i]) < len(table):
				out[i] = table[idx[i]]
			case extend:
				out[i] = old[i]
			}
		}
		ctx.Regs.SetVec(rd, out)
	}, nil
}
