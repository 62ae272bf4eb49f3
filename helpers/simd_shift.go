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
	register(ir.HelperSIMDShiftImm, ir.RetNone,
		simdHelper(decodeShiftImm), checkOf(decodeShiftImm))
	register(ir.HelperSIMDScalarShiftImm, ir.RetNone,
		simdHelper(decodeScalarShiftImm), checkOf(decodeScalarShiftImm))
}

// shiftImm holds the decoded immh:immb fields.
type shiftImm struct {
	esize int // element size in bytes from the highest set bit of immh
	right int // 2*esize*8 - immh:immb
	left  int // immh:immb - esize*8
}

func decodeShiftFields(word uint32) (shiftImm, error) {
	immh := insts.Field(word, 22, 19)
	if immh == 0 {
		return shiftImm{}, reserved("shift immediate immh=0")
	}
	immhb := int(insts.Field(word, 22, 16))
	esize := 1 << (bits.Len32(immh) - 1)
	return shiftImm{esize: esize, right: 2*esize*8 - immhb, left: immhb - esize*8}, nil
}

func decodeShiftImm(word uint32) (simdOp, error) {
	return shiftImmediate(word, false)
}

func decodeScalarShiftImm(word uint32) (simdOp, error) {
	return shiftImmediate(word, true)
}

func shiftImmediate(word uint32, scalar bool) (simdOp, error) {
	sh, err := decodeShiftFields(word)
	if err != nil {
		return nil, err
	}
	u := insts.Bit(word, 29)
	opcode := insts.Field(word, 15, 11)
	signed := u == 0
	q := insts.Q(word)
	rs, ls := sh.right, sh.left

	// Same-width forms.
	var fn laneFunc
	anySize := false
	switch {
	case opcode == 0b00000: // SSHR, USHR
		fn = func(e *laneEnv, x, _, _ uint64) uint64 { return shiftLane(x, -rs, e.width, e.signed) }
	case opcode == 0b00010: // SSRA, USRA
		fn = func(e *laneEnv, x, _, d uint64) uint64 { return e.mask(d + shiftLane(x, -rs, e.width, e.signed)) }
	case opcode == 0b00100: // SRSHR, URSHR
		fn = func(e *laneEnv, x, _, _ uint64) uint64 { return emu.RoundingShift(x, -rs, e.width, e.signed) }
	case opcode == 0b00110: // SRSRA, URSRA
		fn = func(e *laneEnv, x, _, d uint64) uint64 {
			return e.mask(d + emu.RoundingShift(x, -rs, e.width, e.signed))
		}
	case opcode == 0b01000 && u == 1: // SRI
		fn = func(e *laneEnv, x, _, d uint64) uint64 {
			keep := ^shiftLane(emu.Ones(e.width), -rs, e.width, false)
			return e.mask(d&keep | shiftLane(x, -rs, e.width, false))
		}
	case opcode == 0b01010 && u == 0: // SHL
		fn = func(e *laneEnv, x, _, _ uint64) uint64 { return shiftLane(x, ls, e.width, false) }
	case opcode == 0b01010: // SLI
		fn = func(e *laneEnv, x, _, d uint64) uint64 {
			keep := ^shiftLane(emu.Ones(e.width), ls, e.width, false)
			return e.mask(d&keep | shiftLane(x, ls, e.width, false))
		}
	case opcode == 0b01100 && u == 1: // SQSHLU
		fn = func(e *laneEnv, x, _, _ uint64) uint64 { return e.sat(emu.SatShl(x, ls, e.width, true, false)) }
		anySize = true
	case opcode == 0b01110: // SQSHL, UQSHL
		fn = func(e *laneEnv, x, _, _ uint64) uint64 { return e.sat(emu.SatShl(x, ls, e.width, e.signed, e.signed)) }
		anySize = true
	}

	if fn != nil {
		arr := emu.Arrangement{ESize: sh.esize, Count: 1}
		switch {
		case scalar && !anySize && sh.esize != 8:
			return nil, reserved("scalar shift opcode=%05b on %d-byte elements", opcode, sh.esize)
		case !scalar && sh.esize == 8 && !q:
			return nil, reserved("vector arrangement 1D")
		case !scalar:
			arr.Count = 8 / sh.esize
			if q {
				arr.Count *= 2
			}
		}
		return laneOp{arr: arr, scalar: scalar, signed: signed, unary: true, fn: fn}.exec(), nil
	}

	switch opcode {
	case 0b10000, 0b10001, 0b10010, 0b10011:
		return shiftNarrow(word, sh, scalar)
	case 0b10100: // SSHLL, USHLL
		if scalar || sh.esize == 8 {
			return nil, reserved("SSHLL/USHLL esize=%d", sh.esize)
		}
		return shiftLong(sh, signed, int(insts.Bit(word, 30))), nil
	case 0b11100, 0b11111:
		return shiftFixedPoint(word, sh, scalar, opcode == 0b11111)
	default:
		return nil, reserved("shift immediate U=%d opcode=%05b", u, opcode)
	}
}

// shiftNarrow handles the right-shift-and-narrow family. immh gives the
// narrow element size.
func shiftNarrow(word uint32, sh shiftImm, scalar bool) (simdOp, error) {
	u := insts.Bit(word, 29)
	opcode := insts.Field(word, 15, 11)
	rs := sh.right
	if sh.esize == 8 {
		return nil, reserved("narrowing shift from 128-bit elements")
	}

	round := opcode&1 == 1
	shift := func(e *laneEnv, x uint64, signed bool) uint64 {
		w := 2 * e.width
		if round {
			return emu.RoundingShift(x, -rs, w, signed)
		}
		return shiftLane(x, -rs, w, signed)
	}

	var fn laneFunc
	switch {
	case opcode>>1 == 0b1000 && u == 0: // SHRN, RSHRN
		if scalar {
			return nil, reserved("scalar SHRN")
		}
		fn = func(e *laneEnv, x, _, _ uint64) uint64 { return e.mask(shift(e, x, false)) }
	case opcode>>1 == 0b1000: // SQSHRUN, SQRSHRUN
		fn = func(e *laneEnv, x, _, _ uint64) uint64 {
			return e.sat(emu.SatNarrow(shift(e, x, true), 2*e.width, e.width, true, false))
		}
	default: // SQSHRN, SQRSHRN, UQSHRN, UQRSHRN
		fn = func(e *laneEnv, x, _, _ uint64) uint64 {
			return e.sat(emu.SatNarrow(shift(e, x, e.signed), 2*e.width, e.width, e.signed, e.signed))
		}
	}

	part := int(insts.Bit(word, 30))
	if scalar {
		part = 0
	}
	return narrowLanes(sh.esize, part, u == 0, scalar, fn), nil
}

// shiftLong widens one half of Vn and shifts it left (SSHLL, USHLL).
func shiftLong(sh shiftImm, signed bool, part int) simdOp {
	return func(ctx *emu.Context, word uint32) {
		e := &laneEnv{width: uint(sh.esize) * 8, signed: signed}
		wide := emu.Arrangement{ESize: 2 * sh.esize, Count: 8 / sh.esize}
		in := halfLanes(&ctx.Regs, insts.Rn(word), sh.esize, part)
		out := make([]uint64, wide.Count)
		for i, v := range in {
			out[i] = e.ext(v) << uint(sh.left) & emu.Ones(2*e.width)
		}
		ctx.Regs.WriteLanes(insts.Rd(word), wide, out)
	}
}

// shiftFixedPoint handles SCVTF, UCVTF, FCVTZS and FCVTZU with a
// fixed-point operand of immh:immb fraction bits.
func shiftFixedPoint(word uint32, sh shiftImm, scalar, toInt bool) (simdOp, error) {
	switch {
	case sh.esize == 2:
		return nil, unsupported("half-precision fixed-point conversion")
	case sh.esize == 1:
		return nil, reserved("fixed-point conversion on bytes")
	case !scalar && sh.esize == 8 && !insts.Q(word):
		return nil, reserved("vector arrangement 1D")
	}

	unsigned := insts.Bit(word, 29) == 1
	fbits := sh.right
	fn := func(e *laneEnv, x, _, _ uint64) uint64 {
		return softfloat.FromInt(e.fp, e.f, x, e.width, !unsigned, fbits)
	}
	if toInt {
		fn = func(e *laneEnv, x, _, _ uint64) uint64 {
			return softfloat.ToInt(e.fp, e.f, x, e.width, unsigned, fbits, softfloat.RoundZero)
		}
	}

	arr := emu.Arrangement{ESize: sh.esize, Count: 1}
	if !scalar {
		arr.Count = 8 / sh.esize
		if insts.Q(word) {
			arr.Count *= 2
		}
	}
	return laneOp{arr: arr, scalar: scalar, fp: true, unary: true, fn: fn}.exec(), nil
}
