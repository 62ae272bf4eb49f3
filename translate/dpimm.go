// Package translate turns guest ARM64 instruction streams into IR blocks.
package translate

import (
	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/helpers"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/ir"
)

// translatePCRel handles ADR and ADRP.
func translatePCRel(e *emitter) (bool, error) {
	w := e.word
	imm := insts.SignExtend(uint64(insts.Field(w, 23, 5)<<2|insts.Field(w, 30, 29)), 21)

	var target uint64
	if insts.Bit(w, 31) == 1 { // ADRP
		target = e.pc&^0xFFF + uint64(imm<<12)
	} else {
		target = e.pc + uint64(imm)
	}
	e.writeX(insts.Rd(w), emu.Reg31ZR, ir.W64, e.c64(target))
	return false, nil
}

// translateAddSubImm handles ADD, ADDS, SUB and SUBS (immediate).
func translateAddSubImm(e *emitter) (bool, error) {
	w := e.word
	width := opWidth(insts.Sf(w))
	sub := insts.Bit(w, 30) == 1
	setFlags := insts.Bit(w, 29) == 1

	imm := uint64(insts.Imm12(w))
	if insts.Bit(w, 22) == 1 {
		imm <<= 12
	}

	a := e.readX(insts.Rn(w), emu.Reg31SP, width)
	b := e.cw(width, imm)
	e.addSub(width, sub, setFlags, a, b, insts.Rd(w), emu.Reg31SP)
	return false, nil
}

// addSub emits a + b or a - b. Flag-setting forms always treat Rd=31 as the
// zero register; otherwise rdSel applies.
func (e *emitter) addSub(w ir.Width, sub, setFlags bool, a, b ir.Value, rd uint8, rdSel emu.Reg31) {
	op := ir.Add
	if sub {
		op = ir.Sub
	}
	r := e.b.Binary(op, a, b)
	if setFlags {
		e.setNZCV(e.flags(sub, w, a, b))
		rdSel = emu.Reg31ZR
	}
	e.writeX(rd, rdSel, w, r)
}

// translateLogicalImm handles AND, ORR, EOR and ANDS (immediate).
func translateLogicalImm(e *emitter) (bool, error) {
	w := e.word
	sf := insts.Sf(w)
	n := uint8(insts.Bit(w, 22))
	if !sf && n == 1 {
		return false, errReserved("32-bit logical immediate with N=1")
	}

	width := opWidth(sf)
	imm, _, ok := emu.DecodeBitMasks(n, uint8(insts.Field(w, 15, 10)), uint8(insts.Field(w, 21, 16)), true, uint(width))
	if !ok {
		return false, errReserved("logical immediate pattern")
	}

	a := e.readX(insts.Rn(w), emu.Reg31ZR, width)
	b := e.cw(width, imm)
	rd := insts.Rd(w)

	switch insts.Field(w, 30, 29) {
	case 0b00:
		e.writeX(rd, emu.Reg31SP, width, e.b.Binary(ir.And, a, b))
	case 0b01:
		e.writeX(rd, emu.Reg31SP, width, e.b.Binary(ir.Or, a, b))
	case 0b10:
		e.writeX(rd, emu.Reg31SP, width, e.b.Binary(ir.Xor, a, b))
	default:
		r := e.b.Binary(ir.And, a, b)
		e.setNZCV(e.logicFlags(width, r))
		e.writeX(rd, emu.Reg31ZR, width, r)
	}
	return false, nil
}

// translateMoveWide handles MOVN, MOVZ and MOVK.
func translateMoveWide(e *emitter) (bool, error) {
	w := e.word
	sf := insts.Sf(w)
	hw := insts.Field(w, 22, 21)
	opc := insts.Field(w, 30, 29)

	if opc == 0b01 {
		return false, errReserved("move wide opc=01")
	}
	if !sf && hw > 1 {
		return false, errReserved("32-bit move wide hw=%d", hw)
	}

	width := opWidth(sf)
	pos := 16 * hw
	imm := uint64(insts.Field(w, 20, 5)) << pos
	rd := insts.Rd(w)

	switch opc {
	case 0b00: // MOVN
		e.writeX(rd, emu.Reg31ZR, width, e.cw(width, ^imm))
	case 0b10: // MOVZ
		e.writeX(rd, emu.Reg31ZR, width, e.cw(width, imm))
	default: // MOVK
		old := e.readX(rd, emu.Reg31ZR, width)
		kept := e.b.Binary(ir.AndNot, old, e.cw(width, 0xFFFF<<pos))
		e.writeX(rd, emu.Reg31ZR, width, e.b.Binary(ir.Or, kept, e.cw(width, imm)))
	}
	return false, nil
}

// translateBitfield handles SBFM, BFM and UBFM. The shift and extend
// aliases are inlined; the general case calls the bitfield helper.
func translateBitfield(e *emitter) (bool, error) {
	w := e.word
	if err := helpers.Validate(ir.HelperBitfield, w); err != nil {
		return false, err
	}

	sf := insts.Sf(w)
	width := opWidth(sf)
	top := uint32(width) - 1
	opc := insts.Field(w, 30, 29)
	immr := insts.Field(w, 21, 16)
	imms := insts.Field(w, 15, 10)
	rn, rd := insts.Rn(w), insts.Rd(w)

	switch {
	case opc == 0b10 && imms == top: // LSR
		e.writeX(rd, emu.Reg31ZR, width, e.shift(shiftLSR, e.readX(rn, emu.Reg31ZR, width), width, immr))
		return false, nil
	case opc == 0b00 && imms == top: // ASR
		e.writeX(rd, emu.Reg31ZR, width, e.shift(shiftASR, e.readX(rn, emu.Reg31ZR, width), width, immr))
		return false, nil
	case opc == 0b10 && imms+1 == immr: // LSL
		e.writeX(rd, emu.Reg31ZR, width, e.shift(shiftLSL, e.readX(rn, emu.Reg31ZR, width), width, top-imms))
		return false, nil
	case immr == 0 && opc != 0b01 && (imms == 7 || imms == 15 || imms == 31):
		// SXTB, SXTH, SXTW, UXTB, UXTH
		field := ir.Width(imms + 1)
		v := e.b.Truncate(e.readX(rn, emu.Reg31ZR, ir.W64), field)
		if opc == 0b00 {
			v = e.b.SignExtend(v, width)
		} else if field < width {
			v = e.b.ZeroExtend(v, width)
		}
		e.writeX(rd, emu.Reg31ZR, width, v)
		return false, nil
	}

	src := e.readX(rn, emu.Reg31ZR, ir.W64)
	dst := e.readX(rd, emu.Reg31ZR, ir.W64)
	r := e.call(ir.HelperBitfield, ir.Ret64, e.c32(uint64(w)), src, dst)
	e.writeX(rd, emu.Reg31ZR, ir.W64, r)
	return false, nil
}

// translateExtract handles EXTR and its ROR alias.
func translateExtract(e *emitter) (bool, error) {
	w := e.word
	sf := insts.Sf(w)
	lsb := insts.Field(w, 15, 10)

	switch {
	case insts.Field(w, 30, 29) != 0 || insts.Bit(w, 21) != 0:
		return false, errReserved("extract op21/o0")
	case uint32(insts.Bit(w, 22)) != insts.Bit(w, 31):
		return false, errReserved("extract N differs from sf")
	case !sf && lsb > 31:
		return false, errReserved("32-bit extract lsb=%d", lsb)
	}

	width := opWidth(sf)
	rn, rm := insts.Rn(w), insts.Rm(w)
	lo := e.readX(rm, emu.Reg31ZR, width)

	var r ir.Value
	switch {
	case lsb == 0:
		r = lo
	case rn == rm:
		r = e.shift(shiftROR, lo, width, lsb)
	default:
		hi := e.readX(rn, emu.Reg31ZR, width)
		r = e.b.Binary(ir.Or,
			e.b.Binary(ir.LShr, lo, e.cw(width, uint64(lsb))),
			e.b.Binary(ir.Shl, hi, e.cw(width, uint64(uint32(width)-lsb))))
	}
	e.writeX(insts.Rd(w), emu.Reg31ZR, width, r)
	return false, nil
}
