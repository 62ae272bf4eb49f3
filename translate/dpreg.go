// Package translate turns guest ARM64 instruction streams into IR blocks.
package translate

import (
	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/ir"
)

// shiftedOperand reads Rm shifted by imm6, checking the width-dependent
// amount limit.
func (e *emitter) shiftedOperand(width ir.Width) (ir.Value, error) {
	w := e.word
	amount := insts.Field(w, 15, 10)
	if width == ir.W32 && amount > 31 {
		return ir.NoValue, errReserved("32-bit shift amount %d", amount)
	}
	return e.shift(shiftKind(insts.Field(w, 23, 22)), e.readX(insts.Rm(w), emu.Reg31ZR, width), width, amount), nil
}

// translateLogicalShifted handles AND, BIC, ORR, ORN, EOR, EON, ANDS and
// BICS (shifted register).
func translateLogicalShifted(e *emitter) (bool, error) {
	w := e.word
	width := opWidth(insts.Sf(w))
	b, err := e.shiftedOperand(width)
	if err != nil {
		return false, err
	}
	if insts.Bit(w, 21) == 1 {
		b = e.b.Unary(ir.Not, b)
	}
	a := e.readX(insts.Rn(w), emu.Reg31ZR, width)

	var r ir.Value
	opc := insts.Field(w, 30, 29)
	switch opc {
	case 0b00, 0b11:
		r = e.b.Binary(ir.And, a, b)
	case 0b01:
		r = e.b.Binary(ir.Or, a, b)
	default:
		r = e.b.Binary(ir.Xor, a, b)
	}
	if opc == 0b11 {
		e.setNZCV(e.logicFlags(width, r))
	}
	e.writeX(insts.Rd(w), emu.Reg31ZR, width, r)
	return false, nil
}

// translateAddSubShifted handles ADD, ADDS, SUB and SUBS (shifted register).
func translateAddSubShifted(e *emitter) (bool, error) {
	w := e.word
	if shiftKind(insts.Field(w, 23, 22)) == shiftROR {
		return false, errReserved("add/sub with ROR shift")
	}
	width := opWidth(insts.Sf(w))
	b, err := e.shiftedOperand(width)
	if err != nil {
		return false, err
	}
	a := e.readX(insts.Rn(w), emu.Reg31ZR, width)
	e.addSub(width, insts.Bit(w, 30) == 1, insts.Bit(w, 29) == 1, a, b, insts.Rd(w), emu.Reg31ZR)
	return false, nil
}

// translateAddSubExtended handles ADD, ADDS, SUB and SUBS (extended
// register). Rn and the non-flag-setting Rd use SP.
func translateAddSubExtended(e *emitter) (bool, error) {
	w := e.word
	if insts.Field(w, 23, 22) != 0 {
		return false, errReserved("extended register opt=%d", insts.Field(w, 23, 22))
	}
	imm3 := insts.Field(w, 12, 10)
	if imm3 > 4 {
		return false, errReserved("extended register shift %d", imm3)
	}

	width := opWidth(insts.Sf(w))
	a := e.readX(insts.Rn(w), emu.Reg31SP, width)
	b := e.extendReg(insts.Rm(w), insts.Field(w, 15, 13), imm3, width)
	e.addSub(width, insts.Bit(w, 30) == 1, insts.Bit(w, 29) == 1, a, b, insts.Rd(w), emu.Reg31SP)
	return false, nil
}

// translateAddSubCarry handles ADC, ADCS, SBC and SBCS. SBC adds the
// complement of Rm, so both directions are a + b + C.
func translateAddSubCarry(e *emitter) (bool, error) {
	w := e.word
	width := opWidth(insts.Sf(w))
	sub := insts.Bit(w, 30) == 1
	setFlags := insts.Bit(w, 29) == 1

	a := e.readX(insts.Rn(w), emu.Reg31ZR, width)
	b := e.readX(insts.Rm(w), emu.Reg31ZR, width)
	operand := b
	if sub {
		operand = e.b.Unary(ir.Not, b)
	}
	r := e.b.Binary(ir.Add, e.b.Binary(ir.Add, a, operand), e.carry(width))

	if setFlags {
		var id ir.HelperID
		switch {
		case sub && width == ir.W64:
			id = ir.HelperFlagsSbc64
		case sub:
			id = ir.HelperFlagsSbc32
		case width == ir.W64:
			id = ir.HelperFlagsAdc64
		default:
			id = ir.HelperFlagsAdc32
		}
		e.setNZCV(e.call(id, ir.Ret32, a, b, e.nzcv()))
	}
	e.writeX(insts.Rd(w), emu.Reg31ZR, width, r)
	return false, nil
}

// translateCondCompare handles CCMN and CCMP, register and immediate.
func translateCondCompare(e *emitter) (bool, error) {
	w := e.word
	if insts.Bit(w, 29) == 0 || insts.Bit(w, 10) == 1 || insts.Bit(w, 4) == 1 {
		return false, errReserved("conditional compare S/o2/o3")
	}

	width := opWidth(insts.Sf(w))
	a := e.readX(insts.Rn(w), emu.Reg31ZR, width)
	var b ir.Value
	if insts.Bit(w, 11) == 1 {
		b = e.cw(width, uint64(insts.Field(w, 20, 16)))
	} else {
		b = e.readX(insts.Rm(w), emu.Reg31ZR, width)
	}

	computed := e.flags(insts.Bit(w, 30) == 1, width, a, b)
	fallback := e.c32(uint64(emu.FlagsFromNZCV(insts.Field(w, 3, 0))))
	e.setNZCV(e.b.Select(e.condition(insts.CondAt(w, 12)), computed, fallback))
	return false, nil
}

// translateCondSelect handles CSEL, CSINC, CSINV and CSNEG.
func translateCondSelect(e *emitter) (bool, error) {
	w := e.word
	if insts.Bit(w, 29) == 1 || insts.Bit(w, 11) == 1 {
		return false, errReserved("conditional select S/op2")
	}

	width := opWidth(insts.Sf(w))
	a := e.readX(insts.Rn(w), emu.Reg31ZR, width)
	b := e.readX(insts.Rm(w), emu.Reg31ZR, width)

	switch insts.Bit(w, 30)<<1 | insts.Bit(w, 10) {
	case 0b01: // CSINC
		b = e.b.Binary(ir.Add, b, e.cw(width, 1))
	case 0b10: // CSINV
		b = e.b.Unary(ir.Not, b)
	case 0b11: // CSNEG
		b = e.b.Unary(ir.Neg, b)
	}

	r := e.b.Select(e.condition(insts.CondAt(w, 12)), a, b)
	e.writeX(insts.Rd(w), emu.Reg31ZR, width, r)
	return false, nil
}

// translateDataProc1 handles RBIT, REV16, REV32, REV, CLZ and CLS.
func translateDataProc1(e *emitter) (bool, error) {
	w := e.word
	sf := insts.Sf(w)
	opcode := insts.Field(w, 15, 10)

	switch {
	case insts.Bit(w, 29) == 1:
		return false, errReserved("1-source S=1")
	case insts.Field(w, 20, 16) == 0b00001:
		return false, errUnsupported("pointer authentication")
	case insts.Field(w, 20, 16) != 0:
		return false, errReserved("1-source opcode2=%05b", insts.Field(w, 20, 16))
	case opcode > 0b000101, opcode == 0b000011 && !sf:
		return false, errReserved("1-source opcode=%06b", opcode)
	}

	width := opWidth(sf)
	a := e.readX(insts.Rn(w), emu.Reg31ZR, ir.W64)
	wv := e.c64(uint64(width))

	var r ir.Value
	switch opcode {
	case 0b000000:
		r = e.call(ir.HelperRbit, ir.Ret64, a, wv)
	case 0b000001:
		r = e.call(ir.HelperRev16, ir.Ret64, a, wv)
	case 0b000010:
		if sf {
			r = e.call(ir.HelperRev32, ir.Ret64, a)
		} else {
			r = e.call(ir.HelperRev, ir.Ret64, a, wv)
		}
	case 0b000011:
		r = e.call(ir.HelperRev, ir.Ret64, a, wv)
	case 0b000100:
		r = e.call(ir.HelperClz, ir.Ret64, a, wv)
	default:
		r = e.call(ir.HelperCls, ir.Ret64, a, wv)
	}
	e.writeX(insts.Rd(w), emu.Reg31ZR, ir.W64, r)
	return false, nil
}

// translateDataProc2 handles UDIV, SDIV, the variable shifts and CRC32.
func translateDataProc2(e *emitter) (bool, error) {
	w := e.word
	sf := insts.Sf(w)
	width := opWidth(sf)
	opcode := insts.Field(w, 15, 10)
	rn, rm, rd := insts.Rn(w), insts.Rm(w), insts.Rd(w)

	if insts.Bit(w, 29) == 1 {
		return false, errUnsupported("SUBPS (memory tagging)")
	}

	switch {
	case opcode == 0b000010 || opcode == 0b000011:
		id := ir.HelperUDiv
		if opcode == 0b000011 {
			id = ir.HelperSDiv
		}
		a := e.readX(rn, emu.Reg31ZR, ir.W64)
		b := e.readX(rm, emu.Reg31ZR, ir.W64)
		r := e.call(id, ir.Ret64, a, b, e.c64(uint64(width)))
		e.writeX(rd, emu.Reg31ZR, ir.W64, r)

	case opcode>>2 == 0b0010:
		a := e.readX(rn, emu.Reg31ZR, width)
		b := e.readX(rm, emu.Reg31ZR, width)
		e.writeX(rd, emu.Reg31ZR, width, e.b.Binary(shiftOps[opcode&3], a, b))

	case opcode>>3 == 0b010:
		sz := opcode & 3
		if (sz == 0b11) != sf {
			return false, errReserved("CRC32 sf=%v sz=%d", sf, sz)
		}
		id := ir.HelperCRC32
		if opcode&0b100 != 0 {
			id = ir.HelperCRC32C
		}
		acc := e.readX(rn, emu.Reg31ZR, ir.W32)
		data := e.readX(rm, emu.Reg31ZR, ir.W64)
		r := e.call(id, ir.Ret32, acc, data, e.c32(1<<sz))
		e.writeX(rd, emu.Reg31ZR, ir.W32, r)

	case opcode == 0b000000, opcode == 0b000100, opcode == 0b000101:
		return false, errUnsupported("memory tagging")
	case opcode == 0b001100:
		return false, errUnsupported("PACGA")
	default:
		return false, errReserved("2-source opcode=%06b", opcode)
	}
	return false, nil
}

// translateDataProc3 handles MADD, MSUB, the widening multiply-adds and
// the multiply-high forms.
func translateDataProc3(e *emitter) (bool, error) {
	w := e.word
	sf := insts.Sf(w)
	op31 := insts.Field(w, 23, 21)
	o0 := insts.Bit(w, 15) == 1
	rn, rm, ra, rd := insts.Rn(w), insts.Rm(w), insts.Ra(w), insts.Rd(w)

	if insts.Field(w, 30, 29) != 0 {
		return false, errReserved("3-source op54")
	}
	if !sf && op31 != 0 {
		return false, errReserved("32-bit widening multiply")
	}

	accumulate := func(width ir.Width, product ir.Value) {
		acc := e.readX(ra, emu.Reg31ZR, width)
		op := ir.Add
		if o0 {
			op = ir.Sub
		}
		e.writeX(rd, emu.Reg31ZR, width, e.b.Binary(op, acc, product))
	}

	switch {
	case op31 == 0b000:
		width := opWidth(sf)
		accumulate(width, e.b.Binary(ir.Mul, e.readX(rn, emu.Reg31ZR, width), e.readX(rm, emu.Reg31ZR, width)))

	case op31 == 0b001 || op31 == 0b101:
		extend := e.b.SignExtend
		if op31 == 0b101 {
			extend = e.b.ZeroExtend
		}
		a := extend(e.readX(rn, emu.Reg31ZR, ir.W32), ir.W64)
		b := extend(e.readX(rm, emu.Reg31ZR, ir.W32), ir.W64)
		accumulate(ir.W64, e.b.Binary(ir.Mul, a, b))

	case (op31 == 0b010 || op31 == 0b110) && !o0:
		id := ir.HelperSMulHigh
		if op31 == 0b110 {
			id = ir.HelperUMulHigh
		}
		r := e.call(id, ir.Ret64, e.readX(rn, emu.Reg31ZR, ir.W64), e.readX(rm, emu.Reg31ZR, ir.W64))
		e.writeX(rd, emu.Reg31ZR, ir.W64, r)

	default:
		return false, errReserved("3-source op31=%03b o0=%v", op31, o0)
	}
	return false, nil
}
