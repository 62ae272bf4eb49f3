// Package translate turns guest ARM64 instruction streams into IR blocks.
package translate

import (
	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/helpers"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/ir"
)

const linkRegister = 30

// translateBranchImm handles B and BL.
func translateBranchImm(e *emitter) (bool, error) {
	target := e.pc + uint64(insts.Imm26(e.word))
	if insts.Bit(e.word, 31) == 1 {
		e.writeX(linkRegister, emu.Reg31ZR, ir.W64, e.c64(e.pc+4))
	}
	e.exit(target)
	return true, nil
}

// translateCondBranch handles B.cond.
func translateCondBranch(e *emitter) (bool, error) {
	target := e.pc + uint64(insts.Imm19(e.word))
	cond := insts.CondAt(e.word, 0)
	if cond>>1 == 0b111 {
		e.exit(target)
		return true, nil
	}
	e.branchIf(e.condition(cond), target)
	return true, nil
}

// translateCompareBranch handles CBZ and CBNZ.
func translateCompareBranch(e *emitter) (bool, error) {
	w := e.word
	width := opWidth(insts.Sf(w))
	target := e.pc + uint64(insts.Imm19(w))

	pred := ir.Eq
	if insts.Bit(w, 24) == 1 {
		pred = ir.Ne
	}
	v := e.readX(insts.Rt(w), emu.Reg31ZR, width)
	e.branchIf(e.b.Compare(pred, v, e.cw(width, 0)), target)
	return true, nil
}

// translateTestBranch handles TBZ and TBNZ.
func translateTestBranch(e *emitter) (bool, error) {
	w := e.word
	bit := insts.Bit(w, 31)<<5 | insts.Field(w, 23, 19)
	target := e.pc + uint64(insts.Imm14(w))

	pred := ir.Eq
	if insts.Bit(w, 24) == 1 {
		pred = ir.Ne
	}
	v := e.readX(insts.Rt(w), emu.Reg31ZR, ir.W64)
	masked := e.b.Binary(ir.And, v, e.c64(1<<bit))
	e.branchIf(e.b.Compare(pred, masked, e.c64(0)), target)
	return true, nil
}

// translateBranchReg handles BR, BLR and RET. The target is read before
// BLR writes the link register, so BLR X30 jumps to the old X30.
func translateBranchReg(e *emitter) (bool, error) {
	w := e.word
	opc := insts.Field(w, 24, 21)
	op3 := insts.Field(w, 15, 10)

	switch {
	case insts.Field(w, 20, 16) != 0b11111:
		return false, errReserved("branch register op2")
	case opc <= 0b0010 && op3 == 0 && insts.Rd(w) == 0:
	case opc == 0b1000 || opc == 0b1001 || op3 == 0b000010 || op3 == 0b000011:
		return false, errUnsupported("pointer authentication branch")
	case opc == 0b0100 || opc == 0b0101:
		return false, errReserved("ERET/DRPS at EL0")
	default:
		return false, errReserved("branch register opc=%04b op3=%06b", opc, op3)
	}

	target := e.readX(insts.Rn(w), emu.Reg31ZR, ir.W64)
	if opc == 0b0001 {
		e.writeX(linkRegister, emu.Reg31ZR, ir.W64, e.c64(e.pc+4))
	}
	e.b.Exit(target)
	return true, nil
}

// translateExceptionGen handles SVC, BRK and HLT. SVC leaves the block so
// the backend can observe an exit; BRK and HLT record a trap and stop at
// the faulting instruction.
func translateExceptionGen(e *emitter) (bool, error) {
	w := e.word
	opc := insts.Field(w, 23, 21)
	ll := insts.Field(w, 1, 0)

	if insts.Field(w, 4, 2) != 0 {
		return false, errReserved("exception generation op2")
	}

	switch {
	case opc == 0b000 && ll == 0b01:
		e.call(ir.HelperSyscall, ir.RetNone, e.c64(e.pc))
		e.exit(e.pc + 4)
		return true, nil
	case (opc == 0b001 || opc == 0b010) && ll == 0b00:
		return translateBRK(e)
	case (opc == 0b000 || opc == 0b101) && ll != 0:
		return false, errUnsupported("HVC/SMC/DCPS")
	case opc == 0b011 && ll == 0b00:
		return false, errUnsupported("TCANCEL")
	default:
		return false, errReserved("exception generation opc=%03b LL=%02b", opc, ll)
	}
}

// translateBRK records a trap. Breakpoint markers with a debug collaborator
// never reach here; TranslateBlock handles them.
func translateBRK(e *emitter) (bool, error) {
	e.call(ir.HelperTrap, ir.RetNone, e.c32(uint64(e.word)), e.c64(e.pc))
	e.exit(e.pc)
	return true, nil
}

// translateHint treats every hint as NOP: YIELD, WFE, WFI and friends have
// no effect on a single context, and the PAC and BTI hints behave as on a
// core without those features.
func translateHint(*emitter) (bool, error) {
	return false, nil
}

// translateBarrier handles CLREX, DSB, DMB, ISB and SB.
func translateBarrier(e *emitter) (bool, error) {
	if insts.Field(e.word, 7, 5) == 0b010 {
		if insts.Rt(e.word) != 31 {
			return false, errReserved("CLREX Rt=%d", insts.Rt(e.word))
		}
		e.call(ir.HelperClearExclusive, ir.RetNone)
		return false, nil
	}
	if err := helpers.Validate(ir.HelperBarrier, e.word); err != nil {
		return false, err
	}
	e.callWord(ir.HelperBarrier)
	return false, nil
}

// translateSysReg handles MRS and MSR (register).
func translateSysReg(e *emitter) (bool, error) {
	id := ir.HelperMSR
	if insts.Bit(e.word, 21) == 1 {
		id = ir.HelperMRS
	}
	if err := helpers.Validate(id, e.word); err != nil {
		return false, err
	}
	e.callWord(id)
	return false, nil
}
