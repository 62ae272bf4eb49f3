// Package translate turns guest ARM64 instruction streams into IR blocks.
package translate

import (
	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/ir"
)

// emitter carries the instruction being translated. pc is always the
// address of that instruction, so PC-relative forms never depend on how far
// the block has advanced.
type emitter struct {
	b    ir.Builder
	pc   uint64
	word uint32
}

func opWidth(sf bool) ir.Width {
	if sf {
		return ir.W64
	}
	return ir.W32
}

func (e *emitter) c64(v uint64) ir.Value { return e.b.Const(ir.W64, v) }

func (e *emitter) c32(v uint64) ir.Value { return e.b.Const(ir.W32, v) }

func (e *emitter) cw(w ir.Width, v uint64) ir.Value { return e.b.Const(w, v) }

// readX reads Xn or Wn. Index 31 is the zero register or SP per sel.
func (e *emitter) readX(n uint8, sel emu.Reg31, w ir.Width) ir.Value {
	if n == 31 && sel == emu.Reg31ZR {
		return e.b.Const(w, 0)
	}
	return e.b.ReadReg(ir.Offset(emu.OffsetX(n)), w)
}

// writeX writes a w-bit value to Xn. Narrower writes zero the upper bits.
func (e *emitter) writeX(n uint8, sel emu.Reg31, w ir.Width, v ir.Value) {
	if n == 31 && sel == emu.Reg31ZR {
		return
	}
	if w < ir.W64 {
		v = e.b.ZeroExtend(v, ir.W64)
	}
	e.b.WriteReg(ir.Offset(emu.OffsetX(n)), v)
}

func (e *emitter) readV(n uint8, w ir.Width) ir.Value {
	return e.b.ReadReg(ir.Offset(emu.OffsetV(n)), w)
}

func (e *emitter) readVHigh(n uint8) ir.Value {
	return e.b.ReadReg(ir.Offset(emu.OffsetV(n)+8), ir.W64)
}

// writeV writes a scalar to the low bits of Vn and zeroes the rest of the
// register.
func (e *emitter) writeV(n uint8, w ir.Width, v ir.Value) {
	if w < ir.W64 {
		v = e.b.ZeroExtend(v, ir.W64)
	}
	e.b.WriteReg(ir.Offset(emu.OffsetV(n)), v)
	e.b.WriteReg(ir.Offset(emu.OffsetV(n)+8), e.c64(0))
}

func (e *emitter) writeV128(n uint8, lo, hi ir.Value) {
	e.b.WriteReg(ir.Offset(emu.OffsetV(n)), lo)
	e.b.WriteReg(ir.Offset(emu.OffsetV(n)+8), hi)
}

func (e *emitter) nzcv() ir.Value {
	return e.b.ReadReg(emu.OffsetNZCV, ir.W32)
}

func (e *emitter) setNZCV(v ir.Value) {
	e.b.WriteReg(emu.OffsetNZCV, v)
}

// carry returns PSTATE.C as a w-bit 0 or 1.
func (e *emitter) carry(w ir.Width) ir.Value {
	c := e.b.Binary(ir.And, e.b.Binary(ir.LShr, e.nzcv(), e.c32(29)), e.c32(1))
	if w > ir.W32 {
		c = e.b.ZeroExtend(c, w)
	}
	return c
}

func (e *emitter) call(id ir.HelperID, ret ir.Ret, args ...ir.Value) ir.Value {
	return e.b.Call(id, ret, args...)
}

// callWord calls a family helper with the untouched instruction word.
func (e *emitter) callWord(id ir.HelperID) {
	e.b.Call(id, ir.RetNone, e.c32(uint64(e.word)))
}

// condition yields a nonzero i32 when cond holds. AL and NV fold to true.
func (e *emitter) condition(cond insts.Cond) ir.Value {
	if cond>>1 == 0b111 {
		return e.c32(1)
	}
	return e.call(ir.HelperCondition, ir.Ret32, e.c32(uint64(cond)), e.nzcv())
}

// flags computes NZCV for an add or subtract of a and b at width w. The
// operands are the full-width inputs, never the truncated result.
func (e *emitter) flags(sub bool, w ir.Width, a, b ir.Value) ir.Value {
	id := ir.HelperFlagsAdd64
	switch {
	case sub && w == ir.W64:
		id = ir.HelperFlagsSub64
	case sub:
		id = ir.HelperFlagsSub32
	case w == ir.W32:
		id = ir.HelperFlagsAdd32
	}
	return e.call(id, ir.Ret32, a, b)
}

func (e *emitter) logicFlags(w ir.Width, result ir.Value) ir.Value {
	id := ir.HelperFlagsLogic64
	if w == ir.W32 {
		id = ir.HelperFlagsLogic32
	}
	return e.call(id, ir.Ret32, result)
}

// exit ends the block with a jump to a constant target.
func (e *emitter) exit(target uint64) {
	e.b.Exit(e.c64(target))
}

// branchIf ends the block: to target when cond is nonzero, otherwise to the
// next instruction.
func (e *emitter) branchIf(cond ir.Value, target uint64) {
	next := e.c64(e.pc + 4)
	e.b.ExitIf(cond, e.c64(target))
	e.b.Exit(next)
}

// shiftKind is the two-bit shift field of shifted-register forms.
type shiftKind uint32

const (
	shiftLSL shiftKind = iota
	shiftLSR
	shiftASR
	shiftROR
)

var shiftOps = [4]ir.BinOp{ir.Shl, ir.LShr, ir.AShr, ir.Ror}

func (e *emitter) shift(kind shiftKind, v ir.Value, w ir.Width, amount uint32) ir.Value {
	if amount == 0 {
		return v
	}
	return e.b.Binary(shiftOps[kind], v, e.cw(w, uint64(amount)))
}

// extendReg applies an extended-register option and left shift to Rm,
// producing a w-bit operand.
func (e *emitter) extendReg(rm uint8, option uint32, lsl uint32, w ir.Width) ir.Value {
	v := e.readX(rm, emu.Reg31ZR, ir.W64)
	size := ir.Width(8 << (option & 3))
	if size < ir.W64 {
		v = e.b.Truncate(v, size)
		if option&0b100 != 0 {
			v = e.b.SignExtend(v, ir.W64)
		} else {
			v = e.b.ZeroExtend(v, ir.W64)
		}
	}
	if lsl != 0 {
		v = e.b.Binary(ir.Shl, v, e.c64(uint64(lsl)))
	}
	if w < ir.W64 {
		v = e.b.Truncate(v, w)
	}
	return v
}
