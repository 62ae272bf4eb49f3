// Package helpers provides the run-time helpers called from translated code.
package helpers

import (
	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/ir"
)

func init() {
	register(ir.HelperExclusive, ir.RetNone, exclusive, checkOf(decodeExclusive))
	register(ir.HelperCompareSwap, ir.RetNone, compareSwap, checkOf(decodeCompareSwap))
	register(ir.HelperAtomic, ir.RetNone, atomic, checkOf(decodeAtomic))
	register(ir.HelperBarrier, ir.RetNone, barrier, checkOf(decodeBarrier))
	register(ir.HelperClearExclusive, ir.RetNone, func(ctx *emu.Context, _ Args) uint64 {
		ctx.Monitor.Clear()
		return 0
	}, nil)
}

// writeSized writes v to Xt (or Wt for accesses of 4 bytes or less).
func writeSized(ctx *emu.Context, reg uint8, size int, v uint64) {
	ctx.Regs.WriteReg(reg, v&emu.Ones(uint(size)*8))
}

type exclusiveOp struct {
	load bool
	pair bool
	size int // bytes per register
	rs   uint8
	rt   uint8
	rt2  uint8
	rn   uint8
}

func decodeExclusive(word uint32) (exclusiveOp, error) {
	op := exclusiveOp{
		load: insts.Bit(word, 22) == 1,
		pair: insts.Bit(word, 21) == 1,
		rs:   insts.Rs(word),
		rt:   insts.Rt(word),
		rt2:  insts.Rt2(word),
		rn:   insts.Rn(word),
		size: 1 << insts.LSSize(word),
	}
	if op.pair {
		// LDXP/STXP: size<1> is 1 and size<0> picks W or X registers.
		op.size = 4 << insts.Bit(word, 30)
	} else if op.rt2 != 31 {
		return op, reserved("exclusive Rt2=%d", op.rt2)
	}
	if op.load && op.rs != 31 {
		return op, reserved("load exclusive Rs=%d", op.rs)
	}
	return op, nil
}

// exclusive executes LDXR/LDAXR/STXR/STLXR and their pair forms. A store
// succeeds only against an intact reservation of the same address and size
// whose memory still holds the values the load observed; Ws receives 0 on
// success and 1 on failure, and a failed store writes nothing.
func exclusive(ctx *emu.Context, a Args) uint64 {
	op := must(decodeExclusive(a.Word()))
	addr := ctx.Regs.ReadRegOrSP(op.rn)
	total := op.size
	if op.pair {
		total *= 2
	}

	if op.load {
		v1 := ctx.Read(addr, op.size)
		if op.pair {
			v2 := ctx.Read(addr+uint64(op.size), op.size)
			ctx.Monitor.Reserve(addr, total, v1, v2)
			writeSized(ctx, op.rt, op.size, v1)
			writeSized(ctx, op.rt2, op.size, v2)
			return 0
		}
		ctx.Monitor.Reserve(addr, total, v1)
		writeSized(ctx, op.rt, op.size, v1)
		return 0
	}

	seen, ok := ctx.Monitor.Check(addr, total)
	if ok {
		ok = ctx.Read(addr, op.size) == seen[0] &&
			(!op.pair || ctx.Read(addr+uint64(op.size), op.size) == seen[1])
	}
	if !ok {
		ctx.Regs.WriteReg(op.rs, 1)
		return 0
	}

	ctx.Write(addr, op.size, ctx.Regs.ReadReg(op.rt))
	if op.pair {
		ctx.Write(addr+uint64(op.size), op.size, ctx.Regs.ReadReg(op.rt2))
	}
	ctx.Regs.WriteReg(op.rs, 0)
	return 0
}

type compareSwapOp struct {
	pair bool
	size int // bytes per register
	rs   uint8
	rt   uint8
	rn   uint8
}

func decodeCompareSwap(word uint32) (compareSwapOp, error) {
	op := compareSwapOp{
		rs:   insts.Rs(word),
		rt:   insts.Rt(word),
		rn:   insts.Rn(word),
		pair: insts.Bit(word, 23) == 0,
	}
	if insts.Rt2(word) != 31 {
		return op, reserved("CAS Rt2=%d", insts.Rt2(word))
	}
	if op.pair {
		op.size = 4 << insts.Bit(word, 30)
		if op.rs&1 == 1 || op.rt&1 == 1 {
			return op, reserved("CASP with odd register")
		}
		return op, nil
	}
	op.size = 1 << insts.LSSize(word)
	return op, nil
}

// compareSwap executes CAS and CASP. The old memory value is always written
// back to the compare register(s).
func compareSwap(ctx *emu.Context, a Args) uint64 {
	op := must(decodeCompareSwap(a.Word()))
	addr := ctx.Regs.ReadRegOrSP(op.rn)
	mask := emu.Ones(uint(op.size) * 8)

	if !op.pair {
		old := ctx.Read(addr, op.size)
		if old == ctx.Regs.ReadReg(op.rs)&mask {
			ctx.Write(addr, op.size, ctx.Regs.ReadReg(op.rt))
		}
		writeSized(ctx, op.rs, op.size, old)
		return 0
	}

	step := uint64(op.size)
	old1 := ctx.Read(addr, op.size)
	old2 := ctx.Read(addr+step, op.size)
	if old1 == ctx.Regs.ReadReg(op.rs)&mask && old2 == ctx.Regs.ReadReg(op.rs+1)&mask {
		ctx.Write(addr, op.size, ctx.Regs.ReadReg(op.rt))
		ctx.Write(addr+step, op.size, ctx.Regs.ReadReg(op.rt+1))
	}
	writeSized(ctx, op.rs, op.size, old1)
	writeSized(ctx, op.rs+1, op.size, old2)
	return 0
}

type atomicKind uint8

const (
	atomicAdd atomicKind = iota
	atomicClr
	atomicEor
	atomicSet
	atomicSMax
	atomicSMin
	atomicUMax
	atomicUMin
	atomicSwap
	atomicLoadAcquirePC
)

type atomicOp struct {
	kind atomicKind
	size int
	rs   uint8
	rt   uint8
	rn   uint8
}

func decodeAtomic(word uint32) (atomicOp, error) {
	op := atomicOp{
		size: 1 << insts.LSSize(word),
		rs:   insts.Rs(word),
		rt:   insts.Rt(word),
		rn:   insts.Rn(word),
	}
	if insts.Bit(word, 26) == 1 {
		return op, reserved("SIMD atomic")
	}

	o3 := insts.Bit(word, 15)
	opc := insts.Field(word, 14, 12)
	switch {
	case o3 == 0:
		op.kind = atomicKind(opc)
	case opc == 0b000:
		op.kind = atomicSwap
	case opc == 0b100 && insts.Field(word, 23, 22) == 0b10 && op.rs == 31:
		op.kind = atomicLoadAcquirePC
	default:
		return op, reserved("atomic o3=%d opc=%03b", o3, opc)
	}
	return op, nil
}

// atomic executes the LSE read-modify-write family (LDADD, LDCLR, LDEOR,
// LDSET, LD[SU]MAX, LD[SU]MIN, SWP) and LDAPR. Rt receives the old value;
// the ST* aliases use Rt=ZR and discard it.
func atomic(ctx *emu.Context, a Args) uint64 {
	op := must(decodeAtomic(a.Word()))
	addr := ctx.Regs.ReadRegOrSP(op.rn)
	width := uint(op.size) * 8
	old := ctx.Read(addr, op.size)

	if op.kind == atomicLoadAcquirePC {
		writeSized(ctx, op.rt, op.size, old)
		return 0
	}

	operand := ctx.Regs.ReadReg(op.rs) & emu.Ones(width)
	var result uint64
	switch op.kind {
	case atomicAdd:
		result = old + operand
	case atomicClr:
		result = old &^ operand
	case atomicEor:
		result = old ^ operand
	case atomicSet:
		result = old | operand
	case atomicSMax:
		result = pick(emu.SignExtendLane(operand, width) > emu.SignExtendLane(old, width), operand, old)
	case atomicSMin:
		result = pick(emu.SignExtendLane(operand, width) < emu.SignExtendLane(old, width), operand, old)
	case atomicUMax:
		result = pick(operand > old, operand, old)
	case atomicUMin:
		result = pick(operand < old, operand, old)
	case atomicSwap:
		result = operand
	}

	ctx.Write(addr, op.size, result)
	writeSized(ctx, op.rt, op.size, old)
	return 0
}

func pick(cond bool, a, b uint64) uint64 {
	if cond {
		return a
	}
	return b
}

type barrierKind uint8

const (
	barrierDSB barrierKind = iota
	barrierDMB
	barrierISB
	barrierSB
)

func decodeBarrier(word uint32) (barrierKind, error) {
	if insts.Rt(word) != 31 {
		return 0, reserved("barrier Rt=%d", insts.Rt(word))
	}
	switch insts.Field(word, 7, 5) {
	case 0b100:
		return barrierDSB, nil
	case 0b101:
		return barrierDMB, nil
	case 0b110:
		return barrierISB, nil
	case 0b111:
		return barrierSB, nil
	case 0b010:
		return 0, unsupported("CLREX goes through its own helper")
	default:
		return 0, unsupported("barrier op2=%03b", insts.Field(word, 7, 5))
	}
}

// barrier is the call site of DMB, DSB, ISB and SB. A single context sees
// its own accesses in program order, so nothing moves here; a concurrent
// backend replaces this entry with a real fence.
func barrier(_ *emu.Context, a Args) uint64 {
	must(decodeBarrier(a.Word()))
	return 0
}
