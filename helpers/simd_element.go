// Package helpers provides the run-time helpers called from translated code.
package helpers

import (
	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/ir"
)

func init() {
	register(ir.HelperSIMDByElement, ir.RetNone,
		simdHelper(decodeByElement), checkOf(decodeByElement))
	register(ir.HelperSIMDScalarByElement, ir.RetNone,
		simdHelper(decodeScalarByElement), checkOf(decodeScalarByElement))
}

type elementRow struct {
	fn     laneFunc
	long   bool
	scalar bool
	fp     bool
}

// elementTable is the by-element table, keyed by U:opcode.
var elementTable = map[uint32]elementRow{
	0x02: {fn: wideMla, long: true},                    // SMLAL
	0x12: {fn: wideMla, long: true},                    // UMLAL
	0x03: {fn: wideQDMlal, long: true, scalar: true},   // SQDMLAL
	0x06: {fn: wideMls, long: true},                    // SMLSL
	0x16: {fn: wideMls, long: true},                    // UMLSL
	0x07: {fn: wideQDMlsl, long: true, scalar: true},   // SQDMLSL
	0x0A: {fn: wideMul, long: true},                    // SMULL
	0x1A: {fn: wideMul, long: true},                    // UMULL
	0x0B: {fn: wideQDMull, long: true, scalar: true},   // SQDMULL
	0x08: {fn: laneMul},                                // MUL
	0x10: {fn: laneMla},                                // MLA
	0x14: {fn: laneMls},                                // MLS
	0x0C: {fn: laneQDMulH, scalar: true},               // SQDMULH
	0x0D: {fn: laneQRDMulH, scalar: true},              // SQRDMULH
	0x01: {fn: laneFMla, scalar: true, fp: true},       // FMLA
	0x05: {fn: laneFMls, scalar: true, fp: true},       // FMLS
	0x09: {fn: fpLane(fp2Mul), scalar: true, fp: true}, // FMUL
	0x19: {fn: laneFMulX, scalar: true, fp: true},      // FMULX
}

type elementOp struct {
	row    elementRow
	esize  int
	index  int
	rm     uint8
	count  int // result lanes
	part   int
	signed bool
	scalar bool
}

func decodeByElement(word uint32) (simdOp, error) {
	return byElement(word, false)
}

func decodeScalarByElement(word uint32) (simdOp, error) {
	return byElement(word, true)
}

func byElement(word uint32, scalar bool) (simdOp, error) {
	u := insts.Bit(word, 29)
	opcode := insts.Field(word, 15, 12)
	size := insts.Size(word)
	q := insts.Q(word)

	row, ok := elementTable[u<<4|opcode]
	switch {
	case u == 1 && opcode&1 == 1 && opcode != 0b1001:
		return nil, unsupported("FCMLA/SQRDMLAH/SQRDMLSH (by element)")
	case opcode == 0b1110 || (u == 0 && opcode == 0b1111):
		return nil, unsupported("dot product (by element)")
	case !ok && (opcode == 0b0000 || opcode == 0b0100 || opcode == 0b1000 || opcode == 0b1100):
		return nil, unsupported("FMLAL/FMLSL (by element)")
	case !ok || (scalar && !row.scalar):
		return nil, reserved("by-element U=%d opcode=%04b", u, opcode)
	}

	h, l, m := insts.Bit(word, 11), insts.Bit(word, 21), insts.Bit(word, 20)
	op := elementOp{row: row, esize: 1 << size, signed: u == 0, scalar: scalar}
	rm := insts.Field(word, 19, 16)

	if row.fp {
		switch {
		case size == 0:
			return nil, unsupported("half-precision by element")
		case size == 1:
			return nil, reserved("FP by element size=1")
		case size == 3 && (l == 1 || (!scalar && !q)):
			return nil, reserved("FP by element on doubles L=%d Q=%v", l, q)
		}
	} else if size == 0 || size == 3 {
		return nil, reserved("by element size=%d", size)
	}

	switch size {
	case 1:
		op.index = int(h<<2 | l<<1 | m)
		op.rm = uint8(rm)
	case 2:
		op.index = int(h<<1 | l)
		op.rm = uint8(m<<4 | rm)
	default:
		op.index = int(h)
		op.rm = uint8(m<<4 | rm)
	}

	switch {
	case scalar:
		op.count = 1
	case row.long:
		op.count = 8 / op.esize
		op.part = int(insts.Bit(word, 30))
	default:
		op.count = 8 / op.esize
		if q {
			op.count *= 2
		}
	}
	return op.exec, nil
}

func (op elementOp) exec(ctx *emu.Context, word uint32) {
	r := &ctx.Regs
	e := &laneEnv{width: uint(op.esize) * 8, signed: op.signed}
	if op.row.fp {
		e.f = formatOfSize(op.esize)
		e.fp = ctx.FPEnv()
	}
	rd, rn := insts.Rd(word), insts.Rn(word)
	y := r.Lane(op.rm, op.esize, op.index)

	if op.row.long {
		wide := emu.Arrangement{ESize: 2 * op.esize, Count: op.count}
		out := make([]uint64, op.count)
		for i := range out {
			x := r.Lane(rn, op.esize, op.part*op.count+i)
			out[i] = op.row.fn(e, x, y, r.Lane(rd, wide.ESize, i)) & emu.Ones(2*e.width)
		}
		writeResult(ctx, e, rd, wide, op.scalar, out)
		return
	}

	arr := emu.Arrangement{ESize: op.esize, Count: op.count}
	out := make([]uint64, op.count)
	for i := range out {
		out[i] = op.row.fn(e, r.Lane(rn, op.esize, i), y, r.Lane(rd, op.esize, i))
	}
	writeResult(ctx, e, rd, arr, op.scalar, out)
}
