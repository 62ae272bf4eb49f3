// Package helpers provides the run-time helpers called from translated code.
package helpers

import (
	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/ir"
)

func init() {
	register(ir.HelperSIMDThreeSame, ir.RetNone,
		simdHelper(decodeThreeSame), checkOf(decodeThreeSame))
	register(ir.HelperSIMDScalarThreeSame, ir.RetNone,
		simdHelper(decodeScalarThreeSame), checkOf(decodeScalarThreeSame))
	register(ir.HelperSIMDThreeDiff, ir.RetNone,
		simdHelper(decodeThreeDiff), checkOf(decodeThreeDiff))
	register(ir.HelperSIMDScalarThreeDiff, ir.RetNone,
		simdHelper(decodeScalarThreeDiff), checkOf(decodeScalarThreeDiff))
}

type sameRow struct {
	fn          laneFunc
	sizes       uint8 // vector sizes
	scalarSizes uint8 // zero when there is no scalar form
	pairwise    bool
}

// intSame is the integer three-same table, keyed by U:opcode.
var intSame = map[uint32]sameRow{
	0x00: {fn: laneHAdd, sizes: sizeBHS},                        // SHADD
	0x20: {fn: laneHAdd, sizes: sizeBHS},                        // UHADD
	0x01: {fn: laneQAdd, sizes: sizeAll, scalarSizes: sizeAll},  // SQADD
	0x21: {fn: laneQAdd, sizes: sizeAll, scalarSizes: sizeAll},  // UQADD
	0x02: {fn: laneRHAdd, sizes: sizeBHS},                       // SRHADD
	0x22: {fn: laneRHAdd, sizes: sizeBHS},                       // URHADD
	0x04: {fn: laneHSub, sizes: sizeBHS},                        // SHSUB
	0x24: {fn: laneHSub, sizes: sizeBHS},                        // UHSUB
	0x05: {fn: laneQSub, sizes: sizeAll, scalarSizes: sizeAll},  // SQSUB
	0x25: {fn: laneQSub, sizes: sizeAll, scalarSizes: sizeAll},  // UQSUB
	0x06: {fn: laneCmGT, sizes: sizeAll, scalarSizes: sizeD},    // CMGT
	0x26: {fn: laneCmGT, sizes: sizeAll, scalarSizes: sizeD},    // CMHI
	0x07: {fn: laneCmGE, sizes: sizeAll, scalarSizes: sizeD},    // CMGE
	0x27: {fn: laneCmGE, sizes: sizeAll, scalarSizes: sizeD},    // CMHS
	0x08: {fn: laneShl, sizes: sizeAll, scalarSizes: sizeD},     // SSHL
	0x28: {fn: laneShl, sizes: sizeAll, scalarSizes: sizeD},     // USHL
	0x09: {fn: laneQShl, sizes: sizeAll, scalarSizes: sizeAll},  // SQSHL
	0x29: {fn: laneQShl, sizes: sizeAll, scalarSizes: sizeAll},  // UQSHL
	0x0A: {fn: laneRShl, sizes: sizeAll, scalarSizes: sizeD},    // SRSHL
	0x2A: {fn: laneRShl, sizes: sizeAll, scalarSizes: sizeD},    // URSHL
	0x0B: {fn: laneQRShl, sizes: sizeAll, scalarSizes: sizeAll}, // SQRSHL
	0x2B: {fn: laneQRShl, sizes: sizeAll, scalarSizes: sizeAll}, // UQRSHL
	0x0C: {fn: laneMax, sizes: sizeBHS},                         // SMAX
	0x2C: {fn: laneMax, sizes: sizeBHS},                         // UMAX
	0x0D: {fn: laneMin, sizes: sizeBHS},                         // SMIN
	0x2D: {fn: laneMin, sizes: sizeBHS},                         // UMIN
	0x0E: {fn: laneAbd, sizes: sizeBHS},                         // SABD
	0x2E: {fn: laneAbd, sizes: sizeBHS},                         // UABD
	0x0F: {fn: laneAba, sizes: sizeBHS},                         // SABA
	0x2F: {fn: laneAba, sizes: sizeBHS},                         // UABA
	0x10: {fn: laneAdd, sizes: sizeAll, scalarSizes: sizeD},     // ADD
	0x30: {fn: laneSub, sizes: sizeAll, scalarSizes: sizeD},     // SUB
	0x11: {fn: laneCmTst, sizes: sizeAll, scalarSizes: sizeD},   // CMTST
	0x31: {fn: laneCmEQ, sizes: sizeAll, scalarSizes: sizeD},    // CMEQ
	0x12: {fn: laneMla, sizes: sizeBHS},                         // MLA
	0x32: {fn: laneMls, sizes: sizeBHS},                         // MLS
	0x13: {fn: laneMul, sizes: sizeBHS},                         // MUL
	0x33: {fn: lanePMul, sizes: sizeB},                          // PMUL
	0x14: {fn: laneMax, sizes: sizeBHS, pairwise: true},         // SMAXP
	0x34: {fn: laneMax, sizes: sizeBHS, pairwise: true},         // UMAXP
	0x15: {fn: laneMin, sizes: sizeBHS, pairwise: true},         // SMINP
	0x35: {fn: laneMin, sizes: sizeBHS, pairwise: true},         // UMINP
	0x16: {fn: laneQDMulH, sizes: sizeHS, scalarSizes: sizeHS},  // SQDMULH
	0x36: {fn: laneQRDMulH, sizes: sizeHS, scalarSizes: sizeHS}, // SQRDMULH
	0x17: {fn: laneAdd, sizes: sizeAll, pairwise: true},         // ADDP
}

// logicSame holds the bitwise forms of opcode 00011, keyed by U:size.
var logicSame = [8]laneFunc{
	laneAnd, laneBic, laneOrr, laneOrn,
	laneEor, laneBsl, laneBit, laneBif,
}

type fpSameRow struct {
	fn       laneFunc
	scalar   bool
	pairwise bool
}

// fpSame is the single/double three-same table, keyed by U:size<1>:opcode<2:0>.
var fpSame = map[uint32]fpSameRow{
	0b0_0_000: {fn: fpLane(fp2MaxNum)},                 // FMAXNM
	0b0_0_001: {fn: laneFMla},                          // FMLA
	0b0_0_010: {fn: fpLane(fp2Add)},                    // FADD
	0b0_0_011: {fn: laneFMulX, scalar: true},           // FMULX
	0b0_0_100: {fn: laneFCmEQ, scalar: true},           // FCMEQ
	0b0_0_110: {fn: fpLane(fp2Max)},                    // FMAX
	0b0_0_111: {fn: laneFRecpS, scalar: true},          // FRECPS
	0b0_1_000: {fn: fpLane(fp2MinNum)},                 // FMINNM
	0b0_1_001: {fn: laneFMls},                          // FMLS
	0b0_1_010: {fn: fpLane(fp2Sub)},                    // FSUB
	0b0_1_110: {fn: fpLane(fp2Min)},                    // FMIN
	0b0_1_111: {fn: laneFRSqrtS, scalar: true},         // FRSQRTS
	0b1_0_000: {fn: fpLane(fp2MaxNum), pairwise: true}, // FMAXNMP
	0b1_0_010: {fn: fpLane(fp2Add), pairwise: true},    // FADDP
	0b1_0_011: {fn: fpLane(fp2Mul)},                    // FMUL
	0b1_0_100: {fn: laneFCmGE, scalar: true},           // FCMGE
	0b1_0_101: {fn: laneFAcGE, scalar: true},           // FACGE
	0b1_0_110: {fn: fpLane(fp2Max), pairwise: true},    // FMAXP
	0b1_0_111: {fn: fpLane(fp2Div)},                    // FDIV
	0b1_1_000: {fn: fpLane(fp2MinNum), pairwise: true}, // FMINNMP
	0b1_1_010: {fn: laneFAbd, scalar: true},            // FABD
	0b1_1_100: {fn: laneFCmGT, scalar: true},           // FCMGT
	0b1_1_101: {fn: laneFAcGT, scalar: true},           // FACGT
	0b1_1_110: {fn: fpLane(fp2Min), pairwise: true},    // FMINP
}

func decodeThreeSame(word uint32) (simdOp, error) {
	return threeSame(word, false)
}

func decodeScalarThreeSame(word uint32) (simdOp, error) {
	return threeSame(word, true)
}

func threeSame(word uint32, scalar bool) (simdOp, error) {
	u := insts.Bit(word, 29)
	size := insts.Size(word)
	opcode := insts.Field(word, 15, 11)
	op := laneOp{scalar: scalar, signed: u == 0}

	if opcode >= 0b11000 {
		key := u<<4 | size>>1<<3 | opcode&7
		row, ok := fpSame[key]
		switch {
		case u == 0 && opcode == 0b11101, u == 1 && opcode == 0b11001:
			return nil, unsupported("FMLAL/FMLSL")
		case !ok, scalar && !row.scalar:
			return nil, reserved("FP three-same U=%d opcode=%05b", u, opcode)
		}
		arr, err := fpShape(word, scalar)
		if err != nil {
			return nil, err
		}
		op.arr, op.fp, op.fn, op.pairwise = arr, true, row.fn, row.pairwise
		return op.exec(), nil
	}

	if opcode == 0b00011 {
		if scalar {
			return nil, reserved("scalar three-same logical")
		}
		op.arr = emu.Arrangement{ESize: 8, Count: 1}
		if insts.Q(word) {
			op.arr.Count = 2
		}
		op.fn = logicSame[u<<2|size]
		return op.exec(), nil
	}

	row, ok := intSame[u<<5|opcode]
	if !ok {
		return nil, reserved("three-same U=%d opcode=%05b", u, opcode)
	}
	if scalar {
		if !sizeAllowed(row.scalarSizes, size) {
			return nil, reserved("scalar three-same U=%d opcode=%05b size=%d", u, opcode, size)
		}
		op.arr = scalarShape(size)
	} else {
		if !sizeAllowed(row.sizes, size) {
			return nil, reserved("three-same U=%d opcode=%05b size=%d", u, opcode, size)
		}
		arr, err := vectorShape(word)
		if err != nil {
			return nil, err
		}
		op.arr = arr
	}
	op.fn, op.pairwise = row.fn, row.pairwise
	return op.exec(), nil
}

// diffKind selects the shape of a three-different operation.
type diffKind uint8

const (
	diffLong   diffKind = iota // narrow x narrow -> wide
	diffWide                   // wide x narrow -> wide
	diffNarrow                 // wide x wide -> narrow high half
)

type diffRow struct {
	kind   diffKind
	fn     laneFunc // e.width is the narrow width
	sizes  uint8
	scalar bool
}

func wideAdd(e *laneEnv, x, y, _ uint64) uint64  { return e.ext(x) + e.ext(y) }
func wideSub(e *laneEnv, x, y, _ uint64) uint64  { return e.ext(x) - e.ext(y) }
func wideAddW(e *laneEnv, x, y, _ uint64) uint64 { return x + e.ext(y) }
func wideSubW(e *laneEnv, x, y, _ uint64) uint64 { return x - e.ext(y) }
func wideMul(e *laneEnv, x, y, _ uint64) uint64  { return e.ext(x) * e.ext(y) }
func wideMla(e *laneEnv, x, y, d uint64) uint64  { return d + e.ext(x)*e.ext(y) }
func wideMls(e *laneEnv, x, y, d uint64) uint64  { return d - e.ext(x)*e.ext(y) }
func wideAbd(e *laneEnv, x, y, _ uint64) uint64  { return laneAbd(e, x, y, 0) }
func wideAba(e *laneEnv, x, y, d uint64) uint64  { return d + laneAbd(e, x, y, 0) }

func widePMul(e *laneEnv, x, y, _ uint64) uint64 {
	return polyMul(e.mask(x), e.mask(y), e.width)
}

func wideQDMull(e *laneEnv, x, y, _ uint64) uint64 {
	return e.sat(emu.DoublingMulLong(x, y, e.width))
}

func wideQDMlal(e *laneEnv, x, y, d uint64) uint64 {
	p := wideQDMull(e, x, y, 0)
	return e.sat(emu.SatAdd(d, p, 2*e.width, true))
}

func wideQDMlsl(e *laneEnv, x, y, d uint64) uint64 {
	p := wideQDMull(e, x, y, 0)
	return e.sat(emu.SatSub(d, p, 2*e.width, true))
}

func narrowAdd(e *laneEnv, x, y, _ uint64) uint64 { return (x + y) >> e.width }
func narrowSub(e *laneEnv, x, y, _ uint64) uint64 { return (x - y) >> e.width }

func narrowRAdd(e *laneEnv, x, y, _ uint64) uint64 {
	return (x + y + 1<<(e.width-1)) & emu.Ones(2*e.width) >> e.width
}

func narrowRSub(e *laneEnv, x, y, _ uint64) uint64 {
	return (x - y + 1<<(e.width-1)) & emu.Ones(2*e.width) >> e.width
}

// threeDiffTable is the three-different table, keyed by U:opcode.
var threeDiffTable = map[uint32]diffRow{
	0x00: {kind: diffLong, fn: wideAdd, sizes: sizeBHS},                 // SADDL
	0x10: {kind: diffLong, fn: wideAdd, sizes: sizeBHS},                 // UADDL
	0x01: {kind: diffWide, fn: wideAddW, sizes: sizeBHS},                // SADDW
	0x11: {kind: diffWide, fn: wideAddW, sizes: sizeBHS},                // UADDW
	0x02: {kind: diffLong, fn: wideSub, sizes: sizeBHS},                 // SSUBL
	0x12: {kind: diffLong, fn: wideSub, sizes: sizeBHS},                 // USUBL
	0x03: {kind: diffWide, fn: wideSubW, sizes: sizeBHS},                // SSUBW
	0x13: {kind: diffWide, fn: wideSubW, sizes: sizeBHS},                // USUBW
	0x04: {kind: diffNarrow, fn: narrowAdd, sizes: sizeBHS},             // ADDHN
	0x14: {kind: diffNarrow, fn: narrowRAdd, sizes: sizeBHS},            // RADDHN
	0x05: {kind: diffLong, fn: wideAba, sizes: sizeBHS},                 // SABAL
	0x15: {kind: diffLong, fn: wideAba, sizes: sizeBHS},                 // UABAL
	0x06: {kind: diffNarrow, fn: narrowSub, sizes: sizeBHS},             // SUBHN
	0x16: {kind: diffNarrow, fn: narrowRSub, sizes: sizeBHS},            // RSUBHN
	0x07: {kind: diffLong, fn: wideAbd, sizes: sizeBHS},                 // SABDL
	0x17: {kind: diffLong, fn: wideAbd, sizes: sizeBHS},                 // UABDL
	0x08: {kind: diffLong, fn: wideMla, sizes: sizeBHS},                 // SMLAL
	0x18: {kind: diffLong, fn: wideMla, sizes: sizeBHS},                 // UMLAL
	0x09: {kind: diffLong, fn: wideQDMlal, sizes: sizeHS, scalar: true}, // SQDMLAL
	0x0A: {kind: diffLong, fn: wideMls, sizes: sizeBHS},                 // SMLSL
	0x1A: {kind: diffLong, fn: wideMls, sizes: sizeBHS},                 // UMLSL
	0x0B: {kind: diffLong, fn: wideQDMlsl, sizes: sizeHS, scalar: true}, // SQDMLSL
	0x0C: {kind: diffLong, fn: wideMul, sizes: sizeBHS},                 // SMULL
	0x1C: {kind: diffLong, fn: wideMul, sizes: sizeBHS},                 // UMULL
	0x0D: {kind: diffLong, fn: wideQDMull, sizes: sizeHS, scalar: true}, // SQDMULL
	0x0E: {kind: diffLong, fn: widePMul, sizes: sizeB},                  // PMULL
}

type diffOp struct {
	row    diffRow
	esize  int // narrow element size in bytes
	part   int
	signed bool
	scalar bool
}

func decodeThreeDiff(word uint32) (simdOp, error) {
	return threeDiff(word, false)
}

func decodeScalarThreeDiff(word uint32) (simdOp, error) {
	return threeDiff(word, true)
}

func threeDiff(word uint32, scalar bool) (simdOp, error) {
	u := insts.Bit(word, 29)
	opcode := insts.Field(word, 15, 12)
	size := insts.Size(word)

	row, ok := threeDiffTable[u<<4|opcode]
	switch {
	case opcode == 0b1110 && u == 0 && size == 3:
		return nil, unsupported("PMULL 1Q")
	case !ok || (scalar && !row.scalar):
		return nil, reserved("three-different U=%d opcode=%04b", u, opcode)
	case !sizeAllowed(row.sizes, size):
		return nil, reserved("three-different U=%d opcode=%04b size=%d", u, opcode, size)
	}

	op := diffOp{row: row, esize: 1 << size, signed: u == 0, scalar: scalar}
	if !scalar && insts.Q(word) {
		op.part = 1
	}
	return op.exec, nil
}

func (op diffOp) exec(ctx *emu.Context, word uint32) {
	r := &ctx.Regs
	e := &laneEnv{width: uint(op.esize) * 8, signed: op.signed}
	rd, rn, rm := insts.Rd(word), insts.Rn(word), insts.Rm(word)
	wide := emu.Arrangement{ESize: 2 * op.esize, Count: 8 / op.esize}
	count := wide.Count
	if op.scalar {
		count = 1
	}

	out := make([]uint64, count)
	for i := range out {
		j := op.part*wide.Count + i
		switch op.row.kind {
		case diffLong:
			d := r.Lane(rd, wide.ESize, i)
			out[i] = op.row.fn(e, r.Lane(rn, op.esize, j), r.Lane(rm, op.esize, j), d)
		case diffWide:
			out[i] = op.row.fn(e, r.Lane(rn, wide.ESize, i), r.Lane(rm, op.esize, j), 0)
		case diffNarrow:
			out[i] = op.row.fn(e, r.Lane(rn, wide.ESize, i), r.Lane(rm, wide.ESize, i), 0)
		}
	}

	if op.row.kind == diffNarrow {
		for i := range out {
			out[i] &= emu.Ones(e.width)
		}
		writeHalf(r, rd, op.esize, op.part, out)
		e.publish(ctx)
		return
	}

	for i := range out {
		out[i] &= emu.Ones(2 * e.width)
	}
	writeResult(ctx, e, rd, wide, op.scalar, out)
}
