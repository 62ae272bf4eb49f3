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
	register(ir.HelperSIMDTwoRegMisc, ir.RetNone,
		simdHelper(decodeTwoRegMisc), checkOf(decodeTwoRegMisc))
	register(ir.HelperSIMDScalarTwoRegMisc, ir.RetNone,
		simdHelper(decodeScalarTwoRegMisc), checkOf(decodeScalarTwoRegMisc))
	register(ir.HelperSIMDAcrossLanes, ir.RetNone,
		simdHelper(decodeAcrossLanes), checkOf(decodeAcrossLanes))
	register(ir.HelperSIMDScalarPairwise, ir.RetNone,
		simdHelper(decodeScalarPairwise), checkOf(decodeScalarPairwise))
}

type miscKind uint8

const (
	miscSame miscKind = iota
	miscRev
	miscPairLong
	miscNarrow
	miscShll
)

type miscRow struct {
	kind        miscKind
	fn          laneFunc
	sizes       uint8
	scalarSizes uint8
	container   int  // miscRev: container size in bytes
	accumulate  bool // miscPairLong
}

func laneSatAcc(e *laneEnv, x, _, d uint64) uint64 {
	return e.sat(emu.SatAccumulate(d, x, e.width, e.signed))
}

func laneCls(e *laneEnv, x, _, _ uint64) uint64 { return Cls(x, e.width) }
func laneClz(e *laneEnv, x, _, _ uint64) uint64 { return Clz(x, e.width) }
func laneCnt(_ *laneEnv, x, _, _ uint64) uint64 { return uint64(bits.OnesCount8(uint8(x))) }
func laneNot(_ *laneEnv, x, _, _ uint64) uint64 { return uint64(^uint8(x)) }
func laneRbit(_ *laneEnv, x, _, _ uint64) uint64 { return uint64(bits.Reverse8(uint8(x))) }

func laneSatAbs(e *laneEnv, x, _, _ uint64) uint64 { return e.sat(emu.SatAbs(x, e.width)) }
func laneSatNeg(e *laneEnv, x, _, _ uint64) uint64 { return e.sat(emu.SatNeg(x, e.width)) }

func laneCmGT0(e *laneEnv, x, _, _ uint64) uint64 { return e.ones(e.sx(x) > 0) }
func laneCmGE0(e *laneEnv, x, _, _ uint64) uint64 { return e.ones(e.sx(x) >= 0) }
func laneCmEQ0(e *laneEnv, x, _, _ uint64) uint64 { return e.ones(e.mask(x) == 0) }
func laneCmLE0(e *laneEnv, x, _, _ uint64) uint64 { return e.ones(e.sx(x) <= 0) }
func laneCmLT0(e *laneEnv, x, _, _ uint64) uint64 { return e.ones(e.sx(x) < 0) }

func laneAbs(e *laneEnv, x, _, _ uint64) uint64 {
	if e.sx(x) < 0 {
		return e.mask(-x)
	}
	return e.mask(x)
}

func laneNeg(e *laneEnv, x, _, _ uint64) uint64 { return e.mask(-x) }

// Narrowing lane functions see e.width as the destination width.

func narrowXtn(e *laneEnv, x, _, _ uint64) uint64 { return e.mask(x) }

func narrowSat(e *laneEnv, x, _, _ uint64) uint64 {
	return e.sat(emu.SatNarrow(x, 2*e.width, e.width, e.signed, e.signed))
}

func narrowSatUnsigned(e *laneEnv, x, _, _ uint64) uint64 {
	return e.sat(emu.SatNarrow(x, 2*e.width, e.width, true, false))
}

// miscTable is the integer two-register miscellaneous table, keyed by
// U:opcode.
var miscTable = map[uint32]miscRow{
	0x00: {kind: miscRev, sizes: sizeBHS, container: 8},                                   // REV64
	0x20: {kind: miscRev, sizes: sizeB | sizeB<<1, container: 4},                          // REV32
	0x01: {kind: miscRev, sizes: sizeB, container: 2},                                     // REV16
	0x02: {kind: miscPairLong, sizes: sizeBHS},                                            // SADDLP
	0x22: {kind: miscPairLong, sizes: sizeBHS},                                            // UADDLP
	0x06: {kind: miscPairLong, sizes: sizeBHS, accumulate: true},                          // SADALP
	0x26: {kind: miscPairLong, sizes: sizeBHS, accumulate: true},                          // UADALP
	0x03: {fn: laneSatAcc, sizes: sizeAll, scalarSizes: sizeAll},                          // SUQADD
	0x23: {fn: laneSatAcc, sizes: sizeAll, scalarSizes: sizeAll},                          // USQADD
	0x04: {fn: laneCls, sizes: sizeBHS},                                                   // CLS
	0x24: {fn: laneClz, sizes: sizeBHS},                                                   // CLZ
	0x05: {fn: laneCnt, sizes: sizeB},                                                     // CNT
	0x07: {fn: laneSatAbs, sizes: sizeAll, scalarSizes: sizeAll},                          // SQABS
	0x27: {fn: laneSatNeg, sizes: sizeAll, scalarSizes: sizeAll},                          // SQNEG
	0x08: {fn: laneCmGT0, sizes: sizeAll, scalarSizes: sizeD},                             // CMGT #0
	0x28: {fn: laneCmGE0, sizes: sizeAll, scalarSizes: sizeD},                             // CMGE #0
	0x09: {fn: laneCmEQ0, sizes: sizeAll, scalarSizes: sizeD},                             // CMEQ #0
	0x29: {fn: laneCmLE0, sizes: sizeAll, scalarSizes: sizeD},                             // CMLE #0
	0x0A: {fn: laneCmLT0, sizes: sizeAll, scalarSizes: sizeD},                             // CMLT #0
	0x0B: {fn: laneAbs, sizes: sizeAll, scalarSizes: sizeD},                               // ABS
	0x2B: {fn: laneNeg, sizes: sizeAll, scalarSizes: sizeD},                               // NEG
	0x12: {kind: miscNarrow, fn: narrowXtn, sizes: sizeBHS},                               // XTN
	0x32: {kind: miscNarrow, fn: narrowSatUnsigned, sizes: sizeBHS, scalarSizes: sizeBHS}, // SQXTUN
	0x33: {kind: miscShll, sizes: sizeBHS},                                                // SHLL
	0x14: {kind: miscNarrow, fn: narrowSat, sizes: sizeBHS, scalarSizes: sizeBHS},         // SQXTN
	0x34: {kind: miscNarrow, fn: narrowSat, sizes: sizeBHS, scalarSizes: sizeBHS},         // UQXTN
}

func fpRound(mode softfloat.RoundingMode, exact, dynamic bool) laneFunc {
	return func(e *laneEnv, x, _, _ uint64) uint64 {
		m := mode
		if dynamic {
			m = e.fp.Mode
		}
		return softfloat.RoundToIntegral(e.fp, e.f, x, m, exact)
	}
}

func fpToIntLane(mode softfloat.RoundingMode, unsigned bool) laneFunc {
	return func(e *laneEnv, x, _, _ uint64) uint64 {
		return softfloat.ToInt(e.fp, e.f, x, e.width, unsigned, 0, mode)
	}
}

func fpFromIntLane(signed bool) laneFunc {
	return func(e *laneEnv, x, _, _ uint64) uint64 {
		return softfloat.FromInt(e.fp, e.f, x, e.width, signed, 0)
	}
}

func laneFCmGT0(e *laneEnv, x, _, _ uint64) uint64 { return laneFCmGT(e, x, 0, 0) }
func laneFCmGE0(e *laneEnv, x, _, _ uint64) uint64 { return laneFCmGE(e, x, 0, 0) }
func laneFCmEQ0(e *laneEnv, x, _, _ uint64) uint64 { return laneFCmEQ(e, x, 0, 0) }
func laneFCmLT0(e *laneEnv, x, _, _ uint64) uint64 { return laneFCmGT(e, 0, x, 0) }
func laneFCmLE0(e *laneEnv, x, _, _ uint64) uint64 { return laneFCmGE(e, 0, x, 0) }

func laneFAbs(e *laneEnv, x, _, _ uint64) uint64  { return e.f.Abs(x) }
func laneFNeg(e *laneEnv, x, _, _ uint64) uint64  { return e.f.Neg(x) }
func laneFSqrt(e *laneEnv, x, _, _ uint64) uint64 { return softfloat.Sqrt(e.fp, e.f, x) }

// fpMiscTable is the single/double two-register miscellaneous table, keyed
// by U:size<1>:opcode.
var fpMiscTable = map[uint32]fpSameRow{
	0b0_0_11000: {fn: fpRound(softfloat.RoundNearestEven, false, false)},            // FRINTN
	0b0_0_11001: {fn: fpRound(softfloat.RoundMinusInf, false, false)},               // FRINTM
	0b0_1_11000: {fn: fpRound(softfloat.RoundPlusInf, false, false)},                // FRINTP
	0b0_1_11001: {fn: fpRound(softfloat.RoundZero, false, false)},                   // FRINTZ
	0b1_0_11000: {fn: fpRound(softfloat.RoundNearestAway, false, false)},            // FRINTA
	0b1_0_11001: {fn: fpRound(0, true, true)},                                       // FRINTX
	0b1_1_11001: {fn: fpRound(0, false, true)},                                      // FRINTI
	0b0_0_11010: {fn: fpToIntLane(softfloat.RoundNearestEven, false), scalar: true}, // FCVTNS
	0b0_0_11011: {fn: fpToIntLane(softfloat.RoundMinusInf, false), scalar: true},    // FCVTMS
	0b0_0_11100: {fn: fpToIntLane(softfloat.RoundNearestAway, false), scalar: true}, // FCVTAS
	0b0_1_11010: {fn: fpToIntLane(softfloat.RoundPlusInf, false), scalar: true},     // FCVTPS
	0b0_1_11011: {fn: fpToIntLane(softfloat.RoundZero, false), scalar: true},        // FCVTZS
	0b1_0_11010: {fn: fpToIntLane(softfloat.RoundNearestEven, true), scalar: true},  // FCVTNU
	0b1_0_11011: {fn: fpToIntLane(softfloat.RoundMinusInf, true), scalar: true},     // FCVTMU
	0b1_0_11100: {fn: fpToIntLane(softfloat.RoundNearestAway, true), scalar: true},  // FCVTAU
	0b1_1_11010: {fn: fpToIntLane(softfloat.RoundPlusInf, true), scalar: true},      // FCVTPU
	0b1_1_11011: {fn: fpToIntLane(softfloat.RoundZero, true), scalar: true},         // FCVTZU
	0b0_0_11101: {fn: fpFromIntLane(true), scalar: true},                            // SCVTF
	0b1_0_11101: {fn: fpFromIntLane(false), scalar: true},                           // UCVTF
	0b0_1_01100: {fn: laneFCmGT0, scalar: true},                                     // FCMGT #0
	0b0_1_01101: {fn: laneFCmEQ0, scalar: true},                                     // FCMEQ #0
	0b0_1_01110: {fn: laneFCmLT0, scalar: true},                                     // FCMLT #0
	0b1_1_01100: {fn: laneFCmGE0, scalar: true},                                     // FCMGE #0
	0b1_1_01101: {fn: laneFCmLE0, scalar: true},                                     // FCMLE #0
	0b0_1_01111: {fn: laneFAbs},                                                     // FABS
	0b1_1_01111: {fn: laneFNeg},                                                     // FNEG
	0b1_1_11111: {fn: laneFSqrt},                                                    // FSQRT
}

func decodeTwoRegMisc(word uint32) (simdOp, error) {
	return twoRegMisc(word, false)
}

func decodeScalarTwoRegMisc(word uint32) (simdOp, error) {
	return twoRegMisc(word, true)
}

func twoRegMisc(word uint32, scalar bool) (simdOp, error) {
	u := insts.Bit(word, 29)
	size := insts.Size(word)
	opcode := insts.Field(word, 16, 12)

	if u == 1 && opcode == 0b00101 && !scalar {
		// NOT and RBIT share an opcode and split on size.
		op := laneOp{arr: emu.ArrangementOf(0, insts.Q(word)), unary: true}
		switch size {
		case 0:
			op.fn = laneNot
		case 1:
			op.fn = laneRbit
		default:
			return nil, reserved("NOT/RBIT size=%d", size)
		}
		return op.exec(), nil
	}

	if row, ok := miscTable[u<<5|opcode]; ok {
		return intMisc(word, row, u == 0, scalar)
	}

	switch {
	case opcode == 0b10110 || opcode == 0b10111:
		if u == 1 {
			return nil, unsupported("FCVTXN")
		}
		if scalar || size>>1 != 0 {
			return nil, reserved("FCVTN/FCVTL size=%d", size)
		}
		return fpConvertLanes(word, opcode == 0b10111), nil
	case size>>1 == 0 && opcode>>1 == 0b1111:
		return nil, unsupported("FRINT32/FRINT64")
	case size>>1 == 1 && (opcode>>1 == 0b1110 || opcode == 0b11111 && u == 0):
		return nil, unsupported("reciprocal estimate")
	}

	row, ok := fpMiscTable[u<<6|size>>1<<5|opcode]
	if !ok || (scalar && !row.scalar) {
		return nil, reserved("two-register misc U=%d size=%d opcode=%05b", u, size, opcode)
	}
	arr, err := fpShape(word, scalar)
	if err != nil {
		return nil, err
	}
	return laneOp{arr: arr, scalar: scalar, fp: true, unary: true, fn: row.fn}.exec(), nil
}

func intMisc(word uint32, row miscRow, signed, scalar bool) (simdOp, error) {
	size := insts.Size(word)
	if scalar {
		if !sizeAllowed(row.scalarSizes, size) {
			return nil, reserved("scalar two-register misc size=%d", size)
		}
	} else if !sizeAllowed(row.sizes, size) {
		return nil, reserved("two-register misc size=%d", size)
	}

	esize := 1 << size
	part := int(insts.Bit(word, 30))

	switch row.kind {
	case miscSame:
		arr := scalarShape(size)
		if !scalar {
			var err error
			if arr, err = vectorShape(word); err != nil {
				return nil, err
			}
		}
		return laneOp{arr: arr, scalar: scalar, signed: signed, unary: true, fn: row.fn}.exec(), nil
	case miscRev:
		arr := emu.ArrangementOf(size, insts.Q(word))
		flip := row.container/esize - 1
		return permuteLanes(arr, func(i int) int { return i ^ flip }), nil
	case miscPairLong:
		arr, err := vectorShape(word)
		if err != nil {
			return nil, err
		}
		return pairLong(arr, signed, row.accumulate), nil
	case miscNarrow:
		if scalar {
			part = 0
		}
		return narrowLanes(esize, part, signed, scalar, row.fn), nil
	default:
		return shll(esize, part), nil
	}
}

// permuteLanes returns an operation that sets lane i of Vd to lane src(i)
// of Vn.
func permuteLanes(arr emu.Arrangement, src func(i int) int) simdOp {
	return func(ctx *emu.Context, word uint32) {
		n := ctx.Regs.ReadLanes(insts.Rn(word), arr)
		out := make([]uint64, arr.Count)
		for i := range out {
			out[i] = n[src(i)]
		}
		ctx.Regs.WriteLanes(insts.Rd(word), arr, out)
	}
}

// pairLong adds adjacent lane pairs into double-width lanes (SADDLP,
// UADALP and friends).
func pairLong(arr emu.Arrangement, signed, accumulate bool) simdOp {
	wide := emu.Arrangement{ESize: 2 * arr.ESize, Count: arr.Count / 2}
	return func(ctx *emu.Context, word uint32) {
		e := &laneEnv{width: arr.Bits(), signed: signed}
		rd := insts.Rd(word)
		n := ctx.Regs.ReadLanes(insts.Rn(word), arr)
		d := ctx.Regs.ReadLanes(rd, wide)
		out := make([]uint64, wide.Count)
		for i := range out {
			v := e.ext(n[2*i]) + e.ext(n[2*i+1])
			if accumulate {
				v += d[i]
			}
			out[i] = v & emu.Ones(wide.Bits())
		}
		ctx.Regs.WriteLanes(rd, wide, out)
	}
}

// narrowLanes converts double-width lanes of Vn into one half of Vd.
func narrowLanes(esize, part int, signed, scalar bool, fn laneFunc) simdOp {
	return func(ctx *emu.Context, word uint32) {
		e := &laneEnv{width: uint(esize) * 8, signed: signed}
		rd, rn := insts.Rd(word), insts.Rn(word)
		count := 8 / esize
		if scalar {
			count = 1
		}
		out := make([]uint64, count)
		for i := range out {
			out[i] = fn(e, ctx.Regs.Lane(rn, 2*esize, i), 0, 0)
		}
		if scalar {
			ctx.Regs.SetScalar(rd, esize, out[0])
		} else {
			writeHalf(&ctx.Regs, rd, esize, part, out)
		}
		e.publish(ctx)
	}
}

// shll shifts each lane of one half of Vn left by the lane width into a
// double-width lane.
func shll(esize, part int) simdOp {
	return func(ctx *emu.Context, word uint32) {
		width := uint(esize) * 8
		wide := emu.Arrangement{ESize: 2 * esize, Count: 8 / esize}
		in := halfLanes(&ctx.Regs, insts.Rn(word), esize, part)
		out := make([]uint64, wide.Count)
		for i, v := range in {
			out[i] = v << width & emu.Ones(2*width)
		}
		ctx.Regs.WriteLanes(insts.Rd(word), wide, out)
	}
}

// fpConvertLanes is FCVTN (narrowing to the half selected by Q) and FCVTL
// (widening from it).
func fpConvertLanes(word uint32, widen bool) simdOp {
	narrow, wide := softfloat.Half, softfloat.Single
	if insts.Bit(word, 22) == 1 {
		narrow, wide = softfloat.Single, softfloat.Double
	}
	part := int(insts.Bit(word, 30))

	return func(ctx *emu.Context, word uint32) {
		env := ctx.FPEnv()
		r := &ctx.Regs
		rd, rn := insts.Rd(word), insts.Rn(word)
		ns, ws := narrow.Size(), wide.Size()
		count := 8 / ns

		if widen {
			in := halfLanes(r, rn, ns, part)
			out := make([]uint64, len(in))
			for i, v := range in {
				out[i] = softfloat.Convert(env, narrow, wide, v)
			}
			r.WriteLanes(rd, emu.Arrangement{ESize: ws, Count: len(out)}, out)
		} else {
			out := make([]uint64, count)
			for i := range out {
				out[i] = softfloat.Convert(env, wide, narrow, r.Lane(rn, ws, i))
			}
			writeHalf(r, rd, ns, part, out)
		}
		ctx.RaiseFP(env)
	}
}

func decodeAcrossLanes(word uint32) (simdOp, error) {
	u := insts.Bit(word, 29)
	size := insts.Size(word)
	opcode := insts.Field(word, 16, 12)
	q := insts.Q(word)

	if opcode == 0b01100 || opcode == 0b01111 {
		if u == 0 {
			return nil, unsupported("half-precision across-lanes")
		}
		if size&1 == 1 || !q {
			return nil, reserved("FP across-lanes size=%d Q=%v", size, q)
		}
		kind := fp2MaxNum
		switch {
		case opcode == 0b01100 && size>>1 == 1:
			kind = fp2MinNum
		case opcode == 0b01111 && size>>1 == 0:
			kind = fp2Max
		case opcode == 0b01111:
			kind = fp2Min
		}
		return func(ctx *emu.Context, word uint32) {
			env := ctx.FPEnv()
			lanes := ctx.Regs.ReadLanes(insts.Rn(word), emu.Arr4S)
			ctx.Regs.SetScalar(insts.Rd(word), 4, fpReduce(env, kind, softfloat.Single, lanes))
			ctx.RaiseFP(env)
		}, nil
	}

	if size == 3 || (size == 2 && !q) {
		return nil, reserved("across-lanes size=%d Q=%v", size, q)
	}
	arr := emu.ArrangementOf(size, q)
	width := arr.Bits()
	signed := u == 0

	var reduce func(lanes []uint64) (uint64, int)
	switch {
	case opcode == 0b00011: // SADDLV, UADDLV
		reduce = func(lanes []uint64) (uint64, int) {
			e := &laneEnv{width: width, signed: signed}
			var sum uint64
			for _, l := range lanes {
				sum += e.ext(l)
			}
			return sum & emu.Ones(2*width), 2 * arr.ESize
		}
	case opcode == 0b01010: // SMAXV, UMAXV
		reduce = func(lanes []uint64) (uint64, int) {
			return emu.ReduceMax(lanes, width, signed), arr.ESize
		}
	case opcode == 0b11010: // SMINV, UMINV
		reduce = func(lanes []uint64) (uint64, int) {
			return emu.ReduceMin(lanes, width, signed), arr.ESize
		}
	case opcode == 0b11011 && u == 0: // ADDV
		reduce = func(lanes []uint64) (uint64, int) {
			return emu.ReduceAdd(lanes, width), arr.ESize
		}
	default:
		return nil, reserved("across-lanes U=%d opcode=%05b", u, opcode)
	}

	return func(ctx *emu.Context, word uint32) {
		v, esize := reduce(ctx.Regs.ReadLanes(insts.Rn(word), arr))
		ctx.Regs.SetScalar(insts.Rd(word), esize, v)
	}, nil
}

// fpReduce combines lanes pairwise, halving the vector each step, as the
// FP across-lanes forms do.
func fpReduce(env *softfloat.Env, kind fp2Kind, f softfloat.Format, lanes []uint64) uint64 {
	if len(lanes) == 1 {
		return lanes[0]
	}
	h := len(lanes) / 2
	return fpBinary(env, kind, f, fpReduce(env, kind, f, lanes[:h]), fpReduce(env, kind, f, lanes[h:]))
}

func decodeScalarPairwise(word uint32) (simdOp, error) {
	u := insts.Bit(word, 29)
	size := insts.Size(word)
	opcode := insts.Field(word, 16, 12)

	if u == 0 && opcode == 0b11011 {
		if size != 3 {
			return nil, reserved("ADDP (scalar) size=%d", size)
		}
		return func(ctx *emu.Context, word uint32) {
			lo, hi := ctx.Regs.Q(insts.Rn(word))
			ctx.Regs.SetScalar(insts.Rd(word), 8, lo+hi)
		}, nil
	}

	var kind fp2Kind
	switch a := size >> 1; {
	case opcode == 0b01100 && a == 0:
		kind = fp2MaxNum
	case opcode == 0b01100:
		kind = fp2MinNum
	case opcode == 0b01101 && a == 0:
		kind = fp2Add
	case opcode == 0b01111 && a == 0:
		kind = fp2Max
	case opcode == 0b01111:
		kind = fp2Min
	default:
		return nil, reserved("scalar pairwise U=%d opcode=%05b", u, opcode)
	}
	if u == 0 {
		return nil, unsupported("half-precision scalar pairwise")
	}

	f := softfloat.Single
	if size&1 == 1 {
		f = softfloat.Double
	}
	return func(ctx *emu.Context, word uint32) {
		env := ctx.FPEnv()
		rn := insts.Rn(word)
		x := ctx.Regs.Lane(rn, f.Size(), 0)
		y := ctx.Regs.Lane(rn, f.Size(), 1)
		ctx.Regs.SetScalar(insts.Rd(word), f.Size(), fpBinary(env, kind, f, x, y))
		ctx.RaiseFP(env)
	}, nil
}
