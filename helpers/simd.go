// Package helpers provides the run-time helpers called from translated code.
package helpers

import (
	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/softfloat"
)

// simdOp executes one decoded SIMD instruction. SIMD decoders return a
// closure over the decoded fields; Validate discards it and the helper runs
// it.
type simdOp func(ctx *emu.Context, word uint32)

func simdHelper(decode func(uint32) (simdOp, error)) Func {
	return func(ctx *emu.Context, a Args) uint64 {
		word := a.Word()
		must(decode(word))(ctx, word)
		return 0
	}
}

// Size masks: bit n permits size field value n.
const (
	sizeB   uint8 = 0b0001
	sizeHS  uint8 = 0b0110
	sizeBHS uint8 = 0b0111
	sizeD   uint8 = 0b1000
	sizeAll uint8 = 0b1111
)

func sizeAllowed(mask uint8, size uint32) bool {
	return mask>>size&1 == 1
}

// vectorShape decodes size:Q. The 1D arrangement is reserved.
func vectorShape(word uint32) (emu.Arrangement, error) {
	size := insts.Size(word)
	if size == 3 && !insts.Q(word) {
		return emu.Arrangement{}, reserved("vector arrangement 1D")
	}
	return emu.ArrangementOf(size, insts.Q(word)), nil
}

func scalarShape(size uint32) emu.Arrangement {
	return emu.Arrangement{ESize: 1 << size, Count: 1}
}

// fpShape decodes the sz bit (22) of a single/double vector or scalar FP
// operation.
func fpShape(word uint32, scalar bool) (emu.Arrangement, error) {
	esize := 4 << insts.Bit(word, 22)
	if scalar {
		return emu.Arrangement{ESize: esize, Count: 1}, nil
	}
	if esize == 8 && !insts.Q(word) {
		return emu.Arrangement{}, reserved("vector arrangement 1D")
	}
	bytes := 8
	if insts.Q(word) {
		bytes = 16
	}
	return emu.Arrangement{ESize: esize, Count: bytes / esize}, nil
}

// laneEnv carries the per-instruction state of a lane operation.
type laneEnv struct {
	width  uint // element width in bits
	signed bool
	f      softfloat.Format
	fp     *softfloat.Env
	qc     bool
}

// sat records a saturation and returns v.
func (e *laneEnv) sat(v uint64, saturated bool) uint64 {
	if saturated {
		e.qc = true
	}
	return v
}

func (e *laneEnv) mask(v uint64) uint64 { return v & emu.Ones(e.width) }

func (e *laneEnv) sx(v uint64) int64 { return emu.SignExtendLane(v, e.width) }

// ext widens a lane according to the operation's signedness.
func (e *laneEnv) ext(v uint64) uint64 {
	if e.signed {
		return uint64(e.sx(v))
	}
	return e.mask(v)
}

func (e *laneEnv) less(x, y uint64) bool {
	if e.signed {
		return e.sx(x) < e.sx(y)
	}
	return e.mask(x) < e.mask(y)
}

// ones returns an all-ones lane when b holds, as the compare forms do.
func (e *laneEnv) ones(b bool) uint64 {
	if b {
		return emu.Ones(e.width)
	}
	return 0
}

// publish moves the sticky saturation and FP exception state into FPSR.
func (e *laneEnv) publish(ctx *emu.Context) {
	if e.qc {
		ctx.SetQC()
	}
	if e.fp != nil {
		ctx.RaiseFP(e.fp)
	}
}

// laneFunc computes one result lane from lanes of Vn, Vm and the old Vd.
type laneFunc func(e *laneEnv, x, y, d uint64) uint64

// laneOp is an element-wise operation whose sources and destination share
// one arrangement.
type laneOp struct {
	arr      emu.Arrangement
	scalar   bool
	pairwise bool
	signed   bool
	fp       bool
	unary    bool
	fn       laneFunc
}

func (op laneOp) env(ctx *emu.Context) *laneEnv {
	e := &laneEnv{width: op.arr.Bits(), signed: op.signed}
	if op.fp {
		e.f = formatOfSize(op.arr.ESize)
		e.fp = ctx.FPEnv()
	}
	return e
}

// exec returns the executor of the operation.
func (op laneOp) exec() simdOp {
	return func(ctx *emu.Context, word uint32) {
		e := op.env(ctx)
		rd := insts.Rd(word)
		n := ctx.Regs.ReadLanes(insts.Rn(word), op.arr)
		d := ctx.Regs.ReadLanes(rd, op.arr)
		var m []uint64
		if op.unary {
			m = make([]uint64, op.arr.Count)
		} else {
			m = ctx.Regs.ReadLanes(insts.Rm(word), op.arr)
		}

		out := make([]uint64, op.arr.Count)
		if op.pairwise {
			cat := append(n, m...)
			for i := range out {
				out[i] = op.fn(e, cat[2*i], cat[2*i+1], d[i])
			}
		} else {
			for i := range out {
				out[i] = op.fn(e, n[i], m[i], d[i])
			}
		}
		writeResult(ctx, e, rd, op.arr, op.scalar, out)
	}
}

// writeResult stores result lanes: a scalar result replaces the whole
// register, a 64-bit vector result clears the upper half.
func writeResult(ctx *emu.Context, e *laneEnv, rd uint8, arr emu.Arrangement, scalar bool, out []uint64) {
	if scalar {
		ctx.Regs.SetScalar(rd, arr.ESize, out[0])
	} else {
		ctx.Regs.WriteLanes(rd, arr, out)
	}
	e.publish(ctx)
}

// halfLanes returns the esize-byte lanes of one 64-bit half of Vn.
func halfLanes(r *emu.RegFile, n uint8, esize, part int) []uint64 {
	count := 8 / esize
	lanes := make([]uint64, count)
	for i := range lanes {
		lanes[i] = r.Lane(n, esize, part*count+i)
	}
	return lanes
}

// writeHalf writes lanes into one 64-bit half of Vd. Writing the lower half
// clears the upper one; writing the upper half keeps the lower one.
func writeHalf(r *emu.RegFile, d uint8, esize, part int, lanes []uint64) {
	count := 8 / esize
	for i, v := range lanes {
		r.SetLane(d, esize, part*count+i, v)
	}
	if part == 0 {
		r.ClearHigh(d)
	}
}

// shiftLane shifts x left by shift bits, or right when shift is negative,
// without rounding or saturation (SSHL, USHL).
func shiftLane(x uint64, shift int, width uint, signed bool) uint64 {
	switch {
	case shift >= int(width):
		return 0
	case shift >= 0:
		return x << uint(shift) & emu.Ones(width)
	case signed:
		n := uint(-shift)
		if n >= width {
			n = width - 1
		}
		return uint64(emu.SignExtendLane(x, width)>>n) & emu.Ones(width)
	case -shift >= int(width):
		return 0
	default:
		return (x & emu.Ones(width)) >> uint(-shift)
	}
}

// polyMul multiplies two width-bit polynomials over GF(2) (PMUL, PMULL).
func polyMul(x, y uint64, width uint) uint64 {
	var r uint64
	for i := uint(0); i < width; i++ {
		if y>>i&1 == 1 {
			r ^= x << i
		}
	}
	return r
}

// Integer lane operations.

func laneAdd(e *laneEnv, x, y, _ uint64) uint64 { return e.mask(x + y) }
func laneSub(e *laneEnv, x, y, _ uint64) uint64 { return e.mask(x - y) }
func laneMul(e *laneEnv, x, y, _ uint64) uint64 { return e.mask(x * y) }
func laneMla(e *laneEnv, x, y, d uint64) uint64 { return e.mask(d + x*y) }
func laneMls(e *laneEnv, x, y, d uint64) uint64 { return e.mask(d - x*y) }

func lanePMul(e *laneEnv, x, y, _ uint64) uint64 {
	return e.mask(polyMul(x, y, e.width))
}

func laneHAdd(e *laneEnv, x, y, _ uint64) uint64 {
	return e.mask(uint64(int64(e.ext(x)+e.ext(y)) >> 1))
}

func laneRHAdd(e *laneEnv, x, y, _ uint64) uint64 {
	return e.mask(uint64(int64(e.ext(x)+e.ext(y)+1) >> 1))
}

func laneHSub(e *laneEnv, x, y, _ uint64) uint64 {
	return e.mask(uint64(int64(e.ext(x)-e.ext(y)) >> 1))
}

func laneQAdd(e *laneEnv, x, y, _ uint64) uint64 {
	return e.sat(emu.SatAdd(x, y, e.width, e.signed))
}

func laneQSub(e *laneEnv, x, y, _ uint64) uint64 {
	return e.sat(emu.SatSub(x, y, e.width, e.signed))
}

func laneCmGT(e *laneEnv, x, y, _ uint64) uint64  { return e.ones(e.less(y, x)) }
func laneCmGE(e *laneEnv, x, y, _ uint64) uint64  { return e.ones(!e.less(x, y)) }
func laneCmEQ(e *laneEnv, x, y, _ uint64) uint64  { return e.ones(e.mask(x) == e.mask(y)) }
func laneCmTst(e *laneEnv, x, y, _ uint64) uint64 { return e.ones(e.mask(x&y) != 0) }

func laneMax(e *laneEnv, x, y, _ uint64) uint64 {
	if e.less(x, y) {
		return e.mask(y)
	}
	return e.mask(x)
}

func laneMin(e *laneEnv, x, y, _ uint64) uint64 {
	if e.less(x, y) {
		return e.mask(x)
	}
	return e.mask(y)
}

func laneAbd(e *laneEnv, x, y, _ uint64) uint64 {
	if e.less(x, y) {
		x, y = y, x
	}
	return e.mask(x - y)
}

func laneAba(e *laneEnv, x, y, d uint64) uint64 {
	return e.mask(d + laneAbd(e, x, y, 0))
}

func laneShl(e *laneEnv, x, y, _ uint64) uint64 {
	return shiftLane(x, int(int8(y)), e.width, e.signed)
}

func laneRShl(e *laneEnv, x, y, _ uint64) uint64 {
	return emu.RoundingShift(x, int(int8(y)), e.width, e.signed)
}

func laneQShl(e *laneEnv, x, y, _ uint64) uint64 {
	return e.sat(emu.SatShl(x, int(int8(y)), e.width, e.signed, e.signed))
}

func laneQRShl(e *laneEnv, x, y, _ uint64) uint64 {
	if shift := int(int8(y)); shift < 0 {
		return emu.RoundingShift(x, shift, e.width, e.signed)
	}
	return laneQShl(e, x, y, 0)
}

func laneQDMulH(e *laneEnv, x, y, _ uint64) uint64 {
	return e.sat(emu.DoublingMulHigh(x, y, e.width, false))
}

func laneQRDMulH(e *laneEnv, x, y, _ uint64) uint64 {
	return e.sat(emu.DoublingMulHigh(x, y, e.width, true))
}

// Bitwise operations on whole 64-bit lanes.

func laneAnd(_ *laneEnv, x, y, _ uint64) uint64 { return x & y }
func laneBic(_ *laneEnv, x, y, _ uint64) uint64 { return x &^ y }
func laneOrr(_ *laneEnv, x, y, _ uint64) uint64 { return x | y }
func laneOrn(_ *laneEnv, x, y, _ uint64) uint64 { return x | ^y }
func laneEor(_ *laneEnv, x, y, _ uint64) uint64 { return x ^ y }
func laneBsl(_ *laneEnv, x, y, d uint64) uint64 { return d&x | ^d&y }
func laneBit(_ *laneEnv, x, y, d uint64) uint64 { return d&^y | x&y }
func laneBif(_ *laneEnv, x, y, d uint64) uint64 { return d&y | x&^y }

// Floating-point lane operations.

func fpLane(kind fp2Kind) laneFunc {
	return func(e *laneEnv, x, y, _ uint64) uint64 {
		return fpBinary(e.fp, kind, e.f, x, y)
	}
}

func laneFMla(e *laneEnv, x, y, d uint64) uint64 {
	return softfloat.MulAdd(e.fp, e.f, d, x, y)
}

func laneFMls(e *laneEnv, x, y, d uint64) uint64 {
	return softfloat.MulAdd(e.fp, e.f, d, e.f.Neg(x), y)
}

func laneFMulX(e *laneEnv, x, y, _ uint64) uint64 { return softfloat.MulX(e.fp, e.f, x, y) }

func laneFRecpS(e *laneEnv, x, y, _ uint64) uint64 { return softfloat.RecipStep(e.fp, e.f, x, y) }

func laneFRSqrtS(e *laneEnv, x, y, _ uint64) uint64 { return softfloat.RSqrtStep(e.fp, e.f, x, y) }

func laneFAbd(e *laneEnv, x, y, _ uint64) uint64 {
	return e.f.Abs(softfloat.Sub(e.fp, e.f, x, y))
}

func laneFCmEQ(e *laneEnv, x, y, _ uint64) uint64 {
	return e.ones(softfloat.CompareEQ(e.fp, e.f, x, y))
}

func laneFCmGE(e *laneEnv, x, y, _ uint64) uint64 {
	return e.ones(softfloat.CompareGE(e.fp, e.f, x, y))
}

func laneFCmGT(e *laneEnv, x, y, _ uint64) uint64 {
	return e.ones(softfloat.CompareGT(e.fp, e.f, x, y))
}

func laneFAcGE(e *laneEnv, x, y, _ uint64) uint64 {
	return e.ones(softfloat.CompareGE(e.fp, e.f, e.f.Abs(x), e.f.Abs(y)))
}

func laneFAcGT(e *laneEnv, x, y, _ uint64) uint64 {
	return e.ones(softfloat.CompareGT(e.fp, e.f, e.f.Abs(x), e.f.Abs(y)))
}
