// Package helpers provides the run-time helpers called from translated code.
package helpers

import (
	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/ir"
	"github.com/sarchlab/a64dbt/softfloat"
)

func init() {
	register(ir.HelperFPCompare, ir.RetNone, fpCompare, checkOf(decodeFPCompare))
	register(ir.HelperFPCondCompare, ir.RetNone, fpCondCompare, checkOf(decodeFPCondCompare))
	register(ir.HelperFPCondSelect, ir.RetNone, fpCondSelect, checkOf(decodeFPCondSelect))
	register(ir.HelperFPDataProc1, ir.RetNone, fpDataProc1, checkOf(decodeFPDataProc1))
	register(ir.HelperFPDataProc2, ir.RetNone, fpDataProc2, checkOf(decodeFPDataProc2))
	register(ir.HelperFPDataProc3, ir.RetNone, fpDataProc3, checkOf(decodeFPDataProc3))
	register(ir.HelperFPImm, ir.RetNone, fpImm, checkOf(decodeFPImm))
	register(ir.HelperFPIntConv, ir.RetNone, fpIntConv, checkOf(decodeFPIntConv))
	register(ir.HelperFPFixedConv, ir.RetNone, fpFixedConv, checkOf(decodeFPFixedConv))
}

// scalarFormat decodes the ftype field of an FP data-processing
// instruction: 00 single, 01 double, 11 half.
func scalarFormat(word uint32) (softfloat.Format, error) {
	if insts.Bit(word, 31) != 0 {
		return softfloat.Format{}, reserved("scalar FP with M set")
	}
	return convFormat(word)
}

// convFormat is scalarFormat for the conversions, where bit 31 is sf.
func convFormat(word uint32) (softfloat.Format, error) {
	if insts.Bit(word, 29) != 0 {
		return softfloat.Format{}, reserved("scalar FP with S set")
	}
	switch t := insts.FPType(word); t {
	case 0b00:
		return softfloat.Single, nil
	case 0b01:
		return softfloat.Double, nil
	case 0b11:
		return softfloat.Half, nil
	default:
		return softfloat.Format{}, reserved("FP type %02b", t)
	}
}

// formatOfSize maps an element size in bytes to its FP format.
func formatOfSize(esize int) softfloat.Format {
	switch esize {
	case 2:
		return softfloat.Half
	case 4:
		return softfloat.Single
	default:
		return softfloat.Double
	}
}

// fpResult writes a scalar result and publishes the raised exceptions.
func fpResult(ctx *emu.Context, env *softfloat.Env, f softfloat.Format, rd uint8, v uint64) {
	ctx.Regs.SetScalar(rd, f.Size(), v)
	ctx.RaiseFP(env)
}

type fpCompareOp struct {
	f        softfloat.Format
	withZero bool
	signal   bool
}

func decodeFPCompare(word uint32) (fpCompareOp, error) {
	f, err := scalarFormat(word)
	if err != nil {
		return fpCompareOp{}, err
	}
	if insts.Field(word, 15, 14) != 0 || insts.Field(word, 2, 0) != 0 {
		return fpCompareOp{}, reserved("FCMP op=%d opcode2=%d", insts.Field(word, 15, 14), insts.Field(word, 4, 0))
	}
	return fpCompareOp{
		f:        f,
		withZero: insts.Bit(word, 3) == 1,
		signal:   insts.Bit(word, 4) == 1,
	}, nil
}

// fpCompare executes FCMP and FCMPE.
func fpCompare(ctx *emu.Context, a Args) uint64 {
	word := a.Word()
	op := must(decodeFPCompare(word))
	env := ctx.FPEnv()

	x := ctx.Regs.Scalar(insts.Rn(word), op.f.Size())
	var y uint64
	if !op.withZero {
		y = ctx.Regs.Scalar(insts.Rm(word), op.f.Size())
	}
	nzcv := softfloat.Compare(env, op.f, x, y, op.signal)
	ctx.Regs.SetNZCV(emu.FlagsFromNZCV(nzcv))
	ctx.RaiseFP(env)
	return 0
}

func decodeFPCondCompare(word uint32) (softfloat.Format, error) {
	return scalarFormat(word)
}

// fpCondCompare executes FCCMP and FCCMPE.
func fpCondCompare(ctx *emu.Context, a Args) uint64 {
	word := a.Word()
	f := must(decodeFPCondCompare(word))
	cond := insts.CondAt(word, 12)

	if !emu.ConditionHolds(cond, ctx.Regs.NZCV()) {
		ctx.Regs.SetNZCV(emu.FlagsFromNZCV(insts.Field(word, 3, 0)))
		return 0
	}

	env := ctx.FPEnv()
	x := ctx.Regs.Scalar(insts.Rn(word), f.Size())
	y := ctx.Regs.Scalar(insts.Rm(word), f.Size())
	nzcv := softfloat.Compare(env, f, x, y, insts.Bit(word, 4) == 1)
	ctx.Regs.SetNZCV(emu.FlagsFromNZCV(nzcv))
	ctx.RaiseFP(env)
	return 0
}

func decodeFPCondSelect(word uint32) (softfloat.Format, error) {
	return scalarFormat(word)
}

// fpCondSelect executes FCSEL.
func fpCondSelect(ctx *emu.Context, a Args) uint64 {
	word := a.Word()
	f := must(decodeFPCondSelect(word))

	src := insts.Rm(word)
	if emu.ConditionHolds(insts.CondAt(word, 12), ctx.Regs.NZCV()) {
		src = insts.Rn(word)
	}
	ctx.Regs.SetScalar(insts.Rd(word), f.Size(), ctx.Regs.Scalar(src, f.Size()))
	return 0
}

type fp1Kind uint8

const (
	fp1Mov fp1Kind = iota
	fp1Abs
	fp1Neg
	fp1Sqrt
	fp1Convert
	fp1Round
)

type fp1Op struct {
	kind  fp1Kind
	f     softfloat.Format
	to    softfloat.Format // fp1Convert
	mode  softfloat.RoundingMode
	exact bool // FRINTX
	env   bool // FRINTI and FRINTX round with FPCR.RMode
}

func decodeFPDataProc1(word uint32) (fp1Op, error) {
	f, err := scalarFormat(word)
	if err != nil {
		return fp1Op{}, err
	}
	opcode := insts.Field(word, 20, 15)
	op := fp1Op{f: f}

	switch {
	case opcode <= 0b000011:
		op.kind = fp1Kind(opcode)
	case opcode>>2 == 0b0001:
		op.kind = fp1Convert
		switch opcode & 3 {
		case 0b00:
			op.to = softfloat.Single
		case 0b01:
			op.to = softfloat.Double
		case 0b11:
			op.to = softfloat.Half
		default:
			if insts.FPType(word) == 0b01 {
				return op, unsupported("BFCVT")
			}
			return op, reserved("FCVT opc=10")
		}
		if op.to == f {
			return op, reserved("FCVT to the same precision")
		}
	case opcode>>3 == 0b001:
		op.kind = fp1Round
		switch opcode & 7 {
		case 0b000:
			op.mode = softfloat.RoundNearestEven
		case 0b001:
			op.mode = softfloat.RoundPlusInf
		case 0b010:
			op.mode = softfloat.RoundMinusInf
		case 0b011:
			op.mode = softfloat.RoundZero
		case 0b100:
			op.mode = softfloat.RoundNearestAway
		case 0b110:
			op.env, op.exact = true, true
		case 0b111:
			op.env = true
		default:
			return op, reserved("FRINT rmode=101")
		}
	case opcode>>2 == 0b0100:
		return op, unsupported("FRINT32/FRINT64")
	default:
		return op, reserved("FP 1-source opcode %06b", opcode)
	}
	return op, nil
}

// fpDataProc1 executes FMOV, FABS, FNEG, FSQRT, FCVT and FRINT*.
func fpDataProc1(ctx *emu.Context, a Args) uint64 {
	word := a.Word()
	op := must(decodeFPDataProc1(word))
	env := ctx.FPEnv()
	x := ctx.Regs.Scalar(insts.Rn(word), op.f.Size())
	rd := insts.Rd(word)

	var r uint64
	switch op.kind {
	case fp1Mov:
		r = x
	case fp1Abs:
		r = op.f.Abs(x)
	case fp1Neg:
		r = op.f.Neg(x)
	case fp1Sqrt:
		r = softfloat.Sqrt(env, op.f, x)
	case fp1Convert:
		fpResult(ctx, env, op.to, rd, softfloat.Convert(env, op.f, op.to, x))
		return 0
	case fp1Round:
		mode := op.mode
		if op.env {
			mode = env.Mode
		}
		r = softfloat.RoundToIntegral(env, op.f, x, mode, op.exact)
	}
	fpResult(ctx, env, op.f, rd, r)
	return 0
}

type fp2Kind uint8

const (
	fp2Mul fp2Kind = iota
	fp2Div
	fp2Add
	fp2Sub
	fp2Max
	fp2Min
	fp2MaxNum
	fp2MinNum
	fp2NMul
)

type fp2Op struct {
	kind fp2Kind
	f    softfloat.Format
}

func decodeFPDataProc2(word uint32) (fp2Op, error) {
	f, err := scalarFormat(word)
	if err != nil {
		return fp2Op{}, err
	}
	opcode := insts.Field(word, 15, 12)
	if opcode > uint32(fp2NMul) {
		return fp2Op{}, reserved("FP 2-source opcode %04b", opcode)
	}
	return fp2Op{kind: fp2Kind(opcode), f: f}, nil
}

// fpBinary applies a two-operand FP operation shared by the scalar and
// vector forms.
func fpBinary(env *softfloat.Env, kind fp2Kind, f softfloat.Format, x, y uint64) uint64 {
	switch kind {
	case fp2Mul:
		return softfloat.Mul(env, f, x, y)
	case fp2Div:
		return softfloat.Div(env, f, x, y)
	case fp2Add:
		return softfloat.Add(env, f, x, y)
	case fp2Sub:
		return softfloat.Sub(env, f, x, y)
	case fp2Max:
		return softfloat.Max(env, f, x, y)
	case fp2Min:
		return softfloat.Min(env, f, x, y)
	case fp2MaxNum:
		return softfloat.MaxNum(env, f, x, y)
	case fp2MinNum:
		return softfloat.MinNum(env, f, x, y)
	default:
		return f.Neg(softfloat.Mul(env, f, x, y))
	}
}

// fpDataProc2 executes the two-source arithmetic group.
func fpDataProc2(ctx *emu.Context, a Args) uint64 {
	word := a.Word()
	op := must(decodeFPDataProc2(word))
	env := ctx.FPEnv()

	x := ctx.Regs.Scalar(insts.Rn(word), op.f.Size())
	y := ctx.Regs.Scalar(insts.Rm(word), op.f.Size())
	fpResult(ctx, env, op.f, insts.Rd(word), fpBinary(env, op.kind, op.f, x, y))
	return 0
}

type fp3Op struct {
	f         softfloat.Format
	negAdd    bool // FNMADD, FNMSUB
	negFactor bool // FMSUB, FNMADD
}

func decodeFPDataProc3(word uint32) (fp3Op, error) {
	f, err := scalarFormat(word)
	if err != nil {
		return fp3Op{}, err
	}
	o1 := insts.Bit(word, 21) == 1
	o0 := insts.Bit(word, 15) == 1
	return fp3Op{f: f, negAdd: o1, negFactor: o0 != o1}, nil
}

// fpDataProc3 executes the fused multiply-add group:
//
//	FMADD  d = a + n*m
//	FMSUB  d = a - n*m
//	FNMADD d = -a - n*m
//	FNMSUB d = -a + n*m
func fpDataProc3(ctx *emu.Context, a Args) uint64 {
	word := a.Word()
	op := must(decodeFPDataProc3(word))
	env := ctx.FPEnv()
	size := op.f.Size()

	addend := ctx.Regs.Scalar(insts.Ra(word), size)
	n := ctx.Regs.Scalar(insts.Rn(word), size)
	m := ctx.Regs.Scalar(insts.Rm(word), size)
	if op.negAdd {
		addend = op.f.Neg(addend)
	}
	if op.negFactor {
		n = op.f.Neg(n)
	}
	fpResult(ctx, env, op.f, insts.Rd(word), softfloat.MulAdd(env, op.f, addend, n, m))
	return 0
}

func decodeFPImm(word uint32) (softfloat.Format, error) {
	f, err := scalarFormat(word)
	if err != nil {
		return f, err
	}
	if insts.Field(word, 9, 5) != 0 {
		return f, reserved("FMOV immediate imm5=%d", insts.Field(word, 9, 5))
	}
	return f, nil
}

// ExpandFPImm expands the 8-bit FMOV immediate into format f: sign, a
// 3-bit exponent field and a 4-bit fraction.
func ExpandFPImm(f softfloat.Format, imm8 uint8) uint64 {
	sign := uint64(imm8 >> 7)
	b6 := uint64(imm8>>6) & 1
	exp := (b6 ^ 1) << (f.ExpBits - 1)
	if b6 == 1 {
		exp |= emu.Ones(f.ExpBits-3) << 2
	}
	exp |= uint64(imm8>>4) & 3
	frac := uint64(imm8&0xF) << (f.FracBits - 4)
	return sign<<(f.ExpBits+f.FracBits) | exp<<f.FracBits | frac
}

// fpImm executes FMOV (scalar, immediate).
func fpImm(ctx *emu.Context, a Args) uint64 {
	word := a.Word()
	f := must(decodeFPImm(word))
	imm8 := uint8(insts.Field(word, 20, 13))
	ctx.Regs.SetScalar(insts.Rd(word), f.Size(), ExpandFPImm(f, imm8))
	return 0
}

type fpIntKind uint8

const (
	fpToInt fpIntKind = iota
	fpFromInt
	fpMovToGPR
	fpMovFromGPR
	fpMovTopToGPR
	fpMovTopFromGPR
)

type fpIntOp struct {
	kind     fpIntKind
	f        softfloat.Format
	width    uint
	unsigned bool
	mode     softfloat.RoundingMode
	fracBits int
}

// rmodes maps the rmode field of FCVT{N,P,M,Z} to a rounding mode.
var rmodes = [4]softfloat.RoundingMode{
	softfloat.RoundNearestEven,
	softfloat.RoundPlusInf,
	softfloat.RoundMinusInf,
	softfloat.RoundZero,
}

func decodeFPIntConv(word uint32) (fpIntOp, error) {
	sf := insts.Sf(word)
	rmode := insts.Field(word, 20, 19)
	opcode := insts.Field(word, 18, 16)
	op := fpIntOp{width: 32}
	if sf {
		op.width = 64
	}

	if insts.FPType(word) == 0b10 {
		// Only FMOV Xd, Vn.D[1] and FMOV Vd.D[1], Xn live here.
		if !sf || rmode != 0b01 || opcode>>1 != 0b011 || insts.Field(word, 30, 29) != 0 {
			return op, reserved("FP/int conversion with FP type 10")
		}
		op.f = softfloat.Double
		op.kind = fpMovTopToGPR + fpIntKind(opcode&1)
		return op, nil
	}

	f, err := convFormat(word)
	if err != nil {
		return op, err
	}
	op.f = f

	switch {
	case opcode>>1 == 0b00:
		op.kind = fpToInt
		op.unsigned = opcode&1 == 1
		op.mode = rmodes[rmode]
	case rmode != 0b00:
		if rmode == 0b11 && opcode == 0b110 && !sf && insts.FPType(word) == 0b01 {
			return op, unsupported("FJCVTZS")
		}
		return op, reserved("FP/int conversion rmode=%d opcode=%d", rmode, opcode)
	case opcode>>1 == 0b01:
		op.kind = fpFromInt
		op.unsigned = opcode&1 == 1
	case opcode>>1 == 0b10:
		op.kind = fpToInt
		op.unsigned = opcode&1 == 1
		op.mode = softfloat.RoundNearestAway
	default:
		if f != softfloat.Half && f.Width() != op.width {
			return op, reserved("FMOV between %d-bit register and %d-bit FP", op.width, f.Width())
		}
		op.kind = fpMovToGPR + fpIntKind(opcode&1)
	}
	return op, nil
}

// fpIntConv executes conversions and moves between FP and general-purpose
// registers.
func fpIntConv(ctx *emu.Context, a Args) uint64 {
	word := a.Word()
	op := must(decodeFPIntConv(word))
	rd, rn := insts.Rd(word), insts.Rn(word)

	switch op.kind {
	case fpToInt, fpFromInt:
		fpConvert(ctx, word, op)
	case fpMovToGPR:
		ctx.Regs.WriteReg(rd, ctx.Regs.Scalar(rn, op.f.Size()))
	case fpMovFromGPR:
		v := ctx.Regs.ReadReg(rn) & emu.Ones(op.f.Width())
		ctx.Regs.SetScalar(rd, op.f.Size(), v)
	case fpMovTopToGPR:
		ctx.Regs.WriteReg(rd, ctx.Regs.Lane64(rn, 1))
	case fpMovTopFromGPR:
		ctx.Regs.SetLane64(rd, 1, ctx.Regs.ReadReg(rn))
	}
	return 0
}

// fpConvert performs the FP/integer conversion described by op. A 32-bit
// destination general register is zero-extended.
func fpConvert(ctx *emu.Context, word uint32, op fpIntOp) {
	env := ctx.FPEnv()
	rd, rn := insts.Rd(word), insts.Rn(word)

	if op.kind == fpToInt {
		x := ctx.Regs.Scalar(rn, op.f.Size())
		r := softfloat.ToInt(env, op.f, x, op.width, op.unsigned, op.fracBits, op.mode)
		ctx.Regs.WriteReg(rd, r)
		ctx.RaiseFP(env)
		return
	}

	x := ctx.Regs.ReadReg(rn)
	fpResult(ctx, env, op.f, rd, softfloat.FromInt(env, op.f, x, op.width, !op.unsigned, op.fracBits))
}

func decodeFPFixedConv(word uint32) (fpIntOp, error) {
	f, err := convFormat(word)
	if err != nil {
		return fpIntOp{}, err
	}
	op := fpIntOp{f: f, width: 32, mode: softfloat.RoundZero}
	if insts.Sf(word) {
		op.width = 64
	}
	scale := insts.Field(word, 15, 10)
	if !insts.Sf(word) && scale < 32 {
		return op, reserved("32-bit fixed-point conversion with scale=%d", scale)
	}
	op.fracBits = 64 - int(scale)

	switch rmode, opcode := insts.Field(word, 20, 19), insts.Field(word, 18, 16); {
	case rmode == 0b11 && opcode>>1 == 0:
		op.kind = fpToInt
	case rmode == 0b00 && opcode>>1 == 1:
		op.kind = fpFromInt
	default:
		return op, reserved("fixed-point conversion rmode=%d opcode=%d", rmode, opcode)
	}
	op.unsigned = insts.Bit(word, 16) == 1
	return op, nil
}

// fpFixedConv executes SCVTF, UCVTF, FCVTZS and FCVTZU with a fixed-point
// operand.
func fpFixedConv(ctx *emu.Context, a Args) uint64 {
	word := a.Word()
	fpConvert(ctx, word, must(decodeFPFixedConv(word)))
	return 0
}
