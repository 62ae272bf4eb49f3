// Package helpers provides the run-time helpers called from translated code.
package helpers

import (
	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/ir"
)

// Flag helpers take the operands before any truncation and return the
// packed NZCV word.

func init() {
	register(ir.HelperFlagsAdd32, ir.Ret32, func(_ *emu.Context, a Args) uint64 {
		return uint64(emu.AddFlags32(uint32(a[0]), uint32(a[1])))
	}, nil)
	register(ir.HelperFlagsAdd64, ir.Ret32, func(_ *emu.Context, a Args) uint64 {
		return uint64(emu.AddFlags64(a[0], a[1]))
	}, nil)
	register(ir.HelperFlagsSub32, ir.Ret32, func(_ *emu.Context, a Args) uint64 {
		return uint64(emu.SubFlags32(uint32(a[0]), uint32(a[1])))
	}, nil)
	register(ir.HelperFlagsSub64, ir.Ret32, func(_ *emu.Context, a Args) uint64 {
		return uint64(emu.SubFlags64(a[0], a[1]))
	}, nil)
	register(ir.HelperFlagsAdc32, ir.Ret32, func(_ *emu.Context, a Args) uint64 {
		return uint64(emu.AdcFlags32(uint32(a[0]), uint32(a[1]), emu.Flags(a[2])))
	}, nil)
	register(ir.HelperFlagsAdc64, ir.Ret32, func(_ *emu.Context, a Args) uint64 {
		return uint64(emu.AdcFlags64(a[0], a[1], emu.Flags(a[2])))
	}, nil)
	register(ir.HelperFlagsSbc32, ir.Ret32, func(_ *emu.Context, a Args) uint64 {
		return uint64(emu.SbcFlags32(uint32(a[0]), uint32(a[1]), emu.Flags(a[2])))
	}, nil)
	register(ir.HelperFlagsSbc64, ir.Ret32, func(_ *emu.Context, a Args) uint64 {
		return uint64(emu.SbcFlags64(a[0], a[1], emu.Flags(a[2])))
	}, nil)
	register(ir.HelperFlagsLogic32, ir.Ret32, func(_ *emu.Context, a Args) uint64 {
		return uint64(emu.LogicFlags32(uint32(a[0])))
	}, nil)
	register(ir.HelperFlagsLogic64, ir.Ret32, func(_ *emu.Context, a Args) uint64 {
		return uint64(emu.LogicFlags64(a[0]))
	}, nil)

	register(ir.HelperCondition, ir.Ret32, func(_ *emu.Context, a Args) uint64 {
		return boolU64(emu.ConditionHolds(insts.Cond(a[0]&0xF), emu.Flags(a[1])))
	}, nil)

	register(ir.HelperFlagManip, ir.RetNone, flagManip, checkOf(decodeFlagManip))
}

type flagManipOp struct {
	rmif  bool
	imm6  uint
	mask  uint32
	width uint // SETF8 or SETF16
}

func decodeFlagManip(word uint32) (flagManipOp, error) {
	sfOpS := insts.Field(word, 31, 29)

	if insts.Field(word, 14, 10) == 0b00001 {
		if sfOpS != 0b101 || insts.Bit(word, 4) != 0 {
			return flagManipOp{}, reserved("RMIF")
		}
		return flagManipOp{
			rmif: true,
			imm6: uint(insts.Field(word, 20, 15)),
			mask: insts.Field(word, 3, 0),
		}, nil
	}

	if sfOpS != 0b001 || insts.Field(word, 20, 15) != 0 || insts.Field(word, 4, 0) != 0b01101 {
		return flagManipOp{}, reserved("SETF")
	}
	if insts.Bit(word, 14) == 1 {
		return flagManipOp{width: 16}, nil
	}
	return flagManipOp{width: 8}, nil
}

// flagManip executes RMIF, SETF8 and SETF16.
func flagManip(ctx *emu.Context, a Args) uint64 {
	word := a.Word()
	op := must(decodeFlagManip(word))
	rn := ctx.Regs.ReadReg(insts.Rn(word))
	flags := ctx.Regs.NZCV()

	if op.rmif {
		tmp := uint32(emu.ROR(rn, op.imm6, 64) & 0xF)
		nibble := flags.Nibble()&^op.mask | tmp&op.mask
		ctx.Regs.SetNZCV(emu.FlagsFromNZCV(nibble))
		return 0
	}

	top := rn >> (op.width - 1) & 1
	n := top == 1
	z := rn&emu.Ones(op.width) == 0
	v := (rn>>op.width&1)^top == 1
	ctx.Regs.SetNZCV(emu.MakeFlags(n, z, flags.C(), v))
	return 0
}
