// Package helpers provides the run-time helpers called from translated code.
package helpers

import (
	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/ir"
)

// Identification values reported to the guest.
const (
	// CounterFrequency is CNTFRQ_EL0. CNTVCT_EL0 advances once per retired
	// instruction.
	CounterFrequency = 24_000_000
	// CacheTypeRegister is CTR_EL0: 64-byte I and D lines, no DIC/IDC.
	CacheTypeRegister = 0x8444C004
	// DCZID is DCZID_EL0: DC ZVA enabled on 64-byte blocks.
	DCZID = 4
	// MainID is MIDR_EL1.
	MainID = 0x410FD083

	zvaBlockSize  = 4 << DCZID
	icacheLine    = 4 << (CacheTypeRegister & 0xF)
	fpcrWriteMask = 0x07C80000 // AHP, DN, FZ, RMode, FZ16
	fpsrWriteMask = 0x0800009F // QC and the cumulative exception bits
)

func init() {
	register(ir.HelperPState, ir.RetNone, pstate, checkOf(decodePState))
	register(ir.HelperSys, ir.RetNone, sys, checkOf(decodeSys))
	register(ir.HelperMRS, ir.RetNone, mrs, checkOf(decodeMRS))
	register(ir.HelperMSR, ir.RetNone, msr, checkOf(decodeMSR))

	register(ir.HelperSyscall, ir.RetNone, syscall, nil)
	register(ir.HelperTrap, ir.RetNone, func(ctx *emu.Context, a Args) uint64 {
		ctx.Trap = &emu.Trap{PC: a[1], Word: a.Word()}
		return 0
	}, nil)
	register(ir.HelperBreakpoint, ir.RetNone, func(ctx *emu.Context, a Args) uint64 {
		if ctx.Debugger != nil {
			ctx.Debugger.Enter(ctx, a[0])
		}
		return 0
	}, nil)
}

type pstateOp uint8

const (
	pstateCFINV pstateOp = iota
	pstateXAFLAG
	pstateAXFLAG
)

func decodePState(word uint32) (pstateOp, error) {
	if insts.Rt(word) != 31 {
		return 0, reserved("MSR immediate Rt=%d", insts.Rt(word))
	}
	op1 := insts.Field(word, 18, 16)
	op2 := insts.Field(word, 7, 5)
	if op1 == 0 && insts.Field(word, 11, 8) == 0 {
		switch op2 {
		case 0b000:
			return pstateCFINV, nil
		case 0b001:
			return pstateXAFLAG, nil
		case 0b010:
			return pstateAXFLAG, nil
		}
	}
	return 0, unsupported("MSR immediate op1=%d op2=%d", op1, op2)
}

// pstate executes CFINV, XAFLAG and AXFLAG.
func pstate(ctx *emu.Context, a Args) uint64 {
	f := ctx.Regs.NZCV()
	n, z, c, v := f.N(), f.Z(), f.C(), f.V()

	switch must(decodePState(a.Word())) {
	case pstateCFINV:
		c = !c
	case pstateXAFLAG:
		n, z, c, v = !c && !z, z && c, c || z, !c && z
	case pstateAXFLAG:
		n, z, c, v = false, z || v, c && !v, false
	}
	ctx.Regs.SetNZCV(emu.MakeFlags(n, z, c, v))
	return 0
}

// sysRegKey packs op0:op1:CRn:CRm:op2 as in the MRS/MSR encoding.
type sysRegKey uint32

func makeSysReg(op0, op1, crn, crm, op2 uint32) sysRegKey {
	return sysRegKey(op0<<14 | op1<<11 | crn<<7 | crm<<3 | op2)
}

func sysRegOf(word uint32) sysRegKey {
	return sysRegKey(insts.Field(word, 20, 5))
}

// System registers visible at EL0.
var (
	regNZCV     = makeSysReg(3, 3, 4, 2, 0)
	regFPCR     = makeSysReg(3, 3, 4, 4, 0)
	regFPSR     = makeSysReg(3, 3, 4, 4, 1)
	regTPIDR    = makeSysReg(3, 3, 13, 0, 2)
	regTPIDRRO  = makeSysReg(3, 3, 13, 0, 3)
	regCNTFRQ   = makeSysReg(3, 3, 14, 0, 0)
	regCNTPCT   = makeSysReg(3, 3, 14, 0, 1)
	regCNTVCT   = makeSysReg(3, 3, 14, 0, 2)
	regCTR      = makeSysReg(3, 3, 0, 0, 1)
	regDCZID    = makeSysReg(3, 3, 0, 0, 7)
	regMIDR     = makeSysReg(3, 0, 0, 0, 0)
	regDCZVA    = makeSysReg(1, 3, 7, 4, 1)
	regDCCVAC   = makeSysReg(1, 3, 7, 10, 1)
	regDCCVAU   = makeSysReg(1, 3, 7, 11, 1)
	regDCCVAP   = makeSysReg(1, 3, 7, 12, 1)
	regDCCVADP  = makeSysReg(1, 3, 7, 13, 1)
	regDCCIVAC  = makeSysReg(1, 3, 7, 14, 1)
	regICIVAU   = makeSysReg(1, 3, 7, 5, 1)
	writableReg = map[sysRegKey]bool{regNZCV: true, regFPCR: true, regFPSR: true, regTPIDR: true}
)

func decodeMRS(word uint32) (sysRegKey, error) {
	switch r := sysRegOf(word); r {
	case regNZCV, regFPCR, regFPSR, regTPIDR, regTPIDRRO,
		regCNTFRQ, regCNTPCT, regCNTVCT, regCTR, regDCZID, regMIDR:
		return r, nil
	default:
		return r, unsupported("MRS of system register %#x", uint32(r))
	}
}

func decodeMSR(word uint32) (sysRegKey, error) {
	r := sysRegOf(word)
	if !writableReg[r] {
		return r, unsupported("MSR to system register %#x", uint32(r))
	}
	return r, nil
}

func mrs(ctx *emu.Context, a Args) uint64 {
	word := a.Word()
	var v uint64

	switch must(decodeMRS(word)) {
	case regNZCV:
		v = uint64(ctx.Regs.NZCV())
	case regFPCR:
		v = uint64(ctx.Regs.FPCR())
	case regFPSR:
		v = uint64(ctx.Regs.FPSR())
	case regTPIDR:
		v = ctx.Regs.Load(emu.OffsetTPIDR, 8)
	case regTPIDRRO:
		v = ctx.Regs.Load(emu.OffsetTPIDRRO, 8)
	case regCNTFRQ:
		v = CounterFrequency
	case regCNTPCT, regCNTVCT:
		v = ctx.Counter
	case regCTR:
		v = CacheTypeRegister
	case regDCZID:
		v = DCZID
	case regMIDR:
		v = MainID
	}

	ctx.Regs.WriteReg(insts.Rt(word), v)
	return 0
}

func msr(ctx *emu.Context, a Args) uint64 {
	word := a.Word()
	v := ctx.Regs.ReadReg(insts.Rt(word))

	switch must(decodeMSR(word)) {
	case regNZCV:
		ctx.Regs.SetNZCV(emu.Flags(v))
	case regFPCR:
		ctx.Regs.SetFPCR(uint32(v) & fpcrWriteMask)
	case regFPSR:
		ctx.Regs.SetFPSR(uint32(v) & fpsrWriteMask)
	case regTPIDR:
		ctx.Regs.Store(emu.OffsetTPIDR, 8, v)
	}
	return 0
}

func decodeSys(word uint32) (sysRegKey, error) {
	if insts.Bit(word, 21) == 1 {
		return 0, unsupported("SYSL")
	}
	switch r := sysRegOf(word); r {
	case regDCZVA, regDCCVAC, regDCCVAU, regDCCVAP, regDCCVADP, regDCCIVAC, regICIVAU:
		return r, nil
	default:
		return r, unsupported("SYS operation %#x", uint32(r))
	}
}

// sys executes the EL0 cache maintenance operations. Data cache cleaning
// has no visible effect on a single context; DC ZVA zeroes a block and
// IC IVAU drops translated code for the line.
func sys(ctx *emu.Context, a Args) uint64 {
	word := a.Word()
	addr := ctx.Regs.ReadReg(insts.Rt(word))

	switch must(decodeSys(word)) {
	case regDCZVA:
		base := addr &^ (zvaBlockSize - 1)
		ctx.WriteBytes(base, make([]byte, zvaBlockSize))
	case regICIVAU:
		if ctx.InvalidateCode != nil {
			ctx.InvalidateCode(addr&^(icacheLine-1), icacheLine)
		}
	}
	return 0
}

// syscall hands SVC to the context's syscall collaborator.
func syscall(ctx *emu.Context, _ Args) uint64 {
	if ctx.Syscalls == nil {
		ctx.Regs.WriteReg(0, ^uint64(emu.ENOSYS-1)) // -ENOSYS
		return 0
	}
	if r := ctx.Syscalls.Handle(ctx); r.Exited {
		ctx.Exit(r.ExitCode)
	}
	return 0
}
