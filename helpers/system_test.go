package helpers_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/helpers"
	"github.com/sarchlab/a64dbt/ir"
)

type recordingDebugger struct {
	addrs []uint64
}

func (d *recordingDebugger) Enter(_ *emu.Context, addr uint64) {
	d.addrs = append(d.addrs, addr)
}

var _ = Describe("System helpers", func() {
	var ctx *emu.Context

	BeforeEach(func() {
		ctx = emu.NewContext()
	})

	Describe("MRS and MSR", func() {
		It("should mask writes to FPCR", func() {
			ctx.Regs.WriteReg(0, 0xFFFFFFFF)
			exec(ctx, ir.HelperMSR, 0xD51B4400) // msr fpcr, x0
			exec(ctx, ir.HelperMRS, 0xD53B4401) // mrs x1, fpcr

			Expect(ctx.Regs.ReadReg(1)).To(Equal(uint64(0x07C80000)))
		})

		It("should read NZCV in place", func() {
			ctx.Regs.SetNZCV(emu.FlagZ | emu.FlagC)
			exec(ctx, ir.HelperMRS, 0xD53B4200) // mrs x0, nzcv

			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(0x60000000)))
		})

		It("should round-trip the thread pointer", func() {
			ctx.Regs.WriteReg(0, 0x7FFF0000)
			exec(ctx, ir.HelperMSR, 0xD51BD040) // msr tpidr_el0, x0
			exec(ctx, ir.HelperMRS, 0xD53BD041) // mrs x1, tpidr_el0

			Expect(ctx.Regs.ReadReg(1)).To(Equal(uint64(0x7FFF0000)))
		})

		It("should report identification registers", func() {
			exec(ctx, ir.HelperMRS, 0xD53BE000) // mrs x0, cntfrq_el0
			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(helpers.CounterFrequency)))

			exec(ctx, ir.HelperMRS, 0xD53B00E0) // mrs x0, dczid_el0
			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(helpers.DCZID)))
		})

		It("should reject writes to read-only registers", func() {
			Expect(helpers.Validate(ir.HelperMSR, 0xD51BE000)).NotTo(Succeed()) // msr cntfrq_el0, x0
		})
	})

	Describe("Cache maintenance", func() {
		It("should zero a block with DC ZVA", func() {
			for a := uint64(0x3000); a < 0x3080; a += 8 {
				ctx.Write(a, 8, ^uint64(0))
			}
			ctx.Regs.WriteReg(0, 0x3010)
			exec(ctx, ir.HelperSys, 0xD50B7420) // dc zva, x0

			Expect(ctx.Read(0x3000, 8)).To(BeZero())
			Expect(ctx.Read(0x3038, 8)).To(BeZero())
			Expect(ctx.Read(0x3040, 8)).To(Equal(^uint64(0)))
		})

		It("should invalidate code for IC IVAU", func() {
			var gotAddr, gotLen uint64
			ctx.InvalidateCode = func(addr, length uint64) {
				gotAddr, gotLen = addr, length
			}
			ctx.Regs.WriteReg(0, 0x4004)
			exec(ctx, ir.HelperSys, 0xD50B7520) // ic ivau, x0

			Expect(gotAddr).To(Equal(uint64(0x4000)))
			Expect(gotLen).To(Equal(uint64(64)))
		})
	})

	It("should invert carry with CFINV", func() {
		ctx.Regs.SetNZCV(emu.FlagC)
		exec(ctx, ir.HelperPState, 0xD500401F) // cfinv
		Expect(ctx.Regs.NZCV()).To(BeZero())
	})

	Describe("Call-outs", func() {
		It("should return ENOSYS without a syscall handler", func() {
			helpers.Call(ctx, ir.HelperSyscall, helpers.Args{0x1000})
			Expect(ctx.Regs.ReadReg(0)).To(Equal(^uint64(emu.ENOSYS - 1)))
			Expect(ctx.Exited).To(BeFalse())
		})

		It("should exit through the syscall handler", func() {
			ctx.Syscalls = emu.NewDefaultSyscallHandler(nil, nil)
			ctx.Regs.WriteReg(8, emu.SyscallExit)
			ctx.Regs.WriteReg(0, 3)
			helpers.Call(ctx, ir.HelperSyscall, helpers.Args{0x1000})

			Expect(ctx.Exited).To(BeTrue())
			Expect(ctx.ExitCode).To(Equal(int64(3)))
		})

		It("should enter the debugger on a breakpoint", func() {
			dbg := &recordingDebugger{}
			ctx.Debugger = dbg
			helpers.Call(ctx, ir.HelperBreakpoint, helpers.Args{0x4000})

			Expect(dbg.addrs).To(Equal([]uint64{0x4000}))
		})

		It("should record a trap", func() {
			helpers.Call(ctx, ir.HelperTrap, helpers.Args{0xD4200020, 0x4008})

			Expect(ctx.Trap).NotTo(BeNil())
			Expect(ctx.Trap.PC).To(Equal(uint64(0x4008)))
			Expect(ctx.Trap.Word).To(Equal(uint32(0xD4200020)))
		})
	})
})
