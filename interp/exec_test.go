package interp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/interp"
	"github.com/sarchlab/a64dbt/ir"
)

var _ = Describe("Exec", func() {
	var (
		ctx *emu.Context
		b   *ir.Block
	)

	x := func(n uint8) ir.Offset { return ir.Offset(emu.OffsetX(n)) }

	BeforeEach(func() {
		ctx = emu.NewContext()
		b = ir.NewBlock(0x1000)
		b.BeginInstruction(0x1000, 0)
	})

	It("should wrap 32-bit arithmetic", func() {
		a := b.Const(ir.W32, 0xFFFFFFFF)
		sum := b.Binary(ir.Add, a, b.Const(ir.W32, 2))
		b.WriteReg(x(0), b.ZeroExtend(sum, ir.W64))
		b.Exit(b.Const(ir.W64, 0x1004))

		out := interp.Exec(ctx, b)

		Expect(out.Next).To(Equal(uint64(0x1004)))
		Expect(out.Retired).To(Equal(uint64(1)))
		Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(1)))
	})

	It("should shift modulo the width", func() {
		v := b.Const(ir.W32, 1)
		shl := b.Binary(ir.Shl, v, b.Const(ir.W32, 33))
		b.WriteReg(x(0), b.ZeroExtend(shl, ir.W64))
		asr := b.Binary(ir.AShr, b.Const(ir.W32, 0x80000000), b.Const(ir.W32, 4))
		b.WriteReg(x(1), b.ZeroExtend(asr, ir.W64))
		ror := b.Binary(ir.Ror, b.Const(ir.W64, 1), b.Const(ir.W64, 1))
		b.WriteReg(x(2), ror)
		b.Exit(b.Const(ir.W64, 0))

		interp.Exec(ctx, b)

		Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(2)))
		Expect(ctx.Regs.ReadReg(1)).To(Equal(uint64(0xF8000000)))
		Expect(ctx.Regs.ReadReg(2)).To(Equal(uint64(0x8000000000000000)))
	})

	It("should sign-extend from the operand width", func() {
		v := b.Const(ir.W8, 0x80)
		b.WriteReg(x(0), b.SignExtend(v, ir.W64))
		b.WriteReg(x(1), b.ZeroExtend(b.SignExtend(v, ir.W32), ir.W64))
		b.Exit(b.Const(ir.W64, 0))

		interp.Exec(ctx, b)

		Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(0xFFFFFFFFFFFFFF80)))
		Expect(ctx.Regs.ReadReg(1)).To(Equal(uint64(0xFFFFFF80)))
	})

	It("should compare signed and unsigned", func() {
		m1 := b.Const(ir.W32, 0xFFFFFFFF)
		one := b.Const(ir.W32, 1)
		slt := b.Compare(ir.Slt, m1, one)
		ult := b.Compare(ir.Ult, m1, one)
		b.WriteReg(x(0), b.ZeroExtend(slt, ir.W64))
		b.WriteReg(x(1), b.ZeroExtend(ult, ir.W64))
		b.Exit(b.Const(ir.W64, 0))

		interp.Exec(ctx, b)

		Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(1)))
		Expect(ctx.Regs.ReadReg(1)).To(Equal(uint64(0)))
	})

	It("should take exit_if only when the condition holds", func() {
		next := b.Const(ir.W64, 0x1004)
		b.ExitIf(b.Const(ir.W8, 1), b.Const(ir.W64, 0x2000))
		b.Exit(next)

		Expect(interp.Exec(ctx, b).Next).To(Equal(uint64(0x2000)))
	})

	It("should access guest memory", func() {
		addr := b.Const(ir.W64, 0x3000)
		b.Store(addr, b.Const(ir.W16, 0xBEEF))
		v := b.Load(ir.W8, b.Binary(ir.Add, addr, b.Const(ir.W64, 1)))
		b.WriteReg(x(0), b.ZeroExtend(v, ir.W64))
		b.Exit(b.Const(ir.W64, 0))

		interp.Exec(ctx, b)

		Expect(ctx.Read(0x3000, 2)).To(Equal(uint64(0xBEEF)))
		Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(0xBE)))
	})

	It("should stop after a helper exits the context", func() {
		ctx.Syscalls = emu.NewDefaultSyscallHandler(nil, nil)
		ctx.Regs.WriteReg(8, emu.SyscallExit)
		ctx.Regs.WriteReg(0, 3)
		b.Call(ir.HelperSyscall, ir.RetNone, b.Const(ir.W64, 0x1000))
		b.WriteReg(x(1), b.Const(ir.W64, 99))
		b.Exit(b.Const(ir.W64, 0x1004))

		out := interp.Exec(ctx, b)

		Expect(out.Stopped).To(BeTrue())
		Expect(out.Retired).To(Equal(uint64(1)))
		Expect(ctx.ExitCode).To(Equal(int64(3)))
		Expect(ctx.Regs.ReadReg(1)).To(BeZero())
	})
})
