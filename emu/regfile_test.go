package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/softfloat"
)

var _ = Describe("RegFile", func() {
	var regs *emu.RegFile

	BeforeEach(func() {
		regs = &emu.RegFile{}
	})

	Describe("Register 31", func() {
		It("should read zero and discard writes as ZR", func() {
			regs.SetSP(0x7FFF0000)
			Expect(regs.ReadX(31, emu.Reg31ZR)).To(Equal(uint64(0)))

			regs.WriteX(31, emu.Reg31ZR, 0x1234)
			Expect(regs.SP()).To(Equal(uint64(0x7FFF0000)))
		})

		It("should address SP with the SP selector", func() {
			regs.WriteX(31, emu.Reg31SP, 0x8000)
			Expect(regs.SP()).To(Equal(uint64(0x8000)))
			Expect(regs.ReadRegOrSP(31)).To(Equal(uint64(0x8000)))
			Expect(regs.ReadReg(31)).To(Equal(uint64(0)))
		})

		It("should zero-extend 32-bit writes", func() {
			regs.WriteReg(3, 0xFFFFFFFFFFFFFFFF)
			regs.WriteReg32(3, 0x12345678)
			Expect(regs.ReadReg(3)).To(Equal(uint64(0x12345678)))
		})
	})

	Describe("Layout", func() {
		It("should expose registers at their offsets", func() {
			regs.WriteReg(5, 0xCAFE)
			Expect(regs.Load(emu.OffsetX(5), 8)).To(Equal(uint64(0xCAFE)))

			regs.Store(emu.OffsetPC, 8, 0x400000)
			Expect(regs.PC()).To(Equal(uint64(0x400000)))

			regs.SetNZCV(emu.FlagsFromNZCV(0b1010))
			Expect(regs.Load(emu.OffsetNZCV, 4)).To(Equal(uint64(0xA0000000)))
		})

		It("should mask non-flag bits written to NZCV", func() {
			regs.SetNZCV(0xFFFFFFFF)
			Expect(uint32(regs.NZCV())).To(Equal(uint32(0xF0000000)))
		})
	})

	Describe("Vector registers", func() {
		It("should provide lane views over the same bytes", func() {
			regs.SetQ(2, 0x0807060504030201, 0x100F0E0D0C0B0A09)
			Expect(regs.Lane8(2, 0)).To(Equal(uint8(0x01)))
			Expect(regs.Lane16(2, 4)).To(Equal(uint16(0x0A09)))
			Expect(regs.Lane32(2, 1)).To(Equal(uint32(0x08070605)))
			Expect(regs.Lane64(2, 1)).To(Equal(uint64(0x100F0E0D0C0B0A09)))
		})

		It("should zero the upper bits on scalar and 64-bit writes", func() {
			regs.SetQ(1, ^uint64(0), ^uint64(0))
			regs.SetScalar(1, 4, 0x3F800000)
			lo, hi := regs.Q(1)
			Expect(lo).To(Equal(uint64(0x3F800000)))
			Expect(hi).To(Equal(uint64(0)))
			Expect(regs.LaneF32(1, 0)).To(Equal(float32(1.0)))

			regs.SetQ(1, ^uint64(0), ^uint64(0))
			regs.WriteLanes(1, emu.Arr2S, []uint64{1, 2})
			_, hi = regs.Q(1)
			Expect(hi).To(Equal(uint64(0)))
			Expect(regs.ReadLanes(1, emu.Arr2S)).To(Equal([]uint64{1, 2}))
		})

		It("should decode arrangements", func() {
			Expect(emu.ArrangementOf(0, true)).To(Equal(emu.Arr16B))
			Expect(emu.ArrangementOf(2, false)).To(Equal(emu.Arr2S))
			Expect(emu.ArrangementOf(3, false)).To(Equal(emu.Arr1D))
			Expect(emu.Arr8H.String()).To(Equal("8h"))
		})
	})
})

var _ = Describe("Context", func() {
	It("should build the FP environment from FPCR", func() {
		ctx := emu.NewContext()
		ctx.Regs.SetFPCR(uint32(softfloat.RoundZero)<<emu.FPCRRModeShift | emu.FPCRFZ)

		env := ctx.FPEnv()
		Expect(env.Mode).To(Equal(softfloat.RoundZero))
		Expect(env.FlushToZero).To(BeTrue())
		Expect(env.DefaultNaN).To(BeFalse())
	})

	It("should accumulate exceptions into FPSR", func() {
		ctx := emu.NewContext()
		env := ctx.FPEnv()
		softfloat.Div(env, softfloat.Double, softfloat.Double.One(false), softfloat.Double.Zero(false))
		ctx.RaiseFP(env)
		ctx.SetQC()

		Expect(ctx.Regs.FPSR()).To(Equal(uint32(softfloat.DivideByZero) | emu.FPSRQC))
	})

	It("should keep contexts independent", func() {
		a, b := emu.NewContext(), emu.NewContext()
		a.Regs.SetNZCV(emu.FlagN)
		a.Monitor.Reserve(0x1000, 8)
		a.Write(0x1000, 8, 7)

		Expect(b.Regs.NZCV()).To(Equal(emu.Flags(0)))
		_, _, held := b.Monitor.Held()
		Expect(held).To(BeFalse())
		Expect(b.Read(0x1000, 8)).To(Equal(uint64(0)))
	})
})
