package translate_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/interp"
	"github.com/sarchlab/a64dbt/ir"
	"github.com/sarchlab/a64dbt/translate"
)

const (
	nop    = 0xD503201F
	addX1  = 0x91000421 // add x1, x1, #1
	hvc0   = 0xD4000002
	base   = 0x1000
	bpAddr = 0x2000
)

type breakpoints map[uint64]uint32

func (b breakpoints) OpcodeAt(addr uint64) (uint32, bool) {
	w, ok := b[addr]
	return w, ok
}

type recordingDebugger struct {
	hits []uint64
}

func (d *recordingDebugger) Enter(_ *emu.Context, addr uint64) {
	d.hits = append(d.hits, addr)
}

func words(start uint64, ws ...uint32) translate.FetchFunc {
	return func(pc uint64) uint32 {
		i := (pc - start) / 4
		if pc < start || i >= uint64(len(ws)) {
			return nop
		}
		return ws[i]
	}
}

func opsOf(b *ir.Block) []ir.Op {
	ops := make([]ir.Op, len(b.Insts))
	for i, in := range b.Insts {
		ops[i] = in.Op
	}
	return ops
}

var _ = Describe("Translator", func() {
	var (
		logger *logrus.Logger
		hook   *test.Hook
		ctx    *emu.Context
	)

	BeforeEach(func() {
		logger, hook = test.NewNullLogger()
		ctx = emu.NewContext()
	})

	// run translates the given words as one block at base and executes it.
	run := func(ws ...uint32) interp.Outcome {
		for i, w := range ws {
			ctx.Write(base+uint64(4*i), 4, uint64(w))
		}
		t := translate.New(translate.WithLogger(logger), translate.WithMaxInstructions(len(ws)))
		b := translate.NewBlock(base)
		_, err := t.TranslateBlock(base, translate.FetchFunc(ctx.Fetch), b)
		Expect(err).NotTo(HaveOccurred())
		return interp.Exec(ctx, b)
	}

	It("should have a translator for every class", func() {
		for c := insts.Class(0); c < insts.NumClasses; c++ {
			Expect(translate.HasTranslator(c)).To(BeTrue(), c.String())
		}
	})

	Describe("Block formation", func() {
		It("should resolve PC-relative forms against their own address", func() {
			fetch := words(base,
				nop,
				0x10000040, // adr x0, #8
				0xB0000001, // adrp x1, #0x1000
				0x14000002, // b #8
			)
			b := translate.NewBlock(base)
			res, err := translate.New(translate.WithLogger(logger)).TranslateBlock(base, fetch, b)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Instructions).To(Equal(4))
			Expect(res.Next).To(Equal(uint64(0x1010)))
			Expect(b.NumInstructions).To(Equal(4))
			Expect(b.Terminated()).To(BeTrue())

			out := interp.Exec(ctx, b)
			Expect(out.Next).To(Equal(uint64(0x1014)))
			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(0x100C)))
			Expect(ctx.Regs.ReadReg(1)).To(Equal(uint64(0x2000)))
		})

		It("should stop at the instruction cap", func() {
			b := translate.NewBlock(base)
			t := translate.New(translate.WithLogger(logger), translate.WithMaxInstructions(3))
			res, err := t.TranslateBlock(base, words(base), b)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Instructions).To(Equal(3))
			Expect(opsOf(b)).To(Equal([]ir.Op{
				ir.OpGuest, ir.OpGuest, ir.OpGuest, ir.OpConst, ir.OpExit,
			}))
			Expect(interp.Exec(ctx, b).Next).To(Equal(uint64(0x100C)))
		})

		It("should end the block with both edges of a conditional branch", func() {
			b := translate.NewBlock(base)
			_, err := translate.New(translate.WithLogger(logger)).
				TranslateBlock(base, words(base, 0x54000080), b) // b.eq #16

			Expect(err).NotTo(HaveOccurred())
			Expect(opsOf(b)).To(Equal([]ir.Op{
				ir.OpGuest, ir.OpConst, ir.OpReadReg, ir.OpCall,
				ir.OpConst, ir.OpConst, ir.OpExitIf, ir.OpExit,
			}))
			Expect(b.Insts[3].Helper).To(Equal(ir.HelperCondition))
		})

		It("should log each instruction when tracing", func() {
			logger.SetLevel(logrus.DebugLevel)
			t := translate.New(translate.WithLogger(logger), translate.WithTrace(true),
				translate.WithMaxInstructions(2))
			_, err := t.TranslateBlock(base, words(base, nop, addX1), translate.NewBlock(base))

			Expect(err).NotTo(HaveOccurred())
			Expect(hook.AllEntries()).To(HaveLen(2))
			Expect(hook.LastEntry().Data).To(HaveKeyWithValue("class", "add/sub-imm"))
			Expect(hook.LastEntry().Data).To(HaveKeyWithValue("pc", "0x1004"))
		})
	})

	Describe("Decode errors", func() {
		translateErr := func(ws ...uint32) *insts.DecodeError {
			_, err := translate.New(translate.WithLogger(logger)).
				TranslateBlock(base, words(base, ws...), translate.NewBlock(base))
			var de *insts.DecodeError
			Expect(errors.As(err, &de)).To(BeTrue())
			return de
		}

		It("should fail the block on an unallocated word", func() {
			de := translateErr(nop, 0x00000000)

			Expect(de.Kind).To(Equal(insts.ErrIllegal))
			Expect(de.PC).To(Equal(uint64(0x1004)))
			Expect(de.Word).To(Equal(uint32(0)))
			Expect(de.Class).To(Equal(insts.ClassIllegal))

			Expect(hook.LastEntry().Level).To(Equal(logrus.ErrorLevel))
			Expect(hook.LastEntry().Data).To(HaveKeyWithValue("pc", "0x1004"))
		})

		It("should report real but unimplemented encodings as unsupported", func() {
			de := translateErr(hvc0)
			Expect(de.Kind).To(Equal(insts.ErrUnsupported))
			Expect(de.Class).To(Equal(insts.ClassExceptionGen))
		})

		DescribeTable("reserved sub-encodings",
			func(word uint32, class insts.Class) {
				de := translateErr(word)
				Expect(de.Kind).To(Equal(insts.ErrIllegal))
				Expect(de.Class).To(Equal(class))
			},
			Entry("32-bit MOVN with hw=2", uint32(0x12C00000), insts.ClassMoveWide),
			Entry("ADD with ROR shift", uint32(0x8BC20020), insts.ClassAddSubShifted),
			Entry("FADD with ftype=10", uint32(0x1EA22820), insts.ClassFPDataProc2),
			Entry("FP literal with opc=11", uint32(0xDC000000), insts.ClassLoadLiteral),
		)
	})

	Describe("Breakpoints", func() {
		It("should enter the debugger then run the replaced instruction", func() {
			t := translate.New(translate.WithLogger(logger),
				translate.WithBreakpoints(breakpoints{bpAddr: addX1}))
			b := translate.NewBlock(bpAddr)
			res, err := t.TranslateBlock(bpAddr, words(bpAddr, insts.BreakpointWord, nop), b)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Breakpoint).To(BeTrue())
			Expect(res.Instructions).To(Equal(1))
			Expect(b.Insts[2].Helper).To(Equal(ir.HelperBreakpoint))

			dbg := &recordingDebugger{}
			ctx.Debugger = dbg
			ctx.Regs.WriteReg(1, 41)
			out := interp.Exec(ctx, b)

			Expect(dbg.hits).To(Equal([]uint64{bpAddr}))
			Expect(ctx.Regs.ReadReg(1)).To(Equal(uint64(42)))
			Expect(out.Next).To(Equal(uint64(bpAddr + 4)))
		})

		It("should trap when no collaborator owns the marker", func() {
			b := translate.NewBlock(bpAddr)
			_, err := translate.New(translate.WithLogger(logger)).
				TranslateBlock(bpAddr, words(bpAddr, insts.BreakpointWord), b)
			Expect(err).NotTo(HaveOccurred())

			out := interp.Exec(ctx, b)
			Expect(out.Stopped).To(BeTrue())
			Expect(out.Next).To(Equal(uint64(bpAddr)))
			Expect(ctx.Trap).To(Equal(&emu.Trap{PC: bpAddr, Word: insts.BreakpointWord}))
		})

		It("should end a block before a planted marker", func() {
			t := translate.New(translate.WithLogger(logger),
				translate.WithBreakpoints(breakpoints{bpAddr + 4: addX1}))
			b := translate.NewBlock(bpAddr)
			res, err := t.TranslateBlock(bpAddr, words(bpAddr, nop, insts.BreakpointWord), b)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Breakpoint).To(BeFalse())
			Expect(res.Instructions).To(Equal(1))
			Expect(res.Next).To(Equal(uint64(bpAddr + 4)))
		})
	})

	Describe("Branch targets", func() {
		DescribeTable("compare and test branches",
			func(word uint32, x0 uint64, next uint64) {
				ctx.Regs.WriteReg(0, x0)
				Expect(run(word).Next).To(Equal(next))
			},
			Entry("CBZ taken", uint32(0xB4000040), uint64(0), uint64(0x1008)),     // cbz x0, #8
			Entry("CBZ not taken", uint32(0xB4000040), uint64(1), uint64(0x1004)), // cbz x0, #8
			Entry("CBNZ taken", uint32(0xB5000040), uint64(1), uint64(0x1008)),    // cbnz x0, #8
			Entry("CBNZ not taken", uint32(0xB5000040), uint64(0), uint64(0x1004)),
			Entry("TBZ taken", uint32(0x36180060), uint64(0), uint64(0x100C)), // tbz x0, #3, #12
			Entry("TBZ not taken", uint32(0x36180060), uint64(8), uint64(0x1004)),
			Entry("TBNZ taken", uint32(0x37180060), uint64(8), uint64(0x100C)), // tbnz x0, #3, #12
			Entry("CBZ backwards", uint32(0xB4FFFFE0), uint64(0), uint64(0x0FFC)), // cbz x0, #-4
		)

		It("should branch backwards from the branch's own address", func() {
			Expect(run(nop, 0x17FFFFFE).Next).To(Equal(uint64(0x0FFC))) // b #-8
		})

		It("should take a backwards B.cond and fall through otherwise", func() {
			Expect(run(nop, 0x54FFFFC1).Next).To(Equal(uint64(0x0FFC))) // b.ne #-8

			ctx.Regs.SetNZCV(emu.FlagZ)
			Expect(run(nop, 0x54FFFFC1).Next).To(Equal(uint64(0x1008)))
		})

		It("should link BL to the next instruction", func() {
			out := run(nop, 0x94000004) // bl #16
			Expect(out.Next).To(Equal(uint64(0x1014)))
			Expect(ctx.Regs.ReadReg(30)).To(Equal(uint64(0x1008)))
		})
	})

	Describe("Literal loads", func() {
		BeforeEach(func() {
			ctx.Write(0x1008, 8, 0x1122334480000000)
			ctx.Write(0x1020, 8, 0xDEAD)
		})

		It("should load X registers relative to the instruction", func() {
			run(0x58000040) // ldr x0, #8
			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(0x1122334480000000)))
		})

		It("should sign-extend LDRSW", func() {
			run(0x98000041) // ldrsw x1, #8
			Expect(ctx.Regs.ReadReg(1)).To(Equal(uint64(0xFFFFFFFF80000000)))
		})

		It("should load FP registers by size", func() {
			run(0x5C000042) // ldr d2, #8
			Expect(ctx.Regs.Scalar(2, 8)).To(Equal(uint64(0x1122334480000000)))

			run(0x1C000043) // ldr s3, #8
			Expect(ctx.Regs.Scalar(3, 4)).To(Equal(uint64(0x80000000)))
		})

		It("should resolve backwards literals", func() {
			ctx.Write(0x0FF8, 8, 0x42)
			run(nop, 0x58FFFFA0) // ldr x0, #-12 at 0x1004
			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(0x42)))
		})
	})

	Describe("Integer semantics", func() {
		It("should branch on compare results", func() {
			ctx.Regs.WriteReg(0, 5)
			out := run(
				0xF100141F, // cmp x0, #5
				0x54000040, // b.eq #8
			)
			Expect(out.Next).To(Equal(uint64(0x100C)))

			ctx.Regs.WriteReg(0, 6)
			Expect(run(0xF100141F, 0x54000040).Next).To(Equal(uint64(0x1008)))
		})

		It("should select with CSINC", func() {
			ctx.Regs.WriteReg(1, 10)
			ctx.Regs.WriteReg(2, 20)
			run(0x9A820420) // csinc x0, x1, x2, eq
			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(21)))
		})

		It("should use the immediate NZCV when CCMP's condition fails", func() {
			ctx.Regs.SetNZCV(emu.FlagZ)
			run(0xFA431804) // ccmp x0, #3, #4, ne
			Expect(ctx.Regs.NZCV()).To(Equal(emu.FlagZ))

			ctx.Regs.SetNZCV(0)
			ctx.Regs.WriteReg(0, 3)
			run(0xFA431804)
			Expect(ctx.Regs.NZCV()).To(Equal(emu.FlagZ | emu.FlagC))
		})

		It("should inline the bitfield aliases", func() {
			ctx.Regs.WriteReg(1, 0x80000000F0)
			run(
				0xD344FC20, // lsr x0, x1, #4
				0x93407C22, // sxtw x2, w1
			)
			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(0x080000000F)))
			Expect(ctx.Regs.ReadReg(2)).To(Equal(uint64(0xF0)))
		})

		It("should multiply-add and divide", func() {
			ctx.Regs.WriteReg(1, 6)
			ctx.Regs.WriteReg(2, 7)
			ctx.Regs.WriteReg(3, 100)
			run(
				0x9B020C20, // madd x0, x1, x2, x3
				0x1AC10844, // udiv w4, w2, w1
			)
			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(142)))
			Expect(ctx.Regs.ReadReg(4)).To(Equal(uint64(1)))
		})

		It("should extract across two registers", func() {
			ctx.Regs.WriteReg(1, 0xAB)
			ctx.Regs.WriteReg(2, 0x1122334455667788)
			run(0x93C22020) // extr x0, x1, x2, #8
			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(0xAB11223344556677)))
		})

		It("should zero the upper half on 32-bit writes", func() {
			ctx.Regs.WriteReg(0, 0xFFFFFFFFFFFFFFFF)
			run(0x11000400) // add w0, w0, #1
			Expect(ctx.Regs.ReadReg(0)).To(BeZero())
		})

		It("should read the BLR target before linking", func() {
			ctx.Regs.WriteReg(30, 0x5000)
			out := run(0xD63F03C0) // blr x30
			Expect(out.Next).To(Equal(uint64(0x5000)))
			Expect(ctx.Regs.ReadReg(30)).To(Equal(uint64(0x1004)))
		})
	})

	Describe("Load and store semantics", func() {
		It("should scale register offsets", func() {
			ctx.Regs.WriteReg(1, 0x3000)
			ctx.Regs.WriteReg(2, 3)
			ctx.Write(0x300C, 4, 0xCAFEF00D)
			run(0xB8627820) // ldr w0, [x1, x2, lsl #2]
			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(0xCAFEF00D)))
		})

		It("should push and pop pairs", func() {
			ctx.Regs.SetSP(0x8000)
			ctx.Regs.WriteReg(1, 0x11)
			ctx.Regs.WriteReg(2, 0x22)
			run(
				0xA9BF0BE1, // stp x1, x2, [sp, #-16]!
				0xA8C113E3, // ldp x3, x4, [sp], #16
			)
			Expect(ctx.Read(0x7FF0, 8)).To(Equal(uint64(0x11)))
			Expect(ctx.Read(0x7FF8, 8)).To(Equal(uint64(0x22)))
			Expect(ctx.Regs.ReadReg(3)).To(Equal(uint64(0x11)))
			Expect(ctx.Regs.ReadReg(4)).To(Equal(uint64(0x22)))
			Expect(ctx.Regs.SP()).To(Equal(uint64(0x8000)))
		})

		It("should keep the loaded value when Rt is the base", func() {
			ctx.Regs.WriteReg(1, 0x3000)
			ctx.Write(0x3008, 8, 0x77)
			run(0xF8408C21) // ldr x1, [x1, #8]!
			Expect(ctx.Regs.ReadReg(1)).To(Equal(uint64(0x77)))
		})

		It("should sign-extend LDRSB into a W register", func() {
			ctx.Regs.WriteReg(1, 0x3000)
			ctx.Write(0x3000, 1, 0x80)
			run(0x39C00020) // ldrsb w0, [x1]
			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(0xFFFFFF80)))
		})

		It("should move Q registers as two doublewords", func() {
			ctx.Regs.WriteReg(1, 0x3000)
			ctx.Regs.SetQ(2, 0x0102030405060708, 0x1112131415161718)
			run(
				0x3D800022, // str q2, [x1]
				0x3DC00023, // ldr q3, [x1]
			)
			lo, hi := ctx.Regs.Q(3)
			Expect(lo).To(Equal(uint64(0x0102030405060708)))
			Expect(hi).To(Equal(uint64(0x1112131415161718)))
		})
	})
})
