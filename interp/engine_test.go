package interp_test

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/interp"
	"github.com/sarchlab/a64dbt/translate"
)

const (
	movzX8Exit  = 0xD2800BA8 // movz x8, #93
	movzX8Write = 0xD2800808 // movz x8, #64
	svc0        = 0xD4000001
)

func load(ctx *emu.Context, base uint64, words ...uint32) {
	for i, w := range words {
		ctx.Write(base+uint64(4*i), 4, uint64(w))
	}
	ctx.Regs.SetPC(base)
}

var _ = Describe("Engine", func() {
	var (
		ctx    *emu.Context
		stdout *bytes.Buffer
		logger *logrus.Logger
		hook   *test.Hook
	)

	BeforeEach(func() {
		ctx = emu.NewContext()
		stdout = &bytes.Buffer{}
		logger, hook = test.NewNullLogger()
	})

	newEngine := func(opts ...interp.Option) *interp.Engine {
		opts = append([]interp.Option{
			interp.WithStdout(stdout),
			interp.WithLogger(logger),
		}, opts...)
		return interp.New(ctx, opts...)
	}

	It("should compute ADDS overflow flags", func() {
		load(ctx, 0x1000,
			0xAB020023, // adds x3, x1, x2
			0xD28000E0, // movz x0, #7
			movzX8Exit,
			svc0,
		)
		ctx.Regs.WriteReg(1, 0x7FFFFFFFFFFFFFFF)
		ctx.Regs.WriteReg(2, 1)

		code, err := newEngine().Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(int64(7)))
		Expect(ctx.Regs.ReadReg(3)).To(Equal(uint64(0x8000000000000000)))
		f := ctx.Regs.NZCV()
		Expect(f.N()).To(BeTrue())
		Expect(f.Z()).To(BeFalse())
		Expect(f.C()).To(BeFalse())
		Expect(f.V()).To(BeTrue())
	})

	It("should run a counted loop", func() {
		load(ctx, 0x1000,
			0xD2800000, // movz x0, #0
			0xD2800141, // movz x1, #10
			0x8B010000, // add x0, x0, x1
			0xF1000421, // subs x1, x1, #1
			0x54FFFFC1, // b.ne -8
			movzX8Exit,
			svc0,
		)

		e := newEngine()
		code, err := e.Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(int64(55)))
		Expect(e.InstructionCount()).To(Equal(uint64(34)))
		Expect(ctx.Counter).To(Equal(uint64(34)))
	})

	It("should call and return", func() {
		load(ctx, 0x1000,
			0x94000003, // bl +12
			movzX8Exit,
			svc0,
			0xD2800540, // movz x0, #42
			0xD65F03C0, // ret
		)

		code, err := newEngine().Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(int64(42)))
		Expect(ctx.Regs.ReadReg(30)).To(Equal(uint64(0x1004)))
	})

	It("should push and pop through SP with writeback", func() {
		load(ctx, 0x1000,
			0xF81F0FE1, // str x1, [sp, #-16]!
			0xF84107E2, // ldr x2, [sp], #16
			0xD2800000, // movz x0, #0
			movzX8Exit,
			svc0,
		)
		ctx.Regs.SetSP(0x8000)
		ctx.Regs.WriteReg(1, 0x1122334455667788)

		_, err := newEngine().Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.Regs.ReadReg(2)).To(Equal(uint64(0x1122334455667788)))
		Expect(ctx.Regs.SP()).To(Equal(uint64(0x8000)))
		Expect(ctx.Read(0x7FF0, 8)).To(Equal(uint64(0x1122334455667788)))
	})

	It("should write to stdout through the default syscall handler", func() {
		load(ctx, 0x1000,
			0xD2800020, // movz x0, #1
			0xD2840001, // movz x1, #0x2000
			0xD28000A2, // movz x2, #5
			movzX8Write,
			svc0,
			0xD2800000, // movz x0, #0
			movzX8Exit,
			svc0,
		)
		ctx.WriteBytes(0x2000, []byte("hello"))

		code, err := newEngine().Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(int64(0)))
		Expect(stdout.String()).To(Equal("hello"))
	})

	It("should run FP instructions through helpers", func() {
		load(ctx, 0x1000,
			0x1E6E1000, // fmov d0, #1.0
			0x1E602801, // fadd d1, d0, d0
			0xD2800000,
			movzX8Exit,
			svc0,
		)

		_, err := newEngine().Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.Regs.Scalar(1, 8)).To(Equal(uint64(0x4000000000000000)))
	})

	It("should stop at BRK with a trap", func() {
		load(ctx, 0x1000,
			0xD503201F, // nop
			0xD4200020, // brk #1
		)

		e := newEngine()
		code, err := e.Run()

		Expect(code).To(Equal(int64(-1)))
		var trap *emu.Trap
		Expect(errors.As(err, &trap)).To(BeTrue())
		Expect(trap.PC).To(Equal(uint64(0x1004)))
		Expect(trap.Word).To(Equal(uint32(0xD4200020)))
		Expect(ctx.Regs.PC()).To(Equal(uint64(0x1004)))
		Expect(e.InstructionCount()).To(Equal(uint64(1)))
		Expect(hook.LastEntry().Level).To(Equal(logrus.ErrorLevel))
	})

	It("should report decode errors", func() {
		load(ctx, 0x1000, 0xD503201F, 0x00000000)

		_, err := newEngine().Run()

		var de *insts.DecodeError
		Expect(errors.As(err, &de)).To(BeTrue())
		Expect(de.Kind).To(Equal(insts.ErrIllegal))
		Expect(de.PC).To(Equal(uint64(0x1004)))
	})

	It("should stop at the instruction limit", func() {
		load(ctx, 0x1000, 0x14000000) // b .

		e := newEngine(interp.WithMaxInstructions(100))
		_, err := e.Run()

		Expect(err).To(MatchError(interp.ErrMaxInstructions))
		Expect(e.InstructionCount()).To(Equal(uint64(100)))
	})

	It("should reuse cached blocks and drop them on invalidation", func() {
		load(ctx, 0x1000,
			0xD2800000,
			0xD2800141,
			0x8B010000,
			0xF1000421,
			0x54FFFFC1,
			movzX8Exit,
			svc0,
		)
		cache := translate.NewBlockCache(16, 2)

		code, err := newEngine(interp.WithBlockCache(cache)).Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(int64(55)))
		Expect(cache.Stats().Hits).To(Equal(uint64(8)))

		// Both the entry block and the loop body cover 0x1008.
		ctx.InvalidateCode(0x1008, 4)
		Expect(cache.Stats().Invalidations).To(Equal(uint64(2)))
		_, ok := cache.Get(0x1008)
		Expect(ok).To(BeFalse())
		_, ok = cache.Get(0x1014)
		Expect(ok).To(BeTrue())
	})
})
