package emu_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/a64dbt/emu"
)

func negErrno(errno int64) uint64 {
	return uint64(-errno)
}

var _ = Describe("Syscall Handler", func() {
	var (
		ctx     *emu.Context
		stdout  *bytes.Buffer
		stderr  *bytes.Buffer
		handler *emu.DefaultSyscallHandler
	)

	BeforeEach(func() {
		stdout = new(bytes.Buffer)
		stderr = new(bytes.Buffer)
		handler = emu.NewDefaultSyscallHandler(stdout, stderr)
		ctx = emu.NewContext(emu.WithSyscallHandler(handler))
	})

	Describe("Unknown syscall", func() {
		It("should return ENOSYS for unknown syscall numbers", func() {
			ctx.Regs.WriteReg(8, 999)

			result := handler.Handle(ctx)

			Expect(result.Exited).To(BeFalse())
			Expect(ctx.Regs.ReadReg(0)).To(Equal(negErrno(emu.ENOSYS)))
		})

		It("should handle syscall 0 as unknown", func() {
			ctx.Regs.WriteReg(8, 0)

			result := handler.Handle(ctx)

			Expect(result.Exited).To(BeFalse())
			Expect(ctx.Regs.ReadReg(0)).To(Equal(negErrno(emu.ENOSYS)))
		})
	})

	Describe("Write syscall", func() {
		It("should return EBADF for invalid file descriptor", func() {
			ctx.Regs.WriteReg(8, emu.SyscallWrite)
			ctx.Regs.WriteReg(0, 42)
			ctx.Regs.WriteReg(2, 5)

			handler.Handle(ctx)

			Expect(ctx.Regs.ReadReg(0)).To(Equal(negErrno(emu.EBADF)))
		})

		It("should write buffer to stdout", func() {
			ctx.WriteBytes(0x1000, []byte("hello"))
			ctx.Regs.WriteReg(8, emu.SyscallWrite)
			ctx.Regs.WriteReg(0, 1)
			ctx.Regs.WriteReg(1, 0x1000)
			ctx.Regs.WriteReg(2, 5)

			result := handler.Handle(ctx)

			Expect(result.Exited).To(BeFalse())
			Expect(stdout.String()).To(Equal("hello"))
			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(5)))
		})

		It("should write buffer to stderr", func() {
			ctx.WriteBytes(0x2000, []byte("err"))
			ctx.Regs.WriteReg(8, emu.SyscallWrite)
			ctx.Regs.WriteReg(0, 2)
			ctx.Regs.WriteReg(1, 0x2000)
			ctx.Regs.WriteReg(2, 3)

			handler.Handle(ctx)

			Expect(stderr.String()).To(Equal("err"))
			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(3)))
		})

		It("should go through the address space", func() {
			ctx = emu.NewContext(emu.WithAddressSpace(emu.OffsetSpace{Base: 0x10000}))
			ctx.Mem.WriteBytes(0x11000, []byte("mapped"))
			ctx.Regs.WriteReg(8, emu.SyscallWrite)
			ctx.Regs.WriteReg(0, 1)
			ctx.Regs.WriteReg(1, 0x1000)
			ctx.Regs.WriteReg(2, 6)

			handler.Handle(ctx)

			Expect(stdout.String()).To(Equal("mapped"))
		})
	})

	Describe("Read syscall", func() {
		It("should return EOF without stdin", func() {
			ctx.Regs.WriteReg(8, emu.SyscallRead)
			ctx.Regs.WriteReg(0, 0)
			ctx.Regs.WriteReg(1, 0x1000)
			ctx.Regs.WriteReg(2, 4)

			handler.Handle(ctx)

			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(0)))
		})

		It("should copy stdin into guest memory", func() {
			handler.SetStdin(strings.NewReader("abc"))
			ctx.Regs.WriteReg(8, emu.SyscallRead)
			ctx.Regs.WriteReg(0, 0)
			ctx.Regs.WriteReg(1, 0x1000)
			ctx.Regs.WriteReg(2, 8)

			handler.Handle(ctx)

			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(3)))
			buf := make([]byte, 3)
			ctx.ReadBytes(0x1000, buf)
			Expect(string(buf)).To(Equal("abc"))
		})

		It("should reject other descriptors", func() {
			ctx.Regs.WriteReg(8, emu.SyscallRead)
			ctx.Regs.WriteReg(0, 3)

			handler.Handle(ctx)

			Expect(ctx.Regs.ReadReg(0)).To(Equal(negErrno(emu.EBADF)))
		})
	})

	Describe("Exit syscall", func() {
		It("should exit with specified code", func() {
			ctx.Regs.WriteReg(8, emu.SyscallExit)
			ctx.Regs.WriteReg(0, 42)

			result := handler.Handle(ctx)

			Expect(result.Exited).To(BeTrue())
			Expect(result.ExitCode).To(Equal(int64(42)))
		})

		It("should treat exit_group like exit", func() {
			ctx.Regs.WriteReg(8, emu.SyscallExitGroup)
			ctx.Regs.WriteReg(0, 0)

			result := handler.Handle(ctx)

			Expect(result.Exited).To(BeTrue())
			Expect(result.ExitCode).To(Equal(int64(0)))
		})
	})

	Describe("Brk syscall", func() {
		It("should return ENOSYS without a break segment", func() {
			ctx.Regs.WriteReg(8, emu.SyscallBrk)

			handler.Handle(ctx)

			Expect(ctx.Regs.ReadReg(0)).To(Equal(negErrno(emu.ENOSYS)))
		})

		It("should query and grow the break", func() {
			mem := emu.NewMemory()
			ctx = emu.NewContext(
				emu.WithMemory(mem),
				emu.WithBreakSegment(emu.NewBreakSegment(mem, 0x400000, 0x800000)),
			)

			ctx.Regs.WriteReg(8, emu.SyscallBrk)
			ctx.Regs.WriteReg(0, 0)
			handler.Handle(ctx)
			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(0x400000)))

			ctx.Regs.WriteReg(0, 0x402010)
			handler.Handle(ctx)
			Expect(ctx.Regs.ReadReg(0)).To(Equal(uint64(0x402010)))
			Expect(mem.Regions()).To(HaveLen(1))
			Expect(mem.Regions()[0].Length).To(Equal(uint64(0x3000)))
		})
	})
})
