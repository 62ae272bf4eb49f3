package main

import (
	"bytes"
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spf13/afero"
)

func image(words ...uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}

// elfImage wraps code in a single-segment ARM64 executable loaded at vaddr.
func elfImage(vaddr uint64, code []byte) []byte {
	const ehsize, phentsize = 64, 56
	out := make([]byte, ehsize+phentsize)
	copy(out[0:4], []byte{0x7f, 'E', 'L', 'F'})
	out[4], out[5], out[6] = 2, 1, 1
	binary.LittleEndian.PutUint16(out[16:18], 2)
	binary.LittleEndian.PutUint16(out[18:20], 183)
	binary.LittleEndian.PutUint32(out[20:24], 1)
	binary.LittleEndian.PutUint64(out[24:32], vaddr)
	binary.LittleEndian.PutUint64(out[32:40], ehsize)
	binary.LittleEndian.PutUint16(out[52:54], ehsize)
	binary.LittleEndian.PutUint16(out[54:56], phentsize)
	binary.LittleEndian.PutUint16(out[56:58], 1)

	ph := out[ehsize:]
	binary.LittleEndian.PutUint32(ph[0:4], 1)   // PT_LOAD
	binary.LittleEndian.PutUint32(ph[4:8], 0x5) // PF_R | PF_X
	binary.LittleEndian.PutUint64(ph[8:16], ehsize+phentsize)
	binary.LittleEndian.PutUint64(ph[16:24], vaddr)
	binary.LittleEndian.PutUint64(ph[24:32], vaddr)
	binary.LittleEndian.PutUint64(ph[32:40], uint64(len(code)))
	binary.LittleEndian.PutUint64(ph[40:48], uint64(len(code)))
	binary.LittleEndian.PutUint64(ph[48:56], 0x1000)
	return append(out, code...)
}

const (
	movzX0_7   = 0xD28000E0
	movzX8Exit = 0xD2800BA8
	svc0       = 0xD4000001
	nop        = 0xD503201F
)

var _ = Describe("a64dbt", func() {
	var (
		gs     *globalState
		stdout *bytes.Buffer
		stderr *bytes.Buffer
		env    map[string]string
	)

	BeforeEach(func() {
		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
		env = map[string]string{}
		gs = newGlobalState(stdout, stderr, func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		})
		gs.fs = afero.NewMemMapFs()
	})

	write := func(path string, data []byte) {
		Expect(afero.WriteFile(gs.fs, path, data, 0o755)).To(Succeed())
	}

	Describe("decode", func() {
		It("should classify and disassemble words", func() {
			Expect(execute(gs, []string{"decode", "91000421", "0xD503201F"})).To(Equal(0))

			Expect(stdout.String()).To(ContainSubstring("add/sub-imm"))
			Expect(stdout.String()).To(ContainSubstring("0x00000004: d503201f"))
			Expect(stdout.String()).To(HaveSuffix(" nop\n"))
		})

		It("should read words from a file", func() {
			write("/code.bin", image(nop, svc0))

			Expect(execute(gs, []string{"decode", "-f", "/code.bin", "--pc", "0x400000"})).To(Equal(0))

			Expect(stdout.String()).To(ContainSubstring("0x00400004: d4000001"))
		})

		It("should reject malformed input", func() {
			Expect(execute(gs, []string{"decode", "xyz"})).To(Equal(1))
			Expect(stderr.String()).To(ContainSubstring("bad instruction word"))

			write("/odd.bin", []byte{1, 2, 3})
			Expect(execute(gs, []string{"decode", "-f", "/odd.bin"})).To(Equal(1))
			Expect(stderr.String()).To(ContainSubstring("not a multiple of 4"))
		})
	})

	Describe("translate", func() {
		It("should print the block listing", func() {
			Expect(execute(gs, []string{"translate", "d2800540", "d65f03c0"})).To(Equal(0))

			out := stdout.String()
			Expect(out).To(ContainSubstring("block 0x1000: 2 instructions"))
			Expect(out).To(ContainSubstring("write.i64 x0"))
			Expect(out).To(ContainSubstring("; next 0x1008"))
		})

		It("should report decode errors", func() {
			Expect(execute(gs, []string{"translate", "00000000"})).To(Equal(1))
			Expect(stderr.String()).To(ContainSubstring("a64dbt failed"))
		})
	})

	Describe("run", func() {
		It("should exit with the guest status", func() {
			write("/exit.bin", image(movzX0_7, movzX8Exit, svc0))

			Expect(execute(gs, []string{"run", "/exit.bin"})).To(Equal(7))
		})

		It("should load ELF executables", func() {
			write("/exit.elf", elfImage(0x400000, image(movzX0_7, movzX8Exit, svc0)))

			Expect(execute(gs, []string{"run", "/exit.elf"})).To(Equal(7))
		})

		It("should forward guest output", func() {
			write("/hello.bin", append(image(
				0xD2800020, // movz x0, #1
				0x100000E1, // adr x1, #28
				0xD28000A2, // movz x2, #5
				0xD2800808, // movz x8, #64
				svc0,
				0xD2800000, // movz x0, #0
				movzX8Exit,
				svc0,
			), []byte("hello")...))

			Expect(execute(gs, []string{"run", "/hello.bin"})).To(Equal(0))
			Expect(stdout.String()).To(Equal("hello"))
		})

		It("should stop at breakpoints and keep going", func() {
			write("/exit.bin", image(movzX0_7, movzX8Exit, svc0))

			code := execute(gs, []string{"run", "--break", "0x400004", "/exit.bin"})

			Expect(code).To(Equal(7))
			Expect(stderr.String()).To(ContainSubstring("msg=breakpoint"))
			Expect(stderr.String()).To(ContainSubstring("pc=0x400004"))
		})

		It("should honour the instruction limit", func() {
			write("/loop.bin", image(0x14000000)) // b .

			Expect(execute(gs, []string{"run", "--max-insts", "50", "/loop.bin"})).To(Equal(1))
			Expect(stderr.String()).To(ContainSubstring("max instructions reached"))
		})

		It("should print statistics", func() {
			write("/exit.bin", image(nop, movzX0_7, movzX8Exit, svc0))

			Expect(execute(gs, []string{"run", "--stats", "--no-cache", "/exit.bin"})).To(Equal(7))
			Expect(stderr.String()).To(ContainSubstring("instructions=4"))
		})
	})

	Describe("configuration", func() {
		It("should reject bad environment settings", func() {
			env["A64DBT_BLOCK_CACHE_SETS"] = "0"

			Expect(execute(gs, []string{"info"})).To(Equal(1))
			Expect(stderr.String()).To(ContainSubstring("block cache"))
		})

		It("should let the command line override the log level", func() {
			env["A64DBT_LOG_LEVEL"] = "warn"

			Expect(execute(gs, []string{"--log-level", "debug", "info"})).To(Equal(0))
			Expect(stdout.String()).To(ContainSubstring("log level:              debug"))
		})

		It("should show translator coverage", func() {
			env["A64DBT_MAX_BLOCK_INSTS"] = "16"

			Expect(execute(gs, []string{"info"})).To(Equal(0))
			Expect(stdout.String()).To(ContainSubstring("max block instructions: 16"))
			Expect(stdout.String()).To(ContainSubstring("translated classes:"))
		})
	})
})
