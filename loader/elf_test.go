package loader_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spf13/afero"

	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/loader"
)

// segSpec describes one program header of a test image.
type segSpec struct {
	typ     uint32
	flags   uint32
	vaddr   uint64
	data    []byte
	memSize uint64
}

// buildELF assembles a little-endian 64-bit ELF image with the given program
// headers. File contents follow the headers in order.
func buildELF(machine uint16, entry uint64, segs ...segSpec) []byte {
	const ehsize, phentsize = 64, 56

	header := make([]byte, ehsize)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 2 // 64-bit
	header[5] = 1 // little endian
	header[6] = 1 // version
	binary.LittleEndian.PutUint16(header[16:18], 2) // executable
	binary.LittleEndian.PutUint16(header[18:20], machine)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint64(header[24:32], entry)
	binary.LittleEndian.PutUint64(header[32:40], ehsize) // phoff
	binary.LittleEndian.PutUint16(header[52:54], ehsize)
	binary.LittleEndian.PutUint16(header[54:56], phentsize)
	binary.LittleEndian.PutUint16(header[56:58], uint16(len(segs)))

	out := header
	offset := uint64(ehsize + phentsize*len(segs))
	var payload []byte
	for _, s := range segs {
		ph := make([]byte, phentsize)
		binary.LittleEndian.PutUint32(ph[0:4], s.typ)
		binary.LittleEndian.PutUint32(ph[4:8], s.flags)
		binary.LittleEndian.PutUint64(ph[8:16], offset)
		binary.LittleEndian.PutUint64(ph[16:24], s.vaddr)
		binary.LittleEndian.PutUint64(ph[24:32], s.vaddr)
		binary.LittleEndian.PutUint64(ph[32:40], uint64(len(s.data)))
		binary.LittleEndian.PutUint64(ph[40:48], s.memSize)
		binary.LittleEndian.PutUint64(ph[48:56], 0x1000)
		out = append(out, ph...)
		payload = append(payload, s.data...)
		offset += uint64(len(s.data))
	}
	return append(out, payload...)
}

func load(s segSpec) segSpec {
	s.typ = 1 // PT_LOAD
	if s.memSize == 0 {
		s.memSize = uint64(len(s.data))
	}
	return s
}

const (
	emAArch64 = 183
	emX86_64  = 62
	pfX       = 0x1
	pfW       = 0x2
	pfR       = 0x4
)

var code = []byte{
	0x40, 0x05, 0x80, 0xd2, // mov x0, #42
	0xc0, 0x03, 0x5f, 0xd6, // ret
}

var _ = Describe("Loader", func() {
	var fs afero.Fs

	BeforeEach(func() {
		fs = afero.NewMemMapFs()
	})

	write := func(path string, data []byte) {
		Expect(afero.WriteFile(fs, path, data, 0o644)).To(Succeed())
	}

	Describe("Load", func() {
		It("should read the entry point and loadable segments", func() {
			write("/a.elf", buildELF(emAArch64, 0x400000,
				load(segSpec{flags: pfR | pfX, vaddr: 0x400000, data: code})))

			prog, err := loader.Load(fs, "/a.elf")

			Expect(err).NotTo(HaveOccurred())
			Expect(prog.EntryPoint).To(Equal(uint64(0x400000)))
			Expect(prog.InitialSP).To(Equal(uint64(loader.DefaultStackTop)))
			Expect(prog.Segments).To(HaveLen(1))
			seg := prog.Segments[0]
			Expect(seg.VirtAddr).To(Equal(uint64(0x400000)))
			Expect(seg.Data).To(Equal(code))
			Expect(seg.Prot).To(Equal(emu.ProtRead | emu.ProtExec))
		})

		It("should keep segment order and permissions", func() {
			data := []byte{1, 2, 3, 4}
			write("/a.elf", buildELF(emAArch64, 0x400000,
				load(segSpec{flags: pfR | pfX, vaddr: 0x400000, data: code}),
				load(segSpec{flags: pfR | pfW, vaddr: 0x410000, data: data})))

			prog, err := loader.Load(fs, "/a.elf")

			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(HaveLen(2))
			Expect(prog.Segments[1].Data).To(Equal(data))
			Expect(prog.Segments[1].Prot).To(Equal(emu.ProtRead | emu.ProtWrite))
		})

		It("should carry BSS size past the file data", func() {
			write("/a.elf", buildELF(emAArch64, 0x400000,
				load(segSpec{flags: pfR | pfW, vaddr: 0x500000, data: []byte{9}, memSize: 0x100}),
				load(segSpec{flags: pfR | pfW, vaddr: 0x600000, memSize: 0x40})))

			prog, err := loader.Load(fs, "/a.elf")

			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments[0].MemSize).To(Equal(uint64(0x100)))
			Expect(prog.Segments[0].End()).To(Equal(uint64(0x500100)))
			Expect(prog.Segments[1].Data).To(BeEmpty())
		})

		It("should skip non-loadable headers", func() {
			write("/a.elf", buildELF(emAArch64, 0x400000,
				segSpec{typ: 4, flags: pfR})) // PT_NOTE

			prog, err := loader.Load(fs, "/a.elf")

			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(BeEmpty())
		})

		It("should reject missing and malformed files", func() {
			_, err := loader.Load(fs, "/missing")
			Expect(err).To(MatchError(ContainSubstring("failed to open")))

			write("/text", []byte("not an elf"))
			_, err = loader.Load(fs, "/text")
			Expect(err).To(MatchError(ContainSubstring("failed to parse")))
		})

		It("should reject other machines", func() {
			write("/x86.elf", buildELF(emX86_64, 0x401000))

			_, err := loader.Load(fs, "/x86.elf")

			Expect(err).To(MatchError(ContainSubstring("not an ARM64")))
		})

		It("should reject 32-bit files", func() {
			header := make([]byte, 52)
			copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
			header[4] = 1 // 32-bit
			header[5] = 1
			header[6] = 1
			binary.LittleEndian.PutUint16(header[16:18], 2)
			binary.LittleEndian.PutUint16(header[18:20], emAArch64)
			binary.LittleEndian.PutUint32(header[20:24], 1)
			write("/32.elf", header)

			_, err := loader.Load(fs, "/32.elf")

			Expect(err).To(MatchError(ContainSubstring("not a 64-bit")))
		})
	})

	Describe("LoadRaw", func() {
		It("should wrap the image in one executable segment", func() {
			write("/code.bin", code)

			prog, err := loader.LoadRaw(fs, "/code.bin", 0x1000, 0x1004)

			Expect(err).NotTo(HaveOccurred())
			Expect(prog.EntryPoint).To(Equal(uint64(0x1004)))
			Expect(prog.Segments).To(HaveLen(1))
			Expect(prog.Segments[0].VirtAddr).To(Equal(uint64(0x1000)))
			Expect(prog.Segments[0].Prot & emu.ProtExec).NotTo(BeZero())
		})

		It("should reject empty images", func() {
			write("/empty.bin", nil)

			_, err := loader.LoadRaw(fs, "/empty.bin", 0x1000, 0x1000)

			Expect(err).To(MatchError(ContainSubstring("empty")))
		})
	})

	Describe("Install", func() {
		var ctx *emu.Context

		BeforeEach(func() {
			ctx = emu.NewContext()
		})

		It("should copy segments and set PC and SP", func() {
			prog := &loader.Program{
				EntryPoint: 0x400004,
				InitialSP:  loader.DefaultStackTop,
				Segments: []loader.Segment{
					{VirtAddr: 0x400000, Data: code, MemSize: 8, Prot: emu.ProtRead | emu.ProtExec},
				},
			}

			Expect(prog.Install(ctx)).To(Succeed())

			Expect(ctx.Fetch(0x400000)).To(Equal(uint32(0xd2800540)))
			Expect(ctx.Regs.PC()).To(Equal(uint64(0x400004)))
			Expect(ctx.Regs.SP()).To(Equal(uint64(loader.DefaultStackTop)))
		})

		It("should zero-fill BSS", func() {
			ctx.Write(0x500004, 4, 0xFFFFFFFF)
			prog := &loader.Program{
				InitialSP: loader.DefaultStackTop,
				Segments: []loader.Segment{
					{VirtAddr: 0x500000, Data: []byte{1, 2, 3, 4}, MemSize: 0x10, Prot: emu.ProtRead | emu.ProtWrite},
				},
			}

			Expect(prog.Install(ctx)).To(Succeed())

			Expect(ctx.Read(0x500000, 4)).To(Equal(uint64(0x04030201)))
			Expect(ctx.Read(0x500004, 4)).To(BeZero())
		})

		It("should map segments sharing a page once", func() {
			prog := &loader.Program{
				InitialSP: loader.DefaultStackTop,
				Segments: []loader.Segment{
					{VirtAddr: 0x400000, Data: code, MemSize: 8, Prot: emu.ProtRead | emu.ProtExec},
					{VirtAddr: 0x400800, Data: []byte{1}, MemSize: 0x1000, Prot: emu.ProtRead | emu.ProtWrite},
				},
			}

			Expect(prog.Install(ctx)).To(Succeed())

			regions := ctx.Mem.Regions()
			Expect(regions).To(ContainElement(emu.Region{Start: 0x400000, Length: 0x1000, Prot: emu.ProtRead | emu.ProtExec}))
			Expect(regions).To(ContainElement(emu.Region{Start: 0x401000, Length: 0x1000, Prot: emu.ProtRead | emu.ProtWrite}))
		})

		It("should start the program break after the image", func() {
			prog := &loader.Program{
				InitialSP: loader.DefaultStackTop,
				Segments: []loader.Segment{
					{VirtAddr: 0x400000, Data: code, MemSize: 8, Prot: emu.ProtRead | emu.ProtExec},
					{VirtAddr: 0x410000, Data: nil, MemSize: 0x1800, Prot: emu.ProtRead | emu.ProtWrite},
				},
			}

			Expect(prog.Install(ctx)).To(Succeed())

			Expect(ctx.Brk.Current()).To(Equal(uint64(0x412000)))
			Expect(ctx.Brk.Set(0x413000)).To(Equal(uint64(0x413000)))
		})

		It("should honour a guest address offset", func() {
			ctx = emu.NewContext(emu.WithAddressSpace(emu.OffsetSpace{Base: 0x10000000}))
			prog := &loader.Program{
				InitialSP: loader.DefaultStackTop,
				Segments: []loader.Segment{
					{VirtAddr: 0x1000, Data: code, MemSize: 8, Prot: emu.ProtRead | emu.ProtExec},
				},
			}

			Expect(prog.Install(ctx)).To(Succeed())

			Expect(ctx.Mem.Regions()).To(ContainElement(emu.Region{Start: 0x10001000, Length: 0x1000, Prot: emu.ProtRead | emu.ProtExec}))
			Expect(ctx.Fetch(0x1000)).To(Equal(uint32(0xd2800540)))
		})
	})
})
