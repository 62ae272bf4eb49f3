// Package loader reads guest programs and installs them into an execution
// context.
package loader

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/sarchlab/a64dbt/emu"
)

// DefaultStackTop is the conventional top of the user stack.
const DefaultStackTop = 0x7ffffffff000

// DefaultStackSize is the size of the mapped stack (8MB).
const DefaultStackSize = 8 * 1024 * 1024

// DefaultHeapLimit caps how far brk may grow past the image.
const DefaultHeapLimit = 1 << 30

// Segment is a loadable part of a program image.
type Segment struct {
	VirtAddr uint64
	Data     []byte
	// MemSize may exceed len(Data); the rest is zero-filled.
	MemSize uint64
	Prot    emu.Prot
}

// End returns the first address past the segment.
func (s Segment) End() uint64 { return s.VirtAddr + s.MemSize }

// Program is a parsed program image ready to be installed.
type Program struct {
	EntryPoint uint64
	Segments   []Segment
	InitialSP  uint64
}

// Load parses an ARM64 ELF executable.
func Load(fs afero.Fs, path string) (*Program, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = file.Close() }()

	f, err := elf.NewFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF file: %w", err)
	}

	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("not a 64-bit ELF file")
	}
	if f.Machine != elf.EM_AARCH64 {
		return nil, fmt.Errorf("not an ARM64 ELF file (machine type: %v)", f.Machine)
	}

	prog := &Program{
		EntryPoint: f.Entry,
		InitialSP:  DefaultStackTop,
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: phdr.Vaddr,
			Data:     data,
			MemSize:  phdr.Memsz,
			Prot:     protOf(phdr.Flags),
		})
	}

	return prog, nil
}

func protOf(flags elf.ProgFlag) emu.Prot {
	var p emu.Prot
	if flags&elf.PF_R != 0 {
		p |= emu.ProtRead
	}
	if flags&elf.PF_W != 0 {
		p |= emu.ProtWrite
	}
	if flags&elf.PF_X != 0 {
		p |= emu.ProtExec
	}
	return p
}

// LoadRaw reads a flat code image to be placed at base. Execution starts at
// entry.
func LoadRaw(fs afero.Fs, path string, base, entry uint64) (*Program, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image %s is empty", path)
	}
	return &Program{
		EntryPoint: entry,
		InitialSP:  DefaultStackTop,
		Segments: []Segment{{
			VirtAddr: base,
			Data:     data,
			MemSize:  uint64(len(data)),
			Prot:     emu.ProtRead | emu.ProtWrite | emu.ProtExec,
		}},
	}, nil
}

// Install copies the program into ctx, maps its segments and the stack,
// starts the program break after the highest segment and points PC and SP
// at the entry point and stack top.
func (p *Program) Install(ctx *emu.Context) error {
	mem := guestMapper{mem: ctx.Mem, as: ctx.AS}

	for _, seg := range p.Segments {
		if err := mem.mapRange(pageDown(seg.VirtAddr), pageUp(seg.End()), seg.Prot); err != nil {
			return fmt.Errorf("mapping segment at 0x%x: %w", seg.VirtAddr, err)
		}
		ctx.WriteBytes(seg.VirtAddr, seg.Data)
		if seg.MemSize > uint64(len(seg.Data)) {
			bss := make([]byte, seg.MemSize-uint64(len(seg.Data)))
			ctx.WriteBytes(seg.VirtAddr+uint64(len(seg.Data)), bss)
		}
	}

	stackBase := p.InitialSP - DefaultStackSize
	if err := mem.Map(stackBase, DefaultStackSize, emu.ProtRead|emu.ProtWrite); err != nil {
		return fmt.Errorf("mapping stack: %w", err)
	}

	if len(p.Segments) > 0 && ctx.Brk == nil {
		top := lo.MaxBy(p.Segments, func(a, b Segment) bool { return a.End() > b.End() }).End()
		start := pageUp(top)
		ctx.Brk = emu.NewBreakSegment(mem, start, start+DefaultHeapLimit)
	}

	ctx.Regs.SetPC(p.EntryPoint)
	ctx.Regs.SetSP(p.InitialSP)
	return nil
}

// guestMapper maps guest address ranges onto the host memory behind them.
type guestMapper struct {
	mem *emu.Memory
	as  emu.AddressSpace
}

func (g guestMapper) Map(addr, length uint64, prot emu.Prot) error {
	return g.mem.Map(g.as.GuestToHost(addr), length, prot)
}

func (g guestMapper) Extend(addr, oldLength, newLength uint64) error {
	return g.mem.Extend(g.as.GuestToHost(addr), oldLength, newLength)
}

// mapRange maps the parts of [start, end) not already covered. Segments
// that share a page end up with the first segment's protection there.
func (g guestMapper) mapRange(start, end uint64, prot emu.Prot) error {
	hs, he := g.as.GuestToHost(start), g.as.GuestToHost(end)
	for _, r := range g.mem.Regions() {
		if r.End() <= hs || r.Start >= he {
			continue
		}
		if r.Start > hs {
			if err := g.mem.Map(hs, r.Start-hs, prot); err != nil {
				return err
			}
		}
		hs = max(hs, r.End())
	}
	if hs < he {
		return g.mem.Map(hs, he-hs, prot)
	}
	return nil
}

func pageDown(addr uint64) uint64 { return addr &^ (emu.PageSize - 1) }

func pageUp(addr uint64) uint64 { return pageDown(addr + emu.PageSize - 1) }
