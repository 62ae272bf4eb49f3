// Package emu provides the ARM64 guest state and semantic primitives.
package emu

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// PageSize is the allocation granule of Memory.
const PageSize = 4096

// Prot is a mapping protection.
type Prot uint8

// Protection bits.
const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
)

// Region is a mapped range of guest memory.
type Region struct {
	Start  uint64
	Length uint64
	Prot   Prot
}

// End returns the first address past the region.
func (r Region) End() uint64 { return r.Start + r.Length }

// Mapper allocates guest address ranges. It is the interface the break
// segment uses to grow the heap.
type Mapper interface {
	Map(addr, length uint64, prot Prot) error
	Extend(addr, oldLength, newLength uint64) error
}

// Memory is sparse, little-endian memory indexed by host address. Pages
// are allocated on first touch, so reads of untouched memory return zero.
type Memory struct {
	pages   map[uint64]*[PageSize]byte
	regions []Region
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint64]*[PageSize]byte)}
}

func (m *Memory) page(addr uint64) *[PageSize]byte {
	base := addr &^ (PageSize - 1)
	p, ok := m.pages[base]
	if !ok {
		p = new([PageSize]byte)
		m.pages[base] = p
	}
	return p
}

// ReadBytes copies len(buf) bytes starting at addr into buf.
func (m *Memory) ReadBytes(addr uint64, buf []byte) {
	for len(buf) > 0 {
		off := addr & (PageSize - 1)
		n := copy(buf, m.page(addr)[off:])
		buf = buf[n:]
		addr += uint64(n)
	}
}

// WriteBytes copies buf into memory starting at addr.
func (m *Memory) WriteBytes(addr uint64, buf []byte) {
	for len(buf) > 0 {
		off := addr & (PageSize - 1)
		n := copy(m.page(addr)[off:], buf)
		buf = buf[n:]
		addr += uint64(n)
	}
}

// Read8 reads a byte.
func (m *Memory) Read8(addr uint64) uint8 {
	return m.page(addr)[addr&(PageSize-1)]
}

// Write8 writes a byte.
func (m *Memory) Write8(addr uint64, v uint8) {
	m.page(addr)[addr&(PageSize-1)] = v
}

// Read16 reads a little-endian halfword.
func (m *Memory) Read16(addr uint64) uint16 {
	var b [2]byte
	m.ReadBytes(addr, b[:])
	return binary.LittleEndian.Uint16(b[:])
}

// Write16 writes a little-endian halfword.
func (m *Memory) Write16(addr uint64, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	m.WriteBytes(addr, b[:])
}

// Read32 reads a little-endian word.
func (m *Memory) Read32(addr uint64) uint32 {
	var b [4]byte
	m.ReadBytes(addr, b[:])
	return binary.LittleEndian.Uint32(b[:])
}

// Write32 writes a little-endian word.
func (m *Memory) Write32(addr uint64, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	m.WriteBytes(addr, b[:])
}

// Read64 reads a little-endian doubleword.
func (m *Memory) Read64(addr uint64) uint64 {
	var b [8]byte
	m.ReadBytes(addr, b[:])
	return binary.LittleEndian.Uint64(b[:])
}

// Write64 writes a little-endian doubleword.
func (m *Memory) Write64(addr uint64, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	m.WriteBytes(addr, b[:])
}

// Read reads size bytes (1, 2, 4 or 8), zero-extended.
func (m *Memory) Read(addr uint64, size int) uint64 {
	switch size {
	case 1:
		return uint64(m.Read8(addr))
	case 2:
		return uint64(m.Read16(addr))
	case 4:
		return uint64(m.Read32(addr))
	case 8:
		return m.Read64(addr)
	}
	panic(fmt.Sprintf("emu: bad memory access size %d", size))
}

// Write writes the low size bytes of v.
func (m *Memory) Write(addr uint64, size int, v uint64) {
	switch size {
	case 1:
		m.Write8(addr, uint8(v))
	case 2:
		m.Write16(addr, uint16(v))
	case 4:
		m.Write32(addr, uint32(v))
	case 8:
		m.Write64(addr, v)
	default:
		panic(fmt.Sprintf("emu: bad memory access size %d", size))
	}
}

// LoadProgram copies a program image to addr and records it as a mapped,
// executable region.
func (m *Memory) LoadProgram(addr uint64, program []byte) {
	m.WriteBytes(addr, program)
	_ = m.Map(addr, uint64(len(program)), ProtRead|ProtExec)
}

// Map records [addr, addr+length) as mapped. Overlapping an existing region
// is an error.
func (m *Memory) Map(addr, length uint64, prot Prot) error {
	if length == 0 {
		return nil
	}
	r := Region{Start: addr, Length: length, Prot: prot}
	for _, old := range m.regions {
		if r.Start < old.End() && old.Start < r.End() {
			return fmt.Errorf("map [0x%x, 0x%x) overlaps [0x%x, 0x%x)",
				r.Start, r.End(), old.Start, old.End())
		}
	}
	m.regions = append(m.regions, r)
	sort.Slice(m.regions, func(i, j int) bool {
		return m.regions[i].Start < m.regions[j].Start
	})
	return nil
}

// Extend grows or shrinks the region starting at addr.
func (m *Memory) Extend(addr, oldLength, newLength uint64) error {
	for i := range m.regions {
		r := &m.regions[i]
		if r.Start != addr || r.Length != oldLength {
			continue
		}
		if i+1 < len(m.regions) && addr+newLength > m.regions[i+1].Start {
			return fmt.Errorf("extend [0x%x, +0x%x) runs into 0x%x",
				addr, newLength, m.regions[i+1].Start)
		}
		r.Length = newLength
		return nil
	}
	return fmt.Errorf("no region [0x%x, +0x%x) to extend", addr, oldLength)
}

// Regions returns the mapped regions in address order.
func (m *Memory) Regions() []Region {
	return append([]Region(nil), m.regions...)
}

// AddressSpace translates between guest virtual addresses and the host
// addresses that index Memory. Both directions are total.
type AddressSpace interface {
	GuestToHost(addr uint64) uint64
	HostToGuest(addr uint64) uint64
}

// OffsetSpace maps guest address g to host address g + Base.
type OffsetSpace struct {
	Base uint64
}

// GuestToHost implements AddressSpace.
func (s OffsetSpace) GuestToHost(addr uint64) uint64 { return addr + s.Base }

// HostToGuest implements AddressSpace.
func (s OffsetSpace) HostToGuest(addr uint64) uint64 { return addr - s.Base }
