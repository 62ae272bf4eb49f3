// Package emu holds the architectural state of one guest execution context
// and the semantic primitives that operate on it.
package emu

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Register file layout. Every offset is a byte offset into RegFile and is
// stable, so generated code may address registers directly.
const (
	OffsetSP      = 31 * 8 // X register slot 31
	OffsetPC      = 256
	OffsetNZCV    = 264 // 32-bit word
	OffsetFPCR    = 268 // 32-bit word
	OffsetFPSR    = 272 // 32-bit word
	OffsetTPIDR   = 280
	OffsetTPIDRRO = 288
	offsetV0      = 304

	// StateSize is the size of the register file in bytes.
	StateSize = offsetV0 + 32*16
)

// OffsetX returns the offset of general-purpose register n. Offset 31 is SP.
func OffsetX(n uint8) int {
	return int(n&31) * 8
}

// OffsetV returns the offset of the low byte of vector register n.
func OffsetV(n uint8) int {
	return offsetV0 + int(n&31)*16
}

// Reg31 selects what register index 31 means to an access.
type Reg31 uint8

// Register 31 selectors.
const (
	// Reg31ZR treats index 31 as the zero register: reads yield 0 and writes
	// are discarded.
	Reg31ZR Reg31 = iota
	// Reg31SP treats index 31 as the stack pointer.
	Reg31SP
)

// RegFile is the architectural register file of one execution context:
// X0-X30, SP, PC, NZCV, FPCR, FPSR, the thread pointer registers and the
// 32 128-bit SIMD/FP registers, packed little-endian at fixed offsets.
type RegFile struct {
	buf [StateSize]byte
}

// Load reads size bytes (1, 2, 4 or 8) at off, zero-extended.
func (r *RegFile) Load(off int, size int) uint64 {
	b := r.buf[off : off+size]
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	}
	panic("emu: bad register access size")
}

// Store writes the low size bytes of v at off.
func (r *RegFile) Store(off int, size int, v uint64) {
	b := r.buf[off : off+size]
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, v)
	default:
		panic("emu: bad register access size")
	}
}

// ReadX reads Xn, resolving index 31 with sel.
func (r *RegFile) ReadX(n uint8, sel Reg31) uint64 {
	if n == 31 && sel == Reg31ZR {
		return 0
	}
	return r.Load(OffsetX(n), 8)
}

// WriteX writes Xn, resolving index 31 with sel.
func (r *RegFile) WriteX(n uint8, sel Reg31, v uint64) {
	if n == 31 && sel == Reg31ZR {
		return
	}
	r.Store(OffsetX(n), 8, v)
}

// ReadReg reads a register value. Register 31 returns 0 (XZR).
func (r *RegFile) ReadReg(reg uint8) uint64 {
	return r.ReadX(reg, Reg31ZR)
}

// WriteReg writes a value to a register. Writes to register 31 are ignored.
func (r *RegFile) WriteReg(reg uint8, value uint64) {
	r.WriteX(reg, Reg31ZR, value)
}

// ReadRegOrSP reads a register value, treating register 31 as SP.
func (r *RegFile) ReadRegOrSP(reg uint8) uint64 {
	return r.ReadX(reg, Reg31SP)
}

// WriteRegOrSP writes a register value, treating register 31 as SP.
func (r *RegFile) WriteRegOrSP(reg uint8, value uint64) {
	r.WriteX(reg, Reg31SP, value)
}

// ReadReg32 reads the lower 32 bits of a register.
func (r *RegFile) ReadReg32(reg uint8) uint32 {
	return uint32(r.ReadReg(reg))
}

// WriteReg32 writes to the lower 32 bits and zero-extends.
func (r *RegFile) WriteReg32(reg uint8, value uint32) {
	r.WriteReg(reg, uint64(value))
}

// SP returns the stack pointer.
func (r *RegFile) SP() uint64 { return r.Load(OffsetSP, 8) }

// SetSP sets the stack pointer.
func (r *RegFile) SetSP(v uint64) { r.Store(OffsetSP, 8, v) }

// PC returns the program counter.
func (r *RegFile) PC() uint64 { return r.Load(OffsetPC, 8) }

// SetPC sets the program counter.
func (r *RegFile) SetPC(v uint64) { r.Store(OffsetPC, 8, v) }

// NZCV returns the condition flags word.
func (r *RegFile) NZCV() Flags { return Flags(r.Load(OffsetNZCV, 4)) }

// SetNZCV replaces the condition flags word. Only bits [31:28] are kept.
func (r *RegFile) SetNZCV(f Flags) { r.Store(OffsetNZCV, 4, uint64(f&FlagsMask)) }

// FPCR returns the floating-point control register.
func (r *RegFile) FPCR() uint32 { return uint32(r.Load(OffsetFPCR, 4)) }

// SetFPCR sets the floating-point control register.
func (r *RegFile) SetFPCR(v uint32) { r.Store(OffsetFPCR, 4, uint64(v)) }

// FPSR returns the floating-point status register.
func (r *RegFile) FPSR() uint32 { return uint32(r.Load(OffsetFPSR, 4)) }

// SetFPSR sets the floating-point status register.
func (r *RegFile) SetFPSR(v uint32) { r.Store(OffsetFPSR, 4, uint64(v)) }

// Lane reads element i of vector register n, esize bytes wide.
func (r *RegFile) Lane(n uint8, esize, i int) uint64 {
	return r.Load(OffsetV(n)+i*esize, esize)
}

// SetLane writes element i of vector register n, esize bytes wide.
func (r *RegFile) SetLane(n uint8, esize, i int, v uint64) {
	r.Store(OffsetV(n)+i*esize, esize, v)
}

// Lane8 reads byte lane i of Vn.
func (r *RegFile) Lane8(n uint8, i int) uint8 { return uint8(r.Lane(n, 1, i)) }

// Lane16 reads halfword lane i of Vn.
func (r *RegFile) Lane16(n uint8, i int) uint16 { return uint16(r.Lane(n, 2, i)) }

// Lane32 reads word lane i of Vn.
func (r *RegFile) Lane32(n uint8, i int) uint32 { return uint32(r.Lane(n, 4, i)) }

// Lane64 reads doubleword lane i of Vn.
func (r *RegFile) Lane64(n uint8, i int) uint64 { return r.Lane(n, 8, i) }

// LaneF32 reads single-precision lane i of Vn.
func (r *RegFile) LaneF32(n uint8, i int) float32 { return math.Float32frombits(r.Lane32(n, i)) }

// LaneF64 reads double-precision lane i of Vn.
func (r *RegFile) LaneF64(n uint8, i int) float64 { return math.Float64frombits(r.Lane64(n, i)) }

// SetLane8 writes byte lane i of Vn.
func (r *RegFile) SetLane8(n uint8, i int, v uint8) { r.SetLane(n, 1, i, uint64(v)) }

// SetLane16 writes halfword lane i of Vn.
func (r *RegFile) SetLane16(n uint8, i int, v uint16) { r.SetLane(n, 2, i, uint64(v)) }

// SetLane32 writes word lane i of Vn.
func (r *RegFile) SetLane32(n uint8, i int, v uint32) { r.SetLane(n, 4, i, uint64(v)) }

// SetLane64 writes doubleword lane i of Vn.
func (r *RegFile) SetLane64(n uint8, i int, v uint64) { r.SetLane(n, 8, i, v) }

// Q returns the full 128-bit contents of Vn as two halves.
func (r *RegFile) Q(n uint8) (lo, hi uint64) {
	return r.Lane64(n, 0), r.Lane64(n, 1)
}

// SetQ replaces the full 128-bit contents of Vn.
func (r *RegFile) SetQ(n uint8, lo, hi uint64) {
	r.SetLane64(n, 0, lo)
	r.SetLane64(n, 1, hi)
}

// Vec returns a copy of the 16 bytes of Vn.
func (r *RegFile) Vec(n uint8) [16]byte {
	var v [16]byte
	copy(v[:], r.buf[OffsetV(n):OffsetV(n)+16])
	return v
}

// SetVec replaces the 16 bytes of Vn.
func (r *RegFile) SetVec(n uint8, v [16]byte) {
	copy(r.buf[OffsetV(n):OffsetV(n)+16], v[:])
}

// ClearHigh zeroes the upper 64 bits of Vn, as every 64-bit vector write does.
func (r *RegFile) ClearHigh(n uint8) {
	r.SetLane64(n, 1, 0)
}

// Scalar reads the low esize bytes of Vn (H, S or D view).
func (r *RegFile) Scalar(n uint8, esize int) uint64 {
	return r.Lane(n, esize, 0)
}

// SetScalar writes the low esize bytes of Vn and zeroes the rest of the
// register.
func (r *RegFile) SetScalar(n uint8, esize int, v uint64) {
	r.SetQ(n, 0, 0)
	r.SetLane(n, esize, 0, v)
}

// OffsetName names the register at a register-file offset, for listings.
func OffsetName(off int) string {
	switch {
	case off < OffsetSP && off%8 == 0:
		return fmt.Sprintf("x%d", off/8)
	case off < OffsetSP:
		return fmt.Sprintf("x%d+%d", off/8, off%8)
	case off < OffsetPC:
		return "sp"
	case off == OffsetPC:
		return "pc"
	case off == OffsetNZCV:
		return "nzcv"
	case off == OffsetFPCR:
		return "fpcr"
	case off == OffsetFPSR:
		return "fpsr"
	case off == OffsetTPIDR:
		return "tpidr_el0"
	case off == OffsetTPIDRRO:
		return "tpidrro_el0"
	case off >= offsetV0 && off < StateSize:
		rel := off - offsetV0
		if rel%16 == 0 {
			return fmt.Sprintf("v%d", rel/16)
		}
		return fmt.Sprintf("v%d+%d", rel/16, rel%16)
	}
	return fmt.Sprintf("@%d", off)
}
