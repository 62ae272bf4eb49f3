// Package translate turns guest ARM64 instruction streams into IR blocks.
package translate

import (
	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/ir"
)

// access describes the data movement of a single-register load or store.
type access struct {
	size     int // bytes; 16 for Q registers
	fp       bool
	load     bool
	signed   bool
	regWidth ir.Width // destination width of integer loads
	prefetch bool
}

// decodeAccess reads size, V and opc of the single-register load/store
// rows.
func decodeAccess(word uint32) (access, error) {
	size := insts.Field(word, 31, 30)
	opc := insts.Field(word, 23, 22)

	if insts.Bit(word, 26) == 1 {
		a := access{fp: true, size: 1 << size, load: opc&1 == 1}
		if opc>>1 == 1 {
			if size != 0 {
				return a, errReserved("FP load/store size=%d opc=%d", size, opc)
			}
			a.size = 16
		}
		return a, nil
	}

	a := access{size: 1 << size, regWidth: ir.W64}
	switch opc {
	case 0b00:
	case 0b01:
		a.load = true
	case 0b10:
		switch size {
		case 0b11:
			a.prefetch = true
		default:
			a.load, a.signed = true, true
		}
	default:
		if size >= 0b10 {
			return a, errReserved("load/store size=%d opc=11", size)
		}
		a.load, a.signed, a.regWidth = true, true, ir.W32
	}
	return a, nil
}

// transfer performs the access at addr for register rt.
func (e *emitter) transfer(a access, rt uint8, addr ir.Value) {
	switch {
	case a.prefetch:
	case a.fp && a.size == 16:
		hi := e.b.Binary(ir.Add, addr, e.c64(8))
		if a.load {
			e.writeV128(rt, e.b.Load(ir.W64, addr), e.b.Load(ir.W64, hi))
			return
		}
		e.b.Store(addr, e.readV(rt, ir.W64))
		e.b.Store(hi, e.readVHigh(rt))
	case a.fp:
		w := ir.WidthOfBytes(a.size)
		if a.load {
			e.writeV(rt, w, e.b.Load(w, addr))
			return
		}
		e.b.Store(addr, e.readV(rt, w))
	case a.load:
		w := ir.WidthOfBytes(a.size)
		v := e.b.Load(w, addr)
		switch {
		case a.signed && w < a.regWidth:
			v = e.b.SignExtend(v, a.regWidth)
		case w < a.regWidth:
			v = e.b.ZeroExtend(v, a.regWidth)
		}
		e.writeX(rt, emu.Reg31ZR, a.regWidth, v)
	default:
		e.b.Store(addr, e.readX(rt, emu.Reg31ZR, ir.WidthOfBytes(a.size)))
	}
}

// storeValue reads the register a store will write, so that writeback to
// the same register cannot change the stored value.
func (e *emitter) storeValue(a access, rt uint8) (lo, hi ir.Value) {
	switch {
	case a.fp && a.size == 16:
		return e.readV(rt, ir.W64), e.readVHigh(rt)
	case a.fp:
		return e.readV(rt, ir.WidthOfBytes(a.size)), ir.NoValue
	default:
		return e.readX(rt, emu.Reg31ZR, ir.WidthOfBytes(a.size)), ir.NoValue
	}
}

func (e *emitter) storeValues(addr, lo, hi ir.Value) {
	e.b.Store(addr, lo)
	if hi.Valid() {
		e.b.Store(e.b.Binary(ir.Add, addr, e.c64(8)), hi)
	}
}

func log2(size int) uint32 {
	n := uint32(0)
	for size > 1 {
		size >>= 1
		n++
	}
	return n
}

// translateLoadStoreImm handles the unsigned-offset, unscaled, unprivileged,
// pre-index and post-index rows, including PRFM and PRFUM.
func translateLoadStoreImm(e *emitter) (bool, error) {
	w := e.word
	a, err := decodeAccess(w)
	if err != nil {
		return false, err
	}

	rn, rt := insts.Rn(w), insts.Rt(w)
	unsigned := insts.Bit(w, 24) == 1
	mode := insts.Field(w, 11, 10)

	if !unsigned {
		switch {
		case mode == 0b10 && a.fp:
			return false, errReserved("unprivileged FP load/store")
		case mode == 0b10 && a.prefetch, mode&1 == 1 && a.prefetch:
			return false, errReserved("prefetch with writeback or unprivileged")
		}
	}

	base := e.readX(rn, emu.Reg31SP, ir.W64)
	if unsigned {
		offset := uint64(insts.Imm12(w)) << log2(a.size)
		e.transfer(a, rt, e.b.Binary(ir.Add, base, e.c64(offset)))
		return false, nil
	}

	offset := e.c64(uint64(insts.Imm9(w)))
	switch mode {
	case 0b00, 0b10:
		e.transfer(a, rt, e.b.Binary(ir.Add, base, offset))
		return false, nil
	}

	updated := e.b.Binary(ir.Add, base, offset)
	addr := updated
	if mode == 0b01 {
		addr = base
	}
	e.writeback(a, rt, rn, addr, updated)
	return false, nil
}

// writeback performs an indexed access. Stores read their data before the
// base update. A load into the base register keeps the loaded value and
// drops the update.
func (e *emitter) writeback(a access, rt, rn uint8, addr, updated ir.Value) {
	if a.load {
		e.transfer(a, rt, addr)
		if !a.fp && rt == rn && rt != 31 {
			return
		}
		e.writeX(rn, emu.Reg31SP, ir.W64, updated)
		return
	}
	lo, hi := e.storeValue(a, rt)
	e.storeValues(addr, lo, hi)
	e.writeX(rn, emu.Reg31SP, ir.W64, updated)
}

// translateLoadStoreRegOffset handles the register-offset rows. The offset
// register is extended by UXTW, LSL, SXTW or SXTX and optionally scaled by
// the access size.
func translateLoadStoreRegOffset(e *emitter) (bool, error) {
	w := e.word
	a, err := decodeAccess(w)
	if err != nil {
		return false, err
	}

	option := insts.Field(w, 15, 13)
	if option&0b010 == 0 {
		return false, errReserved("register offset option=%03b", option)
	}
	var amount uint32
	if insts.Bit(w, 12) == 1 {
		amount = log2(a.size)
	}

	base := e.readX(insts.Rn(w), emu.Reg31SP, ir.W64)
	offset := e.extendReg(insts.Rm(w), option, amount, ir.W64)
	e.transfer(a, insts.Rt(w), e.b.Binary(ir.Add, base, offset))
	return false, nil
}

// translateLoadLiteral handles PC-relative LDR, LDRSW and PRFM.
func translateLoadLiteral(e *emitter) (bool, error) {
	w := e.word
	opc := insts.Field(w, 31, 30)
	addr := e.c64(e.pc + uint64(insts.Imm19(w)))

	var a access
	if insts.Bit(w, 26) == 1 {
		if opc == 0b11 {
			return false, errReserved("FP literal opc=11")
		}
		a = access{fp: true, load: true, size: 4 << opc}
	} else {
		switch opc {
		case 0b00:
			a = access{load: true, size: 4, regWidth: ir.W64}
		case 0b01:
			a = access{load: true, size: 8, regWidth: ir.W64}
		case 0b10:
			a = access{load: true, signed: true, size: 4, regWidth: ir.W64}
		default:
			return false, nil // PRFM
		}
	}
	e.transfer(a, insts.Rt(w), addr)
	return false, nil
}

// translateLoadStorePair handles LDP, STP, LDNP, STNP and LDPSW in all
// indexing modes, for general and FP/SIMD registers.
func translateLoadStorePair(e *emitter) (bool, error) {
	w := e.word
	opc := insts.Field(w, 31, 30)
	mode := insts.Field(w, 24, 23)
	load := insts.Bit(w, 22) == 1
	fp := insts.Bit(w, 26) == 1
	rt, rt2, rn := insts.Rt(w), insts.Rt2(w), insts.Rn(w)

	var a access
	switch {
	case opc == 0b11:
		return false, errReserved("load/store pair opc=11")
	case fp:
		a = access{fp: true, size: 4 << opc}
	case opc == 0b01 && !load:
		return false, errUnsupported("STGP (memory tagging)")
	case opc == 0b01 && mode == 0b00:
		return false, errReserved("LDNP with signed word")
	case opc == 0b01:
		a = access{signed: true, size: 4, regWidth: ir.W64}
	default:
		a = access{size: 4 << (opc >> 1), regWidth: opWidth(opc == 0b10)}
	}
	a.load = load
	if load && rt == rt2 {
		return false, errReserved("load pair with Rt == Rt2")
	}

	offset := uint64(insts.Imm7(w) << log2(a.size))
	base := e.readX(rn, emu.Reg31SP, ir.W64)
	updated := e.b.Binary(ir.Add, base, e.c64(offset))
	addr := updated
	if mode == 0b01 {
		addr = base
	}
	second := e.b.Binary(ir.Add, addr, e.c64(uint64(a.size)))

	if load {
		e.transfer(a, rt, addr)
		e.transfer(a, rt2, second)
	} else {
		lo1, hi1 := e.storeValue(a, rt)
		lo2, hi2 := e.storeValue(a, rt2)
		e.storeValues(addr, lo1, hi1)
		e.storeValues(second, lo2, hi2)
	}

	if mode == 0b01 || mode == 0b11 {
		if load && !fp && (rn == rt || rn == rt2) && rn != 31 {
			return false, nil
		}
		e.writeX(rn, emu.Reg31SP, ir.W64, updated)
	}
	return false, nil
}

// translateLoadStoreOrdered handles LDAR, LDLAR, STLR and STLLR. A single
// context observes its own accesses in order, so acquire and release are
// plain accesses.
func translateLoadStoreOrdered(e *emitter) (bool, error) {
	w := e.word
	if insts.Rs(w) != 31 || insts.Rt2(w) != 31 {
		return false, errReserved("ordered load/store Rs/Rt2")
	}

	a := access{size: 1 << insts.Field(w, 31, 30), load: insts.Bit(w, 22) == 1, regWidth: ir.W64}
	e.transfer(a, insts.Rt(w), e.readX(insts.Rn(w), emu.Reg31SP, ir.W64))
	return false, nil
}
