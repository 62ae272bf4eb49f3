// Package helpers provides the run-time helpers called from translated code.
package helpers

import (
	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/ir"
)

func init() {
	register(ir.HelperSIMDLoadStoreMulti, ir.RetNone,
		simdHelper(decodeLoadStoreMulti), checkOf(decodeLoadStoreMulti))
	register(ir.HelperSIMDLoadStoreSingle, ir.RetNone,
		simdHelper(decodeLoadStoreSingle), checkOf(decodeLoadStoreSingle))
}

// structAccess describes the memory walk of one structure load or store.
type structAccess struct {
	load     bool
	postIdx  bool
	esize    int
	regBytes int // bytes per register: 8 or 16
}

// writeback applies post-index addressing: Rm=31 adds the transfer size.
func (sa structAccess) writeback(ctx *emu.Context, word uint32, base, size uint64) {
	if !sa.postIdx {
		return
	}
	rm := insts.Rm(word)
	off := size
	if rm != 31 {
		off = ctx.Regs.ReadReg(rm)
	}
	ctx.Regs.WriteRegOrSP(insts.Rn(word), base+off)
}

// multiShapes maps the opcode of LD1-LD4/ST1-ST4 (multiple structures) to
// the register repeat count and the structure size.
var multiShapes = map[uint32][2]int{
	0b0000: {1, 4}, // LD4/ST4
	0b0010: {4, 1}, // LD1/ST1, four registers
	0b0100: {1, 3}, // LD3/ST3
	0b0110: {3, 1}, // LD1/ST1, three registers
	0b0111: {1, 1}, // LD1/ST1, one register
	0b1000: {1, 2}, // LD2/ST2
	0b1010: {2, 1}, // LD1/ST1, two registers
}

func decodeLoadStoreMulti(word uint32) (simdOp, error) {
	opcode := insts.Field(word, 15, 12)
	size := insts.Size(word)
	q := insts.Q(word)

	shape, ok := multiShapes[opcode]
	if !ok {
		return nil, reserved("load/store multiple opcode=%04b", opcode)
	}
	rpt, selem := shape[0], shape[1]
	if size == 3 && !q && selem > 1 {
		return nil, reserved("LD%d/ST%d with 1D arrangement", selem, selem)
	}

	sa := structAccess{
		load:     insts.Bit(word, 22) == 1,
		postIdx:  insts.Bit(word, 23) == 1,
		esize:    1 << size,
		regBytes: 8,
	}
	if q {
		sa.regBytes = 16
	}
	elements := sa.regBytes / sa.esize

	return func(ctx *emu.Context, word uint32) {
		t := insts.Rt(word)
		base := ctx.Regs.ReadRegOrSP(insts.Rn(word))

		// Loads assemble the destination registers first so that an
		// overlapping base register is read only once.
		var staged [32][16]byte
		addr := base
		for r := 0; r < rpt; r++ {
			for e := 0; e < elements; e++ {
				tt := (t + uint8(r)) % 32
				for s := 0; s < selem; s++ {
					if sa.load {
						v := ctx.Read(addr, sa.esize)
						putLane(&staged[tt], sa.esize, e, v)
					} else {
						ctx.Write(addr, sa.esize, ctx.Regs.Lane(tt, sa.esize, e))
					}
					addr += uint64(sa.esize)
					tt = (tt + 1) % 32
				}
			}
		}

		if sa.load {
			for i := 0; i < rpt*selem; i++ {
				tt := (t + uint8(i)) % 32
				ctx.Regs.SetVec(tt, staged[tt])
			}
		}
		sa.writeback(ctx, word, base, addr-base)
	}, nil
}

func putLane(v *[16]byte, esize, i int, x uint64) {
	for b := 0; b < esize; b++ {
		v[i*esize+b] = byte(x >> (8 * b))
	}
}

func decodeLoadStoreSingle(word uint32) (simdOp, error) {
	opcode := insts.Field(word, 15, 13)
	size := insts.Size(word)
	s := insts.Bit(word, 12)
	q := insts.Bit(word, 30)
	selem := int((opcode&1)<<1|insts.Bit(word, 21)) + 1

	sa := structAccess{
		load:    insts.Bit(word, 22) == 1,
		postIdx: insts.Bit(word, 23) == 1,
	}

	var index int
	switch opcode >> 1 {
	case 0:
		sa.esize = 1
		index = int(q<<3 | s<<2 | size)
	case 1:
		if size&1 != 0 {
			return nil, reserved("LD%d/ST%d (H) size=%d", selem, selem, size)
		}
		sa.esize = 2
		index = int(q<<2 | s<<1 | size>>1)
	case 2:
		switch {
		case size == 0:
			sa.esize = 4
			index = int(q<<1 | s)
		case size == 1 && s == 0:
			sa.esize = 8
			index = int(q)
		default:
			return nil, reserved("LD%d/ST%d (S/D) size=%d S=%d", selem, selem, size, s)
		}
	default:
		if !sa.load || s != 0 {
			return nil, reserved("LD%dR with L=0 or S=1", selem)
		}
		return loadReplicate(sa, selem, emu.ArrangementOf(size, q == 1)), nil
	}

	return func(ctx *emu.Context, word uint32) {
		t := insts.Rt(word)
		base := ctx.Regs.ReadRegOrSP(insts.Rn(word))
		addr := base

		for i := 0; i < selem; i++ {
			tt := (t + uint8(i)) % 32
			if sa.load {
				ctx.Regs.SetLane(tt, sa.esize, index, ctx.Read(addr, sa.esize))
			} else {
				ctx.Write(addr, sa.esize, ctx.Regs.Lane(tt, sa.esize, index))
			}
			addr += uint64(sa.esize)
		}
		sa.writeback(ctx, word, base, addr-base)
	}, nil
}

// loadReplicate handles LD1R-LD4R: each structure element is loaded and
// copied into every lane of its register.
func loadReplicate(sa structAccess, selem int, arr emu.Arrangement) simdOp {
	sa.esize = arr.ESize
	return func(ctx *emu.Context, word uint32) {
		t := insts.Rt(word)
		base := ctx.Regs.ReadRegOrSP(insts.Rn(word))
		addr := base

		lanes := make([][]uint64, selem)
		for i := range lanes {
			v := ctx.Read(addr, sa.esize)
			lanes[i] = make([]uint64, arr.Count)
			for j := range lanes[i] {
				lanes[i][j] = v
			}
			addr += uint64(sa.esize)
		}
		for i, l := range lanes {
			ctx.Regs.WriteLanes((t+uint8(i))%32, arr, l)
		}
		sa.writeback(ctx, word, base, addr-base)
	}
}
