// Package emu provides the ARM64 guest state and semantic primitives.
package emu

import "math/bits"

// BitfieldMode selects the BFM-family behavior.
type BitfieldMode uint8

// Bitfield modes, in opc order (SBFM=00, BFM=01, UBFM=10).
const (
	BitfieldSigned   BitfieldMode = 0 // SBFM: extract into zero, sign-extend
	BitfieldMerge    BitfieldMode = 1 // BFM: insert into destination
	BitfieldUnsigned BitfieldMode = 2 // UBFM: extract into zero, zero-extend
)

// Ones returns a value with the low n bits set.
func Ones(n uint) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<n - 1
}

// ROR rotates the low width bits of x right by sh.
func ROR(x uint64, sh, width uint) uint64 {
	x &= Ones(width)
	sh %= width
	if sh == 0 {
		return x
	}
	return (x>>sh | x<<(width-sh)) & Ones(width)
}

// Replicate repeats the low esize bits of x across width bits.
func Replicate(x uint64, esize, width uint) uint64 {
	x &= Ones(esize)
	var out uint64
	for i := uint(0); i < width; i += esize {
		out |= x << i
	}
	return out
}

// DecodeBitMasks expands the N:immr:imms encoding used by logical
// immediates and the bitfield instructions into the wmask/tmask pair.
// logical selects the stricter rules of logical immediates. ok is false for
// reserved encodings.
func DecodeBitMasks(n, imms, immr uint8, logical bool, width uint) (wmask, tmask uint64, ok bool) {
	combined := uint32(n&1)<<6 | uint32(^imms&0x3F)
	if combined == 0 {
		return 0, 0, false
	}
	length := uint(bits.Len32(combined)) - 1
	if length < 1 {
		return 0, 0, false
	}

	esize := uint(1) << length
	if esize > width {
		return 0, 0, false
	}

	levels := uint8(Ones(length))
	if logical && imms&levels == levels {
		return 0, 0, false
	}

	s := uint(imms & levels)
	r := uint(immr & levels)
	d := (s - r) & uint(levels)

	welem := Ones(s + 1)
	telem := Ones(d + 1)

	wmask = Replicate(ROR(welem, r, esize), esize, width)
	tmask = Replicate(telem, esize, width)
	return wmask, tmask, true
}

// BitfieldMove computes SBFM, BFM or UBFM. dst is the prior destination
// value and only matters for BitfieldMerge. The field may wrap across bit 0
// when imms < immr. ok is false for reserved encodings.
func BitfieldMove(mode BitfieldMode, is64 bool, src, dst uint64, immr, imms uint8) (uint64, bool) {
	width := uint(32)
	n := uint8(0)
	if is64 {
		width = 64
		n = 1
	}

	if immr >= uint8(width) || imms >= uint8(width) {
		return 0, false
	}

	wmask, tmask, ok := DecodeBitMasks(n, imms, immr, false, width)
	if !ok {
		return 0, false
	}

	src &= Ones(width)
	dst &= Ones(width)
	bot := ROR(src, uint(immr), width) & wmask

	var result uint64
	switch mode {
	case BitfieldMerge:
		bot = dst&^wmask | bot
		result = dst&^tmask | bot&tmask
	case BitfieldSigned:
		var top uint64
		if src>>imms&1 == 1 {
			top = Ones(width)
		}
		result = top&^tmask | bot&tmask
	case BitfieldUnsigned:
		result = bot & tmask
	default:
		return 0, false
	}

	return result & Ones(width), true
}

// ExtractRegister computes EXTR: the width-bit window starting at bit lsb
// of the concatenation hi:lo.
func ExtractRegister(is64 bool, hi, lo uint64, lsb uint8) uint64 {
	if !is64 {
		concat := uint64(uint32(hi))<<32 | uint64(uint32(lo))
		return uint64(uint32(concat >> (lsb & 31)))
	}
	if lsb == 0 {
		return lo
	}
	return lo>>lsb | hi<<(64-lsb)
}
