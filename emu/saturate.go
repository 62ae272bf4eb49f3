// Package emu provides the ARM64 guest state and semantic primitives.
package emu

import "math/bits"

// Saturating integer arithmetic on lane values. Lane values travel as
// uint64 bit patterns, zero-extended from their width; results come back the
// same way. Every function reports whether it clamped, and callers record
// that in FPSR.QC.

// SignExtendLane interprets the low width bits of v as a signed value.
func SignExtendLane(v uint64, width uint) int64 {
	if width >= 64 {
		return int64(v)
	}
	shift := 64 - width
	return int64(v<<shift) >> shift
}

// SignedMax returns the largest signed value of width bits.
func SignedMax(width uint) int64 { return int64(Ones(width - 1)) }

// SignedMin returns the smallest signed value of width bits.
func SignedMin(width uint) int64 { return -SignedMax(width) - 1 }

// int128 is a two's-complement 128-bit intermediate used where a 64-bit
// operation must be checked before truncation.
type int128 struct {
	hi int64
	lo uint64
}

func int128From(v int64) int128 {
	return int128{hi: v >> 63, lo: uint64(v)}
}

func uint128From(v uint64) int128 {
	return int128{lo: v}
}

func (a int128) add(b int128) int128 {
	lo, carry := bits.Add64(a.lo, b.lo, 0)
	return int128{hi: a.hi + b.hi + int64(carry), lo: lo}
}

func (a int128) neg() int128 {
	lo, borrow := bits.Sub64(0, a.lo, 0)
	return int128{hi: -a.hi - int64(borrow), lo: lo}
}

func (a int128) sub(b int128) int128 {
	return a.add(b.neg())
}

func (a int128) less(b int128) bool {
	if a.hi != b.hi {
		return a.hi < b.hi
	}
	return a.lo < b.lo
}

// clampSigned clamps a to the signed width-bit range.
func (a int128) clampSigned(width uint) (uint64, bool) {
	lo, hi := int128From(SignedMin(width)), int128From(SignedMax(width))
	switch {
	case a.less(lo):
		return uint64(SignedMin(width)) & Ones(width), true
	case hi.less(a):
		return uint64(SignedMax(width)), true
	}
	return a.lo & Ones(width), false
}

// clampUnsigned clamps a to the unsigned width-bit range.
func (a int128) clampUnsigned(width uint) (uint64, bool) {
	switch {
	case a.hi < 0:
		return 0, true
	case a.hi > 0 || a.lo > Ones(width):
		return Ones(width), true
	}
	return a.lo, false
}

func (a int128) clamp(width uint, signed bool) (uint64, bool) {
	if signed {
		return a.clampSigned(width)
	}
	return a.clampUnsigned(width)
}

func widen(v uint64, width uint, signed bool) int128 {
	if signed {
		return int128From(SignExtendLane(v, width))
	}
	return uint128From(v & Ones(width))
}

// SatAdd computes a + b at width bits with saturation (SQADD/UQADD).
func SatAdd(a, b uint64, width uint, signed bool) (uint64, bool) {
	return widen(a, width, signed).add(widen(b, width, signed)).clamp(width, signed)
}

// SatSub computes a - b at width bits with saturation (SQSUB/UQSUB).
func SatSub(a, b uint64, width uint, signed bool) (uint64, bool) {
	return widen(a, width, signed).sub(widen(b, width, signed)).clamp(width, signed)
}

// SatAccumulate adds b, taken with the opposite signedness, into a
// (SUQADD when signed is true, USQADD when false).
func SatAccumulate(a, b uint64, width uint, signed bool) (uint64, bool) {
	return widen(a, width, signed).add(widen(b, width, !signed)).clamp(width, signed)
}

// SatNarrow converts a srcSigned value of width srcWidth to dstWidth bits
// with saturation (SQXTN, UQXTN, SQXTUN).
func SatNarrow(v uint64, srcWidth, dstWidth uint, srcSigned, dstSigned bool) (uint64, bool) {
	return widen(v, srcWidth, srcSigned).clamp(dstWidth, dstSigned)
}

// SatNeg computes -a with saturation (SQNEG).
func SatNeg(a uint64, width uint) (uint64, bool) {
	return widen(a, width, true).neg().clampSigned(width)
}

// SatAbs computes |a| with saturation (SQABS).
func SatAbs(a uint64, width uint) (uint64, bool) {
	v := widen(a, width, true)
	if v.hi < 0 {
		v = v.neg()
	}
	return v.clampSigned(width)
}

// SatShl shifts a left by shift bits with saturation (SQSHL, UQSHL,
// SQSHLU). A negative shift is a truncating right shift. srcSigned selects
// how a is read and dstSigned the range of the result.
func SatShl(a uint64, shift int, width uint, srcSigned, dstSigned bool) (uint64, bool) {
	if shift <= 0 {
		n := uint(-shift)
		if srcSigned {
			if n >= width {
				n = width - 1
			}
			return int128From(SignExtendLane(a, width) >> n).clamp(width, dstSigned)
		}
		if n >= width {
			return 0, false
		}
		return uint128From((a & Ones(width)) >> n).clamp(width, dstSigned)
	}

	if !srcSigned {
		u := a & Ones(width)
		if u == 0 {
			return 0, false
		}
		if uint(shift) >= width || u>>(width-uint(shift)) != 0 {
			return Ones(width), true
		}
		return (u << uint(shift)) & Ones(width), false
	}

	x := SignExtendLane(a, width)
	switch {
	case x == 0:
		return 0, false
	case x < 0 && !dstSigned:
		return 0, true
	}

	if !dstSigned {
		u := uint64(x)
		if uint(shift) >= width || u>>(width-uint(shift)) != 0 {
			return Ones(width), true
		}
		return (u << uint(shift)) & Ones(width), false
	}

	if uint(shift) < width {
		shifted := uint64(x) << uint(shift)
		if SignExtendLane(shifted, width)>>uint(shift) == x {
			return shifted & Ones(width), false
		}
	}
	if x < 0 {
		return uint64(SignedMin(width)) & Ones(width), true
	}
	return uint64(SignedMax(width)), true
}

// RoundingShift shifts a by shift bits (negative is right) with rounding,
// without saturation (SRSHL/URSHL and the rounding shift-immediate forms).
func RoundingShift(a uint64, shift int, width uint, signed bool) uint64 {
	if shift >= 0 {
		if uint(shift) >= width {
			return 0
		}
		return (a << uint(shift)) & Ones(width)
	}

	n := uint(-shift)
	if n > width {
		return 0
	}
	v := widen(a, width, signed)
	// Add half an ulp of the result, then shift.
	round := int128{lo: uint64(1) << (n - 1)}
	sum := v.add(round)
	return shiftRight128(sum, n, signed) & Ones(width)
}

func shiftRight128(v int128, n uint, signed bool) uint64 {
	if n == 0 {
		return v.lo
	}
	if n >= 64 {
		if signed {
			return uint64(v.hi >> (n - 64))
		}
		return uint64(v.hi) >> (n - 64)
	}
	return v.lo>>n | uint64(v.hi)<<(64-n)
}

// DoublingMulHigh computes the high half of 2*a*b at width bits with
// saturation (SQDMULH), optionally rounding (SQRDMULH).
func DoublingMulHigh(a, b uint64, width uint, round bool) (uint64, bool) {
	x := SignExtendLane(a, width)
	y := SignExtendLane(b, width)

	// Only min*min overflows the doubled product.
	if x == SignedMin(width) && y == SignedMin(width) {
		return uint64(SignedMax(width)), true
	}

	hi, lo := bits.Mul64(uint64(x), uint64(y))
	// Signed correction of the unsigned 128-bit product.
	if x < 0 {
		hi -= uint64(y)
	}
	if y < 0 {
		hi -= uint64(x)
	}
	p := int128{hi: int64(hi), lo: lo}
	p = p.add(p)
	if round {
		p = p.add(int128{lo: uint64(1) << (width - 1)})
	}
	return shiftRight128(p, width, true) & Ones(width), false
}

// DoublingMulLong computes 2*a*b into a 2*width result with saturation
// (SQDMULL). width is at most 32.
func DoublingMulLong(a, b uint64, width uint) (uint64, bool) {
	x := SignExtendLane(a, width)
	y := SignExtendLane(b, width)
	if x == SignedMin(width) && y == SignedMin(width) {
		return uint64(SignedMax(2 * width)), true
	}
	return uint64(2*x*y) & Ones(2*width), false
}
