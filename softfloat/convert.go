// Package softfloat implements IEEE-754 arithmetic in software.
package softfloat

import "math/big"

// ToInt converts a to a width-bit integer, scaled by 2^fracBits first
// (fracBits is nonzero only for fixed-point conversions), rounding with
// mode. NaN converts to 0; NaN and out-of-range values raise InvalidOp and
// saturate instead of raising Inexact. The result is returned zero-extended
// from width bits.
func ToInt(e *Env, f Format, a uint64, width uint, unsigned bool, fracBits int, mode RoundingMode) uint64 {
	v := e.unpack(f, a)
	mask := ^uint64(0) >> (64 - width)

	var maxMag, minMag *big.Int // limits of |result| for positive/negative values
	if unsigned {
		maxMag = new(big.Int).SetUint64(mask)
		minMag = new(big.Int)
	} else {
		maxMag = new(big.Int).SetUint64(mask >> 1)
		minMag = new(big.Int).Lsh(big.NewInt(1), width-1)
	}
	saturate := func(negative bool) uint64 {
		e.raise(InvalidOp)
		if negative {
			if unsigned {
				return 0
			}
			return (1 << (width - 1)) & mask
		}
		return maxMag.Uint64()
	}

	switch v.cls {
	case classQNaN, classSNaN:
		e.raise(InvalidOp)
		return 0
	case classInf:
		return saturate(v.sign)
	case classZero:
		return 0
	}

	n, inexact := roundToQuantum(new(big.Int).SetUint64(v.mant), v.exp+fracBits, 0, v.sign, mode, false)

	limit := maxMag
	if v.sign {
		limit = minMag
	}
	if n.Cmp(limit) > 0 {
		return saturate(v.sign)
	}
	if inexact {
		e.raise(Inexact)
	}

	r := n.Uint64()
	if v.sign {
		r = -r
	}
	return r & mask
}

// FromInt converts the width-bit integer v to f, dividing by 2^fracBits
// (fixed-point source) and rounding with the environment's mode.
func FromInt(e *Env, f Format, v uint64, width uint, signed bool, fracBits int) uint64 {
	v &= ^uint64(0) >> (64 - width)
	negative := false
	if signed && v>>(width-1)&1 == 1 {
		negative = true
		v = -v & (^uint64(0) >> (64 - width))
	}
	if v == 0 {
		return f.Zero(false)
	}
	return e.round(f, negative, new(big.Int).SetUint64(v), -fracBits, false)
}

// Convert changes the format of a (FCVT). NaN payloads keep their high
// bits; a signaling NaN is quietened and raises InvalidOp.
func Convert(e *Env, from, to Format, a uint64) uint64 {
	v := e.unpack(from, a)

	switch v.cls {
	case classQNaN, classSNaN:
		if v.cls == classSNaN {
			e.raise(InvalidOp)
		}
		if e.DefaultNaN {
			return to.DefaultNaN()
		}
		frac := v.bits & from.fracMask()
		if to.FracBits >= from.FracBits {
			frac <<= to.FracBits - from.FracBits
		} else {
			frac >>= from.FracBits - to.FracBits
		}
		return to.Zero(v.sign) | to.expMask() | to.quietBit() | frac
	case classInf:
		return to.Inf(v.sign)
	case classZero:
		return to.Zero(v.sign)
	}
	return e.round(to, v.sign, new(big.Int).SetUint64(v.mant), v.exp, false)
}

// RoundToIntegral rounds a to an integral value in the same format
// (FRINT*). Only exact (FRINTX) raises Inexact.
func RoundToIntegral(e *Env, f Format, a uint64, mode RoundingMode, exact bool) uint64 {
	v := e.unpack(f, a)

	switch v.cls {
	case classQNaN, classSNaN:
		return e.processNaN(f, v)
	case classInf, classZero:
		return v.bits
	}
	if v.exp >= 0 {
		return v.bits
	}

	n, inexact := roundToQuantum(new(big.Int).SetUint64(v.mant), v.exp, 0, v.sign, mode, false)
	if inexact && exact {
		e.raise(Inexact)
	}
	if n.Sign() == 0 {
		return f.Zero(v.sign)
	}
	// n is representable exactly, so this raises nothing.
	return e.round(f, v.sign, n, 0, false)
}
