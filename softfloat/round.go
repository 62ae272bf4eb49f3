// Package softfloat implements IEEE-754 arithmetic in software.
package softfloat

import "math/big"

type class uint8

const (
	classZero class = iota
	classFinite
	classInf
	classQNaN
	classSNaN
)

// value is an unpacked operand: sign × mant × 2^exp for finite values.
type value struct {
	cls  class
	sign bool
	mant uint64
	exp  int
	bits uint64
}

func (v value) isNaN() bool { return v.cls == classQNaN || v.cls == classSNaN }

// unpack decodes a, flushing subnormal inputs to zero when FZ applies.
func (e *Env) unpack(f Format, a uint64) value {
	a &= f.mask()
	v := value{sign: f.Negative(a), bits: a}
	biased := int(a >> f.FracBits & uint64(f.maxBiased()))
	frac := a & f.fracMask()

	switch {
	case biased == f.maxBiased() && frac == 0:
		v.cls = classInf
	case biased == f.maxBiased():
		if frac&f.quietBit() != 0 {
			v.cls = classQNaN
		} else {
			v.cls = classSNaN
		}
	case biased == 0 && frac == 0:
		v.cls = classZero
	case biased == 0:
		if e.flushes(f) {
			e.raise(InputDenormal)
			v.cls = classZero
			v.bits = f.Zero(v.sign)
			return v
		}
		v.cls = classFinite
		v.mant = frac
		v.exp = f.emin() - int(f.FracBits)
	default:
		v.cls = classFinite
		v.mant = frac | 1<<f.FracBits
		v.exp = biased - f.bias() - int(f.FracBits)
	}
	return v
}

// roundToQuantum rounds sign × (mant + sticky) × 2^exp to a multiple of
// 2^q and returns the magnitude in units of 2^q. sticky marks a nonzero
// tail below the last bit of mant.
func roundToQuantum(mant *big.Int, exp, q int, negative bool, mode RoundingMode, sticky bool) (*big.Int, bool) {
	shift := q - exp
	n := new(big.Int)
	cmpHalf := -1
	remZero := true

	if shift <= 0 {
		n.Lsh(mant, uint(-shift))
	} else {
		n.Rsh(mant, uint(shift))
		rem := new(big.Int).Sub(mant, new(big.Int).Lsh(n, uint(shift)))
		remZero = rem.Sign() == 0
		half := new(big.Int).Lsh(big.NewInt(1), uint(shift-1))
		cmpHalf = rem.Cmp(half)
		if cmpHalf == 0 && sticky {
			cmpHalf = 1
		}
	}

	inexact := !remZero || sticky
	if !inexact {
		return n, false
	}

	var up bool
	switch mode {
	case RoundNearestEven:
		up = cmpHalf > 0 || (cmpHalf == 0 && n.Bit(0) == 1)
	case RoundNearestAway:
		up = cmpHalf >= 0
	case RoundPlusInf:
		up = !negative
	case RoundMinusInf:
		up = negative
	case RoundZero:
		up = false
	}
	if up {
		n.Add(n, big.NewInt(1))
	}
	return n, true
}

// round packs sign × (mant + sticky) × 2^exp into f, raising the
// exceptions the rounding produces. Tininess is detected before rounding.
func (e *Env) round(f Format, negative bool, mant *big.Int, exp int, sticky bool) uint64 {
	if mant.Sign() == 0 && !sticky {
		return f.Zero(negative)
	}

	top := exp + mant.BitLen() - 1
	tiny := top < f.emin()
	if tiny && e.flushes(f) {
		e.raise(Underflow)
		return f.Zero(negative)
	}

	q := top - int(f.FracBits)
	if tiny {
		q = f.emin() - int(f.FracBits)
	}

	n, inexact := roundToQuantum(mant, exp, q, negative, e.Mode, sticky)
	if n.BitLen() > int(f.FracBits)+1 {
		n.Rsh(n, 1)
		q++
	}

	if inexact {
		if tiny {
			e.raise(Underflow)
		}
		e.raise(Inexact)
	}

	sign := f.Zero(negative)
	if n.BitLen() <= int(f.FracBits) {
		// Subnormal or zero: the exponent field stays 0.
		return sign | n.Uint64()
	}

	biased := q + int(f.FracBits) + f.bias()
	if biased >= f.maxBiased() {
		return e.overflow(f, negative)
	}
	return sign | uint64(biased)<<f.FracBits | n.Uint64()&f.fracMask()
}

func (e *Env) overflow(f Format, negative bool) uint64 {
	e.raise(Overflow | Inexact)

	switch e.Mode {
	case RoundPlusInf:
		if negative {
			return f.MaxNormal(true)
		}
	case RoundMinusInf:
		if !negative {
			return f.MaxNormal(false)
		}
	case RoundZero:
		return f.MaxNormal(negative)
	}
	return f.Inf(negative)
}

// roundValue re-packs an unpacked finite value.
func (e *Env) roundValue(f Format, v value) uint64 {
	return e.round(f, v.sign, new(big.Int).SetUint64(v.mant), v.exp, false)
}

// processNaN quietens a NaN operand, raising InvalidOp for a signaling one.
func (e *Env) processNaN(f Format, v value) uint64 {
	if v.cls == classSNaN {
		e.raise(InvalidOp)
	}
	if e.DefaultNaN {
		return f.DefaultNaN()
	}
	return v.bits | f.quietBit()
}

// processNaNs picks the NaN result of a multi-operand operation: the first
// signaling NaN wins, then the first quiet NaN.
func (e *Env) processNaNs(f Format, vs ...value) (uint64, bool) {
	for _, v := range vs {
		if v.cls == classSNaN {
			return e.processNaN(f, v), true
		}
	}
	for _, v := range vs {
		if v.cls == classQNaN {
			return e.processNaN(f, v), true
		}
	}
	return 0, false
}

func (e *Env) invalid(f Format) uint64 {
	e.raise(InvalidOp)
	return f.DefaultNaN()
}
