// Package softfloat implements IEEE-754 arithmetic in software.
package softfloat

import "math/big"

// guardBits is the number of extra quotient and root bits computed beyond
// the target precision before the final rounding.
const guardBits = 66

func signedMant(v value) *big.Int {
	m := new(big.Int).SetUint64(v.mant)
	if v.sign {
		m.Neg(m)
	}
	return m
}

// exactSum adds two finite-or-zero terms given as signed mantissas and
// exponents, returning the exact signed sum.
func exactSum(a *big.Int, ea int, b *big.Int, eb int) (*big.Int, int) {
	e := ea
	if eb < e {
		e = eb
	}
	x := new(big.Int).Lsh(a, uint(ea-e))
	y := new(big.Int).Lsh(b, uint(eb-e))
	return x.Add(x, y), e
}

// roundSigned rounds a signed exact value. An exact zero takes the sign
// IEEE prescribes for x + (-x): negative only when rounding toward -inf.
func (e *Env) roundSigned(f Format, m *big.Int, exp int) uint64 {
	if m.Sign() == 0 {
		return f.Zero(e.Mode == RoundMinusInf)
	}
	neg := m.Sign() < 0
	return e.round(f, neg, new(big.Int).Abs(m), exp, false)
}

// Add returns a + b.
func Add(e *Env, f Format, a, b uint64) uint64 {
	return e.addSub(f, a, b, false)
}

// Sub returns a - b.
func Sub(e *Env, f Format, a, b uint64) uint64 {
	return e.addSub(f, a, b, true)
}

func (e *Env) addSub(f Format, a, b uint64, sub bool) uint64 {
	va, vb := e.unpack(f, a), e.unpack(f, b)
	if r, ok := e.processNaNs(f, va, vb); ok {
		return r
	}
	if sub {
		vb.sign = !vb.sign
	}

	switch {
	case va.cls == classInf && vb.cls == classInf:
		if va.sign != vb.sign {
			return e.invalid(f)
		}
		return f.Inf(va.sign)
	case va.cls == classInf:
		return f.Inf(va.sign)
	case vb.cls == classInf:
		return f.Inf(vb.sign)
	case va.cls == classZero && vb.cls == classZero && va.sign == vb.sign:
		return f.Zero(va.sign)
	}

	sum, exp := exactSum(signedMant(va), va.exp, signedMant(vb), vb.exp)
	return e.roundSigned(f, sum, exp)
}

// Mul returns a × b.
func Mul(e *Env, f Format, a, b uint64) uint64 {
	return e.mul(f, a, b, false)
}

// MulX returns a × b, except that infinity times zero is 2.0 (FMULX).
func MulX(e *Env, f Format, a, b uint64) uint64 {
	return e.mul(f, a, b, true)
}

func (e *Env) mul(f Format, a, b uint64, extended bool) uint64 {
	va, vb := e.unpack(f, a), e.unpack(f, b)
	if r, ok := e.processNaNs(f, va, vb); ok {
		return r
	}
	sign := va.sign != vb.sign

	switch {
	case (va.cls == classInf && vb.cls == classZero) || (va.cls == classZero && vb.cls == classInf):
		if extended {
			return f.One(sign) + 1<<f.FracBits
		}
		return e.invalid(f)
	case va.cls == classInf || vb.cls == classInf:
		return f.Inf(sign)
	case va.cls == classZero || vb.cls == classZero:
		return f.Zero(sign)
	}

	p := new(big.Int).Mul(new(big.Int).SetUint64(va.mant), new(big.Int).SetUint64(vb.mant))
	return e.round(f, sign, p, va.exp+vb.exp, false)
}

// Div returns a ÷ b. A finite nonzero dividend over zero raises
// DivideByZero and returns a signed infinity.
func Div(e *Env, f Format, a, b uint64) uint64 {
	va, vb := e.unpack(f, a), e.unpack(f, b)
	if r, ok := e.processNaNs(f, va, vb); ok {
		return r
	}
	sign := va.sign != vb.sign

	switch {
	case va.cls == classInf && vb.cls == classInf,
		va.cls == classZero && vb.cls == classZero:
		return e.invalid(f)
	case va.cls == classInf:
		return f.Inf(sign)
	case vb.cls == classInf:
		return f.Zero(sign)
	case vb.cls == classZero:
		e.raise(DivideByZero)
		return f.Inf(sign)
	case va.cls == classZero:
		return f.Zero(sign)
	}

	mb := new(big.Int).SetUint64(vb.mant)
	shift := int(f.FracBits) + guardBits + mb.BitLen()
	num := new(big.Int).Lsh(new(big.Int).SetUint64(va.mant), uint(shift))
	q, r := new(big.Int).QuoRem(num, mb, new(big.Int))

	return e.round(f, sign, q, va.exp-vb.exp-shift, r.Sign() != 0)
}

// Sqrt returns the square root of a. Negative nonzero operands are invalid;
// sqrt(-0) is -0.
func Sqrt(e *Env, f Format, a uint64) uint64 {
	v := e.unpack(f, a)

	switch {
	case v.isNaN():
		return e.processNaN(f, v)
	case v.cls == classZero:
		return f.Zero(v.sign)
	case v.sign:
		return e.invalid(f)
	case v.cls == classInf:
		return f.Inf(false)
	}

	shift := 2 * (int(f.FracBits) + guardBits)
	if (v.exp-shift)%2 != 0 {
		shift++
	}
	m := new(big.Int).Lsh(new(big.Int).SetUint64(v.mant), uint(shift))
	root := new(big.Int).Sqrt(m)
	sticky := new(big.Int).Mul(root, root).Cmp(m) != 0

	return e.round(f, false, root, (v.exp-shift)/2, sticky)
}

// MulAdd returns addend + a × b with a single rounding (FMADD).
func MulAdd(e *Env, f Format, addend, a, b uint64) uint64 {
	return e.fused(f, addend, a, b, 0)
}

// fused computes (addend + a × b) × 2^scale with one rounding.
func (e *Env) fused(f Format, addend, a, b uint64, scale int) uint64 {
	vc, va, vb := e.unpack(f, addend), e.unpack(f, a), e.unpack(f, b)

	infZero := (va.cls == classInf && vb.cls == classZero) || (va.cls == classZero && vb.cls == classInf)

	r, isNaN := e.processNaNs(f, vc, va, vb)
	if vc.cls == classQNaN && infZero {
		return e.invalid(f)
	}
	if isNaN {
		return r
	}

	signP := va.sign != vb.sign
	infP := va.cls == classInf || vb.cls == classInf
	zeroP := va.cls == classZero || vb.cls == classZero

	switch {
	case infZero:
		return e.invalid(f)
	case vc.cls == classInf && infP && vc.sign != signP:
		return e.invalid(f)
	case vc.cls == classInf:
		return f.Inf(vc.sign)
	case infP:
		return f.Inf(signP)
	case vc.cls == classZero && zeroP && vc.sign == signP:
		return f.Zero(vc.sign)
	}

	p := new(big.Int).Mul(new(big.Int).SetUint64(va.mant), new(big.Int).SetUint64(vb.mant))
	if signP {
		p.Neg(p)
	}
	sum, exp := exactSum(signedMant(vc), vc.exp, p, va.exp+vb.exp)
	return e.roundSigned(f, sum, exp+scale)
}

// RecipStep returns 2 - a × b fused (FRECPS). Infinity times zero gives
// 2.0 without raising InvalidOp.
func RecipStep(e *Env, f Format, a, b uint64) uint64 {
	return e.step(f, a, b, f.One(false)+1<<f.FracBits, 0)
}

// RSqrtStep returns (3 - a × b) / 2 fused (FRSQRTS). Infinity times zero
// gives 1.5.
func RSqrtStep(e *Env, f Format, a, b uint64) uint64 {
	three := f.One(false) + 1<<f.FracBits | f.quietBit()
	return e.step(f, a, b, three, -1)
}

func (e *Env) step(f Format, a, b, constant uint64, scale int) uint64 {
	va, vb := e.unpack(f, a), e.unpack(f, b)
	if r, ok := e.processNaNs(f, va, vb); ok {
		return r
	}
	if (va.cls == classInf && vb.cls == classZero) || (va.cls == classZero && vb.cls == classInf) {
		if scale == 0 {
			return f.One(false) + 1<<f.FracBits
		}
		return f.One(false) | f.quietBit()
	}
	return e.fused(f, constant, f.Neg(va.bits), vb.bits, scale)
}
