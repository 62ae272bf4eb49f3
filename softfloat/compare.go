// Package softfloat implements IEEE-754 arithmetic in software.
package softfloat

// NZCV results of Compare, as a 4-bit nzcv value.
const (
	CompareLess      uint32 = 0b1000
	CompareEqual     uint32 = 0b0110
	CompareGreater   uint32 = 0b0010
	CompareUnordered uint32 = 0b0011
)

// orderKey maps a non-NaN bit pattern to an integer with the same order as
// the value it encodes. Both zeros map to 0.
func orderKey(f Format, a uint64) int64 {
	mag := int64(f.Abs(a))
	if f.Negative(a) {
		return -mag
	}
	return mag
}

// Compare compares a with b and returns the nzcv flags FCMP produces. A
// signaling NaN always raises InvalidOp; signal also raises it for quiet
// NaNs (FCMPE).
func Compare(e *Env, f Format, a, b uint64, signal bool) uint32 {
	va, vb := e.unpack(f, a), e.unpack(f, b)

	if va.isNaN() || vb.isNaN() {
		if signal || va.cls == classSNaN || vb.cls == classSNaN {
			e.raise(InvalidOp)
		}
		return CompareUnordered
	}

	ka, kb := orderKey(f, va.bits), orderKey(f, vb.bits)
	switch {
	case ka == kb:
		return CompareEqual
	case ka < kb:
		return CompareLess
	default:
		return CompareGreater
	}
}

// CompareEQ reports a == b. Only signaling NaNs raise InvalidOp.
func CompareEQ(e *Env, f Format, a, b uint64) bool {
	return Compare(e, f, a, b, false) == CompareEqual
}

// CompareGE reports a >= b. Any NaN raises InvalidOp.
func CompareGE(e *Env, f Format, a, b uint64) bool {
	r := Compare(e, f, a, b, true)
	return r == CompareEqual || r == CompareGreater
}

// CompareGT reports a > b. Any NaN raises InvalidOp.
func CompareGT(e *Env, f Format, a, b uint64) bool {
	return Compare(e, f, a, b, true) == CompareGreater
}

// Max returns the larger of a and b. NaN operands propagate; +0 is larger
// than -0.
func Max(e *Env, f Format, a, b uint64) uint64 {
	return e.minMax(f, a, b, true, false)
}

// Min returns the smaller of a and b.
func Min(e *Env, f Format, a, b uint64) uint64 {
	return e.minMax(f, a, b, false, false)
}

// MaxNum is Max, except that a single quiet NaN operand loses to a number.
func MaxNum(e *Env, f Format, a, b uint64) uint64 {
	return e.minMax(f, a, b, true, true)
}

// MinNum is Min, except that a single quiet NaN operand loses to a number.
func MinNum(e *Env, f Format, a, b uint64) uint64 {
	return e.minMax(f, a, b, false, true)
}

func (e *Env) minMax(f Format, a, b uint64, wantMax, numeric bool) uint64 {
	va, vb := e.unpack(f, a), e.unpack(f, b)

	if numeric {
		// A lone quiet NaN is replaced by the infinity that loses.
		loser := f.Inf(wantMax)
		switch {
		case va.cls == classQNaN && !vb.isNaN():
			va = e.unpack(f, loser)
		case vb.cls == classQNaN && !va.isNaN():
			vb = e.unpack(f, loser)
		}
	}

	if r, ok := e.processNaNs(f, va, vb); ok {
		return r
	}

	ka, kb := orderKey(f, va.bits), orderKey(f, vb.bits)
	if ka == kb && va.cls == classZero {
		// +0 vs -0: max prefers +0, min prefers -0.
		return f.Zero((va.sign && vb.sign) || (!wantMax && (va.sign || vb.sign)))
	}

	pick := va
	if (wantMax && kb > ka) || (!wantMax && kb < ka) {
		pick = vb
	}
	return pick.bits
}
