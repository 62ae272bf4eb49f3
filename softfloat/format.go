// Package softfloat implements IEEE-754 binary16/32/64 arithmetic in
// software, with the rounding, flush-to-zero, default-NaN and exception
// behavior of the ARMv8 floating-point unit.
//
// Values travel as raw bit patterns in the low bits of a uint64. Every
// operation takes an *Env that supplies the control state and accumulates
// the cumulative exception flags.
package softfloat

// Format describes a binary interchange format.
type Format struct {
	ExpBits  uint
	FracBits uint
}

// Supported formats.
var (
	Half   = Format{ExpBits: 5, FracBits: 10}
	Single = Format{ExpBits: 8, FracBits: 23}
	Double = Format{ExpBits: 11, FracBits: 52}
)

// Width returns the total width of the format in bits.
func (f Format) Width() uint { return 1 + f.ExpBits + f.FracBits }

// Size returns the width of the format in bytes.
func (f Format) Size() int { return int(f.Width() / 8) }

func (f Format) bias() int      { return 1<<(f.ExpBits-1) - 1 }
func (f Format) emin() int      { return 1 - f.bias() }
func (f Format) maxBiased() int { return 1<<f.ExpBits - 1 }

func (f Format) signBit() uint64  { return 1 << (f.ExpBits + f.FracBits) }
func (f Format) fracMask() uint64 { return 1<<f.FracBits - 1 }
func (f Format) quietBit() uint64 { return 1 << (f.FracBits - 1) }
func (f Format) expMask() uint64  { return uint64(f.maxBiased()) << f.FracBits }

func (f Format) mask() uint64 {
	if f.Width() == 64 {
		return ^uint64(0)
	}
	return 1<<f.Width() - 1
}

// Zero returns a signed zero.
func (f Format) Zero(negative bool) uint64 {
	if negative {
		return f.signBit()
	}
	return 0
}

// Inf returns a signed infinity.
func (f Format) Inf(negative bool) uint64 {
	return f.Zero(negative) | f.expMask()
}

// MaxNormal returns the signed largest finite value.
func (f Format) MaxNormal(negative bool) uint64 {
	return f.Zero(negative) | uint64(f.maxBiased()-1)<<f.FracBits | f.fracMask()
}

// DefaultNaN returns the positive quiet NaN with an all-zero payload.
func (f Format) DefaultNaN() uint64 {
	return f.expMask() | f.quietBit()
}

// One returns the value 1.0 with the given sign.
func (f Format) One(negative bool) uint64 {
	return f.Zero(negative) | uint64(f.bias())<<f.FracBits
}

// IsNaN reports whether a is a NaN.
func (f Format) IsNaN(a uint64) bool {
	return a&f.expMask() == f.expMask() && a&f.fracMask() != 0
}

// IsSignalingNaN reports whether a is a signaling NaN.
func (f Format) IsSignalingNaN(a uint64) bool {
	return f.IsNaN(a) && a&f.quietBit() == 0
}

// IsInf reports whether a is an infinity.
func (f Format) IsInf(a uint64) bool {
	return a&^f.signBit()&f.mask() == f.expMask()
}

// IsZero reports whether a is a zero.
func (f Format) IsZero(a uint64) bool {
	return a&^f.signBit()&f.mask() == 0
}

// IsSubnormal reports whether a is a nonzero value with a zero exponent.
func (f Format) IsSubnormal(a uint64) bool {
	return a&f.expMask() == 0 && a&f.fracMask() != 0
}

// Negative reports the sign bit of a.
func (f Format) Negative(a uint64) bool {
	return a&f.signBit() != 0
}

// Neg flips the sign bit.
func (f Format) Neg(a uint64) uint64 {
	return (a ^ f.signBit()) & f.mask()
}

// Abs clears the sign bit.
func (f Format) Abs(a uint64) uint64 {
	return a &^ f.signBit() & f.mask()
}

// RoundingMode is an IEEE rounding direction. The first four values match
// the FPCR.RMode encoding.
type RoundingMode uint8

// Rounding modes.
const (
	RoundNearestEven RoundingMode = iota
	RoundPlusInf
	RoundMinusInf
	RoundZero
	RoundNearestAway
)

// Exception is a set of cumulative floating-point exception flags. The bit
// positions match FPSR.
type Exception uint32

// Exception flags.
const (
	InvalidOp     Exception = 1 << 0
	DivideByZero  Exception = 1 << 1
	Overflow      Exception = 1 << 2
	Underflow     Exception = 1 << 3
	Inexact       Exception = 1 << 4
	InputDenormal Exception = 1 << 7

	AllExceptions = InvalidOp | DivideByZero | Overflow | Underflow | Inexact | InputDenormal
)

// Env is the floating-point environment of one operation sequence.
type Env struct {
	Mode        RoundingMode
	FlushToZero bool
	DefaultNaN  bool

	// Flags accumulates raised exceptions. Operations only ever set bits.
	Flags Exception
}

func (e *Env) raise(x Exception) {
	e.Flags |= x
}

// flushes reports whether subnormals of format f are flushed. FZ governs
// single and double precision only.
func (e *Env) flushes(f Format) bool {
	return e.FlushToZero && f != Half
}

// WithMode returns a copy of e that rounds with m and shares no flags.
func (e *Env) WithMode(m RoundingMode) *Env {
	c := *e
	c.Mode = m
	c.Flags = 0
	return &c
}
