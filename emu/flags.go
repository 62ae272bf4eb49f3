// Package emu provides the ARM64 guest state and semantic primitives.
package emu

import "math/bits"

// Flags is the packed NZCV condition flags word.
type Flags uint32

// Flag bits.
const (
	FlagN Flags = 1 << 31
	FlagZ Flags = 1 << 30
	FlagC Flags = 1 << 29
	FlagV Flags = 1 << 28

	FlagsMask = FlagN | FlagZ | FlagC | FlagV
)

// MakeFlags packs four booleans into a flags word.
func MakeFlags(n, z, c, v bool) Flags {
	var f Flags
	if n {
		f |= FlagN
	}
	if z {
		f |= FlagZ
	}
	if c {
		f |= FlagC
	}
	if v {
		f |= FlagV
	}
	return f
}

// FlagsFromNZCV builds a flags word from a 4-bit nzcv immediate.
func FlagsFromNZCV(nzcv uint32) Flags {
	return Flags(nzcv&0xF) << 28
}

// N reports the negative flag.
func (f Flags) N() bool { return f&FlagN != 0 }

// Z reports the zero flag.
func (f Flags) Z() bool { return f&FlagZ != 0 }

// C reports the carry flag.
func (f Flags) C() bool { return f&FlagC != 0 }

// V reports the overflow flag.
func (f Flags) V() bool { return f&FlagV != 0 }

// Nibble returns the flags as a 4-bit nzcv value.
func (f Flags) Nibble() uint32 { return uint32(f>>28) & 0xF }

// addWithCarry64 returns the flags of a + b + carryIn at 64 bits.
func addWithCarry64(a, b uint64, carryIn uint64) Flags {
	result, carry := bits.Add64(a, b, carryIn)

	// V: both operands share a sign that the result does not.
	overflow := (a^result)&(b^result)>>63 == 1

	return MakeFlags(result>>63 == 1, result == 0, carry == 1, overflow)
}

// addWithCarry32 returns the flags of a + b + carryIn at 32 bits. The carry
// out is bit 32 of the widened sum, not bit 64.
func addWithCarry32(a, b uint32, carryIn uint32) Flags {
	wide := uint64(a) + uint64(b) + uint64(carryIn)
	result := uint32(wide)

	overflow := (a^result)&(b^result)>>31 == 1

	return MakeFlags(result>>31 == 1, result == 0, wide>>32 == 1, overflow)
}

// AddFlags64 returns the flags of the 64-bit addition a + b.
func AddFlags64(a, b uint64) Flags {
	return addWithCarry64(a, b, 0)
}

// AddFlags32 returns the flags of the 32-bit addition a + b.
func AddFlags32(a, b uint32) Flags {
	return addWithCarry32(a, b, 0)
}

// SubFlags64 returns the flags of the 64-bit subtraction a - b. C is set
// when no borrow occurs.
func SubFlags64(a, b uint64) Flags {
	return addWithCarry64(a, ^b, 1)
}

// SubFlags32 returns the flags of the 32-bit subtraction a - b.
func SubFlags32(a, b uint32) Flags {
	return addWithCarry32(a, ^b, 1)
}

// AdcFlags64 returns the flags of a + b + C, with C taken from prior.
func AdcFlags64(a, b uint64, prior Flags) Flags {
	return addWithCarry64(a, b, carryBit(prior))
}

// AdcFlags32 returns the flags of a + b + C at 32 bits.
func AdcFlags32(a, b uint32, prior Flags) Flags {
	return addWithCarry32(a, b, uint32(carryBit(prior)))
}

// SbcFlags64 returns the flags of a - b - !C.
func SbcFlags64(a, b uint64, prior Flags) Flags {
	return addWithCarry64(a, ^b, carryBit(prior))
}

// SbcFlags32 returns the flags of a - b - !C at 32 bits.
func SbcFlags32(a, b uint32, prior Flags) Flags {
	return addWithCarry32(a, ^b, uint32(carryBit(prior)))
}

// LogicFlags64 returns the flags of a 64-bit logical result. C and V are
// cleared.
func LogicFlags64(result uint64) Flags {
	return MakeFlags(result>>63 == 1, result == 0, false, false)
}

// LogicFlags32 returns the flags of a 32-bit logical result.
func LogicFlags32(result uint32) Flags {
	return MakeFlags(result>>31 == 1, result == 0, false, false)
}

func carryBit(f Flags) uint64 {
	if f.C() {
		return 1
	}
	return 0
}
