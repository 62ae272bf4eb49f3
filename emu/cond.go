// Package emu provides the ARM64 guest state and semantic primitives.
package emu

import "github.com/sarchlab/a64dbt/insts"

// ConditionHolds evaluates a condition code against a flags word.
//
// Bits [3:1] pick a base test and bit 0 inverts it, except when bits [3:1]
// are 111: both AL (1110) and NV (1111) hold unconditionally.
func ConditionHolds(cond insts.Cond, f Flags) bool {
	var result bool

	switch cond >> 1 {
	case 0b000:
		// EQ/NE: Z == 1
		result = f.Z()
	case 0b001:
		// CS/CC: C == 1
		result = f.C()
	case 0b010:
		// MI/PL: N == 1
		result = f.N()
	case 0b011:
		// VS/VC: V == 1
		result = f.V()
	case 0b100:
		// HI/LS: C == 1 && Z == 0
		result = f.C() && !f.Z()
	case 0b101:
		// GE/LT: N == V
		result = f.N() == f.V()
	case 0b110:
		// GT/LE: Z == 0 && N == V
		result = !f.Z() && f.N() == f.V()
	default:
		return true
	}

	if cond&1 == 1 {
		result = !result
	}
	return result
}
