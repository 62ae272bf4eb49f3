// Package insts provides ARM64 instruction field access and classification.
package insts

// Field extracts bits [msb:lsb] (inclusive) of word, right-aligned.
func Field(word uint32, msb, lsb uint) uint32 {
	width := msb - lsb + 1
	return (word >> lsb) & (uint32(1)<<width - 1)
}

// Bit returns bit n of word.
func Bit(word uint32, n uint) uint32 {
	return (word >> n) & 1
}

// SignExtend sign-extends the low bits of v to 64 bits.
func SignExtend(v uint64, bits uint) int64 {
	shift := 64 - bits
	return int64(v<<shift) >> shift
}

// Rd returns the destination register field, bits [4:0].
func Rd(word uint32) uint8 {
	return uint8(Field(word, 4, 0))
}

// Rt is an alias of Rd used by loads, stores and test branches.
func Rt(word uint32) uint8 {
	return Rd(word)
}

// Rn returns the first source register field, bits [9:5].
func Rn(word uint32) uint8 {
	return uint8(Field(word, 9, 5))
}

// Rm returns the second source register field, bits [20:16].
func Rm(word uint32) uint8 {
	return uint8(Field(word, 20, 16))
}

// Rs returns the status/compare register field of exclusive and atomic
// forms, bits [20:16].
func Rs(word uint32) uint8 {
	return Rm(word)
}

// Ra returns the accumulator field of three-source forms, bits [14:10].
func Ra(word uint32) uint8 {
	return uint8(Field(word, 14, 10))
}

// Rt2 returns the second transfer register of pair forms, bits [14:10].
func Rt2(word uint32) uint8 {
	return Ra(word)
}

// Sf reports whether the sf bit (bit 31) selects a 64-bit operation.
func Sf(word uint32) bool {
	return Bit(word, 31) == 1
}

// Q reports whether the Q bit (bit 30) selects a 128-bit vector.
func Q(word uint32) bool {
	return Bit(word, 30) == 1
}

// Size returns the SIMD element size field, bits [23:22].
func Size(word uint32) uint32 {
	return Field(word, 23, 22)
}

// LSSize returns the load/store size field, bits [31:30].
func LSSize(word uint32) uint32 {
	return Field(word, 31, 30)
}

// FPType returns the scalar floating-point type field, bits [23:22]:
// 00 single, 01 double, 11 half.
func FPType(word uint32) uint32 {
	return Field(word, 23, 22)
}

// Imm12 returns bits [21:10].
func Imm12(word uint32) uint32 {
	return Field(word, 21, 10)
}

// Imm19 returns the sign-extended, word-scaled offset in bits [23:5].
func Imm19(word uint32) int64 {
	return SignExtend(uint64(Field(word, 23, 5)), 19) * 4
}

// Imm26 returns the sign-extended, word-scaled offset in bits [25:0].
func Imm26(word uint32) int64 {
	return SignExtend(uint64(Field(word, 25, 0)), 26) * 4
}

// Imm14 returns the sign-extended, word-scaled offset in bits [18:5].
func Imm14(word uint32) int64 {
	return SignExtend(uint64(Field(word, 18, 5)), 14) * 4
}

// Imm9 returns the sign-extended byte offset in bits [20:12].
func Imm9(word uint32) int64 {
	return SignExtend(uint64(Field(word, 20, 12)), 9)
}

// Imm7 returns the sign-extended pair offset in bits [21:15], unscaled.
func Imm7(word uint32) int64 {
	return SignExtend(uint64(Field(word, 21, 15)), 7)
}
