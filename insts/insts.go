// Package insts provides ARM64 instruction field access and classification.
//
// This package routes a 32-bit A64 instruction word through the architecture's
// encoding groups down to a single instruction class. It supports:
//   - Data Processing (Immediate): PC-relative, add/sub, logical, move wide,
//     bitfield, extract
//   - Branches, exception generation and system instructions
//   - Loads and stores, including exclusive, atomic and SIMD structure forms
//   - Data Processing (Register)
//   - SIMD and floating point
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x91002820) // ADD X0, X1, #10
//	fmt.Printf("Class: %v, Rd: %d, Rn: %d\n", inst.Class, insts.Rd(inst.Word), insts.Rn(inst.Word))
package insts
