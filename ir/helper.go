// Package ir defines the intermediate representation produced by translation.
package ir

// HelperID names a helper entry point. The set is closed; backends resolve
// an ID to the implementation registered for it.
//
// Argument conventions are noted per group. "word" is the untouched
// instruction word, from which the helper re-decodes its operands.
type HelperID uint16

// Helper entry points.
const (
	HelperInvalid HelperID = iota

	// Flag computation: (a, b) -> NZCV word. The carry forms take the prior
	// NZCV word as a third argument; the logic forms take only the result.
	HelperFlagsAdd32
	HelperFlagsAdd64
	HelperFlagsSub32
	HelperFlagsSub64
	HelperFlagsAdc32
	HelperFlagsAdc64
	HelperFlagsSbc32
	HelperFlagsSbc64
	HelperFlagsLogic32
	HelperFlagsLogic64
	// (cond, nzcv) -> 0 or 1
	HelperCondition

	// Integer: value helpers take (a[, b], width) and return the result.
	HelperUDiv
	HelperSDiv
	HelperUMulHigh
	HelperSMulHigh
	HelperClz
	HelperCls
	HelperRbit
	HelperRev16
	HelperRev32
	HelperRev
	// (word, src, dst) -> result
	HelperBitfield
	// (acc, data, size) -> crc
	HelperCRC32
	HelperCRC32C
	// (word)
	HelperFlagManip

	// Memory ordering and exclusive access: (word)
	HelperExclusive
	HelperCompareSwap
	HelperAtomic
	HelperBarrier
	HelperClearExclusive

	// System: (word)
	HelperPState
	HelperSys
	HelperMRS
	HelperMSR

	// Exceptions: (pc) for syscall and breakpoint, (word, pc) for trap
	HelperSyscall
	HelperTrap
	HelperBreakpoint

	// Scalar floating point: (word)
	HelperFPCompare
	HelperFPCondCompare
	HelperFPCondSelect
	HelperFPDataProc1
	HelperFPDataProc2
	HelperFPDataProc3
	HelperFPImm
	HelperFPIntConv
	HelperFPFixedConv

	// Advanced SIMD: (word)
	HelperSIMDThreeSame
	HelperSIMDThreeDiff
	HelperSIMDTwoRegMisc
	HelperSIMDAcrossLanes
	HelperSIMDCopy
	HelperSIMDByElement
	HelperSIMDShiftImm
	HelperSIMDModImm
	HelperSIMDPermute
	HelperSIMDExtract
	HelperSIMDTableLookup
	HelperSIMDScalarThreeSame
	HelperSIMDScalarThreeDiff
	HelperSIMDScalarTwoRegMisc
	HelperSIMDScalarPairwise
	HelperSIMDScalarCopy
	HelperSIMDScalarShiftImm
	HelperSIMDScalarByElement
	HelperSIMDLoadStoreMulti
	HelperSIMDLoadStoreSingle

	// NumHelpers is the number of helper IDs, HelperInvalid included.
	NumHelpers
)

var helperNames = [NumHelpers]string{
	HelperInvalid:              "invalid",
	HelperFlagsAdd32:           "flags_add32",
	HelperFlagsAdd64:           "flags_add64",
	HelperFlagsSub32:           "flags_sub32",
	HelperFlagsSub64:           "flags_sub64",
	HelperFlagsAdc32:           "flags_adc32",
	HelperFlagsAdc64:           "flags_adc64",
	HelperFlagsSbc32:           "flags_sbc32",
	HelperFlagsSbc64:           "flags_sbc64",
	HelperFlagsLogic32:         "flags_logic32",
	HelperFlagsLogic64:         "flags_logic64",
	HelperCondition:            "condition",
	HelperUDiv:                 "udiv",
	HelperSDiv:                 "sdiv",
	HelperUMulHigh:             "umulh",
	HelperSMulHigh:             "smulh",
	HelperClz:                  "clz",
	HelperCls:                  "cls",
	HelperRbit:                 "rbit",
	HelperRev16:                "rev16",
	HelperRev32:                "rev32",
	HelperRev:                  "rev",
	HelperBitfield:             "bitfield",
	HelperCRC32:                "crc32",
	HelperCRC32C:               "crc32c",
	HelperFlagManip:            "flag_manip",
	HelperExclusive:            "exclusive",
	HelperCompareSwap:          "compare_swap",
	HelperAtomic:               "atomic",
	HelperBarrier:              "barrier",
	HelperClearExclusive:       "clrex",
	HelperPState:               "pstate",
	HelperSys:                  "sys",
	HelperMRS:                  "mrs",
	HelperMSR:                  "msr",
	HelperSyscall:              "syscall",
	HelperTrap:                 "trap",
	HelperBreakpoint:           "breakpoint",
	HelperFPCompare:            "fp_compare",
	HelperFPCondCompare:        "fp_cond_compare",
	HelperFPCondSelect:         "fp_cond_select",
	HelperFPDataProc1:          "fp_1src",
	HelperFPDataProc2:          "fp_2src",
	HelperFPDataProc3:          "fp_3src",
	HelperFPImm:                "fp_imm",
	HelperFPIntConv:            "fp_int_conv",
	HelperFPFixedConv:          "fp_fixed_conv",
	HelperSIMDThreeSame:        "simd_three_same",
	HelperSIMDThreeDiff:        "simd_three_diff",
	HelperSIMDTwoRegMisc:       "simd_two_reg_misc",
	HelperSIMDAcrossLanes:      "simd_across_lanes",
	HelperSIMDCopy:             "simd_copy",
	HelperSIMDByElement:        "simd_by_element",
	HelperSIMDShiftImm:         "simd_shift_imm",
	HelperSIMDModImm:           "simd_mod_imm",
	HelperSIMDPermute:          "simd_permute",
	HelperSIMDExtract:          "simd_extract",
	HelperSIMDTableLookup:      "simd_table_lookup",
	HelperSIMDScalarThreeSame:  "simd_scalar_three_same",
	HelperSIMDScalarThreeDiff:  "simd_scalar_three_diff",
	HelperSIMDScalarTwoRegMisc: "simd_scalar_two_reg_misc",
	HelperSIMDScalarPairwise:   "simd_scalar_pairwise",
	HelperSIMDScalarCopy:       "simd_scalar_copy",
	HelperSIMDScalarShiftImm:   "simd_scalar_shift_imm",
	HelperSIMDScalarByElement:  "simd_scalar_by_element",
	HelperSIMDLoadStoreMulti:   "simd_ldst_multi",
	HelperSIMDLoadStoreSingle:  "simd_ldst_single",
}

func (h HelperID) String() string {
	if h >= NumHelpers || helperNames[h] == "" {
		return "helper(?)"
	}
	return helperNames[h]
}
