// Package insts provides ARM64 instruction field access and classification.
package insts

// Class identifies the translator responsible for an instruction word. Each
// value corresponds to one row of the A64 encoding tables.
type Class uint8

// Instruction classes.
const (
	ClassIllegal Class = iota
	ClassBreakpoint

	// Data processing (immediate)
	ClassPCRel
	ClassAddSubImm
	ClassLogicalImm
	ClassMoveWide
	ClassBitfield
	ClassExtract

	// Branches, exception generation and system instructions
	ClassCondBranch
	ClassExceptionGen
	ClassHint
	ClassBarrier
	ClassPState
	ClassSysInstr
	ClassSysReg
	ClassBranchReg
	ClassBranchImm
	ClassCompareBranch
	ClassTestBranch

	// Loads and stores
	ClassLoadStoreExclusive
	ClassLoadStoreOrdered
	ClassCompareSwap
	ClassLoadLiteral
	ClassLoadStorePair
	ClassLoadStoreImm
	ClassLoadStoreRegOffset
	ClassAtomic
	ClassSIMDLoadStoreMulti
	ClassSIMDLoadStoreSingle

	// Data processing (register)
	ClassLogicalShifted
	ClassAddSubShifted
	ClassAddSubExtended
	ClassAddSubCarry
	ClassFlagManip
	ClassCondCompare
	ClassCondSelect
	ClassDataProc1Src
	ClassDataProc2Src
	ClassDataProc3Src

	// Scalar floating point
	ClassFPCompare
	ClassFPCondCompare
	ClassFPCondSelect
	ClassFPDataProc1
	ClassFPDataProc2
	ClassFPDataProc3
	ClassFPImm
	ClassFPIntConv
	ClassFPFixedConv

	// Advanced SIMD
	ClassSIMDThreeSame
	ClassSIMDThreeDiff
	ClassSIMDTwoRegMisc
	ClassSIMDAcrossLanes
	ClassSIMDCopy
	ClassSIMDByElement
	ClassSIMDShiftImm
	ClassSIMDModImm
	ClassSIMDPermute
	ClassSIMDExtract
	ClassSIMDTableLookup
	ClassSIMDScalarThreeSame
	ClassSIMDScalarThreeDiff
	ClassSIMDScalarTwoRegMisc
	ClassSIMDScalarPairwise
	ClassSIMDScalarCopy
	ClassSIMDScalarShiftImm
	ClassSIMDScalarByElement

	// Recognized extensions this core does not translate
	ClassSIMDExtension
	ClassCrypto
	ClassSVE

	// NumClasses is the number of instruction classes.
	NumClasses
)

var classNames = [NumClasses]string{
	ClassIllegal:              "illegal",
	ClassBreakpoint:           "breakpoint",
	ClassPCRel:                "pc-rel",
	ClassAddSubImm:            "add/sub-imm",
	ClassLogicalImm:           "logical-imm",
	ClassMoveWide:             "move-wide",
	ClassBitfield:             "bitfield",
	ClassExtract:              "extract",
	ClassCondBranch:           "cond-branch",
	ClassExceptionGen:         "exception-gen",
	ClassHint:                 "hint",
	ClassBarrier:              "barrier",
	ClassPState:               "pstate",
	ClassSysInstr:             "sys",
	ClassSysReg:               "sysreg",
	ClassBranchReg:            "branch-reg",
	ClassBranchImm:            "branch-imm",
	ClassCompareBranch:        "compare-branch",
	ClassTestBranch:           "test-branch",
	ClassLoadStoreExclusive:   "ldst-exclusive",
	ClassLoadStoreOrdered:     "ldst-ordered",
	ClassCompareSwap:          "compare-swap",
	ClassLoadLiteral:          "load-literal",
	ClassLoadStorePair:        "ldst-pair",
	ClassLoadStoreImm:         "ldst-imm",
	ClassLoadStoreRegOffset:   "ldst-regoff",
	ClassAtomic:               "atomic",
	ClassSIMDLoadStoreMulti:   "simd-ldst-multi",
	ClassSIMDLoadStoreSingle:  "simd-ldst-single",
	ClassLogicalShifted:       "logical-shifted",
	ClassAddSubShifted:        "add/sub-shifted",
	ClassAddSubExtended:       "add/sub-extended",
	ClassAddSubCarry:          "add/sub-carry",
	ClassFlagManip:            "flag-manip",
	ClassCondCompare:          "cond-compare",
	ClassCondSelect:           "cond-select",
	ClassDataProc1Src:         "dp-1src",
	ClassDataProc2Src:         "dp-2src",
	ClassDataProc3Src:         "dp-3src",
	ClassFPCompare:            "fp-compare",
	ClassFPCondCompare:        "fp-cond-compare",
	ClassFPCondSelect:         "fp-cond-select",
	ClassFPDataProc1:          "fp-1src",
	ClassFPDataProc2:          "fp-2src",
	ClassFPDataProc3:          "fp-3src",
	ClassFPImm:                "fp-imm",
	ClassFPIntConv:            "fp-int-conv",
	ClassFPFixedConv:          "fp-fixed-conv",
	ClassSIMDThreeSame:        "simd-three-same",
	ClassSIMDThreeDiff:        "simd-three-diff",
	ClassSIMDTwoRegMisc:       "simd-two-reg-misc",
	ClassSIMDAcrossLanes:      "simd-across-lanes",
	ClassSIMDCopy:             "simd-copy",
	ClassSIMDByElement:        "simd-by-element",
	ClassSIMDShiftImm:         "simd-shift-imm",
	ClassSIMDModImm:           "simd-mod-imm",
	ClassSIMDPermute:          "simd-permute",
	ClassSIMDExtract:          "simd-extract",
	ClassSIMDTableLookup:      "simd-table-lookup",
	ClassSIMDScalarThreeSame:  "simd-scalar-three-same",
	ClassSIMDScalarThreeDiff:  "simd-scalar-three-diff",
	ClassSIMDScalarTwoRegMisc: "simd-scalar-two-reg-misc",
	ClassSIMDScalarPairwise:   "simd-scalar-pairwise",
	ClassSIMDScalarCopy:       "simd-scalar-copy",
	ClassSIMDScalarShiftImm:   "simd-scalar-shift-imm",
	ClassSIMDScalarByElement:  "simd-scalar-by-element",
	ClassSIMDExtension:        "simd-extension",
	ClassCrypto:               "crypto",
	ClassSVE:                  "sve",
}

func (c Class) String() string {
	if c >= NumClasses {
		return "class(?)"
	}
	return classNames[c]
}

// Terminal reports whether instructions of this class may end a basic block.
func (c Class) Terminal() bool {
	switch c {
	case ClassBreakpoint, ClassCondBranch, ClassExceptionGen,
		ClassBranchReg, ClassBranchImm, ClassCompareBranch, ClassTestBranch:
		return true
	default:
		return false
	}
}
