// Package insts provides ARM64 instruction field access and classification.
package insts

// BreakpointWord is the software breakpoint planted by the debug collaborator
// (BRK #0). It is never routed to a normal translator.
const BreakpointWord uint32 = 0xD4200000

// pattern is a fixed-width bit pattern written most significant bit first,
// with 'x' marking bits that do not participate in the match.
type pattern struct {
	mask  uint32
	value uint32
}

func pat(s string) pattern {
	var p pattern
	for _, c := range s {
		p.mask <<= 1
		p.value <<= 1
		switch c {
		case '0':
			p.mask |= 1
		case '1':
			p.mask |= 1
			p.value |= 1
		case 'x':
		default:
			panic("insts: bad pattern " + s)
		}
	}
	return p
}

func (p pattern) match(v uint32) bool {
	return v&p.mask == p.value
}

// Second-level patterns of the SIMD and floating-point group, over
// op0 = [31:28], op1 = [24:23], op2 = [22:19], op3 = [18:10].
var (
	op0TableOrPermute = pat("0x00")
	op0Extract        = pat("0x10")
	op0Vector         = pat("0xx0")
	op0Scalar         = pat("01x1")
	op0ScalarFP       = pat("x0x1")

	op2ExtFP16ThreeSame = pat("10xx")
	op2LowerHalf        = pat("x0xx")
	op2UpperHalf        = pat("x1xx")
	op2TwoRegMisc       = pat("x100")
	op2AcrossLanes      = pat("x110")
	op2CryptoTwoReg     = pat("x101")

	op3TableLookup = pat("xxx0xxx00")
	op3Permute     = pat("xxx0xxx10")
	op3Extract     = pat("xxx0xxxx0")
	op3Copy        = pat("xxxx0xxx1")
	op3ThreeExtra  = pat("xxxx1xxx1")
	op3Misc        = pat("00xxxxx10")
	op3ThreeDiff   = pat("xxxxxxx00")

	op3FPIntConv = pat("xxx000000")
	op3FP1Src    = pat("xxxx10000")
	op3FPCompare = pat("xxxxx1000")
	op3FPImm     = pat("xxxxxx100")

	op1SysInstr = pat("0100x01xxxxxxx")
	op1SysReg   = pat("0100x1xxxxxxxx")
	op1PState   = pat("0100000xxx0100")
)

// Classify returns the instruction class of word. It is a pure function:
// every word maps to exactly one class, and unallocated encodings map to
// ClassIllegal.
func Classify(word uint32) Class {
	if word == BreakpointWord {
		return ClassBreakpoint
	}

	op0 := Field(word, 28, 25)

	switch {
	case op0 == 0b0010:
		return ClassSVE
	case op0&0b1110 == 0b1000:
		return classifyDPImm(word)
	case op0&0b1110 == 0b1010:
		return classifyBranchSys(word)
	case op0&0b0101 == 0b0100:
		return classifyLoadStore(word)
	case op0&0b0111 == 0b0101:
		return classifyDPReg(word)
	case op0&0b0111 == 0b0111:
		return classifySIMDFP(word)
	default:
		// 0000 holds UDF and the reserved space, 0001 and 0011 are unallocated.
		return ClassIllegal
	}
}

// classifyDPImm handles the data processing (immediate) group, op0 = 100x.
func classifyDPImm(word uint32) Class {
	switch Field(word, 25, 23) {
	case 0b000, 0b001:
		return ClassPCRel
	case 0b010:
		return ClassAddSubImm
	case 0b011:
		// ADDG/SUBG require FEAT_MTE, which this core does not implement.
		return ClassIllegal
	case 0b100:
		return ClassLogicalImm
	case 0b101:
		return ClassMoveWide
	case 0b110:
		return ClassBitfield
	default:
		return ClassExtract
	}
}

// classifyBranchSys handles branches, exception generation and system
// instructions, op0 = 101x.
func classifyBranchSys(word uint32) Class {
	op0 := Field(word, 31, 29)
	op1 := Field(word, 25, 12)
	op2 := Field(word, 4, 0)

	switch {
	case op0 == 0b010:
		if Bit(word, 25) == 0 && Bit(word, 24) == 0 && Bit(word, 4) == 0 {
			return ClassCondBranch
		}
		return ClassIllegal
	case op0 == 0b110:
		switch {
		case op1>>12 == 0b00:
			return ClassExceptionGen
		case op1 == 0b01000000110010 && op2 == 0b11111:
			return ClassHint
		case op1 == 0b01000000110011:
			return ClassBarrier
		case op1PState.match(op1):
			return ClassPState
		case op1SysInstr.match(op1):
			return ClassSysInstr
		case op1SysReg.match(op1):
			return ClassSysReg
		case op1>>13 == 1:
			return ClassBranchReg
		default:
			return ClassIllegal
		}
	case op0&0b011 == 0b000:
		return ClassBranchImm
	case op0&0b011 == 0b001:
		if Bit(word, 25) == 0 {
			return ClassCompareBranch
		}
		return ClassTestBranch
	default:
		return ClassIllegal
	}
}

// classifyLoadStore handles the loads and stores group, op0 = x1x0.
func classifyLoadStore(word uint32) Class {
	op0 := Field(word, 31, 28)
	op1 := Bit(word, 26)
	op2 := Field(word, 24, 23)
	op3 := Field(word, 21, 16)
	op4 := Field(word, 11, 10)

	switch {
	case op0&0b1011 == 0b0000 && op1 == 1:
		switch {
		case op2 == 0b00 && op3 == 0:
			return ClassSIMDLoadStoreMulti
		case op2 == 0b01 && op3>>5 == 0:
			return ClassSIMDLoadStoreMulti
		case op2 == 0b10 && op3&0b011111 == 0:
			return ClassSIMDLoadStoreSingle
		case op2 == 0b11:
			return ClassSIMDLoadStoreSingle
		default:
			return ClassIllegal
		}
	case op0&0b0011 == 0b0000 && op1 == 0 && op2>>1 == 0:
		return classifyExclusive(word)
	case op0&0b0011 == 0b0001 && op2>>1 == 0:
		return ClassLoadLiteral
	case op0&0b0011 == 0b0010:
		return ClassLoadStorePair
	case op0&0b0011 == 0b0011:
		switch {
		case op2>>1 == 1:
			return ClassLoadStoreImm
		case op3>>5 == 0:
			return ClassLoadStoreImm
		case op4 == 0b00:
			return ClassAtomic
		case op4 == 0b10:
			return ClassLoadStoreRegOffset
		default:
			// LDRAA/LDRAB need FEAT_PAuth.
			return ClassIllegal
		}
	default:
		// Includes the memory tagging and RCpc unscaled rows.
		return ClassIllegal
	}
}

// classifyExclusive splits the exclusive/ordered/compare-and-swap rows on
// o2 (bit 23) and o1 (bit 21).
func classifyExclusive(word uint32) Class {
	o2 := Bit(word, 23)
	o1 := Bit(word, 21)

	switch {
	case o2 == 0 && o1 == 0:
		return ClassLoadStoreExclusive
	case o2 == 0 && o1 == 1:
		if Bit(word, 31) == 1 {
			return ClassLoadStoreExclusive // LDXP/STXP
		}
		return ClassCompareSwap // CASP
	case o2 == 1 && o1 == 0:
		return ClassLoadStoreOrdered
	default:
		return ClassCompareSwap
	}
}

// classifyDPReg handles data processing (register), op0 = x101.
func classifyDPReg(word uint32) Class {
	op0 := Bit(word, 30)
	op1 := Bit(word, 28)
	op2 := Field(word, 24, 21)
	op3 := Field(word, 15, 10)

	if op1 == 0 {
		switch {
		case op2>>3 == 0:
			return ClassLogicalShifted
		case op2&0b1001 == 0b1000:
			return ClassAddSubShifted
		default:
			return ClassAddSubExtended
		}
	}

	switch {
	case op2 == 0b0110:
		if op0 == 0 {
			return ClassDataProc2Src
		}
		return ClassDataProc1Src
	case op2 == 0b0000:
		switch {
		case op3 == 0:
			return ClassAddSubCarry
		case op3&0b011111 == 0b000001:
			return ClassFlagManip // RMIF
		case op3&0b001111 == 0b000010:
			return ClassFlagManip // SETF8, SETF16
		default:
			return ClassIllegal
		}
	case op2 == 0b0010:
		return ClassCondCompare
	case op2 == 0b0100:
		return ClassCondSelect
	case op2>>3 == 1:
		return ClassDataProc3Src
	default:
		return ClassIllegal
	}
}

// classifySIMDFP handles the SIMD and floating-point group, op0 = x111.
func classifySIMDFP(word uint32) Class {
	op0 := Field(word, 31, 28)
	op1 := Field(word, 24, 23)
	op2 := Field(word, 22, 19)
	op3 := Field(word, 18, 10)

	switch {
	case op0 == 0b1100:
		return ClassCrypto
	case op0ScalarFP.match(op0):
		return classifyScalarFP(op1, op2, op3)
	case op0Vector.match(op0):
		return classifyVector(op0, op1, op2, op3)
	case op0Scalar.match(op0):
		return classifyScalarSIMD(op0, op1, op2, op3)
	default:
		return ClassIllegal
	}
}

func classifyScalarFP(op1, op2, op3 uint32) Class {
	if op1>>1 == 1 {
		return ClassFPDataProc3
	}
	if op2LowerHalf.match(op2) {
		return ClassFPFixedConv
	}

	switch {
	case op3FPIntConv.match(op3):
		return ClassFPIntConv
	case op3FP1Src.match(op3):
		return ClassFPDataProc1
	case op3FPCompare.match(op3):
		return ClassFPCompare
	case op3FPImm.match(op3):
		return ClassFPImm
	case op3&0b11 == 0b01:
		return ClassFPCondCompare
	case op3&0b11 == 0b10:
		return ClassFPDataProc2
	case op3&0b11 == 0b11:
		return ClassFPCondSelect
	default:
		return ClassIllegal
	}
}

func classifyVector(op0, op1, op2, op3 uint32) Class {
	low := op1>>1 == 0

	switch {
	case op0 == 0b0100 && low && op2CryptoTwoReg.match(op2) && op3Misc.match(op3):
		return ClassCrypto // AES
	case op0TableOrPermute.match(op0) && low && op2LowerHalf.match(op2) && op3TableLookup.match(op3):
		return ClassSIMDTableLookup
	case op0TableOrPermute.match(op0) && low && op2LowerHalf.match(op2) && op3Permute.match(op3):
		return ClassSIMDPermute
	case op0Extract.match(op0) && low && op2LowerHalf.match(op2) && op3Extract.match(op3):
		return ClassSIMDExtract
	case op1 == 0b00 && op2>>2 == 0b00 && op3Copy.match(op3):
		return ClassSIMDCopy
	case low && op2ExtFP16ThreeSame.match(op2) && op3Copy.match(op3):
		return ClassSIMDExtension
	case low && op2 == 0b1111 && op3Misc.match(op3):
		return ClassSIMDExtension
	case low && op2LowerHalf.match(op2) && op3ThreeExtra.match(op3):
		return ClassSIMDExtension
	case low && op2TwoRegMisc.match(op2) && op3Misc.match(op3):
		return ClassSIMDTwoRegMisc
	case low && op2AcrossLanes.match(op2) && op3Misc.match(op3):
		return ClassSIMDAcrossLanes
	case low && op2UpperHalf.match(op2) && op3ThreeDiff.match(op3):
		return ClassSIMDThreeDiff
	case low && op2UpperHalf.match(op2) && op3&1 == 1:
		return ClassSIMDThreeSame
	case op1 == 0b10 && op3&1 == 1:
		if op2 == 0 {
			return ClassSIMDModImm
		}
		return ClassSIMDShiftImm
	case op1>>1 == 1 && op3&1 == 0:
		return ClassSIMDByElement
	default:
		return ClassIllegal
	}
}

func classifyScalarSIMD(op0, op1, op2, op3 uint32) Class {
	low := op1>>1 == 0

	switch {
	case op0 == 0b0101 && low && op2LowerHalf.match(op2) && op3TableLookup.match(op3):
		return ClassCrypto // SHA three-register
	case op0 == 0b0101 && low && op2CryptoTwoReg.match(op2) && op3Misc.match(op3):
		return ClassCrypto // SHA two-register
	case op1 == 0b00 && op2>>2 == 0b00 && op3Copy.match(op3):
		return ClassSIMDScalarCopy
	case low && op2ExtFP16ThreeSame.match(op2) && op3Copy.match(op3):
		return ClassSIMDExtension
	case low && op2 == 0b1111 && op3Misc.match(op3):
		return ClassSIMDExtension
	case low && op2LowerHalf.match(op2) && op3ThreeExtra.match(op3):
		return ClassSIMDExtension
	case low && op2TwoRegMisc.match(op2) && op3Misc.match(op3):
		return ClassSIMDScalarTwoRegMisc
	case low && op2AcrossLanes.match(op2) && op3Misc.match(op3):
		return ClassSIMDScalarPairwise
	case low && op2UpperHalf.match(op2) && op3ThreeDiff.match(op3):
		return ClassSIMDScalarThreeDiff
	case low && op2UpperHalf.match(op2) && op3&1 == 1:
		return ClassSIMDScalarThreeSame
	case op1 == 0b10 && op3&1 == 1:
		return ClassSIMDScalarShiftImm
	case op1>>1 == 1 && op3&1 == 0:
		return ClassSIMDScalarByElement
	default:
		return ClassIllegal
	}
}
