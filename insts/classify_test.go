package insts_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/a64dbt/insts"
)

var _ = Describe("Classify", func() {
	DescribeTable("data processing (immediate)",
		func(word uint32, want insts.Class) {
			Expect(insts.Classify(word)).To(Equal(want))
		},
		Entry("ADD X0, X1, #10", uint32(0x91002820), insts.ClassAddSubImm),
		Entry("ADR X0, .", uint32(0x10000000), insts.ClassPCRel),
		Entry("ADRP X0, .", uint32(0x90000000), insts.ClassPCRel),
		Entry("AND X0, X1, #0xff", uint32(0x92401C20), insts.ClassLogicalImm),
		Entry("MOVZ X0, #1", uint32(0xD2800020), insts.ClassMoveWide),
		Entry("LSR X0, X1, #4", uint32(0xD344FC20), insts.ClassBitfield),
		Entry("EXTR X0, X1, X2, #8", uint32(0x93C22020), insts.ClassExtract),
	)

	DescribeTable("branches and system",
		func(word uint32, want insts.Class) {
			Expect(insts.Classify(word)).To(Equal(want))
		},
		Entry("B .", uint32(0x14000000), insts.ClassBranchImm),
		Entry("BL .", uint32(0x94000000), insts.ClassBranchImm),
		Entry("B.EQ .", uint32(0x54000000), insts.ClassCondBranch),
		Entry("CBZ X0, .", uint32(0xB4000000), insts.ClassCompareBranch),
		Entry("TBZ W0, #0, .", uint32(0x36000000), insts.ClassTestBranch),
		Entry("RET", uint32(0xD65F03C0), insts.ClassBranchReg),
		Entry("SVC #0", uint32(0xD4000001), insts.ClassExceptionGen),
		Entry("BRK #1", uint32(0xD4200020), insts.ClassExceptionGen),
		Entry("NOP", uint32(0xD503201F), insts.ClassHint),
		Entry("CLREX", uint32(0xD503305F), insts.ClassBarrier),
		Entry("DMB ISH", uint32(0xD5033BBF), insts.ClassBarrier),
		Entry("DSB SY", uint32(0xD5033F9F), insts.ClassBarrier),
		Entry("ISB", uint32(0xD5033FDF), insts.ClassBarrier),
		Entry("CFINV", uint32(0xD500401F), insts.ClassPState),
		Entry("DC ZVA, X0", uint32(0xD50B7420), insts.ClassSysInstr),
		Entry("IC IVAU, X0", uint32(0xD50B7520), insts.ClassSysInstr),
		Entry("MRS X0, NZCV", uint32(0xD53B4200), insts.ClassSysReg),
		Entry("MSR NZCV, X0", uint32(0xD51B4200), insts.ClassSysReg),
	)

	DescribeTable("loads and stores",
		func(word uint32, want insts.Class) {
			Expect(insts.Classify(word)).To(Equal(want))
		},
		Entry("LDXR X0, [X1]", uint32(0xC85F7C20), insts.ClassLoadStoreExclusive),
		Entry("STXR W2, X0, [X1]", uint32(0xC8027C20), insts.ClassLoadStoreExclusive),
		Entry("LDXP X0, X1, [X2]", uint32(0xC87F0440), insts.ClassLoadStoreExclusive),
		Entry("LDAR X0, [X1]", uint32(0xC8DFFC20), insts.ClassLoadStoreOrdered),
		Entry("STLR X0, [X1]", uint32(0xC89FFC20), insts.ClassLoadStoreOrdered),
		Entry("CAS X0, X1, [X2]", uint32(0xC8A07C41), insts.ClassCompareSwap),
		Entry("CASP W0, W1, W2, W3, [X4]", uint32(0x48207C82), insts.ClassCompareSwap),
		Entry("LDR X0, literal", uint32(0x58000000), insts.ClassLoadLiteral),
		Entry("LDR S0, literal", uint32(0x1C000000), insts.ClassLoadLiteral),
		Entry("LDP X0, X1, [SP]", uint32(0xA94007E0), insts.ClassLoadStorePair),
		Entry("STP X29, X30, [SP, #-16]!", uint32(0xA9BF7BFD), insts.ClassLoadStorePair),
		Entry("LDR X0, [X1]", uint32(0xF9400020), insts.ClassLoadStoreImm),
		Entry("LDUR X0, [X1, #-8]", uint32(0xF85F8020), insts.ClassLoadStoreImm),
		Entry("LDR X0, [X1], #8", uint32(0xF8408420), insts.ClassLoadStoreImm),
		Entry("LDR X0, [X1, X2]", uint32(0xF8626820), insts.ClassLoadStoreRegOffset),
		Entry("LDADD X0, X1, [X2]", uint32(0xF8200041), insts.ClassAtomic),
		Entry("SWP X0, X1, [X2]", uint32(0xF8208041), insts.ClassAtomic),
		Entry("LD1 {V0.16B}, [X0]", uint32(0x4C407000), insts.ClassSIMDLoadStoreMulti),
		Entry("LD1 {V0.16B}, [X0], #16", uint32(0x4CDF7000), insts.ClassSIMDLoadStoreMulti),
		Entry("LD1 {V0.B}[0], [X0]", uint32(0x0D400000), insts.ClassSIMDLoadStoreSingle),
		Entry("LD1R {V0.16B}, [X0]", uint32(0x4D40C000), insts.ClassSIMDLoadStoreSingle),
	)

	DescribeTable("data processing (register)",
		func(word uint32, want insts.Class) {
			Expect(insts.Classify(word)).To(Equal(want))
		},
		Entry("AND X0, X1, X2", uint32(0x8A020020), insts.ClassLogicalShifted),
		Entry("ADDS X0, X1, X2", uint32(0xAB020020), insts.ClassAddSubShifted),
		Entry("ADD X0, X1, W2, UXTW", uint32(0x8B224020), insts.ClassAddSubExtended),
		Entry("ADC X0, X1, X2", uint32(0x9A020020), insts.ClassAddSubCarry),
		Entry("SETF8 W0", uint32(0x3A00080D), insts.ClassFlagManip),
		Entry("CCMP X0, X1, #0, EQ", uint32(0xFA410000), insts.ClassCondCompare),
		Entry("CSEL X0, X1, X2, EQ", uint32(0x9A820020), insts.ClassCondSelect),
		Entry("CLZ X0, X1", uint32(0xDAC01020), insts.ClassDataProc1Src),
		Entry("UDIV X0, X1, X2", uint32(0x9AC20820), insts.ClassDataProc2Src),
		Entry("MADD X0, X1, X2, X3", uint32(0x9B020C20), insts.ClassDataProc3Src),
	)

	DescribeTable("scalar floating point",
		func(word uint32, want insts.Class) {
			Expect(insts.Classify(word)).To(Equal(want))
		},
		Entry("FADD S0, S1, S2", uint32(0x1E222820), insts.ClassFPDataProc2),
		Entry("FADD D0, D1, D2", uint32(0x1E622820), insts.ClassFPDataProc2),
		Entry("FMADD S0, S1, S2, S3", uint32(0x1F020C20), insts.ClassFPDataProc3),
		Entry("FCMP S0, S1", uint32(0x1E212000), insts.ClassFPCompare),
		Entry("FMOV S0, #1.0", uint32(0x1E2E1000), insts.ClassFPImm),
		Entry("FSQRT D0, D1", uint32(0x1E61C020), insts.ClassFPDataProc1),
		Entry("FCVTZS X0, D0", uint32(0x9E780000), insts.ClassFPIntConv),
		Entry("SCVTF D0, X0", uint32(0x9E620000), insts.ClassFPIntConv),
		Entry("SCVTF D0, X0, #16", uint32(0x9E42C000), insts.ClassFPFixedConv),
		Entry("FCSEL S0, S1, S2, EQ", uint32(0x1E220C20), insts.ClassFPCondSelect),
		Entry("FCCMP S1, S2, #0, EQ", uint32(0x1E220420), insts.ClassFPCondCompare),
	)

	DescribeTable("advanced SIMD",
		func(word uint32, want insts.Class) {
			Expect(insts.Classify(word)).To(Equal(want))
		},
		Entry("ADD V0.16B, V1.16B, V2.16B", uint32(0x4E228420), insts.ClassSIMDThreeSame),
		Entry("SADDL V0.8H, V1.8B, V2.8B", uint32(0x0E220020), insts.ClassSIMDThreeDiff),
		Entry("CNT V0.8B, V1.8B", uint32(0x0E205820), insts.ClassSIMDTwoRegMisc),
		Entry("ADDV B0, V1.16B", uint32(0x4E31B820), insts.ClassSIMDAcrossLanes),
		Entry("DUP V0.4S, W1", uint32(0x4E040C20), insts.ClassSIMDCopy),
		Entry("UMOV W0, V1.S[1]", uint32(0x0E0C3C20), insts.ClassSIMDCopy),
		Entry("MUL V0.4S, V1.4S, V2.S[0]", uint32(0x4F828020), insts.ClassSIMDByElement),
		Entry("SSHR V0.4S, V1.4S, #1", uint32(0x4F3F0420), insts.ClassSIMDShiftImm),
		Entry("MOVI V0.16B, #0", uint32(0x4F00E400), insts.ClassSIMDModImm),
		Entry("ZIP1 V0.16B, V1.16B, V2.16B", uint32(0x4E023820), insts.ClassSIMDPermute),
		Entry("EXT V0.16B, V1.16B, V2.16B, #3", uint32(0x6E021820), insts.ClassSIMDExtract),
		Entry("TBL V0.16B, {V1.16B}, V2.16B", uint32(0x4E020020), insts.ClassSIMDTableLookup),
		Entry("ADD D0, D1, D2", uint32(0x5EE28420), insts.ClassSIMDScalarThreeSame),
		Entry("ADDP D0, V1.2D", uint32(0x5EF1B820), insts.ClassSIMDScalarPairwise),
		Entry("DUP S0, V1.S[1]", uint32(0x5E0C0420), insts.ClassSIMDScalarCopy),
		Entry("SSHR D0, D1, #1", uint32(0x5F7F0420), insts.ClassSIMDScalarShiftImm),
		Entry("AESE V0.16B, V1.16B", uint32(0x4E284820), insts.ClassCrypto),
	)

	Describe("illegal and reserved words", func() {
		It("should classify UDF #0 as illegal", func() {
			Expect(insts.Classify(0x00000000)).To(Equal(insts.ClassIllegal))
		})

		It("should reject B.cond with bit 4 set", func() {
			Expect(insts.Classify(0x54000010)).To(Equal(insts.ClassIllegal))
		})

		It("should route the SVE group to its own class", func() {
			Expect(insts.Classify(0x04000000)).To(Equal(insts.ClassSVE))
		})
	})

	Describe("breakpoint marker", func() {
		It("should route BreakpointWord to the breakpoint class", func() {
			Expect(insts.Classify(insts.BreakpointWord)).To(Equal(insts.ClassBreakpoint))
			Expect(insts.ClassBreakpoint.Terminal()).To(BeTrue())
		})

		It("should not treat other BRK immediates as the marker", func() {
			Expect(insts.Classify(insts.BreakpointWord | 1<<5)).To(Equal(insts.ClassExceptionGen))
		})
	})

	Describe("totality", func() {
		It("should map every word to a known class, deterministically", func() {
			r := rand.New(rand.NewSource(42))
			for i := 0; i < 100000; i++ {
				w := r.Uint32()
				c := insts.Classify(w)
				Expect(c).To(BeNumerically("<", insts.NumClasses))
				Expect(insts.Classify(w)).To(Equal(c))
			}
		})

		It("should give every class a name", func() {
			for c := insts.Class(0); c < insts.NumClasses; c++ {
				Expect(c.String()).NotTo(BeEmpty())
			}
		})
	})
})

var _ = Describe("Decoder", func() {
	It("should keep the raw word alongside the class", func() {
		inst := insts.NewDecoder().Decode(0x91002820)

		Expect(inst.Word).To(Equal(uint32(0x91002820)))
		Expect(inst.Class).To(Equal(insts.ClassAddSubImm))
	})

	It("should disassemble known words", func() {
		Expect(insts.Disassemble(0xD503201F)).To(Equal("nop"))
	})

	It("should always render something", func() {
		for _, w := range []uint32{0x00000000, 0xFFFFFFFF, 0x04000000} {
			Expect(insts.Disassemble(w)).NotTo(BeEmpty())
		}
	})
})

var _ = Describe("DecodeError", func() {
	It("should name the word and the PC", func() {
		err := insts.Illegal(0x00000000, 0x4000, "")

		Expect(err.Kind).To(Equal(insts.ErrIllegal))
		Expect(err.Error()).To(ContainSubstring("0x00000000"))
		Expect(err.Error()).To(ContainSubstring("PC=0x4000"))
	})

	It("should carry the class of unsupported words", func() {
		err := insts.Unsupported(0x4E284820, 0, "crypto")

		Expect(err.Class).To(Equal(insts.ClassCrypto))
		Expect(err.Error()).To(ContainSubstring("unsupported"))
	})
})
