package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
)

var _ = Describe("Flags", func() {
	Describe("Flag computation", func() {
		It("should overflow ADDS at 64 bits", func() {
			f := emu.AddFlags64(0x7FFFFFFFFFFFFFFF, 1)
			Expect(f.N()).To(BeTrue())
			Expect(f.Z()).To(BeFalse())
			Expect(f.C()).To(BeFalse())
			Expect(f.V()).To(BeTrue())
			Expect(f.Nibble()).To(Equal(uint32(0b1001)))
		})

		It("should carry out of bit 31 for 32-bit adds only", func() {
			f32 := emu.AddFlags32(0xFFFFFFFF, 1)
			Expect(f32.C()).To(BeTrue())
			Expect(f32.Z()).To(BeTrue())

			f64 := emu.AddFlags64(0xFFFFFFFF, 1)
			Expect(f64.C()).To(BeFalse())
			Expect(f64.Z()).To(BeFalse())
		})

		It("should set C on subtraction without borrow", func() {
			Expect(emu.SubFlags64(5, 3).C()).To(BeTrue())
			Expect(emu.SubFlags64(3, 5).C()).To(BeFalse())
			Expect(emu.SubFlags64(3, 5).N()).To(BeTrue())

			eq := emu.SubFlags32(7, 7)
			Expect(eq.Z()).To(BeTrue())
			Expect(eq.C()).To(BeTrue())
		})

		It("should overflow when subtracting from the minimum", func() {
			f := emu.SubFlags32(0x80000000, 1)
			Expect(f.V()).To(BeTrue())
			Expect(f.N()).To(BeFalse())
		})

		It("should use the prior carry for ADC and SBC", func() {
			withC := emu.MakeFlags(false, false, true, false)

			Expect(emu.AdcFlags64(0xFFFFFFFFFFFFFFFF, 0, withC).Z()).To(BeTrue())
			Expect(emu.AdcFlags64(0xFFFFFFFFFFFFFFFF, 0, 0).Z()).To(BeFalse())

			// 5 - 5 - !C: borrows when C is clear.
			Expect(emu.SbcFlags32(5, 5, withC).Z()).To(BeTrue())
			Expect(emu.SbcFlags32(5, 5, 0).N()).To(BeTrue())
			Expect(emu.SbcFlags32(5, 5, 0).C()).To(BeFalse())
		})

		It("should clear C and V for logical results", func() {
			f := emu.LogicFlags64(0x8000000000000000)
			Expect(f.Nibble()).To(Equal(uint32(0b1000)))
			Expect(emu.LogicFlags32(0).Nibble()).To(Equal(uint32(0b0100)))
		})

		It("should round-trip the packed layout", func() {
			f := emu.FlagsFromNZCV(0b0110)
			Expect(uint32(f)).To(Equal(uint32(0x60000000)))
			Expect(f.Z()).To(BeTrue())
			Expect(f.C()).To(BeTrue())
		})
	})

	Describe("ConditionHolds", func() {
		// Reference truth table, written per condition from the flag
		// definitions rather than from the base/invert split.
		reference := map[insts.Cond]func(n, z, c, v bool) bool{
			insts.CondEQ: func(n, z, c, v bool) bool { return z },
			insts.CondNE: func(n, z, c, v bool) bool { return !z },
			insts.CondCS: func(n, z, c, v bool) bool { return c },
			insts.CondCC: func(n, z, c, v bool) bool { return !c },
			insts.CondMI: func(n, z, c, v bool) bool { return n },
			insts.CondPL: func(n, z, c, v bool) bool { return !n },
			insts.CondVS: func(n, z, c, v bool) bool { return v },
			insts.CondVC: func(n, z, c, v bool) bool { return !v },
			insts.CondHI: func(n, z, c, v bool) bool { return c && !z },
			insts.CondLS: func(n, z, c, v bool) bool { return !c || z },
			insts.CondGE: func(n, z, c, v bool) bool { return n == v },
			insts.CondLT: func(n, z, c, v bool) bool { return n != v },
			insts.CondGT: func(n, z, c, v bool) bool { return !z && n == v },
			insts.CondLE: func(n, z, c, v bool) bool { return z || n != v },
			insts.CondAL: func(n, z, c, v bool) bool { return true },
			insts.CondNV: func(n, z, c, v bool) bool { return true },
		}

		It("should match the full 16x16 table", func() {
			for cond := insts.Cond(0); cond < 16; cond++ {
				for nzcv := uint32(0); nzcv < 16; nzcv++ {
					f := emu.FlagsFromNZCV(nzcv)
					want := reference[cond](f.N(), f.Z(), f.C(), f.V())
					Expect(emu.ConditionHolds(cond, f)).To(Equal(want),
						"cond %v nzcv %04b", cond, nzcv)
				}
			}
		})

		It("should invert every pair except AL/NV", func() {
			for cond := insts.Cond(0); cond < 14; cond += 2 {
				for nzcv := uint32(0); nzcv < 16; nzcv++ {
					f := emu.FlagsFromNZCV(nzcv)
					Expect(emu.ConditionHolds(cond, f)).
						NotTo(Equal(emu.ConditionHolds(cond.Invert(), f)))
				}
			}
			Expect(insts.CondNV.Invert()).To(Equal(insts.CondNV))
		})
	})
})
