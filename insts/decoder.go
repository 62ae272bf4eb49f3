// Package insts provides ARM64 instruction field access and classification.
package insts

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

// Instruction is a classified ARM64 instruction word.
type Instruction struct {
	Word  uint32 // Raw instruction word, never modified
	Class Class  // Translator class
}

// Decoder classifies ARM64 machine code.
type Decoder struct{}

// NewDecoder creates a new ARM64 instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode classifies a 32-bit ARM64 instruction word.
func (d *Decoder) Decode(word uint32) *Instruction {
	return &Instruction{Word: word, Class: Classify(word)}
}

// Disassemble renders word in GNU syntax. Words the disassembler does not
// know are rendered as ".inst 0x...".
func Disassemble(word uint32) string {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], word)

	inst, err := arm64asm.Decode(buf[:])
	if err != nil {
		return fmt.Sprintf(".inst 0x%08x", word)
	}
	return strings.TrimSpace(arm64asm.GNUSyntax(inst))
}
