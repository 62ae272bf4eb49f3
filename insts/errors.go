// Package insts provides ARM64 instruction field access and classification.
package insts

import "fmt"

// ErrorKind distinguishes the two fatal decode outcomes.
type ErrorKind uint8

// Decode error kinds.
const (
	// ErrIllegal marks an unallocated or reserved encoding.
	ErrIllegal ErrorKind = iota + 1
	// ErrUnsupported marks a real encoding this core does not implement.
	ErrUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case ErrIllegal:
		return "illegal instruction"
	case ErrUnsupported:
		return "unsupported instruction"
	default:
		return "decode error"
	}
}

// DecodeError reports an instruction word that cannot be translated. It is
// fatal to the translation that produced it.
type DecodeError struct {
	Kind   ErrorKind
	Word   uint32
	PC     uint64
	Class  Class
	Detail string
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("%v 0x%08X (%s) at PC=0x%X", e.Kind, e.Word, Disassemble(e.Word), e.PC)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Illegal builds an ErrIllegal error.
func Illegal(word uint32, pc uint64, detail string) *DecodeError {
	return &DecodeError{Kind: ErrIllegal, Word: word, PC: pc, Class: Classify(word), Detail: detail}
}

// Unsupported builds an ErrUnsupported error.
func Unsupported(word uint32, pc uint64, detail string) *DecodeError {
	return &DecodeError{Kind: ErrUnsupported, Word: word, PC: pc, Class: Classify(word), Detail: detail}
}
