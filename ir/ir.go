// Package ir defines the architecture-neutral intermediate representation
// produced by translation.
//
// Translators drive an ir.Builder; ir.Block is the recording implementation
// consumed by backends. Values are SSA-like handles: each is produced once,
// carries a fixed width and is never redefined.
package ir

import "fmt"

// Width is the bit width of an IR value.
type Width uint8

// Value widths.
const (
	W8  Width = 8
	W16 Width = 16
	W32 Width = 32
	W64 Width = 64
)

// Valid reports whether w is one of the four IR widths.
func (w Width) Valid() bool {
	switch w {
	case W8, W16, W32, W64:
		return true
	}
	return false
}

// Bytes returns the width in bytes.
func (w Width) Bytes() int { return int(w) / 8 }

// Mask returns a mask of the low w bits.
func (w Width) Mask() uint64 {
	if w >= W64 {
		return ^uint64(0)
	}
	return uint64(1)<<w - 1
}

func (w Width) String() string { return fmt.Sprintf("i%d", uint8(w)) }

// WidthOfBytes returns the width of a size-byte access.
func WidthOfBytes(size int) Width {
	return Width(size * 8)
}

// Value is an opaque handle to a value produced by a Builder. The zero
// Value is "no value".
type Value struct {
	id int32
}

// NoValue is returned by operations without a result.
var NoValue = Value{}

// Valid reports whether v refers to a produced value.
func (v Value) Valid() bool { return v.id > 0 }

// Index returns the dense, zero-based index of v within its block.
func (v Value) Index() int { return int(v.id) - 1 }

func (v Value) String() string {
	if !v.Valid() {
		return "_"
	}
	return fmt.Sprintf("v%d", v.Index())
}

// Offset is a byte offset into the guest register file.
type Offset int

// BinOp is a two-operand operation. Shift and rotate amounts are taken
// modulo the operation width.
type BinOp uint8

// Binary operations.
const (
	Add BinOp = iota
	Sub
	Mul
	And
	Or
	Xor
	AndNot // a &^ b
	Shl
	LShr
	AShr
	Ror
	numBinOps
)

var binOpNames = [numBinOps]string{
	"add", "sub", "mul", "and", "or", "xor", "andn", "shl", "lshr", "ashr", "ror",
}

func (op BinOp) String() string {
	if op >= numBinOps {
		return "binop(?)"
	}
	return binOpNames[op]
}

// UnOp is a one-operand operation.
type UnOp uint8

// Unary operations.
const (
	Not UnOp = iota
	Neg
)

func (op UnOp) String() string {
	if op == Neg {
		return "neg"
	}
	return "not"
}

// Pred is an integer comparison predicate.
type Pred uint8

// Comparison predicates.
const (
	Eq Pred = iota
	Ne
	Ult
	Ule
	Ugt
	Uge
	Slt
	Sle
	Sgt
	Sge
	numPreds
)

var predNames = [numPreds]string{
	"eq", "ne", "ult", "ule", "ugt", "uge", "slt", "sle", "sgt", "sge",
}

func (p Pred) String() string {
	if p >= numPreds {
		return "pred(?)"
	}
	return predNames[p]
}

// Ret is the result kind of a helper call.
type Ret uint8

// Helper result kinds.
const (
	RetNone Ret = iota
	Ret32
	Ret64
)

// Width returns the width of the call result. RetNone has width 0.
func (r Ret) Width() Width {
	switch r {
	case Ret32:
		return W32
	case Ret64:
		return W64
	}
	return 0
}

func (r Ret) String() string {
	switch r {
	case Ret32:
		return "i32"
	case Ret64:
		return "i64"
	}
	return "void"
}

// MaxCallArgs is the most arguments a helper call can take.
const MaxCallArgs = 4
