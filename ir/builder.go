// Package ir defines the intermediate representation produced by translation.
package ir

// Builder is the contract translators use to emit IR. Widths flow from the
// operands: binary operands, select arms and register writes must agree in
// width with what they combine or replace. Misuse is a programming error
// and implementations panic.
type Builder interface {
	// BeginInstruction marks the start of the guest instruction at pc.
	BeginInstruction(pc uint64, word uint32)

	Const(w Width, v uint64) Value
	ReadReg(off Offset, w Width) Value
	WriteReg(off Offset, v Value)

	Binary(op BinOp, a, b Value) Value
	Unary(op UnOp, a Value) Value
	ZeroExtend(v Value, to Width) Value
	SignExtend(v Value, to Width) Value
	Truncate(v Value, to Width) Value

	// Compare yields an i8 that is 1 when the predicate holds.
	Compare(p Pred, a, b Value) Value
	// Select yields a when cond is nonzero and b otherwise.
	Select(cond, a, b Value) Value

	// Load reads w bits at the guest address addr (an i64).
	Load(w Width, addr Value) Value
	// Store writes v at the guest address addr.
	Store(addr, v Value)

	// Call invokes a helper with at most MaxCallArgs arguments, each
	// zero-extended to 64 bits. It returns NoValue for RetNone.
	Call(h HelperID, ret Ret, args ...Value) Value

	// ExitIf leaves the block for target when cond is nonzero. It must be
	// followed directly by Exit, the fallthrough.
	ExitIf(cond, target Value)
	// Exit terminates the block; control continues at target (an i64).
	Exit(target Value)
}
