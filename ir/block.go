// Package ir defines the intermediate representation produced by translation.
package ir

import (
	"fmt"
	"strings"
)

// Op is the kind of a recorded IR instruction.
type Op uint8

// Instruction kinds.
const (
	OpGuest Op = iota
	OpConst
	OpReadReg
	OpWriteReg
	OpBinary
	OpUnary
	OpZeroExtend
	OpSignExtend
	OpTruncate
	OpCompare
	OpSelect
	OpLoad
	OpStore
	OpCall
	OpExitIf
	OpExit
)

// Inst is one recorded IR instruction. Only the fields relevant to Op are
// set.
type Inst struct {
	Op    Op
	Dst   Value
	Width Width // result width, or the width written by stores
	Args  []Value

	Imm    uint64 // OpConst value, OpGuest PC
	Word   uint32 // OpGuest instruction word
	Offset Offset
	Bin    BinOp
	Un     UnOp
	Pred   Pred
	Helper HelperID
	Ret    Ret
}

// Block records the IR of one translation unit. It implements Builder.
type Block struct {
	PC uint64

	Insts []Inst

	// NumInstructions and Length count the guest instructions covered.
	NumInstructions int
	Length          uint64

	// RegName, when set, renders register-file offsets in String.
	RegName func(Offset) string

	widths     []Width
	terminated bool
	pendingIf  bool
}

var _ Builder = (*Block)(nil)

// NewBlock starts an empty block for guest address pc.
func NewBlock(pc uint64) *Block {
	return &Block{PC: pc}
}

// Terminated reports whether Exit has been emitted.
func (b *Block) Terminated() bool { return b.terminated }

// NumValues returns the number of values defined so far.
func (b *Block) NumValues() int { return len(b.widths) }

// WidthOf returns the width of v.
func (b *Block) WidthOf(v Value) Width {
	b.check(v)
	return b.widths[v.Index()]
}

func (b *Block) check(vs ...Value) {
	for _, v := range vs {
		if !v.Valid() || v.Index() >= len(b.widths) {
			panic(fmt.Sprintf("ir: value %v not defined in block 0x%x", v, b.PC))
		}
	}
}

func (b *Block) emit(inst Inst) {
	if b.terminated {
		panic(fmt.Sprintf("ir: %v emitted after block 0x%x exited", inst.Op, b.PC))
	}
	if b.pendingIf && inst.Op != OpExit {
		panic(fmt.Sprintf("ir: %v between exit_if and exit in block 0x%x", inst.Op, b.PC))
	}
	b.Insts = append(b.Insts, inst)
}

func (b *Block) define(inst Inst, w Width) Value {
	if !w.Valid() {
		panic(fmt.Sprintf("ir: invalid width %d", w))
	}
	b.widths = append(b.widths, w)
	inst.Dst = Value{id: int32(len(b.widths))}
	inst.Width = w
	b.emit(inst)
	return inst.Dst
}

func (b *Block) sameWidth(a, c Value) Width {
	b.check(a, c)
	wa, wc := b.widths[a.Index()], b.widths[c.Index()]
	if wa != wc {
		panic(fmt.Sprintf("ir: width mismatch %v:%v vs %v:%v", a, wa, c, wc))
	}
	return wa
}

// BeginInstruction implements Builder.
func (b *Block) BeginInstruction(pc uint64, word uint32) {
	b.emit(Inst{Op: OpGuest, Imm: pc, Word: word})
	b.NumInstructions++
	b.Length += 4
}

// Const implements Builder.
func (b *Block) Const(w Width, v uint64) Value {
	return b.define(Inst{Op: OpConst, Imm: v & w.Mask()}, w)
}

// ReadReg implements Builder.
func (b *Block) ReadReg(off Offset, w Width) Value {
	return b.define(Inst{Op: OpReadReg, Offset: off}, w)
}

// WriteReg implements Builder.
func (b *Block) WriteReg(off Offset, v Value) {
	b.check(v)
	b.emit(Inst{Op: OpWriteReg, Offset: off, Width: b.widths[v.Index()], Args: []Value{v}})
}

// Binary implements Builder.
func (b *Block) Binary(op BinOp, x, y Value) Value {
	w := b.sameWidth(x, y)
	return b.define(Inst{Op: OpBinary, Bin: op, Args: []Value{x, y}}, w)
}

// Unary implements Builder.
func (b *Block) Unary(op UnOp, x Value) Value {
	return b.define(Inst{Op: OpUnary, Un: op, Args: []Value{x}}, b.WidthOf(x))
}

func (b *Block) resize(op Op, v Value, to Width, widen bool) Value {
	from := b.WidthOf(v)
	if widen && to < from || !widen && to > from {
		panic(fmt.Sprintf("ir: cannot %v %v from %v to %v", op, v, from, to))
	}
	return b.define(Inst{Op: op, Args: []Value{v}}, to)
}

// ZeroExtend implements Builder.
func (b *Block) ZeroExtend(v Value, to Width) Value {
	return b.resize(OpZeroExtend, v, to, true)
}

// SignExtend implements Builder.
func (b *Block) SignExtend(v Value, to Width) Value {
	return b.resize(OpSignExtend, v, to, true)
}

// Truncate implements Builder.
func (b *Block) Truncate(v Value, to Width) Value {
	return b.resize(OpTruncate, v, to, false)
}

// Compare implements Builder.
func (b *Block) Compare(p Pred, x, y Value) Value {
	b.sameWidth(x, y)
	return b.define(Inst{Op: OpCompare, Pred: p, Args: []Value{x, y}}, W8)
}

// Select implements Builder.
func (b *Block) Select(cond, x, y Value) Value {
	b.check(cond)
	w := b.sameWidth(x, y)
	return b.define(Inst{Op: OpSelect, Args: []Value{cond, x, y}}, w)
}

// Load implements Builder.
func (b *Block) Load(w Width, addr Value) Value {
	b.checkAddr(addr)
	return b.define(Inst{Op: OpLoad, Args: []Value{addr}}, w)
}

// Store implements Builder.
func (b *Block) Store(addr, v Value) {
	b.checkAddr(addr)
	b.check(v)
	b.emit(Inst{Op: OpStore, Width: b.widths[v.Index()], Args: []Value{addr, v}})
}

func (b *Block) checkAddr(addr Value) {
	if w := b.WidthOf(addr); w != W64 {
		panic(fmt.Sprintf("ir: address %v is %v, want i64", addr, w))
	}
}

// Call implements Builder.
func (b *Block) Call(h HelperID, ret Ret, args ...Value) Value {
	if h == HelperInvalid || h >= NumHelpers {
		panic(fmt.Sprintf("ir: call to unknown helper %d", h))
	}
	if len(args) > MaxCallArgs {
		panic(fmt.Sprintf("ir: %v called with %d arguments", h, len(args)))
	}
	b.check(args...)
	inst := Inst{Op: OpCall, Helper: h, Ret: ret, Args: append([]Value(nil), args...)}
	if ret == RetNone {
		b.emit(inst)
		return NoValue
	}
	return b.define(inst, ret.Width())
}

// ExitIf implements Builder.
func (b *Block) ExitIf(cond, target Value) {
	b.check(cond)
	b.checkAddr(target)
	b.emit(Inst{Op: OpExitIf, Args: []Value{cond, target}})
	b.pendingIf = true
}

// Exit implements Builder.
func (b *Block) Exit(target Value) {
	b.checkAddr(target)
	b.emit(Inst{Op: OpExit, Args: []Value{target}})
	b.pendingIf = false
	b.terminated = true
}

func (b *Block) regName(off Offset) string {
	if b.RegName != nil {
		return b.RegName(off)
	}
	return fmt.Sprintf("@%d", off)
}

func joinValues(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

// String renders the block as a listing, one instruction per line.
func (b *Block) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "block 0x%x: %d instructions, %d bytes\n", b.PC, b.NumInstructions, b.Length)

	for _, in := range b.Insts {
		if in.Op == OpGuest {
			fmt.Fprintf(&sb, "  ; 0x%x: %08x\n", in.Imm, in.Word)
			continue
		}

		sb.WriteString("    ")
		if in.Dst.Valid() {
			fmt.Fprintf(&sb, "%v = ", in.Dst)
		}

		switch in.Op {
		case OpConst:
			fmt.Fprintf(&sb, "const.%v 0x%x", in.Width, in.Imm)
		case OpReadReg:
			fmt.Fprintf(&sb, "read.%v %s", in.Width, b.regName(in.Offset))
		case OpWriteReg:
			fmt.Fprintf(&sb, "write.%v %s, %v", in.Width, b.regName(in.Offset), in.Args[0])
		case OpBinary:
			fmt.Fprintf(&sb, "%v.%v %s", in.Bin, in.Width, joinValues(in.Args))
		case OpUnary:
			fmt.Fprintf(&sb, "%v.%v %v", in.Un, in.Width, in.Args[0])
		case OpZeroExtend:
			fmt.Fprintf(&sb, "zext.%v %v", in.Width, in.Args[0])
		case OpSignExtend:
			fmt.Fprintf(&sb, "sext.%v %v", in.Width, in.Args[0])
		case OpTruncate:
			fmt.Fprintf(&sb, "trunc.%v %v", in.Width, in.Args[0])
		case OpCompare:
			fmt.Fprintf(&sb, "cmp.%v %s", in.Pred, joinValues(in.Args))
		case OpSelect:
			fmt.Fprintf(&sb, "select.%v %s", in.Width, joinValues(in.Args))
		case OpLoad:
			fmt.Fprintf(&sb, "load.%v [%v]", in.Width, in.Args[0])
		case OpStore:
			fmt.Fprintf(&sb, "store.%v [%v], %v", in.Width, in.Args[0], in.Args[1])
		case OpCall:
			fmt.Fprintf(&sb, "call.%v %v(%s)", in.Ret, in.Helper, joinValues(in.Args))
		case OpExitIf:
			fmt.Fprintf(&sb, "exit_if %v, %v", in.Args[0], in.Args[1])
		case OpExit:
			fmt.Fprintf(&sb, "exit %v", in.Args[0])
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

var opNames = [...]string{
	OpGuest: "guest", OpConst: "const", OpReadReg: "read", OpWriteReg: "write",
	OpBinary: "binary", OpUnary: "unary", OpZeroExtend: "zext", OpSignExtend: "sext",
	OpTruncate: "trunc", OpCompare: "cmp", OpSelect: "select", OpLoad: "load",
	OpStore: "store", OpCall: "call", OpExitIf: "exit_if", OpExit: "exit",
}

func (op Op) String() string {
	if int(op) >= len(opNames) {
		return "op(?)"
	}
	return opNames[op]
}
