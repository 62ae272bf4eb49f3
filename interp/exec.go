// Package interp is the reference backend: it executes recorded IR blocks
// directly against an emu.Context.
package interp

import (
	"fmt"

	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/helpers"
	"github.com/sarchlab/a64dbt/ir"
)

// Outcome is how a block left.
type Outcome struct {
	// Next is where execution continues. After a trap it is the trapping
	// instruction.
	Next uint64
	// Retired counts the guest instructions that completed.
	Retired uint64
	// Stopped is set when a helper exited the context or raised a trap.
	Stopped bool
}

// Exec runs b on ctx.
func Exec(ctx *emu.Context, b *ir.Block) Outcome {
	vals := make([]uint64, b.NumValues())
	widths := make([]ir.Width, b.NumValues())
	val := func(v ir.Value) uint64 { return vals[v.Index()] }
	width := func(v ir.Value) ir.Width { return widths[v.Index()] }

	var (
		out    Outcome
		pc     uint64
		inside bool
	)

	for i := range b.Insts {
		in := &b.Insts[i]
		var r uint64

		switch in.Op {
		case ir.OpGuest:
			if inside {
				out.Retired++
			}
			pc, inside = in.Imm, true
			ctx.Regs.SetPC(pc)
			continue

		case ir.OpConst:
			r = in.Imm
		case ir.OpReadReg:
			r = ctx.Regs.Load(int(in.Offset), in.Width.Bytes())
		case ir.OpWriteReg:
			ctx.Regs.Store(int(in.Offset), in.Width.Bytes(), val(in.Args[0]))
			continue

		case ir.OpBinary:
			r = binary(in.Bin, in.Width, val(in.Args[0]), val(in.Args[1]))
		case ir.OpUnary:
			r = val(in.Args[0])
			if in.Un == ir.Neg {
				r = -r
			} else {
				r = ^r
			}
		case ir.OpZeroExtend, ir.OpTruncate:
			r = val(in.Args[0])
		case ir.OpSignExtend:
			r = uint64(signed(val(in.Args[0]), width(in.Args[0])))
		case ir.OpCompare:
			r = compare(in.Pred, width(in.Args[0]), val(in.Args[0]), val(in.Args[1]))
		case ir.OpSelect:
			if val(in.Args[0]) != 0 {
				r = val(in.Args[1])
			} else {
				r = val(in.Args[2])
			}

		case ir.OpLoad:
			r = ctx.Read(val(in.Args[0]), in.Width.Bytes())
		case ir.OpStore:
			ctx.Write(val(in.Args[0]), in.Width.Bytes(), val(in.Args[1]))
			continue

		case ir.OpCall:
			var args helpers.Args
			for j, a := range in.Args {
				args[j] = val(a)
			}
			r = helpers.Call(ctx, in.Helper, args)
			if stop, ok := stopped(ctx, pc); ok {
				if ctx.Trap == nil {
					out.Retired++
				}
				out.Next, out.Stopped = stop, true
				return out
			}
			if in.Ret == ir.RetNone {
				continue
			}

		case ir.OpExitIf:
			if val(in.Args[0]) != 0 {
				out.Next = val(in.Args[1])
				out.Retired++
				return out
			}
			continue
		case ir.OpExit:
			out.Next = val(in.Args[0])
			if inside {
				out.Retired++
			}
			return out

		default:
			panic(fmt.Sprintf("interp: unknown op %d in block 0x%x", in.Op, b.PC))
		}

		vals[in.Dst.Index()] = r & in.Width.Mask()
		widths[in.Dst.Index()] = in.Width
	}

	panic(fmt.Sprintf("interp: block 0x%x has no exit", b.PC))
}

// stopped reports whether the last helper ended execution, and where the
// context should resume.
func stopped(ctx *emu.Context, pc uint64) (uint64, bool) {
	switch {
	case ctx.Trap != nil:
		return ctx.Trap.PC, true
	case ctx.Exited:
		return pc + 4, true
	}
	return 0, false
}

func signed(v uint64, w ir.Width) int64 {
	shift := 64 - uint(w)
	return int64(v<<shift) >> shift
}

func binary(op ir.BinOp, w ir.Width, a, b uint64) uint64 {
	bits := uint64(w)
	switch op {
	case ir.Add:
		return a + b
	case ir.Sub:
		return a - b
	case ir.Mul:
		return a * b
	case ir.And:
		return a & b
	case ir.Or:
		return a | b
	case ir.Xor:
		return a ^ b
	case ir.AndNot:
		return a &^ b
	case ir.Shl:
		return a << (b % bits)
	case ir.LShr:
		return a >> (b % bits)
	case ir.AShr:
		return uint64(signed(a, w) >> (b % bits))
	case ir.Ror:
		n := b % bits
		if n == 0 {
			return a
		}
		return a>>n | a<<(bits-n)
	}
	panic(fmt.Sprintf("interp: unknown binary op %v", op))
}

func compare(p ir.Pred, w ir.Width, a, b uint64) uint64 {
	sa, sb := signed(a, w), signed(b, w)
	var r bool
	switch p {
	case ir.Eq:
		r = a == b
	case ir.Ne:
		r = a != b
	case ir.Ult:
		r = a < b
	case ir.Ule:
		r = a <= b
	case ir.Ugt:
		r = a > b
	case ir.Uge:
		r = a >= b
	case ir.Slt:
		r = sa < sb
	case ir.Sle:
		r = sa <= sb
	case ir.Sgt:
		r = sa > sb
	case ir.Sge:
		r = sa >= sb
	}
	if r {
		return 1
	}
	return 0
}
