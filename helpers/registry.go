// Package helpers is the helper dispatch library: the run-time half of
// instructions whose semantics are too irregular to inline as IR.
//
// Every helper has the same shape. It receives the execution context and up
// to four 64-bit arguments; instruction-family helpers take the raw
// instruction word as their first argument and re-decode their operands
// from it. Validate runs the same decoder at translation time so that no
// helper meets an unsupported encoding at run time.
package helpers

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/ir"
)

// Decode failures reported by Validate.
var (
	// ErrReserved marks an unallocated or reserved sub-encoding.
	ErrReserved = errors.New("reserved encoding")
	// ErrUnsupported marks a real sub-encoding that is not implemented.
	ErrUnsupported = errors.New("unsupported encoding")
)

func reserved(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrReserved, fmt.Sprintf(format, args...))
}

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

// Args are the arguments of a helper call, zero-extended to 64 bits.
type Args [ir.MaxCallArgs]uint64

// Word returns the first argument as an instruction word.
func (a Args) Word() uint32 { return uint32(a[0]) }

// Func is a helper implementation.
type Func func(ctx *emu.Context, a Args) uint64

// Entry describes a registered helper.
type Entry struct {
	ID   ir.HelperID
	Name string
	Ret  ir.Ret
	Fn   Func

	// Check validates the instruction word of family helpers. It is nil for
	// helpers that take plain values.
	Check func(word uint32) error
}

var registry [ir.NumHelpers]Entry

func register(id ir.HelperID, ret ir.Ret, fn Func, check func(uint32) error) {
	if registry[id].Fn != nil {
		panic(fmt.Sprintf("helpers: %v registered twice", id))
	}
	registry[id] = Entry{ID: id, Name: id.String(), Ret: ret, Fn: fn, Check: check}
}

// Lookup returns the entry registered for id.
func Lookup(id ir.HelperID) (Entry, bool) {
	if id >= ir.NumHelpers || registry[id].Fn == nil {
		return Entry{}, false
	}
	return registry[id], true
}

// Entries lists every registered helper in ID order.
func Entries() []Entry {
	return lo.Filter(registry[:], func(e Entry, _ int) bool {
		return e.Fn != nil
	})
}

// Call runs helper id. Calling an unregistered helper is a programming
// error.
func Call(ctx *emu.Context, id ir.HelperID, a Args) uint64 {
	e, ok := Lookup(id)
	if !ok {
		panic(fmt.Sprintf("helpers: no helper %v", id))
	}
	return e.Fn(ctx, a)
}

// Validate reports whether helper id can execute the instruction word. The
// error wraps ErrReserved or ErrUnsupported.
func Validate(id ir.HelperID, word uint32) error {
	e, ok := Lookup(id)
	if !ok {
		return unsupported("no helper %v", id)
	}
	if e.Check == nil {
		return nil
	}
	return e.Check(word)
}

// must unwraps a decode result that Validate has already accepted.
func must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("helpers: executing unvalidated encoding: %v", err))
	}
	return v
}

// checkOf adapts a family decoder into an Entry.Check.
func checkOf[T any](decode func(uint32) (T, error)) func(uint32) error {
	return func(word uint32) error {
		_, err := decode(word)
		return err
	}
}

func boolU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
