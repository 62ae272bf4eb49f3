// Package emu provides the ARM64 guest state and semantic primitives.
package emu

import (
	"fmt"

	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/softfloat"
)

// FPCR and FPSR bits.
const (
	FPCRRModeShift = 22
	FPCRFZ         = 1 << 24
	FPCRDN         = 1 << 25

	FPSRQC = 1 << 27
)

// Context is the complete state of one guest execution context. Every
// primitive and helper that needs state receives the context explicitly;
// two contexts never share flags, FP state or reservations.
type Context struct {
	Regs    RegFile
	Mem     *Memory
	AS      AddressSpace
	Monitor Monitor
	Brk     *BreakSegment

	Syscalls SyscallHandler
	Debugger Debugger

	// InvalidateCode is called by instruction cache maintenance with the
	// affected guest range. It may be nil.
	InvalidateCode func(addr, length uint64)

	// Counter backs CNTVCT_EL0. It advances with retired instructions.
	Counter uint64

	Exited   bool
	ExitCode int64

	// Trap is set when the guest raised an exception this core does not
	// deliver, such as BRK or HLT.
	Trap *Trap
}

// Debugger is the debug-stub call-out reached from a software breakpoint.
// Enter may block until a remote debugger resumes the context.
type Debugger interface {
	Enter(ctx *Context, addr uint64)
}

// Trap describes an exception-generating instruction.
type Trap struct {
	PC   uint64
	Word uint32
}

func (t *Trap) Error() string {
	return fmt.Sprintf("trap 0x%08X (%s) at PC=0x%X", t.Word, insts.Disassemble(t.Word), t.PC)
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithMemory shares an existing memory with the context.
func WithMemory(m *Memory) ContextOption {
	return func(c *Context) {
		c.Mem = m
	}
}

// WithAddressSpace sets the guest-to-host address mapping.
func WithAddressSpace(as AddressSpace) ContextOption {
	return func(c *Context) {
		c.AS = as
	}
}

// WithSyscallHandler sets the handler invoked by SVC.
func WithSyscallHandler(h SyscallHandler) ContextOption {
	return func(c *Context) {
		c.Syscalls = h
	}
}

// WithDebugger sets the breakpoint call-out.
func WithDebugger(d Debugger) ContextOption {
	return func(c *Context) {
		c.Debugger = d
	}
}

// WithBreakSegment sets the heap managed by brk.
func WithBreakSegment(b *BreakSegment) ContextOption {
	return func(c *Context) {
		c.Brk = b
	}
}

// NewContext creates a context with zeroed registers, an empty memory and
// an identity address space.
func NewContext(opts ...ContextOption) *Context {
	c := &Context{}
	for _, opt := range opts {
		opt(c)
	}
	if c.Mem == nil {
		c.Mem = NewMemory()
	}
	if c.AS == nil {
		c.AS = OffsetSpace{}
	}
	return c
}

// Read loads size bytes from guest address addr.
func (c *Context) Read(addr uint64, size int) uint64 {
	return c.Mem.Read(c.AS.GuestToHost(addr), size)
}

// Write stores the low size bytes of v at guest address addr.
func (c *Context) Write(addr uint64, size int, v uint64) {
	c.Mem.Write(c.AS.GuestToHost(addr), size, v)
}

// ReadBytes copies guest memory at addr into buf.
func (c *Context) ReadBytes(addr uint64, buf []byte) {
	c.Mem.ReadBytes(c.AS.GuestToHost(addr), buf)
}

// WriteBytes copies buf to guest memory at addr.
func (c *Context) WriteBytes(addr uint64, buf []byte) {
	c.Mem.WriteBytes(c.AS.GuestToHost(addr), buf)
}

// Fetch reads the instruction word at guest address pc.
func (c *Context) Fetch(pc uint64) uint32 {
	return uint32(c.Read(pc, 4))
}

// FPEnv builds a floating-point environment from FPCR.
func (c *Context) FPEnv() *softfloat.Env {
	fpcr := c.Regs.FPCR()
	return &softfloat.Env{
		Mode:        softfloat.RoundingMode(fpcr >> FPCRRModeShift & 3),
		FlushToZero: fpcr&FPCRFZ != 0,
		DefaultNaN:  fpcr&FPCRDN != 0,
	}
}

// RaiseFP ORs the exceptions accumulated in env into FPSR.
func (c *Context) RaiseFP(env *softfloat.Env) {
	if env.Flags == 0 {
		return
	}
	c.Regs.SetFPSR(c.Regs.FPSR() | uint32(env.Flags&softfloat.AllExceptions))
}

// SetQC sets the sticky saturation flag FPSR.QC.
func (c *Context) SetQC() {
	c.Regs.SetFPSR(c.Regs.FPSR() | FPSRQC)
}

// Exit marks the context as finished.
func (c *Context) Exit(code int64) {
	c.Exited = true
	c.ExitCode = code
}
