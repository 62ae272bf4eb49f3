// Package emu provides the ARM64 guest state and semantic primitives.
package emu

import "io"

// ARM64 Linux syscall numbers.
const (
	SyscallRead      uint64 = 63  // read(fd, buf, count)
	SyscallWrite     uint64 = 64  // write(fd, buf, count)
	SyscallExit      uint64 = 93  // exit(status)
	SyscallExitGroup uint64 = 94  // exit_group(status)
	SyscallBrk       uint64 = 214 // brk(addr)
)

// Linux error codes.
const (
	EBADF  = 9  // Bad file descriptor
	ENOSYS = 38 // Function not implemented
	EIO    = 5  // I/O error
)

// SyscallResult represents the result of a syscall execution.
type SyscallResult struct {
	// Exited is true if the syscall caused program termination.
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64
}

// SyscallHandler is the interface for handling ARM64 syscalls.
type SyscallHandler interface {
	// Handle executes the syscall indicated by the context's registers.
	// ARM64 Linux syscall convention:
	//   - Syscall number in X8
	//   - Arguments in X0-X5
	//   - Return value in X0
	Handle(ctx *Context) SyscallResult
}

// DefaultSyscallHandler implements the handful of syscalls needed to run
// freestanding test programs.
type DefaultSyscallHandler struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewDefaultSyscallHandler creates a default syscall handler.
func NewDefaultSyscallHandler(stdout, stderr io.Writer) *DefaultSyscallHandler {
	return &DefaultSyscallHandler{
		stdout: stdout,
		stderr: stderr,
	}
}

// SetStdin sets the stdin reader for the syscall handler.
func (h *DefaultSyscallHandler) SetStdin(stdin io.Reader) {
	h.stdin = stdin
}

// Handle executes the syscall indicated by the register file state.
func (h *DefaultSyscallHandler) Handle(ctx *Context) SyscallResult {
	switch ctx.Regs.ReadReg(8) {
	case SyscallRead:
		return h.handleRead(ctx)
	case SyscallWrite:
		return h.handleWrite(ctx)
	case SyscallExit, SyscallExitGroup:
		return SyscallResult{Exited: true, ExitCode: int64(ctx.Regs.ReadReg(0))}
	case SyscallBrk:
		return h.handleBrk(ctx)
	default:
		setError(ctx, ENOSYS)
		return SyscallResult{}
	}
}

// handleRead handles the read syscall (63).
func (h *DefaultSyscallHandler) handleRead(ctx *Context) SyscallResult {
	fd := ctx.Regs.ReadReg(0)
	bufPtr := ctx.Regs.ReadReg(1)
	count := ctx.Regs.ReadReg(2)

	// Only stdin (fd=0) is supported
	if fd != 0 {
		setError(ctx, EBADF)
		return SyscallResult{}
	}

	// If no stdin is configured, return EOF
	if h.stdin == nil {
		ctx.Regs.WriteReg(0, 0)
		return SyscallResult{}
	}

	buf := make([]byte, count)
	n, err := h.stdin.Read(buf)
	if err != nil && n == 0 {
		ctx.Regs.WriteReg(0, 0)
		return SyscallResult{}
	}

	ctx.WriteBytes(bufPtr, buf[:n])
	ctx.Regs.WriteReg(0, uint64(n))
	return SyscallResult{}
}

// handleWrite handles the write syscall (64).
func (h *DefaultSyscallHandler) handleWrite(ctx *Context) SyscallResult {
	fd := ctx.Regs.ReadReg(0)
	bufPtr := ctx.Regs.ReadReg(1)
	count := ctx.Regs.ReadReg(2)

	var writer io.Writer
	switch fd {
	case 1:
		writer = h.stdout
	case 2:
		writer = h.stderr
	}
	if writer == nil {
		setError(ctx, EBADF)
		return SyscallResult{}
	}

	buf := make([]byte, count)
	ctx.ReadBytes(bufPtr, buf)

	n, err := writer.Write(buf)
	if err != nil {
		setError(ctx, EIO)
		return SyscallResult{}
	}

	ctx.Regs.WriteReg(0, uint64(n))
	return SyscallResult{}
}

// handleBrk handles the brk syscall (214). brk(0) queries the break.
func (h *DefaultSyscallHandler) handleBrk(ctx *Context) SyscallResult {
	if ctx.Brk == nil {
		setError(ctx, ENOSYS)
		return SyscallResult{}
	}
	ctx.Regs.WriteReg(0, ctx.Brk.Set(ctx.Regs.ReadReg(0)))
	return SyscallResult{}
}

// setError sets X0 to -errno (as two's complement).
func setError(ctx *Context, errno int) {
	ctx.Regs.WriteReg(0, uint64(-int64(errno)))
}
