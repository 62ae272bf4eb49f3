// Package interp executes IR blocks against a guest context.
package interp

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/translate"
)

// ErrMaxInstructions is returned once the instruction limit is reached.
var ErrMaxInstructions = errors.New("max instructions reached")

// StepResult is the result of executing one block.
type StepResult struct {
	// Exited is true if the program terminated through an exit syscall.
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64

	// Err is set when execution cannot continue: a decode error, a trap or
	// the instruction limit.
	Err error
}

// Engine translates and executes guest code one block at a time.
type Engine struct {
	ctx        *emu.Context
	translator *translate.Translator
	cache      *translate.BlockCache
	log        logrus.FieldLogger

	stdout io.Writer
	stderr io.Writer

	retired         uint64
	maxInstructions uint64 // 0 means no limit
}

// Option configures an Engine.
type Option func(*Engine)

// WithStdout sets the writer behind fd 1 of the default syscall handler.
func WithStdout(w io.Writer) Option {
	return func(e *Engine) {
		e.stdout = w
	}
}

// WithStderr sets the writer behind fd 2 of the default syscall handler.
func WithStderr(w io.Writer) Option {
	return func(e *Engine) {
		e.stderr = w
	}
}

// WithMaxInstructions limits the number of retired instructions. A value of
// 0 means no limit.
func WithMaxInstructions(max uint64) Option {
	return func(e *Engine) {
		e.maxInstructions = max
	}
}

// WithTranslator sets the translator.
func WithTranslator(t *translate.Translator) Option {
	return func(e *Engine) {
		e.translator = t
	}
}

// WithBlockCache sets the translated-block cache.
func WithBlockCache(c *translate.BlockCache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New creates an engine for ctx. Without a syscall handler the context gets
// the default one; without a cache every block is translated afresh.
func New(ctx *emu.Context, opts ...Option) *Engine {
	e := &Engine{
		ctx:    ctx,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	if e.translator == nil {
		e.translator = translate.New(translate.WithLogger(e.log))
	}
	if ctx.Syscalls == nil {
		ctx.Syscalls = emu.NewDefaultSyscallHandler(e.stdout, e.stderr)
	}
	if e.cache != nil {
		ctx.InvalidateCode = e.cache.Invalidate
	}
	return e
}

// Context returns the guest context.
func (e *Engine) Context() *emu.Context {
	return e.ctx
}

// InstructionCount returns the number of retired instructions.
func (e *Engine) InstructionCount() uint64 {
	return e.retired
}

// Step executes the block at the current PC.
func (e *Engine) Step() StepResult {
	ctx := e.ctx
	switch {
	case ctx.Exited:
		return StepResult{Exited: true, ExitCode: ctx.ExitCode}
	case ctx.Trap != nil:
		return StepResult{Err: ctx.Trap}
	case e.maxInstructions > 0 && e.retired >= e.maxInstructions:
		return StepResult{Err: ErrMaxInstructions}
	}

	pc := ctx.Regs.PC()
	cb, err := e.block(pc)
	if err != nil {
		return StepResult{Err: err}
	}

	out := Exec(ctx, cb.Block)
	e.retired += out.Retired
	ctx.Counter += out.Retired
	ctx.Regs.SetPC(out.Next)

	switch {
	case ctx.Exited:
		return StepResult{Exited: true, ExitCode: ctx.ExitCode}
	case ctx.Trap != nil:
		return StepResult{Err: ctx.Trap}
	}
	return StepResult{}
}

// block returns the translation of the block at pc, translating on a miss.
func (e *Engine) block(pc uint64) (*translate.CachedBlock, error) {
	if e.cache != nil {
		if cb, ok := e.cache.Get(pc); ok {
			return cb, nil
		}
	}

	b := translate.NewBlock(pc)
	res, err := e.translator.TranslateBlock(pc, translate.FetchFunc(e.ctx.Fetch), b)
	if err != nil {
		return nil, fmt.Errorf("translating block at 0x%x: %w", pc, err)
	}
	e.log.WithFields(logrus.Fields{
		"pc":    fmt.Sprintf("%#x", pc),
		"insts": res.Instructions,
		"ir":    len(b.Insts),
	}).Debug("translated block")

	cb := &translate.CachedBlock{Block: b, Result: *res}
	if e.cache != nil {
		e.cache.Put(pc, cb)
	}
	return cb, nil
}

// Run executes blocks until the program exits or an error occurs. It
// returns the exit code, or -1 on error.
func (e *Engine) Run() (int64, error) {
	for {
		result := e.Step()
		if result.Exited {
			return result.ExitCode, nil
		}
		if result.Err != nil {
			e.log.WithError(result.Err).WithField("pc", fmt.Sprintf("%#x", e.ctx.Regs.PC())).
				Error("execution stopped")
			return -1, result.Err
		}
	}
}
