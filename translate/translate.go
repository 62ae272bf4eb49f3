// Package translate turns guest ARM64 instruction streams into IR blocks.
//
// Each instruction is classified by insts.Classify and handed to the
// translator registered for its class. Translators read operand fields from
// the word, emit IR through an ir.Builder and either fall through to the
// next instruction or end the block. Semantics too irregular for a short IR
// sequence become calls into the helpers package, which re-decodes the
// untouched instruction word at run time.
package translate

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/helpers"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/ir"
)

// Fetcher reads instruction words from guest memory.
type Fetcher interface {
	Fetch(pc uint64) uint32
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(pc uint64) uint32

// Fetch implements Fetcher.
func (f FetchFunc) Fetch(pc uint64) uint32 { return f(pc) }

// Breakpoints is the debug collaborator consulted when a block meets the
// breakpoint marker. OpcodeAt returns the instruction the marker replaced.
// Entering the debugger itself happens at run time through the context's
// emu.Debugger.
type Breakpoints interface {
	OpcodeAt(addr uint64) (uint32, bool)
}

// Result summarizes a translated block.
type Result struct {
	PC           uint64
	Instructions int
	// Next is the address after the last translated instruction.
	Next uint64
	// Breakpoint is set when the block starts at a breakpoint marker.
	Breakpoint bool
}

// Option configures a Translator.
type Option func(*Translator)

// WithConfig applies a configuration.
func WithConfig(cfg Config) Option {
	return func(t *Translator) {
		t.cfg = cfg
	}
}

// WithMaxInstructions caps the instructions per block.
func WithMaxInstructions(n int) Option {
	return func(t *Translator) {
		t.cfg.MaxBlockInstructions = n
	}
}

// WithLogger sets the logger for traces and decode failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(t *Translator) {
		t.log = l
	}
}

// WithTrace enables per-instruction tracing.
func WithTrace(on bool) Option {
	return func(t *Translator) {
		t.cfg.Trace = on
	}
}

// WithBreakpoints sets the breakpoint collaborator.
func WithBreakpoints(bp Breakpoints) Option {
	return func(t *Translator) {
		t.bp = bp
	}
}

// Translator translates guest code into IR blocks. It holds no per-block
// state and may be shared by contexts translating one at a time.
type Translator struct {
	cfg Config
	log logrus.FieldLogger
	bp  Breakpoints
}

// New creates a translator.
func New(opts ...Option) *Translator {
	t := &Translator{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		l := logrus.New()
		l.SetLevel(t.cfg.Level())
		t.log = l
	}
	if t.cfg.MaxBlockInstructions < 1 {
		t.cfg.MaxBlockInstructions = 1
	}
	return t
}

// Config returns the translator configuration.
func (t *Translator) Config() Config {
	return t.cfg
}

// TranslateBlock translates the block starting at pc into b. The block ends
// at the first instruction that leaves it, or after the configured number
// of instructions. Illegal and unsupported encodings fail the whole block
// with an *insts.DecodeError.
func (t *Translator) TranslateBlock(pc uint64, fetch Fetcher, b ir.Builder) (*Result, error) {
	res := &Result{PC: pc, Next: pc}

	if t.planted(pc, fetch.Fetch(pc)) {
		orig, _ := t.bp.OpcodeAt(pc)
		return res, t.translateBreakpoint(pc, orig, b, res)
	}

	for res.Instructions < t.cfg.MaxBlockInstructions {
		word := fetch.Fetch(res.Next)
		if res.Instructions > 0 && t.planted(res.Next, word) {
			// The marker starts a block of its own.
			break
		}
		ended, err := t.translateOne(res.Next, word, b)
		if err != nil {
			return res, err
		}
		res.Instructions++
		res.Next += 4
		if ended {
			return res, nil
		}
	}

	b.Exit(b.Const(ir.W64, res.Next))
	return res, nil
}

func (t *Translator) planted(pc uint64, word uint32) bool {
	if word != insts.BreakpointWord || t.bp == nil {
		return false
	}
	_, ok := t.bp.OpcodeAt(pc)
	return ok
}

// translateBreakpoint builds a one-instruction block: the debugger call-out
// followed by the instruction the marker replaced.
func (t *Translator) translateBreakpoint(pc uint64, orig uint32, b ir.Builder, res *Result) error {
	res.Breakpoint = true
	if orig == insts.BreakpointWord {
		return t.fail(insts.Illegal(orig, pc, "breakpoint over a breakpoint"))
	}

	e := &emitter{b: b, pc: pc, word: orig}
	class := insts.Classify(orig)
	t.trace(pc, orig, class)

	b.BeginInstruction(pc, orig)
	e.call(ir.HelperBreakpoint, ir.RetNone, e.c64(pc))
	ended, err := translators[class](e)
	if err != nil {
		return t.fail(decodeError(err, orig, pc))
	}

	res.Instructions = 1
	res.Next = pc + 4
	if !ended {
		b.Exit(e.c64(pc + 4))
	}
	return nil
}

func (t *Translator) translateOne(pc uint64, word uint32, b ir.Builder) (bool, error) {
	class := insts.Classify(word)
	t.trace(pc, word, class)

	b.BeginInstruction(pc, word)
	ended, err := translators[class](&emitter{b: b, pc: pc, word: word})
	if err != nil {
		return false, t.fail(decodeError(err, word, pc))
	}
	return ended, nil
}

func (t *Translator) trace(pc uint64, word uint32, class insts.Class) {
	if !t.cfg.Trace {
		return
	}
	t.log.WithFields(logrus.Fields{
		"pc":    fmt.Sprintf("%#x", pc),
		"word":  fmt.Sprintf("%08x", word),
		"class": class.String(),
		"asm":   insts.Disassemble(word),
	}).Debug("translate")
}

func (t *Translator) fail(err *insts.DecodeError) error {
	t.log.WithFields(logrus.Fields{
		"pc":    fmt.Sprintf("%#x", err.PC),
		"word":  fmt.Sprintf("%08x", err.Word),
		"class": err.Class.String(),
		"asm":   insts.Disassemble(err.Word),
	}).Error(err.Kind.String())
	return err
}

// decodeError turns a translator failure into the DecodeError reported to
// the caller.
func decodeError(err error, word uint32, pc uint64) *insts.DecodeError {
	var de *insts.DecodeError
	switch {
	case errors.As(err, &de):
		de.Word, de.PC, de.Class = word, pc, insts.Classify(word)
		return de
	case errors.Is(err, helpers.ErrUnsupported):
		return insts.Unsupported(word, pc, err.Error())
	default:
		return insts.Illegal(word, pc, err.Error())
	}
}

// errReserved and errUnsupported build translator failures; the word and
// PC are filled in by decodeError.
func errReserved(format string, args ...any) error {
	return &insts.DecodeError{Kind: insts.ErrIllegal, Detail: fmt.Sprintf(format, args...)}
}

func errUnsupported(format string, args ...any) error {
	return &insts.DecodeError{Kind: insts.ErrUnsupported, Detail: fmt.Sprintf(format, args...)}
}

// translateFunc emits IR for one instruction and reports whether it ended
// the block. A translator that fails must do so before emitting anything.
type translateFunc func(e *emitter) (bool, error)

var translators [insts.NumClasses]translateFunc

func init() {
	table := map[insts.Class]translateFunc{
		insts.ClassIllegal:    translateIllegal,
		insts.ClassBreakpoint: translateBRK,

		insts.ClassPCRel:         translatePCRel,
		insts.ClassAddSubImm:     translateAddSubImm,
		insts.ClassLogicalImm:    translateLogicalImm,
		insts.ClassMoveWide:      translateMoveWide,
		insts.ClassBitfield:      translateBitfield,
		insts.ClassExtract:       translateExtract,
		insts.ClassCondBranch:    translateCondBranch,
		insts.ClassExceptionGen:  translateExceptionGen,
		insts.ClassHint:          translateHint,
		insts.ClassBarrier:       translateBarrier,
		insts.ClassPState:        helperClass(ir.HelperPState),
		insts.ClassSysInstr:      helperClass(ir.HelperSys),
		insts.ClassSysReg:        translateSysReg,
		insts.ClassBranchReg:     translateBranchReg,
		insts.ClassBranchImm:     translateBranchImm,
		insts.ClassCompareBranch: translateCompareBranch,
		insts.ClassTestBranch:    translateTestBranch,

		insts.ClassLoadStoreExclusive:  helperClass(ir.HelperExclusive),
		insts.ClassLoadStoreOrdered:    translateLoadStoreOrdered,
		insts.ClassCompareSwap:         helperClass(ir.HelperCompareSwap),
		insts.ClassLoadLiteral:         translateLoadLiteral,
		insts.ClassLoadStorePair:       translateLoadStorePair,
		insts.ClassLoadStoreImm:        translateLoadStoreImm,
		insts.ClassLoadStoreRegOffset:  translateLoadStoreRegOffset,
		insts.ClassAtomic:              helperClass(ir.HelperAtomic),
		insts.ClassSIMDLoadStoreMulti:  helperClass(ir.HelperSIMDLoadStoreMulti),
		insts.ClassSIMDLoadStoreSingle: helperClass(ir.HelperSIMDLoadStoreSingle),

		insts.ClassLogicalShifted: translateLogicalShifted,
		insts.ClassAddSubShifted:  translateAddSubShifted,
		insts.ClassAddSubExtended: translateAddSubExtended,
		insts.ClassAddSubCarry:    translateAddSubCarry,
		insts.ClassFlagManip:      helperClass(ir.HelperFlagManip),
		insts.ClassCondCompare:    translateCondCompare,
		insts.ClassCondSelect:     translateCondSelect,
		insts.ClassDataProc1Src:   translateDataProc1,
		insts.ClassDataProc2Src:   translateDataProc2,
		insts.ClassDataProc3Src:   translateDataProc3,

		insts.ClassFPCompare:     helperClass(ir.HelperFPCompare),
		insts.ClassFPCondCompare: helperClass(ir.HelperFPCondCompare),
		insts.ClassFPCondSelect:  helperClass(ir.HelperFPCondSelect),
		insts.ClassFPDataProc1:   helperClass(ir.HelperFPDataProc1),
		insts.ClassFPDataProc2:   helperClass(ir.HelperFPDataProc2),
		insts.ClassFPDataProc3:   helperClass(ir.HelperFPDataProc3),
		insts.ClassFPImm:         helperClass(ir.HelperFPImm),
		insts.ClassFPIntConv:     helperClass(ir.HelperFPIntConv),
		insts.ClassFPFixedConv:   helperClass(ir.HelperFPFixedConv),

		insts.ClassSIMDThreeSame:        helperClass(ir.HelperSIMDThreeSame),
		insts.ClassSIMDThreeDiff:        helperClass(ir.HelperSIMDThreeDiff),
		insts.ClassSIMDTwoRegMisc:       helperClass(ir.HelperSIMDTwoRegMisc),
		insts.ClassSIMDAcrossLanes:      helperClass(ir.HelperSIMDAcrossLanes),
		insts.ClassSIMDCopy:             helperClass(ir.HelperSIMDCopy),
		insts.ClassSIMDByElement:        helperClass(ir.HelperSIMDByElement),
		insts.ClassSIMDShiftImm:         helperClass(ir.HelperSIMDShiftImm),
		insts.ClassSIMDModImm:           helperClass(ir.HelperSIMDModImm),
		insts.ClassSIMDPermute:          helperClass(ir.HelperSIMDPermute),
		insts.ClassSIMDExtract:          helperClass(ir.HelperSIMDExtract),
		insts.ClassSIMDTableLookup:      helperClass(ir.HelperSIMDTableLookup),
		insts.ClassSIMDScalarThreeSame:  helperClass(ir.HelperSIMDScalarThreeSame),
		insts.ClassSIMDScalarThreeDiff:  helperClass(ir.HelperSIMDScalarThreeDiff),
		insts.ClassSIMDScalarTwoRegMisc: helperClass(ir.HelperSIMDScalarTwoRegMisc),
		insts.ClassSIMDScalarPairwise:   helperClass(ir.HelperSIMDScalarPairwise),
		insts.ClassSIMDScalarCopy:       helperClass(ir.HelperSIMDScalarCopy),
		insts.ClassSIMDScalarShiftImm:   helperClass(ir.HelperSIMDScalarShiftImm),
		insts.ClassSIMDScalarByElement:  helperClass(ir.HelperSIMDScalarByElement),

		insts.ClassSIMDExtension: unsupportedClass("SIMD extension"),
		insts.ClassCrypto:        unsupportedClass("cryptographic extension"),
		insts.ClassSVE:           unsupportedClass("SVE"),
	}

	for c := insts.Class(0); c < insts.NumClasses; c++ {
		fn, ok := table[c]
		if !ok {
			panic(fmt.Sprintf("translate: no translator for class %v", c))
		}
		translators[c] = fn
	}
}

// HasTranslator reports whether a class has a registered translator. Every
// class does; the check exists for tests and tools.
func HasTranslator(c insts.Class) bool {
	return c < insts.NumClasses && translators[c] != nil
}

func translateIllegal(*emitter) (bool, error) {
	return false, errReserved("unallocated encoding")
}

func unsupportedClass(what string) translateFunc {
	return func(*emitter) (bool, error) {
		return false, errUnsupported("%s", what)
	}
}

// helperClass translates a class whose semantics live entirely in one
// helper taking the instruction word.
func helperClass(id ir.HelperID) translateFunc {
	return func(e *emitter) (bool, error) {
		if err := helpers.Validate(id, e.word); err != nil {
			return false, err
		}
		e.callWord(id)
		return false, nil
	}
}

// regName renders register-file offsets in block listings.
func regName(off ir.Offset) string {
	return emu.OffsetName(int(off))
}

// NewBlock starts a block whose listing names guest registers.
func NewBlock(pc uint64) *ir.Block {
	b := ir.NewBlock(pc)
	b.RegName = regName
	return b
}
