// Package main provides the a64dbt command line.
package main

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sarchlab/a64dbt/emu"
	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/interp"
	"github.com/sarchlab/a64dbt/loader"
	"github.com/sarchlab/a64dbt/translate"
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

type runFlags struct {
	raw         bool
	base        uint64
	entry       uint64
	maxInsts    uint64
	noCache     bool
	stats       bool
	breakpoints []string
}

func getCmdRun(gs *globalState) *cobra.Command {
	var f runFlags

	runCmd := &cobra.Command{
		Use:   "run <program>",
		Short: "Run a guest program through the interpreter",
		Long: `Run a guest program through the interpreter.

  ELF executables are detected by their magic number. Anything else, or any
  file given with --raw, is loaded as a flat image at --base. The command
  exits with the guest's exit status.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := loadProgram(gs.fs, args[0], &f, cmd.Flags().Changed("entry"))
			if err != nil {
				return err
			}
			return runProgram(gs, prog, &f)
		},
	}

	flags := runCmd.Flags()
	flags.BoolVar(&f.raw, "raw", false, "load the file as a flat image")
	flags.Uint64Var(&f.base, "base", 0x400000, "load address of a flat image")
	flags.Uint64Var(&f.entry, "entry", 0, "entry point of a flat image (default --base)")
	flags.Uint64Var(&f.maxInsts, "max-insts", 0, "stop after this many instructions (0 = no limit)")
	flags.BoolVar(&f.noCache, "no-cache", false, "translate every block afresh")
	flags.BoolVar(&f.stats, "stats", false, "print execution statistics")
	flags.StringSliceVar(&f.breakpoints, "break", nil, "breakpoint addresses")
	return runCmd
}

func loadProgram(fs afero.Fs, path string, f *runFlags, entrySet bool) (*loader.Program, error) {
	raw := f.raw
	if !raw {
		head := make([]byte, len(elfMagic))
		file, err := fs.Open(path)
		if err != nil {
			return nil, err
		}
		n, _ := file.Read(head)
		_ = file.Close()
		raw = n < len(head) || !bytes.Equal(head, elfMagic)
	}

	if !raw {
		return loader.Load(fs, path)
	}
	entry := f.base
	if entrySet {
		entry = f.entry
	}
	return loader.LoadRaw(fs, path, f.base, entry)
}

func runProgram(gs *globalState, prog *loader.Program, f *runFlags) error {
	bps := newBreakpointSet(gs.logger)
	ctx := emu.NewContext(emu.WithDebugger(bps))
	if err := prog.Install(ctx); err != nil {
		return err
	}
	for _, s := range f.breakpoints {
		addr, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return fmt.Errorf("bad breakpoint address %q: %w", s, err)
		}
		bps.insert(ctx, addr)
	}

	opts := []interp.Option{
		interp.WithStdout(gs.stdout),
		interp.WithStderr(gs.stderr),
		interp.WithLogger(gs.logger),
		interp.WithMaxInstructions(f.maxInsts),
		interp.WithTranslator(translate.New(
			translate.WithConfig(gs.cfg),
			translate.WithLogger(gs.logger),
			translate.WithBreakpoints(bps),
		)),
	}
	var cache *translate.BlockCache
	if !f.noCache {
		cache = translate.NewBlockCacheFromConfig(gs.cfg)
		opts = append(opts, interp.WithBlockCache(cache))
	}

	engine := interp.New(ctx, opts...)
	code, err := engine.Run()

	if f.stats {
		fields := logrus.Fields{"instructions": engine.InstructionCount()}
		if cache != nil {
			st := cache.Stats()
			fields["cache_hits"] = st.Hits
			fields["cache_misses"] = st.Misses
			fields["cache_evictions"] = st.Evictions
		}
		gs.logger.WithFields(fields).Info("execution finished")
	}

	if err != nil {
		return err
	}
	if code != 0 {
		return &exitError{code: int(code)}
	}
	return nil
}

// breakpointSet patches breakpoint markers into guest code and remembers
// the words they replaced.
type breakpointSet struct {
	orig map[uint64]uint32
	log  logrus.FieldLogger
}

func newBreakpointSet(log logrus.FieldLogger) *breakpointSet {
	return &breakpointSet{orig: make(map[uint64]uint32), log: log}
}

func (s *breakpointSet) insert(ctx *emu.Context, addr uint64) {
	if _, ok := s.orig[addr]; ok {
		return
	}
	s.orig[addr] = ctx.Fetch(addr)
	ctx.Write(addr, 4, uint64(insts.BreakpointWord))
	if ctx.InvalidateCode != nil {
		ctx.InvalidateCode(addr, 4)
	}
}

// OpcodeAt implements translate.Breakpoints.
func (s *breakpointSet) OpcodeAt(pc uint64) (uint32, bool) {
	w, ok := s.orig[pc]
	return w, ok
}

// Enter implements emu.Debugger.
func (s *breakpointSet) Enter(ctx *emu.Context, addr uint64) {
	s.log.WithFields(logrus.Fields{
		"pc": fmt.Sprintf("%#x", addr),
		"x0": fmt.Sprintf("%#x", ctx.Regs.ReadReg(0)),
		"x1": fmt.Sprintf("%#x", ctx.Regs.ReadReg(1)),
		"sp": fmt.Sprintf("%#x", ctx.Regs.SP()),
	}).Info("breakpoint")
}
