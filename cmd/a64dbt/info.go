// Package main provides the a64dbt command line.
package main

import (
	"fmt"
	"runtime"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sys/cpu"

	"github.com/sarchlab/a64dbt/insts"
	"github.com/sarchlab/a64dbt/translate"
)

func getCmdInfo(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show configuration, translator coverage and host features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := gs.stdout
			cfg := gs.cfg

			_, _ = fmt.Fprintf(w, "max block instructions: %d\n", cfg.MaxBlockInstructions)
			_, _ = fmt.Fprintf(w, "block cache:            %d sets x %d ways\n",
				cfg.BlockCacheSets, cfg.BlockCacheWays)
			_, _ = fmt.Fprintf(w, "trace:                  %v\n", cfg.Trace)
			_, _ = fmt.Fprintf(w, "log level:              %s\n", cfg.Level())

			classes := lo.Times(int(insts.NumClasses), func(i int) insts.Class { return insts.Class(i) })
			covered := lo.CountBy(classes, translate.HasTranslator)
			_, _ = fmt.Fprintf(w, "translated classes:     %d/%d\n", covered, len(classes))

			_, _ = fmt.Fprintf(w, "host:                   %s/%s\n", runtime.GOOS, runtime.GOARCH)
			if runtime.GOARCH == "arm64" {
				_, _ = fmt.Fprintf(w, "host features:          %v\n", hostFeatures())
			}
			return nil
		},
	}
}

type hostFeature struct {
	name string
	has  bool
}

// hostFeatures lists the ARM64 extensions the host reports that matter to
// generated code.
func hostFeatures() []string {
	features := []hostFeature{
		{"fp", cpu.ARM64.HasFP},
		{"asimd", cpu.ARM64.HasASIMD},
		{"fphp", cpu.ARM64.HasFPHP},
		{"asimdhp", cpu.ARM64.HasASIMDHP},
		{"aes", cpu.ARM64.HasAES},
		{"sha2", cpu.ARM64.HasSHA2},
		{"crc32", cpu.ARM64.HasCRC32},
		{"atomics", cpu.ARM64.HasATOMICS},
		{"jscvt", cpu.ARM64.HasJSCVT},
	}
	return lo.FilterMap(features, func(f hostFeature, _ int) (string, bool) {
		return f.name, f.has
	})
}
