// Package main provides the a64dbt command line.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/a64dbt/translate"
)

func getCmdTranslate(gs *globalState) *cobra.Command {
	var (
		file string
		base uint64
	)

	translateCmd := &cobra.Command{
		Use:   "translate [word...]",
		Short: "Translate a block and print its IR",
		Long: `Translate a block and print its IR.

  The words are placed at --pc and one block is translated from there.
  Addresses past the last word read as zero, which is an illegal encoding.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			words, err := readWords(gs.fs, file, args)
			if err != nil {
				return err
			}

			t := translate.New(
				translate.WithConfig(gs.cfg),
				translate.WithLogger(gs.logger),
			)
			fetch := translate.FetchFunc(func(pc uint64) uint32 {
				if pc < base || pc-base >= uint64(4*len(words)) {
					return 0
				}
				return words[(pc-base)/4]
			})

			b := translate.NewBlock(base)
			res, err := t.TranslateBlock(base, fetch, b)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprint(gs.stdout, b.String())
			_, _ = fmt.Fprintf(gs.stdout, "; next %#x\n", res.Next)
			return nil
		},
	}

	translateCmd.Flags().StringVarP(&file, "file", "f", "", "raw image to translate from")
	translateCmd.Flags().Uint64Var(&base, "pc", 0x1000, "address of the first word")
	return translateCmd
}
