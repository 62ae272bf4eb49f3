// Package main provides the a64dbt command line.
package main

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sarchlab/a64dbt/insts"
)

func getCmdDecode(gs *globalState) *cobra.Command {
	var (
		file string
		base uint64
	)

	decodeCmd := &cobra.Command{
		Use:   "decode [word...]",
		Short: "Classify and disassemble instruction words",
		Long: `Classify and disassemble instruction words.

  Words are given as hex arguments, or read from a raw little-endian image
  with --file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			words, err := readWords(gs.fs, file, args)
			if err != nil {
				return err
			}
			for i, w := range words {
				pc := base + uint64(4*i)
				class := insts.Classify(w)
				_, _ = fmt.Fprintf(gs.stdout, "0x%08x: %08x  %-22s %s\n",
					pc, w, class, insts.Disassemble(w))
			}
			return nil
		},
	}

	decodeCmd.Flags().StringVarP(&file, "file", "f", "", "raw image to decode")
	decodeCmd.Flags().Uint64Var(&base, "pc", 0, "address of the first word")
	return decodeCmd
}

// readWords returns the words named on the command line, or the contents of
// file when one is given.
func readWords(fs afero.Fs, file string, args []string) ([]uint32, error) {
	if file != "" {
		data, err := afero.ReadFile(fs, file)
		if err != nil {
			return nil, err
		}
		if len(data)%4 != 0 {
			return nil, fmt.Errorf("%s: size %d is not a multiple of 4", file, len(data))
		}
		return lo.Map(lo.Chunk(data, 4), func(b []byte, _ int) uint32 {
			return binary.LittleEndian.Uint32(b)
		}), nil
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("no instruction words given")
	}
	words := make([]uint32, 0, len(args))
	for _, a := range args {
		w, err := parseWord(a)
		if err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, nil
}

func parseWord(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("bad instruction word %q: %w", s, err)
	}
	return uint32(v), nil
}
