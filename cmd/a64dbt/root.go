// Package main provides the a64dbt command line.
package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sarchlab/a64dbt/translate"
)

// globalState is shared by all commands. Tests swap the filesystem, the
// writers and the environment.
type globalState struct {
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
	lookup func(string) (string, bool)
	logger *logrus.Logger

	cfg      translate.Config
	logLevel string
}

func newGlobalState(stdout, stderr io.Writer, lookup func(string) (string, bool)) *globalState {
	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	return &globalState{
		fs:     afero.NewOsFs(),
		stdout: stdout,
		stderr: stderr,
		lookup: lookup,
		logger: logger,
	}
}

// exitError carries a guest exit status through cobra.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func newRootCommand(gs *globalState) *cobra.Command {
	root := &cobra.Command{
		Use:           "a64dbt",
		Short:         "ARM64 decoder, translator and interpreter",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return gs.configure(cmd)
		},
	}
	root.PersistentFlags().StringVar(&gs.logLevel, "log-level", "",
		"log level (overrides A64DBT_LOG_LEVEL)")

	root.AddCommand(
		getCmdDecode(gs),
		getCmdTranslate(gs),
		getCmdRun(gs),
		getCmdInfo(gs),
	)
	return root
}

// configure reads the environment, then applies the command line on top.
func (gs *globalState) configure(cmd *cobra.Command) error {
	cfg, err := translate.LoadConfig(gs.lookup)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = gs.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	gs.cfg = cfg
	gs.logger.SetLevel(cfg.Level())
	return nil
}

// execute runs the command line and returns the process exit status.
func execute(gs *globalState, args []string) int {
	root := newRootCommand(gs)
	root.SetArgs(args)
	root.SetOut(gs.stdout)
	root.SetErr(gs.stderr)

	err := root.Execute()
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	gs.logger.WithError(err).Error("a64dbt failed")
	return 1
}
