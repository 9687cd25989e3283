// Package main is the entry point for the clangcomplete command.
//
// clangcomplete drives the completion coordinator against a clangd process
// from the command line: parse a file and list its diagnostics, request
// completions at a position, or inspect the compile flags a file gets.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	logFile    string
	color      string

	stdout io.Writer
	stderr io.Writer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "clangcomplete",
		Short:         "Semantic completion and diagnostics for C-family files",
		Long:          `clangcomplete coordinates completion and diagnostics requests against clangd`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "path to configuration file (.toml, .yaml)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFile, "log-file", "", "write JSON logs to this file instead of stderr")
	pf.StringVar(&opts.color, "color", "auto", "colorize output (auto|on|off)")

	root.AddCommand(
		newDiagnoseCmd(opts),
		newCompleteCmd(opts),
		newDetailCmd(opts),
		newFlagsCmd(opts),
		newTriggerCmd(opts),
		newVersionCmd(opts),
	)
	return root
}
