package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dshills/clangcomplete/internal/completer"
)

func newTriggerCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger TEXT COL",
		Short: "Report whether typing at a 1-based column of TEXT triggers semantic completion",
		Example: `  clangcomplete trigger 'foo->' 6     # true
  clangcomplete trigger 'a - b' 4     # false`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid column %q", args[1])
			}
			p, err := newPrinter(opts)
			if err != nil {
				return err
			}
			p.line(strconv.FormatBool(completer.ShouldTrigger(args[0], col)))
			return nil
		},
	}
}
