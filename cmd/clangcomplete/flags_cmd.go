package main

import (
	"github.com/spf13/cobra"
)

func newFlagsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flags FILE",
		Short: "Print the compile flags used for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(opts)
			if err != nil {
				return err
			}

			s, err := openSession(cmd.Context(), opts, args[0], false)
			if err != nil {
				return err
			}
			defer s.Close()

			p.line(s.coord.DescribeFlags(args[0]))
			return nil
		},
	}
}
