package main

import (
	"github.com/spf13/cobra"
)

func newDiagnoseCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose FILE",
		Short: "Parse a file and print its diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(opts)
			if err != nil {
				return err
			}

			s, err := openSession(cmd.Context(), opts, args[0], true)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.open(args[0]); err != nil {
				return err
			}

			views, parsed, err := s.parse(cmd.Context())
			p.notices(s.host.Messages())
			if err != nil {
				return err
			}
			if !parsed {
				return s.declined()
			}

			for _, v := range views {
				name, ok := s.host.BufferName(v.BufferNumber)
				if !ok {
					name = args[0]
				}
				p.diagnostic(name, v)
			}
			return nil
		},
	}
}
