package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newCompleteCmd(opts *globalOptions) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "complete FILE LINE COL",
		Short: "Print completions at a 1-based position",
		Long: `Parse FILE, then request completions at LINE and COL (both 1-based).
COL is the column where the completed identifier starts; --query holds the
characters typed so far and filters the results by prefix.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, col, err := parsePosition(args[1], args[2])
			if err != nil {
				return err
			}
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
			s.host.SetCursor(line-1, col-1)

			// Parsing first sends the flags and the buffer to the server.
			if _, parsed, err := s.parse(cmd.Context()); err != nil {
				p.notices(s.host.Messages())
				return err
			} else if !parsed {
				return s.declined()
			}

			if s.coord.RequestCompletions(cmd.Context(), query, args[0], line, col) == nil {
				p.notices(s.host.Messages())
				return nil
			}

			items, err := s.coord.FetchCompletionResults(cmd.Context())
			p.notices(s.host.Messages())
			if err != nil {
				return err
			}
			for _, item := range items {
				p.completion(item)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "typed prefix to filter completions by")
	return cmd
}

func newDetailCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detail FILE LINE COL",
		Short: "Print the full text of the diagnostic nearest a 1-based position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, col, err := parsePosition(args[1], args[2])
			if err != nil {
				return err
			}
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

			if _, parsed, err := s.parse(cmd.Context()); err != nil {
				p.notices(s.host.Messages())
				return err
			} else if !parsed {
				return s.declined()
			}

			s.host.SetCursor(line-1, col-1)
			d, ok := s.coord.ShowDetailedDiagnosticAtCursor()
			if !ok {
				p.notices(s.host.Messages())
				return nil
			}
			p.line(d.LongText)
			return nil
		},
	}
}

// parsePosition parses a 1-based line and column.
func parsePosition(lineArg, colArg string) (int, int, error) {
	line, err := strconv.Atoi(lineArg)
	if err != nil || line < 1 {
		return 0, 0, fmt.Errorf("invalid line %q", lineArg)
	}
	col, err := strconv.Atoi(colArg)
	if err != nil || col < 1 {
		return 0, 0, fmt.Errorf("invalid column %q", colArg)
	}
	return line, col, nil
}
