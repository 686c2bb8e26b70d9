package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "List archived characters and their careers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			entries := s.engine.Archive.List()
			if len(entries) == 0 {
				fmt.Fprintln(out, "The archive is empty.")
				return nil
			}
			printCast(out, entries)
			for _, c := range entries {
				for _, h := range c.History {
					fmt.Fprintf(out, "  %s: %s in %q (%s)\n", c.Name, h.Outcome, h.GameTitle, h.Details)
				}
			}
			return nil
		},
	}
}
