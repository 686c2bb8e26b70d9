package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSandboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sandbox <character id>",
		Short: "Chat freely with an archived character",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			character, history, err := s.engine.Sandbox.Open(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %s\n", character.Name, history[0].Content)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" {
					return nil
				}
				updated, err := s.engine.Sandbox.Chat(cmd.Context(), character.ID, history, line)
				if err != nil {
					fmt.Fprintln(out, "error:", err)
					continue
				}
				history = updated
				fmt.Fprintf(out, "%s: %s\n", character.Name, history[len(history)-1].Content)
			}
		},
	}
}
