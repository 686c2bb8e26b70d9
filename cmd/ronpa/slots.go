package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"ronpa-server/shared/models"

	"github.com/spf13/cobra"
)

func newSlotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List save slots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			slots, err := s.engine.Store.ListSlots(cmd.Context())
			if err != nil && !errors.Is(err, models.ErrCorruptState) {
				return err
			}
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tPHASE\tTURNS\tALIVE\tLAST PLAYED")
			for _, slot := range slots {
				phase, turns, alive := "-", 0, 0
				if slot.State != nil {
					phase = string(slot.State.Phase)
					turns = slot.State.TurnCount
					alive = models.CountAlive(slot.State.Characters)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", slot.ID, slot.Title, phase, turns, alive,
					time.UnixMilli(slot.LastPlayed).Format(time.DateTime))
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <game id>",
		Short: "Delete a save slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.engine.Store.DeleteSlot(cmd.Context(), args[0])
		},
	})
	return cmd
}
