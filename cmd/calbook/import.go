package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hrygo/calbook/plugin/ai/aitime"
	"github.com/hrygo/calbook/plugin/calendar/ics"
)

var importCmd = &cobra.Command{
	Use:   "import <file.ics>",
	Short: "Import events from an iCalendar file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		ctx := cmd.Context()
		s, err := newServer(ctx)
		if err != nil {
			return err
		}
		defer s.Shutdown(ctx)

		events, err := ics.Parse(f, aitime.LoadLocation(s.Profile.Timezone))
		if err != nil {
			return err
		}

		imported := 0
		for _, e := range events {
			// Creates are keyed by UID, so importing a file twice is harmless.
			if _, err := s.Calendar().CreateEvent(ctx, e.CreateRequest()); err != nil {
				slog.Warn("failed to import event", "uid", e.UID, "error", err)
				continue
			}
			imported++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d events\n", imported, len(events))
		return nil
	},
}
