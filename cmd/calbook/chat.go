package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hrygo/calbook/plugin/ai/schedule"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the booking engine from the terminal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		conversationID, _ := cmd.Flags().GetString("conversation")
		if conversationID == "" {
			conversationID = uuid.NewString()
		}

		ctx := cmd.Context()
		s, err := newServer(ctx)
		if err != nil {
			return err
		}
		defer s.Shutdown(ctx)

		return chatLoop(cmd.InOrStdin(), cmd.OutOrStdout(), func(line string) *schedule.ActionResult {
			return s.Executor().HandleTurn(ctx, conversationID, line, time.Now())
		})
	},
}

func init() {
	chatCmd.Flags().String("conversation", "", "conversation id to continue (default: a new one)")
}

// chatLoop feeds each input line to turn and prints the reply until EOF or
// "exit".
func chatLoop(in io.Reader, out io.Writer, turn func(string) *schedule.ActionResult) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "exit", "quit":
			return nil
		default:
			result := turn(line)
			fmt.Fprintln(out, result.Message)
			for _, e := range result.Events {
				fmt.Fprintf(out, "  - %s (%s)\n", e.Title, e.Window.Start.Format("Mon Jan 2 15:04"))
			}
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}
