package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/npezzotti/go-chatrelay/internal/connector"
	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listenCmd)
}

var listenCmd = &cobra.Command{
	Use:   "listen [room-id]",
	Short: "Join a room and print its events until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Disconnect()

		subscribeAll(c, cmd)
		if err := c.JoinRoom(args[0]); err != nil {
			return err
		}

		<-ctx.Done()
		return nil
	},
}

func subscribeAll(c *connector.Connector, cmd *cobra.Command) {
	out := cmd.OutOrStdout()

	c.OnRoomMessages(func(msgs []types.Message) {
		fmt.Fprintf(out, "-- history: %d messages\n", len(msgs))
		for _, m := range msgs {
			printMessage(out, m, false)
		}
	})
	c.OnPinnedMessages(func(msgs []types.Message) {
		fmt.Fprintf(out, "-- pinned: %d messages\n", len(msgs))
		for _, m := range msgs {
			printMessage(out, m, true)
		}
	})
	c.OnNewMessage(func(m types.Message) {
		printMessage(out, m, false)
	})
	c.OnMessagePinned(func(m types.Message) {
		fmt.Fprintf(out, "-- pinned %s\n", m.Id)
	})
	c.OnMessageUnpinned(func(id string) {
		fmt.Fprintf(out, "-- unpinned %s\n", id)
	})
	c.OnReactionAdded(func(u types.ReactionUpdate) {
		fmt.Fprintf(out, "-- reactions on %s: %s\n", u.MessageId, formatReactions(u.Reactions))
	})
	c.OnMessagesDeleted(func(ids []string) {
		fmt.Fprintf(out, "-- deleted %s\n", strings.Join(ids, ", "))
	})
}
