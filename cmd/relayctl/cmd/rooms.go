package cmd

import (
	"net/url"

	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(roomsCmd)
	rootCmd.AddCommand(roomCmd)
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms with message and pin counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var rooms []types.RoomSummary
		if err := apiGet(cmd.Context(), "/api/rooms", &rooms); err != nil {
			return err
		}
		printRooms(cmd.OutOrStdout(), rooms)
		return nil
	},
}

var roomCmd = &cobra.Command{
	Use:   "room [room-id]",
	Short: "Show a room's history, marking pinned messages with *",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var room types.Room
		if err := apiGet(cmd.Context(), "/api/rooms/"+url.PathEscape(args[0]), &room); err != nil {
			return err
		}
		printRoom(cmd.OutOrStdout(), room)
		return nil
	},
}
