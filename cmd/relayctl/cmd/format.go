package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/npezzotti/go-chatrelay/internal/types"
)

func printRooms(w io.Writer, rooms []types.RoomSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMESSAGES\tPINNED")
	for _, r := range rooms {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", r.Id, r.Name, r.MessageCount, r.PinnedCount)
	}
	tw.Flush()
}

func printMessage(w io.Writer, m types.Message, pinned bool) {
	marker := " "
	if pinned {
		marker = "*"
	}
	fmt.Fprintf(w, "%s [%s] %s: %s (%s)\n", marker, m.Timestamp, m.UserName, m.Text, m.Id)

	if m.FileInfo != nil {
		fmt.Fprintf(w, "    attachment: %s (%s, %s)\n", m.FileInfo.Name, m.FileInfo.Type, humanize.Bytes(uint64(m.FileInfo.Size)))
	}
	if len(m.Reactions) > 0 {
		fmt.Fprintf(w, "    reactions: %s\n", formatReactions(m.Reactions))
	}
}

func printRoom(w io.Writer, room types.Room) {
	fmt.Fprintf(w, "%s (%s): %d messages, %d pinned\n", room.Name, room.Id, len(room.Messages), len(room.PinnedMessages))
	for _, m := range room.Messages {
		printMessage(w, m, room.IsPinned(m.Id))
	}
}

func formatReactions(reactions []types.Reaction) string {
	parts := make([]string, 0, len(reactions))
	for _, r := range reactions {
		parts = append(parts, fmt.Sprintf("%s %d", r.Emoji, r.Count))
	}
	return strings.Join(parts, ", ")
}
