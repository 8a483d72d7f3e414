package cmd

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/npezzotti/go-chatrelay/internal/connector"
	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/spf13/cobra"
)

var (
	userId     string
	userName   string
	attachPath string
)

func init() {
	defaultUser := os.Getenv("USER")
	if defaultUser == "" {
		defaultUser = "relayctl"
	}

	sendCmd.Flags().StringVarP(&userId, "user-id", "u", defaultUser, "sender id")
	sendCmd.Flags().StringVarP(&userName, "user-name", "n", "", "sender display name (defaults to the user id)")
	sendCmd.Flags().StringVarP(&attachPath, "file", "f", "", "attach a file inline")
	reactCmd.Flags().StringVarP(&userId, "user-id", "u", defaultUser, "reacting user id")

	rootCmd.AddCommand(sendCmd, pinCmd, unpinCmd, reactCmd, deleteCmd)
}

func readAttachment(path string) (*types.FileInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}

	return &types.FileInfo{
		Name:   filepath.Base(path),
		Size:   int64(len(data)),
		Type:   http.DetectContentType(data),
		Base64: base64.StdEncoding.EncodeToString(data),
	}, nil
}

var sendCmd = &cobra.Command{
	Use:   "send [room-id] [text...]",
	Short: "Send a message to a room",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg := types.OutgoingMessage{
			Text:     strings.Join(args[1:], " "),
			UserId:   userId,
			UserName: userName,
		}
		if msg.UserName == "" {
			msg.UserName = userId
		}
		if attachPath != "" {
			fi, err := readAttachment(attachPath)
			if err != nil {
				return err
			}
			msg.FileInfo = fi
			fmt.Fprintf(cmd.ErrOrStderr(), "attaching %s (%s)\n", fi.Name, humanize.Bytes(uint64(fi.Size)))
		}

		sent, err := roundTrip(cmd.Context(), args[0],
			func(c *connector.Connector, got chan<- types.Message) {
				c.OnNewMessage(func(m types.Message) {
					if m.UserId == msg.UserId && m.Text == msg.Text {
						forward(got, m)
					}
				})
			},
			func(c *connector.Connector) error { return c.SendMessage(args[0], msg) },
		)
		if err != nil {
			return err
		}

		printMessage(cmd.OutOrStdout(), sent, false)
		return nil
	},
}

var pinCmd = &cobra.Command{
	Use:   "pin [room-id] [message-id]",
	Short: "Pin a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomId, messageId := args[0], args[1]
		pinned, err := roundTrip(cmd.Context(), roomId,
			func(c *connector.Connector, got chan<- types.Message) {
				c.OnMessagePinned(func(m types.Message) {
					if m.Id == messageId {
						forward(got, m)
					}
				})
			},
			func(c *connector.Connector) error { return c.PinMessage(roomId, messageId) },
		)
		if err != nil {
			return fmt.Errorf("pin %s (unknown or already pinned?): %w", messageId, err)
		}

		printMessage(cmd.OutOrStdout(), pinned, true)
		return nil
	},
}

var unpinCmd = &cobra.Command{
	Use:   "unpin [room-id] [message-id]",
	Short: "Unpin a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomId, messageId := args[0], args[1]
		id, err := roundTrip(cmd.Context(), roomId,
			func(c *connector.Connector, got chan<- string) {
				c.OnMessageUnpinned(func(id string) {
					if id == messageId {
						forward(got, id)
					}
				})
			},
			func(c *connector.Connector) error { return c.UnpinMessage(roomId, messageId) },
		)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "unpinned %s\n", id)
		return nil
	},
}

var reactCmd = &cobra.Command{
	Use:   "react [room-id] [message-id] [emoji]",
	Short: "Add a reaction to a message",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomId, messageId, emoji := args[0], args[1], args[2]
		update, err := roundTrip(cmd.Context(), roomId,
			func(c *connector.Connector, got chan<- types.ReactionUpdate) {
				c.OnReactionAdded(func(u types.ReactionUpdate) {
					if u.MessageId == messageId {
						forward(got, u)
					}
				})
			},
			func(c *connector.Connector) error { return c.AddReaction(roomId, messageId, emoji, userId) },
		)
		if err != nil {
			return fmt.Errorf("react to %s (unknown message?): %w", messageId, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", update.MessageId, formatReactions(update.Reactions))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [room-id] [message-id...]",
	Short: "Delete messages from a room",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomId, messageIds := args[0], args[1:]
		ids, err := roundTrip(cmd.Context(), roomId,
			func(c *connector.Connector, got chan<- []string) {
				c.OnMessagesDeleted(func(ids []string) {
					if slices.Equal(ids, messageIds) {
						forward(got, ids)
					}
				})
			},
			func(c *connector.Connector) error { return c.DeleteMessages(roomId, messageIds) },
		)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", strings.Join(ids, ", "))
		return nil
	},
}
