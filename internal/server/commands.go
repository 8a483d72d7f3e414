package server

import (
	"slices"
	"time"

	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/oklog/ulid/v2"
)

// command applies one inbound event to a live room. It returns the frame to
// broadcast and whether the event took effect; false means the event was a
// no-op and the room must be neither saved nor broadcast to.
type command func(r *types.Room) (*ServerMessage, bool)

// commandFor maps a decoded event onto its command. Join and Leave change
// membership, not room state, and have no command.
func commandFor(msg *ClientMessage, now time.Time) command {
	switch {
	case msg.Send != nil:
		return sendCommand(msg.Send.Message, ulid.Make().String(), now)
	case msg.Pin != nil:
		return pinCommand(msg.Pin.MessageId)
	case msg.Unpin != nil:
		return unpinCommand(msg.Unpin.MessageId)
	case msg.React != nil:
		return reactionCommand(msg.React.MessageId, msg.React.Emoji, msg.React.UserId)
	case msg.Delete != nil:
		return deleteCommand(msg.Delete.MessageIds)
	}
	return nil
}

func sendCommand(out *types.OutgoingMessage, id string, now time.Time) command {
	return func(r *types.Room) (*ServerMessage, bool) {
		if out == nil {
			return nil, false
		}

		m := types.Message{
			Id:        id,
			Text:      out.Text,
			UserId:    out.UserId,
			UserName:  out.UserName,
			Timestamp: types.FormatTimestamp(now),
			Reactions: []types.Reaction{},
		}
		if out.FileInfo != nil {
			fi := *out.FileInfo
			m.FileInfo = &fi
		}

		r.Messages = append(r.Messages, m)
		return NewMessage(m), true
	}
}

// pinCommand stores a snapshot of the message; later reaction changes on
// the original are not reflected in the pinned copy.
func pinCommand(messageId string) command {
	return func(r *types.Room) (*ServerMessage, bool) {
		i := r.FindMessage(messageId)
		if i < 0 || r.IsPinned(messageId) {
			return nil, false
		}

		snapshot := r.Messages[i].Clone()
		r.PinnedMessages = append(r.PinnedMessages, snapshot)
		return MessagePinned(snapshot), true
	}
}

func unpinCommand(messageId string) command {
	return func(r *types.Room) (*ServerMessage, bool) {
		r.PinnedMessages = slices.DeleteFunc(r.PinnedMessages, func(m types.Message) bool {
			return m.Id == messageId
		})
		return MessageUnpinned(messageId), true
	}
}

// reactionCommand adds userId to the emoji's bucket. Reacting twice with
// the same emoji is idempotent; the current list is still broadcast.
func reactionCommand(messageId, emoji, userId string) command {
	return func(r *types.Room) (*ServerMessage, bool) {
		i := r.FindMessage(messageId)
		if i < 0 {
			return nil, false
		}

		msg := &r.Messages[i]
		j := slices.IndexFunc(msg.Reactions, func(re types.Reaction) bool { return re.Emoji == emoji })
		switch {
		case j < 0:
			msg.Reactions = append(msg.Reactions, types.Reaction{
				Emoji: emoji,
				Users: []string{userId},
				Count: 1,
			})
		case !slices.Contains(msg.Reactions[j].Users, userId):
			msg.Reactions[j].Users = append(msg.Reactions[j].Users, userId)
			msg.Reactions[j].Count = len(msg.Reactions[j].Users)
		}

		return ReactionAdded(messageId, msg.Reactions), true
	}
}

func deleteCommand(messageIds []string) command {
	return func(r *types.Room) (*ServerMessage, bool) {
		del := func(m types.Message) bool { return slices.Contains(messageIds, m.Id) }
		r.Messages = slices.DeleteFunc(r.Messages, del)
		r.PinnedMessages = slices.DeleteFunc(r.PinnedMessages, del)
		return MessagesDeleted(messageIds), true
	}
}
