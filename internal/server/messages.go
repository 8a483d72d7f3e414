package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-chatrelay/internal/types"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
)

// ClientMessage is a decoded inbound event. Exactly one of the payload
// fields is set.
type ClientMessage struct {
	Event  string
	Join   *Join
	Send   *types.SendMessagePayload
	Pin    *types.MessageRefPayload
	Unpin  *types.MessageRefPayload
	React  *types.AddReactionPayload
	Delete *types.DeleteMessagesPayload
	// Leave is never decoded from the wire; it is issued when a
	// connection closes.
	Leave  *Leave
	client *Client
	// closed marks the last message of a connection.
	closed bool
}

type Join struct {
	RoomId string
}

type Leave struct {
	RoomId string
}

func (m *ClientMessage) RoomId() string {
	switch {
	case m.Join != nil:
		return m.Join.RoomId
	case m.Leave != nil:
		return m.Leave.RoomId
	case m.Send != nil:
		return m.Send.RoomId
	case m.Pin != nil:
		return m.Pin.RoomId
	case m.Unpin != nil:
		return m.Unpin.RoomId
	case m.React != nil:
		return m.React.RoomId
	case m.Delete != nil:
		return m.Delete.RoomId
	}
	return ""
}

func parseClientMessage(raw []byte) (*ClientMessage, error) {
	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	msg := &ClientMessage{Event: env.Event}
	var err error
	switch env.Event {
	case types.EventJoinRoom:
		var roomId string
		if err = json.Unmarshal(env.Data, &roomId); err == nil {
			msg.Join = &Join{RoomId: roomId}
		}
	case types.EventSendMessage:
		msg.Send = &types.SendMessagePayload{}
		if err = json.Unmarshal(env.Data, msg.Send); err == nil && msg.Send.Message == nil {
			err = fmt.Errorf("%w: missing message", ErrInvalidPayload)
		}
	case types.EventPinMessage:
		msg.Pin = &types.MessageRefPayload{}
		err = json.Unmarshal(env.Data, msg.Pin)
	case types.EventUnpinMessage:
		msg.Unpin = &types.MessageRefPayload{}
		err = json.Unmarshal(env.Data, msg.Unpin)
	case types.EventAddReaction:
		msg.React = &types.AddReactionPayload{}
		err = json.Unmarshal(env.Data, msg.React)
	case types.EventDeleteMessages:
		msg.Delete = &types.DeleteMessagesPayload{}
		err = json.Unmarshal(env.Data, msg.Delete)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Event, err)
	}

	if msg.RoomId() == "" {
		return nil, fmt.Errorf("%w: missing room id", ErrInvalidPayload)
	}

	return msg, nil
}

// ServerMessage is an outbound frame. Data never aliases room state held
// by the store, so it can be shared across clients and encoded later on
// their write goroutines.
type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func RoomMessages(msgs []types.Message) *ServerMessage {
	return &ServerMessage{Event: types.EventRoomMessages, Data: types.CloneMessages(msgs)}
}

func PinnedMessages(msgs []types.Message) *ServerMessage {
	return &ServerMessage{Event: types.EventPinnedMessages, Data: types.CloneMessages(msgs)}
}

func NewMessage(m types.Message) *ServerMessage {
	return &ServerMessage{Event: types.EventNewMessage, Data: m.Clone()}
}

func MessagePinned(m types.Message) *ServerMessage {
	return &ServerMessage{Event: types.EventMessagePinned, Data: m.Clone()}
}

func MessageUnpinned(messageId string) *ServerMessage {
	return &ServerMessage{Event: types.EventMessageUnpinned, Data: messageId}
}

func ReactionAdded(messageId string, reactions []types.Reaction) *ServerMessage {
	return &ServerMessage{
		Event: types.EventReactionAdded,
		Data: types.ReactionUpdate{
			MessageId: messageId,
			Reactions: types.CloneReactions(reactions),
		},
	}
}

func MessagesDeleted(messageIds []string) *ServerMessage {
	ids := make([]string, len(messageIds))
	copy(ids, messageIds)
	return &ServerMessage{Event: types.EventMessagesDeleted, Data: ids}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
