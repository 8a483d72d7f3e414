package types

import "encoding/json"

// Client to server events.
const (
	EventJoinRoom       = "join-room"
	EventSendMessage    = "send-message"
	EventPinMessage     = "pin-message"
	EventUnpinMessage   = "unpin-message"
	EventAddReaction    = "add-reaction"
	EventDeleteMessages = "delete-messages"
)

// Server to client events.
const (
	EventRoomMessages    = "room-messages"
	EventPinnedMessages  = "pinned-messages"
	EventNewMessage      = "new-message"
	EventMessagePinned   = "message-pinned"
	EventMessageUnpinned = "message-unpinned"
	EventReactionAdded   = "reaction-added"
	EventMessagesDeleted = "messages-deleted"
)

// Envelope is the frame exchanged in both directions over the websocket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type OutgoingMessage struct {
	Text     string    `json:"text"`
	UserId   string    `json:"userId"`
	UserName string    `json:"userName"`
	FileInfo *FileInfo `json:"fileInfo,omitempty"`
}

type SendMessagePayload struct {
	RoomId  string           `json:"roomId"`
	Message *OutgoingMessage `json:"message"`
}

type MessageRefPayload struct {
	RoomId    string `json:"roomId"`
	MessageId string `json:"messageId"`
}

type AddReactionPayload struct {
	RoomId    string `json:"roomId"`
	MessageId string `json:"messageId"`
	Emoji     string `json:"emoji"`
	UserId    string `json:"userId"`
}

type DeleteMessagesPayload struct {
	RoomId     string   `json:"roomId"`
	MessageIds []string `json:"messageIds"`
}

// ReactionUpdate is the payload of reaction-added: the full reaction list
// of a single message.
type ReactionUpdate struct {
	MessageId string     `json:"messageId"`
	Reactions []Reaction `json:"reactions"`
}

// NewEnvelope encodes data and wraps it in an envelope for event.
func NewEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
