package connector

import (
	"encoding/json"

	"github.com/npezzotti/go-chatrelay/internal/types"
)

// Listeners run on the connection's read goroutine, in frame order.
// Registering several for one event adds to the list.

func on[T any](c *Connector, event string, fn func(T)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	c.listeners[event] = append(c.listeners[event], func(raw json.RawMessage) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			c.log.Warn().Err(err).Str("event", event).Msg("failed to decode event")
			return
		}
		fn(v)
	})
}

func (c *Connector) OnRoomMessages(fn func([]types.Message)) {
	on(c, types.EventRoomMessages, fn)
}

func (c *Connector) OnPinnedMessages(fn func([]types.Message)) {
	on(c, types.EventPinnedMessages, fn)
}

func (c *Connector) OnNewMessage(fn func(types.Message)) {
	on(c, types.EventNewMessage, fn)
}

func (c *Connector) OnMessagePinned(fn func(types.Message)) {
	on(c, types.EventMessagePinned, fn)
}

func (c *Connector) OnMessageUnpinned(fn func(messageId string)) {
	on(c, types.EventMessageUnpinned, fn)
}

func (c *Connector) OnReactionAdded(fn func(types.ReactionUpdate)) {
	on(c, types.EventReactionAdded, fn)
}

func (c *Connector) OnMessagesDeleted(fn func(messageIds []string)) {
	on(c, types.EventMessagesDeleted, fn)
}

// RemoveAllListeners detaches every registered callback.
func (c *Connector) RemoveAllListeners() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	clear(c.listeners)
}
