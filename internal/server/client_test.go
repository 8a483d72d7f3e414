package server

import (
	"testing"

	"github.com/npezzotti/go-chatrelay/internal/testutil"
	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg, "expected a message to be sent to the client")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})

	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_serializeMessage(t *testing.T) {
	tcases := []struct {
		name     string
		msg      *ServerMessage
		expected string
	}{
		{
			name:     "unpinned",
			msg:      MessageUnpinned("m1"),
			expected: `{"event":"message-unpinned","data":"m1"}`,
		},
		{
			name:     "empty history",
			msg:      RoomMessages([]types.Message{}),
			expected: `{"event":"room-messages","data":[]}`,
		},
		{
			name:     "deleted",
			msg:      MessagesDeleted([]string{"a", "b"}),
			expected: `{"event":"messages-deleted","data":["a","b"]}`,
		},
		{
			name: "new message",
			msg: NewMessage(types.Message{
				Id: "1", Text: "hi", UserId: "u1", UserName: "Alice",
				Timestamp: "2024-05-01T12:30:00.000Z", Reactions: []types.Reaction{},
			}),
			expected: `{"event":"new-message","data":{"id":"1","text":"hi","userId":"u1","userName":"Alice",` +
				`"timestamp":"2024-05-01T12:30:00.000Z","reactions":[]}}`,
		},
		{
			name: "reaction added",
			msg:  ReactionAdded("1", []types.Reaction{{Emoji: "👍", Users: []string{"u1"}, Count: 1}}),
			expected: `{"event":"reaction-added","data":{"messageId":"1",` +
				`"reactions":[{"emoji":"👍","users":["u1"],"count":1}]}}`,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			bytes, err := serializeMessage(tc.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tc.expected, string(bytes))
		})
	}
}

func TestClientStopIsIdempotent(t *testing.T) {
	c := &Client{stop: make(chan struct{})}
	c.stopClient()
	assert.NotPanics(t, c.stopClient)

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}
