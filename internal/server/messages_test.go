package server

import (
	"testing"

	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientMessage(t *testing.T) {
	tcases := []struct {
		name    string
		raw     string
		want    *ClientMessage
		wantErr error
	}{
		{
			name: "join",
			raw:  `{"event":"join-room","data":"r1"}`,
			want: &ClientMessage{Event: types.EventJoinRoom, Join: &Join{RoomId: "r1"}},
		},
		{
			name: "send",
			raw:  `{"event":"send-message","data":{"roomId":"r1","message":{"text":"hi","userId":"u1","userName":"Alice"}}}`,
			want: &ClientMessage{Event: types.EventSendMessage, Send: &types.SendMessagePayload{
				RoomId:  "r1",
				Message: &types.OutgoingMessage{Text: "hi", UserId: "u1", UserName: "Alice"},
			}},
		},
		{
			name: "pin",
			raw:  `{"event":"pin-message","data":{"roomId":"r1","messageId":"m1"}}`,
			want: &ClientMessage{Event: types.EventPinMessage, Pin: &types.MessageRefPayload{RoomId: "r1", MessageId: "m1"}},
		},
		{
			name: "unpin",
			raw:  `{"event":"unpin-message","data":{"roomId":"r1","messageId":"m1"}}`,
			want: &ClientMessage{Event: types.EventUnpinMessage, Unpin: &types.MessageRefPayload{RoomId: "r1", MessageId: "m1"}},
		},
		{
			name: "react",
			raw:  `{"event":"add-reaction","data":{"roomId":"r1","messageId":"m1","emoji":"👍","userId":"u1"}}`,
			want: &ClientMessage{Event: types.EventAddReaction, React: &types.AddReactionPayload{
				RoomId: "r1", MessageId: "m1", Emoji: "👍", UserId: "u1",
			}},
		},
		{
			name: "delete",
			raw:  `{"event":"delete-messages","data":{"roomId":"r1","messageIds":["m1","m2"]}}`,
			want: &ClientMessage{Event: types.EventDeleteMessages, Delete: &types.DeleteMessagesPayload{
				RoomId: "r1", MessageIds: []string{"m1", "m2"},
			}},
		},
		{
			name:    "unknown event",
			raw:     `{"event":"leave-room","data":"r1"}`,
			wantErr: ErrUnknownEvent,
		},
		{
			name:    "send without message",
			raw:     `{"event":"send-message","data":{"roomId":"r1"}}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "missing room id",
			raw:     `{"event":"pin-message","data":{"messageId":"m1"}}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "empty join",
			raw:     `{"event":"join-room","data":""}`,
			wantErr: ErrInvalidPayload,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseClientMessage([]byte(tc.raw))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseClientMessage_malformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"event":"join-room"}`,
		`{"event":"join-room","data":{"roomId":"r1"}}`,
		`{"event":"delete-messages","data":{"roomId":"r1","messageIds":"m1"}}`,
	} {
		_, err := parseClientMessage([]byte(raw))
		assert.Error(t, err, "expected error for %s", raw)
	}
}

func TestClientMessageRoomId(t *testing.T) {
	assert.Equal(t, "r1", (&ClientMessage{Leave: &Leave{RoomId: "r1"}}).RoomId())
	assert.Equal(t, "r2", (&ClientMessage{Delete: &types.DeleteMessagesPayload{RoomId: "r2"}}).RoomId())
	assert.Empty(t, (&ClientMessage{}).RoomId())
}

func TestServerMessagesCopyData(t *testing.T) {
	msgs := []types.Message{{Id: "1", Reactions: []types.Reaction{{Emoji: "👍", Users: []string{"u1"}, Count: 1}}}}
	out := RoomMessages(msgs)

	msgs[0].Reactions[0].Users[0] = "changed"
	assert.Equal(t, "u1", out.Data.([]types.Message)[0].Reactions[0].Users[0])

	ids := []string{"1"}
	deleted := MessagesDeleted(ids)
	ids[0] = "changed"
	assert.Equal(t, []string{"1"}, deleted.Data)
}
