package connector

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatrelay/internal/api"
	"github.com/npezzotti/go-chatrelay/internal/config"
	"github.com/npezzotti/go-chatrelay/internal/database"
	"github.com/npezzotti/go-chatrelay/internal/server"
	"github.com/npezzotti/go-chatrelay/internal/stats"
	"github.com/npezzotti/go-chatrelay/internal/testutil"
	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

// startRelay serves the full relay stack over httptest.
func startRelay(t *testing.T) (string, *database.RoomStore) {
	t.Helper()

	logger := testutil.TestLogger(t)
	store := database.NewRoomStore(logger, database.NewMemoryPersister())
	store.Load(context.Background())

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()
	su.On("Incr", mock.Anything).Return().Maybe()
	su.On("Decr", mock.Anything).Return().Maybe()

	cs, err := server.NewChatServer(logger, store, su, server.DefaultLimits)
	require.NoError(t, err)
	go cs.Run()

	app := api.NewRelayApp(http.NewServeMux(), logger, cs, store, &config.Config{ServerAddr: "localhost:0"})
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		cs.Shutdown(ctx)
		srv.Close()
	})

	return wsURL(srv.URL), store
}

func recv[T any](t *testing.T, ch chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for %T", *new(T))
	}
	var zero T
	return zero
}

type frame struct {
	conn int32
	env  types.Envelope
}

// fakeServer upgrades every request and records the frames it receives.
type fakeServer struct {
	srv       *httptest.Server
	requests  atomic.Int32
	conns     atomic.Int32
	reject    atomic.Bool
	dropFirst bool
	onConnect func(conn *websocket.Conn)
	frames    chan frame
}

func newFakeServer(t *testing.T, dropFirst bool, onConnect func(conn *websocket.Conn)) *fakeServer {
	fs := &fakeServer{
		dropFirst: dropFirst,
		onConnect: onConnect,
		frames:    make(chan frame, 32),
	}

	upgrader := websocket.Upgrader{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.requests.Add(1)
		if fs.reject.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := fs.conns.Add(1)
		if fs.onConnect != nil {
			fs.onConnect(conn)
		}

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env types.Envelope
			if err := json.Unmarshal(raw, &env); err == nil {
				fs.frames <- frame{conn: n, env: env}
			}
			if n == 1 && fs.dropFirst {
				return
			}
		}
	}))
	t.Cleanup(fs.srv.Close)

	return fs
}

func (fs *fakeServer) url() string {
	return wsURL(fs.srv.URL)
}

func TestNew(t *testing.T) {
	c := New(Options{URL: "ws://localhost:4000/ws"})

	assert.Equal(t, DefaultOptions.ReconnectAttempts, c.opts.ReconnectAttempts)
	assert.Equal(t, DefaultOptions.ReconnectDelay, c.opts.ReconnectDelay)
	assert.Equal(t, DefaultOptions.Timeout, c.opts.Timeout)
	assert.Equal(t, websocket.DefaultDialer, c.opts.Dialer)
	assert.False(t, c.Connected())

	c = New(Options{ReconnectAttempts: -1})
	assert.Equal(t, 0, c.opts.ReconnectAttempts)
}

func TestConnector_NotConnected(t *testing.T) {
	c := New(Options{URL: "ws://localhost:4000/ws", Logger: testutil.TestLogger(t)})

	assert.ErrorIs(t, c.JoinRoom("r1"), ErrNotConnected)
	assert.ErrorIs(t, c.SendMessage("r1", types.OutgoingMessage{Text: "hi"}), ErrNotConnected)
	assert.ErrorIs(t, c.PinMessage("r1", "m1"), ErrNotConnected)
	assert.ErrorIs(t, c.UnpinMessage("r1", "m1"), ErrNotConnected)
	assert.ErrorIs(t, c.DeleteMessages("r1", nil), ErrNotConnected)
	assert.ErrorIs(t, c.AddReaction("r1", "m1", "👍", "u1"), ErrNotConnected)
	assert.Empty(t, c.rooms, "expected failed join not to be remembered")

	c.Disconnect()
	c.Disconnect()
	assert.False(t, c.Connected())
}

func TestConnector_ConnectTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	// accept but never answer the handshake
	go func() {
		var held []net.Conn
		defer func() {
			for _, conn := range held {
				conn.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			held = append(held, conn)
		}
	}()

	c := New(Options{
		URL:     "ws://" + ln.Addr().String() + "/ws",
		Timeout: 100 * time.Millisecond,
		Logger:  testutil.TestLogger(t),
	})

	err = c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnectTimeout)
	assert.False(t, c.Connected())
}

func TestConnector_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	c := New(Options{URL: "ws://" + addr + "/ws", Logger: testutil.TestLogger(t)})

	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConnectTimeout)
	assert.False(t, c.Connected())
}

func TestConnector_RelayRoundTrip(t *testing.T) {
	url, store := startRelay(t)

	c := New(Options{URL: url, Logger: testutil.TestLogger(t)})
	t.Cleanup(c.Disconnect)

	history := make(chan []types.Message, 4)
	pinned := make(chan []types.Message, 4)
	newMsgs := make(chan types.Message, 4)
	pins := make(chan types.Message, 4)
	unpins := make(chan string, 4)
	reactions := make(chan types.ReactionUpdate, 4)
	deletes := make(chan []string, 4)

	c.OnRoomMessages(func(m []types.Message) { history <- m })
	c.OnPinnedMessages(func(m []types.Message) { pinned <- m })
	c.OnNewMessage(func(m types.Message) { newMsgs <- m })
	c.OnMessagePinned(func(m types.Message) { pins <- m })
	c.OnMessageUnpinned(func(id string) { unpins <- id })
	c.OnReactionAdded(func(u types.ReactionUpdate) { reactions <- u })
	c.OnMessagesDeleted(func(ids []string) { deletes <- ids })

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Connect(ctx), "expected second connect to be a no-op")
	assert.True(t, c.Connected())

	require.NoError(t, c.JoinRoom("lobby"))
	assert.Empty(t, recv(t, history))
	assert.Empty(t, recv(t, pinned))
	assert.True(t, store.Exists("lobby"))

	require.NoError(t, c.SendMessage("lobby", types.OutgoingMessage{Text: "hello", UserId: "u1", UserName: "Alice"}))
	msg := recv(t, newMsgs)
	assert.NotEmpty(t, msg.Id)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "Alice", msg.UserName)

	require.NoError(t, c.PinMessage("lobby", msg.Id))
	assert.Equal(t, msg.Id, recv(t, pins).Id)

	require.NoError(t, c.AddReaction("lobby", msg.Id, "👍", "u2"))
	update := recv(t, reactions)
	assert.Equal(t, msg.Id, update.MessageId)
	assert.Equal(t, []types.Reaction{{Emoji: "👍", Users: []string{"u2"}, Count: 1}}, update.Reactions)

	require.NoError(t, c.UnpinMessage("lobby", msg.Id))
	assert.Equal(t, msg.Id, recv(t, unpins))

	require.NoError(t, c.DeleteMessages("lobby", []string{msg.Id}))
	assert.Equal(t, []string{msg.Id}, recv(t, deletes))

	room, ok := store.Get("lobby")
	require.True(t, ok)
	assert.Empty(t, room.Messages)
	assert.Empty(t, room.PinnedMessages)
}

func TestConnector_Listeners(t *testing.T) {
	url, _ := startRelay(t)

	c := New(Options{URL: url, Logger: testutil.TestLogger(t)})
	t.Cleanup(c.Disconnect)
	require.NoError(t, c.Connect(context.Background()))

	first := make(chan types.Message, 4)
	second := make(chan types.Message, 4)
	c.OnNewMessage(func(m types.Message) { first <- m })
	c.OnNewMessage(func(m types.Message) { second <- m })

	history := make(chan []types.Message, 4)
	c.OnRoomMessages(func(m []types.Message) { history <- m })

	require.NoError(t, c.JoinRoom("r1"))
	recv(t, history)

	require.NoError(t, c.SendMessage("r1", types.OutgoingMessage{Text: "one"}))
	assert.Equal(t, "one", recv(t, first).Text)
	assert.Equal(t, "one", recv(t, second).Text)

	c.RemoveAllListeners()
	c.OnRoomMessages(func(m []types.Message) { history <- m })

	// the rejoin snapshot is queued behind the broadcast of "two"
	require.NoError(t, c.SendMessage("r1", types.OutgoingMessage{Text: "two"}))
	require.NoError(t, c.JoinRoom("r1"))
	assert.Len(t, recv(t, history), 2)
	assert.Empty(t, first)
	assert.Empty(t, second)
}

func TestConnector_DispatchSkipsBadFrames(t *testing.T) {
	fs := newFakeServer(t, false, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("garbage"))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"new-message","data":"not a message"}`))
		frame, _ := types.NewEnvelope(types.EventNewMessage, types.Message{Id: "m1", Text: "ok"})
		conn.WriteMessage(websocket.TextMessage, frame)
	})

	c := New(Options{URL: fs.url(), Logger: testutil.TestLogger(t)})
	t.Cleanup(c.Disconnect)

	got := make(chan types.Message, 4)
	c.OnNewMessage(func(m types.Message) { got <- m })
	require.NoError(t, c.Connect(context.Background()))

	msg := recv(t, got)
	assert.Equal(t, "m1", msg.Id)
	assert.True(t, c.Connected(), "expected bad frames to leave the connection open")
}

func TestConnector_ReconnectRejoinsRooms(t *testing.T) {
	fs := newFakeServer(t, true, nil)

	c := New(Options{
		URL:               fs.url(),
		ReconnectAttempts: 3,
		ReconnectDelay:    10 * time.Millisecond,
		Logger:            testutil.TestLogger(t),
	})
	t.Cleanup(c.Disconnect)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.JoinRoom("r1"))

	f := recv(t, fs.frames)
	assert.Equal(t, int32(1), f.conn)
	assert.Equal(t, types.EventJoinRoom, f.env.Event)

	f = recv(t, fs.frames)
	assert.Equal(t, int32(2), f.conn, "expected join to be replayed on the new connection")
	assert.Equal(t, types.EventJoinRoom, f.env.Event)
	assert.JSONEq(t, `"r1"`, string(f.env.Data))

	assert.Eventually(t, c.Connected, waitFor, 10*time.Millisecond)
}

func TestConnector_GivesUpAfterAttempts(t *testing.T) {
	fs := newFakeServer(t, true, nil)

	c := New(Options{
		URL:               fs.url(),
		ReconnectAttempts: 2,
		ReconnectDelay:    10 * time.Millisecond,
		Logger:            testutil.TestLogger(t),
	})
	t.Cleanup(c.Disconnect)
	require.NoError(t, c.Connect(context.Background()))

	fs.reject.Store(true)
	require.NoError(t, c.JoinRoom("r1"))
	recv(t, fs.frames)

	assert.Eventually(t, func() bool { return fs.requests.Load() == 3 }, waitFor, 10*time.Millisecond)
	assert.Never(t, func() bool { return fs.requests.Load() > 3 }, 200*time.Millisecond, 20*time.Millisecond)
	assert.False(t, c.Connected())

	fs.reject.Store(false)
	require.NoError(t, c.Connect(context.Background()), "expected a manual connect to work after giving up")
	assert.True(t, c.Connected())
}

func TestConnector_DisconnectStopsReconnect(t *testing.T) {
	fs := newFakeServer(t, false, nil)

	c := New(Options{
		URL:               fs.url(),
		ReconnectAttempts: 5,
		ReconnectDelay:    10 * time.Millisecond,
		Logger:            testutil.TestLogger(t),
	})
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.JoinRoom("r1"))
	recv(t, fs.frames)

	c.Disconnect()
	c.Disconnect()

	assert.False(t, c.Connected())
	assert.Empty(t, c.rooms, "expected disconnect to forget joined rooms")
	assert.Never(t, func() bool { return fs.conns.Load() > 1 }, 200*time.Millisecond, 20*time.Millisecond)
}
