// Package connector is the client side of the relay protocol. A Connector
// owns one websocket connection, re-establishes it after unexpected drops
// and dispatches inbound events to registered listeners.
package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/rs/zerolog"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

var (
	ErrNotConnected   = errors.New("not connected")
	ErrConnectTimeout = errors.New("connection timeout")
)

type Options struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	Timeout           time.Duration
	Dialer            *websocket.Dialer
	Logger            zerolog.Logger
}

var DefaultOptions = Options{
	ReconnectAttempts: 10,
	ReconnectDelay:    time.Second,
	Timeout:           10 * time.Second,
}

// session spans one Connect call and the reconnects that follow it.
type session struct {
	stop chan struct{}
}

type Connector struct {
	opts Options
	log  zerolog.Logger

	mu        sync.Mutex
	sess      *session
	conn      *websocket.Conn
	connected bool
	rooms     []string

	writeMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   map[string][]func(json.RawMessage)
}

func New(opts Options) *Connector {
	switch {
	case opts.ReconnectAttempts == 0:
		opts.ReconnectAttempts = DefaultOptions.ReconnectAttempts
	case opts.ReconnectAttempts < 0:
		// negative disables reconnecting
		opts.ReconnectAttempts = 0
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultOptions.ReconnectDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions.Timeout
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}

	return &Connector{
		opts:      opts,
		log:       opts.Logger.With().Str("component", "connector").Str("url", opts.URL).Logger(),
		listeners: make(map[string][]func(json.RawMessage)),
	}
}

// Connect returns immediately when a connection is already established.
// Otherwise it dials once; automatic retries only follow a dropped
// connection, never a failed Connect.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if c.sess != nil {
		// abandon a reconnect still in progress
		close(c.sess.stop)
		c.sess = nil
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("connection error")
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		conn.Close()
		return nil
	}

	s := &session{stop: make(chan struct{})}
	c.sess = s
	c.conn = conn
	c.connected = true
	go c.run(s, conn)

	c.log.Info().Msg("connected")
	return nil
}

func (c *Connector) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	conn, _, err := c.opts.Dialer.DialContext(dialCtx, c.opts.URL, nil)
	if err != nil {
		if ctx.Err() == nil && (errors.Is(dialCtx.Err(), context.DeadlineExceeded) || isTimeout(err)) {
			return nil, fmt.Errorf("%w after %s", ErrConnectTimeout, c.opts.Timeout)
		}
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}

	return conn, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}

// Disconnect closes the connection and stops any reconnect. Rooms joined
// so far are forgotten. Calling it more than once is harmless.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	s, conn := c.sess, c.conn
	c.sess = nil
	c.conn = nil
	c.connected = false
	c.rooms = nil
	if s != nil {
		close(s.stop)
	}
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		conn.Close()
		c.log.Info().Msg("disconnected")
	}
}

// run reads from conn until it fails, then reconnects, until the session
// is stopped or the reconnect attempts are used up.
func (c *Connector) run(s *session, conn *websocket.Conn) {
	for conn != nil {
		err := c.readLoop(conn)
		conn.Close()

		if !c.dropped(s) {
			return
		}
		c.log.Warn().Err(err).Msg("connection lost")
		conn = c.reconnect(s)
	}
}

// dropped marks the connection as lost. It returns false when the drop was
// caused by Disconnect or a newer Connect.
func (c *Connector) dropped(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != s {
		return false
	}
	c.conn = nil
	c.connected = false
	return true
}

func (c *Connector) reconnect(s *session) *websocket.Conn {
	for attempt := 1; attempt <= c.opts.ReconnectAttempts; attempt++ {
		select {
		case <-s.stop:
			return nil
		case <-time.After(c.opts.ReconnectDelay):
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-s.stop:
				cancel()
			case <-ctx.Done():
			}
		}()
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}

		c.mu.Lock()
		if c.sess != s {
			c.mu.Unlock()
			conn.Close()
			return nil
		}
		c.conn = conn
		c.connected = true
		rooms := slices.Clone(c.rooms)
		c.mu.Unlock()

		c.log.Info().Int("attempt", attempt).Strs("rooms", rooms).Msg("reconnected")
		for _, roomId := range rooms {
			if err := c.write(conn, types.EventJoinRoom, roomId); err != nil {
				c.log.Warn().Err(err).Str("room_id", roomId).Msg("failed to rejoin room")
			}
		}
		return conn
	}

	c.log.Error().Int("attempts", c.opts.ReconnectAttempts).Msg("giving up reconnecting")
	c.mu.Lock()
	if c.sess == s {
		c.sess = nil
	}
	c.mu.Unlock()
	return nil
}

func (c *Connector) readLoop(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env types.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.dispatch(env)
	}
}

func (c *Connector) dispatch(env types.Envelope) {
	c.listenersMu.RLock()
	fns := slices.Clone(c.listeners[env.Event])
	c.listenersMu.RUnlock()

	if len(fns) == 0 {
		c.log.Debug().Str("event", env.Event).Msg("no listeners for event")
	}
	for _, fn := range fns {
		fn(env.Data)
	}
}

func (c *Connector) write(conn *websocket.Conn, event string, data any) error {
	frame, err := types.NewEnvelope(event, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// emit sends an event on the current connection. Nothing is queued: when
// there is no connection the event is dropped.
func (c *Connector) emit(event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.log.Warn().Str("event", event).Msg("cannot emit, not connected")
		return ErrNotConnected
	}

	if err := c.write(conn, event, data); err != nil {
		c.log.Warn().Err(err).Str("event", event).Msg("emit failed")
		return err
	}
	return nil
}

// JoinRoom joins roomId and remembers it so the room is joined again
// after a reconnect.
func (c *Connector) JoinRoom(roomId string) error {
	if err := c.emit(types.EventJoinRoom, roomId); err != nil {
		return err
	}

	c.mu.Lock()
	if !slices.Contains(c.rooms, roomId) {
		c.rooms = append(c.rooms, roomId)
	}
	c.mu.Unlock()
	return nil
}

func (c *Connector) SendMessage(roomId string, msg types.OutgoingMessage) error {
	return c.emit(types.EventSendMessage, types.SendMessagePayload{RoomId: roomId, Message: &msg})
}

func (c *Connector) PinMessage(roomId, messageId string) error {
	return c.emit(types.EventPinMessage, types.MessageRefPayload{RoomId: roomId, MessageId: messageId})
}

func (c *Connector) UnpinMessage(roomId, messageId string) error {
	return c.emit(types.EventUnpinMessage, types.MessageRefPayload{RoomId: roomId, MessageId: messageId})
}

func (c *Connector) DeleteMessages(roomId string, messageIds []string) error {
	if messageIds == nil {
		messageIds = []string{}
	}
	return c.emit(types.EventDeleteMessages, types.DeleteMessagesPayload{RoomId: roomId, MessageIds: messageIds})
}

func (c *Connector) AddReaction(roomId, messageId, emoji, userId string) error {
	return c.emit(types.EventAddReaction, types.AddReactionPayload{
		RoomId:    roomId,
		MessageId: messageId,
		Emoji:     emoji,
		UserId:    userId,
	})
}
