package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/teris-io/shortid"
	"golang.org/x/time/rate"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        zerolog.Logger
	send       chan *ServerMessage
	limiter    *rate.Limiter
	stop       chan struct{}
	stopOnce   sync.Once
	// done is closed once Read has exited and the client is cleaned up.
	done chan struct{}
}

func NewClient(conn *websocket.Conn, cs *ChatServer, l zerolog.Logger) *Client {
	id, err := shortid.Generate()
	if err != nil {
		id = ulid.Make().String()
	}

	return &Client{
		id:         id,
		conn:       conn,
		chatServer: cs,
		log:        l.With().Str("conn_id", id).Logger(),
		send:       make(chan *ServerMessage, 256),
		limiter:    rate.NewLimiter(rate.Limit(cs.limits.EventsPerSecond), cs.limits.Burst),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (c *Client) Id() string {
	return c.id
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Error().Err(err).Str("event", msg.Event).Msg("failed to serialize message")
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		close(c.done)
		c.log.Debug().Msg("read exiting")
	}()

	c.conn.SetReadLimit(c.chatServer.limits.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("ws: read")
			}
			break
		}

		if !c.limiter.Allow() {
			c.log.Warn().Msg("rate limit exceeded, dropping event")
			c.chatServer.stats.Incr(EventsDropped)
			continue
		}

		msg, err := parseClientMessage(raw)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed event")
			c.chatServer.stats.Incr(EventsDropped)
			continue
		}

		msg.client = c
		if !c.chatServer.submit(msg) {
			return
		}
	}
}

// queueMessage never blocks; a client that cannot keep up loses frames.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn().Str("event", msg.Event).Msg("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn().Err(err).Msg("write message")
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.chatServer.removeClient(c)
	c.chatServer.submit(&ClientMessage{client: c, closed: true})
	c.stopClient()
}
