package server

import (
	"context"
	"errors"
	"sync"

	"github.com/npezzotti/go-chatrelay/internal/database"
	"github.com/npezzotti/go-chatrelay/internal/stats"
	"github.com/rs/zerolog"
)

const (
	NumActiveClients  = "NumActiveClients"
	NumActiveRooms    = "NumActiveRooms"
	MessagesPublished = "MessagesPublished"
	EventsDropped     = "EventsDropped"
)

// Limits bound what a single connection may send.
type Limits struct {
	MaxMessageSize  int64
	EventsPerSecond float64
	Burst           int
}

var DefaultLimits = Limits{
	MaxMessageSize:  5 << 20,
	EventsPerSecond: 20,
	Burst:           40,
}

type stopReq struct {
	done chan struct{}
	// clients are the connections stopped by the hub; Shutdown waits for
	// their read pumps to exit.
	clients []*Client
}

// ChatServer routes every inbound event through a single hub goroutine to
// the actor of the room it targets. Events from one connection, and events
// for one room, are therefore applied in arrival order.
type ChatServer struct {
	log         zerolog.Logger
	store       *database.RoomStore
	stats       stats.StatsProvider
	limits      Limits
	clients     map[*Client]struct{}
	clientsLock sync.Mutex
	closing     bool
	msgChan     chan *ClientMessage
	// rooms and joined are owned by Run.
	rooms  map[string]*Room
	joined map[*Client]map[string]struct{}
	stop   chan *stopReq
	done   chan struct{}
}

func NewChatServer(logger zerolog.Logger, store *database.RoomStore, su stats.StatsProvider, limits Limits) (*ChatServer, error) {
	if store == nil {
		return nil, errors.New("room store is required")
	}
	if limits.MaxMessageSize < 0 || limits.EventsPerSecond < 0 || limits.Burst < 0 {
		return nil, errors.New("limits must not be negative")
	}
	if limits.MaxMessageSize == 0 {
		limits.MaxMessageSize = DefaultLimits.MaxMessageSize
	}
	if limits.EventsPerSecond == 0 {
		limits.EventsPerSecond = DefaultLimits.EventsPerSecond
	}
	if limits.Burst == 0 {
		limits.Burst = DefaultLimits.Burst
	}

	su.RegisterMetric(NumActiveClients)
	su.RegisterMetric(NumActiveRooms)
	su.RegisterMetric(MessagesPublished)
	su.RegisterMetric(EventsDropped)

	return &ChatServer{
		log:     logger.With().Str("component", "chat_server").Logger(),
		store:   store,
		stats:   su,
		limits:  limits,
		clients: make(map[*Client]struct{}),
		msgChan: make(chan *ClientMessage, 256),
		rooms:   make(map[string]*Room),
		joined:  make(map[*Client]map[string]struct{}),
		stop:    make(chan *stopReq),
		done:    make(chan struct{}),
	}, nil
}

func (cs *ChatServer) Run() {
	defer close(cs.done)

	for {
		select {
		case msg := <-cs.msgChan:
			cs.handleMessage(msg)
		case req := <-cs.stop:
			req.clients = cs.handleShutdown()
			close(req.done)
			return
		}
	}
}

// submit hands msg to the hub. It returns false once the hub has stopped.
func (cs *ChatServer) submit(msg *ClientMessage) bool {
	select {
	case cs.msgChan <- msg:
		return true
	case <-cs.done:
		return false
	}
}

func (cs *ChatServer) handleMessage(msg *ClientMessage) {
	if msg.closed {
		cs.handleDisconnect(msg.client)
		return
	}

	roomId := msg.RoomId()
	room, ok := cs.getRoom(roomId)
	if !ok {
		switch {
		case msg.Join != nil:
			cs.store.GetOrCreate(context.Background(), roomId)
		case !cs.store.Exists(roomId):
			cs.log.Debug().
				Str("event", msg.Event).
				Str("room_id", roomId).
				Msg("dropping event for unknown room")
			cs.stats.Incr(EventsDropped)
			return
		}
		room = cs.loadRoom(roomId)
	}

	if msg.Join != nil {
		if cs.joined[msg.client] == nil {
			cs.joined[msg.client] = make(map[string]struct{})
		}
		cs.joined[msg.client][roomId] = struct{}{}
	}

	room.msgChan <- msg
}

// handleDisconnect removes a closed connection from every room it joined.
// The leaves are queued behind any event the connection sent before it
// closed.
func (cs *ChatServer) handleDisconnect(c *Client) {
	for roomId := range cs.joined[c] {
		if room, ok := cs.getRoom(roomId); ok {
			room.msgChan <- &ClientMessage{Leave: &Leave{RoomId: roomId}, client: c}
		}
	}
	delete(cs.joined, c)
}

func (cs *ChatServer) loadRoom(roomId string) *Room {
	room := &Room{
		id:      roomId,
		cs:      cs,
		store:   cs.store,
		log:     cs.log.With().Str("component", "room").Str("room_id", roomId).Logger(),
		msgChan: make(chan *ClientMessage, 256),
		clients: make(map[*Client]struct{}),
		exit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	cs.addRoom(roomId, room)
	go room.start()

	return room
}

func (cs *ChatServer) handleShutdown() []*Client {
	cs.log.Info().Msg("closing client connections")
	cs.clientsLock.Lock()
	cs.closing = true
	stopped := make([]*Client, 0, len(cs.clients))
	for c := range cs.clients {
		c.stopClient()
		if c.done != nil {
			stopped = append(stopped, c)
		}
	}
	cs.clientsLock.Unlock()

	for id, r := range cs.rooms {
		cs.log.Debug().Str("room_id", id).Msg("shutting down room")
		close(r.exit)
		<-r.done
		cs.removeRoom(id)
	}

	return stopped
}

// RegisterClient tracks c until its read pump exits. A client registered
// after shutdown has begun is stopped straight away.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.addClient(c)
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if cs.closing {
		c.stopClient()
		return
	}
	cs.clients[c] = struct{}{}
	cs.stats.Incr(NumActiveClients)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}
	delete(cs.clients, c)
	cs.stats.Decr(NumActiveClients)
}

func (cs *ChatServer) addRoom(id string, r *Room) {
	cs.rooms[id] = r
	cs.stats.Incr(NumActiveRooms)
}

func (cs *ChatServer) getRoom(id string) (*Room, bool) {
	r, ok := cs.rooms[id]
	return r, ok
}

func (cs *ChatServer) removeRoom(id string) {
	if _, ok := cs.rooms[id]; !ok {
		return
	}
	delete(cs.rooms, id)
	cs.stats.Decr(NumActiveRooms)
}

// Shutdown stops every room, closes every client connection and waits for
// the clients' read pumps to exit. It does not close the room store.
// Nothing touches the stats provider once it returns nil.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info().Msg("received shutdown signal")

	req := &stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, c := range req.clients {
		select {
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	cs.log.Info().Int("clients", len(req.clients)).Msg("chat server stopped")
	return nil
}
