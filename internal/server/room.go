package server

import (
	"context"

	"github.com/npezzotti/go-chatrelay/internal/database"
	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/rs/zerolog"
)

// Room is the actor for one loaded room. It alone mutates the room through
// the store and owns the room's broadcast group.
type Room struct {
	id      string
	cs      *ChatServer
	store   *database.RoomStore
	log     zerolog.Logger
	msgChan chan *ClientMessage
	clients map[*Client]struct{}
	// exit is closed to stop the room
	exit chan struct{}
	done chan struct{}
}

func (r *Room) start() {
	defer close(r.done)
	r.log.Debug().Msg("starting room")

	for {
		select {
		case msg := <-r.msgChan:
			r.handleMessage(msg)
		case <-r.exit:
			r.log.Debug().Int("clients", len(r.clients)).Msg("room exiting")
			return
		}
	}
}

func (r *Room) handleMessage(msg *ClientMessage) {
	switch {
	case msg.Join != nil:
		r.handleJoin(msg.client)
	case msg.Leave != nil:
		r.handleLeave(msg.client)
	default:
		r.apply(msg)
	}
}

// handleJoin adds c to the broadcast group and sends it, and only it, the
// room's current history and pins.
func (r *Room) handleJoin(c *Client) {
	room, ok := r.store.Get(r.id)
	if !ok {
		r.log.Warn().Msg("join for room missing from store")
		return
	}

	r.clients[c] = struct{}{}
	c.queueMessage(RoomMessages(room.Messages))
	c.queueMessage(PinnedMessages(room.PinnedMessages))
	r.log.Debug().Str("conn_id", c.id).Int("clients", len(r.clients)).Msg("client joined")
}

func (r *Room) handleLeave(c *Client) {
	if _, ok := r.clients[c]; !ok {
		return
	}
	delete(r.clients, c)
	r.log.Debug().Str("conn_id", c.id).Int("clients", len(r.clients)).Msg("client left")
}

// apply runs the event's command against the store. The broadcast only
// goes out after the store has saved the change.
func (r *Room) apply(msg *ClientMessage) {
	cmd := commandFor(msg, Now())
	if cmd == nil {
		return
	}

	var out *ServerMessage
	applied := r.store.Mutate(context.Background(), r.id, func(room *types.Room) bool {
		var ok bool
		out, ok = cmd(room)
		return ok
	})
	if !applied {
		r.log.Debug().Str("event", msg.Event).Msg("event had no effect")
		return
	}

	if msg.Send != nil {
		r.cs.stats.Incr(MessagesPublished)
	}
	r.broadcast(out)
}

func (r *Room) broadcast(msg *ServerMessage) {
	r.log.Debug().Str("event", msg.Event).Int("clients", len(r.clients)).Msg("broadcast")
	for c := range r.clients {
		c.queueMessage(msg)
	}
}
