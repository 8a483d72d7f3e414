package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/rs/zerolog"
)

const (
	roomKeyPrefix = "room:"
	// prefix upper bound: ':' + 1
	roomKeyUpper = "room;"
)

// PebblePersister stores one key per room and only rewrites the rooms that
// changed, in a single synced batch.
type PebblePersister struct {
	log zerolog.Logger
	db  *pebble.DB
}

func NewPebblePersister(logger zerolog.Logger, dir string) (*PebblePersister, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	return &PebblePersister{
		log: logger.With().Str("component", "pebble_persister").Str("dir", dir).Logger(),
		db:  db,
	}, nil
}

func roomKey(id string) []byte {
	return []byte(roomKeyPrefix + id)
}

func (p *PebblePersister) Load(_ context.Context) (map[string]*types.Room, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(roomKeyPrefix),
		UpperBound: []byte(roomKeyUpper),
	})
	if err != nil {
		return nil, fmt.Errorf("new iterator: %w", err)
	}
	defer iter.Close()

	rooms := make(map[string]*types.Room)
	for iter.First(); iter.Valid(); iter.Next() {
		var r types.Room
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, fmt.Errorf("decode room %q: %w", iter.Key(), err)
		}
		rooms[r.Id] = &r
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}

	if len(rooms) == 0 {
		return nil, ErrNoData
	}
	return rooms, nil
}

func (p *PebblePersister) Save(_ context.Context, rooms map[string]*types.Room, changed []string) error {
	batch := p.db.NewBatch()
	defer batch.Close()

	for _, id := range changed {
		r, ok := rooms[id]
		if !ok {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode room %q: %w", id, err)
		}
		if err := batch.Set(roomKey(id), data, nil); err != nil {
			return fmt.Errorf("batch set %q: %w", id, err)
		}
	}

	if batch.Empty() {
		return nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	p.log.Debug().Strs("rooms", changed).Msg("saved rooms")
	return nil
}

func (p *PebblePersister) Ping(_ context.Context) error {
	_, closer, err := p.db.Get([]byte("__ping__"))
	if err == nil {
		closer.Close()
		return nil
	}
	if err == pebble.ErrNotFound {
		return nil
	}
	return err
}

func (p *PebblePersister) Close() error {
	return p.db.Close()
}
