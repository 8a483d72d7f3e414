package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultRoomsKey = "chatrelay:rooms"

// RedisPersister keeps one hash field per room.
type RedisPersister struct {
	log    zerolog.Logger
	client *redis.Client
	key    string
}

func NewRedisPersister(ctx context.Context, logger zerolog.Logger, redisURL string) (*RedisPersister, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisPersister{
		log:    logger.With().Str("component", "redis_persister").Logger(),
		client: client,
		key:    defaultRoomsKey,
	}, nil
}

func (p *RedisPersister) Load(ctx context.Context) (map[string]*types.Room, error) {
	fields, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", p.key, err)
	}
	if len(fields) == 0 {
		return nil, ErrNoData
	}

	rooms := make(map[string]*types.Room, len(fields))
	for id, data := range fields {
		var r types.Room
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decode room %q: %w", id, err)
		}
		rooms[id] = &r
	}
	return rooms, nil
}

func (p *RedisPersister) Save(ctx context.Context, rooms map[string]*types.Room, changed []string) error {
	values := make(map[string]any, len(changed))
	for _, id := range changed {
		r, ok := rooms[id]
		if !ok {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode room %q: %w", id, err)
		}
		values[id] = data
	}
	if len(values) == 0 {
		return nil
	}

	if err := p.client.HSet(ctx, p.key, values).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", p.key, err)
	}
	return nil
}

func (p *RedisPersister) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPersister) Close() error {
	return p.client.Close()
}
