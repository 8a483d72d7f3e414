package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/rs/zerolog"
)

const (
	createRoomsTableQuery = "CREATE TABLE IF NOT EXISTS rooms (" +
		"id TEXT PRIMARY KEY, " +
		"data JSONB NOT NULL, " +
		"updated_at TIMESTAMPTZ NOT NULL)"
	selectRoomsQuery = "SELECT id, data FROM rooms"
	upsertRoomQuery  = "INSERT INTO rooms (id, data, updated_at) VALUES ($1, $2, $3) " +
		"ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at"
)

// PgPersister stores each room as a JSONB row and upserts only the rooms
// that changed. The "postgres" driver must be registered by the caller.
type PgPersister struct {
	log  zerolog.Logger
	conn *sql.DB
}

func NewPgPersister(ctx context.Context, logger zerolog.Logger, dsn string) (*PgPersister, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, createRoomsTableQuery); err != nil {
		db.Close()
		return nil, fmt.Errorf("create rooms table: %w", err)
	}

	return &PgPersister{
		log:  logger.With().Str("component", "pg_persister").Logger(),
		conn: db,
	}, nil
}

func (db *PgPersister) Load(ctx context.Context) (map[string]*types.Room, error) {
	rows, err := db.conn.QueryContext(ctx, selectRoomsQuery)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	rooms := make(map[string]*types.Room)
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}

		var r types.Room
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode room %q: %w", id, err)
		}
		rooms[id] = &r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(rooms) == 0 {
		return nil, ErrNoData
	}
	return rooms, nil
}

func (db *PgPersister) Save(ctx context.Context, rooms map[string]*types.Room, changed []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, id := range changed {
		r, ok := rooms[id]
		if !ok {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode room %q: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, upsertRoomQuery, id, data, now); err != nil {
			return fmt.Errorf("upsert room %q: %w", id, err)
		}
	}

	return tx.Commit()
}

func (db *PgPersister) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *PgPersister) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
