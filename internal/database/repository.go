package database

import (
	"context"
	"errors"

	"github.com/npezzotti/go-chatrelay/internal/types"
)

// ErrNoData is returned by Persister.Load when nothing has been persisted yet.
var ErrNoData = errors.New("no persisted rooms")

// Persister is the durable side of the room store. Implementations may
// rewrite the whole map on every Save or only the rooms listed in changed.
type Persister interface {
	Load(ctx context.Context) (map[string]*types.Room, error)
	Save(ctx context.Context, rooms map[string]*types.Room, changed []string) error
	Ping(ctx context.Context) error
	Close() error
}
