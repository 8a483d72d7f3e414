package database

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/rs/zerolog"
)

type DefaultRoom struct {
	Id   string
	Name string
}

// DefaultRooms are seeded when the persister holds no data.
var DefaultRooms = []DefaultRoom{
	{Id: "web-dev-study-group", Name: "Web Dev Study Group"},
	{Id: "database-project-team", Name: "Database Project Team"},
}

// RoomStore owns every room in the process. Live rooms are only touched
// under mu; everything handed out is a deep copy.
type RoomStore struct {
	log       zerolog.Logger
	persister Persister
	mu        sync.RWMutex
	rooms     map[string]*types.Room
	// dirty holds rooms whose last save failed
	dirty map[string]struct{}
}

func NewRoomStore(logger zerolog.Logger, p Persister) *RoomStore {
	return &RoomStore{
		log:       logger.With().Str("component", "room_store").Logger(),
		persister: p,
		rooms:     make(map[string]*types.Room),
		dirty:     make(map[string]struct{}),
	}
}

// Load replaces the in-memory rooms with the persisted ones. When nothing
// was ever persisted the default rooms are seeded and saved. Any other load
// error leaves the store empty: prior history is dropped, not fatal.
func (s *RoomStore) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms, err := s.persister.Load(ctx)
	switch {
	case errors.Is(err, ErrNoData):
		s.rooms = make(map[string]*types.Room, len(DefaultRooms))
		ids := make([]string, 0, len(DefaultRooms))
		for _, d := range DefaultRooms {
			r := types.NewRoom(d.Id)
			r.Name = d.Name
			s.rooms[d.Id] = r
			ids = append(ids, d.Id)
		}
		s.save(ctx, ids...)
		s.log.Info().Strs("rooms", ids).Msg("initialized default rooms")
	case err != nil:
		s.log.Error().Err(err).Msg("failed to load rooms, starting with an empty room set")
		s.rooms = make(map[string]*types.Room)
	default:
		if rooms == nil {
			// a file holding JSON null decodes to a nil map
			rooms = make(map[string]*types.Room)
		}
		for id, r := range rooms {
			if r == nil {
				delete(rooms, id)
				continue
			}
			r.Normalize()
		}
		s.rooms = rooms
		s.log.Info().Strs("rooms", s.ids()).Msg("loaded rooms")
	}
}

// Save persists the given rooms, plus any room whose previous save failed.
func (s *RoomStore) Save(ctx context.Context, roomIds ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(ctx, roomIds...)
}

// save must be called with mu held.
func (s *RoomStore) save(ctx context.Context, roomIds ...string) error {
	changed := slices.Clone(roomIds)
	for id := range s.dirty {
		if !slices.Contains(changed, id) {
			changed = append(changed, id)
		}
	}

	if err := s.persister.Save(ctx, s.rooms, changed); err != nil {
		for _, id := range changed {
			s.dirty[id] = struct{}{}
		}
		s.log.Error().Err(err).Strs("rooms", changed).Msg("failed to save rooms")
		return err
	}

	clear(s.dirty)
	return nil
}

// GetOrCreate returns a copy of the room, creating and persisting it first
// when it does not exist.
func (s *RoomStore) GetOrCreate(ctx context.Context, roomId string) (types.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rooms[roomId]; ok {
		return r.Clone(), false
	}

	r := types.NewRoom(roomId)
	s.rooms[roomId] = r
	s.save(ctx, roomId)
	s.log.Info().Str("room_id", roomId).Msg("created new room")

	return r.Clone(), true
}

func (s *RoomStore) Get(roomId string) (types.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomId]
	if !ok {
		return types.Room{}, false
	}
	return r.Clone(), true
}

func (s *RoomStore) Exists(roomId string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.rooms[roomId]
	return ok
}

// List returns a summary of every room ordered by id.
func (s *RoomStore) List() []types.RoomSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.RoomSummary, 0, len(s.rooms))
	for _, id := range s.ids() {
		out = append(out, s.rooms[id].Summary())
	}
	return out
}

// Mutate applies fn to the live room. When fn reports a change the room is
// saved before Mutate returns. A save failure is logged and the in-memory
// change stands. Mutate returns false if the room does not exist or fn
// reported no change.
func (s *RoomStore) Mutate(ctx context.Context, roomId string, fn func(r *types.Room) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomId]
	if !ok {
		return false
	}

	if !fn(r) {
		return false
	}

	s.save(ctx, roomId)
	return true
}

func (s *RoomStore) Ping(ctx context.Context) error {
	return s.persister.Ping(ctx)
}

func (s *RoomStore) Close() error {
	return s.persister.Close()
}

func (s *RoomStore) ids() []string {
	return slices.Sorted(maps.Keys(s.rooms))
}
