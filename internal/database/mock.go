package database

import (
	"context"
	"sync"

	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockPersister struct {
	mock.Mock
}

func (m *MockPersister) Load(ctx context.Context) (map[string]*types.Room, error) {
	args := m.Called(ctx)
	if rooms, ok := args.Get(0).(map[string]*types.Room); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockPersister) Save(ctx context.Context, rooms map[string]*types.Room, changed []string) error {
	args := m.Called(ctx, rooms, changed)
	return args.Error(0)
}
func (m *MockPersister) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockPersister) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MemoryPersister keeps deep copies of saved rooms in memory.
type MemoryPersister struct {
	mu    sync.Mutex
	rooms map[string]types.Room
	saves int
}

func NewMemoryPersister(seed ...types.Room) *MemoryPersister {
	m := &MemoryPersister{rooms: make(map[string]types.Room)}
	for _, r := range seed {
		m.rooms[r.Id] = r.Clone()
	}
	return m
}

func (m *MemoryPersister) Load(_ context.Context) (map[string]*types.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.rooms) == 0 {
		return nil, ErrNoData
	}
	out := make(map[string]*types.Room, len(m.rooms))
	for id, r := range m.rooms {
		c := r.Clone()
		out[id] = &c
	}
	return out, nil
}
func (m *MemoryPersister) Save(_ context.Context, rooms map[string]*types.Room, changed []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range changed {
		if r, ok := rooms[id]; ok {
			m.rooms[id] = r.Clone()
		}
	}
	m.saves++
	return nil
}
func (m *MemoryPersister) Ping(_ context.Context) error { return nil }
func (m *MemoryPersister) Close() error                { return nil }

// Room returns the last saved copy of a room.
func (m *MemoryPersister) Room(id string) (types.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	if !ok {
		return types.Room{}, false
	}
	return r.Clone(), true
}

func (m *MemoryPersister) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.saves
}
