package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is the default in-process adapter. Data does not survive a
// restart; use the Redis or Mongo adapter for durable storage.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]map[string]any
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string]map[string]any),
	}
}

// Init creates the room partition if it does not exist yet
func (s *MemoryStore) Init(_ context.Context, roomID string, initial map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.rooms[roomID]; ok {
		return copyMap(existing), nil
	}
	part := make(map[string]any, len(initial))
	for k, v := range initial {
		part[k] = v
	}
	s.rooms[roomID] = part
	return copyMap(part), nil
}

// Store writes one key
func (s *MemoryStore) Store(_ context.Context, roomID, key string, value any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	part, ok := s.rooms[roomID]
	if !ok {
		part = make(map[string]any)
		s.rooms[roomID] = part
	}
	part[key] = value
	return value, nil
}

// Recall returns one key, or the whole partition when key == ""
func (s *MemoryStore) Recall(_ context.Context, roomID, key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	part, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: room %s", ErrKeyNotFound, roomID)
	}
	if key == "" {
		return copyMap(part), nil
	}
	value, ok := part[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s in room %s", ErrKeyNotFound, key, roomID)
	}
	return value, nil
}

// Forget removes one key, or the whole partition when key == ""
func (s *MemoryStore) Forget(_ context.Context, roomID, key string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	part, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: room %s", ErrKeyNotFound, roomID)
	}
	if key == "" {
		delete(s.rooms, roomID)
		return copyMap(part), nil
	}
	value, ok := part[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s in room %s", ErrKeyNotFound, key, roomID)
	}
	delete(part, key)
	return value, nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
