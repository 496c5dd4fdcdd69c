// Package storage defines the pluggable per-room key/value store used by
// bots, plus the adapters backing it (memory, Redis, MongoDB).
package storage

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is returned by Recall/Forget for an unknown key or room
	ErrKeyNotFound = errors.New("storage: key not found")
	// ErrMetricsUnsupported is returned when the configured adapter cannot
	// persist metric records
	ErrMetricsUnsupported = errors.New("storage: metrics not supported by this adapter")
)

// Store is the per-room key/value adapter. One instance serves the whole
// framework; every call is scoped by room id.
type Store interface {
	// Init creates the room's partition, seeding it with initial (may be nil).
	// Re-initializing an existing partition keeps its current data.
	Init(ctx context.Context, roomID string, initial map[string]any) (map[string]any, error)
	// Store writes one key and returns the stored value
	Store(ctx context.Context, roomID, key string, value any) (any, error)
	// Recall returns one key's value, or the whole partition when key == ""
	Recall(ctx context.Context, roomID, key string) (any, error)
	// Forget removes one key (or the whole partition when key == "") and
	// returns what was removed
	Forget(ctx context.Context, roomID, key string) (any, error)
}

// MetricsWriter is the optional capability of adapters that can persist
// per-bot metric records. Callers must type-assert; absence surfaces as
// ErrMetricsUnsupported, never a crash.
type MetricsWriter interface {
	WriteMetric(ctx context.Context, roomID string, data map[string]any, actorID string) (map[string]any, error)
}

// WriteMetric writes a metric record through s if the adapter supports it
func WriteMetric(ctx context.Context, s Store, roomID string, data map[string]any, actorID string) (map[string]any, error) {
	w, ok := s.(MetricsWriter)
	if !ok {
		return nil, ErrMetricsUnsupported
	}
	return w.WriteMetric(ctx, roomID, data, actorID)
}
