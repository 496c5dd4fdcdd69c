package services

import (
	"log"
	"sync"
)

// Registry owns every Bot the framework has spawned, partitioned into active
// and inactive sets, plus the set of room ids with a spawn currently in
// flight. A room id is in at most one of {active, inactive, spawning} at any
// time; all transitions happen under one mutex.
type Registry struct {
	mu       sync.Mutex
	active   map[string]*Bot
	inactive map[string]*Bot
	spawning map[string]struct{}
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		active:   make(map[string]*Bot),
		inactive: make(map[string]*Bot),
		spawning: make(map[string]struct{}),
	}
}

// Get returns the bot for a room, active or not
func (r *Registry) Get(roomID string) (*Bot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bot, ok := r.active[roomID]; ok {
		return bot, true
	}
	if bot, ok := r.inactive[roomID]; ok {
		return bot, true
	}
	return nil, false
}

// All returns every bot, active first
func (r *Registry) All() []*Bot {
	r.mu.Lock()
	defer r.mu.Unlock()
	bots := make([]*Bot, 0, len(r.active)+len(r.inactive))
	for _, bot := range r.active {
		bots = append(bots, bot)
	}
	for _, bot := range r.inactive {
		bots = append(bots, bot)
	}
	return bots
}

// Counts returns the number of active and inactive bots
func (r *Registry) Counts() (active, inactive int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active), len(r.inactive)
}

// BeginSpawn claims the spawn guard for a room. It returns false when a spawn
// is already in flight or a bot already exists; the caller must then drop the
// triggering notification rather than queue a duplicate.
func (r *Registry) BeginSpawn(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.spawning[roomID]; ok {
		return false
	}
	if _, ok := r.active[roomID]; ok {
		return false
	}
	if _, ok := r.inactive[roomID]; ok {
		return false
	}
	r.spawning[roomID] = struct{}{}
	return true
}

// CompleteSpawn files the bot into the requested set and releases the spawn
// guard in one critical section, so the room id never appears in two places.
func (r *Registry) CompleteSpawn(bot *Bot, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.spawning, bot.Room().ID)
	if active {
		r.active[bot.Room().ID] = bot
	} else {
		r.inactive[bot.Room().ID] = bot
	}
}

// AbortSpawn releases the spawn guard without filing a bot
func (r *Registry) AbortSpawn(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.spawning, roomID)
}

// IsSpawning reports whether a spawn is in flight for the room
func (r *Registry) IsSpawning(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.spawning[roomID]
	return ok
}

// Activate moves a bot to the active set
func (r *Registry) Activate(bot *Bot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inactive, bot.Room().ID)
	r.active[bot.Room().ID] = bot
}

// Deactivate moves a bot to the inactive set
func (r *Registry) Deactivate(bot *Bot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, bot.Room().ID)
	r.inactive[bot.Room().ID] = bot
}

// Remove deletes the bot for a room from whichever set holds it
func (r *Registry) Remove(roomID string) (*Bot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bot, ok := r.active[roomID]; ok {
		delete(r.active, roomID)
		return bot, true
	}
	if bot, ok := r.inactive[roomID]; ok {
		delete(r.inactive, roomID)
		return bot, true
	}
	log.Printf("[REGISTRY] Remove called for unknown room %s", roomID)
	return nil, false
}

// IsActive reports whether the room currently has an active bot
func (r *Registry) IsActive(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[roomID]
	return ok
}
