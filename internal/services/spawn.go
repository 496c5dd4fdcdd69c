package services

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"roomframe/internal/logging"
	"roomframe/internal/models"
	"roomframe/internal/platform"
	"roomframe/internal/storage"
)

// Spawner creates and destroys Bot entities in response to membership
// changes. Spawn never returns an error: every failure path resolves to
// false, with the room's spawn guard released exactly once.
type Spawner struct {
	client   platform.Client
	registry *Registry
	rules    *MembershipRules
	store    storage.Store
	bus      *EventBus

	mu sync.RWMutex
	me *models.Person
}

// NewSpawner creates the spawn coordinator
func NewSpawner(client platform.Client, registry *Registry, rules *MembershipRules, store storage.Store, bus *EventBus) *Spawner {
	return &Spawner{
		client:   client,
		registry: registry,
		rules:    rules,
		store:    store,
		bus:      bus,
	}
}

// SetMe records the framework's own identity, required before spawning into
// direct rooms.
func (s *Spawner) SetMe(me *models.Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.me = me
}

// Me returns the recorded identity, or nil before SetMe
func (s *Spawner) Me() *models.Person {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.me
}

// Spawn creates a bot for the room the membership points at. It returns true
// only when a new bot was created and started; duplicate rooms, in-flight
// spawns, rule denials and lookup failures all return false.
func (s *Spawner) Spawn(ctx context.Context, membership models.Membership, actorID string) bool {
	if membership.RoomID == "" {
		slog.Debug("spawn rejected: membership has no room id", "membership", membership.ID)
		return false
	}
	roomID := membership.RoomID

	// The guard claims the room for the whole async duration of this call.
	// A second spawn arriving before this one resolves short-circuits here.
	if !s.registry.BeginSpawn(roomID) {
		return false
	}
	completed := false
	defer func() {
		if !completed {
			s.registry.AbortSpawn(roomID)
		}
	}()

	bot := &Bot{
		ID:          uuid.NewString(),
		Membership:  &membership,
		isModerator: membership.IsModerator,
		client:      s.client,
		store:       s.store,
		rules:       s.rules,
	}

	room, err := s.client.GetRoom(ctx, roomID)
	if err != nil {
		log.Printf("[SPAWN] Room lookup failed for %s: %v", roomID, err)
		return false
	}
	if room.Title == "" {
		room.Title = models.DefaultRoomTitle
	}
	bot.room = room
	bot.IsDirect = room.Type == models.RoomTypeDirect
	bot.IsGroup = !bot.IsDirect
	bot.IsTeam = room.TeamID != ""

	// For a 1:1 room, resolve the other participant. A direct room with
	// nobody left on the other side gets no bot.
	var members []models.Membership
	if bot.IsDirect {
		members, err = s.client.ListMemberships(ctx, roomID)
		if err != nil {
			log.Printf("[SPAWN] Membership lookup failed for direct room %s: %v", roomID, err)
			return false
		}
		other := s.otherParticipant(members, membership)
		if other == nil {
			log.Printf("[SPAWN] Direct room %s has no other participant, not spawning", roomID)
			return false
		}
		bot.IsDirectTo = other.PersonEmail
	}

	if _, err := s.store.Init(ctx, roomID, map[string]any{}); err != nil {
		log.Printf("[SPAWN] Storage init failed for room %s: %v", roomID, err)
		return false
	}

	allowed := s.rules.OnSpawn(ctx, bot, members, actorID)

	// Filing the bot and releasing the guard happen atomically, so the room
	// id is never in two registry partitions at once.
	s.registry.CompleteSpawn(bot, allowed)
	completed = true

	if !allowed {
		// The rule evaluator already emitted the swallowed-spawn diagnostic
		return false
	}

	bot.start()
	logging.WithRoom(roomID, string(room.Type)).Info("bot spawned")
	s.bus.Publish(Event{
		Type:    EventSpawn,
		Bot:     bot,
		ActorID: actorID,
	})
	if m := GetMetrics(); m != nil {
		m.Spawns.Inc()
	}
	return true
}

func (s *Spawner) otherParticipant(members []models.Membership, own models.Membership) *models.Membership {
	me := s.Me()
	for i := range members {
		if members[i].PersonID == own.PersonID {
			continue
		}
		if me != nil && members[i].PersonID == me.ID {
			continue
		}
		return &members[i]
	}
	return nil
}

// Despawn destroys the bot for a room, releasing its storage partition
// best-effort and emitting despawn before the entity disappears.
func (s *Spawner) Despawn(ctx context.Context, roomID, actorID string) error {
	bot, ok := s.registry.Get(roomID)
	if !ok {
		return fmt.Errorf("%w: no bot for room %s", platform.ErrNotFound, roomID)
	}

	if _, err := s.store.Forget(ctx, roomID, ""); err != nil {
		slog.Debug("storage release failed on despawn", "room", roomID, "error", err)
	}

	s.bus.Publish(Event{
		Type:    EventDespawn,
		Bot:     bot,
		ActorID: actorID,
	})

	bot.stop()
	s.registry.Remove(roomID)
	s.bus.DropRoom(roomID)
	logging.WithRoom(roomID, string(bot.Room().Type)).Info("bot despawned")
	if m := GetMetrics(); m != nil {
		m.Despawns.Inc()
	}
	return nil
}
