package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"roomframe/internal/models"
	"roomframe/internal/platform"
)

func TestSpawner_SpawnGroupRoom(t *testing.T) {
	f := newTestFramework(t, RulesConfig{})
	f.client.addRoom("room1", "Engineering", models.RoomTypeGroup)
	f.client.addMember("room1", f.client.me.ID, f.client.me.Email(), false)

	if !f.spawner.Spawn(context.Background(), f.ownMembership("room1"), "actor") {
		t.Fatal("Spawn should succeed")
	}

	bot, ok := f.registry.Get("room1")
	if !ok {
		t.Fatal("Bot should be registered")
	}
	if !bot.Active() || !bot.IsGroup || bot.IsDirect {
		t.Errorf("Unexpected bot shape: active=%v group=%v direct=%v", bot.Active(), bot.IsGroup, bot.IsDirect)
	}
	if bot.Room().Title != "Engineering" {
		t.Errorf("Room title = %q", bot.Room().Title)
	}

	spawns := f.eventsOfType(EventSpawn)
	if len(spawns) != 1 || spawns[0].ActorID != "actor" {
		t.Fatalf("Expected one spawn event from actor, got %+v", spawns)
	}
	if spawns[0].RuleChange != nil {
		t.Error("A plain spawn must not carry a rule change")
	}
}

func TestSpawner_SpawnIsIdempotent(t *testing.T) {
	f := newTestFramework(t, RulesConfig{})
	f.client.addRoom("room1", "Test", models.RoomTypeGroup)
	f.client.addMember("room1", f.client.me.ID, f.client.me.Email(), false)

	if !f.spawner.Spawn(context.Background(), f.ownMembership("room1"), "") {
		t.Fatal("First spawn should succeed")
	}
	if f.spawner.Spawn(context.Background(), f.ownMembership("room1"), "") {
		t.Fatal("Second spawn for the same room must resolve false")
	}
	active, inactive := f.registry.Counts()
	if active != 1 || inactive != 0 {
		t.Fatalf("Expected a single bot, got %d/%d", active, inactive)
	}
}

func TestSpawner_ConcurrentSpawnsOneBot(t *testing.T) {
	f := newTestFramework(t, RulesConfig{})
	f.client.addRoom("room1", "Test", models.RoomTypeGroup)
	f.client.addMember("room1", f.client.me.ID, f.client.me.Email(), false)
	own := f.ownMembership("room1")

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.spawner.Spawn(context.Background(), own, "")
		}()
	}
	wg.Wait()
	close(results)

	won := 0
	for ok := range results {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("Exactly one concurrent spawn should win, got %d", won)
	}
	active, inactive := f.registry.Counts()
	if active != 1 || inactive != 0 {
		t.Fatalf("Expected a single bot, got %d/%d", active, inactive)
	}
}

func TestSpawner_EmptyRoomIDRejected(t *testing.T) {
	f := newTestFramework(t, RulesConfig{})
	if f.spawner.Spawn(context.Background(), models.Membership{ID: "m1"}, "") {
		t.Fatal("Membership without a room id must not spawn")
	}
}

func TestSpawner_RoomLookupFailureReleasesGuard(t *testing.T) {
	f := newTestFramework(t, RulesConfig{})
	f.client.roomErr["room1"] = errors.New("boom")

	if f.spawner.Spawn(context.Background(), f.ownMembership("room1"), "") {
		t.Fatal("Spawn should fail when the room lookup fails")
	}
	if f.registry.IsSpawning("room1") {
		t.Fatal("Guard must be released after a failed spawn")
	}

	// Spawn succeeds once the lookup works again
	delete(f.client.roomErr, "room1")
	f.client.addRoom("room1", "Test", models.RoomTypeGroup)
	f.client.addMember("room1", f.client.me.ID, f.client.me.Email(), false)
	if !f.spawner.Spawn(context.Background(), f.ownMembership("room1"), "") {
		t.Fatal("Spawn should succeed after the failure cleared")
	}
}

func TestSpawner_DirectRoomResolvesParticipant(t *testing.T) {
	f := newTestFramework(t, RulesConfig{})
	f.client.addRoom("room1", "", models.RoomTypeDirect)
	f.client.addMember("room1", f.client.me.ID, f.client.me.Email(), false)
	f.client.addMember("room1", "p1", "x@a.com", false)

	if !f.spawner.Spawn(context.Background(), f.ownMembership("room1"), "") {
		t.Fatal("Direct spawn should succeed")
	}
	bot, _ := f.registry.Get("room1")
	if !bot.IsDirect || bot.IsGroup {
		t.Error("Bot should be flagged direct")
	}
	if bot.IsDirectTo != "x@a.com" {
		t.Errorf("IsDirectTo = %q, want the other participant", bot.IsDirectTo)
	}
	if bot.Room().Title != models.DefaultRoomTitle {
		t.Errorf("Untitled room should get the default title, got %q", bot.Room().Title)
	}
}

func TestSpawner_DirectRoomWithoutParticipant(t *testing.T) {
	f := newTestFramework(t, RulesConfig{})
	f.client.addRoom("room1", "", models.RoomTypeDirect)
	f.client.addMember("room1", f.client.me.ID, f.client.me.Email(), false)

	if f.spawner.Spawn(context.Background(), f.ownMembership("room1"), "") {
		t.Fatal("Direct room with nobody on the other side must not spawn")
	}
	if f.registry.IsSpawning("room1") {
		t.Fatal("Guard must be released")
	}
	if _, ok := f.registry.Get("room1"); ok {
		t.Fatal("No bot should be registered")
	}
}

func TestSpawner_IdentityAccessIsSynchronized(t *testing.T) {
	f := newTestFramework(t, RulesConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.spawner.SetMe(&models.Person{ID: "bot-id"})
			_ = f.spawner.Me()
		}()
	}
	wg.Wait()

	if me := f.spawner.Me(); me == nil || me.ID != "bot-id" {
		t.Fatalf("Me() = %+v after concurrent writes", me)
	}
}

func TestSpawner_DespawnUnknownRoom(t *testing.T) {
	f := newTestFramework(t, RulesConfig{})
	err := f.spawner.Despawn(context.Background(), "ghost", "")
	if !errors.Is(err, platform.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestSpawner_DespawnThenRespawn(t *testing.T) {
	f := newTestFramework(t, RulesConfig{})
	f.client.addRoom("room1", "Test", models.RoomTypeGroup)
	f.client.addMember("room1", f.client.me.ID, f.client.me.Email(), false)

	f.spawner.Spawn(context.Background(), f.ownMembership("room1"), "")
	first, _ := f.registry.Get("room1")
	first.Store(context.Background(), "k", "v")

	if err := f.spawner.Despawn(context.Background(), "room1", "actor"); err != nil {
		t.Fatalf("Despawn failed: %v", err)
	}
	if first.Active() {
		t.Error("Despawned bot must be stopped")
	}
	if _, ok := f.registry.Get("room1"); ok {
		t.Fatal("Registry should be empty after despawn")
	}
	despawns := f.eventsOfType(EventDespawn)
	if len(despawns) != 1 || despawns[0].ActorID != "actor" {
		t.Fatalf("Expected one despawn event, got %+v", despawns)
	}

	// A respawn yields a fresh entity with a clean storage partition
	if !f.spawner.Spawn(context.Background(), f.ownMembership("room1"), "") {
		t.Fatal("Respawn should succeed")
	}
	second, _ := f.registry.Get("room1")
	if second.ID == first.ID {
		t.Error("Respawned bot must be a new entity")
	}
	if _, err := second.Recall(context.Background(), "k"); err == nil {
		t.Error("Old storage must not survive the despawn")
	}
}
