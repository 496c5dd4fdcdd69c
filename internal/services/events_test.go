package services

import (
	"testing"

	"roomframe/internal/models"
)

func busBot(roomID string) *Bot {
	return &Bot{
		ID:   "bot-" + roomID,
		room: &models.Room{ID: roomID, Type: models.RoomTypeGroup},
	}
}

func TestEventBus_OnAndOnAny(t *testing.T) {
	bus := NewEventBus()

	var typed, all int
	bus.On(EventSpawn, func(Event) { typed++ })
	bus.OnAny(func(Event) { all++ })

	bus.Publish(Event{Type: EventSpawn})
	bus.Publish(Event{Type: EventDespawn})

	if typed != 1 {
		t.Errorf("Typed handler fired %d times, want 1", typed)
	}
	if all != 2 {
		t.Errorf("Any handler fired %d times, want 2", all)
	}
}

func TestEventBus_RoomScopedHandlers(t *testing.T) {
	bus := NewEventBus()
	bot := busBot("room1")

	var scoped, global int
	bus.OnRoom("room1", EventMessage, func(Event) { scoped++ })
	bus.On(EventMessage, func(Event) { global++ })

	// Plain Publish never reaches room-scoped listeners
	bus.Publish(Event{Type: EventMessage, Bot: bot})
	if scoped != 0 || global != 1 {
		t.Fatalf("After Publish: scoped=%d global=%d", scoped, global)
	}

	bus.PublishBoth(Event{Type: EventMessage, Bot: bot})
	if scoped != 1 || global != 2 {
		t.Fatalf("After PublishBoth: scoped=%d global=%d", scoped, global)
	}

	// Another room's events do not leak in
	bus.PublishBoth(Event{Type: EventMessage, Bot: busBot("room2")})
	if scoped != 1 {
		t.Errorf("Scoped handler leaked across rooms: %d", scoped)
	}
}

func TestEventBus_DropRoom(t *testing.T) {
	bus := NewEventBus()
	bot := busBot("room1")

	fired := 0
	bus.OnRoom("room1", EventMessage, func(Event) { fired++ })
	bus.DropRoom("room1")

	bus.PublishBoth(Event{Type: EventMessage, Bot: bot})
	if fired != 0 {
		t.Error("Dropped room handlers must not fire")
	}
}

func TestEventBus_PanickingHandlerIsContained(t *testing.T) {
	bus := NewEventBus()

	var after int
	bus.On(EventSpawn, func(Event) { panic("handler broke") })
	bus.On(EventSpawn, func(Event) { after++ })

	// Must not panic through Publish, and later handlers still run
	bus.Publish(Event{Type: EventSpawn})
	if after != 1 {
		t.Error("Handlers after a panicking one should still run")
	}
}

func TestEventBus_PublishBothWithoutBot(t *testing.T) {
	bus := NewEventBus()
	fired := 0
	bus.OnAny(func(Event) { fired++ })

	bus.PublishBoth(Event{Type: EventInitialized})
	if fired != 1 {
		t.Errorf("Bot-less PublishBoth should still reach global listeners, fired %d", fired)
	}
}
