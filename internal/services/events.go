package services

import (
	"log"
	"sync"

	"roomframe/internal/models"
)

// EventType identifies one of the framework's consumer-facing events
type EventType string

const (
	EventSpawn   EventType = "spawn"
	EventDespawn EventType = "despawn"

	EventMembershipCreated EventType = "membershipCreated"
	EventMembershipUpdated EventType = "membershipUpdated"
	EventMembershipDeleted EventType = "membershipDeleted"

	EventMemberEnters             EventType = "memberEnters"
	EventMemberExits              EventType = "memberExits"
	EventMemberAddedAsModerator   EventType = "memberAddedAsModerator"
	EventMemberRemovedAsModerator EventType = "memberRemovedAsModerator"
	EventBotAddedAsModerator      EventType = "botAddedAsModerator"
	EventBotRemovedAsModerator    EventType = "botRemovedAsModerator"

	EventMessage   EventType = "message"
	EventMentioned EventType = "mentioned"
	EventFiles     EventType = "files"

	EventRoomLocked   EventType = "roomLocked"
	EventRoomUnlocked EventType = "roomUnlocked"
	EventRoomRenamed  EventType = "roomRenamed"

	EventAttachmentAction EventType = "attachmentAction"

	EventMembershipRulesAction EventType = "membershipRulesAction"

	EventInitialized EventType = "initialized"
	EventStopped     EventType = "stopped"
)

// RulesAction is the diagnostic payload of a membershipRulesAction event: a
// state change, or a suppressed event/hears dispatch for an inactive bot.
type RulesAction struct {
	Kind    models.RulesActionKind
	Event   EventType
	ActorID string
}

// Event is the single closed payload type published on the bus. Which fields
// are set depends on Type.
type Event struct {
	Type        EventType
	Bot         *Bot
	Membership  *models.Membership
	Room        *models.Room
	Trigger     *models.Trigger
	ActorID     string
	RuleChange  *models.MembershipRuleChange
	RulesAction *RulesAction
}

// EventHandler consumes one published event
type EventHandler func(Event)

// EventBus is a typed publish/subscribe registry. Handlers run synchronously
// on the publishing goroutine; a panicking handler is recovered and logged so
// it can never take the dispatcher down.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]EventHandler
	any      []EventHandler
	rooms    map[string]map[EventType][]EventHandler
}

// NewEventBus creates an empty bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
		rooms:    make(map[string]map[EventType][]EventHandler),
	}
}

// On subscribes a handler to one event type
func (b *EventBus) On(t EventType, h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// OnAny subscribes a handler to every event
func (b *EventBus) OnAny(h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.any = append(b.any, h)
}

// OnRoom subscribes a handler to one event type scoped to one room. Used for
// bot-level listeners; they only fire through PublishBoth.
func (b *EventBus) OnRoom(roomID string, t EventType, h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room, ok := b.rooms[roomID]
	if !ok {
		room = make(map[EventType][]EventHandler)
		b.rooms[roomID] = room
	}
	room[t] = append(room[t], h)
}

// DropRoom removes all room-scoped handlers, called on despawn
func (b *EventBus) DropRoom(roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rooms, roomID)
}

// Publish delivers an event to the framework-wide listener set
func (b *EventBus) Publish(ev Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[ev.Type]...)
	handlers = append(handlers, b.any...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.call(ev, h)
	}
}

// PublishBoth delivers an event to the framework-wide listeners and, when the
// event has a room, to that room's scoped listeners.
func (b *EventBus) PublishBoth(ev Event) {
	b.Publish(ev)
	if ev.Bot == nil {
		return
	}
	b.mu.RLock()
	var scoped []EventHandler
	if room, ok := b.rooms[ev.Bot.Room().ID]; ok {
		scoped = append(scoped, room[ev.Type]...)
	}
	b.mu.RUnlock()
	for _, h := range scoped {
		b.call(ev, h)
	}
}

func (b *EventBus) call(ev Event, h EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[EVENTS] Handler for %s panicked: %v", ev.Type, r)
		}
	}()
	h(ev)
}
