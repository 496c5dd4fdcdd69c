package services

import (
	"context"
	"testing"

	"roomframe/internal/models"
	"roomframe/internal/storage"
)

// testFramework wires the full service stack against a fakeClient
type testFramework struct {
	client     *fakeClient
	registry   *Registry
	bus        *EventBus
	lexicon    *Lexicon
	rules      *MembershipRules
	spawner    *Spawner
	dispatcher *Dispatcher
	store      *storage.MemoryStore

	events []Event
}

func newTestFramework(t *testing.T, rulesCfg RulesConfig) *testFramework {
	t.Helper()

	f := &testFramework{
		client:   newFakeClient(),
		registry: NewRegistry(),
		bus:      NewEventBus(),
		lexicon:  NewLexicon(),
		store:    storage.NewMemoryStore(),
	}
	f.rules = NewMembershipRules(rulesCfg, f.client, f.registry, f.bus)
	f.spawner = NewSpawner(f.client, f.registry, f.rules, f.store, f.bus)
	f.spawner.SetMe(f.client.me)
	f.dispatcher = NewDispatcher(f.client, f.registry, f.spawner, f.rules, f.lexicon, f.store, f.bus, 50)

	f.bus.OnAny(func(ev Event) {
		f.events = append(f.events, ev)
	})
	return f
}

// start marks the dispatcher active without running startup discovery
func (f *testFramework) start(t *testing.T) {
	t.Helper()
	if err := f.dispatcher.Start(context.Background()); err != nil {
		t.Fatalf("dispatcher start failed: %v", err)
	}
	f.events = nil // drop startup events so tests only see what they cause
}

// eventsOfType filters the captured events
func (f *testFramework) eventsOfType(t EventType) []Event {
	var out []Event
	for _, ev := range f.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// ownMembership builds the framework's own membership in a room
func (f *testFramework) ownMembership(roomID string) models.Membership {
	return models.Membership{
		ID:          "m-" + roomID + "-own",
		RoomID:      roomID,
		PersonID:    f.client.me.ID,
		PersonEmail: f.client.me.Email(),
	}
}
