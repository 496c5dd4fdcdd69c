package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"roomframe/internal/logging"
	"roomframe/internal/models"
	"roomframe/internal/platform"
	"roomframe/internal/storage"
)

// Authorizer is an optional consumer hook consulted before matched lexicon
// handlers run for a message.
type Authorizer func(bot *Bot, trigger *models.Trigger) bool

// Dispatcher routes inbound platform notifications: it discovers rooms
// just-in-time, drives the spawner and the rule evaluator, runs the lexicon
// against messages and emits the consumer-facing events with rule-aware
// suppression.
type Dispatcher struct {
	client   platform.Client
	registry *Registry
	spawner  *Spawner
	rules    *MembershipRules
	lexicon  *Lexicon
	store    storage.Store
	bus      *EventBus

	maxStartupRooms int

	mu         sync.RWMutex
	me         *models.Person
	authorizer Authorizer
	active     bool
}

// NewDispatcher wires the dispatcher to its collaborators
func NewDispatcher(client platform.Client, registry *Registry, spawner *Spawner, rules *MembershipRules, lexicon *Lexicon, store storage.Store, bus *EventBus, maxStartupRooms int) *Dispatcher {
	return &Dispatcher{
		client:          client,
		registry:        registry,
		spawner:         spawner,
		rules:           rules,
		lexicon:         lexicon,
		store:           store,
		bus:             bus,
		maxStartupRooms: maxStartupRooms,
	}
}

// SetAuthorizer installs the consumer hook gating lexicon handlers
func (d *Dispatcher) SetAuthorizer(a Authorizer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.authorizer = a
}

// Me returns the framework's own identity once Start has resolved it
func (d *Dispatcher) Me() *models.Person {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.me
}

// Start resolves the framework's identity and spawns bots for up to
// maxStartupRooms of its existing memberships. Rooms beyond the cap are
// picked up by just-in-time discovery when their first notification arrives.
func (d *Dispatcher) Start(ctx context.Context) error {
	me, err := d.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve own identity: %w", err)
	}
	d.mu.Lock()
	d.me = me
	d.mu.Unlock()
	d.spawner.SetMe(me)

	memberships, err := d.client.ListOwnMemberships(ctx, d.maxStartupRooms)
	if err != nil {
		log.Printf("[DISPATCH] Startup discovery failed, relying on just-in-time discovery: %v", err)
		memberships = nil
	}

	spawned := 0
	for _, m := range memberships {
		if d.maxStartupRooms > 0 && spawned >= d.maxStartupRooms {
			break
		}
		if d.spawner.Spawn(ctx, m, "") {
			spawned++
		}
	}
	log.Printf("[DISPATCH] Startup discovery spawned %d bot(s)", spawned)

	d.mu.Lock()
	d.active = true
	d.mu.Unlock()
	d.bus.Publish(Event{Type: EventInitialized})
	return nil
}

// Stop despawns every bot and halts event processing
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	d.active = false
	d.mu.Unlock()

	for _, bot := range d.registry.All() {
		if err := d.spawner.Despawn(ctx, bot.Room().ID, ""); err != nil {
			log.Printf("[DISPATCH] Despawn failed for room %s during shutdown: %v", bot.Room().ID, err)
		}
	}
	d.bus.Publish(Event{Type: EventStopped})
}

func (d *Dispatcher) isActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.active
}

// ProcessNotification routes one inbound platform notification. Unknown
// resources and undecodable payloads are logged and dropped; processing a
// notification never returns an error to the transport.
func (d *Dispatcher) ProcessNotification(ctx context.Context, n models.Notification) {
	nlog := logging.WithNotification(slog.Default(), n.Resource, n.Event, n.ActorID)
	if !d.isActive() {
		nlog.Warn("dropping notification: dispatcher not started")
		return
	}

	switch n.Resource {
	case models.ResourceMemberships:
		var m models.Membership
		if err := json.Unmarshal(n.Data, &m); err != nil {
			nlog.Error("failed to decode membership payload", "error", err)
			return
		}
		switch n.Event {
		case models.EventCreated:
			d.bus.Publish(Event{Type: EventMembershipCreated, Membership: &m, ActorID: n.ActorID})
			d.handleMembershipCreated(ctx, m, n.ActorID, false)
		case models.EventUpdated:
			d.bus.Publish(Event{Type: EventMembershipUpdated, Membership: &m, ActorID: n.ActorID})
			d.handleMembershipUpdated(ctx, m, n.ActorID, false)
		case models.EventDeleted:
			d.bus.Publish(Event{Type: EventMembershipDeleted, Membership: &m, ActorID: n.ActorID})
			d.handleMembershipDeleted(ctx, m, n.ActorID, false)
		}

	case models.ResourceRooms:
		var room models.Room
		if err := json.Unmarshal(n.Data, &room); err != nil {
			nlog.Error("failed to decode room payload", "error", err)
			return
		}
		if n.Event == models.EventUpdated {
			d.handleRoomUpdated(ctx, room, n.ActorID, false)
		}

	case models.ResourceMessages:
		var msg models.Message
		if err := json.Unmarshal(n.Data, &msg); err != nil {
			nlog.Error("failed to decode message payload", "error", err)
			return
		}
		if n.Event == models.EventCreated {
			d.handleMessageCreated(ctx, msg, n.ActorID, false)
		}

	case models.ResourceAttachmentActions:
		var action models.AttachmentAction
		if err := json.Unmarshal(n.Data, &action); err != nil {
			nlog.Error("failed to decode attachment action payload", "error", err)
			return
		}
		if n.Event == models.EventCreated {
			d.handleAttachmentAction(ctx, action, n.ActorID, false)
		}

	default:
		nlog.Debug("ignoring notification for unknown resource")
	}
}

// discover performs bounded just-in-time discovery for a room seen in a
// notification before any bot exists for it. It verifies the framework's own
// membership, spawns, and re-invokes the originating handler exactly once.
func (d *Dispatcher) discover(ctx context.Context, roomID, actorID string, retried bool, retry func()) {
	if retried {
		log.Printf("[DISPATCH] Dropping notification for room %s: discovery already retried", roomID)
		return
	}

	memberships, err := d.client.ListMemberships(ctx, roomID)
	if err != nil {
		log.Printf("[DISPATCH] Discovery failed for room %s: %v", roomID, err)
		return
	}
	me := d.Me()
	var own *models.Membership
	for i := range memberships {
		if me != nil && memberships[i].PersonID == me.ID {
			own = &memberships[i]
			break
		}
	}
	if own == nil {
		log.Printf("[DISPATCH] Discovery found no own membership in room %s, dropping notification", roomID)
		return
	}

	if !d.spawner.Spawn(ctx, *own, actorID) {
		log.Printf("[DISPATCH] Discovery spawn denied for room %s, dropping notification", roomID)
		return
	}
	retry()
}

func (d *Dispatcher) handleMembershipCreated(ctx context.Context, m models.Membership, actorID string, retried bool) {
	me := d.Me()
	if me != nil && m.PersonID == me.ID {
		// The framework was added to a new room
		d.spawner.Spawn(ctx, m, actorID)
		return
	}

	bot, ok := d.registry.Get(m.RoomID)
	if !ok {
		d.discover(ctx, m.RoomID, actorID, retried, func() {
			d.handleMembershipCreated(ctx, m, actorID, true)
		})
		return
	}

	bot.touch()
	d.rules.IsNewMemberAllowed(ctx, bot, actorID, &m)
	d.emitWithBot(Event{Type: EventMemberEnters, Bot: bot, Membership: &m, ActorID: actorID})
}

func (d *Dispatcher) handleMembershipUpdated(ctx context.Context, m models.Membership, actorID string, retried bool) {
	bot, ok := d.registry.Get(m.RoomID)
	if !ok {
		d.discover(ctx, m.RoomID, actorID, retried, func() {
			d.handleMembershipUpdated(ctx, m, actorID, true)
		})
		return
	}
	bot.touch()

	me := d.Me()
	if me != nil && m.PersonID == me.ID {
		if bot.IsModerator() != m.IsModerator {
			bot.setModerator(m.IsModerator)
			if m.IsModerator {
				d.emitWithBot(Event{Type: EventBotAddedAsModerator, Bot: bot, ActorID: actorID})
			} else {
				d.emitWithBot(Event{Type: EventBotRemovedAsModerator, Bot: bot, ActorID: actorID})
			}
		}
		return
	}

	if m.IsModerator {
		d.emitWithBot(Event{Type: EventMemberAddedAsModerator, Bot: bot, Membership: &m, ActorID: actorID})
	} else {
		d.emitWithBot(Event{Type: EventMemberRemovedAsModerator, Bot: bot, Membership: &m, ActorID: actorID})
	}
}

func (d *Dispatcher) handleMembershipDeleted(ctx context.Context, m models.Membership, actorID string, retried bool) {
	me := d.Me()
	if me != nil && m.PersonID == me.ID {
		// The framework was removed from the room
		if err := d.spawner.Despawn(ctx, m.RoomID, actorID); err != nil {
			log.Printf("[DISPATCH] Despawn failed for room %s: %v", m.RoomID, err)
		}
		return
	}

	bot, ok := d.registry.Get(m.RoomID)
	if !ok {
		d.discover(ctx, m.RoomID, actorID, retried, func() {
			d.handleMembershipDeleted(ctx, m, actorID, true)
		})
		return
	}

	bot.touch()
	d.emitWithBot(Event{Type: EventMemberExits, Bot: bot, Membership: &m, ActorID: actorID})
	d.rules.IsAllowedAfterMemberLeaves(ctx, bot, actorID, &m)
}

func (d *Dispatcher) handleRoomUpdated(ctx context.Context, room models.Room, actorID string, retried bool) {
	bot, ok := d.registry.Get(room.ID)
	if !ok {
		d.discover(ctx, room.ID, actorID, retried, func() {
			d.handleRoomUpdated(ctx, room, actorID, true)
		})
		return
	}
	bot.touch()

	if room.Title == "" {
		room.Title = models.DefaultRoomTitle
	}
	prev := bot.swapRoom(&room)

	if prev.IsLocked != room.IsLocked {
		if room.IsLocked {
			d.emitWithBot(Event{Type: EventRoomLocked, Bot: bot, Room: &room, ActorID: actorID})
		} else {
			d.emitWithBot(Event{Type: EventRoomUnlocked, Bot: bot, Room: &room, ActorID: actorID})
		}
	}
	if prev.Title != room.Title {
		d.emitWithBot(Event{Type: EventRoomRenamed, Bot: bot, Room: &room, ActorID: actorID})
	}
}

func (d *Dispatcher) handleMessageCreated(ctx context.Context, msg models.Message, actorID string, retried bool) {
	me := d.Me()
	// Self-authored messages are ignored by person id so display-name
	// changes cannot break the check
	if me != nil && msg.PersonID == me.ID {
		return
	}

	bot, ok := d.registry.Get(msg.RoomID)
	if !ok {
		d.discover(ctx, msg.RoomID, actorID, retried, func() {
			d.handleMessageCreated(ctx, msg, actorID, true)
		})
		return
	}
	bot.touch()

	// Webhook payloads carry only the message id; fetch the body
	if msg.Text == "" && len(msg.Files) == 0 {
		if full, err := d.client.GetMessage(ctx, msg.ID); err == nil {
			full.RoomID = msg.RoomID
			msg = *full
		} else {
			log.Printf("[DISPATCH] Message fetch failed for %s: %v", msg.ID, err)
		}
	}

	person, err := d.client.GetPerson(ctx, msg.PersonID)
	if err != nil {
		person = nil
	}
	trigger := newMessageTrigger(&msg, person)

	if me != nil && slices.Contains(msg.MentionedPeople, me.ID) {
		d.emitBoth(Event{Type: EventMentioned, Bot: bot, Trigger: trigger, ActorID: actorID})
	}
	if msg.Text != "" {
		d.emitBoth(Event{Type: EventMessage, Bot: bot, Trigger: trigger, ActorID: actorID})
	}
	if len(msg.Files) > 0 {
		d.emitBoth(Event{Type: EventFiles, Bot: bot, Trigger: trigger, ActorID: actorID})
	}

	matches := d.lexicon.Match(trigger.Text, person.IsBot())
	if len(matches) == 0 {
		return
	}
	if m := GetMetrics(); m != nil {
		m.LexiconMatches.Inc()
	}

	d.mu.RLock()
	authorizer := d.authorizer
	d.mu.RUnlock()
	if authorizer != nil && !authorizer(bot, trigger) {
		log.Printf("[DISPATCH] Authorizer declined message %s in room %s", msg.ID, msg.RoomID)
		return
	}

	sentNotice := false
	for _, match := range matches {
		t := *trigger
		t.Phrase = match.Entry.Phrase
		if match.Entry.Pattern != nil {
			t.Phrase = match.Entry.Pattern.String()
		}
		t.Args = match.Args
		if d.rules.shouldCallHears(ctx, match.Entry, bot, &t, !sentNotice) {
			d.callHandler(match.Entry, bot, &t)
		} else {
			sentNotice = true
		}
	}
}

func (d *Dispatcher) handleAttachmentAction(ctx context.Context, action models.AttachmentAction, actorID string, retried bool) {
	bot, ok := d.registry.Get(action.RoomID)
	if !ok {
		d.discover(ctx, action.RoomID, actorID, retried, func() {
			d.handleAttachmentAction(ctx, action, actorID, true)
		})
		return
	}
	bot.touch()

	// Webhook payloads omit the submitted inputs; fetch the full action
	if action.Inputs == nil {
		if full, err := d.client.GetAttachmentAction(ctx, action.ID); err == nil {
			full.RoomID = action.RoomID
			action = *full
		} else {
			log.Printf("[DISPATCH] Attachment action fetch failed for %s: %v", action.ID, err)
		}
	}

	person, err := d.client.GetPerson(ctx, action.PersonID)
	if err != nil {
		person = nil
	}
	trigger := newActionTrigger(&action, person)
	d.emitBoth(Event{Type: EventAttachmentAction, Bot: bot, Trigger: trigger, ActorID: actorID})
}

func (d *Dispatcher) callHandler(entry *LexiconEntry, bot *Bot, trigger *models.Trigger) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[DISPATCH] Lexicon handler for %q panicked: %v", trigger.Phrase, r)
		}
	}()
	entry.Handler(bot, trigger)
}

// emitWithBot delivers an event only while the bot is active; otherwise it is
// redirected to an event-swallowed diagnostic carrying the original name.
func (d *Dispatcher) emitWithBot(ev Event) {
	if ev.Bot.Active() {
		d.bus.Publish(ev)
		return
	}
	d.swallow(ev)
}

// emitBoth is emitWithBot, delivered to both the framework-wide and the
// room-scoped listener sets.
func (d *Dispatcher) emitBoth(ev Event) {
	if ev.Bot.Active() {
		d.bus.PublishBoth(ev)
		return
	}
	d.swallow(ev)
}

func (d *Dispatcher) swallow(ev Event) {
	d.bus.Publish(Event{
		Type:       EventMembershipRulesAction,
		Bot:        ev.Bot,
		Membership: ev.Membership,
		Trigger:    ev.Trigger,
		ActorID:    ev.ActorID,
		RulesAction: &RulesAction{
			Kind:    models.RulesActionEventSwallowed,
			Event:   ev.Type,
			ActorID: ev.ActorID,
		},
	})
	if m := GetMetrics(); m != nil {
		m.SwallowedEvents.WithLabelValues(string(models.RulesActionEventSwallowed)).Inc()
	}
}

func newMessageTrigger(msg *models.Message, person *models.Person) *models.Trigger {
	t := &models.Trigger{
		Type:     models.TriggerMessage,
		ID:       msg.ID,
		RoomID:   msg.RoomID,
		Text:     NormalizeText(msg.Text),
		Person:   person,
		PersonID: msg.PersonID,
		Message:  msg,
		Created:  time.Now(),
	}
	t.Args = splitArgs(t.Text)
	return t
}

func newActionTrigger(action *models.AttachmentAction, person *models.Person) *models.Trigger {
	return &models.Trigger{
		Type:             models.TriggerAttachmentAction,
		ID:               action.ID,
		RoomID:           action.RoomID,
		Person:           person,
		PersonID:         action.PersonID,
		AttachmentAction: action,
		Created:          time.Now(),
	}
}

func splitArgs(normalized string) []string {
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}
