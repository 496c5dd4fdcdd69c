package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"roomframe/internal/models"
	"roomframe/internal/platform"
	"roomframe/internal/storage"
)

// Bot is the framework's presence in one room. The Registry owns the entity;
// the Spawner creates and destroys it; the dispatcher mutates it on inbound
// notifications. Consumers receive it inside events and drive the room
// through its action methods.
type Bot struct {
	ID         string
	Membership *models.Membership

	IsDirect   bool
	IsGroup    bool
	IsTeam     bool
	IsDirectTo string

	client platform.Client
	store  storage.Store
	rules  *MembershipRules

	mu           sync.Mutex
	room         *models.Room
	active       bool
	isModerator  bool
	lastActivity time.Time
}

// Room returns the bot's current view of its room. The pointed-to value is
// replaced wholesale on room updates, never mutated in place.
func (b *Bot) Room() *models.Room {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.room
}

// Active reports whether the bot is currently permitted to interact
func (b *Bot) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// LastActivity returns when the room last saw a notification
func (b *Bot) LastActivity() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastActivity
}

// IsModerator reports whether the bot's own membership is a moderator
func (b *Bot) IsModerator() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isModerator
}

func (b *Bot) start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = true
	b.lastActivity = time.Now()
}

func (b *Bot) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = false
}

func (b *Bot) touch() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastActivity = time.Now()
}

func (b *Bot) setModerator(moderator bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.isModerator = moderator
	b.Membership.IsModerator = moderator
}

// swapRoom replaces the cached room copy and returns the previous one
func (b *Bot) swapRoom(room *models.Room) *models.Room {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.room
	b.room = room
	return prev
}

// requireActive is the precondition shared by every user-facing action
func (b *Bot) requireActive() error {
	if !b.Active() {
		return fmt.Errorf("%w: bot is inactive in room %s", platform.ErrPolicyDenied, b.Room().ID)
	}
	return nil
}

// Say sends a plain-text message to the bot's room
func (b *Bot) Say(ctx context.Context, text string) (*models.Message, error) {
	if err := b.requireActive(); err != nil {
		return nil, err
	}
	return b.client.CreateMessage(ctx, &models.OutboundMessage{
		RoomID: b.Room().ID,
		Text:   text,
	})
}

// SayMarkdown sends a markdown-formatted message to the bot's room
func (b *Bot) SayMarkdown(ctx context.Context, markdown string) (*models.Message, error) {
	if err := b.requireActive(); err != nil {
		return nil, err
	}
	return b.client.CreateMessage(ctx, &models.OutboundMessage{
		RoomID:   b.Room().ID,
		Markdown: markdown,
	})
}

// SayFiles sends file attachments to the bot's room
func (b *Bot) SayFiles(ctx context.Context, text string, files []string) (*models.Message, error) {
	if err := b.requireActive(); err != nil {
		return nil, err
	}
	return b.client.CreateMessage(ctx, &models.OutboundMessage{
		RoomID: b.Room().ID,
		Text:   text,
		Files:  files,
	})
}

// Reply answers the room a trigger came from
func (b *Bot) Reply(ctx context.Context, trigger *models.Trigger, text string) (*models.Message, error) {
	if err := b.requireActive(); err != nil {
		return nil, err
	}
	if trigger == nil {
		return nil, fmt.Errorf("%w: reply requires a trigger", platform.ErrValidation)
	}
	return b.client.CreateMessage(ctx, &models.OutboundMessage{
		RoomID: trigger.RoomID,
		Text:   text,
	})
}

// DM sends a direct message to a person by email or id. New recipients are
// checked against the membership rules first.
func (b *Bot) DM(ctx context.Context, personEmailOrID, text string) (*models.Message, error) {
	if err := b.requireActive(); err != nil {
		return nil, err
	}
	if b.rules != nil && !b.rules.IsNewPersonAllowed(ctx, personEmailOrID) {
		return nil, fmt.Errorf("%w: %s is not allowed by membership rules", platform.ErrPolicyDenied, personEmailOrID)
	}
	out := &models.OutboundMessage{Text: text}
	if strings.Contains(personEmailOrID, "@") {
		out.PersonEmail = personEmailOrID
	} else {
		out.PersonID = personEmailOrID
	}
	return b.client.CreateMessage(ctx, out)
}

// AddMember adds a person to the room. Group rooms only.
func (b *Bot) AddMember(ctx context.Context, personEmail string) (*models.Membership, error) {
	if err := b.requireActive(); err != nil {
		return nil, err
	}
	if b.IsDirect {
		return nil, fmt.Errorf("%w: cannot add members to a direct room", platform.ErrPolicyDenied)
	}
	return b.client.CreateMembership(ctx, b.Room().ID, personEmail, false)
}

// RemoveMember removes a person from the room. Group rooms only, and a locked
// room requires the bot to be a moderator.
func (b *Bot) RemoveMember(ctx context.Context, personEmail string) error {
	if err := b.requireActive(); err != nil {
		return err
	}
	if b.IsDirect {
		return fmt.Errorf("%w: cannot remove members from a direct room", platform.ErrPolicyDenied)
	}
	if b.Room().IsLocked && !b.IsModerator() {
		return fmt.Errorf("%w: bot is not a moderator of locked room %s", platform.ErrPolicyDenied, b.Room().ID)
	}
	m, err := b.findMembership(ctx, personEmail)
	if err != nil {
		return err
	}
	return b.client.DeleteMembership(ctx, m.ID)
}

// SetModerator grants moderator status to a member. Requires the bot to be a
// moderator itself.
func (b *Bot) SetModerator(ctx context.Context, personEmail string) (*models.Membership, error) {
	return b.changeModerator(ctx, personEmail, true)
}

// ClearModerator revokes a member's moderator status
func (b *Bot) ClearModerator(ctx context.Context, personEmail string) (*models.Membership, error) {
	return b.changeModerator(ctx, personEmail, false)
}

func (b *Bot) changeModerator(ctx context.Context, personEmail string, moderator bool) (*models.Membership, error) {
	if err := b.requireActive(); err != nil {
		return nil, err
	}
	if !b.IsModerator() {
		return nil, fmt.Errorf("%w: bot is not a moderator of room %s", platform.ErrPolicyDenied, b.Room().ID)
	}
	m, err := b.findMembership(ctx, personEmail)
	if err != nil {
		return nil, err
	}
	m.IsModerator = moderator
	return b.client.UpdateMembership(ctx, m)
}

// Rename changes the room title. Group rooms only; a locked room requires
// moderator status.
func (b *Bot) Rename(ctx context.Context, title string) (*models.Room, error) {
	if err := b.requireActive(); err != nil {
		return nil, err
	}
	if b.IsDirect {
		return nil, fmt.Errorf("%w: cannot rename a direct room", platform.ErrPolicyDenied)
	}
	if b.Room().IsLocked && !b.IsModerator() {
		return nil, fmt.Errorf("%w: bot is not a moderator of locked room %s", platform.ErrPolicyDenied, b.Room().ID)
	}
	return b.client.UpdateRoomTitle(ctx, b.Room().ID, title)
}

// Exit makes the bot leave a group room by deleting its own membership. The
// resulting membership-deleted notification drives the despawn.
func (b *Bot) Exit(ctx context.Context) error {
	if b.IsDirect {
		return fmt.Errorf("%w: cannot exit a direct room", platform.ErrPolicyDenied)
	}
	return b.client.DeleteMembership(ctx, b.Membership.ID)
}

func (b *Bot) findMembership(ctx context.Context, personEmail string) (*models.Membership, error) {
	memberships, err := b.client.ListMemberships(ctx, b.Room().ID)
	if err != nil {
		return nil, err
	}
	for i := range memberships {
		if strings.EqualFold(memberships[i].PersonEmail, personEmail) {
			return &memberships[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s is not a member of room %s", platform.ErrNotFound, personEmail, b.Room().ID)
}

// Store writes a key in the bot's storage partition
func (b *Bot) Store(ctx context.Context, key string, value any) (any, error) {
	return b.store.Store(ctx, b.Room().ID, key, value)
}

// Recall reads a key, or the whole partition when key == ""
func (b *Bot) Recall(ctx context.Context, key string) (any, error) {
	return b.store.Recall(ctx, b.Room().ID, key)
}

// Forget removes a key from the bot's storage partition
func (b *Bot) Forget(ctx context.Context, key string) (any, error) {
	return b.store.Forget(ctx, b.Room().ID, key)
}

// WriteMetric persists a metric record if the storage adapter supports it;
// otherwise it returns storage.ErrMetricsUnsupported.
func (b *Bot) WriteMetric(ctx context.Context, data map[string]any, actorID string) (map[string]any, error) {
	return storage.WriteMetric(ctx, b.store, b.Room().ID, data, actorID)
}
