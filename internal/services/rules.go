package services

import (
	"context"
	"log"
	"strings"

	"roomframe/internal/models"
	"roomframe/internal/platform"
)

// RulesConfig is the membership-rules policy: an optional email-domain
// allowlist, an optional list of required guide identities, and the templated
// notices sent around forced transitions. "{{email}}" in a notice is replaced
// with the email of the member that caused the transition.
type RulesConfig struct {
	RestrictedDomains []string `yaml:"restrictedToEmailDomains"`
	Guides            []string `yaml:"guideEmails"`

	DisallowedNotice string `yaml:"membershipRulesDisallowedResponse"`
	StateNotice      string `yaml:"membershipRulesStateMessageResponse"`
	AllowedNotice    string `yaml:"membershipRulesAllowedResponse"`

	// AutomatedDomain is the platform's own bot-account domain; members from
	// it are always exempt from the domain allowlist.
	AutomatedDomain string `yaml:"automatedDomain"`
}

// Enabled reports whether any rule is configured at all
func (c *RulesConfig) Enabled() bool {
	return len(c.RestrictedDomains) > 0 || len(c.Guides) > 0
}

// MembershipRules evaluates room memberships against the configured policy
// and drives the resulting active/inactive transitions. Lookup failures are
// asymmetric on purpose: OnSpawn and IsNewPersonAllowed fail open, while
// IsAllowedAfterMemberLeaves keeps the current state.
type MembershipRules struct {
	cfg      RulesConfig
	client   platform.Client
	registry *Registry
	bus      *EventBus
}

// NewMembershipRules creates the rule evaluator
func NewMembershipRules(cfg RulesConfig, client platform.Client, registry *Registry, bus *EventBus) *MembershipRules {
	if cfg.AutomatedDomain == "" {
		cfg.AutomatedDomain = "bots.roomframe.io"
	}
	return &MembershipRules{
		cfg:      cfg,
		client:   client,
		registry: registry,
		bus:      bus,
	}
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// IsMemberAllowed checks one email against the domain allowlist. The
// platform's automated-account domain is always exempt.
func (r *MembershipRules) IsMemberAllowed(email string) bool {
	if len(r.cfg.RestrictedDomains) == 0 {
		return true
	}
	domain := emailDomain(email)
	if domain == strings.ToLower(r.cfg.AutomatedDomain) {
		return true
	}
	for _, allowed := range r.cfg.RestrictedDomains {
		if domain == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func (r *MembershipRules) isGuide(email string) bool {
	for _, guide := range r.cfg.Guides {
		if strings.EqualFold(guide, email) {
			return true
		}
	}
	return false
}

func (r *MembershipRules) guidePresent(members []models.Membership) bool {
	for _, m := range members {
		if r.isGuide(m.PersonEmail) {
			return true
		}
	}
	return false
}

// firstDisallowed returns the first member that fails the domain allowlist
func (r *MembershipRules) firstDisallowed(members []models.Membership) *models.Membership {
	if len(r.cfg.RestrictedDomains) == 0 {
		return nil
	}
	for i := range members {
		if !r.IsMemberAllowed(members[i].PersonEmail) {
			return &members[i]
		}
	}
	return nil
}

// OnSpawn decides whether a freshly constructed bot may start. known may
// carry an already-fetched membership list to avoid a second lookup. A failed
// lookup fails open: the bot starts and the rules catch up on later events.
func (r *MembershipRules) OnSpawn(ctx context.Context, bot *Bot, known []models.Membership, actorID string) bool {
	if !r.cfg.Enabled() {
		return true
	}

	members := known
	if members == nil {
		var err error
		members, err = r.client.ListMemberships(ctx, bot.Room().ID)
		if err != nil {
			log.Printf("[RULES] Membership lookup failed for room %s, allowing spawn: %v", bot.Room().ID, err)
			return true
		}
	}

	if invalid := r.firstDisallowed(members); invalid != nil {
		r.emitSwallowedSpawn(bot, actorID, &models.MembershipRuleChange{
			Rule:       models.RuleRestrictedDomains,
			Action:     models.RuleActionCreated,
			Membership: invalid,
		})
		return false
	}

	if len(r.cfg.Guides) > 0 && !r.guidePresent(members) {
		r.emitSwallowedSpawn(bot, actorID, &models.MembershipRuleChange{
			Rule:       models.RuleGuideRequirement,
			Action:     models.RuleActionCreated,
			Membership: bot.Membership,
		})
		return false
	}

	return true
}

// IsNewMemberAllowed reacts to a member joining a monitored room. A joining
// guide can reactivate an inactive bot; a member outside the allowed domains
// deactivates an active one.
func (r *MembershipRules) IsNewMemberAllowed(ctx context.Context, bot *Bot, actorID string, member *models.Membership) bool {
	if !r.cfg.Enabled() {
		return true
	}

	if !bot.Active() && r.isGuide(member.PersonEmail) {
		members, err := r.client.ListMemberships(ctx, bot.Room().ID)
		if err != nil {
			log.Printf("[RULES] Membership lookup failed for room %s, keeping bot inactive: %v", bot.Room().ID, err)
			return bot.Active()
		}
		if r.firstDisallowed(members) != nil {
			return false
		}
		r.activate(ctx, bot, actorID, &models.MembershipRuleChange{
			Rule:       models.RuleGuideRequirement,
			Action:     models.RuleActionCreated,
			Membership: member,
		})
		return true
	}

	if bot.Active() && !r.IsMemberAllowed(member.PersonEmail) {
		r.deactivate(ctx, bot, actorID, &models.MembershipRuleChange{
			Rule:       models.RuleRestrictedDomains,
			Action:     models.RuleActionCreated,
			Membership: member,
		}, true)
		return false
	}

	return bot.Active()
}

// IsAllowedAfterMemberLeaves reacts to a member leaving a monitored room. A
// leaving guide can deactivate the bot; a leaving disallowed member can
// reactivate it. Lookup failures keep the current state.
func (r *MembershipRules) IsAllowedAfterMemberLeaves(ctx context.Context, bot *Bot, actorID string, member *models.Membership) bool {
	if !r.cfg.Enabled() {
		return bot.Active()
	}

	if bot.Active() {
		if len(r.cfg.Guides) > 0 && r.isGuide(member.PersonEmail) {
			members, err := r.client.ListMemberships(ctx, bot.Room().ID)
			if err != nil {
				log.Printf("[RULES] Membership lookup failed for room %s, keeping bot active: %v", bot.Room().ID, err)
				return bot.Active()
			}
			if !r.guidePresent(members) {
				r.deactivate(ctx, bot, actorID, &models.MembershipRuleChange{
					Rule:       models.RuleGuideRequirement,
					Action:     models.RuleActionDeleted,
					Membership: member,
				}, false)
				return false
			}
		}
		return true
	}

	// Inactive: the leaver may have been the member blocking the room
	members, err := r.client.ListMemberships(ctx, bot.Room().ID)
	if err != nil {
		log.Printf("[RULES] Membership lookup failed for room %s, keeping bot inactive: %v", bot.Room().ID, err)
		return false
	}
	if r.firstDisallowed(members) != nil {
		return false
	}
	if len(r.cfg.Guides) > 0 && !r.guidePresent(members) {
		return false
	}
	r.activate(ctx, bot, actorID, &models.MembershipRuleChange{
		Rule:       models.RuleRestrictedDomains,
		Action:     models.RuleActionDeleted,
		Membership: member,
	})
	return true
}

// IsNewPersonAllowed gates direct messages to people outside any monitored
// room. Given an id it resolves the email first; lookup failure fails open.
func (r *MembershipRules) IsNewPersonAllowed(ctx context.Context, personEmailOrID string) bool {
	if len(r.cfg.RestrictedDomains) == 0 {
		return true
	}
	email := personEmailOrID
	if !strings.Contains(email, "@") {
		person, err := r.client.GetPerson(ctx, personEmailOrID)
		if err != nil {
			log.Printf("[RULES] Person lookup failed for %s, allowing: %v", personEmailOrID, err)
			return true
		}
		email = person.Email()
	}
	return r.IsMemberAllowed(email)
}

// ShouldCallHears gates a matched lexicon handler on the bot's state. For an
// inactive bot it sends the configured state notice, emits a hears-swallowed
// diagnostic and suppresses the handler.
func (r *MembershipRules) ShouldCallHears(ctx context.Context, entry *LexiconEntry, bot *Bot, trigger *models.Trigger) bool {
	return r.shouldCallHears(ctx, entry, bot, trigger, true)
}

// shouldCallHears lets the dispatcher suppress the state notice when several
// lexicon entries match the same trigger: each suppressed entry still gets its
// own diagnostic, but the room sees at most one notice.
func (r *MembershipRules) shouldCallHears(ctx context.Context, entry *LexiconEntry, bot *Bot, trigger *models.Trigger, sendNotice bool) bool {
	if bot.Active() {
		return true
	}
	if sendNotice && r.cfg.StateNotice != "" {
		_, err := r.client.CreateMessage(ctx, &models.OutboundMessage{
			RoomID:   bot.Room().ID,
			Markdown: r.cfg.StateNotice,
		})
		if err != nil {
			log.Printf("[RULES] Failed to send state notice to room %s: %v", bot.Room().ID, err)
		}
	}
	actor := ""
	if trigger != nil {
		actor = trigger.PersonID
	}
	r.bus.Publish(Event{
		Type:    EventMembershipRulesAction,
		Bot:     bot,
		Trigger: trigger,
		ActorID: actor,
		RulesAction: &RulesAction{
			Kind:    models.RulesActionHearsSwallowed,
			Event:   EventMessage,
			ActorID: actor,
		},
	})
	if m := GetMetrics(); m != nil {
		m.SwallowedEvents.WithLabelValues(string(models.RulesActionHearsSwallowed)).Inc()
	}
	return false
}

// activate moves an inactive bot back to the active set, starts it, notifies
// the room and emits spawn with the causing rule change.
func (r *MembershipRules) activate(ctx context.Context, bot *Bot, actorID string, change *models.MembershipRuleChange) {
	r.registry.Activate(bot)
	bot.start()
	log.Printf("[RULES] Bot reactivated in room %s (%s/%s)", bot.Room().ID, change.Rule, change.Action)

	if r.cfg.AllowedNotice != "" {
		r.sendNotice(ctx, bot, r.cfg.AllowedNotice, change)
	}
	r.bus.Publish(Event{
		Type:       EventSpawn,
		Bot:        bot,
		ActorID:    actorID,
		RuleChange: change,
	})
	r.publishStateChange(bot, actorID, EventSpawn)
	if m := GetMetrics(); m != nil {
		m.Spawns.Inc()
	}
}

// deactivate moves an active bot to the inactive set, stops it and emits
// despawn with the causing rule change. sendNotice controls whether the
// configured disallowed notice goes to the room first.
func (r *MembershipRules) deactivate(ctx context.Context, bot *Bot, actorID string, change *models.MembershipRuleChange, sendNotice bool) {
	if sendNotice && r.cfg.DisallowedNotice != "" {
		r.sendNotice(ctx, bot, r.cfg.DisallowedNotice, change)
	}
	r.registry.Deactivate(bot)
	bot.stop()
	log.Printf("[RULES] Bot deactivated in room %s (%s/%s)", bot.Room().ID, change.Rule, change.Action)

	r.bus.Publish(Event{
		Type:       EventDespawn,
		Bot:        bot,
		ActorID:    actorID,
		RuleChange: change,
	})
	r.publishStateChange(bot, actorID, EventDespawn)
	if m := GetMetrics(); m != nil {
		m.Despawns.Inc()
	}
}

func (r *MembershipRules) sendNotice(ctx context.Context, bot *Bot, notice string, change *models.MembershipRuleChange) {
	if change.Membership != nil {
		notice = strings.ReplaceAll(notice, "{{email}}", change.Membership.PersonEmail)
	}
	_, err := r.client.CreateMessage(ctx, &models.OutboundMessage{
		RoomID:   bot.Room().ID,
		Markdown: notice,
	})
	if err != nil {
		log.Printf("[RULES] Failed to send notice to room %s: %v", bot.Room().ID, err)
	}
}

func (r *MembershipRules) publishStateChange(bot *Bot, actorID string, event EventType) {
	r.bus.Publish(Event{
		Type:    EventMembershipRulesAction,
		Bot:     bot,
		ActorID: actorID,
		RulesAction: &RulesAction{
			Kind:    models.RulesActionStateChange,
			Event:   event,
			ActorID: actorID,
		},
	})
}

// emitSwallowedSpawn reports a spawn suppressed by the rules. The spawner
// files the bot into the inactive set; no spawn event is emitted.
func (r *MembershipRules) emitSwallowedSpawn(bot *Bot, actorID string, change *models.MembershipRuleChange) {
	log.Printf("[RULES] Spawn swallowed for room %s (%s)", bot.Room().ID, change.Rule)
	r.bus.Publish(Event{
		Type:       EventMembershipRulesAction,
		Bot:        bot,
		ActorID:    actorID,
		RuleChange: change,
		RulesAction: &RulesAction{
			Kind:    models.RulesActionEventSwallowed,
			Event:   EventSpawn,
			ActorID: actorID,
		},
	})
	if m := GetMetrics(); m != nil {
		m.SwallowedEvents.WithLabelValues(string(models.RulesActionEventSwallowed)).Inc()
	}
}
