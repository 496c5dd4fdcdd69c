package models

// MembershipRule names one of the configurable membership policies
type MembershipRule string

const (
	// RuleRestrictedDomains restricts room members to an email-domain allowlist
	RuleRestrictedDomains MembershipRule = "restrictedDomains"
	// RuleGuideRequirement requires at least one configured guide in the room
	RuleGuideRequirement MembershipRule = "guideRequirement"
)

// RuleAction says whether the triggering membership appeared or disappeared
type RuleAction string

const (
	RuleActionCreated RuleAction = "created"
	RuleActionDeleted RuleAction = "deleted"
)

// MembershipRuleChange explains why the rule evaluator forced a bot
// transition. It rides along on the spawn/despawn event it caused.
type MembershipRuleChange struct {
	Rule       MembershipRule `json:"rule"`
	Action     RuleAction     `json:"action"`
	Membership *Membership    `json:"membership,omitempty"`
}

// RulesActionKind classifies membershipRulesAction diagnostic notifications
type RulesActionKind string

const (
	RulesActionStateChange    RulesActionKind = "state-change"
	RulesActionEventSwallowed RulesActionKind = "event-swallowed"
	RulesActionHearsSwallowed RulesActionKind = "hears-swallowed"
)
