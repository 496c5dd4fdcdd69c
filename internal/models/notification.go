package models

import "encoding/json"

// Notification resources
const (
	ResourceMemberships       = "memberships"
	ResourceRooms             = "rooms"
	ResourceMessages          = "messages"
	ResourceAttachmentActions = "attachmentActions"
)

// Notification events
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// Notification is the inbound platform envelope, delivered either over the
// webhook endpoint or the persistent event socket. Data holds the
// resource-specific payload (Membership, Room, Message or AttachmentAction).
type Notification struct {
	ID       string          `json:"id"`
	Name     string          `json:"name,omitempty"`
	Resource string          `json:"resource"`
	Event    string          `json:"event"`
	ActorID  string          `json:"actorId,omitempty"`
	Data     json.RawMessage `json:"data"`
}
