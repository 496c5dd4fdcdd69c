package models

import "time"

// TriggerType identifies what kind of inbound event produced a Trigger
type TriggerType string

const (
	TriggerMessage          TriggerType = "message"
	TriggerAttachmentAction TriggerType = "attachmentAction"
)

// Trigger is the ephemeral context handed to lexicon handlers and message
// events: who said what, in normalized form. It is built per notification and
// never persisted.
type Trigger struct {
	Type     TriggerType `json:"type"`
	ID       string      `json:"id"`
	RoomID   string      `json:"roomId"`
	Text     string      `json:"text,omitempty"`
	Phrase   string      `json:"phrase,omitempty"`
	Args     []string    `json:"args,omitempty"`
	Person   *Person     `json:"person,omitempty"`
	PersonID string      `json:"personId"`

	Message          *Message          `json:"message,omitempty"`
	AttachmentAction *AttachmentAction `json:"attachmentAction,omitempty"`

	Created time.Time `json:"created"`
}
