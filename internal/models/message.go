package models

import "time"

// Message is an inbound platform message. Webhook payloads may omit the text
// body; the dispatcher fetches the full message when that happens.
type Message struct {
	ID              string    `json:"id"`
	RoomID          string    `json:"roomId"`
	RoomType        RoomType  `json:"roomType,omitempty"`
	PersonID        string    `json:"personId"`
	PersonEmail     string    `json:"personEmail,omitempty"`
	Text            string    `json:"text,omitempty"`
	HTML            string    `json:"html,omitempty"`
	Files           []string  `json:"files,omitempty"`
	MentionedPeople []string  `json:"mentionedPeople,omitempty"`
	Created         time.Time `json:"created,omitempty"`
}

// OutboundMessage is the payload for sending a message through the platform
// client. Exactly one of RoomID, PersonID or PersonEmail addresses the target.
type OutboundMessage struct {
	RoomID      string   `json:"roomId,omitempty"`
	PersonID    string   `json:"toPersonId,omitempty"`
	PersonEmail string   `json:"toPersonEmail,omitempty"`
	Text        string   `json:"text,omitempty"`
	Markdown    string   `json:"markdown,omitempty"`
	Files       []string `json:"files,omitempty"`
}

// AttachmentAction is a card/button submit event
type AttachmentAction struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	MessageID string         `json:"messageId"`
	RoomID    string         `json:"roomId"`
	PersonID  string         `json:"personId"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Created   time.Time      `json:"created,omitempty"`
}
