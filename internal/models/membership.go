package models

import "time"

// Membership represents one person's presence in one room. The framework keeps
// its own membership on the Bot and evaluates other members against the
// configured membership rules.
type Membership struct {
	ID                string    `json:"id"`
	RoomID            string    `json:"roomId"`
	PersonID          string    `json:"personId"`
	PersonEmail       string    `json:"personEmail"`
	PersonDisplayName string    `json:"personDisplayName,omitempty"`
	IsModerator       bool      `json:"isModerator"`
	Created           time.Time `json:"created,omitempty"`
}
