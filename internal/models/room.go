package models

import "time"

// RoomType distinguishes 1:1 rooms from group spaces
type RoomType string

const (
	RoomTypeDirect RoomType = "direct"
	RoomTypeGroup  RoomType = "group"
)

// DefaultRoomTitle is used when the platform returns a room with an empty title
const DefaultRoomTitle = "Default title"

// Room is the framework's view of a platform room. A copy is cached on each
// Bot and refreshed whenever a room-updated notification arrives.
type Room struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Type         RoomType  `json:"type"`
	IsLocked     bool      `json:"isLocked"`
	TeamID       string    `json:"teamId,omitempty"`
	LastActivity time.Time `json:"lastActivity,omitempty"`
	Created      time.Time `json:"created,omitempty"`
}
