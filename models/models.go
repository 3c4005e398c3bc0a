// models/models.go
package models

import (
	"time"
)

// Status is the lifecycle phase of a room.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
)

// Player is a participant identified by nickname.
type Player struct {
	Nickname     string `json:"nickname"`
	Ready        bool   `json:"ready"`
	ConnectionID string `json:"-"`
}

// Territory is an ownable slot. Owner is nil while unclaimed.
type Territory struct {
	ID    string  `json:"id"`
	Owner *string `json:"owner"`
}

// Room is the serialized room header. ID is nil until CREATE_ROOM.
type Room struct {
	ID      *string            `json:"id"`
	Status  Status             `json:"status"`
	Host    string             `json:"host"`
	Players map[string]*Player `json:"players"`
}

// RoomState is the unit every broadcast carries: always the full state.
type RoomState struct {
	Room        Room        `json:"room"`
	Territories []Territory `json:"territories"`
}

// Match end reasons.
const (
	MatchReset     = "reset"
	MatchAbandoned = "abandoned"
)

// MatchRecord summarises one finished round for the history sink.
type MatchRecord struct {
	RoomID    string            `json:"room_id"`
	Players   []string          `json:"players"`
	Owners    map[string]string `json:"owners"` // territory id -> nickname
	Reason    string            `json:"reason"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   time.Time         `json:"ended_at"`
}

// Duration returns how long the round lasted.
func (r MatchRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}
