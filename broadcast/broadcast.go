// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"fmt"

	"github.com/wfunc/territory/logger"
	"github.com/wfunc/territory/session"
)

// Broadcaster serializes outbound messages for one room.
type Broadcaster interface {
	Broadcast(msg any) error
	SendTo(sessionID string, msg any) error
}

// EvictionHook is told about every session dropped during a fanout.
type EvictionHook func(sessionID string)

// RoomBroadcaster encodes a message once and fans it out through the room's
// session registry.
type RoomBroadcaster struct {
	roomID   string
	sessions *session.Manager
	onEvict  EvictionHook
}

func NewRoomBroadcaster(roomID string, sessions *session.Manager, onEvict EvictionHook) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomID:   roomID,
		sessions: sessions,
		onEvict:  onEvict,
	}
}

func (b *RoomBroadcaster) Broadcast(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}

	for _, id := range b.sessions.Broadcast(data) {
		logger.Log.Warnf("Room %s evicted session %s after a failed send", b.roomID, id)
		if b.onEvict != nil {
			b.onEvict(id)
		}
	}
	return nil
}

func (b *RoomBroadcaster) SendTo(sessionID string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return b.sessions.SendTo(sessionID, data)
}
