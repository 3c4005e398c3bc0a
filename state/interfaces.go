// state/interfaces.go
package state

// RoomContext is what lifecycle states need from the room that owns them.
// Defined here so state does not import room.
type RoomContext interface {
	GetID() string
	OnGameStarted()
	OnGameEnded()
}
