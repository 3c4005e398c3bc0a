package room

import (
	"errors"
	"fmt"
)

// Rejection is a command refused by the room's rules. Reason is shown to the player.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string {
	return r.Reason
}

var (
	ErrRoomExists        = &Rejection{Reason: "Room already exists"}
	ErrRoomNotFound      = &Rejection{Reason: "Room not found"}
	ErrRoomFull          = &Rejection{Reason: "Room is full"}
	ErrGameInProgress    = &Rejection{Reason: "Game already in progress"}
	ErrNicknameTaken     = &Rejection{Reason: "Nickname already taken"}
	ErrAlreadyJoined     = &Rejection{Reason: "Already joined"}
	ErrPlayerNotFound    = &Rejection{Reason: "Player not found"}
	ErrNotYourPlayer     = &Rejection{Reason: "Not your player"}
	ErrGameStarted       = &Rejection{Reason: "Game already started"}
	ErrNotHost           = &Rejection{Reason: "Only the host can start the game"}
	ErrPlayersNotReady   = &Rejection{Reason: "Not all players are ready"}
	ErrGameNotInProgress = &Rejection{Reason: "Game not in progress"}
	ErrTerritoryNotFound = &Rejection{Reason: "Territory not found"}
	ErrTerritoryClaimed  = &Rejection{Reason: "Territory already claimed"}
	errInternal          = &Rejection{Reason: "Internal error"}
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrInvalidCommand   = errors.New("invalid command")
	ErrRoomClosed       = errors.New("room closed")
	ErrTooManyRooms     = errors.New("too many rooms")
)

// reason is the text sent back in an ERROR frame.
func reason(err error) string {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection.Reason
	}
	return err.Error()
}

func isRejection(err error) bool {
	var rejection *Rejection
	return errors.As(err, &rejection)
}

func protocolError(kind error, detail any) error {
	return fmt.Errorf("%w: %v", kind, detail)
}
