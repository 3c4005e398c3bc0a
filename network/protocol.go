package network

import "github.com/wfunc/territory/models"

// Client -> room message types.
const (
	MsgTypeCreateRoom     = "CREATE_ROOM"
	MsgTypeJoinRoom       = "JOIN_ROOM"
	MsgTypePlayerReady    = "PLAYER_READY"
	MsgTypeStartGame      = "START_GAME"
	MsgTypeClaimTerritory = "CLAIM_TERRITORY"
	MsgTypeResetGame      = "RESET_GAME"
)

// Room -> client message types.
const (
	MsgTypeGameState   = "GAME_STATE"
	MsgTypeRoomCreated = "ROOM_CREATED"
	MsgTypeError       = "ERROR"
)

type StateMessage struct {
	Type    string           `json:"type"`
	Payload models.RoomState `json:"payload"`
}

type RoomCreatedMessage struct {
	Type    string           `json:"type"`
	RoomID  string           `json:"roomId"`
	Payload models.RoomState `json:"payload"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

func NewStateMessage(state models.RoomState) StateMessage {
	return StateMessage{Type: MsgTypeGameState, Payload: state}
}

func NewRoomCreatedMessage(roomID string, state models.RoomState) RoomCreatedMessage {
	return RoomCreatedMessage{Type: MsgTypeRoomCreated, RoomID: roomID, Payload: state}
}

func NewErrorMessage(reason string) ErrorMessage {
	return ErrorMessage{Type: MsgTypeError, Payload: reason}
}
