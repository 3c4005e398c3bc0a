package state

import (
	"time"

	"github.com/wfunc/territory/logger"
	"github.com/wfunc/territory/models"
)

// PlayingState is an active match; territories can be claimed.
type PlayingState struct {
	RoomStateBase
	StartedAt time.Time
}

func NewPlayingState(room RoomContext) *PlayingState {
	return &PlayingState{
		RoomStateBase: RoomStateBase{
			ID:   models.StatusPlaying,
			Room: room,
		},
	}
}

func (s *PlayingState) OnEnter() {
	s.StartedAt = time.Now()
	logger.Log.Infof("Room %s started a game", s.Room.GetID())
	s.Room.OnGameStarted()
}

func (s *PlayingState) OnExit() {
	logger.Log.Infof("Room %s left play after %v", s.Room.GetID(), time.Since(s.StartedAt))
	s.Room.OnGameEnded()
}
