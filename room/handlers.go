package room

import (
	"errors"
	"time"

	"github.com/wfunc/territory/logger"
	"github.com/wfunc/territory/models"
	"github.com/wfunc/territory/network"
	"github.com/wfunc/territory/state"
)

func (r *Room) handleMessage(sessionID string, cmd Command, decodeErr error) {
	msgType := "invalid"
	if cmd != nil {
		msgType = cmd.Type()
	}
	start := time.Now()
	r.observer.IncMessagesReceived(msgType)
	defer func() {
		r.observer.ObserveMessageLatency(time.Since(start))
	}()
	defer func() {
		if p := recover(); p != nil {
			logger.Log.Errorf("Room %s panicked handling %s from %s: %v", r.Name, msgType, sessionID, p)
			r.reject(sessionID, msgType, errInternal)
		}
	}()

	err := decodeErr
	if err == nil {
		err = r.apply(sessionID, cmd)
	}
	if err != nil {
		r.reject(sessionID, msgType, err)
	}
}

func (r *Room) reject(sessionID, msgType string, err error) {
	if isRejection(err) {
		logger.Log.Infof("Room %s rejected %s from %s: %v", r.Name, msgType, sessionID, err)
	} else {
		logger.Log.Warnf("Room %s dropped message from %s: %v", r.Name, sessionID, err)
	}
	r.observer.IncCommandsRejected(msgType)
	r.send(sessionID, network.NewErrorMessage(reason(err)))
}

func (r *Room) apply(sessionID string, cmd Command) error {
	switch c := cmd.(type) {
	case *CreateRoom:
		return r.createRoom(sessionID, c)
	case *JoinRoom:
		return r.joinRoom(sessionID, c)
	case *PlayerReady:
		return r.playerReady(sessionID, c)
	case *StartGame:
		return r.startGame(sessionID, c)
	case *ClaimTerritory:
		return r.claimTerritory(sessionID, c)
	case *ResetGame:
		return r.resetGame()
	default:
		return protocolError(ErrUnknownCommand, cmd.Type())
	}
}

// actor resolves the player a connection speaks for. A claimed nickname must
// match the one bound at create or join time.
func (r *Room) actor(sessionID, claimed string) (string, error) {
	bound, ok := r.sessions.NicknameOf(sessionID)
	if !ok {
		if _, exists := r.players[claimed]; exists {
			return "", ErrNotYourPlayer
		}
		return "", ErrPlayerNotFound
	}
	if claimed != "" && claimed != bound {
		return "", ErrNotYourPlayer
	}
	if _, exists := r.players[bound]; !exists {
		return "", ErrPlayerNotFound
	}
	return bound, nil
}

func (r *Room) createRoom(sessionID string, c *CreateRoom) error {
	if r.roomID != "" {
		return ErrRoomExists
	}
	if _, bound := r.sessions.NicknameOf(sessionID); bound {
		return ErrAlreadyJoined
	}

	r.roomID = c.RoomID
	r.addPlayer(sessionID, c.Nickname, true)
	logger.Log.Infof("Room %s created as %q by %s", r.Name, c.RoomID, c.Nickname)

	snap := r.snapshot()
	r.send(sessionID, network.NewRoomCreatedMessage(r.roomID, snap))
	r.broadcastState()
	return nil
}

func (r *Room) joinRoom(sessionID string, c *JoinRoom) error {
	switch {
	case r.roomID == "":
		return ErrRoomNotFound
	case r.status() != models.StatusWaiting:
		return ErrGameInProgress
	}
	if _, bound := r.sessions.NicknameOf(sessionID); bound {
		return ErrAlreadyJoined
	}
	if _, exists := r.players[c.Nickname]; exists {
		return ErrNicknameTaken
	}
	if r.maxPlayers > 0 && len(r.players) >= r.maxPlayers {
		return ErrRoomFull
	}

	r.addPlayer(sessionID, c.Nickname, false)
	logger.Log.Infof("Player %s joined room %s", c.Nickname, r.Name)
	r.broadcastState()
	return nil
}

func (r *Room) playerReady(sessionID string, c *PlayerReady) error {
	nickname, err := r.actor(sessionID, c.Nickname)
	if err != nil {
		return err
	}
	r.players[nickname].Ready = c.IsReady
	r.broadcastState()
	return nil
}

func (r *Room) startGame(sessionID string, c *StartGame) error {
	nickname, err := r.actor(sessionID, c.Nickname)
	if err != nil {
		return err
	}
	if r.status() == models.StatusPlaying {
		return ErrGameStarted
	}
	if nickname != r.host() {
		return ErrNotHost
	}
	if err := r.machine.ChangeState(state.NewPlayingState(r)); err != nil {
		if errors.Is(err, state.ErrTransitionNotAllowed) {
			return ErrGameStarted
		}
		return err
	}
	r.broadcastState()
	return nil
}

func (r *Room) claimTerritory(sessionID string, c *ClaimTerritory) error {
	nickname, err := r.actor(sessionID, c.Nickname)
	if err != nil {
		return err
	}
	if r.status() != models.StatusPlaying {
		return ErrGameNotInProgress
	}
	idx, ok := r.territoryIdx[c.TerritoryID]
	if !ok {
		return ErrTerritoryNotFound
	}
	if r.territories[idx].Owner != nil {
		return ErrTerritoryClaimed
	}

	owner := nickname
	r.territories[idx].Owner = &owner
	r.broadcastState()
	return nil
}

// resetGame clears the board. Status is left alone; a round in progress is
// recorded and restarted.
func (r *Room) resetGame() error {
	if r.status() == models.StatusPlaying {
		r.recordMatch(models.MatchReset)
		r.matchStart = time.Now()
		r.matchPlayers = append([]string(nil), r.order...)
	}
	r.clearOwners()
	r.broadcastState()
	return nil
}

func (r *Room) disconnect(sessionID string) {
	nickname, bound := r.sessions.Unbind(sessionID)
	r.sessions.Remove(sessionID)
	r.observer.DecOnlinePlayers()

	if bound {
		r.removePlayer(nickname)
		logger.Log.Infof("Player %s left room %s", nickname, r.Name)
	}

	if len(r.players) == 0 {
		if r.roomID != "" || r.status() != models.StatusWaiting {
			r.resetRoom()
		}
	} else if bound {
		r.broadcastState()
	}

	if r.onEmpty != nil && r.sessions.LiveCount() == 0 {
		go r.onEmpty(r)
	}
}

// resetRoom returns an empty room to its initial state without broadcasting.
func (r *Room) resetRoom() {
	if r.status() == models.StatusPlaying {
		if err := r.machine.ChangeState(state.NewWaitingState(r)); err != nil {
			logger.Log.Errorf("Room %s could not leave play: %v", r.Name, err)
		}
	}
	r.roomID = ""
	r.order = nil
	r.matchPlayers = nil
	r.matchStart = time.Time{}
	r.clearOwners()
	logger.Log.Infof("Room %s is empty and was reset", r.Name)
}
