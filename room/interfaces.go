package room

import (
	"time"

	"github.com/wfunc/territory/models"
)

// Observer receives room metrics. monitor.Monitor implements it.
type Observer interface {
	IncMessagesReceived(msgType string)
	IncCommandsRejected(msgType string)
	ObserveMessageLatency(duration time.Duration)
	IncOnlinePlayers()
	DecOnlinePlayers()
	SetRoomOccupancy(room string, connections, players int)
	SetActiveRooms(count int)
	IncEvictions()
	IncGamesStarted()
}

// MatchRecorder receives finished rounds. It must not block.
type MatchRecorder interface {
	RecordMatch(record models.MatchRecord)
}

type nopObserver struct{}

func (nopObserver) IncMessagesReceived(string)              {}
func (nopObserver) IncCommandsRejected(string)              {}
func (nopObserver) ObserveMessageLatency(time.Duration)     {}
func (nopObserver) IncOnlinePlayers()                       {}
func (nopObserver) DecOnlinePlayers()                       {}
func (nopObserver) SetRoomOccupancy(string, int, int)       {}
func (nopObserver) SetActiveRooms(int)                      {}
func (nopObserver) IncEvictions()                           {}
func (nopObserver) IncGamesStarted()                        {}
