package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wfunc/territory/logger"
	"github.com/wfunc/territory/models"
)

type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from, to models.Status, guard Guard)
}

type State interface {
	OnEnter()
	OnExit()
	GetID() models.Status
}

// Guard vetoes a transition by returning an error describing why.
type Guard func() error

// ErrTransitionNotAllowed is returned for a transition that was never registered.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// BaseStateMachine only moves along registered transitions, and only when the
// transition's guard passes.
type BaseStateMachine struct {
	currentState State
	transitions  map[models.Status]map[models.Status]Guard // from -> to -> guard
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[models.Status]map[models.Status]Guard),
	}
	initialState.OnEnter()
	return machine
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	currentID := sm.currentState.GetID()
	newID := newState.GetID()

	guard, ok := sm.transitions[currentID][newID]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, currentID, newID)
	}
	if guard != nil {
		if err := guard(); err != nil {
			return err
		}
	}

	sm.currentState.OnExit()
	sm.currentState = newState
	sm.currentState.OnEnter()

	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

// Status is the ID of the current state.
func (sm *BaseStateMachine) Status() models.Status {
	return sm.GetCurrentState().GetID()
}

func (sm *BaseStateMachine) AddTransition(from, to models.Status, guard Guard) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[models.Status]Guard)
	}
	sm.transitions[from][to] = guard
}

type RoomStateBase struct {
	ID   models.Status
	Room RoomContext
}

func (s *RoomStateBase) GetID() models.Status {
	return s.ID
}

func (s *RoomStateBase) OnEnter() {}

func (s *RoomStateBase) OnExit() {}

// WaitingState is the lobby: players join and ready up.
type WaitingState struct {
	RoomStateBase
}

func NewWaitingState(room RoomContext) *WaitingState {
	return &WaitingState{
		RoomStateBase: RoomStateBase{
			ID:   models.StatusWaiting,
			Room: room,
		},
	}
}

func (s *WaitingState) OnEnter() {
	logger.Log.Infof("Room %s is waiting for players", s.Room.GetID())
}
