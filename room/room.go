package room

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/wfunc/territory/broadcast"
	"github.com/wfunc/territory/logger"
	"github.com/wfunc/territory/models"
	"github.com/wfunc/territory/network"
	"github.com/wfunc/territory/session"
	"github.com/wfunc/territory/state"
)

// Options configures every room a Manager creates.
type Options struct {
	Territories []string
	MaxPlayers  int
	InboxSize   int
	Observer    Observer
	Recorder    MatchRecorder
}

// Room owns one game instance. All state below the marker is touched only by
// the loop goroutine; callers submit events through the inbox and wait for
// them to finish.
type Room struct {
	Name      string
	CreatedAt time.Time

	sessions    *session.Manager
	broadcaster broadcast.Broadcaster
	observer    Observer
	recorder    MatchRecorder
	maxPlayers  int
	onEmpty     func(*Room)

	inbox     chan func()
	closeChan chan struct{}
	closeOnce sync.Once
	loopDone  chan struct{}

	// loop-owned
	roomID       string
	players      map[string]*models.Player
	order        []string // join order; order[0] is the host
	territories  []models.Territory
	territoryIdx map[string]int
	machine      *state.BaseStateMachine
	matchStart   time.Time
	matchPlayers []string
	retired      bool
}

func NewRoom(name string, opts Options) *Room {
	return newRoom(name, opts, nil)
}

// newRoom starts a room whose onEmpty runs, off the loop, each time its last
// live session goes away.
func newRoom(name string, opts Options, onEmpty func(*Room)) *Room {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 64
	}

	r := &Room{
		Name:         name,
		CreatedAt:    time.Now(),
		sessions:     session.NewManager(),
		observer:     opts.Observer,
		recorder:     opts.Recorder,
		maxPlayers:   opts.MaxPlayers,
		onEmpty:      onEmpty,
		inbox:        make(chan func(), opts.InboxSize),
		closeChan:    make(chan struct{}),
		loopDone:     make(chan struct{}),
		players:      make(map[string]*models.Player),
		territoryIdx: make(map[string]int, len(opts.Territories)),
	}
	for i, id := range opts.Territories {
		r.territories = append(r.territories, models.Territory{ID: id})
		r.territoryIdx[id] = i
	}
	r.broadcaster = broadcast.NewRoomBroadcaster(name, r.sessions, func(string) {
		r.observer.IncEvictions()
	})

	r.machine = state.NewBaseStateMachine(state.NewWaitingState(r))
	r.machine.AddTransition(models.StatusWaiting, models.StatusPlaying, r.allReady)
	r.machine.AddTransition(models.StatusPlaying, models.StatusWaiting, nil)

	go r.loop()
	return r
}

// --- state.RoomContext ---

func (r *Room) GetID() string {
	return r.Name
}

func (r *Room) OnGameStarted() {
	r.matchStart = time.Now()
	r.matchPlayers = append([]string(nil), r.order...)
	r.observer.IncGamesStarted()
}

// OnGameEnded runs before owners are cleared so the record sees the final board.
func (r *Room) OnGameEnded() {
	r.recordMatch(models.MatchAbandoned)
}

// --- public API, safe for concurrent use ---

// Connect registers a session and sends it the current state.
func (r *Room) Connect(ctx context.Context, sess *session.Session) error {
	var err error
	doErr := r.do(ctx, func() {
		if r.retired {
			err = ErrRoomClosed
			return
		}
		r.sessions.Add(sess)
		r.observer.IncOnlinePlayers()
		logger.Log.Infof("Session %s connected to room %s from %v", sess.ID, r.Name, sess.Conn.RemoteAddr())
		r.send(sess.ID, network.NewStateMessage(r.snapshot()))
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Handle decodes one inbound frame and applies it.
func (r *Room) Handle(ctx context.Context, sessionID string, data []byte) error {
	cmd, decodeErr := DecodeCommand(data)
	return r.do(ctx, func() {
		r.handleMessage(sessionID, cmd, decodeErr)
	})
}

// Disconnect removes the session and whatever player it was bound to.
func (r *Room) Disconnect(ctx context.Context, sessionID string) error {
	return r.do(ctx, func() {
		r.disconnect(sessionID)
	})
}

// Snapshot returns a deep copy of the room state.
func (r *Room) Snapshot(ctx context.Context) (models.RoomState, error) {
	var snap models.RoomState
	err := r.do(ctx, func() {
		snap = r.snapshot()
	})
	return snap, err
}

// Sessions exposes the room's live set.
func (r *Room) Sessions() *session.Manager {
	return r.sessions
}

// Ping sends a keepalive to every live session and returns the ids evicted for
// failing it. Evicted sessions are closed; their read loops produce the
// disconnect.
func (r *Room) Ping(ctx context.Context) ([]string, error) {
	var evicted []string
	err := r.do(ctx, func() {
		evicted = r.sessions.PingAll()
		for range evicted {
			r.observer.IncEvictions()
		}
	})
	return evicted, err
}

// retire marks a room with no live sessions and no players as finished so later Connects are
// refused. It reports whether the room was retired.
func (r *Room) retire() bool {
	var retired bool
	err := r.do(context.Background(), func() {
		if r.sessions.LiveCount() == 0 && len(r.players) == 0 {
			r.retired = true
		}
		retired = r.retired
	})
	return err == nil && retired
}

// Close stops the loop and closes every live session.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		close(r.closeChan)
		<-r.loopDone
		for _, s := range r.sessions.Sessions() {
			r.sessions.Remove(s.ID)
			s.Close()
		}
	})
}

func (r *Room) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	event := func() {
		defer close(done)
		fn()
	}

	select {
	case r.inbox <- event:
	case <-r.closeChan:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-r.loopDone:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) loop() {
	defer close(r.loopDone)
	for {
		select {
		case event := <-r.inbox:
			r.run(event)
		case <-r.closeChan:
			return
		}
	}
}

func (r *Room) run(event func()) {
	defer func() {
		if p := recover(); p != nil {
			logger.Log.Errorf("Room %s recovered from panic: %v", r.Name, p)
		}
	}()
	event()
	r.observer.SetRoomOccupancy(r.Name, r.sessions.LiveCount(), len(r.players))
}

// --- helpers, loop goroutine only ---

func (r *Room) status() models.Status {
	return r.machine.Status()
}

func (r *Room) host() string {
	if len(r.order) == 0 {
		return ""
	}
	return r.order[0]
}

func (r *Room) allReady() error {
	for _, p := range r.players {
		if !p.Ready {
			return ErrPlayersNotReady
		}
	}
	return nil
}

func (r *Room) addPlayer(sessionID, nickname string, ready bool) {
	r.players[nickname] = &models.Player{
		Nickname:     nickname,
		Ready:        ready,
		ConnectionID: sessionID,
	}
	r.order = append(r.order, nickname)
	r.sessions.Bind(sessionID, nickname)
}

func (r *Room) removePlayer(nickname string) {
	delete(r.players, nickname)
	r.order = lo.Without(r.order, nickname)
}

func (r *Room) clearOwners() {
	for i := range r.territories {
		r.territories[i].Owner = nil
	}
}

func (r *Room) snapshot() models.RoomState {
	var id *string
	if r.roomID != "" {
		roomID := r.roomID
		id = &roomID
	}

	players := make(map[string]*models.Player, len(r.players))
	for nick, p := range r.players {
		cp := *p
		players[nick] = &cp
	}

	territories := make([]models.Territory, len(r.territories))
	for i, t := range r.territories {
		territories[i] = models.Territory{ID: t.ID}
		if t.Owner != nil {
			owner := *t.Owner
			territories[i].Owner = &owner
		}
	}

	return models.RoomState{
		Room: models.Room{
			ID:      id,
			Status:  r.status(),
			Host:    r.host(),
			Players: players,
		},
		Territories: territories,
	}
}

func (r *Room) recordMatch(reason string) {
	if r.recorder == nil {
		return
	}
	owners := make(map[string]string)
	for _, t := range r.territories {
		if t.Owner != nil {
			owners[t.ID] = *t.Owner
		}
	}
	r.recorder.RecordMatch(models.MatchRecord{
		RoomID:    r.roomID,
		Players:   append([]string(nil), r.matchPlayers...),
		Owners:    owners,
		Reason:    reason,
		StartedAt: r.matchStart,
		EndedAt:   time.Now(),
	})
}

func (r *Room) send(sessionID string, msg any) {
	if err := r.broadcaster.SendTo(sessionID, msg); err != nil {
		logger.Log.Debugf("Room %s could not reach session %s: %v", r.Name, sessionID, err)
	}
}

func (r *Room) broadcastState() {
	if err := r.broadcaster.Broadcast(network.NewStateMessage(r.snapshot())); err != nil {
		logger.Log.Errorf("Room %s broadcast failed: %v", r.Name, err)
	}
}
