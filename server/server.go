package server

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/samber/lo"
	"github.com/wfunc/territory/config"
	"github.com/wfunc/territory/logger"
	"github.com/wfunc/territory/models"
	"github.com/wfunc/territory/monitor"
	"github.com/wfunc/territory/network"
	"github.com/wfunc/territory/room"
	"github.com/wfunc/territory/rpc"
	"github.com/wfunc/territory/services"
	"github.com/wfunc/territory/session"
	"github.com/wfunc/territory/timer"
)

// Deps are the components main wires into the server. RPC may be nil.
type Deps struct {
	Rooms   *room.Manager
	Matches *services.MatchService
	Monitor *monitor.Monitor
	RPC     *rpc.Server
}

type GameServer struct {
	cfg         config.ServerConfig
	defaultRoom string
	upgrader    websocket.Upgrader
	roomManager *room.Manager
	matches     *services.MatchService
	monitor     *monitor.Monitor
	rpcServer   *rpc.Server
	timers      *timer.TimerManager
	httpServer  *http.Server
	metrics     *http.Server
	conns       sync.WaitGroup
	stopOnce    sync.Once
}

func NewGameServer(cfg *config.Config, deps Deps) *GameServer {
	s := &GameServer{
		cfg:         cfg.Server,
		defaultRoom: cfg.Room.DefaultName,
		roomManager: deps.Rooms,
		matches:     deps.Matches,
		monitor:     deps.Monitor,
		rpcServer:   deps.RPC,
		timers:      timer.NewTimerManager(time.Second),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.monitor.Handler())
		mux.Handle("/debug/vars", expvar.Handler())
		s.metrics = &http.Server{
			Addr:              cfg.Server.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return s
}

// Handler is the full HTTP surface, CORS included.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /ws/{room}", s.handleWebSocket)
	mux.HandleFunc("GET /rooms/{room}/state", s.handleRoomState)
	mux.HandleFunc("GET /matches", s.handleMatches)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.cfg.MetricsAddress == "" {
		mux.Handle("GET /metrics", s.monitor.Handler())
		mux.Handle("GET /debug/vars", expvar.Handler())
	}

	return cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(mux)
}

// Start blocks serving HTTP until Shutdown.
func (s *GameServer) Start() error {
	if s.rpcServer != nil {
		go s.rpcServer.Start()
		s.rpcServer.SetServing(true)
	}
	if s.metrics != nil {
		go func() {
			logger.Log.Infof("Metrics listening on %s", s.metrics.Addr)
			if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Errorf("Metrics server failed: %v", err)
			}
		}()
	}
	s.timers.Every(s.cfg.PingInterval, s.sweepKeepalive)

	logger.Log.Infof("Room server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting work, closes every room and waits for connection
// handlers to return before flushing match history.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if s.rpcServer != nil {
			s.rpcServer.SetServing(false)
		}
		s.timers.Stop()

		err = s.httpServer.Shutdown(ctx)
		if s.metrics != nil {
			s.metrics.Shutdown(ctx)
		}

		s.roomManager.Close()

		done := make(chan struct{})
		go func() {
			s.conns.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			logger.Log.Warn("Timed out waiting for connections to close")
		}

		if s.matches != nil {
			s.matches.Close()
		}
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
	})
	return err
}

func (s *GameServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || lo.Contains(s.cfg.AllowedOrigins, "*") {
		return true
	}
	return lo.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("room")
	if name == "" {
		name = s.defaultRoom
	}

	rm, err := s.roomManager.GetOrCreate(name)
	if err != nil {
		logger.Log.Warnf("Refusing connection to room %s: %v", name, err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}

	s.conns.Add(1)
	defer s.conns.Done()
	s.handleConnection(rm, conn)
}

// handleConnection turns transport events into room events: connect, one
// Handle per frame, and exactly one disconnect when the read side ends.
func (s *GameServer) handleConnection(rm *room.Room, conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn, s.cfg.MaxMessageSize)
	wsConn.SetHeartbeat(s.cfg.PingInterval)
	sess := session.NewSession(uuid.NewString(), wsConn)
	ctx := context.Background()

	err := rm.Connect(ctx, sess)
	if errors.Is(err, room.ErrRoomClosed) {
		// released between lookup and connect; reopen it
		var reopened *room.Room
		if reopened, err = s.roomManager.GetOrCreate(rm.Name); err == nil {
			rm = reopened
			err = rm.Connect(ctx, sess)
		}
	}
	if err != nil {
		logger.Log.Warnf("Room %s refused session %s: %v", rm.Name, sess.ID, err)
		wsConn.Close()
		return
	}

	defer func() {
		if err := rm.Disconnect(ctx, sess.ID); err != nil && !errors.Is(err, room.ErrRoomClosed) {
			logger.Log.Errorf("Disconnect of session %s failed: %v", sess.ID, err)
		}
		wsConn.Close()
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.ID)
	}()

	for {
		data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Debugf("Session %s read error: %v", sess.ID, err)
			}
			return
		}
		sess.Touch()
		if err := rm.Handle(ctx, sess.ID, data); err != nil {
			return
		}
	}
}

// sweepKeepalive pings every live session. A failed ping evicts and closes the
// session, which ends its read loop and produces the disconnect.
func (s *GameServer) sweepKeepalive() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PingInterval)
	defer cancel()

	for _, rm := range s.roomManager.Rooms() {
		evicted, err := rm.Ping(ctx)
		if err != nil {
			continue
		}
		for _, id := range evicted {
			logger.Log.Infof("Session %s in room %s missed a keepalive", id, rm.Name)
		}
	}
}

func (s *GameServer) handleRoomState(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.roomManager.GetRoom(r.PathValue("room"))
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	snap, err := rm.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *GameServer) handleMatches(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.matches.Recent(r.Context(), query.Get("room"), limit)
	if err != nil {
		logger.Log.Errorf("Failed to list matches: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}
	if records == nil {
		records = []models.MatchRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *GameServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rooms":  s.roomManager.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Debugf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
