package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/territory/config"
	"github.com/wfunc/territory/models"
	"github.com/wfunc/territory/monitor"
	"github.com/wfunc/territory/persistence"
	"github.com/wfunc/territory/room"
	"github.com/wfunc/territory/services"
)

type frame struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload"`
}

func (f frame) state(t *testing.T) models.RoomState {
	t.Helper()
	var st models.RoomState
	require.NoError(t, json.Unmarshal(f.Payload, &st))
	return st
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dial(t *testing.T, ts *httptest.Server, path string) *wsClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, path), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(msg string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func (c *wsClient) next(wantType string) frame {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	var f frame
	require.NoError(c.t, json.Unmarshal(data, &f))
	require.Equal(c.t, wantType, f.Type, "unexpected frame %s", data)
	return f
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()
	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)
	cfg.Server.PingInterval = time.Minute
	if mutate != nil {
		mutate(cfg)
	}

	mon := monitor.NewMonitor("territory")
	matches := services.NewMatchService(persistence.NewMemory(), 16, mon)
	rooms := room.NewRoomManager(room.Options{
		Territories: cfg.Room.Territories,
		MaxPlayers:  cfg.Room.MaxPlayers,
		InboxSize:   cfg.Room.InboxSize,
		Observer:    mon,
		Recorder:    matches,
	}, cfg.Room.MaxRooms, cfg.Room.DefaultName)

	srv := NewGameServer(cfg, Deps{Rooms: rooms, Matches: matches, Monitor: mon})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		ts.Close()
	})
	return ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_FullRound(t *testing.T) {
	ts := newTestServer(t, nil)

	alice := dial(t, ts, "/ws")
	alice.next("GAME_STATE")
	bob := dial(t, ts, "/ws")
	bob.next("GAME_STATE")

	alice.send(`{"type":"CREATE_ROOM","roomId":"r1","playerNickname":"alice"}`)
	created := alice.next("ROOM_CREATED")
	require.Equal(t, "r1", created.RoomID)
	alice.next("GAME_STATE")
	bob.next("GAME_STATE")

	bob.send(`{"type":"JOIN_ROOM","playerNickname":"bob"}`)
	alice.next("GAME_STATE")
	bob.next("GAME_STATE")

	bob.send(`{"type":"PLAYER_READY","playerNickname":"bob","isReady":true}`)
	alice.next("GAME_STATE")
	bob.next("GAME_STATE")

	alice.send(`{"type":"START_GAME","playerNickname":"alice"}`)
	st := alice.next("GAME_STATE").state(t)
	require.Equal(t, models.StatusPlaying, st.Room.Status)
	bob.next("GAME_STATE")

	bob.send(`{"type":"CLAIM_TERRITORY","territoryId":"t1","playerNickname":"bob"}`)
	st = alice.next("GAME_STATE").state(t)
	require.NotNil(t, st.Territories[0].Owner)
	require.Equal(t, "bob", *st.Territories[0].Owner)
	bob.next("GAME_STATE")

	alice.send(`{"type":"CLAIM_TERRITORY","territoryId":"t1","playerNickname":"alice"}`)
	errFrame := alice.next("ERROR")
	require.JSONEq(t, `"Territory already claimed"`, string(errFrame.Payload))

	var snap models.RoomState
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/rooms/default-room/state", &snap))
	require.Equal(t, "bob", *snap.Territories[0].Owner)
	require.Equal(t, "alice", snap.Room.Host)

	alice.send(`{"type":"RESET_GAME"}`)
	alice.next("GAME_STATE")
	bob.next("GAME_STATE")

	require.Eventually(t, func() bool {
		var records []models.MatchRecord
		getJSON(t, ts.URL+"/matches?room=r1", &records)
		return len(records) == 1 && records[0].Reason == models.MatchReset && records[0].Owners["t1"] == "bob"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServer_DisconnectRemovesPlayer(t *testing.T) {
	ts := newTestServer(t, nil)

	alice := dial(t, ts, "/ws")
	alice.next("GAME_STATE")
	bob := dial(t, ts, "/ws")
	bob.next("GAME_STATE")

	alice.send(`{"type":"CREATE_ROOM","roomId":"r1","playerNickname":"alice"}`)
	alice.next("ROOM_CREATED")
	alice.next("GAME_STATE")
	bob.next("GAME_STATE")
	bob.send(`{"type":"JOIN_ROOM","playerNickname":"bob"}`)
	alice.next("GAME_STATE")
	bob.next("GAME_STATE")

	alice.conn.Close()
	st := bob.next("GAME_STATE").state(t)
	require.Equal(t, "bob", st.Room.Host)
	require.NotContains(t, st.Room.Players, "alice")
}

func TestServer_NamedRoomsAreIsolated(t *testing.T) {
	ts := newTestServer(t, nil)

	lobby := dial(t, ts, "/ws/lobby")
	lobby.next("GAME_STATE")
	other := dial(t, ts, "/ws/other")
	other.next("GAME_STATE")

	lobby.send(`{"type":"CREATE_ROOM","roomId":"r1","playerNickname":"alice"}`)
	lobby.next("ROOM_CREATED")

	other.send(`{"type":"JOIN_ROOM","playerNickname":"bob"}`)
	errFrame := other.next("ERROR")
	require.JSONEq(t, `"Room not found"`, string(errFrame.Payload))

	require.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/rooms/missing/state", nil))
}

func TestServer_RoomLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Room.MaxRooms = 1
	})

	dial(t, ts, "/ws").next("GAME_STATE")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/second"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_CheckOrigin(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.AllowedOrigins = []string{"http://good.example"}
	})

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://good.example")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws"), header)
	require.NoError(t, err)
	conn.Close()
}

func TestServer_Endpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	c := dial(t, ts, "/ws")
	c.next("GAME_STATE")
	c.send(`{"type":"RESET_GAME"}`)
	c.next("GAME_STATE")

	var health map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", &health))
	require.Equal(t, "ok", health["status"])
	require.EqualValues(t, 1, health["rooms"])

	require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/matches?limit=abc", nil))

	var records []models.MatchRecord
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/matches", &records))
	require.Empty(t, records)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(body), `territory_messages_received_total{type="RESET_GAME"} 1`)
}
