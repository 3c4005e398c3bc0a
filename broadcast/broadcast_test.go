package broadcast

import (
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/wfunc/territory/models"
	"github.com/wfunc/territory/network"
	"github.com/wfunc/territory/session"
)

type MockConnection struct {
	sent    [][]byte
	failing bool
}

func (m *MockConnection) Send(data []byte) error {
	if m.failing {
		return network.ErrSendBufferFull
	}
	m.sent = append(m.sent, data)
	return nil
}
func (m *MockConnection) ReadMessage() ([]byte, error)        { return nil, errors.New("unused") }
func (m *MockConnection) Ping() error                         { return nil }
func (m *MockConnection) Close() error                        { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration) {}

func TestRoomBroadcaster_Broadcast(t *testing.T) {
	sessions := session.NewManager()
	a, b := &MockConnection{}, &MockConnection{}
	sessions.Add(session.NewSession("a", a))
	sessions.Add(session.NewSession("b", b))

	broadcaster := NewRoomBroadcaster("r1", sessions, nil)
	msg := network.NewStateMessage(models.RoomState{
		Room: models.Room{Status: models.StatusWaiting, Players: map[string]*models.Player{}},
	})

	if err := broadcaster.Broadcast(msg); err != nil {
		t.Fatalf("Broadcast returned error: %v", err)
	}

	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Fatalf("Expected exactly one frame per session, got %d and %d", len(a.sent), len(b.sent))
	}
	if string(a.sent[0]) != string(b.sent[0]) {
		t.Error("every session should receive the same encoded payload")
	}

	var decoded struct {
		Type    string `json:"type"`
		Payload struct {
			Room struct {
				ID     *string `json:"id"`
				Status string  `json:"status"`
			} `json:"room"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(a.sent[0], &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded.Type != network.MsgTypeGameState {
		t.Errorf("Expected GAME_STATE, got %s", decoded.Type)
	}
	if decoded.Payload.Room.ID != nil {
		t.Errorf("Expected null room id, got %v", *decoded.Payload.Room.ID)
	}
	if decoded.Payload.Room.Status != "waiting" {
		t.Errorf("Expected waiting status, got %s", decoded.Payload.Room.Status)
	}
}

func TestRoomBroadcaster_EvictionHook(t *testing.T) {
	sessions := session.NewManager()
	good := &MockConnection{}
	sessions.Add(session.NewSession("good", good))
	sessions.Add(session.NewSession("bad", &MockConnection{failing: true}))

	var evicted []string
	broadcaster := NewRoomBroadcaster("r1", sessions, func(id string) {
		evicted = append(evicted, id)
	})

	if err := broadcaster.Broadcast(network.NewErrorMessage("x")); err != nil {
		t.Fatalf("a failing session must not fail the broadcast: %v", err)
	}

	if len(evicted) != 1 || evicted[0] != "bad" {
		t.Errorf("Expected hook for bad, got %v", evicted)
	}
	if len(good.sent) != 1 {
		t.Errorf("healthy session should still receive the frame, got %d", len(good.sent))
	}
}

func TestRoomBroadcaster_SendTo(t *testing.T) {
	sessions := session.NewManager()
	a, b := &MockConnection{}, &MockConnection{}
	sessions.Add(session.NewSession("a", a))
	sessions.Add(session.NewSession("b", b))

	broadcaster := NewRoomBroadcaster("r1", sessions, nil)
	if err := broadcaster.SendTo("a", network.NewErrorMessage("Room not found")); err != nil {
		t.Fatalf("SendTo returned error: %v", err)
	}

	if len(a.sent) != 1 || len(b.sent) != 0 {
		t.Fatalf("directed message should reach only a, got %d and %d", len(a.sent), len(b.sent))
	}
	if string(a.sent[0]) != `{"type":"ERROR","payload":"Room not found"}` {
		t.Errorf("Unexpected error frame %s", a.sent[0])
	}
}

func TestRoomBroadcaster_EncodeError(t *testing.T) {
	sessions := session.NewManager()
	conn := &MockConnection{}
	sessions.Add(session.NewSession("a", conn))

	broadcaster := NewRoomBroadcaster("r1", sessions, nil)
	if err := broadcaster.Broadcast(make(chan int)); err == nil {
		t.Fatal("Expected an encoding error")
	}
	if len(conn.sent) != 0 {
		t.Error("nothing should be sent when encoding fails")
	}
}
