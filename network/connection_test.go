package network

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newPair returns a server-side WSConnection and the dialed client socket.
func newPair(t *testing.T) (*WSConnection, *websocket.Conn) {
	t.Helper()

	serverSide := make(chan *WSConnection, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverSide <- NewWSConnection(conn, 1024)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case c := <-serverSide:
		t.Cleanup(func() { c.Close() })
		return c, client
	case <-time.After(2 * time.Second):
		t.Fatal("server side connection was not created")
	}
	return nil, nil
}

func TestWSConnection_SendDeliversTextFrames(t *testing.T) {
	conn, client := newPair(t)

	if err := conn.Send([]byte(`{"type":"GAME_STATE"}`)); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Errorf("Expected text frame, got %d", msgType)
	}
	if string(data) != `{"type":"GAME_STATE"}` {
		t.Errorf("Unexpected payload %s", data)
	}
}

func TestWSConnection_ReadMessage(t *testing.T) {
	conn, client := newPair(t)

	if err := client.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("client write failed: %v", err)
	}

	data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage returned error: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Expected hello, got %s", data)
	}
}

func TestWSConnection_SendAfterClose(t *testing.T) {
	conn, _ := newPair(t)

	conn.Close()
	conn.Close()

	if err := conn.Send([]byte("late")); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
	if err := conn.Ping(); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed from Ping, got %v", err)
	}
}

func TestWSConnection_CloseEndsPeerRead(t *testing.T) {
	conn, client := newPair(t)

	if err := conn.Send([]byte("last")); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	conn.Close()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("queued frame should be flushed before close, got %v", err)
	}
	if string(data) != "last" {
		t.Errorf("Expected last, got %s", data)
	}

	if _, _, err := client.ReadMessage(); err == nil {
		t.Error("Expected read error after the server closed the connection")
	}
}
