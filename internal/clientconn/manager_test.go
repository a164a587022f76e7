package clientconn

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialTestClient spins up an httptest server that upgrades to a websocket,
// registers it with m under clientID, and echoes back a canned response for
// every request frame it receives.
func dialTestClient(t *testing.T, m *Manager, clientID string, respond func(Frame) Frame) func() {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		m.Register(clientID, conn)
		go func() {
			defer conn.Close()
			for {
				var frame Frame
				if err := conn.ReadJSON(&frame); err != nil {
					return
				}
				reply := respond(frame)
				reply.ID = frame.ID
				if err := conn.WriteJSON(reply); err != nil {
					return
				}
			}
		}()
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	go func() {
		for {
			_, data, err := clientConn.ReadMessage()
			if err != nil {
				return
			}
			m.HandleInbound(data)
		}
	}()

	return func() {
		clientConn.Close()
		srv.Close()
	}
}

func TestSendRoundTrip(t *testing.T) {
	m := New(2*time.Second, nil)
	close := dialTestClient(t, m, "client-1", func(req Frame) Frame {
		return Frame{Result: json.RawMessage(`{"ok":true}`)}
	})
	defer close()

	waitConnected(t, m, "client-1")

	result, err := m.Send(context.Background(), "client-1", "ping", map[string]string{"a": "b"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(result) != `{"ok":true}` {
		t.Fatalf("result = %s", result)
	}
}

func TestSendUnknownClient(t *testing.T) {
	m := New(2*time.Second, nil)
	if _, err := m.Send(context.Background(), "nobody", "ping", nil); err == nil {
		t.Fatal("expected error for unconnected client")
	}
}

func TestSendTimesOutWhenClientNeverReplies(t *testing.T) {
	m := New(50*time.Millisecond, nil)
	close := dialTestClient(t, m, "client-1", func(req Frame) Frame {
		time.Sleep(200 * time.Millisecond)
		return Frame{Result: json.RawMessage(`{}`)}
	})
	defer close()

	waitConnected(t, m, "client-1")

	_, err := m.Send(context.Background(), "client-1", "slow", nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestReadWriteFileRoundTrip(t *testing.T) {
	m := New(2*time.Second, nil)
	close := dialTestClient(t, m, "client-1", func(req Frame) Frame {
		switch req.Method {
		case "readFile":
			payload, _ := json.Marshal(map[string]string{"data": base64.StdEncoding.EncodeToString([]byte("hello"))})
			return Frame{Result: payload}
		case "writeFile":
			return Frame{Result: json.RawMessage(`{}`)}
		default:
			return Frame{Error: "unknown method"}
		}
	})
	defer close()

	waitConnected(t, m, "client-1")

	data, err := m.ReadFile(context.Background(), "client-1", "notes.md")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("data = %q", data)
	}

	if err := m.WriteFile(context.Background(), "client-1", "notes.md", []byte("world")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func waitConnected(t *testing.T, m *Manager, clientID string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.IsConnected(clientID) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client %s never registered", clientID)
}
