package conn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testClientConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.StaleAfter = 0 // watchdog off unless a test wants it
	cfg.BufferSize = 100
	return cfg
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestClient_ConnectAfterClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	client.Close()

	if err := client.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestClient_Send(t *testing.T) {
	var mu sync.Mutex
	var received []byte

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	if err := client.Send([]byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := string(received)
		mu.Unlock()
		if got == `{"type":"ping"}` {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("server did not receive the sent frame")
}

func TestClient_SendNotConnected(t *testing.T) {
	client := NewClient(testClientConfig("ws://127.0.0.1:1"), nil)

	if err := client.Send([]byte("x")); err != ErrNotConnected {
		t.Errorf("Send = %v, want ErrNotConnected", err)
	}
}

func TestClient_ReceivesMessages(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"s":"BTCUSDT"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case msg := <-client.Messages():
		if string(msg.Data) != `{"s":"BTCUSDT"}` {
			t.Errorf("message = %s", msg.Data)
		}
		if msg.ReceivedAt.IsZero() {
			t.Error("message should carry a receive timestamp")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestClient_ReportsErrorOnServerClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Drop the connection without a close handshake.
		conn.UnderlyingConn().Close()
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if err == nil {
			t.Error("expected a non-nil connection error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection error")
	}
}

func TestClient_WatchdogFlagsSilentSocket(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Say nothing; just hold the socket open.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	cfg := testClientConfig(wsURL(server))
	cfg.StaleAfter = 100 * time.Millisecond

	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if err != ErrStale {
			t.Errorf("error = %v, want ErrStale", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not flag the silent socket")
	}
}
