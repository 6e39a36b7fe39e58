// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// setupWebSocketServer starts a test server that upgrades the request
// and hands the server side of the connection to handler.
func setupWebSocketServer(t *testing.T, handler func(t *testing.T, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		handler(t, conn)
	}))
}

// dialWebSocket connects to the test server.
func dialWebSocket(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

// waitForChannel fails the test when ch does not signal within timeout.
func waitForChannel(t *testing.T, ch <-chan bool, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Errorf("%s: timeout after %v", msg, timeout)
	}
}

func TestNewClient(t *testing.T) {
	hub := NewHub()

	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	first := NewClient(hub, conn)
	second := NewClient(hub, conn)

	if first == nil {
		t.Fatal("NewClient returned nil")
	}
	if first.hub != hub {
		t.Error("hub not set")
	}
	if first.conn != conn {
		t.Error("connection not set")
	}
	if cap(first.send) != 256 {
		t.Errorf("send channel capacity = %d, want 256", cap(first.send))
	}
	if second.ID() <= first.ID() {
		t.Errorf("client IDs not increasing: %d then %d", first.ID(), second.ID())
	}
}

func TestClientConstants(t *testing.T) {
	if writeWait != 10*time.Second {
		t.Errorf("writeWait = %v", writeWait)
	}
	if pongWait != 60*time.Second {
		t.Errorf("pongWait = %v", pongWait)
	}
	if pingPeriod >= pongWait {
		t.Errorf("pingPeriod %v must be shorter than pongWait %v", pingPeriod, pongWait)
	}
	if maxMessageSize != 512*1024 {
		t.Errorf("maxMessageSize = %d", maxMessageSize)
	}
}

func TestWritePumpDeliversMessage(t *testing.T) {
	hub := NewHub()

	messageReceived := make(chan bool, 1)
	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Errorf("read failed: %v", err)
			return
		}
		if msg.Type != MessageTypeActivity {
			t.Errorf("type = %q, want %q", msg.Type, MessageTypeActivity)
		}
		messageReceived <- true
	})
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	client := NewClient(hub, conn)
	go client.writePump()

	client.send <- Message{Type: MessageTypeActivity, Data: map[string]int{"stream_count": 1}}

	waitForChannel(t, messageReceived, time.Second, "message not received")
}

func TestReadPumpAnswersPing(t *testing.T) {
	hub := setupHub(t)

	receivedPong := make(chan bool, 1)
	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
			t.Errorf("write ping failed: %v", err)
			return
		}

		var pong Message
		if err := conn.ReadJSON(&pong); err != nil {
			t.Errorf("read pong failed: %v", err)
			return
		}
		if pong.Type == MessageTypePong {
			receivedPong <- true
		}
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	client := NewClient(hub, conn)
	go client.readPump()
	go client.writePump()

	waitForChannel(t, receivedPong, time.Second, "pong not received")
}

func TestReadPumpDiscardsUnknownMessages(t *testing.T) {
	hub := setupHub(t)

	receivedPong := make(chan bool, 1)
	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		// A junk message must be swallowed without killing the
		// connection; the ping after it still gets answered.
		if err := conn.WriteJSON(Message{Type: "subscribe", Data: "activity"}); err != nil {
			t.Errorf("write failed: %v", err)
			return
		}
		if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
			t.Errorf("write ping failed: %v", err)
			return
		}

		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Errorf("read failed: %v", err)
			return
		}
		if msg.Type == MessageTypePong {
			receivedPong <- true
		}
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	client := NewClient(hub, conn)
	go client.readPump()
	go client.writePump()

	waitForChannel(t, receivedPong, time.Second, "pong not received after junk message")
}

func TestReadPumpUnregistersOnClose(t *testing.T) {
	hub := setupHub(t)

	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		conn.Close()
	})
	defer server.Close()

	conn := dialWebSocket(t, server)

	client := NewClient(hub, conn)
	registerClient(t, hub, client)

	go client.readPump()

	var count int
	for i := 0; i < 50; i++ {
		time.Sleep(10 * time.Millisecond)
		if count = hub.GetClientCount(); count == 0 {
			break
		}
	}
	if count != 0 {
		t.Errorf("client not unregistered after connection close, %d clients", count)
	}
}

func TestWritePumpClosesConnectionOnChannelClose(t *testing.T) {
	hub := NewHub()

	receivedClose := make(chan bool, 1)
	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					receivedClose <- true
				}
				return
			}
		}
	})
	defer server.Close()

	conn := dialWebSocket(t, server)

	client := NewClient(hub, conn)
	go client.writePump()

	time.Sleep(100 * time.Millisecond)
	close(client.send)

	// The close frame can lose the race against connection teardown,
	// so absence is tolerated.
	select {
	case <-receivedClose:
	case <-time.After(time.Second):
	}
}

func TestClientStartIntegration(t *testing.T) {
	hub := setupHub(t)

	messagesReceived := make(chan Message, 10)
	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			messagesReceived <- msg
		}
	})
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	client := NewClient(hub, conn)
	registerClient(t, hub, client)
	client.Start()

	hub.BroadcastTransition("play", testSession())

	select {
	case msg := <-messagesReceived:
		if msg.Type != MessageTypeTransition {
			t.Errorf("type = %q, want %q", msg.Type, MessageTypeTransition)
		}
		data, ok := msg.Data.(map[string]interface{})
		if !ok {
			t.Fatalf("expected object payload, got %T", msg.Data)
		}
		if data["kind"] != "play" {
			t.Errorf("kind = %v, want play", data["kind"])
		}
	case <-time.After(time.Second):
		t.Error("message not received over the wire")
	}
}

func BenchmarkClientSend(b *testing.B) {
	hub := NewHub()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		b.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	client := NewClient(hub, conn)
	go client.writePump()
	time.Sleep(100 * time.Millisecond)

	msg := Message{Type: MessageTypeActivity, Data: map[string]int{"stream_count": 2}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		select {
		case client.send <- msg:
		default:
		}
	}
}
