package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orrery-dev/orrery/pkg/subjects"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		server.Close()
		hub.Close()
	})
	return hub, server
}

func dialHub(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() < n {
		t.Fatalf("only %d of %d clients connected", hub.ClientCount(), n)
	}
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub, server := startHub(t)

	first := dialHub(t, server)
	second := dialHub(t, server)
	waitForClients(t, hub, 2)

	hub.Broadcast(subjects.Event{Type: "created", ID: "s1"})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var event subjects.Event
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("read: %v", err)
		}
		if event.Type != "created" || event.ID != "s1" {
			t.Errorf("event = %+v", event)
		}
	}
}

func TestHubConcurrentBroadcasts(t *testing.T) {
	hub, server := startHub(t)

	conn := dialHub(t, server)
	waitForClients(t, hub, 1)

	// Hammer one connection from many goroutines; writes must serialize
	// per connection, so every frame arrives intact.
	const broadcasts = 64
	var wg sync.WaitGroup
	for i := 0; i < broadcasts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hub.Broadcast(subjects.Event{Type: "updated", ID: fmt.Sprintf("s%d", i)})
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, broadcasts)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(seen) < broadcasts {
		var event subjects.Event
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("read after %d events: %v", len(seen), err)
		}
		if event.Type != "updated" {
			t.Fatalf("corrupt event: %+v", event)
		}
		seen[event.ID] = true
	}
}

func TestHubDropsDisconnectedClient(t *testing.T) {
	hub, server := startHub(t)

	conn := dialHub(t, server)
	waitForClients(t, hub, 1)

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Fatal("disconnected client never removed")
	}

	// Broadcasting with no clients must not panic or error.
	hub.Broadcast(subjects.Event{Type: "deleted", ID: "s1"})
}
