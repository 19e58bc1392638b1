package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/orrery-dev/orrery/pkg/subjects"
)

// feedClient is one connected live-feed subscriber.
type feedClient struct {
	conn *websocket.Conn

	// writeMu protects conn writes. Broadcast runs on every handler
	// goroutine, and gorilla connections allow one concurrent writer.
	writeMu sync.Mutex
}

func (c *feedClient) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub broadcasts subject-change events to connected live-feed clients.
type Hub struct {
	mu       sync.Mutex
	clients  map[*feedClient]bool
	upgrader websocket.Upgrader
	logger   *slog.Logger
	closed   bool
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*feedClient]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// HandleWebSocket upgrades the request and registers the client until its
// connection drops.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("live feed upgrade failed", "error", err)
		return
	}
	client := &feedClient{conn: conn}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = true
	h.mu.Unlock()

	// Drain the connection; clients never send application messages, but
	// reading is what detects the close.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, client)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends the event to every connected client. Write failures drop
// the client; the next read in its drain goroutine cleans it up.
func (h *Hub) Broadcast(event subjects.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("live feed encode failed", "error", err)
		return
	}

	h.mu.Lock()
	clients := make([]*feedClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		if err := client.send(data); err != nil {
			h.logger.Warn("live feed write failed", "error", err)
			client.conn.Close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects future registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*feedClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*feedClient]bool)
	h.mu.Unlock()

	for _, client := range clients {
		client.conn.Close()
	}
}
