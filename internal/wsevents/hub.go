// Package wsevents streams registry change events to admin observers over
// WebSocket. It is adapted directly from the teacher's
// internal/websocket.MonitorHub: the same register/unregister channel
// pattern feeding one event loop, and the same non-blocking broadcast that
// drops an event rather than stall on a slow client.
package wsevents

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one registry change notification pushed to observers.
type Event struct {
	Type      string    `json:"type"` // "register" | "unregister" | "meta" | "clash"
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name"`
	Node      string    `json:"node,omitempty"`
}

// Hub fans Events out to every connected WebSocket observer.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	logger     *log.Logger
}

// NewHub creates an idle Hub; call Run to start its event loop.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
	}
}

// Run drives the hub's event loop until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteJSON(event); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adopts conn as an observer.
func (h *Hub) Register(conn *websocket.Conn) { h.register <- conn }

// Unregister drops conn as an observer.
func (h *Hub) Unregister(conn *websocket.Conn) { h.unregister <- conn }

// Publish broadcasts an event to every connected observer. Non-blocking:
// if the internal buffer is full, the event is dropped and logged, since
// this stream is an observability aid, not the registry's source of truth.
func (h *Hub) Publish(eventType, name, node string) {
	select {
	case h.broadcast <- Event{Type: eventType, Timestamp: time.Now(), Name: name, Node: node}:
	default:
		h.logger.Printf("wsevents: broadcast buffer full, dropping %s event for %q", eventType, name)
	}
}
