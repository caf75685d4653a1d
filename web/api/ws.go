package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/discuzbot/discuzbot/internal/orchestrator"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from the same process; origin checks add
	// nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHub pushes orchestrator events to websocket clients
type WSHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewWSHub creates a websocket hub
func NewWSHub() *WSHub {
	return &WSHub{clients: make(map[*websocket.Conn]bool)}
}

// Broadcast writes the event to every connected client, dropping clients
// whose connection fails
func (h *WSHub) Broadcast(ev orchestrator.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(ev); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *WSHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
}

func (h *WSHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

func (s *Server) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade: %v", err)
			return
		}
		s.wsHub.add(conn)

		// Reads are only needed to notice the close frame.
		go func() {
			defer s.wsHub.remove(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
