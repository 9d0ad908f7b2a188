package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/thumbtrial/internal/session"
	"github.com/ayusman/thumbtrial/internal/trial"
)

const (
	clientBuffer = 16
	writeWait    = time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// HUDMessage is the per-frame renderer payload.
type HUDMessage struct {
	Label        string        `json:"label"`
	DisplayLabel string        `json:"display_label"`
	HoldMs       int64         `json:"hold_ms"`
	Score        float64       `json:"score"`
	Committed    bool          `json:"committed"`
	StableMs     int64         `json:"stable_ms"`
	Trial        int           `json:"trial"`
	Packet       *trial.Packet `json:"packet,omitempty"`
}

// StatusMessage reports a detector or camera condition to the renderer.
type StatusMessage struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NewHUDMessage converts a session frame into the renderer payload.
func NewHUDMessage(f session.Frame, stable time.Duration) HUDMessage {
	return HUDMessage{
		Label:        string(f.Output.Label),
		DisplayLabel: f.Output.DisplayLabel,
		HoldMs:       f.Output.Hold.Milliseconds(),
		Score:        f.Output.Score,
		Committed:    f.Output.Committed,
		StableMs:     stable.Milliseconds(),
		Trial:        f.Trials,
		Packet:       f.Packet,
	}
}

// Hub broadcasts HUD messages to connected websocket clients. Broadcasting
// never blocks; a client that falls behind loses messages.
type Hub struct {
	clients map[*hubClient]bool
	mu      sync.RWMutex
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*hubClient]bool)}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishFrame broadcasts one session frame.
func (h *Hub) PublishFrame(f session.Frame, stable time.Duration) {
	h.Broadcast(NewHUDMessage(f, stable))
}

// PublishStatus broadcasts a status notification.
func (h *Hub) PublishStatus(status string, err error) {
	msg := StatusMessage{Status: status}
	if err != nil {
		msg.Error = err.Error()
	}
	h.Broadcast(msg)
}

// Broadcast encodes v once and queues it for every client.
func (h *Hub) Broadcast(v any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	msg, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to encode hud message: %v", err)
		return
	}

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	c := &hubClient{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	done := make(chan struct{})
	go c.writePump(done)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	close(done)
	conn.Close()
}

func (c *hubClient) writePump(done <-chan struct{}) {
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}
