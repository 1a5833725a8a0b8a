package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// writeWait bounds how long a push to one client may take. A client that
// cannot keep up is dropped from the broadcast set; device routing is never
// affected by a slow phone on the WiFi hotspot.
const writeWait = 5 * time.Second

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans state updates out to every connected remote client.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]bool
	log     *logrus.Entry
}

// NewHub creates an empty broadcast hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*wsClient]bool),
		log:     logrus.WithField("component", "broadcast"),
	}
}

// Broadcast queues payload for every connected client. Clients with a full
// queue are dropped rather than awaited.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.log.WithField("client", c.id).Warn("client too slow, dropping")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the client. initial is sent
// immediately so a newly connected client converges to the same view as
// long-connected ones.
func (h *Hub) ServeWS(upgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, initial []byte) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &wsClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, 16),
	}

	// Queue the snapshot under the lock so no broadcast can interleave
	// between registration and the initial full state.
	h.mu.Lock()
	h.clients[c] = true
	c.send <- initial
	h.mu.Unlock()
	h.log.WithField("client", c.id).Info("client connected")

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) writeLoop(c *wsClient) {
	defer c.conn.Close()
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.drop(c)
			return
		}
	}
}

// readLoop discards inbound frames; the websocket is push-only. It exists to
// notice the peer closing.
func (h *Hub) readLoop(c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
	h.log.WithField("client", c.id).Info("client disconnected")
}
