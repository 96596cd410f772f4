package web

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ericogr/soil-moisture-monitor/pkg/moisture"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many reports may queue for one client before it is
	// dropped as too slow.
	sendBuffer = 8
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub pushes every published report to connected websocket clients. It
// satisfies output.Output so the sampling loop can drive it. Publish never
// waits on the network: each client has its own queue and writer.
type Hub struct {
	upgrader websocket.Upgrader
	current  func() moisture.Report
	mu       sync.Mutex
	clients  map[*client]struct{}
}

// NewHub returns a hub. current, when set, supplies the report sent to a
// client right after it connects.
func NewHub(current func() moisture.Report) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		current: current,
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.current != nil {
		if b, err := json.Marshal(h.current()); err == nil {
			cl.send <- b
		}
	}
	h.clients[cl] = struct{}{}
	log.Printf("Client connected. Total clients: %d", len(h.clients))
	h.mu.Unlock()

	go cl.writeLoop()
	defer h.remove(cl)

	// Keep connection alive until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the only writer of data frames on the connection. It ends
// when the hub closes the send queue or a write fails.
func (c *client) writeLoop() {
	defer c.conn.Close()
	for b := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Println("WebSocket write error:", err)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
}

// drop unregisters c and closes its queue. Callers hold h.mu.
func (h *Hub) drop(c *client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.drop(c) {
		log.Printf("Client disconnected. Total clients: %d", len(h.clients))
	}
}

func (h *Hub) Publish(r moisture.Report) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			log.Println("WebSocket client too slow, dropping")
			h.drop(c)
			c.conn.Close()
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.drop(c)
	}
	return nil
}
