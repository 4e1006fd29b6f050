package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many messages a client may fall behind before it
	// is dropped.
	sendBuffer = 16
)

type Client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn, buffer int) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// enqueue never blocks; false means the client is too far behind.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump is the only writer on the connection.
func (c *Client) writePump(h *Hub) {
	defer h.Unregister(c)
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// Hub fans leaderboard updates out to every connected dashboard.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues payload as JSON for every client and returns without
// waiting on the network. Clients whose queue is full are dropped.
func (h *Hub) Broadcast(payload any) {
	msg, err := json.Marshal(payload)
	if err != nil {
		log.Printf("realtime.Broadcast: marshal: %v", err)
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.enqueue(msg) {
			log.Printf("realtime.Broadcast: dropping slow client %s", c.conn.RemoteAddr())
			h.Unregister(c)
		}
	}
}

// ServeWS upgrades the request and keeps the client until it disconnects.
// The first message is whatever hello returns, unless it returns nil.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, hello func() any) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime.ServeWS: upgrade: %v", err)
		return
	}

	c := newClient(conn, sendBuffer)
	if hello != nil {
		if payload := hello(); payload != nil {
			msg, err := json.Marshal(payload)
			if err != nil {
				log.Printf("realtime.ServeWS: marshal hello: %v", err)
				c.close()
				return
			}
			c.enqueue(msg)
		}
	}
	h.Register(c)
	go c.writePump(h)

	// Dashboards never send anything; reading only detects the close.
	go func() {
		defer h.Unregister(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
