// Package realtime streams refreshed quotes to websocket subscribers.
// Clients subscribe to symbol codes; after each market data sync the hub
// pushes the quotes each client asked for.
package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ashare_backend/models"
)

const (
	maxClients    = 100
	writeTimeout  = 10 * time.Second
	pongTimeout   = 60 * time.Second
	pingInterval  = 30 * time.Second
	sendBuffer    = 256
	maxCommandLen = 4096
)

// message is the wire envelope pushed to clients
type message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Time string      `json:"time"`
}

// client is one websocket subscriber
type client struct {
	conn       *websocket.Conn
	send       chan []byte
	mu         sync.RWMutex
	subscribed map[string]bool
}

func (c *client) wants(code string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	// No explicit subscription means the whole market
	return len(c.subscribed) == 0 || c.subscribed[code]
}

// Hub fans quote updates out to connected clients
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	shutdown chan struct{}
	upgrader websocket.Upgrader
}

// NewHub creates an empty hub ready to accept connections
func NewHub() *Hub {
	return &Hub{
		clients:  make(map[*client]bool),
		shutdown: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Shutdown disconnects every client
func (h *Hub) Shutdown() {
	close(h.shutdown)
	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
	}
	h.clients = make(map[*client]bool)
	h.mu.Unlock()
	log.Println("Quote stream hub shut down")
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades one HTTP request into a subscriber connection
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	atCapacity := len(h.clients) >= maxClients
	h.mu.RUnlock()
	if atCapacity {
		http.Error(w, "server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}

	c := &client{
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		subscribed: make(map[string]bool),
	}

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("Quote stream client connected, %d total", count)

	go c.writePump()
	go c.readPump(h)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("Quote stream client disconnected, %d total", count)
}

// BroadcastQuotes pushes refreshed quotes, filtered per client subscription
func (h *Hub) BroadcastQuotes(quotes map[string]*models.Quote) {
	if len(quotes) == 0 {
		return
	}
	now := time.Now().Format(time.RFC3339)

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var dead []*client
	for _, c := range targets {
		selected := make([]*models.Quote, 0, len(quotes))
		for code, q := range quotes {
			if c.wants(code) {
				selected = append(selected, q)
			}
		}
		if len(selected) == 0 {
			continue
		}
		data, err := json.Marshal(message{Type: "quotes", Data: selected, Time: now})
		if err != nil {
			continue
		}
		select {
		case c.send <- data:
		default:
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		h.remove(c)
	}
}

// writePump drains the send channel onto the socket with keepalive pings
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles subscribe/unsubscribe commands from the client
func (c *client) readPump(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxCommandLen)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Websocket read error: %v", err)
			}
			return
		}

		var cmd struct {
			Action string   `json:"action"`
			Codes  []string `json:"codes"`
		}
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}

		c.mu.Lock()
		switch cmd.Action {
		case "subscribe":
			for _, code := range cmd.Codes {
				c.subscribed[models.BareSymbol(code)] = true
			}
		case "unsubscribe":
			for _, code := range cmd.Codes {
				delete(c.subscribed, models.BareSymbol(code))
			}
		}
		c.mu.Unlock()
	}
}
