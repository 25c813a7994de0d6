// Package broadcast runs the websocket fan-out: one upgraded connection per
// observer client, a registry mutated only by the hub goroutine, and the
// admin command sub-protocol multiplexed over the same connection. The
// ping/pong liveness pattern and the per-client write pump are grounded on
// the teacher pack's own websocket server.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one connected observer session.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	remote string
	hub    *Hub
	done   chan struct{}
}

// Remote returns the client's remote address string.
func (c *Client) Remote() string { return c.remote }

// AdminHandler reacts to the admin sub-protocol a client may send over its
// connection. Implemented by the component owning the domain state; the
// hub only dispatches, it never mutates race state itself.
type AdminHandler interface {
	HandlePing(c *Client)
	HandleAdminStart(c *Client, payload json.RawMessage)
	HandleReset(c *Client)
	HandleGetStats(c *Client)
	HandleGetState(c *Client)
	OnConnect(c *Client)
	OnDisconnect(c *Client)
}

// Hub owns the client registry and serializes all writes to it. The
// registry is mutated only from Run's goroutine; other goroutines reach it
// only through the register/unregister/broadcast channels.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcastC chan []byte
	admin      AdminHandler
	log        *slog.Logger
	count      atomic.Int64
}

// ClientCount returns the number of currently connected clients. Safe to
// call from any goroutine.
func (h *Hub) ClientCount() int { return int(h.count.Load()) }

// NewHub constructs a Hub that dispatches admin commands to handler.
func NewHub(handler AdminHandler, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients:    map[*Client]bool{},
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcastC: make(chan []byte, 64),
		admin:      handler,
		log:        log,
	}
}

// Run is the hub's single goroutine; it must run for the lifetime of the
// server. It returns when done is closed.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			h.count.Add(1)
			h.admin.OnConnect(c)
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				h.count.Add(-1)
				close(c.send)
				h.admin.OnDisconnect(c)
			}
		case msg := <-h.broadcastC:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					h.count.Add(-1)
					close(c.send)
				}
			}
		}
	}
}

// Broadcast queues msg for delivery to every connected client. Safe to call
// from any goroutine; the hub goroutine performs the actual fan-out.
func (h *Hub) Broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.log.Error("broadcast: marshal", "err", err)
		return
	}
	select {
	case h.broadcastC <- msg:
	default:
		h.log.Warn("broadcast: channel full, dropping message")
	}
}

// Unicast sends v to one client only, never blocking the caller.
func (h *Hub) Unicast(c *Client, v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.log.Error("unicast: marshal", "err", err)
		return
	}
	select {
	case c.send <- msg:
	default:
		h.log.Warn("unicast: client send buffer full, dropping")
	}
}

// ServeHTTP upgrades the connection and starts the client's read and write
// pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "err", err)
		return
	}
	c := &Client{conn: conn, send: make(chan []byte, sendBufferSize), remote: r.RemoteAddr, hub: h, done: make(chan struct{})}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		close(c.done)
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.hub.log.Warn("admin: malformed message", "remote", c.remote, "err", err)
		return
	}
	switch envelope.Type {
	case "ping":
		c.hub.admin.HandlePing(c)
	case "admin_start":
		c.hub.admin.HandleAdminStart(c, data)
	case "reset":
		c.hub.admin.HandleReset(c)
	case "get_stats":
		c.hub.admin.HandleGetStats(c)
	case "get_state":
		c.hub.admin.HandleGetState(c)
	default:
		c.hub.log.Warn("admin: unknown message type", "type", envelope.Type, "remote", c.remote)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	ping := channerics.NewTicker(c.done, pingPeriod)
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
