package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/dermascan/internal/observability"
	"github.com/your-org/dermascan/pkg/dto"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the station UI is served from another origin
	},
}

// Client is one connected WebSocket subscriber.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	userID string // empty means every user
}

func (c *Client) wants(userID string) bool {
	return c.userID == "" || c.userID == userID
}

// Greeting builds the first event a new subscriber receives, typically the
// current scan state. A nil event sends nothing.
type Greeting func(userID string) *dto.WSEvent

// Hub fans scan updates out to connected clients.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once

	mu    sync.RWMutex
	greet Greeting
}

type outbound struct {
	userID string
	data   []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// OnConnect sets the greeting sent to each new client.
func (h *Hub) OnConnect(g Greeting) {
	h.mu.Lock()
	h.greet = g
	h.mu.Unlock()
}

// Run is the hub event loop; it returns after Close. Call it in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "user_id", client.userID)

		case client := <-h.unregister:
			h.drop(client)
			slog.Debug("ws client disconnected", "user_id", client.userID)

		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.wants(msg.userID) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// Too slow to keep up.
					h.drop(client)
				}
			}

		case <-h.done:
			for client := range h.clients {
				h.drop(client)
			}
			return
		}
	}
}

// Close disconnects every client and stops Run.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	observability.WSConnections.Dec()
}

// BroadcastEvent queues an event for every client subscribed to its user.
// Events are dropped rather than blocking the caller when the hub is backed up.
func (h *Hub) BroadcastEvent(event *dto.WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	select {
	case h.broadcast <- outbound{userID: event.UserID, data: data}:
	default:
		slog.Warn("ws broadcast queue full, dropping event", "type", event.Type)
	}
}

// HandleWS upgrades the request. ?user_id= limits the feed to one user.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		userID: c.Query("user_id"),
	}

	h.mu.RLock()
	greet := h.greet
	h.mu.RUnlock()
	if greet != nil {
		if event := greet(client.userID); event != nil {
			if data, err := json.Marshal(event); err == nil {
				client.send <- data
			}
		}
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// Clients send nothing; reads only detect disconnection.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
