package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"papertrader/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	clientBuffer   = 256
	outboundBuffer = 1024
)

// Message types pushed to websocket clients.
const (
	MessagePrices = "prices"
	MessageTrade  = "trade"
	MessageReset  = "reset"
)

// Message is the envelope written to websocket clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type outbound struct {
	userID  string
	payload []byte
}

// WebSocketHub fans engine events out to the connected clients of each user.
type WebSocketHub struct {
	clients    map[string]map[*WebSocketClient]bool
	broadcast  chan outbound
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	done       chan struct{}

	countMu sync.RWMutex
	counts  map[string]int

	logger  *zap.Logger
	metrics *observability.Metrics
}

type WebSocketClient struct {
	hub    *WebSocketHub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// NewWebSocketHub creates a hub. metrics may be nil.
func NewWebSocketHub(logger *zap.Logger, metrics *observability.Metrics) *WebSocketHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHub{
		clients:    make(map[string]map[*WebSocketClient]bool),
		broadcast:  make(chan outbound, outboundBuffer),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		done:       make(chan struct{}),
		counts:     make(map[string]int),
		logger:     logger,
		metrics:    metrics,
	}
}

// Run owns the client set until ctx is cancelled, then closes every client.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for userID, set := range h.clients {
				for client := range set {
					h.drop(userID, client)
				}
			}
			return

		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*WebSocketClient]bool)
				h.clients[client.userID] = set
			}
			set[client] = true
			h.adjust(client.userID, 1)
			h.logger.Debug("ws client connected", zap.String("user_id", client.userID), zap.Int("user_clients", len(set)))

		case client := <-h.unregister:
			if set, ok := h.clients[client.userID]; ok && set[client] {
				h.drop(client.userID, client)
				h.logger.Debug("ws client disconnected", zap.String("user_id", client.userID))
			}

		case msg := <-h.broadcast:
			for client := range h.clients[msg.userID] {
				select {
				case client.send <- msg.payload:
				default:
					h.logger.Warn("ws client too slow, dropping", zap.String("user_id", msg.userID))
					h.drop(msg.userID, client)
				}
			}
		}
	}
}

func (h *WebSocketHub) drop(userID string, client *WebSocketClient) {
	set := h.clients[userID]
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, userID)
	}
	close(client.send)
	h.adjust(userID, -1)
}

func (h *WebSocketHub) adjust(userID string, delta int) {
	h.countMu.Lock()
	h.counts[userID] += delta
	if h.counts[userID] <= 0 {
		delete(h.counts, userID)
	}
	h.countMu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Add(float64(delta))
	}
}

// SendToUser queues msg for every client of userID. It never blocks; when
// the outbound queue is full the message is dropped.
func (h *WebSocketHub) SendToUser(userID string, msg Message) {
	if !h.HasClients(userID) {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal ws message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{userID: userID, payload: payload}:
	default:
		h.logger.Warn("ws outbound queue full, dropping message", zap.String("type", msg.Type))
	}
}

// HasClients reports whether userID has at least one registered connection.
func (h *WebSocketHub) HasClients(userID string) bool {
	h.countMu.RLock()
	defer h.countMu.RUnlock()
	return h.counts[userID] > 0
}

// ClientCount returns the number of registered connections across users.
func (h *WebSocketHub) ClientCount() int {
	h.countMu.RLock()
	defer h.countMu.RUnlock()
	n := 0
	for _, c := range h.counts {
		n += c
	}
	return n
}

// RegisterClient adds conn to the hub. It returns false once the hub has
// stopped.
func (h *WebSocketHub) RegisterClient(conn *websocket.Conn, userID string) (*WebSocketClient, bool) {
	client := &WebSocketClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, clientBuffer),
		userID: userID,
	}
	select {
	case h.register <- client:
		return client, true
	case <-h.done:
		return nil, false
	}
}

// ReadPump discards inbound frames and keeps the connection alive. It
// unregisters the client when the peer goes away.
func (c *WebSocketClient) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("ws read error", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
	}
}

func (c *WebSocketClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
