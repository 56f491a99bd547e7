package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"papertrader/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams the caller's session events: price ticks, trade
// fills and resets.
type WebSocketHandler struct {
	hub      *services.WebSocketHub
	sessions *services.SessionService
	logger   *zap.Logger
}

func NewWebSocketHandler(hub *services.WebSocketHub, sessions *services.SessionService, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{hub: hub, sessions: sessions, logger: logger}
}

func (h *WebSocketHandler) Serve(c *gin.Context) {
	userID := c.GetString(ctxUserID)

	// the session must exist before any tick can be forwarded
	if _, err := h.sessions.Get(userID); err != nil {
		respondEngineError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	client, ok := h.hub.RegisterClient(conn, userID)
	if !ok {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}
	h.logger.Info("websocket connected", zap.String("user_id", userID))

	go client.WritePump()
	go client.ReadPump()
}
