package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"papertrader/internal/engine"
	"papertrader/internal/models"
	"papertrader/internal/services"
)

// OrderHandler executes market orders against the caller's session.
type OrderHandler struct {
	sessions *services.SessionService
}

func NewOrderHandler(sessions *services.SessionService) *OrderHandler {
	return &OrderHandler{sessions: sessions}
}

// PlaceOrderRequest takes quantity as a JSON number so fractional input can
// be rejected with the engine's own error instead of a bind failure.
type PlaceOrderRequest struct {
	Symbol   string   `json:"symbol" binding:"required"`
	Quantity *float64 `json:"quantity" binding:"required"`
}

func (h *OrderHandler) Buy(c *gin.Context) {
	h.place(c, models.TradeBuy)
}

func (h *OrderHandler) Sell(c *gin.Context) {
	h.place(c, models.TradeSell)
}

func (h *OrderHandler) place(c *gin.Context, side models.TradeType) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	qty, err := engine.QuantityFromFloat(*req.Quantity)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))

	userID := c.GetString(ctxUserID)
	var res services.TradeResult
	if side == models.TradeBuy {
		res, err = h.sessions.Buy(userID, symbol, qty)
	} else {
		res, err = h.sessions.Sell(userID, symbol, qty)
	}
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *OrderHandler) GetPortfolio(c *gin.Context) {
	sess, err := h.sessions.Get(c.GetString(ctxUserID))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": sess.ID,
		"portfolio": sess.Engine.PortfolioMetrics(),
	})
}

// GetTransactions lists this session's trades, newest first.
func (h *OrderHandler) GetTransactions(c *gin.Context) {
	sess, err := h.sessions.Get(c.GetString(ctxUserID))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": sess.Engine.Transactions()})
}

// GetJournal lists persisted trades across all of the user's sessions.
func (h *OrderHandler) GetJournal(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := h.sessions.Journal(c.Request.Context(), c.GetString(ctxUserID), limit)
	if err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *OrderHandler) ResetSession(c *gin.Context) {
	sess, err := h.sessions.Reset(c.GetString(ctxUserID))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": sess.ID,
		"portfolio": sess.Engine.PortfolioMetrics(),
	})
}
