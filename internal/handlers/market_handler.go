package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"papertrader/internal/models"
	"papertrader/internal/services"
)

type MarketHandler struct {
	sessions *services.SessionService
	catalog  []models.Instrument
}

func NewMarketHandler(sessions *services.SessionService, catalog []models.Instrument) *MarketHandler {
	return &MarketHandler{sessions: sessions, catalog: catalog}
}

// GetInstruments needs no session; the catalog is shared.
func (h *MarketHandler) GetInstruments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"instruments": h.catalog})
}

func (h *MarketHandler) GetQuotes(c *gin.Context) {
	sess, err := h.sessions.Get(c.GetString(ctxUserID))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": sess.Engine.Quotes()})
}

func (h *MarketHandler) GetHistory(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	sess, err := h.sessions.Get(c.GetString(ctxUserID))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	history, err := sess.Engine.PriceHistory(symbol)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	change, err := sess.Engine.DayChange(symbol)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"history":   history,
		"dayChange": change,
	})
}
