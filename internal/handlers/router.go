package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	Auth    *AuthHandler
	Orders  *OrderHandler
	Market  *MarketHandler
	WS      *WebSocketHandler
	Metrics http.Handler
	Logger  *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), cors())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "OK",
			"message": "papertrader is running",
		})
	})
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics))
	}

	authMiddleware := d.Auth.AuthMiddleware()

	auth := router.Group("/api/auth")
	auth.POST("/register", d.Auth.Register)
	auth.POST("/login", d.Auth.Login)
	auth.GET("/me", authMiddleware, d.Auth.GetCurrentUser)

	api := router.Group("/api", authMiddleware)
	api.GET("/market/instruments", d.Market.GetInstruments)
	api.GET("/market/quotes", d.Market.GetQuotes)
	api.GET("/market/history/:symbol", d.Market.GetHistory)

	api.POST("/trades/buy", d.Orders.Buy)
	api.POST("/trades/sell", d.Orders.Sell)
	api.GET("/portfolio", d.Orders.GetPortfolio)
	api.GET("/transactions", d.Orders.GetTransactions)
	api.GET("/transactions/journal", d.Orders.GetJournal)
	api.POST("/session/reset", d.Orders.ResetSession)

	if d.WS != nil {
		router.GET("/ws", authMiddleware, d.WS.Serve)
	}

	return router
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if userID := c.GetString(ctxUserID); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
			logger.Error("request failed", fields...)
			return
		}
		logger.Debug("request", fields...)
	}
}
