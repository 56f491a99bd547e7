package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"papertrader/internal/engine"
	"papertrader/internal/services"
)

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{"error": msg, "code": code})
}

// respondInternal hides err from the client. The request logger reports it.
func respondInternal(c *gin.Context, err error) {
	_ = c.Error(err)
	respondError(c, http.StatusInternalServerError, "INTERNAL", "internal error")
}

// respondEngineError maps engine and session errors onto HTTP statuses.
func respondEngineError(c *gin.Context, err error) {
	code := engine.ErrorCode(err)
	switch {
	case errors.Is(err, engine.ErrInvalidQuantity):
		respondError(c, http.StatusBadRequest, code, err.Error())
	case errors.Is(err, engine.ErrUnknownSymbol):
		respondError(c, http.StatusNotFound, code, err.Error())
	case errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, engine.ErrInsufficientShares),
		errors.Is(err, engine.ErrFeeExceedsProceeds):
		respondError(c, http.StatusUnprocessableEntity, code, err.Error())
	case errors.Is(err, engine.ErrEngineClosed):
		respondError(c, http.StatusConflict, code, err.Error())
	case errors.Is(err, services.ErrSessionsClosed):
		respondError(c, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
	default:
		respondInternal(c, err)
	}
}
